// Package audit records every authorization decision in an append-only
// JSONL file with SHA-256 hash chaining, so deletions, insertions, and
// edits are all detectable after the fact.
package audit

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// GenesisHash is the prev_hash of the first entry in a new log.
const GenesisHash = "sha256:0000000000000000000000000000000000000000000000000000000000000000"

// Log is an append-only, hash-chained decision log. Each entry's
// prev_hash is the hash of the previous entry's JSON line.
type Log struct {
	path     string
	file     *os.File
	prevHash string
	mu       sync.Mutex
}

// Open opens (or creates) a log file for appending. An existing file is
// scanned to its last line so the chain continues where it left off.
func Open(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("audit: create directory: %w", err)
	}

	prevHash := GenesisHash
	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		last, err := lastLine(path)
		if err != nil {
			return nil, err
		}
		if len(last) > 0 {
			prevHash = HashLine(last)
		}
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("audit: open file: %w", err)
	}

	return &Log{path: path, file: file, prevHash: prevHash}, nil
}

func lastLine(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("audit: read existing log: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var last []byte
	for scanner.Scan() {
		last = append(last[:0], scanner.Bytes()...)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("audit: scan existing log: %w", err)
	}
	return last, nil
}

// Record appends one entry, setting its PrevHash and, when empty, its
// Timestamp. The line is synced to disk before the chain tail advances.
func (l *Log) Record(entry Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry.Timestamp == "" {
		entry.Timestamp = time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	}
	entry.PrevHash = l.prevHash

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("audit: marshal entry: %w", err)
	}
	if _, err := l.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("audit: write entry: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("audit: sync: %w", err)
	}

	l.prevHash = HashLine(line)
	return nil
}

// Close flushes and closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// HashLine returns "sha256:<hex>" of the given bytes.
func HashLine(line []byte) string {
	h := sha256.Sum256(line)
	return "sha256:" + hex.EncodeToString(h[:])
}
