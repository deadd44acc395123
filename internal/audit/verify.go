package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
)

// VerifyResult holds the outcome of a hash chain verification.
type VerifyResult struct {
	Valid     bool   `json:"valid"`
	Lines     int    `json:"lines"`
	Error     string `json:"error,omitempty"`
	ErrorLine int    `json:"error_line,omitempty"`
}

// Verify reads a JSONL decision log and validates the hash chain,
// reporting the first broken link when the chain does not hold.
func Verify(path string) VerifyResult {
	f, err := os.Open(path)
	if err != nil {
		return VerifyResult{Error: fmt.Sprintf("open: %v", err)}
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNum := 0
	var prev []byte

	for scanner.Scan() {
		lineNum++
		line := make([]byte, len(scanner.Bytes()))
		copy(line, scanner.Bytes())

		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			return VerifyResult{
				Error:     fmt.Sprintf("parse error: %v", err),
				ErrorLine: lineNum,
			}
		}

		want := GenesisHash
		if lineNum > 1 {
			want = HashLine(prev)
		}
		if entry.PrevHash != want {
			return VerifyResult{
				Error:     fmt.Sprintf("hash mismatch: expected %s, got %s", want, entry.PrevHash),
				ErrorLine: lineNum,
			}
		}

		prev = line
	}

	if err := scanner.Err(); err != nil {
		return VerifyResult{Error: fmt.Sprintf("scan: %v", err)}
	}

	return VerifyResult{Valid: true, Lines: lineNum}
}
