// Package escalation parks authorization requests that need human sign-off.
// Each pending request is one JSON file in the store directory; approving,
// denying, and consuming rewrite the file atomically so a crash never
// leaves a half-written decision.
package escalation

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
)

// validKey matches alphanumeric, dash, underscore, and dot characters only.
var validKey = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// validateKey rejects keys that could cause path traversal.
func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("key must not be empty")
	}
	if strings.Contains(key, "..") {
		return fmt.Errorf("key must not contain '..'")
	}
	if !validKey.MatchString(key) {
		return fmt.Errorf("key contains invalid characters: only alphanumeric, dash, underscore, and dot are allowed")
	}
	return nil
}

// KeyFor derives the deterministic escalation key for a request, so a
// retried authorization lands on the same pending file instead of piling
// up duplicates.
func KeyFor(principal, resourceURI, action string) string {
	sum := sha256.Sum256([]byte(principal + "\x00" + resourceURI + "\x00" + action))
	return hex.EncodeToString(sum[:8])
}

// Status represents the state of an escalation request.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusDenied   Status = "denied"
	StatusConsumed Status = "consumed"
	StatusExpired  Status = "expired"
)

// Request is a single escalated authorization and its state.
type Request struct {
	Key         string     `json:"key"`
	Status      Status     `json:"status"`
	PrincipalID string     `json:"principal_id"`
	ResourceURI string     `json:"resource_uri"`
	Action      string     `json:"action"`
	Reason      string     `json:"reason,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
}

// Store manages escalation files on disk.
type Store struct {
	dir   string
	mu    sync.Mutex
	clock func() time.Time
}

// NewStore creates a Store backed by the given directory.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("cannot create escalation directory: %w", err)
	}
	return &Store{dir: dir, clock: time.Now}, nil
}

// DefaultDir returns the default escalation store directory.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "arbor-pending")
	}
	return filepath.Join(home, ".arbor", "pending")
}

// Submit creates a pending escalation for the request and returns its key.
// Resubmitting an unresolved request is a no-op on the existing file.
func (s *Store) Submit(principal, resourceURI, action, reason string) (string, error) {
	key := KeyFor(principal, resourceURI, action)

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(key)
	if _, err := os.Stat(path); err == nil {
		return key, nil
	}

	r := Request{
		Key:         key,
		Status:      StatusPending,
		PrincipalID: principal,
		ResourceURI: resourceURI,
		Action:      action,
		Reason:      reason,
		CreatedAt:   s.clock().UTC(),
	}
	if err := s.writeAtomic(path, r); err != nil {
		return "", err
	}
	return key, nil
}

// Approve marks an escalation as approved. If duration > 0, the approval
// expires; if duration == 0 it is one-time and consumed on first use.
func (s *Store) Approve(key string, duration time.Duration) error {
	if err := validateKey(key); err != nil {
		return fmt.Errorf("invalid escalation key: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.read(key)
	if err != nil {
		return fmt.Errorf("escalation %q not found: %w", key, err)
	}

	r.Status = StatusApproved
	now := s.clock().UTC()
	r.ResolvedAt = &now
	if duration > 0 {
		exp := now.Add(duration)
		r.ExpiresAt = &exp
	}

	return s.writeAtomic(s.path(key), *r)
}

// Deny marks an escalation as denied.
func (s *Store) Deny(key string) error {
	if err := validateKey(key); err != nil {
		return fmt.Errorf("invalid escalation key: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.read(key)
	if err != nil {
		return fmt.Errorf("escalation %q not found: %w", key, err)
	}

	r.Status = StatusDenied
	now := s.clock().UTC()
	r.ResolvedAt = &now

	return s.writeAtomic(s.path(key), *r)
}

// Check returns the current status of an escalation. An approved entry
// past its deadline reads (and persists) as expired.
func (s *Store) Check(key string) (Status, error) {
	if err := validateKey(key); err != nil {
		return "", fmt.Errorf("invalid escalation key: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.read(key)
	if err != nil {
		return "", fmt.Errorf("escalation %q not found", key)
	}

	if r.Status == StatusApproved && r.ExpiresAt != nil && s.clock().UTC().After(*r.ExpiresAt) {
		r.Status = StatusExpired
		s.writeAtomic(s.path(key), *r)
		return StatusExpired, nil
	}

	return r.Status, nil
}

// Redeem uses an approved escalation: a one-time approval (no expiry) is
// consumed, a time-bound approval stays usable until it expires. Returns
// the status observed before redemption.
func (s *Store) Redeem(key string) (Status, error) {
	if err := validateKey(key); err != nil {
		return "", fmt.Errorf("invalid escalation key: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.read(key)
	if err != nil {
		return "", fmt.Errorf("escalation %q not found: %w", key, err)
	}

	if r.Status == StatusApproved && r.ExpiresAt != nil && s.clock().UTC().After(*r.ExpiresAt) {
		r.Status = StatusExpired
		s.writeAtomic(s.path(key), *r)
		return StatusExpired, nil
	}
	if r.Status != StatusApproved {
		return r.Status, nil
	}

	if r.ExpiresAt == nil {
		r.Status = StatusConsumed
		now := s.clock().UTC()
		r.ResolvedAt = &now
		if err := s.writeAtomic(s.path(key), *r); err != nil {
			return "", err
		}
	}
	return StatusApproved, nil
}

// Consume marks a one-time approval as consumed.
func (s *Store) Consume(key string) error {
	if err := validateKey(key); err != nil {
		return fmt.Errorf("invalid escalation key: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.read(key)
	if err != nil {
		return fmt.Errorf("escalation %q not found: %w", key, err)
	}

	if r.Status == StatusConsumed {
		return fmt.Errorf("escalation %q already consumed", key)
	}

	r.Status = StatusConsumed
	now := s.clock().UTC()
	r.ResolvedAt = &now

	return s.writeAtomic(s.path(key), *r)
}

// List returns all escalations in the store.
func (s *Store) List() ([]Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var requests []Request
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		key := strings.TrimSuffix(e.Name(), ".json")
		r, err := s.read(key)
		if err != nil {
			continue
		}
		requests = append(requests, *r)
	}

	return requests, nil
}

// Cleanup removes all escalation files in the store.
func (s *Store) Cleanup() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var errs []error
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

func (s *Store) read(key string) (*Request, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		return nil, err
	}

	var r Request
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}

	return &r, nil
}

func (s *Store) writeAtomic(path string, r Request) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}

	return os.Rename(tmp, path)
}
