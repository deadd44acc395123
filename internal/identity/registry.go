package identity

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	// ErrUnknownPrincipal means no public key is registered for the ID.
	ErrUnknownPrincipal = errors.New("unknown principal")
	// ErrTokenExpired means the token's issue time fell outside the
	// registry's freshness window.
	ErrTokenExpired = errors.New("token expired")
	// ErrBadSignature means the token signature did not verify.
	ErrBadSignature = errors.New("bad token signature")
	// ErrPrincipalMismatch means the token was minted for a different
	// principal than the one making the request.
	ErrPrincipalMismatch = errors.New("token principal mismatch")
)

// DefaultTokenTTL bounds how old a token may be before it is rejected.
const DefaultTokenTTL = 5 * time.Minute

// Registry maps principal IDs to their ed25519 public keys and verifies
// request tokens against them. It satisfies the authorization kernel's
// identity verifier contract: unknown principals return an error, never
// a silent pass.
type Registry struct {
	mu    sync.RWMutex
	keys  map[string]ed25519.PublicKey
	ttl   time.Duration
	clock func() time.Time
}

// RegistryOption adjusts Registry construction.
type RegistryOption func(*Registry)

// WithTokenTTL overrides the token freshness window. Zero disables the
// freshness check entirely.
func WithTokenTTL(ttl time.Duration) RegistryOption {
	return func(r *Registry) { r.ttl = ttl }
}

// WithRegistryClock overrides the time source for tests.
func WithRegistryClock(clock func() time.Time) RegistryOption {
	return func(r *Registry) { r.clock = clock }
}

// NewRegistry creates an empty Registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		keys:  make(map[string]ed25519.PublicKey),
		ttl:   DefaultTokenTTL,
		clock: time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register stores the public key for a principal, replacing any previous
// key.
func (r *Registry) Register(principalID string, pub ed25519.PublicKey) error {
	if len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("principal %q: key must be %d bytes, got %d",
			principalID, ed25519.PublicKeySize, len(pub))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys[principalID] = pub
	return nil
}

// Remove drops a principal's key. Removing an unknown principal is a no-op.
func (r *Registry) Remove(principalID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.keys, principalID)
}

// IsRegistered reports whether a key exists for the principal.
func (r *Registry) IsRegistered(principalID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.keys[principalID]
	return ok
}

// Verify checks a signed request token: the principal must be registered,
// the token must name the same principal, carry a fresh issue time, and
// its signature must verify under the registered key.
func (r *Registry) Verify(ctx context.Context, principalID string, token []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.RLock()
	pub, ok := r.keys[principalID]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPrincipal, principalID)
	}

	t, err := decodeToken(token)
	if err != nil {
		return err
	}
	if t.PrincipalID != principalID {
		return fmt.Errorf("%w: token for %q presented by %q",
			ErrPrincipalMismatch, t.PrincipalID, principalID)
	}
	if r.ttl > 0 {
		now := r.clock().UTC()
		issued := time.Unix(0, t.IssuedAt).UTC()
		if issued.After(now.Add(time.Minute)) || now.Sub(issued) > r.ttl {
			return fmt.Errorf("%w: issued %s", ErrTokenExpired, issued.Format(time.RFC3339))
		}
	}
	if !ed25519.Verify(pub, tokenMessage(t), t.Signature) {
		return fmt.Errorf("%w: principal %q", ErrBadSignature, principalID)
	}
	return nil
}

// keyFile is the on-disk form of the registry: principal ID to hex-encoded
// public key.
type keyFile struct {
	Principals map[string]string `yaml:"principals"`
}

// LoadRegistry reads a principals file. A missing file yields an empty
// registry so a fresh install verifies nothing but also breaks nothing.
func LoadRegistry(path string, opts ...RegistryOption) (*Registry, error) {
	r := NewRegistry(opts...)

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read principals: %w", err)
	}

	var f keyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse principals: %w", err)
	}
	for id, hexKey := range f.Principals {
		raw, err := hex.DecodeString(hexKey)
		if err != nil {
			return nil, fmt.Errorf("principal %q: decode key: %w", id, err)
		}
		if err := r.Register(id, ed25519.PublicKey(raw)); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Save writes the registry back to a principals file.
func (r *Registry) Save(path string) error {
	r.mu.RLock()
	f := keyFile{Principals: make(map[string]string, len(r.keys))}
	for id, pub := range r.keys {
		f.Principals[id] = hex.EncodeToString(pub)
	}
	r.mu.RUnlock()

	data, err := yaml.Marshal(&f)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
