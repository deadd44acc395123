package capability

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is emitted on grant and revoke for the audit/alert collaborators.
type Event struct {
	Type       string // "capability_granted" | "capability_revoked"
	Capability Capability
}

// GrantOptions carries optional grant parameters.
type GrantOptions struct {
	// Action overrides the action segment parsed from the resource URI.
	Action string
	// ExpiresAt sets an expiry; nil grants indefinitely.
	ExpiresAt *time.Time
	// Signature attaches a pre-computed signature instead of signing in the
	// store.
	Signature []byte
}

// Store owns all capability records. Mutations are serialized by the write
// lock, so grant/revoke for a principal never race; reads run concurrently
// and return copies. A revoke is visible to every check that begins after
// Revoke returns; there is no resurrection window.
type Store struct {
	mu          sync.RWMutex
	byID        map[string]*Capability
	byPrincipal map[string][]*Capability

	requireSig  bool
	signer      Signer
	prefixMatch bool
	clock       func() time.Time
	events      func(Event)
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithSigningRequired enforces the global signing policy: every grant must
// carry (or receive) a signature and every authorization check verifies it.
func WithSigningRequired(s Signer) StoreOption {
	return func(st *Store) {
		st.requireSig = true
		st.signer = s
	}
}

// WithPrefixMatch enables prefix resource matching. Off by default on
// purpose: a prefix grant silently widens to sibling resources, so callers
// must opt in explicitly.
func WithPrefixMatch() StoreOption {
	return func(st *Store) { st.prefixMatch = true }
}

// WithClock overrides time for tests.
func WithClock(clock func() time.Time) StoreOption {
	return func(st *Store) { st.clock = clock }
}

// WithEvents registers the grant/revoke event hook.
func WithEvents(fn func(Event)) StoreOption {
	return func(st *Store) { st.events = fn }
}

// NewStore creates an empty capability store.
func NewStore(opts ...StoreOption) *Store {
	st := &Store{
		byID:        make(map[string]*Capability),
		byPrincipal: make(map[string][]*Capability),
		clock:       time.Now,
	}
	for _, opt := range opts {
		opt(st)
	}
	return st
}

// Grant creates a capability for principal on resourceURI. The action
// defaults to the URI's action segment.
func (st *Store) Grant(principal, resourceURI string, opts GrantOptions) (Capability, error) {
	res, err := ParseResource(resourceURI)
	if err != nil {
		return Capability{}, err
	}

	action := opts.Action
	if action == "" {
		action = res.Action
	}

	cap := &Capability{
		ID:          uuid.NewString(),
		PrincipalID: principal,
		ResourceURI: resourceURI,
		Action:      action,
		GrantedAt:   st.clock().UTC(),
		ExpiresAt:   opts.ExpiresAt,
		Signature:   opts.Signature,
	}

	if st.requireSig {
		if cap.Signature == nil {
			if st.signer == nil {
				return Capability{}, ErrSignatureRequired
			}
			sig, err := st.signer.Sign(cap)
			if err != nil {
				return Capability{}, fmt.Errorf("%w: %v", ErrSignatureRequired, err)
			}
			cap.Signature = sig
		} else if st.signer != nil && !st.signer.Verify(cap, cap.Signature) {
			return Capability{}, ErrSignatureInvalid
		}
	}

	st.mu.Lock()
	st.byID[cap.ID] = cap
	st.byPrincipal[principal] = append(st.byPrincipal[principal], cap)
	st.mu.Unlock()

	st.emit(Event{Type: "capability_granted", Capability: *cap})
	return *cap, nil
}

// Revoke tombstones a capability. The record stays for audit; it just never
// authorizes again. Revoking an already-revoked capability is a no-op.
func (st *Store) Revoke(id string) error {
	st.mu.Lock()
	cap, ok := st.byID[id]
	if !ok {
		st.mu.Unlock()
		return ErrNotFound
	}
	if cap.RevokedAt == nil {
		now := st.clock().UTC()
		cap.RevokedAt = &now
	}
	snapshot := *cap
	st.mu.Unlock()

	st.emit(Event{Type: "capability_revoked", Capability: snapshot})
	return nil
}

// Get returns a copy of the capability with the given ID, tombstones
// included.
func (st *Store) Get(id string) (Capability, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	cap, ok := st.byID[id]
	if !ok {
		return Capability{}, ErrNotFound
	}
	return *cap, nil
}

// List returns copies of all capabilities for principal, ordered by grant
// time. Tombstoned capabilities are included so revocations stay auditable.
func (st *Store) List(principal string) []Capability {
	st.mu.RLock()
	caps := st.byPrincipal[principal]
	out := make([]Capability, 0, len(caps))
	for _, c := range caps {
		out = append(out, *c)
	}
	st.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].GrantedAt.Before(out[j].GrantedAt) })
	return out
}

// Exists reports whether principal holds a live capability for resourceURI
// and action.
//
// This is a narrow, side-effect-free probe: it skips identity verification,
// trust-tier gating, and rate limiting on purpose. It is a shortcut for
// callers that need a cheap pre-check, not a substitute for Authorize, and
// every call site should be auditable as such.
func (st *Store) Exists(principal, resourceURI, action string) bool {
	_, err := st.Find(principal, resourceURI, action)
	return err == nil
}

// Find returns the first live capability matching the request, or
// ErrNotFound. Matching is exact on the resource URI unless prefix matching
// was enabled; a prefix grant must end on a full path segment.
func (st *Store) Find(principal, resourceURI, action string) (Capability, error) {
	now := st.clock().UTC()

	st.mu.RLock()
	defer st.mu.RUnlock()

	for _, c := range st.byPrincipal[principal] {
		if c.Revoked() || c.Expired(now) {
			continue
		}
		if c.Action != action {
			continue
		}
		if !st.resourceMatches(c.ResourceURI, resourceURI) {
			continue
		}
		if st.requireSig {
			if c.Signature == nil {
				continue
			}
			if st.signer != nil && !st.signer.Verify(c, c.Signature) {
				continue
			}
		}
		return *c, nil
	}
	return Capability{}, ErrNotFound
}

func (st *Store) resourceMatches(granted, requested string) bool {
	if granted == requested {
		return true
	}
	if !st.prefixMatch {
		return false
	}
	return strings.HasPrefix(requested, granted+"/")
}

// Snapshot serializes every record for the CLI state file.
func (st *Store) Snapshot() ([]byte, error) {
	st.mu.RLock()
	caps := make([]Capability, 0, len(st.byID))
	for _, c := range st.byID {
		caps = append(caps, *c)
	}
	st.mu.RUnlock()

	sort.Slice(caps, func(i, j int) bool { return caps[i].GrantedAt.Before(caps[j].GrantedAt) })
	return json.MarshalIndent(caps, "", "  ")
}

// Restore loads records produced by Snapshot into an empty store.
func (st *Store) Restore(data []byte) error {
	var caps []Capability
	if err := json.Unmarshal(data, &caps); err != nil {
		return fmt.Errorf("restore capabilities: %w", err)
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	for i := range caps {
		c := caps[i]
		st.byID[c.ID] = &c
		st.byPrincipal[c.PrincipalID] = append(st.byPrincipal[c.PrincipalID], &c)
	}
	return nil
}

func (st *Store) emit(ev Event) {
	if st.events != nil {
		st.events(ev)
	}
}
