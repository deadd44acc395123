// Package capability is the source of truth for static permissions: an
// in-memory grant/revoke/list store keyed by principal, with tombstoned
// revocation for audit.
package capability

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors for store operations.
var (
	ErrNotFound          = errors.New("not_found")
	ErrInvalidResource   = errors.New("invalid_resource")
	ErrSignatureRequired = errors.New("signature_required")
	ErrSignatureInvalid  = errors.New("signature_invalid")
)

// Capability is an unforgeable grant of one action on one resource to one
// principal. It authorizes only while unrevoked, unexpired, and validly
// signed when the store's signing policy demands it.
type Capability struct {
	ID          string     `json:"id"`
	PrincipalID string     `json:"principal_id"`
	ResourceURI string     `json:"resource_uri"`
	Action      string     `json:"action"`
	GrantedAt   time.Time  `json:"granted_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Signature   []byte     `json:"signature,omitempty"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
}

// Revoked reports whether the capability has been tombstoned.
func (c *Capability) Revoked() bool {
	return c.RevokedAt != nil
}

// Expired reports whether the capability has passed its expiry.
func (c *Capability) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && now.After(*c.ExpiresAt)
}

// Resource is a parsed resource URI: scheme://domain/action[/path...].
type Resource struct {
	Scheme string
	Domain string
	Action string
	Path   []string
}

// URI renders the resource back to its canonical string form.
func (r Resource) URI() string {
	parts := append([]string{r.Action}, r.Path...)
	return fmt.Sprintf("%s://%s/%s", r.Scheme, r.Domain, strings.Join(parts, "/"))
}

// ParseResource parses a resource URI. The URI must be ASCII; everything
// after the scheme is case-sensitive.
func ParseResource(uri string) (Resource, error) {
	for i := 0; i < len(uri); i++ {
		if uri[i] > 127 {
			return Resource{}, fmt.Errorf("%w: non-ASCII byte at offset %d", ErrInvalidResource, i)
		}
	}

	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok || scheme == "" || rest == "" {
		return Resource{}, fmt.Errorf("%w: %q lacks scheme://domain", ErrInvalidResource, uri)
	}
	for _, r := range scheme {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return Resource{}, fmt.Errorf("%w: scheme %q must be lowercase alphanumeric", ErrInvalidResource, scheme)
		}
	}

	segs := strings.Split(rest, "/")
	if len(segs) < 2 || segs[0] == "" || segs[1] == "" {
		return Resource{}, fmt.Errorf("%w: %q lacks domain/action", ErrInvalidResource, uri)
	}
	for _, seg := range segs {
		if seg == "" {
			return Resource{}, fmt.Errorf("%w: empty segment in %q", ErrInvalidResource, uri)
		}
	}

	return Resource{
		Scheme: scheme,
		Domain: segs[0],
		Action: segs[1],
		Path:   segs[2:],
	}, nil
}
