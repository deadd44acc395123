// Package authz composes capability lookup, identity verification, trust
// gating, constraints, rate limiting, escalation, and the fail-closed
// reflex boundary into one authorization decision.
package authz

import (
	"context"

	"github.com/arborsec/arbor/internal/trust"
)

// Code classifies a decision.
type Code string

const (
	CodeAuthorized         Code = "authorized"
	CodeUnauthorized       Code = "unauthorized"
	CodeTrustFrozen        Code = "trust_frozen"
	CodeInvalidResource    Code = "invalid_resource"
	CodeIdentityUnverified Code = "identity_unverified"
	CodeRateLimited        Code = "rate_limited"
	CodeEscalationPending  Code = "escalation_pending"
	CodeReflexDenied       Code = "reflex_denied"
)

// Request is one authorization question: may principal perform action on
// the resource. Token optionally carries a signed identity assertion.
type Request struct {
	PrincipalID string
	ResourceURI string
	Action      string
	Token       []byte
}

// Decision is the kernel's answer. When the deny policy withholds detail,
// Reason is empty and Code carries only the broad class.
type Decision struct {
	Allowed       bool
	Code          Code
	Reason        string
	Tier          trust.Tier
	CapabilityID  string
	EscalationKey string
}

// IdentityVerifier validates a signed request token. An unknown principal
// must return an error: "not found" propagates as denial, never as a
// silent pass.
type IdentityVerifier interface {
	Verify(ctx context.Context, principal string, token []byte) error
}

// Constraint is a named, caller-supplied gate evaluated on every request.
// It runs inside the reflex boundary, so a panicking or erroring
// constraint denies.
type Constraint interface {
	Name() string
	Check(ctx context.Context, req Request) (bool, error)
}
