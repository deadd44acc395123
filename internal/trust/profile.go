// Package trust maintains per-agent behavioral trust: a weighted score over
// five components that decays with inactivity, and a separate monotonic
// points ledger of validated contributions. The two tracks gate different
// things on purpose and never feed each other.
package trust

import (
	"errors"
	"time"
)

// Sentinel errors for engine operations.
var (
	ErrNotFound      = errors.New("not_found")
	ErrAlreadyExists = errors.New("already_exists")
	ErrUnknownEvent  = errors.New("unknown_event")
)

// EventType is a behavioral event recorded against a profile.
type EventType string

const (
	ActionSuccess        EventType = "action_success"
	ActionFailure        EventType = "action_failure"
	TestPassed           EventType = "test_passed"
	TestFailed           EventType = "test_failed"
	RollbackExecuted     EventType = "rollback_executed"
	SecurityViolation    EventType = "security_violation"
	ImprovementApplied   EventType = "improvement_applied"
	ProposalSubmitted    EventType = "proposal_submitted"
	ProposalApproved     EventType = "proposal_approved"
	ProposalRejected     EventType = "proposal_rejected"
	InstallationSuccess  EventType = "installation_success"
	InstallationRollback EventType = "installation_rollback"
)

// Profile is the full trust record for one agent. Scores are derived from
// the raw counters on every recorded event; callers never write them
// directly.
type Profile struct {
	AgentID string `json:"agent_id"`

	TrustScore float64 `json:"trust_score"`
	Tier       Tier    `json:"tier"`

	Frozen       bool   `json:"frozen"`
	FrozenReason string `json:"frozen_reason,omitempty"`

	SuccessRateScore float64 `json:"success_rate_score"`
	UptimeScore      float64 `json:"uptime_score"`
	SecurityScore    float64 `json:"security_score"`
	TestPassScore    float64 `json:"test_pass_score"`
	RollbackScore    float64 `json:"rollback_score"`

	TotalActions       int `json:"total_actions"`
	SuccessfulActions  int `json:"successful_actions"`
	SecurityViolations int `json:"security_violations"`
	TotalTests         int `json:"total_tests"`
	TestsPassed        int `json:"tests_passed"`
	RollbackCount      int `json:"rollback_count"`
	ImprovementCount   int `json:"improvement_count"`

	TrustPoints int  `json:"trust_points"`
	PointsTier  Tier `json:"points_tier"`

	ProposalsSubmitted      int `json:"proposals_submitted"`
	ProposalsApproved       int `json:"proposals_approved"`
	ProposalsRejected       int `json:"proposals_rejected"`
	Installations           int `json:"installations"`
	InstallationsRolledBack int `json:"installations_rolled_back"`

	CreatedAt    time.Time  `json:"created_at"`
	LastActiveAt *time.Time `json:"last_active_at,omitempty"`
}

// applyEvent bumps the raw counter matching the event type. Every event,
// whatever its counter, marks the agent active.
func (p *Profile) applyEvent(ev EventType, now time.Time) error {
	switch ev {
	case ActionSuccess:
		p.TotalActions++
		p.SuccessfulActions++
	case ActionFailure:
		p.TotalActions++
	case TestPassed:
		p.TotalTests++
		p.TestsPassed++
	case TestFailed:
		p.TotalTests++
	case RollbackExecuted:
		p.RollbackCount++
	case SecurityViolation:
		p.SecurityViolations++
	case ImprovementApplied:
		p.ImprovementCount++
	case ProposalSubmitted:
		p.ProposalsSubmitted++
	case ProposalApproved:
		p.ProposalsApproved++
	case ProposalRejected:
		p.ProposalsRejected++
	case InstallationSuccess:
		p.Installations++
	case InstallationRollback:
		p.InstallationsRolledBack++
	default:
		return ErrUnknownEvent
	}
	t := now
	p.LastActiveAt = &t
	return nil
}
