package trust

// PointsEvent is a validated-contribution event carrying a fixed delta in
// the points ledger.
type PointsEvent string

const (
	PointsProposalApproved         PointsEvent = "proposal_approved"
	PointsInstallationSuccessful   PointsEvent = "installation_successful"
	PointsHighImpactFeature        PointsEvent = "high_impact_feature"
	PointsBugFixPassed             PointsEvent = "bug_fix_passed"
	PointsDocumentationImprovement PointsEvent = "documentation_improvement"
	PointsImplementationFailure    PointsEvent = "implementation_failure"
	PointsInstallationRolledBack   PointsEvent = "installation_rolled_back"
	PointsSecurityViolation        PointsEvent = "security_violation"
	PointsCircuitBreakerTriggered  PointsEvent = "circuit_breaker_triggered"
)

// pointsDelta is the fixed award/deduction table. There is no metadata
// scaling: a contribution is worth what its category is worth.
var pointsDelta = map[PointsEvent]int{
	PointsProposalApproved:         +5,
	PointsInstallationSuccessful:   +10,
	PointsHighImpactFeature:        +20,
	PointsBugFixPassed:             +3,
	PointsDocumentationImprovement: +1,
	PointsImplementationFailure:    -5,
	PointsInstallationRolledBack:   -10,
	PointsSecurityViolation:        -20,
	PointsCircuitBreakerTriggered:  -15,
}

// applyPoints adds the event's delta, flooring the ledger at zero.
func (p *Profile) applyPoints(ev PointsEvent) error {
	delta, ok := pointsDelta[ev]
	if !ok {
		return ErrUnknownEvent
	}
	p.TrustPoints += delta
	if p.TrustPoints < 0 {
		p.TrustPoints = 0
	}
	p.PointsTier = TierForPoints(p.TrustPoints)
	return nil
}
