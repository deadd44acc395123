package trust

import (
	"math"
	"time"
)

// Weights are the component weights of the aggregate trust score. They must
// sum to 1.0.
type Weights struct {
	SuccessRate float64 `yaml:"success_rate" json:"success_rate"`
	Uptime      float64 `yaml:"uptime" json:"uptime"`
	Security    float64 `yaml:"security" json:"security"`
	TestPass    float64 `yaml:"test_pass" json:"test_pass"`
	Rollback    float64 `yaml:"rollback" json:"rollback"`
}

// DefaultWeights returns the standard weighting: security and success rate
// dominate, rollback history matters least.
func DefaultWeights() Weights {
	return Weights{
		SuccessRate: 0.30,
		Uptime:      0.15,
		Security:    0.25,
		TestPass:    0.20,
		Rollback:    0.10,
	}
}

func successRateScore(successful, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Min(100, 100*float64(successful)/float64(total))
}

// uptimeScore decays linearly with inactivity: 100 at 0 days, 70 at 7, 30
// at 30, 0 at 60 and beyond. An agent that was never active scores 0.
func uptimeScore(lastActive *time.Time, now time.Time) float64 {
	if lastActive == nil {
		return 0
	}
	days := now.Sub(*lastActive).Hours() / 24
	if days < 0 {
		days = 0
	}
	switch {
	case days <= 7:
		return 100 - days*(30.0/7)
	case days <= 30:
		return 70 - (days-7)*(40.0/23)
	case days <= 60:
		return 30 - (days-30)*(30.0/30)
	default:
		return 0
	}
}

func securityScore(violations int) float64 {
	return math.Max(0, 100-20*float64(violations))
}

func testPassScore(passed, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Min(100, 100*float64(passed)/float64(total))
}

func rollbackScore(rollbacks, improvements int) float64 {
	if improvements == 0 {
		return 100
	}
	return math.Max(0, 100*(1-float64(rollbacks)/float64(improvements)))
}

// recompute refreshes the five component scores, the weighted aggregate,
// and the derived tiers.
func (p *Profile) recompute(w Weights, now time.Time) {
	p.SuccessRateScore = successRateScore(p.SuccessfulActions, p.TotalActions)
	p.UptimeScore = uptimeScore(p.LastActiveAt, now)
	p.SecurityScore = securityScore(p.SecurityViolations)
	p.TestPassScore = testPassScore(p.TestsPassed, p.TotalTests)
	p.RollbackScore = rollbackScore(p.RollbackCount, p.ImprovementCount)

	score := w.SuccessRate*p.SuccessRateScore +
		w.Uptime*p.UptimeScore +
		w.Security*p.SecurityScore +
		w.TestPass*p.TestPassScore +
		w.Rollback*p.RollbackScore
	p.TrustScore = math.Max(0, math.Min(100, score))

	p.Tier = TierForScore(p.TrustScore)
	p.PointsTier = TierForPoints(p.TrustPoints)
}
