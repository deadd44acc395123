package trust

// Tier is a named trust band. Both trust tracks derive one: the behavioral
// score through fixed score bands, the points ledger through its own,
// coarser thresholds. Comparison is by rank so the two systems compare
// uniformly.
type Tier string

const (
	Untrusted    Tier = "untrusted"
	Probationary Tier = "probationary"
	Trusted      Tier = "trusted"
	Veteran      Tier = "veteran"
	Autonomous   Tier = "autonomous"
)

var tierRank = map[Tier]int{
	Untrusted:    0,
	Probationary: 1,
	Trusted:      2,
	Veteran:      3,
	Autonomous:   4,
}

// TierForScore maps a behavioral trust score onto its band.
func TierForScore(score float64) Tier {
	switch {
	case score >= 90:
		return Autonomous
	case score >= 75:
		return Veteran
	case score >= 50:
		return Trusted
	case score >= 20:
		return Probationary
	default:
		return Untrusted
	}
}

// TierForPoints maps accumulated trust points onto the points-tier bands.
func TierForPoints(points int) Tier {
	switch {
	case points >= 2000:
		return Autonomous
	case points >= 500:
		return Veteran
	case points >= 100:
		return Trusted
	case points >= 25:
		return Probationary
	default:
		return Untrusted
	}
}

// TierSufficient reports whether actual meets or exceeds required by band
// rank. Unknown tier names rank below untrusted.
func TierSufficient(actual, required Tier) bool {
	ar, ok := tierRank[actual]
	if !ok {
		ar = -1
	}
	rr, ok := tierRank[required]
	if !ok {
		rr = -1
	}
	return ar >= rr
}
