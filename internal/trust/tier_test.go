package trust

import "testing"

func TestTierForScore(t *testing.T) {
	tests := []struct {
		score float64
		want  Tier
	}{
		{0, Untrusted},
		{19.9, Untrusted},
		{20, Probationary},
		{49.9, Probationary},
		{50, Trusted},
		{74.9, Trusted},
		{75, Veteran},
		{89.9, Veteran},
		{90, Autonomous},
		{100, Autonomous},
	}
	for _, tt := range tests {
		if got := TierForScore(tt.score); got != tt.want {
			t.Errorf("TierForScore(%v) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestTierForPoints(t *testing.T) {
	tests := []struct {
		points int
		want   Tier
	}{
		{0, Untrusted},
		{24, Untrusted},
		{25, Probationary},
		{99, Probationary},
		{100, Trusted},
		{499, Trusted},
		{500, Veteran},
		{1999, Veteran},
		{2000, Autonomous},
	}
	for _, tt := range tests {
		if got := TierForPoints(tt.points); got != tt.want {
			t.Errorf("TierForPoints(%d) = %s, want %s", tt.points, got, tt.want)
		}
	}
}

func TestTierSufficient(t *testing.T) {
	if !TierSufficient(Veteran, Trusted) {
		t.Error("veteran must satisfy trusted")
	}
	if !TierSufficient(Trusted, Trusted) {
		t.Error("a tier must satisfy itself")
	}
	if TierSufficient(Probationary, Trusted) {
		t.Error("probationary must not satisfy trusted")
	}
	if TierSufficient(Tier("bogus"), Untrusted) {
		t.Error("unknown tier must rank below untrusted")
	}
}
