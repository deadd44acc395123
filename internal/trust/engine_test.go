package trust

import (
	"errors"
	"testing"
	"time"
)

func testEngine(t *testing.T, opts ...EngineOption) *Engine {
	t.Helper()
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	opts = append([]EngineOption{WithEngineClock(func() time.Time { return now })}, opts...)
	return NewEngine(opts...)
}

func TestCreateProfileDuplicate(t *testing.T) {
	e := testEngine(t)
	if _, err := e.CreateProfile("agent-a"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.CreateProfile("agent-a"); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("duplicate create: %v", err)
	}
}

func TestRecordEventUnknownAgent(t *testing.T) {
	e := testEngine(t)
	if _, err := e.RecordEvent("ghost", ActionSuccess); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestRecordEventUnknownType(t *testing.T) {
	e := testEngine(t)
	e.CreateProfile("agent-a")
	if _, err := e.RecordEvent("agent-a", EventType("made_up")); !errors.Is(err, ErrUnknownEvent) {
		t.Fatalf("expected unknown_event, got %v", err)
	}
}

func TestRecordEventUpdatesCounters(t *testing.T) {
	e := testEngine(t)
	e.CreateProfile("agent-a")

	e.RecordEvent("agent-a", ActionSuccess)
	e.RecordEvent("agent-a", ActionSuccess)
	e.RecordEvent("agent-a", ActionFailure)
	e.RecordEvent("agent-a", TestPassed)
	p, err := e.RecordEvent("agent-a", SecurityViolation)
	if err != nil {
		t.Fatal(err)
	}

	if p.TotalActions != 3 || p.SuccessfulActions != 2 {
		t.Errorf("actions = %d/%d", p.SuccessfulActions, p.TotalActions)
	}
	if p.TotalTests != 1 || p.TestsPassed != 1 {
		t.Errorf("tests = %d/%d", p.TestsPassed, p.TotalTests)
	}
	if p.SecurityViolations != 1 {
		t.Errorf("violations = %d", p.SecurityViolations)
	}
	if p.SecurityScore != 80 {
		t.Errorf("security score = %v, want 80", p.SecurityScore)
	}
	if p.LastActiveAt == nil {
		t.Error("recording an event must mark the agent active")
	}
}

func TestAwardAccumulatesPoints(t *testing.T) {
	e := testEngine(t)
	e.CreateProfile("agent-a")

	var p Profile
	var err error
	for i := 0; i < 5; i++ {
		p, err = e.Award("agent-a", PointsProposalApproved)
		if err != nil {
			t.Fatal(err)
		}
	}
	if p.TrustPoints != 25 {
		t.Errorf("points = %d, want 25", p.TrustPoints)
	}
	if p.PointsTier != Probationary {
		t.Errorf("points tier = %s, want probationary", p.PointsTier)
	}
}

func TestPointsFloorAtZero(t *testing.T) {
	e := testEngine(t)
	e.CreateProfile("agent-a")

	e.Award("agent-a", PointsBugFixPassed)
	// A -20 deduction against 3 points floors at zero, it does not go negative.
	p, err := e.Deduct("agent-a", PointsSecurityViolation)
	if err != nil {
		t.Fatal(err)
	}
	if p.TrustPoints != 0 {
		t.Errorf("points = %d, want floor at 0", p.TrustPoints)
	}
}

func TestAwardUnknownEvent(t *testing.T) {
	e := testEngine(t)
	e.CreateProfile("agent-a")
	if _, err := e.Award("agent-a", PointsEvent("made_up")); !errors.Is(err, ErrUnknownEvent) {
		t.Fatalf("expected unknown_event, got %v", err)
	}
}

func TestFreezeUnfreeze(t *testing.T) {
	var events []Event
	e := testEngine(t, WithEngineEvents(func(ev Event) { events = append(events, ev) }))
	e.CreateProfile("agent-a")

	if e.Frozen("agent-a") {
		t.Fatal("new profile must start unfrozen")
	}
	if err := e.Freeze("agent-a", "anomaly_detected"); err != nil {
		t.Fatal(err)
	}
	if !e.Frozen("agent-a") {
		t.Error("freeze did not stick")
	}

	p, _ := e.GetProfile("agent-a")
	if p.FrozenReason != "anomaly_detected" {
		t.Errorf("reason = %q", p.FrozenReason)
	}

	// Freezing twice emits once.
	e.Freeze("agent-a", "anomaly_detected")

	if err := e.Unfreeze("agent-a"); err != nil {
		t.Fatal(err)
	}
	if e.Frozen("agent-a") {
		t.Error("unfreeze did not stick")
	}

	var types []string
	for _, ev := range events {
		types = append(types, ev.Type)
	}
	if len(types) != 2 || types[0] != "trust_frozen" || types[1] != "trust_unfrozen" {
		t.Errorf("events = %v", types)
	}
}

func TestUnknownAgentReadsFrozen(t *testing.T) {
	e := testEngine(t)
	if !e.Frozen("ghost") {
		t.Error("absent profile must never pass a trust gate")
	}
}

func TestCircuitBreakerTrips(t *testing.T) {
	var events []Event
	e := testEngine(t,
		WithBreaker(BreakerConfig{Threshold: 3, Window: time.Minute}),
		WithEngineEvents(func(ev Event) { events = append(events, ev) }),
	)
	e.CreateProfile("agent-a")
	e.Award("agent-a", PointsHighImpactFeature) // +20, so the deduction is visible

	e.RecordEvent("agent-a", ActionFailure)
	e.RecordEvent("agent-a", TestFailed)
	if e.Frozen("agent-a") {
		t.Fatal("breaker tripped below threshold")
	}
	p, err := e.RecordEvent("agent-a", SecurityViolation)
	if err != nil {
		t.Fatal(err)
	}

	if !p.Frozen {
		t.Fatal("breaker did not trip at threshold")
	}
	if p.FrozenReason != "circuit_breaker" {
		t.Errorf("reason = %q", p.FrozenReason)
	}
	if p.TrustPoints != 5 {
		t.Errorf("points = %d, want 20-15=5 after breaker deduction", p.TrustPoints)
	}

	frozen := false
	for _, ev := range events {
		if ev.Type == "trust_frozen" && ev.Reason == "circuit_breaker" {
			frozen = true
		}
	}
	if !frozen {
		t.Error("no trust_frozen event emitted")
	}
}

func TestBreakerWindowSlides(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	e := NewEngine(
		WithEngineClock(func() time.Time { return now }),
		WithBreaker(BreakerConfig{Threshold: 3, Window: time.Minute}),
	)
	e.CreateProfile("agent-a")

	e.RecordEvent("agent-a", ActionFailure)
	e.RecordEvent("agent-a", ActionFailure)
	now = now.Add(2 * time.Minute) // first two fall out of the window
	e.RecordEvent("agent-a", ActionFailure)

	if e.Frozen("agent-a") {
		t.Error("breaker counted failures outside the window")
	}
}

func TestBreakerDisabled(t *testing.T) {
	e := testEngine(t, WithBreaker(BreakerConfig{}))
	e.CreateProfile("agent-a")
	for i := 0; i < 20; i++ {
		e.RecordEvent("agent-a", ActionFailure)
	}
	if e.Frozen("agent-a") {
		t.Error("zero threshold must disable the breaker")
	}
}

func TestTierChangeEmitted(t *testing.T) {
	var events []Event
	e := testEngine(t, WithEngineEvents(func(ev Event) { events = append(events, ev) }))
	e.CreateProfile("agent-a")

	// A fresh profile sits at 35 (probationary): security and rollback are
	// perfect, everything else zero. One clean action lifts it to 80.
	e.RecordEvent("agent-a", ActionSuccess)

	found := false
	for _, ev := range events {
		if ev.Type == "tier_changed" && ev.Track == "score" && ev.From == Probationary && ev.To == Veteran {
			found = true
		}
	}
	if !found {
		t.Errorf("no score tier_changed event, got %v", events)
	}
}

func TestGetProfileDecaysOnRead(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	e := NewEngine(WithEngineClock(func() time.Time { return now }))
	e.CreateProfile("agent-a")
	e.RecordEvent("agent-a", ActionSuccess)

	before, _ := e.GetProfile("agent-a")
	now = now.Add(14 * 24 * time.Hour)
	after, _ := e.GetProfile("agent-a")

	if after.UptimeScore >= before.UptimeScore {
		t.Errorf("uptime did not decay: %v -> %v", before.UptimeScore, after.UptimeScore)
	}
	if after.TrustScore >= before.TrustScore {
		t.Errorf("trust score did not decay: %v -> %v", before.TrustScore, after.TrustScore)
	}
}

func TestSnapshotRestore(t *testing.T) {
	e := testEngine(t)
	e.CreateProfile("agent-a")
	e.RecordEvent("agent-a", ActionSuccess)
	e.Award("agent-a", PointsInstallationSuccessful)
	e.Freeze("agent-a", "maintenance")

	data, err := e.Snapshot()
	if err != nil {
		t.Fatal(err)
	}

	e2 := testEngine(t)
	if err := e2.Restore(data); err != nil {
		t.Fatal(err)
	}
	p, err := e2.GetProfile("agent-a")
	if err != nil {
		t.Fatal(err)
	}
	if p.TrustPoints != 10 || !p.Frozen || p.TotalActions != 1 {
		t.Errorf("restored profile = %+v", p)
	}
}
