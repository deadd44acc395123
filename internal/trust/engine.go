package trust

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Event is emitted by the engine on tier transitions and freeze state
// changes for the audit/alert collaborators.
type Event struct {
	Type    string `json:"type"` // tier_changed | trust_frozen | trust_unfrozen
	AgentID string `json:"agent_id"`
	Track   string `json:"track,omitempty"` // score | points, for tier_changed
	From    Tier   `json:"from,omitempty"`
	To      Tier   `json:"to,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// BreakerConfig tunes the automatic circuit breaker: Threshold relevant
// failure events inside Window trips a freeze.
type BreakerConfig struct {
	Threshold int           `yaml:"threshold" json:"threshold"`
	Window    time.Duration `yaml:"window" json:"window"`
}

// DefaultBreaker returns the standard breaker tuning.
func DefaultBreaker() BreakerConfig {
	return BreakerConfig{Threshold: 5, Window: 10 * time.Minute}
}

// breakerRelevant are the event types counted toward the circuit breaker.
var breakerRelevant = map[EventType]bool{
	ActionFailure:     true,
	SecurityViolation: true,
	RollbackExecuted:  true,
	TestFailed:        true,
}

// Engine owns all trust profiles. Mutations are serialized by the write
// lock so events for one agent never race; reads return copies of a
// consistent snapshot.
type Engine struct {
	mu       sync.RWMutex
	profiles map[string]*Profile
	failures map[string][]time.Time

	weights Weights
	breaker BreakerConfig
	clock   func() time.Time
	events  func(Event)
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithWeights overrides the default component weights.
func WithWeights(w Weights) EngineOption {
	return func(e *Engine) { e.weights = w }
}

// WithBreaker overrides the default circuit-breaker tuning. A zero
// Threshold disables the breaker.
func WithBreaker(b BreakerConfig) EngineOption {
	return func(e *Engine) { e.breaker = b }
}

// WithEngineClock overrides time for tests.
func WithEngineClock(clock func() time.Time) EngineOption {
	return func(e *Engine) { e.clock = clock }
}

// WithEngineEvents registers the tier-change and freeze event hook.
func WithEngineEvents(fn func(Event)) EngineOption {
	return func(e *Engine) { e.events = fn }
}

// NewEngine creates an empty trust engine with default weights and breaker.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		profiles: make(map[string]*Profile),
		failures: make(map[string][]time.Time),
		weights:  DefaultWeights(),
		breaker:  DefaultBreaker(),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateProfile registers a new agent. Creating an agent twice is an
// error, not an upsert.
func (e *Engine) CreateProfile(agentID string) (Profile, error) {
	now := e.clock().UTC()

	e.mu.Lock()
	if _, ok := e.profiles[agentID]; ok {
		e.mu.Unlock()
		return Profile{}, fmt.Errorf("%w: profile %s", ErrAlreadyExists, agentID)
	}
	p := &Profile{AgentID: agentID, CreatedAt: now}
	p.recompute(e.weights, now)
	e.profiles[agentID] = p
	snapshot := *p
	e.mu.Unlock()

	return snapshot, nil
}

// GetProfile returns a copy of the agent's profile with scores refreshed
// against the current clock, so inactivity decay shows up on read.
func (e *Engine) GetProfile(agentID string) (Profile, error) {
	now := e.clock().UTC()

	e.mu.RLock()
	p, ok := e.profiles[agentID]
	if !ok {
		e.mu.RUnlock()
		return Profile{}, fmt.Errorf("%w: profile %s", ErrNotFound, agentID)
	}
	snapshot := *p
	e.mu.RUnlock()

	snapshot.recompute(e.weights, now)
	return snapshot, nil
}

// Frozen reports the agent's freeze state. Unknown agents read as frozen:
// an absent profile must never pass a trust gate.
func (e *Engine) Frozen(agentID string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.profiles[agentID]
	if !ok {
		return true
	}
	return p.Frozen
}

// RecordEvent applies one behavioral event: bump the matching counter,
// recompute all scores and the tier, and trip the circuit breaker when
// relevant failures cross the configured rate.
func (e *Engine) RecordEvent(agentID string, ev EventType) (Profile, error) {
	now := e.clock().UTC()
	var emits []Event

	e.mu.Lock()
	p, ok := e.profiles[agentID]
	if !ok {
		e.mu.Unlock()
		return Profile{}, fmt.Errorf("%w: profile %s", ErrNotFound, agentID)
	}
	if err := p.applyEvent(ev, now); err != nil {
		e.mu.Unlock()
		return Profile{}, fmt.Errorf("%w: %s", err, ev)
	}

	if breakerRelevant[ev] && e.breaker.Threshold > 0 {
		window := append(e.failures[agentID], now)
		cutoff := now.Add(-e.breaker.Window)
		for len(window) > 0 && window[0].Before(cutoff) {
			window = window[1:]
		}
		e.failures[agentID] = window

		if len(window) >= e.breaker.Threshold && !p.Frozen {
			p.Frozen = true
			p.FrozenReason = "circuit_breaker"
			p.applyPoints(PointsCircuitBreakerTriggered)
			emits = append(emits, Event{Type: "trust_frozen", AgentID: agentID, Reason: "circuit_breaker"})
		}
	}

	prevTier, prevPoints := p.Tier, p.PointsTier
	p.recompute(e.weights, now)
	if p.Tier != prevTier {
		emits = append(emits, Event{Type: "tier_changed", AgentID: agentID, Track: "score", From: prevTier, To: p.Tier})
	}
	if p.PointsTier != prevPoints {
		emits = append(emits, Event{Type: "tier_changed", AgentID: agentID, Track: "points", From: prevPoints, To: p.PointsTier})
	}
	snapshot := *p
	e.mu.Unlock()

	for _, ev := range emits {
		e.emit(ev)
	}
	return snapshot, nil
}

// Freeze sets the agent's freeze state. While frozen, every authorization
// that needs a trust-tier check is denied; existing capabilities are
// untouched.
func (e *Engine) Freeze(agentID, reason string) error {
	e.mu.Lock()
	p, ok := e.profiles[agentID]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: profile %s", ErrNotFound, agentID)
	}
	already := p.Frozen
	p.Frozen = true
	p.FrozenReason = reason
	e.mu.Unlock()

	if !already {
		e.emit(Event{Type: "trust_frozen", AgentID: agentID, Reason: reason})
	}
	return nil
}

// Unfreeze clears the freeze state. It is always explicit; nothing
// auto-unfreezes, including the circuit breaker.
func (e *Engine) Unfreeze(agentID string) error {
	e.mu.Lock()
	p, ok := e.profiles[agentID]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: profile %s", ErrNotFound, agentID)
	}
	wasFrozen := p.Frozen
	p.Frozen = false
	p.FrozenReason = ""
	e.failures[agentID] = nil
	e.mu.Unlock()

	if wasFrozen {
		e.emit(Event{Type: "trust_unfrozen", AgentID: agentID})
	}
	return nil
}

// Award applies a points-ledger event's fixed delta, flooring at zero, and
// re-derives the points tier.
func (e *Engine) Award(agentID string, ev PointsEvent) (Profile, error) {
	var emits []Event

	e.mu.Lock()
	p, ok := e.profiles[agentID]
	if !ok {
		e.mu.Unlock()
		return Profile{}, fmt.Errorf("%w: profile %s", ErrNotFound, agentID)
	}
	prev := p.PointsTier
	if err := p.applyPoints(ev); err != nil {
		e.mu.Unlock()
		return Profile{}, fmt.Errorf("%w: %s", err, ev)
	}
	if p.PointsTier != prev {
		emits = append(emits, Event{Type: "tier_changed", AgentID: agentID, Track: "points", From: prev, To: p.PointsTier})
	}
	snapshot := *p
	e.mu.Unlock()

	for _, ev := range emits {
		e.emit(ev)
	}
	return snapshot, nil
}

// Deduct is Award for deduction events. The table fixes each event's sign;
// the separate verb exists so call sites read as what they do.
func (e *Engine) Deduct(agentID string, ev PointsEvent) (Profile, error) {
	return e.Award(agentID, ev)
}

// List returns copies of every profile, ordered by agent id.
func (e *Engine) List() []Profile {
	now := e.clock().UTC()

	e.mu.RLock()
	out := make([]Profile, 0, len(e.profiles))
	for _, p := range e.profiles {
		out = append(out, *p)
	}
	e.mu.RUnlock()

	for i := range out {
		out[i].recompute(e.weights, now)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out
}

// Snapshot serializes every profile for the CLI state file.
func (e *Engine) Snapshot() ([]byte, error) {
	profiles := e.List()
	return json.MarshalIndent(profiles, "", "  ")
}

// Restore loads profiles produced by Snapshot into an empty engine.
func (e *Engine) Restore(data []byte) error {
	var profiles []Profile
	if err := json.Unmarshal(data, &profiles); err != nil {
		return fmt.Errorf("restore profiles: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range profiles {
		p := profiles[i]
		e.profiles[p.AgentID] = &p
	}
	return nil
}

func (e *Engine) emit(ev Event) {
	if e.events != nil {
		e.events(ev)
	}
}
