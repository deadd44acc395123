// Package ratelimit throttles authorization requests per principal and
// action with token buckets. Limits are looked up principal-first, then the
// "*" wildcard entry; a principal with neither entry is unlimited.
package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limit is the configured rate for one action class. Zero values mean no
// limit.
type Limit struct {
	MaxRequests int           `yaml:"max_requests" json:"max_requests"`
	Window      time.Duration `yaml:"window" json:"window"`
}

func (l Limit) enabled() bool {
	return l.MaxRequests > 0 && l.Window > 0
}

// Config maps action names to limits for one principal. The "*" action
// applies to actions without their own entry.
type Config map[string]Limit

// HasLimits reports whether any action carries an enabled limit.
func (c Config) HasLimits() bool {
	for _, l := range c {
		if l.enabled() {
			return true
		}
	}
	return false
}

// Result is the outcome of a rate-limit check.
type Result struct {
	Exceeded bool
	Action   string
	Limit    int
	Window   time.Duration
	Reason   string
}

// Limiter holds one token bucket per (principal, action) pair seen so far.
// Buckets refill continuously at MaxRequests per Window with a burst of
// MaxRequests, which bounds any window to at most 2x the configured count
// and never lets a sustained overrun through.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	limits  map[string]Config
}

// NewLimiter builds a limiter from the per-principal limit table.
func NewLimiter(limits map[string]Config) *Limiter {
	return &Limiter{
		buckets: make(map[string]*rate.Limiter),
		limits:  limits,
	}
}

// lookup resolves the effective limit: principal's own config first, then
// the "*" principal; inside a config, the action's own entry, then the "*"
// action.
func (l *Limiter) lookup(principal, action string) (Limit, bool) {
	if len(l.limits) == 0 {
		return Limit{}, false
	}
	cfg, ok := l.limits[principal]
	if !ok {
		cfg, ok = l.limits["*"]
	}
	if !ok || !cfg.HasLimits() {
		return Limit{}, false
	}
	lim, ok := cfg[action]
	if !ok {
		lim, ok = cfg["*"]
	}
	if !ok || !lim.enabled() {
		return Limit{}, false
	}
	return lim, true
}

// Allow consumes one token for the request, or reports the limit as
// exceeded. Principals and actions without a configured limit always pass.
func (l *Limiter) Allow(principal, action string) Result {
	lim, ok := l.lookup(principal, action)
	if !ok {
		return Result{}
	}

	key := principal + "\x00" + action

	l.mu.Lock()
	bucket, ok := l.buckets[key]
	if !ok {
		per := rate.Every(lim.Window / time.Duration(lim.MaxRequests))
		bucket = rate.NewLimiter(per, lim.MaxRequests)
		l.buckets[key] = bucket
	}
	l.mu.Unlock()

	if bucket.Allow() {
		return Result{}
	}
	return Result{
		Exceeded: true,
		Action:   action,
		Limit:    lim.MaxRequests,
		Window:   lim.Window,
		Reason:   fmt.Sprintf("rate limit exceeded: %d requests per %s", lim.MaxRequests, lim.Window),
	}
}
