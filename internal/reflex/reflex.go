// Package reflex is the fail-closed boundary around boolean safety checks.
// A check that panics, errors, or is cancelled reads as deny, never as "no
// violation found". Every safety-relevant boolean gate in the kernel runs
// through it; it is not opt-in.
package reflex

import (
	"context"
	"errors"
	"fmt"
)

// Check is a boolean safety gate. True means no violation found.
type Check func(ctx context.Context) (bool, error)

// Outcome is the resolved result of a wrapped check.
type Outcome struct {
	Name    string
	Allowed bool
	// Cause explains a deny: the check's own error, the recovered panic, or
	// the context error. Nil when the check ran and returned false.
	Cause error
}

// ErrPanicked marks a deny caused by a recovered panic inside a check.
var ErrPanicked = errors.New("check panicked")

// Wrap runs one named check fail-closed. Any path other than a clean true
// resolves to deny: panic, returned error, returned false, or a context
// already cancelled before or during the check.
func Wrap(ctx context.Context, name string, check Check) (out Outcome) {
	out = Outcome{Name: name}

	defer func() {
		if r := recover(); r != nil {
			out.Allowed = false
			out.Cause = fmt.Errorf("%w: %s: %v", ErrPanicked, name, r)
		}
	}()

	if err := ctx.Err(); err != nil {
		out.Cause = err
		return out
	}

	ok, err := check(ctx)
	if err != nil {
		out.Cause = err
		return out
	}
	// The check may have outlived its deadline; a timed-out true is still
	// a deny.
	if err := ctx.Err(); err != nil {
		out.Cause = err
		return out
	}

	out.Allowed = ok
	return out
}

// Guard is an ordered set of named checks evaluated as one gate.
type Guard struct {
	names  []string
	checks map[string]Check
}

// NewGuard creates an empty guard.
func NewGuard() *Guard {
	return &Guard{checks: make(map[string]Check)}
}

// Add registers a named check. Re-adding a name replaces the check but
// keeps its original position.
func (g *Guard) Add(name string, check Check) {
	if _, ok := g.checks[name]; !ok {
		g.names = append(g.names, name)
	}
	g.checks[name] = check
}

// Evaluate runs every check in registration order and returns the first
// deny, or an allowed outcome when all pass. An empty guard allows.
func (g *Guard) Evaluate(ctx context.Context) Outcome {
	for _, name := range g.names {
		out := Wrap(ctx, name, g.checks[name])
		if !out.Allowed {
			return out
		}
	}
	return Outcome{Name: "all", Allowed: true}
}
