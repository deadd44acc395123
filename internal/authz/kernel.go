package authz

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/arborsec/arbor/internal/alert"
	"github.com/arborsec/arbor/internal/audit"
	"github.com/arborsec/arbor/internal/capability"
	"github.com/arborsec/arbor/internal/config"
	"github.com/arborsec/arbor/internal/escalation"
	"github.com/arborsec/arbor/internal/ratelimit"
	"github.com/arborsec/arbor/internal/reflex"
	"github.com/arborsec/arbor/internal/trust"
)

type configState struct {
	cfg  *config.Config
	hash string
}

// Kernel is the authorization pipeline. Stages run in a fixed order:
// capability, identity, freeze, tier, constraints, rate limit, escalation,
// reflex guard. The first deny wins; only a clean pass through every stage
// authorizes.
type Kernel struct {
	caps   *capability.Store
	engine *trust.Engine
	state  atomic.Pointer[configState]

	identity    IdentityVerifier
	constraints []Constraint
	limiter     *ratelimit.Limiter
	escalator   *escalation.Store
	guard       *reflex.Guard

	log    *audit.Log
	alerts *alert.Dispatcher
}

// Option configures a Kernel.
type Option func(*Kernel)

// WithIdentity attaches the signed-request verifier. Requests without a
// token skip verification; requests with one must pass it.
func WithIdentity(v IdentityVerifier) Option {
	return func(k *Kernel) { k.identity = v }
}

// WithConstraints attaches caller-supplied gates, evaluated in order.
func WithConstraints(cs ...Constraint) Option {
	return func(k *Kernel) { k.constraints = append(k.constraints, cs...) }
}

// WithRateLimiter attaches the request throttle.
func WithRateLimiter(l *ratelimit.Limiter) Option {
	return func(k *Kernel) { k.limiter = l }
}

// WithEscalator attaches the human-approval store. Without one, an
// insufficient tier is a terminal deny.
func WithEscalator(s *escalation.Store) Option {
	return func(k *Kernel) { k.escalator = s }
}

// WithGuard attaches the final reflex guard.
func WithGuard(g *reflex.Guard) Option {
	return func(k *Kernel) { k.guard = g }
}

// WithAudit attaches the decision log.
func WithAudit(l *audit.Log) Option {
	return func(k *Kernel) { k.log = l }
}

// WithAlerts attaches the webhook dispatcher.
func WithAlerts(d *alert.Dispatcher) Option {
	return func(k *Kernel) { k.alerts = d }
}

// NewKernel builds a kernel over the capability store and trust engine.
func NewKernel(caps *capability.Store, engine *trust.Engine, cfg *config.Config, opts ...Option) *Kernel {
	k := &Kernel{caps: caps, engine: engine}
	k.state.Store(&configState{cfg: cfg})
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// SetConfig swaps the active configuration; in-flight decisions finish on
// the config they started with.
func (k *Kernel) SetConfig(cfg *config.Config, hash string) {
	k.state.Store(&configState{cfg: cfg, hash: hash})
}

// Authorize answers one request. Every decision, allow or deny, is
// audited; denies are also alerted.
func (k *Kernel) Authorize(ctx context.Context, req Request) Decision {
	state := k.state.Load()
	d := k.decide(ctx, req, state.cfg)
	k.record(req, d, state)
	if !d.Allowed && !state.cfg.RevealDenyDetail {
		d.Reason = ""
	}
	return d
}

func (k *Kernel) decide(ctx context.Context, req Request, cfg *config.Config) Decision {
	if _, err := capability.ParseResource(req.ResourceURI); err != nil {
		return deny(CodeInvalidResource, err.Error())
	}

	cap, err := k.caps.Find(req.PrincipalID, req.ResourceURI, req.Action)
	if err != nil {
		// A miss and a revoked or badly signed capability read the same
		// from outside.
		return deny(CodeUnauthorized, "no live capability matches the request")
	}

	if req.Token != nil {
		if k.identity == nil {
			return deny(CodeIdentityUnverified, "signed request but no identity verifier configured")
		}
		if err := k.identity.Verify(ctx, req.PrincipalID, req.Token); err != nil {
			return deny(CodeIdentityUnverified, err.Error())
		}
	}

	profile, err := k.profileFor(req.PrincipalID)
	if err != nil {
		return deny(CodeUnauthorized, err.Error())
	}
	if profile.Frozen {
		d := deny(CodeTrustFrozen, profile.FrozenReason)
		d.Tier = profile.Tier
		return d
	}

	// The resource gate reads the behavioral tier only. The points ledger
	// is a separate, coarser unlock track; letting it stand in here would
	// exempt a high-points agent from score decay.
	required := cfg.MinimumTierFor(req.ResourceURI)
	tierOK := trust.TierSufficient(profile.Tier, required)
	if !tierOK && k.escalator == nil {
		d := deny(CodeUnauthorized, fmt.Sprintf("tier %s below required %s", profile.Tier, required))
		d.Tier = profile.Tier
		return d
	}

	for _, c := range k.constraints {
		c := c
		out := reflex.Wrap(ctx, c.Name(), func(ctx context.Context) (bool, error) {
			return c.Check(ctx, req)
		})
		if !out.Allowed {
			if out.Cause != nil {
				return deny(CodeReflexDenied, fmt.Sprintf("constraint %s: %v", out.Name, out.Cause))
			}
			return deny(CodeUnauthorized, fmt.Sprintf("constraint %s rejected the request", out.Name))
		}
	}

	if k.limiter != nil {
		if res := k.limiter.Allow(req.PrincipalID, req.Action); res.Exceeded {
			return deny(CodeRateLimited, res.Reason)
		}
	}

	if !tierOK {
		d := k.escalate(req, profile.Tier, required)
		d.Tier = profile.Tier
		if !d.Allowed {
			return d
		}
	}

	if k.guard != nil {
		out := k.guard.Evaluate(ctx)
		if !out.Allowed {
			reason := fmt.Sprintf("reflex check %s denied", out.Name)
			if out.Cause != nil {
				reason = fmt.Sprintf("reflex check %s: %v", out.Name, out.Cause)
			}
			return deny(CodeReflexDenied, reason)
		}
	}

	return Decision{
		Allowed:      true,
		Code:         CodeAuthorized,
		Tier:         profile.Tier,
		CapabilityID: cap.ID,
	}
}

// profileFor fetches the principal's trust profile, creating a fresh one
// on first contact so new principals start at the bottom of the ladder
// instead of erroring out.
func (k *Kernel) profileFor(principal string) (trust.Profile, error) {
	p, err := k.engine.GetProfile(principal)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, trust.ErrNotFound) {
		return trust.Profile{}, err
	}
	p, err = k.engine.CreateProfile(principal)
	if err == nil || errors.Is(err, trust.ErrAlreadyExists) {
		// A concurrent request may have created it first.
		if errors.Is(err, trust.ErrAlreadyExists) {
			return k.engine.GetProfile(principal)
		}
		return p, nil
	}
	return trust.Profile{}, err
}

// escalate resolves an insufficient tier through the human-approval store.
// Approved one-time escalations are consumed; everything else stays a
// deny.
func (k *Kernel) escalate(req Request, actual, required trust.Tier) Decision {
	detail := fmt.Sprintf("tier %s below required %s", actual, required)
	if k.escalator == nil {
		return deny(CodeUnauthorized, detail)
	}

	key := escalation.KeyFor(req.PrincipalID, req.ResourceURI, req.Action)
	status, err := k.escalator.Redeem(key)
	if err != nil {
		key, err = k.escalator.Submit(req.PrincipalID, req.ResourceURI, req.Action, detail)
		if err != nil {
			return deny(CodeUnauthorized, fmt.Sprintf("escalation submit: %v", err))
		}
		d := deny(CodeEscalationPending, detail)
		d.EscalationKey = key
		return d
	}

	switch status {
	case escalation.StatusApproved:
		return Decision{Allowed: true}
	case escalation.StatusPending:
		d := deny(CodeEscalationPending, detail)
		d.EscalationKey = key
		return d
	default:
		// denied, consumed, expired
		return deny(CodeUnauthorized, detail)
	}
}

// deny carries the full reason internally; Authorize strips it from the
// response when the reveal policy says so. The audit log always gets it.
func deny(code Code, reason string) Decision {
	return Decision{Code: code, Reason: reason}
}

func (k *Kernel) record(req Request, d Decision, state *configState) {
	if k.log != nil {
		err := k.log.Record(audit.Entry{
			PrincipalID: req.PrincipalID,
			ResourceURI: req.ResourceURI,
			Action:      req.Action,
			Decision:    string(d.Code),
			Reason:      d.Reason,
			Tier:        string(d.Tier),
			ConfigHash:  state.hash,
		})
		if err != nil {
			// A decision that escaped the log must not pass silently.
			fmt.Fprintf(os.Stderr, "audit write failed: %v\n", err)
			if k.alerts != nil {
				k.alerts.Dispatch(alert.Event{
					Type:        "audit_write_failed",
					PrincipalID: req.PrincipalID,
					ResourceURI: req.ResourceURI,
					Action:      req.Action,
					Decision:    string(d.Code),
					Reason:      err.Error(),
				})
			}
		}
	}
	if k.alerts != nil && !d.Allowed {
		k.alerts.Dispatch(alert.Event{
			Type:        "decision",
			PrincipalID: req.PrincipalID,
			ResourceURI: req.ResourceURI,
			Action:      req.Action,
			Decision:    string(d.Code),
			Reason:      d.Reason,
			Tier:        string(d.Tier),
		})
	}
}
