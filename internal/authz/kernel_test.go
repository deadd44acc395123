package authz

import (
	"context"
	"crypto/ed25519"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/arborsec/arbor/internal/alert"
	"github.com/arborsec/arbor/internal/audit"
	"github.com/arborsec/arbor/internal/capability"
	"github.com/arborsec/arbor/internal/config"
	"github.com/arborsec/arbor/internal/escalation"
	"github.com/arborsec/arbor/internal/identity"
	"github.com/arborsec/arbor/internal/ratelimit"
	"github.com/arborsec/arbor/internal/reflex"
	"github.com/arborsec/arbor/internal/trust"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.RevealDenyDetail = true
	cfg.MinimumTiers = map[string]string{"*": string(trust.Untrusted)}
	return cfg
}

func testKernel(t *testing.T, opts ...Option) (*Kernel, *capability.Store, *trust.Engine) {
	t.Helper()
	caps := capability.NewStore()
	engine := trust.NewEngine()
	k := NewKernel(caps, engine, testConfig(), opts...)
	return k, caps, engine
}

func readRequest() Request {
	return Request{
		PrincipalID: "agent-a",
		ResourceURI: "arbor://fs/read/docs",
		Action:      "read",
	}
}

func TestAuthorizeGrantThenRevoke(t *testing.T) {
	k, caps, _ := testKernel(t)

	cap, err := caps.Grant("agent-a", "arbor://fs/read/docs", capability.GrantOptions{})
	if err != nil {
		t.Fatal(err)
	}

	d := k.Authorize(context.Background(), readRequest())
	if !d.Allowed || d.Code != CodeAuthorized {
		t.Fatalf("expected authorized, got %+v", d)
	}
	if d.CapabilityID != cap.ID {
		t.Errorf("decision names capability %q, want %q", d.CapabilityID, cap.ID)
	}

	if err := caps.Revoke(cap.ID); err != nil {
		t.Fatal(err)
	}
	d = k.Authorize(context.Background(), readRequest())
	if d.Allowed || d.Code != CodeUnauthorized {
		t.Fatalf("expected unauthorized after revoke, got %+v", d)
	}
}

func TestAuthorizeFrozenPrincipal(t *testing.T) {
	k, caps, engine := testKernel(t)

	caps.Grant("agent-a", "arbor://fs/read/docs", capability.GrantOptions{})
	engine.CreateProfile("agent-a")
	engine.Freeze("agent-a", "anomaly_detected")

	d := k.Authorize(context.Background(), readRequest())
	if d.Allowed || d.Code != CodeTrustFrozen {
		t.Fatalf("expected trust_frozen, got %+v", d)
	}

	// The capability itself is untouched by the freeze.
	if !caps.Exists("agent-a", "arbor://fs/read/docs", "read") {
		t.Error("freeze must not touch the capability store")
	}

	engine.Unfreeze("agent-a")
	if d := k.Authorize(context.Background(), readRequest()); !d.Allowed {
		t.Fatalf("expected authorized after unfreeze, got %+v", d)
	}
}

func TestAuthorizeNoCapability(t *testing.T) {
	k, _, _ := testKernel(t)
	d := k.Authorize(context.Background(), readRequest())
	if d.Allowed || d.Code != CodeUnauthorized {
		t.Fatalf("expected unauthorized, got %+v", d)
	}
}

func TestAuthorizeInvalidResource(t *testing.T) {
	k, _, _ := testKernel(t)
	d := k.Authorize(context.Background(), Request{
		PrincipalID: "agent-a",
		ResourceURI: "not a uri",
		Action:      "read",
	})
	if d.Allowed || d.Code != CodeInvalidResource {
		t.Fatalf("expected invalid_resource, got %+v", d)
	}
}

func TestDenyDetailHiddenByDefault(t *testing.T) {
	caps := capability.NewStore()
	engine := trust.NewEngine()
	cfg := config.Default() // reveal off
	cfg.MinimumTiers = map[string]string{"*": string(trust.Untrusted)}
	k := NewKernel(caps, engine, cfg)

	d := k.Authorize(context.Background(), readRequest())
	if d.Allowed {
		t.Fatal("expected deny")
	}
	if d.Reason != "" {
		t.Errorf("deny reason leaked: %q", d.Reason)
	}
}

type rejectVerifier struct{ err error }

func (v rejectVerifier) Verify(ctx context.Context, principal string, token []byte) error {
	return v.err
}

type acceptVerifier struct{}

func (acceptVerifier) Verify(ctx context.Context, principal string, token []byte) error {
	return nil
}

func TestIdentityVerification(t *testing.T) {
	boom := errors.New("principal not found")
	k, caps, _ := testKernel(t, WithIdentity(rejectVerifier{err: boom}))
	caps.Grant("agent-a", "arbor://fs/read/docs", capability.GrantOptions{})

	req := readRequest()
	req.Token = []byte("signed")
	d := k.Authorize(context.Background(), req)
	if d.Allowed || d.Code != CodeIdentityUnverified {
		t.Fatalf("expected identity_unverified, got %+v", d)
	}

	// Unsigned requests skip the verifier.
	if d := k.Authorize(context.Background(), readRequest()); !d.Allowed {
		t.Fatalf("unsigned request denied: %+v", d)
	}
}

func TestIdentityRegistryRoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}
	reg := identity.NewRegistry()
	if err := reg.Register("agent-a", pub); err != nil {
		t.Fatal(err)
	}

	k, caps, _ := testKernel(t, WithIdentity(reg))
	caps.Grant("agent-a", "arbor://fs/read/docs", capability.GrantOptions{})

	token, err := identity.NewToken(priv, "agent-a")
	if err != nil {
		t.Fatal(err)
	}
	req := readRequest()
	req.Token = token
	if d := k.Authorize(context.Background(), req); !d.Allowed {
		t.Fatalf("valid token denied: %+v", d)
	}

	// A token minted by an unregistered key must not pass.
	_, otherPriv, _ := ed25519.GenerateKey(nil)
	req.Token, _ = identity.NewToken(otherPriv, "agent-a")
	d := k.Authorize(context.Background(), req)
	if d.Allowed || d.Code != CodeIdentityUnverified {
		t.Fatalf("expected identity_unverified, got %+v", d)
	}
}

func TestSignedRequestWithoutVerifierDenied(t *testing.T) {
	k, caps, _ := testKernel(t)
	caps.Grant("agent-a", "arbor://fs/read/docs", capability.GrantOptions{})

	req := readRequest()
	req.Token = []byte("signed")
	d := k.Authorize(context.Background(), req)
	if d.Allowed || d.Code != CodeIdentityUnverified {
		t.Fatalf("a token with nobody to check it must deny, got %+v", d)
	}
}

type namedConstraint struct {
	name string
	fn   func(ctx context.Context, req Request) (bool, error)
}

func (c namedConstraint) Name() string { return c.name }
func (c namedConstraint) Check(ctx context.Context, req Request) (bool, error) {
	return c.fn(ctx, req)
}

func TestConstraintRejects(t *testing.T) {
	deny := namedConstraint{name: "office_hours", fn: func(ctx context.Context, req Request) (bool, error) {
		return false, nil
	}}
	k, caps, _ := testKernel(t, WithConstraints(deny))
	caps.Grant("agent-a", "arbor://fs/read/docs", capability.GrantOptions{})

	d := k.Authorize(context.Background(), readRequest())
	if d.Allowed || d.Code != CodeUnauthorized {
		t.Fatalf("expected unauthorized from constraint, got %+v", d)
	}
}

func TestConstraintPanicDeniesClosed(t *testing.T) {
	crash := namedConstraint{name: "crashy", fn: func(ctx context.Context, req Request) (bool, error) {
		var m map[string]bool
		m["x"] = true // nil map write
		return true, nil
	}}
	k, caps, _ := testKernel(t, WithConstraints(crash))
	caps.Grant("agent-a", "arbor://fs/read/docs", capability.GrantOptions{})

	d := k.Authorize(context.Background(), readRequest())
	if d.Allowed || d.Code != CodeReflexDenied {
		t.Fatalf("a panicking constraint must deny, got %+v", d)
	}
}

func TestRateLimited(t *testing.T) {
	limiter := ratelimit.NewLimiter(map[string]ratelimit.Config{
		"agent-a": {"read": {MaxRequests: 2, Window: time.Hour}},
	})
	k, caps, _ := testKernel(t, WithRateLimiter(limiter))
	caps.Grant("agent-a", "arbor://fs/read/docs", capability.GrantOptions{})

	for i := 0; i < 2; i++ {
		if d := k.Authorize(context.Background(), readRequest()); !d.Allowed {
			t.Fatalf("request %d denied: %+v", i, d)
		}
	}
	d := k.Authorize(context.Background(), readRequest())
	if d.Allowed || d.Code != CodeRateLimited {
		t.Fatalf("expected rate_limited, got %+v", d)
	}
}

func TestTierGateEscalates(t *testing.T) {
	dir := t.TempDir()
	esc, err := escalation.NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}

	caps := capability.NewStore()
	engine := trust.NewEngine()
	cfg := testConfig()
	cfg.MinimumTiers = map[string]string{"*": string(trust.Autonomous)}
	k := NewKernel(caps, engine, cfg, WithEscalator(esc))

	caps.Grant("agent-a", "arbor://fs/read/docs", capability.GrantOptions{})

	// First attempt parks the request.
	d := k.Authorize(context.Background(), readRequest())
	if d.Allowed || d.Code != CodeEscalationPending {
		t.Fatalf("expected escalation_pending, got %+v", d)
	}
	if d.EscalationKey == "" {
		t.Fatal("no escalation key returned")
	}

	// Still pending on retry.
	if d := k.Authorize(context.Background(), readRequest()); d.Code != CodeEscalationPending {
		t.Fatalf("retry while pending = %+v", d)
	}

	// One-time approval lets exactly one request through.
	if err := esc.Approve(d.EscalationKey, 0); err != nil {
		t.Fatal(err)
	}
	if d := k.Authorize(context.Background(), readRequest()); !d.Allowed {
		t.Fatalf("approved escalation still denied: %+v", d)
	}
	if d := k.Authorize(context.Background(), readRequest()); d.Allowed {
		t.Fatalf("one-time approval honored twice: %+v", d)
	}
}

// The points ledger is its own unlock track; a fat ledger must not exempt
// an agent whose behavioral score is still probationary from a resource's
// minimum tier.
func TestPointsTierDoesNotUnlockResources(t *testing.T) {
	caps := capability.NewStore()
	engine := trust.NewEngine()
	cfg := testConfig()
	cfg.MinimumTiers = map[string]string{"*": string(trust.Veteran)}
	k := NewKernel(caps, engine, cfg)

	caps.Grant("agent-a", "arbor://fs/read/docs", capability.GrantOptions{})
	if _, err := engine.CreateProfile("agent-a"); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 105; i++ {
		if _, err := engine.Award("agent-a", trust.PointsHighImpactFeature); err != nil {
			t.Fatal(err)
		}
	}

	p, err := engine.GetProfile("agent-a")
	if err != nil {
		t.Fatal(err)
	}
	if p.PointsTier != trust.Autonomous {
		t.Fatalf("setup: points tier %s, want autonomous", p.PointsTier)
	}
	if p.Tier == trust.Veteran || p.Tier == trust.Autonomous {
		t.Fatalf("setup: score tier %s already clears the gate", p.Tier)
	}

	d := k.Authorize(context.Background(), readRequest())
	if d.Allowed || d.Code != CodeUnauthorized {
		t.Fatalf("points alone unlocked a veteran resource: %+v", d)
	}
}

func TestTierGateWithoutEscalatorDenies(t *testing.T) {
	caps := capability.NewStore()
	engine := trust.NewEngine()
	cfg := testConfig()
	cfg.MinimumTiers = map[string]string{"*": string(trust.Autonomous)}
	k := NewKernel(caps, engine, cfg)

	caps.Grant("agent-a", "arbor://fs/read/docs", capability.GrantOptions{})
	d := k.Authorize(context.Background(), readRequest())
	if d.Allowed || d.Code != CodeUnauthorized {
		t.Fatalf("expected unauthorized, got %+v", d)
	}
}

func TestGuardDenies(t *testing.T) {
	guard := reflex.NewGuard()
	guard.Add("destructive_command", func(ctx context.Context) (bool, error) {
		return false, nil
	})
	k, caps, _ := testKernel(t, WithGuard(guard))
	caps.Grant("agent-a", "arbor://fs/read/docs", capability.GrantOptions{})

	d := k.Authorize(context.Background(), readRequest())
	if d.Allowed || d.Code != CodeReflexDenied {
		t.Fatalf("expected reflex_denied, got %+v", d)
	}
}

func TestCancelledContextDenies(t *testing.T) {
	guard := reflex.NewGuard()
	guard.Add("noop", func(ctx context.Context) (bool, error) { return true, nil })
	k, caps, _ := testKernel(t, WithGuard(guard))
	caps.Grant("agent-a", "arbor://fs/read/docs", capability.GrantOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := k.Authorize(ctx, readRequest())
	if d.Allowed {
		t.Fatalf("cancelled context must deny, got %+v", d)
	}
}

func TestConfigHotSwap(t *testing.T) {
	k, caps, _ := testKernel(t)
	caps.Grant("agent-a", "arbor://fs/read/docs", capability.GrantOptions{})

	if d := k.Authorize(context.Background(), readRequest()); !d.Allowed {
		t.Fatalf("baseline authorize failed: %+v", d)
	}

	strict := testConfig()
	strict.MinimumTiers = map[string]string{"*": string(trust.Autonomous)}
	k.SetConfig(strict, "sha256:new")

	if d := k.Authorize(context.Background(), readRequest()); d.Allowed {
		t.Fatal("new config not picked up")
	}
}

func TestFirstContactCreatesProfile(t *testing.T) {
	k, caps, engine := testKernel(t)
	caps.Grant("agent-a", "arbor://fs/read/docs", capability.GrantOptions{})

	if d := k.Authorize(context.Background(), readRequest()); !d.Allowed {
		t.Fatalf("first contact denied: %+v", d)
	}
	if _, err := engine.GetProfile("agent-a"); err != nil {
		t.Errorf("profile not created on first contact: %v", err)
	}
}

func TestAuditWriteFailureAlerts(t *testing.T) {
	var alerted atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		alerted.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	log, err := audit.Open(filepath.Join(t.TempDir(), "audit.log"))
	if err != nil {
		t.Fatal(err)
	}
	// Closing the log up front makes every Record fail.
	log.Close()

	alerts := alert.NewDispatcher([]alert.Config{
		{URL: srv.URL, Format: "generic", Events: []string{"audit_write_failed"}},
	})
	k, caps, _ := testKernel(t, WithAudit(log), WithAlerts(alerts))
	caps.Grant("agent-a", "arbor://fs/read/docs", capability.GrantOptions{})

	if d := k.Authorize(context.Background(), readRequest()); !d.Allowed {
		t.Fatalf("decision itself should still resolve: %+v", d)
	}
	if err := alerts.Drain(); err != nil {
		t.Fatal(err)
	}
	if alerted.Load() != 1 {
		t.Errorf("expected 1 audit-failure alert, got %d", alerted.Load())
	}
}
