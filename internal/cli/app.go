package cli

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/arborsec/arbor/internal/alert"
	"github.com/arborsec/arbor/internal/audit"
	"github.com/arborsec/arbor/internal/authz"
	"github.com/arborsec/arbor/internal/capability"
	"github.com/arborsec/arbor/internal/config"
	"github.com/arborsec/arbor/internal/escalation"
	"github.com/arborsec/arbor/internal/identity"
	"github.com/arborsec/arbor/internal/ratelimit"
	"github.com/arborsec/arbor/internal/trust"
)

// app wires the kernel and its collaborators from config plus the state
// files under the state directory. CLI invocations are short-lived, so
// state is restored on open and snapshotted back after every mutation.
type app struct {
	cfg        *config.Config
	hash       string
	caps       *capability.Store
	engine     *trust.Engine
	alerts     *alert.Dispatcher
	principals *identity.Registry
}

func openApp() (*app, error) {
	cfg, hash, err := config.LoadWithHash(configPath)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, hash: hash}
	a.alerts = alert.NewDispatcher(cfg.Alerts)

	var capOpts []capability.StoreOption
	if cfg.PrefixMatch {
		capOpts = append(capOpts, capability.WithPrefixMatch())
	}
	if cfg.SigningRequired {
		signer, err := loadSigner(cfg.StateDir)
		if err != nil {
			return nil, err
		}
		capOpts = append(capOpts, capability.WithSigningRequired(signer))
	}
	capOpts = append(capOpts, capability.WithEvents(func(ev capability.Event) {
		if a.alerts == nil {
			return
		}
		a.alerts.Dispatch(alert.Event{
			Timestamp:   time.Now().UTC().Format(time.RFC3339),
			Type:        ev.Type,
			PrincipalID: ev.Capability.PrincipalID,
			ResourceURI: ev.Capability.ResourceURI,
			Action:      ev.Capability.Action,
		})
	}))
	a.caps = capability.NewStore(capOpts...)

	a.engine = trust.NewEngine(
		trust.WithWeights(cfg.Trust.Weights),
		trust.WithBreaker(cfg.Trust.Breaker),
		trust.WithEngineEvents(func(ev trust.Event) {
			if a.alerts == nil {
				return
			}
			a.alerts.Dispatch(alert.Event{
				Timestamp:   time.Now().UTC().Format(time.RFC3339),
				Type:        ev.Type,
				PrincipalID: ev.AgentID,
				Reason:      ev.Reason,
				Tier:        string(ev.To),
			})
		}),
	)

	a.principals, err = identity.LoadRegistry(a.principalsPath())
	if err != nil {
		return nil, err
	}

	if err := a.restore(); err != nil {
		return nil, err
	}
	return a, nil
}

// kernel builds the full authorization pipeline on the opened state.
func (a *app) kernel() (*authz.Kernel, func(), error) {
	log, err := audit.Open(a.cfg.AuditPath)
	if err != nil {
		return nil, nil, err
	}
	esc, err := escalation.NewStore(a.cfg.EscalationDir)
	if err != nil {
		log.Close()
		return nil, nil, err
	}

	k := authz.NewKernel(a.caps, a.engine, a.cfg,
		authz.WithIdentity(a.principals),
		authz.WithConstraints(authz.CommandReflexes()...),
		authz.WithRateLimiter(ratelimit.NewLimiter(a.cfg.RateLimits)),
		authz.WithEscalator(esc),
		authz.WithAudit(log),
		authz.WithAlerts(a.alerts),
	)
	k.SetConfig(a.cfg, a.hash)

	cleanup := func() { log.Close() }
	return k, cleanup, nil
}

func (a *app) capsPath() string       { return filepath.Join(a.cfg.StateDir, "capabilities.json") }
func (a *app) trustPath() string      { return filepath.Join(a.cfg.StateDir, "trust.json") }
func (a *app) principalsPath() string { return filepath.Join(a.cfg.StateDir, "principals.yaml") }

func (a *app) restore() error {
	if data, err := os.ReadFile(a.capsPath()); err == nil {
		if err := a.caps.Restore(data); err != nil {
			return fmt.Errorf("corrupt capability state: %w", err)
		}
	}
	if data, err := os.ReadFile(a.trustPath()); err == nil {
		if err := a.engine.Restore(data); err != nil {
			return fmt.Errorf("corrupt trust state: %w", err)
		}
	}
	return nil
}

func (a *app) save() error {
	if err := os.MkdirAll(a.cfg.StateDir, 0700); err != nil {
		return err
	}
	capData, err := a.caps.Snapshot()
	if err != nil {
		return err
	}
	if err := writeAtomic(a.capsPath(), capData); err != nil {
		return err
	}
	trustData, err := a.engine.Snapshot()
	if err != nil {
		return err
	}
	return writeAtomic(a.trustPath(), trustData)
}

func (a *app) savePrincipals() error {
	if err := os.MkdirAll(a.cfg.StateDir, 0700); err != nil {
		return err
	}
	return a.principals.Save(a.principalsPath())
}

// drain waits for in-flight webhook sends before the process exits.
func (a *app) drain() {
	if a.alerts != nil {
		if err := a.alerts.Drain(); err != nil {
			fmt.Fprintf(os.Stderr, "alert delivery: %v\n", err)
		}
	}
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// loadSigner reads the signing key from the state directory, generating
// one on first use.
func loadSigner(stateDir string) (*capability.Ed25519Signer, error) {
	path := filepath.Join(stateDir, "signing.key")

	if data, err := os.ReadFile(path); err == nil {
		seed, err := hex.DecodeString(strings.TrimSpace(string(data)))
		if err != nil || len(seed) != ed25519.SeedSize {
			return nil, fmt.Errorf("corrupt signing key at %s", path)
		}
		return capability.NewEd25519Signer(ed25519.NewKeyFromSeed(seed)), nil
	}

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(priv.Seed())), 0600); err != nil {
		return nil, fmt.Errorf("persist signing key: %w", err)
	}
	return capability.NewEd25519Signer(priv), nil
}
