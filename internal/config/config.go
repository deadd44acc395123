// Package config loads the kernel's YAML configuration. A missing file
// yields defaults; an unreadable or malformed file is an error. The loaded
// bytes are hashed so every audited decision can name the exact
// configuration that produced it.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/arborsec/arbor/internal/alert"
	"github.com/arborsec/arbor/internal/ratelimit"
	"github.com/arborsec/arbor/internal/trust"
)

// TrustConfig tunes the trust engine.
type TrustConfig struct {
	Weights trust.Weights       `yaml:"weights"`
	Breaker trust.BreakerConfig `yaml:"breaker"`
}

// SanitizeConfig carries the default sanitizer options. Per-call options
// still override these.
type SanitizeConfig struct {
	AllowedSchemes      []string `yaml:"allowed_schemes"`
	AllowedPorts        []int    `yaml:"allowed_ports"`
	PromptFailThreshold int      `yaml:"prompt_fail_threshold"`
	MaxDepth            int      `yaml:"max_depth"`
	MaxSize             int      `yaml:"max_size"`
	MaxByteSize         int      `yaml:"max_byte_size"`
	MaxLogLength        int      `yaml:"max_log_length"`
}

// Config holds all configurable kernel parameters.
type Config struct {
	// SigningRequired makes every grant carry a signature and every
	// authorization verify it.
	SigningRequired bool `yaml:"signing_required"`
	// PrefixMatch widens capability resource matching to path prefixes.
	PrefixMatch bool `yaml:"prefix_match"`
	// RevealDenyDetail includes the concrete deny reason in responses.
	// Off by default: a caller should not learn whether a resource exists
	// from the shape of its denial.
	RevealDenyDetail bool `yaml:"reveal_deny_detail"`

	Trust    TrustConfig    `yaml:"trust"`
	Sanitize SanitizeConfig `yaml:"sanitize"`

	// MinimumTiers maps resource URIs (or "scheme://domain" prefixes) to
	// the trust tier required to touch them. The "*" entry is the default.
	MinimumTiers map[string]string `yaml:"minimum_tiers"`

	RateLimits map[string]ratelimit.Config `yaml:"rate_limits"`

	Alerts []alert.Config `yaml:"alerts"`

	AuditPath     string `yaml:"audit_path"`
	EscalationDir string `yaml:"escalation_dir"`
	StateDir      string `yaml:"state_dir"`
}

// Default returns the built-in configuration.
func Default() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	base := filepath.Join(home, ".arbor")

	return &Config{
		Trust: TrustConfig{
			Weights: trust.DefaultWeights(),
			Breaker: trust.DefaultBreaker(),
		},
		Sanitize: SanitizeConfig{
			AllowedSchemes:      []string{"http", "https"},
			AllowedPorts:        []int{80, 443, 8080, 8443},
			PromptFailThreshold: 2,
			MaxDepth:            32,
			MaxSize:             10000,
			MaxByteSize:         1 << 20,
			MaxLogLength:        1024,
		},
		MinimumTiers: map[string]string{
			"*": string(trust.Probationary),
		},
		AuditPath:     filepath.Join(base, "decisions.jsonl"),
		EscalationDir: filepath.Join(base, "pending"),
		StateDir:      base,
	}
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "arbor.yaml")
	}
	return filepath.Join(home, ".arbor", "config.yaml")
}

// Load loads configuration from a YAML file. Empty path falls back to the
// default location. Missing file returns defaults. Invalid YAML returns an
// error.
func Load(path string) (*Config, error) {
	cfg, _, err := LoadWithHash(path)
	return cfg, err
}

// LoadWithHash loads configuration and returns the SHA-256 of the raw
// bytes on disk. When no file exists the hash is of empty input, so
// "running on defaults" is itself a stable, recognizable hash.
func LoadWithHash(path string) (*Config, string, error) {
	if path == "" {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			h := sha256.Sum256(nil)
			return Default(), "sha256:" + hex.EncodeToString(h[:]), nil
		}
		return nil, "", fmt.Errorf("failed to read config: %w", err)
	}

	h := sha256.Sum256(data)
	hash := "sha256:" + hex.EncodeToString(h[:])

	// Start with defaults, YAML overwrites only specified fields.
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, "", err
	}

	return cfg, hash, nil
}

func (c *Config) validate() error {
	w := c.Trust.Weights
	sum := w.SuccessRate + w.Uptime + w.Security + w.TestPass + w.Rollback
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("trust weights must sum to 1.0, got %v", sum)
	}
	if c.Trust.Breaker.Threshold < 0 {
		return fmt.Errorf("breaker threshold must not be negative")
	}
	if c.Trust.Breaker.Threshold > 0 && c.Trust.Breaker.Window <= 0 {
		return fmt.Errorf("breaker window must be positive when the breaker is enabled")
	}
	for resource, tier := range c.MinimumTiers {
		switch trust.Tier(tier) {
		case trust.Untrusted, trust.Probationary, trust.Trusted, trust.Veteran, trust.Autonomous:
		default:
			return fmt.Errorf("unknown tier %q for resource %q", tier, resource)
		}
	}
	return nil
}

// MinimumTierFor resolves the required tier for a resource URI: exact
// entry first, then a "scheme://domain" prefix entry, then the "*"
// default, then untrusted.
func (c *Config) MinimumTierFor(resourceURI string) trust.Tier {
	if tier, ok := c.MinimumTiers[resourceURI]; ok {
		return trust.Tier(tier)
	}
	if prefix, ok := domainPrefix(resourceURI); ok {
		if tier, ok := c.MinimumTiers[prefix]; ok {
			return trust.Tier(tier)
		}
	}
	if tier, ok := c.MinimumTiers["*"]; ok {
		return trust.Tier(tier)
	}
	return trust.Untrusted
}

// domainPrefix reduces scheme://domain/action[/path...] to scheme://domain.
func domainPrefix(resourceURI string) (string, bool) {
	scheme, rest, ok := strings.Cut(resourceURI, "://")
	if !ok {
		return "", false
	}
	domain, _, _ := strings.Cut(rest, "/")
	if domain == "" {
		return "", false
	}
	return scheme + "://" + domain, true
}
