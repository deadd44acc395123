// Package alert fans out kernel events (deny decisions, tier transitions,
// freeze state changes, grants and revocations) to configured webhooks.
package alert

// Config defines a webhook alert destination.
type Config struct {
	URL     string            `yaml:"url"     json:"url"`
	Format  string            `yaml:"format"  json:"format"` // "generic", "slack", "pagerduty"
	Events  []string          `yaml:"events"  json:"events"` // e.g. ["unauthorized", "trust_frozen", "tier_changed"]
	Headers map[string]string `yaml:"headers" json:"headers"`
}

// Event is the payload sent to webhook endpoints.
type Event struct {
	Timestamp   string `json:"timestamp"`
	Type        string `json:"type"` // tier_changed, trust_frozen, trust_unfrozen, capability_granted, capability_revoked, decision
	PrincipalID string `json:"principal_id"`
	ResourceURI string `json:"resource_uri,omitempty"`
	Action      string `json:"action,omitempty"`
	Decision    string `json:"decision,omitempty"`
	Reason      string `json:"reason,omitempty"`
	Tier        string `json:"tier,omitempty"`
}
