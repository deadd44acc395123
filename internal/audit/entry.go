package audit

// Entry is one line in the hash-chained JSONL decision log.
// All fields are concrete types (no map[string]any) to guarantee
// deterministic json.Marshal field order for reproducible hashing.
type Entry struct {
	Timestamp   string `json:"ts"`
	PrincipalID string `json:"principal_id"`
	ResourceURI string `json:"resource_uri"`
	Action      string `json:"action"`
	Decision    string `json:"decision"`
	Reason      string `json:"reason,omitempty"`
	Tier        string `json:"tier,omitempty"`
	ConfigHash  string `json:"config_hash,omitempty"`
	PrevHash    string `json:"prev_hash"`
}
