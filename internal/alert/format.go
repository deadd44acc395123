package alert

import (
	"encoding/json"
	"fmt"
)

// FormatPayload builds the webhook body for the given format.
func FormatPayload(format string, event Event) ([]byte, error) {
	switch format {
	case "slack":
		return formatSlack(event)
	case "pagerduty":
		return formatPagerDuty(event)
	default:
		return formatGeneric(event)
	}
}

func formatGeneric(event Event) ([]byte, error) {
	return json.Marshal(event)
}

func formatSlack(event Event) ([]byte, error) {
	headline := event.Type
	if event.Decision != "" {
		headline = event.Decision
	}

	payload := map[string]any{
		"blocks": []any{
			map[string]any{
				"type": "header",
				"text": map[string]any{
					"type": "plain_text",
					"text": fmt.Sprintf("arbor: %s", headline),
				},
			},
			map[string]any{
				"type": "section",
				"fields": []any{
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Principal:* %s", event.PrincipalID)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Resource:* %s", event.ResourceURI)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Tier:* %s", event.Tier)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Reason:* %s", event.Reason)},
				},
			},
		},
	}
	return json.Marshal(payload)
}

// Severity classifies an event for paging and delivery policy. A freeze is
// the kill switch firing; a revocation narrows an agent's reach; a denied
// decision is routine enforcement.
func Severity(event Event) string {
	switch event.Type {
	case "trust_frozen":
		return "critical"
	case "capability_revoked":
		return "warning"
	}
	if event.Decision != "" && event.Decision != "authorized" {
		return "error"
	}
	return "info"
}

func formatPagerDuty(event Event) ([]byte, error) {
	severity := Severity(event)

	payload := map[string]any{
		"event_action": "trigger",
		"payload": map[string]any{
			"summary":  fmt.Sprintf("arbor %s: %s", event.Type, event.PrincipalID),
			"severity": severity,
			"source":   "arbor",
			"custom_details": map[string]any{
				"principal": event.PrincipalID,
				"resource":  event.ResourceURI,
				"action":    event.Action,
				"decision":  event.Decision,
				"tier":      event.Tier,
				"reason":    event.Reason,
			},
		},
	}
	return json.Marshal(payload)
}
