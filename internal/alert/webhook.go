package alert

import (
	"bytes"
	"fmt"
	"net/http"
	"time"
)

var httpClient = &http.Client{Timeout: 5 * time.Second}

const retryBackoff = 250 * time.Millisecond

// attemptsFor scales the delivery budget to what the event is worth: a
// freeze page gets hammered through a flaky endpoint, an informational
// tier change does not.
func attemptsFor(event Event) int {
	switch Severity(event) {
	case "critical":
		return 5
	case "warning", "error":
		return 3
	default:
		return 2
	}
}

// Send posts an event to a webhook endpoint. Server-side failures and
// transport errors are retried with linear backoff up to the event's
// attempt budget; a 4xx means the payload itself is rejected and will not
// get better, so it fails immediately.
func Send(cfg Config, event Event) error {
	body, err := FormatPayload(cfg.Format, event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	attempts := attemptsFor(event)
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			time.Sleep(time.Duration(i) * retryBackoff)
		}

		retryable, err := post(cfg, body)
		if err == nil {
			return nil
		}
		if !retryable {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("webhook failed after %d attempts: %w", attempts, lastErr)
}

// post performs one delivery attempt. The bool reports whether the failure
// is worth retrying.
func post(cfg Config, body []byte) (bool, error) {
	req, err := http.NewRequest(http.MethodPost, cfg.URL, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return true, err
	}
	resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return false, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return false, fmt.Errorf("webhook rejected: HTTP %d", resp.StatusCode)
	default:
		return true, fmt.Errorf("webhook server error: HTTP %d", resp.StatusCode)
	}
}
