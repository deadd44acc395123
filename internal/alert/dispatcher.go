package alert

import (
	"time"

	"golang.org/x/sync/errgroup"
)

// Dispatcher fans out events to matching webhook configurations without
// blocking the caller. Drain waits for in-flight sends, so a shutdown
// never drops an already-dispatched alert.
type Dispatcher struct {
	configs []Config
	group   errgroup.Group
}

// NewDispatcher creates a Dispatcher from webhook configurations.
// Returns nil if configs is empty (callers should nil-check).
func NewDispatcher(configs []Config) *Dispatcher {
	if len(configs) == 0 {
		return nil
	}
	return &Dispatcher{configs: configs}
}

// Dispatch sends the event to all webhooks whose Events list matches its
// type or decision. Sends run on background goroutines.
func (d *Dispatcher) Dispatch(event Event) {
	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	for _, cfg := range d.configs {
		if !matches(cfg.Events, event) {
			continue
		}
		cfg := cfg
		d.group.Go(func() error {
			return Send(cfg, event)
		})
	}
}

// Drain blocks until every dispatched send has finished, returning the
// first send error if any.
func (d *Dispatcher) Drain() error {
	return d.group.Wait()
}

func matches(events []string, event Event) bool {
	for _, e := range events {
		if e == event.Type {
			return true
		}
		if event.Decision != "" && e == event.Decision {
			return true
		}
	}
	return false
}
