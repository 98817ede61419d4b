// Package notify tells the presentation layer that alarm state changed and
// derived displays should be refreshed.
package notify

import (
	"context"
	"sync"
	"time"
)

// Refresh reasons
const (
	ReasonReconciled = "reconciled"
	ReasonScheduled  = "scheduled"
	ReasonCancelled  = "cancelled"
	ReasonUpdated    = "updated"
)

// Event describes one refresh request
type Event struct {
	Reason  string    `json:"reason"`
	At      time.Time `json:"at"`
	Tickers int       `json:"tickers"`
	Alarms  int       `json:"alarms"`
}

// Refresher receives refresh requests. Failures are reported to the caller
// but never undo the change that triggered them.
type Refresher interface {
	Refresh(ctx context.Context, event Event) error
}

// NoOp discards every event
type NoOp struct{}

func (NoOp) Refresh(context.Context, Event) error { return nil }

// Recorder keeps every event it receives
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Refresh(_ context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// Events returns the received events in order
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}
