package tickeralarm

import (
	"time"

	"github.com/google/uuid"
)

// Countdown configures the pre-alert and post-alert phases of a ticker
type Countdown struct {
	PreAlert  time.Duration `json:"pre_alert"`
	PostAlert time.Duration `json:"post_alert"`
}

// SecondaryAction is the optional second button on the alert
type SecondaryAction string

const (
	SecondaryNone    SecondaryAction = ""
	SecondaryOpenApp SecondaryAction = "open_app"
)

// Presentation holds display metadata carried into the alarm configuration
type Presentation struct {
	TintColor string          `json:"tint_color,omitempty"`
	Icon      string          `json:"icon,omitempty"`
	Secondary SecondaryAction `json:"secondary,omitempty"`
}

// Clock returns the current time
type Clock func() time.Time

// SystemClock reads the wall clock
func SystemClock() time.Time {
	return time.Now()
}

// FixedClock returns a clock stuck at t
func FixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

// CollectionKind tags what a collection groups
type CollectionKind string

const (
	CollectionGeneric       CollectionKind = "generic"
	CollectionSleepSchedule CollectionKind = "sleep_schedule"
)

// Collection groups tickers that share a lifecycle, e.g. the bedtime and
// wake tickers of a sleep schedule. The collection owns its children:
// deleting it deletes every child.
type Collection struct {
	ID        uuid.UUID
	Label     string
	Kind      CollectionKind
	ChildIDs  []uuid.UUID
	CreatedAt time.Time
}

// Enabled reports whether any child is enabled
func (c *Collection) Enabled(children []*Ticker) bool {
	for _, child := range children {
		if child.CollectionID == c.ID && child.Enabled {
			return true
		}
	}
	return false
}

// Children picks the collection's tickers out of all, in ChildIDs order
func (c *Collection) Children(all []*Ticker) []*Ticker {
	byID := make(map[uuid.UUID]*Ticker, len(all))
	for _, t := range all {
		byID[t.ID] = t
	}
	children := make([]*Ticker, 0, len(c.ChildIDs))
	for _, childID := range c.ChildIDs {
		if t, ok := byID[childID]; ok {
			children = append(children, t)
		}
	}
	return children
}

// RemoveChild drops childID and reports whether it was present
func (c *Collection) RemoveChild(childID uuid.UUID) bool {
	for i, existing := range c.ChildIDs {
		if existing == childID {
			c.ChildIDs = append(c.ChildIDs[:i:i], c.ChildIDs[i+1:]...)
			return true
		}
	}
	return false
}
