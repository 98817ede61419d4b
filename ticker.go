package tickeralarm

import (
	"time"

	"github.com/google/uuid"

	"github.com/ahmed-com/tickeralarm/id"
	"github.com/ahmed-com/tickeralarm/recurrence"
)

// Ticker is the durable record describing one reminder
type Ticker struct {
	ID           uuid.UUID
	Label        string
	Enabled      bool
	Schedule     recurrence.Rule
	Countdown    *Countdown
	Presentation Presentation
	Sound        string
	CreatedAt    time.Time

	// OccurrenceIDs are the identities under which concrete alarms were
	// submitted for a composite schedule. Simple schedules use ID instead
	// and keep this empty.
	OccurrenceIDs []uuid.UUID

	// GeneratedThrough is the end of the window the current OccurrenceIDs
	// were materialized for.
	GeneratedThrough time.Time

	// CollectionID is uuid.Nil for standalone tickers
	CollectionID uuid.UUID
}

// NewTicker creates an enabled ticker with a fresh identity
func NewTicker(label string, schedule recurrence.Rule) *Ticker {
	return &Ticker{
		ID:        id.NewTickerID(),
		Label:     label,
		Enabled:   true,
		Schedule:  schedule,
		CreatedAt: time.Now(),
	}
}

// IsSimple reports whether the schedule maps onto one persistent alarm
func (t *Ticker) IsSimple() bool {
	return t.Schedule != nil && recurrence.IsSimple(t.Schedule)
}

// IsComposite reports whether the schedule needs a rolling set of alarms
func (t *Ticker) IsComposite() bool {
	return t.Schedule != nil && !recurrence.IsSimple(t.Schedule)
}

// NeedsRegeneration reports whether a composite ticker's materialized
// occurrences should be recomputed at now: it was never materialized, less
// than margin of coverage remains, or every submitted alarm is gone while the
// covered window still holds an occurrence.
func (t *Ticker) NeedsRegeneration(now time.Time, margin time.Duration) bool {
	if !t.IsComposite() {
		return false
	}
	if t.GeneratedThrough.IsZero() || t.GeneratedThrough.Sub(now) < margin {
		return true
	}
	if len(t.OccurrenceIDs) == 0 {
		_, pending := recurrence.Next(t.Schedule, now, t.GeneratedThrough.Sub(now))
		return pending
	}
	return false
}

// AlarmIDs returns every alarm identity the ticker may own on the device
func (t *Ticker) AlarmIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(t.OccurrenceIDs)+1)
	ids = append(ids, t.ID)
	return append(ids, t.OccurrenceIDs...)
}

// Owns reports whether alarmID is the ticker's own identity or one of its
// occurrence identities
func (t *Ticker) Owns(alarmID uuid.UUID) bool {
	if alarmID == t.ID {
		return true
	}
	for _, occ := range t.OccurrenceIDs {
		if occ == alarmID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the ticker
func (t *Ticker) Clone() *Ticker {
	c := *t
	if t.Countdown != nil {
		cd := *t.Countdown
		c.Countdown = &cd
	}
	if t.OccurrenceIDs != nil {
		c.OccurrenceIDs = append([]uuid.UUID(nil), t.OccurrenceIDs...)
	}
	return &c
}

// OneTimeView returns a transient copy of the ticker scheduled once at at.
// It is never persisted.
func (t *Ticker) OneTimeView(at time.Time) *Ticker {
	v := t.Clone()
	v.Schedule = recurrence.OneTime{At: at}
	v.OccurrenceIDs = nil
	return v
}
