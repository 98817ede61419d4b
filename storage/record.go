package storage

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ahmed-com/tickeralarm"
	"github.com/ahmed-com/tickeralarm/recurrence"
)

// TickerRecord represents a ticker in storage
type TickerRecord struct {
	ID               string     `json:"id" bson:"_id"`
	Label            string     `json:"label" bson:"label"`
	Enabled          bool       `json:"enabled" bson:"enabled"`
	ScheduleType     string     `json:"schedule_type,omitempty" bson:"schedule_type,omitempty"`
	ScheduleConfig   []byte     `json:"schedule_config,omitempty" bson:"schedule_config,omitempty"` // serialized recurrence rule
	PreAlert         *int64     `json:"pre_alert_ns,omitempty" bson:"pre_alert_ns,omitempty"`
	PostAlert        *int64     `json:"post_alert_ns,omitempty" bson:"post_alert_ns,omitempty"`
	TintColor        string     `json:"tint_color,omitempty" bson:"tint_color,omitempty"`
	Icon             string     `json:"icon,omitempty" bson:"icon,omitempty"`
	Secondary        string     `json:"secondary,omitempty" bson:"secondary,omitempty"`
	Sound            string     `json:"sound,omitempty" bson:"sound,omitempty"`
	OccurrenceIDs    []string   `json:"occurrence_ids,omitempty" bson:"occurrence_ids,omitempty"`
	GeneratedThrough *time.Time `json:"generated_through,omitempty" bson:"generated_through,omitempty"`
	CollectionID     string     `json:"collection_id,omitempty" bson:"collection_id,omitempty"`
	CreatedAt        time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at" bson:"updated_at"`
}

// CollectionRecord represents a ticker collection in storage
type CollectionRecord struct {
	ID        string    `json:"id" bson:"_id"`
	Label     string    `json:"label" bson:"label"`
	Kind      string    `json:"kind" bson:"kind"`
	ChildIDs  []string  `json:"child_ids" bson:"child_ids"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// NewTickerRecord converts a ticker into its stored form
func NewTickerRecord(t *tickeralarm.Ticker) (*TickerRecord, error) {
	rec := &TickerRecord{
		ID:        t.ID.String(),
		Label:     t.Label,
		Enabled:   t.Enabled,
		TintColor: t.Presentation.TintColor,
		Icon:      t.Presentation.Icon,
		Secondary: string(t.Presentation.Secondary),
		Sound:     t.Sound,
		CreatedAt: t.CreatedAt,
		UpdatedAt: time.Now(),
	}

	if t.Schedule != nil {
		data, err := recurrence.Marshal(t.Schedule)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal schedule of ticker %s: %w", t.ID, err)
		}
		rec.ScheduleType = string(t.Schedule.Kind())
		rec.ScheduleConfig = data
	}
	if t.Countdown != nil {
		pre, post := int64(t.Countdown.PreAlert), int64(t.Countdown.PostAlert)
		rec.PreAlert, rec.PostAlert = &pre, &post
	}
	for _, occ := range t.OccurrenceIDs {
		rec.OccurrenceIDs = append(rec.OccurrenceIDs, occ.String())
	}
	if !t.GeneratedThrough.IsZero() {
		through := t.GeneratedThrough
		rec.GeneratedThrough = &through
	}
	if t.CollectionID != uuid.Nil {
		rec.CollectionID = t.CollectionID.String()
	}
	return rec, nil
}

// Ticker converts the record back into a ticker
func (r *TickerRecord) Ticker() (*tickeralarm.Ticker, error) {
	tickerID, err := uuid.Parse(r.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid ticker id %q: %w", r.ID, err)
	}

	t := &tickeralarm.Ticker{
		ID:      tickerID,
		Label:   r.Label,
		Enabled: r.Enabled,
		Presentation: tickeralarm.Presentation{
			TintColor: r.TintColor,
			Icon:      r.Icon,
			Secondary: tickeralarm.SecondaryAction(r.Secondary),
		},
		Sound:     r.Sound,
		CreatedAt: r.CreatedAt,
	}

	if len(r.ScheduleConfig) > 0 {
		if t.Schedule, err = recurrence.Unmarshal(r.ScheduleConfig); err != nil {
			return nil, fmt.Errorf("failed to unmarshal schedule of ticker %s: %w", r.ID, err)
		}
	}
	if r.PreAlert != nil || r.PostAlert != nil {
		t.Countdown = &tickeralarm.Countdown{}
		if r.PreAlert != nil {
			t.Countdown.PreAlert = time.Duration(*r.PreAlert)
		}
		if r.PostAlert != nil {
			t.Countdown.PostAlert = time.Duration(*r.PostAlert)
		}
	}
	for _, s := range r.OccurrenceIDs {
		occ, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("invalid occurrence id %q on ticker %s: %w", s, r.ID, err)
		}
		t.OccurrenceIDs = append(t.OccurrenceIDs, occ)
	}
	if r.GeneratedThrough != nil {
		t.GeneratedThrough = *r.GeneratedThrough
	}
	if r.CollectionID != "" {
		if t.CollectionID, err = uuid.Parse(r.CollectionID); err != nil {
			return nil, fmt.Errorf("invalid collection id %q on ticker %s: %w", r.CollectionID, r.ID, err)
		}
	}
	return t, nil
}

// NewCollectionRecord converts a collection into its stored form
func NewCollectionRecord(c *tickeralarm.Collection) *CollectionRecord {
	rec := &CollectionRecord{
		ID:        c.ID.String(),
		Label:     c.Label,
		Kind:      string(c.Kind),
		ChildIDs:  make([]string, 0, len(c.ChildIDs)),
		CreatedAt: c.CreatedAt,
		UpdatedAt: time.Now(),
	}
	for _, child := range c.ChildIDs {
		rec.ChildIDs = append(rec.ChildIDs, child.String())
	}
	return rec
}

// Collection converts the record back into a collection
func (r *CollectionRecord) Collection() (*tickeralarm.Collection, error) {
	collID, err := uuid.Parse(r.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid collection id %q: %w", r.ID, err)
	}
	c := &tickeralarm.Collection{
		ID:        collID,
		Label:     r.Label,
		Kind:      tickeralarm.CollectionKind(r.Kind),
		CreatedAt: r.CreatedAt,
	}
	for _, s := range r.ChildIDs {
		child, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("invalid child id %q in collection %s: %w", s, r.ID, err)
		}
		c.ChildIDs = append(c.ChildIDs, child)
	}
	return c, nil
}
