package device

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduleNextFixed(t *testing.T) {
	now := time.Date(2025, 11, 1, 12, 0, 0, 0, time.UTC)

	next, ok := FixedAt(now.Add(time.Hour)).Next(now)
	require.True(t, ok)
	assert.Equal(t, now.Add(time.Hour), next)

	_, ok = FixedAt(now.Add(-time.Second)).Next(now)
	assert.False(t, ok)
}

func TestScheduleNextRelative(t *testing.T) {
	// Saturday
	now := time.Date(2025, 11, 1, 12, 0, 0, 0, time.UTC)

	next, ok := RelativeAt(7, 0).Next(now)
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 11, 2, 7, 0, 0, 0, time.UTC), next)

	next, ok = RelativeAt(18, 30).Next(now)
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 11, 1, 18, 30, 0, 0, time.UTC), next)

	weekly := Schedule{Relative: &Relative{Hour: 9, Weekdays: []time.Weekday{time.Wednesday}}}
	next, ok = weekly.Next(now)
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 11, 5, 9, 0, 0, 0, time.UTC), next)

	_, ok = Schedule{}.Next(now)
	assert.False(t, ok)
}

func TestAlarmFiringTime(t *testing.T) {
	now := time.Date(2025, 11, 1, 12, 0, 0, 0, time.UTC)
	s := FixedAt(now.Add(time.Minute))

	at, ok := Alarm{ID: uuid.New(), Schedule: &s}.FiringTime(now)
	require.True(t, ok)
	assert.Equal(t, now.Add(time.Minute), at)

	_, ok = Alarm{ID: uuid.New()}.FiringTime(now)
	assert.False(t, ok)
}

type cancelFunc func(ctx context.Context, id uuid.UUID) error

type cancelOnly struct {
	Scheduler
	cancel cancelFunc
}

func (c cancelOnly) Cancel(ctx context.Context, id uuid.UUID) error { return c.cancel(ctx, id) }

func TestCancelIgnoringMissing(t *testing.T) {
	ctx := context.Background()

	missing := cancelOnly{cancel: func(context.Context, uuid.UUID) error { return ErrAlarmNotFound }}
	assert.NoError(t, CancelIgnoringMissing(ctx, missing, uuid.New()))

	boom := errors.New("boom")
	failing := cancelOnly{cancel: func(context.Context, uuid.UUID) error { return boom }}
	assert.ErrorIs(t, CancelIgnoringMissing(ctx, failing, uuid.New()), boom)
}
