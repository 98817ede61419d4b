package regen

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahmed-com/tickeralarm"
	"github.com/ahmed-com/tickeralarm/device"
	"github.com/ahmed-com/tickeralarm/device/sim"
	"github.com/ahmed-com/tickeralarm/metrics"
	"github.com/ahmed-com/tickeralarm/recurrence"
	"github.com/ahmed-com/tickeralarm/storage"
	"github.com/ahmed-com/tickeralarm/storage/badger"
	"github.com/ahmed-com/tickeralarm/translate"
)

// Monday
var now = time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC)

// failingStore fails every Save with err
type failingStore struct {
	storage.Store
	err error
}

func (f *failingStore) Save(ctx context.Context) error { return f.err }

type fixture struct {
	dev     *sim.Simulator
	store   storage.Store
	svc     *Service
	metrics *metrics.InMemoryMetrics
}

func newFixture(t *testing.T, wrap func(storage.Store) storage.Store) *fixture {
	t.Helper()
	db, err := badger.NewInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	var store storage.Store = db
	if wrap != nil {
		store = wrap(db)
	}

	clock := tickeralarm.FixedClock(now)
	dev := sim.New(clock)
	tr := translate.New(translate.KnownSounds("chime"))
	tr.Clock = clock

	svc := NewService(dev, store, tr, DefaultConfig())
	svc.SetClock(clock)
	m := metrics.NewInMemoryMetrics()
	svc.SetMetrics(m)

	return &fixture{dev: dev, store: store, svc: svc, metrics: m}
}

func (f *fixture) insert(t *testing.T, tk *tickeralarm.Ticker) {
	t.Helper()
	f.store.InsertTicker(tk)
	require.NoError(t, f.store.Save(context.Background()))
}

func (f *fixture) liveIDs(t *testing.T) map[uuid.UUID]bool {
	t.Helper()
	alarms, err := f.dev.Alarms(context.Background())
	require.NoError(t, err)
	live := make(map[uuid.UUID]bool, len(alarms))
	for _, a := range alarms {
		live[a.ID] = true
	}
	return live
}

func (f *fixture) stored(t *testing.T, tickerID uuid.UUID) *tickeralarm.Ticker {
	t.Helper()
	tickers, err := f.store.FetchTickers(context.Background())
	require.NoError(t, err)
	for _, tk := range tickers {
		if tk.ID == tickerID {
			return tk
		}
	}
	t.Fatalf("ticker %s not stored", tickerID)
	return nil
}

func sixHourly() *tickeralarm.Ticker {
	return &tickeralarm.Ticker{
		ID:        uuid.New(),
		Label:     "meds",
		Enabled:   true,
		Schedule:  recurrence.HourlyEvery{N: 6, Anchor: now},
		Sound:     "chime",
		CreatedAt: now,
	}
}

func TestRegenerateMaterializesWindow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	tk := sixHourly()
	f.insert(t, tk)

	require.NoError(t, f.svc.Regenerate(ctx, tk, true))

	want := recurrence.Expand(tk.Schedule, now, 48*time.Hour, 64)
	require.Len(t, want, 7)
	assert.Len(t, tk.OccurrenceIDs, len(want))
	assert.Equal(t, now.Add(48*time.Hour), tk.GeneratedThrough)

	live := f.liveIDs(t)
	for _, occ := range tk.OccurrenceIDs {
		assert.True(t, live[occ], "occurrence %s should be live", occ)
		assert.NotEqual(t, tk.ID, occ)
	}
	assert.False(t, live[tk.ID], "composite ticker never schedules under its own id")

	stored := f.stored(t, tk.ID)
	assert.Equal(t, tk.OccurrenceIDs, stored.OccurrenceIDs)
	assert.Equal(t, int64(7), f.metrics.GetOccurrencesScheduled())
	assert.Equal(t, int64(1), f.metrics.GetRegenerations("success"))
}

func TestRegenerateCappedWindowReportsRealCoverage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	tk := sixHourly()
	tk.Label = "water"
	tk.Schedule = recurrence.Every{N: 15, Unit: recurrence.Minutes, Anchor: now}
	f.insert(t, tk)

	require.NoError(t, f.svc.Regenerate(ctx, tk, true))

	// 64 quarter hours from 00:15 end at 16:00, well short of the 48h lookahead
	require.Len(t, tk.OccurrenceIDs, DefaultConfig().MaxOccurrences)
	assert.Equal(t, now.Add(16*time.Hour), tk.GeneratedThrough)
	assert.Equal(t, tk.GeneratedThrough, f.stored(t, tk.ID).GeneratedThrough)

	margin := DefaultConfig().RefreshMargin
	assert.True(t, f.svc.NeedsRegeneration(tk), "coverage is already below the refresh margin")
	assert.True(t, tk.NeedsRegeneration(now.Add(17*time.Hour), margin), "nothing is scheduled after 16:00")
}

func TestCoveredThrough(t *testing.T) {
	end := now.Add(48 * time.Hour)
	times := []time.Time{now.Add(time.Hour), now.Add(2 * time.Hour)}

	assert.Equal(t, end, coveredThrough(times, end, 0))
	assert.Equal(t, end, coveredThrough(times, end, 3))
	assert.Equal(t, now.Add(2*time.Hour), coveredThrough(times, end, 2))
	assert.Equal(t, end, coveredThrough(nil, end, 2))
}

func TestEachOccurrenceFiresAtItsOwnTime(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	tk := sixHourly()
	f.insert(t, tk)
	require.NoError(t, f.svc.Regenerate(ctx, tk, true))

	want := recurrence.Expand(tk.Schedule, now, 48*time.Hour, 64)
	for i, occ := range tk.OccurrenceIDs {
		cfg, ok := f.dev.Configuration(occ)
		require.True(t, ok)
		require.NotNil(t, cfg.Schedule.Fixed)
		assert.Equal(t, want[i], *cfg.Schedule.Fixed)
		assert.Equal(t, occ, cfg.StopIntent.AlarmID)
	}
}

func TestRegenerateReplacesPreviousSet(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	tk := sixHourly()
	f.insert(t, tk)

	require.NoError(t, f.svc.Regenerate(ctx, tk, true))
	first := append([]uuid.UUID(nil), tk.OccurrenceIDs...)

	require.NoError(t, f.svc.Regenerate(ctx, tk, true))
	live := f.liveIDs(t)
	for _, occ := range first {
		assert.False(t, live[occ], "old occurrence %s should be cancelled", occ)
	}
	assert.Len(t, live, len(tk.OccurrenceIDs))
	assert.Equal(t, int64(len(first)), f.metrics.GetAlarmsCancelled(metrics.ReasonRegenerated))
}

func TestRegenerateRollsBackOnSubmissionFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	tk := sixHourly()
	f.insert(t, tk)

	boom := errors.New("device busy")
	f.dev.FailScheduleAfter(3, boom)

	err := f.svc.Regenerate(ctx, tk, true)
	require.Error(t, err)
	assert.ErrorIs(t, err, tickeralarm.ErrSchedulingFailed)
	assert.ErrorIs(t, err, boom)

	assert.Empty(t, f.liveIDs(t), "no alarm from the failed pass may survive")
	assert.Empty(t, tk.OccurrenceIDs)
	assert.Empty(t, f.stored(t, tk.ID).OccurrenceIDs)
	assert.Equal(t, int64(3), f.metrics.GetAlarmsCancelled(metrics.ReasonRollback))
	assert.Equal(t, int64(1), f.metrics.GetRegenerations("failure"))
}

func TestRegenerateRollsBackOnSaveFailure(t *testing.T) {
	ctx := context.Background()
	saveErr := errors.New("disk full")
	f := newFixture(t, func(s storage.Store) storage.Store { return &failingStore{Store: s, err: saveErr} })
	tk := sixHourly()

	err := f.svc.Regenerate(ctx, tk, true)
	require.Error(t, err)
	assert.ErrorIs(t, err, tickeralarm.ErrStoreSaveFailed)
	assert.ErrorIs(t, err, saveErr)

	assert.Empty(t, f.liveIDs(t))
	assert.Empty(t, tk.OccurrenceIDs)
	assert.False(t, f.store.HasChanges(), "staged update is discarded")
}

func TestRegenerateSkipsWhenCovered(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	tk := sixHourly()
	tk.OccurrenceIDs = []uuid.UUID{uuid.New()}
	tk.GeneratedThrough = now.Add(30 * time.Hour)
	f.insert(t, tk)

	require.NoError(t, f.svc.Regenerate(ctx, tk, false))
	assert.Zero(t, f.dev.Count("schedule"))

	tk.GeneratedThrough = now.Add(6 * time.Hour)
	require.NoError(t, f.svc.Regenerate(ctx, tk, false))
	assert.NotZero(t, f.dev.Count("schedule"))
}

func TestRegenerateSimpleUsesTickerID(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	tk := &tickeralarm.Ticker{
		ID:       uuid.New(),
		Enabled:  true,
		Schedule: recurrence.Daily{Time: recurrence.At(7, 0)},
	}
	f.insert(t, tk)

	// Simple tickers are never flagged
	require.NoError(t, f.svc.Regenerate(ctx, tk, false))
	assert.Zero(t, f.dev.Count("schedule"))

	require.NoError(t, f.svc.Regenerate(ctx, tk, true))
	live := f.liveIDs(t)
	assert.Len(t, live, 1)
	assert.True(t, live[tk.ID])
	assert.Empty(t, tk.OccurrenceIDs)

	// Rescheduling replaces the alarm under the same identity
	require.NoError(t, f.svc.Regenerate(ctx, tk, true))
	assert.Len(t, f.liveIDs(t), 1)
}

func TestRegenerateDisabledCancels(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	tk := sixHourly()
	f.insert(t, tk)
	require.NoError(t, f.svc.Regenerate(ctx, tk, true))

	tk.Enabled = false
	require.NoError(t, f.svc.Regenerate(ctx, tk, true))

	assert.Empty(t, f.liveIDs(t))
	assert.Empty(t, tk.OccurrenceIDs)
	stored := f.stored(t, tk.ID)
	assert.Empty(t, stored.OccurrenceIDs)
	assert.True(t, stored.GeneratedThrough.IsZero())
}

func TestRegenerateWithoutSchedule(t *testing.T) {
	f := newFixture(t, nil)
	tk := &tickeralarm.Ticker{ID: uuid.New(), Enabled: true}

	err := f.svc.Regenerate(context.Background(), tk, true)
	assert.ErrorIs(t, err, tickeralarm.ErrInvalidConfiguration)
}

func TestRegenerateUnauthorized(t *testing.T) {
	f := newFixture(t, nil)
	f.dev.SetAuthorization(device.AuthorizationDenied, false)
	tk := sixHourly()
	f.insert(t, tk)

	err := f.svc.Regenerate(context.Background(), tk, true)
	assert.ErrorIs(t, err, tickeralarm.ErrNotAuthorized)
	assert.ErrorIs(t, err, tickeralarm.ErrSchedulingFailed)
}

func TestRegenerateEmptyWindowStillRecordsCoverage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	tk := &tickeralarm.Ticker{
		ID:       uuid.New(),
		Enabled:  true,
		Schedule: recurrence.Yearly{Month: time.March, Day: 1, Time: recurrence.At(9, 0)},
	}
	f.insert(t, tk)

	require.NoError(t, f.svc.Regenerate(ctx, tk, true))
	assert.Empty(t, tk.OccurrenceIDs)
	assert.Equal(t, now.Add(48*time.Hour), tk.GeneratedThrough)
	assert.False(t, f.svc.NeedsRegeneration(tk))
}
