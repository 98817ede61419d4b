package badger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahmed-com/tickeralarm"
	"github.com/ahmed-com/tickeralarm/recurrence"
	"github.com/ahmed-com/tickeralarm/storage"
)

func newStore(t *testing.T) *BadgerStorage {
	t.Helper()
	s, err := NewInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleTicker() *tickeralarm.Ticker {
	created := time.Date(2025, 11, 1, 8, 0, 0, 0, time.UTC)
	return &tickeralarm.Ticker{
		ID:      uuid.New(),
		Label:   "gym",
		Enabled: true,
		Schedule: recurrence.WeekdaySet{
			Time: recurrence.At(6, 30),
			Days: []time.Weekday{time.Monday, time.Thursday},
		},
		Countdown:        &tickeralarm.Countdown{PreAlert: 5 * time.Minute, PostAlert: time.Minute},
		Presentation:     tickeralarm.Presentation{TintColor: "#ff8800", Secondary: tickeralarm.SecondaryOpenApp},
		Sound:            "chime",
		CreatedAt:        created,
		OccurrenceIDs:    []uuid.UUID{uuid.New(), uuid.New()},
		GeneratedThrough: created.Add(48 * time.Hour),
	}
}

func TestSaveAndFetchTicker(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	tk := sampleTicker()

	s.InsertTicker(tk)
	assert.True(t, s.HasChanges())
	require.NoError(t, s.Save(ctx))
	assert.False(t, s.HasChanges())

	tickers, err := s.FetchTickers(ctx)
	require.NoError(t, err)
	require.Len(t, tickers, 1)

	got := tickers[0]
	assert.Equal(t, tk.ID, got.ID)
	assert.Equal(t, tk.Schedule, got.Schedule)
	assert.Equal(t, tk.Countdown, got.Countdown)
	assert.Equal(t, tk.Presentation, got.Presentation)
	assert.Equal(t, tk.OccurrenceIDs, got.OccurrenceIDs)
	assert.True(t, tk.GeneratedThrough.Equal(got.GeneratedThrough))
	assert.True(t, tk.CreatedAt.Equal(got.CreatedAt))
}

func TestFetchReadsCommittedStateOnly(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	s.InsertTicker(sampleTicker())
	tickers, err := s.FetchTickers(ctx)
	require.NoError(t, err)
	assert.Empty(t, tickers)

	s.Rollback()
	require.NoError(t, s.Save(ctx))
	tickers, err = s.FetchTickers(ctx)
	require.NoError(t, err)
	assert.Empty(t, tickers)
}

func TestStagedChangesAreSnapshots(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	tk := sampleTicker()

	s.InsertTicker(tk)
	tk.Label = "changed after staging"
	require.NoError(t, s.Save(ctx))

	tickers, err := s.FetchTickers(ctx)
	require.NoError(t, err)
	require.Len(t, tickers, 1)
	assert.Equal(t, "gym", tickers[0].Label)
}

func TestSaveIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	existing := sampleTicker()
	s.InsertTicker(existing)
	require.NoError(t, s.Save(ctx))

	fresh := sampleTicker()
	s.InsertTicker(fresh)
	s.InsertTicker(existing)

	err := s.Save(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, storage.ErrTickerExists))
	assert.True(t, s.HasChanges(), "failed save keeps changes staged")

	tickers, err := s.FetchTickers(ctx)
	require.NoError(t, err)
	assert.Len(t, tickers, 1, "fresh ticker must not be committed")

	s.Rollback()
	assert.False(t, s.HasChanges())
}

func TestUpdateMissingTickerFails(t *testing.T) {
	s := newStore(t)
	s.UpdateTicker(sampleTicker())
	assert.ErrorIs(t, s.Save(context.Background()), storage.ErrTickerNotFound)
}

func TestUpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	tk := sampleTicker()
	s.InsertTicker(tk)
	require.NoError(t, s.Save(ctx))

	tk.Enabled = false
	tk.OccurrenceIDs = nil
	s.UpdateTicker(tk)
	require.NoError(t, s.Save(ctx))

	tickers, err := s.FetchTickers(ctx)
	require.NoError(t, err)
	require.Len(t, tickers, 1)
	assert.False(t, tickers[0].Enabled)
	assert.Empty(t, tickers[0].OccurrenceIDs)

	s.DeleteTicker(tk.ID)
	require.NoError(t, s.Save(ctx))
	tickers, err = s.FetchTickers(ctx)
	require.NoError(t, err)
	assert.Empty(t, tickers)
}

func TestCollections(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	bed, wake := sampleTicker(), sampleTicker()
	coll := &tickeralarm.Collection{
		ID:        uuid.New(),
		Label:     "sleep",
		Kind:      tickeralarm.CollectionSleepSchedule,
		ChildIDs:  []uuid.UUID{bed.ID, wake.ID},
		CreatedAt: time.Date(2025, 11, 1, 8, 0, 0, 0, time.UTC),
	}
	bed.CollectionID, wake.CollectionID = coll.ID, coll.ID

	s.InsertCollection(coll)
	s.InsertTicker(bed)
	s.InsertTicker(wake)
	require.NoError(t, s.Save(ctx))

	collections, err := s.FetchCollections(ctx)
	require.NoError(t, err)
	require.Len(t, collections, 1)
	assert.Equal(t, coll.ChildIDs, collections[0].ChildIDs)
	assert.Equal(t, tickeralarm.CollectionSleepSchedule, collections[0].Kind)

	tickers, err := s.FetchTickers(ctx)
	require.NoError(t, err)
	for _, tk := range tickers {
		assert.Equal(t, coll.ID, tk.CollectionID)
	}

	assert.Len(t, tickers, 2, "ticker keys and collection keys do not mix")

	s.DeleteCollection(coll.ID)
	require.NoError(t, s.Save(ctx))
	collections, err = s.FetchCollections(ctx)
	require.NoError(t, err)
	assert.Empty(t, collections)
}
