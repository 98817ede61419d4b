package mongodb

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ahmed-com/tickeralarm"
	"github.com/ahmed-com/tickeralarm/recurrence"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Connect to MongoDB
	client, err := mongo.Connect(ctx, options.Client().ApplyURI("mongodb://localhost:27017"))
	if err != nil {
		t.Skipf("Skipping test: MongoDB not available: %v", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		t.Skipf("Skipping test: Cannot ping MongoDB: %v", err)
	}

	// Use a unique database for this test
	db := client.Database(fmt.Sprintf("tickeralarm_test_%d", time.Now().UnixNano()))
	t.Cleanup(func() {
		db.Drop(context.Background())
		client.Disconnect(context.Background())
	})

	s, err := NewStore(Config{Database: db})
	require.NoError(t, err)
	return s
}

func TestNewStoreRequiresDatabase(t *testing.T) {
	_, err := NewStore(Config{})
	assert.Error(t, err)
}

func TestSaveAndFetch(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	tk := &tickeralarm.Ticker{
		ID:            uuid.New(),
		Label:         "standup",
		Enabled:       true,
		Schedule:      recurrence.Every{N: 2, Unit: recurrence.Hours, Anchor: time.Date(2025, 11, 1, 9, 0, 0, 0, time.UTC)},
		CreatedAt:     time.Date(2025, 11, 1, 9, 0, 0, 0, time.UTC),
		OccurrenceIDs: []uuid.UUID{uuid.New()},
	}
	coll := &tickeralarm.Collection{ID: uuid.New(), Label: "work", Kind: tickeralarm.CollectionGeneric, ChildIDs: []uuid.UUID{tk.ID}}
	tk.CollectionID = coll.ID

	s.InsertTicker(tk)
	s.InsertCollection(coll)
	require.NoError(t, s.Save(ctx))

	tickers, err := s.FetchTickers(ctx)
	require.NoError(t, err)
	require.Len(t, tickers, 1)
	assert.Equal(t, tk.ID, tickers[0].ID)
	assert.Equal(t, tk.OccurrenceIDs, tickers[0].OccurrenceIDs)
	assert.Equal(t, coll.ID, tickers[0].CollectionID)

	collections, err := s.FetchCollections(ctx)
	require.NoError(t, err)
	require.Len(t, collections, 1)
	assert.Equal(t, coll.ChildIDs, collections[0].ChildIDs)

	tk.Enabled = false
	s.UpdateTicker(tk)
	s.DeleteCollection(coll.ID)
	require.NoError(t, s.Save(ctx))

	tickers, err = s.FetchTickers(ctx)
	require.NoError(t, err)
	require.Len(t, tickers, 1)
	assert.False(t, tickers[0].Enabled)

	collections, err = s.FetchCollections(ctx)
	require.NoError(t, err)
	assert.Empty(t, collections)
}

func TestDuplicateInsertKeepsChangesStaged(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	tk := &tickeralarm.Ticker{ID: uuid.New(), Label: "once", Enabled: true}
	s.InsertTicker(tk)
	require.NoError(t, s.Save(ctx))

	s.InsertTicker(tk)
	assert.Error(t, s.Save(ctx))
	assert.True(t, s.HasChanges())
	s.Rollback()
	assert.False(t, s.HasChanges())
}
