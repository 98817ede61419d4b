package storage

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/ahmed-com/tickeralarm"
)

var (
	ErrTickerExists       = errors.New("ticker already exists")
	ErrTickerNotFound     = errors.New("ticker not found")
	ErrCollectionExists   = errors.New("collection already exists")
	ErrCollectionNotFound = errors.New("collection not found")
)

// Store is the durable record store. Mutations are staged in memory and
// committed together by Save; Rollback discards whatever is staged. Fetches
// read committed state only.
type Store interface {
	FetchTickers(ctx context.Context) ([]*tickeralarm.Ticker, error)
	FetchCollections(ctx context.Context) ([]*tickeralarm.Collection, error)

	InsertTicker(t *tickeralarm.Ticker)
	UpdateTicker(t *tickeralarm.Ticker)
	DeleteTicker(id uuid.UUID)

	InsertCollection(c *tickeralarm.Collection)
	UpdateCollection(c *tickeralarm.Collection)
	DeleteCollection(id uuid.UUID)

	// Save commits every staged change atomically where the backend allows
	Save(ctx context.Context) error
	// Rollback discards staged changes
	Rollback()
	// HasChanges reports whether anything is staged
	HasChanges() bool

	Close() error
}

// ChangeKind identifies a staged mutation
type ChangeKind int

const (
	InsertTickerChange ChangeKind = iota
	UpdateTickerChange
	DeleteTickerChange
	InsertCollectionChange
	UpdateCollectionChange
	DeleteCollectionChange
)

// Change is one staged mutation. Ticker and Collection hold copies taken at
// staging time.
type Change struct {
	Kind       ChangeKind
	ID         uuid.UUID
	Ticker     *tickeralarm.Ticker
	Collection *tickeralarm.Collection
}

// ChangeSet stages mutations for a backend. Backends embed it and drain it
// in Save.
type ChangeSet struct {
	mu      sync.Mutex
	changes []Change
}

func (cs *ChangeSet) stage(c Change) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.changes = append(cs.changes, c)
}

func (cs *ChangeSet) InsertTicker(t *tickeralarm.Ticker) {
	cs.stage(Change{Kind: InsertTickerChange, ID: t.ID, Ticker: t.Clone()})
}

func (cs *ChangeSet) UpdateTicker(t *tickeralarm.Ticker) {
	cs.stage(Change{Kind: UpdateTickerChange, ID: t.ID, Ticker: t.Clone()})
}

func (cs *ChangeSet) DeleteTicker(id uuid.UUID) {
	cs.stage(Change{Kind: DeleteTickerChange, ID: id})
}

func (cs *ChangeSet) InsertCollection(c *tickeralarm.Collection) {
	cs.stage(Change{Kind: InsertCollectionChange, ID: c.ID, Collection: cloneCollection(c)})
}

func (cs *ChangeSet) UpdateCollection(c *tickeralarm.Collection) {
	cs.stage(Change{Kind: UpdateCollectionChange, ID: c.ID, Collection: cloneCollection(c)})
}

func (cs *ChangeSet) DeleteCollection(id uuid.UUID) {
	cs.stage(Change{Kind: DeleteCollectionChange, ID: id})
}

func (cs *ChangeSet) Rollback() {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.changes = nil
}

func (cs *ChangeSet) HasChanges() bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return len(cs.changes) > 0
}

// Drain removes and returns the staged changes in staging order
func (cs *ChangeSet) Drain() []Change {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	changes := cs.changes
	cs.changes = nil
	return changes
}

// Restore puts changes back in front of anything staged since they were
// drained, so a failed Save leaves the set as it was
func (cs *ChangeSet) Restore(changes []Change) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.changes = append(append([]Change(nil), changes...), cs.changes...)
}

func cloneCollection(c *tickeralarm.Collection) *tickeralarm.Collection {
	cp := *c
	cp.ChildIDs = append([]uuid.UUID(nil), c.ChildIDs...)
	return &cp
}
