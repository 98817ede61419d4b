package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/ahmed-com/tickeralarm"
	"github.com/ahmed-com/tickeralarm/storage"
)

const (
	tickerPrefix     = "ticker/"
	collectionPrefix = "collection/"
)

// BadgerStorage implements the Store interface using BadgerDB
type BadgerStorage struct {
	storage.ChangeSet
	db *badger.DB
}

// NewBadgerStorage creates a new BadgerDB storage instance
func NewBadgerStorage(path string) (*BadgerStorage, error) {
	return open(badger.DefaultOptions(path))
}

// NewInMemory creates a BadgerDB storage instance that lives only in memory
func NewInMemory() (*BadgerStorage, error) {
	return open(badger.DefaultOptions("").WithInMemory(true))
}

func open(opts badger.Options) (*BadgerStorage, error) {
	opts.Logger = nil // Disable default logging

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	return &BadgerStorage{db: db}, nil
}

// Hierarchical key schema implementation
func tickerKey(id uuid.UUID) []byte {
	return []byte(tickerPrefix + id.String())
}

func collectionKey(id uuid.UUID) []byte {
	return []byte(collectionPrefix + id.String())
}

func (s *BadgerStorage) FetchTickers(ctx context.Context) ([]*tickeralarm.Ticker, error) {
	var tickers []*tickeralarm.Ticker

	err := s.db.View(func(txn *badger.Txn) error {
		return iterate(txn, tickerPrefix, func(val []byte) error {
			var rec storage.TickerRecord
			if err := json.Unmarshal(val, &rec); err != nil {
				return fmt.Errorf("failed to unmarshal ticker: %w", err)
			}
			t, err := rec.Ticker()
			if err != nil {
				return err
			}
			tickers = append(tickers, t)
			return nil
		})
	})

	return tickers, err
}

func (s *BadgerStorage) FetchCollections(ctx context.Context) ([]*tickeralarm.Collection, error) {
	var collections []*tickeralarm.Collection

	err := s.db.View(func(txn *badger.Txn) error {
		return iterate(txn, collectionPrefix, func(val []byte) error {
			var rec storage.CollectionRecord
			if err := json.Unmarshal(val, &rec); err != nil {
				return fmt.Errorf("failed to unmarshal collection: %w", err)
			}
			c, err := rec.Collection()
			if err != nil {
				return err
			}
			collections = append(collections, c)
			return nil
		})
	})

	return collections, err
}

func iterate(txn *badger.Txn, prefix string, fn func(val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		if err := it.Item().Value(fn); err != nil {
			return err
		}
	}
	return nil
}

// Save applies every staged change in a single read-write transaction. On
// failure nothing is written and the changes stay staged.
func (s *BadgerStorage) Save(ctx context.Context) error {
	changes := s.Drain()
	if len(changes) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		s.Restore(changes)
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		for _, c := range changes {
			if err := apply(txn, c); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.Restore(changes)
		return fmt.Errorf("failed to save changes: %w", err)
	}
	return nil
}

func apply(txn *badger.Txn, c storage.Change) error {
	switch c.Kind {
	case storage.InsertTickerChange, storage.UpdateTickerChange:
		rec, err := storage.NewTickerRecord(c.Ticker)
		if err != nil {
			return err
		}
		return put(txn, tickerKey(c.ID), rec, c.Kind == storage.InsertTickerChange, storage.ErrTickerExists, storage.ErrTickerNotFound, c.ID)
	case storage.DeleteTickerChange:
		return txn.Delete(tickerKey(c.ID))
	case storage.InsertCollectionChange, storage.UpdateCollectionChange:
		rec := storage.NewCollectionRecord(c.Collection)
		return put(txn, collectionKey(c.ID), rec, c.Kind == storage.InsertCollectionChange, storage.ErrCollectionExists, storage.ErrCollectionNotFound, c.ID)
	case storage.DeleteCollectionChange:
		return txn.Delete(collectionKey(c.ID))
	}
	return fmt.Errorf("unknown change kind %d", c.Kind)
}

// put writes v under key; an insert requires the key to be absent and an
// update requires it to be present
func put(txn *badger.Txn, key []byte, v any, insert bool, errExists, errMissing error, id uuid.UUID) error {
	_, err := txn.Get(key)
	switch {
	case err == nil && insert:
		return fmt.Errorf("%w: %s", errExists, id)
	case errors.Is(err, badger.ErrKeyNotFound) && !insert:
		return fmt.Errorf("%w: %s", errMissing, id)
	case err != nil && !errors.Is(err, badger.ErrKeyNotFound):
		return err
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	return txn.Set(key, data)
}

// Close closes the database connection
func (s *BadgerStorage) Close() error {
	return s.db.Close()
}

var _ storage.Store = (*BadgerStorage)(nil)
