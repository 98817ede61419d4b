package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ahmed-com/tickeralarm"
	"github.com/ahmed-com/tickeralarm/storage"
)

// Config holds the configuration for the MongoDB store.
type Config struct {
	// Database holds both collections. Required.
	Database *mongo.Database

	// Collection names (optional, have defaults)
	TickerCollection     string // default: "tickers"
	CollectionCollection string // default: "ticker_collections"
}

// Store implements storage.Store for MongoDB.
//
// Save flushes staged changes with one ordered BulkWrite per collection.
// Tickers are written before collections, so a failure on the second write
// leaves the ticker side committed.
type Store struct {
	storage.ChangeSet
	db          *mongo.Database
	tickers     *mongo.Collection
	collections *mongo.Collection
}

// NewStore creates a new MongoDB store with the given configuration.
func NewStore(config Config) (*Store, error) {
	if config.Database == nil {
		return nil, fmt.Errorf("database is required")
	}

	// Set defaults
	if config.TickerCollection == "" {
		config.TickerCollection = "tickers"
	}
	if config.CollectionCollection == "" {
		config.CollectionCollection = "ticker_collections"
	}

	return &Store{
		db:          config.Database,
		tickers:     config.Database.Collection(config.TickerCollection),
		collections: config.Database.Collection(config.CollectionCollection),
	}, nil
}

// Connect dials uri and returns a store on database name
func Connect(ctx context.Context, uri, name string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}
	return NewStore(Config{Database: client.Database(name)})
}

func (s *Store) FetchTickers(ctx context.Context) ([]*tickeralarm.Ticker, error) {
	cursor, err := s.tickers.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("find tickers failed: %w", err)
	}
	var records []storage.TickerRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("decode tickers failed: %w", err)
	}

	tickers := make([]*tickeralarm.Ticker, 0, len(records))
	for i := range records {
		t, err := records[i].Ticker()
		if err != nil {
			return nil, err
		}
		tickers = append(tickers, t)
	}
	return tickers, nil
}

func (s *Store) FetchCollections(ctx context.Context) ([]*tickeralarm.Collection, error) {
	cursor, err := s.collections.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("find collections failed: %w", err)
	}
	var records []storage.CollectionRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("decode collections failed: %w", err)
	}

	collections := make([]*tickeralarm.Collection, 0, len(records))
	for i := range records {
		c, err := records[i].Collection()
		if err != nil {
			return nil, err
		}
		collections = append(collections, c)
	}
	return collections, nil
}

func (s *Store) Save(ctx context.Context) error {
	changes := s.Drain()
	if len(changes) == 0 {
		return nil
	}

	tickerOps, collectionOps, err := writeModels(changes)
	if err != nil {
		s.Restore(changes)
		return err
	}

	ordered := options.BulkWrite().SetOrdered(true)
	if len(tickerOps) > 0 {
		if _, err := s.tickers.BulkWrite(ctx, tickerOps, ordered); err != nil {
			s.Restore(changes)
			return fmt.Errorf("bulk write tickers failed: %w", err)
		}
	}
	if len(collectionOps) > 0 {
		if _, err := s.collections.BulkWrite(ctx, collectionOps, ordered); err != nil {
			s.Restore(changes)
			return fmt.Errorf("bulk write collections failed: %w", err)
		}
	}
	return nil
}

func writeModels(changes []storage.Change) (tickerOps, collectionOps []mongo.WriteModel, err error) {
	for _, c := range changes {
		filter := bson.M{"_id": c.ID.String()}
		switch c.Kind {
		case storage.InsertTickerChange:
			rec, err := storage.NewTickerRecord(c.Ticker)
			if err != nil {
				return nil, nil, err
			}
			tickerOps = append(tickerOps, mongo.NewInsertOneModel().SetDocument(rec))
		case storage.UpdateTickerChange:
			rec, err := storage.NewTickerRecord(c.Ticker)
			if err != nil {
				return nil, nil, err
			}
			tickerOps = append(tickerOps, mongo.NewReplaceOneModel().SetFilter(filter).SetReplacement(rec))
		case storage.DeleteTickerChange:
			tickerOps = append(tickerOps, mongo.NewDeleteOneModel().SetFilter(filter))
		case storage.InsertCollectionChange:
			collectionOps = append(collectionOps, mongo.NewInsertOneModel().SetDocument(storage.NewCollectionRecord(c.Collection)))
		case storage.UpdateCollectionChange:
			collectionOps = append(collectionOps, mongo.NewReplaceOneModel().SetFilter(filter).SetReplacement(storage.NewCollectionRecord(c.Collection)))
		case storage.DeleteCollectionChange:
			collectionOps = append(collectionOps, mongo.NewDeleteOneModel().SetFilter(filter))
		default:
			return nil, nil, fmt.Errorf("unknown change kind %d", c.Kind)
		}
	}
	return tickerOps, collectionOps, nil
}

// Close disconnects the underlying client
func (s *Store) Close() error {
	return s.db.Client().Disconnect(context.Background())
}

var _ storage.Store = (*Store)(nil)
