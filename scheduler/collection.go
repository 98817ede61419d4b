package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ahmed-com/tickeralarm"
	"github.com/ahmed-com/tickeralarm/id"
	"github.com/ahmed-com/tickeralarm/metrics"
	"github.com/ahmed-com/tickeralarm/notify"
	"github.com/ahmed-com/tickeralarm/storage"
)

// ScheduleCollection stores a collection with its children and materializes
// every child. If any child fails, the collection and every child already
// stored are removed again.
func (s *Scheduler) ScheduleCollection(ctx context.Context, c *tickeralarm.Collection, children []*tickeralarm.Ticker) error {
	return s.serial.Do(ctx, func(ctx context.Context) error {
		if len(children) == 0 {
			return tickeralarm.InvalidConfiguration(errors.New("collection has no children"))
		}
		if c.ID == uuid.Nil {
			c.ID = id.NewCollectionID()
		}
		if c.Kind == "" {
			c.Kind = tickeralarm.CollectionGeneric
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = s.clock()
		}

		enabled := false
		c.ChildIDs = c.ChildIDs[:0]
		for _, child := range children {
			if child.ID == uuid.Nil {
				child.ID = id.CollectionChildID(c.ID, child.Label)
			}
			if err := s.prepare(child); err != nil {
				return fmt.Errorf("child %q: %w", child.Label, err)
			}
			child.CollectionID = c.ID
			c.ChildIDs = append(c.ChildIDs, child.ID)
			enabled = enabled || child.Enabled
		}
		if enabled {
			if err := s.authorize(ctx, c.ID); err != nil {
				return err
			}
		}

		s.store.InsertCollection(c)
		for i, child := range children {
			s.store.InsertTicker(child)
			if err := s.materialize(ctx, child); err != nil {
				s.undoCollection(ctx, c, children[:i])
				return err
			}
		}
		if err := s.save(ctx); err != nil {
			s.undoCollection(ctx, c, children)
			return err
		}

		s.logger.Info("scheduled collection",
			zap.String("collection_id", c.ID.String()),
			zap.String("kind", string(c.Kind)),
			zap.Int("children", len(children)),
		)
		s.notify(ctx, notify.ReasonScheduled)
		return nil
	})
}

// undoCollection removes a partially stored collection. Whatever cannot be
// removed now is left for reconciliation.
func (s *Scheduler) undoCollection(ctx context.Context, c *tickeralarm.Collection, stored []*tickeralarm.Ticker) {
	for _, child := range stored {
		s.regen.CancelAll(ctx, child, metrics.ReasonRollback)
		s.store.DeleteTicker(child.ID)
	}
	if len(stored) > 0 {
		s.store.DeleteCollection(c.ID)
	}
	if err := s.save(ctx); err != nil {
		s.logger.Warn("failed to remove partial collection",
			zap.String("collection_id", c.ID.String()),
			zap.Error(err),
		)
	}
}

// SetCollectionEnabled enables or disables every child of a collection
func (s *Scheduler) SetCollectionEnabled(ctx context.Context, collectionID uuid.UUID, enabled bool) error {
	return s.serial.Do(ctx, func(ctx context.Context) error {
		c, children, err := s.collection(ctx, collectionID)
		if err != nil {
			return err
		}
		if enabled {
			if err := s.authorize(ctx, c.ID); err != nil {
				return err
			}
		}

		for _, child := range children {
			if child.Enabled == enabled {
				continue
			}
			child.Enabled = enabled
			if err := s.prepare(child); err != nil {
				return fmt.Errorf("child %q: %w", child.Label, err)
			}
			s.store.UpdateTicker(child)
			if err := s.materialize(ctx, child); err != nil {
				return err
			}
		}
		reason := notify.ReasonUpdated
		if !enabled {
			reason = notify.ReasonCancelled
		}
		s.notify(ctx, reason)
		return nil
	})
}

// DeleteCollection cancels and deletes every child, then the collection
func (s *Scheduler) DeleteCollection(ctx context.Context, collectionID uuid.UUID) error {
	return s.serial.Do(ctx, func(ctx context.Context) error {
		c, children, err := s.collection(ctx, collectionID)
		if err != nil {
			return err
		}
		for _, child := range children {
			s.regen.CancelAll(ctx, child, metrics.ReasonUser)
			s.store.DeleteTicker(child.ID)
		}
		s.store.DeleteCollection(c.ID)
		if err := s.save(ctx); err != nil {
			return err
		}
		for range children {
			s.metrics.IncTickersDeleted(metrics.ReasonUser)
		}
		s.notify(ctx, notify.ReasonCancelled)
		return nil
	})
}

// Collections returns every stored collection
func (s *Scheduler) Collections(ctx context.Context) ([]*tickeralarm.Collection, error) {
	var collections []*tickeralarm.Collection
	err := s.serial.Do(ctx, func(ctx context.Context) error {
		var err error
		collections, err = s.store.FetchCollections(ctx)
		return err
	})
	return collections, err
}

func (s *Scheduler) collection(ctx context.Context, collectionID uuid.UUID) (*tickeralarm.Collection, []*tickeralarm.Ticker, error) {
	collections, err := s.store.FetchCollections(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch collections: %w", err)
	}
	for _, c := range collections {
		if c.ID != collectionID {
			continue
		}
		tickers, err := s.store.FetchTickers(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to fetch tickers: %w", err)
		}
		return c, c.Children(tickers), nil
	}
	return nil, nil, fmt.Errorf("%w: %s", storage.ErrCollectionNotFound, collectionID)
}

// detach stages the removal of t from its collection. A collection left
// without children is deleted.
func (s *Scheduler) detach(ctx context.Context, t *tickeralarm.Ticker) error {
	collections, err := s.store.FetchCollections(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch collections: %w", err)
	}
	for _, c := range collections {
		if c.ID != t.CollectionID || !c.RemoveChild(t.ID) {
			continue
		}
		if len(c.ChildIDs) == 0 {
			s.store.DeleteCollection(c.ID)
		} else {
			s.store.UpdateCollection(c)
		}
	}
	return nil
}
