// Package reconcile restores consistency between the device's live alarms
// and the durable ticker records.
//
// A pass reads both sides, cancels alarms no enabled ticker owns, prunes
// occurrence identities the device no longer holds, and deletes enabled
// tickers that will never fire again. Device cleanup always happens before
// store cleanup so that pruned identities are already gone when a ticker's
// live alarm count is evaluated.
package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ahmed-com/tickeralarm"
	"github.com/ahmed-com/tickeralarm/device"
	"github.com/ahmed-com/tickeralarm/metrics"
	"github.com/ahmed-com/tickeralarm/notify"
	"github.com/ahmed-com/tickeralarm/recurrence"
	"github.com/ahmed-com/tickeralarm/storage"
)

// DefaultLookahead is how far ahead a ticker without live alarms is searched
// for a future occurrence before it is considered dead. It covers one full
// year so yearly tickers survive.
const DefaultLookahead = 366 * 24 * time.Hour

// Regenerator repairs composite tickers after a pass
type Regenerator interface {
	NeedsRegeneration(t *tickeralarm.Ticker) bool
	Regenerate(ctx context.Context, t *tickeralarm.Ticker, force bool) error
}

// Config tunes a reconciliation pass
type Config struct {
	Lookahead time.Duration
}

// Report summarizes the mutations of one pass
type Report struct {
	// Aborted is set when a fetch failed and nothing was touched
	Aborted bool

	Cancelled          int
	Pruned             int
	Deleted            int
	CollectionsDeleted int
	Regenerated        int
}

// Changed reports whether the pass mutated anything
func (r Report) Changed() bool {
	return r.Cancelled+r.Pruned+r.Deleted+r.CollectionsDeleted+r.Regenerated > 0
}

// Service runs reconciliation passes. Passes must not overlap.
type Service struct {
	device  device.Scheduler
	store   storage.Store
	regen   Regenerator
	config  Config

	logger    *zap.Logger
	metrics   metrics.MetricsCollector
	refresher notify.Refresher
	clock     tickeralarm.Clock
}

// NewService creates a reconciliation service
func NewService(dev device.Scheduler, store storage.Store, regen Regenerator, config Config) *Service {
	if config.Lookahead <= 0 {
		config.Lookahead = DefaultLookahead
	}
	return &Service{
		device:    dev,
		store:     store,
		regen:     regen,
		config:    config,
		logger:    zap.NewNop(),
		metrics:   metrics.NewNoOpMetrics(),
		refresher: notify.NoOp{},
		clock:     tickeralarm.SystemClock,
	}
}

// SetLogger sets the logger
func (s *Service) SetLogger(logger *zap.Logger) {
	s.logger = logger
}

// SetMetrics sets the metrics collector
func (s *Service) SetMetrics(m metrics.MetricsCollector) {
	s.metrics = m
}

// SetRefresher sets the collaborator told about completed passes
func (s *Service) SetRefresher(r notify.Refresher) {
	s.refresher = r
}

// SetClock sets the time source
func (s *Service) SetClock(clock tickeralarm.Clock) {
	s.clock = clock
}

// snapshot is the read-only state one pass works on. It is never kept
// across passes.
type snapshot struct {
	live        map[uuid.UUID]bool
	tickers     []*tickeralarm.Ticker
	collections []*tickeralarm.Collection

	// owner maps every occurrence identity and ticker identity to its ticker
	owner map[uuid.UUID]*tickeralarm.Ticker
}

// Reconcile runs one pass. It never fails: a fetch error aborts the pass
// before anything is mutated, and later failures are logged and left for the
// next pass to repair.
func (s *Service) Reconcile(ctx context.Context) Report {
	start := time.Now()
	defer func() { s.metrics.ObserveReconcileDuration(time.Since(start)) }()

	snap, err := s.load(ctx)
	if err != nil {
		s.metrics.IncReconcilePasses(metrics.OutcomeAborted)
		s.logger.Warn("reconciliation aborted", zap.Error(err))
		return Report{Aborted: true}
	}

	var report Report
	report.Cancelled = s.cleanDevice(ctx, snap)
	report.Pruned = s.prune(snap)
	report.Deleted, report.CollectionsDeleted = s.cleanStore(snap)

	if s.store.HasChanges() {
		if err := s.store.Save(ctx); err != nil {
			s.store.Rollback()
			s.logger.Warn("failed to save reconciliation", zap.Error(err))
			s.metrics.IncReconcilePasses(metrics.OutcomeSaveError)
			return report
		}
	}

	report.Regenerated = s.regenerate(ctx, snap)

	alarms := s.liveCount(ctx, snap)
	s.metrics.SetTickers(len(snap.tickers))
	s.metrics.SetLiveAlarms(alarms)
	s.metrics.IncReconcilePasses(metrics.OutcomeCompleted)

	event := notify.Event{
		Reason:  notify.ReasonReconciled,
		At:      s.clock(),
		Tickers: len(snap.tickers),
		Alarms:  alarms,
	}
	if err := s.refresher.Refresh(ctx, event); err != nil {
		s.logger.Warn("refresh failed", zap.Error(err))
	}

	s.logger.Debug("reconciled",
		zap.Int("cancelled", report.Cancelled),
		zap.Int("pruned", report.Pruned),
		zap.Int("deleted", report.Deleted),
		zap.Int("collections_deleted", report.CollectionsDeleted),
		zap.Int("regenerated", report.Regenerated),
	)
	return report
}

func (s *Service) load(ctx context.Context) (*snapshot, error) {
	alarms, err := s.device.Alarms(ctx)
	if err != nil {
		return nil, err
	}
	tickers, err := s.store.FetchTickers(ctx)
	if err != nil {
		return nil, err
	}
	collections, err := s.store.FetchCollections(ctx)
	if err != nil {
		return nil, err
	}

	snap := &snapshot{
		live:        make(map[uuid.UUID]bool, len(alarms)),
		tickers:     tickers,
		collections: collections,
		owner:       make(map[uuid.UUID]*tickeralarm.Ticker),
	}
	for _, a := range alarms {
		snap.live[a.ID] = true
	}
	for _, t := range tickers {
		snap.owner[t.ID] = t
		for _, occ := range t.OccurrenceIDs {
			snap.owner[occ] = t
		}
	}
	return snap, nil
}

// cleanDevice cancels live alarms owned by a disabled ticker or by nothing
func (s *Service) cleanDevice(ctx context.Context, snap *snapshot) int {
	cancelled := 0
	for alarmID := range snap.live {
		owner, ok := snap.owner[alarmID]
		reason := ""
		switch {
		case !ok:
			reason = metrics.ReasonOrphan
		case !owner.Enabled:
			reason = metrics.ReasonDisabled
		default:
			continue
		}

		err := s.device.Cancel(ctx, alarmID)
		if err != nil && !errors.Is(err, device.ErrAlarmNotFound) {
			s.logger.Warn("failed to cancel alarm",
				zap.String("alarm_id", alarmID.String()),
				zap.String("reason", reason),
				zap.Error(err),
			)
			continue
		}
		delete(snap.live, alarmID)
		if err == nil {
			cancelled++
			s.metrics.IncAlarmsCancelled(reason)
		}
	}
	return cancelled
}

// prune drops occurrence identities the device no longer holds
func (s *Service) prune(snap *snapshot) int {
	pruned := 0
	for _, t := range snap.tickers {
		kept := t.OccurrenceIDs[:0:0]
		for _, occ := range t.OccurrenceIDs {
			if snap.live[occ] {
				kept = append(kept, occ)
			}
		}
		if len(kept) == len(t.OccurrenceIDs) {
			continue
		}
		pruned += len(t.OccurrenceIDs) - len(kept)
		if len(kept) == 0 {
			kept = nil
		}
		t.OccurrenceIDs = kept
		s.store.UpdateTicker(t)
	}
	return pruned
}

// cleanStore deletes enabled tickers with no live alarm and nothing left to
// fire, then drops collections left without children
func (s *Service) cleanStore(snap *snapshot) (int, int) {
	now := s.clock()

	deleted := 0
	remaining := snap.tickers[:0:0]
	for _, t := range snap.tickers {
		if !t.Enabled || s.hasLiveAlarm(snap, t) || s.keep(t, now) {
			remaining = append(remaining, t)
			continue
		}
		s.store.DeleteTicker(t.ID)
		deleted++
		s.metrics.IncTickersDeleted(metrics.ReasonOrphan)
		s.logger.Info("deleted expired ticker",
			zap.String("ticker_id", t.ID.String()),
			zap.String("label", t.Label),
		)
	}
	snap.tickers = remaining

	exists := make(map[uuid.UUID]bool, len(remaining))
	for _, t := range remaining {
		exists[t.ID] = true
	}

	collectionsDeleted := 0
	for _, c := range snap.collections {
		changed := false
		for _, childID := range append([]uuid.UUID(nil), c.ChildIDs...) {
			if !exists[childID] {
				changed = c.RemoveChild(childID) || changed
			}
		}
		switch {
		case len(c.ChildIDs) == 0:
			s.store.DeleteCollection(c.ID)
			collectionsDeleted++
		case changed:
			s.store.UpdateCollection(c)
		}
	}
	return deleted, collectionsDeleted
}

func (s *Service) hasLiveAlarm(snap *snapshot, t *tickeralarm.Ticker) bool {
	for _, alarmID := range t.AlarmIDs() {
		if snap.live[alarmID] {
			return true
		}
	}
	return false
}

// keep reports whether an enabled ticker without live alarms is merely
// pending rather than dead
func (s *Service) keep(t *tickeralarm.Ticker, now time.Time) bool {
	if _, ok := recurrence.Next(t.Schedule, now, s.config.Lookahead); ok {
		return true
	}
	return t.IsComposite() && s.regen != nil && s.regen.NeedsRegeneration(t)
}

// regenerate repairs enabled composite tickers that need it. Failures are
// left for the next pass.
func (s *Service) regenerate(ctx context.Context, snap *snapshot) int {
	if s.regen == nil {
		return 0
	}
	regenerated := 0
	for _, t := range snap.tickers {
		if !t.Enabled || !t.IsComposite() || !s.regen.NeedsRegeneration(t) {
			continue
		}
		if err := s.regen.Regenerate(ctx, t, false); err != nil {
			s.logger.Debug("regeneration deferred",
				zap.String("ticker_id", t.ID.String()),
				zap.Error(err),
			)
			continue
		}
		regenerated++
	}
	return regenerated
}

func (s *Service) liveCount(ctx context.Context, snap *snapshot) int {
	alarms, err := s.device.Alarms(ctx)
	if err != nil {
		return len(snap.live)
	}
	return len(alarms)
}
