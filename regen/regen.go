// Package regen keeps the near-term occurrences of each ticker materialized
// as concrete device alarms.
package regen

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/samber/mo"
	"go.uber.org/zap"

	"github.com/ahmed-com/tickeralarm"
	"github.com/ahmed-com/tickeralarm/device"
	"github.com/ahmed-com/tickeralarm/id"
	"github.com/ahmed-com/tickeralarm/metrics"
	"github.com/ahmed-com/tickeralarm/recurrence"
	"github.com/ahmed-com/tickeralarm/storage"
)

// Builder produces the device configuration for one alarm
type Builder interface {
	Build(t *tickeralarm.Ticker, occurrenceID uuid.UUID) mo.Option[device.Configuration]
}

// Config tunes the materialized window
type Config struct {
	// Lookahead is how far ahead of now occurrences are materialized
	Lookahead time.Duration
	// RefreshMargin is the remaining coverage below which a ticker is
	// regenerated
	RefreshMargin time.Duration
	// MaxOccurrences caps alarms per ticker per pass; zero means no cap
	MaxOccurrences int
}

// DefaultConfig returns the default window settings
func DefaultConfig() Config {
	return Config{
		Lookahead:      48 * time.Hour,
		RefreshMargin:  24 * time.Hour,
		MaxOccurrences: 64,
	}
}

// Service materializes tickers into device alarms
type Service struct {
	device  device.Scheduler
	store   storage.Store
	builder Builder
	config  Config

	logger  *zap.Logger
	metrics metrics.MetricsCollector
	clock   tickeralarm.Clock
	ids     id.Generator
}

// NewService creates a regeneration service
func NewService(dev device.Scheduler, store storage.Store, builder Builder, config Config) *Service {
	if config.Lookahead <= 0 {
		config.Lookahead = DefaultConfig().Lookahead
	}
	return &Service{
		device:  dev,
		store:   store,
		builder: builder,
		config:  config,
		logger:  zap.NewNop(),
		metrics: metrics.NewNoOpMetrics(),
		clock:   tickeralarm.SystemClock,
		ids:     id.RandomGenerator{},
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

// SetClock sets the time source
func (s *Service) SetClock(clock tickeralarm.Clock) {
	s.clock = clock
}

// SetIDGenerator sets the occurrence identity generator
func (s *Service) SetIDGenerator(g id.Generator) {
	s.ids = g
}

// Config returns the window settings in use
func (s *Service) Config() Config {
	return s.config
}

// NeedsRegeneration reports whether t's materialized window should be
// recomputed now
func (s *Service) NeedsRegeneration(t *tickeralarm.Ticker) bool {
	return t.NeedsRegeneration(s.clock(), s.config.RefreshMargin)
}

// Regenerate brings t's device alarms in line with its schedule. Unless
// force is set only composite tickers flagged by NeedsRegeneration are
// touched. Disabled tickers lose their alarms instead.
//
// A composite pass is all-or-nothing: a failed submission cancels
// everything submitted during the pass, a failed save does the same and
// discards the staged store changes. On success t carries the new
// occurrence identities.
func (s *Service) Regenerate(ctx context.Context, t *tickeralarm.Ticker, force bool) error {
	if !force && !s.NeedsRegeneration(t) {
		return nil
	}
	if !t.Enabled {
		return s.Deactivate(ctx, t)
	}

	start := time.Now()
	var err error
	switch {
	case t.IsComposite():
		err = s.regenerateComposite(ctx, t)
	case t.IsSimple():
		err = s.materializeSimple(ctx, t)
	default:
		err = tickeralarm.InvalidConfiguration(fmt.Errorf("ticker %s has no schedule", t.ID))
	}
	s.metrics.ObserveRegenerationDuration(time.Since(start))

	if err != nil {
		s.metrics.IncRegenerations("failure")
		s.logger.Warn("regeneration failed", zap.String("ticker_id", t.ID.String()), zap.Error(err))
		return err
	}
	s.metrics.IncRegenerations("success")
	return nil
}

func (s *Service) regenerateComposite(ctx context.Context, t *tickeralarm.Ticker) error {
	for _, occ := range t.OccurrenceIDs {
		s.cancel(ctx, occ, metrics.ReasonRegenerated)
	}
	// A ticker switched from simple to composite may still own its
	// persistent alarm
	s.cancel(ctx, t.ID, metrics.ReasonRegenerated)

	now := s.clock()
	times := recurrence.Expand(t.Schedule, now, s.config.Lookahead, s.config.MaxOccurrences)

	submitted := make([]uuid.UUID, 0, len(times))
	for _, at := range times {
		occ := s.ids.NewOccurrenceID(t.ID, at)
		cfg, ok := s.builder.Build(t.OneTimeView(at), occ).Get()
		if !ok {
			s.rollback(ctx, submitted)
			return tickeralarm.InvalidConfiguration(fmt.Errorf("no configuration for ticker %s at %s", t.ID, at.Format(time.RFC3339)))
		}
		if _, err := s.device.Schedule(ctx, occ, cfg); err != nil {
			s.rollback(ctx, submitted)
			return schedulingError("schedule", occ, err)
		}
		submitted = append(submitted, occ)
	}

	updated := t.Clone()
	updated.OccurrenceIDs = submitted
	updated.GeneratedThrough = coveredThrough(times, now.Add(s.config.Lookahead), s.config.MaxOccurrences)
	if err := s.persist(ctx, updated, submitted); err != nil {
		return err
	}

	s.metrics.AddOccurrencesScheduled(len(submitted))
	s.logger.Debug("regenerated ticker",
		zap.String("ticker_id", t.ID.String()),
		zap.Int("occurrences", len(submitted)),
		zap.Time("generated_through", updated.GeneratedThrough),
	)
	t.OccurrenceIDs = updated.OccurrenceIDs
	t.GeneratedThrough = updated.GeneratedThrough
	return nil
}

// coveredThrough is the end of the window the materialized times account
// for. A capped expansion only covers up to its last time.
func coveredThrough(times []time.Time, windowEnd time.Time, maxCount int) time.Time {
	if maxCount > 0 && len(times) >= maxCount {
		return times[len(times)-1]
	}
	return windowEnd
}

// materializeSimple submits the simple ticker's single alarm under the
// ticker's own identity
func (s *Service) materializeSimple(ctx context.Context, t *tickeralarm.Ticker) error {
	for _, occ := range t.OccurrenceIDs {
		s.cancel(ctx, occ, metrics.ReasonRegenerated)
	}
	s.cancel(ctx, t.ID, metrics.ReasonRegenerated)

	cfg, ok := s.builder.Build(t, t.ID).Get()
	if !ok {
		return tickeralarm.InvalidConfiguration(fmt.Errorf("no configuration for ticker %s", t.ID))
	}
	if _, err := s.device.Schedule(ctx, t.ID, cfg); err != nil {
		return schedulingError("schedule", t.ID, err)
	}

	updated := t.Clone()
	updated.OccurrenceIDs = nil
	updated.GeneratedThrough = time.Time{}
	if err := s.persist(ctx, updated, []uuid.UUID{t.ID}); err != nil {
		return err
	}

	s.metrics.AddOccurrencesScheduled(1)
	t.OccurrenceIDs = nil
	t.GeneratedThrough = time.Time{}
	return nil
}

// Deactivate cancels every alarm t owns and clears its occurrence state
func (s *Service) Deactivate(ctx context.Context, t *tickeralarm.Ticker) error {
	s.CancelAll(ctx, t, metrics.ReasonDisabled)

	if len(t.OccurrenceIDs) == 0 && t.GeneratedThrough.IsZero() {
		return nil
	}
	updated := t.Clone()
	updated.OccurrenceIDs = nil
	updated.GeneratedThrough = time.Time{}
	if err := s.persist(ctx, updated, nil); err != nil {
		return err
	}
	t.OccurrenceIDs = nil
	t.GeneratedThrough = time.Time{}
	return nil
}

// CancelAll cancels every alarm identity t may own. Failures are logged.
func (s *Service) CancelAll(ctx context.Context, t *tickeralarm.Ticker, reason string) {
	for _, alarmID := range t.AlarmIDs() {
		s.cancel(ctx, alarmID, reason)
	}
}

// persist stages updated and saves. On failure the staged changes are
// discarded and the alarms in submitted are cancelled again.
func (s *Service) persist(ctx context.Context, updated *tickeralarm.Ticker, submitted []uuid.UUID) error {
	s.store.UpdateTicker(updated)
	if err := s.store.Save(ctx); err != nil {
		s.store.Rollback()
		s.rollback(ctx, submitted)
		return &tickeralarm.StoreError{Err: err}
	}
	return nil
}

func (s *Service) rollback(ctx context.Context, submitted []uuid.UUID) {
	for _, occ := range submitted {
		s.cancel(ctx, occ, metrics.ReasonRollback)
	}
}

// cancel removes one alarm. Already-gone alarms are fine and other failures
// are only logged.
func (s *Service) cancel(ctx context.Context, alarmID uuid.UUID, reason string) {
	err := s.device.Cancel(ctx, alarmID)
	switch {
	case err == nil:
		s.metrics.IncAlarmsCancelled(reason)
	case errors.Is(err, device.ErrAlarmNotFound):
	default:
		s.logger.Warn("failed to cancel alarm",
			zap.String("alarm_id", alarmID.String()),
			zap.String("reason", reason),
			zap.Error(err),
		)
	}
}

func schedulingError(op string, alarmID uuid.UUID, err error) error {
	if errors.Is(err, device.ErrUnauthorized) {
		err = fmt.Errorf("%w: %w", tickeralarm.ErrNotAuthorized, err)
	}
	return &tickeralarm.SchedulingError{Op: op, AlarmID: alarmID, Err: err}
}
