// Package scheduler is the entry point surrounding code uses to create,
// edit and control ticker alarms.
//
// Every operation runs on one serial executor so regeneration and
// reconciliation never overlap.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/samber/mo"
	"go.uber.org/zap"

	"github.com/ahmed-com/tickeralarm"
	"github.com/ahmed-com/tickeralarm/concurrency"
	"github.com/ahmed-com/tickeralarm/device"
	"github.com/ahmed-com/tickeralarm/id"
	"github.com/ahmed-com/tickeralarm/metrics"
	"github.com/ahmed-com/tickeralarm/notify"
	"github.com/ahmed-com/tickeralarm/recurrence"
	"github.com/ahmed-com/tickeralarm/reconcile"
	"github.com/ahmed-com/tickeralarm/regen"
	"github.com/ahmed-com/tickeralarm/storage"
	"github.com/ahmed-com/tickeralarm/translate"
)

// DefaultRefreshSchedule is the cron spec background synchronization runs on
const DefaultRefreshSchedule = "@every 6h"

// Config wires a Scheduler. Zero fields fall back to defaults.
type Config struct {
	Regen     regen.Config
	Reconcile reconcile.Config

	// RefreshSchedule is a cron spec for StartRefresh
	RefreshSchedule string
	// Location is the time zone calendar rules are expanded in
	Location *time.Location

	Logger    *zap.Logger
	Metrics   metrics.MetricsCollector
	Refresher notify.Refresher
	Sounds    translate.SoundResolver
	Clock     tickeralarm.Clock
	IDs       id.Generator
}

// Scheduler orchestrates authorization, regeneration and reconciliation on
// top of the device scheduler and the durable store
type Scheduler struct {
	config Config
	device device.Scheduler
	store  storage.Store

	regen      *regen.Service
	reconciler *reconcile.Service
	serial     *concurrency.Serial

	logger    *zap.Logger
	metrics   metrics.MetricsCollector
	refresher notify.Refresher
	clock     tickeralarm.Clock

	cron   *cron.Cron
	cronMu sync.Mutex
}

// NewScheduler creates a scheduler instance. The caller keeps ownership of
// dev and store.
func NewScheduler(config Config, dev device.Scheduler, store storage.Store) *Scheduler {
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.Metrics == nil {
		config.Metrics = metrics.NewNoOpMetrics()
	}
	if config.Refresher == nil {
		config.Refresher = notify.NoOp{}
	}
	if config.IDs == nil {
		config.IDs = id.RandomGenerator{}
	}
	if config.RefreshSchedule == "" {
		config.RefreshSchedule = DefaultRefreshSchedule
	}
	if config.Regen == (regen.Config{}) {
		config.Regen = regen.DefaultConfig()
	}

	base := config.Clock
	if base == nil {
		base = tickeralarm.SystemClock
	}
	clock := base
	if loc := config.Location; loc != nil {
		clock = func() time.Time { return base().In(loc) }
	}

	tr := translate.New(config.Sounds)
	tr.Clock = clock

	rg := regen.NewService(dev, store, tr, config.Regen)
	rg.SetLogger(config.Logger.Named("regen"))
	rg.SetMetrics(config.Metrics)
	rg.SetClock(clock)
	rg.SetIDGenerator(config.IDs)

	rc := reconcile.NewService(dev, store, rg, config.Reconcile)
	rc.SetLogger(config.Logger.Named("reconcile"))
	rc.SetMetrics(config.Metrics)
	rc.SetRefresher(config.Refresher)
	rc.SetClock(clock)

	serial := concurrency.NewSerial(0)
	serial.Start()

	return &Scheduler{
		config:     config,
		device:     dev,
		store:      store,
		regen:      rg,
		reconciler: rc,
		serial:     serial,
		logger:     config.Logger,
		metrics:    config.Metrics,
		refresher:  config.Refresher,
		clock:      clock,
	}
}

// ScheduleAlarm stores a new ticker and materializes its alarms. Nothing is
// kept when scheduling or saving fails.
func (s *Scheduler) ScheduleAlarm(ctx context.Context, t *tickeralarm.Ticker) error {
	return s.serial.Do(ctx, func(ctx context.Context) error {
		if err := s.prepare(t); err != nil {
			return err
		}
		if t.Enabled {
			if err := s.authorize(ctx, t.ID); err != nil {
				return err
			}
		}

		s.store.InsertTicker(t)
		if err := s.materialize(ctx, t); err != nil {
			return err
		}
		s.logger.Info("scheduled ticker",
			zap.String("ticker_id", t.ID.String()),
			zap.String("schedule", recurrence.Describe(t.Schedule)),
		)
		s.notify(ctx, notify.ReasonScheduled)
		return nil
	})
}

// UpdateAlarm replaces a stored ticker and re-materializes its alarms. The
// stored occurrence state is carried over so the old alarms are cancelled.
func (s *Scheduler) UpdateAlarm(ctx context.Context, t *tickeralarm.Ticker) error {
	return s.serial.Do(ctx, func(ctx context.Context) error {
		existing, err := s.ticker(ctx, t.ID)
		if err != nil {
			return err
		}
		t.CreatedAt = existing.CreatedAt
		t.CollectionID = existing.CollectionID
		if err := s.prepare(t); err != nil {
			return err
		}
		if t.Enabled {
			if err := s.authorize(ctx, t.ID); err != nil {
				return err
			}
		}

		t.OccurrenceIDs = existing.OccurrenceIDs
		t.GeneratedThrough = existing.GeneratedThrough
		s.store.UpdateTicker(t)
		if err := s.materialize(ctx, t); err != nil {
			return err
		}
		s.notify(ctx, notify.ReasonUpdated)
		return nil
	})
}

// CancelAlarm disables the ticker owning alarmID and cancels all of its
// alarms. alarmID may be a ticker identity or an occurrence identity. An
// alarm nothing owns is cancelled on the device only.
func (s *Scheduler) CancelAlarm(ctx context.Context, alarmID uuid.UUID) error {
	return s.serial.Do(ctx, func(ctx context.Context) error {
		found, err := s.owner(ctx, alarmID)
		if err != nil {
			return err
		}
		owner, ok := found.Get()
		if !ok {
			if err := device.CancelIgnoringMissing(ctx, s.device, alarmID); err != nil {
				s.logger.Warn("failed to cancel alarm", zap.String("alarm_id", alarmID.String()), zap.Error(err))
			}
			return nil
		}

		owner.Enabled = false
		s.store.UpdateTicker(owner)
		if err := s.materialize(ctx, owner); err != nil {
			return err
		}
		s.notify(ctx, notify.ReasonCancelled)
		return nil
	})
}

// PauseAlarm pauses a counting-down alarm
func (s *Scheduler) PauseAlarm(ctx context.Context, alarmID uuid.UUID) error {
	return s.control(ctx, "pause", alarmID, s.device.Pause)
}

// ResumeAlarm resumes a paused alarm
func (s *Scheduler) ResumeAlarm(ctx context.Context, alarmID uuid.UUID) error {
	return s.control(ctx, "resume", alarmID, s.device.Resume)
}

// StopAlarm stops one firing alarm. Other occurrences of the same ticker are
// unaffected.
func (s *Scheduler) StopAlarm(ctx context.Context, alarmID uuid.UUID) error {
	return s.control(ctx, "stop", alarmID, s.device.Stop)
}

// RepeatCountdown restarts the countdown phase. target may name the alarm or its
// ticker; for a ticker the alarm currently alerting is used.
func (s *Scheduler) RepeatCountdown(ctx context.Context, target uuid.UUID) error {
	return s.serial.Do(ctx, func(ctx context.Context) error {
		alarmID, err := s.resolveLive(ctx, target)
		if err != nil {
			return err
		}
		if err := s.device.Countdown(ctx, alarmID); err != nil {
			return &tickeralarm.SchedulingError{Op: "countdown", AlarmID: alarmID, Err: err}
		}
		return nil
	})
}

// Synchronize runs one reconciliation pass. It never fails; a pass that
// could not read either side reports Aborted.
func (s *Scheduler) Synchronize(ctx context.Context) reconcile.Report {
	var report reconcile.Report
	err := s.serial.Do(ctx, func(ctx context.Context) error {
		report = s.reconciler.Reconcile(ctx)
		return nil
	})
	if err != nil {
		s.logger.Warn("synchronize not run", zap.Error(err))
		return reconcile.Report{Aborted: true}
	}
	return report
}

// IsAlarmActive reports whether the ticker has any live alarm
func (s *Scheduler) IsAlarmActive(ctx context.Context, tickerID uuid.UUID) (bool, error) {
	alarm, err := s.GetActiveAlarm(ctx, tickerID)
	if err != nil {
		return false, err
	}
	return alarm.IsPresent(), nil
}

// GetActiveAlarm returns the ticker's most relevant live alarm: one that is
// alerting, counting down or paused first, otherwise the one firing next.
func (s *Scheduler) GetActiveAlarm(ctx context.Context, tickerID uuid.UUID) (mo.Option[device.Alarm], error) {
	var result mo.Option[device.Alarm]
	err := s.serial.Do(ctx, func(ctx context.Context) error {
		t, err := s.ticker(ctx, tickerID)
		if err != nil {
			return err
		}
		alarms, err := s.liveAlarms(ctx, t)
		if err != nil {
			return err
		}
		if len(alarms) > 0 {
			result = mo.Some(alarms[0])
		}
		return nil
	})
	return result, err
}

// Tickers returns every stored ticker
func (s *Scheduler) Tickers(ctx context.Context) ([]*tickeralarm.Ticker, error) {
	var tickers []*tickeralarm.Ticker
	err := s.serial.Do(ctx, func(ctx context.Context) error {
		var err error
		tickers, err = s.store.FetchTickers(ctx)
		return err
	})
	return tickers, err
}

// DeleteTicker cancels every alarm of the ticker and removes it, including
// from its collection
func (s *Scheduler) DeleteTicker(ctx context.Context, tickerID uuid.UUID) error {
	return s.serial.Do(ctx, func(ctx context.Context) error {
		t, err := s.ticker(ctx, tickerID)
		if err != nil {
			return err
		}
		if t.CollectionID != uuid.Nil {
			if err := s.detach(ctx, t); err != nil {
				return err
			}
		}
		s.regen.CancelAll(ctx, t, metrics.ReasonUser)
		s.store.DeleteTicker(t.ID)
		if err := s.save(ctx); err != nil {
			return err
		}
		s.metrics.IncTickersDeleted(metrics.ReasonUser)
		s.notify(ctx, notify.ReasonCancelled)
		return nil
	})
}

// StartRefresh runs Synchronize on the configured cron schedule until
// StopRefresh or Close
func (s *Scheduler) StartRefresh() error {
	s.cronMu.Lock()
	defer s.cronMu.Unlock()
	if s.cron != nil {
		return fmt.Errorf("refresh already running")
	}

	opts := []cron.Option{}
	if s.config.Location != nil {
		opts = append(opts, cron.WithLocation(s.config.Location))
	}
	c := cron.New(opts...)
	if _, err := c.AddFunc(s.config.RefreshSchedule, func() {
		report := s.Synchronize(context.Background())
		s.logger.Debug("background refresh", zap.Bool("aborted", report.Aborted), zap.Bool("changed", report.Changed()))
	}); err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", s.config.RefreshSchedule, err)
	}
	c.Start()
	s.cron = c
	return nil
}

// StopRefresh stops background refresh and waits for a running pass
func (s *Scheduler) StopRefresh() {
	s.cronMu.Lock()
	defer s.cronMu.Unlock()
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.cron = nil
}

// Close stops background refresh and drains pending calls
func (s *Scheduler) Close() {
	s.StopRefresh()
	s.serial.Stop()
}

// prepare validates t and fills defaults. Anchored rules are phased from
// the ticker's creation time.
func (s *Scheduler) prepare(t *tickeralarm.Ticker) error {
	if t.Schedule == nil {
		return tickeralarm.InvalidConfiguration(errors.New("ticker has no recurrence"))
	}
	if err := recurrence.Validate(t.Schedule); err != nil {
		return tickeralarm.InvalidConfiguration(err)
	}
	now := s.clock()
	if once, ok := t.Schedule.(recurrence.OneTime); ok && t.Enabled && !once.At.After(now) {
		return tickeralarm.InvalidConfiguration(fmt.Errorf("one-time alarm at %s is in the past", once.At.Format(time.RFC3339)))
	}

	if t.ID == uuid.Nil {
		t.ID = id.NewTickerID()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.Schedule = recurrence.WithAnchor(t.Schedule, t.CreatedAt)
	return nil
}

// authorize checks the device permission, asking for it once when the user
// has not decided yet
func (s *Scheduler) authorize(ctx context.Context, tickerID uuid.UUID) error {
	state, err := s.device.Authorization(ctx)
	if err != nil {
		return &tickeralarm.SchedulingError{Op: "authorize", AlarmID: tickerID, Err: err}
	}
	if state == device.AuthorizationNotDetermined {
		if state, err = s.device.RequestAuthorization(ctx); err != nil {
			return &tickeralarm.SchedulingError{Op: "authorize", AlarmID: tickerID, Err: err}
		}
	}
	if state != device.AuthorizationAuthorized {
		return &tickeralarm.SchedulingError{Op: "authorize", AlarmID: tickerID, Err: tickeralarm.ErrNotAuthorized}
	}
	return nil
}

// materialize brings t's alarms in line with its staged record and commits.
// On failure nothing staged survives.
func (s *Scheduler) materialize(ctx context.Context, t *tickeralarm.Ticker) error {
	if err := s.regen.Regenerate(ctx, t, true); err != nil {
		s.store.Rollback()
		return err
	}
	if err := s.save(ctx); err != nil {
		s.regen.CancelAll(ctx, t, metrics.ReasonRollback)
		return err
	}
	return nil
}

func (s *Scheduler) save(ctx context.Context) error {
	if !s.store.HasChanges() {
		return nil
	}
	if err := s.store.Save(ctx); err != nil {
		s.store.Rollback()
		return &tickeralarm.StoreError{Err: err}
	}
	return nil
}

func (s *Scheduler) control(ctx context.Context, op string, alarmID uuid.UUID, fn func(context.Context, uuid.UUID) error) error {
	return s.serial.Do(ctx, func(ctx context.Context) error {
		if err := fn(ctx, alarmID); err != nil {
			return &tickeralarm.SchedulingError{Op: op, AlarmID: alarmID, Err: err}
		}
		return nil
	})
}

func (s *Scheduler) ticker(ctx context.Context, tickerID uuid.UUID) (*tickeralarm.Ticker, error) {
	tickers, err := s.store.FetchTickers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tickers: %w", err)
	}
	for _, t := range tickers {
		if t.ID == tickerID {
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", tickeralarm.ErrTickerNotFound, tickerID)
}

// owner finds the ticker owning alarmID
func (s *Scheduler) owner(ctx context.Context, alarmID uuid.UUID) (mo.Option[*tickeralarm.Ticker], error) {
	tickers, err := s.store.FetchTickers(ctx)
	if err != nil {
		return mo.None[*tickeralarm.Ticker](), fmt.Errorf("failed to fetch tickers: %w", err)
	}
	for _, t := range tickers {
		if t.Owns(alarmID) {
			return mo.Some(t), nil
		}
	}
	return mo.None[*tickeralarm.Ticker](), nil
}

// liveAlarms returns t's live alarms, active states first, then by firing
// time
func (s *Scheduler) liveAlarms(ctx context.Context, t *tickeralarm.Ticker) ([]device.Alarm, error) {
	all, err := s.device.Alarms(ctx)
	if err != nil {
		return nil, &tickeralarm.SchedulingError{Op: "alarms", AlarmID: t.ID, Err: err}
	}
	now := s.clock()
	var owned []device.Alarm
	for _, a := range all {
		if t.Owns(a.ID) {
			owned = append(owned, a)
		}
	}
	sort.SliceStable(owned, func(i, j int) bool {
		ai, aj := owned[i].State != device.StateScheduled, owned[j].State != device.StateScheduled
		if ai != aj {
			return ai
		}
		ti, _ := owned[i].FiringTime(now)
		tj, _ := owned[j].FiringTime(now)
		return ti.Before(tj)
	})
	return owned, nil
}

// resolveLive maps target to a live alarm: target itself when live, else the most
// relevant live alarm of the ticker with that identity
func (s *Scheduler) resolveLive(ctx context.Context, target uuid.UUID) (uuid.UUID, error) {
	all, err := s.device.Alarms(ctx)
	if err != nil {
		return uuid.Nil, &tickeralarm.SchedulingError{Op: "alarms", AlarmID: target, Err: err}
	}
	for _, a := range all {
		if a.ID == target {
			return target, nil
		}
	}
	t, err := s.ticker(ctx, target)
	if err != nil {
		return uuid.Nil, err
	}
	alarms, err := s.liveAlarms(ctx, t)
	if err != nil {
		return uuid.Nil, err
	}
	if len(alarms) == 0 {
		return uuid.Nil, &tickeralarm.SchedulingError{Op: "countdown", AlarmID: target, Err: device.ErrAlarmNotFound}
	}
	return alarms[0].ID, nil
}

func (s *Scheduler) notify(ctx context.Context, reason string) {
	event := notify.Event{Reason: reason, At: s.clock()}
	if err := s.refresher.Refresh(ctx, event); err != nil {
		s.logger.Warn("refresh failed", zap.String("reason", reason), zap.Error(err))
	}
}
