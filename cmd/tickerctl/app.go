package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ahmed-com/tickeralarm/config"
	"github.com/ahmed-com/tickeralarm/device/sim"
	"github.com/ahmed-com/tickeralarm/logger"
	"github.com/ahmed-com/tickeralarm/metrics"
	"github.com/ahmed-com/tickeralarm/notify"
	redisnotify "github.com/ahmed-com/tickeralarm/notify/redis"
	"github.com/ahmed-com/tickeralarm/reconcile"
	"github.com/ahmed-com/tickeralarm/regen"
	"github.com/ahmed-com/tickeralarm/scheduler"
	"github.com/ahmed-com/tickeralarm/storage"
	"github.com/ahmed-com/tickeralarm/storage/badger"
	"github.com/ahmed-com/tickeralarm/storage/mongodb"
)

// app is everything one command invocation runs on
type app struct {
	cfg     *config.Config
	loc     *time.Location
	logger  *zap.Logger
	store   storage.Store
	device  *sim.Simulator
	metrics *metrics.InMemoryMetrics
	sched   *scheduler.Scheduler
	closers []func() error
}

func openApp(ctx context.Context, opts *rootOptions) (*app, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "tickerctl")
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	a := &app{cfg: cfg, loc: loc, logger: log, metrics: metrics.NewInMemoryMetrics()}
	a.closers = append(a.closers, func() error {
		// stderr sync fails on some terminals
		_ = log.Sync()
		return nil
	})

	a.store, err = openStore(ctx, cfg)
	if err != nil {
		a.close()
		return nil, err
	}
	a.closers = append(a.closers, a.store.Close)

	var refresher notify.Refresher = notify.NoOp{}
	if cfg.Notify.RedisAddr != "" {
		pub := redisnotify.NewPublisher(
			redisnotify.NewClient(cfg.Notify.RedisAddr, cfg.Notify.RedisPassword),
			cfg.Notify.Channel,
			log.Named("notify"),
		)
		a.closers = append(a.closers, pub.Close)
		refresher = pub
	}

	a.device = sim.New(nil)
	a.sched = scheduler.NewScheduler(scheduler.Config{
		Regen: regen.Config{
			Lookahead:      time.Duration(cfg.Regeneration.Lookahead),
			RefreshMargin:  time.Duration(cfg.Regeneration.RefreshMargin),
			MaxOccurrences: cfg.Regeneration.MaxOccurrences,
		},
		Reconcile: reconcile.Config{
			Lookahead: time.Duration(cfg.Reconcile.Lookahead),
		},
		RefreshSchedule: cfg.Reconcile.RefreshSchedule,
		Location:        loc,
		Logger:          log,
		Metrics:         a.metrics,
		Refresher:       refresher,
	}, a.device, a.store)
	a.closers = append(a.closers, func() error {
		a.sched.Close()
		return nil
	})

	return a, nil
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Driver {
	case config.DriverBadger:
		return badger.NewBadgerStorage(cfg.Storage.Path)
	case config.DriverMemory:
		return badger.NewInMemory()
	case config.DriverMongoDB:
		return mongodb.Connect(ctx, cfg.Storage.MongoURI, cfg.Storage.MongoDatabase)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

// close releases resources in reverse order of acquisition
func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// rearm restores the alarms of enabled tickers the device does not hold.
// The simulated device starts empty on every invocation.
func (a *app) rearm(ctx context.Context) int {
	tickers, err := a.sched.Tickers(ctx)
	if err != nil {
		a.logger.Warn("failed to list tickers", zap.Error(err))
		return 0
	}
	rearmed := 0
	for _, t := range tickers {
		if !t.Enabled {
			continue
		}
		active, err := a.sched.IsAlarmActive(ctx, t.ID)
		if err != nil || active {
			continue
		}
		if err := a.sched.UpdateAlarm(ctx, t); err != nil {
			a.logger.Debug("ticker not rearmed", zap.String("ticker_id", t.ID.String()), zap.Error(err))
			continue
		}
		rearmed++
	}
	return rearmed
}
