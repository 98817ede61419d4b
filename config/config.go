package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Storage drivers
const (
	DriverBadger  = "badger"
	DriverMemory  = "memory"
	DriverMongoDB = "mongodb"
)

// Duration is a time.Duration that reads from YAML as "48h", "90m" or "366d"
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// ParseDuration accepts time.ParseDuration syntax plus a whole-day "Nd" form
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return d, nil
}

// Config holds every tunable of the scheduler and its collaborators
type Config struct {
	Regeneration struct {
		Lookahead      Duration `yaml:"lookahead"`
		RefreshMargin  Duration `yaml:"refresh_margin"`
		MaxOccurrences int      `yaml:"max_occurrences"`
	} `yaml:"regeneration"`

	Reconcile struct {
		Lookahead       Duration `yaml:"lookahead"`
		RefreshSchedule string   `yaml:"refresh_schedule"`
	} `yaml:"reconcile"`

	TimeZone string `yaml:"time_zone"`

	Storage struct {
		Driver        string `yaml:"driver"`
		Path          string `yaml:"path"`
		MongoURI      string `yaml:"mongo_uri"`
		MongoDatabase string `yaml:"mongo_database"`
	} `yaml:"storage"`

	Notify struct {
		RedisAddr     string `yaml:"redis_addr"`
		RedisPassword string `yaml:"redis_password"`
		Channel       string `yaml:"channel"`
	} `yaml:"notify"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Default returns the built-in configuration
func Default() *Config {
	cfg := &Config{}
	cfg.Regeneration.Lookahead = Duration(48 * time.Hour)
	cfg.Regeneration.RefreshMargin = Duration(24 * time.Hour)
	cfg.Regeneration.MaxOccurrences = 64
	cfg.Reconcile.Lookahead = Duration(366 * 24 * time.Hour)
	cfg.Reconcile.RefreshSchedule = "@every 6h"
	cfg.TimeZone = "Local"
	cfg.Storage.Driver = DriverBadger
	cfg.Storage.Path = "tickeralarm.db"
	cfg.Storage.MongoDatabase = "tickeralarm"
	cfg.Notify.Channel = "tickeralarm:refresh"
	cfg.Log.Level = "info"
	cfg.Log.Format = "json"
	return cfg
}

// Load reads path over the defaults, applies TICKER_* environment overrides
// and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var errs []error
	duration := func(key string, dst *Duration) {
		if v := os.Getenv(key); v != "" {
			d, err := ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = Duration(d)
		}
	}
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	duration("TICKER_LOOKAHEAD", &c.Regeneration.Lookahead)
	duration("TICKER_REFRESH_MARGIN", &c.Regeneration.RefreshMargin)
	duration("TICKER_RECONCILE_LOOKAHEAD", &c.Reconcile.Lookahead)
	if v := os.Getenv("TICKER_MAX_OCCURRENCES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("TICKER_MAX_OCCURRENCES: %w", err))
		} else {
			c.Regeneration.MaxOccurrences = n
		}
	}
	str("TICKER_REFRESH_SCHEDULE", &c.Reconcile.RefreshSchedule)
	str("TICKER_TIMEZONE", &c.TimeZone)
	str("TICKER_STORAGE_DRIVER", &c.Storage.Driver)
	str("TICKER_STORAGE_PATH", &c.Storage.Path)
	str("TICKER_MONGO_URI", &c.Storage.MongoURI)
	str("TICKER_MONGO_DATABASE", &c.Storage.MongoDatabase)
	str("TICKER_REDIS_ADDR", &c.Notify.RedisAddr)
	str("TICKER_REDIS_PASSWORD", &c.Notify.RedisPassword)
	str("TICKER_REDIS_CHANNEL", &c.Notify.Channel)
	str("TICKER_LOG_LEVEL", &c.Log.Level)
	str("TICKER_LOG_FORMAT", &c.Log.Format)

	return errors.Join(errs...)
}

// Validate checks the configuration for values the services cannot run with
func (c *Config) Validate() error {
	var errs []error

	if c.Regeneration.Lookahead <= 0 {
		errs = append(errs, errors.New("regeneration.lookahead must be positive"))
	}
	if c.Regeneration.RefreshMargin < 0 || c.Regeneration.RefreshMargin > c.Regeneration.Lookahead {
		errs = append(errs, errors.New("regeneration.refresh_margin must be between 0 and the lookahead"))
	}
	if c.Regeneration.MaxOccurrences < 0 {
		errs = append(errs, errors.New("regeneration.max_occurrences must not be negative"))
	}
	if c.Reconcile.Lookahead <= 0 {
		errs = append(errs, errors.New("reconcile.lookahead must be positive"))
	}
	if c.Reconcile.RefreshSchedule != "" {
		if _, err := cron.ParseStandard(c.Reconcile.RefreshSchedule); err != nil {
			errs = append(errs, fmt.Errorf("reconcile.refresh_schedule: %w", err))
		}
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, fmt.Errorf("time_zone: %w", err))
	}

	switch c.Storage.Driver {
	case DriverBadger:
		if c.Storage.Path == "" {
			errs = append(errs, errors.New("storage.path is required for the badger driver"))
		}
	case DriverMongoDB:
		if c.Storage.MongoURI == "" {
			errs = append(errs, errors.New("storage.mongo_uri is required for the mongodb driver"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}

	return errors.Join(errs...)
}

// Location resolves TimeZone
func (c *Config) Location() (*time.Location, error) {
	if c.TimeZone == "" || c.TimeZone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.TimeZone)
}
