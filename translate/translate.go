// Package translate turns tickers into device alarm configurations.
package translate

import (
	"time"

	"github.com/google/uuid"
	"github.com/samber/mo"

	"github.com/ahmed-com/tickeralarm"
	"github.com/ahmed-com/tickeralarm/device"
	"github.com/ahmed-com/tickeralarm/recurrence"
)

// Metadata keys set on every configuration
const (
	MetaTickerID = "ticker_id"
	MetaLabel    = "label"
)

// DefaultHorizon bounds the first search for the next occurrence of a
// composite schedule translated directly
const DefaultHorizon = 366 * 24 * time.Hour

// fallbackHorizon covers the longest gap between occurrences of any valid
// rule: leap days can be eight years apart
const fallbackHorizon = 9 * 366 * 24 * time.Hour

// SoundResolver maps a sound name to a playable asset
type SoundResolver interface {
	Resolve(name string) (string, bool)
}

// SoundResolverFunc adapts a function to SoundResolver
type SoundResolverFunc func(name string) (string, bool)

func (f SoundResolverFunc) Resolve(name string) (string, bool) { return f(name) }

// KnownSounds resolves exactly the given names to themselves
func KnownSounds(names ...string) SoundResolver {
	known := make(map[string]bool, len(names))
	for _, n := range names {
		known[n] = true
	}
	return SoundResolverFunc(func(name string) (string, bool) {
		return name, known[name]
	})
}

// Translator builds device configurations. The zero value resolves no sounds
// and reads the system clock.
type Translator struct {
	Sounds  SoundResolver
	Horizon time.Duration
	Clock   tickeralarm.Clock
}

// New creates a translator resolving sounds through sounds
func New(sounds SoundResolver) *Translator {
	return &Translator{Sounds: sounds, Horizon: DefaultHorizon, Clock: tickeralarm.SystemClock}
}

// Build maps ticker into the configuration of the alarm identified by
// occurrenceID. Stop acts on occurrenceID; the secondary control acts on the
// ticker itself. None is returned only when the ticker has no schedule, or
// for a composite rule that fails validation and never fires.
func (tr *Translator) Build(t *tickeralarm.Ticker, occurrenceID uuid.UUID) mo.Option[device.Configuration] {
	if t.Schedule == nil {
		return mo.None[device.Configuration]()
	}

	schedule, ok := tr.schedule(t.Schedule).Get()
	if !ok {
		return mo.None[device.Configuration]()
	}

	cfg := device.Configuration{
		Schedule: &schedule,
		Presentation: device.Presentation{
			Alert: device.AlertPresentation{
				Title:      title(t),
				StopButton: device.Button{Text: "Stop", Symbol: "stop.circle"},
			},
			TintColor: t.Presentation.TintColor,
			Icon:      t.Presentation.Icon,
		},
		StopIntent: device.Intent{Action: device.ActionStop, AlarmID: occurrenceID},
		Sound:      tr.sound(t.Sound),
		Metadata: map[string]string{
			MetaTickerID: t.ID.String(),
			MetaLabel:    t.Label,
		},
	}

	if t.Countdown != nil {
		cfg.Countdown = &device.Countdown{PreAlert: t.Countdown.PreAlert, PostAlert: t.Countdown.PostAlert}
		cfg.Presentation.Countdown = &device.CountdownPresentation{
			Title:       title(t),
			PauseButton: device.Button{Text: "Pause", Symbol: "pause.circle"},
		}
		cfg.Presentation.Paused = &device.PausedPresentation{
			Title:        "Paused",
			ResumeButton: device.Button{Text: "Resume", Symbol: "play.circle"},
		}
	}

	switch {
	case t.Countdown != nil && t.Countdown.PostAlert > 0:
		cfg.SecondaryIntent = &device.Intent{Action: device.ActionRepeat, AlarmID: t.ID}
		cfg.Presentation.Alert.SecondaryButton = &device.Button{Text: "Repeat", Symbol: "repeat.circle"}
	case t.Presentation.Secondary == tickeralarm.SecondaryOpenApp:
		cfg.SecondaryIntent = &device.Intent{Action: device.ActionOpenApp, AlarmID: t.ID}
		cfg.Presentation.Alert.SecondaryButton = &device.Button{Text: "Open", Symbol: "arrow.up.forward.app"}
	}

	return mo.Some(cfg)
}

func (tr *Translator) schedule(rule recurrence.Rule) mo.Option[device.Schedule] {
	switch r := rule.(type) {
	case recurrence.OneTime:
		return mo.Some(device.FixedAt(r.At))
	case recurrence.Daily:
		return mo.Some(device.RelativeAt(r.Time.Hour, r.Time.Minute))
	}

	// Composite schedules have no native form; target the next occurrence
	clock, horizon := tr.Clock, tr.Horizon
	if clock == nil {
		clock = tickeralarm.SystemClock
	}
	if horizon <= 0 {
		horizon = DefaultHorizon
	}
	now := clock()
	next, ok := recurrence.Next(rule, now, horizon)
	if !ok && horizon < fallbackHorizon {
		next, ok = recurrence.Next(rule, now.Add(horizon), fallbackHorizon)
	}
	if !ok {
		return mo.None[device.Schedule]()
	}
	return mo.Some(device.FixedAt(next))
}

func (tr *Translator) sound(name string) string {
	if name == "" || tr.Sounds == nil {
		return device.DefaultSound
	}
	if asset, ok := tr.Sounds.Resolve(name); ok && asset != "" {
		return asset
	}
	return device.DefaultSound
}

func title(t *tickeralarm.Ticker) string {
	if t.Label == "" {
		return "Alarm"
	}
	return t.Label
}
