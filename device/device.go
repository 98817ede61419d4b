// Package device describes the platform alarm scheduler the application
// submits concrete alarms to. The scheduler owns its alarms; callers only
// create, cancel, pause, resume, stop and repeat them by identity.
package device

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrAlarmNotFound is returned for operations on an unknown identity.
	// Cancel treats it as success everywhere in this module.
	ErrAlarmNotFound = errors.New("alarm not found")

	// ErrUnauthorized is returned when the user has not granted permission
	ErrUnauthorized = errors.New("alarm scheduling not authorized")

	// ErrAlarmExists is returned when scheduling an identity already in use
	ErrAlarmExists = errors.New("alarm already scheduled")

	// ErrLimitReached is returned when the device refuses more alarms
	ErrLimitReached = errors.New("alarm limit reached")

	// ErrInvalidState is returned for a transition the alarm's state forbids
	ErrInvalidState = errors.New("invalid alarm state for operation")
)

// State is the lifecycle state of a scheduled alarm
type State string

const (
	StateScheduled State = "scheduled"
	StateCountdown State = "countdown"
	StatePaused    State = "paused"
	StateAlerting  State = "alerting"
)

// AuthorizationState reports the user's alarm permission
type AuthorizationState string

const (
	AuthorizationNotDetermined AuthorizationState = "not_determined"
	AuthorizationAuthorized    AuthorizationState = "authorized"
	AuthorizationDenied        AuthorizationState = "denied"
)

// Relative is a recurring time of day, optionally restricted to weekdays.
// An empty Weekdays fires every day.
type Relative struct {
	Hour     int            `json:"hour"`
	Minute   int            `json:"minute"`
	Weekdays []time.Weekday `json:"weekdays,omitempty"`
}

// Schedule is either a fixed instant or a relative time of day. Exactly one
// field is set.
type Schedule struct {
	Fixed    *time.Time `json:"fixed,omitempty"`
	Relative *Relative  `json:"relative,omitempty"`
}

// FixedAt returns a schedule firing once at t
func FixedAt(t time.Time) Schedule {
	return Schedule{Fixed: &t}
}

// RelativeAt returns a schedule firing every day at hour:minute
func RelativeAt(hour, minute int) Schedule {
	return Schedule{Relative: &Relative{Hour: hour, Minute: minute}}
}

// Next returns the firing time at or after now in now's location. A fixed
// schedule whose instant has passed reports false.
func (s Schedule) Next(now time.Time) (time.Time, bool) {
	switch {
	case s.Fixed != nil:
		if s.Fixed.Before(now) {
			return time.Time{}, false
		}
		return *s.Fixed, true
	case s.Relative != nil:
		days := make(map[time.Weekday]bool, len(s.Relative.Weekdays))
		for _, d := range s.Relative.Weekdays {
			days[d] = true
		}
		y, m, d := now.Date()
		for i := 0; i <= 7; i++ {
			candidate := time.Date(y, m, d+i, s.Relative.Hour, s.Relative.Minute, 0, 0, now.Location())
			if candidate.Before(now) {
				continue
			}
			if len(days) == 0 || days[candidate.Weekday()] {
				return candidate, true
			}
		}
	}
	return time.Time{}, false
}

// Countdown configures the countdown phases of an alarm
type Countdown struct {
	PreAlert  time.Duration `json:"pre_alert"`
	PostAlert time.Duration `json:"post_alert"`
}

// Action is what a control button does
type Action string

const (
	ActionStop    Action = "stop"
	ActionRepeat  Action = "repeat_countdown"
	ActionOpenApp Action = "open_app"
)

// Intent binds a control button to the identity it acts on
type Intent struct {
	Action  Action    `json:"action"`
	AlarmID uuid.UUID `json:"alarm_id"`
}

// Button is one presented control
type Button struct {
	Text   string `json:"text"`
	Symbol string `json:"symbol,omitempty"`
}

// AlertPresentation is shown while the alarm is alerting
type AlertPresentation struct {
	Title           string  `json:"title"`
	StopButton      Button  `json:"stop_button"`
	SecondaryButton *Button `json:"secondary_button,omitempty"`
}

// CountdownPresentation is shown during the countdown phase
type CountdownPresentation struct {
	Title       string `json:"title"`
	PauseButton Button `json:"pause_button"`
}

// PausedPresentation is shown while a countdown is paused
type PausedPresentation struct {
	Title        string `json:"title"`
	ResumeButton Button `json:"resume_button"`
}

// Presentation groups the sub-presentations of an alarm. Countdown and Paused
// are set only for alarms that carry a countdown.
type Presentation struct {
	Alert     AlertPresentation      `json:"alert"`
	Countdown *CountdownPresentation `json:"countdown,omitempty"`
	Paused    *PausedPresentation    `json:"paused,omitempty"`
	TintColor string                 `json:"tint_color,omitempty"`
	Icon      string                 `json:"icon,omitempty"`
}

// DefaultSound is the tone used when a named sound cannot be resolved
const DefaultSound = "default"

// Configuration is everything the device needs to schedule one alarm
type Configuration struct {
	Countdown       *Countdown        `json:"countdown,omitempty"`
	Schedule        *Schedule         `json:"schedule,omitempty"`
	Presentation    Presentation      `json:"presentation"`
	StopIntent      Intent            `json:"stop_intent"`
	SecondaryIntent *Intent           `json:"secondary_intent,omitempty"`
	Sound           string            `json:"sound"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// Alarm is the device's own record of a scheduled alarm
type Alarm struct {
	ID        uuid.UUID  `json:"id"`
	State     State      `json:"state"`
	Schedule  *Schedule  `json:"schedule,omitempty"`
	Countdown *Countdown `json:"countdown,omitempty"`
}

// FiringTime returns when the alarm will next fire as seen from now
func (a Alarm) FiringTime(now time.Time) (time.Time, bool) {
	if a.Schedule == nil {
		return time.Time{}, false
	}
	return a.Schedule.Next(now)
}

// Scheduler is the platform alarm scheduler
type Scheduler interface {
	Authorization(ctx context.Context) (AuthorizationState, error)
	RequestAuthorization(ctx context.Context) (AuthorizationState, error)

	Schedule(ctx context.Context, id uuid.UUID, config Configuration) (Alarm, error)
	Cancel(ctx context.Context, id uuid.UUID) error
	Pause(ctx context.Context, id uuid.UUID) error
	Resume(ctx context.Context, id uuid.UUID) error
	Stop(ctx context.Context, id uuid.UUID) error
	Countdown(ctx context.Context, id uuid.UUID) error

	// Alarms returns every alarm the device currently holds
	Alarms(ctx context.Context) ([]Alarm, error)
}

// CancelIgnoringMissing cancels id and treats ErrAlarmNotFound as success
func CancelIgnoringMissing(ctx context.Context, s Scheduler, id uuid.UUID) error {
	if err := s.Cancel(ctx, id); err != nil && !errors.Is(err, ErrAlarmNotFound) {
		return err
	}
	return nil
}
