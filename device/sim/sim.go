// Package sim is an in-process device alarm scheduler used by the command
// line and by tests.
package sim

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ahmed-com/tickeralarm/device"
)

// Call records one scheduler invocation
type Call struct {
	Op string
	ID uuid.UUID
}

type entry struct {
	alarm  device.Alarm
	config device.Configuration
}

// Simulator implements device.Scheduler in memory
type Simulator struct {
	mu sync.Mutex

	clock  func() time.Time
	auth   device.AuthorizationState
	grant  bool
	limit  int
	alarms map[uuid.UUID]*entry
	calls  []Call

	failScheduleAfter int
	failScheduleErr   error
	failAlarmsErr     error
}

// New creates an authorized simulator reading time from clock
func New(clock func() time.Time) *Simulator {
	if clock == nil {
		clock = time.Now
	}
	return &Simulator{
		clock:             clock,
		auth:              device.AuthorizationAuthorized,
		grant:             true,
		alarms:            make(map[uuid.UUID]*entry),
		failScheduleAfter: -1,
	}
}

// SetAuthorization forces the authorization state. grant controls what a
// later RequestAuthorization resolves a not-determined state to.
func (s *Simulator) SetAuthorization(state device.AuthorizationState, grant bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auth = state
	s.grant = grant
}

// SetLimit caps the number of live alarms; zero means unlimited
func (s *Simulator) SetLimit(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limit = n
}

// FailScheduleAfter lets the next n Schedule calls succeed and fails the
// one after with err. The fault fires once.
func (s *Simulator) FailScheduleAfter(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failScheduleAfter = n
	s.failScheduleErr = err
}

// FailAlarms makes Alarms return err until cleared with nil
func (s *Simulator) FailAlarms(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAlarmsErr = err
}

// Inject places an alarm directly, bypassing authorization and faults.
// Used to model alarms left behind by an earlier process.
func (s *Simulator) Inject(id uuid.UUID, config device.Configuration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alarms[id] = &entry{
		alarm:  device.Alarm{ID: id, State: device.StateScheduled, Schedule: config.Schedule, Countdown: config.Countdown},
		config: config,
	}
}

// Remove drops an alarm without recording a call, as if the user deleted
// it outside the application
func (s *Simulator) Remove(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.alarms, id)
}

// Configuration returns the configuration an alarm was scheduled with
func (s *Simulator) Configuration(id uuid.UUID) (device.Configuration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.alarms[id]
	if !ok {
		return device.Configuration{}, false
	}
	return e.config, true
}

// Calls returns the recorded invocations in order
func (s *Simulator) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// ResetCalls clears the recorded invocations
func (s *Simulator) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

// Count returns how many calls of op were recorded
func (s *Simulator) Count(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Fire moves an alarm into the alerting state, or into the countdown state
// first when it carries a pre-alert countdown
func (s *Simulator) Fire(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.alarms[id]
	if !ok {
		return device.ErrAlarmNotFound
	}
	if e.alarm.State == device.StateScheduled && e.alarm.Countdown != nil && e.alarm.Countdown.PreAlert > 0 {
		e.alarm.State = device.StateCountdown
		return nil
	}
	e.alarm.State = device.StateAlerting
	return nil
}

func (s *Simulator) Authorization(ctx context.Context) (device.AuthorizationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.auth, nil
}

func (s *Simulator) RequestAuthorization(ctx context.Context) (device.AuthorizationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("request_authorization", uuid.Nil)
	if s.auth == device.AuthorizationNotDetermined {
		if s.grant {
			s.auth = device.AuthorizationAuthorized
		} else {
			s.auth = device.AuthorizationDenied
		}
	}
	return s.auth, nil
}

func (s *Simulator) Schedule(ctx context.Context, id uuid.UUID, config device.Configuration) (device.Alarm, error) {
	if err := ctx.Err(); err != nil {
		return device.Alarm{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("schedule", id)

	if s.failScheduleAfter == 0 {
		s.failScheduleAfter = -1
		return device.Alarm{}, s.failScheduleErr
	}
	if s.failScheduleAfter > 0 {
		s.failScheduleAfter--
	}

	if s.auth != device.AuthorizationAuthorized {
		return device.Alarm{}, device.ErrUnauthorized
	}
	if config.Schedule == nil && config.Countdown == nil {
		return device.Alarm{}, fmt.Errorf("alarm %s has neither schedule nor countdown", id)
	}
	if _, exists := s.alarms[id]; exists {
		return device.Alarm{}, device.ErrAlarmExists
	}
	s.expireLocked()
	if s.limit > 0 && len(s.alarms) >= s.limit {
		return device.Alarm{}, device.ErrLimitReached
	}

	alarm := device.Alarm{ID: id, State: device.StateScheduled, Schedule: config.Schedule, Countdown: config.Countdown}
	s.alarms[id] = &entry{alarm: alarm, config: config}
	return alarm, nil
}

func (s *Simulator) Cancel(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("cancel", id)
	if _, ok := s.alarms[id]; !ok {
		return device.ErrAlarmNotFound
	}
	delete(s.alarms, id)
	return nil
}

func (s *Simulator) Pause(ctx context.Context, id uuid.UUID) error {
	return s.transition("pause", id, func(e *entry) error {
		if e.alarm.State != device.StateCountdown {
			return device.ErrInvalidState
		}
		e.alarm.State = device.StatePaused
		return nil
	})
}

func (s *Simulator) Resume(ctx context.Context, id uuid.UUID) error {
	return s.transition("resume", id, func(e *entry) error {
		if e.alarm.State != device.StatePaused {
			return device.ErrInvalidState
		}
		e.alarm.State = device.StateCountdown
		return nil
	})
}

func (s *Simulator) Stop(ctx context.Context, id uuid.UUID) error {
	return s.transition("stop", id, func(e *entry) error {
		if e.alarm.Schedule != nil && e.alarm.Schedule.Relative != nil {
			e.alarm.State = device.StateScheduled
			return nil
		}
		delete(s.alarms, id)
		return nil
	})
}

func (s *Simulator) Countdown(ctx context.Context, id uuid.UUID) error {
	return s.transition("countdown", id, func(e *entry) error {
		if e.alarm.Countdown == nil || e.alarm.Countdown.PostAlert <= 0 {
			return device.ErrInvalidState
		}
		if e.alarm.State != device.StateAlerting {
			return device.ErrInvalidState
		}
		e.alarm.State = device.StateCountdown
		return nil
	})
}

// Alarms returns the live alarms ordered by identity. Fixed alarms whose
// instant has passed without firing are dropped first.
func (s *Simulator) Alarms(ctx context.Context) ([]device.Alarm, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAlarmsErr != nil {
		return nil, s.failAlarmsErr
	}
	s.expireLocked()

	alarms := make([]device.Alarm, 0, len(s.alarms))
	for _, e := range s.alarms {
		alarms = append(alarms, e.alarm)
	}
	sort.Slice(alarms, func(i, j int) bool {
		return alarms[i].ID.String() < alarms[j].ID.String()
	})
	return alarms, nil
}

func (s *Simulator) transition(op string, id uuid.UUID, fn func(*entry) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(op, id)
	e, ok := s.alarms[id]
	if !ok {
		return device.ErrAlarmNotFound
	}
	if err := fn(e); err != nil {
		return fmt.Errorf("%s %s in state %s: %w", op, id, e.alarm.State, err)
	}
	return nil
}

func (s *Simulator) expireLocked() {
	now := s.clock()
	for id, e := range s.alarms {
		if e.alarm.State != device.StateScheduled || e.alarm.Schedule == nil || e.alarm.Schedule.Fixed == nil {
			continue
		}
		if e.alarm.Schedule.Fixed.Before(now) {
			delete(s.alarms, id)
		}
	}
}

func (s *Simulator) record(op string, id uuid.UUID) {
	s.calls = append(s.calls, Call{Op: op, ID: id})
}

var _ device.Scheduler = (*Simulator)(nil)
