package recurrence

import (
	"fmt"
	"time"
)

// Kind identifies a recurrence variant
type Kind string

const (
	KindOneTime  Kind = "one_time"
	KindDaily    Kind = "daily"
	KindWeekdays Kind = "weekdays"
	KindHourly   Kind = "hourly"
	KindEvery    Kind = "every"
	KindBiweekly Kind = "biweekly"
	KindMonthly  Kind = "monthly"
	KindYearly   Kind = "yearly"
)

// Rule describes when a ticker fires, independent of any concrete date.
//
// The set of implementations is closed. A new kind is added by declaring it
// here and extending the switches in IsSimple, Expand, Validate, the codec and
// ToRRule.
type Rule interface {
	Kind() Kind
	isRule()
}

// TimeOfDay is a wall-clock time without a date
type TimeOfDay struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

// At returns the time of day h:m
func At(hour, minute int) TimeOfDay {
	return TimeOfDay{Hour: hour, Minute: minute}
}

// On combines the time of day with a calendar date in loc
func (t TimeOfDay) On(year int, month time.Month, day int, loc *time.Location) time.Time {
	return time.Date(year, month, day, t.Hour, t.Minute, 0, 0, loc)
}

// Valid reports whether the hour and minute are in range
func (t TimeOfDay) Valid() bool {
	return t.Hour >= 0 && t.Hour < 24 && t.Minute >= 0 && t.Minute < 60
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// ParseTimeOfDay parses "HH:MM"
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parsed, err := time.Parse("15:04", s)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return At(parsed.Hour(), parsed.Minute()), nil
}

// Unit is the stride unit of an Every rule
type Unit string

const (
	Minutes Unit = "minutes"
	Hours   Unit = "hours"
	Days    Unit = "days"
	Weeks   Unit = "weeks"
)

// DayRuleKind selects how a Monthly rule picks its day
type DayRuleKind string

const (
	DayFixed        DayRuleKind = "fixed"
	DayFirstOfMonth DayRuleKind = "first_of_month"
	DayLastOfMonth  DayRuleKind = "last_of_month"
	DayFirstWeekday DayRuleKind = "first_weekday"
	DayLastWeekday  DayRuleKind = "last_weekday"
)

// DayRule resolves to a concrete day number for a given month
type DayRule struct {
	Kind    DayRuleKind  `json:"kind"`
	Day     int          `json:"day,omitempty"`
	Weekday time.Weekday `json:"weekday,omitempty"`
}

func FixedDay(day int) DayRule { return DayRule{Kind: DayFixed, Day: day} }
func FirstOfMonth() DayRule    { return DayRule{Kind: DayFirstOfMonth} }
func LastOfMonth() DayRule     { return DayRule{Kind: DayLastOfMonth} }

func FirstWeekday(w time.Weekday) DayRule { return DayRule{Kind: DayFirstWeekday, Weekday: w} }
func LastWeekday(w time.Weekday) DayRule  { return DayRule{Kind: DayLastWeekday, Weekday: w} }

// Resolve returns the day of month the rule selects in year/month.
// The second result is false when the month has no such day, e.g. Fixed(31)
// in April.
func (r DayRule) Resolve(year int, month time.Month) (int, bool) {
	last := daysIn(year, month)
	switch r.Kind {
	case DayFixed:
		if r.Day < 1 || r.Day > last {
			return 0, false
		}
		return r.Day, true
	case DayFirstOfMonth:
		return 1, true
	case DayLastOfMonth:
		return last, true
	case DayFirstWeekday:
		first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).Weekday()
		return 1 + (int(r.Weekday)-int(first)+7)%7, true
	case DayLastWeekday:
		lastWeekday := time.Date(year, month, last, 0, 0, 0, 0, time.UTC).Weekday()
		return last - (int(lastWeekday)-int(r.Weekday)+7)%7, true
	}
	return 0, false
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// OneTime fires once at At
type OneTime struct {
	At time.Time
}

// Daily fires every day at Time
type Daily struct {
	Time TimeOfDay
}

// WeekdaySet fires at Time on each listed day of the week
type WeekdaySet struct {
	Time TimeOfDay
	Days []time.Weekday
}

// HourlyEvery fires every N hours, phased on Anchor when set
type HourlyEvery struct {
	N      int
	Anchor time.Time
}

// Every fires every N units, phased on Anchor when set
type Every struct {
	N      int
	Unit   Unit
	Anchor time.Time
}

// Biweekly fires at Time on the listed days of every other week. Weeks run
// Sunday through Saturday; the week containing Anchor is an active week.
type Biweekly struct {
	Time   TimeOfDay
	Days   []time.Weekday
	Anchor time.Time
}

// Monthly fires once a month on the day selected by Day
type Monthly struct {
	Day  DayRule
	Time TimeOfDay
}

// Yearly fires once a year on Month/Day. Years where the date does not exist
// are skipped.
type Yearly struct {
	Month time.Month
	Day   int
	Time  TimeOfDay
}

func (OneTime) Kind() Kind     { return KindOneTime }
func (Daily) Kind() Kind       { return KindDaily }
func (WeekdaySet) Kind() Kind  { return KindWeekdays }
func (HourlyEvery) Kind() Kind { return KindHourly }
func (Every) Kind() Kind       { return KindEvery }
func (Biweekly) Kind() Kind    { return KindBiweekly }
func (Monthly) Kind() Kind     { return KindMonthly }
func (Yearly) Kind() Kind      { return KindYearly }

func (OneTime) isRule()     {}
func (Daily) isRule()       {}
func (WeekdaySet) isRule()  {}
func (HourlyEvery) isRule() {}
func (Every) isRule()       {}
func (Biweekly) isRule()    {}
func (Monthly) isRule()     {}
func (Yearly) isRule()      {}

// IsSimple reports whether the device scheduler can hold the rule as a single
// persistent alarm. Every other rule is composite and is materialized as a
// rolling set of one-time alarms.
func IsSimple(rule Rule) bool {
	switch rule.(type) {
	case OneTime, Daily:
		return true
	case WeekdaySet, HourlyEvery, Every, Biweekly, Monthly, Yearly:
		return false
	}
	return false
}

// WithAnchor returns rule with its phase anchor set to anchor if the rule is
// anchored and has none yet. Other rules are returned unchanged.
func WithAnchor(rule Rule, anchor time.Time) Rule {
	switch r := rule.(type) {
	case HourlyEvery:
		if r.Anchor.IsZero() {
			r.Anchor = anchor
		}
		return r
	case Every:
		if r.Anchor.IsZero() {
			r.Anchor = anchor
		}
		return r
	case Biweekly:
		if r.Anchor.IsZero() {
			r.Anchor = anchor
		}
		return r
	}
	return rule
}

// Validate checks the field ranges of rule
func Validate(rule Rule) error {
	switch r := rule.(type) {
	case nil:
		return fmt.Errorf("no recurrence")
	case OneTime:
		if r.At.IsZero() {
			return fmt.Errorf("one-time rule has no date")
		}
	case Daily:
		return validateTime(r.Time)
	case WeekdaySet:
		if err := validateDays(r.Days); err != nil {
			return err
		}
		return validateTime(r.Time)
	case HourlyEvery:
		if r.N < 1 {
			return fmt.Errorf("hourly interval must be positive, got %d", r.N)
		}
	case Every:
		if r.N < 1 {
			return fmt.Errorf("interval must be positive, got %d", r.N)
		}
		switch r.Unit {
		case Minutes, Hours, Days, Weeks:
		default:
			return fmt.Errorf("unknown unit %q", r.Unit)
		}
	case Biweekly:
		if err := validateDays(r.Days); err != nil {
			return err
		}
		return validateTime(r.Time)
	case Monthly:
		switch r.Day.Kind {
		case DayFixed:
			if r.Day.Day < 1 || r.Day.Day > 31 {
				return fmt.Errorf("day of month must be 1-31, got %d", r.Day.Day)
			}
		case DayFirstOfMonth, DayLastOfMonth:
		case DayFirstWeekday, DayLastWeekday:
			if r.Day.Weekday < time.Sunday || r.Day.Weekday > time.Saturday {
				return fmt.Errorf("invalid weekday %d", r.Day.Weekday)
			}
		default:
			return fmt.Errorf("unknown day rule %q", r.Day.Kind)
		}
		return validateTime(r.Time)
	case Yearly:
		if r.Month < time.January || r.Month > time.December {
			return fmt.Errorf("month must be 1-12, got %d", r.Month)
		}
		if r.Day < 1 || r.Day > 31 {
			return fmt.Errorf("day of month must be 1-31, got %d", r.Day)
		}
		return validateTime(r.Time)
	default:
		return fmt.Errorf("unsupported rule %T", rule)
	}
	return nil
}

func validateTime(t TimeOfDay) error {
	if !t.Valid() {
		return fmt.Errorf("invalid time of day %02d:%02d", t.Hour, t.Minute)
	}
	return nil
}

func validateDays(days []time.Weekday) error {
	if len(days) == 0 {
		return fmt.Errorf("no days selected")
	}
	for _, d := range days {
		if d < time.Sunday || d > time.Saturday {
			return fmt.Errorf("invalid weekday %d", d)
		}
	}
	return nil
}
