package recurrence

import (
	"encoding/json"
	"fmt"
	"time"
)

// encoded is the flat wire form of a Rule
type encoded struct {
	Kind    Kind           `json:"kind"`
	At      *time.Time     `json:"at,omitempty"`
	Time    *TimeOfDay     `json:"time,omitempty"`
	Days    []time.Weekday `json:"days,omitempty"`
	N       int            `json:"n,omitempty"`
	Unit    Unit           `json:"unit,omitempty"`
	Anchor  *time.Time     `json:"anchor,omitempty"`
	DayRule *DayRule       `json:"day_rule,omitempty"`
	Month   time.Month     `json:"month,omitempty"`
	Day     int            `json:"day,omitempty"`
}

// Marshal serializes a rule to JSON. A nil rule encodes as nil.
func Marshal(rule Rule) ([]byte, error) {
	if rule == nil {
		return nil, nil
	}

	e := encoded{Kind: rule.Kind()}
	switch r := rule.(type) {
	case OneTime:
		e.At = &r.At
	case Daily:
		e.Time = &r.Time
	case WeekdaySet:
		e.Time = &r.Time
		e.Days = r.Days
	case HourlyEvery:
		e.N = r.N
		e.Anchor = optionalTime(r.Anchor)
	case Every:
		e.N = r.N
		e.Unit = r.Unit
		e.Anchor = optionalTime(r.Anchor)
	case Biweekly:
		e.Time = &r.Time
		e.Days = r.Days
		e.Anchor = optionalTime(r.Anchor)
	case Monthly:
		e.Time = &r.Time
		e.DayRule = &r.Day
	case Yearly:
		e.Time = &r.Time
		e.Month = r.Month
		e.Day = r.Day
	default:
		return nil, fmt.Errorf("unsupported rule %T", rule)
	}

	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rule: %w", err)
	}
	return data, nil
}

// Unmarshal decodes a rule produced by Marshal. Empty input yields a nil rule.
func Unmarshal(data []byte) (Rule, error) {
	if len(data) == 0 {
		return nil, nil
	}

	var e encoded
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to unmarshal rule: %w", err)
	}

	tod := TimeOfDay{}
	if e.Time != nil {
		tod = *e.Time
	}
	anchor := time.Time{}
	if e.Anchor != nil {
		anchor = *e.Anchor
	}

	switch e.Kind {
	case KindOneTime:
		if e.At == nil {
			return nil, fmt.Errorf("one-time rule without date")
		}
		return OneTime{At: *e.At}, nil
	case KindDaily:
		return Daily{Time: tod}, nil
	case KindWeekdays:
		return WeekdaySet{Time: tod, Days: e.Days}, nil
	case KindHourly:
		return HourlyEvery{N: e.N, Anchor: anchor}, nil
	case KindEvery:
		return Every{N: e.N, Unit: e.Unit, Anchor: anchor}, nil
	case KindBiweekly:
		return Biweekly{Time: tod, Days: e.Days, Anchor: anchor}, nil
	case KindMonthly:
		if e.DayRule == nil {
			return nil, fmt.Errorf("monthly rule without day rule")
		}
		return Monthly{Day: *e.DayRule, Time: tod}, nil
	case KindYearly:
		return Yearly{Month: e.Month, Day: e.Day, Time: tod}, nil
	}
	return nil, fmt.Errorf("unknown rule kind %q", e.Kind)
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
