package recurrence

import (
	"time"

	"github.com/teambition/rrule-go"
)

var rruleWeekdays = [...]rrule.Weekday{
	time.Sunday:    rrule.SU,
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
}

// ToRRule maps rule onto RFC 5545 recurrence options starting at dtstart.
// One-time rules have no recurrence and return false.
func ToRRule(rule Rule, dtstart time.Time) (*rrule.ROption, bool) {
	opt := &rrule.ROption{Dtstart: dtstart, Interval: 1}

	switch r := rule.(type) {
	case Daily:
		opt.Freq = rrule.DAILY
		atTime(opt, r.Time)
	case WeekdaySet:
		opt.Freq = rrule.WEEKLY
		opt.Byweekday = toRRuleDays(r.Days)
		atTime(opt, r.Time)
	case Biweekly:
		opt.Freq = rrule.WEEKLY
		opt.Interval = 2
		opt.Wkst = rrule.SU
		opt.Byweekday = toRRuleDays(r.Days)
		atTime(opt, r.Time)
	case HourlyEvery:
		opt.Freq = rrule.HOURLY
		opt.Interval = r.N
	case Every:
		opt.Interval = r.N
		switch r.Unit {
		case Minutes:
			opt.Freq = rrule.MINUTELY
		case Hours:
			opt.Freq = rrule.HOURLY
		case Days:
			opt.Freq = rrule.DAILY
		case Weeks:
			opt.Freq = rrule.WEEKLY
		default:
			return nil, false
		}
	case Monthly:
		opt.Freq = rrule.MONTHLY
		atTime(opt, r.Time)
		switch r.Day.Kind {
		case DayFixed:
			opt.Bymonthday = []int{r.Day.Day}
		case DayFirstOfMonth:
			opt.Bymonthday = []int{1}
		case DayLastOfMonth:
			opt.Bymonthday = []int{-1}
		case DayFirstWeekday:
			w := rruleWeekdays[r.Day.Weekday]
			opt.Byweekday = []rrule.Weekday{w.Nth(1)}
		case DayLastWeekday:
			w := rruleWeekdays[r.Day.Weekday]
			opt.Byweekday = []rrule.Weekday{w.Nth(-1)}
		default:
			return nil, false
		}
	case Yearly:
		opt.Freq = rrule.YEARLY
		opt.Bymonth = []int{int(r.Month)}
		opt.Bymonthday = []int{r.Day}
		atTime(opt, r.Time)
	default:
		return nil, false
	}
	return opt, true
}

func atTime(opt *rrule.ROption, t TimeOfDay) {
	opt.Byhour = []int{t.Hour}
	opt.Byminute = []int{t.Minute}
	opt.Bysecond = []int{0}
}

func toRRuleDays(days []time.Weekday) []rrule.Weekday {
	out := make([]rrule.Weekday, 0, len(days))
	for _, d := range days {
		out = append(out, rruleWeekdays[d])
	}
	return out
}
