package recurrence

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday,
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
}

// Parse reads the short textual rule form used by the command line:
//
//	once 2025-11-07T09:00
//	daily 09:00
//	weekdays 09:00 mon,wed,fri
//	biweekly 07:30 tue
//	hourly 3
//	every 45m | every 2h | every 3d | every 1w
//	monthly 15 08:00 | monthly first 08:00 | monthly last 08:00
//	monthly first-mon 08:00 | monthly last-fri 18:00
//	yearly 02-29 08:00
//
// Dates are interpreted in loc.
func Parse(s string, loc *time.Location) (Rule, error) {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(s)))
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty rule")
	}
	if loc == nil {
		loc = time.UTC
	}

	args := fields[1:]
	switch fields[0] {
	case "once":
		if len(args) != 1 {
			return nil, fmt.Errorf("usage: once YYYY-MM-DDTHH:MM")
		}
		at, err := time.ParseInLocation("2006-01-02t15:04", args[0], loc)
		if err != nil {
			return nil, fmt.Errorf("invalid date %q: %w", args[0], err)
		}
		return OneTime{At: at}, nil
	case "daily":
		if len(args) != 1 {
			return nil, fmt.Errorf("usage: daily HH:MM")
		}
		tod, err := ParseTimeOfDay(args[0])
		if err != nil {
			return nil, err
		}
		return Daily{Time: tod}, nil
	case "weekdays", "biweekly":
		if len(args) != 2 {
			return nil, fmt.Errorf("usage: %s HH:MM day[,day...]", fields[0])
		}
		tod, err := ParseTimeOfDay(args[0])
		if err != nil {
			return nil, err
		}
		days, err := parseDays(args[1])
		if err != nil {
			return nil, err
		}
		if fields[0] == "biweekly" {
			return Biweekly{Time: tod, Days: days}, nil
		}
		return WeekdaySet{Time: tod, Days: days}, nil
	case "hourly":
		if len(args) != 1 {
			return nil, fmt.Errorf("usage: hourly N")
		}
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return nil, fmt.Errorf("invalid interval %q: %w", args[0], err)
		}
		return HourlyEvery{N: n}, nil
	case "every":
		if len(args) != 1 || len(args[0]) < 2 {
			return nil, fmt.Errorf("usage: every N(m|h|d|w)")
		}
		spec := args[0]
		n, err := strconv.Atoi(spec[:len(spec)-1])
		if err != nil {
			return nil, fmt.Errorf("invalid interval %q: %w", spec, err)
		}
		units := map[byte]Unit{'m': Minutes, 'h': Hours, 'd': Days, 'w': Weeks}
		unit, ok := units[spec[len(spec)-1]]
		if !ok {
			return nil, fmt.Errorf("unknown unit in %q", spec)
		}
		return Every{N: n, Unit: unit}, nil
	case "monthly":
		if len(args) != 2 {
			return nil, fmt.Errorf("usage: monthly DAY HH:MM")
		}
		day, err := parseDayRule(args[0])
		if err != nil {
			return nil, err
		}
		tod, err := ParseTimeOfDay(args[1])
		if err != nil {
			return nil, err
		}
		return Monthly{Day: day, Time: tod}, nil
	case "yearly":
		if len(args) != 2 {
			return nil, fmt.Errorf("usage: yearly MM-DD HH:MM")
		}
		var month, day int
		if _, err := fmt.Sscanf(args[0], "%d-%d", &month, &day); err != nil {
			return nil, fmt.Errorf("invalid date %q: %w", args[0], err)
		}
		tod, err := ParseTimeOfDay(args[1])
		if err != nil {
			return nil, err
		}
		return Yearly{Month: time.Month(month), Day: day, Time: tod}, nil
	}
	return nil, fmt.Errorf("unknown rule kind %q", fields[0])
}

func parseDays(s string) ([]time.Weekday, error) {
	var days []time.Weekday
	for _, name := range strings.Split(s, ",") {
		d, ok := weekdayNames[name]
		if !ok {
			return nil, fmt.Errorf("unknown weekday %q", name)
		}
		days = append(days, d)
	}
	return days, nil
}

func parseDayRule(s string) (DayRule, error) {
	switch s {
	case "first":
		return FirstOfMonth(), nil
	case "last":
		return LastOfMonth(), nil
	}
	if prefix, name, ok := strings.Cut(s, "-"); ok {
		w, known := weekdayNames[name]
		if !known {
			return DayRule{}, fmt.Errorf("unknown weekday %q", name)
		}
		switch prefix {
		case "first":
			return FirstWeekday(w), nil
		case "last":
			return LastWeekday(w), nil
		}
		return DayRule{}, fmt.Errorf("unknown day rule %q", s)
	}
	d, err := strconv.Atoi(s)
	if err != nil {
		return DayRule{}, fmt.Errorf("invalid day %q: %w", s, err)
	}
	return FixedDay(d), nil
}

// Describe renders rule in the form accepted by Parse
func Describe(rule Rule) string {
	switch r := rule.(type) {
	case OneTime:
		return "once " + r.At.Format("2006-01-02T15:04")
	case Daily:
		return "daily " + r.Time.String()
	case WeekdaySet:
		return "weekdays " + r.Time.String() + " " + formatDays(r.Days)
	case Biweekly:
		return "biweekly " + r.Time.String() + " " + formatDays(r.Days)
	case HourlyEvery:
		return fmt.Sprintf("hourly %d", r.N)
	case Every:
		if r.Unit == "" {
			return fmt.Sprintf("every %d", r.N)
		}
		return fmt.Sprintf("every %d%c", r.N, r.Unit[0])
	case Monthly:
		return "monthly " + formatDayRule(r.Day) + " " + r.Time.String()
	case Yearly:
		return fmt.Sprintf("yearly %02d-%02d %s", int(r.Month), r.Day, r.Time)
	case nil:
		return "none"
	}
	return string(rule.Kind())
}

func formatDays(days []time.Weekday) string {
	names := make([]string, 0, len(days))
	for _, d := range days {
		names = append(names, strings.ToLower(d.String()[:3]))
	}
	return strings.Join(names, ",")
}

func formatDayRule(r DayRule) string {
	short := strings.ToLower(r.Weekday.String()[:3])
	switch r.Kind {
	case DayFirstOfMonth:
		return "first"
	case DayLastOfMonth:
		return "last"
	case DayFirstWeekday:
		return "first-" + short
	case DayLastWeekday:
		return "last-" + short
	}
	return strconv.Itoa(r.Day)
}
