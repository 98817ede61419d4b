package recurrence

import (
	"sort"
	"time"
)

// MaxOccurrenceIterations bounds the calendar walks: days for daily and
// weekday rules, months for monthly rules, years for yearly rules. Windows
// longer than that many units are cut short. Stride rules are bounded by the
// window alone.
const MaxOccurrenceIterations = 10000

// Expand returns the concrete firing times of rule inside
// [start, start+window), strictly ascending. maxCount <= 0 means no limit.
//
// Calendar arithmetic happens in start's location. Expand does not look at
// the wall clock: callers pick start to get future-only results. Calendar
// rules visit at most MaxOccurrenceIterations days, months or years.
func Expand(rule Rule, start time.Time, window time.Duration, maxCount int) []time.Time {
	if rule == nil || window <= 0 {
		return nil
	}
	end := start.Add(window)

	var out []time.Time
	switch r := rule.(type) {
	case OneTime:
		if inWindow(r.At, start, end) {
			out = []time.Time{r.At}
		}
	case Daily:
		out = expandDays(start, end, r.Time, func(time.Time) bool { return true })
	case WeekdaySet:
		days := daySet(r.Days)
		out = expandDays(start, end, r.Time, func(day time.Time) bool {
			return days[day.Weekday()]
		})
	case Biweekly:
		days := daySet(r.Days)
		anchor := r.Anchor
		if anchor.IsZero() {
			anchor = start
		}
		origin := weekStart(anchor.In(start.Location()))
		out = expandDays(start, end, r.Time, func(day time.Time) bool {
			if !days[day.Weekday()] {
				return false
			}
			weeks := civilDaysBetween(origin, weekStart(day)) / 7
			return weeks%2 == 0
		})
	case HourlyEvery:
		out = expandStride(start, end, r.N, Hours, r.Anchor, maxCount)
	case Every:
		out = expandStride(start, end, r.N, r.Unit, r.Anchor, maxCount)
	case Monthly:
		out = expandMonthly(r, start, end)
	case Yearly:
		out = expandYearly(r, start, end)
	}

	return normalize(out, maxCount)
}

// Next returns the first occurrence of rule in [from, from+horizon)
func Next(rule Rule, from time.Time, horizon time.Duration) (time.Time, bool) {
	times := Expand(rule, from, horizon, 1)
	if len(times) == 0 {
		return time.Time{}, false
	}
	return times[0], true
}

func inWindow(t, start, end time.Time) bool {
	return !t.Before(start) && t.Before(end)
}

// expandDays visits every calendar day touching [start, end) and combines the
// days accepted by keep with tod.
func expandDays(start, end time.Time, tod TimeOfDay, keep func(day time.Time) bool) []time.Time {
	loc := start.Location()
	y, m, d := start.Date()

	var out []time.Time
	for i := 0; i < MaxOccurrenceIterations; i++ {
		day := time.Date(y, m, d+i, 0, 0, 0, 0, loc)
		if !day.Before(end) {
			break
		}
		if !keep(day) {
			continue
		}
		t := tod.On(day.Year(), day.Month(), day.Day(), loc)
		if inWindow(t, start, end) {
			out = append(out, t)
		}
	}
	return out
}

// expandStride walks anchor + k*stride for k >= 1. Without an anchor the
// window start is the origin. An anchor earlier than the window keeps its
// phase: the walk starts at the first stride point inside the window.
func expandStride(start, end time.Time, n int, unit Unit, anchor time.Time, maxCount int) []time.Time {
	if n < 1 {
		return nil
	}
	loc := start.Location()

	origin := start
	if !anchor.IsZero() {
		origin = anchor.In(loc)
	}
	advance := strider(origin, n, unit)
	if advance == nil {
		return nil
	}

	k := 1
	if origin.Before(start) {
		k = firstStrideAtOrAfter(origin, start, n, unit, advance)
	}

	var out []time.Time
	// advance is strictly increasing for n >= 1, so end terminates the walk
	for ; ; k++ {
		t := advance(k)
		if !t.Before(end) {
			break
		}
		if !t.Before(start) {
			out = append(out, t)
		}
		if maxCount > 0 && len(out) >= maxCount {
			break
		}
	}
	return out
}

// strider returns a function giving origin advanced by k strides. Minute and
// hour strides are elapsed-time arithmetic; day and week strides keep the
// origin's wall-clock time of day.
func strider(origin time.Time, n int, unit Unit) func(k int) time.Time {
	switch unit {
	case Minutes:
		step := time.Duration(n) * time.Minute
		return func(k int) time.Time { return origin.Add(time.Duration(k) * step) }
	case Hours:
		step := time.Duration(n) * time.Hour
		return func(k int) time.Time { return origin.Add(time.Duration(k) * step) }
	case Days, Weeks:
		days := n
		if unit == Weeks {
			days = 7 * n
		}
		y, m, d := origin.Date()
		hh, mm, ss := origin.Clock()
		loc := origin.Location()
		return func(k int) time.Time {
			return time.Date(y, m, d+k*days, hh, mm, ss, origin.Nanosecond(), loc)
		}
	}
	return nil
}

// firstStrideAtOrAfter returns the smallest k >= 1 with advance(k) >= start
func firstStrideAtOrAfter(origin, start time.Time, n int, unit Unit, advance func(int) time.Time) int {
	var k int
	switch unit {
	case Minutes, Hours:
		step := time.Duration(n) * time.Minute
		if unit == Hours {
			step = time.Duration(n) * time.Hour
		}
		gap := start.Sub(origin)
		k = int(gap / step)
	case Days, Weeks:
		days := n
		if unit == Weeks {
			days = 7 * n
		}
		k = civilDaysBetween(origin, start) / days
	}
	if k < 1 {
		k = 1
	}
	for k > 1 && !advance(k-1).Before(start) {
		k--
	}
	for advance(k).Before(start) {
		k++
	}
	return k
}

func expandMonthly(r Monthly, start, end time.Time) []time.Time {
	loc := start.Location()
	y, m, _ := start.Date()

	var out []time.Time
	for i := 0; i < MaxOccurrenceIterations; i++ {
		first := time.Date(y, m+time.Month(i), 1, 0, 0, 0, 0, loc)
		if !first.Before(end) {
			break
		}
		day, ok := r.Day.Resolve(first.Year(), first.Month())
		if !ok {
			continue
		}
		t := r.Time.On(first.Year(), first.Month(), day, loc)
		if inWindow(t, start, end) {
			out = append(out, t)
		}
	}
	return out
}

func expandYearly(r Yearly, start, end time.Time) []time.Time {
	loc := start.Location()

	var out []time.Time
	for y := start.Year(); y < start.Year()+MaxOccurrenceIterations; y++ {
		if !time.Date(y, time.January, 1, 0, 0, 0, 0, loc).Before(end) {
			break
		}
		if r.Day < 1 || r.Day > daysIn(y, r.Month) {
			continue
		}
		t := r.Time.On(y, r.Month, r.Day, loc)
		if inWindow(t, start, end) {
			out = append(out, t)
		}
	}
	return out
}

func daySet(days []time.Weekday) map[time.Weekday]bool {
	set := make(map[time.Weekday]bool, len(days))
	for _, d := range days {
		set[d] = true
	}
	return set
}

// weekStart returns midnight of the Sunday starting t's week
func weekStart(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d-int(t.Weekday()), 0, 0, 0, 0, t.Location())
}

// civilDaysBetween counts calendar days from a to b, ignoring DST shifts
func civilDaysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	from := time.Date(ay, am, ad, 12, 0, 0, 0, time.UTC)
	to := time.Date(by, bm, bd, 12, 0, 0, 0, time.UTC)
	days := int(to.Sub(from).Hours() / 24)
	return days
}

// normalize sorts, drops duplicates and truncates to maxCount
func normalize(times []time.Time, maxCount int) []time.Time {
	if len(times) == 0 {
		return nil
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	out := times[:1]
	for _, t := range times[1:] {
		if t.Equal(out[len(out)-1]) {
			continue
		}
		out = append(out, t)
	}
	if maxCount > 0 && len(out) > maxCount {
		out = out[:maxCount]
	}
	return out
}
