package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teambition/rrule-go"
)

// The RRULE mapping must describe the same instants the expander produces.
func TestToRRuleAgreesWithExpand(t *testing.T) {
	start := utc(2025, time.November, 1, 0, 0)
	end := start.Add(62 * day)

	rules := []Rule{
		Daily{Time: At(9, 0)},
		WeekdaySet{Time: At(9, 0), Days: []time.Weekday{time.Monday, time.Wednesday, time.Friday}},
		Biweekly{Time: At(7, 30), Days: []time.Weekday{time.Tuesday}, Anchor: start},
		Monthly{Day: FixedDay(31), Time: At(8, 0)},
		Monthly{Day: LastOfMonth(), Time: At(8, 0)},
		Monthly{Day: FirstWeekday(time.Monday), Time: At(8, 0)},
		Monthly{Day: LastWeekday(time.Friday), Time: At(18, 0)},
	}

	for _, rule := range rules {
		t.Run(Describe(rule), func(t *testing.T) {
			opt, ok := ToRRule(rule, start)
			require.True(t, ok)

			r, err := rrule.NewRRule(*opt)
			require.NoError(t, err)

			assert.Equal(t, r.Between(start, end, false), Expand(rule, start, end.Sub(start), 0))
		})
	}
}

func TestToRRuleFrequencies(t *testing.T) {
	dtstart := utc(2025, time.November, 1, 9, 0)

	tests := []struct {
		rule     Rule
		freq     rrule.Frequency
		interval int
	}{
		{HourlyEvery{N: 3}, rrule.HOURLY, 3},
		{Every{N: 15, Unit: Minutes}, rrule.MINUTELY, 15},
		{Every{N: 2, Unit: Days}, rrule.DAILY, 2},
		{Every{N: 3, Unit: Weeks}, rrule.WEEKLY, 3},
		{Biweekly{Time: At(9, 0), Days: []time.Weekday{time.Monday}}, rrule.WEEKLY, 2},
		{Yearly{Month: time.March, Day: 1, Time: At(9, 0)}, rrule.YEARLY, 1},
	}

	for _, tt := range tests {
		opt, ok := ToRRule(tt.rule, dtstart)
		require.True(t, ok, "%T", tt.rule)
		assert.Equal(t, tt.freq, opt.Freq, "%T", tt.rule)
		assert.Equal(t, tt.interval, opt.Interval, "%T", tt.rule)
	}

	_, ok := ToRRule(OneTime{At: dtstart}, dtstart)
	assert.False(t, ok)
}
