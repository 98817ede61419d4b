package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecPreservesEveryKind(t *testing.T) {
	anchor := utc(2025, time.November, 1, 8, 0)
	rules := []Rule{
		OneTime{At: utc(2025, time.December, 24, 18, 0)},
		Daily{Time: At(6, 45)},
		WeekdaySet{Time: At(9, 0), Days: []time.Weekday{time.Monday, time.Friday}},
		HourlyEvery{N: 4, Anchor: anchor},
		Every{N: 90, Unit: Minutes},
		Biweekly{Time: At(7, 0), Days: []time.Weekday{time.Sunday}, Anchor: anchor},
		Monthly{Day: LastWeekday(time.Sunday), Time: At(10, 0)},
		Monthly{Day: FixedDay(15), Time: At(10, 0)},
		Yearly{Month: time.February, Day: 29, Time: At(8, 0)},
	}

	for _, rule := range rules {
		t.Run(string(rule.Kind()), func(t *testing.T) {
			data, err := Marshal(rule)
			require.NoError(t, err)

			decoded, err := Unmarshal(data)
			require.NoError(t, err)
			require.Equal(t, rule.Kind(), decoded.Kind())

			from := utc(2025, time.November, 1, 0, 0)
			assert.Equal(t, Expand(rule, from, 400*day, 50), Expand(decoded, from, 400*day, 50))
		})
	}
}

func TestCodecNilRule(t *testing.T) {
	data, err := Marshal(nil)
	require.NoError(t, err)
	assert.Nil(t, data)

	rule, err := Unmarshal(nil)
	require.NoError(t, err)
	assert.Nil(t, rule)
}

func TestUnmarshalRejectsUnknownKind(t *testing.T) {
	_, err := Unmarshal([]byte(`{"kind":"fortnightly"}`))
	assert.Error(t, err)

	_, err = Unmarshal([]byte(`{"kind":"monthly","time":{"hour":1,"minute":0}}`))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		rule    Rule
		wantErr bool
	}{
		{"nil", nil, true},
		{"daily", Daily{Time: At(9, 30)}, false},
		{"bad hour", Daily{Time: At(24, 0)}, true},
		{"empty weekday set", WeekdaySet{Time: At(9, 0)}, true},
		{"zero stride", HourlyEvery{N: 0}, true},
		{"unknown unit", Every{N: 1, Unit: "fortnights"}, true},
		{"day 32", Monthly{Day: FixedDay(32), Time: At(9, 0)}, true},
		{"day 31", Monthly{Day: FixedDay(31), Time: At(9, 0)}, false},
		{"month 13", Yearly{Month: 13, Day: 1, Time: At(9, 0)}, true},
		{"leap day", Yearly{Month: time.February, Day: 29, Time: At(9, 0)}, false},
		{"zero date", OneTime{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.rule)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
