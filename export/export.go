// Package export renders tickers as an iCalendar feed so they can be viewed
// in any calendar client.
package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-ical"

	"github.com/ahmed-com/tickeralarm"
	"github.com/ahmed-com/tickeralarm/recurrence"
)

const productID = "-//tickeralarm//tickerctl//EN"

// Horizon bounds the search for a ticker's first occurrence
const Horizon = 366 * 24 * time.Hour

// Calendar builds one VEVENT per enabled ticker that still has an upcoming
// occurrence. Recurring tickers carry an RRULE starting at that occurrence.
func Calendar(tickers []*tickeralarm.Ticker, now time.Time) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropProductID, productID)
	cal.Props.SetText(ical.PropVersion, "2.0")

	for _, t := range tickers {
		if !t.Enabled || t.Schedule == nil {
			continue
		}
		first, ok := recurrence.Next(t.Schedule, now, Horizon)
		if !ok {
			continue
		}
		cal.Children = append(cal.Children, event(t, first, now))
	}
	return cal
}

func event(t *tickeralarm.Ticker, first, now time.Time) *ical.Component {
	ev := ical.NewEvent()
	ev.Props.SetText(ical.PropUID, t.ID.String())
	ev.Props.SetDateTime(ical.PropDateTimeStamp, now.UTC())
	ev.Props.SetDateTime(ical.PropDateTimeStart, first)
	ev.Props.SetText(ical.PropSummary, summary(t))
	ev.Props.SetText(ical.PropDescription, recurrence.Describe(t.Schedule))

	if opt, ok := recurrence.ToRRule(t.Schedule, first); ok {
		// RRULE values are structured; SetText would escape the commas
		prop := ical.NewProp(ical.PropRecurrenceRule)
		prop.Value = opt.RRuleString()
		ev.Props.Set(prop)
	}

	if t.Countdown != nil && t.Countdown.PreAlert > 0 {
		alarm := ical.NewComponent(ical.CompAlarm)
		alarm.Props.SetText(ical.PropAction, "DISPLAY")
		alarm.Props.SetText(ical.PropDescription, summary(t))
		trigger := ical.NewProp(ical.PropTrigger)
		trigger.Value = "-" + icalDuration(t.Countdown.PreAlert)
		alarm.Props.Set(trigger)
		ev.Children = append(ev.Children, alarm)
	}
	return ev.Component
}

// Write encodes cal to w
func Write(w io.Writer, cal *ical.Calendar) error {
	if err := ical.NewEncoder(w).Encode(cal); err != nil {
		return fmt.Errorf("failed to encode calendar: %w", err)
	}
	return nil
}

func summary(t *tickeralarm.Ticker) string {
	if t.Label == "" {
		return "Alarm"
	}
	return t.Label
}

// icalDuration formats d as an RFC 5545 time duration, e.g. PT1H30M
func icalDuration(d time.Duration) string {
	d = d.Round(time.Second)
	var b strings.Builder
	b.WriteString("PT")
	if h := d / time.Hour; h > 0 {
		fmt.Fprintf(&b, "%dH", h)
		d -= h * time.Hour
	}
	if m := d / time.Minute; m > 0 {
		fmt.Fprintf(&b, "%dM", m)
		d -= m * time.Minute
	}
	if s := d / time.Second; s > 0 || b.Len() == 2 {
		fmt.Fprintf(&b, "%dS", s)
	}
	return b.String()
}
