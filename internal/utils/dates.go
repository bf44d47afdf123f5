package utils

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"
)

// Today returns the calendar date of now in loc. A nil loc means UTC.
func Today(now time.Time, loc *time.Location) civil.Date {
	if loc == nil {
		loc = time.UTC
	}
	return civil.DateOf(now.In(loc))
}

// DayOf is the calendar day t falls on in the zone t carries. The engine
// reads every timestamp this way; loaders move timestamps into the business
// zone before handing them over.
func DayOf(t time.Time) civil.Date {
	return civil.DateOf(t)
}

// DateOfPtr converts an optional timestamp to a calendar date in loc, or in
// the timestamp's own zone when loc is nil. ok is false when t is nil or zero.
func DateOfPtr(t *time.Time, loc *time.Location) (d civil.Date, ok bool) {
	if t == nil || t.IsZero() {
		return civil.Date{}, false
	}
	if loc == nil {
		return DayOf(*t), true
	}
	return civil.DateOf(t.In(loc)), true
}

// MonthStart returns the first day of d's month.
func MonthStart(d civil.Date) civil.Date {
	return civil.Date{Year: d.Year, Month: d.Month, Day: 1}
}

// MonthEnd returns the last day of d's month.
func MonthEnd(d civil.Date) civil.Date {
	// day 0 of the next month normalizes to the last day of this one
	t := time.Date(d.Year, d.Month+1, 0, 0, 0, 0, 0, time.UTC)
	return civil.DateOf(t)
}

// AddMonths moves d by n calendar months, clamping the day to the target month length.
func AddMonths(d civil.Date, n int) civil.Date {
	first := time.Date(d.Year, d.Month+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	target := civil.DateOf(first)
	last := MonthEnd(target)
	if d.Day > last.Day {
		target.Day = last.Day
	} else {
		target.Day = d.Day
	}
	return target
}

// MonthKey formats d's month as YYYY-MM.
func MonthKey(d civil.Date) string {
	return fmt.Sprintf("%04d-%02d", d.Year, int(d.Month))
}

// MonthEnds lists the month ends from from's month through to's month. The final
// element is to itself rather than its month end, so a series never extends past to.
func MonthEnds(from, to civil.Date) []civil.Date {
	if to.Before(from) {
		return nil
	}
	var out []civil.Date
	for m := MonthStart(from); !m.After(to); m = AddMonths(m, 1) {
		end := MonthEnd(m)
		if end.After(to) {
			end = to
		}
		out = append(out, end)
	}
	return out
}

// ParseDateParam parses an optional YYYY-MM-DD value, returning fallback when empty.
func ParseDateParam(value string, fallback civil.Date) (civil.Date, error) {
	if value == "" {
		return fallback, nil
	}
	d, err := civil.ParseDate(value)
	if err != nil {
		return civil.Date{}, fmt.Errorf("invalid date %q: %w", value, err)
	}
	return d, nil
}
