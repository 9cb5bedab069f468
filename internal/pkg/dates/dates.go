// Package dates holds calendar helpers shared by the schedule services.
// A calendar date is always represented as midnight UTC.
package dates

import "time"

const Layout = "2006-01-02"

const Day = 24 * time.Hour

func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Truncate returns the calendar date of t as seen in t's own location.
func Truncate(t time.Time) time.Time {
	return Date(t.Year(), t.Month(), t.Day())
}

// LocalDate returns the calendar date of the instant t in loc.
func LocalDate(t time.Time, loc *time.Location) time.Time {
	return Truncate(t.In(loc))
}

// At builds the absolute instant of dt + offset in loc.
func At(dt time.Time, offset time.Duration, loc *time.Location) time.Time {
	return time.Date(dt.Year(), dt.Month(), dt.Day(), 0, 0, 0, 0, loc).Add(offset)
}

func MonthStart(t time.Time) time.Time {
	return Date(t.Year(), t.Month(), 1)
}

func MonthEnd(t time.Time) time.Time {
	return MonthStart(t).AddDate(0, 1, -1)
}

// Range lists every date in [from, to], inclusive.
func Range(from, to time.Time) []time.Time {
	from, to = Truncate(from), Truncate(to)
	var out []time.Time
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}

func Parse(s string) (time.Time, error) {
	return time.Parse(Layout, s)
}

func Format(t time.Time) string {
	return t.Format(Layout)
}

// Overlap returns the length of the intersection of [aStart, aEnd) and [bStart, bEnd).
func Overlap(aStart, aEnd, bStart, bEnd time.Time) time.Duration {
	start := aStart
	if bStart.After(start) {
		start = bStart
	}
	end := aEnd
	if bEnd.Before(end) {
		end = bEnd
	}
	if !end.After(start) {
		return 0
	}
	return end.Sub(start)
}
