package timesheet

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/cmlabs-hris/timetable-core/internal/domain/calendar"
	"github.com/cmlabs-hris/timetable-core/internal/domain/staff"
	"github.com/cmlabs-hris/timetable-core/internal/pkg/dates"
)

const reducedNormHours = 8

// NightDuration returns how much of [start, end) falls into the nightly
// window of local days in loc. nightEnd <= nightStart means the window
// crosses midnight.
func NightDuration(start, end time.Time, loc *time.Location, nightStart, nightEnd time.Duration) time.Duration {
	var total time.Duration
	last := dates.LocalDate(end, loc)
	for day := dates.LocalDate(start, loc).AddDate(0, 0, -1); !day.After(last); day = day.AddDate(0, 0, 1) {
		from := dates.At(day, nightStart, loc)
		to := dates.At(day, nightEnd, loc)
		if nightEnd <= nightStart {
			to = dates.At(day.AddDate(0, 0, 1), nightEnd, loc)
		}
		total += dates.Overlap(start, end, from, to)
	}
	return total
}

// SplitHours divides paid hours into day and night hours in proportion to
// the night share of the shift range.
func SplitHours(workHours, length, night time.Duration) (day, nightHours decimal.Decimal) {
	total := Hours(workHours)
	if length <= 0 || night <= 0 {
		return total, decimal.Zero
	}
	if night > length {
		night = length
	}
	nightHours = total.Mul(decimal.NewFromInt(int64(night))).Div(decimal.NewFromInt(int64(length))).Round(2)
	return total.Sub(nightHours), nightHours
}

// Hours converts a duration to hours rounded to the minute.
func Hours(d time.Duration) decimal.Decimal {
	return decimal.NewFromInt(int64(d / time.Minute)).Div(decimal.NewFromInt(60)).Round(2)
}

// MonthlyNorm returns the position override when set. Otherwise it sums
// the production calendar norm of the month, removes a day's norm for
// every norm-reducing dayoff and scales by the employment rate (percent).
func MonthlyNorm(month time.Time, days []calendar.ProductionDay, position *staff.Position, rate float64, reducing int) decimal.Decimal {
	if position != nil && position.MonthlyNormHours != nil {
		return decimal.NewFromFloat(*position.MonthlyNormHours)
	}

	known := make(map[time.Time]calendar.DayType, len(days))
	for _, d := range days {
		known[dates.Truncate(d.Dt)] = d.Type
	}
	norm := decimal.Zero
	for _, dt := range dates.Range(dates.MonthStart(month), dates.MonthEnd(month)) {
		t, ok := known[dt]
		if !ok {
			t = calendar.DefaultDay(dt)
		}
		norm = norm.Add(decimal.NewFromFloat(t.NormHours()))
	}

	norm = norm.Sub(decimal.NewFromInt(int64(reducing * reducedNormHours)))
	if norm.IsNegative() {
		norm = decimal.Zero
	}
	if rate <= 0 {
		rate = 100
	}
	return norm.Mul(decimal.NewFromFloat(rate)).Div(decimal.NewFromInt(100)).Round(2)
}
