package timesheet

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cmlabs-hris/timetable-core/internal/domain/timesheet"
	"github.com/cmlabs-hris/timetable-core/internal/pkg/dates"
)

// Field selects which hours SubtractHours peels.
type Field int

const (
	FieldTotal Field = iota
	FieldDay
	FieldNight
)

// Buffer holds timesheet items grouped by date. Dates are truncated to
// UTC midnight and kept in ascending order.
type Buffer struct {
	dates []time.Time
	items map[time.Time][]timesheet.Item
}

func NewBuffer() *Buffer {
	return &Buffer{items: make(map[time.Time][]timesheet.Item)}
}

// Add appends item on dt. With merge set and an item already on dt, the
// hours are summed into the last one; merging two time-ranged items moves
// the end of the existing one by the added hours.
func (b *Buffer) Add(dt time.Time, item timesheet.Item, merge bool) {
	dt = dates.Truncate(dt)
	item.Dt = dt
	existing, ok := b.items[dt]
	if !ok {
		i, _ := slices.BinarySearchFunc(b.dates, dt, time.Time.Compare)
		b.dates = slices.Insert(b.dates, i, dt)
	}
	if merge && len(existing) > 0 {
		last := &existing[len(existing)-1]
		if !isDayoff(*last) && !isDayoff(item) && last.DttmWorkEnd != nil {
			end := last.DttmWorkEnd.Add(hoursDuration(item.Total()))
			last.DttmWorkEnd = &end
		}
		last.DayHours = last.DayHours.Add(item.DayHours)
		last.NightHours = last.NightHours.Add(item.NightHours)
		return
	}
	b.items[dt] = append(existing, item.Clone())
}

// Pop removes and returns every item on dt.
func (b *Buffer) Pop(dt time.Time) []timesheet.Item {
	dt = dates.Truncate(dt)
	items, ok := b.items[dt]
	if !ok {
		return nil
	}
	delete(b.items, dt)
	b.dates = slices.DeleteFunc(b.dates, dt.Equal)
	return items
}

// Remove drops the i-th item on dt.
func (b *Buffer) Remove(dt time.Time, i int) {
	dt = dates.Truncate(dt)
	items := b.items[dt]
	if i < 0 || i >= len(items) {
		return
	}
	items = slices.Delete(items, i, i+1)
	if len(items) == 0 {
		b.Pop(dt)
		return
	}
	b.items[dt] = items
}

// Filter decides whether SubtractHours may take hours from an item.
type Filter func(timesheet.Item) bool

// SubtractHours peels up to hours of field from the buffer, walking dates
// from the latest back (or only dt when given) and items from the last. A
// partly peeled time-ranged item ends earlier; the peeled copy covers the
// vacated range. The peeled copies are returned in walk order.
func (b *Buffer) SubtractHours(hours decimal.Decimal, field Field, filter Filter, dt *time.Time) []timesheet.Item {
	var out []timesheet.Item
	walk := slices.Clone(b.dates)
	if dt != nil {
		walk = []time.Time{dates.Truncate(*dt)}
	}

	for i := len(walk) - 1; i >= 0 && hours.IsPositive(); i-- {
		day := walk[i]
		items := b.items[day]
		for j := len(items) - 1; j >= 0 && hours.IsPositive(); j-- {
			item := &items[j]
			if filter != nil && !filter(*item) {
				continue
			}
			available := fieldHours(*item, field)
			if !available.IsPositive() {
				continue
			}
			take := decimal.Min(available, hours)
			peeled := peel(item, take, field)
			hours = hours.Sub(take)
			out = append(out, peeled)
		}
		kept := items[:0]
		for _, item := range items {
			if item.Total().IsPositive() || isDayoff(item) {
				kept = append(kept, item)
			}
		}
		if len(kept) == 0 {
			b.Pop(day)
		} else {
			b.items[day] = kept
		}
	}
	return out
}

// Items returns every item in date order.
func (b *Buffer) Items() []timesheet.Item {
	var out []timesheet.Item
	for _, dt := range b.dates {
		for _, item := range b.items[dt] {
			out = append(out, item.Clone())
		}
	}
	return out
}

func (b *Buffer) Total() decimal.Decimal {
	return timesheet.Sum(b.Items())
}

// peel moves take hours of field out of item and returns them as a copy.
func peel(item *timesheet.Item, take decimal.Decimal, field Field) timesheet.Item {
	out := item.Clone()
	switch field {
	case FieldNight:
		out.DayHours, out.NightHours = decimal.Zero, take
		item.NightHours = item.NightHours.Sub(take)
	case FieldDay:
		out.DayHours, out.NightHours = take, decimal.Zero
		item.DayHours = item.DayHours.Sub(take)
	default:
		night := decimal.Min(item.NightHours, take)
		out.NightHours, out.DayHours = night, take.Sub(night)
		item.NightHours = item.NightHours.Sub(night)
		item.DayHours = item.DayHours.Sub(take.Sub(night))
	}

	if !isDayoff(*item) && item.DttmWorkEnd != nil {
		end := *item.DttmWorkEnd
		cut := end.Add(-hoursDuration(take))
		if item.DttmWorkStart != nil && cut.Before(*item.DttmWorkStart) {
			cut = *item.DttmWorkStart
		}
		start := cut
		item.DttmWorkEnd = &cut
		out.DttmWorkStart = &start
		out.DttmWorkEnd = &end
	}
	return out
}

func fieldHours(item timesheet.Item, field Field) decimal.Decimal {
	switch field {
	case FieldDay:
		return item.DayHours
	case FieldNight:
		return item.NightHours
	default:
		return item.Total()
	}
}

func isDayoff(item timesheet.Item) bool {
	return item.DayType.IsDayoff()
}

func hoursDuration(h decimal.Decimal) time.Duration {
	return time.Duration(h.Mul(decimal.NewFromInt(int64(time.Hour))).IntPart())
}
