package timesheet

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmlabs-hris/timetable-core/internal/domain/timesheet"
	"github.com/cmlabs-hris/timetable-core/internal/domain/workerday"
	"github.com/cmlabs-hris/timetable-core/internal/pkg/dates"
)

func hours(h float64) decimal.Decimal { return decimal.NewFromFloat(h) }

func shiftItem(dt time.Time, fromHour, length int, day, night float64) timesheet.Item {
	start := dt.Add(time.Duration(fromHour) * time.Hour)
	end := start.Add(time.Duration(length) * time.Hour)
	return timesheet.Item{
		Dt:            dt,
		DayType:       workerday.TypeWorkday,
		DttmWorkStart: &start,
		DttmWorkEnd:   &end,
		DayHours:      hours(day),
		NightHours:    hours(night),
	}
}

func assertHours(t *testing.T, want float64, got decimal.Decimal) {
	t.Helper()
	assert.True(t, got.Equal(hours(want)), "want %v hours, got %s", want, got)
}

func TestBuffer_AddKeepsDateOrder(t *testing.T) {
	b := NewBuffer()
	d1, d2 := dates.Date(2024, 3, 1), dates.Date(2024, 3, 2)
	b.Add(d2, shiftItem(d2, 8, 8, 8, 0), false)
	b.Add(d1, shiftItem(d1, 8, 8, 8, 0), false)
	b.Add(d1, shiftItem(d1, 18, 2, 2, 0), false)

	items := b.Items()
	require.Len(t, items, 3)
	assert.True(t, items[0].Dt.Equal(d1))
	assert.True(t, items[1].Dt.Equal(d1))
	assert.True(t, items[2].Dt.Equal(d2))
	assertHours(t, 18, b.Total())
}

func TestBuffer_AddMergesIntoLastItem(t *testing.T) {
	b := NewBuffer()
	dt := dates.Date(2024, 3, 1)
	b.Add(dt, shiftItem(dt, 8, 4, 4, 0), true)
	b.Add(dt, shiftItem(dt, 20, 3, 1, 2), true)

	items := b.Items()
	require.Len(t, items, 1)
	assertHours(t, 5, items[0].DayHours)
	assertHours(t, 2, items[0].NightHours)
	assert.True(t, items[0].DttmWorkEnd.Equal(dt.Add(15*time.Hour)), "end moves by the merged hours")
}

func TestBuffer_SubtractHoursPeelsFromTheEnd(t *testing.T) {
	b := NewBuffer()
	d1, d2 := dates.Date(2024, 3, 1), dates.Date(2024, 3, 2)
	b.Add(d1, shiftItem(d1, 8, 10, 10, 0), false)
	b.Add(d2, shiftItem(d2, 8, 4, 4, 0), false)

	peeled := b.SubtractHours(hours(6), FieldTotal, nil, nil)
	require.Len(t, peeled, 2)
	assert.True(t, peeled[0].Dt.Equal(d2))
	assertHours(t, 4, peeled[0].Total())
	assert.True(t, peeled[1].Dt.Equal(d1))
	assertHours(t, 2, peeled[1].Total())

	rest := b.Items()
	require.Len(t, rest, 1, "the fully peeled date is dropped")
	assertHours(t, 8, rest[0].Total())
	assert.True(t, rest[0].DttmWorkEnd.Equal(d1.Add(16*time.Hour)))
	assert.True(t, peeled[1].DttmWorkStart.Equal(d1.Add(16*time.Hour)), "the peeled part covers the vacated range")
	assert.True(t, peeled[1].DttmWorkEnd.Equal(d1.Add(18*time.Hour)))
}

func TestBuffer_SubtractHoursByFieldAndFilter(t *testing.T) {
	b := NewBuffer()
	d1, d2 := dates.Date(2024, 3, 1), dates.Date(2024, 3, 2)
	b.Add(d1, shiftItem(d1, 18, 12, 4, 8), false)
	b.Add(d2, timesheet.Item{DayType: workerday.TypeVacation, DayHours: hours(8)}, false)

	night := b.SubtractHours(hours(5), FieldNight, movable, nil)
	require.Len(t, night, 1)
	assertHours(t, 5, night[0].NightHours)
	assert.True(t, night[0].DayHours.IsZero())

	skipped := b.SubtractHours(hours(20), FieldDay, movable, &d2)
	assert.Empty(t, skipped, "dayoffs are never moved")
	assertHours(t, 15, b.Total())
}

func TestBuffer_PopAndRemove(t *testing.T) {
	b := NewBuffer()
	dt := dates.Date(2024, 3, 1)
	b.Add(dt, shiftItem(dt, 8, 2, 2, 0), false)
	b.Add(dt, shiftItem(dt, 12, 3, 3, 0), false)

	b.Remove(dt, 0)
	require.Len(t, b.Items(), 1)
	assertHours(t, 3, b.Total())

	popped := b.Pop(dt)
	assert.Len(t, popped, 1)
	assert.Empty(t, b.Items())
	assert.Nil(t, b.Pop(dt))
}
