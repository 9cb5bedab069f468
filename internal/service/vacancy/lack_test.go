package vacancy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/cmlabs-hris/timetable-core/internal/domain/forecast"
	"github.com/cmlabs-hris/timetable-core/internal/domain/workerday"
)

var base = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func clock(h, m int) time.Time {
	return base.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

func TestSliceInterval(t *testing.T) {
	const (
		minLen = 4 * time.Hour
		maxLen = 12 * time.Hour
	)
	tests := []struct {
		name string
		from int
		to   int
		want [][2]int
	}{
		{name: "too short is dropped", from: 9, to: 10, want: nil},
		{name: "short is stretched to min", from: 9, to: 12, want: [][2]int{{9, 13}}},
		{name: "fits", from: 9, to: 21, want: [][2]int{{9, 21}}},
		{name: "remainder long enough", from: 0, to: 17, want: [][2]int{{0, 12}, {12, 17}}},
		{name: "remainder borrows from last piece", from: 0, to: 15, want: [][2]int{{0, 11}, {11, 15}}},
		{name: "tiny remainder dropped", from: 0, to: 13, want: [][2]int{{0, 12}}},
		{name: "two full pieces", from: 0, to: 24, want: [][2]int{{0, 12}, {12, 24}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SliceInterval(Interval{Start: clock(tt.from, 0), End: clock(tt.to, 0)}, minLen, maxLen)
			var hours [][2]int
			for _, in := range got {
				hours = append(hours, [2]int{int(in.Start.Sub(base).Hours()), int(in.End.Sub(base).Hours())})
			}
			assert.Equal(t, tt.want, hours)
		})
	}
}

func TestStackedRuns(t *testing.T) {
	tests := []struct {
		name     string
		values   []float64
		lackMin  float64
		mergeGap int
		want     [][]Run
	}{
		{
			name:   "flat lack stacks",
			values: []float64{2, 2, 2},
			want: [][]Run{
				{{From: 0, To: 3, Mean: 2}},
				{{From: 0, To: 3, Mean: 1}},
			},
		},
		{
			name:   "peak opens a shorter layer",
			values: []float64{1, 2, 1},
			want: [][]Run{
				{{From: 0, To: 3, Mean: 4.0 / 3}},
				{{From: 1, To: 2, Mean: 1}},
			},
		},
		{
			name:    "weak lack dropped",
			values:  []float64{0.2, 0.2, 0, 0},
			lackMin: 0.5,
			want:    nil,
		},
		{
			name:     "close runs merge",
			values:   []float64{1, 1, 0, 1, 1},
			mergeGap: 2,
			want:     [][]Run{{{From: 0, To: 5, Mean: 1}}},
		},
		{
			name:     "distant runs stay apart",
			values:   []float64{1, 0, 0, 1},
			mergeGap: 2,
			want:     [][]Run{{{From: 0, To: 1, Mean: 1}, {From: 3, To: 4, Mean: 1}}},
		},
		{
			name:   "no lack",
			values: []float64{0, -1, -2},
			want:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StackedRuns(tt.values, tt.lackMin, tt.mergeGap)
			assert.Equal(t, len(tt.want), len(got))
			for i := range min(len(got), len(tt.want)) {
				assert.Equal(t, len(tt.want[i]), len(got[i]), "layer %d", i)
				for j := range min(len(got[i]), len(tt.want[i])) {
					assert.Equal(t, tt.want[i][j].From, got[i][j].From)
					assert.Equal(t, tt.want[i][j].To, got[i][j].To)
					assert.InDelta(t, tt.want[i][j].Mean, got[i][j].Mean, 1e-9)
				}
			}
		})
	}
}

func TestTable_NeedMinusCoverage(t *testing.T) {
	table := NewTable(clock(9, 0), clock(12, 0), 30*time.Minute)
	assert.Equal(t, 6, table.Len())
	assert.Equal(t, clock(12, 0), table.End())

	var items []forecast.PeriodClients
	for i := range table.Len() {
		items = append(items, forecast.PeriodClients{OperationTypeID: 1, DttmForecast: table.At(i), Value: 4, Type: forecast.LongForecast})
	}
	table.AddNeed(items, map[int64]float64{1: 2}, 0.5)
	assert.InDelta(t, 3, table.Mean(clock(9, 0), clock(12, 0)), 1e-9)

	start, end := clock(9, 15), clock(10, 0)
	table.Cover([]workerday.WorkerDay{{
		DttmWorkStart: &start,
		DttmWorkEnd:   &end,
		Details:       []workerday.Detail{{WorkTypeID: 5, WorkPart: 1}, {WorkTypeID: 6, WorkPart: 0.5}},
	}}, map[int64]bool{5: true})
	assert.InDelta(t, 2.5, table.Values[0], 1e-9)
	assert.InDelta(t, 2, table.Values[1], 1e-9)
	assert.InDelta(t, 3, table.Values[2], 1e-9)

	clone := table.Clone()
	clone.Values[0] = 0
	assert.InDelta(t, 2.5, table.Values[0], 1e-9)
}

func TestClamp(t *testing.T) {
	in := Interval{Start: clock(6, 0), End: clock(23, 0)}
	got, ok := Clamp(in, clock(8, 0), clock(22, 0))
	assert.True(t, ok)
	assert.Equal(t, Interval{Start: clock(8, 0), End: clock(22, 0)}, got)

	_, ok = Clamp(Interval{Start: clock(23, 0), End: clock(23, 30)}, clock(8, 0), clock(22, 0))
	assert.False(t, ok)
}
