package vacancy

import (
	"math"
	"time"

	"github.com/cmlabs-hris/timetable-core/internal/domain/forecast"
	"github.com/cmlabs-hris/timetable-core/internal/domain/workerday"
	"github.com/cmlabs-hris/timetable-core/internal/pkg/dates"
)

// Table holds one value per forecast period of a shop work type, starting
// at Start. For lack tables a positive value means understaffed.
type Table struct {
	Start  time.Time
	Step   time.Duration
	Values []float64
}

func NewTable(from, to time.Time, step time.Duration) *Table {
	n := 0
	if to.After(from) {
		n = int((to.Sub(from) + step - 1) / step)
	}
	return &Table{Start: from, Step: step, Values: make([]float64, n)}
}

func (t *Table) Len() int { return len(t.Values) }

func (t *Table) End() time.Time { return t.At(len(t.Values)) }

// At returns the start of period i.
func (t *Table) At(i int) time.Time {
	return t.Start.Add(time.Duration(i) * t.Step)
}

func (t *Table) Clone() *Table {
	c := *t
	c.Values = append([]float64(nil), t.Values...)
	return &c
}

// AddNeed adds forecast demand converted to workers: value divided by the
// operation's speed coefficient, inflated by absenteeism.
func (t *Table) AddNeed(items []forecast.PeriodClients, speed map[int64]float64, absenteeism float64) {
	for _, item := range items {
		i := int(item.DttmForecast.Sub(t.Start) / t.Step)
		if item.DttmForecast.Before(t.Start) || i >= len(t.Values) {
			continue
		}
		coef := speed[item.OperationTypeID]
		if coef <= 0 {
			coef = 1
		}
		t.Values[i] += item.Value / coef * (1 + absenteeism)
	}
}

// AddInterval adds weight to every period [start, end) touches, scaled by
// the share of the period it covers.
func (t *Table) AddInterval(start, end time.Time, weight float64) {
	lo, hi := t.span(start, end)
	for i := lo; i < hi; i++ {
		share := dates.Overlap(start, end, t.At(i), t.At(i+1))
		t.Values[i] += weight * float64(share) / float64(t.Step)
	}
}

// Cover subtracts the work parts of rows on workTypeIDs from the table.
func (t *Table) Cover(rows []workerday.WorkerDay, workTypeIDs map[int64]bool) {
	for _, wd := range rows {
		start, end, ok := wd.Interval()
		if !ok || wd.Canceled {
			continue
		}
		for _, d := range wd.Details {
			if workTypeIDs[d.WorkTypeID] {
				t.AddInterval(start, end, -d.WorkPart)
			}
		}
	}
}

// Mean averages the periods [start, end) touches.
func (t *Table) Mean(start, end time.Time) float64 {
	lo, hi := t.span(start, end)
	if hi <= lo {
		return 0
	}
	sum := 0.0
	for i := lo; i < hi; i++ {
		sum += t.Values[i]
	}
	return sum / float64(hi-lo)
}

func (t *Table) span(start, end time.Time) (int, int) {
	if !end.After(start) || len(t.Values) == 0 {
		return 0, 0
	}
	lo := int(math.Floor(float64(start.Sub(t.Start)) / float64(t.Step)))
	hi := int(math.Ceil(float64(end.Sub(t.Start)) / float64(t.Step)))
	return max(lo, 0), min(hi, len(t.Values))
}

// Run is a half-open period range [From, To) with the mean value over it.
type Run struct {
	From int
	To   int
	Mean float64
}

// StackedRuns finds the vacancies a lack table asks for. Each pass walks
// the periods and opens a run while lack stays positive; then one worker
// is taken off every period and the walk repeats, so a peak lack of n
// yields n stacked layers. Runs with a mean below lackMin are dropped.
// Runs within a layer closer than mergeGap periods are joined.
func StackedRuns(values []float64, lackMin float64, mergeGap int) [][]Run {
	lack := append([]float64(nil), values...)
	var layers [][]Run
	for {
		var layer []Run
		open, sum := -1, 0.0
		closeRun := func(to int) {
			if mean := sum / float64(to-open); mean >= lackMin {
				layer = append(layer, Run{From: open, To: to, Mean: mean})
			}
			open, sum = -1, 0
		}
		positive := false
		for i, v := range lack {
			if v > 0 {
				positive = true
				if open < 0 {
					open = i
				}
				sum += v
				continue
			}
			if open >= 0 {
				closeRun(i)
			}
		}
		if open >= 0 {
			closeRun(len(lack))
		}
		if !positive {
			return layers
		}
		if layer = mergeRuns(layer, mergeGap); len(layer) > 0 {
			layers = append(layers, layer)
		}
		for i := range lack {
			lack[i]--
		}
	}
}

func mergeRuns(runs []Run, gap int) []Run {
	if len(runs) < 2 {
		return runs
	}
	out := []Run{runs[0]}
	for _, r := range runs[1:] {
		last := &out[len(out)-1]
		if r.From-last.To < gap {
			lenA, lenB := float64(last.To-last.From), float64(r.To-r.From)
			last.Mean = (last.Mean*lenA + r.Mean*lenB) / (lenA + lenB)
			last.To = r.To
			continue
		}
		out = append(out, r)
	}
	return out
}

// Interval is an absolute time range.
type Interval struct {
	Start time.Time
	End   time.Time
}

func (i Interval) Len() time.Duration { return i.End.Sub(i.Start) }

// SliceInterval cuts a run into vacancies between minLen and maxLen. Long
// runs give whole maxLen pieces; a remainder of at least minLen is kept as
// is, one of at least minLen/2 borrows from the last piece to reach minLen,
// and a shorter one is dropped. Short runs are dropped below minLen/2 and
// stretched to minLen otherwise.
func SliceInterval(in Interval, minLen, maxLen time.Duration) []Interval {
	length := in.Len()
	switch {
	case length < minLen/2:
		return nil
	case length < minLen:
		return []Interval{{Start: in.Start, End: in.Start.Add(minLen)}}
	case maxLen <= 0 || length <= maxLen:
		return []Interval{in}
	}

	n := int(length / maxLen)
	rem := length - time.Duration(n)*maxLen
	out := make([]Interval, 0, n+1)
	cur := in.Start
	for range n {
		out = append(out, Interval{Start: cur, End: cur.Add(maxLen)})
		cur = cur.Add(maxLen)
	}
	switch {
	case rem >= minLen:
		out = append(out, Interval{Start: cur, End: in.End})
	case rem >= minLen/2:
		last := &out[len(out)-1]
		last.End = last.End.Add(-(minLen - rem))
		out = append(out, Interval{Start: last.End, End: in.End})
	}
	return out
}

// Clamp cuts in to the window [from, to). ok is false when nothing is left.
func Clamp(in Interval, from, to time.Time) (Interval, bool) {
	if in.Start.Before(from) {
		in.Start = from
	}
	if in.End.After(to) {
		in.End = to
	}
	return in, in.End.After(in.Start)
}
