package approval

import (
	"fmt"
	"time"

	"github.com/cmlabs-hris/timetable-core/internal/domain/workerday"
)

// diffKey holds the fields that decide whether a draft still equals its
// approved counterpart.
type diffKey struct {
	code      string
	employee  int64
	dt        int64
	wdType    workerday.Type
	workHours time.Duration
	start     int64
	end       int64
	shop      int64
	workTypes string
	isVacancy bool
}

func keyOf(wd workerday.WorkerDay) diffKey {
	k := diffKey{
		code:      wd.Code,
		dt:        wd.Dt.Unix(),
		wdType:    wd.Type,
		workHours: wd.WorkHours,
		workTypes: fmt.Sprint(wd.WorkTypeIDs()),
		isVacancy: wd.IsVacancy,
	}
	if wd.EmployeeID != nil {
		k.employee = *wd.EmployeeID
	}
	if wd.ShopID != nil {
		k.shop = *wd.ShopID
	}
	if start, end, ok := wd.Interval(); ok {
		k.start, k.end = start.UnixNano(), end.UnixNano()
	}
	return k
}

// symmetricDiff pairs drafts with equal approved rows. Unpaired drafts are
// returned for promotion, unpaired approved rows for removal. Both keep the
// input order.
func symmetricDiff(drafts, approved []workerday.WorkerDay) (toApprove, toDelete []workerday.WorkerDay) {
	pool := make(map[diffKey][]int, len(approved))
	for i, wd := range approved {
		k := keyOf(wd)
		pool[k] = append(pool[k], i)
	}

	paired := make([]bool, len(approved))
	for _, d := range drafts {
		k := keyOf(d)
		if idx := pool[k]; len(idx) > 0 {
			paired[idx[0]] = true
			pool[k] = idx[1:]
			continue
		}
		toApprove = append(toApprove, d)
	}
	for i, wd := range approved {
		if !paired[i] {
			toDelete = append(toDelete, wd)
		}
	}
	return toApprove, toDelete
}

// dropShadowedHolidays removes HOLIDAY drafts that share employee, date and
// code with a WORKDAY draft.
func dropShadowedHolidays(drafts []workerday.WorkerDay) []workerday.WorkerDay {
	type slotCode struct {
		employee int64
		dt       int64
		code     string
	}
	workdays := make(map[slotCode]bool)
	for _, d := range drafts {
		if d.Type == workerday.TypeWorkday && d.EmployeeID != nil {
			workdays[slotCode{*d.EmployeeID, d.Dt.Unix(), d.Code}] = true
		}
	}
	if len(workdays) == 0 {
		return drafts
	}

	out := drafts[:0:0]
	for _, d := range drafts {
		if d.Type == workerday.TypeHoliday && d.EmployeeID != nil && workdays[slotCode{*d.EmployeeID, d.Dt.Unix(), d.Code}] {
			continue
		}
		out = append(out, d)
	}
	return out
}
