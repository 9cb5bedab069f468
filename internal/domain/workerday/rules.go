package workerday

import (
	"math"

	"github.com/cmlabs-hris/timetable-core/internal/pkg/validator"
)

const workPartEpsilon = 1e-9

// CheckShape enforces the per-row invariants: time ranges only on
// time-ranged types, shop presence, detail totals and link directions.
func (wd WorkerDay) CheckShape() error {
	if !wd.Type.Valid() {
		return InvariantViolation("worker day %d: %v %q", wd.ID, ErrUnknownType, wd.Type)
	}

	if wd.Type.IsTimeRanged() {
		start, end, ok := wd.Interval()
		if !ok {
			return InvariantViolation("worker day %d: %s requires dttm_work_start and dttm_work_end", wd.ID, wd.Type)
		}
		if !end.After(start) {
			return InvariantViolation("worker day %d: dttm_work_end must be after dttm_work_start", wd.ID)
		}
		if wd.ShopID == nil {
			return InvariantViolation("worker day %d: %s requires a shop", wd.ID, wd.Type)
		}
	} else {
		if wd.DttmWorkStart != nil || wd.DttmWorkEnd != nil {
			return InvariantViolation("worker day %d: dayoff %s must not carry work times", wd.ID, wd.Type)
		}
		if wd.ShopID != nil && !wd.IsVacancy {
			return InvariantViolation("worker day %d: dayoff %s must not carry a shop", wd.ID, wd.Type)
		}
		if len(wd.Details) > 0 {
			return InvariantViolation("worker day %d: dayoff %s must not carry work type details", wd.ID, wd.Type)
		}
	}

	for _, d := range wd.Details {
		if !validator.IsFraction(d.WorkPart) {
			return InvariantViolation("worker day %d: work_part %.3f must be in (0, 1]", wd.ID, d.WorkPart)
		}
	}
	if wd.IsApproved && !wd.IsFact && wd.Type.IsTimeRanged() && wd.TotalWorkPart() > 1+workPartEpsilon {
		return InvariantViolation("worker day %d: work parts sum to %.3f, more than 1", wd.ID, wd.TotalWorkPart())
	}

	if wd.IsVacancy {
		if len(wd.Details) != 1 {
			return InvariantViolation("vacancy %d must have exactly one work type detail", wd.ID)
		}
		if wd.IsFact {
			return InvariantViolation("vacancy %d must be a plan row", wd.ID)
		}
	}
	if wd.EmployeeID == nil && !wd.IsVacancy {
		return InvariantViolation("worker day %d: only vacancies may be left without an employee", wd.ID)
	}

	if wd.ClosestPlanApprovedID != nil && !wd.IsFact {
		return InvariantViolation("worker day %d: closest_plan_approved is only allowed on fact rows", wd.ID)
	}
	if wd.ParentWorkerDayID != nil && wd.IsApproved {
		return InvariantViolation("worker day %d: approved rows have no parent", wd.ID)
	}
	if wd.WorkHours < 0 {
		return InvariantViolation("worker day %d: negative work hours", wd.ID)
	}
	return nil
}

// Validate checks caller input before it touches the store.
func (in Input) Validate() error {
	var errs validator.ValidationErrors

	if in.Dt.IsZero() {
		errs.Add("dt", "is required")
	}
	if !in.Type.Valid() {
		errs.Add("type", "unknown worker day type")
	}
	if in.EmployeeID == nil && !in.IsVacancy {
		errs.Add("employee_id", "is required unless the day is a vacancy")
	}
	if in.Type.IsTimeRanged() {
		if in.DttmWorkStart == nil || in.DttmWorkEnd == nil {
			errs.Add("dttm_work_start", "start and end are required for "+string(in.Type))
		} else if !in.DttmWorkEnd.After(*in.DttmWorkStart) {
			errs.Add("dttm_work_end", "must be after dttm_work_start")
		}
		if in.ShopID == nil {
			errs.Add("shop_id", "is required for "+string(in.Type))
		}
	}
	for _, d := range in.Details {
		if !validator.IsFraction(d.WorkPart) || math.IsNaN(d.WorkPart) {
			errs.Add("details", "work_part must be in (0, 1]")
			break
		}
	}
	if in.IsVacancy && in.IsFact {
		errs.Add("is_vacancy", "a vacancy must be a plan day")
	}

	return errs.Err()
}
