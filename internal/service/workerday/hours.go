package workerday

import (
	"context"
	"fmt"
	"time"

	"github.com/cmlabs-hris/timetable-core/internal/domain/org"
	"github.com/cmlabs-hris/timetable-core/internal/domain/staff"
	"github.com/cmlabs-hris/timetable-core/internal/domain/workerday"
)

// DefaultPaidDayoffHours is credited to paid dayoffs when the position
// does not say otherwise.
const DefaultPaidDayoffHours = 8 * time.Hour

// HoursCalculator fills the derived fields of a row: the employment it
// belongs to and its net work hours.
type HoursCalculator struct {
	org   org.Repository
	staff staff.Repository
}

func NewHoursCalculator(orgRepo org.Repository, staffRepo staff.Repository) *HoursCalculator {
	return &HoursCalculator{org: orgRepo, staff: staffRepo}
}

// Fill resolves wd.EmploymentID when missing and recomputes wd.WorkHours.
func (h *HoursCalculator) Fill(ctx context.Context, wd *workerday.WorkerDay) error {
	if err := h.resolveEmployment(ctx, wd); err != nil {
		return err
	}
	hours, err := h.WorkHours(ctx, *wd)
	if err != nil {
		return err
	}
	wd.WorkHours = hours
	return nil
}

// WorkHours computes net hours: the gross shift minus the break of the
// position policy, or of the shop policy when the position has none. Paid
// dayoffs get the position's dayoff hours.
func (h *HoursCalculator) WorkHours(ctx context.Context, wd workerday.WorkerDay) (time.Duration, error) {
	switch {
	case wd.Type.IsTimeRanged():
		gross := wd.Length()
		if gross <= 0 {
			return 0, nil
		}
		position, err := h.position(ctx, wd)
		if err != nil {
			return 0, err
		}
		if position != nil && len(position.BreakPolicy) > 0 {
			return position.BreakPolicy.NetDuration(gross), nil
		}
		if wd.ShopID == nil {
			return gross, nil
		}
		shop, err := h.org.GetShop(ctx, *wd.ShopID)
		if err != nil {
			return 0, fmt.Errorf("load shop %d: %w", *wd.ShopID, err)
		}
		return shop.BreakPolicy.NetDuration(gross), nil

	case wd.Type.PaidDayoff():
		position, err := h.position(ctx, wd)
		if err != nil {
			return 0, err
		}
		if position != nil && position.HoursInDayoff > 0 {
			return position.HoursInDayoff, nil
		}
		return DefaultPaidDayoffHours, nil
	}
	return 0, nil
}

func (h *HoursCalculator) resolveEmployment(ctx context.Context, wd *workerday.WorkerDay) error {
	if wd.EmployeeID == nil || wd.EmploymentID != nil {
		return nil
	}
	emps, err := h.staff.ListEmployments(ctx, staff.EmploymentFilter{
		EmployeeIDs: []int64{*wd.EmployeeID},
		DtFrom:      &wd.Dt,
		DtTo:        &wd.Dt,
	})
	if err != nil {
		return fmt.Errorf("load employments of employee %d: %w", *wd.EmployeeID, err)
	}
	var workType *int64
	if len(wd.Details) > 0 {
		workType = &wd.Details[0].WorkTypeID
	}
	if emp, ok := staff.PickEmployment(emps, wd.Dt, wd.ShopID, workType); ok {
		wd.EmploymentID = workerday.Ptr(emp.ID)
	}
	return nil
}

func (h *HoursCalculator) position(ctx context.Context, wd workerday.WorkerDay) (*staff.Position, error) {
	if wd.EmploymentID == nil {
		return nil, nil
	}
	emp, err := h.staff.GetEmployment(ctx, *wd.EmploymentID)
	if err != nil {
		return nil, fmt.Errorf("load employment %d: %w", *wd.EmploymentID, err)
	}
	if emp.PositionID == nil {
		return nil, nil
	}
	positions, err := h.staff.ListPositions(ctx, []int64{*emp.PositionID})
	if err != nil {
		return nil, fmt.Errorf("load position %d: %w", *emp.PositionID, err)
	}
	if len(positions) == 0 {
		return nil, nil
	}
	return &positions[0], nil
}
