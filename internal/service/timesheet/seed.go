package timesheet

import (
	"context"
	"time"

	"github.com/cmlabs-hris/timetable-core/internal/domain/org"
	"github.com/cmlabs-hris/timetable-core/internal/domain/staff"
	"github.com/cmlabs-hris/timetable-core/internal/domain/timesheet"
	"github.com/cmlabs-hris/timetable-core/internal/domain/workerday"
)

// seeder turns approved worker days into fact items. Shops and work type
// names are cached for one recalculation.
type seeder struct {
	s           *service
	settings    org.NetworkSettings
	employments []staff.Employment
	shops       map[int64]org.Shop
	names       map[int64]*int64
}

// fill adds the approved facts to buf, plus the approved plan dayoffs of
// dates without a fact. It returns the number of norm-reducing dayoffs.
func (sd *seeder) fill(ctx context.Context, buf *Buffer, rows []workerday.WorkerDay) (int, error) {
	factDates := make(map[time.Time]bool)
	for _, wd := range rows {
		if wd.IsFact {
			factDates[wd.Dt] = true
		}
	}

	reducing := 0
	for _, wd := range rows {
		if !wd.IsFact {
			if !wd.Type.IsDayoff() {
				continue
			}
			if wd.Type.ReducesNorm() {
				reducing++
			}
			if factDates[wd.Dt] {
				continue
			}
		}
		item, err := sd.item(ctx, wd)
		if err != nil {
			return 0, err
		}
		buf.Add(wd.Dt, item, false)
	}
	return reducing, nil
}

func (sd *seeder) item(ctx context.Context, wd workerday.WorkerDay) (timesheet.Item, error) {
	var workTypeID *int64
	if len(wd.Details) > 0 {
		workTypeID = &wd.Details[0].WorkTypeID
	}

	item := timesheet.Item{
		Dt:      wd.Dt,
		DayType: wd.Type,
		ShopID:  wd.ShopID,
		Source:  string(wd.Source),
	}
	if e, ok := staff.PickEmployment(sd.employments, wd.Dt, wd.ShopID, workTypeID); ok {
		item.PositionID = e.PositionID
		if item.ShopID == nil {
			item.ShopID = &e.ShopID
		}
	}
	if workTypeID != nil {
		name, err := sd.workTypeName(ctx, *workTypeID)
		if err != nil {
			return timesheet.Item{}, err
		}
		item.WorkTypeNameID = name
	}

	start, end, ok := wd.Interval()
	if !ok || wd.ShopID == nil {
		item.DayHours = Hours(wd.WorkHours)
		return item.Clone(), nil
	}
	shop, err := sd.shop(ctx, *wd.ShopID)
	if err != nil {
		return timesheet.Item{}, err
	}
	night := NightDuration(start, end, shop.Location(), sd.settings.NightStart, sd.settings.NightEnd)
	item.DayHours, item.NightHours = SplitHours(wd.WorkHours, end.Sub(start), night)
	item.DttmWorkStart, item.DttmWorkEnd = &start, &end
	return item.Clone(), nil
}

func (sd *seeder) shop(ctx context.Context, id int64) (org.Shop, error) {
	if shop, ok := sd.shops[id]; ok {
		return shop, nil
	}
	shop, err := sd.s.org.GetShop(ctx, id)
	if err != nil {
		return org.Shop{}, err
	}
	sd.shops[id] = shop
	return shop, nil
}

func (sd *seeder) workTypeName(ctx context.Context, workTypeID int64) (*int64, error) {
	if name, ok := sd.names[workTypeID]; ok {
		return name, nil
	}
	wt, err := sd.s.org.GetWorkType(ctx, workTypeID)
	if err != nil {
		return nil, err
	}
	name := wt.WorkTypeNameID
	sd.names[workTypeID] = &name
	return &name, nil
}
