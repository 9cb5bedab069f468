package cron

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cmlabs-hris/timetable-core/internal/domain/org"
	"github.com/cmlabs-hris/timetable-core/internal/domain/task"
	"github.com/cmlabs-hris/timetable-core/internal/pkg/dates"
)

type AttendanceJobs struct {
	orgRepo org.Repository
	tasks   task.Scheduler
	now     func() time.Time
}

func NewAttendanceJobs(orgRepo org.Repository, tasks task.Scheduler) *AttendanceJobs {
	return &AttendanceJobs{
		orgRepo: orgRepo,
		tasks:   tasks,
		now:     time.Now,
	}
}

func (j *AttendanceJobs) RegisterJobs(scheduler *Scheduler) {
	scheduler.AddJob("reconcile_closed_days", 1*time.Hour, j.ReconcileClosedDays)
}

// ReconcileClosedDays schedules a fact rebuild of yesterday for every shop
// whose local clock has just passed midnight. Check-ins without a
// check-out are then closed at the shop's closing time and reported.
func (j *AttendanceJobs) ReconcileClosedDays(ctx context.Context) error {
	shops, err := j.orgRepo.ListShops(ctx, org.ShopFilter{})
	if err != nil {
		return fmt.Errorf("failed to list shops: %w", err)
	}

	byDate := make(map[time.Time][]int64)
	for _, shop := range shops {
		local := j.now().In(shop.Location())
		if local.Hour() != 0 {
			continue
		}
		yesterday := dates.Truncate(local).AddDate(0, 0, -1)
		byDate[yesterday] = append(byDate[yesterday], shop.ID)
	}
	if len(byDate) == 0 {
		return nil
	}

	for dt, shopIDs := range byDate {
		if err := j.tasks.Schedule(ctx, task.KindReconcileFact, task.ReconcilePayload{
			ShopIDs: shopIDs,
			DtFrom:  &dt,
			DtTo:    &dt,
		}, nil); err != nil {
			return fmt.Errorf("failed to schedule reconcile for %s: %w", dates.Format(dt), err)
		}
		slog.Info("Cron: reconcile scheduled", "dt", dates.Format(dt), "shops", len(shopIDs))
	}
	return nil
}
