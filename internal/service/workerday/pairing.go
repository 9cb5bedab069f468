package workerday

import (
	"context"
	"fmt"
	"time"

	"github.com/cmlabs-hris/timetable-core/internal/domain/org"
	"github.com/cmlabs-hris/timetable-core/internal/domain/workerday"
	"github.com/cmlabs-hris/timetable-core/internal/pkg/dates"
)

// ClosestPlan picks the approved plan a fact most likely realizes. Plans
// qualify when they overlap the fact or start within delta of it; the
// nearest start wins, then the nearest end, then the lower id.
func ClosestPlan(fact workerday.WorkerDay, plans []workerday.WorkerDay, delta time.Duration) (workerday.WorkerDay, bool) {
	fStart, fEnd, ok := fact.Interval()
	if !ok || fact.EmployeeID == nil {
		return workerday.WorkerDay{}, false
	}

	lo, hi := fact.Dt.AddDate(0, 0, -1), fact.Dt.AddDate(0, 0, 1)
	var (
		best      workerday.WorkerDay
		found     bool
		bestStart time.Duration
		bestEnd   time.Duration
	)
	for _, p := range plans {
		if p.IsFact || !p.IsApproved || !workerday.EqualPtr(p.EmployeeID, fact.EmployeeID) {
			continue
		}
		if p.Dt.Before(lo) || p.Dt.After(hi) {
			continue
		}
		pStart, pEnd, ok := p.Interval()
		if !ok {
			continue
		}
		startDiff := absDuration(fStart.Sub(pStart))
		if dates.Overlap(fStart, fEnd, pStart, pEnd) <= 0 && startDiff > delta {
			continue
		}
		endDiff := absDuration(fEnd.Sub(pEnd))
		if !found ||
			startDiff < bestStart ||
			(startDiff == bestStart && endDiff < bestEnd) ||
			(startDiff == bestStart && endDiff == bestEnd && p.ID < best.ID) {
			best, bestStart, bestEnd, found = p, startDiff, endDiff, true
		}
	}
	return best, found
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// Linker keeps closest_plan_approved of fact rows current.
type Linker struct {
	repo  workerday.Repository
	org   org.Repository
	hours *HoursCalculator
}

func NewLinker(repo workerday.Repository, orgRepo org.Repository, hours *HoursCalculator) *Linker {
	return &Linker{repo: repo, org: orgRepo, hours: hours}
}

// Relink re-pairs every fact of the employees within [from, to] and
// returns how many links changed. With recalcManual, manually edited facts
// whose plan changed get their work hours recomputed too.
func (l *Linker) Relink(ctx context.Context, employeeIDs []int64, from, to time.Time, recalcManual bool) (int, error) {
	if len(employeeIDs) == 0 {
		return 0, nil
	}
	facts, err := l.repo.List(ctx, workerday.NewQuery().ForEmployees(employeeIDs...).InRange(from, to).Fact())
	if err != nil {
		return 0, fmt.Errorf("load facts: %w", err)
	}
	if len(facts) == 0 {
		return 0, nil
	}
	plans, err := l.repo.List(ctx, workerday.NewQuery().
		ForEmployees(employeeIDs...).
		InRange(from.AddDate(0, 0, -1), to.AddDate(0, 0, 1)).
		Plan().Approved().NotCanceled())
	if err != nil {
		return 0, fmt.Errorf("load plans: %w", err)
	}

	deltas := make(map[int64]time.Duration)
	changed := 0
	for _, fact := range facts {
		delta, err := l.delta(ctx, fact, deltas)
		if err != nil {
			return changed, err
		}
		var planID *int64
		if plan, ok := ClosestPlan(fact, plans, delta); ok {
			planID = workerday.Ptr(plan.ID)
		}
		if workerday.EqualPtr(planID, fact.ClosestPlanApprovedID) {
			continue
		}
		if err := l.repo.SetClosestPlan(ctx, fact.ID, planID); err != nil {
			return changed, fmt.Errorf("link fact %d: %w", fact.ID, err)
		}
		changed++

		if recalcManual && fact.ManuallyEdited() {
			fact.ClosestPlanApprovedID = planID
			if err := l.hours.Fill(ctx, &fact); err != nil {
				return changed, err
			}
			if err := l.repo.Update(ctx, &fact); err != nil {
				return changed, fmt.Errorf("update fact %d: %w", fact.ID, err)
			}
		}
	}
	return changed, nil
}

// Pair links one fact in place, without saving it.
func (l *Linker) Pair(ctx context.Context, fact *workerday.WorkerDay) (*workerday.WorkerDay, error) {
	fact.ClosestPlanApprovedID = nil
	if !fact.IsFact || fact.EmployeeID == nil {
		return nil, nil
	}
	if _, _, ok := fact.Interval(); !ok {
		return nil, nil
	}
	plans, err := l.repo.List(ctx, workerday.NewQuery().
		ForEmployees(*fact.EmployeeID).
		InRange(fact.Dt.AddDate(0, 0, -1), fact.Dt.AddDate(0, 0, 1)).
		Plan().Approved().NotCanceled())
	if err != nil {
		return nil, fmt.Errorf("load plans: %w", err)
	}
	delta, err := l.delta(ctx, *fact, map[int64]time.Duration{})
	if err != nil {
		return nil, err
	}
	plan, ok := ClosestPlan(*fact, plans, delta)
	if !ok {
		return nil, nil
	}
	fact.ClosestPlanApprovedID = workerday.Ptr(plan.ID)
	return &plan, nil
}

func (l *Linker) delta(ctx context.Context, fact workerday.WorkerDay, cache map[int64]time.Duration) (time.Duration, error) {
	if fact.ShopID == nil {
		return org.DefaultNetworkSettings().ClosestPlanDelta, nil
	}
	if d, ok := cache[*fact.ShopID]; ok {
		return d, nil
	}
	shop, err := l.org.GetShop(ctx, *fact.ShopID)
	if err != nil {
		return 0, fmt.Errorf("load shop %d: %w", *fact.ShopID, err)
	}
	network, err := l.org.GetNetwork(ctx, shop.NetworkID)
	if err != nil {
		return 0, fmt.Errorf("load network %d: %w", shop.NetworkID, err)
	}
	d := network.Settings.ClosestPlanDelta
	if d <= 0 {
		d = org.DefaultNetworkSettings().ClosestPlanDelta
	}
	cache[*fact.ShopID] = d
	return d, nil
}
