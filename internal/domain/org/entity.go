package org

import (
	"slices"
	"time"

	"github.com/cmlabs-hris/timetable-core/internal/pkg/dates"
)

type Network struct {
	ID       int64
	Name     string
	Settings NetworkSettings
}

// NetworkSettings are the per-network policies the scheduling core reads.
type NetworkSettings struct {
	// ClosestPlanDelta bounds how far a plan start may be from a fact start
	// to be paired when their ranges do not overlap.
	ClosestPlanDelta time.Duration
	// NightStart and NightEnd are offsets from local midnight. NightEnd <=
	// NightStart means the window crosses midnight.
	NightStart time.Duration
	NightEnd   time.Duration

	TimesheetStrategy               string
	RecalcFactWorkHoursOnApprove    bool
	AllowOwnStaffOnOutsourceVacancy bool
	// RequireEmploymentForWorkdays rejects time-ranged days without an
	// active employment unless the caller asks to skip the check.
	RequireEmploymentForWorkdays bool
}

func DefaultNetworkSettings() NetworkSettings {
	return NetworkSettings{
		ClosestPlanDelta:             3 * time.Hour,
		NightStart:                   22 * time.Hour,
		NightEnd:                     6 * time.Hour,
		TimesheetStrategy:            "base",
		RecalcFactWorkHoursOnApprove: true,
		RequireEmploymentForWorkdays: true,
	}
}

// NetworkConnect lets Client use staff of Outsourcing.
type NetworkConnect struct {
	ClientID      int64
	OutsourcingID int64
}

// OpenHours is a local time-of-day window; Close <= Open means closing after midnight.
type OpenHours struct {
	Open  time.Duration
	Close time.Duration
}

type Shop struct {
	ID              int64
	ParentID        *int64
	NetworkID       int64
	Code            string
	Name            string
	TZOffsetMinutes int
	// Schedule has an entry per weekday the shop opens. A nil map means the
	// shop is open around the clock.
	Schedule        map[time.Weekday]OpenHours
	BreakPolicy     BreakPolicy
	ExchangeShopIDs []int64
	Absenteeism     float64
	ForecastStep    time.Duration
	Region          string
	DeletedAt       *time.Time
}

func (s Shop) Location() *time.Location {
	return time.FixedZone("", s.TZOffsetMinutes*60)
}

func (s Shop) Step() time.Duration {
	if s.ForecastStep <= 0 {
		return 30 * time.Minute
	}
	return s.ForecastStep
}

// WorkingWindow returns the absolute open and close instants for dt. ok is
// false when the shop is closed that day.
func (s Shop) WorkingWindow(dt time.Time) (open, close time.Time, ok bool) {
	loc := s.Location()
	if s.Schedule == nil {
		return dates.At(dt, 0, loc), dates.At(dt, dates.Day, loc), true
	}
	hours, found := s.Schedule[dt.Weekday()]
	if !found {
		return time.Time{}, time.Time{}, false
	}
	open = dates.At(dt, hours.Open, loc)
	close = dates.At(dt, hours.Close, loc)
	if !close.After(open) {
		close = close.Add(dates.Day)
	}
	return open, close, true
}

type WorkTypeName struct {
	ID        int64
	NetworkID int64
	Name      string
	Code      string
}

type WorkType struct {
	ID             int64
	ShopID         int64
	WorkTypeNameID int64
	DeletedAt      *time.Time
}

// OperationType ties a work type to a forecast stream. SpeedCoef is how
// many forecast units one worker handles per period.
type OperationType struct {
	ID         int64
	WorkTypeID int64
	SpeedCoef  float64
}

type ShopMonthStat struct {
	ShopID     int64
	Month      time.Time
	IsApproved bool
	ApprovedAt *time.Time
}

// Tree indexes a network's shops by parent.
type Tree struct {
	shops    map[int64]Shop
	children map[int64][]int64
}

func NewTree(shops []Shop) *Tree {
	t := &Tree{shops: make(map[int64]Shop, len(shops)), children: make(map[int64][]int64)}
	for _, s := range shops {
		t.shops[s.ID] = s
		if s.ParentID != nil {
			t.children[*s.ParentID] = append(t.children[*s.ParentID], s.ID)
		}
	}
	for id := range t.children {
		slices.Sort(t.children[id])
	}
	return t
}

func (t *Tree) Shop(id int64) (Shop, bool) {
	s, ok := t.shops[id]
	return s, ok
}

// Descendants returns id and every shop below it.
func (t *Tree) Descendants(id int64) []int64 {
	out := []int64{id}
	for i := 0; i < len(out); i++ {
		out = append(out, t.children[out[i]]...)
	}
	return out
}

// Ancestors returns id and every shop above it, nearest first.
func (t *Tree) Ancestors(id int64) []int64 {
	var out []int64
	seen := make(map[int64]bool)
	cur := id
	for !seen[cur] {
		seen[cur] = true
		out = append(out, cur)
		s, found := t.shops[cur]
		if !found || s.ParentID == nil {
			break
		}
		cur = *s.ParentID
	}
	return out
}
