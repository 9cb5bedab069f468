package org

import (
	"slices"
	"time"
)

// HolidayExchangeConstraints bound the plan hours an employee may have on
// the day before and after a short dayoff run to be pulled into a vacancy.
type HolidayExchangeConstraints struct {
	TwoDayBeforeMaxHours float64
	TwoDayAfterMaxHours  float64
	OneDayBeforeMaxHours float64
	OneDayAfterMaxHours  float64
}

type ExchangeSettings struct {
	ID        int64
	NetworkID int64
	// ShopIDs empty marks a network-wide default.
	ShopIDs []int64

	AutomaticCheckLack                  bool
	AutomaticCheckLackTimegap           time.Duration
	AutomaticCreateVacancyLackMin       float64
	AutomaticDeleteVacancyLackMax       float64
	AutomaticWorkerSelectTimegap        time.Duration
	AutomaticHolidayWorkerSelectTimegap time.Duration
	AutomaticWorkerSelectOverflowMin    float64
	WorkingShiftMinHours                time.Duration
	WorkingShiftMaxHours                time.Duration
	MaxWorkingHours                     time.Duration
	Outsources                          []int64
	ExcludedPositionIDs                 []int64
	Constraints                         HolidayExchangeConstraints
	RequirePublishedMonth               bool
}

func DefaultExchangeSettings() ExchangeSettings {
	return ExchangeSettings{
		AutomaticCheckLack:                  true,
		AutomaticCheckLackTimegap:           7 * 24 * time.Hour,
		AutomaticCreateVacancyLackMin:       0.5,
		AutomaticDeleteVacancyLackMax:       0.3,
		AutomaticWorkerSelectTimegap:        24 * time.Hour,
		AutomaticHolidayWorkerSelectTimegap: 48 * time.Hour,
		AutomaticWorkerSelectOverflowMin:    0.5,
		WorkingShiftMinHours:                4 * time.Hour,
		WorkingShiftMaxHours:                12 * time.Hour,
		MaxWorkingHours:                     192 * time.Hour,
		Constraints: HolidayExchangeConstraints{
			TwoDayBeforeMaxHours: 12,
			TwoDayAfterMaxHours:  12,
			OneDayBeforeMaxHours: 8,
			OneDayAfterMaxHours:  8,
		},
	}
}

// ResolveExchangeSettings picks the record bound to shopID, else the
// network default (a record with no shops). Ties go to the lowest id.
// Without any record the built-in defaults apply.
func ResolveExchangeSettings(records []ExchangeSettings, shopID int64) ExchangeSettings {
	sorted := slices.Clone(records)
	slices.SortFunc(sorted, func(a, b ExchangeSettings) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})

	for _, r := range sorted {
		if slices.Contains(r.ShopIDs, shopID) {
			return r
		}
	}
	for _, r := range sorted {
		if len(r.ShopIDs) == 0 {
			return r
		}
	}
	return DefaultExchangeSettings()
}
