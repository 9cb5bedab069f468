package org

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreakPolicy_NetDuration(t *testing.T) {
	policy := BreakPolicy{
		{MinMinutes: 0, MaxMinutes: 360, BreakMinutes: 0},
		{MinMinutes: 360, MaxMinutes: 540, BreakMinutes: 30},
		{MinMinutes: 540, MaxMinutes: 720, BreakMinutes: 60},
	}

	tests := []struct {
		name  string
		gross time.Duration
		want  time.Duration
	}{
		{"short shift no break", 4 * time.Hour, 4 * time.Hour},
		{"exact boundary picks smaller rule", 9 * time.Hour, 8*time.Hour + 30*time.Minute},
		{"twelve hours", 12 * time.Hour, 11 * time.Hour},
		{"longer than every rule uses the largest", 14 * time.Hour, 13 * time.Hour},
		{"zero", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, policy.NetDuration(tt.gross))
		})
	}
}

func TestBreakPolicy_BreakNeverSwallowsShift(t *testing.T) {
	policy := BreakPolicy{{MinMinutes: 0, MaxMinutes: 60, BreakMinutes: 90}}
	assert.Equal(t, 30*time.Minute, policy.NetDuration(30*time.Minute))
	assert.Equal(t, 2*time.Hour, BreakPolicy(nil).NetDuration(2*time.Hour))
}

func TestShop_WorkingWindow(t *testing.T) {
	shop := Shop{
		TZOffsetMinutes: 180,
		Schedule: map[time.Weekday]OpenHours{
			time.Friday:   {Open: 8 * time.Hour, Close: 22 * time.Hour},
			time.Saturday: {Open: 20 * time.Hour, Close: 2 * time.Hour},
		},
	}
	friday := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	open, close, ok := shop.WorkingWindow(friday)
	assert.True(t, ok)
	assert.Equal(t, time.Date(2024, 3, 1, 5, 0, 0, 0, time.UTC), open.UTC())
	assert.Equal(t, time.Date(2024, 3, 1, 19, 0, 0, 0, time.UTC), close.UTC())

	open, close, ok = shop.WorkingWindow(friday.AddDate(0, 0, 1))
	assert.True(t, ok)
	assert.Equal(t, 6*time.Hour, close.Sub(open))

	_, _, ok = shop.WorkingWindow(friday.AddDate(0, 0, 2))
	assert.False(t, ok)
}

func TestTree(t *testing.T) {
	root := int64(1)
	mid := int64(2)
	tree := NewTree([]Shop{
		{ID: 1},
		{ID: 2, ParentID: &root},
		{ID: 3, ParentID: &mid},
		{ID: 4, ParentID: &root},
	})

	assert.ElementsMatch(t, []int64{1, 2, 3, 4}, tree.Descendants(1))
	assert.ElementsMatch(t, []int64{2, 3}, tree.Descendants(2))
	assert.Equal(t, []int64{3, 2, 1}, tree.Ancestors(3))
}

func TestResolveExchangeSettings(t *testing.T) {
	records := []ExchangeSettings{
		{ID: 9, AutomaticCreateVacancyLackMin: 0.9},
		{ID: 4, AutomaticCreateVacancyLackMin: 0.4},
		{ID: 7, ShopIDs: []int64{5}, AutomaticCreateVacancyLackMin: 0.7},
	}

	assert.Equal(t, int64(7), ResolveExchangeSettings(records, 5).ID)
	assert.Equal(t, int64(4), ResolveExchangeSettings(records, 6).ID)
	assert.Equal(t, DefaultExchangeSettings(), ResolveExchangeSettings(nil, 6))
}
