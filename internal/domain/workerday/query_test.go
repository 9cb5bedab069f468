package workerday

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestQuery_Match(t *testing.T) {
	emp := int64(5)
	shop := int64(2)
	wd := WorkerDay{
		ID:         10,
		EmployeeID: &emp,
		ShopID:     &shop,
		Dt:         day(2024, 3, 4),
		Type:       TypeWorkday,
		IsFact:     true,
		IsApproved: true,
		Details:    []Detail{{WorkTypeID: 7, WorkPart: 1}},
	}

	tests := []struct {
		name  string
		query Query
		want  bool
	}{
		{"empty query matches", NewQuery(), true},
		{"employee", NewQuery().ForEmployees(5), true},
		{"other employee", NewQuery().ForEmployees(6), false},
		{"range", NewQuery().InRange(day(2024, 3, 1), day(2024, 3, 4)), true},
		{"before range", NewQuery().InRange(day(2024, 3, 5), day(2024, 3, 9)), false},
		{"fact approved", NewQuery().Fact().Approved(), true},
		{"plan", NewQuery().Plan(), false},
		{"work type", NewQuery().WithWorkTypes(7), true},
		{"open vacancies", NewQuery().OpenVacancies(), false},
		{"not manual", NewQuery().NotManuallyEdited(), true},
		{"dates", NewQuery().OnDates(day(2024, 3, 4)), true},
		{"types", NewQuery().OfTypes(TypeHoliday), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.query.Match(wd))
		})
	}
}

func TestQuery_BuilderDoesNotAlias(t *testing.T) {
	base := NewQuery().ForEmployees(1)
	a := base.ForEmployees(2)
	b := base.ForEmployees(3)
	assert.Equal(t, []int64{1}, base.EmployeeIDs)
	assert.Equal(t, []int64{1, 2}, a.EmployeeIDs)
	assert.Equal(t, []int64{1, 3}, b.EmployeeIDs)
}

func TestSortRows(t *testing.T) {
	e1, e2 := int64(1), int64(2)
	rows := []WorkerDay{
		{ID: 4, Dt: day(2024, 3, 1), IsVacancy: true},
		{ID: 3, EmployeeID: &e2, Dt: day(2024, 3, 1)},
		{ID: 2, EmployeeID: &e1, Dt: day(2024, 3, 2)},
		{ID: 5, EmployeeID: &e1, Dt: day(2024, 3, 1), IsApproved: true},
		{ID: 1, EmployeeID: &e1, Dt: day(2024, 3, 1)},
	}
	SortRows(rows)

	var ids []int64
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []int64{1, 5, 2, 3, 4}, ids)
}
