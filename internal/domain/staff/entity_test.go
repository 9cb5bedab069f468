package staff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestEmployment_IsActive(t *testing.T) {
	e := Employment{DtHired: date(2024, 1, 10), DtFired: date(2024, 3, 31)}

	assert.False(t, e.IsActive(*date(2024, 1, 9)))
	assert.True(t, e.IsActive(*date(2024, 1, 10)))
	assert.True(t, e.IsActive(*date(2024, 3, 31)))
	assert.False(t, e.IsActive(*date(2024, 4, 1)))
	assert.True(t, Employment{}.IsActive(*date(1999, 1, 1)))
}

func TestPickEmployment(t *testing.T) {
	dt := *date(2024, 3, 1)
	shopB := int64(2)
	wtCashier := int64(11)

	emps := []Employment{
		{ID: 1, ShopID: 1, WorkTypes: []EmploymentWorkType{{WorkTypeID: 10, Priority: 1}}},
		{ID: 2, ShopID: 2, WorkTypes: []EmploymentWorkType{{WorkTypeID: 10, Priority: 1}}},
		{ID: 3, ShopID: 3, WorkTypes: []EmploymentWorkType{{WorkTypeID: 11, Priority: 5}, {WorkTypeID: 10, Priority: 1}}},
		{ID: 4, ShopID: 2, DtFired: date(2024, 2, 1)},
	}

	got, ok := PickEmployment(emps, dt, &shopB, nil)
	assert.True(t, ok)
	assert.Equal(t, int64(2), got.ID)

	got, _ = PickEmployment(emps, dt, nil, &wtCashier)
	assert.Equal(t, int64(3), got.ID)

	got, _ = PickEmployment(emps, dt, nil, nil)
	assert.Equal(t, int64(1), got.ID, "insertion order breaks ties")

	_, ok = PickEmployment(emps[3:], dt, nil, nil)
	assert.False(t, ok)
}
