package validator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsValidDate(t *testing.T) {
	cases := []struct {
		input string
		ok    bool
	}{
		{"2024-02-29", true},
		{"2023-02-29", false},
		{"2024-3-1", false},
		{"", false},
	}
	for _, c := range cases {
		_, ok := IsValidDate(c.input)
		assert.Equal(t, c.ok, ok, "IsValidDate(%q)", c.input)
	}
}

func TestIsValidMonth(t *testing.T) {
	m, ok := IsValidMonth("2024-03")
	assert.True(t, ok)
	assert.Equal(t, time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC), m)

	_, ok = IsValidMonth("2024-13")
	assert.False(t, ok)
	_, ok = IsValidMonth("03-2024")
	assert.False(t, ok)
}

func TestIsFraction(t *testing.T) {
	assert.True(t, IsFraction(1))
	assert.True(t, IsFraction(0.25))
	assert.False(t, IsFraction(0))
	assert.False(t, IsFraction(1.5))
}

func TestValidationErrors(t *testing.T) {
	var errs ValidationErrors
	assert.NoError(t, errs.Err())

	errs.Add("dt", "is required")
	errs.Add("work_part", "must be in (0, 1]")
	err := errs.Err()
	assert.EqualError(t, err, "dt: is required; work_part: must be in (0, 1]")
	assert.Equal(t, "is required", errs.ToMap()["dt"])
}
