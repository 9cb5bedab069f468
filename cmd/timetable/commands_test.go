package main

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmlabs-hris/timetable-core/internal/config"
	"github.com/cmlabs-hris/timetable-core/internal/pkg/validator"
)

func noConfig() *config.Config { return nil }

func execute(t *testing.T, cmd *cobra.Command, args ...string) error {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	return cmd.Execute()
}

// Flag validation runs before any connection is opened, so these cases
// never touch a database.
func TestApproveCommand_RejectsBadFlags(t *testing.T) {
	tests := []struct {
		name   string
		args   []string
		fields []string
	}{
		{
			name:   "bad dates",
			args:   []string{"--user", "1", "--from", "2024-13-01", "--to", "yesterday"},
			fields: []string{"from", "to"},
		},
		{
			name:   "reversed range",
			args:   []string{"--user", "1", "--from", "2024-03-31", "--to", "2024-03-01"},
			fields: []string{"to"},
		},
		{
			name:   "unknown type",
			args:   []string{"--user", "1", "--from", "2024-03-01", "--to", "2024-03-31", "--types", "WORKDAY,NAP"},
			fields: []string{"types"},
		},
		{
			name:   "request without shop",
			args:   []string{"--user", "1", "--from", "2024-03-01", "--to", "2024-03-31", "--request"},
			fields: []string{"shop"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := execute(t, newApproveCommand(noConfig), tt.args...)
			var verrs validator.ValidationErrors
			require.ErrorAs(t, err, &verrs)
			for _, f := range tt.fields {
				assert.Contains(t, verrs.ToMap(), f)
			}
		})
	}
}

func TestApproveCommand_RequiresFlags(t *testing.T) {
	err := execute(t, newApproveCommand(noConfig), "--from", "2024-03-01")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestTimesheetCommand_RejectsBadFlags(t *testing.T) {
	err := execute(t, newTimesheetCommand(noConfig), "--employee", "0", "--month", "March")
	var verrs validator.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, map[string]string{
		"employee": "must be a positive id",
		"month":    "must look like 2024-03",
	}, verrs.ToMap())
}
