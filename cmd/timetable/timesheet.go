package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cmlabs-hris/timetable-core/internal/config"
	"github.com/cmlabs-hris/timetable-core/internal/domain/timesheet"
	"github.com/cmlabs-hris/timetable-core/internal/pkg/validator"
)

func newTimesheetCommand(conf func() *config.Config) *cobra.Command {
	var (
		employeeID int64
		monthStr   string
	)

	cmd := &cobra.Command{
		Use:   "timesheet",
		Short: "Recompute the fiscal timesheet of one employee for one month",
		RunE: func(cmd *cobra.Command, args []string) error {
			var errs validator.ValidationErrors
			if employeeID <= 0 {
				errs.Add("employee", "must be a positive id")
			}
			month, ok := validator.IsValidMonth(monthStr)
			if !ok {
				errs.Add("month", "must look like 2024-03")
			}
			if err := errs.Err(); err != nil {
				return err
			}

			a, cleanup, err := newApp(cmd.Context(), conf())
			if err != nil {
				return err
			}
			defer cleanup()

			res, err := a.timesheets.Recalc(cmd.Context(), employeeID, month)
			if err != nil {
				return fmt.Errorf("recalculate timesheet: %w", err)
			}

			cmd.Printf("employee %d, %s\n", res.EmployeeID, res.Month.Format("2006-01"))
			cmd.Printf("norm        %s\n", res.Norm.StringFixed(2))
			cmd.Printf("fact        %s (%d items)\n", timesheet.Sum(res.Fact).StringFixed(2), len(res.Fact))
			cmd.Printf("main        %s (%d items)\n", timesheet.Sum(res.Main).StringFixed(2), len(res.Main))
			cmd.Printf("additional  %s (%d items)\n", timesheet.Sum(res.Additional).StringFixed(2), len(res.Additional))
			return nil
		},
	}

	cmd.Flags().Int64Var(&employeeID, "employee", 0, "employee id")
	cmd.Flags().StringVar(&monthStr, "month", "", "month to recompute, e.g. 2024-03")
	_ = cmd.MarkFlagRequired("employee")
	_ = cmd.MarkFlagRequired("month")
	return cmd
}
