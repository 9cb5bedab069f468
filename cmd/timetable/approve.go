package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cmlabs-hris/timetable-core/internal/config"
	"github.com/cmlabs-hris/timetable-core/internal/domain/approval"
	"github.com/cmlabs-hris/timetable-core/internal/domain/workerday"
	"github.com/cmlabs-hris/timetable-core/internal/pkg/validator"
)

var errDryRun = errors.New("dry run")

func newApproveCommand(conf func() *config.Config) *cobra.Command {
	var (
		userID        int64
		shopID        int64
		employeeIDs   []int64
		from, to      string
		types         []string
		fact          bool
		openVacancies bool
		request       bool
		dryRun        bool
	)

	cmd := &cobra.Command{
		Use:   "approve",
		Short: "Approve draft worker days on behalf of a user",
		Long: "Approve promotes the drafts in range to approved rows. With --request it\n" +
			"only notifies the shop's approvers. With --dry-run every change is rolled back.",
		RunE: func(cmd *cobra.Command, args []string) error {
			var errs validator.ValidationErrors
			if userID <= 0 {
				errs.Add("user", "must be a positive id")
			}
			dtFrom, ok := validator.IsValidDate(from)
			if !ok {
				errs.Add("from", "must look like 2024-03-01")
			}
			dtTo, ok := validator.IsValidDate(to)
			if !ok {
				errs.Add("to", "must look like 2024-03-31")
			}
			if dtTo.Before(dtFrom) {
				errs.Add("to", "must not be before from")
			}
			wdTypes := make([]workerday.Type, 0, len(types))
			for _, t := range types {
				if wt := workerday.Type(t); wt.Valid() {
					wdTypes = append(wdTypes, wt)
				} else {
					errs.Add("types", "unknown worker day type "+t)
				}
			}
			if request && shopID <= 0 {
				errs.Add("shop", "is required with --request")
			}
			if err := errs.Err(); err != nil {
				return err
			}

			a, cleanup, err := newApp(cmd.Context(), conf())
			if err != nil {
				return err
			}
			defer cleanup()

			if request {
				err := a.approvals.RequestApprove(cmd.Context(), approval.RequestApproveRequest{
					UserID: userID,
					ShopID: shopID,
					DtFrom: dtFrom,
					DtTo:   dtTo,
					IsFact: fact,
				})
				if err != nil {
					return err
				}
				cmd.Println("approval requested")
				return nil
			}

			req := approval.Request{
				UserID:               userID,
				IsFact:               fact,
				DtFrom:               dtFrom,
				DtTo:                 dtTo,
				EmployeeIDs:          employeeIDs,
				WDTypes:              wdTypes,
				ApproveOpenVacancies: openVacancies,
			}
			if shopID > 0 {
				req.ShopID = &shopID
			}

			var res approval.Result
			err = a.tx.WithinTx(cmd.Context(), func(ctx context.Context) error {
				var err error
				if res, err = a.approvals.Approve(ctx, req); err != nil {
					return err
				}
				if dryRun {
					return errDryRun
				}
				return nil
			})
			if err != nil && !errors.Is(err, errDryRun) {
				return fmt.Errorf("approve: %w", err)
			}

			cmd.Printf("approved %d worker days, replaced %d\n", len(res.Approved), len(res.Deleted))
			if dryRun {
				cmd.Println("dry run, nothing was committed")
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.Int64Var(&userID, "user", 0, "id of the approving user")
	flags.Int64Var(&shopID, "shop", 0, "limit approval to one shop")
	flags.Int64SliceVar(&employeeIDs, "employees", nil, "limit approval to these employees")
	flags.StringVar(&from, "from", "", "first date, e.g. 2024-03-01")
	flags.StringVar(&to, "to", "", "last date, e.g. 2024-03-31")
	flags.StringSliceVar(&types, "types", nil, "worker day types to approve, all when empty")
	flags.BoolVar(&fact, "fact", false, "approve the fact graph instead of the plan")
	flags.BoolVar(&openVacancies, "open-vacancies", false, "approve open vacancies as well")
	flags.BoolVar(&request, "request", false, "only ask the shop's approvers to approve")
	flags.BoolVar(&dryRun, "dry-run", false, "roll back instead of committing")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}
