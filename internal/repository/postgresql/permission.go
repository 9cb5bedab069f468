package postgresql

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/cmlabs-hris/timetable-core/internal/domain/permission"
	"github.com/cmlabs-hris/timetable-core/internal/domain/workerday"
	"github.com/cmlabs-hris/timetable-core/internal/pkg/database"
)

type permissionRepository struct {
	db *database.DB
}

func NewPermissionRepository(db *database.DB) permission.Repository {
	return &permissionRepository{db: db}
}

func (r *permissionRepository) List(ctx context.Context, filter permission.Filter) ([]permission.GroupWorkerDayPermission, error) {
	q := GetQuerier(ctx, r.db)

	w := &where{}
	if len(filter.GroupIDs) > 0 {
		w.add("group_id = ANY(?)", filter.GroupIDs)
	}
	if filter.Action != "" {
		w.add("action = ?", string(filter.Action))
	}
	if filter.GraphType != "" {
		w.add("graph_type = ?", string(filter.GraphType))
	}
	if filter.WDType != "" {
		w.add("wd_type = ?", string(filter.WDType))
	}

	query := fmt.Sprintf(`
		SELECT id, group_id, action, graph_type, wd_type, limit_days_in_past, limit_days_in_future,
			employee_type, shop_type, allow_approve_first
		FROM group_worker_day_permissions
		WHERE %s
		ORDER BY id
	`, w)
	rows, err := q.Query(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query permissions: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (permission.GroupWorkerDayPermission, error) {
		var (
			p                                       permission.GroupWorkerDayPermission
			action, graph, wdType, employeeT, shopT string
		)
		err := row.Scan(&p.ID, &p.GroupID, &action, &graph, &wdType, &p.LimitDaysInPast, &p.LimitDaysInFuture,
			&employeeT, &shopT, &p.AllowApproveFirst)
		p.Action = permission.Action(action)
		p.GraphType = workerday.GraphType(graph)
		p.WDType = workerday.Type(wdType)
		p.EmployeeType = permission.EmployeeType(employeeT)
		p.ShopType = permission.ShopType(shopT)
		return p, err
	})
}
