package postgresql

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/cmlabs-hris/timetable-core/internal/domain/staff"
	"github.com/cmlabs-hris/timetable-core/internal/pkg/database"
)

type staffRepository struct {
	db *database.DB
}

func NewStaffRepository(db *database.DB) staff.Repository {
	return &staffRepository{db: db}
}

func scanUser(row pgx.Row) (staff.User, error) {
	var u staff.User
	err := row.Scan(&u.ID, &u.NetworkID, &u.Username, &u.BlackListSymbol)
	if errors.Is(err, pgx.ErrNoRows) {
		return staff.User{}, staff.ErrUserNotFound
	}
	return u, err
}

func (r *staffRepository) GetUser(ctx context.Context, id int64) (staff.User, error) {
	q := GetQuerier(ctx, r.db)
	u, err := scanUser(q.QueryRow(ctx, "SELECT id, network_id, username, black_list_symbol FROM users WHERE id = $1", id))
	if err != nil && !errors.Is(err, staff.ErrUserNotFound) {
		return staff.User{}, fmt.Errorf("failed to get user: %w", err)
	}
	return u, err
}

func (r *staffRepository) ListUsers(ctx context.Context, ids []int64) ([]staff.User, error) {
	q := GetQuerier(ctx, r.db)

	rows, err := q.Query(ctx, "SELECT id, network_id, username, black_list_symbol FROM users WHERE id = ANY($1) ORDER BY id", ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (staff.User, error) {
		return scanUser(row)
	})
}

func scanEmployee(row pgx.Row) (staff.Employee, error) {
	var e staff.Employee
	err := row.Scan(&e.ID, &e.UserID, &e.TabelCode)
	if errors.Is(err, pgx.ErrNoRows) {
		return staff.Employee{}, staff.ErrEmployeeNotFound
	}
	return e, err
}

func (r *staffRepository) GetEmployee(ctx context.Context, id int64) (staff.Employee, error) {
	q := GetQuerier(ctx, r.db)
	e, err := scanEmployee(q.QueryRow(ctx, "SELECT id, user_id, tabel_code FROM employees WHERE id = $1", id))
	if err != nil && !errors.Is(err, staff.ErrEmployeeNotFound) {
		return staff.Employee{}, fmt.Errorf("failed to get employee: %w", err)
	}
	return e, err
}

func (r *staffRepository) ListEmployees(ctx context.Context, ids []int64) ([]staff.Employee, error) {
	return r.listEmployees(ctx, "id = ANY($1)", ids)
}

func (r *staffRepository) ListEmployeesByUser(ctx context.Context, userID int64) ([]staff.Employee, error) {
	return r.listEmployees(ctx, "user_id = $1", userID)
}

func (r *staffRepository) listEmployees(ctx context.Context, cond string, arg interface{}) ([]staff.Employee, error) {
	q := GetQuerier(ctx, r.db)

	rows, err := q.Query(ctx, "SELECT id, user_id, tabel_code FROM employees WHERE "+cond+" ORDER BY id", arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query employees: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (staff.Employee, error) {
		return scanEmployee(row)
	})
}

const employmentColumns = `
	e.id, e.employee_id, e.shop_id, e.position_id, e.function_group_id,
	e.dt_hired, e.dt_fired, e.norm_work_hours`

func (r *staffRepository) ListEmployments(ctx context.Context, filter staff.EmploymentFilter) ([]staff.Employment, error) {
	w := &where{}
	if len(filter.EmployeeIDs) > 0 {
		w.add("e.employee_id = ANY(?)", filter.EmployeeIDs)
	}
	if len(filter.ShopIDs) > 0 {
		w.add("e.shop_id = ANY(?)", filter.ShopIDs)
	}
	if len(filter.UserIDs) > 0 {
		w.add("e.employee_id IN (SELECT id FROM employees WHERE user_id = ANY(?))", filter.UserIDs)
	}
	if filter.DtTo != nil {
		w.add("(e.dt_hired IS NULL OR e.dt_hired <= ?)", *filter.DtTo)
	}
	if filter.DtFrom != nil {
		w.add("(e.dt_fired IS NULL OR e.dt_fired >= ?)", *filter.DtFrom)
	}
	return r.listEmployments(ctx, w)
}

func (r *staffRepository) GetEmployment(ctx context.Context, id int64) (staff.Employment, error) {
	w := &where{}
	w.add("e.id = ?", id)
	out, err := r.listEmployments(ctx, w)
	if err != nil {
		return staff.Employment{}, err
	}
	if len(out) == 0 {
		return staff.Employment{}, staff.ErrEmploymentNotFound
	}
	return out[0], nil
}

func (r *staffRepository) listEmployments(ctx context.Context, w *where) ([]staff.Employment, error) {
	q := GetQuerier(ctx, r.db)

	rows, err := q.Query(ctx, fmt.Sprintf("SELECT %s FROM employments e WHERE %s ORDER BY e.id", employmentColumns, w), w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query employments: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (staff.Employment, error) {
		var e staff.Employment
		err := row.Scan(&e.ID, &e.EmployeeID, &e.ShopID, &e.PositionID, &e.FunctionGroupID,
			&e.DtHired, &e.DtFired, &e.NormWorkHours)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan employments: %w", err)
	}
	if len(out) == 0 {
		return out, nil
	}

	ids := make([]int64, len(out))
	index := make(map[int64]int, len(out))
	for i, e := range out {
		ids[i] = e.ID
		index[e.ID] = i
	}
	wtRows, err := q.Query(ctx, `
		SELECT employment_id, work_type_id, priority
		FROM employment_work_types
		WHERE employment_id = ANY($1)
		ORDER BY employment_id, priority DESC, work_type_id
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query employment work types: %w", err)
	}
	defer wtRows.Close()
	for wtRows.Next() {
		var (
			employmentID int64
			wt           staff.EmploymentWorkType
		)
		if err := wtRows.Scan(&employmentID, &wt.WorkTypeID, &wt.Priority); err != nil {
			return nil, fmt.Errorf("failed to scan employment work type: %w", err)
		}
		i := index[employmentID]
		out[i].WorkTypes = append(out[i].WorkTypes, wt)
	}
	return out, wtRows.Err()
}

func (r *staffRepository) ListPositions(ctx context.Context, ids []int64) ([]staff.Position, error) {
	q := GetQuerier(ctx, r.db)

	rows, err := q.Query(ctx, `
		SELECT id, network_id, name, group_id, break_policy, hours_in_dayoff_seconds, monthly_norm_hours
		FROM positions
		WHERE id = ANY($1)
		ORDER BY id
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (staff.Position, error) {
		var (
			p         staff.Position
			breakJSON []byte
			dayoff    int64
		)
		if err := row.Scan(&p.ID, &p.NetworkID, &p.Name, &p.GroupID, &breakJSON, &dayoff, &p.MonthlyNormHours); err != nil {
			return staff.Position{}, err
		}
		policy, err := decodeBreakPolicy(breakJSON)
		if err != nil {
			return staff.Position{}, err
		}
		p.BreakPolicy = policy
		p.HoursInDayoff = seconds(dayoff)
		return p, nil
	})
}

func (r *staffRepository) ListGroups(ctx context.Context, ids []int64) ([]staff.Group, error) {
	q := GetQuerier(ctx, r.db)

	rows, err := q.Query(ctx, `
		SELECT id, network_id, name, can_change_protected, subordinate_group_ids
		FROM groups
		WHERE id = ANY($1)
		ORDER BY id
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query groups: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (staff.Group, error) {
		var g staff.Group
		err := row.Scan(&g.ID, &g.NetworkID, &g.Name, &g.CanChangeProtected, &g.SubordinateGroupIDs)
		return g, err
	})
}
