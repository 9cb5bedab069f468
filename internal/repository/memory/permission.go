package memory

import (
	"context"
	"slices"

	"github.com/cmlabs-hris/timetable-core/internal/domain/permission"
)

type PermissionRepository struct {
	s *Store
}

func (r *PermissionRepository) List(ctx context.Context, filter permission.Filter) ([]permission.GroupWorkerDayPermission, error) {
	var out []permission.GroupWorkerDayPermission
	r.s.read(func(t *tables) {
		for _, p := range t.permissions {
			if len(filter.GroupIDs) > 0 && !slices.Contains(filter.GroupIDs, p.GroupID) {
				continue
			}
			if filter.Action != "" && p.Action != filter.Action {
				continue
			}
			if filter.GraphType != "" && p.GraphType != filter.GraphType {
				continue
			}
			if filter.WDType != "" && p.WDType != filter.WDType {
				continue
			}
			out = append(out, p)
		}
	})
	return out, nil
}
