package permission

import (
	"context"

	"github.com/cmlabs-hris/timetable-core/internal/domain/workerday"
)

type Filter struct {
	GroupIDs  []int64
	Action    Action
	GraphType workerday.GraphType
	WDType    workerday.Type
}

type Repository interface {
	List(ctx context.Context, filter Filter) ([]GroupWorkerDayPermission, error)
}
