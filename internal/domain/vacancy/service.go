package vacancy

import (
	"context"

	"github.com/cmlabs-hris/timetable-core/internal/domain/workerday"
)

type Service interface {
	CreateVacanciesAndNotify(ctx context.Context, req CreateRequest) (CreateResult, error)
	CancelVacancies(ctx context.Context, req CancelRequest) (CancelResult, error)
	Confirm(ctx context.Context, req ConfirmRequest) (workerday.WorkerDay, error)
	Refuse(ctx context.Context, req RefuseRequest) (workerday.WorkerDay, error)
	HolidayExchange(ctx context.Context, networkID int64) (ExchangeResult, error)
	ShiftElongation(ctx context.Context, networkID int64) (ExchangeResult, error)
	WorkerExchange(ctx context.Context, networkID int64) (ExchangeResult, error)
}
