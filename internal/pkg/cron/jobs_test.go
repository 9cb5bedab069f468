package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cmlabs-hris/timetable-core/internal/domain/org"
	"github.com/cmlabs-hris/timetable-core/internal/domain/task"
	"github.com/cmlabs-hris/timetable-core/internal/domain/vacancy"
	"github.com/cmlabs-hris/timetable-core/internal/domain/workerday"
	"github.com/cmlabs-hris/timetable-core/internal/pkg/dates"
	"github.com/cmlabs-hris/timetable-core/internal/repository/memory"
)

type MockScheduler struct {
	mock.Mock
}

func (m *MockScheduler) Schedule(ctx context.Context, kind task.Kind, payload any, runAt *time.Time) error {
	args := m.Called(ctx, kind, payload, runAt)
	return args.Error(0)
}

type MockVacancyService struct {
	mock.Mock
	vacancy.Service
}

func (m *MockVacancyService) HolidayExchange(ctx context.Context, networkID int64) (vacancy.ExchangeResult, error) {
	args := m.Called(ctx, networkID)
	return vacancy.ExchangeResult{}, args.Error(0)
}

func (m *MockVacancyService) ShiftElongation(ctx context.Context, networkID int64) (vacancy.ExchangeResult, error) {
	args := m.Called(ctx, networkID)
	return vacancy.ExchangeResult{}, args.Error(0)
}

func (m *MockVacancyService) WorkerExchange(ctx context.Context, networkID int64) (vacancy.ExchangeResult, error) {
	args := m.Called(ctx, networkID)
	return vacancy.ExchangeResult{}, args.Error(0)
}

type scannerFunc func(ctx context.Context) error

func (f scannerFunc) ScanAll(ctx context.Context) error { return f(ctx) }

func TestReconcileClosedDays_OnlyShopsPastMidnight(t *testing.T) {
	store := memory.NewStore()
	utc := store.AddShop(org.Shop{NetworkID: 1, Name: "utc"})
	store.AddShop(org.Shop{NetworkID: 1, Name: "msk", TZOffsetMinutes: 180})

	tasks := new(MockScheduler)
	yesterday := dates.Date(2024, 3, 4)
	tasks.On("Schedule", mock.Anything, task.KindReconcileFact, task.ReconcilePayload{
		ShopIDs: []int64{utc.ID},
		DtFrom:  &yesterday,
		DtTo:    &yesterday,
	}, (*time.Time)(nil)).Return(nil).Once()

	jobs := NewAttendanceJobs(store.Org(), tasks)
	jobs.now = func() time.Time { return time.Date(2024, 3, 5, 0, 20, 0, 0, time.UTC) }

	require.NoError(t, jobs.ReconcileClosedDays(context.Background()))
	tasks.AssertExpectations(t)
}

func TestReconcileClosedDays_NothingDue(t *testing.T) {
	store := memory.NewStore()
	store.AddShop(org.Shop{NetworkID: 1})

	tasks := new(MockScheduler)
	jobs := NewAttendanceJobs(store.Org(), tasks)
	jobs.now = func() time.Time { return time.Date(2024, 3, 5, 14, 0, 0, 0, time.UTC) }

	require.NoError(t, jobs.ReconcileClosedDays(context.Background()))
	tasks.AssertNotCalled(t, "Schedule", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestVacancyJobs_RunPerNetwork(t *testing.T) {
	store := memory.NewStore()
	store.AddShop(org.Shop{NetworkID: 7})
	store.AddShop(org.Shop{NetworkID: 7})
	store.AddShop(org.Shop{NetworkID: 9})

	svc := new(MockVacancyService)
	svc.On("ShiftElongation", mock.Anything, int64(7)).Return(nil).Once()
	svc.On("WorkerExchange", mock.Anything, int64(7)).Return(nil).Once()
	svc.On("ShiftElongation", mock.Anything, int64(9)).Return(workerday.ExternalTransient(errors.New("bus down"))).Once()
	svc.On("HolidayExchange", mock.Anything, int64(7)).Return(nil).Once()
	svc.On("HolidayExchange", mock.Anything, int64(9)).Return(nil).Once()

	scans := 0
	jobs := NewVacancyJobs(scannerFunc(func(ctx context.Context) error {
		scans++
		return nil
	}), svc, store.Org())

	err := jobs.WorkerExchange(context.Background())
	assert.ErrorIs(t, err, workerday.ErrExternalTransient)
	require.NoError(t, jobs.HolidayExchange(context.Background()))
	require.NoError(t, jobs.ScanVacancies(context.Background()))

	assert.Equal(t, 1, scans)
	svc.AssertExpectations(t)
	svc.AssertNotCalled(t, "WorkerExchange", mock.Anything, int64(9))
}

func TestVacancyJobs_RegisterJobs(t *testing.T) {
	s := NewScheduler(0)
	jobs := NewVacancyJobs(scannerFunc(func(ctx context.Context) error { return nil }), new(MockVacancyService), memory.NewStore().Org())

	require.NoError(t, jobs.RegisterJobs(s, VacancySchedule{
		ScanInterval:        30 * time.Minute,
		HolidayExchangeSpec: "0 6 * * *",
		WorkerExchangeSpec:  "0 7 * * *",
	}))
	assert.Equal(t, []string{"vacancy_scan", "holiday_exchange", "worker_exchange"}, s.Jobs())

	err := jobs.RegisterJobs(NewScheduler(0), VacancySchedule{HolidayExchangeSpec: "bogus"})
	assert.Error(t, err)
}
