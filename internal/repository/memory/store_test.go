package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmlabs-hris/timetable-core/internal/domain/task"
	"github.com/cmlabs-hris/timetable-core/internal/domain/workerday"
	"github.com/cmlabs-hris/timetable-core/internal/pkg/dates"
)

func holiday(empID int64, dt time.Time) *workerday.WorkerDay {
	return &workerday.WorkerDay{EmployeeID: &empID, Dt: dt, Type: workerday.TypeHoliday, IsApproved: true}
}

func TestStore_WithinTxRollsBack(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	repo := s.WorkerDays()
	dt := dates.Date(2024, 3, 1)

	require.NoError(t, repo.Create(ctx, holiday(1, dt)))

	boom := errors.New("boom")
	err := s.WithinTx(ctx, func(ctx context.Context) error {
		require.NoError(t, repo.Create(ctx, holiday(2, dt)))
		rows, err := repo.List(ctx, workerday.NewQuery())
		require.NoError(t, err)
		assert.Len(t, rows, 2)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	rows, err := repo.List(ctx, workerday.NewQuery())
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestStore_WithinTxCommitsAndNests(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	repo := s.WorkerDays()
	dt := dates.Date(2024, 3, 1)

	err := s.WithinTx(ctx, func(ctx context.Context) error {
		if err := repo.Create(ctx, holiday(1, dt)); err != nil {
			return err
		}
		return s.WithinTx(ctx, func(ctx context.Context) error {
			return repo.Create(ctx, holiday(2, dt))
		})
	})
	require.NoError(t, err)

	rows, err := repo.List(ctx, workerday.NewQuery().Approved())
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestWorkerDayRepository_OneRowPerSlot(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().WorkerDays()
	dt := dates.Date(2024, 3, 1)

	first := holiday(1, dt)
	require.NoError(t, repo.Create(ctx, first))

	err := repo.Create(ctx, holiday(1, dt))
	assert.ErrorIs(t, err, workerday.ErrInvariantViolation)

	draft := workerday.DraftOf(*first, workerday.SourceOnApprove)
	require.NoError(t, repo.Create(ctx, &draft), "drafts have their own slot")

	draft.IsApproved = true
	assert.ErrorIs(t, repo.Update(ctx, &draft), workerday.ErrInvariantViolation)

	require.NoError(t, repo.Update(ctx, first), "a row never collides with itself")

	for range 2 {
		v := &workerday.WorkerDay{Dt: dt, Type: workerday.TypeWorkday, IsVacancy: true, IsApproved: true}
		require.NoError(t, repo.Create(ctx, v))
	}
}

func TestWorkerDayRepository_DeleteClearsReferences(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	repo := s.WorkerDays()
	dt := dates.Date(2024, 3, 1)

	approved := holiday(1, dt)
	require.NoError(t, repo.Create(ctx, approved))
	draft := workerday.DraftOf(*approved, workerday.SourceOnApprove)
	require.NoError(t, repo.Create(ctx, &draft))

	require.NoError(t, repo.Delete(ctx, []int64{approved.ID}))

	got, err := repo.GetByID(ctx, draft.ID)
	require.NoError(t, err)
	assert.Nil(t, got.ParentWorkerDayID)

	_, err = repo.GetByID(ctx, approved.ID)
	assert.ErrorIs(t, err, workerday.ErrWorkerDayNotFound)
}

func TestWorkerDayRepository_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	repo := s.WorkerDays()

	wd := holiday(1, dates.Date(2024, 3, 1))
	require.NoError(t, repo.Create(ctx, wd))

	got, err := repo.GetByID(ctx, wd.ID)
	require.NoError(t, err)
	*got.EmployeeID = 99

	again, err := repo.GetByID(ctx, wd.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), *again.EmployeeID)
}

func TestTaskRepository_ClaimDue(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	repo := s.Tasks()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return now })

	due := task.Task{ID: uuid.New(), Kind: task.KindVacancyScan, RunAt: now.Add(-time.Minute)}
	later := task.Task{ID: uuid.New(), Kind: task.KindVacancyScan, RunAt: now.Add(time.Hour)}
	require.NoError(t, repo.Enqueue(ctx, due))
	require.NoError(t, repo.Enqueue(ctx, later))

	claimed, err := repo.ClaimDue(ctx, now, 10, 5*time.Minute)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, due.ID, claimed[0].ID)
	assert.Equal(t, task.StatusRunning, claimed[0].Status)
	assert.Equal(t, 1, claimed[0].Attempts)

	// leased tasks are not claimed again until the lease runs out
	claimed, err = repo.ClaimDue(ctx, now.Add(time.Minute), 10, 5*time.Minute)
	require.NoError(t, err)
	assert.Empty(t, claimed)

	claimed, err = repo.ClaimDue(ctx, now.Add(6*time.Minute), 10, 5*time.Minute)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, 2, claimed[0].Attempts)

	require.NoError(t, repo.MarkFailed(ctx, due.ID, "broken", nil))
	got, err := repo.Get(ctx, due.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusDead, got.Status)
	assert.Equal(t, "broken", got.LastError)
}
