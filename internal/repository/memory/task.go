package memory

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/cmlabs-hris/timetable-core/internal/domain/notification"
	"github.com/cmlabs-hris/timetable-core/internal/domain/task"
)

type TaskRepository struct {
	s *Store
}

func (r *TaskRepository) Enqueue(ctx context.Context, tk task.Task) error {
	return r.s.write(ctx, func(t *tables) error {
		now := r.s.now()
		tk.CreatedAt, tk.UpdatedAt = now, now
		if tk.Status == "" {
			tk.Status = task.StatusPending
		}
		t.tasks[tk.ID] = tk
		return nil
	})
}

func (r *TaskRepository) ClaimDue(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]task.Task, error) {
	var claimed []task.Task
	err := r.s.write(ctx, func(t *tables) error {
		var due []task.Task
		for _, tk := range t.tasks {
			if (tk.Status == task.StatusPending || tk.Status == task.StatusRunning) && !tk.RunAt.After(now) {
				due = append(due, tk)
			}
		}
		slices.SortFunc(due, func(a, b task.Task) int {
			if c := a.RunAt.Compare(b.RunAt); c != 0 {
				return c
			}
			return a.CreatedAt.Compare(b.CreatedAt)
		})
		if limit > 0 && len(due) > limit {
			due = due[:limit]
		}
		for _, tk := range due {
			tk.Status = task.StatusRunning
			tk.Attempts++
			tk.RunAt = now.Add(lease)
			tk.UpdatedAt = now
			t.tasks[tk.ID] = tk
			claimed = append(claimed, tk)
		}
		return nil
	})
	return claimed, err
}

func (r *TaskRepository) MarkDone(ctx context.Context, id uuid.UUID) error {
	return r.s.write(ctx, func(t *tables) error {
		tk, ok := t.tasks[id]
		if !ok {
			return task.ErrTaskNotFound
		}
		tk.Status = task.StatusDone
		tk.LastError = ""
		tk.UpdatedAt = r.s.now()
		t.tasks[id] = tk
		return nil
	})
}

func (r *TaskRepository) MarkFailed(ctx context.Context, id uuid.UUID, lastErr string, retryAt *time.Time) error {
	return r.s.write(ctx, func(t *tables) error {
		tk, ok := t.tasks[id]
		if !ok {
			return task.ErrTaskNotFound
		}
		tk.LastError = lastErr
		tk.UpdatedAt = r.s.now()
		if retryAt == nil {
			tk.Status = task.StatusDead
		} else {
			tk.Status = task.StatusPending
			tk.RunAt = *retryAt
		}
		t.tasks[id] = tk
		return nil
	})
}

func (r *TaskRepository) Get(ctx context.Context, id uuid.UUID) (task.Task, error) {
	var (
		tk task.Task
		ok bool
	)
	r.s.read(func(t *tables) { tk, ok = t.tasks[id] })
	if !ok {
		return task.Task{}, task.ErrTaskNotFound
	}
	return tk, nil
}

func (r *TaskRepository) ListByStatus(ctx context.Context, status task.Status, limit int) ([]task.Task, error) {
	var out []task.Task
	r.s.read(func(t *tables) {
		for _, tk := range t.tasks {
			if tk.Status == status {
				out = append(out, tk)
			}
		}
	})
	slices.SortFunc(out, func(a, b task.Task) int { return a.CreatedAt.Compare(b.CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type NotificationRepository struct {
	s *Store
}

func (r *NotificationRepository) Save(ctx context.Context, e notification.Event) (bool, error) {
	inserted := false
	err := r.s.write(ctx, func(t *tables) error {
		if _, exists := t.events[e.ID]; exists {
			return nil
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = r.s.now()
		}
		t.events[e.ID] = e
		inserted = true
		return nil
	})
	return inserted, err
}

func (r *NotificationRepository) Get(ctx context.Context, id uuid.UUID) (notification.Event, error) {
	var (
		e  notification.Event
		ok bool
	)
	r.s.read(func(t *tables) { e, ok = t.events[id] })
	if !ok {
		return notification.Event{}, notification.ErrEventNotFound
	}
	return e, nil
}

func (r *NotificationRepository) ListRecent(ctx context.Context, networkID int64, limit int) ([]notification.Event, error) {
	var out []notification.Event
	r.s.read(func(t *tables) {
		for _, e := range t.events {
			if e.NetworkID == networkID {
				out = append(out, e)
			}
		}
	})
	slices.SortFunc(out, func(a, b notification.Event) int { return b.CreatedAt.Compare(a.CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
