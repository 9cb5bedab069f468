package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/cmlabs-hris/timetable-core/internal/domain/notification"
	"github.com/cmlabs-hris/timetable-core/internal/domain/task"
	"github.com/cmlabs-hris/timetable-core/internal/pkg/metrics"
	"github.com/cmlabs-hris/timetable-core/internal/pkg/sse"
)

// publisher puts events on the outbox; they reach subscribers only after
// the surrounding transaction commits.
type publisher struct {
	tasks task.Scheduler
	now   func() time.Time
}

func NewPublisher(tasks task.Scheduler) notification.Publisher {
	return &publisher{tasks: tasks, now: time.Now}
}

func (p *publisher) Publish(ctx context.Context, e notification.Event) error {
	if e.NetworkID == 0 {
		return notification.ErrUnknownNetwork
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = p.now().UTC()
	}
	if e.Context == nil {
		e.Context = map[string]any{}
	}
	return p.tasks.Schedule(ctx, task.KindPublishEvent, task.PublishEventPayload{Event: e}, nil)
}

// Deliverer stores events and fans them out to SSE subscribers of their
// network. A redelivered event is stored and fanned out once.
type Deliverer struct {
	repo    notification.Repository
	hub     *sse.Hub
	metrics *metrics.Metrics
}

func NewDeliverer(repo notification.Repository, hub *sse.Hub, m *metrics.Metrics) *Deliverer {
	return &Deliverer{repo: repo, hub: hub, metrics: m}
}

func (d *Deliverer) Deliver(ctx context.Context, e notification.Event) error {
	inserted, err := d.repo.Save(ctx, e)
	if err != nil {
		return fmt.Errorf("save event %s: %w", e.ID, err)
	}
	if !inserted {
		slog.Debug("Event already delivered", "event_id", e.ID, "code", e.Code)
		return nil
	}

	receivers := 0
	if d.hub != nil {
		topic := Topic(e.NetworkID)
		receivers = d.hub.Publish(topic, sse.Event{
			Topic: topic,
			Event: string(e.Code),
			ID:    e.ID.String(),
			Data:  e,
		})
	}
	d.metrics.EventDelivered(string(e.Code))
	slog.Info("Event delivered", "event_id", e.ID, "code", e.Code, "network_id", e.NetworkID, "receivers", receivers)
	return nil
}

// Handler adapts Deliver to the publish_event task.
func (d *Deliverer) Handler() task.Handler {
	return func(ctx context.Context, t task.Task) error {
		var p task.PublishEventPayload
		if err := json.Unmarshal(t.Payload, &p); err != nil {
			return fmt.Errorf("%w: %v", task.ErrInvalidPayload, err)
		}
		return d.Deliver(ctx, p.Event)
	}
}

// Topic is the SSE topic carrying a network's events.
func Topic(networkID int64) string {
	return strconv.FormatInt(networkID, 10)
}
