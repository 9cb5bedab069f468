package http

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmlabs-hris/timetable-core/internal/domain/notification"
	"github.com/cmlabs-hris/timetable-core/internal/pkg/metrics"
	"github.com/cmlabs-hris/timetable-core/internal/pkg/sse"
	"github.com/cmlabs-hris/timetable-core/internal/repository/memory"
	notifsvc "github.com/cmlabs-hris/timetable-core/internal/service/notification"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type routerFixture struct {
	router http.Handler
	hub    *sse.Hub
	events *memory.NotificationRepository
	m      *metrics.Metrics
}

func newRouterFixture(t *testing.T, ping error) *routerFixture {
	t.Helper()
	store := memory.NewStore()
	f := &routerFixture{hub: sse.NewHub(), events: store.Events(), m: metrics.New()}
	f.router = NewRouter(RouterConfig{
		Version:        "test",
		Env:            "test",
		AllowedOrigins: []string{"http://localhost:3000"},
		LogLevel:       slog.LevelError,
	}, pingFunc(func(context.Context) error { return ping }), f.m.Registry, NewEventsHandler(f.hub, f.events))
	return f
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_Health(t *testing.T) {
	t.Run("heartbeat", func(t *testing.T) {
		f := newRouterFixture(t, nil)
		assert.Equal(t, http.StatusOK, get(t, f.router, "/").Code)
	})

	t.Run("database reachable", func(t *testing.T) {
		f := newRouterFixture(t, nil)
		rec := get(t, f.router, "/healthz")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	})

	t.Run("database down", func(t *testing.T) {
		f := newRouterFixture(t, errors.New("connection refused"))
		rec := get(t, f.router, "/healthz")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), "SERVICE_UNAVAILABLE")
	})
}

func TestRouter_Metrics(t *testing.T) {
	f := newRouterFixture(t, nil)
	f.m.EventDelivered(string(notification.CodeApprove))

	rec := get(t, f.router, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `timetable_events_delivered_total{code="approve"} 1`)
}

func TestRouter_RecentEvents(t *testing.T) {
	f := newRouterFixture(t, nil)
	ctx := context.Background()
	for i, code := range []notification.Code{notification.CodeVacancyCreated, notification.CodeApprove} {
		_, err := f.events.Save(ctx, notification.Event{
			ID:        uuid.New(),
			NetworkID: 1,
			Code:      code,
			Context:   map[string]any{},
			CreatedAt: time.Date(2024, time.March, 1, 10, i, 0, 0, time.UTC),
		})
		require.NoError(t, err)
	}

	t.Run("limit", func(t *testing.T) {
		rec := get(t, f.router, "/events/1/recent?limit=1")
		require.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			Success bool                 `json:"success"`
			Data    []notification.Event `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.True(t, body.Success)
		assert.Len(t, body.Data, 1)
	})

	t.Run("bad limit", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, get(t, f.router, "/events/1/recent?limit=0").Code)
	})

	t.Run("bad network", func(t *testing.T) {
		rec := get(t, f.router, "/events/abc/recent")
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Contains(t, rec.Body.String(), "network_id")
	})
}

func TestRouter_StreamEvents(t *testing.T) {
	f := newRouterFixture(t, nil)
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events/7", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := bufio.NewReader(resp.Body)
	readUntil := func(prefix string) string {
		for {
			line, err := lines.ReadString('\n')
			if err == io.EOF {
				t.Fatalf("stream closed before %q", prefix)
			}
			require.NoError(t, err)
			if strings.HasPrefix(line, prefix) {
				return strings.TrimSpace(line)
			}
		}
	}

	assert.Equal(t, "event: connected", readUntil("event:"))
	require.Eventually(t, func() bool {
		return f.hub.SubscriberCount(notifsvc.Topic(7)) == 1
	}, time.Second, 10*time.Millisecond)

	f.hub.Publish(notifsvc.Topic(7), sse.Event{
		Event: string(notification.CodeVacancyCreated),
		ID:    "evt-1",
		Data:  map[string]any{"worker_day_id": 42},
	})

	assert.Equal(t, "id: evt-1", readUntil("id:"))
	assert.Equal(t, "event: vacancy_created", readUntil("event:"))
	assert.Equal(t, `data: {"worker_day_id":42}`, readUntil("data:"))
}
