package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cmlabs-hris/timetable-core/internal/domain/notification"
	"github.com/cmlabs-hris/timetable-core/internal/handler/http/response"
	"github.com/cmlabs-hris/timetable-core/internal/pkg/sse"
	"github.com/cmlabs-hris/timetable-core/internal/pkg/validator"
	notifsvc "github.com/cmlabs-hris/timetable-core/internal/service/notification"
)

const (
	defaultRecentLimit = 50
	maxRecentLimit     = 500
)

// EventsHandler exposes the notification bus of one network.
type EventsHandler interface {
	Stream(w http.ResponseWriter, r *http.Request)
	Recent(w http.ResponseWriter, r *http.Request)
}

type eventsHandlerImpl struct {
	hub       *sse.Hub
	repo      notification.Repository
	keepalive time.Duration
}

func NewEventsHandler(hub *sse.Hub, repo notification.Repository) EventsHandler {
	return &eventsHandlerImpl{hub: hub, repo: repo, keepalive: 30 * time.Second}
}

func networkIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "networkID"), 10, 64)
	if err != nil || id <= 0 {
		var errs validator.ValidationErrors
		errs.Add("network_id", "must be a positive integer")
		return 0, errs
	}
	return id, nil
}

// Recent returns the latest stored events of a network, newest first.
func (h *eventsHandlerImpl) Recent(w http.ResponseWriter, r *http.Request) {
	networkID, err := networkIDParam(r)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	limit := defaultRecentLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxRecentLimit {
			response.BadRequest(w, fmt.Sprintf("limit must be between 1 and %d", maxRecentLimit), nil)
			return
		}
		limit = n
	}

	events, err := h.repo.ListRecent(r.Context(), networkID, limit)
	if err != nil {
		response.HandleError(w, err)
		return
	}
	response.Success(w, events)
}

// Stream pushes events of a network to the client as they are delivered.
func (h *eventsHandlerImpl) Stream(w http.ResponseWriter, r *http.Request) {
	networkID, err := networkIDParam(r)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	// Check if streaming is supported
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	events, cleanup := h.hub.Subscribe(notifsvc.Topic(networkID))
	defer cleanup()

	fmt.Fprintf(w, "event: connected\ndata: {\"status\":\"connected\",\"network_id\":%d}\n\n", networkID)
	flusher.Flush()

	keepalive := time.NewTicker(h.keepalive)
	defer keepalive.Stop()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(event.Data)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", event.ID, event.Event, data)
			flusher.Flush()

		case <-keepalive.C:
			fmt.Fprintf(w, "event: ping\ndata: {\"timestamp\":%d}\n\n", time.Now().Unix())
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
