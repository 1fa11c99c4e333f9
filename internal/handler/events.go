package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/lookupd/lookupd/internal/gateway"
	"github.com/lookupd/lookupd/internal/model"
)

const maxEventBody = 64 * 1024

// EventsHandler accepts inbound chat-protocol events and hands them to
// the gateway. The HTTP side confirms admission only; the lookup itself
// runs in the worker context after this handler has returned.
type EventsHandler struct {
	gateway *gateway.Gateway
	logger  *slog.Logger
}

// NewEventsHandler creates the inbound event handler.
func NewEventsHandler(g *gateway.Gateway, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{
		gateway: g,
		logger:  logger.With("component", "handler.events"),
	}
}

type inboundEvent struct {
	UpdateID string `json:"update_id"`
	UserKey  string `json:"user_key"`
	Text     string `json:"text"`
}

// Receive handles POST /events.
//
// 202 the event is queued and will be processed.
// 400 the payload is malformed.
// 503 the gateway is not ready or the queue stayed full; the sender
// should retry after the indicated delay.
func (h *EventsHandler) Receive(w http.ResponseWriter, r *http.Request) {
	var ev inboundEvent
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventBody))
	if err := decoder.Decode(&ev); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid event payload"})
		return
	}

	if strings.TrimSpace(ev.UserKey) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_key is required"})
		return
	}

	event := model.Event{
		ID:         ev.UpdateID,
		UserKey:    ev.UserKey,
		Text:       ev.Text,
		ReceivedAt: time.Now().UTC(),
	}

	switch h.gateway.Submit(r.Context(), event) {
	case gateway.SubmitAccepted:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	case gateway.SubmitNotReady:
		w.Header().Set("Retry-After", "5")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "service not ready"})
	default:
		h.logger.Warn("event rejected, queue saturated", "user_key", ev.UserKey)
		w.Header().Set("Retry-After", "2")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "queue full, retry later"})
	}
}
