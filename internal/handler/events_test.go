package handler

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lookupd/lookupd/internal/gateway"
	"github.com/lookupd/lookupd/internal/metrics"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestReceiveRejectsMalformedPayload(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "not json at all"},
		{"missing user key", `{"text":"/help"}`},
		{"blank user key", `{"user_key":"   ","text":"/help"}`},
	}

	g := gateway.New(nil, 1, time.Millisecond, discardLogger(), metrics.NewNoop())
	h := NewEventsHandler(g, discardLogger())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/events", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()

			h.Receive(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestReceiveNotReadyBeforeGatewayRuns(t *testing.T) {
	g := gateway.New(nil, 1, time.Millisecond, discardLogger(), metrics.NewNoop())
	h := NewEventsHandler(g, discardLogger())

	req := httptest.NewRequest(http.MethodPost, "/events",
		strings.NewReader(`{"update_id":"1","user_key":"user-1","text":"/help"}`))
	rec := httptest.NewRecorder()

	h.Receive(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}
}
