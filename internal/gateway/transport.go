package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Transport delivers rendered text back to a user over the chat protocol.
type Transport interface {
	SendMessage(ctx context.Context, userKey, text string) error
}

const sendTimeout = 10 * time.Second

// HTTPTransport posts messages to the chat-protocol HTTP API.
type HTTPTransport struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewHTTPTransport creates a transport against the given API base URL.
func NewHTTPTransport(baseURL string, logger *slog.Logger) *HTTPTransport {
	return &HTTPTransport{
		baseURL: baseURL,
		http:    &http.Client{Timeout: sendTimeout},
		logger:  logger.With("component", "transport"),
	}
}

type sendMessageRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

// SendMessage posts one outbound message. Delivery failures are
// terminal for the message; the worker never retries sends.
func (t *HTTPTransport) SendMessage(ctx context.Context, userKey, text string) error {
	payload, err := json.Marshal(sendMessageRequest{ChatID: userKey, Text: text})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/sendMessage", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.http.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("send message: http status %d", resp.StatusCode)
	}
	return nil
}

// LogTransport writes outbound messages to the log. Used when no chat
// API is configured, mainly in local development.
type LogTransport struct {
	logger *slog.Logger
}

// NewLogTransport creates the logging transport.
func NewLogTransport(logger *slog.Logger) *LogTransport {
	return &LogTransport{logger: logger.With("component", "transport")}
}

// SendMessage logs the message instead of delivering it.
func (t *LogTransport) SendMessage(_ context.Context, userKey, text string) error {
	t.logger.Info("outbound message", "user_key", userKey, "text", text)
	return nil
}
