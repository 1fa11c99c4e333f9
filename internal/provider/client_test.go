package provider

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lookupd/lookupd/internal/metrics"
	"github.com/lookupd/lookupd/internal/model"
)

func newTestClient(t *testing.T, plans Plans) *Client {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(testWriter{t}, nil))
	c := NewClient(plans, 5*time.Second, logger, metrics.NewNoop())
	c.SetShuffleFunc(func([]Attempt) {}) // keep plan order
	return c
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func TestLookupFailsOverUntilSuccess(t *testing.T) {
	var hits [3]atomic.Int64
	const payload = `{"data":[{"name":"Ada Lovelace","address":"London"}]}`

	servers := make([]*httptest.Server, 3)
	for i := range servers {
		i := i
		servers[i] = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits[i].Add(1)
			if i < 2 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			w.Write([]byte(payload))
		}))
		defer servers[i].Close()
	}

	plan := make([]Attempt, len(servers))
	for i, srv := range servers {
		plan[i] = Attempt{
			Name: attemptName("identity", i, 0),
			URL:  srv.URL + "/?q=" + queryPlaceholder,
		}
	}

	client := newTestClient(t, Plans{model.CategoryIdentity: plan})

	resp, err := client.Lookup(context.Background(), model.CategoryIdentity, "9876543210")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if resp.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", resp.Attempts)
	}
	if resp.Endpoint != plan[2].Name {
		t.Errorf("Endpoint = %q, want %q", resp.Endpoint, plan[2].Name)
	}
	if string(resp.Body) != payload {
		t.Errorf("Body = %q, want %q", resp.Body, payload)
	}
	for i := range hits {
		if got := hits[i].Load(); got != 1 {
			t.Errorf("server %d hit %d times, want 1", i, got)
		}
	}
}

func TestLookupStopsAtFirstSuccess(t *testing.T) {
	var firstHits, secondHits atomic.Int64

	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		firstHits.Add(1)
		w.Write([]byte(`{"data":[{"name":"x"}]}`))
	}))
	defer good.Close()

	spare := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secondHits.Add(1)
		w.Write([]byte(`{"data":[{"name":"y"}]}`))
	}))
	defer spare.Close()

	plan := []Attempt{
		{Name: "identity-0.0", URL: good.URL + "/?q=" + queryPlaceholder},
		{Name: "identity-1.0", URL: spare.URL + "/?q=" + queryPlaceholder},
	}
	client := newTestClient(t, Plans{model.CategoryIdentity: plan})

	resp, err := client.Lookup(context.Background(), model.CategoryIdentity, "q")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if resp.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", resp.Attempts)
	}
	if secondHits.Load() != 0 {
		t.Errorf("spare endpoint was contacted %d times, want 0", secondHits.Load())
	}
}

func TestLookupExhaustsAllCandidates(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "http errors",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
		},
		{
			name: "blocked payloads",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"message":"Rate limit exceeded, try later"}`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			plan := []Attempt{
				{Name: "identity-0.0", URL: srv.URL + "/?q=" + queryPlaceholder},
				{Name: "identity-1.0", URL: srv.URL + "/?q=" + queryPlaceholder},
			}
			client := newTestClient(t, Plans{model.CategoryIdentity: plan})

			_, err := client.Lookup(context.Background(), model.CategoryIdentity, "q")
			if !errors.Is(err, ErrExhausted) {
				t.Fatalf("Lookup() error = %v, want ErrExhausted", err)
			}
		})
	}
}

func TestLookupNoEndpoints(t *testing.T) {
	client := newTestClient(t, Plans{})
	_, err := client.Lookup(context.Background(), model.CategoryVehicle, "MH12AB1234")
	if !errors.Is(err, ErrNoEndpoints) {
		t.Fatalf("Lookup() error = %v, want ErrNoEndpoints", err)
	}
}

func TestLookupSendsBearerToken(t *testing.T) {
	var gotAuth atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
		w.Write([]byte(`{"data":[{"name":"x"}]}`))
	}))
	defer srv.Close()

	plan := []Attempt{{
		Name:  "identity-0.0",
		URL:   srv.URL + "/?q=" + queryPlaceholder,
		Token: "secret-token",
	}}
	client := newTestClient(t, Plans{model.CategoryIdentity: plan})

	if _, err := client.Lookup(context.Background(), model.CategoryIdentity, "q"); err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if got := gotAuth.Load(); got != "Bearer secret-token" {
		t.Errorf("Authorization = %q, want %q", got, "Bearer secret-token")
	}
}

func TestLookupInterpolatesQuery(t *testing.T) {
	var gotQuery atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery.Store(r.URL.Query().Get("num"))
		w.Write([]byte(`{"status":"success","country":"IN"}`))
	}))
	defer srv.Close()

	plan := []Attempt{{
		Name: "net-0",
		URL:  srv.URL + "/?num=" + queryPlaceholder,
	}}
	client := newTestClient(t, Plans{model.CategoryNetworkAddress: plan})

	if _, err := client.Lookup(context.Background(), model.CategoryNetworkAddress, "8.8.8.8"); err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if got := gotQuery.Load(); got != "8.8.8.8" {
		t.Errorf("query param = %q, want %q", got, "8.8.8.8")
	}
}

func TestLookupHonorsContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	plan := []Attempt{{Name: "identity-0.0", URL: srv.URL + "/?q=" + queryPlaceholder}}
	client := newTestClient(t, Plans{model.CategoryIdentity: plan})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := client.Lookup(ctx, model.CategoryIdentity, "q")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Lookup() error = %v, want context.Canceled", err)
	}
}

func TestIsBlocked(t *testing.T) {
	tests := []struct {
		name string
		body string
		want bool
	}{
		{"plain record", `{"data":[{"name":"x"}]}`, false},
		{"rate limit message", `{"message":"Rate Limit reached"}`, true},
		{"quota exceeded", `{"error":"quota exceeded for key"}`, true},
		{"access denied html", `<html>Access Denied</html>`, true},
		{"empty body", ``, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isBlocked([]byte(tt.body)); got != tt.want {
				t.Errorf("isBlocked(%q) = %v, want %v", tt.body, got, tt.want)
			}
		})
	}
}
