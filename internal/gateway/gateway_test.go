package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lookupd/lookupd/internal/metrics"
	"github.com/lookupd/lookupd/internal/model"
)

func newTestGateway(t *testing.T, queueSize int, submitWait time.Duration) (*Gateway, *workerFixture) {
	t.Helper()
	f := newWorkerFixture(t, 0)
	logger := slog.New(slog.NewTextHandler(testLogWriter{t}, nil))
	g := New(f.worker, queueSize, submitWait, logger, metrics.NewNoop())
	return g, f
}

func startGateway(t *testing.T, g *Gateway) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- g.Run(ctx) }()

	waitFor(t, func() bool { return g.State() == StateReady })

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-errCh:
			if err != nil {
				t.Errorf("Run() error = %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("Run() did not return after cancel")
		}
	})
	return cancel
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}

func event(userKey, text string) model.Event {
	return model.Event{ID: "evt-1", UserKey: userKey, Text: text, ReceivedAt: time.Now()}
}

func TestSubmitBeforeRunIsNotReady(t *testing.T) {
	g, _ := newTestGateway(t, 4, 50*time.Millisecond)

	if got := g.Submit(context.Background(), event("user-1", "/help")); got != SubmitNotReady {
		t.Errorf("Submit() = %v, want SubmitNotReady", got)
	}
}

func TestSubmitAcceptedAndProcessed(t *testing.T) {
	g, f := newTestGateway(t, 4, time.Second)
	startGateway(t, g)

	if got := g.Submit(context.Background(), event("user-1", "/help")); got != SubmitAccepted {
		t.Fatalf("Submit() = %v, want SubmitAccepted", got)
	}

	waitFor(t, func() bool {
		return strings.Contains(f.transport.lastTo("user-1"), "/phone")
	})
}

func TestSubmitTimesOutWhenQueueStaysFull(t *testing.T) {
	g, f := newTestGateway(t, 1, 50*time.Millisecond)

	// Block the worker inside its first event so the queue backs up.
	release := make(chan struct{})
	blocking := &blockingTransport{release: release, inner: f.transport, entered: make(chan struct{})}
	f.worker.transport = blocking

	startGateway(t, g)

	if got := g.Submit(context.Background(), event("user-1", "/help")); got != SubmitAccepted {
		t.Fatalf("Submit() first = %v, want SubmitAccepted", got)
	}
	<-blocking.entered // worker is now stuck in the first event

	if got := g.Submit(context.Background(), event("user-2", "/help")); got != SubmitAccepted {
		t.Fatalf("Submit() second = %v, want SubmitAccepted (queued)", got)
	}
	if got := g.Submit(context.Background(), event("user-3", "/help")); got != SubmitFailed {
		t.Errorf("Submit() third = %v, want SubmitFailed", got)
	}

	close(release)
}

type blockingTransport struct {
	release chan struct{}
	inner   Transport
	once    bool
	entered chan struct{}
}

func (t *blockingTransport) SendMessage(ctx context.Context, userKey, text string) error {
	if !t.once {
		t.once = true
		close(t.entered)
		<-t.release
	}
	return t.inner.SendMessage(ctx, userKey, text)
}

func TestShutdownDrainsAcceptedEvents(t *testing.T) {
	g, f := newTestGateway(t, 8, time.Second)
	startGateway(t, g)

	for _, user := range []string{"user-1", "user-2", "user-3"} {
		if got := g.Submit(context.Background(), event(user, "/start")); got != SubmitAccepted {
			t.Fatalf("Submit(%s) = %v, want SubmitAccepted", user, got)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := g.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	if g.State() != StateStopped {
		t.Errorf("state after shutdown = %s, want stopped", g.State())
	}

	for _, user := range []string{"user-1", "user-2", "user-3"} {
		if got := f.transport.lastTo(user); !strings.Contains(got, "/phone") {
			t.Errorf("user %s never got a welcome message", user)
		}
	}

	if got := g.Submit(context.Background(), event("user-4", "/help")); got != SubmitNotReady {
		t.Errorf("Submit() after shutdown = %v, want SubmitNotReady", got)
	}
}

func TestShutdownNeverStrandsAcceptedEvent(t *testing.T) {
	g, f := newTestGateway(t, 8, 100*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- g.Run(ctx) }()
	waitFor(t, func() bool { return g.State() == StateReady })

	// Hammer Submit from several goroutines while shutdown races the
	// admissions. Every event reported Accepted must be processed
	// before Run returns.
	var mu sync.Mutex
	accepted := make(map[string]struct{})

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(submitter int) {
			defer wg.Done()
			for n := 0; ; n++ {
				select {
				case <-stop:
					return
				default:
				}
				key := fmt.Sprintf("user-%d-%d", submitter, n)
				if g.Submit(context.Background(), event(key, "/help")) == SubmitAccepted {
					mu.Lock()
					accepted[key] = struct{}{}
					mu.Unlock()
				}
			}
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
	close(stop)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(accepted) == 0 {
		t.Fatal("no events were accepted before shutdown")
	}
	for key := range accepted {
		if f.transport.lastTo(key) == "" {
			t.Errorf("event for %q was accepted but never processed", key)
		}
	}
}

func TestRunTwiceFails(t *testing.T) {
	g, _ := newTestGateway(t, 4, time.Second)
	startGateway(t, g)

	if err := g.Run(context.Background()); err == nil {
		t.Fatal("second Run() returned nil error")
	}
}

func TestStateStrings(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateUninitialized, "uninitialized"},
		{StateStarting, "starting"},
		{StateReady, "ready"},
		{StateDraining, "draining"},
		{StateStopped, "stopped"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
