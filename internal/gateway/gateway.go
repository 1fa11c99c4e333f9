// Package gateway receives inbound chat events and dispatches them into
// the single worker context where all lookup state lives. The gateway
// is the only bridge between the request-serving handlers and the
// worker loop.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lookupd/lookupd/internal/metrics"
	"github.com/lookupd/lookupd/internal/model"
)

// State is the gateway lifecycle state.
type State int32

const (
	StateUninitialized State = iota
	StateStarting
	StateReady
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// SubmitResult reports the outcome of handing an event to the worker.
type SubmitResult int

const (
	// SubmitAccepted means the event is queued and will run to
	// completion regardless of what the caller does next.
	SubmitAccepted SubmitResult = iota
	// SubmitNotReady means the gateway is not accepting events.
	SubmitNotReady
	// SubmitFailed means the queue stayed full for the whole bounded wait.
	SubmitFailed
)

// Gateway owns the event queue and the worker goroutine that drains it.
type Gateway struct {
	worker     *Worker
	queue      chan model.Event
	submitWait time.Duration
	logger     *slog.Logger
	metrics    metrics.Recorder

	mu    sync.Mutex
	state State

	// admitting counts Submit calls that passed the ready check but
	// have not finished enqueueing yet. Shutdown waits for them before
	// the final queue sweep so an accepted event is never stranded.
	admitting sync.WaitGroup

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a gateway in the uninitialized state.
func New(worker *Worker, queueSize int, submitWait time.Duration, logger *slog.Logger, recorder metrics.Recorder) *Gateway {
	if queueSize <= 0 {
		queueSize = 256
	}
	if submitWait <= 0 {
		submitWait = 2 * time.Second
	}
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Gateway{
		worker:     worker,
		queue:      make(chan model.Event, queueSize),
		submitWait: submitWait,
		logger:     logger.With("component", "gateway"),
		metrics:    recorder,
		state:      StateUninitialized,
	}
}

// State returns the current lifecycle state.
func (g *Gateway) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Ready reports whether the gateway accepts new events.
func (g *Gateway) Ready() bool {
	return g.State() == StateReady
}

// Submit hands an event to the worker context with a bounded wait for
// queue admission. The caller's context bounds the wait only; once
// accepted, the event runs to completion on the worker's own context.
func (g *Gateway) Submit(ctx context.Context, event model.Event) SubmitResult {
	g.mu.Lock()
	if g.state != StateReady {
		g.mu.Unlock()
		g.metrics.IncEventSubmitted("not_ready")
		return SubmitNotReady
	}
	g.admitting.Add(1)
	g.mu.Unlock()
	defer g.admitting.Done()

	timer := time.NewTimer(g.submitWait)
	defer timer.Stop()

	select {
	case g.queue <- event:
		g.metrics.IncEventSubmitted("accepted")
		g.metrics.SetGatewayQueueDepth(int64(len(g.queue)))
		return SubmitAccepted
	case <-timer.C:
		g.logger.Warn("event queue full, submission timed out",
			"user_key", event.UserKey,
			"queue_depth", len(g.queue),
		)
		g.metrics.IncEventSubmitted("queue_full")
		return SubmitFailed
	case <-ctx.Done():
		g.metrics.IncEventSubmitted("caller_gone")
		return SubmitFailed
	}
}

// Run starts the worker loop and blocks until the context is cancelled
// or Shutdown drains the gateway. Only one Run call is permitted.
func (g *Gateway) Run(ctx context.Context) error {
	g.mu.Lock()
	if g.state != StateUninitialized {
		state := g.state
		g.mu.Unlock()
		return fmt.Errorf("gateway already started (state %s)", state)
	}
	g.state = StateStarting
	g.done = make(chan struct{})
	ctx, g.cancel = context.WithCancel(ctx)
	g.mu.Unlock()

	defer close(g.done)

	if err := g.worker.Warmup(ctx); err != nil {
		g.setState(StateStopped)
		return fmt.Errorf("worker warmup: %w", err)
	}

	g.setState(StateReady)
	g.logger.Info("gateway ready", "queue_capacity", cap(g.queue))

	for {
		select {
		case <-ctx.Done():
			g.drain()
			g.setState(StateStopped)
			// A Submit that passed the ready check before the state
			// flipped may still land an event after the drain above.
			// No new admissions can start once the state left Ready,
			// so waiting them out and sweeping again closes the gap.
			g.admitting.Wait()
			g.drain()
			g.logger.Info("gateway stopped")
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case event := <-g.queue:
			g.metrics.SetGatewayQueueDepth(int64(len(g.queue)))
			g.handle(event)
		}
	}
}

// Shutdown stops accepting events, drains the queue, and waits for the
// in-flight work unit. It implements server.ShutdownFunc.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	if g.state != StateReady && g.state != StateStarting {
		g.mu.Unlock()
		return nil
	}
	g.state = StateDraining
	cancel := g.cancel
	done := g.done
	g.mu.Unlock()

	g.logger.Info("gateway shutdown initiated", "queued", len(g.queue))

	if cancel != nil {
		cancel()
	}

	if done != nil {
		select {
		case <-done:
			g.logger.Info("gateway shutdown complete")
			return nil
		case <-ctx.Done():
			g.logger.Warn("gateway shutdown timed out", "queued", len(g.queue))
			return ctx.Err()
		}
	}
	return nil
}

// drain processes everything already admitted before stopping. Accepted
// events run to completion even during shutdown.
func (g *Gateway) drain() {
	for {
		select {
		case event := <-g.queue:
			g.handle(event)
		default:
			return
		}
	}
}

// handle runs one work unit. The worker catches panics itself so a
// poison event never kills the loop; this guard is the last resort.
func (g *Gateway) handle(event model.Event) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("work unit panic escaped worker",
				"user_key", event.UserKey,
				"panic", r,
			)
		}
	}()

	// Worker context is detached from any request-side deadline.
	g.worker.Handle(context.Background(), event)
}

func (g *Gateway) setState(s State) {
	g.mu.Lock()
	prev := g.state
	// Shutdown may have moved us to draining while Run was transitioning.
	if prev == StateDraining && s == StateReady {
		g.mu.Unlock()
		return
	}
	g.state = s
	g.mu.Unlock()

	if prev != s {
		g.logger.Info("gateway state changed", "from", prev.String(), "to", s.String())
	}
}
