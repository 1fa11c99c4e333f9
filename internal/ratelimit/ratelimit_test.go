package ratelimit

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/lookupd/lookupd/internal/model"
	"github.com/lookupd/lookupd/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClock is a manually advanced clock for deterministic tests.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(t *testing.T, cooldown time.Duration, cap int64) (*Limiter, *fakeClock, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	err := mem.CreateUser(context.Background(), &model.User{Key: "u1"})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	l := New(mem, cooldown, cap, testLogger())
	l.SetNowFunc(clock.Now)
	return l, clock, mem
}

func TestAllow_CooldownEnforced(t *testing.T) {
	l, clock, _ := newTestLimiter(t, 60*time.Second, 70)
	ctx := context.Background()

	d, err := l.Allow(ctx, "u1")
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if !d.OK {
		t.Fatalf("first Allow = %+v, want OK", d)
	}

	clock.Advance(10 * time.Second)
	d, err = l.Allow(ctx, "u1")
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if d.OK {
		t.Fatal("second Allow within cooldown should be rejected")
	}
	if d.RetryAfter != 50*time.Second {
		t.Errorf("RetryAfter = %v, want 50s", d.RetryAfter)
	}

	clock.Advance(50 * time.Second)
	d, err = l.Allow(ctx, "u1")
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if !d.OK {
		t.Errorf("Allow after cooldown = %+v, want OK", d)
	}
}

func TestAllow_DailyCap(t *testing.T) {
	l, clock, _ := newTestLimiter(t, time.Second, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := l.Allow(ctx, "u1")
		if err != nil {
			t.Fatalf("Allow #%d: %v", i+1, err)
		}
		if !d.OK {
			t.Fatalf("Allow #%d = %+v, want OK", i+1, d)
		}
		clock.Advance(time.Minute)
	}

	d, err := l.Allow(ctx, "u1")
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if d.OK || !d.Exhausted {
		t.Errorf("Allow over cap = %+v, want Exhausted", d)
	}
}

func TestAllow_WindowResetsAfterIdleDay(t *testing.T) {
	l, clock, _ := newTestLimiter(t, time.Second, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if d, _ := l.Allow(ctx, "u1"); !d.OK {
			t.Fatalf("Allow #%d rejected", i+1)
		}
		clock.Advance(time.Minute)
	}
	if d, _ := l.Allow(ctx, "u1"); !d.Exhausted {
		t.Fatal("cap should be hit")
	}

	// The reset triggers on idle time since the last accepted request,
	// not on a calendar boundary.
	clock.Advance(24*time.Hour + time.Second)
	d, err := l.Allow(ctx, "u1")
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if !d.OK {
		t.Errorf("Allow after idle window = %+v, want OK", d)
	}
}

func TestAllow_SpendsSlotImmediately(t *testing.T) {
	l, _, mem := newTestLimiter(t, time.Second, 10)
	ctx := context.Background()

	if d, _ := l.Allow(ctx, "u1"); !d.OK {
		t.Fatal("Allow rejected")
	}

	u, err := mem.GetUser(ctx, "u1")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if u.DayCount != 1 {
		t.Errorf("DayCount = %d, want 1 (slot spent before lookup runs)", u.DayCount)
	}
	if u.LastAcceptedAt.IsZero() {
		t.Error("LastAcceptedAt not set")
	}
}

func TestAllow_UnknownUser(t *testing.T) {
	l, _, _ := newTestLimiter(t, time.Second, 10)
	if _, err := l.Allow(context.Background(), "nobody"); err == nil {
		t.Fatal("Allow for unknown user should error")
	}
}
