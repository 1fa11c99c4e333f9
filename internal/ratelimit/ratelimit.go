// Package ratelimit enforces the per-user cooldown and daily cap.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lookupd/lookupd/internal/model"
	"github.com/lookupd/lookupd/internal/store"
)

// dayWindow is the quota window. The counter resets when more than this
// much time has passed since the user's last accepted request, not at a
// calendar boundary. A user who spaces requests just under 24h apart
// keeps the same window indefinitely; that matches the behavior this
// limiter replaces and is kept deliberately.
const dayWindow = 24 * time.Hour

// Decision is the outcome of an Allow call.
type Decision struct {
	OK         bool
	RetryAfter time.Duration // cooldown remaining when !OK and !Exhausted
	Exhausted  bool          // daily cap hit; no finite wait applies
}

// Store is the persistence contract the limiter needs. Satisfied by
// *repository.Repository and *store.Memory.
type Store interface {
	GetUser(ctx context.Context, key string) (*model.User, error)
	SaveQuota(ctx context.Context, key string, lastAcceptedAt, dayStartedAt time.Time, dayCount int64) error
}

// Limiter applies a cooldown between accepted requests and a rolling
// daily cap per user. An accepted request spends its quota slot before
// the lookup runs, so an aborted lookup still counts; this is the
// intended tradeoff to keep retry storms from multiplying load.
type Limiter struct {
	store    Store
	locks    *store.KeyLock
	cooldown time.Duration
	dailyCap int64
	now      func() time.Time
	logger   *slog.Logger
}

// New creates a Limiter.
func New(s Store, cooldown time.Duration, dailyCap int64, logger *slog.Logger) *Limiter {
	return &Limiter{
		store:    s,
		locks:    store.NewKeyLock(),
		cooldown: cooldown,
		dailyCap: dailyCap,
		now:      time.Now,
		logger:   logger.With("component", "ratelimit"),
	}
}

// SetNowFunc overrides the clock for tests.
func (l *Limiter) SetNowFunc(now func() time.Time) {
	l.now = now
}

// Allow checks and, when allowed, immediately spends a quota slot for
// the user: last-accepted is set and the day counter incremented before
// the caller attempts the lookup.
func (l *Limiter) Allow(ctx context.Context, userKey string) (Decision, error) {
	l.locks.Lock(userKey)
	defer l.locks.Unlock(userKey)

	user, err := l.store.GetUser(ctx, userKey)
	if err != nil {
		return Decision{}, fmt.Errorf("allow: %w", err)
	}

	now := l.now()
	sinceLast := now.Sub(user.LastAcceptedAt)

	// Idle for longer than the window: start a fresh quota day.
	if sinceLast > dayWindow {
		user.DayCount = 0
		user.DayStartedAt = now
	}

	if sinceLast < l.cooldown {
		return Decision{RetryAfter: l.cooldown - sinceLast}, nil
	}

	if l.dailyCap > 0 && user.DayCount >= l.dailyCap {
		l.logger.Info("daily cap reached", "user_key", userKey, "day_count", user.DayCount)
		return Decision{Exhausted: true}, nil
	}

	user.LastAcceptedAt = now
	user.DayCount++
	if err := l.store.SaveQuota(ctx, userKey, user.LastAcceptedAt, user.DayStartedAt, user.DayCount); err != nil {
		return Decision{}, fmt.Errorf("allow: %w", err)
	}

	return Decision{OK: true}, nil
}
