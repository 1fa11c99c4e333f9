// Package ledger owns per-user credit balances. Every debit, refund,
// and administrative top-up flows through here.
//
// A debit consumes the free-use pool first and the paid balance second,
// and returns a Charge receipt naming the pool it hit. A refund reverses
// exactly that receipt, so a lookup that produced no usable data always
// restores the pre-debit state. Updates to a given user's record are
// serialized through sharded key locks; different users never block
// each other.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lookupd/lookupd/internal/metrics"
	"github.com/lookupd/lookupd/internal/model"
	"github.com/lookupd/lookupd/internal/store"
)

// ErrInsufficientCredit is returned when neither pool can cover a debit.
var ErrInsufficientCredit = errors.New("insufficient credit")

// Pool identifies which credit pool a charge was taken from.
type Pool string

const (
	// PoolFree is the trial pool consumed before the paid balance.
	PoolFree Pool = "free"
	// PoolBalance is the paid credit balance.
	PoolBalance Pool = "balance"
)

// Charge is the receipt for one debit. It records the pool and amount
// so a later refund is unambiguous.
type Charge struct {
	UserKey string
	Pool    Pool
	Amount  int64
}

// Zero reports whether the charge carries no debit.
func (c Charge) Zero() bool {
	return c.Amount == 0
}

// Store is the persistence contract the ledger needs. Satisfied by
// *repository.Repository and *store.Memory.
type Store interface {
	GetUser(ctx context.Context, key string) (*model.User, error)
	SaveCredits(ctx context.Context, key string, balance, freeUses, totalLookups int64) error
	InsertTopUp(ctx context.Context, token, key string, amount int64) (bool, error)
}

// Ledger gates access to credits with per-user serialization.
type Ledger struct {
	store   Store
	locks   *store.KeyLock
	cost    int64
	logger  *slog.Logger
	metrics metrics.Recorder
}

// New creates a Ledger charging cost credits per lookup.
func New(s Store, cost int64, logger *slog.Logger, recorder metrics.Recorder) *Ledger {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if cost <= 0 {
		cost = 1
	}
	return &Ledger{
		store:   s,
		locks:   store.NewKeyLock(),
		cost:    cost,
		logger:  logger.With("component", "ledger"),
		metrics: recorder,
	}
}

// Debit charges one lookup. The free-use pool is consumed first; if it
// is empty the paid balance is charged. Returns ErrInsufficientCredit
// without touching either pool when the user cannot afford the lookup.
func (l *Ledger) Debit(ctx context.Context, userKey string) (Charge, error) {
	l.locks.Lock(userKey)
	defer l.locks.Unlock(userKey)

	user, err := l.store.GetUser(ctx, userKey)
	if err != nil {
		return Charge{}, fmt.Errorf("debit: %w", err)
	}

	var charge Charge
	switch {
	case user.FreeUses > 0:
		user.FreeUses--
		charge = Charge{UserKey: userKey, Pool: PoolFree, Amount: 1}
	case user.Balance >= l.cost:
		user.Balance -= l.cost
		charge = Charge{UserKey: userKey, Pool: PoolBalance, Amount: l.cost}
	default:
		return Charge{}, ErrInsufficientCredit
	}

	user.TotalLookups++
	if err := l.store.SaveCredits(ctx, userKey, user.Balance, user.FreeUses, user.TotalLookups); err != nil {
		return Charge{}, fmt.Errorf("debit: %w", err)
	}

	l.metrics.IncLedgerDebit(string(charge.Pool))
	l.logger.Debug("debit",
		"user_key", userKey,
		"pool", charge.Pool,
		"balance", user.Balance,
		"free_uses", user.FreeUses,
	)

	return charge, nil
}

// Refund reverses a prior debit, restoring the exact pool it was taken
// from. A zero charge is a no-op so callers can refund unconditionally
// in cleanup paths.
func (l *Ledger) Refund(ctx context.Context, charge Charge) error {
	if charge.Zero() {
		return nil
	}

	l.locks.Lock(charge.UserKey)
	defer l.locks.Unlock(charge.UserKey)

	user, err := l.store.GetUser(ctx, charge.UserKey)
	if err != nil {
		return fmt.Errorf("refund: %w", err)
	}

	switch charge.Pool {
	case PoolFree:
		user.FreeUses += charge.Amount
	case PoolBalance:
		user.Balance += charge.Amount
	default:
		return fmt.Errorf("refund: unknown pool %q", charge.Pool)
	}

	if err := l.store.SaveCredits(ctx, charge.UserKey, user.Balance, user.FreeUses, user.TotalLookups); err != nil {
		return fmt.Errorf("refund: %w", err)
	}

	l.metrics.IncLedgerRefund(string(charge.Pool))
	l.logger.Debug("refund",
		"user_key", charge.UserKey,
		"pool", charge.Pool,
		"amount", charge.Amount,
	)

	return nil
}

// Credit applies an administrative top-up to the paid balance. The token
// is an idempotency key: a duplicate call with the same token is a no-op
// and returns applied=false.
func (l *Ledger) Credit(ctx context.Context, userKey string, amount int64, token string) (applied bool, err error) {
	if amount <= 0 {
		return false, fmt.Errorf("credit: non-positive amount %d", amount)
	}
	if token == "" {
		return false, errors.New("credit: empty idempotency token")
	}

	l.locks.Lock(userKey)
	defer l.locks.Unlock(userKey)

	inserted, err := l.store.InsertTopUp(ctx, token, userKey, amount)
	if err != nil {
		return false, fmt.Errorf("credit: %w", err)
	}
	if !inserted {
		l.logger.Info("duplicate top-up ignored", "user_key", userKey, "token", token)
		return false, nil
	}

	user, err := l.store.GetUser(ctx, userKey)
	if err != nil {
		return false, fmt.Errorf("credit: %w", err)
	}

	user.Balance += amount
	if err := l.store.SaveCredits(ctx, userKey, user.Balance, user.FreeUses, user.TotalLookups); err != nil {
		return false, fmt.Errorf("credit: %w", err)
	}

	l.logger.Info("credit applied",
		"user_key", userKey,
		"amount", amount,
		"balance", user.Balance,
	)

	return true, nil
}

// Balance returns the user's current paid balance and free-use pool.
func (l *Ledger) Balance(ctx context.Context, userKey string) (balance, freeUses int64, err error) {
	user, err := l.store.GetUser(ctx, userKey)
	if err != nil {
		return 0, 0, fmt.Errorf("balance: %w", err)
	}
	return user.Balance, user.FreeUses, nil
}
