package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/lookupd/lookupd/internal/model"
)

// Common errors for user store operations. The PostgreSQL repository
// returns the same sentinels so callers never depend on the backend.
var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user already exists")
)

// Memory is an in-process store holding user records, audit entries,
// and top-up tokens. All methods are safe for concurrent use.
type Memory struct {
	mu     sync.Mutex
	users  map[string]*model.User
	audit  []*model.AuditRecord
	topups map[string]struct{}
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		users:  make(map[string]*model.User),
		topups: make(map[string]struct{}),
	}
}

// GetUser returns a copy of the user record.
func (m *Memory) GetUser(ctx context.Context, key string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[key]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

// CreateUser inserts a new user record.
func (m *Memory) CreateUser(ctx context.Context, user *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[user.Key]; ok {
		return ErrUserExists
	}
	cp := *user
	m.users[user.Key] = &cp
	return nil
}

// SaveCredits updates only the credit columns of a user record, leaving
// the quota counters untouched so a concurrent SaveQuota cannot be lost.
func (m *Memory) SaveCredits(ctx context.Context, key string, balance, freeUses, totalLookups int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[key]
	if !ok {
		return ErrUserNotFound
	}
	u.Balance = balance
	u.FreeUses = freeUses
	u.TotalLookups = totalLookups
	return nil
}

// SaveQuota updates only the rate-limit counters of a user record.
func (m *Memory) SaveQuota(ctx context.Context, key string, lastAcceptedAt, dayStartedAt time.Time, dayCount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[key]
	if !ok {
		return ErrUserNotFound
	}
	u.LastAcceptedAt = lastAcceptedAt
	u.DayStartedAt = dayStartedAt
	u.DayCount = dayCount
	return nil
}

// InsertTopUp records an admin credit token. Returns false if the token
// was seen before, making duplicate top-ups no-ops.
func (m *Memory) InsertTopUp(ctx context.Context, token, key string, amount int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.topups[token]; ok {
		return false, nil
	}
	m.topups[token] = struct{}{}
	return true, nil
}

// BulkInsertAudit appends audit records.
func (m *Memory) BulkInsertAudit(ctx context.Context, records []*model.AuditRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, rec := range records {
		cp := *rec
		m.audit = append(m.audit, &cp)
	}
	return nil
}

// AuditRecords returns a copy of all stored audit records, oldest first.
func (m *Memory) AuditRecords() []*model.AuditRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*model.AuditRecord, len(m.audit))
	for i, rec := range m.audit {
		cp := *rec
		out[i] = &cp
	}
	return out
}

// CountUsers returns the number of stored users.
func (m *Memory) CountUsers(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.users)), nil
}
