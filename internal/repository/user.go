package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/lookupd/lookupd/internal/model"
	"github.com/lookupd/lookupd/internal/store"
)

// The repository returns the same sentinels as the in-memory store so
// callers never depend on which backend is wired in.
var (
	ErrUserNotFound = store.ErrUserNotFound
	ErrUserExists   = store.ErrUserExists
)

// CreateUser inserts a new user record.
func (r *Repository) CreateUser(ctx context.Context, user *model.User) error {
	query := `
		INSERT INTO users (
			user_key, balance, free_uses, referred_by, joined_at,
			total_lookups, last_accepted_at, day_count, day_started_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.pool.Exec(ctx, query,
		user.Key,
		user.Balance,
		user.FreeUses,
		nullIfEmpty(user.ReferredBy),
		user.JoinedAt,
		user.TotalLookups,
		user.LastAcceptedAt,
		user.DayCount,
		user.DayStartedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return ErrUserExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetUser retrieves a user record by its chat-protocol key.
func (r *Repository) GetUser(ctx context.Context, key string) (*model.User, error) {
	query := `
		SELECT user_key, balance, free_uses, COALESCE(referred_by, ''), joined_at,
		       total_lookups, last_accepted_at, day_count, day_started_at
		FROM users
		WHERE user_key = $1
	`

	var user model.User
	err := r.pool.QueryRow(ctx, query, key).Scan(
		&user.Key,
		&user.Balance,
		&user.FreeUses,
		&user.ReferredBy,
		&user.JoinedAt,
		&user.TotalLookups,
		&user.LastAcceptedAt,
		&user.DayCount,
		&user.DayStartedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}

// SaveCredits updates only the credit columns of a user record. The quota
// columns belong to the rate limiter and are written by SaveQuota, so the
// two writers never clobber each other.
func (r *Repository) SaveCredits(ctx context.Context, key string, balance, freeUses, totalLookups int64) error {
	query := `
		UPDATE users
		SET balance = $2, free_uses = $3, total_lookups = $4
		WHERE user_key = $1
	`

	tag, err := r.pool.Exec(ctx, query, key, balance, freeUses, totalLookups)
	if err != nil {
		return fmt.Errorf("failed to save credits: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}

	return nil
}

// SaveQuota updates only the rate-limit counters of a user record.
func (r *Repository) SaveQuota(ctx context.Context, key string, lastAcceptedAt, dayStartedAt time.Time, dayCount int64) error {
	query := `
		UPDATE users
		SET last_accepted_at = $2, day_started_at = $3, day_count = $4
		WHERE user_key = $1
	`

	tag, err := r.pool.Exec(ctx, query, key, lastAcceptedAt, dayStartedAt, dayCount)
	if err != nil {
		return fmt.Errorf("failed to save quota: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}

	return nil
}

// CountUsers returns the total number of user records.
func (r *Repository) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

// ListUsers returns the most recently joined users.
func (r *Repository) ListUsers(ctx context.Context, limit int) ([]*model.User, error) {
	query := `
		SELECT user_key, balance, free_uses, COALESCE(referred_by, ''), joined_at,
		       total_lookups, last_accepted_at, day_count, day_started_at
		FROM users
		ORDER BY joined_at DESC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		var user model.User
		if err := rows.Scan(
			&user.Key,
			&user.Balance,
			&user.FreeUses,
			&user.ReferredBy,
			&user.JoinedAt,
			&user.TotalLookups,
			&user.LastAcceptedAt,
			&user.DayCount,
			&user.DayStartedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, &user)
	}

	return users, rows.Err()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// isUniqueViolation checks for PostgreSQL unique constraint violations.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
