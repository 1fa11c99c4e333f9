package repository

import (
	"context"
	"fmt"
	"time"
)

// InsertTopUp records an administrative credit grant keyed by its
// idempotency token. Returns false if the token was already recorded,
// in which case the caller must not apply the credit again.
func (r *Repository) InsertTopUp(ctx context.Context, token, userKey string, amount int64) (bool, error) {
	query := `
		INSERT INTO topups (token, user_key, amount, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (token) DO NOTHING
	`

	tag, err := r.pool.Exec(ctx, query, token, userKey, amount, time.Now())
	if err != nil {
		return false, fmt.Errorf("failed to insert topup: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}
