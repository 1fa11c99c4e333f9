package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/lookupd/lookupd/internal/model"
)

// BulkInsertAudit inserts a batch of audit records in one round trip.
// Records whose stream event ID was already written are skipped, so the
// audit writer can safely redeliver a batch after a partial failure.
func (r *Repository) BulkInsertAudit(ctx context.Context, records []*model.AuditRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO audit_log (id, event_id, user_key, query, category, classification, endpoint, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (event_id) DO NOTHING
	`

	for _, rec := range records {
		batch.Queue(query,
			rec.ID,
			rec.EventID,
			rec.UserKey,
			rec.Query,
			string(rec.Category),
			rec.Classification,
			rec.Endpoint,
			rec.CreatedAt,
		)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range records {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to insert audit record: %w", err)
		}
	}

	return nil
}

// RecentAuditRecords returns the newest audit entries for a user.
func (r *Repository) RecentAuditRecords(ctx context.Context, userKey string, limit int) ([]*model.AuditRecord, error) {
	query := `
		SELECT id, event_id, user_key, query, category, classification, endpoint, created_at
		FROM audit_log
		WHERE user_key = $1
		ORDER BY id DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, userKey, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var records []*model.AuditRecord
	for rows.Next() {
		var rec model.AuditRecord
		var category string
		if err := rows.Scan(
			&rec.ID,
			&rec.EventID,
			&rec.UserKey,
			&rec.Query,
			&category,
			&rec.Classification,
			&rec.Endpoint,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		rec.Category = model.Category(category)
		records = append(records, &rec)
	}

	return records, rows.Err()
}
