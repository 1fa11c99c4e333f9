package model

import "time"

// AuditRecord is one append-only entry in the lookup audit log.
// Only lookups that classified as valid are recorded; failed-search noise
// is deliberately kept out of the log.
type AuditRecord struct {
	ID             string    `json:"id"`       // ULID (time-sortable)
	EventID        string    `json:"event_id"` // idempotency key (stream message ID)
	UserKey        string    `json:"user_key"`
	Query          string    `json:"query"`
	Category       Category  `json:"category"`
	Classification string    `json:"classification"`
	Endpoint       string    `json:"endpoint,omitempty"` // provider attempt that answered
	CreatedAt      time.Time `json:"created_at"`
}
