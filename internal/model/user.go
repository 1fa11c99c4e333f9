// Package model defines domain entities for the application.
package model

import "time"

// User is the persisted per-user account record.
// Users are created lazily on first contact and never deleted.
type User struct {
	Key          string    `json:"key"` // opaque chat-protocol user key, externally assigned
	Balance      int64     `json:"balance"`
	FreeUses     int64     `json:"free_uses"`
	ReferredBy   string    `json:"referred_by,omitempty"`
	JoinedAt     time.Time `json:"joined_at"`
	TotalLookups int64     `json:"total_lookups"` // debits issued, informational

	// Quota counters owned by the rate limiter.
	LastAcceptedAt time.Time `json:"last_accepted_at"`
	DayCount       int64     `json:"day_count"`
	DayStartedAt   time.Time `json:"day_started_at"`
}
