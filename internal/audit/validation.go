package audit

import (
	"errors"
	"fmt"

	"github.com/lookupd/lookupd/internal/model"
)

const maxQueryLen = 256

// ValidatePayload rejects stream payloads that could not have come from
// the gateway worker. Invalid payloads are dead-lettered, not persisted.
func ValidatePayload(p Payload) error {
	if p.UserKey == "" {
		return errors.New("user key is required")
	}
	if p.Query == "" {
		return errors.New("query is required")
	}
	if len(p.Query) > maxQueryLen {
		return fmt.Errorf("query exceeds %d bytes", maxQueryLen)
	}
	if _, err := model.ParseCategoryName(p.Category); err != nil {
		return fmt.Errorf("category: %w", err)
	}
	if p.Classification == "" {
		return errors.New("classification is required")
	}
	if p.LookedUpAt <= 0 {
		return errors.New("lookup timestamp is required")
	}
	return nil
}
