package model

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Category identifies which lookup vertical a request targets.
type Category string

// Supported lookup categories. Identity is the only category served by
// multiple vendors; the rest map to a single fixed endpoint.
const (
	CategoryIdentity       Category = "identity"
	CategoryRelationship   Category = "relationship"
	CategoryVehicle        Category = "vehicle"
	CategoryFinancialCode  Category = "financial-code"
	CategorySocialProfile  Category = "social-profile"
	CategoryNetworkAddress Category = "network-address"
)

// Categories lists all supported categories in display order.
func Categories() []Category {
	return []Category{
		CategoryIdentity,
		CategoryRelationship,
		CategoryVehicle,
		CategoryFinancialCode,
		CategorySocialProfile,
		CategoryNetworkAddress,
	}
}

// ParseCategory maps a chat command word to a category.
// The command aliases mirror the original bot vocabulary.
func ParseCategory(cmd string) (Category, bool) {
	switch strings.ToLower(strings.TrimPrefix(cmd, "/")) {
	case "phone", "identity":
		return CategoryIdentity, true
	case "family", "relationship":
		return CategoryRelationship, true
	case "vehicle", "rc":
		return CategoryVehicle, true
	case "gst", "fincode":
		return CategoryFinancialCode, true
	case "insta", "social":
		return CategorySocialProfile, true
	case "ip", "net":
		return CategoryNetworkAddress, true
	}
	return "", false
}

// ParseCategoryName resolves a canonical category name as stored on the
// wire or in the database.
func ParseCategoryName(name string) (Category, error) {
	for _, c := range Categories() {
		if string(c) == name {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", name)
}

// QueryKind is a coarse classification of the raw user input.
type QueryKind string

const (
	QueryKindPhone      QueryKind = "phone"
	QueryKindEmail      QueryKind = "email"
	QueryKindIdentifier QueryKind = "identifier"
)

var (
	phonePattern = regexp.MustCompile(`^\+?\d[\d\s-]{6,14}\d$`)
	emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// DetectQueryKind classifies raw input as phone, email, or generic identifier.
func DetectQueryKind(query string) QueryKind {
	q := strings.TrimSpace(query)
	switch {
	case phonePattern.MatchString(q):
		return QueryKindPhone
	case emailPattern.MatchString(q):
		return QueryKindEmail
	default:
		return QueryKindIdentifier
	}
}

// LookupRequest is a single user-triggered lookup, consumed exactly once
// by the provider client. It is not persisted beyond the request cycle.
type LookupRequest struct {
	ID        string    `json:"id"` // UUID, correlates log lines for one work unit
	UserKey   string    `json:"user_key"`
	Category  Category  `json:"category"`
	Query     string    `json:"query"`
	Kind      QueryKind `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
}

func (r *LookupRequest) String() string {
	return fmt.Sprintf("%s %s %q", r.ID, r.Category, r.Query)
}
