// Package classify assigns the three-way valid/empty/error verdict to
// raw provider payloads and decodes them into typed records.
//
// The verdict drives the refund policy: only valid retains the debit,
// and only valid outcomes are written to the audit log.
package classify

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Classification is the verdict for one provider payload.
type Classification string

const (
	// Valid means the payload carries at least one usable record.
	Valid Classification = "valid"
	// Empty means the payload is well-formed but has no records.
	Empty Classification = "empty"
	// Error means the payload carries an error marker or could not be decoded.
	Error Classification = "error"
)

// Vendor payloads are dict-shaped and inconsistent. These are the error
// and no-result markers observed across the supported vendors.
var (
	errorKeys = []string{"error", "Error", "err"}

	noResultPhrases = []string{
		"no record found",
		"no records found",
		"no result",
		"not found",
		"no data",
	}

	// Keys under which vendors nest their record lists.
	recordListKeys = []string{"data", "result", "results", "records"}

	// Top-level fields that mark the payload itself as a direct record.
	directRecordKeys = []string{
		"name", "address", "mobile", "phone", "father_name", "fname",
		"email", "owner_name", "username", "full_name", "city", "isp",
		"org", "trade_name", "legal_name",
	}
)

// Classify inspects a raw payload and returns its verdict. A nil or
// non-JSON payload classifies as Error; transport-level failures never
// reach this function (the caller already knows those are errors).
func Classify(payload []byte) Classification {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return Error
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		// Some vendors return a bare array of records.
		var list []json.RawMessage
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return Error
		}
		if hasUsableRecord(list) {
			return Valid
		}
		return Empty
	}

	if hasErrorMarker(doc) {
		return Error
	}

	if hasNoResultSentinel(doc) {
		return Empty
	}

	for _, key := range recordListKeys {
		raw, ok := doc[key]
		if !ok {
			continue
		}

		var list []json.RawMessage
		if err := json.Unmarshal(raw, &list); err == nil {
			if hasUsableRecord(list) {
				return Valid
			}
			return Empty
		}

		// A single nested object also counts as the record list.
		var nested map[string]json.RawMessage
		if err := json.Unmarshal(raw, &nested); err == nil {
			if anyNonBlankField(nested) {
				return Valid
			}
			return Empty
		}
	}

	// No list bucket: accept payloads that are themselves a record.
	for _, key := range directRecordKeys {
		if raw, ok := doc[key]; ok && !isBlankValue(raw) {
			return Valid
		}
	}

	return Empty
}

func hasErrorMarker(doc map[string]json.RawMessage) bool {
	for _, key := range errorKeys {
		if raw, ok := doc[key]; ok && !isBlankValue(raw) {
			// {"error": false} is not an error marker.
			var b bool
			if err := json.Unmarshal(raw, &b); err == nil && !b {
				continue
			}
			return true
		}
	}

	if raw, ok := doc["status"]; ok {
		var status string
		if err := json.Unmarshal(raw, &status); err == nil {
			switch strings.ToLower(status) {
			case "fail", "failed", "error":
				return true
			}
		}
	}

	if raw, ok := doc["success"]; ok {
		var success bool
		if err := json.Unmarshal(raw, &success); err == nil && !success {
			return true
		}
	}

	return false
}

func hasNoResultSentinel(doc map[string]json.RawMessage) bool {
	for _, key := range []string{"message", "msg", "status"} {
		raw, ok := doc[key]
		if !ok {
			continue
		}
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			continue
		}
		lower := strings.ToLower(text)
		for _, phrase := range noResultPhrases {
			if strings.Contains(lower, phrase) {
				return true
			}
		}
	}
	return false
}

// hasUsableRecord reports whether any element of the list carries at
// least one non-blank field.
func hasUsableRecord(list []json.RawMessage) bool {
	for _, raw := range list {
		var rec map[string]json.RawMessage
		if err := json.Unmarshal(raw, &rec); err != nil {
			// Scalar entries (e.g. a list of strings) still count.
			if !isBlankValue(raw) {
				return true
			}
			continue
		}
		if anyNonBlankField(rec) {
			return true
		}
	}
	return false
}

func anyNonBlankField(rec map[string]json.RawMessage) bool {
	for _, raw := range rec {
		if !isBlankValue(raw) {
			return true
		}
	}
	return false
}

func isBlankValue(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	switch string(trimmed) {
	case "", "null", `""`, "{}", "[]", "0", "false":
		return true
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		s = strings.TrimSpace(s)
		return s == "" || strings.EqualFold(s, "n/a") || s == "-"
	}
	return false
}
