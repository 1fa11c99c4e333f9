// Package report renders classified lookup records for delivery to the
// user. Redaction runs before any formatter sees the records, so a
// formatter implementation can never leak vendor diagnostic fields.
package report

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/lookupd/lookupd/internal/classify"
	"github.com/lookupd/lookupd/internal/model"
)

const (
	// maxReportLength bounds the rendered report for downstream
	// delivery channels that reject oversized messages.
	maxReportLength = 3500

	truncationMarker = "\n\n[output truncated]"
)

// Formatter renders redacted records into a user-presentable report.
// Implementations only ever receive records that passed redaction.
type Formatter interface {
	Format(category model.Category, query string, records []classify.Record) string
}

// diagnosticKeys are vendor-injected fields that carry promotional or
// operator metadata rather than subject data. Stripped before display.
var diagnosticKeys = map[string]struct{}{
	"dev":       {},
	"developer": {},
	"owner":     {},
	"channel":   {},
	"credit":    {},
	"credits":   {},
	"join":      {},
	"source":    {},
	"api_by":    {},
	"powered_by": {},
}

// Redact strips vendor diagnostic fields from every record and corrects
// the identity vendors' transposed address and circle columns. It
// mutates the slice in place and returns it for chaining.
func Redact(category model.Category, records []classify.Record) []classify.Record {
	for i := range records {
		rec := &records[i]
		for key := range rec.Extra {
			if _, drop := diagnosticKeys[strings.ToLower(key)]; drop {
				delete(rec.Extra, key)
			}
		}
		if category == model.CategoryIdentity {
			rec.Address, rec.Circle = rec.Circle, rec.Address
		}
	}
	return records
}

// TextFormatter renders records as labeled key/value lines.
type TextFormatter struct{}

// NewTextFormatter creates the plain-text formatter.
func NewTextFormatter() *TextFormatter {
	return &TextFormatter{}
}

var categoryTitles = map[model.Category]string{
	model.CategoryIdentity:       "Phone / Email info",
	model.CategoryRelationship:   "Family info",
	model.CategoryVehicle:        "Vehicle info",
	model.CategoryFinancialCode:  "GST info",
	model.CategorySocialProfile:  "Instagram info",
	model.CategoryNetworkAddress: "IP info",
}

// Format renders every record with a numbered header. Output is
// truncated at the delivery limit with an explicit marker.
func (f *TextFormatter) Format(category model.Category, query string, records []classify.Record) string {
	var sb strings.Builder

	title := categoryTitles[category]
	if title == "" {
		title = "Lookup result"
	}
	fmt.Fprintf(&sb, "%s for: %s\n", title, query)

	for i, rec := range records {
		sb.WriteByte('\n')
		if len(records) > 1 {
			fmt.Fprintf(&sb, "Record %d\n", i+1)
		}
		writeField(&sb, "Name", rec.Name)
		writeField(&sb, "Father's Name", rec.FatherName)
		writeField(&sb, "Address", rec.Address)
		writeField(&sb, "Circle", rec.Circle)
		writeField(&sb, "Phone", rec.Phone)
		writeField(&sb, "Alt Phone", rec.AltPhone)
		writeField(&sb, "Email", rec.Email)
		writeField(&sb, "ID Number", rec.IDNumber)
		for _, key := range sortedKeys(rec.Extra) {
			writeField(&sb, titleCase(key), rec.Extra[key])
		}
	}

	return Clip(sb.String())
}

// Clip bounds text to the delivery channel's message budget, cutting at
// a rune boundary so a multi-byte character is never split.
func Clip(text string) string {
	if len(text) <= maxReportLength {
		return text
	}
	cut := maxReportLength
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + truncationMarker
}

func writeField(sb *strings.Builder, label, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	fmt.Fprintf(sb, "%s: %s\n", label, value)
}

func sortedKeys(m map[string]string) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func titleCase(key string) string {
	key = strings.ReplaceAll(key, "_", " ")
	words := strings.Fields(key)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
