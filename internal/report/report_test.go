package report

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/lookupd/lookupd/internal/classify"
	"github.com/lookupd/lookupd/internal/model"
)

func TestRedactStripsDiagnosticFields(t *testing.T) {
	records := []classify.Record{{
		Name: "Ada Lovelace",
		Extra: map[string]string{
			"Channel":  "@somevendor",
			"credits":  "vendor inc",
			"district": "Pune",
		},
	}}

	Redact(model.CategoryVehicle, records)

	if _, ok := records[0].Extra["Channel"]; ok {
		t.Error("Channel key survived redaction")
	}
	if _, ok := records[0].Extra["credits"]; ok {
		t.Error("credits key survived redaction")
	}
	if records[0].Extra["district"] != "Pune" {
		t.Errorf("district = %q, want %q", records[0].Extra["district"], "Pune")
	}
}

func TestRedactSwapsIdentityAddressAndCircle(t *testing.T) {
	records := []classify.Record{{
		Address: "Maharashtra", // vendors transpose these two columns
		Circle:  "12 Main Street, Pune",
	}}

	Redact(model.CategoryIdentity, records)

	if records[0].Address != "12 Main Street, Pune" {
		t.Errorf("Address = %q, want street address", records[0].Address)
	}
	if records[0].Circle != "Maharashtra" {
		t.Errorf("Circle = %q, want region", records[0].Circle)
	}
}

func TestRedactLeavesOtherCategoriesAlone(t *testing.T) {
	records := []classify.Record{{Address: "addr", Circle: "circ"}}

	Redact(model.CategoryVehicle, records)

	if records[0].Address != "addr" || records[0].Circle != "circ" {
		t.Errorf("fields swapped for non-identity category: %+v", records[0])
	}
}

func TestTextFormatterRendersFields(t *testing.T) {
	records := []classify.Record{{
		Name:    "Ada Lovelace",
		Phone:   "9876543210",
		Address: "12 Main Street",
		Extra:   map[string]string{"reg_date": "2021-04-01"},
	}}

	out := NewTextFormatter().Format(model.CategoryIdentity, "9876543210", records)

	for _, want := range []string{
		"Phone / Email info for: 9876543210",
		"Name: Ada Lovelace",
		"Phone: 9876543210",
		"Address: 12 Main Street",
		"Reg Date: 2021-04-01",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestTextFormatterSkipsBlankFields(t *testing.T) {
	records := []classify.Record{{Name: "x", Email: "   "}}

	out := NewTextFormatter().Format(model.CategoryVehicle, "MH12AB1234", records)

	if strings.Contains(out, "Email:") {
		t.Errorf("blank field rendered:\n%s", out)
	}
}

func TestTextFormatterNumbersMultipleRecords(t *testing.T) {
	records := []classify.Record{{Name: "a"}, {Name: "b"}}

	out := NewTextFormatter().Format(model.CategoryRelationship, "123", records)

	if !strings.Contains(out, "Record 1") || !strings.Contains(out, "Record 2") {
		t.Errorf("records not numbered:\n%s", out)
	}
}

func TestTextFormatterTruncatesLongOutput(t *testing.T) {
	records := make([]classify.Record, 200)
	for i := range records {
		records[i] = classify.Record{Name: strings.Repeat("x", 50)}
	}

	out := NewTextFormatter().Format(model.CategoryIdentity, "q", records)

	if !strings.HasSuffix(out, truncationMarker) {
		t.Error("long output missing truncation marker")
	}
	if len(out) > maxReportLength+len(truncationMarker) {
		t.Errorf("output length = %d, want at most %d", len(out), maxReportLength+len(truncationMarker))
	}
}

func TestClipCutsAtRuneBoundary(t *testing.T) {
	// Devanagari characters are three bytes each, so some cut point
	// inside this text is guaranteed to fall mid-rune.
	long := strings.Repeat("नाम", maxReportLength)

	out := Clip(long)

	if !utf8.ValidString(out) {
		t.Error("clipped output contains an invalid UTF-8 sequence")
	}
	if !strings.HasSuffix(out, truncationMarker) {
		t.Error("clipped output missing truncation marker")
	}
	if len(out) > maxReportLength+len(truncationMarker) {
		t.Errorf("output length = %d, want at most %d", len(out), maxReportLength+len(truncationMarker))
	}

	if short := "ठीक"; Clip(short) != short {
		t.Errorf("Clip(%q) altered text under the limit", short)
	}
}
