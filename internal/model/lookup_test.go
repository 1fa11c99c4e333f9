package model

import "testing"

func TestDetectQueryKind(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  QueryKind
	}{
		{"plain mobile number", "9876543210", QueryKindPhone},
		{"international format", "+91 98765 43210", QueryKindPhone},
		{"dashed number", "98765-43210", QueryKindPhone},
		{"email address", "ada@example.com", QueryKindEmail},
		{"email with plus tag", "ada+test@example.co.in", QueryKindEmail},
		{"vehicle registration", "BR01AB1234", QueryKindIdentifier},
		{"gst number", "22AAAAA0000A1Z5", QueryKindIdentifier},
		{"username", "ada_lovelace", QueryKindIdentifier},
		{"surrounding whitespace", "  9876543210  ", QueryKindPhone},
		{"too short for a phone", "12345", QueryKindIdentifier},
		{"empty", "", QueryKindIdentifier},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectQueryKind(tt.query); got != tt.want {
				t.Errorf("DetectQueryKind(%q) = %q, want %q", tt.query, got, tt.want)
			}
		})
	}
}

func TestParseCategoryName(t *testing.T) {
	for _, c := range Categories() {
		got, err := ParseCategoryName(string(c))
		if err != nil {
			t.Errorf("ParseCategoryName(%q) error = %v", c, err)
		}
		if got != c {
			t.Errorf("ParseCategoryName(%q) = %q", c, got)
		}
	}

	if _, err := ParseCategoryName("astrology"); err == nil {
		t.Error("expected error for unknown category name")
	}
}
