package audit

import (
	"strings"
	"testing"
	"time"
)

func validPayload() Payload {
	return Payload{
		UserKey:        "558812734",
		Query:          "9876543210",
		Category:       "identity",
		Classification: "valid",
		Endpoint:       "identity-0.1",
		LookedUpAt:     time.Now().UnixMilli(),
	}
}

func TestValidatePayload(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Payload)
		wantErr bool
	}{
		{"valid", func(*Payload) {}, false},
		{"missing user key", func(p *Payload) { p.UserKey = "" }, true},
		{"missing query", func(p *Payload) { p.Query = "" }, true},
		{"oversized query", func(p *Payload) { p.Query = strings.Repeat("9", maxQueryLen+1) }, true},
		{"unknown category", func(p *Payload) { p.Category = "palmistry" }, true},
		{"command alias not canonical", func(p *Payload) { p.Category = "phone" }, true},
		{"missing classification", func(p *Payload) { p.Classification = "" }, true},
		{"zero timestamp", func(p *Payload) { p.LookedUpAt = 0 }, true},
		{"no endpoint is fine", func(p *Payload) { p.Endpoint = "" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validPayload()
			tt.mutate(&p)
			err := ValidatePayload(p)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePayload() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
