package config

import (
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/lookupd")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.AppEnv != "development" {
		t.Errorf("AppEnv = %q, want development", cfg.AppEnv)
	}
	if cfg.AppPort != 8080 {
		t.Errorf("AppPort = %d, want 8080", cfg.AppPort)
	}
	if cfg.LookupCost != 1 {
		t.Errorf("LookupCost = %d, want 1", cfg.LookupCost)
	}
	if cfg.InitialFreeUses != 2 {
		t.Errorf("InitialFreeUses = %d, want 2", cfg.InitialFreeUses)
	}
	if cfg.Cooldown != 60*time.Second {
		t.Errorf("Cooldown = %v, want 60s", cfg.Cooldown)
	}
	if cfg.DailyCap != 70 {
		t.Errorf("DailyCap = %d, want 70", cfg.DailyCap)
	}
	if cfg.NetworkAddressURL == "" {
		t.Error("NetworkAddressURL should have a default")
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")

	if _, err := Load(); err == nil {
		t.Fatal("Load() should fail when DATABASE_URL is missing")
	}
}

func TestGetIdentityLookupURLs(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want int
	}{
		{"empty", "", 0},
		{"single", "https://a.example/lookup?q={query}", 1},
		{"multiple with spaces", "https://a.example/q={query} , https://b.example/q={query}", 2},
		{"trailing comma", "https://a.example/q={query},", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{IdentityLookupURLs: tt.raw}
			if got := cfg.GetIdentityLookupURLs(); len(got) != tt.want {
				t.Errorf("GetIdentityLookupURLs() = %v, want %d entries", got, tt.want)
			}
		})
	}
}

func TestEnvHelpers(t *testing.T) {
	cfg := &Config{AppEnv: "production"}
	if !cfg.IsProduction() || cfg.IsDevelopment() {
		t.Error("production env misreported")
	}
}
