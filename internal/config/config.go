// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all application configuration.
// All fields are populated from environment variables.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	// Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`

	// Audit stream and cooldown cache (Redis)
	RedisURL string `env:"REDIS_URL,required"`

	// Chat transport (outbound bot API). Empty base URL selects the
	// logging transport, useful for local development.
	BotAPIBaseURL    string `env:"BOT_API_BASE_URL" envDefault:""`
	BotWebhookSecret string `env:"BOT_WEBHOOK_SECRET" envDefault:""`

	// Administrator identity (chat-protocol user key)
	AdminUserKey string `env:"ADMIN_USER_KEY" envDefault:""`

	// Credit policy
	LookupCost      int64 `env:"LOOKUP_COST" envDefault:"1"`
	InitialFreeUses int64 `env:"INITIAL_FREE_USES" envDefault:"2"`
	ReferralBonus   int64 `env:"REFERRAL_BONUS" envDefault:"1"`

	// Rate limiting
	Cooldown time.Duration `env:"LOOKUP_COOLDOWN" envDefault:"60s"`
	DailyCap int64         `env:"LOOKUP_DAILY_CAP" envDefault:"70"`

	// Provider endpoints. URL templates interpolate {query}.
	// Identity is the only category with a fallback chain; its endpoints
	// and credentials are comma-separated lists tried in rotation.
	IdentityLookupURLs string `env:"IDENTITY_LOOKUP_URLS" envDefault:""`
	IdentityTokens     string `env:"IDENTITY_TOKENS" envDefault:""`
	RelationshipURL    string `env:"RELATIONSHIP_URL" envDefault:""`
	VehicleURL         string `env:"VEHICLE_URL" envDefault:""`
	FinancialCodeURL   string `env:"FINANCIAL_CODE_URL" envDefault:""`
	SocialProfileURL   string `env:"SOCIAL_PROFILE_URL" envDefault:""`
	NetworkAddressURL  string `env:"NETWORK_ADDRESS_URL" envDefault:"http://ip-api.com/json/{query}"`

	// Per-attempt timeout for outbound provider calls
	ProviderTimeout time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"15s"`

	// Event gateway
	GatewayQueueSize  int           `env:"GATEWAY_QUEUE_SIZE" envDefault:"256"`
	GatewaySubmitWait time.Duration `env:"GATEWAY_SUBMIT_WAIT" envDefault:"2s"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// GetIdentityLookupURLs parses the comma-separated identity endpoint list.
func (c *Config) GetIdentityLookupURLs() []string {
	return splitList(c.IdentityLookupURLs)
}

// GetIdentityTokens parses the comma-separated identity credential list.
func (c *Config) GetIdentityTokens() []string {
	return splitList(c.IdentityTokens)
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))

	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// Load parses environment variables and returns a Config.
// Returns an error if required variables are missing.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}
