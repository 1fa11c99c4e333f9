// Package main is the entrypoint for the lookupd API server.
package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lookupd/lookupd/internal/audit"
	"github.com/lookupd/lookupd/internal/cache"
	"github.com/lookupd/lookupd/internal/config"
	"github.com/lookupd/lookupd/internal/gateway"
	"github.com/lookupd/lookupd/internal/handler"
	"github.com/lookupd/lookupd/internal/ledger"
	"github.com/lookupd/lookupd/internal/metrics"
	"github.com/lookupd/lookupd/internal/middleware"
	"github.com/lookupd/lookupd/internal/provider"
	"github.com/lookupd/lookupd/internal/ratelimit"
	"github.com/lookupd/lookupd/internal/report"
	"github.com/lookupd/lookupd/internal/repository"
	"github.com/lookupd/lookupd/internal/server"
)

func main() {
	ctx := context.Background()

	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)

	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error(
			"failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		os.Exit(1)
	}
	defer repo.Close()
	logger.Info("connected to database")

	cacheClient, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error(
			"failed to connect to Redis",
			slog.String("error", sanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", redactURL(cfg.RedisURL)),
		)
		os.Exit(1)
	}
	defer cacheClient.Close()
	logger.Info("connected to Redis")

	registry := prometheus.NewRegistry()
	recorder := metrics.NewPrometheus(registry)

	// Lookup pipeline
	plans := provider.NewPlans(cfg)
	providerClient := provider.NewClient(plans, cfg.ProviderTimeout, logger, recorder)
	creditLedger := ledger.New(repo, cfg.LookupCost, logger, recorder)
	limiter := ratelimit.New(repo, cfg.Cooldown, cfg.DailyCap, logger)

	var transport gateway.Transport
	if cfg.BotAPIBaseURL != "" {
		transport = gateway.NewHTTPTransport(cfg.BotAPIBaseURL, logger)
	} else {
		logger.Warn("no bot API base URL configured, using logging transport")
		transport = gateway.NewLogTransport(logger)
	}

	// Audit pipeline
	auditPublisher := audit.NewPublisher(cacheClient.Client(), logger, recorder)
	auditWorker := audit.NewWorker(cacheClient.Client(), repo, logger, audit.NewConsumerID(), recorder)

	worker := gateway.NewWorker(
		repo,
		creditLedger,
		limiter,
		providerClient,
		cacheClient,
		report.NewTextFormatter(),
		transport,
		auditPublisher,
		gateway.WorkerConfig{
			AdminUserKey:    cfg.AdminUserKey,
			InitialFreeUses: cfg.InitialFreeUses,
			ReferralBonus:   cfg.ReferralBonus,
		},
		logger,
		recorder,
	)
	gw := gateway.New(worker, cfg.GatewayQueueSize, cfg.GatewaySubmitWait, logger, recorder)

	// Handlers and router
	healthHandler := handler.NewHealthHandler(repo, cacheClient, gw)
	eventsHandler := handler.NewEventsHandler(gw, logger)
	router := setupRouter(healthHandler, eventsHandler, registry, cfg, logger)

	srv := server.New(
		router,
		cfg.AppPort,
		cfg.ReadTimeout,
		cfg.WriteTimeout,
		cfg.ShutdownTimeout,
		logger,
	)

	// Background loops. Registration order matters: shutdown runs LIFO,
	// so the gateway drains before the audit worker stops consuming
	// the records it publishes.
	bgCtx, bgCancel := context.WithCancel(ctx)
	defer bgCancel()

	go func() {
		if err := auditWorker.Run(bgCtx); err != nil && err != context.Canceled {
			logger.Error("audit worker exited", "error", err)
		}
	}()
	go func() {
		if err := gw.Run(bgCtx); err != nil && err != context.Canceled {
			logger.Error("gateway exited", "error", err)
		}
	}()

	srv.OnShutdown("audit_worker", auditWorker.Shutdown)
	srv.OnShutdown("gateway", gw.Shutdown)

	logger.Info("starting server",
		"port", cfg.AppPort,
		"env", cfg.AppEnv,
		"daily_cap", cfg.DailyCap,
		"cooldown", cfg.Cooldown.String(),
	)

	if err := srv.Run(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	var h slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}

	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// setupRouter configures the chi router with all routes and middleware.
func setupRouter(
	healthHandler *handler.HealthHandler,
	eventsHandler *handler.EventsHandler,
	registry *prometheus.Registry,
	cfg *config.Config,
	logger *slog.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))

	r.Get("/healthz", healthHandler.Healthz)
	r.Get("/readyz", healthHandler.Readyz)

	r.Method("GET", "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	r.With(middleware.WebhookAuth(cfg.BotWebhookSecret)).Post("/events", eventsHandler.Receive)

	r.NotFound(handler.NotFound)
	r.MethodNotAllowed(handler.MethodNotAllowed)

	return r
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s]+`)

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		username := parsed.User.Username()
		if username == "" {
			parsed.User = url.User("redacted")
		} else {
			parsed.User = url.User(username)
		}
	}

	return parsed.String()
}

func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := redactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
