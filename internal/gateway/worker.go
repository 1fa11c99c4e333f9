package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lookupd/lookupd/internal/audit"
	"github.com/lookupd/lookupd/internal/classify"
	"github.com/lookupd/lookupd/internal/ledger"
	"github.com/lookupd/lookupd/internal/metrics"
	"github.com/lookupd/lookupd/internal/model"
	"github.com/lookupd/lookupd/internal/provider"
	"github.com/lookupd/lookupd/internal/ratelimit"
	"github.com/lookupd/lookupd/internal/report"
	"github.com/lookupd/lookupd/internal/store"
)

// UserStore is the account persistence the worker needs.
type UserStore interface {
	GetUser(ctx context.Context, key string) (*model.User, error)
	CreateUser(ctx context.Context, user *model.User) error
	CountUsers(ctx context.Context) (int64, error)
}

// CreditLedger is the slice of the ledger the worker consumes.
type CreditLedger interface {
	Debit(ctx context.Context, userKey string) (ledger.Charge, error)
	Refund(ctx context.Context, charge ledger.Charge) error
	Credit(ctx context.Context, userKey string, amount int64, token string) (bool, error)
	Balance(ctx context.Context, userKey string) (balance, freeUses int64, err error)
}

// Limiter decides whether a user may spend a lookup slot now.
type Limiter interface {
	Allow(ctx context.Context, userKey string) (ratelimit.Decision, error)
}

// Provider performs the outbound lookup with failover.
type Provider interface {
	Lookup(ctx context.Context, category model.Category, query string) (*provider.Response, error)
}

// LookupCache is the optional short-lived provider payload cache.
type LookupCache interface {
	GetLookup(ctx context.Context, category model.Category, query string) ([]byte, error)
	SetLookup(ctx context.Context, category model.Category, query string, body []byte, ttl time.Duration) error
}

// AuditSink receives records for completed valid lookups.
type AuditSink interface {
	PublishAsync(record audit.Payload)
}

// WorkerConfig carries the policy knobs the worker needs.
type WorkerConfig struct {
	AdminUserKey    string
	InitialFreeUses int64
	ReferralBonus   int64
}

// Worker executes work units one at a time. All transient dialogue
// state lives here and is touched only from the gateway's loop
// goroutine, so none of it needs locking.
type Worker struct {
	store     UserStore
	ledger    CreditLedger
	limiter   Limiter
	provider  Provider
	cache     LookupCache // may be nil
	formatter report.Formatter
	transport Transport
	audit     AuditSink // may be nil
	cfg       WorkerConfig
	logger    *slog.Logger
	metrics   metrics.Recorder

	// pending maps a user to the category they selected without
	// supplying a query; the next plain message completes it.
	pending map[string]model.Category

	now func() time.Time
}

// NewWorker wires the lookup pipeline.
func NewWorker(
	userStore UserStore,
	creditLedger CreditLedger,
	limiter Limiter,
	prov Provider,
	lookupCache LookupCache,
	formatter report.Formatter,
	transport Transport,
	auditSink AuditSink,
	cfg WorkerConfig,
	logger *slog.Logger,
	recorder metrics.Recorder,
) *Worker {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Worker{
		store:     userStore,
		ledger:    creditLedger,
		limiter:   limiter,
		provider:  prov,
		cache:     lookupCache,
		formatter: formatter,
		transport: transport,
		audit:     auditSink,
		cfg:       cfg,
		logger:    logger.With("component", "gateway.worker"),
		metrics:   recorder,
		pending:   make(map[string]model.Category),
		now:       time.Now,
	}
}

// Warmup validates wiring before the gateway goes ready.
func (w *Worker) Warmup(ctx context.Context) error {
	if w.store == nil || w.ledger == nil || w.limiter == nil || w.provider == nil {
		return errors.New("worker missing required dependencies")
	}
	if w.formatter == nil || w.transport == nil {
		return errors.New("worker missing formatter or transport")
	}

	count, err := w.store.CountUsers(ctx)
	if err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	w.logger.Info("worker ready", "known_users", count)
	return nil
}

// Handle processes one inbound event to completion.
func (w *Worker) Handle(ctx context.Context, event model.Event) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("work unit panicked",
				"event_id", event.ID,
				"user_key", event.UserKey,
				"panic", r,
			)
			w.send(ctx, event.UserKey, msgInternalError)
		}
	}()

	text := strings.TrimSpace(event.Text)
	if text == "" || event.UserKey == "" {
		return
	}

	logger := w.logger.With("event_id", event.ID, "user_key", event.UserKey)

	if strings.HasPrefix(text, "/") {
		w.handleCommand(ctx, logger, event.UserKey, text)
		return
	}

	// Plain text completes a pending category selection, if any.
	if category, ok := w.pending[event.UserKey]; ok {
		delete(w.pending, event.UserKey)
		w.runLookup(ctx, logger, event.UserKey, category, text)
		return
	}

	w.send(ctx, event.UserKey, msgUnknownInput)
}

func (w *Worker) handleCommand(ctx context.Context, logger *slog.Logger, userKey, text string) {
	fields := strings.Fields(text)
	cmd := strings.ToLower(fields[0])
	args := fields[1:]

	switch cmd {
	case "/start":
		w.handleStart(ctx, logger, userKey, args)
	case "/help":
		w.send(ctx, userKey, msgWelcome)
	case "/balance":
		w.handleBalance(ctx, logger, userKey)
	case "/grant":
		w.handleGrant(ctx, logger, userKey, args)
	case "/diag":
		w.handleDiag(ctx, logger, userKey)
	default:
		if category, ok := model.ParseCategory(cmd); ok {
			if len(args) == 0 {
				w.pending[userKey] = category
				w.send(ctx, userKey, categoryPrompt(category))
				return
			}
			w.runLookup(ctx, logger, userKey, category, strings.Join(args, " "))
			return
		}
		w.send(ctx, userKey, msgUnknownCommand)
	}
}

// handleStart registers the user and pays the referral bonus exactly
// once per referred account.
func (w *Worker) handleStart(ctx context.Context, logger *slog.Logger, userKey string, args []string) {
	referrer := ""
	if len(args) > 0 {
		referrer = args[0]
	}
	if referrer == userKey {
		referrer = ""
	}

	created := w.ensureUser(ctx, logger, userKey, referrer)
	if created && referrer != "" {
		// The new user's key makes the top-up token deterministic, so
		// a replayed start event cannot pay the bonus twice.
		applied, err := w.ledger.Credit(ctx, referrer, w.cfg.ReferralBonus, "referral:"+userKey)
		if err != nil {
			logger.Warn("referral bonus failed", "referrer", referrer, "error", err)
		} else if applied {
			logger.Info("referral bonus paid", "referrer", referrer)
			w.send(ctx, referrer, fmt.Sprintf("You earned %d credit(s): a user you invited just joined.", w.cfg.ReferralBonus))
		}
	}

	w.send(ctx, userKey, msgWelcome)
}

func (w *Worker) handleBalance(ctx context.Context, logger *slog.Logger, userKey string) {
	w.ensureUser(ctx, logger, userKey, "")

	balance, freeUses, err := w.ledger.Balance(ctx, userKey)
	if err != nil {
		logger.Error("balance read failed", "error", err)
		w.send(ctx, userKey, msgInternalError)
		return
	}
	w.send(ctx, userKey, fmt.Sprintf("Balance: %d credit(s)\nFree lookups left: %d", balance, freeUses))
}

// handleGrant credits a user's balance. Admin only. An explicit token
// makes the grant replay-safe; without one the token is derived from
// the target, amount, and current second.
func (w *Worker) handleGrant(ctx context.Context, logger *slog.Logger, userKey string, args []string) {
	if w.cfg.AdminUserKey == "" || userKey != w.cfg.AdminUserKey {
		w.send(ctx, userKey, msgUnknownCommand)
		return
	}
	if len(args) < 2 {
		w.send(ctx, userKey, "Usage: /grant <user_key> <amount> [token]")
		return
	}

	target := args[0]
	amount, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil || amount <= 0 {
		w.send(ctx, userKey, "Amount must be a positive integer.")
		return
	}

	token := ""
	if len(args) > 2 {
		token = args[2]
	} else {
		token = fmt.Sprintf("grant:%s:%d:%d", target, amount, w.now().Unix())
	}

	applied, err := w.ledger.Credit(ctx, target, amount, token)
	if err != nil {
		logger.Error("grant failed", "target", target, "error", err)
		w.send(ctx, userKey, "Grant failed: "+err.Error())
		return
	}
	if !applied {
		w.send(ctx, userKey, "Grant skipped: token already used.")
		return
	}

	logger.Info("credits granted", "target", target, "amount", amount)
	w.send(ctx, userKey, fmt.Sprintf("Granted %d credit(s) to %s.", amount, target))
	w.send(ctx, target, fmt.Sprintf("You received %d credit(s).", amount))
}

func (w *Worker) handleDiag(ctx context.Context, logger *slog.Logger, userKey string) {
	if w.cfg.AdminUserKey == "" || userKey != w.cfg.AdminUserKey {
		w.send(ctx, userKey, msgUnknownCommand)
		return
	}

	count, err := w.store.CountUsers(ctx)
	if err != nil {
		logger.Error("diag failed", "error", err)
		w.send(ctx, userKey, msgInternalError)
		return
	}
	w.send(ctx, userKey, fmt.Sprintf("Users: %d\nPending selections: %d", count, len(w.pending)))
}

// ensureUser creates the account on first contact. Returns true when a
// new account was created.
func (w *Worker) ensureUser(ctx context.Context, logger *slog.Logger, userKey, referrer string) bool {
	_, err := w.store.GetUser(ctx, userKey)
	if err == nil {
		return false
	}
	if !errors.Is(err, store.ErrUserNotFound) {
		logger.Error("user load failed", "error", err)
		return false
	}

	user := &model.User{
		Key:        userKey,
		FreeUses:   w.cfg.InitialFreeUses,
		ReferredBy: referrer,
		JoinedAt:   w.now().UTC(),
	}
	if err := w.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrUserExists) {
			return false
		}
		logger.Error("user create failed", "error", err)
		return false
	}

	logger.Info("user registered", "referred_by", referrer)
	return true
}

// runLookup is the lookup pipeline: rate limit, debit, provider call,
// classification, then either a rendered report or a refund.
func (w *Worker) runLookup(ctx context.Context, logger *slog.Logger, userKey string, category model.Category, query string) {
	query = strings.TrimSpace(query)
	if query == "" {
		w.send(ctx, userKey, categoryPrompt(category))
		return
	}

	// Accounts are created lazily on first contact; a lookup may be
	// the very first event a user ever sends.
	w.ensureUser(ctx, logger, userKey, "")

	req := model.LookupRequest{
		ID:        uuid.NewString(),
		UserKey:   userKey,
		Category:  category,
		Query:     query,
		Kind:      model.DetectQueryKind(query),
		CreatedAt: w.now().UTC(),
	}
	logger = logger.With("lookup_id", req.ID, "category", category, "query_kind", string(req.Kind))
	start := w.now()

	decision, err := w.limiter.Allow(ctx, userKey)
	if err != nil {
		logger.Error("rate limit check failed", "error", err)
		w.send(ctx, userKey, msgInternalError)
		return
	}
	if !decision.OK {
		w.metrics.IncLookup(string(category), "rate_limited")
		if decision.Exhausted {
			w.send(ctx, userKey, msgDailyCapReached)
			return
		}
		w.send(ctx, userKey, fmt.Sprintf("Please wait %d seconds before your next lookup.", int(decision.RetryAfter.Seconds()+0.999)))
		return
	}

	charge, err := w.ledger.Debit(ctx, userKey)
	if err != nil {
		if errors.Is(err, ledger.ErrInsufficientCredit) {
			w.metrics.IncLookup(string(category), "insufficient")
			w.send(ctx, userKey, msgNoCredits)
			return
		}
		logger.Error("debit failed", "error", err)
		w.send(ctx, userKey, msgInternalError)
		return
	}

	// From here on the user has paid; every failure path must refund.
	defer func() {
		if r := recover(); r != nil {
			logger.Error("lookup panicked, refunding", "panic", r)
			w.refund(ctx, logger, charge)
			w.metrics.IncLookup(string(category), "error")
			w.send(ctx, userKey, msgLookupFailed)
		}
	}()

	body, endpoint := w.fetch(ctx, logger, req)
	if body == nil {
		w.refund(ctx, logger, charge)
		w.metrics.IncLookup(string(category), "error")
		w.send(ctx, userKey, msgLookupFailed)
		return
	}

	classification := classify.Classify(body)
	switch classification {
	case classify.Valid:
		w.deliverReport(ctx, logger, req, body)
		w.publishAudit(req, classification, endpoint)
		w.cacheResult(ctx, logger, req, body, endpoint)
		w.metrics.IncLookup(string(category), "valid")
	case classify.Empty:
		w.refund(ctx, logger, charge)
		w.metrics.IncLookup(string(category), "empty")
		w.send(ctx, userKey, msgNoRecords)
	default:
		w.refund(ctx, logger, charge)
		w.metrics.IncLookup(string(category), "error")
		w.send(ctx, userKey, msgLookupFailed)
	}

	w.metrics.ObserveLookupDuration(string(category), w.now().Sub(start))
	logger.Info("lookup finished",
		"classification", string(classification),
		"endpoint", endpoint,
		"duration_ms", float64(w.now().Sub(start).Microseconds())/1000,
	)
}

// fetch returns the provider payload, consulting the short-lived cache
// first. A nil body means every source failed.
func (w *Worker) fetch(ctx context.Context, logger *slog.Logger, req model.LookupRequest) (body []byte, endpoint string) {
	if w.cache != nil {
		cached, err := w.cache.GetLookup(ctx, req.Category, req.Query)
		if err == nil {
			logger.Debug("served from cache")
			return cached, "cache"
		}
	}

	resp, err := w.provider.Lookup(ctx, req.Category, req.Query)
	if err != nil {
		logger.Warn("provider lookup failed", "error", err)
		return nil, ""
	}
	return resp.Body, resp.Endpoint
}

// deliverReport redacts, renders, and sends a valid payload.
func (w *Worker) deliverReport(ctx context.Context, logger *slog.Logger, req model.LookupRequest, body []byte) {
	records, err := classify.DecodeRecords(req.Category, body)
	if err != nil || len(records) == 0 {
		// The payload classified valid but does not fit any known
		// record shape; deliver it raw rather than losing the data.
		logger.Warn("record decode failed, sending raw payload", "error", err)
		w.send(ctx, req.UserKey, rawFallback(body))
		return
	}

	report.Redact(req.Category, records)
	w.send(ctx, req.UserKey, w.formatter.Format(req.Category, req.Query, records))
}

func (w *Worker) publishAudit(req model.LookupRequest, classification classify.Classification, endpoint string) {
	if w.audit == nil {
		return
	}
	w.audit.PublishAsync(audit.Payload{
		UserKey:        req.UserKey,
		Query:          req.Query,
		Category:       string(req.Category),
		Classification: string(classification),
		Endpoint:       endpoint,
		LookedUpAt:     w.now().UnixMilli(),
	})
}

func (w *Worker) cacheResult(ctx context.Context, logger *slog.Logger, req model.LookupRequest, body []byte, endpoint string) {
	if w.cache == nil || endpoint == "cache" {
		return
	}
	if err := w.cache.SetLookup(ctx, req.Category, req.Query, body, 0); err != nil {
		logger.Warn("cache write failed", "error", err)
	}
}

func (w *Worker) refund(ctx context.Context, logger *slog.Logger, charge ledger.Charge) {
	if err := w.ledger.Refund(ctx, charge); err != nil {
		logger.Error("refund failed", "pool", string(charge.Pool), "error", err)
	}
}

func (w *Worker) send(ctx context.Context, userKey, text string) {
	if err := w.transport.SendMessage(ctx, userKey, text); err != nil {
		w.logger.Warn("message delivery failed", "user_key", userKey, "error", err)
	}
}

const (
	msgWelcome = "Lookup service\n\n" +
		"Available commands:\n" +
		"/phone <number or email> - phone / email search\n" +
		"/family <id> - family info\n" +
		"/vehicle <reg_no> - vehicle registration info\n" +
		"/gst <gstin> - GST info\n" +
		"/insta <username> - Instagram profile info\n" +
		"/ip <ip_or_domain> - IP info\n\n" +
		"/balance - your credits\n" +
		"/help - this message\n\n" +
		"Example: /phone 9006895231"

	msgUnknownCommand  = "Unknown command. Send /help for the command list."
	msgUnknownInput    = "Send a command to start a lookup. /help lists them."
	msgInternalError   = "Something went wrong on our side. Please try again."
	msgLookupFailed    = "Lookup failed, no credit was spent. Please try again later."
	msgNoRecords       = "No records found, no credit was spent."
	msgNoCredits       = "You are out of credits. Invite friends to earn more."
	msgDailyCapReached = "Daily lookup limit reached. Try again tomorrow."
)

var categoryPrompts = map[model.Category]string{
	model.CategoryIdentity:       "Send the phone number or email to search.\nExample: /phone 9006895231",
	model.CategoryRelationship:   "Send the ID to search family info for.\nExample: /family 1234567890",
	model.CategoryVehicle:        "Send the vehicle registration number.\nExample: /vehicle BR01AB1234",
	model.CategoryFinancialCode:  "Send the GSTIN to look up.\nExample: /gst 22AAAAA0000A1Z5",
	model.CategorySocialProfile:  "Send the Instagram username.\nExample: /insta instagram",
	model.CategoryNetworkAddress: "Send the IP address or domain.\nExample: /ip 8.8.8.8",
}

func categoryPrompt(category model.Category) string {
	if prompt, ok := categoryPrompts[category]; ok {
		return prompt
	}
	return "Send the value to look up."
}

// rawFallback truncates an undecodable payload for direct delivery.
func rawFallback(body []byte) string {
	return report.Clip(strings.TrimSpace(string(body)))
}
