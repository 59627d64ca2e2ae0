package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/Grrraou/latency-poison/internal/auth"
	"github.com/Grrraou/latency-poison/internal/billing"
	"github.com/Grrraou/latency-poison/internal/email"
	"github.com/Grrraou/latency-poison/internal/entitlement"
	"github.com/Grrraou/latency-poison/internal/handler"
	"github.com/Grrraou/latency-poison/internal/middleware"
	"github.com/Grrraou/latency-poison/internal/store"
	"github.com/Grrraou/latency-poison/internal/usage"
)

// Config is everything the server needs beyond the database handle.
type Config struct {
	TokenSecret    string
	Billing        billing.Config
	Provider       billing.Provider
	WebhookDecoder billing.WebhookDecoder
	EmailClient    *email.Client
}

type Server struct {
	db                *sql.DB
	authH             *handler.AuthHandler
	accountH          *handler.AccountHandler
	keyH              *handler.KeyHandler
	usageH            *handler.UsageHandler
	billingH          *handler.BillingHandler
	tokens            *auth.Tokens
	accountStore      *store.AccountStore
	verificationStore *store.VerificationStore
	rateLimiter       *middleware.RateLimiter
	logger            *slog.Logger
}

func New(db *sql.DB, cfg Config, logger *slog.Logger) *Server {
	accountStore := store.NewAccountStore(db)
	keyStore := store.NewKeyStore(db)
	usageStore := store.NewUsageStore(db)
	verificationStore := store.NewVerificationStore(db)

	aggregator := usage.NewAggregator(usageStore, keyStore, logger.With("component", "usage"))
	resolver := entitlement.NewResolver(accountStore, keyStore, aggregator)
	reconciler := billing.NewReconciler(cfg.Provider, accountStore, cfg.Billing, logger.With("component", "billing"))
	tokens := auth.NewTokens(cfg.TokenSecret)

	return &Server{
		db:                db,
		authH:             handler.NewAuthHandler(accountStore, verificationStore, tokens, cfg.EmailClient, logger.With("component", "auth")),
		accountH:          handler.NewAccountHandler(),
		keyH:              handler.NewKeyHandler(keyStore, logger.With("component", "keys")),
		usageH:            handler.NewUsageHandler(aggregator, resolver, logger.With("component", "usage")),
		billingH:          handler.NewBillingHandler(reconciler, resolver, cfg.WebhookDecoder, logger.With("component", "billing")),
		tokens:            tokens,
		accountStore:      accountStore,
		verificationStore: verificationStore,
		rateLimiter:       middleware.NewRateLimiter(),
		logger:            logger,
	}
}

// VerificationStore returns the verification token store for cleanup tasks.
func (s *Server) VerificationStore() *store.VerificationStore {
	return s.verificationStore
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes (no auth required)
	outerMux.HandleFunc("POST /api/auth/register", s.rateLimitedHandler(s.authH.Register))
	outerMux.HandleFunc("POST /api/auth/login", s.rateLimitedHandler(s.authH.Login))
	outerMux.HandleFunc("GET /api/auth/verify", s.authH.Verify)
	outerMux.HandleFunc("POST /api/billing/webhook", s.billingH.Webhook)
	outerMux.HandleFunc("GET /api/health", s.healthHandler)

	// Protected routes
	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth(s.tokens, s.accountStore)
	outerMux.Handle("/api/", authMiddleware(protectedMux))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/users/me", s.accountH.Me)

	mux.HandleFunc("POST /api/config-keys", s.keyH.Create)
	mux.HandleFunc("GET /api/config-keys", s.keyH.List)
	mux.HandleFunc("GET /api/config-keys/{id}", s.keyH.Get)
	mux.HandleFunc("PUT /api/config-keys/{id}", s.keyH.Update)
	mux.HandleFunc("DELETE /api/config-keys/{id}", s.keyH.Delete)

	mux.HandleFunc("GET /api/usage/summary", s.usageH.Summary)
	mux.HandleFunc("GET /api/usage/timeline", s.usageH.Timeline)

	mux.HandleFunc("GET /api/billing/plans", s.billingH.Plans)
	mux.HandleFunc("GET /api/billing/usage", s.usageH.Entitlements)
	mux.HandleFunc("POST /api/billing/trial", s.billingH.StartTrial)
	mux.HandleFunc("POST /api/billing/sync", s.billingH.Sync)
	mux.HandleFunc("POST /api/billing/checkout", s.billingH.Checkout)
	mux.HandleFunc("POST /api/billing/upgrade", s.billingH.Upgrade)
	mux.HandleFunc("POST /api/billing/portal", s.billingH.Portal)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return middleware.RealIP(r)
	}
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, 10, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}
