package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Grrraou/latency-poison/internal/billing"
	lpstripe "github.com/Grrraou/latency-poison/internal/billing/stripe"
	"github.com/Grrraou/latency-poison/internal/database"
	"github.com/Grrraou/latency-poison/internal/email"
	"github.com/Grrraou/latency-poison/internal/logging"
	"github.com/Grrraou/latency-poison/internal/server"
)

func main() {
	// A missing .env is fine; environment variables win either way.
	_ = godotenv.Load()

	logger := logging.Setup(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))

	port := os.Getenv("PORT")
	if port == "" {
		port = "8000"
	}

	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "latency_poison.db"
	}

	baseURL := os.Getenv("BASE_URL")
	if baseURL == "" {
		baseURL = fmt.Sprintf("http://localhost:%s", port)
	}
	frontendURL := os.Getenv("FRONTEND_URL")
	if frontendURL == "" {
		frontendURL = "http://localhost:3000"
	}

	tokenSecret := os.Getenv("SECRET_KEY")
	if tokenSecret == "" {
		logger.Warn("SECRET_KEY not set, using insecure development secret")
		tokenSecret = "dev-secret-change-me"
	}

	db, err := database.Open(dbPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	emailClient := email.NewClient(
		os.Getenv("POSTMARK_TOKEN"),
		os.Getenv("FROM_EMAIL"),
		baseURL,
	)

	cfg := server.Config{
		TokenSecret: tokenSecret,
		Billing: billing.Config{
			StarterPriceID:  os.Getenv("STRIPE_STARTER_PRICE_ID"),
			ProPriceID:      os.Getenv("STRIPE_PRO_PRICE_ID"),
			PortalReturnURL: frontendURL + "/dashboard",
		},
		EmailClient: emailClient,
	}

	if secretKey := os.Getenv("STRIPE_SECRET_KEY"); secretKey != "" {
		client := lpstripe.New(lpstripe.Config{
			SecretKey:     secretKey,
			WebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
			SuccessURL:    frontendURL + "/dashboard?checkout=success",
			CancelURL:     frontendURL + "/pricing",
		})
		cfg.Provider = client
		cfg.WebhookDecoder = client
	} else {
		logger.Warn("STRIPE_SECRET_KEY not set, billing provider disabled")
	}

	srv := server.New(db, cfg, logger)

	httpServer := &http.Server{
		Addr:              ":" + port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Background cleanup goroutine
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n, err := srv.VerificationStore().DeleteExpired(); err != nil {
					slog.Error("cleanup expired verification tokens", "error", err)
				} else if n > 0 {
					slog.Info("cleaned up expired verification tokens", "count", n)
				}
				srv.RateLimiter().Cleanup()
			case <-cleanupCtx.Done():
				return
			}
		}
	}()

	go func() {
		slog.Info("latency-poison api starting", "addr", ":"+port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	cleanupCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
