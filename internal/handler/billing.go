package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Grrraou/latency-poison/internal/auth"
	"github.com/Grrraou/latency-poison/internal/billing"
	"github.com/Grrraou/latency-poison/internal/entitlement"
)

// maxWebhookBody bounds webhook payload reads.
const maxWebhookBody = 65536

type BillingHandler struct {
	reconciler *billing.Reconciler
	resolver   *entitlement.Resolver
	decoder    billing.WebhookDecoder
	logger     *slog.Logger
}

func NewBillingHandler(reconciler *billing.Reconciler, resolver *entitlement.Resolver, decoder billing.WebhookDecoder, logger *slog.Logger) *BillingHandler {
	return &BillingHandler{
		reconciler: reconciler,
		resolver:   resolver,
		decoder:    decoder,
		logger:     logger,
	}
}

func (h *BillingHandler) Plans(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.reconciler.Plans())
}

// StartTrial moves a free account onto the 24-hour trial.
func (h *BillingHandler) StartTrial(w http.ResponseWriter, r *http.Request) {
	a := auth.AccountFromContext(r.Context())

	updated, err := h.resolver.StartTrial(a, time.Now())
	if errors.Is(err, entitlement.ErrTrialUnavailable) {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("start trial failed", "account_id", a.ID, "error", err)
		writeDetail(w, http.StatusInternalServerError, "failed to start trial")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"plan":          updated.Plan,
		"trial_ends_at": updated.TrialEndsAt,
	})
}

// Sync pulls subscription state from the billing provider.
func (h *BillingHandler) Sync(w http.ResponseWriter, r *http.Request) {
	a := auth.AccountFromContext(r.Context())
	writeJSON(w, http.StatusOK, h.reconciler.Sync(a, time.Now()))
}

type checkoutRequest struct {
	PriceID string `json:"price_id"`
}

func (h *BillingHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	a := auth.AccountFromContext(r.Context())

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	url, err := h.reconciler.Checkout(a, req.PriceID)
	switch {
	case errors.Is(err, billing.ErrNotConfigured):
		writeDetail(w, http.StatusServiceUnavailable, err.Error())
		return
	case errors.Is(err, billing.ErrInvalidPrice):
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		h.logger.Error("checkout failed", "account_id", a.ID, "error", err)
		writeDetail(w, http.StatusInternalServerError, "failed to start checkout")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

func (h *BillingHandler) Upgrade(w http.ResponseWriter, r *http.Request) {
	a := auth.AccountFromContext(r.Context())

	err := h.reconciler.Upgrade(a, time.Now())
	switch {
	case errors.Is(err, billing.ErrNotConfigured):
		writeDetail(w, http.StatusServiceUnavailable, err.Error())
		return
	case errors.Is(err, billing.ErrNoSubscription), errors.Is(err, billing.ErrUpgradeUnavailable):
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		h.logger.Error("upgrade failed", "account_id", a.ID, "error", err)
		writeDetail(w, http.StatusInternalServerError, "failed to upgrade")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "upgraded", "plan": "pro"})
}

func (h *BillingHandler) Portal(w http.ResponseWriter, r *http.Request) {
	a := auth.AccountFromContext(r.Context())

	url, err := h.reconciler.Portal(a)
	switch {
	case errors.Is(err, billing.ErrNotConfigured):
		writeDetail(w, http.StatusServiceUnavailable, err.Error())
		return
	case errors.Is(err, billing.ErrNoBillingAccount):
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		h.logger.Error("portal failed", "account_id", a.ID, "error", err)
		writeDetail(w, http.StatusInternalServerError, "failed to open billing portal")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

// Webhook receives pushed subscription events. Signature failures are 400 so
// the provider retries; events we do not handle are acknowledged and dropped.
func (h *BillingHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	if h.decoder == nil {
		writeDetail(w, http.StatusServiceUnavailable, "billing webhooks not configured")
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "failed to read payload")
		return
	}

	ev, err := h.decoder.DecodeWebhook(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		h.logger.Warn("webhook rejected", "error", err)
		writeDetail(w, http.StatusBadRequest, "invalid webhook payload")
		return
	}
	if ev == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	if err := h.reconciler.ApplySubscriptionEvent(*ev); err != nil {
		h.logger.Error("webhook apply failed", "kind", string(ev.Kind), "subscription_id", ev.SubscriptionID, "error", err)
		writeDetail(w, http.StatusInternalServerError, "failed to apply event")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
