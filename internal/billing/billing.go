// Package billing reconciles local entitlement state with the external
// billing provider. Two channels feed it: an explicit pull (Sync) and pushed
// webhook events. The channels are not causally ordered; both reduce to a
// single-row update, so the store's row atomicity gives last-write-wins.
package billing

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Grrraou/latency-poison/internal/entitlement"
	"github.com/Grrraou/latency-poison/internal/model"
	"github.com/Grrraou/latency-poison/internal/plan"
	"github.com/Grrraou/latency-poison/internal/store"
)

var (
	// ErrNotConfigured means no billing provider is wired in (dev mode).
	ErrNotConfigured = errors.New("billing provider not configured")
	// ErrInvalidPrice rejects checkout for a price outside the configured set.
	ErrInvalidPrice = errors.New("invalid or unsupported plan")
	// ErrNoSubscription means the operation needs an existing subscription.
	ErrNoSubscription = errors.New("no active subscription")
	// ErrNoBillingAccount means the account has never been through checkout.
	ErrNoBillingAccount = errors.New("no billing account; subscribe first")
	// ErrUpgradeUnavailable rejects upgrades not going starter -> pro.
	ErrUpgradeUnavailable = errors.New("upgrade only supported from starter to pro")
)

// ProviderSubscription is the provider-neutral view of a remote subscription.
type ProviderSubscription struct {
	ID         string
	CustomerID string
	Status     string
	PriceID    string
}

// Price is the provider-neutral view of a remote price.
type Price struct {
	ID         string
	UnitAmount int64
	Currency   string
	Interval   string
}

// Provider is the external billing provider surface the reconciler needs.
// Implementations put a bounded timeout on every call.
type Provider interface {
	CreateCustomer(email string, accountID int64) (string, error)
	// FirstSubscription returns the newest subscription with the given
	// status, or nil when there is none.
	FirstSubscription(customerID, status string) (*ProviderSubscription, error)
	UpdateSubscriptionPrice(subscriptionID, priceID string) error
	CreateCheckoutSession(customerID, priceID string) (string, error)
	CreatePortalSession(customerID, returnURL string) (string, error)
	RetrievePrice(priceID string) (*Price, error)
}

// WebhookDecoder verifies a raw webhook payload and decodes it. A nil event
// with nil error means the event type is not one the reconciler handles.
type WebhookDecoder interface {
	DecodeWebhook(payload []byte, signature string) (*SubscriptionEvent, error)
}

// Config carries the externally configured price identifiers and redirect
// targets. Built once at startup and passed in explicitly.
type Config struct {
	StarterPriceID  string
	ProPriceID      string
	PortalReturnURL string
}

// SubscriptionEventKind tags a webhook event variant.
type SubscriptionEventKind string

const (
	SubscriptionCreated SubscriptionEventKind = "created"
	SubscriptionUpdated SubscriptionEventKind = "updated"
	SubscriptionDeleted SubscriptionEventKind = "deleted"
)

// SubscriptionEvent is the decoded, provider-neutral webhook payload. The
// mapping from event to account mutation is a pure function of these fields,
// which is what makes replays idempotent.
type SubscriptionEvent struct {
	Kind           SubscriptionEventKind
	SubscriptionID string
	CustomerID     string
	Status         string
	PriceID        string
}

// SyncResult reports the plan after a pull and whether the provider was
// actually consulted. Synced=false means local state was left untouched.
type SyncResult struct {
	Plan   plan.Plan `json:"plan"`
	Synced bool      `json:"synced"`
}

// PlanOffer is one purchasable plan with its provider price for display.
type PlanOffer struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Keys             int    `json:"keys"`
	RequestsPerMonth int    `json:"requests_per_month"`
	PriceDisplay     string `json:"price_display"`
	PriceID          string `json:"price_id"`
}

// Reconciler drives local plan state from the billing provider.
type Reconciler struct {
	provider Provider
	accounts *store.AccountStore
	cfg      Config
	logger   *slog.Logger
}

func NewReconciler(p Provider, accounts *store.AccountStore, cfg Config, logger *slog.Logger) *Reconciler {
	return &Reconciler{provider: p, accounts: accounts, cfg: cfg, logger: logger}
}

// Configured reports whether a provider is wired in.
func (r *Reconciler) Configured() bool {
	return r.provider != nil
}

// planForPrice maps a provider price ref to a plan: the configured Pro price
// is pro, anything else is starter.
func (r *Reconciler) planForPrice(priceID string) plan.Plan {
	if priceID != "" && priceID == r.cfg.ProPriceID {
		return plan.Pro
	}
	return plan.Starter
}

// Sync pulls the account's subscription state from the provider and writes
// it locally. Statuses are checked in priority order: active, then trialing.
// Absence is authoritative: no remote subscription downgrades to free and
// clears the local ref. Provider failure leaves local state unchanged and
// reports Synced=false.
func (r *Reconciler) Sync(a *model.Account, now time.Time) SyncResult {
	if r.provider == nil {
		return SyncResult{Plan: entitlement.Effective(a, now), Synced: false}
	}
	if a.StripeCustomerID == nil {
		return SyncResult{Plan: plan.Free, Synced: true}
	}

	for _, status := range []string{"active", "trialing"} {
		sub, err := r.provider.FirstSubscription(*a.StripeCustomerID, status)
		if err != nil {
			r.logger.Warn("sync aborted, provider error", "account_id", a.ID, "error", err)
			return SyncResult{Plan: entitlement.Effective(a, now), Synced: false}
		}
		if sub == nil {
			continue
		}
		p := r.planForPrice(sub.PriceID)
		if err := r.accounts.UpdateBilling(a.ID, string(p), &sub.ID); err != nil {
			r.logger.Error("sync write failed", "account_id", a.ID, "error", err)
			return SyncResult{Plan: entitlement.Effective(a, now), Synced: false}
		}
		return SyncResult{Plan: p, Synced: true}
	}

	if err := r.accounts.UpdateBilling(a.ID, string(plan.Free), nil); err != nil {
		r.logger.Error("sync downgrade write failed", "account_id", a.ID, "error", err)
		return SyncResult{Plan: entitlement.Effective(a, now), Synced: false}
	}
	return SyncResult{Plan: plan.Free, Synced: true}
}

// ApplySubscriptionEvent applies one decoded webhook event. Created and
// updated events upgrade only on active/trialing status; any other status is
// ignored rather than downgraded, so transient provider states do not
// flicker the plan. Deleted always downgrades to free and clears the ref.
// Replays converge: applying the same event twice ends in the same state.
func (r *Reconciler) ApplySubscriptionEvent(ev SubscriptionEvent) error {
	switch ev.Kind {
	case SubscriptionCreated, SubscriptionUpdated:
		if ev.Status != "active" && ev.Status != "trialing" {
			return nil
		}
		a, err := r.accounts.GetByStripeCustomerID(ev.CustomerID)
		if err != nil {
			return err
		}
		if a == nil {
			r.logger.Warn("webhook for unknown customer", "customer_id", ev.CustomerID)
			return nil
		}
		p := r.planForPrice(ev.PriceID)
		subID := ev.SubscriptionID
		return r.accounts.UpdateBilling(a.ID, string(p), &subID)

	case SubscriptionDeleted:
		a, err := r.accounts.GetByStripeSubscriptionID(ev.SubscriptionID)
		if err != nil {
			return err
		}
		if a == nil {
			return nil
		}
		return r.accounts.UpdateBilling(a.ID, string(plan.Free), nil)

	default:
		// Unknown event kinds are ignored.
		return nil
	}
}

// allowedPriceIDs returns the configured, well-formed checkout prices.
func (r *Reconciler) allowedPriceIDs() []string {
	var out []string
	for _, id := range []string{r.cfg.StarterPriceID, r.cfg.ProPriceID} {
		if strings.HasPrefix(id, "price_") {
			out = append(out, id)
		}
	}
	return out
}

// Checkout starts a provider checkout for one of the configured prices and
// returns the redirect URL. A newly created customer ref is persisted before
// the session is created; nothing else is mutated locally.
func (r *Reconciler) Checkout(a *model.Account, priceID string) (string, error) {
	if r.provider == nil {
		return "", ErrNotConfigured
	}
	allowed := false
	for _, id := range r.allowedPriceIDs() {
		if id == priceID {
			allowed = true
			break
		}
	}
	if !allowed {
		return "", ErrInvalidPrice
	}

	customerID := ""
	if a.StripeCustomerID != nil {
		customerID = *a.StripeCustomerID
	}
	if customerID == "" {
		id, err := r.provider.CreateCustomer(a.Email, a.ID)
		if err != nil {
			return "", fmt.Errorf("create customer: %w", err)
		}
		if err := r.accounts.UpdateStripeCustomerID(a.ID, id); err != nil {
			return "", err
		}
		customerID = id
	}

	url, err := r.provider.CreateCheckoutSession(customerID, priceID)
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	return url, nil
}

// Upgrade moves a starter subscription to the Pro price, invoicing the
// proration immediately, and records the new plan locally.
func (r *Reconciler) Upgrade(a *model.Account, now time.Time) error {
	if r.provider == nil {
		return ErrNotConfigured
	}
	if r.cfg.ProPriceID == "" {
		return ErrNotConfigured
	}
	if a.StripeSubscriptionID == nil {
		return ErrNoSubscription
	}
	if entitlement.Effective(a, now) != plan.Starter {
		return ErrUpgradeUnavailable
	}
	if err := r.provider.UpdateSubscriptionPrice(*a.StripeSubscriptionID, r.cfg.ProPriceID); err != nil {
		return fmt.Errorf("update subscription price: %w", err)
	}
	return r.accounts.UpdateBilling(a.ID, string(plan.Pro), a.StripeSubscriptionID)
}

// Portal returns a billing portal URL for the account's customer.
func (r *Reconciler) Portal(a *model.Account) (string, error) {
	if r.provider == nil {
		return "", ErrNotConfigured
	}
	if a.StripeCustomerID == nil {
		return "", ErrNoBillingAccount
	}
	url, err := r.provider.CreatePortalSession(*a.StripeCustomerID, r.cfg.PortalReturnURL)
	if err != nil {
		return "", fmt.Errorf("create portal session: %w", err)
	}
	return url, nil
}

// Plans lists the purchasable plans with live price display. Prices that
// cannot be retrieved are skipped, not fatal.
func (r *Reconciler) Plans() []PlanOffer {
	if r.provider == nil {
		return []PlanOffer{}
	}
	defs := []struct {
		id      string
		name    string
		p       plan.Plan
		priceID string
	}{
		{"starter", "Starter", plan.Starter, r.cfg.StarterPriceID},
		{"pro", "Pro", plan.Pro, r.cfg.ProPriceID},
	}
	offers := []PlanOffer{}
	for _, d := range defs {
		if !strings.HasPrefix(d.priceID, "price_") {
			continue
		}
		pr, err := r.provider.RetrievePrice(d.priceID)
		if err != nil {
			r.logger.Warn("price lookup failed, plan hidden", "price_id", d.priceID, "error", err)
			continue
		}
		limits := plan.LimitsFor(d.p)
		offers = append(offers, PlanOffer{
			ID:               d.id,
			Name:             d.name,
			Keys:             limits.ConfigKeys,
			RequestsPerMonth: limits.RequestsPerMonth,
			PriceDisplay:     formatPrice(pr),
			PriceID:          d.priceID,
		})
	}
	return offers
}

// formatPrice renders a price for display, e.g. "12.00€/month".
func formatPrice(p *Price) string {
	amount := float64(p.UnitAmount) / 100
	currency := strings.ToUpper(p.Currency)
	symbol := " " + currency
	if currency == "EUR" {
		symbol = "€"
	}
	interval := p.Interval
	if interval == "" {
		interval = "month"
	}
	return fmt.Sprintf("%.2f%s/%s", amount, symbol, interval)
}
