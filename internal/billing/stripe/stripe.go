// Package stripe implements billing.Provider against the Stripe API and
// decodes Stripe webhook payloads into provider-neutral events.
package stripe

import (
	"encoding/json"
	"fmt"
	"strconv"

	stripe "github.com/stripe/stripe-go/v82"
	portalsession "github.com/stripe/stripe-go/v82/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/price"
	"github.com/stripe/stripe-go/v82/subscription"
	"github.com/stripe/stripe-go/v82/subscriptionitem"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/Grrraou/latency-poison/internal/billing"
)

// Config is the Stripe-specific wiring.
type Config struct {
	SecretKey     string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
}

// Client talks to Stripe. The zero value is not usable; construct with New.
type Client struct {
	cfg Config
}

func New(cfg Config) *Client {
	stripe.Key = cfg.SecretKey
	return &Client{cfg: cfg}
}

func (c *Client) CreateCustomer(email string, accountID int64) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
	}
	params.AddMetadata("user_id", strconv.FormatInt(accountID, 10))
	cust, err := customer.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe create customer: %w", err)
	}
	return cust.ID, nil
}

func (c *Client) FirstSubscription(customerID, status string) (*billing.ProviderSubscription, error) {
	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String(status),
	}
	params.Limit = stripe.Int64(1)
	iter := subscription.List(params)
	for iter.Next() {
		s := iter.Subscription()
		return &billing.ProviderSubscription{
			ID:         s.ID,
			CustomerID: customerID,
			Status:     string(s.Status),
			PriceID:    firstPriceID(s),
		}, nil
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("stripe list subscriptions: %w", err)
	}
	return nil, nil
}

func firstPriceID(s *stripe.Subscription) string {
	if s.Items == nil || len(s.Items.Data) == 0 {
		return ""
	}
	item := s.Items.Data[0]
	if item.Price == nil {
		return ""
	}
	return item.Price.ID
}

func (c *Client) UpdateSubscriptionPrice(subscriptionID, priceID string) error {
	itemParams := &stripe.SubscriptionItemListParams{
		Subscription: stripe.String(subscriptionID),
	}
	itemParams.Limit = stripe.Int64(1)
	iter := subscriptionitem.List(itemParams)
	var itemID string
	for iter.Next() {
		itemID = iter.SubscriptionItem().ID
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("stripe list subscription items: %w", err)
	}
	if itemID == "" {
		return fmt.Errorf("subscription %s has no items", subscriptionID)
	}

	_, err := subscriptionitem.Update(itemID, &stripe.SubscriptionItemParams{
		Price:             stripe.String(priceID),
		ProrationBehavior: stripe.String("always_invoice"),
	})
	if err != nil {
		return fmt.Errorf("stripe update subscription item: %w", err)
	}
	return nil
}

func (c *Client) CreateCheckoutSession(customerID, priceID string) (string, error) {
	params := &stripe.CheckoutSessionParams{
		Customer: stripe.String(customerID),
		Mode:     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(c.cfg.SuccessURL),
		CancelURL:  stripe.String(c.cfg.CancelURL),
	}
	sess, err := checkoutsession.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe create checkout session: %w", err)
	}
	return sess.URL, nil
}

func (c *Client) CreatePortalSession(customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	sess, err := portalsession.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe create portal session: %w", err)
	}
	return sess.URL, nil
}

func (c *Client) RetrievePrice(priceID string) (*billing.Price, error) {
	p, err := price.Get(priceID, nil)
	if err != nil {
		return nil, fmt.Errorf("stripe get price: %w", err)
	}
	interval := "month"
	if p.Recurring != nil {
		interval = string(p.Recurring.Interval)
	}
	return &billing.Price{
		ID:         p.ID,
		UnitAmount: p.UnitAmount,
		Currency:   string(p.Currency),
		Interval:   interval,
	}, nil
}

// VerifyWebhook checks the signature and parses the raw payload.
func (c *Client) VerifyWebhook(payload []byte, signature string) (stripe.Event, error) {
	event, err := webhook.ConstructEvent(payload, signature, c.cfg.WebhookSecret)
	if err != nil {
		return stripe.Event{}, fmt.Errorf("webhook signature verification: %w", err)
	}
	return event, nil
}

// DecodeWebhook verifies the signature and maps the event in one step,
// satisfying billing.WebhookDecoder.
func (c *Client) DecodeWebhook(payload []byte, signature string) (*billing.SubscriptionEvent, error) {
	event, err := c.VerifyWebhook(payload, signature)
	if err != nil {
		return nil, err
	}
	return DecodeSubscriptionEvent(event)
}

// DecodeSubscriptionEvent maps a verified Stripe event onto the neutral
// subscription event. Event types the reconciler does not care about return
// nil with no error.
func DecodeSubscriptionEvent(event stripe.Event) (*billing.SubscriptionEvent, error) {
	var kind billing.SubscriptionEventKind
	switch event.Type {
	case "customer.subscription.created":
		kind = billing.SubscriptionCreated
	case "customer.subscription.updated":
		kind = billing.SubscriptionUpdated
	case "customer.subscription.deleted":
		kind = billing.SubscriptionDeleted
	default:
		return nil, nil
	}

	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return nil, fmt.Errorf("decode subscription payload: %w", err)
	}

	ev := &billing.SubscriptionEvent{
		Kind:           kind,
		SubscriptionID: sub.ID,
		Status:         string(sub.Status),
	}
	if sub.Customer != nil {
		ev.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		ev.PriceID = sub.Items.Data[0].Price.ID
	}
	return ev, nil
}
