package model

import "time"

// Account is a registered user plus its entitlement state. The plan column
// stores the raw plan; trial expiry is applied lazily at read time, so the
// stored value for a lapsed trial still reads "trial".
type Account struct {
	ID                   int64      `json:"id"`
	Username             string     `json:"username"`
	Email                string     `json:"email"`
	FullName             *string    `json:"full_name"`
	HashedPassword       string     `json:"-"`
	Disabled             bool       `json:"disabled"`
	EmailVerified        bool       `json:"email_verified"`
	Plan                 string     `json:"plan"`
	TrialEndsAt          *time.Time `json:"trial_ends_at"`
	StripeCustomerID     *string    `json:"-"`
	StripeSubscriptionID *string    `json:"-"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// ChaosKey is one issued configuration key: the external proxy looks it up
// by token and applies the latency/failure settings to forwarded requests.
type ChaosKey struct {
	ID         int64     `json:"id"`
	OwnerID    int64     `json:"-"`
	Name       string    `json:"name"`
	Key        string    `json:"key"`
	IsActive   bool      `json:"is_active"`
	TargetURL  *string   `json:"target_url"`
	Method     string    `json:"method"`
	FailRate   int       `json:"fail_rate"`
	MinLatency int       `json:"min_latency"`
	MaxLatency int       `json:"max_latency"`
	ErrorCodes []int     `json:"error_codes"`
	CreatedAt  time.Time `json:"created_at"`
}

// UsageEvent is one proxied request, appended by the proxy. Read-only here.
type UsageEvent struct {
	ID          int64     `json:"id"`
	ChaosKeyID  int64     `json:"config_api_key_id"`
	RequestedAt time.Time `json:"requested_at"`
}

// VerificationToken is a one-shot email verification link token.
type VerificationToken struct {
	ID        int64     `json:"id"`
	Token     string    `json:"token"`
	UserID    int64     `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}
