// Package entitlement resolves the plan currently in force for an account.
// Trial expiry is lazy: there is no background sweep, every read re-derives
// the effective plan from the clock, so a cached plan can never go stale for
// trial accounts.
package entitlement

import (
	"errors"
	"time"

	"github.com/Grrraou/latency-poison/internal/model"
	"github.com/Grrraou/latency-poison/internal/plan"
	"github.com/Grrraou/latency-poison/internal/store"
	"github.com/Grrraou/latency-poison/internal/usage"
)

// TrialLength is how long a started trial runs.
const TrialLength = 24 * time.Hour

// ErrTrialUnavailable rejects a trial start for any account that is not on
// the free tier or has already used its one trial.
var ErrTrialUnavailable = errors.New("trial is only available once, on the free plan")

// Effective returns the plan currently in force. A stored trial whose
// trial_ends_at has passed reads as free; the stored row is not touched.
// Pure function of its inputs, safe to call on every request.
func Effective(a *model.Account, now time.Time) plan.Plan {
	if a == nil || a.Plan == "" {
		return plan.Free
	}
	p := plan.Plan(a.Plan)
	if p == plan.Trial && a.TrialEndsAt != nil && !now.UTC().Before(*a.TrialEndsAt) {
		return plan.Free
	}
	return p
}

// Snapshot is the derived entitlement view: never persisted, always
// recomputed from the account, the catalog, and the event log.
type Snapshot struct {
	Plan                  plan.Plan  `json:"plan"`
	KeysUsed              int        `json:"keys_used"`
	KeysLimit             int        `json:"keys_limit"`
	RequestsThisMonth     int64      `json:"requests_this_month"`
	RequestsLimit         int        `json:"requests_limit"`
	TrialEndsAt           *time.Time `json:"trial_ends_at"`
	HasActiveSubscription bool       `json:"has_active_subscription"`
}

// Resolver computes entitlement state and owns the trial-start mutation.
type Resolver struct {
	accounts *store.AccountStore
	keys     *store.KeyStore
	usage    *usage.Aggregator
}

func NewResolver(accounts *store.AccountStore, keys *store.KeyStore, agg *usage.Aggregator) *Resolver {
	return &Resolver{accounts: accounts, keys: keys, usage: agg}
}

// StartTrial moves a free account onto a 24-hour trial. Trials are one-shot
// per account: a non-nil trial_ends_at blocks re-entry even after the
// effective plan has lapsed back to free. Returns the updated account.
func (r *Resolver) StartTrial(a *model.Account, now time.Time) (*model.Account, error) {
	if Effective(a, now) != plan.Free || a.TrialEndsAt != nil {
		return nil, ErrTrialUnavailable
	}
	endsAt := now.UTC().Add(TrialLength)
	if err := r.accounts.SetTrial(a.ID, endsAt); err != nil {
		return nil, err
	}
	return r.accounts.GetByID(a.ID)
}

// Snapshot computes the current entitlement snapshot. Key counting failures
// surface as errors; usage counting degrades to zero inside the aggregator.
func (r *Resolver) Snapshot(a *model.Account, now time.Time) (*Snapshot, error) {
	p := Effective(a, now)
	limits := plan.LimitsFor(p)

	keysUsed, err := r.keys.CountByOwner(a.ID)
	if err != nil {
		return nil, err
	}
	used := r.usage.RequestsThisPeriod(a.ID, now)

	return &Snapshot{
		Plan:                  p,
		KeysUsed:              keysUsed,
		KeysLimit:             limits.ConfigKeys,
		RequestsThisMonth:     used.Count,
		RequestsLimit:         limits.RequestsPerMonth,
		TrialEndsAt:           a.TrialEndsAt,
		HasActiveSubscription: a.StripeSubscriptionID != nil,
	}, nil
}
