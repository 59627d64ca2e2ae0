// Package plan is the static catalog of entitlement tiers and their quota
// limits. Plans are fixed configuration, not mutable state.
package plan

// Plan identifies an entitlement tier.
type Plan string

const (
	Free    Plan = "free"
	Trial   Plan = "trial"
	Starter Plan = "starter"
	Pro     Plan = "pro"
)

// Limits holds the quota limits for one tier.
type Limits struct {
	ConfigKeys       int
	RequestsPerMonth int
}

// Trial previews the starter tier, so the two share limits.
var limits = map[Plan]Limits{
	Free:    {ConfigKeys: 2, RequestsPerMonth: 500},
	Trial:   {ConfigKeys: 10, RequestsPerMonth: 50000},
	Starter: {ConfigKeys: 10, RequestsPerMonth: 50000},
	Pro:     {ConfigKeys: 50, RequestsPerMonth: 500000},
}

// LimitsFor returns the limits for a plan. Unknown or empty plans fall back
// to the free tier, never an error.
func LimitsFor(p Plan) Limits {
	if l, ok := limits[p]; ok {
		return l
	}
	return limits[Free]
}

// Valid reports whether p names a known tier.
func Valid(p Plan) bool {
	_, ok := limits[p]
	return ok
}
