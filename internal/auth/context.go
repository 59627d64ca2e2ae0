package auth

import (
	"context"

	"github.com/Grrraou/latency-poison/internal/model"
)

type ctxKey struct{}

// WithAccount stores the authenticated account in the request context.
func WithAccount(ctx context.Context, a *model.Account) context.Context {
	return context.WithValue(ctx, ctxKey{}, a)
}

// AccountFromContext returns the authenticated account, or nil when the
// request did not pass through RequireAuth.
func AccountFromContext(ctx context.Context) *model.Account {
	a, _ := ctx.Value(ctxKey{}).(*model.Account)
	return a
}
