package handler

import (
	"net/http"
	"time"

	"github.com/Grrraou/latency-poison/internal/auth"
	"github.com/Grrraou/latency-poison/internal/entitlement"
	"github.com/Grrraou/latency-poison/internal/model"
	"github.com/Grrraou/latency-poison/internal/plan"
)

type AccountHandler struct{}

func NewAccountHandler() *AccountHandler {
	return &AccountHandler{}
}

type meResponse struct {
	*model.Account
	EffectivePlan plan.Plan `json:"effective_plan"`
}

// Me returns the authenticated account with its effective plan applied.
func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	a := auth.AccountFromContext(r.Context())
	writeJSON(w, http.StatusOK, meResponse{
		Account:       a,
		EffectivePlan: entitlement.Effective(a, time.Now()),
	})
}
