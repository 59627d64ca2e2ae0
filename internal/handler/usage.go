package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Grrraou/latency-poison/internal/auth"
	"github.com/Grrraou/latency-poison/internal/entitlement"
	"github.com/Grrraou/latency-poison/internal/usage"
)

type UsageHandler struct {
	agg      *usage.Aggregator
	resolver *entitlement.Resolver
	logger   *slog.Logger
}

func NewUsageHandler(agg *usage.Aggregator, resolver *entitlement.Resolver, logger *slog.Logger) *UsageHandler {
	return &UsageHandler{agg: agg, resolver: resolver, logger: logger}
}

func (h *UsageHandler) Summary(w http.ResponseWriter, r *http.Request) {
	a := auth.AccountFromContext(r.Context())
	writeJSON(w, http.StatusOK, h.agg.Summary(a.ID))
}

func (h *UsageHandler) Timeline(w http.ResponseWriter, r *http.Request) {
	a := auth.AccountFromContext(r.Context())

	q := r.URL.Query()
	g := usage.Granularity(q.Get("group_by"))
	if g == "" {
		g = usage.ByDay
	}
	win := usage.Window(q.Get("period"))
	if win == "" {
		win = usage.Window30d
	}

	tl, err := h.agg.Timeline(a.ID, g, win, time.Now())
	switch {
	case errors.Is(err, usage.ErrInvalidGranularity),
		errors.Is(err, usage.ErrInvalidWindow),
		errors.Is(err, usage.ErrHourWindowTooWide):
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		h.logger.Error("timeline failed", "account_id", a.ID, "error", err)
		writeDetail(w, http.StatusInternalServerError, "failed to build timeline")
		return
	}
	writeJSON(w, http.StatusOK, tl)
}

// Entitlements reports the caller's plan, limits, and consumption.
func (h *UsageHandler) Entitlements(w http.ResponseWriter, r *http.Request) {
	a := auth.AccountFromContext(r.Context())

	snap, err := h.resolver.Snapshot(a, time.Now())
	if err != nil {
		h.logger.Error("entitlement snapshot failed", "account_id", a.ID, "error", err)
		writeDetail(w, http.StatusInternalServerError, "failed to compute usage")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
