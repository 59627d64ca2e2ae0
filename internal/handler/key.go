package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/Grrraou/latency-poison/internal/auth"
	"github.com/Grrraou/latency-poison/internal/chaos"
	"github.com/Grrraou/latency-poison/internal/entitlement"
	"github.com/Grrraou/latency-poison/internal/model"
	"github.com/Grrraou/latency-poison/internal/plan"
	"github.com/Grrraou/latency-poison/internal/store"
)

type KeyHandler struct {
	keys   *store.KeyStore
	logger *slog.Logger
}

func NewKeyHandler(keys *store.KeyStore, logger *slog.Logger) *KeyHandler {
	return &KeyHandler{keys: keys, logger: logger}
}

type keyRequest struct {
	Name       string `json:"name"`
	TargetURL  string `json:"target_url"`
	Method     string `json:"method"`
	FailRate   int    `json:"fail_rate"`
	MinLatency int    `json:"min_latency"`
	MaxLatency int    `json:"max_latency"`
	ErrorCodes []int  `json:"error_codes"`
}

func (req *keyRequest) profile() chaos.Profile {
	return chaos.Profile{
		Name:       req.Name,
		TargetURL:  req.TargetURL,
		Method:     req.Method,
		FailRate:   req.FailRate,
		MinLatency: req.MinLatency,
		MaxLatency: req.MaxLatency,
		ErrorCodes: req.ErrorCodes,
	}
}

// keyUpdateRequest is a partial update: every field is optional, and a field
// left out of the body keeps the stored value.
type keyUpdateRequest struct {
	Name       *string `json:"name"`
	TargetURL  *string `json:"target_url"`
	Method     *string `json:"method"`
	FailRate   *int    `json:"fail_rate"`
	MinLatency *int    `json:"min_latency"`
	MaxLatency *int    `json:"max_latency"`
	ErrorCodes []int   `json:"error_codes"`
	IsActive   *bool   `json:"is_active"`
}

// profile merges the submitted fields onto the existing key's settings.
func (req *keyUpdateRequest) profile(existing *model.ChaosKey) chaos.Profile {
	p := chaos.Profile{
		Name:       existing.Name,
		Method:     existing.Method,
		FailRate:   existing.FailRate,
		MinLatency: existing.MinLatency,
		MaxLatency: existing.MaxLatency,
		ErrorCodes: existing.ErrorCodes,
	}
	if existing.TargetURL != nil {
		p.TargetURL = *existing.TargetURL
	}
	if req.Name != nil {
		p.Name = *req.Name
	}
	if req.TargetURL != nil {
		p.TargetURL = *req.TargetURL
	}
	if req.Method != nil {
		p.Method = *req.Method
	}
	if req.FailRate != nil {
		p.FailRate = *req.FailRate
	}
	if req.MinLatency != nil {
		p.MinLatency = *req.MinLatency
	}
	if req.MaxLatency != nil {
		p.MaxLatency = *req.MaxLatency
	}
	if req.ErrorCodes != nil {
		p.ErrorCodes = req.ErrorCodes
	}
	return p
}

// Create issues a new key, gated by the effective plan's key limit.
func (h *KeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	a := auth.AccountFromContext(r.Context())

	var req keyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	profile := req.profile()
	if err := profile.Validate(); err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}

	limits := plan.LimitsFor(entitlement.Effective(a, time.Now()))
	count, err := h.keys.CountByOwner(a.ID)
	if err != nil {
		h.logger.Error("count keys failed", "account_id", a.ID, "error", err)
		writeDetail(w, http.StatusInternalServerError, "failed to create key")
		return
	}
	if count >= limits.ConfigKeys {
		writeDetail(w, http.StatusForbidden, "Config key limit reached for your plan")
		return
	}

	key, err := h.keys.Create(a.ID, profile)
	if err != nil {
		h.logger.Error("create key failed", "account_id", a.ID, "error", err)
		writeDetail(w, http.StatusInternalServerError, "failed to create key")
		return
	}
	writeJSON(w, http.StatusCreated, key)
}

func (h *KeyHandler) List(w http.ResponseWriter, r *http.Request) {
	a := auth.AccountFromContext(r.Context())

	keys, err := h.keys.ListByOwner(a.ID)
	if err != nil {
		h.logger.Error("list keys failed", "account_id", a.ID, "error", err)
		writeDetail(w, http.StatusInternalServerError, "failed to list keys")
		return
	}
	if keys == nil {
		keys = []*model.ChaosKey{}
	}
	writeJSON(w, http.StatusOK, keys)
}

func (h *KeyHandler) Get(w http.ResponseWriter, r *http.Request) {
	a := auth.AccountFromContext(r.Context())

	id, err := parseIDParam(r)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid id")
		return
	}
	key, err := h.keys.GetForOwner(a.ID, id)
	if err != nil {
		h.logger.Error("get key failed", "account_id", a.ID, "error", err)
		writeDetail(w, http.StatusInternalServerError, "failed to get key")
		return
	}
	if key == nil {
		writeDetail(w, http.StatusNotFound, "Config key not found")
		return
	}
	writeJSON(w, http.StatusOK, key)
}

func (h *KeyHandler) Update(w http.ResponseWriter, r *http.Request) {
	a := auth.AccountFromContext(r.Context())

	id, err := parseIDParam(r)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid id")
		return
	}
	existing, err := h.keys.GetForOwner(a.ID, id)
	if err != nil {
		h.logger.Error("get key failed", "account_id", a.ID, "error", err)
		writeDetail(w, http.StatusInternalServerError, "failed to update key")
		return
	}
	if existing == nil {
		writeDetail(w, http.StatusNotFound, "Config key not found")
		return
	}

	var req keyUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	profile := req.profile(existing)
	if err := profile.Validate(); err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	isActive := existing.IsActive
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	if err := h.keys.Update(id, profile, isActive); err != nil {
		h.logger.Error("update key failed", "key_id", id, "error", err)
		writeDetail(w, http.StatusInternalServerError, "failed to update key")
		return
	}
	updated, err := h.keys.GetByID(id)
	if err != nil {
		h.logger.Error("reload key failed", "key_id", id, "error", err)
		writeDetail(w, http.StatusInternalServerError, "failed to update key")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *KeyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	a := auth.AccountFromContext(r.Context())

	id, err := parseIDParam(r)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid id")
		return
	}
	existing, err := h.keys.GetForOwner(a.ID, id)
	if err != nil {
		h.logger.Error("get key failed", "account_id", a.ID, "error", err)
		writeDetail(w, http.StatusInternalServerError, "failed to delete key")
		return
	}
	if existing == nil {
		writeDetail(w, http.StatusNotFound, "Config key not found")
		return
	}
	if err := h.keys.Delete(id); err != nil {
		h.logger.Error("delete key failed", "key_id", id, "error", err)
		writeDetail(w, http.StatusInternalServerError, "failed to delete key")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
