package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/Grrraou/latency-poison/internal/auth"
	"github.com/Grrraou/latency-poison/internal/email"
	"github.com/Grrraou/latency-poison/internal/model"
	"github.com/Grrraou/latency-poison/internal/store"
)

var (
	usernameRe = regexp.MustCompile(`^[a-zA-Z0-9_-]{3,32}$`)
	emailRe    = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

type AuthHandler struct {
	accounts      *store.AccountStore
	verifications *store.VerificationStore
	tokens        *auth.Tokens
	mail          *email.Client
	logger        *slog.Logger
}

func NewAuthHandler(accounts *store.AccountStore, verifications *store.VerificationStore, tokens *auth.Tokens, mail *email.Client, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		accounts:      accounts,
		verifications: verifications,
		tokens:        tokens,
		mail:          mail,
		logger:        logger,
	}
}

type registerRequest struct {
	Username string  `json:"username"`
	Email    string  `json:"email"`
	Password string  `json:"password"`
	FullName *string `json:"full_name"`
}

type registerResponse struct {
	*model.Account
	// VerificationLink is only populated when no mail provider is
	// configured, so local setups can complete verification by hand.
	VerificationLink string `json:"verification_link,omitempty"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if !usernameRe.MatchString(req.Username) {
		writeDetail(w, http.StatusBadRequest, "Username must be 3-32 characters: letters, digits, underscore, hyphen")
		return
	}
	if !emailRe.MatchString(req.Email) {
		writeDetail(w, http.StatusBadRequest, "Invalid email address")
		return
	}
	if len(req.Password) < 8 {
		writeDetail(w, http.StatusBadRequest, "Password must be at least 8 characters")
		return
	}

	if existing, err := h.accounts.GetByUsername(req.Username); err != nil {
		h.logger.Error("register lookup failed", "error", err)
		writeDetail(w, http.StatusInternalServerError, "registration failed")
		return
	} else if existing != nil {
		writeDetail(w, http.StatusBadRequest, "Username already registered")
		return
	}
	if existing, err := h.accounts.GetByEmail(req.Email); err != nil {
		h.logger.Error("register lookup failed", "error", err)
		writeDetail(w, http.StatusInternalServerError, "registration failed")
		return
	} else if existing != nil {
		writeDetail(w, http.StatusBadRequest, "Email already registered")
		return
	}

	hashed, err := auth.HashPassword(req.Password)
	if err != nil {
		h.logger.Error("hash password failed", "error", err)
		writeDetail(w, http.StatusInternalServerError, "registration failed")
		return
	}

	a, err := h.accounts.Create(req.Username, req.Email, hashed, req.FullName)
	if err != nil {
		h.logger.Error("create account failed", "error", err)
		writeDetail(w, http.StatusInternalServerError, "registration failed")
		return
	}

	vt, err := h.verifications.Create(a.ID)
	if err != nil {
		h.logger.Error("create verification token failed", "account_id", a.ID, "error", err)
		writeJSON(w, http.StatusCreated, registerResponse{Account: a})
		return
	}

	link := h.mail.VerificationLink(vt.Token)
	resp := registerResponse{Account: a}
	if h.mail.Configured() {
		if err := h.mail.SendVerification(a.Email, link); err != nil {
			h.logger.Warn("verification mail failed", "account_id", a.ID, "error", err)
		}
	} else {
		resp.VerificationLink = link
	}

	writeJSON(w, http.StatusCreated, resp)
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Login implements the password flow: form-encoded username and password in,
// bearer token out.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid form body")
		return
	}
	username := r.PostFormValue("username")
	password := r.PostFormValue("password")

	a, err := h.accounts.GetByUsername(username)
	if err != nil {
		h.logger.Error("login lookup failed", "error", err)
		writeDetail(w, http.StatusInternalServerError, "login failed")
		return
	}
	if a == nil || !auth.CheckPassword(a.HashedPassword, password) {
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeDetail(w, http.StatusUnauthorized, "Incorrect username or password")
		return
	}
	if a.Disabled {
		writeDetail(w, http.StatusBadRequest, "Inactive user")
		return
	}

	signed, err := h.tokens.Create(a.Username, time.Now())
	if err != nil {
		h.logger.Error("sign token failed", "error", err)
		writeDetail(w, http.StatusInternalServerError, "login failed")
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: signed, TokenType: "bearer"})
}

func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeDetail(w, http.StatusBadRequest, "token is required")
		return
	}

	vt, err := h.verifications.GetByToken(token)
	if err != nil {
		h.logger.Error("verification lookup failed", "error", err)
		writeDetail(w, http.StatusInternalServerError, "verification failed")
		return
	}
	if vt == nil {
		writeDetail(w, http.StatusBadRequest, "Invalid or expired verification token")
		return
	}

	if err := h.accounts.SetEmailVerified(vt.UserID); err != nil {
		h.logger.Error("set email verified failed", "user_id", vt.UserID, "error", err)
		writeDetail(w, http.StatusInternalServerError, "verification failed")
		return
	}
	if err := h.verifications.Delete(vt.ID); err != nil {
		h.logger.Warn("delete verification token failed", "token_id", vt.ID, "error", err)
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "verified"})
}
