package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/Grrraou/latency-poison/internal/auth"
	"github.com/Grrraou/latency-poison/internal/store"
)

func unauthorized(w http.ResponseWriter, detail string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}

// RequireAuth validates the bearer token, loads the account, and stores it
// in the request context. Disabled accounts are rejected.
func RequireAuth(tokens *auth.Tokens, accounts *store.AccountStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				unauthorized(w, "Not authenticated")
				return
			}

			username, err := tokens.Parse(token)
			if err != nil {
				unauthorized(w, "Could not validate credentials")
				return
			}

			a, err := accounts.GetByUsername(username)
			if err != nil || a == nil {
				unauthorized(w, "Could not validate credentials")
				return
			}
			if a.Disabled {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(map[string]string{"detail": "Inactive user"})
				return
			}

			ctx := auth.WithAccount(r.Context(), a)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
