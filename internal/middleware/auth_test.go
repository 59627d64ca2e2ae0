package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Grrraou/latency-poison/internal/auth"
	"github.com/Grrraou/latency-poison/internal/database"
	"github.com/Grrraou/latency-poison/internal/store"
)

func setupAuthMiddlewareDB(t *testing.T) (*auth.Tokens, *store.AccountStore) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return auth.NewTokens("test-secret"), store.NewAccountStore(db)
}

func TestRequireAuthNoHeader(t *testing.T) {
	tokens, accounts := setupAuthMiddlewareDB(t)

	handler := RequireAuth(tokens, accounts)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach handler")
	}))

	req := httptest.NewRequest("GET", "/api/users/me", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	if got := rec.Header().Get("WWW-Authenticate"); got != "Bearer" {
		t.Errorf("WWW-Authenticate = %q, want %q", got, "Bearer")
	}
}

func TestRequireAuthInvalidToken(t *testing.T) {
	tokens, accounts := setupAuthMiddlewareDB(t)

	handler := RequireAuth(tokens, accounts)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach handler")
	}))

	req := httptest.NewRequest("GET", "/api/users/me", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestRequireAuthUnknownUser(t *testing.T) {
	tokens, accounts := setupAuthMiddlewareDB(t)

	signed, err := tokens.Create("ghost", time.Now())
	if err != nil {
		t.Fatalf("create token: %v", err)
	}

	handler := RequireAuth(tokens, accounts)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach handler")
	}))

	req := httptest.NewRequest("GET", "/api/users/me", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestRequireAuthValidToken(t *testing.T) {
	tokens, accounts := setupAuthMiddlewareDB(t)

	created, err := accounts.Create("alice", "alice@example.com", "hashed", nil)
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	signed, err := tokens.Create("alice", time.Now())
	if err != nil {
		t.Fatalf("create token: %v", err)
	}

	var gotID int64
	handler := RequireAuth(tokens, accounts)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a := auth.AccountFromContext(r.Context())
		if a == nil {
			t.Fatal("expected account in request context")
		}
		gotID = a.ID
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/api/users/me", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if gotID != created.ID {
		t.Errorf("account id = %d, want %d", gotID, created.ID)
	}
}

func TestRequireAuthDisabledUser(t *testing.T) {
	tokens, accounts := setupAuthMiddlewareDB(t)

	a, err := accounts.Create("alice", "alice@example.com", "hashed", nil)
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	if err := accounts.SetDisabled(a.ID, true); err != nil {
		t.Fatalf("disable account: %v", err)
	}

	signed, _ := tokens.Create("alice", time.Now())

	handler := RequireAuth(tokens, accounts)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach handler")
	}))

	req := httptest.NewRequest("GET", "/api/users/me", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}
