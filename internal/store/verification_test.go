package store

import (
	"testing"

	"github.com/Grrraou/latency-poison/internal/database"
)

func setupVerificationTestDB(t *testing.T) (*VerificationStore, *AccountStore) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewVerificationStore(db), NewAccountStore(db)
}

func TestVerificationCreateAndGet(t *testing.T) {
	vs, as := setupVerificationTestDB(t)

	a, _ := as.Create("alice", "alice@example.com", "hashed", nil)
	v, err := vs.Create(a.ID)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(v.Token) != 64 {
		t.Errorf("token length = %d, want 64 hex chars", len(v.Token))
	}

	got, err := vs.GetByToken(v.Token)
	if err != nil || got == nil {
		t.Fatalf("get by token: %v, %v", got, err)
	}
	if got.UserID != a.ID {
		t.Errorf("user_id = %d, want %d", got.UserID, a.ID)
	}
}

func TestVerificationGetUnknownToken(t *testing.T) {
	vs, _ := setupVerificationTestDB(t)

	got, err := vs.GetByToken("missing")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Error("expected nil for unknown token")
	}
}

func TestVerificationDelete(t *testing.T) {
	vs, as := setupVerificationTestDB(t)

	a, _ := as.Create("alice", "alice@example.com", "hashed", nil)
	v, _ := vs.Create(a.ID)
	if err := vs.Delete(v.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, _ := vs.GetByToken(v.Token)
	if got != nil {
		t.Error("expected nil after delete")
	}
}
