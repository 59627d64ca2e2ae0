package store

import (
	"testing"
	"time"

	"github.com/Grrraou/latency-poison/internal/database"
)

func setupAccountTestDB(t *testing.T) *AccountStore {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("enable foreign keys: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewAccountStore(db)
}

func TestAccountCreate(t *testing.T) {
	s := setupAccountTestDB(t)

	a, err := s.Create("alice", "alice@example.com", "hashed", nil)
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	if a.Username != "alice" {
		t.Errorf("username = %q, want %q", a.Username, "alice")
	}
	if a.Plan != "free" {
		t.Errorf("plan = %q, want %q", a.Plan, "free")
	}
	if a.TrialEndsAt != nil {
		t.Error("expected nil trial_ends_at on new account")
	}
	if a.StripeCustomerID != nil || a.StripeSubscriptionID != nil {
		t.Error("expected nil stripe refs on new account")
	}
}

func TestAccountGetByUsername(t *testing.T) {
	s := setupAccountTestDB(t)

	created, _ := s.Create("alice", "alice@example.com", "hashed", nil)
	a, err := s.GetByUsername("alice")
	if err != nil {
		t.Fatalf("get by username: %v", err)
	}
	if a == nil {
		t.Fatal("expected account, got nil")
	}
	if a.ID != created.ID {
		t.Errorf("id = %d, want %d", a.ID, created.ID)
	}
}

func TestAccountGetByIDNotFound(t *testing.T) {
	s := setupAccountTestDB(t)

	a, err := s.GetByID(999)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if a != nil {
		t.Error("expected nil for nonexistent id")
	}
}

func TestAccountDuplicateUsername(t *testing.T) {
	s := setupAccountTestDB(t)

	if _, err := s.Create("alice", "alice@example.com", "hashed", nil); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := s.Create("alice", "other@example.com", "hashed", nil); err == nil {
		t.Error("expected error for duplicate username")
	}
}

func TestAccountSetTrial(t *testing.T) {
	s := setupAccountTestDB(t)

	created, _ := s.Create("alice", "alice@example.com", "hashed", nil)
	endsAt := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Second)
	if err := s.SetTrial(created.ID, endsAt); err != nil {
		t.Fatalf("set trial: %v", err)
	}

	a, _ := s.GetByID(created.ID)
	if a.Plan != "trial" {
		t.Errorf("plan = %q, want %q", a.Plan, "trial")
	}
	if a.TrialEndsAt == nil || !a.TrialEndsAt.Equal(endsAt) {
		t.Errorf("trial_ends_at = %v, want %v", a.TrialEndsAt, endsAt)
	}
}

func TestAccountUpdateBilling(t *testing.T) {
	s := setupAccountTestDB(t)

	created, _ := s.Create("alice", "alice@example.com", "hashed", nil)
	subID := "sub_123"
	if err := s.UpdateBilling(created.ID, "pro", &subID); err != nil {
		t.Fatalf("update billing: %v", err)
	}

	a, _ := s.GetByID(created.ID)
	if a.Plan != "pro" {
		t.Errorf("plan = %q, want %q", a.Plan, "pro")
	}
	if a.StripeSubscriptionID == nil || *a.StripeSubscriptionID != "sub_123" {
		t.Errorf("stripe_subscription_id = %v, want sub_123", a.StripeSubscriptionID)
	}

	// Clearing the ref downgrades in the same statement.
	if err := s.UpdateBilling(created.ID, "free", nil); err != nil {
		t.Fatalf("clear billing: %v", err)
	}
	a, _ = s.GetByID(created.ID)
	if a.Plan != "free" || a.StripeSubscriptionID != nil {
		t.Errorf("after clear: plan = %q, sub = %v", a.Plan, a.StripeSubscriptionID)
	}
}

func TestAccountTrialEndsAtSurvivesBillingUpdates(t *testing.T) {
	s := setupAccountTestDB(t)

	created, _ := s.Create("alice", "alice@example.com", "hashed", nil)
	endsAt := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Second)
	s.SetTrial(created.ID, endsAt)
	subID := "sub_123"
	s.UpdateBilling(created.ID, "starter", &subID)

	a, _ := s.GetByID(created.ID)
	if a.TrialEndsAt == nil {
		t.Error("trial_ends_at should never be cleared")
	}
}

func TestAccountGetByStripeRefs(t *testing.T) {
	s := setupAccountTestDB(t)

	created, _ := s.Create("alice", "alice@example.com", "hashed", nil)
	s.UpdateStripeCustomerID(created.ID, "cus_123")
	subID := "sub_456"
	s.UpdateBilling(created.ID, "starter", &subID)

	a, err := s.GetByStripeCustomerID("cus_123")
	if err != nil || a == nil || a.ID != created.ID {
		t.Fatalf("get by customer id: %v, %v", a, err)
	}
	a, err = s.GetByStripeSubscriptionID("sub_456")
	if err != nil || a == nil || a.ID != created.ID {
		t.Fatalf("get by subscription id: %v, %v", a, err)
	}
	a, err = s.GetByStripeCustomerID("cus_other")
	if err != nil || a != nil {
		t.Fatalf("expected nil for unknown customer, got %v, %v", a, err)
	}
}

func TestAccountSetEmailVerified(t *testing.T) {
	s := setupAccountTestDB(t)

	created, _ := s.Create("alice", "alice@example.com", "hashed", nil)
	if created.EmailVerified {
		t.Error("expected unverified on create")
	}
	if err := s.SetEmailVerified(created.ID); err != nil {
		t.Fatalf("set verified: %v", err)
	}
	a, _ := s.GetByID(created.ID)
	if !a.EmailVerified {
		t.Error("expected verified after update")
	}
}

func TestAccountDelete(t *testing.T) {
	s := setupAccountTestDB(t)

	created, _ := s.Create("alice", "alice@example.com", "hashed", nil)
	if err := s.Delete(created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	a, err := s.GetByID(created.ID)
	if err != nil {
		t.Fatalf("get after delete: %v", err)
	}
	if a != nil {
		t.Error("expected nil after delete")
	}
}
