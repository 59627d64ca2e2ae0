package auth

import (
	"testing"
	"time"
)

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if hash == "s3cret" {
		t.Fatal("hash equals plaintext")
	}
	if !CheckPassword(hash, "s3cret") {
		t.Error("correct password rejected")
	}
	if CheckPassword(hash, "wrong") {
		t.Error("wrong password accepted")
	}
}

func TestTokenRoundTrip(t *testing.T) {
	tokens := NewTokens("test-secret")

	signed, err := tokens.Create("alice", time.Now())
	if err != nil {
		t.Fatalf("create token: %v", err)
	}

	subject, err := tokens.Parse(signed)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if subject != "alice" {
		t.Errorf("subject = %q, want %q", subject, "alice")
	}
}

func TestTokenExpired(t *testing.T) {
	tokens := NewTokens("test-secret")

	signed, err := tokens.Create("alice", time.Now().Add(-2*TokenLifetime))
	if err != nil {
		t.Fatalf("create token: %v", err)
	}
	if _, err := tokens.Parse(signed); err != ErrInvalidToken {
		t.Errorf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestTokenWrongSecret(t *testing.T) {
	signed, err := NewTokens("secret-a").Create("alice", time.Now())
	if err != nil {
		t.Fatalf("create token: %v", err)
	}
	if _, err := NewTokens("secret-b").Parse(signed); err != ErrInvalidToken {
		t.Errorf("expected ErrInvalidToken for wrong secret, got %v", err)
	}
}

func TestTokenGarbage(t *testing.T) {
	tokens := NewTokens("test-secret")
	if _, err := tokens.Parse("not.a.token"); err != ErrInvalidToken {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}
