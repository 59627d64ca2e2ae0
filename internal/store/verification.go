package store

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/Grrraou/latency-poison/internal/model"
)

type VerificationStore struct {
	db *sql.DB
}

func NewVerificationStore(db *sql.DB) *VerificationStore {
	return &VerificationStore{db: db}
}

const verificationCols = `id, token, user_id, expires_at, created_at`

func scanVerification(scanner interface{ Scan(...any) error }) (*model.VerificationToken, error) {
	var v model.VerificationToken
	err := scanner.Scan(&v.ID, &v.Token, &v.UserID, &v.ExpiresAt, &v.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Create generates a crypto-random verification token with a 24-hour expiry.
func (s *VerificationStore) Create(userID int64) (*model.VerificationToken, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	token := hex.EncodeToString(raw)
	expiresAt := time.Now().UTC().Add(24 * time.Hour)

	result, err := s.db.Exec(
		`INSERT INTO verification_tokens (token, user_id, expires_at) VALUES (?, ?, ?)`,
		token, userID, expiresAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert verification token: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	row := s.db.QueryRow(`SELECT `+verificationCols+` FROM verification_tokens WHERE id = ?`, id)
	return scanVerification(row)
}

// GetByToken returns the token if it exists and has not expired.
func (s *VerificationStore) GetByToken(token string) (*model.VerificationToken, error) {
	row := s.db.QueryRow(
		`SELECT `+verificationCols+` FROM verification_tokens WHERE token = ? AND expires_at > ?`,
		token, time.Now().UTC(),
	)
	v, err := scanVerification(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get verification token: %w", err)
	}
	return v, nil
}

func (s *VerificationStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM verification_tokens WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete verification token: %w", err)
	}
	return nil
}

func (s *VerificationStore) DeleteExpired() (int64, error) {
	result, err := s.db.Exec(`DELETE FROM verification_tokens WHERE expires_at <= ?`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired tokens: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return count, nil
}
