package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/Grrraou/latency-poison/internal/model"
)

type AccountStore struct {
	db *sql.DB
}

func NewAccountStore(db *sql.DB) *AccountStore {
	return &AccountStore{db: db}
}

func scanAccount(scanner interface{ Scan(...any) error }) (*model.Account, error) {
	var a model.Account
	var fullName, customerID, subscriptionID sql.NullString
	var trialEndsAt sql.NullTime
	var disabled, verified int
	err := scanner.Scan(
		&a.ID, &a.Username, &a.Email, &fullName, &a.HashedPassword,
		&disabled, &verified, &a.Plan, &trialEndsAt,
		&customerID, &subscriptionID, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if fullName.Valid {
		a.FullName = &fullName.String
	}
	if customerID.Valid {
		a.StripeCustomerID = &customerID.String
	}
	if subscriptionID.Valid {
		a.StripeSubscriptionID = &subscriptionID.String
	}
	if trialEndsAt.Valid {
		t := trialEndsAt.Time.UTC()
		a.TrialEndsAt = &t
	}
	a.Disabled = disabled != 0
	a.EmailVerified = verified != 0
	return &a, nil
}

const accountCols = `id, username, email, full_name, hashed_password, disabled, email_verified, plan, trial_ends_at, stripe_customer_id, stripe_subscription_id, created_at, updated_at`

func (s *AccountStore) Create(username, email, hashedPassword string, fullName *string) (*model.Account, error) {
	result, err := s.db.Exec(
		`INSERT INTO users (username, email, full_name, hashed_password) VALUES (?, ?, ?, ?)`,
		username, email, fullName, hashedPassword,
	)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *AccountStore) GetByID(id int64) (*model.Account, error) {
	row := s.db.QueryRow(`SELECT `+accountCols+` FROM users WHERE id = ?`, id)
	a, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return a, nil
}

func (s *AccountStore) GetByUsername(username string) (*model.Account, error) {
	row := s.db.QueryRow(`SELECT `+accountCols+` FROM users WHERE username = ?`, username)
	a, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by username: %w", err)
	}
	return a, nil
}

func (s *AccountStore) GetByEmail(email string) (*model.Account, error) {
	row := s.db.QueryRow(`SELECT `+accountCols+` FROM users WHERE email = ?`, email)
	a, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return a, nil
}

func (s *AccountStore) GetByStripeCustomerID(customerID string) (*model.Account, error) {
	row := s.db.QueryRow(`SELECT `+accountCols+` FROM users WHERE stripe_customer_id = ?`, customerID)
	a, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by stripe customer id: %w", err)
	}
	return a, nil
}

func (s *AccountStore) GetByStripeSubscriptionID(subscriptionID string) (*model.Account, error) {
	row := s.db.QueryRow(`SELECT `+accountCols+` FROM users WHERE stripe_subscription_id = ?`, subscriptionID)
	a, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by stripe subscription id: %w", err)
	}
	return a, nil
}

// SetTrial moves the account onto the trial plan. trial_ends_at is only ever
// set here and is never cleared afterwards.
func (s *AccountStore) SetTrial(id int64, endsAt time.Time) error {
	_, err := s.db.Exec(
		`UPDATE users SET plan = 'trial', trial_ends_at = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		endsAt.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("set trial: %w", err)
	}
	return nil
}

// UpdateBilling writes the provider-confirmed plan and subscription ref in a
// single statement. A nil subscriptionID clears the ref.
func (s *AccountStore) UpdateBilling(id int64, plan string, subscriptionID *string) error {
	_, err := s.db.Exec(
		`UPDATE users SET plan = ?, stripe_subscription_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		plan, subscriptionID, id,
	)
	if err != nil {
		return fmt.Errorf("update billing: %w", err)
	}
	return nil
}

func (s *AccountStore) UpdateStripeCustomerID(id int64, customerID string) error {
	_, err := s.db.Exec(
		`UPDATE users SET stripe_customer_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		customerID, id,
	)
	if err != nil {
		return fmt.Errorf("update stripe customer id: %w", err)
	}
	return nil
}

func (s *AccountStore) SetDisabled(id int64, disabled bool) error {
	_, err := s.db.Exec(
		`UPDATE users SET disabled = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		disabled, id,
	)
	if err != nil {
		return fmt.Errorf("set disabled: %w", err)
	}
	return nil
}

func (s *AccountStore) SetEmailVerified(id int64) error {
	_, err := s.db.Exec(
		`UPDATE users SET email_verified = 1, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		id,
	)
	if err != nil {
		return fmt.Errorf("set email verified: %w", err)
	}
	return nil
}

func (s *AccountStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}
