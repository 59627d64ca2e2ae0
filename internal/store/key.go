package store

import (
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/Grrraou/latency-poison/internal/chaos"
	"github.com/Grrraou/latency-poison/internal/model"
)

type KeyStore struct {
	db *sql.DB
}

func NewKeyStore(db *sql.DB) *KeyStore {
	return &KeyStore{db: db}
}

func scanKey(scanner interface{ Scan(...any) error }) (*model.ChaosKey, error) {
	var k model.ChaosKey
	var targetURL sql.NullString
	var isActive int
	var errorCodes string
	err := scanner.Scan(
		&k.ID, &k.OwnerID, &k.Name, &k.Key, &isActive, &targetURL,
		&k.Method, &k.FailRate, &k.MinLatency, &k.MaxLatency, &errorCodes, &k.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if targetURL.Valid {
		k.TargetURL = &targetURL.String
	}
	k.IsActive = isActive != 0
	k.ErrorCodes = []int{}
	if errorCodes != "" {
		if err := json.Unmarshal([]byte(errorCodes), &k.ErrorCodes); err != nil {
			return nil, fmt.Errorf("decode error codes: %w", err)
		}
	}
	return &k, nil
}

const keyCols = `id, owner_id, name, key, is_active, target_url, method, fail_rate, min_latency, max_latency, error_codes, created_at`

// GenerateToken returns a new opaque key token with the lp_ prefix.
func GenerateToken() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate key token: %w", err)
	}
	return "lp_" + base64.RawURLEncoding.EncodeToString(raw), nil
}

// Create persists a validated profile as a new active key with a fresh token.
func (s *KeyStore) Create(ownerID int64, p chaos.Profile) (*model.ChaosKey, error) {
	token, err := GenerateToken()
	if err != nil {
		return nil, err
	}
	codes, err := json.Marshal(p.ErrorCodes)
	if err != nil {
		return nil, fmt.Errorf("encode error codes: %w", err)
	}
	var targetURL *string
	if p.TargetURL != "" {
		targetURL = &p.TargetURL
	}
	result, err := s.db.Exec(
		`INSERT INTO config_api_keys (owner_id, name, key, is_active, target_url, method, fail_rate, min_latency, max_latency, error_codes)
		 VALUES (?, ?, ?, 1, ?, ?, ?, ?, ?, ?)`,
		ownerID, p.Name, token, targetURL, p.Method,
		chaos.ClampFailRate(p.FailRate), p.MinLatency, p.MaxLatency, string(codes),
	)
	if err != nil {
		return nil, fmt.Errorf("insert config key: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *KeyStore) GetByID(id int64) (*model.ChaosKey, error) {
	row := s.db.QueryRow(`SELECT `+keyCols+` FROM config_api_keys WHERE id = ?`, id)
	k, err := scanKey(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get config key: %w", err)
	}
	return k, nil
}

// GetForOwner returns the key only when it belongs to the owner.
func (s *KeyStore) GetForOwner(ownerID, id int64) (*model.ChaosKey, error) {
	row := s.db.QueryRow(`SELECT `+keyCols+` FROM config_api_keys WHERE id = ? AND owner_id = ?`, id, ownerID)
	k, err := scanKey(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get config key for owner: %w", err)
	}
	return k, nil
}

func (s *KeyStore) GetByToken(token string) (*model.ChaosKey, error) {
	row := s.db.QueryRow(`SELECT `+keyCols+` FROM config_api_keys WHERE key = ?`, token)
	k, err := scanKey(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get config key by token: %w", err)
	}
	return k, nil
}

func (s *KeyStore) ListByOwner(ownerID int64) ([]*model.ChaosKey, error) {
	rows, err := s.db.Query(`SELECT `+keyCols+` FROM config_api_keys WHERE owner_id = ? ORDER BY id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list config keys: %w", err)
	}
	defer rows.Close()

	var keys []*model.ChaosKey
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scan config key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list config keys: %w", err)
	}
	return keys, nil
}

func (s *KeyStore) CountByOwner(ownerID int64) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM config_api_keys WHERE owner_id = ?`, ownerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count config keys: %w", err)
	}
	return n, nil
}

// Update writes the full profile plus the active flag. The key token is
// immutable.
func (s *KeyStore) Update(id int64, p chaos.Profile, isActive bool) error {
	codes, err := json.Marshal(p.ErrorCodes)
	if err != nil {
		return fmt.Errorf("encode error codes: %w", err)
	}
	var targetURL *string
	if p.TargetURL != "" {
		targetURL = &p.TargetURL
	}
	active := 0
	if isActive {
		active = 1
	}
	_, err = s.db.Exec(
		`UPDATE config_api_keys SET name = ?, is_active = ?, target_url = ?, method = ?, fail_rate = ?, min_latency = ?, max_latency = ?, error_codes = ? WHERE id = ?`,
		p.Name, active, targetURL, p.Method,
		chaos.ClampFailRate(p.FailRate), p.MinLatency, p.MaxLatency, string(codes), id,
	)
	if err != nil {
		return fmt.Errorf("update config key: %w", err)
	}
	return nil
}

func (s *KeyStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM config_api_keys WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete config key: %w", err)
	}
	return nil
}
