package store

import (
	"database/sql"
	"fmt"
	"time"
)

// UsageStore reads the append-only usage_log table. The table is written by
// the external proxy; no write path exists here.
type UsageStore struct {
	db *sql.DB
}

func NewUsageStore(db *sql.DB) *UsageStore {
	return &UsageStore{db: db}
}

// CountOwnerSince counts events across all of the owner's keys with
// requested_at >= since.
func (s *UsageStore) CountOwnerSince(ownerID int64, since time.Time) (int64, error) {
	var n int64
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM usage_log u
		 INNER JOIN config_api_keys c ON c.id = u.config_api_key_id AND c.owner_id = ?
		 WHERE u.requested_at >= ?`,
		ownerID, since.UTC(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count usage since: %w", err)
	}
	return n, nil
}

// CountOwnerTotal counts all events ever recorded for the owner's keys.
func (s *UsageStore) CountOwnerTotal(ownerID int64) (int64, error) {
	var n int64
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM usage_log u
		 INNER JOIN config_api_keys c ON c.id = u.config_api_key_id AND c.owner_id = ?`,
		ownerID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count usage total: %w", err)
	}
	return n, nil
}

// CountKey counts all events for one key.
func (s *UsageStore) CountKey(keyID int64) (int64, error) {
	var n int64
	err := s.db.QueryRow(`SELECT COUNT(*) FROM usage_log WHERE config_api_key_id = ?`, keyID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count key usage: %w", err)
	}
	return n, nil
}

// BucketCounts groups one key's events at or after since into buckets keyed
// by the given strftime format, e.g. "%Y-%m-%d %H:00" for hourly buckets.
func (s *UsageStore) BucketCounts(keyID int64, format string, since time.Time) (map[string]int64, error) {
	rows, err := s.db.Query(
		`SELECT strftime(?, requested_at) AS bucket, COUNT(*)
		 FROM usage_log
		 WHERE config_api_key_id = ? AND requested_at >= ?
		 GROUP BY bucket`,
		format, keyID, since.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("bucket counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var bucket sql.NullString
		var n int64
		if err := rows.Scan(&bucket, &n); err != nil {
			return nil, fmt.Errorf("scan bucket: %w", err)
		}
		if bucket.Valid {
			counts[bucket.String] = n
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("bucket counts: %w", err)
	}
	return counts, nil
}
