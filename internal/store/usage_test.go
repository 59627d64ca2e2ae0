package store

import (
	"database/sql"
	"testing"
	"time"

	"github.com/Grrraou/latency-poison/internal/database"
)

func setupUsageTestDB(t *testing.T) (*UsageStore, *KeyStore, *AccountStore, *sql.DB) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewUsageStore(db), NewKeyStore(db), NewAccountStore(db), db
}

func appendEvent(t *testing.T, db *sql.DB, keyID int64, at time.Time) {
	t.Helper()
	if _, err := db.Exec(
		`INSERT INTO usage_log (config_api_key_id, requested_at) VALUES (?, ?)`,
		keyID, at.UTC(),
	); err != nil {
		t.Fatalf("append event: %v", err)
	}
}

func TestUsageCountOwnerSince(t *testing.T) {
	us, ks, as, db := setupUsageTestDB(t)

	a, _ := as.Create("alice", "alice@example.com", "hashed", nil)
	k, _ := ks.Create(a.ID, testProfile())

	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	appendEvent(t, db, k.ID, now.Add(-time.Hour))
	appendEvent(t, db, k.ID, now.Add(-time.Minute))
	appendEvent(t, db, k.ID, now.Add(-30*24*time.Hour)) // outside window

	n, err := us.CountOwnerSince(a.ID, now.Add(-2*time.Hour))
	if err != nil {
		t.Fatalf("count since: %v", err)
	}
	if n != 2 {
		t.Errorf("count = %d, want 2", n)
	}
}

func TestUsageCountScopedToOwner(t *testing.T) {
	us, ks, as, db := setupUsageTestDB(t)

	alice, _ := as.Create("alice", "alice@example.com", "hashed", nil)
	bob, _ := as.Create("bob", "bob@example.com", "hashed", nil)
	ak, _ := ks.Create(alice.ID, testProfile())
	bk, _ := ks.Create(bob.ID, testProfile())

	now := time.Now().UTC()
	appendEvent(t, db, ak.ID, now)
	appendEvent(t, db, bk.ID, now)
	appendEvent(t, db, bk.ID, now)

	n, _ := us.CountOwnerTotal(alice.ID)
	if n != 1 {
		t.Errorf("alice total = %d, want 1", n)
	}
	n, _ = us.CountOwnerTotal(bob.ID)
	if n != 2 {
		t.Errorf("bob total = %d, want 2", n)
	}
}

func TestUsageCountEmptyTable(t *testing.T) {
	us, _, as, _ := setupUsageTestDB(t)

	a, _ := as.Create("alice", "alice@example.com", "hashed", nil)
	n, err := us.CountOwnerTotal(a.ID)
	if err != nil {
		t.Fatalf("count empty: %v", err)
	}
	if n != 0 {
		t.Errorf("count = %d, want 0", n)
	}
}

func TestUsageBucketCountsHourly(t *testing.T) {
	us, ks, as, db := setupUsageTestDB(t)

	a, _ := as.Create("alice", "alice@example.com", "hashed", nil)
	k, _ := ks.Create(a.ID, testProfile())

	base := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	appendEvent(t, db, k.ID, base.Add(5*time.Minute))
	appendEvent(t, db, k.ID, base.Add(25*time.Minute))
	appendEvent(t, db, k.ID, base.Add(90*time.Minute))

	counts, err := us.BucketCounts(k.ID, "%Y-%m-%d %H:00", base)
	if err != nil {
		t.Fatalf("bucket counts: %v", err)
	}
	if counts["2026-03-15 12:00"] != 2 {
		t.Errorf("12:00 bucket = %d, want 2", counts["2026-03-15 12:00"])
	}
	if counts["2026-03-15 13:00"] != 1 {
		t.Errorf("13:00 bucket = %d, want 1", counts["2026-03-15 13:00"])
	}
}

// Timestamps are bound by the driver as time.Time; they must land in the
// database in a form SQLite's date functions can read, or every bucketed
// query silently returns nothing.
func TestUsageTimestampsReadableByStrftime(t *testing.T) {
	us, ks, as, db := setupUsageTestDB(t)

	a, _ := as.Create("alice", "alice@example.com", "hashed", nil)
	k, _ := ks.Create(a.ID, testProfile())

	at := time.Date(2026, 3, 15, 10, 10, 0, 0, time.UTC)
	appendEvent(t, db, k.ID, at)
	appendEvent(t, db, k.ID, at.Add(time.Minute))

	var bucket sql.NullString
	if err := db.QueryRow(
		`SELECT strftime('%Y-%m-%d %H:00', requested_at) FROM usage_log LIMIT 1`,
	).Scan(&bucket); err != nil {
		t.Fatalf("strftime: %v", err)
	}
	if !bucket.Valid || bucket.String != "2026-03-15 10:00" {
		t.Fatalf("strftime(requested_at) = %+v, want 2026-03-15 10:00", bucket)
	}

	counts, err := us.BucketCounts(k.ID, "%Y-%m-%d %H:00", at.Add(-time.Hour))
	if err != nil {
		t.Fatalf("bucket counts: %v", err)
	}
	if counts["2026-03-15 10:00"] != 2 {
		t.Errorf("10:00 bucket = %d, want 2", counts["2026-03-15 10:00"])
	}
}

func TestUsageBucketCountsRespectSince(t *testing.T) {
	us, ks, as, db := setupUsageTestDB(t)

	a, _ := as.Create("alice", "alice@example.com", "hashed", nil)
	k, _ := ks.Create(a.ID, testProfile())

	base := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	appendEvent(t, db, k.ID, base.Add(-time.Hour))
	appendEvent(t, db, k.ID, base.Add(time.Hour))

	counts, err := us.BucketCounts(k.ID, "%Y-%m-%d", base)
	if err != nil {
		t.Fatalf("bucket counts: %v", err)
	}
	if len(counts) != 1 || counts["2026-03-15"] != 1 {
		t.Errorf("counts = %v, want map[2026-03-15:1]", counts)
	}
}
