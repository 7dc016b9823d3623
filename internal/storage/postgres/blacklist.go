package postgres

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"gamedex/internal/domain"
)

type BlacklistStore struct {
	db *sqlx.DB
}

func NewBlacklistStore(db *sqlx.DB) *BlacklistStore {
	return &BlacklistStore{db: db}
}

// Upsert records a failed id. The first call creates the entry with
// attempt_count 1; later calls bump the counter and refresh last_attempt
// instead of duplicating.
func (s *BlacklistStore) Upsert(ctx context.Context, appID int64, name, reason string) error {
	query := `
		INSERT INTO blacklist (app_id, name, reason, attempt_count, last_attempt)
		VALUES ($1, $2, $3, 1, now())
		ON CONFLICT (app_id) DO UPDATE SET
			attempt_count = blacklist.attempt_count + 1,
			last_attempt = now(),
			reason = EXCLUDED.reason`

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query, appID, name, reason)
	return err
}

// Get returns the entry for appID or domain.ErrNotFound.
func (s *BlacklistStore) Get(ctx context.Context, appID int64) (*domain.BlacklistEntry, error) {
	var entry domain.BlacklistEntry
	query := `
		SELECT id, app_id, name, reason, attempt_count, last_attempt, created_at
		FROM blacklist
		WHERE app_id = $1`

	err := s.db.GetContext(ctx, &entry, query, appID)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// AppIDs returns every blacklisted app id.
func (s *BlacklistStore) AppIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := s.db.SelectContext(ctx, &ids, "SELECT app_id FROM blacklist")
	return ids, err
}

// Delete removes an entry. This is the administrative unblacklist action; the
// sync pipeline never calls it.
func (s *BlacklistStore) Delete(ctx context.Context, appID int64) error {
	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, "DELETE FROM blacklist WHERE app_id = $1", appID)
	return err
}

// Count returns the number of blacklisted ids.
func (s *BlacklistStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM blacklist")
	return count, err
}
