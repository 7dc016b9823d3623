package service

import (
	"context"
	"errors"
	"log/slog"

	"gamedex/internal/domain"
)

// BlacklistService tracks app ids known to yield no usable data, so the
// reconciliation engine never wastes upstream calls on them.
type BlacklistService struct {
	store  BlacklistStore
	logger *slog.Logger
}

func NewBlacklistService(store BlacklistStore, logger *slog.Logger) *BlacklistService {
	return &BlacklistService{store: store, logger: logger}
}

func (s *BlacklistService) IsBlacklisted(ctx context.Context, appID int64) (bool, error) {
	_, err := s.store.Get(ctx, appID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Record is idempotent per id: repeated calls bump the attempt counter
// instead of creating duplicates.
func (s *BlacklistService) Record(ctx context.Context, appID int64, name, reason string) error {
	if err := s.store.Upsert(ctx, appID, name, reason); err != nil {
		return err
	}
	s.logger.Info("blacklisted app", "app_id", appID, "name", name, "reason", reason)
	return nil
}

func (s *BlacklistService) AppIDs(ctx context.Context) ([]int64, error) {
	return s.store.AppIDs(ctx)
}

// Entry returns the stored entry for an id, or domain.ErrNotFound.
func (s *BlacklistService) Entry(ctx context.Context, appID int64) (*domain.BlacklistEntry, error) {
	return s.store.Get(ctx, appID)
}

// Unblacklist removes an id. Administrative action only; the sync pipeline
// never unblacklists on its own.
func (s *BlacklistService) Unblacklist(ctx context.Context, appID int64) error {
	if err := s.store.Delete(ctx, appID); err != nil {
		return err
	}
	s.logger.Info("unblacklisted app", "app_id", appID)
	return nil
}
