package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"gamedex/internal/config"
	"gamedex/internal/domain"
	"gamedex/internal/source/steam"
)

// SyncService is the reconciliation engine: it diffs the upstream catalog
// against local storage, fetches missing or stale details with bounded
// concurrency and merges the results per record.
type SyncService struct {
	source    Source
	games     GameStore
	blacklist BlacklistTracker
	txManager TransactionManager
	publisher Publisher
	logger    *slog.Logger
	config    config.SyncConfig
}

func NewSyncService(
	source Source,
	games GameStore,
	blacklist BlacklistTracker,
	txManager TransactionManager,
	publisher Publisher,
	logger *slog.Logger,
	cfg config.SyncConfig,
) *SyncService {
	return &SyncService{
		source:    source,
		games:     games,
		blacklist: blacklist,
		txManager: txManager,
		publisher: publisher,
		logger:    logger.With("component", "sync"),
		config:    cfg,
	}
}

// SyncNewGames fetches the current catalog and inserts records for every id
// not yet stored or blacklisted. Safe to re-run: a second pass with an
// unchanged catalog adds nothing.
func (s *SyncService) SyncNewGames(ctx context.Context) (*domain.SyncStats, error) {
	startTime := time.Now()

	catalog, err := s.source.FetchCatalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch catalog: %w", err)
	}

	existing, err := s.existingIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("load existing ids: %w", err)
	}

	var newItems []domain.CatalogItem
	for _, item := range catalog {
		if _, ok := existing[item.AppID]; !ok {
			newItems = append(newItems, item)
		}
	}

	s.logger.Info("catalog diffed",
		"catalog", len(catalog),
		"existing", len(existing),
		"new", len(newItems),
	)

	stats := &domain.SyncStats{Processed: len(newItems)}
	counts := &syncCounters{}

	forEachLimited(ctx, newItems, s.config.Concurrency, func(ctx context.Context, item domain.CatalogItem) {
		s.processNewItem(ctx, item, counts)
	})

	counts.apply(stats)
	stats.Duration = time.Since(startTime)

	s.logger.Info("new-game sync completed",
		"processed", stats.Processed,
		"added", stats.Added,
		"blacklisted", stats.Blacklisted,
		"skipped", stats.Skipped,
		"errors", stats.Errors,
		"duration", stats.Duration,
	)

	return stats, nil
}

// UpdateAllGames runs SyncNewGames first, then refreshes every stored record
// oldest-stale-first in fixed-size batches until a batch comes back empty.
// Batches are selected against a timestamp snapshotted at sweep start: a
// refreshed record's bumped last_updated moves it past the cutoff, so it
// leaves the window instead of reshuffling the pages still to be visited.
func (s *SyncService) UpdateAllGames(ctx context.Context) (*domain.SyncStats, error) {
	startTime := time.Now()

	stats, err := s.SyncNewGames(ctx)
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().UTC()
	counts := &syncCounters{}
	offset := 0
	processed := 0
	for {
		batch, err := s.games.BatchOldestFirst(ctx, cutoff, s.config.BatchSize, offset)
		if err != nil {
			return stats, fmt.Errorf("load refresh batch: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		errsBefore := counts.errors.Load()
		forEachLimited(ctx, batch, s.config.Concurrency, func(ctx context.Context, game domain.Game) {
			s.refreshGame(ctx, game, counts)
		})

		// Every item either leaves the window (refreshed, blacklisted) or
		// failed and kept its old timestamp; step the offset past the
		// failures so the sweep cannot revisit them or stall.
		offset += int(counts.errors.Load() - errsBefore)
		processed += len(batch)

		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
	}

	stats.Processed += processed
	counts.apply(stats)
	stats.Duration = time.Since(startTime)

	s.logger.Info("full refresh completed",
		"refreshed", stats.Updated,
		"blacklisted", stats.Blacklisted,
		"errors", stats.Errors,
		"duration", stats.Duration,
	)

	return stats, nil
}

// processNewItem handles one catalog entry not yet decided: fetch, normalize,
// insert. A no-data signal routes the id to the blacklist; a duplicate insert
// means a concurrent run got there first, which is the desired end state.
func (s *SyncService) processNewItem(ctx context.Context, item domain.CatalogItem, counts *syncCounters) {
	blacklisted, err := s.blacklist.IsBlacklisted(ctx, item.AppID)
	if err != nil {
		s.logger.Error("blacklist check failed", "app_id", item.AppID, "error", err)
		counts.errors.Add(1)
		return
	}
	if blacklisted {
		counts.skipped.Add(1)
		return
	}

	game, err := s.source.FetchDetail(ctx, item.AppID, item.Name)
	switch {
	case errors.Is(err, steam.ErrNoData):
		if recErr := s.blacklist.Record(ctx, item.AppID, item.Name, err.Error()); recErr != nil {
			s.logger.Error("blacklist record failed", "app_id", item.AppID, "error", recErr)
			counts.errors.Add(1)
			return
		}
		counts.blacklisted.Add(1)
		return
	case err != nil:
		s.logger.Warn("detail fetch failed, skipping", "app_id", item.AppID, "error", err)
		counts.errors.Add(1)
		return
	}

	if _, err := s.games.Insert(ctx, game); err != nil {
		if errors.Is(err, domain.ErrDuplicateGame) {
			counts.skipped.Add(1)
			return
		}
		s.logger.Error("insert failed", "app_id", item.AppID, "error", err)
		counts.errors.Add(1)
		return
	}

	counts.added.Add(1)
}

// refreshGame re-fetches one stored record and merges the result. When the
// price changed, the previous price is appended to the history in the same
// atomic update that overwrites it, and a change event is published.
func (s *SyncService) refreshGame(ctx context.Context, game domain.Game, counts *syncCounters) {
	blacklisted, err := s.blacklist.IsBlacklisted(ctx, game.AppID)
	if err != nil {
		s.logger.Error("blacklist check failed", "app_id", game.AppID, "error", err)
		counts.errors.Add(1)
		return
	}
	if blacklisted {
		counts.skipped.Add(1)
		return
	}

	fresh, err := s.source.FetchDetail(ctx, game.AppID, game.Name)
	switch {
	case errors.Is(err, steam.ErrNoData):
		if mvErr := s.moveToBlacklist(ctx, &game, err.Error()); mvErr != nil {
			s.logger.Error("move to blacklist failed", "app_id", game.AppID, "error", mvErr)
			counts.errors.Add(1)
			return
		}
		counts.blacklisted.Add(1)
		return
	case err != nil:
		s.logger.Warn("refresh fetch failed, skipping", "app_id", game.AppID, "error", err)
		counts.errors.Add(1)
		return
	}

	priceChanged := !game.Price.Equal(fresh.Price)

	var snapshot *domain.PriceSnapshot
	if priceChanged && game.Price != nil {
		snap := game.Price.Snapshot()
		snapshot = &snap
	}

	if err := s.games.UpdateFromRefresh(ctx, fresh, snapshot); err != nil {
		s.logger.Error("refresh update failed", "app_id", game.AppID, "error", err)
		counts.errors.Add(1)
		return
	}

	if priceChanged && s.publisher != nil {
		if err := s.publisher.PublishPriceChange(ctx, fresh, game.Price, fresh.Price); err != nil {
			s.logger.Warn("price-change publish failed", "app_id", game.AppID, "error", err)
		}
	}

	counts.updated.Add(1)
}

// moveToBlacklist handles a stored record that stopped yielding data: the
// record is removed and the id blacklisted in one transaction, so an id is
// always either a live record or a blacklist entry, never both.
func (s *SyncService) moveToBlacklist(ctx context.Context, game *domain.Game, reason string) error {
	return s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.games.Delete(txCtx, game.AppID); err != nil {
			return fmt.Errorf("delete game: %w", err)
		}
		if err := s.blacklist.Record(txCtx, game.AppID, game.Name, reason); err != nil {
			return fmt.Errorf("record blacklist: %w", err)
		}
		return nil
	})
}

// existingIDs is the union of stored and blacklisted app ids: every id the
// system has already decided about.
func (s *SyncService) existingIDs(ctx context.Context) (map[int64]struct{}, error) {
	gameIDs, err := s.games.AppIDs(ctx)
	if err != nil {
		return nil, err
	}
	blacklistIDs, err := s.blacklist.AppIDs(ctx)
	if err != nil {
		return nil, err
	}

	existing := make(map[int64]struct{}, len(gameIDs)+len(blacklistIDs))
	for _, id := range gameIDs {
		existing[id] = struct{}{}
	}
	for _, id := range blacklistIDs {
		existing[id] = struct{}{}
	}
	return existing, nil
}

// forEachLimited runs fn over items with at most limit in flight. fn handles
// its own failures, so one item can never abort the batch.
func forEachLimited[T any](ctx context.Context, items []T, limit int, fn func(ctx context.Context, item T)) {
	g := new(errgroup.Group)
	g.SetLimit(limit)

	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		item := item
		g.Go(func() error {
			fn(ctx, item)
			return nil
		})
	}

	_ = g.Wait()
}

// syncCounters aggregates per-item outcomes across worker goroutines.
type syncCounters struct {
	added       atomic.Int64
	updated     atomic.Int64
	blacklisted atomic.Int64
	skipped     atomic.Int64
	errors      atomic.Int64
}

func (c *syncCounters) apply(stats *domain.SyncStats) {
	stats.Added += int(c.added.Swap(0))
	stats.Updated += int(c.updated.Swap(0))
	stats.Blacklisted += int(c.blacklisted.Swap(0))
	stats.Skipped += int(c.skipped.Swap(0))
	stats.Errors += int(c.errors.Swap(0))
}
