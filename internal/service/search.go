package service

import (
	"context"
	"log/slog"
	"strconv"

	"gamedex/internal/config"
	"gamedex/internal/domain"
)

// SearchService answers filtered, paginated read queries over stored games.
// Methods return plain data structures so an HTTP layer can serialize them
// directly.
type SearchService struct {
	store  SearchStore
	config config.SearchConfig
	logger *slog.Logger
}

func NewSearchService(store SearchStore, cfg config.SearchConfig, logger *slog.Logger) *SearchService {
	return &SearchService{
		store:  store,
		config: cfg,
		logger: logger.With("component", "search"),
	}
}

// Search runs one filtered page query. page and pageSize arrive as raw
// strings from the transport layer; absent or non-numeric values fall back to
// defaults and pageSize is clamped to the configured maximum.
func (s *SearchService) Search(ctx context.Context, filter domain.SearchFilter, page, pageSize string) (*domain.SearchResult, error) {
	p := parsePositive(page, 1)
	size := parsePositive(pageSize, s.config.DefaultPageSize)
	if size > s.config.MaxPageSize {
		size = s.config.MaxPageSize
	}

	total, err := s.store.CountFiltered(ctx, filter)
	if err != nil {
		return nil, err
	}

	items, err := s.store.Search(ctx, filter, size, (p-1)*size)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.Game{}
	}

	totalPages := int(total) / size
	if int(total)%size != 0 {
		totalPages++
	}

	return &domain.SearchResult{
		Items: items,
		Pagination: domain.Pagination{
			Page:       p,
			PageSize:   size,
			TotalItems: total,
			TotalPages: totalPages,
		},
	}, nil
}

// UniqueGenres returns the distinct non-empty genre values, sorted.
func (s *SearchService) UniqueGenres(ctx context.Context) ([]string, error) {
	return s.store.DistinctGenres(ctx)
}

// UniquePublishers returns the distinct non-empty publisher values, sorted.
func (s *SearchService) UniquePublishers(ctx context.Context) ([]string, error) {
	return s.store.DistinctPublishers(ctx)
}

// UniqueDevelopers returns the distinct non-empty developer values, sorted.
func (s *SearchService) UniqueDevelopers(ctx context.Context) ([]string, error) {
	return s.store.DistinctDevelopers(ctx)
}

// Stats returns catalog-wide counters.
func (s *SearchService) Stats(ctx context.Context) (*domain.Stats, error) {
	return s.store.Stats(ctx)
}

func parsePositive(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
