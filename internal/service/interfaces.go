package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"gamedex/internal/domain"
)

// Source is the upstream catalog and detail API. FetchDetail distinguishes
// three outcomes: a usable record, steam.ErrNoData (blacklist the id), or a
// transport error (skip and revisit on a later sweep).
type Source interface {
	FetchCatalog(ctx context.Context) ([]domain.CatalogItem, error)
	FetchDetail(ctx context.Context, appID int64, hintName string) (*domain.Game, error)
}

type GameStore interface {
	Insert(ctx context.Context, game *domain.Game) (int64, error)
	UpdateFromRefresh(ctx context.Context, game *domain.Game, snapshot *domain.PriceSnapshot) error
	GetByAppID(ctx context.Context, appID int64) (*domain.Game, error)
	AppIDs(ctx context.Context) ([]int64, error)
	BatchOldestFirst(ctx context.Context, olderThan time.Time, limit, offset int) ([]domain.Game, error)
	Delete(ctx context.Context, appID int64) error
}

type BlacklistStore interface {
	Upsert(ctx context.Context, appID int64, name, reason string) error
	Get(ctx context.Context, appID int64) (*domain.BlacklistEntry, error)
	AppIDs(ctx context.Context) ([]int64, error)
	Delete(ctx context.Context, appID int64) error
}

// BlacklistTracker is the slice of the blacklist the reconciliation engine
// needs: membership checks before fetching and recording on failure.
type BlacklistTracker interface {
	IsBlacklisted(ctx context.Context, appID int64) (bool, error)
	Record(ctx context.Context, appID int64, name, reason string) error
	AppIDs(ctx context.Context) ([]int64, error)
}

type SearchStore interface {
	Search(ctx context.Context, filter domain.SearchFilter, limit, offset int) ([]domain.Game, error)
	CountFiltered(ctx context.Context, filter domain.SearchFilter) (int64, error)
	DistinctGenres(ctx context.Context) ([]string, error)
	DistinctPublishers(ctx context.Context) ([]string, error)
	DistinctDevelopers(ctx context.Context) ([]string, error)
	Stats(ctx context.Context) (*domain.Stats, error)
}

type Publisher interface {
	PublishPriceChange(ctx context.Context, game *domain.Game, oldPrice, newPrice *domain.Price) error
	Close() error
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
