//go:build integration

package postgres

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"gamedex/internal/domain"
)

type PostgresIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *postgres.PostgresContainer
	db        *sqlx.DB
}

func (s *PostgresIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()

	migrationsPath, err := filepath.Abs("../../../migrations")
	s.Require().NoError(err)

	container, err := postgres.Run(s.ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test_db"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		postgres.WithInitScripts(
			filepath.Join(migrationsPath, "001_create_games.up.sql"),
			filepath.Join(migrationsPath, "002_create_blacklist.up.sql"),
		),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	connStr, err := container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)

	db, err := sqlx.Connect("postgres", connStr)
	s.Require().NoError(err)
	s.db = db
}

func (s *PostgresIntegrationSuite) TearDownSuite() {
	if s.db != nil {
		s.db.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *PostgresIntegrationSuite) SetupTest() {
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM games")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM blacklist")
}

func TestPostgresIntegrationSuite(t *testing.T) {
	suite.Run(t, new(PostgresIntegrationSuite))
}

func sampleGame(appID int64) *domain.Game {
	score := 85
	url := "https://example.com/meta"
	return &domain.Game{
		AppID:          appID,
		Name:           "Sample Game",
		Classification: domain.ClassificationGame,
		IsPrimaryType:  true,
		RequiredAge:    0,
		Developers:     []string{"Dev Co"},
		Publishers:     []string{"Pub Co"},
		Genres:         []string{"Action", "Indie"},
		PackageIDs:     []int64{100, 200},
		DLCIDs:         []int64{},
		Platforms:      domain.Platforms{Windows: true, Linux: true},
		HeaderImageURL: "https://example.com/header.jpg",
		Metacritic:     domain.Metacritic{Score: &score, URL: &url},
		Recommendations: domain.Recommendations{
			Total: 321,
		},
		Price: &domain.Price{
			Currency:        "USD",
			Initial:         19.99,
			Final:           19.99,
			DiscountPercent: 0,
			LastChecked:     time.Now().UTC().Truncate(time.Microsecond),
		},
		LastUpdated: time.Now().UTC().Truncate(time.Microsecond),
	}
}

func (s *PostgresIntegrationSuite) TestGameStore_InsertAndGet() {
	store := NewGameStore(s.db)

	id, err := store.Insert(s.ctx, sampleGame(10))
	s.NoError(err)
	s.Greater(id, int64(0))

	got, err := store.GetByAppID(s.ctx, 10)
	s.NoError(err)
	s.Equal("Sample Game", got.Name)
	s.Equal([]string{"Action", "Indie"}, got.Genres)
	s.Equal([]int64{100, 200}, got.PackageIDs)
	s.Empty(got.DLCIDs)
	s.True(got.Platforms.Windows)
	s.Require().NotNil(got.Metacritic.Score)
	s.Equal(85, *got.Metacritic.Score)
	s.Require().NotNil(got.Price)
	s.Equal(19.99, got.Price.Final)
	s.Empty(got.PriceHistory)
}

func (s *PostgresIntegrationSuite) TestGameStore_DuplicateAppID() {
	store := NewGameStore(s.db)

	_, err := store.Insert(s.ctx, sampleGame(10))
	s.NoError(err)

	_, err = store.Insert(s.ctx, sampleGame(10))
	s.ErrorIs(err, domain.ErrDuplicateGame)
}

func (s *PostgresIntegrationSuite) TestGameStore_GetMissing() {
	store := NewGameStore(s.db)

	_, err := store.GetByAppID(s.ctx, 404)
	s.ErrorIs(err, domain.ErrNotFound)
}

func (s *PostgresIntegrationSuite) TestGameStore_FreeGameHasNilPrice() {
	store := NewGameStore(s.db)

	game := sampleGame(11)
	game.IsFree = true
	game.Price = nil
	_, err := store.Insert(s.ctx, game)
	s.NoError(err)

	got, err := store.GetByAppID(s.ctx, 11)
	s.NoError(err)
	s.True(got.IsFree)
	s.Nil(got.Price)
}

func (s *PostgresIntegrationSuite) TestGameStore_RefreshAppendsHistoryOnPriceChange() {
	store := NewGameStore(s.db)

	game := sampleGame(12)
	_, err := store.Insert(s.ctx, game)
	s.NoError(err)

	old := game.Price.Snapshot()
	game.Price = &domain.Price{
		Currency:        "USD",
		Initial:         19.99,
		Final:           9.99,
		DiscountPercent: 50,
		LastChecked:     time.Now().UTC(),
	}
	err = store.UpdateFromRefresh(s.ctx, game, &old)
	s.NoError(err)

	got, err := store.GetByAppID(s.ctx, 12)
	s.NoError(err)
	s.Require().NotNil(got.Price)
	s.Equal(9.99, got.Price.Final)
	s.Equal(50, got.Price.DiscountPercent)

	s.Require().Len(got.PriceHistory, 1)
	s.Equal(19.99, got.PriceHistory[0].Final)
	s.Equal(0, got.PriceHistory[0].DiscountPercent)
}

func (s *PostgresIntegrationSuite) TestGameStore_RefreshWithoutSnapshotKeepsHistory() {
	store := NewGameStore(s.db)

	game := sampleGame(13)
	_, err := store.Insert(s.ctx, game)
	s.NoError(err)

	old := game.Price.Snapshot()
	game.Price.Final = 14.99
	s.NoError(store.UpdateFromRefresh(s.ctx, game, &old))

	// Second refresh with the same price passes no snapshot.
	game.Name = "Renamed Game"
	s.NoError(store.UpdateFromRefresh(s.ctx, game, nil))

	got, err := store.GetByAppID(s.ctx, 13)
	s.NoError(err)
	s.Equal("Renamed Game", got.Name)
	s.Len(got.PriceHistory, 1)
}

func (s *PostgresIntegrationSuite) TestGameStore_BatchOldestFirst() {
	store := NewGameStore(s.db)

	for _, appID := range []int64{21, 22, 23} {
		game := sampleGame(appID)
		_, err := store.Insert(s.ctx, game)
		s.NoError(err)
	}
	// Stagger last_updated so ordering is deterministic.
	_, err := s.db.ExecContext(s.ctx,
		"UPDATE games SET last_updated = now() - (app_id || ' seconds')::interval")
	s.NoError(err)

	cutoff := time.Now()

	batch, err := store.BatchOldestFirst(s.ctx, cutoff, 2, 0)
	s.NoError(err)
	s.Require().Len(batch, 2)
	s.Equal(int64(23), batch[0].AppID, "stalest record comes first")
	s.Equal(int64(22), batch[1].AppID)

	batch, err = store.BatchOldestFirst(s.ctx, cutoff, 2, 2)
	s.NoError(err)
	s.Require().Len(batch, 1)
	s.Equal(int64(21), batch[0].AppID)
}

func (s *PostgresIntegrationSuite) TestGameStore_BatchExcludesRefreshedRecords() {
	store := NewGameStore(s.db)

	for _, appID := range []int64{24, 25} {
		game := sampleGame(appID)
		game.LastUpdated = time.Now().Add(-time.Hour)
		_, err := store.Insert(s.ctx, game)
		s.NoError(err)
	}

	cutoff := time.Now()

	// UpdateFromRefresh bumps last_updated past the cutoff, so the refreshed
	// record drops out of the remaining sweep pages at offset 0.
	refreshed := sampleGame(24)
	s.NoError(store.UpdateFromRefresh(s.ctx, refreshed, nil))

	batch, err := store.BatchOldestFirst(s.ctx, cutoff, 10, 0)
	s.NoError(err)
	s.Require().Len(batch, 1)
	s.Equal(int64(25), batch[0].AppID)
}

func (s *PostgresIntegrationSuite) TestGameStore_BatchSkipsBlacklisted() {
	store := NewGameStore(s.db)
	blacklist := NewBlacklistStore(s.db)

	for _, appID := range []int64{31, 32} {
		_, err := store.Insert(s.ctx, sampleGame(appID))
		s.NoError(err)
	}
	s.NoError(blacklist.Upsert(s.ctx, 31, "Sample Game", "no data"))

	batch, err := store.BatchOldestFirst(s.ctx, time.Now(), 10, 0)
	s.NoError(err)
	s.Require().Len(batch, 1)
	s.Equal(int64(32), batch[0].AppID)
}

func (s *PostgresIntegrationSuite) TestBlacklistStore_UpsertIncrementsAttempts() {
	store := NewBlacklistStore(s.db)

	s.NoError(store.Upsert(s.ctx, 40, "Dead Game", "no data"))
	s.NoError(store.Upsert(s.ctx, 40, "Dead Game", "success=false"))

	entry, err := store.Get(s.ctx, 40)
	s.NoError(err)
	s.Equal(2, entry.AttemptCount)
	s.Equal("success=false", entry.Reason)

	count, err := store.Count(s.ctx)
	s.NoError(err)
	s.Equal(int64(1), count)
}

func (s *PostgresIntegrationSuite) TestBlacklistStore_Delete() {
	store := NewBlacklistStore(s.db)

	s.NoError(store.Upsert(s.ctx, 41, "Pardoned", "no data"))
	s.NoError(store.Delete(s.ctx, 41))

	_, err := store.Get(s.ctx, 41)
	s.ErrorIs(err, domain.ErrNotFound)
}

func (s *PostgresIntegrationSuite) TestSearchStore_FiltersAndPagination() {
	games := NewGameStore(s.db)
	search := NewSearchStore(s.db)

	action := sampleGame(50)
	action.Name = "Alpha Strike"
	_, err := games.Insert(s.ctx, action)
	s.NoError(err)

	discounted := sampleGame(51)
	discounted.Name = "Bargain Bin"
	discounted.Price = &domain.Price{Currency: "USD", Initial: 19.99, Final: 9.99, DiscountPercent: 50, LastChecked: time.Now().UTC()}
	_, err = games.Insert(s.ctx, discounted)
	s.NoError(err)

	soundtrack := sampleGame(52)
	soundtrack.Name = "Alpha OST"
	soundtrack.Classification = domain.ClassificationUnknown
	soundtrack.IsPrimaryType = false
	_, err = games.Insert(s.ctx, soundtrack)
	s.NoError(err)

	// Unknown classifications are hidden by default.
	results, err := search.Search(s.ctx, domain.SearchFilter{}, 10, 0)
	s.NoError(err)
	s.Len(results, 2)

	results, err = search.Search(s.ctx, domain.SearchFilter{IncludeAllTypes: true}, 10, 0)
	s.NoError(err)
	s.Len(results, 3)

	minDiscount := 25
	results, err = search.Search(s.ctx, domain.SearchFilter{MinDiscount: &minDiscount}, 10, 0)
	s.NoError(err)
	s.Require().Len(results, 1)
	s.Equal(int64(51), results[0].AppID)

	results, err = search.Search(s.ctx, domain.SearchFilter{NamePrefix: "alpha"}, 10, 0)
	s.NoError(err)
	s.Require().Len(results, 1)
	s.Equal("Alpha Strike", results[0].Name)

	count, err := search.CountFiltered(s.ctx, domain.SearchFilter{})
	s.NoError(err)
	s.Equal(int64(2), count)

	// Page boundaries respect name ordering.
	results, err = search.Search(s.ctx, domain.SearchFilter{}, 1, 1)
	s.NoError(err)
	s.Require().Len(results, 1)
	s.Equal("Bargain Bin", results[0].Name)
}

func (s *PostgresIntegrationSuite) TestSearchStore_DistinctFacets() {
	games := NewGameStore(s.db)
	search := NewSearchStore(s.db)

	a := sampleGame(60)
	a.Genres = []string{"Action", "RPG"}
	_, err := games.Insert(s.ctx, a)
	s.NoError(err)

	b := sampleGame(61)
	b.Genres = []string{"Action", "Strategy"}
	b.Publishers = []string{"Other Pub"}
	_, err = games.Insert(s.ctx, b)
	s.NoError(err)

	genres, err := search.DistinctGenres(s.ctx)
	s.NoError(err)
	s.Equal([]string{"Action", "RPG", "Strategy"}, genres)

	publishers, err := search.DistinctPublishers(s.ctx)
	s.NoError(err)
	s.Equal([]string{"Other Pub", "Pub Co"}, publishers)
}

func (s *PostgresIntegrationSuite) TestSearchStore_Stats() {
	games := NewGameStore(s.db)
	blacklist := NewBlacklistStore(s.db)
	search := NewSearchStore(s.db)

	paid := sampleGame(70)
	_, err := games.Insert(s.ctx, paid)
	s.NoError(err)

	free := sampleGame(71)
	free.IsFree = true
	free.Price = nil
	_, err = games.Insert(s.ctx, free)
	s.NoError(err)

	discounted := sampleGame(72)
	discounted.Price.DiscountPercent = 30
	_, err = games.Insert(s.ctx, discounted)
	s.NoError(err)

	s.NoError(blacklist.Upsert(s.ctx, 73, "Dead", "no data"))

	stats, err := search.Stats(s.ctx)
	s.NoError(err)
	s.Equal(int64(3), stats.TotalGames)
	s.Equal(int64(1), stats.FreeGames)
	s.Equal(int64(1), stats.DiscountedGames)
	s.Equal(int64(1), stats.TotalBlacklisted)
	s.NotNil(stats.OldestUpdate)
	s.NotNil(stats.NewestUpdate)
}

func (s *PostgresIntegrationSuite) TestTransaction_MoveToBlacklistCommit() {
	tm := NewTransactionManager(s.db)
	games := NewGameStore(s.db)
	blacklist := NewBlacklistStore(s.db)

	_, err := games.Insert(s.ctx, sampleGame(80))
	s.NoError(err)

	err = tm.WithTransaction(s.ctx, func(ctx context.Context) error {
		if err := games.Delete(ctx, 80); err != nil {
			return err
		}
		return blacklist.Upsert(ctx, 80, "Sample Game", "no data")
	})
	s.NoError(err)

	_, err = games.GetByAppID(s.ctx, 80)
	s.ErrorIs(err, domain.ErrNotFound)

	entry, err := blacklist.Get(s.ctx, 80)
	s.NoError(err)
	s.Equal(1, entry.AttemptCount)
}

func (s *PostgresIntegrationSuite) TestTransaction_Rollback() {
	tm := NewTransactionManager(s.db)
	games := NewGameStore(s.db)
	blacklist := NewBlacklistStore(s.db)

	_, err := games.Insert(s.ctx, sampleGame(81))
	s.NoError(err)

	err = tm.WithTransaction(s.ctx, func(ctx context.Context) error {
		if err := games.Delete(ctx, 81); err != nil {
			return err
		}
		if err := blacklist.Upsert(ctx, 81, "Sample Game", "no data"); err != nil {
			return err
		}
		return context.Canceled
	})
	s.Error(err)

	// The failed move leaves the record live and unblacklisted.
	_, err = games.GetByAppID(s.ctx, 81)
	s.NoError(err)

	_, err = blacklist.Get(s.ctx, 81)
	s.ErrorIs(err, domain.ErrNotFound)
}
