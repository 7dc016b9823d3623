package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"gamedex/internal/domain"
)

const uniqueViolationCode = "23505"

type GameStore struct {
	db *sqlx.DB
}

func NewGameStore(db *sqlx.DB) *GameStore {
	return &GameStore{db: db}
}

const gameColumns = `
	id, app_id, name, classification, is_primary_type, is_free, required_age,
	developers, publishers, genres, package_ids, dlc_ids,
	platform_windows, platform_mac, platform_linux,
	header_image_url, website_url, metacritic_score, metacritic_url,
	recommendations_total,
	price_currency, price_initial, price_final, price_discount_percent, price_last_checked,
	price_history, last_updated, created_at`

// Insert creates a new record. A collision on app_id is mapped to
// domain.ErrDuplicateGame so callers can treat a raced-in duplicate as the
// desired end state.
func (s *GameStore) Insert(ctx context.Context, game *domain.Game) (int64, error) {
	query := `
		INSERT INTO games (
			app_id, name, classification, is_primary_type, is_free, required_age,
			developers, publishers, genres, package_ids, dlc_ids,
			platform_windows, platform_mac, platform_linux,
			header_image_url, website_url, metacritic_score, metacritic_url,
			recommendations_total,
			price_currency, price_initial, price_final, price_discount_percent, price_last_checked,
			last_updated
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11,
			$12, $13, $14,
			$15, $16, $17, $18,
			$19,
			$20, $21, $22, $23, $24,
			$25
		)
		RETURNING id`

	args := []any{
		game.AppID,
		game.Name,
		game.Classification,
		game.IsPrimaryType,
		game.IsFree,
		game.RequiredAge,
		pq.Array(game.Developers),
		pq.Array(game.Publishers),
		pq.Array(game.Genres),
		pq.Array(game.PackageIDs),
		pq.Array(game.DLCIDs),
		game.Platforms.Windows,
		game.Platforms.Mac,
		game.Platforms.Linux,
		game.HeaderImageURL,
		game.WebsiteURL,
		game.Metacritic.Score,
		game.Metacritic.URL,
		game.Recommendations.Total,
	}
	args = append(args, priceArgs(game.Price)...)
	args = append(args, game.LastUpdated)

	var id int64
	err := GetExecutor(ctx, s.db).QueryRowxContext(ctx, query, args...).Scan(&id)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolationCode {
			return 0, domain.ErrDuplicateGame
		}
		return 0, err
	}

	return id, nil
}

// UpdateFromRefresh overwrites a record's fields with freshly normalized data
// in a single atomic statement. When snapshot is non-nil, the previous price
// is appended to the history as part of the same update.
func (s *GameStore) UpdateFromRefresh(ctx context.Context, game *domain.Game, snapshot *domain.PriceSnapshot) error {
	query := `
		UPDATE games SET
			name = $2,
			classification = $3,
			is_primary_type = $4,
			is_free = $5,
			required_age = $6,
			developers = $7,
			publishers = $8,
			genres = $9,
			package_ids = $10,
			dlc_ids = $11,
			platform_windows = $12,
			platform_mac = $13,
			platform_linux = $14,
			header_image_url = $15,
			website_url = $16,
			metacritic_score = $17,
			metacritic_url = $18,
			recommendations_total = $19,
			price_currency = $20,
			price_initial = $21,
			price_final = $22,
			price_discount_percent = $23,
			price_last_checked = $24,
			last_updated = now()`

	args := []any{
		game.AppID,
		game.Name,
		game.Classification,
		game.IsPrimaryType,
		game.IsFree,
		game.RequiredAge,
		pq.Array(game.Developers),
		pq.Array(game.Publishers),
		pq.Array(game.Genres),
		pq.Array(game.PackageIDs),
		pq.Array(game.DLCIDs),
		game.Platforms.Windows,
		game.Platforms.Mac,
		game.Platforms.Linux,
		game.HeaderImageURL,
		game.WebsiteURL,
		game.Metacritic.Score,
		game.Metacritic.URL,
		game.Recommendations.Total,
	}
	args = append(args, priceArgs(game.Price)...)

	if snapshot != nil {
		entry, err := json.Marshal(snapshot)
		if err != nil {
			return fmt.Errorf("marshal price snapshot: %w", err)
		}
		query += `,
			price_history = price_history || $25::jsonb`
		args = append(args, string(entry))
	}

	query += `
		WHERE app_id = $1`

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query, args...)
	return err
}

// GetByAppID returns one record or domain.ErrNotFound.
func (s *GameStore) GetByAppID(ctx context.Context, appID int64) (*domain.Game, error) {
	query := `SELECT ` + gameColumns + ` FROM games WHERE app_id = $1`

	row := s.db.QueryRowxContext(ctx, query, appID)
	game, err := scanGame(row)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return game, nil
}

// AppIDs returns every stored app id.
func (s *GameStore) AppIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := s.db.SelectContext(ctx, &ids, "SELECT app_id FROM games")
	return ids, err
}

// BatchOldestFirst pages through records ordered stalest-first, skipping ids
// that have since been blacklisted. Only rows last updated before olderThan
// are returned, so a refresh that bumps last_updated removes the row from
// the caller's remaining pages instead of reordering them.
func (s *GameStore) BatchOldestFirst(ctx context.Context, olderThan time.Time, limit, offset int) ([]domain.Game, error) {
	query := `
		SELECT ` + prefixColumns("g", gameColumns) + `
		FROM games g
		LEFT JOIN blacklist b ON b.app_id = g.app_id
		WHERE b.app_id IS NULL AND g.last_updated < $1
		ORDER BY g.last_updated ASC, g.id ASC
		LIMIT $2 OFFSET $3`

	rows, err := s.db.QueryxContext(ctx, query, olderThan, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectGames(rows)
}

// Delete removes a record, used only when a stored id is moved to the
// blacklist.
func (s *GameStore) Delete(ctx context.Context, appID int64) error {
	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, "DELETE FROM games WHERE app_id = $1", appID)
	return err
}

func priceArgs(p *domain.Price) []any {
	if p == nil {
		return []any{nil, nil, nil, nil, nil}
	}
	return []any{p.Currency, p.Initial, p.Final, p.DiscountPercent, p.LastChecked}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGame(row rowScanner) (*domain.Game, error) {
	var (
		g              domain.Game
		developers     pq.StringArray
		publishers     pq.StringArray
		genres         pq.StringArray
		packageIDs     pq.Int64Array
		dlcIDs         pq.Int64Array
		metaScore      sql.NullInt64
		metaURL        sql.NullString
		priceCurrency  sql.NullString
		priceInitial   sql.NullFloat64
		priceFinal     sql.NullFloat64
		priceDiscount  sql.NullInt64
		priceChecked   sql.NullTime
		historyPayload []byte
	)

	err := row.Scan(
		&g.ID,
		&g.AppID,
		&g.Name,
		&g.Classification,
		&g.IsPrimaryType,
		&g.IsFree,
		&g.RequiredAge,
		&developers,
		&publishers,
		&genres,
		&packageIDs,
		&dlcIDs,
		&g.Platforms.Windows,
		&g.Platforms.Mac,
		&g.Platforms.Linux,
		&g.HeaderImageURL,
		&g.WebsiteURL,
		&metaScore,
		&metaURL,
		&g.Recommendations.Total,
		&priceCurrency,
		&priceInitial,
		&priceFinal,
		&priceDiscount,
		&priceChecked,
		&historyPayload,
		&g.LastUpdated,
		&g.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	g.Developers = developers
	g.Publishers = publishers
	g.Genres = genres
	g.PackageIDs = packageIDs
	g.DLCIDs = dlcIDs

	if metaScore.Valid {
		score := int(metaScore.Int64)
		g.Metacritic.Score = &score
	}
	if metaURL.Valid {
		url := metaURL.String
		g.Metacritic.URL = &url
	}

	if priceCurrency.Valid {
		g.Price = &domain.Price{
			Currency:        priceCurrency.String,
			Initial:         priceInitial.Float64,
			Final:           priceFinal.Float64,
			DiscountPercent: int(priceDiscount.Int64),
			LastChecked:     priceChecked.Time,
		}
	}

	if len(historyPayload) > 0 {
		if err := json.Unmarshal(historyPayload, &g.PriceHistory); err != nil {
			return nil, fmt.Errorf("decode price history for app %d: %w", g.AppID, err)
		}
	}

	return &g, nil
}

func collectGames(rows *sqlx.Rows) ([]domain.Game, error) {
	var games []domain.Game
	for rows.Next() {
		game, err := scanGame(rows)
		if err != nil {
			return nil, err
		}
		games = append(games, *game)
	}
	return games, rows.Err()
}

func prefixColumns(alias, columns string) string {
	cols := strings.Split(columns, ",")
	for i, col := range cols {
		cols[i] = alias + "." + strings.TrimSpace(col)
	}
	return strings.Join(cols, ", ")
}
