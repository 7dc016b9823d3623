package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"gamedex/internal/domain"
)

// SearchStore builds filtered, paginated read queries over stored games.
type SearchStore struct {
	db *sqlx.DB
}

func NewSearchStore(db *sqlx.DB) *SearchStore {
	return &SearchStore{db: db}
}

// buildWhere translates a filter into a WHERE clause. Records with unknown
// classification are excluded unless IncludeAllTypes is set, which also lifts
// the primary-type restriction. Discount filters force is_free = FALSE.
func buildWhere(filter domain.SearchFilter) (string, []any) {
	var conds []string
	var args []any

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if !filter.IncludeAllTypes {
		conds = append(conds, "classification <> 'unknown'")
		conds = append(conds, "is_primary_type = TRUE")
	}
	if filter.Genre != "" {
		conds = append(conds, arg(filter.Genre)+" = ANY(genres)")
	}
	if filter.Publisher != "" {
		conds = append(conds, arg(filter.Publisher)+" = ANY(publishers)")
	}
	if filter.Developer != "" {
		conds = append(conds, arg(filter.Developer)+" = ANY(developers)")
	}
	if filter.NamePrefix != "" {
		conds = append(conds, "lower(name) LIKE lower("+arg(escapeLike(filter.NamePrefix))+`) || '%' ESCAPE '\'`)
	}

	isFree := filter.IsFree
	if filter.DiscountPercent != nil || filter.MinDiscount != nil || filter.MaxDiscount != nil {
		paid := false
		isFree = &paid
	}
	if isFree != nil {
		conds = append(conds, "is_free = "+arg(*isFree))
	}
	if filter.DiscountPercent != nil {
		conds = append(conds, "price_discount_percent = "+arg(*filter.DiscountPercent))
	}
	if filter.MinDiscount != nil {
		conds = append(conds, "price_discount_percent >= "+arg(*filter.MinDiscount))
	}
	if filter.MaxDiscount != nil {
		conds = append(conds, "price_discount_percent <= "+arg(*filter.MaxDiscount))
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// escapeLike neutralizes LIKE metacharacters in user input, so a prefix such
// as "100%" matches literally instead of acting as a wildcard.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Search returns one page of matching games ordered by name.
func (s *SearchStore) Search(ctx context.Context, filter domain.SearchFilter, limit, offset int) ([]domain.Game, error) {
	where, args := buildWhere(filter)

	query := `SELECT ` + gameColumns + ` FROM games` + where +
		fmt.Sprintf(" ORDER BY name ASC, id ASC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectGames(rows)
}

// CountFiltered returns the total match count for the same filter, so
// pagination metadata reflects the filtered set.
func (s *SearchStore) CountFiltered(ctx context.Context, filter domain.SearchFilter) (int64, error) {
	where, args := buildWhere(filter)

	var count int64
	err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM games"+where, args...)
	return count, err
}

func (s *SearchStore) DistinctGenres(ctx context.Context) ([]string, error) {
	return s.distinctArrayValues(ctx, "genres")
}

func (s *SearchStore) DistinctPublishers(ctx context.Context) ([]string, error) {
	return s.distinctArrayValues(ctx, "publishers")
}

func (s *SearchStore) DistinctDevelopers(ctx context.Context) ([]string, error) {
	return s.distinctArrayValues(ctx, "developers")
}

func (s *SearchStore) distinctArrayValues(ctx context.Context, column string) ([]string, error) {
	query := fmt.Sprintf(`
		SELECT DISTINCT v
		FROM games, unnest(%s) AS v
		WHERE v <> ''
		ORDER BY v ASC`, column)

	var values []string
	err := s.db.SelectContext(ctx, &values, query)
	return values, err
}

// Stats aggregates catalog-wide counters for the read API.
func (s *SearchStore) Stats(ctx context.Context) (*domain.Stats, error) {
	query := `
		SELECT
			COUNT(*) AS total_games,
			COUNT(*) FILTER (WHERE is_free) AS free_games,
			COUNT(*) FILTER (WHERE COALESCE(price_discount_percent, 0) > 0) AS discounted_games,
			MIN(last_updated) AS oldest_update,
			MAX(last_updated) AS newest_update,
			(SELECT COUNT(*) FROM blacklist) AS total_blacklisted
		FROM games`

	var stats domain.Stats
	row := s.db.QueryRowxContext(ctx, query)
	err := row.Scan(
		&stats.TotalGames,
		&stats.FreeGames,
		&stats.DiscountedGames,
		&stats.OldestUpdate,
		&stats.NewestUpdate,
		&stats.TotalBlacklisted,
	)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}
