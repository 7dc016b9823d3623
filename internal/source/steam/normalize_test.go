package steam

import (
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gamedex/internal/domain"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	c := New(Config{
		Timeout:        time.Second,
		RequestDelay:   time.Millisecond,
		MaxDelay:       30 * time.Second,
		CatalogTTL:     time.Hour,
		DetailTTL:      time.Hour,
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     10 * time.Millisecond,
	}, logger)
	t.Cleanup(c.Close)
	return c
}

func decodeAppData(t *testing.T, payload string) *appData {
	t.Helper()
	var raw appData
	require.NoError(t, json.Unmarshal([]byte(payload), &raw))
	return &raw
}

func TestNormalize_PriceMinorUnitsDivided(t *testing.T) {
	c := newTestClient(t)

	raw := decodeAppData(t, `{
		"name": "Real Game",
		"type": "game",
		"is_free": false,
		"price_overview": {"currency": "USD", "initial": 1999, "final": 999, "discount_percent": 50}
	}`)

	game := c.normalize(2, "Real Game", raw)

	require.NotNil(t, game.Price)
	assert.Equal(t, "USD", game.Price.Currency)
	assert.Equal(t, 19.99, game.Price.Initial)
	assert.Equal(t, 9.99, game.Price.Final)
	assert.Equal(t, 50, game.Price.DiscountPercent)
}

func TestNormalize_FreeGameHasNoPrice(t *testing.T) {
	c := newTestClient(t)

	raw := decodeAppData(t, `{
		"name": "Freebie",
		"type": "game",
		"is_free": true,
		"price_overview": {"currency": "USD", "initial": 0, "final": 0, "discount_percent": 0}
	}`)

	game := c.normalize(3, "Freebie", raw)

	assert.Nil(t, game.Price)
	assert.True(t, game.IsFree)
}

func TestNormalize_RequiredAgeNumericString(t *testing.T) {
	c := newTestClient(t)

	raw := decodeAppData(t, `{"name": "Mature", "type": "game", "required_age": "18"}`)
	game := c.normalize(4, "Mature", raw)
	assert.Equal(t, 18, game.RequiredAge)
}

func TestNormalize_RequiredAgeGarbageDefaultsToZero(t *testing.T) {
	c := newTestClient(t)

	raw := decodeAppData(t, `{"name": "Odd", "type": "game", "required_age": "eighteen"}`)
	game := c.normalize(5, "Odd", raw)
	assert.Equal(t, 0, game.RequiredAge)
}

func TestNormalize_LegacyGamesAlias(t *testing.T) {
	c := newTestClient(t)

	raw := decodeAppData(t, `{"name": "Oldie", "type": "games"}`)
	game := c.normalize(6, "Oldie", raw)

	assert.Equal(t, domain.ClassificationGame, game.Classification)
	assert.True(t, game.IsPrimaryType)
}

func TestNormalize_UnrecognizedTypeIsUnknown(t *testing.T) {
	c := newTestClient(t)

	raw := decodeAppData(t, `{"name": "Mystery", "type": "soundtrack"}`)
	game := c.normalize(7, "Mystery", raw)

	assert.Equal(t, domain.ClassificationUnknown, game.Classification)
	assert.False(t, game.IsPrimaryType)
}

func TestNormalize_MissingBlocksTakeZeroValues(t *testing.T) {
	c := newTestClient(t)

	raw := decodeAppData(t, `{"name": "Bare", "type": "game"}`)
	game := c.normalize(8, "Bare", raw)

	assert.NotNil(t, game.Developers)
	assert.Empty(t, game.Developers)
	assert.NotNil(t, game.Publishers)
	assert.NotNil(t, game.Genres)
	assert.NotNil(t, game.DLCIDs)
	assert.NotNil(t, game.PackageIDs)

	assert.Nil(t, game.Metacritic.Score)
	assert.Nil(t, game.Metacritic.URL)
	assert.Equal(t, 0, game.Recommendations.Total)
}

func TestNormalize_EmptyNameFallsBackToHint(t *testing.T) {
	c := newTestClient(t)

	raw := decodeAppData(t, `{"type": "game"}`)
	game := c.normalize(9, "Catalog Name", raw)

	assert.Equal(t, "Catalog Name", game.Name)
}

func TestNormalize_GenresAndMetacritic(t *testing.T) {
	c := newTestClient(t)

	raw := decodeAppData(t, `{
		"name": "Scored",
		"type": "game",
		"genres": [{"id": "1", "description": "Action"}, {"id": "23", "description": "Indie"}],
		"metacritic": {"score": 88, "url": "https://example.com/scored"},
		"recommendations": {"total": 1234},
		"platforms": {"windows": true, "linux": true}
	}`)

	game := c.normalize(10, "Scored", raw)

	assert.Equal(t, []string{"Action", "Indie"}, game.Genres)
	require.NotNil(t, game.Metacritic.Score)
	assert.Equal(t, 88, *game.Metacritic.Score)
	assert.Equal(t, 1234, game.Recommendations.Total)
	assert.True(t, game.Platforms.Windows)
	assert.True(t, game.Platforms.Linux)
	assert.False(t, game.Platforms.Mac)
}
