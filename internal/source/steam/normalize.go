package steam

import (
	"time"

	"gamedex/internal/domain"
)

// normalize maps a raw appdetails payload into the canonical record shape.
// Mapping is defensive: missing arrays become empty slices and nested blocks
// always take their zero-value form, so stored records share one shape.
func (c *Client) normalize(appID int64, hintName string, raw *appData) domain.Game {
	name := raw.Name
	if name == "" {
		name = hintName
	}

	if raw.RequiredAge.invalid {
		c.logger.Warn("non-numeric required_age, defaulting to 0",
			"app_id", appID,
			"value", raw.RequiredAge.raw,
		)
	}

	classification := domain.NormalizeClassification(raw.Type)

	game := domain.Game{
		AppID:          appID,
		Name:           name,
		Classification: classification,
		IsPrimaryType:  domain.IsPrimaryClassification(classification),
		IsFree:         raw.IsFree,
		RequiredAge:    raw.RequiredAge.value,
		Developers:     emptyIfNil(raw.Developers),
		Publishers:     emptyIfNil(raw.Publishers),
		PackageIDs:     emptyIfNil(raw.Packages),
		DLCIDs:         emptyIfNil(raw.DLC),
		Genres:         genreNames(raw.Genres),
		Platforms: domain.Platforms{
			Windows: raw.Platforms.Windows,
			Mac:     raw.Platforms.Mac,
			Linux:   raw.Platforms.Linux,
		},
		HeaderImageURL: raw.HeaderImage,
		WebsiteURL:     raw.Website,
		LastUpdated:    time.Now().UTC(),
	}

	if raw.Metacritic != nil {
		score := raw.Metacritic.Score
		url := raw.Metacritic.URL
		game.Metacritic = domain.Metacritic{Score: &score, URL: &url}
	}

	if raw.Recommendations != nil {
		game.Recommendations = domain.Recommendations{Total: raw.Recommendations.Total}
	}

	if !raw.IsFree && raw.PriceOverview != nil {
		game.Price = &domain.Price{
			Currency:        raw.PriceOverview.Currency,
			Initial:         float64(raw.PriceOverview.Initial) / 100,
			Final:           float64(raw.PriceOverview.Final) / 100,
			DiscountPercent: raw.PriceOverview.DiscountPercent,
			LastChecked:     time.Now().UTC(),
		}
	}

	return game
}

func emptyIfNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func genreNames(genres []rawGenre) []string {
	names := make([]string, 0, len(genres))
	for _, g := range genres {
		if g.Description != "" {
			names = append(names, g.Description)
		}
	}
	return names
}
