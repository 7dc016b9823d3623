package domain

import (
	"strings"
	"time"
)

// Classification values recognized from the upstream catalog. Anything else
// is stored as ClassificationUnknown.
const (
	ClassificationGame        = "game"
	ClassificationDLC         = "dlc"
	ClassificationDemo        = "demo"
	ClassificationApplication = "application"
	ClassificationMusic       = "music"
	ClassificationVideo       = "video"
	ClassificationHardware    = "hardware"
	ClassificationPackage     = "package"
	ClassificationBundle      = "bundle"
	ClassificationTool        = "tool"
	ClassificationUnknown     = "unknown"
)

var knownClassifications = map[string]string{
	ClassificationGame:        ClassificationGame,
	"games":                   ClassificationGame, // legacy alias from older stored data
	ClassificationDLC:         ClassificationDLC,
	ClassificationDemo:        ClassificationDemo,
	ClassificationApplication: ClassificationApplication,
	ClassificationMusic:       ClassificationMusic,
	ClassificationVideo:       ClassificationVideo,
	ClassificationHardware:    ClassificationHardware,
	ClassificationPackage:     ClassificationPackage,
	ClassificationBundle:      ClassificationBundle,
	ClassificationTool:        ClassificationTool,
}

// NormalizeClassification maps an upstream type string to a canonical
// classification, defaulting to unknown.
func NormalizeClassification(raw string) string {
	if c, ok := knownClassifications[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return c
	}
	return ClassificationUnknown
}

// IsPrimaryClassification reports whether a classification belongs to the
// primary catalog types surfaced by default search results.
func IsPrimaryClassification(classification string) bool {
	switch classification {
	case ClassificationGame, ClassificationDLC, ClassificationPackage:
		return true
	}
	return false
}

// CatalogItem is one entry of the upstream app list. It is ephemeral: only
// its identity and name survive into a Game.
type CatalogItem struct {
	AppID int64
	Name  string
}

// Platforms describes OS availability as reported upstream.
type Platforms struct {
	Windows bool `json:"windows"`
	Mac     bool `json:"mac"`
	Linux   bool `json:"linux"`
}

// Metacritic holds the critic score block. The struct is always present on a
// Game; absence upstream leaves both fields nil.
type Metacritic struct {
	Score *int    `json:"score"`
	URL   *string `json:"url"`
}

// Recommendations holds the community rating block, defaulting to zero.
type Recommendations struct {
	Total int `json:"total"`
}

// Price is the current price of a game in major currency units. Nil on a
// Game means the item is free or unpriced.
type Price struct {
	Currency        string    `json:"currency"`
	Initial         float64   `json:"initial"`
	Final           float64   `json:"final"`
	DiscountPercent int       `json:"discount_percent"`
	LastChecked     time.Time `json:"last_checked"`
}

// Equal compares the price-determining fields, ignoring LastChecked.
func (p *Price) Equal(other *Price) bool {
	if p == nil || other == nil {
		return p == other
	}
	return p.Currency == other.Currency &&
		p.Initial == other.Initial &&
		p.Final == other.Final &&
		p.DiscountPercent == other.DiscountPercent
}

// Snapshot converts a price into a history entry.
func (p *Price) Snapshot() PriceSnapshot {
	return PriceSnapshot{
		Currency:        p.Currency,
		Initial:         p.Initial,
		Final:           p.Final,
		DiscountPercent: p.DiscountPercent,
		LastChecked:     p.LastChecked,
	}
}

// PriceSnapshot is one append-only entry of a game's price history.
type PriceSnapshot struct {
	Currency        string    `json:"currency"`
	Initial         float64   `json:"initial"`
	Final           float64   `json:"final"`
	DiscountPercent int       `json:"discount_percent"`
	LastChecked     time.Time `json:"last_checked"`
}

// Game is the persisted catalog record, one per distinct upstream app id.
type Game struct {
	ID              int64
	AppID           int64
	Name            string
	Classification  string
	IsPrimaryType   bool
	IsFree          bool
	RequiredAge     int
	Developers      []string
	Publishers      []string
	Genres          []string
	PackageIDs      []int64
	DLCIDs          []int64
	Platforms       Platforms
	HeaderImageURL  string
	WebsiteURL      string
	Metacritic      Metacritic
	Recommendations Recommendations
	Price           *Price
	PriceHistory    []PriceSnapshot
	LastUpdated     time.Time
	CreatedAt       time.Time
}
