package steam

import (
	"encoding/json"
	"strconv"
	"strings"
)

// appListResponse is the raw GetAppList payload.
type appListResponse struct {
	AppList struct {
		Apps []struct {
			AppID int64  `json:"appid"`
			Name  string `json:"name"`
		} `json:"apps"`
	} `json:"applist"`
}

// appDetailsEnvelope wraps one entry of the appdetails response, which is
// keyed by app id. success=false means no usable data for the id.
type appDetailsEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

type appData struct {
	Type            string              `json:"type"`
	Name            string              `json:"name"`
	RequiredAge     flexInt             `json:"required_age"`
	IsFree          bool                `json:"is_free"`
	DLC             []int64             `json:"dlc"`
	HeaderImage     string              `json:"header_image"`
	Website         string              `json:"website"`
	Developers      []string            `json:"developers"`
	Publishers      []string            `json:"publishers"`
	Packages        []int64             `json:"packages"`
	Platforms       rawPlatforms        `json:"platforms"`
	Metacritic      *rawMetacritic      `json:"metacritic"`
	Genres          []rawGenre          `json:"genres"`
	Recommendations *rawRecommendations `json:"recommendations"`
	PriceOverview   *rawPrice           `json:"price_overview"`
}

type rawPlatforms struct {
	Windows bool `json:"windows"`
	Mac     bool `json:"mac"`
	Linux   bool `json:"linux"`
}

type rawMetacritic struct {
	Score int    `json:"score"`
	URL   string `json:"url"`
}

type rawGenre struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

type rawRecommendations struct {
	Total int `json:"total"`
}

// rawPrice carries minor-currency integers; division by 100 happens at
// normalization time.
type rawPrice struct {
	Currency        string `json:"currency"`
	Initial         int64  `json:"initial"`
	Final           int64  `json:"final"`
	DiscountPercent int    `json:"discount_percent"`
}

// flexInt accepts numeric or numeric-string JSON values. Non-numeric strings
// leave value at 0 and set invalid so the normalizer can log a data-quality
// warning instead of failing.
type flexInt struct {
	value   int
	invalid bool
	raw     string
}

func (f *flexInt) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == "" {
		return nil
	}
	s = strings.Trim(s, `"`)
	if s == "" {
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		f.invalid = true
		f.raw = s
		return nil
	}
	f.value = int(n)
	return nil
}
