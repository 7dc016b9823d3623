package steam

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"gamedex/internal/cache"
	"gamedex/internal/domain"
)

const catalogCacheKey = "steam:catalog"

// ErrNoData signals that the upstream has no usable data for an app id:
// success=false, a missing or malformed data block, or a 403/404 status.
// Callers route these ids to the blacklist instead of retrying.
var ErrNoData = errors.New("no data for app")

// errPermanent marks non-retryable transport failures.
var errPermanent = errors.New("permanent upstream error")

// Config holds Steam client configuration.
type Config struct {
	APIKey         string
	AppListURL     string
	AppDetailsURL  string
	Timeout        time.Duration
	RequestDelay   time.Duration
	MaxDelay       time.Duration
	CatalogTTL     time.Duration
	DetailTTL      time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Client talks to the Steam app-list and appdetails endpoints. All detail
// requests pass through one throttle gate, so the inter-request spacing
// holds globally no matter how many goroutines call FetchDetail.
type Client struct {
	httpClient     *http.Client
	apiKey         string
	appListURL     string
	appDetailsURL  string
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	catalogTTL     time.Duration
	detailTTL      time.Duration

	throttle     *throttle
	requestMu    sync.Mutex
	catalogCache *cache.Cache[[]domain.CatalogItem]
	detailCache  *cache.Cache[domain.Game]

	logger *slog.Logger
}

// New creates a new Steam client.
func New(cfg Config, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		apiKey:         cfg.APIKey,
		appListURL:     cfg.AppListURL,
		appDetailsURL:  cfg.AppDetailsURL,
		maxAttempts:    cfg.MaxAttempts,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		catalogTTL:     cfg.CatalogTTL,
		detailTTL:      cfg.DetailTTL,
		throttle:       newThrottle(cfg.RequestDelay, cfg.MaxDelay),
		catalogCache:   cache.New[[]domain.CatalogItem](),
		detailCache:    cache.New[domain.Game](),
		logger:         logger.With("source", "steam"),
	}
}

// Close stops the cache janitor goroutines. The client must not be used
// after Close.
func (c *Client) Close() {
	c.catalogCache.Close()
	c.detailCache.Close()
}

// FetchCatalog downloads the full app list, drops unusable entries and
// caches the result so repeated calls within a refresh cycle reuse it.
func (c *Client) FetchCatalog(ctx context.Context) ([]domain.CatalogItem, error) {
	if items, ok := c.catalogCache.Get(catalogCacheKey); ok {
		c.logger.Debug("catalog served from cache", "apps", len(items))
		return items, nil
	}

	listURL := c.appListURL
	if c.apiKey != "" {
		sep := "?"
		if strings.Contains(listURL, "?") {
			sep = "&"
		}
		listURL += sep + "key=" + url.QueryEscape(c.apiKey)
	}

	var resp appListResponse
	err := c.withRetries(ctx, "app list", func() error {
		return c.doRequest(ctx, listURL, &resp)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch app list: %w", err)
	}

	items := make([]domain.CatalogItem, 0, len(resp.AppList.Apps))
	for _, app := range resp.AppList.Apps {
		name := strings.TrimSpace(app.Name)
		if name == "" {
			continue
		}
		if strings.Contains(strings.ToLower(name), "test") {
			continue
		}
		items = append(items, domain.CatalogItem{AppID: app.AppID, Name: app.Name})
	}

	c.logger.Info("fetched catalog",
		"apps", len(resp.AppList.Apps),
		"usable", len(items),
	)

	c.catalogCache.Set(catalogCacheKey, items, c.catalogTTL)
	return items, nil
}

// FetchDetail fetches and normalizes the detail payload for one app id.
// A nil error means a usable record; ErrNoData means the id should be
// blacklisted; any other error is a transport failure worth revisiting on a
// later sweep.
func (c *Client) FetchDetail(ctx context.Context, appID int64, hintName string) (*domain.Game, error) {
	key := "app:" + strconv.FormatInt(appID, 10)
	if g, ok := c.detailCache.Get(key); ok {
		game := g
		return &game, nil
	}

	// Single request queue: spacing applies globally, not per caller.
	c.requestMu.Lock()
	defer c.requestMu.Unlock()

	if g, ok := c.detailCache.Get(key); ok {
		game := g
		return &game, nil
	}

	detailURL := fmt.Sprintf("%s?appids=%d", c.appDetailsURL, appID)

	var raw appData
	err := c.withRetries(ctx, fmt.Sprintf("app %d", appID), func() error {
		if err := c.throttle.wait(ctx); err != nil {
			return fmt.Errorf("%w: %v", errPermanent, err)
		}
		return c.doDetailRequest(ctx, detailURL, appID, &raw)
	})
	if err != nil {
		return nil, err
	}

	game := c.normalize(appID, hintName, &raw)
	c.detailCache.Set(key, game, c.detailTTL)
	return &game, nil
}

// withRetries runs op with exponential backoff on transient failures.
// ErrNoData and permanent errors short-circuit immediately.
func (c *Client) withRetries(ctx context.Context, what string, op func() error) error {
	var err error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		err = op()
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrNoData) || errors.Is(err, errPermanent) {
			return err
		}
		if attempt == c.maxAttempts {
			break
		}

		backoff := c.calculateBackoff(attempt)
		c.logger.Warn("request failed, retrying",
			"what", what,
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}

	return fmt.Errorf("after %d attempts: %w", c.maxAttempts, err)
}

func (c *Client) doRequest(ctx context.Context, reqURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("%w: create request: %v", errPermanent, err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "gamedex/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}

// doDetailRequest issues one appdetails GET and classifies the outcome:
// 429 adapts the throttle and retries, 5xx and network errors retry,
// 403/404 fail permanently, success=false or a broken data block is ErrNoData.
func (c *Client) doDetailRequest(ctx context.Context, reqURL string, appID int64, out *appData) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("%w: create request: %v", errPermanent, err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "gamedex/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		c.throttle.onRateLimited()
		return fmt.Errorf("rate limited (status %d)", resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", ErrNoData, resp.StatusCode)
	case resp.StatusCode >= 500:
		return fmt.Errorf("upstream error: status %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("%w: status %d", errPermanent, resp.StatusCode)
	}

	var envelopes map[string]appDetailsEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelopes); err != nil {
		return fmt.Errorf("%w: malformed response: %v", ErrNoData, err)
	}

	env, ok := envelopes[strconv.FormatInt(appID, 10)]
	if !ok {
		return fmt.Errorf("%w: id missing from response", ErrNoData)
	}
	if !env.Success {
		return fmt.Errorf("%w: upstream reports success=false", ErrNoData)
	}
	if len(env.Data) == 0 {
		return fmt.Errorf("%w: empty data block", ErrNoData)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%w: malformed data block: %v", ErrNoData, err)
	}

	c.throttle.onSuccess()
	return nil
}

func (c *Client) calculateBackoff(attempt int) time.Duration {
	backoff := c.initialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
	}
	if backoff > c.maxBackoff {
		backoff = c.maxBackoff
	}
	return backoff
}
