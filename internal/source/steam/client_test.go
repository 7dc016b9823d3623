package steam

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServerClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	c := New(Config{
		AppListURL:     srv.URL + "/applist",
		AppDetailsURL:  srv.URL + "/appdetails",
		Timeout:        5 * time.Second,
		RequestDelay:   time.Millisecond,
		MaxDelay:       time.Second,
		CatalogTTL:     time.Hour,
		DetailTTL:      time.Hour,
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}, logger)
	t.Cleanup(c.Close)
	return c, srv
}

func TestClientClose_StopsCacheJanitors(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	before := runtime.NumGoroutine()
	c := New(Config{
		Timeout:      time.Second,
		RequestDelay: time.Millisecond,
		MaxDelay:     time.Second,
		CatalogTTL:   time.Hour,
		DetailTTL:    time.Hour,
	}, logger)
	c.Close()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if runtime.NumGoroutine() <= before {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("cache janitor goroutines still running after Close")
}

func TestFetchCatalog_DropsUnusableEntries(t *testing.T) {
	var calls atomic.Int64
	c, _ := newServerClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{"applist":{"apps":[
			{"appid":1,"name":"Real Game"},
			{"appid":2,"name":""},
			{"appid":3,"name":"   "},
			{"appid":4,"name":"Server Test Build"},
			{"appid":5,"name":"Another Keeper"}
		]}}`)
	}))

	items, err := c.FetchCatalog(context.Background())
	require.NoError(t, err)

	require.Len(t, items, 2)
	assert.Equal(t, int64(1), items[0].AppID)
	assert.Equal(t, int64(5), items[1].AppID)

	// Second call within the TTL comes from cache.
	_, err = c.FetchCatalog(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), calls.Load())
}

func TestFetchCatalog_AppendsKeyParam(t *testing.T) {
	var gotKey string
	c, _ := newServerClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.URL.Query().Get("key")
		fmt.Fprint(w, `{"applist":{"apps":[]}}`)
	}))
	c.apiKey = "secret"

	_, err := c.FetchCatalog(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "secret", gotKey)
}

func TestFetchDetail_NormalizesPayload(t *testing.T) {
	c, _ := newServerClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"10":{"success":true,"data":{
			"type":"game","name":"Real Game","is_free":false,
			"developers":["Dev Co"],"publishers":["Pub Co"],
			"genres":[{"id":"1","description":"Action"}],
			"price_overview":{"currency":"USD","initial":1999,"final":999,"discount_percent":50}
		}}}`)
	}))

	game, err := c.FetchDetail(context.Background(), 10, "Real Game")
	require.NoError(t, err)

	assert.Equal(t, int64(10), game.AppID)
	assert.Equal(t, "Real Game", game.Name)
	assert.Equal(t, []string{"Action"}, game.Genres)
	require.NotNil(t, game.Price)
	assert.Equal(t, 9.99, game.Price.Final)
	assert.Equal(t, 50, game.Price.DiscountPercent)
}

func TestFetchDetail_SuccessFalseIsNoData(t *testing.T) {
	var calls atomic.Int64
	c, _ := newServerClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{"11":{"success":false}}`)
	}))

	_, err := c.FetchDetail(context.Background(), 11, "Gone")
	assert.ErrorIs(t, err, ErrNoData)
	assert.Equal(t, int64(1), calls.Load(), "no-data must not be retried")
}

func TestFetchDetail_NotFoundIsNoData(t *testing.T) {
	var calls atomic.Int64
	c, _ := newServerClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := c.FetchDetail(context.Background(), 12, "Missing")
	assert.ErrorIs(t, err, ErrNoData)
	assert.Equal(t, int64(1), calls.Load())
}

func TestFetchDetail_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int64
	c, _ := newServerClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"13":{"success":true,"data":{"type":"game","name":"Flaky"}}}`)
	}))

	game, err := c.FetchDetail(context.Background(), 13, "Flaky")
	require.NoError(t, err)
	assert.Equal(t, "Flaky", game.Name)
	assert.Equal(t, int64(3), calls.Load())
}

func TestFetchDetail_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int64
	c, _ := newServerClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := c.FetchDetail(context.Background(), 14, "Down")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoData)
	assert.Equal(t, int64(3), calls.Load())
}

func TestFetchDetail_RateLimitGrowsSpacing(t *testing.T) {
	var calls atomic.Int64
	c, _ := newServerClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"15":{"success":true,"data":{"type":"game","name":"Throttled"}}}`)
	}))

	base := c.throttle.currentDelay()
	game, err := c.FetchDetail(context.Background(), 15, "Throttled")
	require.NoError(t, err)
	assert.Equal(t, "Throttled", game.Name)

	// The 429 doubled the spacing and the immediate success must not decay it.
	assert.Equal(t, 2*base, c.throttle.currentDelay())
}

func TestFetchDetail_SecondCallServedFromCache(t *testing.T) {
	var calls atomic.Int64
	c, _ := newServerClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{"16":{"success":true,"data":{"type":"game","name":"Cached"}}}`)
	}))

	first, err := c.FetchDetail(context.Background(), 16, "Cached")
	require.NoError(t, err)
	second, err := c.FetchDetail(context.Background(), 16, "Cached")
	require.NoError(t, err)

	assert.Equal(t, int64(1), calls.Load())
	assert.Equal(t, first.Name, second.Name)
	assert.NotSame(t, first, second, "callers get independent copies")
}
