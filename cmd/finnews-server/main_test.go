package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Sternrassler/finnews-client/internal/testutil"
	"github.com/Sternrassler/finnews-client/pkg/alphavantage"
	"github.com/Sternrassler/finnews-client/pkg/client"
	"github.com/Sternrassler/finnews-client/pkg/sina"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubMarket struct {
	summaries []string
	movers    *alphavantage.Movers
	err       error
	ticker    string
}

func (s *stubMarket) NewsSentiment(ctx context.Context, ticker string) ([]string, error) {
	s.ticker = ticker
	return s.summaries, s.err
}

func (s *stubMarket) TopGainersLosers(ctx context.Context) (*alphavantage.Movers, error) {
	return s.movers, s.err
}

type testServer struct {
	zhibo  *testutil.MockFeed
	roll   *testutil.MockFeed
	router http.Handler
}

func newTestServer(t *testing.T, market marketService, redisClient *redis.Client) *testServer {
	t.Helper()

	zhibo := testutil.NewMockFeed(testutil.ShapeCursor)
	roll := testutil.NewMockFeed(testutil.ShapeRoll)
	t.Cleanup(zhibo.Close)
	t.Cleanup(roll.Close)

	cfg := client.DefaultConfig("finnews-test/1.0")
	cfg.Retry = client.NoRetry()
	cfg.Breaker = client.BreakerConfig{}
	cfg.Redis = redisClient
	c, err := client.New(cfg)
	require.NoError(t, err)
	c.SetHTTPClient(&http.Client{
		Timeout:   5 * time.Second,
		Transport: &http.Transport{DisableKeepAlives: true},
	})

	svcCfg := sina.DefaultConfig()
	svcCfg.ZhiboURL = zhibo.URL() + "/api/zhibo/feed"
	svcCfg.RollURL = roll.URL() + "/api/roll/get"
	news, err := sina.NewService(c, client.NoDelay{}, svcCfg)
	require.NoError(t, err)

	deps := dependencies{
		news:   news,
		redis:  redisClient,
		logger: zerolog.Nop(),
	}
	if market != nil {
		deps.market = market
	}

	return &testServer{zhibo: zhibo, roll: roll, router: newRouter(deps)}
}

func (s *testServer) get(t *testing.T, target string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w.Result()
}

func decodeItems(t *testing.T, resp *http.Response) []string {
	t.Helper()
	var body itemsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body.Items
}

func TestHealthEndpoint(t *testing.T) {
	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	healthHandler(w, req)

	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	if string(body) != "OK" {
		t.Errorf("Expected body 'OK', got %s", string(body))
	}
}

func TestReadyEndpoint(t *testing.T) {
	t.Run("ready_without_redis", func(t *testing.T) {
		s := newTestServer(t, nil, nil)
		resp := s.get(t, "/ready")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("not_ready_redis_down", func(t *testing.T) {
		redisClient := redis.NewClient(&redis.Options{
			Addr:        "127.0.0.1:1",
			DialTimeout: 200 * time.Millisecond,
			MaxRetries:  -1,
		})
		defer redisClient.Close()

		s := newTestServer(t, nil, redisClient)
		resp := s.get(t, "/ready")
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, nil, nil)
	s.zhibo.SetPage(1, testutil.MockPage{Items: testutil.FeedItems("m", 1), TotalPage: 1})
	s.get(t, "/news/zhibo")

	resp := s.get(t, "/metrics")
	body, _ := io.ReadAll(resp.Body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "finnews_runs_total")
	assert.Contains(t, string(body), "finnews_requests_total")
}

func TestZhiboRoute(t *testing.T) {
	s := newTestServer(t, nil, nil)
	items := testutil.FeedItems("intl", 3)
	s.zhibo.SetPage(1, testutil.MockPage{Items: items, TotalPage: 1})

	resp := s.get(t, "/news/zhibo")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, testutil.Texts(items, "rich_text"), decodeItems(t, resp))
	assert.Equal(t, "102", s.zhibo.LastQuery().Get("tag_id"))
}

func TestZhiboRoute_TagAndMaxPage(t *testing.T) {
	s := newTestServer(t, nil, nil)
	for page := 1; page <= 3; page++ {
		s.zhibo.SetPage(page, testutil.MockPage{Items: testutil.FeedItems("macro", 1), TotalPage: 3})
	}

	resp := s.get(t, "/news/zhibo?tag=1&max_page=2")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decodeItems(t, resp), 2)
	assert.Equal(t, []int{1, 2}, s.zhibo.RequestedPages())
	assert.Equal(t, "1", s.zhibo.LastQuery().Get("tag_id"))
}

func TestZhiboRoute_EmptyFeed(t *testing.T) {
	s := newTestServer(t, nil, nil)

	resp := s.get(t, "/news/zhibo")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"items": []}`, string(body))
}

func TestZhiboRoute_BadParams(t *testing.T) {
	s := newTestServer(t, nil, nil)

	for _, target := range []string{
		"/news/zhibo?tag=99",
		"/news/zhibo?tag=abc",
		"/news/zhibo?max_page=0",
		"/news/zhibo?max_page=11",
	} {
		resp := s.get(t, target)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, target)
	}
	assert.Zero(t, s.zhibo.RequestCount())
}

func TestRollRoutes(t *testing.T) {
	tests := []struct {
		name      string
		target    string
		wantLid   string
		wantPages []int
	}{
		{name: "hong kong", target: "/news/roll/hk", wantLid: "2674", wantPages: []int{1}},
		{name: "us", target: "/news/roll/us", wantLid: "2672", wantPages: []int{1, 2, 3}},
		{name: "by lid", target: "/news/roll?lid=2487&max_page=2", wantLid: "2487", wantPages: []int{1, 2}},
		{name: "by lid default pages", target: "/news/roll?lid=2676", wantLid: "2676", wantPages: []int{1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, nil, nil)
			for page := 1; page <= 5; page++ {
				s.roll.SetPage(page, testutil.MockPage{Items: testutil.RollItems("r", 5)})
			}

			resp := s.get(t, tt.target)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Len(t, decodeItems(t, resp), 5*len(tt.wantPages))
			assert.Equal(t, tt.wantPages, s.roll.RequestedPages())
			assert.Equal(t, tt.wantLid, s.roll.LastQuery().Get("lid"))
		})
	}
}

func TestRollRoutes_Errors(t *testing.T) {
	s := newTestServer(t, nil, nil)

	assert.Equal(t, http.StatusNotFound, s.get(t, "/news/roll/eu").StatusCode)
	assert.Equal(t, http.StatusBadRequest, s.get(t, "/news/roll").StatusCode)
	assert.Equal(t, http.StatusBadRequest, s.get(t, "/news/roll?lid=1").StatusCode)
	assert.Zero(t, s.roll.RequestCount())
}

func TestRollRoute_SchemaChange(t *testing.T) {
	s := newTestServer(t, nil, nil)
	s.roll.SetPage(1, testutil.MockPage{Items: []map[string]any{{"title": "no intro"}}})

	resp := s.get(t, "/news/roll/hk")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	var body errorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Contains(t, body.Error, "intro")
}

func TestSentimentRoute(t *testing.T) {
	market := &stubMarket{summaries: []string{"a", "b"}}
	s := newTestServer(t, market, nil)

	resp := s.get(t, "/news/sentiment/AAPL")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"a", "b"}, decodeItems(t, resp))
	assert.Equal(t, "AAPL", market.ticker)
}

func TestSentimentRoute_Errors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{name: "rate limited", err: alphavantage.ErrRateLimited, status: http.StatusServiceUnavailable},
		{name: "rejected", err: alphavantage.ErrAPI, status: http.StatusBadGateway},
		{name: "transport", err: &client.FetchError{Kind: client.KindTransport}, status: http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, &stubMarket{err: tt.err}, nil)
			assert.Equal(t, tt.status, s.get(t, "/news/sentiment/IBM").StatusCode)
		})
	}
}

func TestMarketRoutes_NotConfigured(t *testing.T) {
	s := newTestServer(t, nil, nil)

	assert.Equal(t, http.StatusServiceUnavailable, s.get(t, "/news/sentiment/IBM").StatusCode)
	assert.Equal(t, http.StatusServiceUnavailable, s.get(t, "/news/movers").StatusCode)
}

func TestMoversRoute(t *testing.T) {
	market := &stubMarket{movers: &alphavantage.Movers{
		LastUpdated: "2026-10-16",
		TopGainers:  []alphavantage.Mover{{Ticker: "ABCD", ChangePercentage: "98.4%"}},
	}}
	s := newTestServer(t, market, nil)

	resp := s.get(t, "/news/movers")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var movers alphavantage.Movers
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&movers))
	assert.Equal(t, "2026-10-16", movers.LastUpdated)
	require.Len(t, movers.TopGainers, 1)
	assert.Equal(t, "ABCD", movers.TopGainers[0].Ticker)
}

func TestRedisOptions(t *testing.T) {
	opts, err := redisOptions("localhost:6379")
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opts.Addr)

	opts, err = redisOptions("redis://:secret@cache:6380/2")
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, "secret", opts.Password)

	_, err = redisOptions("redis://cache:6380/notadb")
	assert.Error(t, err)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(sina.ErrUnknownCategory))
	assert.Equal(t, http.StatusInternalServerError, statusFor(io.ErrUnexpectedEOF))
}
