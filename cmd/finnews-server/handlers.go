package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Sternrassler/finnews-client/pkg/alphavantage"
	"github.com/Sternrassler/finnews-client/pkg/client"
	"github.com/Sternrassler/finnews-client/pkg/metrics"
	"github.com/Sternrassler/finnews-client/pkg/pagination"
	"github.com/Sternrassler/finnews-client/pkg/sina"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// newsService is the Sina use case surface.
type newsService interface {
	ZhiboNews(ctx context.Context) ([]string, error)
	HKRollNews(ctx context.Context) ([]string, error)
	USRollNews(ctx context.Context) ([]string, error)
	FeedNews(ctx context.Context, tag sina.Tag, maxPage int) ([]string, error)
	RollNews(ctx context.Context, lid sina.Lid, maxPage int) ([]string, error)
}

// marketService is the Alpha Vantage surface.
type marketService interface {
	NewsSentiment(ctx context.Context, ticker string) ([]string, error)
	TopGainersLosers(ctx context.Context) (*alphavantage.Movers, error)
}

type dependencies struct {
	news newsService

	// market is nil when no API key is configured.
	market marketService

	// redis is nil when block tracking is disabled.
	redis *redis.Client

	logger zerolog.Logger
}

// Page caps accepted from callers.
const maxRequestPages = 10

type itemsResponse struct {
	Items []string `json:"items"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func newRouter(deps dependencies) *mux.Router {
	r := mux.NewRouter()
	r.Use(requestLogger(deps.logger))

	r.HandleFunc("/health", healthHandler).Methods(http.MethodGet)
	r.HandleFunc("/ready", readyHandler(deps.redis)).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	news := r.PathPrefix("/news").Subrouter()
	news.HandleFunc("/zhibo", zhiboHandler(deps)).Methods(http.MethodGet)
	news.HandleFunc("/roll", rollByLidHandler(deps)).Methods(http.MethodGet)
	news.HandleFunc("/roll/{market}", rollByMarketHandler(deps)).Methods(http.MethodGet)
	news.HandleFunc("/sentiment/{ticker}", sentimentHandler(deps)).Methods(http.MethodGet)
	news.HandleFunc("/movers", moversHandler(deps)).Methods(http.MethodGet)

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

func readyHandler(redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if redisClient != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()

			if err := redisClient.Ping(ctx).Err(); err != nil {
				http.Error(w, "Redis unavailable", http.StatusServiceUnavailable)
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
	}
}

// zhiboHandler serves the live feed, optionally filtered by ?tag= and
// limited by ?max_page=.
func zhiboHandler(deps dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("tag") == "" && q.Get("max_page") == "" {
			items, err := deps.news.ZhiboNews(r.Context())
			writeItems(w, deps.logger, items, err)
			return
		}

		tag := sina.TagInternational
		if raw := q.Get("tag"); raw != "" {
			var err error
			if tag, err = sina.ParseTag(raw); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
		}
		maxPage, err := pageParam(q.Get("max_page"), sina.ZhiboMaxPage)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		items, err := deps.news.FeedNews(r.Context(), tag, maxPage)
		writeItems(w, deps.logger, items, err)
	}
}

// rollByMarketHandler serves the preset Hong Kong and US roll feeds.
func rollByMarketHandler(deps dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var fetch func(context.Context) ([]string, error)
		switch market := mux.Vars(r)["market"]; market {
		case "hk":
			fetch = deps.news.HKRollNews
		case "us":
			fetch = deps.news.USRollNews
		default:
			writeError(w, http.StatusNotFound, fmt.Errorf("unknown market %q", market))
			return
		}

		items, err := fetch(r.Context())
		writeItems(w, deps.logger, items, err)
	}
}

// rollByLidHandler serves any roll category via ?lid= and ?max_page=.
func rollByLidHandler(deps dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("lid") == "" {
			writeError(w, http.StatusBadRequest, errors.New("lid is required"))
			return
		}
		lid, err := sina.ParseLid(q.Get("lid"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		maxPage, err := pageParam(q.Get("max_page"), sina.HKRollMaxPage)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		items, err := deps.news.RollNews(r.Context(), lid, maxPage)
		writeItems(w, deps.logger, items, err)
	}
}

func sentimentHandler(deps dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.market == nil {
			writeError(w, http.StatusServiceUnavailable, errors.New("alpha vantage is not configured"))
			return
		}

		items, err := deps.market.NewsSentiment(r.Context(), mux.Vars(r)["ticker"])
		writeItems(w, deps.logger, items, err)
	}
}

func moversHandler(deps dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.market == nil {
			writeError(w, http.StatusServiceUnavailable, errors.New("alpha vantage is not configured"))
			return
		}

		movers, err := deps.market.TopGainersLosers(r.Context())
		if err != nil {
			deps.logger.Error().Err(err).Msg("Movers request failed")
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, movers)
	}
}

// pageParam parses an optional page cap in [1, maxRequestPages].
func pageParam(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > maxRequestPages {
		return 0, fmt.Errorf("max_page must be an integer in [1, %d]", maxRequestPages)
	}
	return n, nil
}

// statusFor maps use case errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, sina.ErrUnknownCategory):
		return http.StatusBadRequest
	case errors.Is(err, alphavantage.ErrRateLimited):
		return http.StatusServiceUnavailable
	case errors.Is(err, pagination.ErrMissingField),
		errors.Is(err, alphavantage.ErrAPI),
		client.KindOf(err) != "":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeItems(w http.ResponseWriter, logger zerolog.Logger, items []string, err error) {
	if err != nil {
		status := statusFor(err)
		logger.Error().Err(err).Int("status", status).Msg("News request failed")
		writeError(w, status, err)
		return
	}
	if items == nil {
		items = []string{}
	}
	writeJSON(w, http.StatusOK, itemsResponse{Items: items})
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusRecorder captures the response status for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func requestLogger(logger zerolog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", rec.status).
				Dur("duration", time.Since(start)).
				Msg("Request served")
		})
	}
}
