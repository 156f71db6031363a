// Package sina implements the Sina Finance news use cases on top of the
// pagination drivers.
package sina

import (
	"context"
	"errors"
	"fmt"

	"github.com/Sternrassler/finnews-client/pkg/client"
	"github.com/Sternrassler/finnews-client/pkg/logging"
	"github.com/Sternrassler/finnews-client/pkg/pagination"
	"github.com/rs/zerolog"
)

// ErrUnknownCategory is returned for a tag or lid outside the known set.
var ErrUnknownCategory = errors.New("unknown news category")

// Projected fields per feed.
const (
	FieldRichText = "rich_text"
	FieldIntro    = "intro"
)

// Use case defaults.
const (
	DefaultPageSize      = 20
	ZhiboMaxPage         = 3
	HKRollMaxPage        = 1
	USRollMaxPage        = 3
	maxRequestedPageSize = 100
)

// Config holds the service configuration.
type Config struct {
	// ZhiboURL and RollURL override the upstream base URLs.
	ZhiboURL string
	RollURL  string

	// PageSize is requested on every page.
	PageSize int

	// RollUpperBound caps roll runs. 0 selects pagination.DefaultUpperBound.
	RollUpperBound int
}

// DefaultConfig returns the production configuration.
func DefaultConfig() Config {
	return Config{
		ZhiboURL: DefaultZhiboURL,
		RollURL:  DefaultRollURL,
		PageSize: DefaultPageSize,
	}
}

// Service fetches Sina news feeds and projects them to text lists.
type Service struct {
	feed  *pagination.FeedDriver
	roll  *pagination.RollDriver
	zhibo pagination.Endpoint
	rolls pagination.Endpoint

	pageSize int
	logger   zerolog.Logger
}

// NewService creates a service. A nil throttle disables throttling.
func NewService(fetcher pagination.PageFetcher, throttle client.Throttle, cfg Config) (*Service, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if cfg.ZhiboURL == "" || cfg.RollURL == "" {
		return nil, fmt.Errorf("zhibo and roll base URLs are required")
	}
	if cfg.PageSize < 1 || cfg.PageSize > maxRequestedPageSize {
		return nil, fmt.Errorf("page size must be in [1, %d] (got %d)", maxRequestedPageSize, cfg.PageSize)
	}

	driverLogger := logging.NewLogger(logging.ComponentPagination)

	return &Service{
		feed:     pagination.NewFeedDriver(fetcher, throttle, driverLogger),
		roll:     pagination.NewRollDriver(fetcher, throttle, cfg.RollUpperBound, driverLogger),
		zhibo:    ZhiboEndpoint(cfg.ZhiboURL),
		rolls:    RollEndpoint(cfg.RollURL),
		pageSize: cfg.PageSize,
		logger:   logging.NewLogger(logging.ComponentSina),
	}, nil
}

// ZhiboNews returns the rich text of the international live feed,
// up to three pages.
func (s *Service) ZhiboNews(ctx context.Context) ([]string, error) {
	return s.FeedNews(ctx, TagInternational, ZhiboMaxPage)
}

// HKRollNews returns the intros of the first page of Hong Kong stock news.
func (s *Service) HKRollNews(ctx context.Context) ([]string, error) {
	return s.RollNews(ctx, LidHKStocks, HKRollMaxPage)
}

// USRollNews returns the intros of up to three pages of US stock news.
func (s *Service) USRollNews(ctx context.Context) ([]string, error) {
	return s.RollNews(ctx, LidUSStocks, USRollMaxPage)
}

// FeedNews returns the rich text of up to maxPage pages of the live feed
// filtered by tag. Fetch failures end the run early; only an unknown tag
// or an item without rich text is reported as an error.
func (s *Service) FeedNews(ctx context.Context, tag Tag, maxPage int) ([]string, error) {
	if !tag.Valid() {
		return nil, fmt.Errorf("%w: tag %d", ErrUnknownCategory, int(tag))
	}

	q := pagination.Query{
		Kind:     pagination.KindCursor,
		TopicID:  int(tag),
		Page:     1,
		PageSize: s.pageSize,
		MaxPage:  maxPage,
	}
	out := s.feed.Run(ctx, q, s.zhibo)
	return s.project(out, FieldRichText, tag.String())
}

// RollNews returns the intros of up to maxPage pages of the roll feed
// for lid.
func (s *Service) RollNews(ctx context.Context, lid Lid, maxPage int) ([]string, error) {
	if !lid.Valid() {
		return nil, fmt.Errorf("%w: lid %d", ErrUnknownCategory, int(lid))
	}

	q := pagination.Query{
		Kind:     pagination.KindRoll,
		TopicID:  int(lid),
		Page:     1,
		PageSize: s.pageSize,
		MaxPage:  maxPage,
	}
	out := s.roll.Run(ctx, q, s.rolls)
	return s.project(out, FieldIntro, lid.String())
}

func (s *Service) project(out pagination.Outcome, field, category string) ([]string, error) {
	if out.Stop == pagination.StopInvalidQuery {
		return nil, out.Err
	}

	texts, err := pagination.Project(out.Items, field)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("category", category).
			Str("field", field).
			Msg("Upstream item schema changed")
		return nil, err
	}

	s.logger.Info().
		Str("category", category).
		Int("items", len(texts)).
		Str("stop", string(out.Stop)).
		Msg("News fetched")

	return texts, nil
}
