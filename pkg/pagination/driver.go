package pagination

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/finnews-client/pkg/client"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for pagination runs.
var (
	pagesFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "finnews_pages_fetched_total",
		Help: "Total pages requested by feed",
	}, []string{"feed"})

	itemsCollectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "finnews_items_collected_total",
		Help: "Total items accumulated by feed",
	}, []string{"feed"})

	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "finnews_runs_total",
		Help: "Total pagination runs by feed and stop reason",
	}, []string{"feed", "outcome"})
)

// PageFetcher is the interface the news client implements for single-page fetching.
type PageFetcher interface {
	FetchPage(ctx context.Context, url string) (*client.RawPage, error)
}

// Endpoint binds a feed's URL scheme to its envelope normalizer.
type Endpoint struct {
	// Name labels logs and metrics, e.g. "zhibo" or "roll".
	Name string

	// URL builds the request URL for one page of q.
	URL func(q Query) (string, error)

	Normalizer Normalizer
}

// StopReason records why a run ended.
type StopReason string

const (
	StopEmptyPage    StopReason = "empty_page"
	StopLastPage     StopReason = "last_page"
	StopMaxPage      StopReason = "max_page"
	StopUpperBound   StopReason = "upper_bound"
	StopError        StopReason = "error"
	StopCancelled    StopReason = "cancelled"
	StopInvalidQuery StopReason = "invalid_query"
)

// Outcome is the result of one run. Items is always usable, even when Err
// is set: a failure mid-run is a soft stop.
type Outcome struct {
	Items []RawItem

	// Pages lists the page numbers actually requested from the upstream, in
	// order. A page that stopped before its request went out is not listed.
	Pages []int

	Stop StopReason

	// Err is the cause of a StopError, StopCancelled or StopInvalidQuery.
	Err error
}

// driver holds what both feed shapes share.
type driver struct {
	fetcher  PageFetcher
	throttle client.Throttle
	logger   zerolog.Logger
}

func newDriver(fetcher PageFetcher, throttle client.Throttle, logger zerolog.Logger) driver {
	if throttle == nil {
		throttle = client.NoDelay{}
	}
	return driver{
		fetcher:  fetcher,
		throttle: throttle,
		logger:   logger,
	}
}

// step throttles, then fetches and normalizes one page. The page is added to
// out.Pages once its request is issued.
// The returned reason is non-empty when the run must stop before using the page.
func (d *driver) step(ctx context.Context, q Query, ep Endpoint, out *Outcome) (NormalizedPage, StopReason, error) {
	if err := d.throttle.Wait(ctx); err != nil {
		return NormalizedPage{}, StopCancelled, err
	}

	url, err := ep.URL(q)
	if err != nil {
		return NormalizedPage{}, StopError, fmt.Errorf("build url for page %d: %w", q.Page, err)
	}

	out.Pages = append(out.Pages, q.Page)
	pagesFetchedTotal.WithLabelValues(ep.Name).Inc()

	raw, err := d.fetcher.FetchPage(ctx, url)
	if err != nil {
		d.logger.Error().
			Err(err).
			Str("feed", ep.Name).
			Int("page", q.Page).
			Str("error_kind", string(client.KindOf(err))).
			Msg("Page fetch failed - returning partial results")
		if ctx.Err() != nil {
			return NormalizedPage{}, StopCancelled, err
		}
		return NormalizedPage{}, StopError, err
	}

	page, err := ep.Normalizer.Normalize(raw)
	if err != nil {
		d.logger.Warn().
			Err(err).
			Str("feed", ep.Name).
			Int("page", q.Page).
			Msg("Page could not be normalized - treating as end of feed")
		return page, StopError, err
	}

	if Exhausted(page, nil) {
		return page, StopEmptyPage, nil
	}
	return page, "", nil
}

// finish records metrics and the summary log line for a run.
func (d *driver) finish(ep Endpoint, acc *Accumulator, out Outcome, start time.Time) Outcome {
	out.Items = acc.Items()

	runsTotal.WithLabelValues(ep.Name, string(out.Stop)).Inc()

	event := d.logger.Info()
	if out.Err != nil {
		event = d.logger.Warn().Err(out.Err)
	}
	event.
		Str("feed", ep.Name).
		Int("pages", len(out.Pages)).
		Int("items", len(out.Items)).
		Str("stop", string(out.Stop)).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")

	return out
}

// FeedDriver paginates cursor feeds, which report a total page count.
type FeedDriver struct {
	driver
}

// NewFeedDriver creates a cursor-feed driver. A nil throttle disables throttling.
func NewFeedDriver(fetcher PageFetcher, throttle client.Throttle, logger zerolog.Logger) *FeedDriver {
	return &FeedDriver{driver: newDriver(fetcher, throttle, logger)}
}

// Run fetches pages q.Page, q.Page+1, ... until a page is empty, the
// reported total is reached, q.MaxPage is reached, or a page fails.
func (d *FeedDriver) Run(ctx context.Context, q Query, ep Endpoint) Outcome {
	start := time.Now()
	acc := &Accumulator{}

	if err := q.Validate(); err != nil {
		return d.finish(ep, acc, Outcome{Stop: StopInvalidQuery, Err: err}, start)
	}

	d.logger.Info().
		Str("feed", ep.Name).
		Int("topic", q.TopicID).
		Int("max_page", q.MaxPage).
		Msg("Starting paginated fetch")

	var out Outcome
	for page := q.Page; ; page++ {
		np, stop, err := d.step(ctx, q.WithPage(page), ep, &out)
		if stop != "" {
			out.Stop, out.Err = stop, err
			break
		}

		acc.Append(np.Items)
		itemsCollectedTotal.WithLabelValues(ep.Name).Add(float64(len(np.Items)))

		totalPages := np.TotalPages
		if totalPages < 1 {
			totalPages = defaultTotalPages
		}

		d.logger.Debug().
			Str("feed", ep.Name).
			Int("page", page).
			Int("items_on_page", len(np.Items)).
			Int("total_items", acc.Len()).
			Int("total_pages", totalPages).
			Msg("Fetched page")

		if page >= q.MaxPage {
			out.Stop = StopMaxPage
			break
		}
		if page >= totalPages {
			out.Stop = StopLastPage
			break
		}
	}

	return d.finish(ep, acc, out, start)
}

// DefaultUpperBound is the hard page cap for roll feeds.
const DefaultUpperBound = 10

// RollDriver paginates roll feeds, which report no total page count.
type RollDriver struct {
	driver
	upperBound int
}

// NewRollDriver creates a roll-feed driver capped at upperBound pages.
// upperBound <= 0 selects DefaultUpperBound.
func NewRollDriver(fetcher PageFetcher, throttle client.Throttle, upperBound int, logger zerolog.Logger) *RollDriver {
	if upperBound <= 0 {
		upperBound = DefaultUpperBound
	}
	return &RollDriver{
		driver:     newDriver(fetcher, throttle, logger),
		upperBound: upperBound,
	}
}

// UpperBound returns the hard page cap.
func (d *RollDriver) UpperBound() int {
	return d.upperBound
}

// Run fetches pages q.Page..UpperBound, stopping early on an empty page,
// a failed page, or q.MaxPage.
func (d *RollDriver) Run(ctx context.Context, q Query, ep Endpoint) Outcome {
	start := time.Now()
	acc := &Accumulator{}

	if err := q.Validate(); err != nil {
		return d.finish(ep, acc, Outcome{Stop: StopInvalidQuery, Err: err}, start)
	}

	d.logger.Info().
		Str("feed", ep.Name).
		Int("topic", q.TopicID).
		Int("max_page", q.MaxPage).
		Int("upper_bound", d.upperBound).
		Msg("Starting paginated fetch")

	out := Outcome{Stop: StopUpperBound}
	for page := q.Page; page <= d.upperBound; page++ {
		np, stop, err := d.step(ctx, q.WithPage(page), ep, &out)
		if stop != "" {
			out.Stop, out.Err = stop, err
			break
		}

		acc.Append(np.Items)
		itemsCollectedTotal.WithLabelValues(ep.Name).Add(float64(len(np.Items)))

		d.logger.Debug().
			Str("feed", ep.Name).
			Int("page", page).
			Int("items_on_page", len(np.Items)).
			Int("total_items", acc.Len()).
			Msg("Fetched page")

		if page >= q.MaxPage {
			out.Stop = StopMaxPage
			break
		}
	}

	return d.finish(ep, acc, out, start)
}
