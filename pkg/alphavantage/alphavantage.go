// Package alphavantage fetches market news sentiment and daily movers from
// the Alpha Vantage query API.
package alphavantage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Sternrassler/finnews-client/pkg/logging"
	"github.com/Sternrassler/finnews-client/pkg/pagination"
	"github.com/Sternrassler/finnews-client/pkg/query"
	"github.com/rs/zerolog"
)

// DefaultBaseURL is the Alpha Vantage query endpoint.
const DefaultBaseURL = "https://www.alphavantage.co/query"

// Errors returned by the Alpha Vantage client.
var (
	// ErrAPIKeyMissing is returned by New without an API key.
	ErrAPIKeyMissing = errors.New("alpha vantage api key is required")

	// ErrRateLimited means the API answered with a usage notice instead of data.
	ErrRateLimited = errors.New("alpha vantage usage limit reached")

	// ErrAPI means the API rejected the request.
	ErrAPI = errors.New("alpha vantage rejected request")
)

// newsTopic narrows sentiment queries to market news.
const newsTopic = "financial_markets"

// Config holds the client configuration.
type Config struct {
	BaseURL string
	APIKey  string
}

// Client queries Alpha Vantage through a page fetcher.
type Client struct {
	fetcher pagination.PageFetcher
	config  Config
	logger  zerolog.Logger
}

// New creates a client. An empty BaseURL selects DefaultBaseURL.
func New(fetcher pagination.PageFetcher, cfg Config) (*Client, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if cfg.APIKey == "" {
		return nil, ErrAPIKeyMissing
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}

	return &Client{
		fetcher: fetcher,
		config:  cfg,
		logger:  logging.NewLogger(logging.ComponentAlphaVantage),
	}, nil
}

// Mover is one entry of the daily movers lists. Alpha Vantage sends all
// values as strings.
type Mover struct {
	Ticker           string `json:"ticker"`
	Price            string `json:"price"`
	ChangeAmount     string `json:"change_amount"`
	ChangePercentage string `json:"change_percentage"`
	Volume           string `json:"volume"`
}

// Movers is the US market's top gainers, top losers and most traded tickers.
type Movers struct {
	Metadata           string  `json:"metadata"`
	LastUpdated        string  `json:"last_updated"`
	TopGainers         []Mover `json:"top_gainers"`
	TopLosers          []Mover `json:"top_losers"`
	MostActivelyTraded []Mover `json:"most_actively_traded"`
}

// notice is the shape of an error or usage-limit answer, sent with status 200.
type notice struct {
	Information  string `json:"Information"`
	Note         string `json:"Note"`
	ErrorMessage string `json:"Error Message"`
}

func (n notice) err() error {
	switch {
	case n.ErrorMessage != "":
		return fmt.Errorf("%w: %s", ErrAPI, n.ErrorMessage)
	case n.Information != "":
		return fmt.Errorf("%w: %s", ErrRateLimited, n.Information)
	case n.Note != "":
		return fmt.Errorf("%w: %s", ErrRateLimited, n.Note)
	default:
		return nil
	}
}

// NewsSentiment returns the summary of every market news item for ticker,
// in the order the API lists them.
func (c *Client) NewsSentiment(ctx context.Context, ticker string) ([]string, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return nil, fmt.Errorf("ticker is required")
	}

	body, err := c.get(ctx, query.Params{
		"function": "NEWS_SENTIMENT",
		"topics":   newsTopic,
		"tickers":  ticker,
	})
	if err != nil {
		return nil, err
	}

	var doc struct {
		notice
		Feed []pagination.RawItem `json:"feed"`
	}
	if err := decode(body, &doc); err != nil {
		return nil, fmt.Errorf("decode news sentiment: %w", err)
	}
	if err := doc.err(); err != nil {
		return nil, err
	}
	if doc.Feed == nil {
		return nil, fmt.Errorf("%w: response has no feed", ErrAPI)
	}

	summaries, err := pagination.Project(doc.Feed, "summary")
	if err != nil {
		return nil, err
	}

	c.logger.Info().
		Str("ticker", ticker).
		Int("items", len(summaries)).
		Msg("News sentiment fetched")

	return summaries, nil
}

// TopGainersLosers returns today's US market movers.
func (c *Client) TopGainersLosers(ctx context.Context) (*Movers, error) {
	body, err := c.get(ctx, query.Params{"function": "TOP_GAINERS_LOSERS"})
	if err != nil {
		return nil, err
	}

	var doc struct {
		notice
		Movers
	}
	if err := decode(body, &doc); err != nil {
		return nil, fmt.Errorf("decode movers: %w", err)
	}
	if err := doc.err(); err != nil {
		return nil, err
	}

	c.logger.Info().
		Int("gainers", len(doc.TopGainers)).
		Int("losers", len(doc.TopLosers)).
		Str("last_updated", doc.LastUpdated).
		Msg("Movers fetched")

	return &doc.Movers, nil
}

func (c *Client) get(ctx context.Context, params query.Params) ([]byte, error) {
	params["apikey"] = c.config.APIKey

	url, err := query.Build(c.config.BaseURL, params)
	if err != nil {
		return nil, fmt.Errorf("build url: %w", err)
	}

	page, err := c.fetcher.FetchPage(ctx, url)
	if err != nil {
		c.logger.Error().
			Err(err).
			Str("function", fmt.Sprint(params["function"])).
			Msg("Alpha Vantage request failed")
		return nil, err
	}
	return page.Body, nil
}

func decode(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}
