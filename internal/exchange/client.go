// Package exchange provides the HTTP client that fetches OHLCV candles from
// an upstream market-data API, with rate limiting, retry with exponential
// backoff, and decimal-safe price parsing.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/cbtrade/mdstore/internal/models"
)

// Client fetches candles for a trading pair over a time range.
type Client interface {
	// Name returns the exchange identifier used in dataset descriptors.
	Name() string
	// FetchCandles returns validated records for the pair and interval,
	// ordered as delivered by the upstream API.
	FetchCandles(ctx context.Context, req FetchRequest) (*models.Batch, error)
}

// FetchRequest describes one candle fetch.
type FetchRequest struct {
	Coin     string
	Interval string
	Start    time.Time
	End      time.Time
	Limit    int
}

// HTTPClient is a rate-limited, retrying OHLCV client for JSON candle APIs.
type HTTPClient struct {
	name       string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries uint64
	logger     *slog.Logger
}

// Options configures an HTTPClient.
type Options struct {
	Name            string
	BaseURL         string
	RateLimitPerSec float64
	Timeout         time.Duration
	MaxRetries      uint64
}

// NewHTTPClient creates an exchange client.
func NewHTTPClient(opts Options, logger *slog.Logger) (*HTTPClient, error) {
	if opts.Name == "" {
		return nil, fmt.Errorf("exchange name is required")
	}
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("exchange base URL is required")
	}
	if opts.RateLimitPerSec <= 0 {
		opts.RateLimitPerSec = 10
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPClient{
		name:       opts.Name,
		baseURL:    opts.BaseURL,
		httpClient: &http.Client{Timeout: opts.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(opts.RateLimitPerSec), int(opts.RateLimitPerSec)),
		maxRetries: opts.MaxRetries,
		logger:     logger.With("component", "exchange_client", "exchange", opts.Name),
	}, nil
}

// Name implements Client.
func (c *HTTPClient) Name() string { return c.name }

// candlePayload is the upstream JSON candle shape. Prices arrive as strings
// and are parsed through decimal to catch malformed values before they
// become float64 columns.
type candlePayload struct {
	Timestamp int64  `json:"timestamp"`
	Open      string `json:"open"`
	High      string `json:"high"`
	Low       string `json:"low"`
	Close     string `json:"close"`
	Volume    string `json:"volume"`
}

type candlesResponse struct {
	Candles []candlePayload `json:"candles"`
}

// FetchCandles implements Client. Server errors and rate-limit responses are
// retried with exponential backoff; other HTTP errors fail immediately.
func (c *HTTPClient) FetchCandles(ctx context.Context, req FetchRequest) (*models.Batch, error) {
	if req.Coin == "" {
		return nil, fmt.Errorf("coin is required")
	}
	if req.Interval == "" {
		return nil, fmt.Errorf("interval is required")
	}

	endpoint, err := c.buildURL(req)
	if err != nil {
		return nil, err
	}

	var payload candlesResponse
	operation := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}
		switch {
		case resp.StatusCode == http.StatusOK:
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			c.logger.Warn("retryable upstream error", "status", resp.StatusCode)
			return fmt.Errorf("upstream returned %d", resp.StatusCode)
		default:
			return backoff.Permanent(fmt.Errorf("upstream returned %d: %s", resp.StatusCode, string(body)))
		}
		payload = candlesResponse{}
		if err := json.Unmarshal(body, &payload); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode candles: %w", err))
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, fmt.Errorf("failed to fetch candles for %s: %w", req.Coin, err)
	}

	records := make([]models.OHLCVRecord, 0, len(payload.Candles))
	for i, candle := range payload.Candles {
		record, err := parseCandle(candle)
		if err != nil {
			return nil, fmt.Errorf("invalid candle at index %d: %w", i, err)
		}
		records = append(records, record)
	}
	c.logger.Debug("fetched candles", "coin", req.Coin, "interval", req.Interval, "count", len(records))

	meta := models.Metadata{
		DataType: models.DataTypeOHLCV,
		Exchange: c.name,
		Coin:     req.Coin,
		Interval: req.Interval,
	}
	return models.NewBatch(meta, records), nil
}

func (c *HTTPClient) buildURL(req FetchRequest) (string, error) {
	u, err := url.Parse(c.baseURL + "/ohlcv")
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	q := u.Query()
	q.Set("symbol", req.Coin)
	q.Set("interval", req.Interval)
	if !req.Start.IsZero() {
		q.Set("start", strconv.FormatInt(req.Start.UTC().UnixMilli(), 10))
	}
	if !req.End.IsZero() {
		q.Set("end", strconv.FormatInt(req.End.UTC().UnixMilli(), 10))
	}
	if req.Limit > 0 {
		q.Set("limit", strconv.Itoa(req.Limit))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func parseCandle(p candlePayload) (models.OHLCVRecord, error) {
	prices := make(map[string]float64, 5)
	for field, raw := range map[string]string{
		"open":   p.Open,
		"high":   p.High,
		"low":    p.Low,
		"close":  p.Close,
		"volume": p.Volume,
	} {
		if raw == "" {
			prices[field] = 0
			continue
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return models.OHLCVRecord{}, fmt.Errorf("invalid %s price %q: %w", field, raw, err)
		}
		prices[field] = d.InexactFloat64()
	}
	return models.NewOHLCVRecord(p.Timestamp, prices["open"], prices["high"], prices["low"], prices["close"], prices["volume"])
}
