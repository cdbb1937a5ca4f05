// Package provider implements the HTTP client for the market-data gateway
// that fronts the exchange option feeds: option boards, risk indicators,
// per-contract quote fields and underlying ETF spot prices.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/tianyi-liu/premiumdiff/internal/models"
)

// Field names used by the quote feed's field/value row structure.
const (
	// FieldBid is the best bid price field (买价).
	FieldBid = "买价"
	// FieldAsk is the best ask price field (卖价).
	FieldAsk = "卖价"
	// FieldLast is the last traded price field (最新价).
	FieldLast = "最新价"
	// FieldSpotLast is the last traded price field on the underlying spot
	// feed (最近成交价).
	FieldSpotLast = "最近成交价"
)

const defaultTimeout = 10 * time.Second

// APIError represents a gateway error with status code and response body.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway error %d: %s", e.Status, e.Body)
}

// BoardRow is one contract row from the option board feed.
type BoardRow struct {
	TradingCode string  `json:"trading_code"`
	StrikePrice float64 `json:"strike_price"`
}

// RiskIndicatorRow is one row from the daily risk-indicator feed. The feed
// publishes upper-case column names; they are preserved on the wire.
type RiskIndicatorRow struct {
	SecurityID     string `json:"SECURITY_ID"`
	ContractID     string `json:"CONTRACT_ID"`
	ContractSymbol string `json:"CONTRACT_SYMBOL"`
}

// Complete reports whether all three required columns are present.
func (r RiskIndicatorRow) Complete() bool {
	return r.SecurityID != "" && r.ContractID != "" && r.ContractSymbol != ""
}

// FieldValueRow is one field/value pair from the quote or spot feeds.
// Values are strings on the wire; conversion failures are field-local.
type FieldValueRow struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

type rowsResponse[T any] struct {
	Rows []T `json:"rows"`
}

// Client talks to the market-data gateway over HTTP.
type Client struct {
	client  *http.Client
	baseURL string
	limiter *rate.Limiter
	log     *logrus.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the HTTP client timeout. The gateway imposes no timeout
// of its own, so every call is bounded here.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.client.Timeout = d }
}

// WithHTTPClient overrides the HTTP client (tests, custom transport).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.client = hc
		}
	}
}

// WithRateLimit caps outbound requests per minute. Zero or negative
// disables pacing.
func WithRateLimit(perMinute int) Option {
	return func(c *Client) {
		if perMinute > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute)
		}
	}
}

// NewClient creates a gateway client for the given base URL.
func NewClient(baseURL string, log *logrus.Logger, opts ...Option) *Client {
	c := &Client{
		client:  &http.Client{Timeout: defaultTimeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OptionBoard lists the contracts on the option board for one underlying
// class and contract month.
func (c *Client) OptionBoard(ctx context.Context, class models.UnderlyingClass, month models.ContractMonth) ([]BoardRow, error) {
	params := url.Values{}
	params.Set("symbol", string(class))
	params.Set("end_month", string(month))

	var resp rowsResponse[BoardRow]
	if err := c.get(ctx, "/option/board", params, &resp); err != nil {
		return nil, err
	}
	return resp.Rows, nil
}

// RiskIndicators returns the daily risk-indicator rows for a business date
// in YYYYMMDD form. Non-trading days yield an error or an empty result.
func (c *Client) RiskIndicators(ctx context.Context, date string) ([]RiskIndicatorRow, error) {
	params := url.Values{}
	params.Set("date", date)

	var resp rowsResponse[RiskIndicatorRow]
	if err := c.get(ctx, "/option/risk-indicators", params, &resp); err != nil {
		return nil, err
	}
	return resp.Rows, nil
}

// QuoteFields returns the field/value rows for one option contract.
func (c *Client) QuoteFields(ctx context.Context, securityID string) ([]FieldValueRow, error) {
	params := url.Values{}
	params.Set("security_id", securityID)

	var resp rowsResponse[FieldValueRow]
	if err := c.get(ctx, "/option/quote", params, &resp); err != nil {
		return nil, err
	}
	return resp.Rows, nil
}

// SpotFields returns the field/value rows for an underlying ETF symbol.
func (c *Client) SpotFields(ctx context.Context, symbol string) ([]FieldValueRow, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	var resp rowsResponse[FieldValueRow]
	if err := c.get(ctx, "/etf/spot", params, &resp); err != nil {
		return nil, err
	}
	return resp.Rows, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, response interface{}) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}

	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return err
	}
	req.Header.Add("Accept", "application/json")
	req.Header.Add("User-Agent", "premiumdiff/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil && c.log != nil {
			c.log.WithError(cerr).Warn("failed to close response body")
		}
	}()

	if resp.StatusCode != http.StatusOK {
		body, rerr := io.ReadAll(io.LimitReader(resp.Body, 64<<10)) // 64KB cap
		if rerr != nil {
			return &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("GET %s -> failed to read error body", path)}
		}
		return &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("GET %s -> %s", path, string(body))}
	}

	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(response); err != nil && err != io.EOF {
		return err
	}
	return nil
}
