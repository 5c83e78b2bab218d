// Package api is the HTTP client for the screener backend: the cached
// symbol list, the profile-cache refresh job, and the read-only profile and
// quote lookups. Every call is a single attempt with no retry or backoff;
// callers decide what a failure means. Responses are validated and
// normalized here once, so the rest of the program never re-checks the
// wire shape.
package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const defaultTimeout = 30 * time.Second

// Client talks to the screener backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the whole-request timeout for every call.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// NewClient creates a client for the backend at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// BaseURL returns the backend base URL the client was built with.
func (c *Client) BaseURL() string { return c.baseURL }

// Symbols fetches the cached symbol list.
func (c *Client) Symbols(ctx context.Context) (*SymbolCache, error) {
	var sc SymbolCache
	if err := c.do(ctx, http.MethodGet, "/db/symbols", &sc); err != nil {
		return nil, err
	}
	sc.normalize()
	return &sc, nil
}

// RefreshSymbols asks the backend to rebuild the symbol cache from its
// provider and returns the fresh list.
func (c *Client) RefreshSymbols(ctx context.Context) (*SymbolCache, error) {
	var sc SymbolCache
	if err := c.do(ctx, http.MethodPost, "/finnhub/symbols/refresh", &sc); err != nil {
		return nil, err
	}
	sc.normalize()
	return &sc, nil
}

// StartRefresh starts a profile-cache run. waitSec is the per-ticker delay;
// limit, when non-nil, must be positive and caps how many tickers the run
// processes (omitted from the request otherwise).
func (c *Client) StartRefresh(ctx context.Context, waitSec float64, limit *int) (*JobRun, error) {
	q, err := refreshQuery(waitSec, limit)
	if err != nil {
		return nil, err
	}
	var run JobRun
	if err := c.do(ctx, http.MethodPost, "/finnhub/cron/profile-cache?"+q, &run); err != nil {
		return nil, err
	}
	run.normalize()
	return &run, nil
}

// ResumeRefresh continues a partially-completed sweep. The backend may
// legitimately answer that there is nothing left to do; that comes back as
// a no-op outcome, not an error.
func (c *Client) ResumeRefresh(ctx context.Context, waitSec float64, limit *int, skipCompleted bool) (*ResumeOutcome, error) {
	q, err := refreshQuery(waitSec, limit)
	if err != nil {
		return nil, err
	}
	q += "&skip_completed=" + strconv.FormatBool(skipCompleted)

	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/finnhub/cron/profile-cache/resume?"+q, &raw); err != nil {
		return nil, err
	}
	probe := struct {
		Message   string `json:"message"`
		StartedAt *Time  `json:"started_at"`
	}{}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, errors.Wrap(err, "failed to decode the response body")
	}
	if probe.StartedAt == nil {
		return &ResumeOutcome{Message: probe.Message}, nil
	}
	var run JobRun
	if err := json.Unmarshal(raw, &run); err != nil {
		return nil, errors.Wrap(err, "failed to decode the response body")
	}
	run.normalize()
	return &ResumeOutcome{Run: &run}, nil
}

// RunStatus fetches the current state of one run by job id.
func (c *Client) RunStatus(ctx context.Context, jobID string) (*JobRun, error) {
	if jobID == "" {
		return nil, errors.New("job id required")
	}
	var run JobRun
	if err := c.do(ctx, http.MethodGet, "/finnhub/cron/profile-status/"+url.PathEscape(jobID), &run); err != nil {
		return nil, err
	}
	run.normalize()
	return &run, nil
}

// AggregateStatus fetches the all-time per-ticker status union. Returns
// (nil, nil) when no job has ever run.
func (c *Client) AggregateStatus(ctx context.Context) (*AggregateStatus, error) {
	var agg AggregateStatus
	err := c.do(ctx, http.MethodGet, "/db/cron/profile-status", &agg)
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	agg.normalize()
	return &agg, nil
}

// CancelRefresh asks the backend to stop a run. Idempotent: cancelling a
// finished or already-cancelled job answers cancelled=false with a message.
func (c *Client) CancelRefresh(ctx context.Context, jobID string) (*CancelResult, error) {
	if jobID == "" {
		return nil, errors.New("job id required")
	}
	var res CancelResult
	if err := c.do(ctx, http.MethodPost, "/finnhub/cron/profile-cache/cancel/"+url.PathEscape(jobID), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Profile fetches the cached company profile for a ticker.
func (c *Client) Profile(ctx context.Context, ticker string) (*ProfileDoc, error) {
	var doc ProfileDoc
	if err := c.do(ctx, http.MethodGet, "/db/profile/"+escapeTicker(ticker), &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Quote fetches a real-time quote for a ticker.
func (c *Client) Quote(ctx context.Context, ticker string) (*QuoteResponse, error) {
	var qr QuoteResponse
	if err := c.do(ctx, http.MethodGet, "/finnhub/quote/"+escapeTicker(ticker), &qr); err != nil {
		return nil, err
	}
	return &qr, nil
}

func (c *Client) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read the response body")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrap(err, "failed to decode the response body")
	}
	return nil
}

func refreshQuery(waitSec float64, limit *int) (string, error) {
	if waitSec < 0 {
		return "", errors.New("wait_sec must be >= 0")
	}
	v := url.Values{}
	v.Set("wait_sec", strconv.FormatFloat(waitSec, 'f', -1, 64))
	if limit != nil {
		if *limit <= 0 {
			return "", errors.New("limit must be a positive integer")
		}
		v.Set("limit", strconv.Itoa(*limit))
	}
	return v.Encode(), nil
}

func escapeTicker(ticker string) string {
	return url.PathEscape(strings.ToUpper(strings.TrimSpace(ticker)))
}
