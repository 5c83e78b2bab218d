package api

import (
	"encoding/json"
	"strings"
	"time"
)

// completionGap is how far finished_at must advance past started_at before a
// run counts as complete. While a job is still running the backend reports
// finished_at == started_at (a sentinel, not a real completion time); the
// gap tolerates clock and serialization jitter.
const completionGap = 500 * time.Millisecond

// TickerResult is the per-ticker outcome recorded by a profile-cache run.
type TickerResult struct {
	Ticker      string   `json:"ticker"`
	OK          bool     `json:"ok"`
	Errors      []string `json:"errors"`
	ProcessedAt Time     `json:"processed_at"`
}

// JobRun is one invocation of the backend profile-cache refresh job.
type JobRun struct {
	ID          string         `json:"job_id,omitempty"`
	StartedAt   Time           `json:"started_at"`
	FinishedAt  Time           `json:"finished_at"`
	WaitSec     float64        `json:"wait_sec"`
	Limit       *int           `json:"limit"`
	TotalCached int            `json:"total_cached"`
	Processed   int            `json:"processed"`
	Success     int            `json:"success"`
	Failed      int            `json:"failed"`
	Cancelled   bool           `json:"cancelled,omitempty"`
	Tickers     []TickerResult `json:"tickers"`
}

// UnmarshalJSON accepts both the job_id key used by the cron endpoints and
// the legacy id key used by the read-only status endpoint.
func (r *JobRun) UnmarshalJSON(b []byte) error {
	type alias JobRun
	aux := struct {
		*alias
		LegacyID string `json:"id"`
	}{alias: (*alias)(r)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	if r.ID == "" {
		r.ID = aux.LegacyID
	}
	return nil
}

// Complete reports whether the run has actually finished: finished_at must
// sit meaningfully past started_at, not just differ by jitter.
func (r *JobRun) Complete() bool {
	if r == nil || r.StartedAt.IsZero() || r.FinishedAt.IsZero() {
		return false
	}
	return r.FinishedAt.Sub(r.StartedAt.Time) > completionGap
}

// normalize uppercases tickers and replaces nil slices so callers never
// re-check the wire shape.
func (r *JobRun) normalize() {
	if r.Tickers == nil {
		r.Tickers = []TickerResult{}
	}
	for i := range r.Tickers {
		r.Tickers[i].Ticker = strings.ToUpper(strings.TrimSpace(r.Tickers[i].Ticker))
		if r.Tickers[i].Errors == nil {
			r.Tickers[i].Errors = []string{}
		}
	}
}

// AggregateStatus is the all-time union of per-ticker results across every
// job run, keyed by ticker with the latest processed_at kept per ticker.
// The wire shape matches a JobRun, so extra run-local fields are ignored.
type AggregateStatus struct {
	TotalCached int            `json:"total_cached"`
	Tickers     []TickerResult `json:"tickers"`
}

func (a *AggregateStatus) normalize() {
	if a.Tickers == nil {
		a.Tickers = []TickerResult{}
	}
	for i := range a.Tickers {
		a.Tickers[i].Ticker = strings.ToUpper(strings.TrimSpace(a.Tickers[i].Ticker))
		if a.Tickers[i].Errors == nil {
			a.Tickers[i].Errors = []string{}
		}
	}
}

// SymbolCache is the backend's cached list of tradable symbols.
type SymbolCache struct {
	Symbols   []string `json:"symbols"`
	Total     int      `json:"total"`
	Exchanges []string `json:"exchanges"`
	UpdatedAt Time     `json:"updated_at"`
}

func (s *SymbolCache) normalize() {
	for i := range s.Symbols {
		s.Symbols[i] = strings.ToUpper(strings.TrimSpace(s.Symbols[i]))
	}
	if s.Total == 0 {
		s.Total = len(s.Symbols)
	}
}

// CancelResult is the backend's answer to a cancel request. Cancelling an
// already-finished or already-cancelled job is not an error; the backend
// answers cancelled=false with an explanatory message.
type CancelResult struct {
	Cancelled bool   `json:"cancelled"`
	Message   string `json:"message"`
}

// ResumeOutcome is either a started run or the backend's explanation that
// there was nothing left to do. A no-op is a legitimate terminal result,
// not an error.
type ResumeOutcome struct {
	Run     *JobRun
	Message string
}

// NoOp reports whether the resume found nothing to process.
func (o *ResumeOutcome) NoOp() bool { return o != nil && o.Run == nil }

// ProfileDoc is the cached company profile the refresh job maintains,
// as served by the read-only database endpoint.
type ProfileDoc struct {
	Ticker    string      `json:"ticker"`
	Data      ProfileInfo `json:"data"`
	UpdatedAt Time        `json:"updated_at"`
}

// ProfileInfo carries the finnhub profile2 fields the screener displays.
type ProfileInfo struct {
	Country   string   `json:"country"`
	Currency  string   `json:"currency"`
	Exchange  string   `json:"exchange"`
	Industry  string   `json:"finnhubIndustry"`
	IPO       string   `json:"ipo"`
	MktCap    *float64 `json:"marketCapitalization"`
	Name      string   `json:"name"`
	SharesOut *float64 `json:"shareOutstanding"`
	WebURL    string   `json:"weburl"`
}

// QuoteResponse wraps a real-time quote fetch.
type QuoteResponse struct {
	Ticker string    `json:"ticker"`
	Data   QuoteData `json:"data"`
}

// QuoteData is the finnhub /quote payload.
type QuoteData struct {
	Current   *float64 `json:"c"`
	Change    *float64 `json:"d"`
	ChangePct *float64 `json:"dp"`
	High      *float64 `json:"h"`
	Low       *float64 `json:"l"`
	Open      *float64 `json:"o"`
	PrevClose *float64 `json:"pc"`
	At        int64    `json:"t"`
}
