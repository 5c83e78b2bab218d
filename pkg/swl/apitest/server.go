// Package apitest runs an in-process fake of the screener backend so client
// and command tests can exercise the real HTTP paths without a live server.
package apitest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/screenerlab/swl/pkg/swl/aggregate"
	"github.com/screenerlab/swl/pkg/swl/api"
)

// doneGap keeps finished_at comfortably past the window in which clients
// still treat a run as in flight.
const doneGap = 501 * time.Millisecond

type run struct {
	id         string
	startedAt  time.Time
	finishedAt time.Time
	waitSec    float64
	limit      *int
	queue      []string
	done       []api.TickerResult
	cancelled  bool
}

// Server is a stateful fake backend. Runs advance either automatically on
// every status poll (WithAutoAdvance) or explicitly via Advance.
type Server struct {
	mu          sync.Mutex
	srv         *httptest.Server
	symbols     []string
	profiles    map[string]api.ProfileInfo
	quotes      map[string]api.QuoteData
	failures    map[string][]string
	runs        []*run
	nextID      int
	autoAdvance int
}

type Option func(*Server)

// WithSymbols seeds the symbol universe runs iterate over.
func WithSymbols(syms ...string) Option {
	return func(s *Server) { s.symbols = append([]string(nil), syms...) }
}

// WithProfile seeds an already-cached company profile.
func WithProfile(ticker string, info api.ProfileInfo) Option {
	return func(s *Server) { s.profiles[strings.ToUpper(ticker)] = info }
}

// WithQuote seeds quote data served by the quote endpoint.
func WithQuote(ticker string, data api.QuoteData) Option {
	return func(s *Server) { s.quotes[strings.ToUpper(ticker)] = data }
}

// WithFailure makes a ticker fail refreshes with the given errors.
func WithFailure(ticker string, errs ...string) Option {
	return func(s *Server) { s.failures[strings.ToUpper(ticker)] = errs }
}

// WithAutoAdvance processes n queued tickers on every run-status poll.
func WithAutoAdvance(n int) Option {
	return func(s *Server) { s.autoAdvance = n }
}

func New(opts ...Option) *Server {
	s := &Server{
		profiles: map[string]api.ProfileInfo{},
		quotes:   map[string]api.QuoteData{},
		failures: map[string][]string{},
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /db/symbols", s.handleSymbols)
	mux.HandleFunc("POST /finnhub/symbols/refresh", s.handleSymbols)
	mux.HandleFunc("POST /finnhub/cron/profile-cache", s.handleStart)
	mux.HandleFunc("POST /finnhub/cron/profile-cache/resume", s.handleResume)
	mux.HandleFunc("POST /finnhub/cron/profile-cache/cancel/{id}", s.handleCancel)
	mux.HandleFunc("GET /finnhub/cron/profile-status/{id}", s.handleRunStatus)
	mux.HandleFunc("GET /db/cron/profile-status", s.handleAggregate)
	mux.HandleFunc("GET /db/profile/{ticker}", s.handleProfile)
	mux.HandleFunc("GET /finnhub/quote/{ticker}", s.handleQuote)
	s.srv = httptest.NewServer(mux)
	return s
}

func (s *Server) URL() string { return s.srv.URL }

func (s *Server) Close() { s.srv.Close() }

// Advance processes up to n queued tickers of the newest run.
func (s *Server) Advance(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r := s.activeLocked(); r != nil {
		s.advanceLocked(r, n)
	}
}

// LastRunID returns the id of the newest run, or "".
func (s *Server) LastRunID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.runs) == 0 {
		return ""
	}
	return s.runs[len(s.runs)-1].id
}

// RunCount returns how many runs were started.
func (s *Server) RunCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.runs)
}

func (s *Server) handleSymbols(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, api.SymbolCache{
		Symbols:   append([]string(nil), s.symbols...),
		Total:     len(s.symbols),
		UpdatedAt: api.NewTime(time.Now().UTC()),
	})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	waitSec, limit, err := parseRefreshQuery(r)
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	run := s.startLocked(append([]string(nil), s.symbols...), waitSec, limit)
	writeJSON(w, s.runViewLocked(run))
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	waitSec, limit, err := parseRefreshQuery(r)
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	skipCompleted := r.URL.Query().Get("skip_completed") != "false"

	s.mu.Lock()
	defer s.mu.Unlock()
	pending := s.pendingLocked(skipCompleted)
	if len(pending) == 0 {
		writeJSON(w, map[string]string{"message": "all profiles are already cached"})
		return
	}
	run := s.startLocked(pending, waitSec, limit)
	writeJSON(w, s.runViewLocked(run))
}

func (s *Server) handleRunStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rn := s.findLocked(r.PathValue("id"))
	if rn == nil {
		writeDetail(w, http.StatusNotFound, "job not found")
		return
	}
	if s.autoAdvance > 0 {
		s.advanceLocked(rn, s.autoAdvance)
	}
	writeJSON(w, s.runViewLocked(rn))
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rn := s.findLocked(r.PathValue("id"))
	if rn == nil {
		writeDetail(w, http.StatusNotFound, "job not found")
		return
	}
	if !rn.finishedAt.Equal(rn.startedAt) {
		writeJSON(w, api.CancelResult{Cancelled: false, Message: "job is not running"})
		return
	}
	left := len(rn.queue)
	rn.cancelled = true
	rn.queue = nil
	s.finishLocked(rn)
	writeJSON(w, api.CancelResult{
		Cancelled: true,
		Message:   fmt.Sprintf("cancelled %s with %d tickers left", rn.id, left),
	})
}

func (s *Server) handleAggregate(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.runs) == 0 {
		writeDetail(w, http.StatusNotFound, "no refresh status recorded")
		return
	}
	views := make([]*api.JobRun, 0, len(s.runs))
	for _, rn := range s.runs {
		view := s.runViewLocked(rn)
		views = append(views, &view)
	}
	agg := aggregate.Union(views...)
	if agg == nil {
		writeDetail(w, http.StatusNotFound, "no refresh status recorded")
		return
	}
	writeJSON(w, agg)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	ticker := strings.ToUpper(r.PathValue("ticker"))
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.profiles[ticker]
	if !ok {
		writeDetail(w, http.StatusNotFound, "profile not cached")
		return
	}
	writeJSON(w, api.ProfileDoc{
		Ticker:    ticker,
		Data:      info,
		UpdatedAt: api.NewTime(time.Now().UTC()),
	})
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	ticker := strings.ToUpper(r.PathValue("ticker"))
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, api.QuoteResponse{Ticker: ticker, Data: s.quotes[ticker]})
}

func (s *Server) startLocked(queue []string, waitSec float64, limit *int) *run {
	if limit != nil && *limit < len(queue) {
		queue = queue[:*limit]
	}
	s.nextID++
	now := time.Now().UTC()
	rn := &run{
		id:        fmt.Sprintf("job-%d", s.nextID),
		startedAt: now,
		// finished_at mirrors started_at until the run really ends
		finishedAt: now,
		waitSec:    waitSec,
		limit:      limit,
		queue:      queue,
	}
	s.runs = append(s.runs, rn)
	if len(rn.queue) == 0 {
		s.finishLocked(rn)
	}
	return rn
}

func (s *Server) advanceLocked(rn *run, n int) {
	for ; n > 0 && len(rn.queue) > 0; n-- {
		ticker := strings.ToUpper(rn.queue[0])
		rn.queue = rn.queue[1:]
		res := api.TickerResult{Ticker: ticker, ProcessedAt: api.NewTime(time.Now().UTC())}
		if errs, ok := s.failures[ticker]; ok {
			res.Errors = append([]string(nil), errs...)
		} else {
			res.OK = true
			if _, ok := s.profiles[ticker]; !ok {
				s.profiles[ticker] = api.ProfileInfo{Name: ticker + " Inc"}
			}
		}
		rn.done = append(rn.done, res)
	}
	if len(rn.queue) == 0 && rn.finishedAt.Equal(rn.startedAt) {
		s.finishLocked(rn)
	}
}

func (s *Server) finishLocked(rn *run) {
	now := time.Now().UTC()
	if min := rn.startedAt.Add(doneGap); now.Before(min) {
		now = min
	}
	rn.finishedAt = now
}

func (s *Server) activeLocked() *run {
	for i := len(s.runs) - 1; i >= 0; i-- {
		if rn := s.runs[i]; rn.finishedAt.Equal(rn.startedAt) {
			return rn
		}
	}
	return nil
}

func (s *Server) findLocked(id string) *run {
	for _, rn := range s.runs {
		if rn.id == id {
			return rn
		}
	}
	return nil
}

// pendingLocked lists the symbols a resume would process. When
// skipCompleted is set, symbols with a successful result in any run are
// skipped; otherwise every symbol is eligible again.
func (s *Server) pendingLocked(skipCompleted bool) []string {
	if !skipCompleted {
		return append([]string(nil), s.symbols...)
	}
	okSet := map[string]struct{}{}
	for _, rn := range s.runs {
		for _, res := range rn.done {
			if res.OK {
				okSet[res.Ticker] = struct{}{}
			}
		}
	}
	pending := make([]string, 0, len(s.symbols))
	for _, sym := range s.symbols {
		if _, ok := okSet[strings.ToUpper(sym)]; !ok {
			pending = append(pending, sym)
		}
	}
	return pending
}

func (s *Server) runViewLocked(rn *run) api.JobRun {
	view := api.JobRun{
		ID:          rn.id,
		StartedAt:   api.NewTime(rn.startedAt),
		FinishedAt:  api.NewTime(rn.finishedAt),
		WaitSec:     rn.waitSec,
		Limit:       rn.limit,
		TotalCached: len(s.profiles),
		Processed:   len(rn.done),
		Cancelled:   rn.cancelled,
		Tickers:     append([]api.TickerResult(nil), rn.done...),
	}
	for _, res := range rn.done {
		if res.OK {
			view.Success++
		} else {
			view.Failed++
		}
	}
	return view
}

func parseRefreshQuery(r *http.Request) (float64, *int, error) {
	q := r.URL.Query()
	waitSec := 0.0
	if raw := q.Get("wait_sec"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 {
			return 0, nil, fmt.Errorf("invalid wait_sec %q", raw)
		}
		waitSec = v
	}
	var limit *int
	if raw := q.Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			return 0, nil, fmt.Errorf("invalid limit %q", raw)
		}
		limit = &v
	}
	return waitSec, limit, nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, code int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}
