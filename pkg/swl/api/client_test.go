package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient returns a Client pointed at a mock backend built from mux.
func newTestClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return NewClient(ts.URL, WithHTTPClient(ts.Client()))
}

func TestStartRefresh(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/finnhub/cron/profile-cache", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		q := r.URL.Query()
		assert.Equal(t, "0.5", q.Get("wait_sec"))
		assert.Equal(t, "25", q.Get("limit"))
		_, _ = w.Write([]byte(`{
			"job_id": "run-1",
			"started_at": "2025-06-01T09:30:00",
			"finished_at": "2025-06-01T09:30:00",
			"wait_sec": 0.5, "limit": 25, "total_cached": 100,
			"processed": 0, "success": 0, "failed": 0, "tickers": []
		}`))
	})
	c := newTestClient(t, mux)

	limit := 25
	run, err := c.StartRefresh(context.Background(), 0.5, &limit)
	require.NoError(t, err)
	assert.Equal(t, "run-1", run.ID)
	assert.False(t, run.Complete())
}

func TestStartRefreshOmitsLimit(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/finnhub/cron/profile-cache", func(w http.ResponseWriter, r *http.Request) {
		_, has := r.URL.Query()["limit"]
		assert.False(t, has, "limit should be omitted when not set")
		_, _ = w.Write([]byte(`{"job_id": "run-2", "started_at": "2025-06-01T09:30:00"}`))
	})
	c := newTestClient(t, mux)

	run, err := c.StartRefresh(context.Background(), 0, nil)
	require.NoError(t, err)
	assert.Equal(t, "run-2", run.ID)
}

func TestStartRefreshValidation(t *testing.T) {
	c := NewClient("http://localhost:0")

	_, err := c.StartRefresh(context.Background(), -1, nil)
	assert.Error(t, err)

	zero := 0
	_, err = c.StartRefresh(context.Background(), 0.5, &zero)
	assert.Error(t, err)
}

func TestResumeRefresh(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/finnhub/cron/profile-cache/resume", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("skip_completed"))
		_, _ = w.Write([]byte(`{
			"job_id": "run-9",
			"started_at": "2025-06-01T10:00:00",
			"finished_at": "2025-06-01T10:00:00",
			"total_cached": 40, "processed": 12, "tickers": []
		}`))
	})
	c := newTestClient(t, mux)

	out, err := c.ResumeRefresh(context.Background(), 0.2, nil, true)
	require.NoError(t, err)
	assert.False(t, out.NoOp())
	require.NotNil(t, out.Run)
	assert.Equal(t, "run-9", out.Run.ID)
	assert.Equal(t, 12, out.Run.Processed)
}

func TestResumeRefreshNoOp(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/finnhub/cron/profile-cache/resume", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message": "All tickers already have cached profiles"}`))
	})
	c := newTestClient(t, mux)

	out, err := c.ResumeRefresh(context.Background(), 0, nil, true)
	require.NoError(t, err)
	assert.True(t, out.NoOp())
	assert.Nil(t, out.Run)
	assert.Contains(t, out.Message, "already")
}

func TestRunStatusNotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail": "Job not found"}`, http.StatusNotFound)
	})
	c := newTestClient(t, mux)

	_, err := c.RunStatus(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.Code)
}

func TestAggregateStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/db/cron/profile-status", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"total_cached": 2,
			"tickers": [
				{"ticker": "aapl", "ok": true, "errors": [], "processed_at": "2025-06-01T09:30:01"},
				{"ticker": "msft", "ok": false, "errors": ["profile: 502"], "processed_at": "2025-06-01T09:30:02"}
			]
		}`))
	})
	c := newTestClient(t, mux)

	agg, err := c.AggregateStatus(context.Background())
	require.NoError(t, err)
	require.NotNil(t, agg)
	assert.Equal(t, 2, agg.TotalCached)
	require.Len(t, agg.Tickers, 2)
	assert.Equal(t, "AAPL", agg.Tickers[0].Ticker)
}

func TestAggregateStatusNoRuns(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/db/cron/profile-status", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail": "No profile refresh has run yet"}`, http.StatusNotFound)
	})
	c := newTestClient(t, mux)

	agg, err := c.AggregateStatus(context.Background())
	require.NoError(t, err, "404 on the aggregate endpoint is not an error")
	assert.Nil(t, agg)
}

func TestCancelRefresh(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/finnhub/cron/profile-cache/cancel/run-1", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		_, _ = w.Write([]byte(`{"cancelled": true, "message": "cancellation requested for run-1"}`))
	})
	c := newTestClient(t, mux)

	res, err := c.CancelRefresh(context.Background(), "run-1")
	require.NoError(t, err)
	assert.True(t, res.Cancelled)

	_, err = c.CancelRefresh(context.Background(), "")
	assert.Error(t, err)
}

func TestSymbols(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/db/symbols", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"symbols": ["AAPL", "MSFT", "GOOG"], "exchanges": ["US"], "updated_at": "2025-06-01T08:00:00"}`))
	})
	c := newTestClient(t, mux)

	sc, err := c.Symbols(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, sc.Total)
	assert.Equal(t, []string{"AAPL", "MSFT", "GOOG"}, sc.Symbols)
}

func TestProfileAndQuote(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/db/profile/AAPL", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"ticker": "AAPL",
			"data": {"name": "Apple Inc", "finnhubIndustry": "Technology", "marketCapitalization": 2900000.0},
			"updated_at": "2025-06-01T08:00:00"
		}`))
	})
	mux.HandleFunc("/finnhub/quote/AAPL", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ticker": "AAPL", "data": {"c": 189.7, "d": 1.2, "dp": 0.64, "h": 190.1, "l": 187.9, "o": 188.2, "pc": 188.5, "t": 1717231800}}`))
	})
	c := newTestClient(t, mux)

	// Lowercase input resolves to the canonical uppercase path.
	doc, err := c.Profile(context.Background(), "aapl")
	require.NoError(t, err)
	assert.Equal(t, "Apple Inc", doc.Data.Name)
	assert.Equal(t, "Technology", doc.Data.Industry)

	q, err := c.Quote(context.Background(), "aapl")
	require.NoError(t, err)
	require.NotNil(t, q.Data.Current)
	assert.InDelta(t, 189.7, *q.Data.Current, 1e-9)
	require.NotNil(t, q.Data.ChangePct)
	assert.InDelta(t, 0.64, *q.Data.ChangePct, 1e-9)
}

func TestNetworkError(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", WithTimeout(250*time.Millisecond))
	_, err := c.Symbols(context.Background())
	require.Error(t, err)
	assert.True(t, IsNetworkError(err))
	assert.False(t, IsNotFound(err))
}
