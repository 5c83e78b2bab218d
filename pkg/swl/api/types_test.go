package api

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobRunUnmarshal(t *testing.T) {
	payload := `{
		"job_id": "a1b2c3",
		"started_at": "2025-06-01T09:30:00.000123",
		"finished_at": "2025-06-01T09:30:00.000123",
		"wait_sec": 0.5,
		"limit": 50,
		"total_cached": 120,
		"processed": 3,
		"success": 2,
		"failed": 1,
		"cancelled": false,
		"tickers": [
			{"ticker": "aapl", "ok": true, "errors": null, "processed_at": "2025-06-01T09:30:01"}
		]
	}`
	var run JobRun
	require.NoError(t, json.Unmarshal([]byte(payload), &run))
	run.normalize()

	assert.Equal(t, "a1b2c3", run.ID)
	require.NotNil(t, run.Limit)
	assert.Equal(t, 50, *run.Limit)
	assert.Equal(t, 120, run.TotalCached)
	require.Len(t, run.Tickers, 1)
	assert.Equal(t, "AAPL", run.Tickers[0].Ticker)
	assert.NotNil(t, run.Tickers[0].Errors)
	assert.False(t, run.Complete(), "matching start/finish stamps mean still running")
}

func TestJobRunUnmarshalLegacyID(t *testing.T) {
	var run JobRun
	require.NoError(t, json.Unmarshal([]byte(`{"id": "old-7", "started_at": "2025-06-01T09:30:00"}`), &run))
	assert.Equal(t, "old-7", run.ID)
}

func TestJobRunComplete(t *testing.T) {
	started := time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)
	withGap := func(gap time.Duration) *JobRun {
		return &JobRun{ID: "j", StartedAt: NewTime(started), FinishedAt: NewTime(started.Add(gap))}
	}

	var nilRun *JobRun
	assert.False(t, nilRun.Complete())
	assert.False(t, (&JobRun{ID: "j", StartedAt: NewTime(started)}).Complete(), "zero finished_at")
	assert.False(t, withGap(0).Complete())
	assert.False(t, withGap(499*time.Millisecond).Complete())
	assert.False(t, withGap(500*time.Millisecond).Complete())
	assert.True(t, withGap(501*time.Millisecond).Complete())
	assert.True(t, withGap(3*time.Second).Complete())
}

func TestAggregateStatusNormalize(t *testing.T) {
	var agg AggregateStatus
	payload := `{"total_cached": 10, "tickers": [{"ticker": "msft", "ok": false, "errors": ["quote: 502"]}]}`
	require.NoError(t, json.Unmarshal([]byte(payload), &agg))
	agg.normalize()

	require.Len(t, agg.Tickers, 1)
	assert.Equal(t, "MSFT", agg.Tickers[0].Ticker)
	assert.Equal(t, []string{"quote: 502"}, agg.Tickers[0].Errors)
}

func TestSymbolCacheTotalFallback(t *testing.T) {
	var sc SymbolCache
	require.NoError(t, json.Unmarshal([]byte(`{"symbols": ["AAPL", "MSFT", "GOOG"], "exchanges": ["US"]}`), &sc))
	sc.normalize()
	assert.Equal(t, 3, sc.Total)
}

func TestResumeOutcomeNoOp(t *testing.T) {
	assert.True(t, (&ResumeOutcome{Message: "nothing left to do"}).NoOp())
	assert.False(t, (&ResumeOutcome{Run: &JobRun{ID: "j"}}).NoOp())
}
