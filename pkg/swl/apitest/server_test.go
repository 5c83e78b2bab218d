package apitest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/screenerlab/swl/pkg/swl/aggregate"
	"github.com/screenerlab/swl/pkg/swl/api"
)

func intPtr(v int) *int { return &v }

func TestRefreshLifecycle(t *testing.T) {
	srv := New(
		WithSymbols("aapl", "msft", "goog"),
		WithFailure("MSFT", "no profile data"),
		WithAutoAdvance(2),
	)
	t.Cleanup(srv.Close)
	client := api.NewClient(srv.URL())
	ctx := context.Background()

	run, err := client.StartRefresh(ctx, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, "job-1", run.ID)
	assert.False(t, run.Complete())
	assert.Zero(t, run.Processed)

	// First poll advances two tickers, one of which fails.
	run, err = client.RunStatus(ctx, "job-1")
	require.NoError(t, err)
	assert.False(t, run.Complete())
	assert.Equal(t, 2, run.Processed)
	assert.Equal(t, 1, run.Success)
	assert.Equal(t, 1, run.Failed)

	// Second poll drains the queue and stamps finished_at.
	run, err = client.RunStatus(ctx, "job-1")
	require.NoError(t, err)
	assert.True(t, run.Complete())
	assert.Equal(t, 3, run.Processed)
	assert.Equal(t, 2, run.Success)
	require.Len(t, run.Tickers, 3)
	assert.Equal(t, "AAPL", run.Tickers[0].Ticker)
	assert.True(t, run.Tickers[0].OK)
	assert.Equal(t, []string{"no profile data"}, run.Tickers[1].Errors)

	agg, err := client.AggregateStatus(ctx)
	require.NoError(t, err)
	require.NotNil(t, agg)
	assert.Equal(t, 3, aggregate.UniqueProcessed(agg))
	assert.Equal(t, 2, agg.TotalCached)

	// Successful tickers now have a cached profile; failed ones do not.
	doc, err := client.Profile(ctx, "aapl")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", doc.Ticker)
	assert.Equal(t, "AAPL Inc", doc.Data.Name)

	_, err = client.Profile(ctx, "msft")
	assert.True(t, api.IsNotFound(err))
}

func TestResumeRetriesFailedTickers(t *testing.T) {
	srv := New(
		WithSymbols("aapl", "msft"),
		WithFailure("MSFT", "rate limited"),
		WithAutoAdvance(10),
	)
	t.Cleanup(srv.Close)
	client := api.NewClient(srv.URL())
	ctx := context.Background()

	_, err := client.StartRefresh(ctx, 0, nil)
	require.NoError(t, err)
	_, err = client.RunStatus(ctx, "job-1")
	require.NoError(t, err)

	out, err := client.ResumeRefresh(ctx, 0, nil, true)
	require.NoError(t, err)
	require.False(t, out.NoOp())
	assert.Equal(t, "job-2", out.Run.ID)

	run, err := client.RunStatus(ctx, "job-2")
	require.NoError(t, err)
	assert.True(t, run.Complete())
	assert.Equal(t, 1, run.Processed)
	assert.Equal(t, 1, run.Failed)
	require.Len(t, run.Tickers, 1)
	assert.Equal(t, "MSFT", run.Tickers[0].Ticker)
}

func TestResumeNoOpWhenAllCached(t *testing.T) {
	srv := New(WithSymbols("aapl"), WithAutoAdvance(10))
	t.Cleanup(srv.Close)
	client := api.NewClient(srv.URL())
	ctx := context.Background()

	_, err := client.StartRefresh(ctx, 0, nil)
	require.NoError(t, err)
	_, err = client.RunStatus(ctx, "job-1")
	require.NoError(t, err)

	out, err := client.ResumeRefresh(ctx, 0, nil, true)
	require.NoError(t, err)
	require.True(t, out.NoOp())
	assert.Equal(t, "all profiles are already cached", out.Message)
	assert.Equal(t, 1, srv.RunCount())
}

func TestCancelStopsRun(t *testing.T) {
	srv := New(WithSymbols("aapl", "msft", "goog"))
	t.Cleanup(srv.Close)
	client := api.NewClient(srv.URL())
	ctx := context.Background()

	run, err := client.StartRefresh(ctx, 0.5, nil)
	require.NoError(t, err)
	srv.Advance(1)

	res, err := client.CancelRefresh(ctx, run.ID)
	require.NoError(t, err)
	assert.True(t, res.Cancelled)
	assert.Contains(t, res.Message, "2 tickers left")

	got, err := client.RunStatus(ctx, run.ID)
	require.NoError(t, err)
	assert.True(t, got.Complete())
	assert.Equal(t, 1, got.Processed)
	assert.True(t, got.Cancelled)
	assert.Equal(t, 0.5, got.WaitSec)

	// A second cancel is a no-op on an already finished run.
	res, err = client.CancelRefresh(ctx, run.ID)
	require.NoError(t, err)
	assert.False(t, res.Cancelled)
}

func TestStartHonorsLimit(t *testing.T) {
	srv := New(WithSymbols("aapl", "msft", "goog"), WithAutoAdvance(10))
	t.Cleanup(srv.Close)
	client := api.NewClient(srv.URL())
	ctx := context.Background()

	run, err := client.StartRefresh(ctx, 0, intPtr(2))
	require.NoError(t, err)
	require.NotNil(t, run.Limit)
	assert.Equal(t, 2, *run.Limit)

	run, err = client.RunStatus(ctx, run.ID)
	require.NoError(t, err)
	assert.True(t, run.Complete())
	assert.Equal(t, 2, run.Processed)
}

func TestUnknownJobAndEmptyAggregate(t *testing.T) {
	srv := New(WithSymbols("aapl"))
	t.Cleanup(srv.Close)
	client := api.NewClient(srv.URL())
	ctx := context.Background()

	_, err := client.RunStatus(ctx, "nope")
	assert.True(t, api.IsNotFound(err))

	agg, err := client.AggregateStatus(ctx)
	require.NoError(t, err)
	assert.Nil(t, agg)
}

func TestSymbols(t *testing.T) {
	srv := New(WithSymbols("aapl", "msft"))
	t.Cleanup(srv.Close)
	client := api.NewClient(srv.URL())

	sc, err := client.Symbols(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"aapl", "msft"}, sc.Symbols)
	assert.Equal(t, 2, sc.Total)
}
