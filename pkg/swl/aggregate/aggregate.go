// Package aggregate holds the pure bookkeeping behind the refresh tracker:
// merging per-ticker job results into watchlist rows and deriving the
// processed/remaining/total counters. Nothing here does I/O, so every rule
// about how a run maps onto the table lives in one testable place.
package aggregate

import (
	"github.com/screenerlab/swl/pkg/swl/api"
	"github.com/screenerlab/swl/pkg/swl/types"
)

// MergeRun applies one run's per-ticker results to the rows and returns the
// updated copy. Rows whose ticker does not appear in the run are reset to
// NotAttempted, so the table always reflects the last merged run rather
// than a union across merges. Matching is case-insensitive.
func MergeRun(rows []types.Row, run *api.JobRun) []types.Row {
	if run == nil {
		return mergeResults(rows, nil)
	}
	return mergeResults(rows, run.Tickers)
}

// MergeAggregate applies the all-time per-ticker union to the rows, with
// the same reset rule as MergeRun.
func MergeAggregate(rows []types.Row, agg *api.AggregateStatus) []types.Row {
	if agg == nil {
		return mergeResults(rows, nil)
	}
	return mergeResults(rows, agg.Tickers)
}

func mergeResults(rows []types.Row, results []api.TickerResult) []types.Row {
	byTicker := make(map[string]api.TickerResult, len(results))
	for _, res := range results {
		byTicker[types.UpperSym(res.Ticker)] = res
	}
	out := make([]types.Row, len(rows))
	for i, row := range rows {
		res, found := byTicker[types.UpperSym(row.Sym)]
		switch {
		case !found:
			row.Status = types.StatusNotAttempted
			row.LastUpdated = ""
			row.Errors = nil
		case res.OK:
			row.Status = types.StatusUpdated
			row.LastUpdated = types.FormatMinute(res.ProcessedAt.Time)
			row.Errors = nil
		default:
			row.Status = types.StatusFailed
			row.LastUpdated = ""
			row.Errors = append([]string(nil), res.Errors...)
		}
		out[i] = row
	}
	return out
}

// UniqueProcessed counts the distinct tickers with at least one recorded
// result across all runs.
func UniqueProcessed(agg *api.AggregateStatus) int {
	if agg == nil {
		return 0
	}
	seen := make(map[string]struct{}, len(agg.Tickers))
	for _, res := range agg.Tickers {
		seen[types.UpperSym(res.Ticker)] = struct{}{}
	}
	return len(seen)
}

// Remaining computes how many tickers a run still has to process. A limit
// caps the effective target at min(limit, total); the result is never
// negative.
func Remaining(total int, limit *int, processed int) int {
	target := total
	if limit != nil && *limit < total {
		target = *limit
	}
	if target < processed {
		return 0
	}
	return target - processed
}

// DeriveCounters computes the counters shown next to the table from one
// (run, aggregate) pair. The aggregate, when present, wins for the
// processed count so that resumed sweeps report all-time progress; without
// it the run's own counter is used. fallbackTotal covers responses that
// omit total_cached.
func DeriveCounters(run *api.JobRun, agg *api.AggregateStatus, fallbackTotal int) types.Counters {
	total := fallbackTotal
	var limit *int
	processed := 0

	if run != nil {
		if run.TotalCached > 0 {
			total = run.TotalCached
		}
		limit = run.Limit
		processed = run.Processed
	}
	if agg != nil {
		if agg.TotalCached > 0 {
			total = agg.TotalCached
		}
		processed = UniqueProcessed(agg)
	}
	return types.Counters{
		Processed: processed,
		Remaining: Remaining(total, limit, processed),
		Total:     total,
	}
}

// Union folds a sequence of runs into the all-time per-ticker view, keyed
// by ticker and keeping the latest result for each. Returns nil when the
// runs carry nothing, mirroring the backend answering 404 before any job
// has run.
func Union(runs ...*api.JobRun) *api.AggregateStatus {
	latest := make(map[string]api.TickerResult)
	var order []string
	totalCached := 0
	for _, run := range runs {
		if run == nil {
			continue
		}
		if run.TotalCached > 0 {
			totalCached = run.TotalCached
		}
		for _, res := range run.Tickers {
			key := types.UpperSym(res.Ticker)
			prev, seen := latest[key]
			if !seen {
				order = append(order, key)
				latest[key] = res
				continue
			}
			if res.ProcessedAt.After(prev.ProcessedAt.Time) {
				latest[key] = res
			}
		}
	}
	if len(order) == 0 && totalCached == 0 {
		return nil
	}
	agg := &api.AggregateStatus{
		TotalCached: totalCached,
		Tickers:     make([]api.TickerResult, 0, len(order)),
	}
	for _, key := range order {
		agg.Tickers = append(agg.Tickers, latest[key])
	}
	return agg
}
