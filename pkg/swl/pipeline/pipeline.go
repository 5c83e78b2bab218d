// Package pipeline wires sources, status merging, enrichment and rendering
// into the execute path shared by the CLI commands.
package pipeline

import (
	"context"
	"io"

	log "github.com/sirupsen/logrus"

	"github.com/screenerlab/swl/pkg/swl/aggregate"
	"github.com/screenerlab/swl/pkg/swl/api"
	"github.com/screenerlab/swl/pkg/swl/columns"
	"github.com/screenerlab/swl/pkg/swl/enrich"
	"github.com/screenerlab/swl/pkg/swl/filter"
	"github.com/screenerlab/swl/pkg/swl/render"
	"github.com/screenerlab/swl/pkg/swl/source"
	"github.com/screenerlab/swl/pkg/swl/types"
)

// StatusClient fetches the persisted refresh status for all tickers.
type StatusClient interface {
	AggregateStatus(ctx context.Context) (*api.AggregateStatus, error)
}

type Runner struct {
	Source   source.Source
	Status   StatusClient
	Profiles enrich.ProfileService
	Renderer render.Renderer
	Writer   io.Writer
}

type ExecuteOptions struct {
	Columns      []string
	ListFilter   filter.Filter
	RowFilter    filter.Filter
	Statuses     []types.RefreshStatus
	Color        bool
	PrettyJSON   bool
	MaxColWidth  int
	SkipStatus   bool
	WarmParallel int
}

func (r *Runner) Execute(ctx context.Context, spec any, opts ExecuteOptions) error {
	lists, err := r.Source.Load(ctx, spec)
	if err != nil {
		return err
	}
	lists = filter.Lists(lists, opts.ListFilter)

	// Overlay the persisted per-ticker refresh status. A missing or failing
	// status endpoint degrades to the source statuses rather than erroring.
	if !opts.SkipStatus && r.Status != nil {
		agg, err := r.Status.AggregateStatus(ctx)
		if err != nil {
			log.WithError(err).Debugln("aggregate status unavailable")
		} else {
			for i := range lists {
				lists[i].Rows = aggregate.MergeAggregate(lists[i].Rows, agg)
			}
		}
	}

	for i := range lists {
		lists[i].Rows = filter.Rows(lists[i].Rows, opts.RowFilter)
		lists[i].Rows = filter.ByStatus(lists[i].Rows, opts.Statuses...)
	}

	// Compute columns per list, honoring explicit and overrides
	for i, l := range lists {
		if len(opts.Columns) > 0 {
			lists[i].Columns = columns.Compute(opts.Columns, l.Rows)
		} else {
			lists[i].Columns = columns.Compute(l.Columns, l.Rows)
		}
	}

	if r.Profiles != nil {
		warm(ctx, r.Profiles, lists, opts.WarmParallel)
	}

	return r.Renderer.Render(r.Writer, lists, render.RenderOptions{
		Columns:     opts.Columns,
		Color:       opts.Color,
		PrettyJSON:  opts.PrettyJSON,
		MaxColWidth: opts.MaxColWidth,
	})
}

// warm prefetches the enrichment data the computed columns will need, once
// per distinct symbol across all lists.
func warm(ctx context.Context, svc enrich.ProfileService, lists []types.Watchlist, parallel int) {
	var need enrich.NeedMask
	seen := map[string]struct{}{}
	syms := make([]string, 0)
	for _, l := range lists {
		need |= columns.NeedForColumns(l.Columns)
		for _, row := range l.Rows {
			if row.Sym == "" {
				continue
			}
			if _, ok := seen[row.Sym]; ok {
				continue
			}
			seen[row.Sym] = struct{}{}
			syms = append(syms, row.Sym)
		}
	}
	if need == enrich.NeedNone {
		return
	}
	enrich.Warm(ctx, svc, syms, need, parallel)
}
