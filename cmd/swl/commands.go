package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/screenerlab/swl/pkg/swl/aggregate"
	"github.com/screenerlab/swl/pkg/swl/api"
	"github.com/screenerlab/swl/pkg/swl/columns"
	"github.com/screenerlab/swl/pkg/swl/filter"
	"github.com/screenerlab/swl/pkg/swl/pipeline"
	"github.com/screenerlab/swl/pkg/swl/render"
	"github.com/screenerlab/swl/pkg/swl/source"
	"github.com/screenerlab/swl/pkg/swl/track"
	"github.com/screenerlab/swl/pkg/swl/types"
)

func newListCmd() *cobra.Command {
	var (
		cols        []string
		sets        []string
		listExpr    string
		rowExpr     string
		statusNames []string
		asJSON      bool
		pretty      bool
		asSyms      bool
		noColor     bool
		noStatus    bool
		dbDSN       string
	)
	cmd := &cobra.Command{
		Use:   "list [file.yaml|dir]",
		Short: "Render watchlists with their refresh status",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				src  source.Source = source.YAMLSource{}
				spec any
			)
			switch {
			case dbDSN != "":
				src = source.DBSource{}
				spec = dbDSN
			case len(args) == 1:
				spec = args[0]
			default:
				return errors.New("need a watchlist file or --db")
			}

			listFilter, err := filter.Parse(listExpr)
			if err != nil {
				return errors.Wrap(err, "bad --filter")
			}
			rowFilter, err := filter.Parse(rowExpr)
			if err != nil {
				return errors.Wrap(err, "bad --rows")
			}
			statuses, err := parseStatuses(statusNames)
			if err != nil {
				return err
			}
			allCols, err := columns.ExpandSets(sets)
			if err != nil {
				return err
			}
			allCols = append(allCols, cols...)

			client := newClient()
			profiles := newProfiles(client)
			runner := &pipeline.Runner{
				Source:   src,
				Profiles: profiles,
				Renderer: chooseRenderer(asJSON, asSyms, columns.Services{Profiles: profiles}),
				Writer:   cmd.OutOrStdout(),
			}
			if !noStatus {
				runner.Status = client
			}
			return runner.Execute(cmd.Context(), spec, pipeline.ExecuteOptions{
				Columns:     allCols,
				ListFilter:  listFilter,
				RowFilter:   rowFilter,
				Statuses:    statuses,
				Color:       !noColor,
				PrettyJSON:  pretty,
				MaxColWidth: maxColWidth(),
				SkipStatus:  noStatus,
			})
		},
	}
	cmd.Flags().StringSliceVarP(&cols, "columns", "c", nil, "columns to show")
	cmd.Flags().StringSliceVarP(&sets, "sets", "s", nil, "column sets to expand (status, price, profile)")
	cmd.Flags().StringVarP(&listExpr, "filter", "f", "", "filter lists by name (names, glob or /regex/)")
	cmd.Flags().StringVar(&rowExpr, "rows", "", "filter rows by symbol")
	cmd.Flags().StringSliceVar(&statusNames, "status", nil, "only rows with these statuses (updated, failed, pending)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output JSON")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "indent JSON output")
	cmd.Flags().BoolVar(&asSyms, "syms", false, "output a comma-separated symbol line")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "disable colors")
	cmd.Flags().BoolVar(&noStatus, "no-status", false, "skip the backend status overlay")
	cmd.Flags().StringVar(&dbDSN, "db", "", "load lists from this SQLite database instead of YAML")
	return cmd
}

func newStatusCmd() *cobra.Command {
	var (
		cols        []string
		rowExpr     string
		statusNames []string
		jobID       string
		asJSON      bool
		pretty      bool
		noColor     bool
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the refresh status of every cached symbol",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rowFilter, err := filter.Parse(rowExpr)
			if err != nil {
				return errors.Wrap(err, "bad --rows")
			}
			statuses, err := parseStatuses(statusNames)
			if err != nil {
				return err
			}
			if len(cols) == 0 {
				cols = []string{"sym", "name", "status", "updated", "errors"}
			}
			if jobID != "" {
				return showJobStatus(cmd, jobID, cols, rowFilter, statuses, asJSON, pretty, noColor)
			}

			client := newClient()
			profiles := newProfiles(client)
			runner := &pipeline.Runner{
				Source:   source.APISource{Client: client},
				Status:   client,
				Profiles: profiles,
				Renderer: chooseRenderer(asJSON, false, columns.Services{Profiles: profiles}),
				Writer:   cmd.OutOrStdout(),
			}
			if err := runner.Execute(cmd.Context(), "", pipeline.ExecuteOptions{
				Columns:     cols,
				RowFilter:   rowFilter,
				Statuses:    statuses,
				Color:       !noColor,
				PrettyJSON:  pretty,
				MaxColWidth: maxColWidth(),
			}); err != nil {
				return err
			}
			if !asJSON {
				printCounters(cmd, client)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&cols, "columns", "c", nil, "columns to show")
	cmd.Flags().StringVar(&rowExpr, "rows", "", "filter rows by symbol")
	cmd.Flags().StringSliceVar(&statusNames, "status", nil, "only rows with these statuses (updated, failed, pending)")
	cmd.Flags().StringVar(&jobID, "job", "", "show one run's outcome instead of the aggregate")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output JSON")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "indent JSON output")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "disable colors")
	return cmd
}

// showJobStatus renders the per-ticker outcome of one specific run. Rows
// come from the run itself, so a limited run shows only what it touched.
func showJobStatus(cmd *cobra.Command, jobID string, cols []string, rowFilter filter.Filter, statuses []types.RefreshStatus, asJSON, pretty, noColor bool) error {
	client := newClient()
	run, err := client.RunStatus(cmd.Context(), jobID)
	if err != nil {
		return err
	}

	rows := make([]types.Row, 0, len(run.Tickers))
	for _, res := range run.Tickers {
		rows = append(rows, types.Row{Sym: res.Ticker, Fields: map[string]any{}})
	}
	rows = aggregate.MergeRun(rows, run)
	rows = filter.ByStatus(filter.Rows(rows, rowFilter), statuses...)

	profiles := newProfiles(client)
	renderer := chooseRenderer(asJSON, false, columns.Services{Profiles: profiles})
	lists := []types.Watchlist{{Name: jobID, Columns: cols, Rows: rows}}
	if err := renderer.Render(cmd.OutOrStdout(), lists, render.RenderOptions{
		Color:       !noColor,
		PrettyJSON:  pretty,
		MaxColWidth: maxColWidth(),
	}); err != nil {
		return err
	}
	if asJSON {
		return nil
	}

	state := "running"
	switch {
	case run.Cancelled:
		state = "cancelled"
	case run.Complete():
		state = "complete"
	}
	c := aggregate.DeriveCounters(run, nil, len(run.Tickers))
	fmt.Fprintf(cmd.OutOrStdout(), "%s, %s\n", render.StatusLine(jobID, c), state)
	return nil
}

func printCounters(cmd *cobra.Command, client *api.Client) {
	ctx := cmd.Context()
	agg, err := client.AggregateStatus(ctx)
	if err != nil {
		log.WithError(err).Debugln("aggregate status unavailable")
		return
	}
	total := 0
	if sc, err := client.Symbols(ctx); err == nil {
		total = sc.Total
	}
	c := aggregate.DeriveCounters(nil, agg, total)
	fmt.Fprintln(cmd.OutOrStdout(), render.StatusLine("profiles", c))
}

func newRunCmd() *cobra.Command {
	var (
		waitSec float64
		limit   int
	)
	cmd := &cobra.Command{
		Use:   "run [file.yaml|dir]",
		Short: "Start a profile refresh job and follow it until it finishes",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if waitSec < 0 {
				waitSec = viper.GetFloat64("refresh.wait_sec")
			}
			client := newClient()
			tr, err := newTracker(cmd.Context(), client, args)
			if err != nil {
				return err
			}
			defer tr.Close()
			return followRefresh(cmd, client, tr, func(ctx context.Context) error {
				return tr.RunNow(ctx, waitSec, limitPtr(limit))
			})
		},
	}
	cmd.Flags().Float64Var(&waitSec, "wait-sec", -1, "seconds the backend waits between tickers")
	cmd.Flags().IntVar(&limit, "limit", 0, "cap the number of tickers processed (0 = all)")
	return cmd
}

func newResumeCmd() *cobra.Command {
	var (
		waitSec       float64
		limit         int
		skipCompleted bool
	)
	cmd := &cobra.Command{
		Use:   "resume [file.yaml|dir]",
		Short: "Resume a partially-completed refresh and follow it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if waitSec < 0 {
				waitSec = viper.GetFloat64("refresh.wait_sec")
			}
			client := newClient()
			tr, err := newTracker(cmd.Context(), client, args)
			if err != nil {
				return err
			}
			defer tr.Close()
			return followRefresh(cmd, client, tr, func(ctx context.Context) error {
				return tr.Resume(ctx, waitSec, limitPtr(limit), skipCompleted)
			})
		},
	}
	cmd.Flags().Float64Var(&waitSec, "wait-sec", -1, "seconds the backend waits between tickers")
	cmd.Flags().IntVar(&limit, "limit", 0, "cap the number of tickers processed (0 = all)")
	cmd.Flags().BoolVar(&skipCompleted, "skip-completed", true, "skip tickers that already have a cached profile")
	return cmd
}

func newTracker(ctx context.Context, client *api.Client, args []string) (*track.Tracker, error) {
	path := ""
	if len(args) == 1 {
		path = args[0]
	}
	rows, err := loadRows(ctx, client, path)
	if err != nil {
		return nil, err
	}
	tr := track.New(client,
		track.WithInterval(viper.GetDuration("poll.interval")),
		track.WithFetchTimeout(viper.GetDuration("poll.fetch_timeout")),
	)
	tr.SetRows(rows)
	return tr, nil
}

// followRefresh starts a job, mirrors its progress to stderr and renders
// the final per-symbol outcome once the tracker settles. Ctrl-C cancels
// the job and still waits for the final state.
func followRefresh(cmd *cobra.Command, client *api.Client, tr *track.Tracker, start func(context.Context) error) error {
	ctx, stopSignals := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	ch := tr.Subscribe()
	defer tr.Unsubscribe(ch)

	if err := start(ctx); err != nil {
		return err
	}

	settled := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			cctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := tr.Cancel(cctx); err != nil && !errors.Is(err, track.ErrNoActiveJob) {
				log.WithError(err).Warnln("cancel failed")
			}
		case <-settled:
		}
	}()

	prog := render.NewProgress(cmd.ErrOrStderr())
	prog.Start()

	var last track.Event
	announced := false
	for ev := range ch {
		if !announced && ev.JobID != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "following job %s\n", ev.JobID)
			announced = true
		}
		prog.Update(ev.Counters)
		if ev.State == track.StateIdle {
			last = ev
			break
		}
	}
	close(settled)
	prog.Finish(last.Message)

	profiles := newProfiles(client)
	renderer := render.NewTableRenderer(columns.Services{Profiles: profiles})
	lists := []types.Watchlist{{
		Name:    "refresh",
		Columns: []string{"sym", "name", "status", "updated", "errors"},
		Rows:    last.Rows,
	}}
	if err := renderer.Render(cmd.OutOrStdout(), lists, render.RenderOptions{
		Color:       true,
		MaxColWidth: maxColWidth(),
	}); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), render.StatusLine(string(last.State), last.Counters))
	if last.Message != "" {
		fmt.Fprintln(cmd.OutOrStdout(), last.Message)
	}
	return nil
}

func newCancelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a running refresh job on the backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			res, err := client.CancelRefresh(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if res.Message != "" {
				fmt.Fprintln(cmd.OutOrStdout(), res.Message)
			}
			if !res.Cancelled {
				log.Warnln("backend did not cancel the job")
			}
			return nil
		},
	}
	return cmd
}

func newWatchCmd() *cobra.Command {
	var (
		every   time.Duration
		cols    []string
		sets    []string
		dbDSN   string
		noColor bool
	)
	cmd := &cobra.Command{
		Use:   "watch [file.yaml|dir]",
		Short: "Re-render watchlists with fresh status on an interval",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stopSignals := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stopSignals()

			client := newClient()
			profiles := newProfiles(client)

			var (
				src  source.Source = source.APISource{Client: client}
				spec any           = ""
			)
			switch {
			case dbDSN != "":
				src = source.DBSource{}
				spec = dbDSN
			case len(args) == 1:
				src = source.YAMLSource{}
				spec = args[0]
			}

			allCols, err := columns.ExpandSets(sets)
			if err != nil {
				return err
			}
			allCols = append(allCols, cols...)
			if len(allCols) == 0 {
				allCols = []string{"sym", "name", "status", "updated"}
			}

			runner := &pipeline.Runner{
				Source:   src,
				Status:   client,
				Profiles: profiles,
				Renderer: render.NewTableRenderer(columns.Services{Profiles: profiles}),
				Writer:   cmd.OutOrStdout(),
			}
			opts := pipeline.ExecuteOptions{
				Columns:     allCols,
				Color:       !noColor,
				MaxColWidth: maxColWidth(),
			}

			if every <= 0 {
				every = 5 * time.Second
			}
			tick := time.NewTicker(every)
			defer tick.Stop()
			for {
				fmt.Fprint(cmd.OutOrStdout(), "\x1b[2J\x1b[H")
				if err := runner.Execute(ctx, spec, opts); err != nil {
					log.WithError(err).Warnln("render failed")
				}
				printCounters(cmd, client)
				fmt.Fprintf(cmd.OutOrStdout(), "%s  every %s, ctrl-c to quit\n",
					time.Now().Format("15:04:05"), every)
				select {
				case <-ctx.Done():
					return nil
				case <-tick.C:
				}
			}
		},
	}
	cmd.Flags().DurationVar(&every, "every", 5*time.Second, "re-render interval")
	cmd.Flags().StringSliceVarP(&cols, "columns", "c", nil, "columns to show")
	cmd.Flags().StringSliceVarP(&sets, "sets", "s", nil, "column sets to expand (status, price, profile)")
	cmd.Flags().StringVar(&dbDSN, "db", "", "load lists from this SQLite database instead of YAML")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "disable colors")
	return cmd
}

func newSymbolsCmd() *cobra.Command {
	var (
		refresh bool
		saveDSN string
		asJSON  bool
		pretty  bool
	)
	cmd := &cobra.Command{
		Use:   "symbols",
		Short: "List the backend's cached symbol universe",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client := newClient()
			ctx := cmd.Context()

			var (
				sc  *api.SymbolCache
				err error
			)
			if refresh {
				sc, err = client.RefreshSymbols(ctx)
			} else {
				sc, err = client.Symbols(ctx)
			}
			if err != nil {
				return err
			}

			rows := make([]types.Row, 0, len(sc.Symbols))
			for _, sym := range sc.Symbols {
				rows = append(rows, types.Row{
					Sym:    types.UpperSym(sym),
					Status: types.StatusNotAttempted,
					Fields: map[string]any{},
				})
			}
			if saveDSN != "" {
				if err := source.SaveRows(ctx, saveDSN, "symbols", rows); err != nil {
					return err
				}
				log.WithFields(log.Fields{"count": len(rows), "db": saveDSN}).Infoln("symbols saved")
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				if pretty {
					enc.SetIndent("", "  ")
				}
				return enc.Encode(sc)
			}
			lists := []types.Watchlist{{Name: "symbols", Rows: rows}}
			if err := render.NewSymsRenderer().Render(cmd.OutOrStdout(), lists, render.RenderOptions{}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%d symbols\n", sc.Total)
			return nil
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "ask the backend to re-fetch the symbol list first")
	cmd.Flags().StringVar(&saveDSN, "save", "", "also save the symbols into this SQLite database")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output the raw symbol cache as JSON")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "indent JSON output")
	return cmd
}
