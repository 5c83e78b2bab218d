package render

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/screenerlab/swl/pkg/swl/columns"
	"github.com/screenerlab/swl/pkg/swl/types"
)

type TableRenderer struct{ Services columns.Services }

func NewTableRenderer(svcs columns.Services) *TableRenderer {
	return &TableRenderer{Services: svcs}
}

func (r *TableRenderer) Render(w io.Writer, lists []types.Watchlist, opts RenderOptions) error {
	ctx := context.Background()
	multi := len(lists) > 1
	for li, list := range lists {
		cols := list.Columns
		if len(opts.Columns) > 0 {
			cols = opts.Columns
		}
		cols = columns.Compute(cols, list.Rows)

		// Print watchlist name as a standalone line spanning full width
		if multi && strings.TrimSpace(list.Name) != "" {
			fmt.Fprintln(w, text.Bold.Sprint(strings.ToUpper(list.Name)))
		}

		tw := table.NewWriter()
		tw.SetOutputMirror(w)
		tw.SetStyle(table.StyleColoredDark)
		tw.Style().Options.DrawBorder = false
		tw.Style().Options.SeparateRows = false
		tw.Style().Options.SeparateColumns = false

		// Column header row
		hdr := make(table.Row, len(cols))
		for i, c := range cols {
			hdr[i] = strings.ToUpper(c)
		}
		tw.AppendHeader(hdr)

		// Column configs: wrap text to MaxColWidth (default 40), no truncation
		maxWidth := opts.MaxColWidth
		if maxWidth <= 0 {
			maxWidth = 40
		}
		cfgs := make([]table.ColumnConfig, 0, len(cols))
		for i, c := range cols {
			cfg := table.ColumnConfig{Number: i + 1, WidthMax: maxWidth}
			switch c {
			case "price", "chg%", "mktcap":
				cfg.Align = text.AlignRight
				cfg.AlignHeader = text.AlignRight
			}
			cfgs = append(cfgs, cfg)
		}
		if len(cfgs) > 0 {
			tw.SetColumnConfigs(cfgs)
		}

		// Rows
		for _, item := range list.Rows {
			row := make(table.Row, len(cols))
			for i, c := range cols {
				v, err := columns.RenderValue(ctx, c, item, r.Services)
				if err != nil {
					v = ""
				}
				if opts.Color {
					v = colorize(c, v, item)
				}
				row[i] = v
			}
			tw.AppendRow(row)
		}

		tw.Render()
		if li < len(lists)-1 {
			// blank line between tables
			fmt.Fprintln(w)
		}
	}
	return nil
}

// colorize applies status and sign coloring to a rendered cell.
func colorize(col, v string, row types.Row) string {
	if v == "" {
		return v
	}
	switch col {
	case "status":
		switch row.Status {
		case types.StatusUpdated:
			return text.Colors{text.FgGreen}.Sprint(v)
		case types.StatusFailed:
			return text.Colors{text.FgRed}.Sprint(v)
		default:
			return text.Colors{text.Faint}.Sprint(v)
		}
	case "errors":
		return text.Colors{text.FgRed}.Sprint(v)
	case "chg%":
		if strings.HasPrefix(v, "-") {
			return text.Colors{text.FgRed}.Sprint(v)
		}
		if strings.TrimLeft(v, "+0.%") != "" {
			return text.Colors{text.FgGreen}.Sprint(v)
		}
	}
	return v
}
