package render

import (
	"encoding/json"
	"io"

	"github.com/screenerlab/swl/pkg/swl/types"
)

// jsonModel is the output shape for JSONRenderer.
type jsonModel struct {
	Name    string    `json:"name"`
	Columns []string  `json:"columns"`
	Rows    []jsonRow `json:"rows"`
}

type jsonRow struct {
	Sym     string         `json:"sym"`
	Name    string         `json:"name,omitempty"`
	Status  string         `json:"status"`
	Updated string         `json:"updated,omitempty"`
	Errors  []string       `json:"errors,omitempty"`
	Fields  map[string]any `json:"fields,omitempty"`
}

type JSONRenderer struct{}

func NewJSONRenderer() *JSONRenderer { return &JSONRenderer{} }

func (r *JSONRenderer) Render(w io.Writer, lists []types.Watchlist, opts RenderOptions) error {
	out := make([]jsonModel, 0, len(lists))
	for _, l := range lists {
		cols := l.Columns
		if len(opts.Columns) > 0 {
			cols = opts.Columns
		}
		rows := make([]jsonRow, 0, len(l.Rows))
		for _, row := range l.Rows {
			status := row.Status
			if status == "" {
				status = types.StatusNotAttempted
			}
			rows = append(rows, jsonRow{
				Sym:     row.Sym,
				Name:    row.Name,
				Status:  string(status),
				Updated: row.LastUpdated,
				Errors:  row.Errors,
				Fields:  row.Fields,
			})
		}
		out = append(out, jsonModel{Name: l.Name, Columns: cols, Rows: rows})
	}
	enc := json.NewEncoder(w)
	if opts.PrettyJSON {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(out)
}
