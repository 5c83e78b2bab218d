package render

import (
	"fmt"
	"io"

	"github.com/screenerlab/swl/pkg/swl/types"
)

// Renderer renders watchlists to an output writer.
type Renderer interface {
	Render(w io.Writer, lists []types.Watchlist, opts RenderOptions) error
}

type RenderOptions struct {
	Columns     []string
	Color       bool
	PrettyJSON  bool
	MaxColWidth int
}

// StatusLine formats the refresh state and counters for a single footer
// line, e.g. "polling: 12 processed, 38 remaining of 50".
func StatusLine(state string, c types.Counters) string {
	return fmt.Sprintf("%s: %d processed, %d remaining of %d",
		state, c.Processed, c.Remaining, c.Total)
}
