package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/screenerlab/swl/pkg/swl/types"
)

// symsRenderer prints all symbols in a single comma-separated line,
// deduplicated across lists. Useful for piping into other tools.
type symsRenderer struct{}

func NewSymsRenderer() Renderer {
	return symsRenderer{}
}

func (symsRenderer) Render(w io.Writer, lists []types.Watchlist, _ RenderOptions) error {
	seen := map[string]struct{}{}
	symbols := make([]string, 0)
	for _, list := range lists {
		for _, row := range list.Rows {
			sym := strings.TrimSpace(row.Sym)
			if sym == "" {
				continue
			}
			if _, ok := seen[sym]; ok {
				continue
			}
			seen[sym] = struct{}{}
			symbols = append(symbols, sym)
		}
	}
	_, err := fmt.Fprintln(w, strings.Join(symbols, ","))
	return err
}
