package source

import (
	"context"

	"github.com/pkg/errors"

	"github.com/screenerlab/swl/pkg/swl/api"
	"github.com/screenerlab/swl/pkg/swl/types"
)

// SymbolLister is the slice of the API client the source needs.
type SymbolLister interface {
	Symbols(ctx context.Context) (*api.SymbolCache, error)
}

// APISource builds a single watchlist from the backend symbol cache. This
// is the primary source: the refresh tracker operates on exactly the
// tickers the backend knows about.
type APISource struct {
	Client SymbolLister
}

// Load expects spec to be the list name, or nil for the default.
func (s APISource) Load(ctx context.Context, spec any) ([]types.Watchlist, error) {
	if s.Client == nil {
		return nil, errors.New("api source requires a client")
	}
	name := "symbols"
	if n, ok := spec.(string); ok && n != "" {
		name = n
	}

	sc, err := s.Client.Symbols(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load symbol cache")
	}

	rows := make([]types.Row, 0, len(sc.Symbols))
	for _, sym := range sc.Symbols {
		sym = types.UpperSym(sym)
		rows = append(rows, types.Row{
			Sym:    sym,
			Status: types.StatusNotAttempted,
			Fields: map[string]any{"sym": sym},
		})
	}
	return []types.Watchlist{{Name: name, Rows: rows}}, nil
}
