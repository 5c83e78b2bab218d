package source

import (
	"context"

	"github.com/screenerlab/swl/pkg/swl/types"
)

// Source loads watchlists from a specification (e.g., filepath, DSN, or the
// backend symbol cache).
type Source interface {
	Load(ctx context.Context, spec any) ([]types.Watchlist, error)
}
