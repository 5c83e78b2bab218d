package columns

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/screenerlab/swl/pkg/swl/enrich"
	"github.com/screenerlab/swl/pkg/swl/types"
)

// Services provides access to external services for resolvers.
type Services struct {
	Profiles enrich.ProfileService
}

// Resolver converts a row into a string value for a given column.
type Resolver func(ctx context.Context, row types.Row, s Services) (string, error)

// Registry maps column keys to resolvers.
var Registry = map[string]Resolver{}

func init() {
	// sym
	Registry["sym"] = func(ctx context.Context, row types.Row, s Services) (string, error) {
		return row.Sym, nil
	}
	// name: prefer the watchlist name; fallback to the cached profile
	Registry["name"] = func(ctx context.Context, row types.Row, s Services) (string, error) {
		if row.Name != "" {
			return row.Name, nil
		}
		p, err := s.Profiles.Get(ctx, row.Sym, enrich.NeedProfile)
		if err != nil {
			return "", nil
		}
		return p.Name, nil
	}
	// status: refresh outcome for the last job that touched this row
	Registry["status"] = func(ctx context.Context, row types.Row, s Services) (string, error) {
		if row.Status == "" {
			return string(types.StatusNotAttempted), nil
		}
		return string(row.Status), nil
	}
	// updated: minute-precision stamp of the last successful refresh
	Registry["updated"] = func(ctx context.Context, row types.Row, s Services) (string, error) {
		return row.LastUpdated, nil
	}
	// errors
	Registry["errors"] = func(ctx context.Context, row types.Row, s Services) (string, error) {
		return strings.Join(row.Errors, "; "), nil
	}
	// price
	Registry["price"] = func(ctx context.Context, row types.Row, s Services) (string, error) {
		p, err := s.Profiles.Get(ctx, row.Sym, enrich.NeedPrice)
		if err != nil || p.Price == nil {
			return "", nil
		}
		return formatFloatComma(*p.Price, 2), nil
	}
	// chg%
	Registry["chg%"] = func(ctx context.Context, row types.Row, s Services) (string, error) {
		p, err := s.Profiles.Get(ctx, row.Sym, enrich.NeedChgPct)
		if err != nil || p.ChgPct == nil {
			return "", nil
		}
		return fmt.Sprintf("%+.2f%%", *p.ChgPct), nil
	}
	// industry
	Registry["industry"] = func(ctx context.Context, row types.Row, s Services) (string, error) {
		p, _ := s.Profiles.Get(ctx, row.Sym, enrich.NeedProfile)
		return p.Industry, nil
	}
	// exchange
	Registry["exchange"] = func(ctx context.Context, row types.Row, s Services) (string, error) {
		p, _ := s.Profiles.Get(ctx, row.Sym, enrich.NeedProfile)
		return p.Exchange, nil
	}
	// country
	Registry["country"] = func(ctx context.Context, row types.Row, s Services) (string, error) {
		p, _ := s.Profiles.Get(ctx, row.Sym, enrich.NeedProfile)
		return p.Country, nil
	}
	// currency
	Registry["currency"] = func(ctx context.Context, row types.Row, s Services) (string, error) {
		p, _ := s.Profiles.Get(ctx, row.Sym, enrich.NeedProfile)
		return p.Currency, nil
	}
	// mktcap (millions, comma separators)
	Registry["mktcap"] = func(ctx context.Context, row types.Row, s Services) (string, error) {
		p, _ := s.Profiles.Get(ctx, row.Sym, enrich.NeedProfile)
		if p.MktCap == nil {
			return "", nil
		}
		return formatFloatComma(*p.MktCap, 0), nil
	}
	// website (full URL)
	Registry["website"] = func(ctx context.Context, row types.Row, s Services) (string, error) {
		p, _ := s.Profiles.Get(ctx, row.Sym, enrich.NeedProfile)
		return p.WebURL, nil
	}
}

// Compute determines the final column order. An explicit list (CLI flag or
// YAML columns key) is honored as given, minus duplicates. Otherwise columns
// are discovered from the rows: sym leads, the standard display chain fills
// in after it, and leftover raw fields follow in sorted order.
func Compute(explicit []string, rows []types.Row) []string {
	if len(explicit) > 0 {
		seen := map[string]bool{}
		out := make([]string, 0, len(explicit))
		for _, col := range explicit {
			if !seen[col] {
				seen[col] = true
				out = append(out, col)
			}
		}
		return out
	}

	found := map[string]bool{}
	for _, row := range rows {
		for k := range row.Fields {
			found[k] = true
		}
		if row.Sym != "" {
			found["sym"] = true
		}
		if row.Name != "" {
			found["name"] = true
		}
	}

	var keys []string
	if found["sym"] {
		delete(found, "sym")
		keys = append(keys, "sym")
	}
	rest := make([]string, 0, len(found))
	for k := range found {
		rest = append(rest, k)
	}
	slices.Sort(rest)
	keys = append(keys, rest...)

	if len(keys) == 0 || keys[0] != "sym" {
		return keys
	}
	// Thread the standard chain in after sym, jumping the anchor to any
	// chain column the rows already carry.
	at := 0
	for _, col := range []string{"name", "price", "chg%", "status", "updated"} {
		if i := slices.Index(keys, col); i >= 0 {
			at = i
			continue
		}
		keys = slices.Insert(keys, at+1, col)
		at++
	}
	return keys
}

// NeedForColumns computes a NeedMask for the given columns.
func NeedForColumns(cols []string) enrich.NeedMask {
	var mask enrich.NeedMask
	for _, c := range cols {
		switch c {
		case "price":
			mask |= enrich.NeedPrice
		case "chg%":
			mask |= enrich.NeedChgPct
		// Profile-backed columns
		case "industry", "exchange", "country", "currency", "mktcap", "website":
			mask |= enrich.NeedProfile
		}
	}
	return mask
}

// RenderValue calls the resolver for the given column.
func RenderValue(ctx context.Context, col string, row types.Row, s Services) (string, error) {
	if r, ok := Registry[col]; ok {
		return r(ctx, row, s)
	}
	// fallback to raw field string
	if v, ok := row.Fields[col]; ok && v != nil {
		return fmt.Sprint(v), nil
	}
	return "", nil
}

// formatFloatComma formats v with the given number of decimals, inserting
// comma separators into the integer part.
func formatFloatComma(v float64, decimals int) string {
	s := strconv.FormatFloat(v, 'f', decimals, 64)
	intEnd := strings.IndexByte(s, '.')
	if intEnd == -1 {
		intEnd = len(s)
	}
	start := 0
	if s[0] == '-' {
		start = 1
	}
	var b strings.Builder
	b.Grow(len(s) + (intEnd-start)/3)
	b.WriteString(s[:start])
	for i := start; i < intEnd; i++ {
		if i > start && (intEnd-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteByte(s[i])
	}
	b.WriteString(s[intEnd:])
	return b.String()
}
