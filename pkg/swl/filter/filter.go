// Package filter selects watchlists and rows by name, symbol or refresh
// status.
package filter

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/screenerlab/swl/pkg/swl/types"
)

// Filter matches a watchlist name or a symbol.
type Filter interface {
	Match(name string) bool
}

// Parse builds a filter from an expression:
// - Comma-separated exact names: "core,intl" or "aapl,msft"
// - Glob: "tech*"
// - Regex: "/^us-/"
// - Anything else: substring match
// Every form except regex ignores case, so symbols can be typed in lower
// case against their uppercase canonical form.
func Parse(expr string) (Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Always(true), nil
	}
	if strings.HasPrefix(expr, "/") && strings.HasSuffix(expr, "/") && len(expr) > 2 {
		re, err := regexp.Compile(expr[1 : len(expr)-1])
		if err != nil {
			return nil, err
		}
		return Regex{re: re}, nil
	}
	if strings.Contains(expr, ",") {
		set := map[string]struct{}{}
		for _, p := range strings.Split(expr, ",") {
			if p = strings.TrimSpace(p); p != "" {
				set[strings.ToUpper(p)] = struct{}{}
			}
		}
		return ExactSet{set: set}, nil
	}
	if strings.ContainsAny(expr, "*?") {
		return Glob{pattern: expr}, nil
	}
	// Default: case-insensitive substring match (equivalent to *expr*).
	return SubstrCI{needle: expr}, nil
}

// Lists keeps the watchlists whose name matches f.
func Lists(lists []types.Watchlist, f Filter) []types.Watchlist {
	if f == nil {
		return lists
	}
	out := make([]types.Watchlist, 0, len(lists))
	for _, wl := range lists {
		if f.Match(wl.Name) {
			out = append(out, wl)
		}
	}
	return out
}

// Rows keeps the rows whose symbol matches f. Symbols are matched in
// upper case, the canonical form rows carry.
func Rows(rows []types.Row, f Filter) []types.Row {
	if f == nil {
		return rows
	}
	out := make([]types.Row, 0, len(rows))
	for _, row := range rows {
		if f.Match(row.Sym) {
			out = append(out, row)
		}
	}
	return out
}

// ByStatus keeps the rows whose refresh status is one of the given ones.
// Rows that were never touched by a job count as Not Attempted.
func ByStatus(rows []types.Row, statuses ...types.RefreshStatus) []types.Row {
	if len(statuses) == 0 {
		return rows
	}
	want := map[types.RefreshStatus]struct{}{}
	for _, st := range statuses {
		want[st] = struct{}{}
	}
	out := make([]types.Row, 0, len(rows))
	for _, row := range rows {
		st := row.Status
		if st == "" {
			st = types.StatusNotAttempted
		}
		if _, ok := want[st]; ok {
			out = append(out, row)
		}
	}
	return out
}

// Implementations

type Always bool

func (a Always) Match(string) bool { return bool(a) }

// ExactSet matches any of a comma-separated set of names. Matching folds
// case so symbol sets can be typed in lower case.
type ExactSet struct{ set map[string]struct{} }

func (e ExactSet) Match(name string) bool {
	_, ok := e.set[strings.ToUpper(name)]
	return ok
}

// Glob matches shell-style patterns, folding case like ExactSet.
type Glob struct{ pattern string }

func (g Glob) Match(name string) bool {
	ok, _ := filepath.Match(strings.ToUpper(g.pattern), strings.ToUpper(name))
	return ok
}

func (g Glob) String() string { return fmt.Sprintf("glob:%s", g.pattern) }

type Regex struct{ re *regexp.Regexp }

func (r Regex) Match(name string) bool { return r.re.MatchString(name) }

// SubstrCI matches if name contains needle, case-insensitively.
type SubstrCI struct{ needle string }

func (s SubstrCI) Match(name string) bool {
	if s.needle == "" {
		return true
	}
	return strings.Contains(strings.ToLower(name), strings.ToLower(s.needle))
}

func (s SubstrCI) String() string { return fmt.Sprintf("substr-ci:%s", s.needle) }
