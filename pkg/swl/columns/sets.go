package columns

import (
	"fmt"
	"sort"
	"strings"
)

// Sets defines named column groups that expand into lists of columns.
var Sets = map[string][]string{
	// Refresh-tracking columns
	"status": {"status", "updated", "errors"},
	// Price-related columns
	"price": {"price", "chg%"},
	// Columns backed by the cached company profile
	"profile": {
		"industry",
		"exchange",
		"country",
		"currency",
		"mktcap",
		"website",
	},
}

// ExpandSets resolves set names into a flat column list. Set order and
// in-set column order are preserved; a column named twice keeps its first
// position. Blank names are skipped so "status,,price" still parses.
func ExpandSets(names []string) ([]string, error) {
	var out []string
	seen := map[string]bool{}
	for _, name := range names {
		if name = strings.TrimSpace(name); name == "" {
			continue
		}
		cols, ok := Sets[name]
		if !ok {
			return nil, &UnknownSetError{Name: name, Available: setNames()}
		}
		for _, col := range cols {
			if !seen[col] {
				seen[col] = true
				out = append(out, col)
			}
		}
	}
	return out, nil
}

// UnknownSetError reports a set name with no entry in Sets.
type UnknownSetError struct {
	Name      string
	Available []string
}

func (e *UnknownSetError) Error() string {
	return fmt.Sprintf("unknown column set: %s; available: %s", e.Name, strings.Join(e.Available, ", "))
}

func setNames() []string {
	names := make([]string, 0, len(Sets))
	for name := range Sets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
