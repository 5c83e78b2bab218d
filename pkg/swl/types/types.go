package types

import (
	"strings"
	"time"
)

// Watchlist represents a named list with optional explicit column order.
type Watchlist struct {
	Name    string
	Columns []string
	Rows    []Row
}

// Row represents a symbol entry plus its refresh status and arbitrary fields.
// Fields may be used to store precomputed values for rendering.
type Row struct {
	Sym         string
	Name        string
	Status      RefreshStatus
	LastUpdated string // minute precision, empty when never processed
	Errors      []string
	Fields      map[string]any
}

// RefreshStatus reports whether the backend profile-cache job has processed
// a ticker.
type RefreshStatus string

const (
	StatusNotAttempted RefreshStatus = "Not Attempted"
	StatusUpdated      RefreshStatus = "Updated"
	StatusFailed       RefreshStatus = "Failed"
)

// Counters are the refresh-progress numbers shown next to the table.
type Counters struct {
	Processed int
	Remaining int
	Total     int
}

// ProfileData is the per-symbol display data served by the screener backend:
// the cached company profile plus a real-time quote.
type ProfileData struct {
	Name     string
	Exchange string
	Industry string
	Country  string
	Currency string
	WebURL   string
	MktCap   *float64 // market capitalization, millions
	Price    *float64 // current price
	ChgPct   *float64 // change percent since previous close
}

// MinuteStamp is the display layout for LastUpdated values.
const MinuteStamp = "2006-01-02 15:04"

// FormatMinute renders a timestamp at minute precision in local time, the
// form rows store in LastUpdated.
func FormatMinute(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format(MinuteStamp)
}

// UpperSym normalizes a ticker symbol for keying and comparison.
func UpperSym(sym string) string {
	return strings.ToUpper(strings.TrimSpace(sym))
}

// FlattenRows combines rows of several watchlists into one ordered set,
// dropping duplicate symbols. First occurrence wins; symbols are
// uppercase-normalized.
func FlattenRows(lists []Watchlist) []Row {
	seen := map[string]struct{}{}
	var out []Row
	for _, l := range lists {
		for _, r := range l.Rows {
			key := UpperSym(r.Sym)
			if key == "" {
				continue
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			r.Sym = key
			out = append(out, r)
		}
	}
	return out
}
