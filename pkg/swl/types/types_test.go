package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFlattenRows(t *testing.T) {
	lists := []Watchlist{
		{Name: "tech", Rows: []Row{
			{Sym: "aapl", Name: "Apple"},
			{Sym: " msft "},
			{Sym: ""},
		}},
		{Name: "faves", Rows: []Row{
			{Sym: "AAPL", Name: "duplicate, dropped"},
			{Sym: "goog"},
		}},
	}

	rows := FlattenRows(lists)

	syms := make([]string, 0, len(rows))
	for _, r := range rows {
		syms = append(syms, r.Sym)
	}
	assert.Equal(t, []string{"AAPL", "MSFT", "GOOG"}, syms)
	assert.Equal(t, "Apple", rows[0].Name)
}

func TestFormatMinute(t *testing.T) {
	assert.Empty(t, FormatMinute(time.Time{}))

	ts := time.Date(2024, 5, 1, 9, 30, 45, 0, time.Local)
	assert.Equal(t, "2024-05-01 09:30", FormatMinute(ts))
}

func TestUpperSym(t *testing.T) {
	assert.Equal(t, "BRK.B", UpperSym("  brk.b "))
	assert.Empty(t, UpperSym("   "))
}
