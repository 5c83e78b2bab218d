package render

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/screenerlab/swl/pkg/swl/columns"
	"github.com/screenerlab/swl/pkg/swl/enrich"
	"github.com/screenerlab/swl/pkg/swl/types"
)

type stubProfiles struct{ data types.ProfileData }

func (s stubProfiles) Get(context.Context, string, enrich.NeedMask) (types.ProfileData, error) {
	return s.data, nil
}

func floatPtr(v float64) *float64 { return &v }

func testLists() []types.Watchlist {
	return []types.Watchlist{
		{
			Name:    "core",
			Columns: []string{"sym", "name", "status", "updated"},
			Rows: []types.Row{
				{Sym: "AAPL", Name: "Apple", Status: types.StatusUpdated, LastUpdated: "2024-05-01 09:30"},
				{Sym: "MSFT", Name: "Microsoft", Status: types.StatusFailed, Errors: []string{"rate limited"}},
			},
		},
		{
			Name:    "intl",
			Columns: []string{"sym", "status"},
			Rows: []types.Row{
				{Sym: "SAP", Name: "SAP"},
			},
		},
	}
}

func TestTableRenderer(t *testing.T) {
	r := NewTableRenderer(columns.Services{Profiles: stubProfiles{}})
	var buf bytes.Buffer

	err := r.Render(&buf, testLists(), RenderOptions{})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "CORE")
	assert.Contains(t, out, "INTL")
	assert.Contains(t, out, "AAPL")
	assert.Contains(t, out, "Updated")
	assert.Contains(t, out, "2024-05-01 09:30")
	assert.Contains(t, out, "Failed")
	assert.Contains(t, out, "Not Attempted")
}

func TestTableRendererColor(t *testing.T) {
	r := NewTableRenderer(columns.Services{Profiles: stubProfiles{data: types.ProfileData{
		Price:  floatPtr(100),
		ChgPct: floatPtr(-1.5),
	}}})
	var buf bytes.Buffer

	lists := []types.Watchlist{{
		Name:    "core",
		Columns: []string{"sym", "price", "chg%", "status"},
		Rows:    []types.Row{{Sym: "AAPL", Status: types.StatusUpdated}},
	}}
	err := r.Render(&buf, lists, RenderOptions{Color: true})
	require.NoError(t, err)

	out := buf.String()
	// Red for the negative change, green for the updated status.
	assert.Contains(t, out, "\x1b[31m-1.50%\x1b[0m")
	assert.Contains(t, out, "\x1b[32mUpdated\x1b[0m")
}

func TestJSONRenderer(t *testing.T) {
	r := NewJSONRenderer()
	var buf bytes.Buffer

	err := r.Render(&buf, testLists(), RenderOptions{PrettyJSON: true})
	require.NoError(t, err)

	var got []struct {
		Name    string   `json:"name"`
		Columns []string `json:"columns"`
		Rows    []struct {
			Sym     string   `json:"sym"`
			Status  string   `json:"status"`
			Updated string   `json:"updated"`
			Errors  []string `json:"errors"`
		} `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "core", got[0].Name)
	assert.Equal(t, []string{"sym", "name", "status", "updated"}, got[0].Columns)
	require.Len(t, got[0].Rows, 2)
	assert.Equal(t, "Updated", got[0].Rows[0].Status)
	assert.Equal(t, "2024-05-01 09:30", got[0].Rows[0].Updated)
	assert.Equal(t, []string{"rate limited"}, got[0].Rows[1].Errors)
	// Untouched rows report Not Attempted rather than an empty status.
	assert.Equal(t, "Not Attempted", got[1].Rows[0].Status)
}

func TestSymsRenderer(t *testing.T) {
	r := NewSymsRenderer()
	var buf bytes.Buffer

	lists := testLists()
	lists[1].Rows = append(lists[1].Rows, types.Row{Sym: "AAPL"})
	err := r.Render(&buf, lists, RenderOptions{})
	require.NoError(t, err)

	assert.Equal(t, "AAPL,MSFT,SAP\n", buf.String())
}

func TestStatusLine(t *testing.T) {
	got := StatusLine("polling", types.Counters{Processed: 12, Remaining: 38, Total: 50})
	assert.Equal(t, "polling: 12 processed, 38 remaining of 50", got)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Len()
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestProgressLifecycle(t *testing.T) {
	var buf syncBuffer
	p := NewProgress(&buf)
	p.Start()
	p.Update(types.Counters{Processed: 1, Remaining: 2, Total: 3})

	require.Eventually(t, func() bool { return buf.Len() > 0 }, 2*time.Second, 10*time.Millisecond)

	p.Update(types.Counters{Processed: 3, Remaining: 0, Total: 3})
	p.Finish("refresh complete")

	assert.True(t, strings.Contains(buf.String(), "refresh"))
}
