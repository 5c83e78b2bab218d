package source

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite" // sqlite driver

	"github.com/screenerlab/swl/pkg/swl/types"
)

// DBSource loads watchlists from a sqlite database. Rows live in a single
// watchlist_rows table keyed by list name; the schema is created on first
// use so a fresh DSN works out of the box.
type DBSource struct{}

const dbSchema = `
	CREATE TABLE IF NOT EXISTS watchlist_rows (
		list     TEXT NOT NULL,
		sym      TEXT NOT NULL,
		name     TEXT NOT NULL DEFAULT '',
		position INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (list, sym)
	)`

// Load expects spec to be a sqlite DSN string (a filepath or ":memory:").
func (DBSource) Load(ctx context.Context, spec any) ([]types.Watchlist, error) {
	dsn, ok := spec.(string)
	if !ok {
		return nil, errors.New("db source expects DSN string spec")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open watchlist db")
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, dbSchema); err != nil {
		return nil, errors.Wrap(err, "failed to ensure watchlist schema")
	}

	const query = `SELECT list, sym, name FROM watchlist_rows ORDER BY list, position, sym`
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query watchlist rows")
	}
	defer rows.Close()

	byList := map[string]*types.Watchlist{}
	var order []string
	for rows.Next() {
		var list, sym, name string
		if err := rows.Scan(&list, &sym, &name); err != nil {
			return nil, errors.Wrap(err, "failed to scan watchlist row")
		}
		wl, ok := byList[list]
		if !ok {
			wl = &types.Watchlist{Name: list}
			byList[list] = wl
			order = append(order, list)
		}
		sym = types.UpperSym(sym)
		wl.Rows = append(wl.Rows, types.Row{
			Sym:    sym,
			Name:   name,
			Status: types.StatusNotAttempted,
			Fields: map[string]any{"sym": sym, "name": name},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read watchlist rows")
	}

	lists := make([]types.Watchlist, 0, len(order))
	for _, name := range order {
		lists = append(lists, *byList[name])
	}
	return lists, nil
}

// SaveRows replaces one named list in the database with the given rows.
// Used by the symbols command to snapshot the backend symbol cache locally.
func SaveRows(ctx context.Context, dsn, list string, rows []types.Row) error {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return errors.Wrap(err, "failed to open watchlist db")
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, dbSchema); err != nil {
		return errors.Wrap(err, "failed to ensure watchlist schema")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM watchlist_rows WHERE list = ?`, list); err != nil {
		return errors.Wrap(err, "failed to clear watchlist")
	}
	const insert = `INSERT INTO watchlist_rows (list, sym, name, position) VALUES (?, ?, ?, ?)`
	for i, row := range rows {
		if _, err := tx.ExecContext(ctx, insert, list, types.UpperSym(row.Sym), row.Name, i); err != nil {
			return errors.Wrap(err, "failed to insert watchlist row")
		}
	}
	return errors.Wrap(tx.Commit(), "failed to commit watchlist rows")
}
