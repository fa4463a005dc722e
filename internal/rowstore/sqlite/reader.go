// Package sqlite implements a SQLite-backed rowstore.Reader using
// database/sql. SQLite is the primary staging target: the export loader
// writes one SQLite table per TSV file, and projections read them back here.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	// SQLite driver; replace with your preferred driver if desired.
	_ "modernc.org/sqlite" // alternative: github.com/mattn/go-sqlite3

	"ehi/internal/rowstore"
)

// Config holds SQLite reader configuration.
type Config struct {
	// DSN is passed directly to database/sql; for example:
	//
	//	"file:ehi_clean.db?mode=ro"
	//	"ehi_clean.db"
	DSN string
}

// Reader is a SQLite-backed implementation of rowstore.Reader.
type Reader struct {
	db *sql.DB
}

// Open opens a SQLite connection using the provided DSN and pings it to fail
// fast on invalid paths.
func Open(ctx context.Context, cfg Config) (*Reader, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("sqlite: DSN must not be empty")
	}

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}

	return &Reader{db: db}, nil
}

// DB exposes the underlying handle for the loader, which shares the
// connection when staging and projecting in one process.
func (r *Reader) DB() *sql.DB { return r.db }

// QueryRows implements rowstore.Reader.
func (r *Reader) QueryRows(ctx context.Context, table, keyColumn string, keyValue any) ([]rowstore.Row, error) {
	if err := rowstore.CheckIdents(table, keyColumn); err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`SELECT * FROM %q WHERE %q = ?`, table, keyColumn)
	rows, err := r.db.QueryContext(ctx, q, keyValue)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query %s: %w", table, err)
	}
	defer rows.Close()
	return rowstore.CollectRows(rows)
}

// ScanTable implements rowstore.Reader.
func (r *Reader) ScanTable(ctx context.Context, table string, limit int) ([]rowstore.Row, error) {
	if err := rowstore.CheckIdents(table); err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`SELECT * FROM %q`, table)
	if limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("sqlite: scan %s: %w", table, err)
	}
	defer rows.Close()
	return rowstore.CollectRows(rows)
}

// CountNonNull implements rowstore.Reader as a single aggregate query.
func (r *Reader) CountNonNull(ctx context.Context, table string, columns []string, limit int) (map[string]int, error) {
	if err := rowstore.CheckIdents(append([]string{table}, columns...)...); err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return map[string]int{}, nil
	}

	sel := make([]string, len(columns))
	for i, c := range columns {
		sel[i] = fmt.Sprintf(`COUNT(%q)`, c)
	}
	from := fmt.Sprintf(`%q`, table)
	if limit > 0 {
		from = fmt.Sprintf(`(SELECT * FROM %q LIMIT %d) AS sample`, table, limit)
	}

	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`SELECT %s FROM %s`, strings.Join(sel, ", "), from))
	if err != nil {
		return nil, fmt.Errorf("sqlite: count %s: %w", table, err)
	}
	defer rows.Close()
	return rowstore.CollectCounts(rows, columns)
}

// HasTable implements rowstore.Reader.
func (r *Reader) HasTable(ctx context.Context, table string) (bool, error) {
	var name string
	err := r.db.QueryRowContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table,
	).Scan(&name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sqlite: has table %s: %w", table, err)
	}
	return true, nil
}

// Close implements rowstore.Reader.
func (r *Reader) Close() error { return r.db.Close() }
