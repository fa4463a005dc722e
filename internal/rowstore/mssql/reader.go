// Package mssql implements a SQL Server-backed rowstore.Reader using
// go-mssqldb over database/sql. Used when the export has been staged into a
// SQL Server warehouse.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"

	"ehi/internal/rowstore"
)

// Config holds SQL Server reader configuration.
type Config struct {
	DSN string
}

// Reader is a SQL Server-backed implementation of rowstore.Reader.
type Reader struct {
	db *sql.DB
}

// Open validates the DSN early to fail fast on obvious mistakes, then opens
// and pings the connection.
func Open(ctx context.Context, cfg Config) (*Reader, error) {
	if _, err := msdsn.Parse(cfg.DSN); err != nil {
		return nil, fmt.Errorf("mssql dsn: %w", err)
	}
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("mssql: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mssql: ping: %w", err)
	}
	return &Reader{db: db}, nil
}

// QueryRows implements rowstore.Reader.
func (r *Reader) QueryRows(ctx context.Context, table, keyColumn string, keyValue any) ([]rowstore.Row, error) {
	if err := rowstore.CheckIdents(table, keyColumn); err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`SELECT * FROM [%s] WHERE [%s] = @p1`, table, keyColumn)
	rows, err := r.db.QueryContext(ctx, q, keyValue)
	if err != nil {
		return nil, fmt.Errorf("mssql: query %s: %w", table, err)
	}
	defer rows.Close()
	return rowstore.CollectRows(rows)
}

// ScanTable implements rowstore.Reader.
func (r *Reader) ScanTable(ctx context.Context, table string, limit int) ([]rowstore.Row, error) {
	if err := rowstore.CheckIdents(table); err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`SELECT * FROM [%s]`, table)
	if limit > 0 {
		q = fmt.Sprintf(`SELECT TOP %d * FROM [%s]`, limit, table)
	}
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("mssql: scan %s: %w", table, err)
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
		sel[i] = fmt.Sprintf(`COUNT([%s])`, c)
	}
	from := fmt.Sprintf(`[%s]`, table)
	if limit > 0 {
		from = fmt.Sprintf(`(SELECT TOP %d * FROM [%s]) AS sample`, limit, table)
	}

	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`SELECT %s FROM %s`, strings.Join(sel, ", "), from))
	if err != nil {
		return nil, fmt.Errorf("mssql: count %s: %w", table, err)
	}
	defer rows.Close()
	return rowstore.CollectCounts(rows, columns)
}

// HasTable implements rowstore.Reader.
func (r *Reader) HasTable(ctx context.Context, table string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_NAME = @p1`, table,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("mssql: has table %s: %w", table, err)
	}
	return true, nil
}

// Close implements rowstore.Reader.
func (r *Reader) Close() error { return r.db.Close() }
