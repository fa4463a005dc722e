// Package mysql implements a MySQL-backed rowstore.Reader using
// go-sql-driver/mysql over database/sql.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"

	"ehi/internal/rowstore"
)

// Config holds MySQL reader configuration.
type Config struct {
	// DSN in go-sql-driver format, e.g. "user:pass@tcp(host:3306)/ehi".
	DSN string
}

// Reader is a MySQL-backed implementation of rowstore.Reader.
type Reader struct {
	db *sql.DB
}

// Open opens and pings the connection.
func Open(ctx context.Context, cfg Config) (*Reader, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("mysql: DSN must not be empty")
	}
	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("mysql: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mysql: ping: %w", err)
	}
	return &Reader{db: db}, nil
}

// QueryRows implements rowstore.Reader.
func (r *Reader) QueryRows(ctx context.Context, table, keyColumn string, keyValue any) ([]rowstore.Row, error) {
	if err := rowstore.CheckIdents(table, keyColumn); err != nil {
		return nil, err
	}
	q := fmt.Sprintf("SELECT * FROM `%s` WHERE `%s` = ?", table, keyColumn)
	rows, err := r.db.QueryContext(ctx, q, keyValue)
	if err != nil {
		return nil, fmt.Errorf("mysql: query %s: %w", table, err)
	}
	defer rows.Close()
	return rowstore.CollectRows(rows)
}

// ScanTable implements rowstore.Reader.
func (r *Reader) ScanTable(ctx context.Context, table string, limit int) ([]rowstore.Row, error) {
	if err := rowstore.CheckIdents(table); err != nil {
		return nil, err
	}
	q := fmt.Sprintf("SELECT * FROM `%s`", table)
	if limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("mysql: scan %s: %w", table, err)
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
		sel[i] = fmt.Sprintf("COUNT(`%s`)", c)
	}
	from := fmt.Sprintf("`%s`", table)
	if limit > 0 {
		from = fmt.Sprintf("(SELECT * FROM `%s` LIMIT %d) AS sample", table, limit)
	}

	rows, err := r.db.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM %s", strings.Join(sel, ", "), from))
	if err != nil {
		return nil, fmt.Errorf("mysql: count %s: %w", table, err)
	}
	defer rows.Close()
	return rowstore.CollectCounts(rows, columns)
}

// HasTable implements rowstore.Reader.
func (r *Reader) HasTable(ctx context.Context, table string) (bool, error) {
	var name string
	err := r.db.QueryRowContext(ctx,
		`SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES
		 WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?`, table,
	).Scan(&name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("mysql: has table %s: %w", table, err)
	}
	return true, nil
}

// Close implements rowstore.Reader.
func (r *Reader) Close() error { return r.db.Close() }
