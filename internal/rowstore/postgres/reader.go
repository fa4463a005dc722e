// Package postgres implements a Postgres-backed rowstore.Reader using pgx v5.
// Used when the export has been staged into a Postgres warehouse instead of
// the local SQLite file.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ehi/internal/rowstore"
)

// Config holds Postgres reader configuration.
type Config struct {
	// DSN is the pgxpool connection string.
	DSN string
	// SchemaName is the Postgres schema holding the export tables.
	// Defaults to "public".
	SchemaName string
}

// Reader is a Postgres-backed implementation of rowstore.Reader.
type Reader struct {
	pool   *pgxpool.Pool
	schema string
}

// Open constructs a Reader over a pgx pool.
func Open(ctx context.Context, cfg Config) (*Reader, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	schema := cfg.SchemaName
	if schema == "" {
		schema = "public"
	}
	if err := rowstore.CheckIdents(schema); err != nil {
		pool.Close()
		return nil, err
	}
	return &Reader{pool: pool, schema: schema}, nil
}

// QueryRows implements rowstore.Reader.
func (r *Reader) QueryRows(ctx context.Context, table, keyColumn string, keyValue any) ([]rowstore.Row, error) {
	if err := rowstore.CheckIdents(table, keyColumn); err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`SELECT * FROM %q.%q WHERE %q = $1`, r.schema, table, keyColumn)
	rows, err := r.pool.Query(ctx, q, keyValue)
	if err != nil {
		return nil, fmt.Errorf("postgres: query %s: %w", table, err)
	}
	defer rows.Close()
	return collect(rows)
}

// ScanTable implements rowstore.Reader.
func (r *Reader) ScanTable(ctx context.Context, table string, limit int) ([]rowstore.Row, error) {
	if err := rowstore.CheckIdents(table); err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`SELECT * FROM %q.%q`, r.schema, table)
	if limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan %s: %w", table, err)
	}
	defer rows.Close()
	return collect(rows)
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
	from := fmt.Sprintf(`%q.%q`, r.schema, table)
	if limit > 0 {
		from = fmt.Sprintf(`(SELECT * FROM %q.%q LIMIT %d) AS sample`, r.schema, table, limit)
	}

	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM %s`, strings.Join(sel, ", "), from))
	if err != nil {
		return nil, fmt.Errorf("postgres: count %s: %w", table, err)
	}
	defer rows.Close()

	counts := make(map[string]int, len(columns))
	for _, c := range columns {
		counts[c] = 0
	}
	if rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("postgres: count %s: %w", table, err)
		}
		for i, c := range columns {
			if n, ok := vals[i].(int64); ok {
				counts[c] = int(n)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: count %s: %w", table, err)
	}
	return counts, nil
}

// HasTable implements rowstore.Reader.
func (r *Reader) HasTable(ctx context.Context, table string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = $1 AND table_name = $2
		)`, r.schema, table,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: has table %s: %w", table, err)
	}
	return exists, nil
}

// Close implements rowstore.Reader.
func (r *Reader) Close() error {
	r.pool.Close()
	return nil
}

// collect drains pgx rows into rowstore.Rows. pgx has its own row shape, so
// the shared database/sql helper does not apply here.
func collect(rows pgx.Rows) ([]rowstore.Row, error) {
	fields := rows.FieldDescriptions()
	var out []rowstore.Row
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("postgres: values: %w", err)
		}
		r := make(rowstore.Row, len(fields))
		for i, f := range fields {
			switch v := vals[i].(type) {
			case []byte:
				r[string(f.Name)] = string(v)
			default:
				r[string(f.Name)] = v
			}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate: %w", err)
	}
	return out, nil
}
