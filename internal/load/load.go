// Package load stages a raw tab-separated export into a SQLite database.
//
// Each .tsv file in the export directory becomes one staging table named after
// the file. When the export's schema catalog describes the table, columns get
// typed storage classes and the declared primary key; the combination of a
// primary key and INSERT OR REPLACE makes re-staging the same export
// idempotent. Files without a catalog entry are staged as all-TEXT tables so
// nothing in the export is silently dropped; downstream audits decide what to
// do with them.
//
// Values are staged conservatively: empty fields become NULL, and fields in
// INTEGER/NUMERIC/REAL columns are parsed into native numbers when they parse
// cleanly. Anything else is kept as the original string so the staging
// database never loses what the export actually said.
package load

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"ehi/internal/ddl"
	"ehi/internal/schema"
)

// DefaultBatchSize bounds rows per staging transaction batch.
const DefaultBatchSize = 500

// TableSummary reports the outcome of staging one file.
type TableSummary struct {
	Table string
	Rows  int64

	// Untyped is set when the table had no catalog entry and was staged
	// as all-TEXT columns.
	Untyped bool
}

// Summary aggregates the outcome of a directory load.
type Summary struct {
	Tables []TableSummary
	Rows   int64
}

// Loader stages export files into a SQLite database.
type Loader struct {
	db        *sql.DB
	catalog   *schema.Catalog
	batchSize int
}

// NewLoader returns a Loader writing through db. The catalog supplies column
// types and primary keys; batchSize <= 0 uses DefaultBatchSize.
func NewLoader(db *sql.DB, catalog *schema.Catalog, batchSize int) (*Loader, error) {
	if db == nil {
		return nil, fmt.Errorf("load: db must not be nil")
	}
	if catalog == nil {
		return nil, fmt.Errorf("load: catalog must not be nil")
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Loader{db: db, catalog: catalog, batchSize: batchSize}, nil
}

// LoadDir stages every .tsv file in dir, in name order.
func (l *Loader) LoadDir(ctx context.Context, dir string) (*Summary, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("load: read dir %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".tsv") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	sum := &Summary{}
	for _, name := range names {
		ts, err := l.LoadFile(ctx, filepath.Join(dir, name))
		if err != nil {
			return sum, err
		}
		sum.Tables = append(sum.Tables, *ts)
		sum.Rows += ts.Rows
	}
	return sum, nil
}

// LoadFile stages a single .tsv file. The table name is the file's base name
// without extension.
func (l *Loader) LoadFile(ctx context.Context, path string) (*TableSummary, error) {
	table := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load: open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = '\t'
	r.LazyQuotes = true
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("load: %s: file is empty", path)
	}
	if err != nil {
		return nil, fmt.Errorf("load: %s: read header: %w", path, err)
	}

	desc, types, err := l.tableShape(table, header)
	if err != nil {
		return nil, err
	}
	if err := l.createTable(ctx, table, header, desc); err != nil {
		return nil, err
	}

	ts := &TableSummary{Table: table, Untyped: desc == nil}
	if desc == nil {
		log.Printf("load: table %s has no schema descriptor; staging as TEXT", table)
	}

	insert := insertSQL(table, header)
	batch := make([][]any, 0, l.batchSize)
	line := 1
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return ts, fmt.Errorf("load: %s line %d: %w", path, line, err)
		}
		if len(rec) != len(header) {
			return ts, fmt.Errorf("load: %s line %d: %d fields, header has %d", path, line, len(rec), len(header))
		}

		row := make([]any, len(rec))
		for i, v := range rec {
			row[i] = coerce(v, types[i])
		}
		batch = append(batch, row)

		if len(batch) >= l.batchSize {
			n, err := l.flush(ctx, insert, batch)
			ts.Rows += n
			if err != nil {
				return ts, fmt.Errorf("load: %s: %w", path, err)
			}
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		n, err := l.flush(ctx, insert, batch)
		ts.Rows += n
		if err != nil {
			return ts, fmt.Errorf("load: %s: %w", path, err)
		}
	}

	return ts, nil
}

// tableShape resolves the catalog descriptor and per-header-column storage
// classes for a table. A nil descriptor means the table is uncataloged and
// every column stages as TEXT. A header column missing from the descriptor is
// an error: it means the export and its schema disagree and staging it would
// hide the drift from the manifest audit.
func (l *Loader) tableShape(table string, header []string) (*schema.TableDescriptor, []string, error) {
	types := make([]string, len(header))

	if !l.catalog.Has(table) {
		for i := range types {
			types[i] = "TEXT"
		}
		return nil, types, nil
	}

	desc, err := l.catalog.Describe(table)
	if err != nil {
		return nil, nil, err
	}
	for i, name := range header {
		col, ok := desc.Column(name)
		if !ok {
			return nil, nil, fmt.Errorf("load: table %s: header column %q not in schema descriptor", table, name)
		}
		types[i] = ddl.Affinity(col.Type)
	}
	return desc, types, nil
}

// createTable creates the staging table. Cataloged tables get the full
// descriptor shape (every declared column, typed, with the declared primary
// key) even when the file's header carries a subset.
func (l *Loader) createTable(ctx context.Context, table string, header []string, desc *schema.TableDescriptor) error {
	def := ddl.TableDef{Name: table, IfNotExists: true}
	if desc != nil {
		for _, c := range desc.Columns {
			def.Columns = append(def.Columns, ddl.ColumnDef{Name: c.Name, SQLType: ddl.Affinity(c.Type)})
		}
		def.PrimaryKey = desc.PrimaryKey
	} else {
		for _, name := range header {
			def.Columns = append(def.Columns, ddl.ColumnDef{Name: name, SQLType: "TEXT"})
		}
	}

	stmt, err := ddl.BuildCreateTableSQL(def)
	if err != nil {
		return fmt.Errorf("load: table %s: %w", table, err)
	}
	if _, err := l.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("load: create table %s: %w", table, err)
	}
	return nil
}

// flush inserts one batch inside a transaction.
func (l *Loader) flush(ctx context.Context, insert string, batch [][]any) (int64, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	var inserted int64
	for _, row := range batch {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("insert: %w", err)
		}
		inserted++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

// insertSQL builds INSERT OR REPLACE INTO "t" ("c1", ...) VALUES (?, ...).
// OR REPLACE plus the declared primary key makes repeated staging of the same
// export converge instead of duplicating rows.
func insertSQL(table string, columns []string) string {
	quoted := make([]string, len(columns))
	marks := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = fmt.Sprintf("%q", c)
		marks[i] = "?"
	}
	return fmt.Sprintf(
		"INSERT OR REPLACE INTO %q (%s) VALUES (%s)",
		table,
		strings.Join(quoted, ", "),
		strings.Join(marks, ", "),
	)
}

// coerce converts a raw field into the value staged for a column with the
// given storage class. Empty fields are NULL. Numeric classes parse when
// clean and otherwise keep the raw string, which SQLite stores as-is.
func coerce(raw, class string) any {
	if raw == "" {
		return nil
	}
	switch class {
	case "INTEGER":
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return n
		}
	case "NUMERIC", "REAL":
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return f
		}
	}
	return raw
}
