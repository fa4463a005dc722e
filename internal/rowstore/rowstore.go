// Package rowstore contains the backend-agnostic contract for reading rows
// out of a staged EHI export, plus helpers shared by the SQL-backed
// implementations.
//
// The export is a set of named tables with no declared foreign keys; the
// reader surface is deliberately narrow: fetch rows by one key column, scan a
// table, and probe for table existence. All relationship interpretation
// happens above this layer.
//
// A Reader is a scoped resource: opened once per run and closed on every exit
// path, including failure paths.
package rowstore

import (
	"context"
	"fmt"
	"regexp"
)

// Row is one physical record: column name to value. Values are whatever the
// backend driver produced (string, int64, float64, []byte, nil). Rows are
// transient: produced per query, never shared between runs.
type Row map[string]any

// Clone returns a shallow copy of the row. Attachment adds synthetic keys to
// its own copy rather than aliasing query results.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Reader is the minimal read surface over a staged export.
//
// Implementations must treat table and column arguments as identifiers, not
// SQL fragments; ValidIdent rejects anything else before it reaches a query.
type Reader interface {
	// QueryRows returns all rows of table where keyColumn equals keyValue.
	// Row order is the backend's natural order; callers that need a stable
	// order sort on an explicit column.
	QueryRows(ctx context.Context, table, keyColumn string, keyValue any) ([]Row, error)

	// ScanTable returns every row of the table. limit <= 0 means no limit.
	// Used by the manifest audit and by the single-patient fallback path.
	ScanTable(ctx context.Context, table string, limit int) ([]Row, error)

	// CountNonNull returns, per named column, how many rows hold a non-null
	// value, as one aggregate query against the table. limit > 0 restricts
	// the observation to a sample of that many rows; <= 0 means the whole
	// table. Used by the manifest audit, which needs counts for hundreds of
	// tables and must not materialize them.
	CountNonNull(ctx context.Context, table string, columns []string, limit int) (map[string]int, error)

	// HasTable reports whether the table exists in this export. Optional
	// tables are genuinely absent in some export versions; this is the
	// probe that keeps absence distinct from query failure.
	HasTable(ctx context.Context, table string) (bool, error)

	// Close releases the underlying connection.
	Close() error
}

var identRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdent reports whether s is safe to splice into a query as a quoted
// identifier. Table and column names come from the catalog and curated
// registries, but every backend still checks them at the boundary.
func ValidIdent(s string) bool {
	return identRE.MatchString(s)
}

// CheckIdents validates each identifier and returns a descriptive error for
// the first reject.
func CheckIdents(names ...string) error {
	for _, n := range names {
		if !ValidIdent(n) {
			return fmt.Errorf("rowstore: invalid identifier %q", n)
		}
	}
	return nil
}

// IsNull reports whether a scanned value counts as absent: nil, empty string,
// or empty byte slice. The upstream TSV load writes empty strings for missing
// values in unschema'd tables, so emptiness and NULL are equivalent here.
func IsNull(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case []byte:
		return len(x) == 0
	default:
		return false
	}
}
