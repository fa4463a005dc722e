// Package strictrow wraps a raw row in a read-only view that refuses reads
// of columns the schema catalog does not declare for that table.
//
// This is the runtime backstop of the column-safety stack: generated types
// catch bad accesses at compile time, the manifest audit catches them at
// review time, and this proxy catches whatever dynamic path remains. A full
// pipeline run with the proxy enabled and zero failures is the proof that no
// code path references a nonexistent column for that export version.
package strictrow

import (
	"fmt"
	"sort"
	"strings"

	"ehi/internal/rowstore"
	"ehi/internal/schema"
)

// ColumnNotFoundError reports a read of a column the table does not declare.
// Fatal in strict/CI mode: it signals a correctness bug in projection code,
// not bad input. Available lists the valid alternatives so the diagnostic is
// actionable on its own.
type ColumnNotFoundError struct {
	Table     string
	Column    string
	Available []string
}

func (e *ColumnNotFoundError) Error() string {
	return fmt.Sprintf("strictrow: no column %q on table %s (available: %s)",
		e.Column, e.Table, strings.Join(e.Available, ", "))
}

// Row is a checked view over one rowstore.Row. Reads go through Get; any
// column outside the descriptor's set plus the synthetic allowlist fails
// loudly instead of returning a silent nil.
//
// Synthetic columns are the keys attachment adds (child collections,
// cross-reference fields, provenance metadata) and declared computed fields;
// they are registered per row via Allow.
type Row struct {
	desc      *schema.TableDescriptor
	row       rowstore.Row
	synthetic map[string]struct{}
}

// New wraps row against its table descriptor. The optional synthetic names
// seed the allowlist.
func New(desc *schema.TableDescriptor, row rowstore.Row, synthetic ...string) *Row {
	s := &Row{desc: desc, row: row}
	if len(synthetic) > 0 {
		s.Allow(synthetic...)
	}
	return s
}

// Table returns the wrapped table's name.
func (s *Row) Table() string { return s.desc.Name }

// Allow registers synthetic column names as readable and writable.
func (s *Row) Allow(names ...string) {
	if s.synthetic == nil {
		s.synthetic = make(map[string]struct{}, len(names))
	}
	for _, n := range names {
		s.synthetic[n] = struct{}{}
	}
}

// Get returns the value of a declared or synthetic column. A declared column
// absent from the physical row reads as nil — the export omits trailing
// empty cells — but an undeclared column is a *ColumnNotFoundError.
func (s *Row) Get(column string) (any, error) {
	if !s.permitted(column) {
		return nil, s.notFound(column)
	}
	return s.row[column], nil
}

// MustGet is Get for call sites that have already validated the column set,
// such as iteration over descriptor columns. Panics on miss.
func (s *Row) MustGet(column string) any {
	v, err := s.Get(column)
	if err != nil {
		panic(err)
	}
	return v
}

// Has reports whether the column is readable (declared or synthetic).
// It never errors: probing is how callers avoid errors.
func (s *Row) Has(column string) bool {
	return s.permitted(column)
}

// Set writes a synthetic column. Source columns are immutable through this
// view: attachment adds new keys, it never rewrites export data.
func (s *Row) Set(column string, value any) error {
	if s.desc.HasColumn(column) {
		return fmt.Errorf("strictrow: refusing to overwrite source column %s.%s", s.desc.Name, column)
	}
	s.Allow(column)
	s.row[column] = value
	return nil
}

// Unwrap returns the underlying row for serialization. The returned map
// includes synthetic keys added via Set.
func (s *Row) Unwrap() rowstore.Row { return s.row }

func (s *Row) permitted(column string) bool {
	if s.desc.HasColumn(column) {
		return true
	}
	_, ok := s.synthetic[column]
	return ok
}

func (s *Row) notFound(column string) *ColumnNotFoundError {
	avail := s.desc.ColumnNames()
	for n := range s.synthetic {
		avail = append(avail, n)
	}
	sort.Strings(avail)
	return &ColumnNotFoundError{
		Table:     s.desc.Name,
		Column:    column,
		Available: avail,
	}
}
