// Package rowstoretest provides an in-memory rowstore.Reader for engine
// tests. Tables are plain row slices; no SQL involved.
package rowstoretest

import (
	"context"
	"fmt"

	"ehi/internal/rowstore"
)

// Fake is an in-memory rowstore.Reader. Not safe for concurrent mutation;
// populate it fully before handing it to the code under test.
type Fake struct {
	Tables map[string][]rowstore.Row

	// FailOn, when set, makes any query against that table return an
	// error. Used to exercise failure paths.
	FailOn string

	Closed bool
}

// New returns an empty fake store.
func New() *Fake {
	return &Fake{Tables: map[string][]rowstore.Row{}}
}

// Add appends rows to a table, creating it if needed.
func (f *Fake) Add(table string, rows ...rowstore.Row) *Fake {
	f.Tables[table] = append(f.Tables[table], rows...)
	return f
}

// QueryRows implements rowstore.Reader. Key values compare by fmt.Sprint so
// int64(7) from one source matches "7" from another, mirroring how the TSV
// staging keeps identifiers as text.
func (f *Fake) QueryRows(_ context.Context, table, keyColumn string, keyValue any) ([]rowstore.Row, error) {
	if table == f.FailOn {
		return nil, fmt.Errorf("rowstoretest: forced failure on %s", table)
	}
	rows, ok := f.Tables[table]
	if !ok {
		return nil, fmt.Errorf("rowstoretest: no such table %s", table)
	}
	want := fmt.Sprint(keyValue)
	var out []rowstore.Row
	for _, r := range rows {
		v, ok := r[keyColumn]
		if !ok || rowstore.IsNull(v) {
			continue
		}
		if fmt.Sprint(v) == want {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

// ScanTable implements rowstore.Reader.
func (f *Fake) ScanTable(_ context.Context, table string, limit int) ([]rowstore.Row, error) {
	if table == f.FailOn {
		return nil, fmt.Errorf("rowstoretest: forced failure on %s", table)
	}
	rows, ok := f.Tables[table]
	if !ok {
		return nil, fmt.Errorf("rowstoretest: no such table %s", table)
	}
	out := make([]rowstore.Row, 0, len(rows))
	for i, r := range rows {
		if limit > 0 && i >= limit {
			break
		}
		out = append(out, r.Clone())
	}
	return out, nil
}

// CountNonNull implements rowstore.Reader.
func (f *Fake) CountNonNull(_ context.Context, table string, columns []string, limit int) (map[string]int, error) {
	if table == f.FailOn {
		return nil, fmt.Errorf("rowstoretest: forced failure on %s", table)
	}
	rows, ok := f.Tables[table]
	if !ok {
		return nil, fmt.Errorf("rowstoretest: no such table %s", table)
	}
	counts := make(map[string]int, len(columns))
	for _, c := range columns {
		counts[c] = 0
	}
	for i, r := range rows {
		if limit > 0 && i >= limit {
			break
		}
		for _, c := range columns {
			if !rowstore.IsNull(r[c]) {
				counts[c]++
			}
		}
	}
	return counts, nil
}

// HasTable implements rowstore.Reader.
func (f *Fake) HasTable(_ context.Context, table string) (bool, error) {
	_, ok := f.Tables[table]
	return ok, nil
}

// Close implements rowstore.Reader.
func (f *Fake) Close() error {
	f.Closed = true
	return nil
}
