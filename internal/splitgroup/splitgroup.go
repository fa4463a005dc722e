// Package splitgroup resolves split tables: one logical table physically
// divided across several fragment tables (ACCOUNT, ACCOUNT_2, ACCOUNT_3, ...)
// that share primary-key values but not necessarily primary-key column names
// (ACCOUNT_ID in one fragment, ACCT_ID in the next).
//
// The join-key column for each fragment is declared, never inferred: matching
// fragments by column-name similarity is the classic silent-data-loss bug
// this package exists to rule out. Joins match on key value only.
package splitgroup

import (
	"context"
	"fmt"
	"sort"

	"ehi/internal/rowstore"
)

// Fragment is one physical piece of a logical table.
type Fragment struct {
	// Table is the physical fragment table name.
	Table string `json:"table"`

	// JoinKey is this fragment's own key column. It holds the same values
	// as every other fragment's key column, whatever those columns are
	// called.
	JoinKey string `json:"join_key"`

	// SecondaryKey optionally names a LINE-style column that makes
	// multiple rows per key value legal. Without it, more than one row
	// per key is a SplitJoinMismatch.
	SecondaryKey string `json:"secondary_key,omitempty"`
}

// Group declares a logical table and its ordered fragments. The first
// fragment is the primary: its rows anchor the merge and its columns win ties.
type Group struct {
	Logical   string     `json:"logical"`
	Fragments []Fragment `json:"fragments"`
}

// MismatchError reports an ambiguous fragment join: a fragment returned more
// than one row for a key value and no secondary key is declared for it.
// Recoverable by declaring the fragment's composite key.
type MismatchError struct {
	Logical  string
	Fragment string
	KeyValue any
	Count    int
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("splitgroup: %s fragment %s returned %d rows for key %v; declare a secondary key or fix the declaration",
		e.Logical, e.Fragment, e.Count, e.KeyValue)
}

// Resolver answers fragment and join-key lookups for declared split groups.
// Immutable after construction.
type Resolver struct {
	groups     map[string]Group
	byFragment map[string]fragmentRef
}

type fragmentRef struct {
	logical  string
	fragment Fragment
}

// NewResolver validates the declarations and builds the lookup maps. Each
// fragment table may belong to exactly one group; join keys must be plain
// identifiers.
func NewResolver(groups []Group) (*Resolver, error) {
	r := &Resolver{
		groups:     make(map[string]Group, len(groups)),
		byFragment: make(map[string]fragmentRef),
	}
	for _, g := range groups {
		if g.Logical == "" {
			return nil, fmt.Errorf("splitgroup: group with empty logical name")
		}
		if len(g.Fragments) == 0 {
			return nil, fmt.Errorf("splitgroup: %s declares no fragments", g.Logical)
		}
		if _, dup := r.groups[g.Logical]; dup {
			return nil, fmt.Errorf("splitgroup: duplicate group %s", g.Logical)
		}
		for _, f := range g.Fragments {
			if err := rowstore.CheckIdents(f.Table, f.JoinKey); err != nil {
				return nil, fmt.Errorf("splitgroup: %s: %w", g.Logical, err)
			}
			if f.SecondaryKey != "" {
				if err := rowstore.CheckIdents(f.SecondaryKey); err != nil {
					return nil, fmt.Errorf("splitgroup: %s: %w", g.Logical, err)
				}
			}
			if prev, dup := r.byFragment[f.Table]; dup {
				return nil, fmt.Errorf("splitgroup: fragment %s claimed by both %s and %s",
					f.Table, prev.logical, g.Logical)
			}
			r.byFragment[f.Table] = fragmentRef{logical: g.Logical, fragment: f}
		}
		r.groups[g.Logical] = g
	}
	return r, nil
}

// JoinKeyFor returns the declared join-key column for a fragment table.
func (r *Resolver) JoinKeyFor(fragmentTable string) (string, error) {
	ref, ok := r.byFragment[fragmentTable]
	if !ok {
		return "", fmt.Errorf("splitgroup: %s is not a declared fragment", fragmentTable)
	}
	return ref.fragment.JoinKey, nil
}

// FragmentsOf returns the ordered fragments of a logical table.
func (r *Resolver) FragmentsOf(logical string) ([]Fragment, error) {
	g, ok := r.groups[logical]
	if !ok {
		return nil, fmt.Errorf("splitgroup: %s is not a declared logical table", logical)
	}
	return g.Fragments, nil
}

// IsLogical reports whether the table has a split-group declaration.
func (r *Resolver) IsLogical(table string) bool {
	_, ok := r.groups[table]
	return ok
}

// FragmentOwner returns the logical table owning a fragment, if any.
func (r *Resolver) FragmentOwner(fragmentTable string) (string, bool) {
	ref, ok := r.byFragment[fragmentTable]
	return ref.logical, ok
}

// Logicals returns the declared logical table names, sorted.
func (r *Resolver) Logicals() []string {
	out := make([]string, 0, len(r.groups))
	for n := range r.groups {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// MergeRows left-merges fragment rows into one logical row. primary is the
// anchor row from the first fragment; fragmentRows holds each remaining
// fragment's query result keyed by fragment table name.
//
// The first non-null value per column name wins, in declared fragment order;
// later fragments never overwrite. A fragment with more than one row and no
// declared secondary key fails with *MismatchError. With a secondary key the
// rows merge in secondary-key order, which keeps the result deterministic.
func (r *Resolver) MergeRows(logical string, keyValue any, primary rowstore.Row, fragmentRows map[string][]rowstore.Row) (rowstore.Row, error) {
	g, ok := r.groups[logical]
	if !ok {
		return nil, fmt.Errorf("splitgroup: %s is not a declared logical table", logical)
	}

	merged := primary.Clone()
	for _, f := range g.Fragments[1:] {
		rows := fragmentRows[f.Table]
		if len(rows) == 0 {
			continue
		}
		if len(rows) > 1 {
			if f.SecondaryKey == "" {
				return nil, &MismatchError{
					Logical:  logical,
					Fragment: f.Table,
					KeyValue: keyValue,
					Count:    len(rows),
				}
			}
			rows = sortBySecondary(rows, f.SecondaryKey)
		}
		mergeInto(merged, rows)
	}
	return merged, nil
}

// sortBySecondary returns a copy of rows ordered by the secondary-key column.
func sortBySecondary(rows []rowstore.Row, secondaryKey string) []rowstore.Row {
	sorted := append([]rowstore.Row(nil), rows...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return rowstore.CompareValues(sorted[i][secondaryKey], sorted[j][secondaryKey]) < 0
	})
	return sorted
}

// mergeInto fills dst with the first non-null value per column across rows,
// in order. Existing non-null values in dst are never overwritten.
func mergeInto(dst rowstore.Row, rows []rowstore.Row) {
	for _, row := range rows {
		for col, val := range row {
			if rowstore.IsNull(val) {
				continue
			}
			if cur, exists := dst[col]; !exists || rowstore.IsNull(cur) {
				dst[col] = val
			}
		}
	}
}

// LogicalRow fetches and merges one logical row by key value: one query per
// fragment, each keyed on that fragment's own join-key column. Returns
// (nil, nil) when the primary fragment has no row for the key.
func (r *Resolver) LogicalRow(ctx context.Context, store rowstore.Reader, logical string, keyValue any) (rowstore.Row, error) {
	g, ok := r.groups[logical]
	if !ok {
		return nil, fmt.Errorf("splitgroup: %s is not a declared logical table", logical)
	}

	primaryFrag := g.Fragments[0]
	primaryRows, err := store.QueryRows(ctx, primaryFrag.Table, primaryFrag.JoinKey, keyValue)
	if err != nil {
		return nil, err
	}
	if len(primaryRows) == 0 {
		return nil, nil
	}

	// A multi-row primary fragment folds the same way a multi-row secondary
	// fragment does: ordered by the declared secondary key, first non-null
	// value per column wins. Anchoring on an arbitrary store-order row would
	// drop the rest.
	anchor := primaryRows[0]
	if len(primaryRows) > 1 {
		if primaryFrag.SecondaryKey == "" {
			return nil, &MismatchError{
				Logical:  logical,
				Fragment: primaryFrag.Table,
				KeyValue: keyValue,
				Count:    len(primaryRows),
			}
		}
		sorted := sortBySecondary(primaryRows, primaryFrag.SecondaryKey)
		anchor = sorted[0].Clone()
		mergeInto(anchor, sorted[1:])
	}

	fragmentRows := make(map[string][]rowstore.Row, len(g.Fragments)-1)
	for _, f := range g.Fragments[1:] {
		rows, err := store.QueryRows(ctx, f.Table, f.JoinKey, keyValue)
		if err != nil {
			return nil, err
		}
		fragmentRows[f.Table] = rows
	}
	return r.MergeRows(logical, keyValue, anchor, fragmentRows)
}
