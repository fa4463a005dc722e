// Package relation holds the curated relationship registry: for each table
// (or table/column pair) that participates in nesting or cross-linking, one
// declared RelationshipEdge.
//
// The export carries no foreign-key constraints, and column names lie:
// a column ending in _CSN may mean membership in an encounter, the row's own
// identity, a provenance stamp, or a cross-reference, depending on the owning
// table. The registry records a human's reading of the schema descriptions;
// this package only applies and enforces that judgment. Nothing here matches
// on name substrings to decide semantics, and nothing here guesses: an
// unadjudicated or ambiguous column fails closed with
// AmbiguousRelationshipError rather than defaulting to nesting, because
// incorrect nesting silently hangs patient-level data under the wrong
// encounter.
package relation

import (
	"fmt"
	"sort"

	"ehi/internal/rowstore"
)

// Kind tags how a source table's rows relate to a target entity.
type Kind string

const (
	// StructuralChild rows are owned by the target and nest under it.
	StructuralChild Kind = "structural_child"

	// CrossReference rows are independent entities that point at the
	// target by key, without ownership.
	CrossReference Kind = "cross_reference"

	// ProvenanceStamp columns record when/where a record was touched,
	// not who owns it.
	ProvenanceStamp Kind = "provenance_stamp"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case StructuralChild, CrossReference, ProvenanceStamp:
		return true
	}
	return false
}

// Edge is one declared relationship: sourceTable's keyColumn relates it to
// targetTable with the given semantics.
type Edge struct {
	Source    string `json:"source"`
	Target    string `json:"target"`
	KeyColumn string `json:"key_column"`
	Kind      Kind   `json:"kind"`
}

// CSNMeaning is the adjudicated meaning of one contact-serial-number column.
type CSNMeaning string

const (
	// MeaningMembership: the row belongs to (nests under) that contact.
	MeaningMembership CSNMeaning = "membership"
	// MeaningIdentity: the column is the row's own identifier.
	MeaningIdentity CSNMeaning = "identity"
	// MeaningProvenance: the contact during which the record was touched.
	MeaningProvenance CSNMeaning = "provenance"
	// MeaningCrossReference: a pointer to a related contact, no ownership.
	MeaningCrossReference CSNMeaning = "cross_reference"
)

// CSNEntry records the adjudication for one table/column pair. Ambiguous
// entries are legal in the registry — they document that a human looked and
// could not decide — and they make every interpretation attempt fail.
type CSNEntry struct {
	Table     string     `json:"table"`
	Column    string     `json:"column"`
	Meaning   CSNMeaning `json:"meaning,omitempty"`
	Ambiguous bool       `json:"ambiguous,omitempty"`
	// Note carries the curator's reasoning; surfaced in errors.
	Note string `json:"note,omitempty"`
}

// AmbiguousRelationshipError means the registry cannot answer for this
// table or column. Fatal: requires human adjudication, never a default.
type AmbiguousRelationshipError struct {
	Table  string
	Column string
	Note   string
}

func (e *AmbiguousRelationshipError) Error() string {
	msg := fmt.Sprintf("relation: ambiguous relationship for table %q", e.Table)
	if e.Column != "" {
		msg = fmt.Sprintf("relation: ambiguous meaning for column %s.%s", e.Table, e.Column)
	}
	if e.Note != "" {
		msg += " (" + e.Note + ")"
	}
	return msg + "; adjudicate in the relationship registry"
}

// Registry is the immutable, versioned relationship registry.
type Registry struct {
	bySource map[string][]Edge
	byColumn map[string]map[string]Edge
	nesting  map[string]Edge
	csn      map[string]map[string]CSNEntry
}

// NewRegistry validates the declarations and builds the lookups.
//
// Enforced invariants: kinds are valid; identifiers are plain; a table has at
// most one StructuralChild edge (its nesting parent); structural edges form a
// forest — following nesting parents always terminates.
func NewRegistry(edges []Edge, csnEntries []CSNEntry) (*Registry, error) {
	r := &Registry{
		bySource: map[string][]Edge{},
		byColumn: map[string]map[string]Edge{},
		nesting:  map[string]Edge{},
		csn:      map[string]map[string]CSNEntry{},
	}

	for _, e := range edges {
		if err := rowstore.CheckIdents(e.Source, e.Target, e.KeyColumn); err != nil {
			return nil, fmt.Errorf("relation: edge %s->%s: %w", e.Source, e.Target, err)
		}
		if !e.Kind.Valid() {
			return nil, fmt.Errorf("relation: edge %s->%s: unknown kind %q", e.Source, e.Target, e.Kind)
		}
		cols := r.byColumn[e.Source]
		if cols == nil {
			cols = map[string]Edge{}
			r.byColumn[e.Source] = cols
		}
		if prev, dup := cols[e.KeyColumn]; dup {
			return nil, fmt.Errorf("relation: %s.%s declared twice (-> %s and -> %s)",
				e.Source, e.KeyColumn, prev.Target, e.Target)
		}
		cols[e.KeyColumn] = e

		if e.Kind == StructuralChild {
			if prev, dup := r.nesting[e.Source]; dup {
				return nil, fmt.Errorf("relation: %s has two nesting parents (%s and %s)",
					e.Source, prev.Target, e.Target)
			}
			r.nesting[e.Source] = e
		}
		r.bySource[e.Source] = append(r.bySource[e.Source], e)
	}

	if err := r.checkForest(); err != nil {
		return nil, err
	}

	for _, c := range csnEntries {
		if err := rowstore.CheckIdents(c.Table, c.Column); err != nil {
			return nil, fmt.Errorf("relation: csn entry: %w", err)
		}
		if !c.Ambiguous {
			switch c.Meaning {
			case MeaningMembership, MeaningIdentity, MeaningProvenance, MeaningCrossReference:
			default:
				return nil, fmt.Errorf("relation: csn entry %s.%s: unknown meaning %q", c.Table, c.Column, c.Meaning)
			}
		}
		m := r.csn[c.Table]
		if m == nil {
			m = map[string]CSNEntry{}
			r.csn[c.Table] = m
		}
		if _, dup := m[c.Column]; dup {
			return nil, fmt.Errorf("relation: csn entry %s.%s declared twice", c.Table, c.Column)
		}
		m[c.Column] = c
	}
	return r, nil
}

// checkForest verifies that following nesting parents from any table
// terminates. A cycle means some curated edge is wrong.
func (r *Registry) checkForest() error {
	const (
		white = 0 // unvisited
		grey  = 1 // on the current path
		black = 2 // proven acyclic
	)
	state := map[string]int{}

	var walk func(table string, path []string) error
	walk = func(table string, path []string) error {
		switch state[table] {
		case black:
			return nil
		case grey:
			return fmt.Errorf("relation: structural-child cycle: %v -> %s", path, table)
		}
		state[table] = grey
		if e, ok := r.nesting[table]; ok {
			if err := walk(e.Target, append(path, table)); err != nil {
				return err
			}
		}
		state[table] = black
		return nil
	}

	tables := make([]string, 0, len(r.nesting))
	for t := range r.nesting {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	for _, t := range tables {
		if err := walk(t, nil); err != nil {
			return err
		}
	}
	return nil
}

// Classify returns the table's governing edge: its nesting parent when one is
// declared, otherwise its single declared edge. A table with several
// non-structural edges and no nesting parent has no single answer, and a
// table with no edges was never adjudicated; both fail closed.
func (r *Registry) Classify(table string) (Edge, error) {
	if e, ok := r.nesting[table]; ok {
		return e, nil
	}
	edges := r.bySource[table]
	if len(edges) == 1 {
		return edges[0], nil
	}
	note := "no edges declared"
	if len(edges) > 1 {
		note = fmt.Sprintf("%d non-structural edges, none marked as nesting parent", len(edges))
	}
	return Edge{}, &AmbiguousRelationshipError{Table: table, Note: note}
}

// EdgesFrom returns every declared edge whose source is table, in declaration
// order.
func (r *Registry) EdgesFrom(table string) []Edge {
	return r.bySource[table]
}

// EdgeForColumn returns the declared edge for a specific source column.
func (r *Registry) EdgeForColumn(table, column string) (Edge, bool) {
	e, ok := r.byColumn[table][column]
	return e, ok
}

// NestingParent returns the table's structural parent edge, if declared.
func (r *Registry) NestingParent(table string) (Edge, bool) {
	e, ok := r.nesting[table]
	return e, ok
}

// InterpretCSNColumn returns the adjudicated meaning of a CSN column.
// Unregistered and explicitly ambiguous columns both fail with
// *AmbiguousRelationshipError: a CSN column whose meaning nobody wrote down
// must not be guessed at.
func (r *Registry) InterpretCSNColumn(table, column string) (CSNMeaning, error) {
	entry, ok := r.csn[table][column]
	if !ok {
		return "", &AmbiguousRelationshipError{Table: table, Column: column, Note: "not in registry"}
	}
	if entry.Ambiguous {
		return "", &AmbiguousRelationshipError{Table: table, Column: column, Note: entry.Note}
	}
	return entry.Meaning, nil
}
