// Package attach populates a parent row from its declared child
// specifications: structural children nest as ordered collections,
// cross-references copy the key and feed a reverse index, provenance stamps
// copy through as plain metadata.
//
// Every spec is checked against the relationship registry before any data
// moves. A spec that tries to nest a column the registry classifies as
// anything other than a structural child fails with InvalidNestingError:
// nesting a provenance CSN as if it were ownership silently moves a
// patient-level record under the wrong encounter, which is exactly the
// corruption this layer exists to prevent.
package attach

import (
	"context"
	"fmt"
	"sort"

	"ehi/internal/relation"
	"ehi/internal/rowstore"
	"ehi/internal/schema"
	"ehi/internal/strictrow"
)

// ChildSpec declares how a parent row acquires one named collection or field.
// Created at startup from the curated registry, read-only thereafter.
type ChildSpec struct {
	// ChildTable: for structural children, the table whose rows nest
	// under the parent. For cross-references, the table the stored key
	// points at (used to index the reverse direction).
	ChildTable string `json:"child_table"`

	// ForeignKeyColumn: for structural children, the child column holding
	// the parent's key. For cross-references and provenance stamps, the
	// parent column holding the value.
	ForeignKeyColumn string `json:"foreign_key_column"`

	// OutputKey is the synthetic key added to the parent row. Must not
	// collide with any source column of the parent table.
	OutputKey string `json:"output_key"`

	// Kind is the spec author's intent; it must agree with the registry.
	Kind relation.Kind `json:"kind"`

	// OrderColumn optionally overrides the child table's LINE column for
	// structural ordering. With neither, child order is the store's
	// natural order and callers must not rely on position.
	OrderColumn string `json:"order_column,omitempty"`
}

// InvalidNestingError reports a spec that would nest a non-structural
// relationship. Fatal: it protects the data-ownership invariants.
type InvalidNestingError struct {
	ParentTable  string
	ChildTable   string
	Column       string
	DeclaredKind relation.Kind
}

func (e *InvalidNestingError) Error() string {
	return fmt.Sprintf("attach: spec nests %s.%s under %s but the registry classifies it as %s; structural nesting requires %s",
		e.ChildTable, e.Column, e.ParentTable, e.DeclaredKind, relation.StructuralChild)
}

// Ref is one reverse-index entry: the parent row (by table and key) that
// stored a cross-reference to an entity.
type Ref struct {
	Table string
	Key   any
}

// Engine attaches children per the registry. One engine per patient run; the
// reverse index is built as attachments happen and is not synchronized.
type Engine struct {
	store    rowstore.Reader
	catalog  *schema.Catalog
	registry *relation.Registry

	// specs maps a table name to the attachments performed on every row of
	// that table, wherever it appears in the graph. Structural nesting
	// descends through it, so a child table's own children attach too.
	specs   map[string][]ChildSpec
	reverse map[string]map[string][]Ref
}

// NewEngine wires an engine over the immutable catalog and registry. specs
// carries every table's declared attachments; nil means no nested descent.
// The registry has already proven structural edges acyclic, so the descent
// terminates.
func NewEngine(store rowstore.Reader, catalog *schema.Catalog, registry *relation.Registry, specs map[string][]ChildSpec) *Engine {
	return &Engine{
		store:    store,
		catalog:  catalog,
		registry: registry,
		specs:    specs,
		reverse:  map[string]map[string][]Ref{},
	}
}

// Attach populates each spec's OutputKey on the parent row. parentKeyValue is
// the parent's own key, used to query structural children and to label
// reverse-index entries.
func (e *Engine) Attach(ctx context.Context, parent *strictrow.Row, parentKeyValue any, specs []ChildSpec) error {
	for _, spec := range specs {
		if err := e.attachOne(ctx, parent, parentKeyValue, spec); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) attachOne(ctx context.Context, parent *strictrow.Row, parentKeyValue any, spec ChildSpec) error {
	if spec.OutputKey == "" {
		return fmt.Errorf("attach: spec for %s has empty output key", spec.ChildTable)
	}

	switch spec.Kind {
	case relation.StructuralChild:
		return e.attachStructural(ctx, parent, parentKeyValue, spec)
	case relation.CrossReference:
		return e.attachCrossReference(parent, parentKeyValue, spec)
	case relation.ProvenanceStamp:
		return e.attachProvenance(parent, spec)
	default:
		return fmt.Errorf("attach: spec for %s: unknown kind %q", spec.ChildTable, spec.Kind)
	}
}

// attachStructural verifies the registry agrees this is ownership, fetches
// the child rows, orders them, and nests them under the output key.
func (e *Engine) attachStructural(ctx context.Context, parent *strictrow.Row, parentKeyValue any, spec ChildSpec) error {
	edge, ok := e.registry.EdgeForColumn(spec.ChildTable, spec.ForeignKeyColumn)
	if !ok {
		return fmt.Errorf("attach: %s.%s has no registry entry; adjudicate before nesting",
			spec.ChildTable, spec.ForeignKeyColumn)
	}
	if edge.Kind != relation.StructuralChild {
		return &InvalidNestingError{
			ParentTable:  parent.Table(),
			ChildTable:   spec.ChildTable,
			Column:       spec.ForeignKeyColumn,
			DeclaredKind: edge.Kind,
		}
	}

	rows, err := e.store.QueryRows(ctx, spec.ChildTable, spec.ForeignKeyColumn, parentKeyValue)
	if err != nil {
		return err
	}

	if col := e.orderColumn(spec); col != "" {
		sort.SliceStable(rows, func(i, j int) bool {
			return rowstore.CompareValues(rows[i][col], rows[j][col]) < 0
		})
	}

	// Declared attachments on the child table apply to every nested row:
	// ignoring them here would hand back a plausible-looking graph with the
	// grandchildren silently missing.
	if childSpecs := e.specs[spec.ChildTable]; len(childSpecs) > 0 {
		desc, err := e.catalog.Describe(spec.ChildTable)
		if err != nil {
			return fmt.Errorf("attach: %s declares attachments but %w", spec.ChildTable, err)
		}
		if len(desc.PrimaryKey) == 0 {
			return fmt.Errorf("attach: %s declares attachments but no primary key; nested children need the row's own key to join on",
				spec.ChildTable)
		}
		keyCol := desc.PrimaryKey[0]
		for _, row := range rows {
			child := strictrow.New(desc, row)
			if err := e.Attach(ctx, child, row[keyCol], childSpecs); err != nil {
				return err
			}
		}
	}

	return parent.Set(spec.OutputKey, rows)
}

// attachCrossReference stores only the key value — no row fetch — and records
// the reverse direction in the index.
func (e *Engine) attachCrossReference(parent *strictrow.Row, parentKeyValue any, spec ChildSpec) error {
	if err := e.checkParentColumnKind(parent.Table(), spec, relation.CrossReference); err != nil {
		return err
	}
	v, err := parent.Get(spec.ForeignKeyColumn)
	if err != nil {
		return err
	}
	if rowstore.IsNull(v) {
		return parent.Set(spec.OutputKey, nil)
	}
	if err := parent.Set(spec.OutputKey, v); err != nil {
		return err
	}

	byKey := e.reverse[spec.ChildTable]
	if byKey == nil {
		byKey = map[string][]Ref{}
		e.reverse[spec.ChildTable] = byKey
	}
	k := fmt.Sprint(v)
	byKey[k] = append(byKey[k], Ref{Table: parent.Table(), Key: parentKeyValue})
	return nil
}

// attachProvenance copies the stamp as a plain metadata field.
func (e *Engine) attachProvenance(parent *strictrow.Row, spec ChildSpec) error {
	if err := e.checkParentColumnKind(parent.Table(), spec, relation.ProvenanceStamp); err != nil {
		return err
	}
	v, err := parent.Get(spec.ForeignKeyColumn)
	if err != nil {
		return err
	}
	return parent.Set(spec.OutputKey, v)
}

// checkParentColumnKind requires a registry entry for the parent column and
// agreement with the spec's intent.
func (e *Engine) checkParentColumnKind(parentTable string, spec ChildSpec, want relation.Kind) error {
	edge, ok := e.registry.EdgeForColumn(parentTable, spec.ForeignKeyColumn)
	if !ok {
		return fmt.Errorf("attach: %s.%s has no registry entry; adjudicate before attaching",
			parentTable, spec.ForeignKeyColumn)
	}
	if edge.Kind != want {
		return fmt.Errorf("attach: %s.%s declared %s in the registry but the spec says %s",
			parentTable, spec.ForeignKeyColumn, edge.Kind, want)
	}
	return nil
}

// orderColumn picks the ordering column for structural children: the spec's
// override, else the child descriptor's LINE column, else none.
func (e *Engine) orderColumn(spec ChildSpec) string {
	if spec.OrderColumn != "" {
		return spec.OrderColumn
	}
	desc, err := e.catalog.Describe(spec.ChildTable)
	if err != nil {
		return ""
	}
	if col, ok := desc.LineColumn(); ok {
		return col
	}
	return ""
}

// ReverseLookup returns the parents that stored a cross-reference to the
// given entity key, in attachment order. This is the companion accessor for
// the other side of a cross-reference.
func (e *Engine) ReverseLookup(table string, key any) []Ref {
	return e.reverse[table][fmt.Sprint(key)]
}
