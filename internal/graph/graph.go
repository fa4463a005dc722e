// Package graph assembles per-patient record graphs from a staged export.
//
// A graph starts at the patient root row, merges split-table fragments into
// logical rows, scopes entities to the patient through declared bridges, and
// attaches children per the relationship registry. Every row in the graph is
// read through the strict column proxy, so a completed build doubles as proof
// that no code path touched an undeclared column.
package graph

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"ehi/internal/attach"
	"ehi/internal/bridge"
	"ehi/internal/relation"
	"ehi/internal/rowstore"
	"ehi/internal/schema"
	"ehi/internal/splitgroup"
	"ehi/internal/strictrow"
)

// NotFoundError reports a key with no row in its table.
type NotFoundError struct {
	Table string
	Key   any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("graph: no row in %s for key %v", e.Table, e.Key)
}

// Params wires a Builder. All fields except Workers are required.
type Params struct {
	Store    rowstore.Reader
	Catalog  *schema.Catalog
	Split    *splitgroup.Resolver
	Registry *relation.Registry
	Bridges  *bridge.Resolver

	// PatientTable and PatientKeyColumn identify the root of every graph.
	// PatientTable may name a split-group logical table.
	PatientTable     string
	PatientKeyColumn string

	// Children maps a parent table (physical or logical) to its attachment
	// specs.
	Children map[string][]attach.ChildSpec

	// Workers bounds concurrent patient builds in BuildAll. Zero or
	// negative means GOMAXPROCS.
	Workers int
}

// Graph is one patient's assembled record graph.
type Graph struct {
	PatientID any          `json:"patient_id"`
	Root      rowstore.Row `json:"root"`

	// Entities holds bridge-scoped entity rows keyed by entity table.
	Entities map[string][]rowstore.Row `json:"entities,omitempty"`

	// Fallback lists entity tables whose keys came from the declared-absent
	// fallback scan. Only trustworthy for single-patient exports.
	Fallback []string `json:"fallback_entities,omitempty"`
}

// Builder assembles patient graphs. Immutable after construction. Each
// BuildPatient call runs its own attach engine, so concurrent builds never
// share a reverse index and BuildAll can fan out freely.
type Builder struct {
	store    rowstore.Reader
	catalog  *schema.Catalog
	split    *splitgroup.Resolver
	registry *relation.Registry
	bridges  *bridge.Resolver

	patientTable string
	patientKey   string
	children     map[string][]attach.ChildSpec
	workers      int

	// logical holds synthesized descriptors for split-group logical tables:
	// the union of fragment columns, primary fragment first.
	logical *schema.Catalog
}

// NewBuilder validates Params and synthesizes logical-table descriptors for
// every declared split group.
func NewBuilder(p Params) (*Builder, error) {
	if p.Store == nil || p.Catalog == nil || p.Split == nil || p.Registry == nil || p.Bridges == nil {
		return nil, fmt.Errorf("graph: store, catalog, split, registry, and bridges are all required")
	}
	if p.PatientTable == "" || p.PatientKeyColumn == "" {
		return nil, fmt.Errorf("graph: patient table and key column are required")
	}
	if err := rowstore.CheckIdents(p.PatientTable, p.PatientKeyColumn); err != nil {
		return nil, fmt.Errorf("graph: %w", err)
	}

	logical, err := logicalCatalog(p.Catalog, p.Split)
	if err != nil {
		return nil, err
	}

	workers := p.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	return &Builder{
		store:        p.Store,
		catalog:      p.Catalog,
		split:        p.Split,
		registry:     p.Registry,
		bridges:      p.Bridges,
		patientTable: p.PatientTable,
		patientKey:   p.PatientKeyColumn,
		children:     p.Children,
		workers:      workers,
		logical:      logical,
	}, nil
}

// logicalCatalog synthesizes a descriptor per split group: the union of the
// fragments' columns in fragment order (first declaration of a column wins),
// with the primary fragment's primary key. Every fragment must be cataloged.
func logicalCatalog(cat *schema.Catalog, split *splitgroup.Resolver) (*schema.Catalog, error) {
	var descs []*schema.TableDescriptor
	for _, logical := range split.Logicals() {
		frags, err := split.FragmentsOf(logical)
		if err != nil {
			return nil, err
		}

		merged := &schema.TableDescriptor{Name: logical}
		seen := map[string]bool{}
		for i, f := range frags {
			fd, err := cat.Describe(f.Table)
			if err != nil {
				return nil, fmt.Errorf("graph: split group %s: %w", logical, err)
			}
			if i == 0 {
				merged.Description = fd.Description
				merged.PrimaryKey = fd.PrimaryKey
			}
			for _, c := range fd.Columns {
				if seen[c.Name] {
					continue
				}
				seen[c.Name] = true
				merged.Columns = append(merged.Columns, c)
			}
		}
		descs = append(descs, merged)
	}
	return schema.NewCatalog(descs)
}

// PatientIDs returns the distinct patient keys in the root table, in store
// order. For a split-group root the primary fragment is scanned.
func (b *Builder) PatientIDs(ctx context.Context) ([]any, error) {
	table, key := b.patientTable, b.patientKey
	if b.split.IsLogical(table) {
		frags, err := b.split.FragmentsOf(table)
		if err != nil {
			return nil, err
		}
		table, key = frags[0].Table, frags[0].JoinKey
	}

	rows, err := b.store.ScanTable(ctx, table, 0)
	if err != nil {
		return nil, err
	}

	var ids []any
	seen := map[string]bool{}
	for _, row := range rows {
		v, ok := row[key]
		if !ok || rowstore.IsNull(v) {
			continue
		}
		k := fmt.Sprint(v)
		if seen[k] {
			continue
		}
		seen[k] = true
		ids = append(ids, v)
	}
	return ids, nil
}

// BuildPatient assembles one patient's graph.
func (b *Builder) BuildPatient(ctx context.Context, patientID any) (*Graph, error) {
	engine := attach.NewEngine(b.store, b.catalog, b.registry, b.children)

	root, err := b.assembleRow(ctx, engine, b.patientTable, b.patientKey, patientID)
	if err != nil {
		return nil, err
	}
	if root == nil {
		return nil, &NotFoundError{Table: b.patientTable, Key: patientID}
	}

	g := &Graph{PatientID: patientID, Root: root.Unwrap()}

	for _, entity := range b.bridges.Entities() {
		res, err := b.bridges.Resolve(ctx, entity, patientID)
		if err != nil {
			return nil, err
		}
		if res.UsedFallback {
			g.Fallback = append(g.Fallback, entity)
		}
		if len(res.Keys) == 0 {
			continue
		}

		decl, _ := b.bridges.DeclarationFor(entity)
		rows := make([]rowstore.Row, 0, len(res.Keys))
		for _, key := range res.Keys {
			row, err := b.assembleRow(ctx, engine, entity, decl.EntityPKColumn, key)
			if err != nil {
				return nil, err
			}
			if row == nil {
				// Bridge rows can outlive their entity in a partial
				// export; skip rather than fabricate.
				continue
			}
			rows = append(rows, row.Unwrap())
		}
		if len(rows) > 0 {
			if g.Entities == nil {
				g.Entities = map[string][]rowstore.Row{}
			}
			g.Entities[entity] = rows
		}
	}
	sort.Strings(g.Fallback)

	return g, nil
}

// assembleRow fetches one row (merging fragments for logical tables), wraps
// it in the strict proxy, and attaches the table's declared children.
// Returns nil when no row exists for the key.
func (b *Builder) assembleRow(ctx context.Context, engine *attach.Engine, table, keyColumn string, keyValue any) (*strictrow.Row, error) {
	var (
		raw  rowstore.Row
		desc *schema.TableDescriptor
		err  error
	)

	if b.split.IsLogical(table) {
		raw, err = b.split.LogicalRow(ctx, b.store, table, keyValue)
		if err != nil {
			return nil, err
		}
		desc, err = b.logicalDesc(table)
		if err != nil {
			return nil, err
		}
	} else {
		rows, qerr := b.store.QueryRows(ctx, table, keyColumn, keyValue)
		if qerr != nil {
			return nil, qerr
		}
		switch len(rows) {
		case 0:
		case 1:
			raw = rows[0]
		default:
			return nil, fmt.Errorf("graph: %s returned %d rows for %s=%v; expected at most one",
				table, len(rows), keyColumn, keyValue)
		}
		desc, err = b.catalog.Describe(table)
		if err != nil {
			return nil, err
		}
	}

	if raw == nil {
		return nil, nil
	}

	row := strictrow.New(desc, raw)
	if specs := b.children[table]; len(specs) > 0 {
		if err := engine.Attach(ctx, row, keyValue, specs); err != nil {
			return nil, err
		}
	}
	return row, nil
}

func (b *Builder) logicalDesc(table string) (*schema.TableDescriptor, error) {
	return b.logical.Describe(table)
}

// BuildAll assembles every patient graph, bounded by the configured worker
// count, preserving PatientIDs order in the result.
//
// BuildAll refuses fallback-resolved entities when the export holds more than
// one patient: an unfiltered entity scan would hand every patient every
// entity.
func (b *Builder) BuildAll(ctx context.Context) ([]*Graph, error) {
	ids, err := b.PatientIDs(ctx)
	if err != nil {
		return nil, err
	}

	graphs := make([]*Graph, len(ids))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(b.workers)

	for i, id := range ids {
		i, id := i, id
		eg.Go(func() error {
			g, err := b.BuildPatient(ctx, id)
			if err != nil {
				return fmt.Errorf("patient %v: %w", id, err)
			}
			graphs[i] = g
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	if len(ids) > 1 {
		for _, g := range graphs {
			if len(g.Fallback) > 0 {
				return nil, fmt.Errorf("graph: entity tables %v resolved by fallback scan but the export holds %d patients; fallback is only valid for single-patient exports",
					g.Fallback, len(ids))
			}
		}
	}

	return graphs, nil
}
