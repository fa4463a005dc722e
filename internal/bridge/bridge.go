// Package bridge resolves patient-scoped entity sets through many-to-many
// bridge tables (e.g. which ACCOUNT rows belong to a patient, via
// PAT_ACCT_CVG).
//
// The bridge-filtered query always runs first. Only when the bridge table is
// declared absent for this export version does the resolver fall back to an
// unfiltered scan of the entity table — and that fallback is only correct for
// single-patient exports, so the result says whether it was taken; callers
// must refuse to trust fallback results for multi-patient inputs.
package bridge

import (
	"context"
	"fmt"
	"sort"

	"ehi/internal/rowstore"
)

// Declaration describes one entity-to-patient bridge.
type Declaration struct {
	// EntityTable is the table whose rows are being scoped to a patient.
	EntityTable string `json:"entity_table"`

	// EntityKeyColumn is the bridge column carrying entity keys.
	EntityKeyColumn string `json:"entity_key_column"`

	// BridgeTable links entities to patients.
	BridgeTable string `json:"bridge_table"`

	// PatientKeyColumn is the bridge column carrying patient keys.
	PatientKeyColumn string `json:"patient_key_column"`

	// EntityPKColumn is the entity table's own key column, used only by
	// the declared-absent fallback scan.
	EntityPKColumn string `json:"entity_pk_column"`

	// Absent marks the bridge table as not shipped in this export
	// version, enabling the single-patient fallback.
	Absent bool `json:"absent,omitempty"`
}

func (d Declaration) validate() error {
	return rowstore.CheckIdents(d.EntityTable, d.EntityKeyColumn, d.BridgeTable,
		d.PatientKeyColumn, d.EntityPKColumn)
}

// Result is the outcome of one bridge resolution.
type Result struct {
	// Keys are the entity primary keys linked to the patient, in bridge
	// row order (or entity table order on the fallback path). Empty, not
	// nil-with-error, when the patient has zero bridged entities.
	Keys []any

	// UsedFallback is true when the unfiltered entity scan ran because
	// the bridge table is declared absent. Such keys are only correct for
	// single-patient exports.
	UsedFallback bool
}

// Resolver executes bridge resolutions against a row store. Immutable after
// construction.
type Resolver struct {
	store rowstore.Reader
	decls map[string]Declaration
}

// NewResolver validates the declarations, keyed by entity table.
func NewResolver(store rowstore.Reader, decls []Declaration) (*Resolver, error) {
	r := &Resolver{store: store, decls: make(map[string]Declaration, len(decls))}
	for _, d := range decls {
		if err := d.validate(); err != nil {
			return nil, fmt.Errorf("bridge: %s: %w", d.EntityTable, err)
		}
		if _, dup := r.decls[d.EntityTable]; dup {
			return nil, fmt.Errorf("bridge: duplicate declaration for %s", d.EntityTable)
		}
		r.decls[d.EntityTable] = d
	}
	return r, nil
}

// DeclarationFor returns the bridge declaration for an entity table.
func (r *Resolver) DeclarationFor(entityTable string) (Declaration, bool) {
	d, ok := r.decls[entityTable]
	return d, ok
}

// Entities returns the declared entity table names, sorted.
func (r *Resolver) Entities() []string {
	names := make([]string, 0, len(r.decls))
	for n := range r.decls {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Resolve returns the entity keys bridged to patientID for the declared
// entity table.
//
// A bridge table that is missing from the store but NOT declared absent is an
// error, not a fallback: silently scanning the whole entity table would hand
// every patient every entity.
func (r *Resolver) Resolve(ctx context.Context, entityTable string, patientID any) (Result, error) {
	d, ok := r.decls[entityTable]
	if !ok {
		return Result{}, fmt.Errorf("bridge: no declaration for entity table %s", entityTable)
	}

	if d.Absent {
		return r.fallbackScan(ctx, d)
	}

	exists, err := r.store.HasTable(ctx, d.BridgeTable)
	if err != nil {
		return Result{}, err
	}
	if !exists {
		return Result{}, fmt.Errorf("bridge: table %s missing from export but not declared absent; update the bridge declarations for this export version", d.BridgeTable)
	}

	rows, err := r.store.QueryRows(ctx, d.BridgeTable, d.PatientKeyColumn, patientID)
	if err != nil {
		return Result{}, err
	}

	res := Result{Keys: make([]any, 0, len(rows))}
	for _, row := range rows {
		v, ok := row[d.EntityKeyColumn]
		if !ok || rowstore.IsNull(v) {
			continue
		}
		res.Keys = append(res.Keys, v)
	}
	return res, nil
}

// fallbackScan returns every entity key in the table. Correct only when the
// export contains a single patient; the caller sees UsedFallback and decides.
func (r *Resolver) fallbackScan(ctx context.Context, d Declaration) (Result, error) {
	rows, err := r.store.ScanTable(ctx, d.EntityTable, 0)
	if err != nil {
		return Result{}, err
	}
	res := Result{Keys: make([]any, 0, len(rows)), UsedFallback: true}
	for _, row := range rows {
		v, ok := row[d.EntityPKColumn]
		if !ok || rowstore.IsNull(v) {
			continue
		}
		res.Keys = append(res.Keys, v)
	}
	return res, nil
}
