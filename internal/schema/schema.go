// Package schema implements the read-only schema catalog for a raw EHI
// export: one TableDescriptor per physical table, loaded once at startup from
// the per-table JSON schema documents that ship with the export.
//
// The catalog is the single source of truth for which columns exist on which
// table. Everything downstream that touches a column name — the strict row
// view, the manifest audit, the generated row types — validates against the
// descriptors in this package.
//
// Descriptors are immutable after load. The catalog exposes no mutation API
// and is safe to share across any number of concurrent readers.
package schema

import (
	"fmt"
	"sort"
)

// ColumnKind is the semantic kind inferred for a column from its name and
// free-text description. Kinds are hints for tooling (codegen, manifest
// triage, display); they never decide relationship semantics — that judgment
// lives in the curated relationship registry.
type ColumnKind string

const (
	KindIdentifier       ColumnKind = "identifier"        // PAT_ID, ACCOUNT_ID, *_CSN_ID
	KindCategoryCode     ColumnKind = "category_code"     // *_C columns holding category numbers
	KindCategoryName     ColumnKind = "category_name"     // *_C_NAME denormalized display names
	KindYesNoFlag        ColumnKind = "yes_no_flag"       // *_YN
	KindDatetime         ColumnKind = "datetime"          // *_DTTM, *_DATE, *_TIME
	KindInternalDateReal ColumnKind = "internal_date_real" // *_REAL internal date serials
	KindLineNumber       ColumnKind = "line_number"       // LINE and *_LINE ordering columns
	KindDenormalizedName ColumnKind = "denormalized_name" // PAT_NAME and friends
	KindOther            ColumnKind = "other"
)

// ColumnDescriptor describes one column of one export table. Immutable after
// catalog load.
type ColumnDescriptor struct {
	// Name is the column name exactly as it appears in the export.
	Name string `json:"name"`

	// Type is the declared storage type from the schema document
	// (VARCHAR, INTEGER, NUMERIC, FLOAT, DATETIME variants).
	Type string `json:"type"`

	// Description is the free-text column description from the vendor
	// documentation. This is the text a curator reads when classifying
	// relationships; the code only mines it for kind hints.
	Description string `json:"description"`

	// Kind is the inferred semantic kind. See InferKind.
	Kind ColumnKind `json:"kind"`
}

// TableDescriptor describes one physical export table: its columns in
// declared order plus the declared primary key. Immutable after catalog load.
type TableDescriptor struct {
	// Name is the physical table name (PATIENT, PATIENT_2, ACCOUNT, ...).
	Name string `json:"name"`

	// Description is the free-text table description.
	Description string `json:"description"`

	// Columns in the order declared by the schema document.
	Columns []ColumnDescriptor `json:"columns"`

	// PrimaryKey lists the declared primary-key column names in ordinal
	// order. May be empty: many export tables declare none.
	PrimaryKey []string `json:"primary_key"`

	colIndex map[string]int
}

// UnknownTableError is returned by Catalog.Describe for a table that was
// never registered. Fatal at startup: a query against an uncataloged table
// can never be column-checked.
type UnknownTableError struct {
	Table string
}

func (e *UnknownTableError) Error() string {
	return fmt.Sprintf("schema: unknown table %q", e.Table)
}

// Column returns the descriptor for the named column, or false if the table
// has no such column.
func (t *TableDescriptor) Column(name string) (ColumnDescriptor, bool) {
	i, ok := t.colIndex[name]
	if !ok {
		return ColumnDescriptor{}, false
	}
	return t.Columns[i], true
}

// HasColumn reports whether the table declares the named column.
func (t *TableDescriptor) HasColumn(name string) bool {
	_, ok := t.colIndex[name]
	return ok
}

// ColumnNames returns the declared column names in schema order.
func (t *TableDescriptor) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// LineColumn returns the name of the table's line-number ordering column
// (LINE or a *_LINE variant) and whether one exists. When a table has several
// the lexically first is returned, which keeps callers deterministic.
func (t *TableDescriptor) LineColumn() (string, bool) {
	var lines []string
	for _, c := range t.Columns {
		if c.Kind == KindLineNumber {
			lines = append(lines, c.Name)
		}
	}
	if len(lines) == 0 {
		return "", false
	}
	sort.Strings(lines)
	return lines[0], true
}

// finish builds the internal column index. Called once by the loader.
func (t *TableDescriptor) finish() error {
	t.colIndex = make(map[string]int, len(t.Columns))
	for i, c := range t.Columns {
		if c.Name == "" {
			return fmt.Errorf("schema: table %q: column %d has empty name", t.Name, i)
		}
		if _, dup := t.colIndex[c.Name]; dup {
			return fmt.Errorf("schema: table %q: duplicate column %q", t.Name, c.Name)
		}
		t.colIndex[c.Name] = i
	}
	for _, pk := range t.PrimaryKey {
		if _, ok := t.colIndex[pk]; !ok {
			return fmt.Errorf("schema: table %q: primary key column %q not declared", t.Name, pk)
		}
	}
	return nil
}

// Catalog maps table names to descriptors. Built once by Load (or NewCatalog
// for tests) and read-only thereafter.
type Catalog struct {
	tables map[string]*TableDescriptor
}

// NewCatalog builds a catalog from prepared descriptors. It finishes each
// descriptor (column index, primary-key check) and rejects duplicates.
func NewCatalog(descs []*TableDescriptor) (*Catalog, error) {
	c := &Catalog{tables: make(map[string]*TableDescriptor, len(descs))}
	for _, d := range descs {
		if d.Name == "" {
			return nil, fmt.Errorf("schema: descriptor with empty table name")
		}
		if _, dup := c.tables[d.Name]; dup {
			return nil, fmt.Errorf("schema: duplicate table %q", d.Name)
		}
		if err := d.finish(); err != nil {
			return nil, err
		}
		c.tables[d.Name] = d
	}
	return c, nil
}

// Describe returns the descriptor for the named table or an
// *UnknownTableError.
func (c *Catalog) Describe(table string) (*TableDescriptor, error) {
	d, ok := c.tables[table]
	if !ok {
		return nil, &UnknownTableError{Table: table}
	}
	return d, nil
}

// Has reports whether the catalog knows the named table.
func (c *Catalog) Has(table string) bool {
	_, ok := c.tables[table]
	return ok
}

// Tables returns all cataloged table names, sorted.
func (c *Catalog) Tables() []string {
	names := make([]string, 0, len(c.tables))
	for n := range c.tables {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of cataloged tables.
func (c *Catalog) Len() int { return len(c.tables) }
