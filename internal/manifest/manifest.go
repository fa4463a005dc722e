// Package manifest audits column coverage: for each table, every column that
// actually carries data in a representative export must be explicitly mapped
// to a destination field or explicitly skipped with a reason. A column that
// is neither is invisible to projections — it silently produces nulls — and
// that is precisely the failure mode this audit exists to surface.
//
// Findings are non-fatal: they are reported as a batch for human triage, and
// the audit must be re-run whenever the upstream export version changes,
// because new columns in a later export are otherwise undetectable.
package manifest

import (
	"context"
	"fmt"
	"sort"

	"ehi/internal/rowstore"
	"ehi/internal/schema"
)

// Entry is the curated manifest for one table: disjoint mapped and skipped
// column sets, each annotated with a destination or a reason.
type Entry struct {
	Table string `json:"table"`

	// Mapped: column name -> destination field in the output graph.
	Mapped map[string]string `json:"mapped,omitempty"`

	// Skipped: column name -> reason it is intentionally not projected.
	Skipped map[string]string `json:"skipped,omitempty"`
}

// Violation codes.
const (
	// CodeUnmanifested: the column carries data but appears in neither
	// mapped nor skipped.
	CodeUnmanifested = "unmanifested_column"

	// CodeUnknownColumn: the manifest names a column the schema catalog
	// does not declare for this table.
	CodeUnknownColumn = "unknown_column"

	// CodeOverlap: a column appears in both mapped and skipped.
	CodeOverlap = "mapped_and_skipped"
)

// Violation is one audit finding.
type Violation struct {
	Table  string `json:"table"`
	Column string `json:"column"`
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s.%s: %s (%s)", v.Table, v.Column, v.Code, v.Detail)
}

// Checker audits manifest entries against the catalog and a representative
// sample of the export.
type Checker struct {
	store   rowstore.Reader
	catalog *schema.Catalog

	// SampleLimit caps how many rows per table feed the non-null
	// observation. Zero means the whole table; the audit runs offline
	// against a representative export, so whole-table is the default.
	SampleLimit int
}

// NewChecker wires a checker.
func NewChecker(store rowstore.Reader, catalog *schema.Catalog) *Checker {
	return &Checker{store: store, catalog: catalog}
}

// Audit returns the violations for one table's manifest entry, sorted by
// column for stable reports. The error return covers operational failures
// (store unreachable, table unknown to the catalog); findings are data.
func (c *Checker) Audit(ctx context.Context, entry Entry) ([]Violation, error) {
	desc, err := c.catalog.Describe(entry.Table)
	if err != nil {
		return nil, err
	}

	observed, err := c.observeNonNull(ctx, desc)
	if err != nil {
		return nil, err
	}

	var out []Violation

	for col := range entry.Mapped {
		if _, alsoSkipped := entry.Skipped[col]; alsoSkipped {
			out = append(out, Violation{
				Table: entry.Table, Column: col, Code: CodeOverlap,
				Detail: "column is both mapped and skipped; pick one",
			})
		}
		if !desc.HasColumn(col) {
			out = append(out, Violation{
				Table: entry.Table, Column: col, Code: CodeUnknownColumn,
				Detail: "mapped column is not in the schema catalog",
			})
		}
	}
	for col := range entry.Skipped {
		if !desc.HasColumn(col) {
			out = append(out, Violation{
				Table: entry.Table, Column: col, Code: CodeUnknownColumn,
				Detail: "skipped column is not in the schema catalog",
			})
		}
	}

	for col, n := range observed {
		_, mapped := entry.Mapped[col]
		_, skipped := entry.Skipped[col]
		if mapped || skipped {
			continue
		}
		out = append(out, Violation{
			Table: entry.Table, Column: col, Code: CodeUnmanifested,
			Detail: fmt.Sprintf("%d non-null values but no mapped/skipped entry", n),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Column != out[j].Column {
			return out[i].Column < out[j].Column
		}
		return out[i].Code < out[j].Code
	})
	return out, nil
}

// AuditAll audits every entry and concatenates the findings.
func (c *Checker) AuditAll(ctx context.Context, entries []Entry) ([]Violation, error) {
	var out []Violation
	for _, e := range entries {
		vs, err := c.Audit(ctx, e)
		if err != nil {
			return nil, fmt.Errorf("manifest: audit %s: %w", e.Table, err)
		}
		out = append(out, vs...)
	}
	return out, nil
}

// observeNonNull counts non-null values per cataloged column across the
// sample, as one aggregate query per table. The export holds hundreds of
// tables; materializing each one to count nulls would dominate the audit.
// Columns with zero non-null values carry no data and are dropped: only a
// populated column can be unmanifested.
func (c *Checker) observeNonNull(ctx context.Context, desc *schema.TableDescriptor) (map[string]int, error) {
	counts, err := c.store.CountNonNull(ctx, desc.Name, desc.ColumnNames(), c.SampleLimit)
	if err != nil {
		return nil, err
	}
	for col, n := range counts {
		if n == 0 {
			delete(counts, col)
		}
	}
	return counts, nil
}
