// Package exportver fingerprints the validated inputs of a pipeline run: the
// schema catalog, the split-group declarations, and the relationship
// registry. The fingerprint is the system's compatibility handle — a changed
// value means the upstream export version (or a curated registry) changed,
// and every manifest and registry must be re-validated against a new
// representative export before its audits mean anything.
package exportver

import (
	"fmt"
	"sort"

	"github.com/zeebo/xxh3"

	"ehi/internal/relation"
	"ehi/internal/schema"
	"ehi/internal/splitgroup"
)

// Fingerprint hashes the catalog plus declarations into a stable 64-bit
// value. Iteration orders are sorted first so the result is independent of
// map ordering and declaration file layout.
func Fingerprint(cat *schema.Catalog, groups []splitgroup.Group, edges []relation.Edge, csn []relation.CSNEntry) uint64 {
	h := xxh3.New()

	for _, table := range cat.Tables() {
		desc, err := cat.Describe(table)
		if err != nil {
			continue // unreachable: Tables() only lists cataloged names
		}
		fmt.Fprintf(h, "table\x00%s\x00", desc.Name)
		for _, c := range desc.Columns {
			fmt.Fprintf(h, "col\x00%s\x00%s\x00", c.Name, c.Type)
		}
		for _, pk := range desc.PrimaryKey {
			fmt.Fprintf(h, "pk\x00%s\x00", pk)
		}
	}

	gs := append([]splitgroup.Group(nil), groups...)
	sort.Slice(gs, func(i, j int) bool { return gs[i].Logical < gs[j].Logical })
	for _, g := range gs {
		fmt.Fprintf(h, "group\x00%s\x00", g.Logical)
		for _, f := range g.Fragments {
			fmt.Fprintf(h, "frag\x00%s\x00%s\x00%s\x00", f.Table, f.JoinKey, f.SecondaryKey)
		}
	}

	es := append([]relation.Edge(nil), edges...)
	sort.Slice(es, func(i, j int) bool {
		if es[i].Source != es[j].Source {
			return es[i].Source < es[j].Source
		}
		return es[i].KeyColumn < es[j].KeyColumn
	})
	for _, e := range es {
		fmt.Fprintf(h, "edge\x00%s\x00%s\x00%s\x00%s\x00", e.Source, e.Target, e.KeyColumn, e.Kind)
	}

	cs := append([]relation.CSNEntry(nil), csn...)
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].Table != cs[j].Table {
			return cs[i].Table < cs[j].Table
		}
		return cs[i].Column < cs[j].Column
	})
	for _, c := range cs {
		fmt.Fprintf(h, "csn\x00%s\x00%s\x00%s\x00%t\x00", c.Table, c.Column, c.Meaning, c.Ambiguous)
	}

	return h.Sum64()
}

// String renders a fingerprint the way reports and logs carry it.
func String(fp uint64) string {
	return fmt.Sprintf("%016x", fp)
}
