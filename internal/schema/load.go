package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// schemaDoc mirrors the per-table JSON schema documents shipped with the
// export (one <TABLE>.json per table, from the vendor's published EHI docs).
type schemaDoc struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	PrimaryKey  []pkColumn `json:"primaryKey"`
	Columns     []struct {
		Name        string `json:"name"`
		Type        string `json:"type"`
		Description string `json:"description"`
	} `json:"columns"`
}

type pkColumn struct {
	ColumnName      string `json:"columnName"`
	OrdinalPosition int    `json:"ordinalPosition"`
}

// Load reads every *.json schema document under dir and returns the catalog.
// The table name is taken from the file name (ACCOUNT_2.json -> ACCOUNT_2);
// a "name" field inside the document, when present, must agree.
//
// Empty or missing documents are tolerated per table — the export ships
// tables with no published schema — but an unparseable document is an error:
// silently skipping one would leave every column of that table unchecked.
func Load(dir string) (*Catalog, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("schema: read dir: %w", err)
	}

	var descs []*TableDescriptor
	for _, ent := range entries {
		if ent.IsDir() || !strings.HasSuffix(ent.Name(), ".json") {
			continue
		}
		table := strings.TrimSuffix(ent.Name(), ".json")
		path := filepath.Join(dir, ent.Name())

		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("schema: read %s: %w", path, err)
		}
		if len(raw) == 0 {
			// Placeholder file for a table with no published schema.
			continue
		}

		var doc schemaDoc
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("schema: parse %s: %w", path, err)
		}
		if doc.Name != "" && doc.Name != table {
			return nil, fmt.Errorf("schema: %s: document name %q does not match file table %q", path, doc.Name, table)
		}

		descs = append(descs, descriptorFromDoc(table, doc))
	}

	if len(descs) == 0 {
		return nil, fmt.Errorf("schema: no schema documents found in %s", dir)
	}
	return NewCatalog(descs)
}

func descriptorFromDoc(table string, doc schemaDoc) *TableDescriptor {
	d := &TableDescriptor{
		Name:        table,
		Description: doc.Description,
	}
	for _, c := range doc.Columns {
		d.Columns = append(d.Columns, ColumnDescriptor{
			Name:        c.Name,
			Type:        strings.TrimSpace(c.Type),
			Description: c.Description,
			Kind:        InferKind(c.Name, c.Description),
		})
	}

	pk := append([]pkColumn(nil), doc.PrimaryKey...)
	sort.SliceStable(pk, func(i, j int) bool {
		return pk[i].OrdinalPosition < pk[j].OrdinalPosition
	})
	for _, p := range pk {
		d.PrimaryKey = append(d.PrimaryKey, p.ColumnName)
	}
	return d
}
