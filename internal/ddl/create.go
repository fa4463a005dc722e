// Package ddl renders CREATE TABLE statements for the SQLite staging database
// that holds a raw export before assembly.
//
// The export's schema descriptors declare vendor types (VARCHAR, NUMERIC,
// INTEGER, FLOAT, DATETIME); Affinity maps those onto SQLite storage classes.
// Identifiers are always double-quoted, so table and column names can carry
// anything the export schema produces, including reserved words.
package ddl

import (
	"fmt"
	"strings"
)

// affinities maps export column types to SQLite storage classes. Unknown
// types fall back to TEXT; dates and timestamps deliberately stay TEXT so the
// export's original formatting survives staging untouched.
var affinities = map[string]string{
	"VARCHAR":  "TEXT",
	"NUMERIC":  "NUMERIC",
	"INTEGER":  "INTEGER",
	"FLOAT":    "REAL",
	"DATETIME": "TEXT",
}

// Affinity returns the SQLite storage class for an export column type.
// The lookup is case-insensitive; unknown types return TEXT.
func Affinity(exportType string) string {
	if a, ok := affinities[strings.ToUpper(strings.TrimSpace(exportType))]; ok {
		return a
	}
	return "TEXT"
}

// BuildCreateTableSQL renders a CREATE TABLE statement from a TableDef.
//
// Each column is rendered as a quoted name plus its SQLType. Primary-key
// columns are rendered as a trailing PRIMARY KEY (...) clause in declared
// order; a PrimaryKey name that does not match any column is an error.
func BuildCreateTableSQL(t TableDef) (string, error) {
	name := strings.TrimSpace(t.Name)
	if name == "" {
		return "", fmt.Errorf("ddl: table name must not be empty")
	}
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("ddl: table %s has no columns", name)
	}

	known := make(map[string]bool, len(t.Columns))
	cols := make([]string, 0, len(t.Columns)+1)
	for _, c := range t.Columns {
		cn := strings.TrimSpace(c.Name)
		if cn == "" {
			return "", fmt.Errorf("ddl: column with empty name in table %s", name)
		}
		typ := strings.TrimSpace(c.SQLType)
		if typ == "" {
			return "", fmt.Errorf("ddl: column %s missing SQLType", cn)
		}
		if known[cn] {
			return "", fmt.Errorf("ddl: duplicate column %s in table %s", cn, name)
		}
		known[cn] = true
		cols = append(cols, fmt.Sprintf("%q %s", cn, typ))
	}

	if len(t.PrimaryKey) > 0 {
		quoted := make([]string, 0, len(t.PrimaryKey))
		for _, pk := range t.PrimaryKey {
			if !known[pk] {
				return "", fmt.Errorf("ddl: primary key column %s not declared in table %s", pk, name)
			}
			quoted = append(quoted, fmt.Sprintf("%q", pk))
		}
		cols = append(cols, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(quoted, ", ")))
	}

	create := "CREATE TABLE"
	if t.IfNotExists {
		create = "CREATE TABLE IF NOT EXISTS"
	}
	stmt := fmt.Sprintf(
		"%s %q (\n  %s\n);",
		create,
		name,
		strings.Join(cols, ",\n  "),
	)

	return stmt, nil
}
