package ddl

// ColumnDef describes a single column in a staging table definition.
//
// Fields:
//   - Name: column name as it appears in the export schema (unquoted; quoting
//     happens at render time)
//   - SQLType: SQLite storage class / affinity (e.g., TEXT, INTEGER, NUMERIC, REAL)
type ColumnDef struct {
	Name    string
	SQLType string
}

// TableDef holds a staging table name, its ordered columns, and the declared
// primary key. PrimaryKey names must refer to columns present in Columns.
type TableDef struct {
	Name        string
	Columns     []ColumnDef
	PrimaryKey  []string
	IfNotExists bool
}
