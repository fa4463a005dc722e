// Package all wires every built-in rowstore backend into the factory.
//
// This package exists purely for side effects: importing it (even as a blank
// import) runs the init functions of each concrete backend, which register
// their factories with the rowstore package.
//
// Importing this package makes the following kinds available at runtime:
//
//   - "sqlite"   (ehi/internal/rowstore/sqlite)
//   - "postgres" (ehi/internal/rowstore/postgres)
//   - "mssql"    (ehi/internal/rowstore/mssql)
//   - "mysql"    (ehi/internal/rowstore/mysql)
//
// A binary that supports only a subset of backends can blank-import the
// individual backend packages instead of this one.
package all

import (
	_ "ehi/internal/rowstore/mssql"
	_ "ehi/internal/rowstore/mysql"
	_ "ehi/internal/rowstore/postgres"
	_ "ehi/internal/rowstore/sqlite"
)
