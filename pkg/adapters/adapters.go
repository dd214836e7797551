// Package adapters registers every built-in datasource adapter.
package adapters

import (
	_ "github.com/ekaya-inc/ekaya-querykit/pkg/adapters/datasource/mssql"    // Register sqlserver adapter
	_ "github.com/ekaya-inc/ekaya-querykit/pkg/adapters/datasource/mysql"    // Register mysql adapter
	_ "github.com/ekaya-inc/ekaya-querykit/pkg/adapters/datasource/postgres" // Register postgres adapter
	_ "github.com/ekaya-inc/ekaya-querykit/pkg/adapters/datasource/sqlite"   // Register sqlite adapter
)
