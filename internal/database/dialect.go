package database

import (
	"fmt"
	"sort"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	_ "github.com/microsoft/go-mssqldb"
)

// Dialect holds the driver name and catalog queries for one database family.
// ListTablesSQL takes the schema; ColumnsSQL takes the arguments produced by
// ColumnArgs and must return (column_name, data_type) by ordinal position.
type Dialect struct {
	Name           string
	Driver         string
	DefaultSchema  string
	ListSchemasSQL string
	ListTablesSQL  string
	ColumnsSQL     string
	ReadOnlyTx     bool
	tableFirst     bool
}

func (d Dialect) SchemaOrDefault(schema string) string {
	if strings.TrimSpace(schema) == "" {
		return d.DefaultSchema
	}
	return strings.TrimSpace(schema)
}

func (d Dialect) ColumnArgs(schema, table string) []any {
	if d.tableFirst {
		return []any{table, schema}
	}
	return []any{schema, table}
}

var dialects = map[string]Dialect{
	"postgres": {
		Name:          "postgres",
		Driver:        "pgx",
		DefaultSchema: "public",
		ListSchemasSQL: `SELECT schema_name FROM information_schema.schemata
WHERE schema_name NOT IN ('pg_catalog', 'information_schema')
  AND schema_name NOT LIKE 'pg_toast%'
  AND schema_name NOT LIKE 'pg_temp%'
ORDER BY schema_name`,
		ListTablesSQL: `SELECT table_name FROM information_schema.tables
WHERE table_schema = $1
ORDER BY table_name`,
		ColumnsSQL: `SELECT column_name, data_type FROM information_schema.columns
WHERE table_schema = $1 AND table_name = $2
ORDER BY ordinal_position`,
		ReadOnlyTx: true,
	},
	"mysql": {
		Name:          "mysql",
		Driver:        "mysql",
		DefaultSchema: "",
		ListSchemasSQL: `SELECT schema_name FROM information_schema.schemata
WHERE schema_name NOT IN ('information_schema', 'mysql', 'performance_schema', 'sys')
ORDER BY schema_name`,
		ListTablesSQL: `SELECT table_name FROM information_schema.tables
WHERE table_schema = COALESCE(NULLIF(?, ''), DATABASE())
ORDER BY table_name`,
		ColumnsSQL: `SELECT column_name, data_type FROM information_schema.columns
WHERE table_schema = COALESCE(NULLIF(?, ''), DATABASE()) AND table_name = ?
ORDER BY ordinal_position`,
		ReadOnlyTx: true,
	},
	"sqlite": {
		Name:           "sqlite",
		Driver:         "sqlite3",
		DefaultSchema:  "main",
		ListSchemasSQL: `SELECT name FROM pragma_database_list ORDER BY seq`,
		ListTablesSQL: `SELECT name FROM pragma_table_list
WHERE schema = ? AND type = 'table' AND name NOT LIKE 'sqlite_%'
ORDER BY name`,
		ColumnsSQL: `SELECT name, type FROM pragma_table_info(?, ?) ORDER BY cid`,
		ReadOnlyTx: false,
		tableFirst: true,
	},
	"sqlserver": {
		Name:          "sqlserver",
		Driver:        "sqlserver",
		DefaultSchema: "dbo",
		ListSchemasSQL: `SELECT name FROM sys.schemas
WHERE name NOT IN ('sys', 'INFORMATION_SCHEMA', 'guest') AND name NOT LIKE 'db[_]%'
ORDER BY name`,
		ListTablesSQL: `SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES
WHERE TABLE_SCHEMA = @p1
ORDER BY TABLE_NAME`,
		ColumnsSQL: `SELECT COLUMN_NAME, DATA_TYPE FROM INFORMATION_SCHEMA.COLUMNS
WHERE TABLE_SCHEMA = @p1 AND TABLE_NAME = @p2
ORDER BY ORDINAL_POSITION`,
		ReadOnlyTx: false,
	},
}

func DialectFor(name string) (Dialect, error) {
	dialect, ok := dialects[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Dialect{}, fmt.Errorf("unsupported dialect %q (supported: %s)", name, strings.Join(DialectNames(), ", "))
	}
	return dialect, nil
}

func DialectNames() []string {
	names := make([]string, 0, len(dialects))
	for name := range dialects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
