package schema

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dbanalyst/dbanalyst/internal/database"
	"github.com/dbanalyst/dbanalyst/internal/observability"
)

// ErrNotFound is returned when a table has no visible columns, whether or not
// it exists.
var ErrNotFound = errors.New("table not found")

type Column struct {
	Name     string `json:"column_name"`
	DataType string `json:"data_type"`
}

type Descriptor struct {
	Schema  string   `json:"schema"`
	Table   string   `json:"table"`
	Columns []Column `json:"columns"`
}

func (d Descriptor) String() string {
	lines := make([]string, 0, len(d.Columns))
	for _, column := range d.Columns {
		lines = append(lines, fmt.Sprintf("- %s (%s)", column.Name, column.DataType))
	}
	return strings.Join(lines, "\n")
}

type Inspector struct {
	db      database.Connector
	dialect database.Dialect
	logger  *slog.Logger
}

func NewInspector(db database.Connector, dialect database.Dialect, logger *slog.Logger) *Inspector {
	return &Inspector{db: db, dialect: dialect, logger: logger}
}

func (i *Inspector) Dialect() database.Dialect {
	return i.dialect
}

func (i *Inspector) ListSchemas(ctx context.Context) ([]string, error) {
	names, err := i.queryNames(ctx, i.dialect.ListSchemasSQL)
	if err != nil {
		return nil, database.Wrap("list schemas", err)
	}
	return names, nil
}

func (i *Inspector) ListTables(ctx context.Context, schemaName string) ([]string, error) {
	schemaName = i.dialect.SchemaOrDefault(schemaName)
	names, err := i.queryNames(ctx, i.dialect.ListTablesSQL, schemaName)
	if err != nil {
		return nil, database.Wrap(fmt.Sprintf("list tables in schema %q", schemaName), err)
	}
	return names, nil
}

// FetchSchema never caches; every call reads the catalog again.
func (i *Inspector) FetchSchema(ctx context.Context, table, schemaName string) (Descriptor, error) {
	table = strings.TrimSpace(table)
	if table == "" {
		return Descriptor{}, fmt.Errorf("table name is required")
	}
	schemaName = i.dialect.SchemaOrDefault(schemaName)
	descriptor := Descriptor{Schema: schemaName, Table: table}

	err := database.WithConn(ctx, i.db, func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, i.dialect.ColumnsSQL, i.dialect.ColumnArgs(schemaName, table)...)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()

		for rows.Next() {
			var column Column
			if err := rows.Scan(&column.Name, &column.DataType); err != nil {
				return fmt.Errorf("scan column: %w", err)
			}
			descriptor.Columns = append(descriptor.Columns, column)
		}
		return rows.Err()
	})
	if err != nil {
		if i.logger != nil {
			i.logger.ErrorContext(ctx, "fetch table schema failed",
				slog.String("trace_id", observability.TraceIDFromContext(ctx)),
				slog.String("schema", schemaName),
				slog.String("table", table),
				slog.Any("error", err),
			)
		}
		return Descriptor{}, database.Wrap(fmt.Sprintf("fetch schema for %s.%s", schemaName, table), err)
	}
	if len(descriptor.Columns) == 0 {
		return Descriptor{}, ErrNotFound
	}
	return descriptor, nil
}

func (i *Inspector) queryNames(ctx context.Context, query string, args ...any) ([]string, error) {
	names := make([]string, 0)
	err := database.WithConn(ctx, i.db, func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()

		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				return fmt.Errorf("scan name: %w", err)
			}
			names = append(names, name)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}
