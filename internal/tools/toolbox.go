package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dbanalyst/dbanalyst/internal/database"
	"github.com/dbanalyst/dbanalyst/internal/executor"
	"github.com/dbanalyst/dbanalyst/internal/guard"
	"github.com/dbanalyst/dbanalyst/internal/schema"
)

type Inspector interface {
	Dialect() database.Dialect
	ListSchemas(ctx context.Context) ([]string, error)
	ListTables(ctx context.Context, schemaName string) ([]string, error)
	FetchSchema(ctx context.Context, table, schemaName string) (schema.Descriptor, error)
}

type QueryGuard interface {
	AssertReadOnly(ctx context.Context, sql string) (guard.GuardedQuery, error)
}

type QueryExecutor interface {
	Execute(ctx context.Context, query guard.GuardedQuery) executor.Result
}

// Toolbox exposes schema discovery and guarded execution with the plain
// string and list results handed back to a language model.
type Toolbox struct {
	inspector Inspector
	guard     QueryGuard
	executor  QueryExecutor
}

func New(inspector Inspector, queryGuard QueryGuard, exec QueryExecutor) *Toolbox {
	return &Toolbox{inspector: inspector, guard: queryGuard, executor: exec}
}

// ListSchemas returns []string or a "Database error: ..." string.
func (t *Toolbox) ListSchemas(ctx context.Context) any {
	names, err := t.inspector.ListSchemas(ctx)
	if err != nil {
		return databaseError(err)
	}
	return names
}

// ListTables returns []string or a "Database error: ..." string.
func (t *Toolbox) ListTables(ctx context.Context, schemaName string) any {
	names, err := t.inspector.ListTables(ctx, schemaName)
	if err != nil {
		return databaseError(err)
	}
	return names
}

func (t *Toolbox) FetchTableSchema(ctx context.Context, table, schemaName string) string {
	descriptor, err := t.inspector.FetchSchema(ctx, table, schemaName)
	if err != nil {
		if errors.Is(err, schema.ErrNotFound) {
			return fmt.Sprintf("Error: Table '%s.%s' not found.", t.inspector.Dialect().SchemaOrDefault(schemaName), strings.TrimSpace(table))
		}
		return databaseError(err)
	}
	return descriptor.String()
}

// ExecuteSQLQuery guards sql and runs it. Guard rejections are returned as
// errors and never reach the database.
func (t *Toolbox) ExecuteSQLQuery(ctx context.Context, sql string) (executor.Result, error) {
	query, err := t.guard.AssertReadOnly(ctx, sql)
	if err != nil {
		return nil, err
	}
	return t.executor.Execute(ctx, query), nil
}

// Dispatch runs a discovery command. Query and invalid commands need more
// than the command itself and are handled by the caller.
func (t *Toolbox) Dispatch(ctx context.Context, cmd Command) (any, error) {
	switch cmd.Kind {
	case KindListSchemas:
		return t.ListSchemas(ctx), nil
	case KindListTables:
		return t.ListTables(ctx, cmd.Schema), nil
	case KindFetchSchema:
		return t.FetchTableSchema(ctx, cmd.Table, cmd.Schema), nil
	default:
		return nil, fmt.Errorf("command %q is not a discovery command", cmd.Kind)
	}
}

func databaseError(err error) string {
	return "Database error: " + err.Error()
}
