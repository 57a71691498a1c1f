package executor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dbanalyst/dbanalyst/internal/database"
	"github.com/dbanalyst/dbanalyst/internal/guard"
	"github.com/dbanalyst/dbanalyst/internal/observability"
)

type Options struct {
	ReadOnlyTx bool
	Timeout    time.Duration
	MaxRows    int
}

type Executor struct {
	db     database.Connector
	opts   Options
	logger *slog.Logger
}

func New(db database.Connector, opts Options, logger *slog.Logger) *Executor {
	return &Executor{db: db, opts: opts, logger: logger}
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Execute never returns an error: database failures become a single error
// record so callers can tell "no rows" from "failed".
func (e *Executor) Execute(ctx context.Context, query guard.GuardedQuery) Result {
	start := time.Now()
	if query.IsZero() {
		return e.fail(ctx, query, errors.New("query has not passed the query guard"), start)
	}

	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}

	var result Result
	err := database.WithConn(ctx, e.db, func(conn *sql.Conn) error {
		var q queryer = conn
		if e.opts.ReadOnlyTx {
			tx, err := conn.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
			if err != nil {
				return fmt.Errorf("begin read-only transaction: %w", err)
			}
			defer func() { _ = tx.Rollback() }()
			q = tx
		}

		rows, err := q.QueryContext(ctx, query.SQL())
		if err != nil {
			return err
		}
		result, err = e.collect(ctx, rows)
		return err
	})
	if err != nil {
		return e.fail(ctx, query, err, start)
	}

	observability.ObserveQueryExecution("ok", len(result), time.Since(start))
	if e.logger != nil {
		e.logger.InfoContext(ctx, "query executed",
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.Int("rows", len(result)),
			slog.String("duration", time.Since(start).String()),
		)
	}
	return result
}

func (e *Executor) collect(ctx context.Context, rows *sql.Rows) (Result, error) {
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}
	numeric := make([]bool, len(columns))
	if types, err := rows.ColumnTypes(); err == nil {
		for i, columnType := range types {
			numeric[i] = isDecimalType(columnType.DatabaseTypeName())
		}
	}

	result := make(Result, 0)
	for rows.Next() {
		if e.opts.MaxRows > 0 && len(result) >= e.opts.MaxRows {
			if e.logger != nil {
				e.logger.WarnContext(ctx, "query result truncated",
					slog.String("trace_id", observability.TraceIDFromContext(ctx)),
					slog.Int("max_rows", e.opts.MaxRows),
				)
			}
			break
		}
		values := make([]any, len(columns))
		targets := make([]any, len(columns))
		for i := range values {
			targets[i] = &values[i]
		}
		if err := rows.Scan(targets...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		record := make(Record, len(columns))
		for i, column := range columns {
			record[column] = normalizeValue(values[i], numeric[i])
		}
		result = append(result, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return result, nil
}

func (e *Executor) fail(ctx context.Context, query guard.GuardedQuery, err error, start time.Time) Result {
	observability.ObserveQueryExecution("error", -1, time.Since(start))
	if e.logger != nil {
		e.logger.ErrorContext(ctx, "query execution failed",
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.String("sql", query.SQL()),
			slog.Any("error", err),
		)
	}
	return ErrorResult(err)
}

func isDecimalType(name string) bool {
	name = strings.ToUpper(strings.TrimSpace(name))
	switch {
	case strings.HasPrefix(name, "NUMERIC"), strings.HasPrefix(name, "DECIMAL"):
		return true
	case name == "NEWDECIMAL", name == "MONEY", name == "SMALLMONEY":
		return true
	default:
		return false
	}
}

func normalizeValue(value any, numeric bool) any {
	if numeric {
		switch typed := value.(type) {
		case string:
			if d, err := decimal.NewFromString(typed); err == nil {
				return d
			}
		case []byte:
			if d, err := decimal.NewFromString(string(typed)); err == nil {
				return d
			}
		case float64:
			return decimal.NewFromFloat(typed)
		case int64:
			return decimal.NewFromInt(typed)
		}
	}
	if raw, ok := value.([]byte); ok {
		return string(raw)
	}
	return value
}
