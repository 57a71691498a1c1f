package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dbanalyst/dbanalyst/internal/database"
	"github.com/dbanalyst/dbanalyst/internal/guard"
	"github.com/dbanalyst/dbanalyst/internal/llm"
	"github.com/dbanalyst/dbanalyst/internal/nl2sql"
	"github.com/dbanalyst/dbanalyst/internal/observability"
	"github.com/dbanalyst/dbanalyst/internal/schema"
	"github.com/dbanalyst/dbanalyst/internal/store"
	"github.com/dbanalyst/dbanalyst/internal/tools"
)

type Validator interface {
	IsSafe(ctx context.Context, text string) bool
}

type Discovery interface {
	Dispatch(ctx context.Context, cmd tools.Command) (any, error)
}

type SchemaSource interface {
	Dialect() database.Dialect
	ListTables(ctx context.Context, schemaName string) ([]string, error)
	FetchSchema(ctx context.Context, table, schemaName string) (schema.Descriptor, error)
}

type Auditor interface {
	RecordAudit(ctx context.Context, entry store.AuditEntry) (store.AuditEntry, error)
}

type Dependencies struct {
	Validator        Validator
	Planner          nl2sql.Planner
	Generator        nl2sql.Generator
	Presenter        nl2sql.Presenter
	Discovery        Discovery
	Schema           SchemaSource
	Guard            tools.QueryGuard
	Executor         tools.QueryExecutor
	Auditor          Auditor
	Logger           *slog.Logger
	MaxContextTables int
}

type Orchestrator struct {
	deps Dependencies
}

func New(deps Dependencies) *Orchestrator {
	if deps.MaxContextTables <= 0 {
		deps.MaxContextTables = 20
	}
	return &Orchestrator{deps: deps}
}

func (o *Orchestrator) Run(ctx context.Context, text string) (Outcome, error) {
	return o.RunForTenant(ctx, "", text)
}

// RunForTenant drives one request to a terminal state. A non-nil error means
// the run stopped early; a security violation is returned as
// *guard.SecurityViolation alongside the partial outcome.
func (o *Orchestrator) RunForTenant(ctx context.Context, tenantID, text string) (out Outcome, err error) {
	start := time.Now()
	out = Outcome{Request: text}
	out.enter(StateReceived)
	defer func() {
		o.record(ctx, tenantID, out, err, time.Since(start))
	}()

	if !o.deps.Validator.IsSafe(ctx, text) {
		out.reject(BlockedMessage)
		return out, nil
	}
	out.enter(StateValidated)

	cmd, err := o.deps.Planner.Plan(ctx, nl2sql.PlanRequest{
		Text:          text,
		DefaultSchema: o.deps.Schema.Dialect().DefaultSchema,
	})
	if err != nil {
		return out, err
	}
	out.Command = cmd

	switch {
	case cmd.Kind == tools.KindInvalid:
		out.reject(InvalidMessage)
		return out, nil
	case cmd.Discovery():
		out.enter(StateDiscovery)
		payload, err := o.deps.Discovery.Dispatch(ctx, cmd)
		if err != nil {
			return out, err
		}
		out.Discovery = payload
		return o.finish(ctx, out)
	default:
		return o.query(ctx, out)
	}
}

func (o *Orchestrator) query(ctx context.Context, out Outcome) (Outcome, error) {
	tables, err := o.schemaContext(ctx, out.Command.Schema)
	if err != nil {
		return out, err
	}

	raw, err := o.deps.Generator.Generate(ctx, nl2sql.GenerateRequest{
		Text:    out.Request,
		Dialect: o.deps.Schema.Dialect().Name,
		Tables:  tables,
	})
	if err != nil {
		return out, err
	}
	out.enter(StateSQLGenerated)

	sql, ok := nl2sql.ParseGeneratedSQL(raw)
	if !ok {
		if o.deps.Logger != nil {
			o.deps.Logger.WarnContext(ctx, "generator declined the request",
				slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			)
		}
		out.reject(InvalidMessage)
		return out, nil
	}
	out.SQL = sql

	guarded, err := o.deps.Guard.AssertReadOnly(ctx, sql)
	if err != nil {
		return out, err
	}
	out.enter(StateGuarded)

	out.Rows = o.deps.Executor.Execute(ctx, guarded)
	out.enter(StateExecuted)
	return o.finish(ctx, out)
}

// schemaContext describes up to MaxContextTables tables of schemaName.
func (o *Orchestrator) schemaContext(ctx context.Context, schemaName string) ([]schema.Descriptor, error) {
	names, err := o.deps.Schema.ListTables(ctx, schemaName)
	if err != nil {
		return nil, fmt.Errorf("load schema context: %w", err)
	}
	if len(names) > o.deps.MaxContextTables {
		names = names[:o.deps.MaxContextTables]
	}
	descriptors := make([]schema.Descriptor, 0, len(names))
	for _, name := range names {
		descriptor, err := o.deps.Schema.FetchSchema(ctx, name, schemaName)
		if errors.Is(err, schema.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load schema context: %w", err)
		}
		descriptors = append(descriptors, descriptor)
	}
	return descriptors, nil
}

func (o *Orchestrator) finish(ctx context.Context, out Outcome) (Outcome, error) {
	if strings.Contains(strings.ToLower(out.Request), "json") {
		out.enter(StateRaw)
		return out, nil
	}

	payload, err := json.Marshal(out.Data())
	if err != nil {
		return out, fmt.Errorf("encode result for presentation: %w", err)
	}
	answer, err := o.deps.Presenter.Present(ctx, out.Request, string(payload))
	if err != nil {
		return out, err
	}
	out.Answer = answer
	out.enter(StatePresented)
	return out, nil
}

// Respond runs text and always returns something displayable.
func (o *Orchestrator) Respond(ctx context.Context, text string) string {
	out, err := o.Run(ctx, text)
	if err != nil {
		return DescribeError(err)
	}
	return out.Payload()
}

// IsOperational also covers guard rejections, which are reported with the
// same wording as driver failures.
func IsOperational(err error) bool {
	return database.IsOperational(err) || llm.IsTransport(err) || errors.Is(err, guard.ErrSecurityViolation)
}

// DescribeError is the terse user-facing form of a failed run.
func DescribeError(err error) string {
	if IsOperational(err) {
		return "A database error occurred: " + err.Error()
	}
	return "An unexpected error occurred: " + err.Error()
}

func (o *Orchestrator) record(ctx context.Context, tenantID string, out Outcome, runErr error, elapsed time.Duration) {
	label := string(out.State)
	entry := store.AuditEntry{
		TraceID:  observability.TraceIDFromContext(ctx),
		TenantID: tenantID,
		Request:  out.Request,
		State:    string(out.State),
		SQL:      out.SQL,
		Duration: elapsed,
	}
	if out.Command.Kind != "" {
		entry.Command = out.Command.String()
	}
	if out.Executed() && !out.Rows.Failed() {
		entry.RowCount = len(out.Rows)
	}
	switch {
	case runErr != nil:
		entry.Error = runErr.Error()
		label = "error"
		if errors.Is(runErr, guard.ErrSecurityViolation) {
			label = "security_violation"
		}
		o.logRunError(ctx, runErr)
	case out.Rows.Failed():
		entry.Error = out.Rows.Err()
	case out.State == StateRejected:
		entry.Error = out.Message
	}
	observability.IncrementOrchestratorOutcome(label)

	if o.deps.Logger != nil {
		o.deps.Logger.InfoContext(ctx, "request finished",
			slog.String("trace_id", entry.TraceID),
			slog.String("state", string(out.State)),
			slog.String("command", entry.Command),
			slog.String("duration", elapsed.String()),
		)
	}

	if o.deps.Auditor == nil {
		return
	}
	if _, err := o.deps.Auditor.RecordAudit(context.WithoutCancel(ctx), entry); err != nil && o.deps.Logger != nil {
		o.deps.Logger.ErrorContext(ctx, "record audit entry failed",
			slog.String("trace_id", entry.TraceID),
			slog.Any("error", err),
		)
	}
}

func (o *Orchestrator) logRunError(ctx context.Context, err error) {
	if o.deps.Logger == nil {
		return
	}
	attrs := []any{
		slog.String("trace_id", observability.TraceIDFromContext(ctx)),
		slog.Any("error", err),
	}
	switch {
	case errors.Is(err, guard.ErrSecurityViolation):
		o.deps.Logger.WarnContext(ctx, "generated sql rejected by query guard", attrs...)
	case IsOperational(err):
		o.deps.Logger.ErrorContext(ctx, "operational error", attrs...)
	default:
		o.deps.Logger.ErrorContext(ctx, "unexpected error", attrs...)
	}
}
