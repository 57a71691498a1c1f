package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dbanalyst/dbanalyst/internal/executor"
	"github.com/dbanalyst/dbanalyst/internal/observability"
	"github.com/dbanalyst/dbanalyst/internal/validation"
)

var DatabaseKeywords = []string{"table", "database", "sql", "customer", "order", "item", "schema"}

const NoDocumentsMessage = "Please upload and process documents before asking questions about them."

func IsDatabaseRequest(text string) bool {
	lower := strings.ToLower(text)
	for _, keyword := range DatabaseKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

type Route string

const (
	RouteDatabase  Route = "database"
	RouteDocuments Route = "documents"
)

type DocumentAnswerer interface {
	Answer(ctx context.Context, tenantID, question string) (string, error)
}

type CategoryValidator interface {
	IsSafeFor(ctx context.Context, text string, categories ...validation.Category) bool
}

type Reply struct {
	Route   Route
	Outcome Outcome
	Text    string
}

// Router sends database questions to the orchestrator and everything else to
// the document answerer.
type Router struct {
	orchestrator *Orchestrator
	documents    DocumentAnswerer
	validator    CategoryValidator
	logger       *slog.Logger
}

// NewRouter accepts a nil documents answerer when document questions are
// disabled.
func NewRouter(orchestrator *Orchestrator, documents DocumentAnswerer, validator CategoryValidator, logger *slog.Logger) *Router {
	return &Router{orchestrator: orchestrator, documents: documents, validator: validator, logger: logger}
}

func (r *Router) Handle(ctx context.Context, tenantID, text string) (Reply, error) {
	if IsDatabaseRequest(text) {
		out, err := r.orchestrator.RunForTenant(ctx, tenantID, text)
		reply := Reply{Route: RouteDatabase, Outcome: out}
		if err != nil {
			return reply, err
		}
		if out.State == StateRaw {
			reply.Text = FormatData(out.Data())
		} else {
			reply.Text = out.Payload()
		}
		return reply, nil
	}

	reply := Reply{Route: RouteDocuments, Outcome: Outcome{Request: text}}
	reply.Outcome.enter(StateReceived)
	if !r.validator.IsSafeFor(ctx, text, validation.CategoryPromptInjection) {
		reply.Outcome.reject(BlockedMessage)
		reply.Text = reply.Outcome.Payload()
		return reply, nil
	}
	reply.Outcome.enter(StateValidated)
	if r.documents == nil {
		reply.Text = NoDocumentsMessage
		return reply, nil
	}

	answer, err := r.documents.Answer(ctx, tenantID, text)
	if err != nil {
		if r.logger != nil {
			r.logger.ErrorContext(ctx, "document answer failed",
				slog.String("trace_id", observability.TraceIDFromContext(ctx)),
				slog.Any("error", err),
			)
		}
		return reply, err
	}
	reply.Outcome.Answer = answer
	reply.Outcome.enter(StatePresented)
	reply.Text = answer
	return reply, nil
}

// FormatData renders string lists as bullets, records as a markdown table and
// anything else as a fenced JSON block.
func FormatData(data any) string {
	switch typed := data.(type) {
	case string:
		return typed
	case []string:
		var b strings.Builder
		b.WriteString("Here are the results I found:\n\n")
		for i, item := range typed {
			if i > 0 {
				b.WriteString("\n")
			}
			fmt.Fprintf(&b, "- `%s`", item)
		}
		return b.String()
	case executor.Result:
		if len(typed) > 0 {
			return "Here are the results I found:\n\n" + markdownTable(typed)
		}
	}
	payload, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		payload = []byte(fmt.Sprint(data))
	}
	return "```json\n" + string(payload) + "\n```"
}

func markdownTable(result executor.Result) string {
	columns := result.Columns()
	var b strings.Builder
	b.WriteString("| " + strings.Join(escapeCells(columns), " | ") + " |\n")
	separators := make([]string, len(columns))
	for i := range separators {
		separators[i] = "---"
	}
	b.WriteString("| " + strings.Join(separators, " | ") + " |")
	for _, record := range result {
		cells := make([]string, len(columns))
		for i, column := range columns {
			cells[i] = formatCell(record[column])
		}
		b.WriteString("\n| " + strings.Join(escapeCells(cells), " | ") + " |")
	}
	return b.String()
}

func formatCell(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case decimal.Decimal:
		return typed.String()
	case []byte:
		return string(typed)
	default:
		return fmt.Sprint(typed)
	}
}

func escapeCells(cells []string) []string {
	out := make([]string, len(cells))
	for i, cell := range cells {
		out[i] = strings.ReplaceAll(strings.ReplaceAll(cell, "|", `\|`), "\n", " ")
	}
	return out
}
