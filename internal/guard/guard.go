package guard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/dbanalyst/dbanalyst/internal/observability"
	"github.com/dbanalyst/dbanalyst/internal/sqlparse"
)

var (
	ErrSecurityViolation = errors.New("security violation")
	ErrEmptyQuery        = errors.New("sql query is empty")
)

var ForbiddenKeywords = []string{
	"INSERT", "UPDATE", "DELETE", "DROP", "CREATE", "ALTER", "TRUNCATE", "GRANT", "REVOKE",
}

const (
	ReasonKeyword   = "keyword"
	ReasonStatement = "statement"
)

type SecurityViolation struct {
	Reason  string
	Keyword string
	Kind    sqlparse.Kind
}

func (e *SecurityViolation) Error() string {
	if e.Reason == ReasonStatement {
		return fmt.Sprintf("security violation: %s statement is not read-only", e.Kind)
	}
	return fmt.Sprintf("security violation: forbidden keyword %s in SQL query", e.Keyword)
}

func (e *SecurityViolation) Is(target error) bool {
	return target == ErrSecurityViolation
}

type MatchMode string

const (
	// MatchSubstring rejects a keyword anywhere, including inside identifiers
	// such as updated_at.
	MatchSubstring MatchMode = "substring"
	MatchWord      MatchMode = "word"
)

type StatementClassifier interface {
	Classify(sql string) ([]sqlparse.Kind, error)
}

type Options struct {
	MatchMode  MatchMode
	Classifier StatementClassifier
	Logger     *slog.Logger
}

// GuardedQuery can only be obtained from Guard.AssertReadOnly.
type GuardedQuery struct {
	sql string
}

func (q GuardedQuery) SQL() string {
	return q.sql
}

func (q GuardedQuery) IsZero() bool {
	return q.sql == ""
}

type Guard struct {
	mode       MatchMode
	words      []*regexp.Regexp
	classifier StatementClassifier
	logger     *slog.Logger
}

func New(opts Options) *Guard {
	mode := opts.MatchMode
	if mode != MatchWord {
		mode = MatchSubstring
	}
	g := &Guard{mode: mode, classifier: opts.Classifier, logger: opts.Logger}
	if mode == MatchWord {
		g.words = make([]*regexp.Regexp, 0, len(ForbiddenKeywords))
		for _, keyword := range ForbiddenKeywords {
			g.words = append(g.words, regexp.MustCompile(`\b`+keyword+`\b`))
		}
	}
	return g
}

func (g *Guard) Mode() MatchMode {
	return g.mode
}

// AssertReadOnly returns sql unchanged as a GuardedQuery, or a
// *SecurityViolation. The statement classifier can only add rejections.
func (g *Guard) AssertReadOnly(ctx context.Context, sql string) (GuardedQuery, error) {
	if strings.TrimSpace(sql) == "" {
		return GuardedQuery{}, ErrEmptyQuery
	}

	if keyword, found := g.findKeyword(strings.ToUpper(sql)); found {
		return GuardedQuery{}, g.reject(ctx, sql, &SecurityViolation{Reason: ReasonKeyword, Keyword: keyword})
	}

	if g.classifier != nil {
		kinds, err := g.classifier.Classify(sql)
		if err != nil {
			if g.logger != nil {
				g.logger.DebugContext(ctx, "statement classifier skipped",
					slog.String("trace_id", observability.TraceIDFromContext(ctx)),
					slog.Any("error", err),
				)
			}
		} else {
			for _, kind := range kinds {
				if !kind.ReadOnly() {
					return GuardedQuery{}, g.reject(ctx, sql, &SecurityViolation{Reason: ReasonStatement, Kind: kind})
				}
			}
		}
	}

	return GuardedQuery{sql: sql}, nil
}

func (g *Guard) findKeyword(upper string) (string, bool) {
	if g.mode == MatchWord {
		for i, pattern := range g.words {
			if pattern.MatchString(upper) {
				return ForbiddenKeywords[i], true
			}
		}
		return "", false
	}
	for _, keyword := range ForbiddenKeywords {
		if strings.Contains(upper, keyword) {
			return keyword, true
		}
	}
	return "", false
}

func (g *Guard) reject(ctx context.Context, sql string, violation *SecurityViolation) error {
	observability.IncrementGuardViolation(violation.Reason)
	if g.logger != nil {
		g.logger.WarnContext(ctx, "sql rejected by query guard",
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.String("reason", violation.Reason),
			slog.String("keyword", violation.Keyword),
			slog.String("kind", string(violation.Kind)),
			slog.String("sql", sql),
		)
	}
	return violation
}
