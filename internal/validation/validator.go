package validation

import (
	"context"
	"log/slog"
	"regexp"

	"github.com/dbanalyst/dbanalyst/internal/observability"
)

type Category string

const (
	CategorySQLMutation     Category = "sql-mutation"
	CategoryPromptInjection Category = "prompt-injection"
)

// Pattern is an immutable deny rule. Expressions are always matched
// case-insensitively.
type Pattern struct {
	Category Category
	Expr     *regexp.Regexp
}

func (p Pattern) String() string {
	if p.Expr == nil {
		return ""
	}
	return p.Expr.String()
}

var defaultRules = []struct {
	category Category
	expr     string
}{
	{CategorySQLMutation, `\b(delete|update|insert|drop|alter|truncate|grant|revoke)\b`},

	{CategoryPromptInjection, `ignore\s+(all\s+)?previous\s+instructions`},
	{CategoryPromptInjection, `act\s+as`},
	{CategoryPromptInjection, `roleplay`},
	{CategoryPromptInjection, `reveal\s+your\s+instructions`},

	{CategoryPromptInjection, `ignore\s+as\s+instru[cç][oõ]es\s+anteriores`},
	{CategoryPromptInjection, `aja\s+como`},
	{CategoryPromptInjection, `agir\s+como`},
	{CategoryPromptInjection, `interprete\s+o\s+papel\s+de`},
	{CategoryPromptInjection, `revele\s+suas\s+instru[cç][oõ]es`},
}

func DefaultPatterns() []Pattern {
	patterns := make([]Pattern, 0, len(defaultRules))
	for _, rule := range defaultRules {
		patterns = append(patterns, Pattern{Category: rule.category, Expr: compile(rule.expr)})
	}
	return patterns
}

func compile(expr string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)` + expr)
}

type Validator struct {
	patterns []Pattern
	logger   *slog.Logger
}

// New builds a validator over the default patterns followed by extra.
func New(logger *slog.Logger, extra ...Pattern) *Validator {
	patterns := DefaultPatterns()
	for _, pattern := range extra {
		if pattern.Expr == nil {
			continue
		}
		patterns = append(patterns, pattern)
	}
	return &Validator{patterns: patterns, logger: logger}
}

func (v *Validator) Patterns() []Pattern {
	out := make([]Pattern, len(v.patterns))
	copy(out, v.patterns)
	return out
}

// Check returns the first pattern matching text.
func (v *Validator) Check(text string) (Pattern, bool) {
	return v.CheckCategories(text)
}

// CheckCategories is Check restricted to the given categories. No categories
// means all of them.
func (v *Validator) CheckCategories(text string, categories ...Category) (Pattern, bool) {
	if text == "" {
		return Pattern{}, false
	}
	for _, pattern := range v.patterns {
		if len(categories) > 0 && !containsCategory(categories, pattern.Category) {
			continue
		}
		if pattern.Expr.MatchString(text) {
			return pattern, true
		}
	}
	return Pattern{}, false
}

func (v *Validator) IsSafe(ctx context.Context, text string) bool {
	return v.IsSafeFor(ctx, text)
}

func (v *Validator) IsSafeFor(ctx context.Context, text string, categories ...Category) bool {
	pattern, matched := v.CheckCategories(text, categories...)
	if !matched {
		return true
	}
	observability.IncrementValidationRejection(string(pattern.Category))
	if v.logger != nil {
		v.logger.WarnContext(ctx, "request rejected by validator",
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.String("category", string(pattern.Category)),
			slog.String("pattern", pattern.String()),
		)
	}
	return false
}

func containsCategory(categories []Category, category Category) bool {
	for _, candidate := range categories {
		if candidate == category {
			return true
		}
	}
	return false
}
