package nl2sql

import (
	"strings"
	"unicode"
)

const InvalidRequest = "INVALID_REQUEST"

// Mutating verbs are accepted here so that the query guard, not the parser,
// is what rejects them.
var statementVerbs = map[string]struct{}{
	"SELECT": {}, "WITH": {}, "SHOW": {}, "EXPLAIN": {}, "DESCRIBE": {}, "DESC": {},
	"VALUES": {}, "TABLE": {}, "INSERT": {}, "UPDATE": {}, "DELETE": {}, "MERGE": {},
	"DROP": {}, "CREATE": {}, "ALTER": {}, "TRUNCATE": {}, "GRANT": {}, "REVOKE": {},
	"REPLACE": {}, "CALL": {}, "EXEC": {}, "EXECUTE": {},
}

// ParseGeneratedSQL strips markdown fences from model output and reports
// whether what remains is SQL. The INVALID_REQUEST sentinel and prose both
// report false.
func ParseGeneratedSQL(output string) (string, bool) {
	sql := stripMarkdownSQL(output)
	if sql == "" {
		return "", false
	}
	if strings.EqualFold(strings.Trim(sql, `'". `), InvalidRequest) {
		return "", false
	}
	if _, ok := statementVerbs[strings.ToUpper(firstWord(sql))]; !ok {
		return "", false
	}
	return sql, true
}

func firstWord(sql string) string {
	trimmed := strings.TrimLeft(sql, "( \t\r\n")
	end := strings.IndexFunc(trimmed, func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	if end < 0 {
		return trimmed
	}
	return trimmed[:end]
}

func stripMarkdownSQL(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```")
		if len(trimmed) >= 3 && strings.EqualFold(trimmed[:3], "sql") {
			trimmed = trimmed[3:]
		}
		trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
		return strings.TrimSpace(trimmed)
	}
	return trimmed
}
