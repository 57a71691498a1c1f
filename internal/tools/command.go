package tools

import (
	"strings"
)

type Kind string

const (
	KindListSchemas Kind = "list_schemas"
	KindListTables  Kind = "list_tables"
	KindFetchSchema Kind = "fetch_schema"
	KindQuery       Kind = "query"
	KindInvalid     Kind = "invalid_request"
)

// Command is the closed set of actions a planner may choose.
type Command struct {
	Kind   Kind   `json:"kind"`
	Schema string `json:"schema,omitempty"`
	Table  string `json:"table,omitempty"`
}

func (c Command) Discovery() bool {
	switch c.Kind {
	case KindListSchemas, KindListTables, KindFetchSchema:
		return true
	default:
		return false
	}
}

// String renders the command in the line format accepted by ParseCommand.
func (c Command) String() string {
	switch c.Kind {
	case KindListSchemas:
		return "LIST_SCHEMAS"
	case KindListTables:
		return strings.TrimSpace("LIST_TABLES " + c.Schema)
	case KindFetchSchema:
		if c.Schema == "" {
			return "DESCRIBE_TABLE " + c.Table
		}
		return "DESCRIBE_TABLE " + c.Schema + "." + c.Table
	case KindQuery:
		return strings.TrimSpace("QUERY " + c.Schema)
	default:
		return "INVALID_REQUEST"
	}
}

// ParseCommand reads the first non-empty line of text. Anything that does not
// match one of the command formats becomes an invalid_request command.
//
//	LIST_SCHEMAS
//	LIST_TABLES [schema]
//	DESCRIBE_TABLE [schema.]table
//	QUERY [schema]
//	INVALID_REQUEST
func ParseCommand(text string) Command {
	line := firstLine(strings.Trim(strings.TrimSpace(text), "`"))
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{Kind: KindInvalid}
	}
	verb := strings.ToUpper(strings.Trim(fields[0], ":"))
	args := fields[1:]

	switch verb {
	case "LIST_SCHEMAS":
		if len(args) != 0 {
			break
		}
		return Command{Kind: KindListSchemas}
	case "LIST_TABLES":
		if len(args) > 1 {
			break
		}
		return Command{Kind: KindListTables, Schema: cleanIdent(at(args, 0))}
	case "DESCRIBE_TABLE":
		if len(args) != 1 {
			break
		}
		schemaName, table := splitQualified(args[0])
		if table == "" {
			break
		}
		return Command{Kind: KindFetchSchema, Schema: schemaName, Table: table}
	case "QUERY":
		if len(args) > 1 {
			break
		}
		return Command{Kind: KindQuery, Schema: cleanIdent(at(args, 0))}
	}
	return Command{Kind: KindInvalid}
}

func firstLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func at(values []string, index int) string {
	if index < len(values) {
		return values[index]
	}
	return ""
}

func splitQualified(value string) (string, string) {
	value = cleanIdent(value)
	if idx := strings.LastIndex(value, "."); idx >= 0 {
		return cleanIdent(value[:idx]), cleanIdent(value[idx+1:])
	}
	return "", value
}

func cleanIdent(value string) string {
	return strings.Trim(strings.TrimSpace(value), `"'`+"`;")
}
