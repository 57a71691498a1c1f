package dbanalystctl

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/pterm/pterm"
)

// listKeys are the response fields rendered as the table body, in order of
// preference.
var listKeys = []string{"rows", "entries", "documents", "columns", "tables", "schemas"}

func render(w io.Writer, format string, body []byte) error {
	if format == OutputTable {
		return renderTable(w, body)
	}
	if pretty, ok := prettyJSON(body); ok {
		_, err := fmt.Fprintln(w, pretty)
		return err
	}
	if len(body) > 0 {
		_, err := fmt.Fprintln(w, string(body))
		return err
	}
	return nil
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func renderTable(w io.Writer, body []byte) error {
	var value any
	if err := json.Unmarshal(body, &value); err != nil {
		_, err := fmt.Fprintln(w, strings.TrimSpace(string(body)))
		return err
	}

	object, isObject := value.(map[string]any)
	if !isObject {
		return writeTable(w, tableData(value))
	}

	if reply, ok := object["reply"].(string); ok && reply != "" {
		_, _ = fmt.Fprintln(w, reply)
		if state, ok := object["state"].(string); ok {
			_, _ = fmt.Fprintln(w, color.New(color.Faint).Sprint("state: "+state))
		}
		return nil
	}
	for _, key := range listKeys {
		if list, ok := object[key].([]any); ok {
			return writeTable(w, tableData(list))
		}
	}

	keys := make([]string, 0, len(object))
	for key := range object {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	data := pterm.TableData{{"field", "value"}}
	for _, key := range keys {
		data = append(data, []string{key, cell(object[key])})
	}
	return writeTable(w, data)
}

// tableData turns a list of objects into a header row plus one row per object.
// Lists of scalars become a single "value" column.
func tableData(value any) pterm.TableData {
	list, ok := value.([]any)
	if !ok {
		return pterm.TableData{{"value"}, {cell(value)}}
	}

	seen := map[string]struct{}{}
	headers := make([]string, 0)
	for _, item := range list {
		record, ok := item.(map[string]any)
		if !ok {
			continue
		}
		for key := range record {
			if _, dup := seen[key]; !dup {
				seen[key] = struct{}{}
				headers = append(headers, key)
			}
		}
	}
	sort.Strings(headers)

	if len(headers) == 0 {
		data := pterm.TableData{{"value"}}
		for _, item := range list {
			data = append(data, []string{cell(item)})
		}
		return data
	}

	data := pterm.TableData{headers}
	for _, item := range list {
		record, _ := item.(map[string]any)
		row := make([]string, len(headers))
		for i, header := range headers {
			row[i] = cell(record[header])
		}
		data = append(data, row)
	}
	return data
}

func writeTable(w io.Writer, data pterm.TableData) error {
	if len(data) <= 1 {
		_, err := fmt.Fprintln(w, "(no rows)")
		return err
	}
	rendered, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return fmt.Errorf("render table: %w", err)
	}
	_, err = fmt.Fprintln(w, rendered)
	return err
}

func cell(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return typed
	case float64, bool:
		return fmt.Sprint(typed)
	default:
		encoded, err := json.Marshal(typed)
		if err != nil {
			return fmt.Sprint(typed)
		}
		return string(encoded)
	}
}
