package executor

import (
	"encoding/json"
	"sort"

	"github.com/shopspring/decimal"
)

const ErrorKey = "error"

const errorPrefix = "Error executing SQL query: "

// Record maps column names to values. Decimal values keep full precision in
// memory and become JSON numbers only when marshalled.
type Record map[string]any

func (r Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r))
	for key, value := range r {
		out[key] = jsonValue(value)
	}
	return json.Marshal(out)
}

func jsonValue(value any) any {
	switch typed := value.(type) {
	case decimal.Decimal:
		return typed.InexactFloat64()
	case *decimal.Decimal:
		if typed == nil {
			return nil
		}
		return typed.InexactFloat64()
	case decimal.NullDecimal:
		if !typed.Valid {
			return nil
		}
		return typed.Decimal.InexactFloat64()
	case []byte:
		return string(typed)
	default:
		return value
	}
}

// Result is either the materialized rows (possibly none) or a single error
// record.
type Result []Record

func (r Result) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]Record(r))
}

// failure marks the message of an error record so a real row with a single
// string column named error is not mistaken for one. It encodes as a plain
// JSON string.
type failure string

func ErrorResult(err error) Result {
	return Result{{ErrorKey: failure(errorPrefix + err.Error())}}
}

func (r Result) Failed() bool {
	if len(r) != 1 || len(r[0]) != 1 {
		return false
	}
	_, ok := r[0][ErrorKey].(failure)
	return ok
}

func (r Result) Err() string {
	if !r.Failed() {
		return ""
	}
	return string(r[0][ErrorKey].(failure))
}

// Columns returns the keys of the first record in sorted order.
func (r Result) Columns() []string {
	if len(r) == 0 {
		return nil
	}
	columns := make([]string, 0, len(r[0]))
	for key := range r[0] {
		columns = append(columns, key)
	}
	sort.Strings(columns)
	return columns
}
