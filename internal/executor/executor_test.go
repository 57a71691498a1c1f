package executor

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"reflect"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"

	"github.com/dbanalyst/dbanalyst/internal/guard"
)

func TestExecuteMaterializesRowsAndDecimals(t *testing.T) {
	db, mock := newSQLMock(t)
	exec := New(db, Options{}, nil)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT name, price FROM items")).
		WillReturnRows(mock.NewRowsWithColumnDefinition(
			mock.NewColumn("name").OfType("TEXT", ""),
			mock.NewColumn("price").OfType("NUMERIC", ""),
		).AddRow("widget", "12.50").AddRow("gadget", "3.10"))

	result := exec.Execute(context.Background(), guarded(t, "SELECT name, price FROM items"))
	if result.Failed() {
		t.Fatalf("Execute() failed: %s", result.Err())
	}
	if len(result) != 2 {
		t.Fatalf("len(result) = %d, want 2", len(result))
	}
	price, ok := result[0]["price"].(decimal.Decimal)
	if !ok {
		t.Fatalf("price type = %T, want decimal.Decimal", result[0]["price"])
	}
	if !price.Equal(decimal.RequireFromString("12.5")) {
		t.Fatalf("price = %s", price)
	}
	if result[1]["name"] != "gadget" {
		t.Fatalf("name = %#v", result[1]["name"])
	}

	payload, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	if string(payload) != `[{"name":"widget","price":12.5},{"name":"gadget","price":3.1}]` {
		t.Fatalf("payload = %s", payload)
	}
	assertSQLMock(t, mock)
	assertReleased(t, db)
}

func TestExecuteReturnsEmptyResultForNoRows(t *testing.T) {
	db, mock := newSQLMock(t)
	exec := New(db, Options{}, nil)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM items WHERE 1=0")).
		WillReturnRows(mock.NewRowsWithColumnDefinition(mock.NewColumn("id").OfType("INT8", int64(0))))

	result := exec.Execute(context.Background(), guarded(t, "SELECT id FROM items WHERE 1=0"))
	if result == nil || len(result) != 0 || result.Failed() {
		t.Fatalf("result = %#v, want empty non-nil", result)
	}
	payload, _ := json.Marshal(result)
	if string(payload) != "[]" {
		t.Fatalf("payload = %s", payload)
	}
	assertSQLMock(t, mock)
}

func TestExecuteConvertsDriverErrorToErrorRecord(t *testing.T) {
	db, mock := newSQLMock(t)
	exec := New(db, Options{}, nil)

	mock.ExpectQuery(regexp.QuoteMeta("SELEC name FROM items")).
		WillReturnError(errors.New(`syntax error at or near "SELEC"`))

	result := exec.Execute(context.Background(), guarded(t, "SELEC name FROM items"))
	if !result.Failed() {
		t.Fatalf("result = %#v, want error record", result)
	}
	if !strings.HasPrefix(result.Err(), "Error executing SQL query: ") {
		t.Fatalf("Err() = %q", result.Err())
	}
	if !strings.Contains(result.Err(), "SELEC") {
		t.Fatalf("Err() = %q, want driver message", result.Err())
	}
	assertSQLMock(t, mock)
	assertReleased(t, db)
}

func TestExecuteUsesReadOnlyTransactionWhenEnabled(t *testing.T) {
	db, mock := newSQLMock(t)
	exec := New(db, Options{ReadOnlyTx: true}, nil)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT count(*) AS count FROM orders")).
		WillReturnRows(mock.NewRowsWithColumnDefinition(mock.NewColumn("count").OfType("INT8", int64(0))).
			AddRow(int64(5)))
	mock.ExpectRollback()

	result := exec.Execute(context.Background(), guarded(t, "SELECT count(*) AS count FROM orders"))
	if result.Failed() {
		t.Fatalf("Execute() failed: %s", result.Err())
	}
	if len(result) != 1 || result[0]["count"] != int64(5) {
		t.Fatalf("result = %#v", result)
	}
	assertSQLMock(t, mock)
	assertReleased(t, db)
}

func TestExecuteRollsBackReadOnlyTransactionOnError(t *testing.T) {
	db, mock := newSQLMock(t)
	exec := New(db, Options{ReadOnlyTx: true}, nil)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM missing")).
		WillReturnError(errors.New(`relation "missing" does not exist`))
	mock.ExpectRollback()

	result := exec.Execute(context.Background(), guarded(t, "SELECT * FROM missing"))
	if !result.Failed() {
		t.Fatalf("result = %#v, want error record", result)
	}
	assertSQLMock(t, mock)
	assertReleased(t, db)
}

func TestExecuteTruncatesAtMaxRows(t *testing.T) {
	db, mock := newSQLMock(t)
	exec := New(db, Options{MaxRows: 2}, nil)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM items")).
		WillReturnRows(mock.NewRowsWithColumnDefinition(mock.NewColumn("id").OfType("INT8", int64(0))).
			AddRow(int64(1)).AddRow(int64(2)).AddRow(int64(3)))

	result := exec.Execute(context.Background(), guarded(t, "SELECT id FROM items"))
	if len(result) != 2 {
		t.Fatalf("len(result) = %d, want 2", len(result))
	}
	assertReleased(t, db)
}

func TestExecuteIsIdempotentForReadOnlyQueries(t *testing.T) {
	db, mock := newSQLMock(t)
	exec := New(db, Options{}, nil)

	for i := 0; i < 2; i++ {
		mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name FROM items")).
			WillReturnRows(mock.NewRowsWithColumnDefinition(
				mock.NewColumn("id").OfType("INT8", int64(0)),
				mock.NewColumn("name").OfType("TEXT", ""),
			).AddRow(int64(1), "widget"))
	}

	query := guarded(t, "SELECT id, name FROM items")
	first := exec.Execute(context.Background(), query)
	second := exec.Execute(context.Background(), query)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("results differ: %#v vs %#v", first, second)
	}
	assertSQLMock(t, mock)
}

func TestExecuteAppliesTimeout(t *testing.T) {
	db, mock := newSQLMock(t)
	exec := New(db, Options{Timeout: 10 * time.Millisecond}, nil)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT pg_sleep(1)")).
		WillDelayFor(time.Second).
		WillReturnRows(mock.NewRowsWithColumnDefinition(mock.NewColumn("pg_sleep").OfType("VOID", "")).AddRow(""))

	result := exec.Execute(context.Background(), guarded(t, "SELECT pg_sleep(1)"))
	if !result.Failed() {
		t.Fatalf("result = %#v, want timeout error record", result)
	}
}

func TestExecuteRejectsUnguardedQuery(t *testing.T) {
	db, mock := newSQLMock(t)
	exec := New(db, Options{}, nil)

	result := exec.Execute(context.Background(), guard.GuardedQuery{})
	if !result.Failed() {
		t.Fatalf("result = %#v, want error record", result)
	}
	assertSQLMock(t, mock)
}

func TestResultFailedRequiresSingleErrorRecord(t *testing.T) {
	tests := []struct {
		name   string
		result Result
		want   bool
	}{
		{name: "error record", result: ErrorResult(errors.New("boom")), want: true},
		{name: "empty", result: Result{}, want: false},
		{name: "regular row", result: Result{{"id": int64(1)}}, want: false},
		{name: "extra column", result: Result{{"error": "x", "id": 1}}, want: false},
		{name: "two rows", result: Result{{"error": "x"}, {"error": "y"}}, want: false},
		{name: "row with error column", result: Result{{"error": "disk full"}}, want: false},
	}
	for _, tc := range tests {
		if got := tc.result.Failed(); got != tc.want {
			t.Fatalf("%s: Failed() = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestResultColumnsAreSorted(t *testing.T) {
	result := Result{{"name": "a", "id": 1, "created_at": "x"}}
	if got := result.Columns(); !reflect.DeepEqual(got, []string{"created_at", "id", "name"}) {
		t.Fatalf("Columns() = %#v", got)
	}
	if Result(nil).Columns() != nil {
		t.Fatal("Columns() of empty result should be nil")
	}
}

func guarded(t *testing.T, sqlText string) guard.GuardedQuery {
	t.Helper()
	query, err := guard.New(guard.Options{}).AssertReadOnly(context.Background(), sqlText)
	if err != nil {
		t.Fatalf("AssertReadOnly(%q) error = %v", sqlText, err)
	}
	return query
}

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}

func assertReleased(t *testing.T, db *sql.DB) {
	t.Helper()
	if inUse := db.Stats().InUse; inUse != 0 {
		t.Fatalf("connections in use = %d, want 0", inUse)
	}
}

func TestErrorResultEncodesAsPlainRecord(t *testing.T) {
	payload, err := json.Marshal(ErrorResult(errors.New("boom")))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(payload) != `[{"error":"Error executing SQL query: boom"}]` {
		t.Fatalf("payload = %s", payload)
	}
}
