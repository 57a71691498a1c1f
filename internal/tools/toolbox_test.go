package tools

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/dbanalyst/dbanalyst/internal/database"
	"github.com/dbanalyst/dbanalyst/internal/executor"
	"github.com/dbanalyst/dbanalyst/internal/guard"
	"github.com/dbanalyst/dbanalyst/internal/schema"
)

func TestFetchTableSchemaFormatsColumns(t *testing.T) {
	db, mock := newSQLMock(t)
	toolbox := newToolbox(t, db, &fakeExecutor{})

	mock.ExpectQuery(regexp.QuoteMeta("FROM information_schema.columns")).
		WithArgs("public", "items").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type"}).
			AddRow("id", "integer").
			AddRow("name", "text"))

	got := toolbox.FetchTableSchema(context.Background(), "items", "")
	if got != "- id (integer)\n- name (text)" {
		t.Fatalf("FetchTableSchema() = %q", got)
	}
	assertSQLMock(t, mock)
}

func TestFetchTableSchemaReportsMissingTable(t *testing.T) {
	db, mock := newSQLMock(t)
	toolbox := newToolbox(t, db, &fakeExecutor{})

	mock.ExpectQuery(regexp.QuoteMeta("FROM information_schema.columns")).
		WithArgs("public", "x").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type"}))

	got := toolbox.FetchTableSchema(context.Background(), "x", "")
	if got != "Error: Table 'public.x' not found." {
		t.Fatalf("FetchTableSchema() = %q", got)
	}
	assertSQLMock(t, mock)
}

func TestDiscoveryToolsReportDatabaseErrors(t *testing.T) {
	db, mock := newSQLMock(t)
	toolbox := newToolbox(t, db, &fakeExecutor{})

	mock.ExpectQuery(regexp.QuoteMeta("FROM information_schema.schemata")).
		WillReturnError(errors.New("connection refused"))
	mock.ExpectQuery(regexp.QuoteMeta("FROM information_schema.tables")).
		WithArgs("public").
		WillReturnError(errors.New("connection refused"))
	mock.ExpectQuery(regexp.QuoteMeta("FROM information_schema.columns")).
		WithArgs("public", "items").
		WillReturnError(errors.New("connection refused"))

	for _, got := range []any{
		toolbox.ListSchemas(context.Background()),
		toolbox.ListTables(context.Background(), ""),
		toolbox.FetchTableSchema(context.Background(), "items", ""),
	} {
		text, ok := got.(string)
		if !ok || !strings.HasPrefix(text, "Database error: ") || !strings.Contains(text, "connection refused") {
			t.Fatalf("tool result = %#v, want database error string", got)
		}
	}
	assertSQLMock(t, mock)
}

func TestDispatchRoutesDiscoveryCommands(t *testing.T) {
	db, mock := newSQLMock(t)
	toolbox := newToolbox(t, db, &fakeExecutor{})

	mock.ExpectQuery(regexp.QuoteMeta("FROM information_schema.schemata")).
		WillReturnRows(sqlmock.NewRows([]string{"schema_name"}).AddRow("public").AddRow("sales"))
	mock.ExpectQuery(regexp.QuoteMeta("FROM information_schema.tables")).
		WithArgs("sales").
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("orders"))

	got, err := toolbox.Dispatch(context.Background(), Command{Kind: KindListSchemas})
	if err != nil || !reflect.DeepEqual(got, []string{"public", "sales"}) {
		t.Fatalf("Dispatch(list_schemas) = %#v, %v", got, err)
	}
	got, err = toolbox.Dispatch(context.Background(), Command{Kind: KindListTables, Schema: "sales"})
	if err != nil || !reflect.DeepEqual(got, []string{"orders"}) {
		t.Fatalf("Dispatch(list_tables) = %#v, %v", got, err)
	}
	if _, err := toolbox.Dispatch(context.Background(), Command{Kind: KindQuery}); err == nil {
		t.Fatal("Dispatch(query) expected error")
	}
	assertSQLMock(t, mock)
}

func TestExecuteSQLQueryRejectsMutationsBeforeExecution(t *testing.T) {
	db, mock := newSQLMock(t)
	exec := &fakeExecutor{}
	toolbox := newToolbox(t, db, exec)

	_, err := toolbox.ExecuteSQLQuery(context.Background(), "SeLeCt * from t; DROP table x")
	var violation *guard.SecurityViolation
	if !errors.As(err, &violation) {
		t.Fatalf("ExecuteSQLQuery() error = %v, want *guard.SecurityViolation", err)
	}
	if exec.calls != 0 {
		t.Fatalf("executor calls = %d, want 0", exec.calls)
	}
	assertSQLMock(t, mock)
}

func TestExecuteSQLQueryRunsGuardedQuery(t *testing.T) {
	db, _ := newSQLMock(t)
	exec := &fakeExecutor{result: executor.Result{{"count": int64(5)}}}
	toolbox := newToolbox(t, db, exec)

	result, err := toolbox.ExecuteSQLQuery(context.Background(), "SELECT COUNT(*) FROM items")
	if err != nil {
		t.Fatalf("ExecuteSQLQuery() error = %v", err)
	}
	if exec.lastSQL != "SELECT COUNT(*) FROM items" {
		t.Fatalf("executed sql = %q", exec.lastSQL)
	}
	if len(result) != 1 || result[0]["count"] != int64(5) {
		t.Fatalf("result = %#v", result)
	}
}

type fakeExecutor struct {
	calls   int
	lastSQL string
	result  executor.Result
}

func (f *fakeExecutor) Execute(_ context.Context, query guard.GuardedQuery) executor.Result {
	f.calls++
	f.lastSQL = query.SQL()
	return f.result
}

func newToolbox(t *testing.T, db *sql.DB, exec QueryExecutor) *Toolbox {
	t.Helper()
	dialect, err := database.DialectFor("postgres")
	if err != nil {
		t.Fatalf("DialectFor() error = %v", err)
	}
	return New(schema.NewInspector(db, dialect, nil), guard.New(guard.Options{}), exec)
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
