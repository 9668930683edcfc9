package sqlgateway

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/querychat/querychat/internal/query"
	"github.com/querychat/querychat/internal/session"
)

func TestExecuteReturnsRowsAndClosesConnection(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	mock.ExpectQuery("SELECT SUM(SALES) FROM sales_table").
		WillReturnRows(sqlmock.NewRows([]string{"SUM(SALES)"}).AddRow(1234567.89))
	mock.ExpectClose()

	var gotDriver, gotDSN string
	gateway := New(Config{Open: func(driverName, dsn string) (*sql.DB, error) {
		gotDriver, gotDSN = driverName, dsn
		return db, nil
	}})

	result, err := gateway.Execute(context.Background(), session.Defaults(), query.Request{SQL: "SELECT SUM(SALES) FROM sales_table"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if gotDriver != "mysql" {
		t.Fatalf("driver = %q", gotDriver)
	}
	if !strings.HasPrefix(gotDSN, "root@tcp(localhost:3306)/sales_database") {
		t.Fatalf("dsn = %q", gotDSN)
	}
	if len(result.Columns) != 1 || result.Columns[0] != "SUM(SALES)" {
		t.Fatalf("Columns = %#v", result.Columns)
	}
	if got := query.FormatRows(result.Rows); got != "[(1234567.89,)]" {
		t.Fatalf("rows = %s", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet() error = %v", err)
	}
}

func TestExecuteZeroRowsClosesConnection(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	mock.ExpectQuery("SELECT X FROM sales_table WHERE YEAR_ID=1999").
		WillReturnRows(sqlmock.NewRows([]string{"X"}))
	mock.ExpectClose()

	gateway := New(Config{Open: func(string, string) (*sql.DB, error) { return db, nil }})
	result, err := gateway.Execute(context.Background(), session.Defaults(), query.Request{SQL: "SELECT X FROM sales_table WHERE YEAR_ID=1999"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(result.Rows) != 0 || !result.Empty() {
		t.Fatalf("Rows = %#v, want none", result.Rows)
	}
	if got := query.FormatRows(result.Rows); got != "[]" {
		t.Fatalf("rows = %s", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet() error = %v", err)
	}
}

func TestExecuteNormalizesBytes(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	mock.ExpectQuery("SELECT COUNTRY, COUNT(*) FROM sales_table GROUP BY COUNTRY").
		WillReturnRows(sqlmock.NewRows([]string{"COUNTRY", "COUNT(*)"}).
			AddRow([]byte("USA"), int64(1004)).
			AddRow([]byte("France"), int64(314)))
	mock.ExpectClose()

	gateway := New(Config{Open: openMock(db)})
	result, err := gateway.Execute(context.Background(), session.Defaults(), query.Request{
		SQL: "SELECT COUNTRY, COUNT(*) FROM sales_table GROUP BY COUNTRY",
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Rows[0][0] != "USA" || result.Rows[1][1] != int64(314) {
		t.Fatalf("Rows = %#v", result.Rows)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet() error = %v", err)
	}
}

func TestExecuteWrapsStatementFailure(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	mock.ExpectQuery("SELECT * FROM missing").WillReturnError(errors.New("Error 1146: Table 'missing' doesn't exist"))
	mock.ExpectClose()

	gateway := New(Config{Open: openMock(db)})
	_, err = gateway.Execute(context.Background(), session.Defaults(), query.Request{SQL: "SELECT * FROM missing"})
	var execErr *query.ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("Execute() error = %v, want ExecutionError", err)
	}
	if execErr.SQL != "SELECT * FROM missing" {
		t.Fatalf("SQL = %q", execErr.SQL)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("connection not closed: %v", err)
	}
}

func TestExecuteWrapsPingFailureAsConnectionError(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	mock.ExpectPing().WillReturnError(errors.New("Access denied for user 'root'@'localhost'"))
	mock.ExpectClose()

	gateway := New(Config{Open: openMock(db)})
	_, err = gateway.Execute(context.Background(), session.Defaults(), query.Request{SQL: "SELECT 1"})
	var connErr *query.ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("Execute() error = %v, want ConnectionError", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet() error = %v", err)
	}
}

func TestExecuteHonorsRowLimit(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	mock.ExpectQuery("SELECT ORDERNUMBER FROM sales_table").
		WillReturnRows(sqlmock.NewRows([]string{"ORDERNUMBER"}).AddRow(int64(1)).AddRow(int64(2)).AddRow(int64(3)))
	mock.ExpectClose()

	gateway := New(Config{Open: openMock(db), RowLimit: 2})
	result, err := gateway.Execute(context.Background(), session.Defaults(), query.Request{SQL: "SELECT ORDERNUMBER FROM sales_table"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(result.Rows))
	}
}

func TestExecuteRejectsBlankSQLWithoutConnecting(t *testing.T) {
	gateway := New(Config{Open: func(string, string) (*sql.DB, error) {
		t.Fatal("open should not be called")
		return nil, nil
	}})
	_, err := gateway.Execute(context.Background(), session.Defaults(), query.Request{SQL: "  "})
	var execErr *query.ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("Execute() error = %v, want ExecutionError", err)
	}
}

func TestExecuteRejectsInvalidParams(t *testing.T) {
	gateway := New(Config{Open: func(string, string) (*sql.DB, error) {
		t.Fatal("open should not be called")
		return nil, nil
	}})
	_, err := gateway.Execute(context.Background(), session.Params{Host: ""}, query.Request{SQL: "SELECT 1"})
	var connErr *query.ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("Execute() error = %v, want ConnectionError", err)
	}
}

func TestTestConnectionClosesHandle(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	mock.ExpectPing()
	mock.ExpectClose()

	gateway := New(Config{Open: openMock(db)})
	if err := gateway.TestConnection(context.Background(), session.Defaults()); err != nil {
		t.Fatalf("TestConnection() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet() error = %v", err)
	}
}

func TestSQLDriverName(t *testing.T) {
	tests := map[string]string{"mysql": "mysql", "postgres": "pgx", "duckdb": "duckdb"}
	for driver, want := range tests {
		got, err := sqlDriverName(driver)
		if err != nil || got != want {
			t.Fatalf("sqlDriverName(%q) = %q, %v", driver, got, err)
		}
	}
	if _, err := sqlDriverName("oracle"); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func openMock(db *sql.DB) OpenFunc {
	return func(string, string) (*sql.DB, error) {
		return db, nil
	}
}
