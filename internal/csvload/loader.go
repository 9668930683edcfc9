// Package csvload creates a table from a CSV file and fills it row by row.
package csvload

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/querychat/querychat/internal/session"
)

const DefaultTable = "sales"

type Loader struct {
	db     *sql.DB
	driver string
	logger *slog.Logger
}

type Summary struct {
	Table    string
	Columns  int
	Rows     int
	Duration time.Duration
}

func NewLoader(db *sql.DB, driver string, logger *slog.Logger) (*Loader, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	switch driver {
	case "":
		driver = session.DriverMySQL
	case session.DriverMySQL, session.DriverPostgres, session.DriverDuckDB:
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Loader{db: db, driver: driver, logger: logger}, nil
}

// Load creates table if it does not exist and inserts every row of data in a
// single transaction. Nothing is committed when any row fails.
func (l *Loader) Load(ctx context.Context, table string, data Table) (Summary, error) {
	start := time.Now()
	if strings.TrimSpace(table) == "" {
		table = DefaultTable
	}
	if len(data.Columns) == 0 {
		return Summary{}, fmt.Errorf("csv has no columns")
	}
	types := data.Types
	if len(types) != len(data.Columns) {
		types = InferTypes(len(data.Columns), data.Rows)
	}

	createSQL := CreateTableSQL(l.driver, table, data.Columns, types)
	if _, err := l.db.ExecContext(ctx, createSQL); err != nil {
		return Summary{}, fmt.Errorf("create table %s: %w", table, err)
	}
	l.logger.InfoContext(ctx, "table_created", slog.String("table", table), slog.Int("columns", len(data.Columns)))

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return Summary{}, fmt.Errorf("begin insert transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	insertSQL := InsertSQL(l.driver, table, len(data.Columns))
	for i, row := range data.Rows {
		args := make([]any, len(data.Columns))
		for col := range data.Columns {
			value, err := ConvertValue(types[col], cell(row, col))
			if err != nil {
				return Summary{}, fmt.Errorf("row %d column %s: %w", i+1, data.Columns[col], err)
			}
			args[col] = value
		}
		if _, err := tx.ExecContext(ctx, insertSQL, args...); err != nil {
			return Summary{}, fmt.Errorf("insert row %d: %w", i+1, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return Summary{}, fmt.Errorf("commit inserts: %w", err)
	}
	committed = true

	summary := Summary{Table: table, Columns: len(data.Columns), Rows: len(data.Rows), Duration: time.Since(start)}
	l.logger.InfoContext(ctx, "rows_inserted",
		slog.String("table", table),
		slog.Int("rows", summary.Rows),
		slog.String("duration", summary.Duration.String()),
	)
	return summary, nil
}

// CreateTableSQL renders the CREATE TABLE IF NOT EXISTS statement for the
// driver's dialect.
func CreateTableSQL(driver, table string, columns []string, types []ColumnType) string {
	defs := make([]string, len(columns))
	for i, column := range columns {
		defs[i] = quoteIdent(driver, column) + " " + columnType(driver, types[i])
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s);", quoteIdent(driver, table), strings.Join(defs, ", "))
}

func InsertSQL(driver, table string, columns int) string {
	placeholders := make([]string, columns)
	for i := range placeholders {
		if driver == session.DriverPostgres {
			placeholders[i] = "$" + strconv.Itoa(i+1)
		} else {
			placeholders[i] = "?"
		}
	}
	return fmt.Sprintf("INSERT INTO %s VALUES (%s)", quoteIdent(driver, table), strings.Join(placeholders, ", "))
}

func columnType(driver string, t ColumnType) string {
	if driver != session.DriverMySQL && driver != "" {
		switch t {
		case TypeDateTime:
			return "TIMESTAMP"
		case TypeFloat:
			return "DOUBLE PRECISION"
		}
	}
	return string(t)
}

func quoteIdent(driver, name string) string {
	if driver == session.DriverMySQL || driver == "" {
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
