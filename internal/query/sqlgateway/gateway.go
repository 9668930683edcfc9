// Package sqlgateway executes generated SQL against MySQL, PostgreSQL or
// DuckDB through database/sql. Every call opens a dedicated connection and
// closes it before returning.
package sqlgateway

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/querychat/querychat/internal/observability"
	"github.com/querychat/querychat/internal/query"
	"github.com/querychat/querychat/internal/session"
)

const defaultPingTimeout = 5 * time.Second

// OpenFunc matches sql.Open and lets tests substitute a mock database.
type OpenFunc func(driverName, dataSourceName string) (*sql.DB, error)

type Config struct {
	QueryTimeout time.Duration
	RowLimit     int
	PingTimeout  time.Duration
	Logger       *slog.Logger
	Open         OpenFunc
}

type Gateway struct {
	queryTimeout time.Duration
	rowLimit     int
	pingTimeout  time.Duration
	logger       *slog.Logger
	open         OpenFunc
}

func New(cfg Config) *Gateway {
	g := &Gateway{
		queryTimeout: cfg.QueryTimeout,
		rowLimit:     cfg.RowLimit,
		pingTimeout:  cfg.PingTimeout,
		logger:       cfg.Logger,
		open:         cfg.Open,
	}
	if g.pingTimeout <= 0 {
		g.pingTimeout = defaultPingTimeout
	}
	if g.logger == nil {
		g.logger = slog.New(slog.DiscardHandler)
	}
	if g.open == nil {
		g.open = sql.Open
	}
	return g
}

// Open returns a verified single-connection handle. The caller owns the
// handle and must close it.
func (g *Gateway) Open(ctx context.Context, params session.Params) (*sql.DB, error) {
	dsn, err := params.DSN()
	if err != nil {
		return nil, &query.ConnectionError{Err: err}
	}
	driverName, err := sqlDriverName(params.DriverName())
	if err != nil {
		return nil, &query.ConnectionError{Err: err}
	}

	db, err := g.open(driverName, dsn)
	if err != nil {
		return nil, &query.ConnectionError{Err: fmt.Errorf("open %s: %w", params.DriverName(), err)}
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, g.pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, &query.ConnectionError{Err: fmt.Errorf("ping %s: %s", params.String(), observability.Mask(err.Error()))}
	}
	return db, nil
}

func (g *Gateway) TestConnection(ctx context.Context, params session.Params) error {
	db, err := g.Open(ctx, params)
	if err != nil {
		g.logger.WarnContext(ctx, "connection_test_failed",
			slog.String("connection", params.String()),
			slog.String("error", err.Error()),
		)
		return err
	}
	if err := db.Close(); err != nil {
		return &query.ConnectionError{Err: fmt.Errorf("close connection: %w", err)}
	}
	return nil
}

func (g *Gateway) Execute(ctx context.Context, params session.Params, request query.Request) (result query.Result, err error) {
	if strings.TrimSpace(request.SQL) == "" {
		return query.Result{}, &query.ExecutionError{SQL: request.SQL, Err: fmt.Errorf("sql is required")}
	}

	start := time.Now()
	defer func() {
		observability.ObserveDBQuery(params.DriverName(), time.Since(start), err)
	}()

	if g.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.queryTimeout)
		defer cancel()
	}

	db, err := g.Open(ctx, params)
	if err != nil {
		return query.Result{}, err
	}
	defer func() { _ = db.Close() }()

	rows, err := db.QueryContext(ctx, request.SQL)
	if err != nil {
		return query.Result{}, &query.ExecutionError{SQL: request.SQL, Err: err}
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return query.Result{}, &query.ExecutionError{SQL: request.SQL, Err: fmt.Errorf("query columns: %w", err)}
	}
	decimalColumns := exactNumericColumns(rows)

	limit := request.RowLimit
	if limit <= 0 {
		limit = g.rowLimit
	}

	resultRows := make([][]any, 0)
	for rows.Next() {
		if limit > 0 && len(resultRows) >= limit {
			g.logger.DebugContext(ctx, "row_limit_reached", slog.Int("limit", limit))
			break
		}
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return query.Result{}, &query.ExecutionError{SQL: request.SQL, Err: fmt.Errorf("scan row: %w", err)}
		}
		resultRows = append(resultRows, normalizeValues(values, decimalColumns))
	}
	if err := rows.Err(); err != nil {
		return query.Result{}, &query.ExecutionError{SQL: request.SQL, Err: fmt.Errorf("iterate rows: %w", err)}
	}

	return query.Result{
		Columns:  columns,
		Rows:     resultRows,
		Duration: time.Since(start),
	}, nil
}

func sqlDriverName(driver string) (string, error) {
	switch driver {
	case session.DriverMySQL:
		return "mysql", nil
	case session.DriverPostgres:
		return "pgx", nil
	case session.DriverDuckDB:
		return "duckdb", nil
	default:
		return "", fmt.Errorf("unsupported driver %q", driver)
	}
}

func exactNumericColumns(rows *sql.Rows) map[int]bool {
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil
	}
	out := map[int]bool{}
	for i, columnType := range types {
		switch strings.ToUpper(columnType.DatabaseTypeName()) {
		case "DECIMAL", "NUMERIC", "NEWDECIMAL":
			out[i] = true
		}
	}
	return out
}

func normalizeValues(values []any, decimalColumns map[int]bool) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			if decimalColumns[i] {
				normalized[i] = query.Decimal(typed)
			} else {
				normalized[i] = string(typed)
			}
		case string:
			if decimalColumns[i] {
				normalized[i] = query.Decimal(typed)
			} else {
				normalized[i] = typed
			}
		default:
			normalized[i] = typed
		}
	}
	return normalized
}
