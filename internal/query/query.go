package query

import (
	"context"
	"time"

	"github.com/querychat/querychat/internal/session"
)

type Request struct {
	SQL      string
	RowLimit int
}

type Result struct {
	Columns  []string
	Rows     [][]any
	Duration time.Duration
}

// Empty reports whether the query produced no rows.
func (r Result) Empty() bool {
	return len(r.Rows) == 0
}

// Executor runs one statement against the database described by params.
// Implementations open and close their own connection on every call.
type Executor interface {
	Execute(ctx context.Context, params session.Params, request Request) (Result, error)
	TestConnection(ctx context.Context, params session.Params) error
}

// Decimal is an exact numeric value kept in its textual form so that no
// precision is lost between the database and the rendered answer.
type Decimal string

// ConnectionError means the database could not be reached or refused the
// supplied credentials.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return "database connection failed: " + e.Err.Error()
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ExecutionError means the database was reached but rejected or failed the
// statement.
type ExecutionError struct {
	SQL string
	Err error
}

func (e *ExecutionError) Error() string {
	return "query execution failed: " + e.Err.Error()
}

func (e *ExecutionError) Unwrap() error { return e.Err }
