package nl2sql

import (
	"context"
	"errors"

	"github.com/querychat/querychat/internal/query"
)

// GeneratedSQL is model output that is about to be executed. It is untrusted
// text and is passed to the database exactly as received.
type GeneratedSQL string

// QueryInput is one query generation call. SchemaExcerpt, when non-empty,
// replaces the full column list with retrieved schema snippets. Dialect names
// the SQL flavour of the session's database; empty means the generator default.
type QueryInput struct {
	Question      string
	SchemaExcerpt string
	Dialect       string
}

// Generator turns a question into SQL.
type Generator interface {
	Generate(ctx context.Context, in QueryInput) (GeneratedSQL, error)
}

// Humanizer phrases a query result as a conversational answer.
type Humanizer interface {
	Humanize(ctx context.Context, question string, result query.Result) (string, error)
}

var ErrEmptyResponse = errors.New("model returned an empty response")

// ModelCallError wraps any failure of a language model call.
type ModelCallError struct {
	Purpose string
	Err     error
}

func (e *ModelCallError) Error() string {
	return e.Purpose + " model call failed: " + e.Err.Error()
}

func (e *ModelCallError) Unwrap() error { return e.Err }
