package pipeline

import (
	"errors"
	"fmt"
)

// Kind classifies why a run stopped before producing an answer.
type Kind string

const (
	KindModelCall   Kind = "model_call"
	KindConnection  Kind = "connection"
	KindExecution   Kind = "execution"
	KindEmptyResult Kind = "empty_result"
)

const EmptyResultMessage = "No results returned from the query."

var (
	ErrEmptyQuestion        = errors.New("question is required")
	ErrRetrievalUnavailable = errors.New("schema retrieval is not enabled")
)

// Error is returned for every failed step. Message is safe to show to the
// user; Err carries the underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of err, or "" when err did not come from a run step.
func KindOf(err error) Kind {
	var pipelineErr *Error
	if errors.As(err, &pipelineErr) {
		return pipelineErr.Kind
	}
	return ""
}
