// Package pipeline runs one question through retrieval, SQL generation,
// execution and humanization, in that order, stopping at the first failure.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/querychat/querychat/internal/nl2sql"
	"github.com/querychat/querychat/internal/observability"
	"github.com/querychat/querychat/internal/query"
	"github.com/querychat/querychat/internal/retrieval"
	"github.com/querychat/querychat/internal/session"
	"github.com/querychat/querychat/internal/sqlguard"
)

type State string

const (
	StateIdle                    State = "idle"
	StateRetrieving              State = "retrieving"
	StateAwaitingQueryGeneration State = "awaiting_query_generation"
	StateAwaitingExecution       State = "awaiting_execution"
	StateAwaitingHumanization    State = "awaiting_humanization"
	StateDisplaying              State = "displaying"
)

type SchemaRetriever interface {
	Retrieve(ctx context.Context, question string, k int) ([]retrieval.Match, error)
}

type Config struct {
	Generator        nl2sql.Generator
	Executor         query.Executor
	Humanizer        nl2sql.Humanizer
	Retriever        SchemaRetriever
	Guard            *sqlguard.Guard
	TopK             int
	AllowEmptyResult bool
	Logger           *slog.Logger
}

type Pipeline struct {
	generator        nl2sql.Generator
	executor         query.Executor
	humanizer        nl2sql.Humanizer
	retriever        SchemaRetriever
	guard            *sqlguard.Guard
	topK             int
	allowEmptyResult bool
	logger           *slog.Logger
}

func New(cfg Config) (*Pipeline, error) {
	if cfg.Generator == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if cfg.Executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if cfg.Humanizer == nil {
		return nil, fmt.Errorf("humanizer is required")
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = retrieval.DefaultTopK
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Pipeline{
		generator:        cfg.Generator,
		executor:         cfg.Executor,
		humanizer:        cfg.Humanizer,
		retriever:        cfg.Retriever,
		guard:            cfg.Guard,
		topK:             topK,
		allowEmptyResult: cfg.AllowEmptyResult,
		logger:           logger,
	}, nil
}

// RetrievalAvailable reports whether runs may ask for schema retrieval.
func (p *Pipeline) RetrievalAvailable() bool {
	return p.retriever != nil
}

// Request is everything one run needs. Params are copied into the run and
// never read from shared state.
type Request struct {
	Question     string
	Params       session.Params
	UseRetrieval bool
	TopK         int
}

// Outcome carries whatever the run produced before it finished or failed.
type Outcome struct {
	Question        string
	Retrieved       []retrieval.Match
	RetrievedSchema string
	SQL             nl2sql.GeneratedSQL
	Result          query.Result
	Answer          string
	State           State
	Err             error
}

type Event struct {
	State   State
	Outcome Outcome
}

// Observer is told about every state change, including the final return to
// StateIdle.
type Observer func(Event)

func (p *Pipeline) Run(ctx context.Context, req Request, observe Observer) (Outcome, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return Outcome{State: StateIdle, Err: ErrEmptyQuestion}, ErrEmptyQuestion
	}
	if req.UseRetrieval && p.retriever == nil {
		return Outcome{Question: question, State: StateIdle, Err: ErrRetrievalUnavailable}, ErrRetrievalUnavailable
	}

	r := &run{pipeline: p, observe: observe, outcome: Outcome{Question: question, State: StateIdle}}

	if req.UseRetrieval {
		r.enter(StateRetrieving)
		k := req.TopK
		if k <= 0 {
			k = p.topK
		}
		matches, err := p.retriever.Retrieve(ctx, question, k)
		if err != nil {
			return r.fail(ctx, wrap(KindModelCall, "Failed to retrieve schema details.", err))
		}
		r.outcome.Retrieved = matches
		r.outcome.RetrievedSchema = retrieval.JoinTexts(matches)
	}

	r.enter(StateAwaitingQueryGeneration)
	sqlText, err := p.generator.Generate(ctx, nl2sql.QueryInput{
		Question:      question,
		SchemaExcerpt: r.outcome.RetrievedSchema,
		Dialect:       nl2sql.DialectForDriver(req.Params.DriverName()),
	})
	if err != nil {
		return r.fail(ctx, wrap(KindModelCall, "Failed to generate SQL query.", err))
	}
	r.outcome.SQL = sqlText

	r.enter(StateAwaitingExecution)
	if err := p.guard.Check(string(sqlText)); err != nil {
		return r.fail(ctx, wrap(KindExecution, "Generated SQL was rejected.", err))
	}
	result, err := p.executor.Execute(ctx, req.Params, query.Request{SQL: string(sqlText)})
	if err != nil {
		var connErr *query.ConnectionError
		if errors.As(err, &connErr) {
			return r.fail(ctx, wrap(KindConnection, "Could not connect to the database.", err))
		}
		return r.fail(ctx, wrap(KindExecution, "Failed to execute the query.", err))
	}
	r.outcome.Result = result
	if result.Empty() && !p.allowEmptyResult {
		return r.fail(ctx, wrap(KindEmptyResult, EmptyResultMessage, nil))
	}

	r.enter(StateAwaitingHumanization)
	answer, err := p.humanizer.Humanize(ctx, question, result)
	if err != nil {
		return r.fail(ctx, wrap(KindModelCall, "Failed to generate a response.", err))
	}
	r.outcome.Answer = answer

	r.enter(StateDisplaying)
	observability.ObservePipelineRun("answered")
	p.logger.InfoContext(ctx, "question_answered",
		slog.Bool("retrieval", req.UseRetrieval),
		slog.Int("rows", len(result.Rows)),
		slog.String("query_duration", result.Duration.String()),
	)
	out := r.outcome
	r.notify(StateIdle)
	return out, nil
}

type run struct {
	pipeline *Pipeline
	observe  Observer
	outcome  Outcome
}

func (r *run) enter(state State) {
	r.outcome.State = state
	r.notify(state)
}

func (r *run) notify(state State) {
	if r.observe != nil {
		r.observe(Event{State: state, Outcome: r.outcome})
	}
}

func (r *run) fail(ctx context.Context, err *Error) (Outcome, error) {
	r.outcome.Err = err
	observability.ObservePipelineRun("failed")
	observability.IncrementPipelineFailure(string(err.Kind))

	attrs := []any{
		slog.String("kind", string(err.Kind)),
		slog.String("state", string(r.outcome.State)),
	}
	if err.Err != nil {
		attrs = append(attrs, slog.String("error", observability.Mask(err.Err.Error())))
	}
	r.pipeline.logger.WarnContext(ctx, "question_failed", attrs...)

	out := r.outcome
	r.notify(StateIdle)
	return out, err
}
