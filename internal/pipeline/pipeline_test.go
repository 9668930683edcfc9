package pipeline

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/querychat/querychat/internal/nl2sql"
	"github.com/querychat/querychat/internal/query"
	"github.com/querychat/querychat/internal/retrieval"
	"github.com/querychat/querychat/internal/session"
	"github.com/querychat/querychat/internal/sqlguard"
)

type fakeGenerator struct {
	sql          nl2sql.GeneratedSQL
	err          error
	calls        int
	gotQuestion  string
	gotRetrieved string
	gotDialect   string
}

func (f *fakeGenerator) Generate(_ context.Context, in nl2sql.QueryInput) (nl2sql.GeneratedSQL, error) {
	f.calls++
	f.gotQuestion = in.Question
	f.gotRetrieved = in.SchemaExcerpt
	f.gotDialect = in.Dialect
	return f.sql, f.err
}

type fakeExecutor struct {
	result    query.Result
	err       error
	calls     int
	gotSQL    string
	gotParams session.Params
}

func (f *fakeExecutor) Execute(_ context.Context, params session.Params, req query.Request) (query.Result, error) {
	f.calls++
	f.gotSQL = req.SQL
	f.gotParams = params
	return f.result, f.err
}

func (f *fakeExecutor) TestConnection(context.Context, session.Params) error { return nil }

type fakeHumanizer struct {
	answer      string
	err         error
	calls       int
	gotQuestion string
	gotResult   query.Result
}

func (f *fakeHumanizer) Humanize(_ context.Context, question string, result query.Result) (string, error) {
	f.calls++
	f.gotQuestion = question
	f.gotResult = result
	return f.answer, f.err
}

type fakeRetriever struct {
	matches []retrieval.Match
	err     error
	gotK    int
}

func (f *fakeRetriever) Retrieve(_ context.Context, _ string, k int) ([]retrieval.Match, error) {
	f.gotK = k
	return f.matches, f.err
}

func revenueResult() query.Result {
	return query.Result{Columns: []string{"SUM(SALES)"}, Rows: [][]any{{query.Decimal("1234567.89")}}}
}

func newTestPipeline(t *testing.T, gen *fakeGenerator, exec *fakeExecutor, hum *fakeHumanizer, mutate func(*Config)) *Pipeline {
	t.Helper()
	cfg := Config{Generator: gen, Executor: exec, Humanizer: hum}
	if mutate != nil {
		mutate(&cfg)
	}
	p, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return p
}

func TestRunAnswersQuestion(t *testing.T) {
	gen := &fakeGenerator{sql: "SELECT SUM(SALES) FROM sales_table;"}
	exec := &fakeExecutor{result: revenueResult()}
	hum := &fakeHumanizer{answer: "The total sales revenue is 1,234,567.89 USD."}
	p := newTestPipeline(t, gen, exec, hum, nil)

	var states []State
	params := session.Defaults()
	outcome, err := p.Run(context.Background(), Request{Question: "  What is the total sales revenue?  ", Params: params}, func(ev Event) {
		states = append(states, ev.State)
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if outcome.Answer != hum.answer {
		t.Fatalf("answer = %q", outcome.Answer)
	}
	if outcome.SQL != gen.sql || exec.gotSQL != string(gen.sql) {
		t.Fatalf("sql = %q executed = %q", outcome.SQL, exec.gotSQL)
	}
	if gen.gotQuestion != "What is the total sales revenue?" {
		t.Fatalf("question = %q", gen.gotQuestion)
	}
	if gen.gotRetrieved != "" {
		t.Fatalf("retrieved schema should be empty without retrieval, got %q", gen.gotRetrieved)
	}
	if exec.gotParams != params {
		t.Fatalf("params = %+v", exec.gotParams)
	}
	if outcome.State != StateDisplaying {
		t.Fatalf("final state = %s", outcome.State)
	}
	want := []State{StateAwaitingQueryGeneration, StateAwaitingExecution, StateAwaitingHumanization, StateDisplaying, StateIdle}
	if !reflect.DeepEqual(states, want) {
		t.Fatalf("states = %v, want %v", states, want)
	}
}

func TestRunPassesQuestionAndResultToHumanizer(t *testing.T) {
	gen := &fakeGenerator{sql: "SELECT SUM(SALES) FROM sales_table WHERE YEAR_ID=2003"}
	exec := &fakeExecutor{result: revenueResult()}
	hum := &fakeHumanizer{answer: "The total sales in 2003 were 1,234,567.89 USD."}
	p := newTestPipeline(t, gen, exec, hum, nil)

	outcome, err := p.Run(context.Background(), Request{Question: "What is the total sales in 2003?", Params: session.Defaults()}, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if exec.gotSQL != "SELECT SUM(SALES) FROM sales_table WHERE YEAR_ID=2003" {
		t.Fatalf("executed sql = %q", exec.gotSQL)
	}
	if hum.gotQuestion != "What is the total sales in 2003?" {
		t.Fatalf("humanizer question = %q", hum.gotQuestion)
	}
	if got := query.FormatRows(hum.gotResult.Rows); got != "[(1234567.89,)]" {
		t.Fatalf("humanizer result = %s", got)
	}
	if outcome.Answer != hum.answer {
		t.Fatalf("answer = %q", outcome.Answer)
	}
}

func TestRunPromptsForSessionDialect(t *testing.T) {
	tests := map[string]string{
		"":                     "MySQL",
		session.DriverMySQL:    "MySQL",
		session.DriverPostgres: "PostgreSQL",
		session.DriverDuckDB:   "DuckDB",
	}
	for driver, want := range tests {
		gen := &fakeGenerator{sql: "SELECT 1"}
		p := newTestPipeline(t, gen, &fakeExecutor{result: revenueResult()}, &fakeHumanizer{answer: "ok"}, nil)
		if _, err := p.Run(context.Background(), Request{Question: "q", Params: session.Params{Driver: driver}}, nil); err != nil {
			t.Fatalf("Run(driver=%q) error = %v", driver, err)
		}
		if gen.gotDialect != want {
			t.Fatalf("dialect for driver %q = %q, want %q", driver, gen.gotDialect, want)
		}
	}
}

func TestRunWithRetrieval(t *testing.T) {
	gen := &fakeGenerator{sql: "SELECT COUNTRY, SUM(SALES) FROM sales_table GROUP BY COUNTRY;"}
	exec := &fakeExecutor{result: revenueResult()}
	hum := &fakeHumanizer{answer: "ok"}
	ret := &fakeRetriever{matches: []retrieval.Match{
		{Snippet: retrieval.Snippet{ID: 2, Text: "Table: sales_table, Column: SALES, Description: Amount of sales or revenue in USD"}},
		{Snippet: retrieval.Snippet{ID: 6, Text: "Table: sales_table, Column: COUNTRY, Description: Country where the order was placed"}},
	}}
	p := newTestPipeline(t, gen, exec, hum, func(cfg *Config) { cfg.Retriever = ret })

	var states []State
	outcome, err := p.Run(context.Background(), Request{Question: "revenue by country", UseRetrieval: true}, func(ev Event) {
		states = append(states, ev.State)
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if ret.gotK != retrieval.DefaultTopK {
		t.Fatalf("k = %d, want %d", ret.gotK, retrieval.DefaultTopK)
	}
	wantSchema := ret.matches[0].Snippet.Text + "\n" + ret.matches[1].Snippet.Text
	if outcome.RetrievedSchema != wantSchema || gen.gotRetrieved != wantSchema {
		t.Fatalf("retrieved schema = %q", outcome.RetrievedSchema)
	}
	if states[0] != StateRetrieving {
		t.Fatalf("first state = %s", states[0])
	}
}

func TestRunRetrievalTopKOverride(t *testing.T) {
	ret := &fakeRetriever{}
	p := newTestPipeline(t, &fakeGenerator{sql: "SELECT 1"}, &fakeExecutor{result: revenueResult()}, &fakeHumanizer{answer: "ok"}, func(cfg *Config) {
		cfg.Retriever = ret
		cfg.TopK = 3
	})
	if _, err := p.Run(context.Background(), Request{Question: "q", UseRetrieval: true}, nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if ret.gotK != 3 {
		t.Fatalf("k = %d, want 3", ret.gotK)
	}
	if _, err := p.Run(context.Background(), Request{Question: "q", UseRetrieval: true, TopK: 1}, nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if ret.gotK != 1 {
		t.Fatalf("k = %d, want 1", ret.gotK)
	}
}

func TestRunEmptyQuestion(t *testing.T) {
	gen := &fakeGenerator{}
	p := newTestPipeline(t, gen, &fakeExecutor{}, &fakeHumanizer{}, nil)
	_, err := p.Run(context.Background(), Request{Question: "   "}, nil)
	if !errors.Is(err, ErrEmptyQuestion) {
		t.Fatalf("Run() error = %v, want ErrEmptyQuestion", err)
	}
	if gen.calls != 0 {
		t.Fatalf("generator called %d times", gen.calls)
	}
}

func TestRunRetrievalUnavailable(t *testing.T) {
	p := newTestPipeline(t, &fakeGenerator{}, &fakeExecutor{}, &fakeHumanizer{}, nil)
	if p.RetrievalAvailable() {
		t.Fatal("RetrievalAvailable() = true without a retriever")
	}
	_, err := p.Run(context.Background(), Request{Question: "q", UseRetrieval: true}, nil)
	if !errors.Is(err, ErrRetrievalUnavailable) {
		t.Fatalf("Run() error = %v", err)
	}
}

func TestRunGenerationFailureStopsBeforeExecution(t *testing.T) {
	gen := &fakeGenerator{err: &nl2sql.ModelCallError{Purpose: "generate_sql", Err: errors.New("quota")}}
	exec := &fakeExecutor{}
	hum := &fakeHumanizer{}
	p := newTestPipeline(t, gen, exec, hum, nil)

	var last State
	outcome, err := p.Run(context.Background(), Request{Question: "q"}, func(ev Event) { last = ev.State })
	if KindOf(err) != KindModelCall {
		t.Fatalf("kind = %q, err = %v", KindOf(err), err)
	}
	if exec.calls != 0 || hum.calls != 0 {
		t.Fatalf("executor calls = %d, humanizer calls = %d", exec.calls, hum.calls)
	}
	if outcome.State != StateAwaitingQueryGeneration {
		t.Fatalf("failed state = %s", outcome.State)
	}
	if last != StateIdle {
		t.Fatalf("last notified state = %s", last)
	}
	var modelErr *nl2sql.ModelCallError
	if !errors.As(err, &modelErr) {
		t.Fatalf("cause not preserved: %v", err)
	}
}

func TestRunRetrievalFailure(t *testing.T) {
	gen := &fakeGenerator{}
	p := newTestPipeline(t, gen, &fakeExecutor{}, &fakeHumanizer{}, func(cfg *Config) {
		cfg.Retriever = &fakeRetriever{err: errors.New("embed failed")}
	})
	_, err := p.Run(context.Background(), Request{Question: "q", UseRetrieval: true}, nil)
	if KindOf(err) != KindModelCall {
		t.Fatalf("kind = %q", KindOf(err))
	}
	if gen.calls != 0 {
		t.Fatal("generator called after retrieval failure")
	}
}

func TestRunConnectionAndExecutionFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "connection", err: &query.ConnectionError{Err: errors.New("access denied")}, want: KindConnection},
		{name: "execution", err: &query.ExecutionError{SQL: "SELEC", Err: errors.New("syntax")}, want: KindExecution},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			hum := &fakeHumanizer{}
			p := newTestPipeline(t, &fakeGenerator{sql: "SELEC"}, &fakeExecutor{err: tc.err}, hum, nil)
			_, err := p.Run(context.Background(), Request{Question: "q"}, nil)
			if KindOf(err) != tc.want {
				t.Fatalf("kind = %q, want %q", KindOf(err), tc.want)
			}
			if hum.calls != 0 {
				t.Fatal("humanizer called after failure")
			}
		})
	}
}

func TestRunEmptyResult(t *testing.T) {
	hum := &fakeHumanizer{answer: "nothing found"}
	p := newTestPipeline(t, &fakeGenerator{sql: "SELECT * FROM sales_table WHERE 1=0"}, &fakeExecutor{result: query.Result{Columns: []string{"x"}}}, hum, nil)

	_, err := p.Run(context.Background(), Request{Question: "q"}, nil)
	if KindOf(err) != KindEmptyResult {
		t.Fatalf("kind = %q", KindOf(err))
	}
	var pipelineErr *Error
	if !errors.As(err, &pipelineErr) || pipelineErr.Message != EmptyResultMessage {
		t.Fatalf("error = %v", err)
	}
	if hum.calls != 0 {
		t.Fatal("humanizer called for empty result")
	}
}

func TestRunEmptyResultAllowed(t *testing.T) {
	hum := &fakeHumanizer{answer: "nothing found"}
	p := newTestPipeline(t, &fakeGenerator{sql: "SELECT 1 WHERE 1=0"}, &fakeExecutor{result: query.Result{Columns: []string{"x"}}}, hum, func(cfg *Config) {
		cfg.AllowEmptyResult = true
	})
	outcome, err := p.Run(context.Background(), Request{Question: "q"}, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if hum.calls != 1 || outcome.Answer != "nothing found" {
		t.Fatalf("humanizer calls = %d, answer = %q", hum.calls, outcome.Answer)
	}
}

func TestRunGuardRejectsBeforeExecution(t *testing.T) {
	exec := &fakeExecutor{}
	p := newTestPipeline(t, &fakeGenerator{sql: "DROP TABLE sales_table"}, exec, &fakeHumanizer{}, func(cfg *Config) {
		cfg.Guard = sqlguard.New(sqlguard.ModeReadOnly)
	})
	_, err := p.Run(context.Background(), Request{Question: "q"}, nil)
	if KindOf(err) != KindExecution {
		t.Fatalf("kind = %q", KindOf(err))
	}
	var rejected *sqlguard.RejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("expected RejectedError, got %v", err)
	}
	if exec.calls != 0 {
		t.Fatal("executor called for rejected SQL")
	}
}

func TestRunHumanizeFailureKeepsResult(t *testing.T) {
	exec := &fakeExecutor{result: revenueResult()}
	p := newTestPipeline(t, &fakeGenerator{sql: "SELECT 1"}, exec, &fakeHumanizer{err: errors.New("timeout")}, nil)
	outcome, err := p.Run(context.Background(), Request{Question: "q"}, nil)
	if KindOf(err) != KindModelCall {
		t.Fatalf("kind = %q", KindOf(err))
	}
	if len(outcome.Result.Rows) != 1 || outcome.SQL != "SELECT 1" {
		t.Fatalf("outcome = %+v", outcome)
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error for empty config")
	}
	if _, err := New(Config{Generator: &fakeGenerator{}, Executor: &fakeExecutor{}}); err == nil {
		t.Fatal("expected error without humanizer")
	}
}
