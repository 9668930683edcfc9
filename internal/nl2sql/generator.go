package nl2sql

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/querychat/querychat/internal/llm"
	"github.com/querychat/querychat/internal/observability"
	"github.com/querychat/querychat/internal/query"
	"github.com/querychat/querychat/internal/schema"
)

type QueryGenerator struct {
	model   llm.Model
	catalog *schema.Catalog
	dialect string
	logger  *slog.Logger
}

// NewQueryGenerator builds a generator for catalog. An empty dialect falls
// back to the catalog's dialect.
func NewQueryGenerator(model llm.Model, catalog *schema.Catalog, dialect string, logger *slog.Logger) *QueryGenerator {
	if dialect == "" {
		dialect = catalog.Dialect
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &QueryGenerator{model: model, catalog: catalog, dialect: dialect, logger: logger}
}

// Generate returns the model's reply unchanged. No markdown stripping or
// syntax checking happens here.
func (g *QueryGenerator) Generate(ctx context.Context, in QueryInput) (GeneratedSQL, error) {
	dialect := in.Dialect
	if dialect == "" {
		dialect = g.dialect
	}
	data := queryPromptData{
		Dialect:         dialect,
		Database:        g.catalog.Database,
		Tables:          g.catalog.Tables,
		RetrievedSchema: in.SchemaExcerpt,
	}
	templateName := "query.tmpl"
	if in.SchemaExcerpt != "" {
		templateName = "query_rag.tmpl"
	}
	instruction, err := render(templateName, data)
	if err != nil {
		return "", err
	}

	start := time.Now()
	text, err := g.model.Generate(ctx, instruction, in.Question)
	observability.ObserveLLMCall("generate_sql", time.Since(start), err)
	if err != nil {
		return "", &ModelCallError{Purpose: "query generation", Err: err}
	}
	if strings.TrimSpace(text) == "" {
		return "", &ModelCallError{Purpose: "query generation", Err: ErrEmptyResponse}
	}

	g.logger.DebugContext(ctx, "sql_generated",
		slog.String("template", templateName),
		slog.String("dialect", dialect),
		slog.Int("sql_bytes", len(text)),
	)
	return GeneratedSQL(text), nil
}

type ResponseHumanizer struct {
	model  llm.Model
	logger *slog.Logger
}

func NewResponseHumanizer(model llm.Model, logger *slog.Logger) *ResponseHumanizer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ResponseHumanizer{model: model, logger: logger}
}

func (h *ResponseHumanizer) Humanize(ctx context.Context, question string, result query.Result) (string, error) {
	instruction, err := render("humanize.tmpl", humanizePromptData{
		Question: question,
		Result:   query.FormatRows(result.Rows),
	})
	if err != nil {
		return "", err
	}

	start := time.Now()
	text, err := h.model.Generate(ctx, instruction, question)
	observability.ObserveLLMCall("humanize", time.Since(start), err)
	if err != nil {
		return "", &ModelCallError{Purpose: "response humanization", Err: err}
	}
	if strings.TrimSpace(text) == "" {
		return "", &ModelCallError{Purpose: "response humanization", Err: ErrEmptyResponse}
	}
	return text, nil
}
