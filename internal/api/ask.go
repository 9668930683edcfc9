package api

import (
	"errors"
	"net/http"

	"github.com/querychat/querychat/internal/config"
	"github.com/querychat/querychat/internal/observability"
	"github.com/querychat/querychat/internal/pipeline"
	"github.com/querychat/querychat/internal/session"
	"github.com/querychat/querychat/internal/sqlguard"
)

// connectionRequest overrides the server's default connection parameters.
// A nil Password keeps the default; an explicit "" clears it.
type connectionRequest struct {
	Driver   string  `json:"driver"`
	Host     string  `json:"host"`
	Port     string  `json:"port"`
	User     string  `json:"user"`
	Password *string `json:"password"`
	Database string  `json:"database"`
}

func (c *connectionRequest) apply(defaults session.Params) session.Params {
	if c == nil {
		return defaults
	}
	override := session.Params{
		Driver:   c.Driver,
		Host:     c.Host,
		Port:     c.Port,
		User:     c.User,
		Database: c.Database,
	}
	if c.Password != nil {
		override.Password = *c.Password
	}
	return defaults.Merge(override, c.Password != nil)
}

type askRequest struct {
	Question   string             `json:"question"`
	Connection *connectionRequest `json:"connection"`
	RAG        *bool              `json:"rag"`
	ShowQuery  *bool              `json:"show_query"`
	TopK       int                `json:"k"`
}

type askResponse struct {
	Answer          string         `json:"answer"`
	SQL             string         `json:"sql,omitempty"`
	Columns         []string       `json:"columns,omitempty"`
	Rows            [][]any        `json:"rows,omitempty"`
	RetrievedSchema string         `json:"retrieved_schema,omitempty"`
	Stats           map[string]any `json:"stats"`
}

func handleAsk(cfg config.Config, deps Dependencies, defaults session.Params, w http.ResponseWriter, r *http.Request) {
	if deps.Pipeline == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "PIPELINE_NOT_CONFIGURED", "question pipeline is not configured", false, nil)
		return
	}

	var req askRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid ask request body", false, map[string]any{"details": err.Error()})
		return
	}

	useRAG := cfg.RAG.Enabled && deps.Pipeline.RetrievalAvailable()
	if req.RAG != nil {
		useRAG = *req.RAG
	}
	if useRAG && !deps.Pipeline.RetrievalAvailable() {
		writeError(r.Context(), w, http.StatusNotImplemented, "RAG_NOT_CONFIGURED", "schema retrieval is not enabled", false, nil)
		return
	}
	showQuery := cfg.Pipeline.ShowQuery
	if req.ShowQuery != nil {
		showQuery = *req.ShowQuery
	}

	outcome, err := deps.Pipeline.Run(r.Context(), pipeline.Request{
		Question:     req.Question,
		Params:       req.Connection.apply(defaults),
		UseRetrieval: useRAG,
		TopK:         req.TopK,
	}, nil)
	if err != nil {
		writePipelineError(w, r, outcome, err, showQuery)
		return
	}

	response := askResponse{
		Answer: outcome.Answer,
		Stats: map[string]any{
			"duration_ms": outcome.Result.Duration.Milliseconds(),
			"row_count":   len(outcome.Result.Rows),
		},
	}
	if useRAG {
		response.RetrievedSchema = outcome.RetrievedSchema
	}
	if showQuery {
		response.SQL = string(outcome.SQL)
		response.Columns = outcome.Result.Columns
		response.Rows = outcome.Result.Rows
	}
	writeJSON(w, http.StatusOK, response)
}

func writePipelineError(w http.ResponseWriter, r *http.Request, outcome pipeline.Outcome, err error, showQuery bool) {
	ctx := r.Context()
	if errors.Is(err, pipeline.ErrEmptyQuestion) {
		writeError(ctx, w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return
	}
	if errors.Is(err, pipeline.ErrRetrievalUnavailable) {
		writeError(ctx, w, http.StatusNotImplemented, "RAG_NOT_CONFIGURED", "schema retrieval is not enabled", false, nil)
		return
	}

	extra := map[string]any{"details": observability.Mask(err.Error())}
	if showQuery && outcome.SQL != "" {
		extra["sql"] = string(outcome.SQL)
	}
	message := err.Error()
	var pipelineErr *pipeline.Error
	if errors.As(err, &pipelineErr) {
		message = pipelineErr.Message
	}

	var rejected *sqlguard.RejectedError
	if errors.As(err, &rejected) {
		extra["reason"] = rejected.Reason
		writeError(ctx, w, http.StatusBadRequest, "SQL_REJECTED", message, false, extra)
		return
	}

	switch pipeline.KindOf(err) {
	case pipeline.KindModelCall:
		writeError(ctx, w, http.StatusBadGateway, "MODEL_CALL_FAILED", message, true, extra)
	case pipeline.KindConnection:
		writeError(ctx, w, http.StatusBadGateway, "CONNECTION_FAILED", message, true, extra)
	case pipeline.KindExecution:
		writeError(ctx, w, http.StatusBadRequest, "EXECUTION_FAILED", message, false, extra)
	case pipeline.KindEmptyResult:
		delete(extra, "details")
		writeError(ctx, w, http.StatusNotFound, "EMPTY_RESULT", message, false, extra)
	default:
		writeError(ctx, w, http.StatusInternalServerError, "INTERNAL", "question could not be answered", true, extra)
	}
}

type connectionTestRequest struct {
	Connection *connectionRequest `json:"connection"`
}

func handleConnectionTest(deps Dependencies, defaults session.Params, w http.ResponseWriter, r *http.Request) {
	if deps.Connections == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "GATEWAY_NOT_CONFIGURED", "database gateway is not configured", false, nil)
		return
	}

	var req connectionTestRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid connection test body", false, map[string]any{"details": err.Error()})
		return
	}
	params := req.Connection.apply(defaults)
	if err := params.Validate(); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_CONNECTION", err.Error(), false, nil)
		return
	}

	if err := deps.Connections.TestConnection(r.Context(), params); err != nil {
		writeError(r.Context(), w, http.StatusBadGateway, "CONNECTION_FAILED", "Could not connect to the database.", true, map[string]any{
			"connection": params.String(),
			"details":    observability.Mask(err.Error()),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "connection": params.String()})
}
