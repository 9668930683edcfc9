package api

import (
	"net/http"
	"strings"

	"github.com/querychat/querychat/internal/observability"
	"github.com/querychat/querychat/internal/retrieval"
)

func handleSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Catalog == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SCHEMA_NOT_CONFIGURED", "schema catalog is not configured", false, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"catalog":  deps.Catalog,
		"snippets": deps.Catalog.Snippets(),
	})
}

type retrieveRequest struct {
	Question string `json:"question"`
	K        int    `json:"k"`
}

func handleSchemaRetrieve(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Retriever == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "RAG_NOT_CONFIGURED", "schema retrieval is not enabled", false, nil)
		return
	}

	var req retrieveRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid retrieve request body", false, map[string]any{"details": err.Error()})
		return
	}
	question := strings.TrimSpace(req.Question)
	if question == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return
	}
	k := req.K
	if k <= 0 {
		k = deps.Retriever.TopK()
	}

	matches, err := deps.Retriever.Retrieve(r.Context(), question, k)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadGateway, "MODEL_CALL_FAILED", "Failed to retrieve schema details.", true, map[string]any{"details": observability.Mask(err.Error())})
		return
	}
	if matches == nil {
		matches = []retrieval.Match{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"k":                k,
		"matches":          matches,
		"retrieved_schema": retrieval.JoinTexts(matches),
	})
}
