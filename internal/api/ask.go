package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/asksql/asksql/internal/auth"
	"github.com/asksql/asksql/internal/llm"
	"github.com/asksql/asksql/internal/nl2sql"
	"github.com/asksql/asksql/internal/pipeline"
	"github.com/asksql/asksql/internal/query"
	"github.com/asksql/asksql/internal/sqlguard"
	"github.com/asksql/asksql/internal/summarize"
)

const notPossibleMessage = "This question cannot be answered from the available tables."

type askRequest struct {
	Question  string `json:"question"`
	SkipCache bool   `json:"skip_cache"`
}

type askResponse struct {
	ID        string                     `json:"id"`
	Question  string                     `json:"question"`
	SQL       string                     `json:"sql"`
	Columns   []string                   `json:"columns"`
	Rows      []map[string]any           `json:"rows"`
	Truncated bool                       `json:"truncated"`
	Summary   string                     `json:"summary"`
	Chart     *summarize.ChartSuggestion `json:"chart,omitempty"`
	Cached    bool                       `json:"cached"`
	CreatedAt time.Time                  `json:"created_at"`
	Stats     map[string]any             `json:"stats"`
}

type translateRequest struct {
	Question string `json:"question"`
}

type queryRequest struct {
	SQL      string `json:"sql"`
	RowLimit int    `json:"row_limit"`
}

type queryResponse struct {
	SQL       string         `json:"sql"`
	Columns   []string       `json:"columns"`
	Rows      [][]any        `json:"rows"`
	Truncated bool           `json:"truncated"`
	Stats     map[string]any `json:"stats"`
}

func handleAsk(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Answerer == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ASK_NOT_CONFIGURED", "question answering is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleAsker); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var req askRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid ask request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return
	}

	answer, err := deps.Answerer.Ask(r.Context(), pipeline.Question{Text: req.Question, SkipCache: req.SkipCache})
	if err != nil {
		writePipelineError(r.Context(), w, err, http.StatusUnprocessableEntity)
		return
	}

	columns := answer.Columns
	if columns == nil {
		columns = []string{}
	}
	writeJSON(w, http.StatusOK, askResponse{
		ID:        answer.ID,
		Question:  answer.Question,
		SQL:       answer.SQL,
		Columns:   columns,
		Rows:      answer.Result().RowMaps(),
		Truncated: answer.Truncated,
		Summary:   answer.Summary,
		Chart:     answer.Chart,
		Cached:    answer.Cached,
		CreatedAt: answer.CreatedAt,
		Stats: map[string]any{
			"row_count":   len(answer.Rows),
			"duration_ms": answer.Duration.Milliseconds(),
			"provider":    answer.Provider,
			"model":       answer.Model,
		},
	})
}

func handleTranslate(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Answerer == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "TRANSLATE_NOT_CONFIGURED", "query translation is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleAsker); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var req translateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid translation request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return
	}

	result, err := deps.Answerer.Translate(r.Context(), req.Question)
	if err != nil {
		writePipelineError(r.Context(), w, err, http.StatusUnprocessableEntity)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sql":      result.SQL,
		"provider": result.Provider,
		"model":    result.Model,
	})
}

func handleQuery(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Answerer == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "QUERY_NOT_CONFIGURED", "query execution is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleAsker); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var req queryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid query request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(req.SQL) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_REQUIRED", "sql is required", false, nil)
		return
	}
	if req.RowLimit < 0 {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_ROW_LIMIT", "row_limit must be >= 0", false, nil)
		return
	}

	result, safe, err := deps.Answerer.Run(r.Context(), req.SQL, req.RowLimit)
	if err != nil {
		writePipelineError(r.Context(), w, err, http.StatusBadRequest)
		return
	}

	columns := result.Columns
	if columns == nil {
		columns = []string{}
	}
	rows := result.Rows
	if rows == nil {
		rows = [][]any{}
	}
	writeJSON(w, http.StatusOK, queryResponse{
		SQL:       safe,
		Columns:   columns,
		Rows:      rows,
		Truncated: result.Truncated,
		Stats: map[string]any{
			"row_count":   len(rows),
			"duration_ms": result.Duration.Milliseconds(),
		},
	})
}

// writePipelineError maps pipeline failures onto the error envelope.
// rejectedStatus distinguishes generated SQL (422) from caller SQL (400).
func writePipelineError(ctx context.Context, w http.ResponseWriter, err error, rejectedStatus int) {
	var rejection *sqlguard.RejectionError
	switch {
	case errors.Is(err, pipeline.ErrEmptyQuestion):
		writeError(ctx, w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
	case errors.Is(err, nl2sql.ErrQueryNotPossible):
		writeError(ctx, w, http.StatusOK, "QUERY_NOT_POSSIBLE", notPossibleMessage, false, nil)
	case errors.As(err, &rejection):
		writeError(ctx, w, rejectedStatus, "SQL_NOT_ALLOWED", "unsafe query refused: only a single read-only SELECT/WITH statement is allowed", false, map[string]any{
			"reason":  rejection.Reason,
			"keyword": rejection.Keyword,
		})
	case errors.Is(err, sqlguard.ErrUnsafeSQL):
		writeError(ctx, w, rejectedStatus, "SQL_NOT_ALLOWED", "unsafe query refused", false, nil)
	case errors.Is(err, pipeline.ErrSchemaNotLoaded):
		writeError(ctx, w, http.StatusServiceUnavailable, "SCHEMA_UNAVAILABLE", "schema metadata is not loaded", true, nil)
	case errors.Is(err, query.ErrConnection):
		writeError(ctx, w, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "database is unavailable", true, map[string]any{"details": err.Error()})
	case errors.Is(err, llm.ErrProvider):
		writeError(ctx, w, http.StatusBadGateway, "LLM_FAILED", "language model request failed", true, map[string]any{"details": err.Error()})
	case errors.Is(err, context.Canceled):
		writeError(ctx, w, http.StatusRequestTimeout, "REQUEST_CANCELED", "request was canceled", true, nil)
	default:
		writeError(ctx, w, http.StatusBadRequest, "QUERY_EXECUTION_FAILED", "query execution failed", false, map[string]any{"details": err.Error()})
	}
}
