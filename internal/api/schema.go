package api

import (
	"net/http"

	"github.com/asksql/asksql/internal/auth"
	"github.com/asksql/asksql/internal/query"
)

func handleGetSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Schema == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SCHEMA_NOT_CONFIGURED", "schema source is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleAsker); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	metadata := deps.Schema.Current()
	if metadata.Empty() {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "SCHEMA_UNAVAILABLE", "schema metadata is not loaded", true, nil)
		return
	}
	writeJSON(w, http.StatusOK, metadata)
}

func handleRefreshSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Schema == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SCHEMA_NOT_CONFIGURED", "schema source is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleAdmin); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	metadata, err := deps.Schema.Refresh(r.Context())
	if err != nil {
		if query.IsConnectionFailure(err) {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "database is unavailable", true, map[string]any{"details": err.Error()})
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "SCHEMA_REFRESH_FAILED", "failed to refresh schema metadata", true, map[string]any{"details": err.Error()})
		return
	}

	columns := 0
	for _, table := range metadata.Tables {
		columns += len(table.Columns)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"dialect":      metadata.Dialect,
		"schema":       metadata.Schema,
		"generated_at": metadata.GeneratedAt,
		"tables":       len(metadata.Tables),
		"columns":      columns,
	})
}
