package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"time"

	"github.com/asksql/asksql/internal/archive"
	"github.com/asksql/asksql/internal/auth"
	"github.com/asksql/asksql/internal/memory"
	"github.com/asksql/asksql/internal/observability"
	"github.com/asksql/asksql/internal/storage"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
)

type archiveRequest struct {
	Since *time.Time `json:"since"`
}

func handleHistory(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.History == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "HISTORY_NOT_CONFIGURED", "conversation memory is disabled", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleAsker); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a positive integer", false, map[string]any{"limit": raw})
			return
		}
		limit = min(parsed, maxHistoryLimit)
	}

	entries := deps.History.Recent(limit)
	if entries == nil {
		entries = []memory.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "count": len(entries)})
}

func handleArchiveHistory(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Archiver == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ARCHIVE_NOT_CONFIGURED", "history archiving is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleAdmin); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var req archiveRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid archive request body", false, map[string]any{"details": err.Error()})
		return
	}
	opts := archive.Options{}
	if req.Since != nil {
		opts.Since = req.Since.UTC()
	}

	result, err := deps.Archiver.Archive(r.Context(), opts)
	if err != nil {
		if errors.Is(err, archive.ErrNothingToArchive) {
			writeError(r.Context(), w, http.StatusConflict, "NOTHING_TO_ARCHIVE", err.Error(), false, nil)
			return
		}
		writeError(r.Context(), w, http.StatusBadGateway, "ARCHIVE_FAILED", "failed to archive conversation history", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func handleListArchives(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Archiver == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ARCHIVE_NOT_CONFIGURED", "history archiving is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleAsker); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	objects, err := deps.Archiver.List(r.Context())
	if err != nil {
		writeError(r.Context(), w, http.StatusBadGateway, "ARCHIVE_LIST_FAILED", "failed to list archives", true, map[string]any{"details": err.Error()})
		return
	}
	if objects == nil {
		objects = []storage.ObjectInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"archives": objects, "count": len(objects)})
}

// handleGetArchive streams one Parquet archive back to the caller.
func handleGetArchive(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Archiver == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ARCHIVE_NOT_CONFIGURED", "history archiving is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleAsker); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	key := r.PathValue("key")
	body, info, err := deps.Archiver.Open(r.Context(), key)
	if err != nil {
		writeArchiveError(w, r, key, err, "ARCHIVE_READ_FAILED", "failed to read archive")
		return
	}
	defer func() { _ = body.Close() }()

	contentType := info.ContentType
	if contentType == "" {
		contentType = archive.ContentType
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	w.Header().Set("Content-Disposition", `attachment; filename="`+path.Base(key)+`"`)
	if info.ETag != "" {
		w.Header().Set("ETag", `"`+info.ETag+`"`)
	}
	if entries := info.Metadata["entries"]; entries != "" {
		w.Header().Set("X-Archive-Entries", entries)
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		observability.LoggerWithTrace(r.Context(), deps.Logger).WarnContext(r.Context(), "archive download interrupted",
			slog.String("key", key),
			slog.Any("error", err),
		)
	}
}

func handleDeleteArchive(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Archiver == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ARCHIVE_NOT_CONFIGURED", "history archiving is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleAdmin); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	key := r.PathValue("key")
	if err := deps.Archiver.Delete(r.Context(), key); err != nil {
		writeArchiveError(w, r, key, err, "ARCHIVE_DELETE_FAILED", "failed to delete archive")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"key": key, "deleted": true})
}

func writeArchiveError(w http.ResponseWriter, r *http.Request, key string, err error, code, message string) {
	details := map[string]any{"key": key}
	switch {
	case errors.Is(err, archive.ErrInvalidKey):
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_ARCHIVE_KEY", err.Error(), false, details)
	case errors.Is(err, storage.ErrObjectNotFound):
		writeError(r.Context(), w, http.StatusNotFound, "ARCHIVE_NOT_FOUND", "archive not found", false, details)
	default:
		details["details"] = err.Error()
		writeError(r.Context(), w, http.StatusBadGateway, code, message, true, details)
	}
}
