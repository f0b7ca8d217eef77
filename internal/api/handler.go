package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/asksql/asksql/internal/archive"
	"github.com/asksql/asksql/internal/config"
	"github.com/asksql/asksql/internal/memory"
	"github.com/asksql/asksql/internal/nl2sql"
	"github.com/asksql/asksql/internal/observability"
	"github.com/asksql/asksql/internal/pipeline"
	"github.com/asksql/asksql/internal/query"
	"github.com/asksql/asksql/internal/schema"
	"github.com/asksql/asksql/internal/storage"
)

const maxRequestBodyBytes = 1 << 20

type ReadinessCheck func(ctx context.Context) error

type Answerer interface {
	Ask(ctx context.Context, question pipeline.Question) (pipeline.Answer, error)
	Translate(ctx context.Context, question string) (nl2sql.Result, error)
	Run(ctx context.Context, sqlText string, rowLimit int) (query.Result, string, error)
}

type SchemaService interface {
	Current() schema.Metadata
	Refresh(ctx context.Context) (schema.Metadata, error)
}

type HistoryReader interface {
	Recent(limit int) []memory.Entry
}

type HistoryArchiver interface {
	Archive(ctx context.Context, opts archive.Options) (archive.Result, error)
	List(ctx context.Context) ([]storage.ObjectInfo, error)
	Open(ctx context.Context, key string) (io.ReadCloser, storage.ObjectInfo, error)
	Delete(ctx context.Context, key string) error
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	AuthMiddleware    func(http.Handler) http.Handler
	DependencyTimeout time.Duration
	Answerer          Answerer
	Schema            SchemaService
	History           HistoryReader
	Archiver          HistoryArchiver
	UI                http.Handler
}

type route struct {
	pattern string
	handler func(Dependencies, http.ResponseWriter, *http.Request)
}

var protectedRoutes = []route{
	{pattern: "POST /v1/ask", handler: handleAsk},
	{pattern: "POST /v1/query/translate", handler: handleTranslate},
	{pattern: "POST /v1/query", handler: handleQuery},
	{pattern: "GET /v1/schema", handler: handleGetSchema},
	{pattern: "POST /v1/schema/refresh", handler: handleRefreshSchema},
	{pattern: "GET /v1/history", handler: handleHistory},
	{pattern: "POST /v1/history/archive", handler: handleArchiveHistory},
	{pattern: "GET /v1/history/archives", handler: handleListArchives},
	{pattern: "GET /v1/history/archives/{key...}", handler: handleGetArchive},
	{pattern: "DELETE /v1/history/archives/{key...}", handler: handleDeleteArchive},
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	protected := http.NewServeMux()
	for _, rt := range protectedRoutes {
		handler := rt.handler
		protected.HandleFunc(rt.pattern, func(w http.ResponseWriter, r *http.Request) {
			handler(deps, w, r)
		})
	}

	var protectedHandler http.Handler = protected
	if cfg.Auth.Required {
		if deps.AuthMiddleware == nil {
			if deps.Logger != nil {
				deps.Logger.Error("auth required but auth middleware missing")
			}
			protectedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth middleware is required by configuration", false, nil)
			})
		} else {
			protectedHandler = deps.AuthMiddleware(protectedHandler)
		}
	}
	for _, rt := range protectedRoutes {
		mux.Handle(rt.pattern, protectedHandler)
	}
	if deps.UI != nil {
		mux.Handle("GET /{path...}", deps.UI)
	}

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append([]func(http.Handler) http.Handler{observability.RecoverMiddleware(deps.Logger)}, middlewares...)
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

// CheckDatabase pings the database used for questions.
func CheckDatabase(ping func(ctx context.Context) error) ReadinessCheck {
	return func(ctx context.Context) error {
		if ping == nil {
			return errors.New("database is not configured")
		}
		return ping(ctx)
	}
}

func CheckSchemaLoaded(source interface{ Current() schema.Metadata }) ReadinessCheck {
	return func(_ context.Context) error {
		if source == nil || source.Current().Empty() {
			return errors.New("schema metadata is not loaded")
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}
