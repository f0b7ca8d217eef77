package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/asksql/asksql/internal/api"
	"github.com/asksql/asksql/internal/api/uistatic"
	"github.com/asksql/asksql/internal/archive"
	"github.com/asksql/asksql/internal/auth"
	"github.com/asksql/asksql/internal/config"
	"github.com/asksql/asksql/internal/database"
	"github.com/asksql/asksql/internal/llm"
	"github.com/asksql/asksql/internal/memory"
	"github.com/asksql/asksql/internal/nl2sql"
	"github.com/asksql/asksql/internal/observability"
	"github.com/asksql/asksql/internal/pipeline"
	"github.com/asksql/asksql/internal/query/sqldb"
	"github.com/asksql/asksql/internal/schema"
	"github.com/asksql/asksql/internal/storage"
	s3store "github.com/asksql/asksql/internal/storage/s3"
	"github.com/asksql/asksql/internal/summarize"
)

func main() {
	cfg, err := config.LoadFromEnv("asksql-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	dialect, err := database.ParseDialect(cfg.Database.Dialect)
	if err != nil {
		logger.Error("invalid database dialect", slog.Any("error", err))
		os.Exit(1)
	}
	db, err := database.Open(context.Background(), database.Config{
		Dialect:         dialect,
		DSN:             cfg.Database.DSN,
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Name:            cfg.Database.Name,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		logger.Error("failed to open database", slog.String("dialect", string(dialect)), slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	completer, err := llm.New(context.Background(), llm.Config{
		Provider: cfg.LLM.Provider,
		BaseURL:  cfg.LLM.BaseURL,
		APIKey:   cfg.LLM.APIKey,
		Model:    cfg.LLM.Model,
		Timeout:  cfg.LLM.Timeout,
	})
	if err != nil {
		logger.Error("failed to initialize llm provider", slog.String("provider", cfg.LLM.Provider), slog.Any("error", err))
		os.Exit(1)
	}

	introspector := &schema.Introspector{
		DB:             db,
		Dialect:        dialect,
		Schema:         cfg.Database.Schema,
		MaxKnownValues: cfg.Schema.MaxKnownValues,
		ExcludeColumns: strings.FieldsFunc(cfg.Schema.ExcludedColumns, func(r rune) bool { return r == ',' || r == ' ' }),
		Logger:         logger,
	}
	if cfg.LLM.DescribeColumns {
		introspector.Describer = &schema.LLMDescriber{
			Completer:   llm.Instrument(completer, "describe", cfg.LLM.Provider),
			Temperature: cfg.LLM.DescriptionTemperature,
		}
	}
	schemaSource := schema.NewSource(introspector, cfg.Schema.File, logger)
	initCtx, cancelInit := context.WithTimeout(context.Background(), 5*time.Minute)
	metadata, err := schemaSource.Init(initCtx, cfg.Schema.RefreshOnStart)
	cancelInit()
	if err != nil {
		logger.Error("failed to load schema metadata", slog.String("file", cfg.Schema.File), slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("schema metadata ready", slog.Int("tables", len(metadata.Tables)), slog.String("file", cfg.Schema.File))

	engine := sqldb.NewEngine(db, dialect, cfg.Database.StatementTimeout)
	service := &pipeline.Service{
		Schema:     schemaSource,
		Translator: nl2sql.NewLLMTranslator(llm.Instrument(completer, "translate", cfg.LLM.Provider), cfg.LLM.Temperature),
		Engine:     engine,
		Summarizer: &summarize.Summarizer{
			Completer:     llm.Instrument(completer, "summarize", cfg.LLM.Provider),
			Temperature:   cfg.LLM.SummaryTemperature,
			SuggestCharts: cfg.LLM.SuggestCharts,
			Logger:        logger,
		},
		Dialect:  dialect,
		RowLimit: cfg.Database.RowLimit,
		Logger:   logger,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps := api.Dependencies{
		Logger:   logger,
		Answerer: service,
		Schema:   schemaSource,
		UI:       uistatic.Handler(),
		Readiness: api.CombineReadinessChecks(
			api.CheckDatabase(engine.Ping),
			api.CheckSchemaLoaded(schemaSource),
		),
		DependencyTimeout: 2 * time.Second,
	}

	if cfg.Memory.Enabled {
		history, err := memory.Open(cfg.Memory.File, memory.Options{
			MaxEntries:          cfg.Memory.MaxEntries,
			SimilarityThreshold: cfg.Memory.SimilarityThreshold,
			Logger:              logger,
		})
		if err != nil {
			logger.Error("failed to open conversation memory", slog.String("file", cfg.Memory.File), slog.Any("error", err))
			os.Exit(1)
		}
		service.Memory = history
		deps.History = history
		if cfg.Memory.Watch {
			go func() {
				if err := history.Watch(ctx); err != nil {
					logger.Warn("conversation memory watcher stopped", slog.Any("error", err))
				}
			}()
		}

		if cfg.ObjectStore.Enabled {
			objectStore, err := newObjectStore(ctx, cfg)
			if err != nil {
				logger.Error("failed to initialize object store", slog.Any("error", err))
				os.Exit(1)
			}
			deps.Archiver = &archive.Archiver{
				Source:      history,
				ObjectStore: objectStore,
				Prefix:      cfg.Archive.Prefix,
				Logger:      logger,
			}
		} else {
			logger.Warn("object storage disabled, history archive routes will answer ARCHIVE_NOT_CONFIGURED")
		}
	}

	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address), slog.String("dialect", string(dialect)), slog.String("llm_provider", cfg.LLM.Provider))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}

func newObjectStore(ctx context.Context, cfg config.Config) (storage.ObjectStore, error) {
	return s3store.New(ctx, s3store.Config{
		Endpoint:         cfg.ObjectStore.Endpoint,
		Region:           cfg.ObjectStore.Region,
		Bucket:           cfg.ObjectStore.Bucket,
		AccessKeyID:      cfg.ObjectStore.AccessKeyID,
		SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
		UseSSL:           cfg.ObjectStore.UseSSL,
		Prefix:           cfg.ObjectStore.Prefix,
		AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
	})
}
