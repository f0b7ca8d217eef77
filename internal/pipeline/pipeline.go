// Package pipeline answers one question end to end: cache lookup, SQL
// generation, read-only validation, execution, summary and cache write.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/asksql/asksql/internal/database"
	"github.com/asksql/asksql/internal/llm"
	"github.com/asksql/asksql/internal/memory"
	"github.com/asksql/asksql/internal/nl2sql"
	"github.com/asksql/asksql/internal/observability"
	"github.com/asksql/asksql/internal/query"
	"github.com/asksql/asksql/internal/schema"
	"github.com/asksql/asksql/internal/sqlguard"
	"github.com/asksql/asksql/internal/summarize"
)

var (
	ErrEmptyQuestion   = errors.New("question is required")
	ErrSchemaNotLoaded = errors.New("schema metadata is not loaded")
)

const (
	OutcomeAnswered    = "answered"
	OutcomeCached      = "cached"
	OutcomeNoData      = "no_data"
	OutcomeNotPossible = "not_possible"
	OutcomeRejected    = "rejected"
	OutcomeDBError     = "db_error"
	OutcomeLLMError    = "llm_error"
	OutcomeExecError   = "exec_error"
	OutcomeInvalid     = "invalid"
)

type SchemaProvider interface {
	Current() schema.Metadata
}

type Summarizer interface {
	Summarize(ctx context.Context, question string, result query.Result) (summarize.Summary, error)
}

type Cache interface {
	Lookup(question string) (memory.Entry, bool)
	Store(question string, record memory.Record) (memory.Entry, error)
}

type Service struct {
	Schema     SchemaProvider
	Translator nl2sql.Translator
	Engine     query.Engine
	Summarizer Summarizer
	// Memory is optional.
	Memory   Cache
	Dialect  database.Dialect
	RowLimit int
	Logger   *slog.Logger
	Clock    func() time.Time
}

type Question struct {
	Text      string
	SkipCache bool
}

type Answer struct {
	ID        string
	Question  string
	SQL       string
	Columns   []string
	Rows      [][]any
	Truncated bool
	Summary   string
	Chart     *summarize.ChartSuggestion
	Cached    bool
	Provider  string
	Model     string
	Duration  time.Duration
	CreatedAt time.Time
}

// Result returns the answer rows as a query result.
func (a Answer) Result() query.Result {
	return query.Result{Columns: a.Columns, Rows: a.Rows, Truncated: a.Truncated, Duration: a.Duration}
}

// Ask runs the full flow for one question. Nothing reaches the engine unless
// the validator accepted it.
func (s *Service) Ask(ctx context.Context, q Question) (answer Answer, err error) {
	logger := s.logger(ctx)
	outcome := OutcomeAnswered
	defer func() {
		if err != nil {
			outcome = Outcome(err)
		}
		observability.ObservePipelineRun(outcome)
	}()

	question := strings.TrimSpace(q.Text)
	if question == "" {
		return Answer{}, ErrEmptyQuestion
	}

	if s.Memory != nil && !q.SkipCache {
		entry, hit := s.Memory.Lookup(question)
		observability.ObserveMemoryLookup(hit)
		if hit {
			outcome = OutcomeCached
			logger.InfoContext(ctx, "answered from conversation memory", slog.String("entry_id", entry.ID))
			return answerFromEntry(question, entry, logger), nil
		}
	}

	generated, err := s.Translate(ctx, question)
	if err != nil {
		return Answer{}, err
	}

	result, err := s.Engine.Execute(ctx, query.Request{SQL: generated.SQL, RowLimit: s.RowLimit})
	if err != nil {
		return Answer{}, fmt.Errorf("execute generated sql: %w", err)
	}

	summary, err := s.Summarizer.Summarize(ctx, question, result)
	if err != nil {
		return Answer{}, err
	}
	if len(result.Rows) == 0 {
		outcome = OutcomeNoData
	}

	answer = Answer{
		ID:        uuid.NewString(),
		Question:  question,
		SQL:       generated.SQL,
		Columns:   result.Columns,
		Rows:      result.Rows,
		Truncated: result.Truncated,
		Summary:   summary.Text,
		Chart:     summary.Chart,
		Provider:  generated.Provider,
		Model:     generated.Model,
		Duration:  result.Duration,
		CreatedAt: s.now().UTC(),
	}
	s.remember(ctx, answer, logger)

	logger.InfoContext(ctx, "question answered",
		slog.String("answer_id", answer.ID),
		slog.Int("rows", len(answer.Rows)),
		slog.Bool("truncated", answer.Truncated),
		slog.Duration("query_duration", answer.Duration),
	)
	return answer, nil
}

// Translate generates SQL for question and validates it without executing.
func (s *Service) Translate(ctx context.Context, question string) (nl2sql.Result, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nl2sql.Result{}, ErrEmptyQuestion
	}

	metadata := s.Schema.Current()
	if metadata.Empty() {
		return nl2sql.Result{}, ErrSchemaNotLoaded
	}

	generated, err := s.Translator.Translate(ctx, nl2sql.Request{
		Question: question,
		Schema:   metadata,
		Dialect:  s.Dialect,
	})
	if err != nil {
		if errors.Is(err, nl2sql.ErrQueryNotPossible) {
			return nl2sql.Result{}, err
		}
		return nl2sql.Result{}, fmt.Errorf("translate question: %w", err)
	}

	safe, err := sqlguard.Validate(generated.SQL, s.Dialect)
	if err != nil {
		observability.IncrementSQLRejection()
		s.logger(ctx).WarnContext(ctx, "generated sql refused",
			slog.String("sql", generated.SQL),
			slog.Any("error", err),
		)
		return nl2sql.Result{}, err
	}
	generated.SQL = safe
	return generated, nil
}

// Run validates and executes caller-supplied SQL. rowLimit <= 0 uses the
// service row limit.
func (s *Service) Run(ctx context.Context, sqlText string, rowLimit int) (query.Result, string, error) {
	safe, err := sqlguard.Validate(sqlText, s.Dialect)
	if err != nil {
		observability.IncrementSQLRejection()
		return query.Result{}, "", err
	}
	if rowLimit <= 0 || (s.RowLimit > 0 && rowLimit > s.RowLimit) {
		rowLimit = s.RowLimit
	}
	result, err := s.Engine.Execute(ctx, query.Request{SQL: safe, RowLimit: rowLimit})
	if err != nil {
		return query.Result{}, safe, err
	}
	return result, safe, nil
}

// Outcome classifies err into the pipeline outcome label.
func Outcome(err error) string {
	var rejection *sqlguard.RejectionError
	switch {
	case err == nil:
		return OutcomeAnswered
	case errors.Is(err, ErrEmptyQuestion):
		return OutcomeInvalid
	case errors.Is(err, nl2sql.ErrQueryNotPossible):
		return OutcomeNotPossible
	case errors.As(err, &rejection), errors.Is(err, sqlguard.ErrUnsafeSQL):
		return OutcomeRejected
	case errors.Is(err, query.ErrConnection), errors.Is(err, ErrSchemaNotLoaded):
		return OutcomeDBError
	case errors.Is(err, llm.ErrProvider):
		return OutcomeLLMError
	default:
		return OutcomeExecError
	}
}

func (s *Service) remember(ctx context.Context, answer Answer, logger *slog.Logger) {
	if s.Memory == nil {
		return
	}
	var chart json.RawMessage
	if answer.Chart != nil {
		encoded, err := json.Marshal(answer.Chart)
		if err == nil {
			chart = encoded
		}
	}
	_, err := s.Memory.Store(answer.Question, memory.Record{
		ID:        answer.ID,
		SQL:       answer.SQL,
		Summary:   answer.Summary,
		Columns:   answer.Columns,
		Rows:      answer.Rows,
		Chart:     chart,
		Truncated: answer.Truncated,
		CreatedAt: answer.CreatedAt,
	})
	if err != nil {
		logger.WarnContext(ctx, "conversation memory write failed", slog.Any("error", err))
	}
}

func answerFromEntry(question string, entry memory.Entry, logger *slog.Logger) Answer {
	answer := Answer{
		ID:        entry.ID,
		Question:  question,
		SQL:       entry.SQL,
		Columns:   entry.Columns,
		Rows:      entry.Rows,
		Summary:   entry.Summary,
		Truncated: entry.Truncated,
		Cached:    true,
		CreatedAt: entry.CreatedAt,
	}
	if len(entry.Chart) > 0 {
		var chart summarize.ChartSuggestion
		if err := json.Unmarshal(entry.Chart, &chart); err != nil {
			logger.Warn("cached chart suggestion unreadable", slog.String("entry_id", entry.ID), slog.Any("error", err))
		} else {
			answer.Chart = &chart
		}
	}
	return answer
}

func (s *Service) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now()
}

func (s *Service) logger(ctx context.Context) *slog.Logger {
	return observability.LoggerWithTrace(ctx, s.Logger)
}
