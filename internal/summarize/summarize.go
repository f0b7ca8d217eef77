// Package summarize turns query results into a short natural-language answer
// and an optional declarative chart suggestion.
package summarize

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"strings"

	"github.com/asksql/asksql/internal/llm"
	"github.com/asksql/asksql/internal/observability"
	"github.com/asksql/asksql/internal/query"
)

// NoDataMessage is returned for empty results without consulting the model.
const NoDataMessage = "No data found for this question."

const defaultSampleRows = 10

const summarySystemPrompt = `You are a data analyst. Turn raw SQL results and the user's original question into a concise, human-readable answer.

RULES:
1. Start with a direct, conversational answer to the question.
2. Use short markdown lists or bold text for the key findings when helpful.
3. Keep the answer under 100 words.
4. Do not include the SQL query or repeat the raw data.`

type Summary struct {
	Text  string           `json:"text"`
	Chart *ChartSuggestion `json:"chart,omitempty"`
}

type Summarizer struct {
	Completer     llm.Completer
	Temperature   float64
	SampleRows    int
	SuggestCharts bool
	Logger        *slog.Logger
}

// Summarize describes result in prose. An empty result never reaches the
// model and never fails; a model failure on a non-empty result is returned.
func (s *Summarizer) Summarize(ctx context.Context, question string, result query.Result) (Summary, error) {
	if len(result.Rows) == 0 {
		return Summary{Text: NoDataMessage}, nil
	}
	if s.Completer == nil {
		return Summary{}, fmt.Errorf("completer is required")
	}

	sample, err := ResultCSV(result, s.sampleRows())
	if err != nil {
		return Summary{}, err
	}
	completion, err := s.Completer.Complete(ctx, llm.Prompt{
		System:      summarySystemPrompt,
		User:        fmt.Sprintf("USER QUESTION: %s\n\nSQL RESULTS (CSV, first %d of %d rows):\n%s", strings.TrimSpace(question), min(len(result.Rows), s.sampleRows()), len(result.Rows), sample),
		Temperature: llm.Temperature(s.Temperature),
	})
	if err != nil {
		return Summary{}, fmt.Errorf("summarize result: %w", err)
	}
	text := strings.TrimSpace(completion.Text)
	if text == "" {
		return Summary{}, fmt.Errorf("%w: model returned empty summary", llm.ErrProvider)
	}

	summary := Summary{Text: text}
	if s.SuggestCharts {
		summary.Chart = s.SuggestChart(ctx, question, result)
	}
	return summary, nil
}

// ResultCSV renders the header and at most maxRows rows as CSV.
func ResultCSV(result query.Result, maxRows int) (string, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write(result.Columns); err != nil {
		return "", fmt.Errorf("write csv header: %w", err)
	}
	for i, row := range result.Rows {
		if maxRows > 0 && i >= maxRows {
			break
		}
		record := make([]string, len(row))
		for j, value := range row {
			if value == nil {
				record[j] = "NULL"
				continue
			}
			record[j] = fmt.Sprint(value)
		}
		if err := writer.Write(record); err != nil {
			return "", fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return "", fmt.Errorf("flush csv: %w", err)
	}
	return buf.String(), nil
}

func (s *Summarizer) sampleRows() int {
	if s.SampleRows > 0 {
		return s.SampleRows
	}
	return defaultSampleRows
}

func (s *Summarizer) logger(ctx context.Context) *slog.Logger {
	return observability.LoggerWithTrace(ctx, s.Logger)
}
