package summarize

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/asksql/asksql/internal/llm"
	"github.com/asksql/asksql/internal/query"
)

var chartTypes = []string{"bar", "line", "pie", "scatter"}

type ChartSuggestion struct {
	ChartType string `json:"chart_type"`
	XAxis     string `json:"x_axis"`
	YAxis     string `json:"y_axis"`
}

const chartSystemPrompt = `You are a data visualization assistant. Pick the best chart for the question and data.
Answer with JSON only, in this exact shape:
{"chart_type": "bar", "x_axis": "column_name", "y_axis": "column_name"}
chart_type must be one of bar, line, pie, scatter, or "none" when no chart fits.
Use bar for rankings and comparisons, line for time series, pie for shares of a whole, scatter for two numeric measures.`

// SuggestChart is best effort: any model failure or unusable answer yields nil.
func (s *Summarizer) SuggestChart(ctx context.Context, question string, result query.Result) *ChartSuggestion {
	if s.Completer == nil || len(result.Rows) == 0 || len(result.Columns) < 2 {
		return nil
	}
	sample, err := ResultCSV(result, s.sampleRows())
	if err != nil {
		return nil
	}
	completion, err := s.Completer.Complete(ctx, llm.Prompt{
		System:      chartSystemPrompt,
		User:        fmt.Sprintf("QUESTION: %s\nCOLUMNS: %s\nDATA SAMPLE (CSV):\n%s", strings.TrimSpace(question), strings.Join(result.Columns, ", "), sample),
		Temperature: llm.Temperature(0),
	})
	if err != nil {
		s.logger(ctx).Warn("chart suggestion failed", slog.Any("error", err))
		return nil
	}
	suggestion, err := ParseChartSuggestion(completion.Text, result.Columns)
	if err != nil {
		s.logger(ctx).Debug("chart suggestion discarded", slog.Any("error", err))
		return nil
	}
	return suggestion
}

// ParseChartSuggestion decodes a model answer and checks it against columns.
// A "none" chart type returns (nil, nil).
func ParseChartSuggestion(text string, columns []string) (*ChartSuggestion, error) {
	var suggestion ChartSuggestion
	if err := json.Unmarshal([]byte(llm.StripCodeFence(text)), &suggestion); err != nil {
		return nil, fmt.Errorf("decode chart suggestion: %w", err)
	}
	suggestion.ChartType = strings.ToLower(strings.TrimSpace(suggestion.ChartType))
	if suggestion.ChartType == "none" || suggestion.ChartType == "" {
		return nil, nil
	}
	if !slices.Contains(chartTypes, suggestion.ChartType) {
		return nil, fmt.Errorf("unsupported chart type %q", suggestion.ChartType)
	}
	x, okX := matchColumn(columns, suggestion.XAxis)
	y, okY := matchColumn(columns, suggestion.YAxis)
	if !okX || !okY {
		return nil, fmt.Errorf("chart axes %q/%q not in result columns", suggestion.XAxis, suggestion.YAxis)
	}
	suggestion.XAxis, suggestion.YAxis = x, y
	return &suggestion, nil
}

func matchColumn(columns []string, name string) (string, bool) {
	name = strings.TrimSpace(name)
	for _, column := range columns {
		if strings.EqualFold(column, name) {
			return column, true
		}
	}
	return "", false
}
