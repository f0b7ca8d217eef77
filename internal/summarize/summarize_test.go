package summarize

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/asksql/asksql/internal/llm"
	"github.com/asksql/asksql/internal/llm/llmtest"
	"github.com/asksql/asksql/internal/query"
)

func topProducts(n int) query.Result {
	result := query.Result{Columns: []string{"product_name", "units_sold"}}
	for i := 0; i < n; i++ {
		result.Rows = append(result.Rows, []any{fmt.Sprintf("Product %d", i), int64(100 - i)})
	}
	return result
}

func TestSummarizeEmptyResultSkipsModel(t *testing.T) {
	completer := llmtest.NewScripted()
	summarizer := &Summarizer{Completer: completer, SuggestCharts: true}

	summary, err := summarizer.Summarize(context.Background(), "anything sold on Mars?", query.Result{Columns: []string{"x"}})
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if summary.Text == "" || summary.Text != NoDataMessage {
		t.Fatalf("Text = %q", summary.Text)
	}
	if summary.Chart != nil {
		t.Fatalf("Chart = %+v, want nil", summary.Chart)
	}
	if completer.Calls() != 0 {
		t.Fatalf("completer calls = %d, want 0", completer.Calls())
	}
}

func TestSummarizeSendsFirstRowsAsCSV(t *testing.T) {
	completer := llmtest.Texts("**Product 0** leads with 100 units.")
	summarizer := &Summarizer{Completer: completer, Temperature: 0.5}

	summary, err := summarizer.Summarize(context.Background(), "top products?", topProducts(12))
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if summary.Text != "**Product 0** leads with 100 units." {
		t.Fatalf("Text = %q", summary.Text)
	}

	prompt := completer.Prompts()[0].User
	if !strings.Contains(prompt, "product_name,units_sold\nProduct 0,100\n") {
		t.Fatalf("prompt missing CSV header/rows:\n%s", prompt)
	}
	if strings.Contains(prompt, "Product 10") {
		t.Fatalf("prompt should contain only the first 10 rows:\n%s", prompt)
	}
	if !strings.Contains(prompt, "first 10 of 12 rows") {
		t.Fatalf("prompt missing row counts:\n%s", prompt)
	}
}

func TestSummarizePropagatesModelFailure(t *testing.T) {
	boom := fmt.Errorf("%w: gemini: 503", llm.ErrProvider)
	summarizer := &Summarizer{Completer: llmtest.NewScripted(llmtest.Reply{Err: boom})}

	_, err := summarizer.Summarize(context.Background(), "q", topProducts(1))
	if !errors.Is(err, llm.ErrProvider) {
		t.Fatalf("Summarize() error = %v, want ErrProvider", err)
	}
}

func TestSummarizeAddsChartSuggestion(t *testing.T) {
	completer := llmtest.Texts(
		"Product 0 sold the most.",
		"```json\n{\"chart_type\": \"Bar\", \"x_axis\": \"PRODUCT_NAME\", \"y_axis\": \"units_sold\"}\n```",
	)
	summarizer := &Summarizer{Completer: completer, SuggestCharts: true}

	summary, err := summarizer.Summarize(context.Background(), "top products?", topProducts(3))
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if summary.Chart == nil {
		t.Fatal("expected chart suggestion")
	}
	if *summary.Chart != (ChartSuggestion{ChartType: "bar", XAxis: "product_name", YAxis: "units_sold"}) {
		t.Fatalf("Chart = %+v", summary.Chart)
	}
}

func TestSummarizeIgnoresChartFailures(t *testing.T) {
	completer := llmtest.NewScripted(
		llmtest.Reply{Text: "Summary text."},
		llmtest.Reply{Err: errors.New("chart model down")},
	)
	summarizer := &Summarizer{Completer: completer, SuggestCharts: true}

	summary, err := summarizer.Summarize(context.Background(), "q", topProducts(2))
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if summary.Text != "Summary text." || summary.Chart != nil {
		t.Fatalf("summary = %+v", summary)
	}
}

func TestParseChartSuggestion(t *testing.T) {
	columns := []string{"category", "total"}
	tests := []struct {
		text    string
		wantNil bool
		wantErr bool
	}{
		{text: `{"chart_type":"pie","x_axis":"category","y_axis":"total"}`},
		{text: `{"chart_type":"none"}`, wantNil: true},
		{text: `not json`, wantNil: true, wantErr: true},
		{text: `{"chart_type":"heatmap","x_axis":"category","y_axis":"total"}`, wantNil: true, wantErr: true},
		{text: `{"chart_type":"bar","x_axis":"category","y_axis":"revenue"}`, wantNil: true, wantErr: true},
	}
	for _, tc := range tests {
		got, err := ParseChartSuggestion(tc.text, columns)
		if (err != nil) != tc.wantErr {
			t.Fatalf("ParseChartSuggestion(%q) error = %v, wantErr %v", tc.text, err, tc.wantErr)
		}
		if (got == nil) != tc.wantNil {
			t.Fatalf("ParseChartSuggestion(%q) = %+v, wantNil %v", tc.text, got, tc.wantNil)
		}
	}
}

func TestResultCSVRendersNulls(t *testing.T) {
	out, err := ResultCSV(query.Result{
		Columns: []string{"name", "region"},
		Rows:    [][]any{{"Alfreds, GmbH", nil}},
	}, 10)
	if err != nil {
		t.Fatalf("ResultCSV() error = %v", err)
	}
	if out != "name,region\n\"Alfreds, GmbH\",NULL\n" {
		t.Fatalf("ResultCSV() = %q", out)
	}
}
