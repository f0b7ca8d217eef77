package schema

import (
	"context"
	"fmt"
	"strings"

	"github.com/asksql/asksql/internal/llm"
)

const describeSystemPrompt = "You are a database metadata expert. Write a single, concise (1-2 sentence) " +
	"human-readable description of a database column from its table name, column name, data type and sample values. " +
	"Answer with the description only."

// LLMDescriber asks a model for one short description per column.
type LLMDescriber struct {
	Completer   llm.Completer
	Temperature float64
}

func (d *LLMDescriber) DescribeColumn(ctx context.Context, column ColumnContext) (string, error) {
	if d.Completer == nil {
		return "", fmt.Errorf("completer is required")
	}
	samples := "none sampled"
	if len(column.SampleValues) > 0 {
		samples = strings.Join(column.SampleValues, ", ")
	}
	completion, err := d.Completer.Complete(ctx, llm.Prompt{
		System: describeSystemPrompt,
		User: fmt.Sprintf("Describe this column:\n- Table: %s\n- Column: %s\n- Data Type: %s\n- Sample Values: [%s]",
			column.Table, column.Column, column.DataType, samples),
		Temperature: llm.Temperature(d.Temperature),
		MaxTokens:   120,
	})
	if err != nil {
		return "", err
	}
	description := strings.Join(strings.Fields(llm.StripCodeFence(completion.Text)), " ")
	if description == "" {
		return "", fmt.Errorf("%w: empty column description", llm.ErrProvider)
	}
	return strings.Trim(description, `"`), nil
}
