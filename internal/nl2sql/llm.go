package nl2sql

import (
	"context"
	"fmt"
	"strings"

	"github.com/asksql/asksql/internal/llm"
)

// LLMTranslator asks a chat model for SQL with one request per question.
type LLMTranslator struct {
	Completer   llm.Completer
	Temperature float64
}

func NewLLMTranslator(completer llm.Completer, temperature float64) *LLMTranslator {
	return &LLMTranslator{Completer: completer, Temperature: temperature}
}

func (t *LLMTranslator) Translate(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.Question) == "" {
		return Result{}, fmt.Errorf("question is required")
	}
	if t.Completer == nil {
		return Result{}, fmt.Errorf("completer is required")
	}

	completion, err := t.Completer.Complete(ctx, BuildPrompt(req, t.Temperature))
	if err != nil {
		return Result{}, err
	}

	sql := llm.StripCodeFence(completion.Text)
	if strings.Contains(sql, NotPossibleSentinel) {
		return Result{}, ErrQueryNotPossible
	}
	if sql == "" {
		return Result{}, fmt.Errorf("%w: model returned empty SQL", llm.ErrProvider)
	}
	return Result{
		SQL:      sql,
		Provider: completion.Provider,
		Model:    completion.Model,
	}, nil
}
