package nl2sql

import (
	"context"
	"errors"

	"github.com/asksql/asksql/internal/database"
	"github.com/asksql/asksql/internal/schema"
)

// NotPossibleSentinel is the literal answer models are told to give when the
// schema cannot answer a question.
const NotPossibleSentinel = "QUERY_NOT_POSSIBLE"

var ErrQueryNotPossible = errors.New("question cannot be answered from the schema")

type Request struct {
	Question string
	Schema   schema.Metadata
	Dialect  database.Dialect
}

type Result struct {
	SQL      string `json:"sql"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

type Translator interface {
	Translate(ctx context.Context, req Request) (Result, error)
}
