package nl2sql

import (
	"fmt"
	"strings"

	"github.com/asksql/asksql/internal/database"
	"github.com/asksql/asksql/internal/llm"
)

// BuildPrompt renders the single completion request used for translation.
func BuildPrompt(req Request, temperature float64) llm.Prompt {
	engine := req.Dialect.Title()
	if engine == "" {
		engine = database.Postgres.Title()
	}

	system := fmt.Sprintf(`You are an expert %[1]s developer. Translate the user's question into one syntactically correct, read-only %[1]s query.
Use only the tables and columns listed in the schema below.

RULES:
1. Output only the SQL statement. No explanations, no markdown, no code fences.
2. The statement must start with SELECT or WITH and must not modify data or schema.
3. Return exactly one statement.
4. Qualify columns with their table name or alias when more than one table is involved.
5. Use LIMIT for questions that ask for a small list or a top N (for example "top 5 products").
6. Use aggregations (SUM, COUNT, AVG) with GROUP BY where the question implies totals or rankings.
7. If the question cannot be answered with this schema, respond with exactly: %[2]s

SCHEMA:
%[3]s`, engine, NotPossibleSentinel, strings.TrimSpace(req.Schema.Render()))

	return llm.Prompt{
		System:      system,
		User:        "User question: " + strings.TrimSpace(req.Question),
		Temperature: llm.Temperature(temperature),
		MaxTokens:   1024,
	}
}
