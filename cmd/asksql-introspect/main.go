package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/asksql/asksql/internal/config"
	"github.com/asksql/asksql/internal/database"
	"github.com/asksql/asksql/internal/llm"
	"github.com/asksql/asksql/internal/observability"
	"github.com/asksql/asksql/internal/schema"
)

func main() {
	output := flag.String("output", "", "metadata file to write (defaults to ASKSQL_SCHEMA_FILE)")
	describe := flag.Bool("describe", false, "ask the configured LLM for column descriptions (overrides ASKSQL_LLM_DESCRIBE_COLUMNS)")
	printText := flag.Bool("print", false, "print the rendered prompt context after writing")
	flag.Parse()

	cfg, err := config.LoadFromEnv("asksql-introspect")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	dialect, err := database.ParseDialect(cfg.Database.Dialect)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	path := cfg.Schema.File
	if strings.TrimSpace(*output) != "" {
		path = strings.TrimSpace(*output)
	}
	logger := observability.NewLogger(cfg, os.Stderr)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	db, err := database.Open(ctx, database.Config{
		Dialect:  dialect,
		DSN:      cfg.Database.DSN,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Name:     cfg.Database.Name,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "database open error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	introspector := &schema.Introspector{
		DB:             db,
		Dialect:        dialect,
		Schema:         cfg.Database.Schema,
		MaxKnownValues: cfg.Schema.MaxKnownValues,
		ExcludeColumns: strings.FieldsFunc(cfg.Schema.ExcludedColumns, func(r rune) bool { return r == ',' || r == ' ' }),
		Logger:         logger,
	}
	if *describe || cfg.LLM.DescribeColumns {
		completer, err := llm.New(ctx, llm.Config{
			Provider: cfg.LLM.Provider,
			BaseURL:  cfg.LLM.BaseURL,
			APIKey:   cfg.LLM.APIKey,
			Model:    cfg.LLM.Model,
			Timeout:  cfg.LLM.Timeout,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "llm init error: %v\n", err)
			os.Exit(1)
		}
		introspector.Describer = &schema.LLMDescriber{
			Completer:   llm.Instrument(completer, "describe", cfg.LLM.Provider),
			Temperature: cfg.LLM.DescriptionTemperature,
		}
	}

	metadata, err := schema.NewSource(introspector, path, logger).Refresh(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "introspection failed: %v\n", err)
		os.Exit(1)
	}

	columns := 0
	for _, table := range metadata.Tables {
		columns += len(table.Columns)
	}
	fmt.Printf("wrote %d table(s), %d column(s) to %s\n", len(metadata.Tables), columns, path)
	if *printText {
		fmt.Println(metadata.Render())
	}
}
