package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadDefaultsForDevProfile(t *testing.T) {
	cfg, err := Load("asksql-api", mapLookup(map[string]string{}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileDev {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileDev)
	}
	if cfg.HTTP.Address != ":8080" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.Database.Dialect != "postgres" || cfg.Database.Port != 5432 {
		t.Fatalf("Database = %+v", cfg.Database)
	}
	if cfg.LLM.Provider != "gemini" {
		t.Fatalf("LLM.Provider = %q", cfg.LLM.Provider)
	}
	if cfg.LLM.Temperature != 0.5 || cfg.LLM.DescriptionTemperature != 0.1 {
		t.Fatalf("LLM temperatures = %v/%v", cfg.LLM.Temperature, cfg.LLM.DescriptionTemperature)
	}
	if cfg.Schema.File != "schema_metadata.json" {
		t.Fatalf("Schema.File = %q", cfg.Schema.File)
	}
	if cfg.Schema.MaxKnownValues != 10 {
		t.Fatalf("Schema.MaxKnownValues = %d", cfg.Schema.MaxKnownValues)
	}
	if !cfg.Memory.Enabled || cfg.Memory.MaxEntries != 200 || cfg.Memory.SimilarityThreshold != 0.8 {
		t.Fatalf("Memory = %+v", cfg.Memory)
	}
	if cfg.ObjectStore.Enabled {
		t.Fatal("ObjectStore.Enabled should default to false")
	}
	if cfg.Observability.LogLevel != slog.LevelDebug {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if cfg.Auth.Required {
		t.Fatal("Auth.Required should default to false in dev")
	}
}

func TestLoadProdProfileDefaults(t *testing.T) {
	cfg, err := Load("asksql-api", mapLookup(map[string]string{"ASKSQL_PROFILE": "prod"}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.Auth.Required {
		t.Fatal("Auth.Required should default to true in prod")
	}
	if cfg.Observability.LogLevel != slog.LevelInfo {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if !cfg.ObjectStore.UseSSL {
		t.Fatal("ObjectStore.UseSSL should default to true in prod")
	}
}

func TestLoadTestProfileUsesEmbeddedDatabase(t *testing.T) {
	cfg, err := Load("asksql-api", mapLookup(map[string]string{"ASKSQL_PROFILE": "test"}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Dialect != "duckdb" {
		t.Fatalf("Database.Dialect = %q", cfg.Database.Dialect)
	}
	if cfg.Memory.Enabled {
		t.Fatal("Memory.Enabled should default to false in test")
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	lookup := mapLookup(map[string]string{
		"ASKSQL_PROFILE":                     "test",
		"ASKSQL_SERVICE_NAME":                "asksql-custom",
		"ASKSQL_HTTP_ADDR":                   ":9999",
		"ASKSQL_HTTP_READ_TIMEOUT":           "2s",
		"ASKSQL_DB_DIALECT":                  "MySQL",
		"ASKSQL_DB_HOST":                     "db.internal",
		"ASKSQL_DB_PORT":                     "3307",
		"ASKSQL_DB_NAME":                     "shop",
		"ASKSQL_DB_STATEMENT_TIMEOUT":        "4s",
		"ASKSQL_DB_ROW_LIMIT":                "50",
		"ASKSQL_LLM_PROVIDER":                "groq",
		"ASKSQL_LLM_MODEL":                   "llama-3.3-70b-versatile",
		"ASKSQL_LLM_TEMPERATURE":             "0",
		"ASKSQL_LLM_TIMEOUT":                 "21s",
		"ASKSQL_LLM_DESCRIBE_COLUMNS":        "false",
		"ASKSQL_SCHEMA_FILE":                 "/tmp/schema.json",
		"ASKSQL_MEMORY_MAX_ENTRIES":          "5",
		"ASKSQL_MEMORY_SIMILARITY_THRESHOLD": "0.6",
		"ASKSQL_MEMORY_WATCH":                "true",
		"ASKSQL_OBJECTSTORE_ENABLED":         "true",
		"ASKSQL_OBJECTSTORE_BUCKET":          "asksql-prod",
		"ASKSQL_ARCHIVE_PREFIX":              "exports",
		"ASKSQL_LOG_LEVEL":                   "error",
		"ASKSQL_AUTH_REQUIRED":               "true",
		"ASKSQL_AUTH_STATIC_KEYS":            "k1:alice:asker",
	})
	cfg, err := Load("asksql-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Service.Name != "asksql-custom" {
		t.Fatalf("Service.Name = %q", cfg.Service.Name)
	}
	if cfg.HTTP.Address != ":9999" || cfg.HTTP.ReadTimeout != 2*time.Second {
		t.Fatalf("HTTP = %+v", cfg.HTTP)
	}
	if cfg.Database.Dialect != "mysql" {
		t.Fatalf("Database.Dialect = %q", cfg.Database.Dialect)
	}
	if cfg.Database.Host != "db.internal" || cfg.Database.Port != 3307 || cfg.Database.Name != "shop" {
		t.Fatalf("Database = %+v", cfg.Database)
	}
	if cfg.Database.StatementTimeout != 4*time.Second || cfg.Database.RowLimit != 50 {
		t.Fatalf("Database limits = %s/%d", cfg.Database.StatementTimeout, cfg.Database.RowLimit)
	}
	if cfg.LLM.Provider != "groq" || cfg.LLM.Model != "llama-3.3-70b-versatile" {
		t.Fatalf("LLM = %+v", cfg.LLM)
	}
	if cfg.LLM.Temperature != 0 {
		t.Fatalf("LLM.Temperature = %f", cfg.LLM.Temperature)
	}
	if cfg.LLM.Timeout != 21*time.Second {
		t.Fatalf("LLM.Timeout = %s", cfg.LLM.Timeout)
	}
	if cfg.LLM.DescribeColumns {
		t.Fatal("LLM.DescribeColumns = true, want false")
	}
	if cfg.Schema.File != "/tmp/schema.json" {
		t.Fatalf("Schema.File = %q", cfg.Schema.File)
	}
	if cfg.Memory.MaxEntries != 5 || cfg.Memory.SimilarityThreshold != 0.6 || !cfg.Memory.Watch {
		t.Fatalf("Memory = %+v", cfg.Memory)
	}
	if !cfg.ObjectStore.Enabled || cfg.ObjectStore.Bucket != "asksql-prod" {
		t.Fatalf("ObjectStore = %+v", cfg.ObjectStore)
	}
	if cfg.Archive.Prefix != "exports" {
		t.Fatalf("Archive.Prefix = %q", cfg.Archive.Prefix)
	}
	if cfg.Observability.LogLevel != slog.LevelError {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if !cfg.Auth.Required || cfg.Auth.StaticKeys != "k1:alice:asker" {
		t.Fatalf("Auth = %+v", cfg.Auth)
	}
}

func TestLoadReadsFallbackVariables(t *testing.T) {
	lookup := mapLookup(map[string]string{
		"DB_HOST":             "legacy-host",
		"DB_PORT":             "6543",
		"DB_USER":             "reader",
		"DB_PASSWORD":         "pw",
		"DB_NAME":             "legacy",
		"ASKSQL_DB_NAME":      "preferred",
		"ASKSQL_LLM_PROVIDER": "gemini",
		"GEMINI_API_KEY":      "gem-key",
		"GROQ_API_KEY":        "groq-key",
	})
	cfg, err := Load("asksql-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Host != "legacy-host" || cfg.Database.Port != 6543 || cfg.Database.User != "reader" {
		t.Fatalf("Database = %+v", cfg.Database)
	}
	if cfg.Database.Name != "preferred" {
		t.Fatalf("Database.Name = %q, want prefixed value to win", cfg.Database.Name)
	}
	if cfg.LLM.APIKey != "gem-key" {
		t.Fatalf("LLM.APIKey = %q", cfg.LLM.APIKey)
	}

	lookup = mapLookup(map[string]string{
		"ASKSQL_LLM_PROVIDER": "groq",
		"GEMINI_API_KEY":      "gem-key",
		"GROQ_API_KEY":        "groq-key",
	})
	cfg, err = Load("asksql-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LLM.APIKey != "groq-key" {
		t.Fatalf("LLM.APIKey = %q", cfg.LLM.APIKey)
	}
}

func TestLoadErrorsOnInvalidValues(t *testing.T) {
	tests := []map[string]string{
		{"ASKSQL_PROFILE": "oops"},
		{"ASKSQL_HTTP_READ_TIMEOUT": "NaN"},
		{"ASKSQL_DB_DIALECT": "oracle"},
		{"ASKSQL_DB_PORT": "oops"},
		{"DB_PORT": "oops"},
		{"ASKSQL_DB_ROW_LIMIT": "-1"},
		{"ASKSQL_LLM_PROVIDER": "claude"},
		{"ASKSQL_LLM_TEMPERATURE": "bad"},
		{"ASKSQL_MEMORY_MAX_ENTRIES": "0"},
		{"ASKSQL_MEMORY_SIMILARITY_THRESHOLD": "1.5"},
		{"ASKSQL_SCHEMA_FILE": " "},
		{"ASKSQL_AUTH_REQUIRED": "not-bool"},
		{"ASKSQL_LOG_LEVEL": "verbose"},
	}
	for _, env := range tests {
		if _, err := Load("asksql-api", mapLookup(env)); err == nil {
			t.Fatalf("Load() expected error for env %#v", env)
		}
	}
}

func mapLookup(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}
