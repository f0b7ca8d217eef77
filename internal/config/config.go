package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

const envPrefix = "ASKSQL_"

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	Database      DatabaseConfig
	LLM           LLMConfig
	Schema        SchemaConfig
	Memory        MemoryConfig
	ObjectStore   ObjectStoreConfig
	Archive       ArchiveConfig
	Observability ObservabilityConfig
	Auth          AuthConfig
}

type ServiceConfig struct {
	Name string
}

type HTTPConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DatabaseConfig describes the queried database. DSN wins over the discrete
// host/port/user/password/name fields when set.
type DatabaseConfig struct {
	Dialect          string
	DSN              string
	Host             string
	Port             int
	User             string
	Password         string
	Name             string
	Schema           string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxIdleTime  time.Duration
	ConnMaxLifetime  time.Duration
	StatementTimeout time.Duration
	RowLimit         int
}

type LLMConfig struct {
	Provider               string
	BaseURL                string
	APIKey                 string
	Model                  string
	Temperature            float64
	SummaryTemperature     float64
	DescriptionTemperature float64
	Timeout                time.Duration
	DescribeColumns        bool
	SuggestCharts          bool
}

type SchemaConfig struct {
	File            string
	MaxKnownValues  int
	RefreshOnStart  bool
	ExcludedColumns string
}

type MemoryConfig struct {
	Enabled             bool
	File                string
	MaxEntries          int
	SimilarityThreshold float64
	Watch               bool
}

type ObjectStoreConfig struct {
	Enabled          bool
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

type ArchiveConfig struct {
	Prefix string
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

type AuthConfig struct {
	Required   bool
	StaticKeys string
}

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup(envPrefix + "PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid %sPROFILE: %q", envPrefix, profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	for _, apply := range []func(LookupFunc, *Config) error{
		applyServiceEnv,
		applyDatabaseFallbacks,
		applyDatabaseEnv,
		applyLLMEnv,
		applySchemaEnv,
		applyMemoryEnv,
		applyObjectStoreEnv,
		applyObservabilityEnv,
	} {
		if err := apply(lookup, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyServiceEnv(lookup LookupFunc, cfg *Config) error {
	if err := applyString(lookup, envPrefix+"SERVICE_NAME", &cfg.Service.Name); err != nil {
		return err
	}
	if err := applyString(lookup, envPrefix+"HTTP_ADDR", &cfg.HTTP.Address); err != nil {
		return err
	}
	if err := applyDuration(lookup, envPrefix+"HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout); err != nil {
		return err
	}
	if err := applyDuration(lookup, envPrefix+"HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout); err != nil {
		return err
	}
	return applyDuration(lookup, envPrefix+"HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout)
}

// applyDatabaseFallbacks honours the unprefixed DB_* variables used by
// existing deployments. Prefixed variables applied afterwards take precedence.
func applyDatabaseFallbacks(lookup LookupFunc, cfg *Config) error {
	if err := applyString(lookup, "DB_HOST", &cfg.Database.Host); err != nil {
		return err
	}
	if err := applyInt(lookup, "DB_PORT", &cfg.Database.Port); err != nil {
		return err
	}
	if err := applyString(lookup, "DB_USER", &cfg.Database.User); err != nil {
		return err
	}
	if err := applyString(lookup, "DB_PASSWORD", &cfg.Database.Password); err != nil {
		return err
	}
	return applyString(lookup, "DB_NAME", &cfg.Database.Name)
}

func applyDatabaseEnv(lookup LookupFunc, cfg *Config) error {
	db := &cfg.Database
	if err := applyString(lookup, envPrefix+"DB_DIALECT", &db.Dialect); err != nil {
		return err
	}
	db.Dialect = strings.ToLower(db.Dialect)
	if err := applyString(lookup, envPrefix+"DB_DSN", &db.DSN); err != nil {
		return err
	}
	if err := applyString(lookup, envPrefix+"DB_HOST", &db.Host); err != nil {
		return err
	}
	if err := applyInt(lookup, envPrefix+"DB_PORT", &db.Port); err != nil {
		return err
	}
	if err := applyString(lookup, envPrefix+"DB_USER", &db.User); err != nil {
		return err
	}
	if err := applyString(lookup, envPrefix+"DB_PASSWORD", &db.Password); err != nil {
		return err
	}
	if err := applyString(lookup, envPrefix+"DB_NAME", &db.Name); err != nil {
		return err
	}
	if err := applyString(lookup, envPrefix+"DB_SCHEMA", &db.Schema); err != nil {
		return err
	}
	if err := applyInt(lookup, envPrefix+"DB_MAX_OPEN_CONNS", &db.MaxOpenConns); err != nil {
		return err
	}
	if err := applyInt(lookup, envPrefix+"DB_MAX_IDLE_CONNS", &db.MaxIdleConns); err != nil {
		return err
	}
	if err := applyDuration(lookup, envPrefix+"DB_CONN_MAX_IDLE_TIME", &db.ConnMaxIdleTime); err != nil {
		return err
	}
	if err := applyDuration(lookup, envPrefix+"DB_CONN_MAX_LIFETIME", &db.ConnMaxLifetime); err != nil {
		return err
	}
	if err := applyDuration(lookup, envPrefix+"DB_STATEMENT_TIMEOUT", &db.StatementTimeout); err != nil {
		return err
	}
	return applyInt(lookup, envPrefix+"DB_ROW_LIMIT", &db.RowLimit)
}

func applyLLMEnv(lookup LookupFunc, cfg *Config) error {
	llm := &cfg.LLM
	if err := applyString(lookup, envPrefix+"LLM_PROVIDER", &llm.Provider); err != nil {
		return err
	}
	llm.Provider = strings.ToLower(llm.Provider)

	// Provider-native key variables are read first so an explicit
	// ASKSQL_LLM_API_KEY still overrides them.
	switch llm.Provider {
	case "gemini":
		if err := applyString(lookup, "GEMINI_API_KEY", &llm.APIKey); err != nil {
			return err
		}
	case "groq", "openai":
		if err := applyString(lookup, "GROQ_API_KEY", &llm.APIKey); err != nil {
			return err
		}
	}
	if err := applyString(lookup, envPrefix+"LLM_API_KEY", &llm.APIKey); err != nil {
		return err
	}
	if err := applyString(lookup, envPrefix+"LLM_BASE_URL", &llm.BaseURL); err != nil {
		return err
	}
	if err := applyString(lookup, envPrefix+"LLM_MODEL", &llm.Model); err != nil {
		return err
	}
	if err := applyFloat(lookup, envPrefix+"LLM_TEMPERATURE", &llm.Temperature); err != nil {
		return err
	}
	if err := applyFloat(lookup, envPrefix+"LLM_SUMMARY_TEMPERATURE", &llm.SummaryTemperature); err != nil {
		return err
	}
	if err := applyFloat(lookup, envPrefix+"LLM_DESCRIPTION_TEMPERATURE", &llm.DescriptionTemperature); err != nil {
		return err
	}
	if err := applyDuration(lookup, envPrefix+"LLM_TIMEOUT", &llm.Timeout); err != nil {
		return err
	}
	if err := applyBool(lookup, envPrefix+"LLM_DESCRIBE_COLUMNS", &llm.DescribeColumns); err != nil {
		return err
	}
	return applyBool(lookup, envPrefix+"LLM_SUGGEST_CHARTS", &llm.SuggestCharts)
}

func applySchemaEnv(lookup LookupFunc, cfg *Config) error {
	if err := applyString(lookup, envPrefix+"SCHEMA_FILE", &cfg.Schema.File); err != nil {
		return err
	}
	if err := applyInt(lookup, envPrefix+"SCHEMA_MAX_KNOWN_VALUES", &cfg.Schema.MaxKnownValues); err != nil {
		return err
	}
	if err := applyBool(lookup, envPrefix+"SCHEMA_REFRESH_ON_START", &cfg.Schema.RefreshOnStart); err != nil {
		return err
	}
	return applyString(lookup, envPrefix+"SCHEMA_EXCLUDED_COLUMNS", &cfg.Schema.ExcludedColumns)
}

func applyMemoryEnv(lookup LookupFunc, cfg *Config) error {
	if err := applyBool(lookup, envPrefix+"MEMORY_ENABLED", &cfg.Memory.Enabled); err != nil {
		return err
	}
	if err := applyString(lookup, envPrefix+"MEMORY_FILE", &cfg.Memory.File); err != nil {
		return err
	}
	if err := applyInt(lookup, envPrefix+"MEMORY_MAX_ENTRIES", &cfg.Memory.MaxEntries); err != nil {
		return err
	}
	if err := applyFloat(lookup, envPrefix+"MEMORY_SIMILARITY_THRESHOLD", &cfg.Memory.SimilarityThreshold); err != nil {
		return err
	}
	return applyBool(lookup, envPrefix+"MEMORY_WATCH", &cfg.Memory.Watch)
}

func applyObjectStoreEnv(lookup LookupFunc, cfg *Config) error {
	store := &cfg.ObjectStore
	if err := applyBool(lookup, envPrefix+"OBJECTSTORE_ENABLED", &store.Enabled); err != nil {
		return err
	}
	if err := applyString(lookup, envPrefix+"OBJECTSTORE_ENDPOINT", &store.Endpoint); err != nil {
		return err
	}
	if err := applyString(lookup, envPrefix+"OBJECTSTORE_REGION", &store.Region); err != nil {
		return err
	}
	if err := applyString(lookup, envPrefix+"OBJECTSTORE_BUCKET", &store.Bucket); err != nil {
		return err
	}
	if err := applyString(lookup, envPrefix+"OBJECTSTORE_ACCESS_KEY", &store.AccessKeyID); err != nil {
		return err
	}
	if err := applyString(lookup, envPrefix+"OBJECTSTORE_SECRET_KEY", &store.SecretAccessKey); err != nil {
		return err
	}
	if err := applyBool(lookup, envPrefix+"OBJECTSTORE_USE_SSL", &store.UseSSL); err != nil {
		return err
	}
	if err := applyString(lookup, envPrefix+"OBJECTSTORE_PREFIX", &store.Prefix); err != nil {
		return err
	}
	if err := applyBool(lookup, envPrefix+"OBJECTSTORE_AUTO_CREATE_BUCKET", &store.AutoCreateBucket); err != nil {
		return err
	}
	return applyString(lookup, envPrefix+"ARCHIVE_PREFIX", &cfg.Archive.Prefix)
}

func applyObservabilityEnv(lookup LookupFunc, cfg *Config) error {
	if err := applyBool(lookup, envPrefix+"LOG_JSON", &cfg.Observability.LogJSON); err != nil {
		return err
	}
	if err := applyLogLevel(lookup, envPrefix+"LOG_LEVEL", &cfg.Observability.LogLevel); err != nil {
		return err
	}
	if err := applyBool(lookup, envPrefix+"AUTH_REQUIRED", &cfg.Auth.Required); err != nil {
		return err
	}
	return applyString(lookup, envPrefix+"AUTH_STATIC_KEYS", &cfg.Auth.StaticKeys)
}

func (c Config) validate() error {
	if c.Service.Name == "" {
		return fmt.Errorf("service name is required")
	}
	if c.HTTP.Address == "" {
		return fmt.Errorf("http address is required")
	}
	switch c.Database.Dialect {
	case "postgres", "mysql", "duckdb":
	default:
		return fmt.Errorf("invalid %sDB_DIALECT: %q", envPrefix, c.Database.Dialect)
	}
	switch c.LLM.Provider {
	case "gemini", "groq", "openai":
	default:
		return fmt.Errorf("invalid %sLLM_PROVIDER: %q", envPrefix, c.LLM.Provider)
	}
	if c.Database.RowLimit < 0 {
		return fmt.Errorf("%sDB_ROW_LIMIT must be >= 0", envPrefix)
	}
	if c.Memory.MaxEntries <= 0 {
		return fmt.Errorf("%sMEMORY_MAX_ENTRIES must be > 0", envPrefix)
	}
	if c.Memory.SimilarityThreshold <= 0 || c.Memory.SimilarityThreshold > 1 {
		return fmt.Errorf("%sMEMORY_SIMILARITY_THRESHOLD must be in (0, 1]", envPrefix)
	}
	if c.Schema.File == "" {
		return fmt.Errorf("schema file is required")
	}
	return nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "asksql-api"},
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 90 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			Dialect:          "postgres",
			Host:             "localhost",
			Port:             5432,
			User:             "postgres",
			Password:         "postgres",
			Name:             "northwind",
			MaxOpenConns:     10,
			MaxIdleConns:     10,
			ConnMaxIdleTime:  5 * time.Minute,
			ConnMaxLifetime:  30 * time.Minute,
			StatementTimeout: 30 * time.Second,
			RowLimit:         1000,
		},
		LLM: LLMConfig{
			Provider:               "gemini",
			Temperature:            0.5,
			SummaryTemperature:     0.5,
			DescriptionTemperature: 0.1,
			Timeout:                60 * time.Second,
			DescribeColumns:        true,
			SuggestCharts:          true,
		},
		Schema: SchemaConfig{
			File:           "schema_metadata.json",
			MaxKnownValues: 10,
		},
		Memory: MemoryConfig{
			Enabled:             true,
			File:                "conversation_memory.json",
			MaxEntries:          200,
			SimilarityThreshold: 0.8,
			Watch:               false,
		},
		ObjectStore: ObjectStoreConfig{
			Enabled:          false,
			Endpoint:         "localhost:9000",
			Region:           "us-east-1",
			Bucket:           "asksql",
			AccessKeyID:      "minio",
			SecretAccessKey:  "miniostorage",
			UseSSL:           false,
			AutoCreateBucket: true,
		},
		Archive: ArchiveConfig{
			Prefix: "history",
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  true,
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":18080"
		cfg.Database.Dialect = "duckdb"
		cfg.Database.Name = ""
		cfg.LLM.DescribeColumns = false
		cfg.Memory.Enabled = false
		cfg.Observability.LogLevel = slog.LevelWarn
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.Auth.Required = true
		cfg.ObjectStore.UseSSL = true
		cfg.ObjectStore.AutoCreateBucket = false
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyFloat(lookup LookupFunc, key string, dst *float64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	return nil
}
