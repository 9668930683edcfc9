package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/querychat/querychat/internal/session"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"

	IndexMemory    = "memory"
	IndexSQLiteVec = "sqlitevec"

	ObjectStoreLocal = "local"
	ObjectStoreS3    = "s3"
)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	Database      DatabaseConfig
	AI            AIConfig
	RAG           RAGConfig
	Schema        SchemaConfig
	Pipeline      PipelineConfig
	ObjectStore   ObjectStoreConfig
	Observability ObservabilityConfig
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

// DatabaseConfig holds the default connection parameters offered by the
// configuration form. Interactive sessions may override every field.
type DatabaseConfig struct {
	Driver       string
	Host         string
	Port         string
	User         string
	Password     string
	Name         string
	QueryTimeout time.Duration
	RowLimit     int
}

// Params returns the configured defaults as session connection parameters.
func (d DatabaseConfig) Params() session.Params {
	return session.Params{
		Driver:   d.Driver,
		Host:     d.Host,
		Port:     d.Port,
		User:     d.User,
		Password: d.Password,
		Database: d.Name,
	}
}

type AIConfig struct {
	Provider       string
	BaseURL        string
	APIKey         string
	Model          string
	EmbeddingModel string
	Temperature    float64
	Timeout        time.Duration
}

type RAGConfig struct {
	Enabled     bool
	TopK        int
	Index       string
	SnapshotKey string
}

type SchemaConfig struct {
	File string
}

type PipelineConfig struct {
	ShowQuery        bool
	AllowEmptyResult bool
	SQLGuard         string
}

type ObjectStoreConfig struct {
	Kind             string
	Root             string
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

// LoadFromEnv reads an optional .env file from the working directory and then
// the process environment. Variables already set in the environment win.
func LoadFromEnv(serviceName string) (Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return Config{}, err
	}
	return Load(serviceName, os.LookupEnv)
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("QUERYCHAT_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid QUERYCHAT_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	appliers := []func() error{
		func() error { return applyString(lookup, "QUERYCHAT_SERVICE_NAME", &cfg.Service.Name) },
		func() error { return applyString(lookup, "QUERYCHAT_HTTP_ADDR", &cfg.HTTP.Address) },
		func() error { return applyDuration(lookup, "QUERYCHAT_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout) },
		func() error { return applyDuration(lookup, "QUERYCHAT_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout) },
		func() error { return applyDuration(lookup, "QUERYCHAT_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout) },
		func() error { return applyString(lookup, "QUERYCHAT_DB_DRIVER", &cfg.Database.Driver) },
		func() error { return applyString(lookup, "QUERYCHAT_DB_HOST", &cfg.Database.Host) },
		func() error { return applyString(lookup, "QUERYCHAT_DB_PORT", &cfg.Database.Port) },
		func() error { return applyString(lookup, "QUERYCHAT_DB_USER", &cfg.Database.User) },
		func() error { return applyRawString(lookup, "QUERYCHAT_DB_PASSWORD", &cfg.Database.Password) },
		func() error { return applyString(lookup, "QUERYCHAT_DB_NAME", &cfg.Database.Name) },
		func() error { return applyDuration(lookup, "QUERYCHAT_DB_QUERY_TIMEOUT", &cfg.Database.QueryTimeout) },
		func() error { return applyInt(lookup, "QUERYCHAT_DB_ROW_LIMIT", &cfg.Database.RowLimit) },
		func() error { return applyString(lookup, "QUERYCHAT_AI_PROVIDER", &cfg.AI.Provider) },
		func() error { return applyString(lookup, "QUERYCHAT_AI_BASE_URL", &cfg.AI.BaseURL) },
		func() error { return applyString(lookup, "QUERYCHAT_AI_API_KEY", &cfg.AI.APIKey) },
		func() error { return applyString(lookup, "QUERYCHAT_AI_MODEL", &cfg.AI.Model) },
		func() error { return applyString(lookup, "QUERYCHAT_AI_EMBEDDING_MODEL", &cfg.AI.EmbeddingModel) },
		func() error { return applyFloat(lookup, "QUERYCHAT_AI_TEMPERATURE", &cfg.AI.Temperature) },
		func() error { return applyDuration(lookup, "QUERYCHAT_AI_TIMEOUT", &cfg.AI.Timeout) },
		func() error { return applyBool(lookup, "QUERYCHAT_RAG_ENABLED", &cfg.RAG.Enabled) },
		func() error { return applyInt(lookup, "QUERYCHAT_RAG_TOP_K", &cfg.RAG.TopK) },
		func() error { return applyString(lookup, "QUERYCHAT_RAG_INDEX", &cfg.RAG.Index) },
		func() error { return applyString(lookup, "QUERYCHAT_RAG_SNAPSHOT_KEY", &cfg.RAG.SnapshotKey) },
		func() error { return applyString(lookup, "QUERYCHAT_SCHEMA_FILE", &cfg.Schema.File) },
		func() error { return applyBool(lookup, "QUERYCHAT_PIPELINE_SHOW_QUERY", &cfg.Pipeline.ShowQuery) },
		func() error {
			return applyBool(lookup, "QUERYCHAT_PIPELINE_ALLOW_EMPTY_RESULT", &cfg.Pipeline.AllowEmptyResult)
		},
		func() error { return applyString(lookup, "QUERYCHAT_SQL_GUARD", &cfg.Pipeline.SQLGuard) },
		func() error { return applyString(lookup, "QUERYCHAT_OBJECTSTORE_KIND", &cfg.ObjectStore.Kind) },
		func() error { return applyString(lookup, "QUERYCHAT_OBJECTSTORE_ROOT", &cfg.ObjectStore.Root) },
		func() error { return applyString(lookup, "QUERYCHAT_OBJECTSTORE_ENDPOINT", &cfg.ObjectStore.Endpoint) },
		func() error { return applyString(lookup, "QUERYCHAT_OBJECTSTORE_REGION", &cfg.ObjectStore.Region) },
		func() error { return applyString(lookup, "QUERYCHAT_OBJECTSTORE_BUCKET", &cfg.ObjectStore.Bucket) },
		func() error { return applyString(lookup, "QUERYCHAT_OBJECTSTORE_ACCESS_KEY", &cfg.ObjectStore.AccessKeyID) },
		func() error {
			return applyString(lookup, "QUERYCHAT_OBJECTSTORE_SECRET_KEY", &cfg.ObjectStore.SecretAccessKey)
		},
		func() error { return applyBool(lookup, "QUERYCHAT_OBJECTSTORE_USE_SSL", &cfg.ObjectStore.UseSSL) },
		func() error { return applyString(lookup, "QUERYCHAT_OBJECTSTORE_PREFIX", &cfg.ObjectStore.Prefix) },
		func() error {
			return applyBool(lookup, "QUERYCHAT_OBJECTSTORE_AUTO_CREATE_BUCKET", &cfg.ObjectStore.AutoCreateBucket)
		},
		func() error { return applyBool(lookup, "QUERYCHAT_LOG_JSON", &cfg.Observability.LogJSON) },
		func() error { return applyLogLevel(lookup, "QUERYCHAT_LOG_LEVEL", &cfg.Observability.LogLevel) },
	}
	for _, apply := range appliers {
		if err := apply(); err != nil {
			return Config{}, err
		}
	}

	cfg.Database.Driver = strings.ToLower(cfg.Database.Driver)
	cfg.AI.Provider = strings.ToLower(cfg.AI.Provider)
	cfg.RAG.Index = strings.ToLower(cfg.RAG.Index)
	cfg.Pipeline.SQLGuard = strings.ToLower(cfg.Pipeline.SQLGuard)
	cfg.ObjectStore.Kind = strings.ToLower(cfg.ObjectStore.Kind)

	if cfg.AI.APIKey == "" {
		cfg.AI.APIKey = providerAPIKey(lookup, cfg.AI.Provider)
	}
	if cfg.AI.Model == "" {
		cfg.AI.Model = defaultModel(cfg.AI.Provider)
	}
	if cfg.AI.EmbeddingModel == "" {
		cfg.AI.EmbeddingModel = defaultEmbeddingModel(cfg.AI.Provider)
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	if cfg.Service.Name == "" {
		return fmt.Errorf("service name is required")
	}
	if cfg.HTTP.Address == "" {
		return fmt.Errorf("http address is required")
	}
	switch cfg.Database.Driver {
	case "mysql", "postgres", "duckdb":
	default:
		return fmt.Errorf("invalid QUERYCHAT_DB_DRIVER: %q", cfg.Database.Driver)
	}
	if cfg.Database.RowLimit < 0 {
		return fmt.Errorf("QUERYCHAT_DB_ROW_LIMIT must be >= 0")
	}
	switch cfg.AI.Provider {
	case ProviderOpenAI, ProviderGemini:
	default:
		return fmt.Errorf("invalid QUERYCHAT_AI_PROVIDER: %q", cfg.AI.Provider)
	}
	if cfg.RAG.TopK <= 0 {
		return fmt.Errorf("QUERYCHAT_RAG_TOP_K must be > 0")
	}
	switch cfg.RAG.Index {
	case IndexMemory, IndexSQLiteVec:
	default:
		return fmt.Errorf("invalid QUERYCHAT_RAG_INDEX: %q", cfg.RAG.Index)
	}
	switch cfg.Pipeline.SQLGuard {
	case "off", "parse", "readonly":
	default:
		return fmt.Errorf("invalid QUERYCHAT_SQL_GUARD: %q", cfg.Pipeline.SQLGuard)
	}
	switch cfg.ObjectStore.Kind {
	case ObjectStoreLocal, ObjectStoreS3:
	default:
		return fmt.Errorf("invalid QUERYCHAT_OBJECTSTORE_KIND: %q", cfg.ObjectStore.Kind)
	}
	return nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "querychat-api"},
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 90 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:   "mysql",
			Host:     "localhost",
			Port:     "3306",
			User:     "root",
			Password: "",
			Name:     "sales_database",
		},
		AI: AIConfig{
			Provider:    ProviderGemini,
			BaseURL:     "https://api.openai.com",
			Temperature: 0.1,
			Timeout:     15 * time.Second,
		},
		RAG: RAGConfig{
			Enabled: false,
			TopK:    5,
			Index:   IndexSQLiteVec,
		},
		Pipeline: PipelineConfig{
			ShowQuery:        true,
			AllowEmptyResult: false,
			SQLGuard:         "off",
		},
		ObjectStore: ObjectStoreConfig{
			Kind:             ObjectStoreLocal,
			Root:             "faiss_index_store",
			Endpoint:         "localhost:9000",
			Region:           "us-east-1",
			Bucket:           "querychat",
			UseSSL:           false,
			AutoCreateBucket: true,
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  false,
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":18080"
		cfg.Observability.LogLevel = slog.LevelWarn
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.Observability.LogJSON = true
		cfg.ObjectStore.UseSSL = true
		cfg.ObjectStore.AutoCreateBucket = false
		cfg.Pipeline.ShowQuery = false
	}

	return cfg
}

func defaultModel(provider string) string {
	if provider == ProviderOpenAI {
		return "gpt-4o-mini"
	}
	return "gemini-pro"
}

func defaultEmbeddingModel(provider string) string {
	if provider == ProviderOpenAI {
		return "text-embedding-3-small"
	}
	return "models/embedding-001"
}

func providerAPIKey(lookup LookupFunc, provider string) string {
	key := "GOOGLE_API_KEY"
	if provider == ProviderOpenAI {
		key = "OPENAI_API_KEY"
	}
	raw, ok := lookup(key)
	if !ok {
		return ""
	}
	return strings.TrimSpace(raw)
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

// applyRawString keeps surrounding whitespace; passwords may legitimately carry it.
func applyRawString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = raw
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
	level := strings.ToLower(strings.TrimSpace(raw))
	switch level {
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
