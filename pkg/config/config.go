package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

//go:generate go run ../../cmd/schema/main.go schema.json

// Config holds the application configuration
type Config struct {
	Server struct {
		Listen  string        `yaml:"listen" json:"listen" jsonschema:"default=:8080,description=HTTP server listen address"`
		Timeout time.Duration `yaml:"timeout" json:"timeout" jsonschema:"default=30s,description=HTTP server timeout"`
	} `yaml:"server" json:"server" jsonschema:"description=Server configuration"`

	Database struct {
		DSN             string `yaml:"dsn" json:"dsn" jsonschema:"default=file:wellscope.db?cache=shared&mode=rwc,description=Database connection string"`
		MaxOpenConns    int    `yaml:"max_open_conns" json:"max_open_conns" jsonschema:"default=10,description=Maximum number of open connections"`
		MaxIdleConns    int    `yaml:"max_idle_conns" json:"max_idle_conns" jsonschema:"default=5,description=Maximum number of idle connections"`
		ConnMaxLifetime int    `yaml:"conn_max_lifetime" json:"conn_max_lifetime" jsonschema:"default=3600,description=Connection maximum lifetime in seconds"`
	} `yaml:"database" json:"database" jsonschema:"description=Database configuration"`

	Feed       FeedConfig       `yaml:"feed" json:"feed" jsonschema:"description=Social feed source configuration"`
	Classifier ClassifierConfig `yaml:"classifier" json:"classifier" jsonschema:"description=Classifier gateway configuration"`
	Normalizer NormalizerConfig `yaml:"normalizer" json:"normalizer" jsonschema:"description=Text normalizer configuration"`
	Analysis   AnalysisConfig   `yaml:"analysis" json:"analysis" jsonschema:"description=Analysis and aggregation configuration"`
}

// FeedConfig holds settings for the social feed source
type FeedConfig struct {
	Endpoint     string        `yaml:"endpoint" json:"endpoint" jsonschema:"required,description=Graph API base URL"`
	PageSize     int           `yaml:"page_size" json:"page_size" jsonschema:"default=25,description=Items requested per page"`
	RequestDelay time.Duration `yaml:"request_delay" json:"request_delay" jsonschema:"default=300ms,description=Delay between paginated requests"`
	MaxItems     int           `yaml:"max_items" json:"max_items" jsonschema:"default=200,description=Hard cap on total items fetched per run"`
	CommentDepth int           `yaml:"comment_depth" json:"comment_depth" jsonschema:"default=3,description=Maximum nesting depth for comment threads"`
	Timeout      time.Duration `yaml:"timeout" json:"timeout" jsonschema:"default=20s,description=Timeout per feed request"`
}

// BackendKind selects a classifier backend implementation
type BackendKind string

// supported classifier backends
const (
	BackendRemote  BackendKind = "remote"
	BackendOpenAI  BackendKind = "openai"
	BackendKeyword BackendKind = "keyword"
)

// ClassifierConfig holds classifier gateway configuration
type ClassifierConfig struct {
	Backend BackendKind `yaml:"backend" json:"backend" jsonschema:"default=remote,description=Default backend for all tasks (remote / openai / keyword)"`

	// per-task backend override, keys: sentiment, toxicity, misinfo, entities
	Tasks map[string]BackendKind `yaml:"tasks" json:"tasks,omitempty" jsonschema:"description=Per-task backend overrides"`

	MaxConcurrent      int     `yaml:"max_concurrent" json:"max_concurrent" jsonschema:"default=8,maximum=10,description=Maximum in-flight backend calls"`
	SentimentThreshold float64 `yaml:"sentiment_threshold" json:"sentiment_threshold" jsonschema:"default=0.6,minimum=0,maximum=1,description=Minimum confidence to accept a sentiment label"`

	Remote RemoteConfig `yaml:"remote" json:"remote" jsonschema:"description=Remote inference API settings"`
	OpenAI OpenAIConfig `yaml:"openai" json:"openai" jsonschema:"description=OpenAI-compatible backend settings"`
}

// RemoteConfig holds settings for the hosted inference API backend
type RemoteConfig struct {
	Endpoint      string        `yaml:"endpoint" json:"endpoint" jsonschema:"description=Inference API base URL"`
	Token         string        `yaml:"token" json:"token" jsonschema:"description=API token (can use environment variable)"`
	Timeout       time.Duration `yaml:"timeout" json:"timeout" jsonschema:"default=20s,description=Request timeout"`
	WarmupBackoff time.Duration `yaml:"warmup_backoff" json:"warmup_backoff" jsonschema:"default=4s,description=Wait before the single retry on a warming-up model"`
}

// OpenAIConfig holds settings for the OpenAI-compatible LLM backend,
// shared with the LLM recommendation strategy
type OpenAIConfig struct {
	Endpoint    string        `yaml:"endpoint" json:"endpoint" jsonschema:"description=OpenAI-compatible API endpoint"`
	APIKey      string        `yaml:"api_key" json:"api_key" jsonschema:"description=API key (can use environment variable)"`
	Model       string        `yaml:"model" json:"model" jsonschema:"default=gpt-4o-mini,description=Model name"`
	Temperature float64       `yaml:"temperature" json:"temperature" jsonschema:"default=0.2,description=Temperature for response generation"`
	MaxTokens   int           `yaml:"max_tokens" json:"max_tokens" jsonschema:"default=300,description=Maximum tokens in response"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout" jsonschema:"default=30s,description=Request timeout"`
}

// NormalizerConfig holds text normalizer settings
type NormalizerConfig struct {
	TranslationEndpoint string        `yaml:"translation_endpoint" json:"translation_endpoint" jsonschema:"description=Translation API URL; empty disables translation"`
	TranslationTimeout  time.Duration `yaml:"translation_timeout" json:"translation_timeout" jsonschema:"default=15s,description=Translation request timeout"`
}

// AnalysisConfig holds aggregation and orchestration settings
type AnalysisConfig struct {
	Workers         int    `yaml:"workers" json:"workers" jsonschema:"default=5,maximum=10,description=Concurrent item analysis workers"`
	Timezone        string `yaml:"timezone" json:"timezone" jsonschema:"default=UTC,description=Fixed timezone for night-activity windowing"`
	NightStartHour  int    `yaml:"night_start_hour" json:"night_start_hour" jsonschema:"default=23,description=Hour when the night window opens"`
	NightEndHour    int    `yaml:"night_end_hour" json:"night_end_hour" jsonschema:"default=6,description=Hour when the night window closes"`
	HabitsCurve     string `yaml:"habits_curve" json:"habits_curve" jsonschema:"default=ratio,description=Scoring curve for posting habits (ratio / stepped)"`
	Recommendations string `yaml:"recommendations" json:"recommendations" jsonschema:"default=template,description=Recommendation strategy (template / llm)"`
	MaxRecs         int    `yaml:"max_recs" json:"max_recs" jsonschema:"default=4,description=Maximum recommendations per report"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // file path comes from CLI flag
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// expand environment variables
	expanded := os.ExpandEnv(string(data))

	// defaults where zero is a meaningful setting are applied before parsing;
	// yaml only overwrites keys present in the file, so an explicit 0 sticks
	var cfg Config
	cfg.Classifier.SentimentThreshold = 0.6
	cfg.Classifier.OpenAI.Temperature = 0.2
	cfg.Analysis.NightStartHour = 23
	cfg.Analysis.NightEndHour = 6

	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	setDefaults(&cfg)

	// validate configuration
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	// verify against embedded schema
	if err := VerifyAgainstEmbeddedSchema(&cfg); err != nil {
		// log warning but don't fail - schema validation is supplementary
		fmt.Printf("warning: schema validation failed: %v\n", err)
	}

	return &cfg, nil
}

// setDefaults fills in zero values with documented defaults; fields where
// zero is a valid setting get their defaults in Load before parsing instead
func setDefaults(cfg *Config) {
	// server
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = ":8080"
	}
	if cfg.Server.Timeout == 0 {
		cfg.Server.Timeout = 30 * time.Second
	}

	// database
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "file:wellscope.db?cache=shared&mode=rwc&_txlock=immediate"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 3600
	}

	// feed
	if cfg.Feed.PageSize == 0 {
		cfg.Feed.PageSize = 25
	}
	if cfg.Feed.RequestDelay == 0 {
		cfg.Feed.RequestDelay = 300 * time.Millisecond
	}
	if cfg.Feed.MaxItems == 0 {
		cfg.Feed.MaxItems = 200
	}
	if cfg.Feed.CommentDepth == 0 {
		cfg.Feed.CommentDepth = 3
	}
	if cfg.Feed.Timeout == 0 {
		cfg.Feed.Timeout = 20 * time.Second
	}

	// classifier
	if cfg.Classifier.Backend == "" {
		cfg.Classifier.Backend = BackendRemote
	}
	if cfg.Classifier.MaxConcurrent == 0 {
		cfg.Classifier.MaxConcurrent = 8
	}
	if cfg.Classifier.Remote.Timeout == 0 {
		cfg.Classifier.Remote.Timeout = 20 * time.Second
	}
	if cfg.Classifier.Remote.WarmupBackoff == 0 {
		cfg.Classifier.Remote.WarmupBackoff = 4 * time.Second
	}
	if cfg.Classifier.OpenAI.Model == "" {
		cfg.Classifier.OpenAI.Model = "gpt-4o-mini"
	}
	if cfg.Classifier.OpenAI.MaxTokens == 0 {
		cfg.Classifier.OpenAI.MaxTokens = 300
	}
	if cfg.Classifier.OpenAI.Timeout == 0 {
		cfg.Classifier.OpenAI.Timeout = 30 * time.Second
	}

	// normalizer
	if cfg.Normalizer.TranslationTimeout == 0 {
		cfg.Normalizer.TranslationTimeout = 15 * time.Second
	}

	// analysis
	if cfg.Analysis.Workers == 0 {
		cfg.Analysis.Workers = 5
	}
	if cfg.Analysis.Timezone == "" {
		cfg.Analysis.Timezone = "UTC"
	}
	if cfg.Analysis.HabitsCurve == "" {
		cfg.Analysis.HabitsCurve = "ratio"
	}
	if cfg.Analysis.Recommendations == "" {
		cfg.Analysis.Recommendations = "template"
	}
	if cfg.Analysis.MaxRecs == 0 {
		cfg.Analysis.MaxRecs = 4
	}
}

// validate checks configuration for correctness
func validate(cfg *Config) error {
	// validate feed config
	if cfg.Feed.Endpoint == "" {
		return fmt.Errorf("feed.endpoint is required")
	}
	if cfg.Feed.MaxItems < 1 {
		return fmt.Errorf("feed.max_items must be at least 1")
	}
	if cfg.Feed.CommentDepth < 1 {
		return fmt.Errorf("feed.comment_depth must be at least 1")
	}

	// validate classifier config
	switch cfg.Classifier.Backend {
	case BackendRemote, BackendOpenAI, BackendKeyword:
	default:
		return fmt.Errorf("classifier.backend must be remote, openai or keyword")
	}
	for task, kind := range cfg.Classifier.Tasks {
		switch kind {
		case BackendRemote, BackendOpenAI, BackendKeyword:
		default:
			return fmt.Errorf("classifier.tasks.%s must be remote, openai or keyword", task)
		}
	}
	if cfg.Classifier.MaxConcurrent < 1 || cfg.Classifier.MaxConcurrent > 10 {
		return fmt.Errorf("classifier.max_concurrent must be between 1 and 10")
	}
	if cfg.Classifier.SentimentThreshold < 0 || cfg.Classifier.SentimentThreshold > 1 {
		return fmt.Errorf("classifier.sentiment_threshold must be between 0 and 1")
	}
	if cfg.Classifier.Backend == BackendRemote && cfg.Classifier.Remote.Endpoint == "" {
		return fmt.Errorf("classifier.remote.endpoint is required for the remote backend")
	}

	// validate analysis config
	if cfg.Analysis.Workers < 1 || cfg.Analysis.Workers > 10 {
		return fmt.Errorf("analysis.workers must be between 1 and 10")
	}
	if cfg.Analysis.NightStartHour < 0 || cfg.Analysis.NightStartHour > 23 {
		return fmt.Errorf("analysis.night_start_hour must be between 0 and 23")
	}
	if cfg.Analysis.NightEndHour < 0 || cfg.Analysis.NightEndHour > 23 {
		return fmt.Errorf("analysis.night_end_hour must be between 0 and 23")
	}
	if cfg.Analysis.HabitsCurve != "ratio" && cfg.Analysis.HabitsCurve != "stepped" {
		return fmt.Errorf("analysis.habits_curve must be ratio or stepped")
	}
	if cfg.Analysis.Recommendations != "template" && cfg.Analysis.Recommendations != "llm" {
		return fmt.Errorf("analysis.recommendations must be template or llm")
	}

	// validate server config
	if cfg.Server.Timeout < time.Second {
		return fmt.Errorf("server timeout must be at least 1 second")
	}

	return nil
}

// GetServerConfig returns server configuration
func (c *Config) GetServerConfig() (listen string, timeout time.Duration) {
	return c.Server.Listen, c.Server.Timeout
}

// TaskBackend returns the backend configured for a task, falling back to the default
func (c *ClassifierConfig) TaskBackend(task string) BackendKind {
	if kind, ok := c.Tasks[task]; ok {
		return kind
	}
	return c.Backend
}
