package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"hooktrigger/pkg/trigger"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// AppConfig represents the main application configuration.
type AppConfig struct {
	// Server holds server-specific configuration.
	Server ServerConfig `yaml:"server" toml:"server"`
	// Providers contains configuration for each Git provider.
	Providers struct {
		GitHub    ProviderConfig `yaml:"github" toml:"github"`
		GitLab    ProviderConfig `yaml:"gitlab" toml:"gitlab"`
		Bitbucket ProviderConfig `yaml:"bitbucket" toml:"bitbucket"`
	} `yaml:"providers" toml:"providers"`
	// Watermill holds configuration for the trigger publisher.
	Watermill WatermillConfig `yaml:"watermill" toml:"watermill"`
	// Engine tunes the match engine.
	Engine EngineConfig `yaml:"engine" toml:"engine"`
	// Storage selects where pipeline trigger configurations come from.
	Storage StorageConfig `yaml:"storage" toml:"storage"`
}

// Config is the full configuration including statically defined pipelines.
type Config struct {
	AppConfig `yaml:",inline" toml:",inline"`
	Pipelines []PipelineConfig `yaml:"pipelines" toml:"pipelines"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Port           int    `yaml:"port" toml:"port"`
	ReadTimeoutMS  int64  `yaml:"read_timeout_ms" toml:"read_timeout_ms"`
	WriteTimeoutMS int64  `yaml:"write_timeout_ms" toml:"write_timeout_ms"`
	IdleTimeoutMS  int64  `yaml:"idle_timeout_ms" toml:"idle_timeout_ms"`
	ReadHeaderMS   int64  `yaml:"read_header_timeout_ms" toml:"read_header_timeout_ms"`
	MaxBodyBytes   int64  `yaml:"max_body_bytes" toml:"max_body_bytes"`
	RateLimitRPS   int64  `yaml:"rate_limit_rps" toml:"rate_limit_rps"`
	RateLimitBurst int64  `yaml:"rate_limit_burst" toml:"rate_limit_burst"`
	MetricsEnabled bool   `yaml:"metrics_enabled" toml:"metrics_enabled"`
	MetricsPath    string `yaml:"metrics_path" toml:"metrics_path"`
	LogLevel       string `yaml:"log_level" toml:"log_level"`
	// DebugEvents logs the head of every webhook body at debug level.
	DebugEvents bool `yaml:"debug_events" toml:"debug_events"`
	// AdminEnabled mounts the pipeline and dry-run endpoints under AdminPath.
	AdminEnabled bool   `yaml:"admin_enabled" toml:"admin_enabled"`
	AdminPath    string `yaml:"admin_path" toml:"admin_path"`
}

// ProviderConfig represents the configuration for a single Git provider.
type ProviderConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
	Secret  string `yaml:"secret" toml:"secret"`
}

// EngineConfig tunes trigger evaluation.
type EngineConfig struct {
	// DeniedRefPrefixes rejects pushes to these ref namespaces before any
	// pipeline is looked up. Unset selects refs/for/.
	DeniedRefPrefixes []string `yaml:"denied_ref_prefixes" toml:"denied_ref_prefixes"`
	Concurrency       int      `yaml:"concurrency" toml:"concurrency"`
	TimeoutMS         int64    `yaml:"timeout_ms" toml:"timeout_ms"`
	PatternCacheSize  int      `yaml:"pattern_cache_size" toml:"pattern_cache_size"`
	// RegexTimeoutMS bounds each regex: pattern match. Default 100.
	RegexTimeoutMS int64 `yaml:"regex_timeout_ms" toml:"regex_timeout_ms"`
}

// StorageConfig selects the pipeline store. Driver "static" serves the
// pipelines section of this file; postgres, mysql and sqlite use GORM.
type StorageConfig struct {
	Driver      string `yaml:"driver" toml:"driver"`
	DSN         string `yaml:"dsn" toml:"dsn"`
	Table       string `yaml:"table" toml:"table"`
	AutoMigrate bool   `yaml:"auto_migrate" toml:"auto_migrate"`
}

// PipelineConfig is a statically configured pipeline. Drivers restricts its
// trigger messages to a subset of the watermill drivers; empty means all.
type PipelineConfig struct {
	ID         string                `yaml:"id" toml:"id"`
	Provider   string                `yaml:"provider" toml:"provider"`
	Repository string                `yaml:"repository" toml:"repository"`
	Drivers    []string              `yaml:"drivers" toml:"drivers"`
	Trigger    trigger.TriggerConfig `yaml:"trigger" toml:"trigger"`
}

// WatermillConfig holds the configuration for Watermill, which handles messaging.
type WatermillConfig struct {
	Driver       string             `yaml:"driver" toml:"driver"`
	Drivers      []string           `yaml:"drivers" toml:"drivers"`
	Topic        string             `yaml:"topic" toml:"topic"`
	GoChannel    GoChannelConfig    `yaml:"gochannel" toml:"gochannel"`
	Kafka        KafkaConfig        `yaml:"kafka" toml:"kafka"`
	NATS         NATSConfig         `yaml:"nats" toml:"nats"`
	AMQP         AMQPConfig         `yaml:"amqp" toml:"amqp"`
	SQL          SQLConfig          `yaml:"sql" toml:"sql"`
	HTTP         HTTPConfig         `yaml:"http" toml:"http"`
	RiverQueue   RiverQueueConfig   `yaml:"riverqueue" toml:"riverqueue"`
	PublishRetry PublishRetryConfig `yaml:"publish_retry" toml:"publish_retry"`
	DLQDriver    string             `yaml:"dlq_driver" toml:"dlq_driver"`
}

// GoChannelConfig holds configuration for the GoChannel pub/sub.
type GoChannelConfig struct {
	OutputChannelBuffer            int64 `yaml:"output_buffer" toml:"output_buffer"`
	Persistent                     bool  `yaml:"persistent" toml:"persistent"`
	BlockPublishUntilSubscriberAck bool  `yaml:"block_publish_until_subscriber_ack" toml:"block_publish_until_subscriber_ack"`
}

// KafkaConfig holds configuration for the Kafka pub/sub.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers" toml:"brokers"`
}

// NATSConfig holds configuration for the NATS pub/sub.
type NATSConfig struct {
	ClusterID string `yaml:"cluster_id" toml:"cluster_id"`
	ClientID  string `yaml:"client_id" toml:"client_id"`
	URL       string `yaml:"url" toml:"url"`
}

// AMQPConfig holds configuration for the AMQP pub/sub.
type AMQPConfig struct {
	URL  string `yaml:"url" toml:"url"`
	Mode string `yaml:"mode" toml:"mode"`
}

// SQLConfig holds configuration for the SQL pub/sub.
type SQLConfig struct {
	Driver               string `yaml:"driver" toml:"driver"`
	DSN                  string `yaml:"dsn" toml:"dsn"`
	Dialect              string `yaml:"dialect" toml:"dialect"`
	InitializeSchema     bool   `yaml:"initialize_schema" toml:"initialize_schema"`
	AutoInitializeSchema bool   `yaml:"auto_initialize_schema" toml:"auto_initialize_schema"`
}

// HTTPConfig holds configuration for the HTTP publisher.
type HTTPConfig struct {
	BaseURL string `yaml:"base_url" toml:"base_url"`
	Mode    string `yaml:"mode" toml:"mode"`
}

// RiverQueueConfig holds configuration for the RiverQueue publisher. Jobs
// are inserted with kind worker.RiverJobKind.
type RiverQueueConfig struct {
	DSN         string   `yaml:"dsn" toml:"dsn"`
	Queue       string   `yaml:"queue" toml:"queue"`
	MaxAttempts int      `yaml:"max_attempts" toml:"max_attempts"`
	Priority    int      `yaml:"priority" toml:"priority"`
	Tags        []string `yaml:"tags" toml:"tags"`
}

type PublishRetryConfig struct {
	Attempts int `yaml:"attempts" toml:"attempts"`
	DelayMS  int `yaml:"delay_ms" toml:"delay_ms"`
}

// LoadConfig loads the application configuration and static pipelines from a
// YAML or TOML file. It expands environment variables, applies defaults and
// validates every pipeline.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	expanded := []byte(os.ExpandEnv(string(data)))
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(expanded, &cfg)
	default:
		err = yaml.Unmarshal(expanded, &cfg)
	}
	if err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}

	applyDefaults(&cfg.AppConfig)
	normalized, err := normalizePipelines(cfg.Pipelines)
	if err != nil {
		return cfg, err
	}
	cfg.Pipelines = normalized
	return cfg, nil
}

// EngineOptions converts the engine section into trigger.Options.
func (c EngineConfig) EngineOptions(observer trigger.Observer) trigger.Options {
	opts := trigger.Options{
		Observer:    observer,
		Concurrency: c.Concurrency,
		CacheSize:   c.PatternCacheSize,
	}
	if c.RegexTimeoutMS > 0 {
		opts.RegexTimeout = time.Duration(c.RegexTimeoutMS) * time.Millisecond
	}
	if c.DeniedRefPrefixes != nil {
		opts.RefPolicy = trigger.RefPolicy{DeniedPrefixes: c.DeniedRefPrefixes}
	}
	return opts
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeoutMS == 0 {
		cfg.Server.ReadTimeoutMS = 5000
	}
	if cfg.Server.WriteTimeoutMS == 0 {
		cfg.Server.WriteTimeoutMS = 10000
	}
	if cfg.Server.IdleTimeoutMS == 0 {
		cfg.Server.IdleTimeoutMS = 60000
	}
	if cfg.Server.ReadHeaderMS == 0 {
		cfg.Server.ReadHeaderMS = 5000
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = 1 << 20
	}
	if cfg.Server.MetricsPath == "" {
		cfg.Server.MetricsPath = "/metrics"
	}
	if cfg.Server.AdminPath == "" {
		cfg.Server.AdminPath = "/api"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = "info"
	}
	if cfg.Providers.GitHub.Path == "" {
		cfg.Providers.GitHub.Path = "/webhooks/github"
	}
	if cfg.Providers.GitLab.Path == "" {
		cfg.Providers.GitLab.Path = "/webhooks/gitlab"
	}
	if cfg.Providers.Bitbucket.Path == "" {
		cfg.Providers.Bitbucket.Path = "/webhooks/bitbucket"
	}
	if cfg.Watermill.Driver == "" {
		cfg.Watermill.Driver = "gochannel"
	}
	if cfg.Watermill.Topic == "" {
		cfg.Watermill.Topic = DefaultTopic
	}
	if cfg.Watermill.GoChannel.OutputChannelBuffer == 0 {
		cfg.Watermill.GoChannel.OutputChannelBuffer = 64
	}
	if cfg.Watermill.HTTP.Mode == "" {
		cfg.Watermill.HTTP.Mode = "topic_url"
	}
	if cfg.Watermill.RiverQueue.Queue == "" {
		cfg.Watermill.RiverQueue.Queue = "default"
	}
	if cfg.Watermill.RiverQueue.MaxAttempts == 0 {
		cfg.Watermill.RiverQueue.MaxAttempts = 25
	}
	if cfg.Watermill.PublishRetry.Attempts == 0 {
		cfg.Watermill.PublishRetry.Attempts = 3
	}
	if cfg.Watermill.PublishRetry.DelayMS == 0 {
		cfg.Watermill.PublishRetry.DelayMS = 500
	}
	if cfg.Engine.Concurrency == 0 {
		cfg.Engine.Concurrency = 8
	}
	if cfg.Engine.TimeoutMS == 0 {
		cfg.Engine.TimeoutMS = 2000
	}
	if cfg.Engine.PatternCacheSize == 0 {
		cfg.Engine.PatternCacheSize = 256
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "static"
	}
	if cfg.Storage.Table == "" {
		cfg.Storage.Table = "pipeline_triggers"
	}
}

func uniqueDrivers(drivers []string) []string {
	seen := make(map[string]struct{}, len(drivers))
	out := make([]string, 0, len(drivers))
	for _, driver := range drivers {
		driver = strings.ToLower(strings.TrimSpace(driver))
		if driver == "" {
			continue
		}
		if _, ok := seen[driver]; ok {
			continue
		}
		seen[driver] = struct{}{}
		out = append(out, driver)
	}
	return out
}

func normalizePipelines(pipelines []PipelineConfig) ([]PipelineConfig, error) {
	out := make([]PipelineConfig, 0, len(pipelines))
	seen := make(map[string]struct{}, len(pipelines))
	for i := range pipelines {
		pl := pipelines[i]
		pl.ID = strings.TrimSpace(pl.ID)
		pl.Provider = strings.ToLower(strings.TrimSpace(pl.Provider))
		pl.Repository = strings.TrimSpace(pl.Repository)
		pl.Trigger.When = strings.TrimSpace(pl.Trigger.When)
		if len(pl.Drivers) > 0 {
			pl.Drivers = uniqueDrivers(pl.Drivers)
		}
		if pl.ID == "" || pl.Provider == "" || pl.Repository == "" {
			return nil, fmt.Errorf("pipeline %d is missing id, provider or repository", i)
		}
		if _, ok := seen[pl.ID]; ok {
			return nil, fmt.Errorf("pipeline %q is defined twice", pl.ID)
		}
		seen[pl.ID] = struct{}{}
		if _, err := trigger.Compile(pl.Trigger); err != nil {
			return nil, fmt.Errorf("pipeline %q: %w", pl.ID, err)
		}
		out = append(out, pl)
	}
	return out, nil
}
