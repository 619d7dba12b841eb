// Package config holds the declarative configuration consumed by the
// runtime builder: rate limit rules, reliability policies, queue backends,
// policy bundles and observability settings.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration document.
type Config struct {
	Logging       LoggingConfig       `yaml:"logging"`
	Observability ObservabilityConfig `yaml:"observability"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
	Reliability   ReliabilityConfig   `yaml:"reliability"`
	Queue         QueueConfig         `yaml:"queue"`
	Policies      map[string]Policy   `yaml:"policies"`
	Preset        string              `yaml:"preset"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ObservabilityConfig mirrors the tracing/metrics split: spans go to an
// OTLP endpoint, metrics are scraped from the prometheus endpoint.
type ObservabilityConfig struct {
	Tracing TracingConfig `yaml:"tracing"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	EndpointURL  string  `yaml:"endpoint_url"`
	SamplingRate float64 `yaml:"sampling_rate"`
	ServiceName  string  `yaml:"service_name"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// RateLimitRule is a single sliding-window limit. MaxCalls and MaxTokens
// are optional; a nil value means the dimension is unlimited.
type RateLimitRule struct {
	Name          string `yaml:"name"`
	MaxCalls      *int64 `yaml:"max_calls,omitempty"`
	MaxTokens     *int64 `yaml:"max_tokens,omitempty"`
	WindowSeconds int    `yaml:"window_seconds"`
	Scope         string `yaml:"scope"`
}

type RateLimitConfig struct {
	Enabled bool            `yaml:"enabled"`
	Rules   []RateLimitRule `yaml:"rules"`
}

// Validate checks rule shapes. Scope must be one of model, agent, tenant,
// global.
func (c *RateLimitConfig) Validate() error {
	for i, rule := range c.Rules {
		if rule.Name == "" {
			return fmt.Errorf("rate limit rule %d: name is required", i)
		}
		if rule.WindowSeconds <= 0 {
			return fmt.Errorf("rate limit rule %q: window_seconds must be positive", rule.Name)
		}
		switch rule.Scope {
		case "model", "agent", "tenant", "global":
		default:
			return fmt.Errorf("rate limit rule %q: invalid scope %q", rule.Name, rule.Scope)
		}
		if rule.MaxCalls == nil && rule.MaxTokens == nil {
			return fmt.Errorf("rate limit rule %q: at least one of max_calls, max_tokens is required", rule.Name)
		}
	}
	return nil
}

// RetryConfig shapes the exponential backoff applied to transient failures.
type RetryConfig struct {
	MaxRetries      int           `yaml:"max_retries"`
	BaseDelay       time.Duration `yaml:"base_delay"`
	MaxDelay        time.Duration `yaml:"max_delay"`
	ExponentialBase float64       `yaml:"exponential_base"`
}

// BreakerConfig shapes the per-key circuit breaker.
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	ResetTimeout     time.Duration `yaml:"reset_timeout"`
}

type ReliabilityConfig struct {
	Retry   RetryConfig   `yaml:"retry"`
	Breaker BreakerConfig `yaml:"breaker"`
}

// SetDefaults fills zero values with the stock policy: 2 retries starting
// at 200ms capped at 5s, breaker opening after 5 failures for 30s.
func (c *ReliabilityConfig) SetDefaults() {
	if c.Retry.MaxRetries == 0 {
		c.Retry.MaxRetries = 2
	}
	if c.Retry.BaseDelay == 0 {
		c.Retry.BaseDelay = 200 * time.Millisecond
	}
	if c.Retry.MaxDelay == 0 {
		c.Retry.MaxDelay = 5 * time.Second
	}
	if c.Retry.ExponentialBase == 0 {
		c.Retry.ExponentialBase = 2.0
	}
	if c.Breaker.FailureThreshold == 0 {
		c.Breaker.FailureThreshold = 5
	}
	if c.Breaker.ResetTimeout == 0 {
		c.Breaker.ResetTimeout = 30 * time.Second
	}
}

// QueueConfig selects and parameterizes the durable queue backend.
type QueueConfig struct {
	Backend      string        `yaml:"backend"` // sql, redis, sqs, kafka, memory
	PollInterval time.Duration `yaml:"poll_interval"`
	MaxAttempts  int           `yaml:"max_attempts"`

	SQL   SQLQueueConfig   `yaml:"sql"`
	Redis RedisQueueConfig `yaml:"redis"`
	SQS   SQSQueueConfig   `yaml:"sqs"`
	Kafka KafkaQueueConfig `yaml:"kafka"`
}

type SQLQueueConfig struct {
	Driver string `yaml:"driver"` // sqlite3 or postgres
	DSN    string `yaml:"dsn"`
}

type RedisQueueConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Queue    string `yaml:"queue"`
}

type SQSQueueConfig struct {
	QueueURL    string `yaml:"queue_url"`
	DLQURL      string `yaml:"dlq_url"`
	WaitSeconds int32  `yaml:"wait_seconds"`
	Region      string `yaml:"region"`
}

type KafkaQueueConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	DLQ     string   `yaml:"dlq_topic"`
	GroupID string   `yaml:"group_id"`
}

func (c *QueueConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "sql"
	}
	if c.PollInterval == 0 {
		c.PollInterval = 100 * time.Millisecond
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 3
	}
	if c.SQL.Driver == "" {
		c.SQL.Driver = "sqlite3"
	}
	if c.SQL.DSN == "" {
		c.SQL.DSN = ":memory:"
	}
}

// Policy is a per-organization policy bundle.
type Policy struct {
	Tools  ToolPolicy   `yaml:"tools"`
	Egress EgressPolicy `yaml:"egress"`
}

type ToolPolicy struct {
	Deny []string `yaml:"deny"`
}

type EgressPolicy struct {
	DenyDomains []string `yaml:"deny_domains"`
}

// Load reads and validates a yaml config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg.Reliability.SetDefaults()
	cfg.Queue.SetDefaults()
	if err := cfg.RateLimit.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
