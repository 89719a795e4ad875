package main

import (
	"fmt"
	"os"
	"time"

	"codeprep/internal/common/cache"
	"codeprep/internal/common/db"
	"codeprep/internal/common/mq"
	"codeprep/internal/common/storage"
	"codeprep/internal/grading/service"
	judgeclient "codeprep/internal/judge/client"
	"codeprep/pkg/utils/logger"

	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8090"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 60 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 30 * time.Second
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
}

// TopicConfig names the topics grading publishes to.
type TopicConfig struct {
	Notifications string `yaml:"notifications"`
	Stats         string `yaml:"stats"`
	StatsDLQ      string `yaml:"statsDLQ"`
}

// ConsumerConfig tunes the stats consumer.
type ConsumerConfig struct {
	Group       string        `yaml:"group"`
	Concurrency int           `yaml:"concurrency"`
	MaxRetries  int           `yaml:"maxRetries"`
	RetryDelay  time.Duration `yaml:"retryDelay"`
}

func (c ConsumerConfig) toSubscribeOptions(deadLetterTopic string) mq.SubscribeOptions {
	return mq.SubscribeOptions{
		ConsumerGroup:   c.Group,
		Concurrency:     c.Concurrency,
		MaxRetries:      c.MaxRetries,
		RetryDelay:      c.RetryDelay,
		DeadLetterTopic: deadLetterTopic,
	}
}

// GradingConfig holds grading settings.
type GradingConfig struct {
	Languages          map[string]int        `yaml:"languages"`
	Budgets            service.BudgetConfig  `yaml:"budgets"`
	PollConcurrency    int                   `yaml:"pollConcurrency"`
	DailyQuota         int                   `yaml:"dailyQuota"`
	GuardMargin        time.Duration         `yaml:"guardMargin"`
	SourceBucket       string                `yaml:"sourceBucket"`
	SourceKeyPrefix    string                `yaml:"sourceKeyPrefix"`
	MaxSourceBytes     int64                 `yaml:"maxSourceBytes"`
	MaxCodeBytes       int                   `yaml:"maxCodeBytes"`
	SubmissionCacheTTL time.Duration         `yaml:"submissionCacheTTL"`
	SubmissionEmptyTTL time.Duration         `yaml:"submissionEmptyTTL"`
	ProblemCacheTTL    time.Duration         `yaml:"problemCacheTTL"`
	ProblemEmptyTTL    time.Duration         `yaml:"problemEmptyTTL"`
	Timeouts           service.TimeoutConfig `yaml:"timeouts"`
}

// StatsConfig holds stats consumer settings.
type StatsConfig struct {
	ProcessedTTL time.Duration  `yaml:"processedTTL"`
	Consumer     ConsumerConfig `yaml:"consumer"`
}

// AppConfig holds grading-service configuration.
type AppConfig struct {
	Server   ServerConfig        `yaml:"server"`
	Logger   logger.Config       `yaml:"logger"`
	Database db.MySQLConfig      `yaml:"database"`
	Redis    cache.RedisConfig   `yaml:"redis"`
	Kafka    mq.KafkaConfig      `yaml:"kafka"`
	Topics   TopicConfig         `yaml:"topics"`
	MinIO    storage.MinIOConfig `yaml:"minio"`
	Judge    judgeclient.Config  `yaml:"judge"`
	Grading  GradingConfig       `yaml:"grading"`
	Stats    StatsConfig         `yaml:"stats"`
}

func defaultLanguages() map[string]int {
	return map[string]int{
		"python":     71,
		"cpp":        54,
		"java":       62,
		"javascript": 63,
		"go":         60,
	}
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if cfg.Database.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	if cfg.Judge.BaseURL == "" {
		return nil, fmt.Errorf("judge baseURL is required")
	}
	if cfg.Grading.SourceBucket == "" {
		return nil, fmt.Errorf("source bucket is required")
	}
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}

	if cfg.Topics.Notifications == "" {
		cfg.Topics.Notifications = service.DefaultNotificationTopic
	}
	if cfg.Topics.Stats == "" {
		cfg.Topics.Stats = service.DefaultStatsTopic
	}
	if cfg.Topics.StatsDLQ == "" {
		cfg.Topics.StatsDLQ = cfg.Topics.Stats + ".dlq"
	}

	if len(cfg.Grading.Languages) == 0 {
		cfg.Grading.Languages = defaultLanguages()
	}
	if cfg.Grading.Budgets.Run.MaxAttempts == 0 {
		cfg.Grading.Budgets.Run = service.DefaultRunBudget
	}
	if cfg.Grading.Budgets.Submit.MaxAttempts == 0 {
		cfg.Grading.Budgets.Submit = service.DefaultSubmitBudget
	}
	if cfg.Grading.PollConcurrency == 0 {
		cfg.Grading.PollConcurrency = 16
	}
	if cfg.Grading.MaxCodeBytes == 0 {
		cfg.Grading.MaxCodeBytes = 64 * 1024
	}
	if cfg.Grading.SourceBucket == "" {
		cfg.Grading.SourceBucket = cfg.MinIO.Bucket
	}
	if cfg.Grading.SubmissionCacheTTL == 0 {
		cfg.Grading.SubmissionCacheTTL = 30 * time.Minute
	}
	if cfg.Grading.SubmissionEmptyTTL == 0 {
		cfg.Grading.SubmissionEmptyTTL = 5 * time.Minute
	}
	if cfg.Grading.ProblemCacheTTL == 0 {
		cfg.Grading.ProblemCacheTTL = 30 * time.Minute
	}
	if cfg.Grading.ProblemEmptyTTL == 0 {
		cfg.Grading.ProblemEmptyTTL = 5 * time.Minute
	}
	if cfg.Grading.Timeouts.DB == 0 {
		cfg.Grading.Timeouts.DB = 3 * time.Second
	}
	if cfg.Grading.Timeouts.Cache == 0 {
		cfg.Grading.Timeouts.Cache = 1 * time.Second
	}
	if cfg.Grading.Timeouts.MQ == 0 {
		cfg.Grading.Timeouts.MQ = 3 * time.Second
	}
	if cfg.Grading.Timeouts.Storage == 0 {
		cfg.Grading.Timeouts.Storage = 5 * time.Second
	}

	if cfg.Stats.Consumer.Group == "" {
		cfg.Stats.Consumer.Group = "codeprep-stats"
	}
}
