package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"pamsync/pkg/circuitbreaker"
	"pamsync/pkg/config"
)

// SourceConfig 一个组织的周计划表导出地址
type SourceConfig struct {
	OrgID      string `yaml:"org_id"`
	URL        string `yaml:"url"`
	Label      string `yaml:"label"`
	ImporterID string `yaml:"importer_id"`
}

type SyncConfig struct {
	AllowedDomains []string      `yaml:"allowed_domains"`
	ImportPolicy   string        `yaml:"import_policy"`
	MinInterval    time.Duration `yaml:"min_interval"`
	// 0 表示关闭定时同步
	ScheduleInterval time.Duration         `yaml:"schedule_interval"`
	FetchTimeout     time.Duration         `yaml:"fetch_timeout"`
	Breaker          circuitbreaker.Config `yaml:"breaker"`
	Timezone         string                `yaml:"timezone"`
	Sources          []SourceConfig        `yaml:"sources"`
}

type OutboxConfig struct {
	Interval   time.Duration `yaml:"interval"`
	BatchSize  int           `yaml:"batch_size"`
	MaxRetries int           `yaml:"max_retries"`
}

type Config struct {
	DB       config.DBConfig     `yaml:"db"`
	MQ       config.MQConfig     `yaml:"mq"`
	Redis    config.RedisConfig  `yaml:"redis"`
	JWT      config.JWTConfig    `yaml:"jwt"`
	Server   config.ServerConfig `yaml:"server"`
	OTel     config.OTelConfig   `yaml:"otel"`
	LogLevel string              `yaml:"log_level"`
	Sync     SyncConfig          `yaml:"sync"`
	Outbox   OutboxConfig        `yaml:"outbox"`
	// 事件去重窗口
	DedupeTTL time.Duration `yaml:"dedupe_ttl"`
}

// Load 使用统一配置中心加载配置，环境变量优先级最高
func Load() (*Config, error) {
	env := config.GetConfigEnv()
	configDir := config.GetEnv("CONFIG_DIR", "config")

	cfgMap, err := config.LoadConfig(env, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	cfg := Default()
	if err := config.Decode(cfgMap, cfg); err != nil {
		return nil, err
	}

	config.OverrideDBFromEnv(&cfg.DB)
	config.OverrideMQFromEnv(&cfg.MQ)
	config.OverrideRedisFromEnv(&cfg.Redis)
	config.OverrideJWTFromEnv(&cfg.JWT)
	config.OverrideServerFromEnv(&cfg.Server)
	config.OverrideOTelFromEnv(&cfg.OTel)
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default 未在 yaml 中出现的字段保留这些值
func Default() *Config {
	return &Config{
		Server:   config.ServerConfig{Port: ":8080"},
		LogLevel: "info",
		Sync: SyncConfig{
			ImportPolicy: "strict",
			MinInterval:  5 * time.Minute,
			FetchTimeout: 30 * time.Second,
			Breaker:      circuitbreaker.DefaultConfig(),
			Timezone:     "UTC",
		},
		Outbox: OutboxConfig{
			Interval:   2 * time.Second,
			BatchSize:  100,
			MaxRetries: 5,
		},
		DedupeTTL: 24 * time.Hour,
		OTel:      config.OTelConfig{ServiceName: "pamsync"},
	}
}

// Validate 检查启动前必须满足的配置
func (c *Config) Validate() error {
	if len(c.Sync.AllowedDomains) == 0 {
		return fmt.Errorf("sync.allowed_domains must not be empty")
	}
	if _, err := time.LoadLocation(c.Sync.Timezone); err != nil {
		return fmt.Errorf("sync.timezone: %w", err)
	}
	seen := make(map[string]bool, len(c.Sync.Sources))
	for i, s := range c.Sync.Sources {
		if _, err := uuid.Parse(s.OrgID); err != nil {
			return fmt.Errorf("sync.sources[%d].org_id: %w", i, err)
		}
		if _, err := uuid.Parse(s.ImporterID); err != nil {
			return fmt.Errorf("sync.sources[%d].importer_id: %w", i, err)
		}
		if !strings.HasPrefix(s.URL, "http://") && !strings.HasPrefix(s.URL, "https://") {
			return fmt.Errorf("sync.sources[%d].url must be http(s)", i)
		}
		if seen[s.OrgID] {
			return fmt.Errorf("sync.sources[%d]: duplicate org_id %s", i, s.OrgID)
		}
		seen[s.OrgID] = true
	}
	return nil
}

// Location 已经过 Validate，不会失败
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Sync.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
