package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config models launchpad.yml.
type Config struct {
	Database      DatabaseConfig      `yaml:"database" json:"database"`
	Server        ServerConfig        `yaml:"server" json:"server"`
	Auth          AuthConfig          `yaml:"auth" json:"-"`
	Scoring       ScoringConfig       `yaml:"scoring" json:"scoring"`
	Notifications NotificationsConfig `yaml:"notifications" json:"notifications"`
	Webhooks      []WebhookConfig     `yaml:"webhooks" json:"webhooks,omitempty"`
	Log           LogConfig           `yaml:"log" json:"log"`
}

type DatabaseConfig struct {
	Driver    string `yaml:"driver" json:"driver"`
	DSN       string `yaml:"dsn" json:"-"`
	Workspace string `yaml:"workspace" json:"workspace,omitempty"`
}

type ServerConfig struct {
	Addr           string          `yaml:"addr" json:"addr"`
	BasePath       string          `yaml:"base_path" json:"base_path"`
	AllowedOrigins []string        `yaml:"allowed_origins" json:"allowed_origins,omitempty"`
	RateLimit      RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
}

type RateLimitConfig struct {
	RPS   float64 `yaml:"rps" json:"rps"`
	Burst int     `yaml:"burst" json:"burst"`
}

type AuthConfig struct {
	JWTSecret        string `yaml:"jwt_secret"`
	AllowActorHeader bool   `yaml:"allow_actor_header"`
}

type ScoringConfig struct {
	TaskDonePoints int    `yaml:"task_done_points" json:"task_done_points"`
	TaskDoneEvent  string `yaml:"task_done_event" json:"task_done_event"`
}

type NotificationsConfig struct {
	Redis RedisConfig `yaml:"redis" json:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr,omitempty"`
	Password string `yaml:"password" json:"-"`
	DB       int    `yaml:"db" json:"db"`
	Channel  string `yaml:"channel" json:"channel,omitempty"`
}

type WebhookConfig struct {
	URL     string   `yaml:"url" json:"url"`
	Events  []string `yaml:"events" json:"events,omitempty"`
	Enabled *bool    `yaml:"enabled" json:"enabled,omitempty"`
}

type LogConfig struct {
	Environment string `yaml:"environment" json:"environment"`
	Level       string `yaml:"level" json:"level,omitempty"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
	case "postgres":
		if strings.TrimSpace(c.Database.DSN) == "" {
			return fmt.Errorf("config.database.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("config.database.driver must be 'sqlite' or 'postgres'")
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with '/'")
	}
	if c.Server.RateLimit.RPS < 0 || c.Server.RateLimit.Burst < 0 {
		return fmt.Errorf("config.server.rate_limit values must not be negative")
	}
	if c.Scoring.TaskDonePoints < 0 {
		return fmt.Errorf("config.scoring.task_done_points must not be negative")
	}
	if strings.TrimSpace(c.Scoring.TaskDoneEvent) == "" {
		return fmt.Errorf("config.scoring.task_done_event is required")
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("webhooks[%d].url is required", i)
		}
	}
	switch c.Log.Environment {
	case "production", "development":
	default:
		return fmt.Errorf("config.log.environment must be 'production' or 'development'")
	}
	return nil
}

// Path returns the config file path for a workspace directory.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "launchpad.yml")
}

// Load reads and validates config from path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses config from raw YAML bytes on top of the defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

const defaultTemplate = `database:
  driver: sqlite
  workspace: .

server:
  addr: 127.0.0.1:8080
  base_path: /v1
  rate_limit:
    rps: 20
    burst: 40

auth:
  allow_actor_header: false

scoring:
  task_done_points: 3
  task_done_event: TASK_DONE

notifications:
  redis:
    channel: launchpad:notifications

log:
  environment: development
  level: info
`
