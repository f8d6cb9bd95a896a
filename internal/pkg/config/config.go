package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Postgres PostgresConfig `yaml:"postgres"`
	Logging  LoggingConfig  `yaml:"logging"`
	Monaco   MonacoConfig   `yaml:"monaco"`
	Pinnacle PinnacleConfig `yaml:"pinnacle"`
	Alerts   AlertsConfig   `yaml:"alerts"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug/info/warn/error
	Format string `yaml:"format"` // text/json
}

type MonacoConfig struct {
	Enabled   bool   `yaml:"enabled"`
	BaseURL   string `yaml:"base_url"`
	StreamURL string `yaml:"stream_url"`
	AppID     string `yaml:"app_id"`
	APIKey    string `yaml:"api_key"`

	RefetchInterval time.Duration `yaml:"refetch_interval"` // full market refetch cadence
	APIRateLimit    int           `yaml:"api_rate_limit"`   // REST calls per second
	SubRateLimit    int           `yaml:"sub_rate_limit"`   // subscription requests per minute
}

type PinnacleConfig struct {
	Enabled      bool          `yaml:"enabled"`
	BaseURL      string        `yaml:"base_url"`
	APIKey       string        `yaml:"api_key"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Timeout      time.Duration `yaml:"timeout"`
}

type AlertsConfig struct {
	TelegramBotToken string        `yaml:"telegram_bot_token"`
	TelegramChatID   int64         `yaml:"telegram_chat_id"`
	StaleAfter       time.Duration `yaml:"stale_after"` // alert when no venue write for this long
	Cooldown         time.Duration `yaml:"cooldown"`    // min gap between repeats of the same alert
}

// Load reads the YAML config and applies env overrides for secrets,
// so credentials never have to live in committed config files.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	overrideFromEnv(&cfg)
	applyDefaults(&cfg)
	return &cfg, nil
}

func overrideFromEnv(cfg *Config) {
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		cfg.Postgres.DSN = v
	}
	if v := os.Getenv("MONACO_APP_ID"); v != "" {
		cfg.Monaco.AppID = v
	}
	if v := os.Getenv("MONACO_API_KEY"); v != "" {
		cfg.Monaco.APIKey = v
	}
	if v := os.Getenv("PINNACLE_API_KEY"); v != "" {
		cfg.Pinnacle.APIKey = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Alerts.TelegramBotToken = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Monaco.RefetchInterval <= 0 {
		cfg.Monaco.RefetchInterval = time.Hour
	}
	if cfg.Monaco.APIRateLimit <= 0 {
		cfg.Monaco.APIRateLimit = 1
	}
	if cfg.Monaco.SubRateLimit <= 0 {
		cfg.Monaco.SubRateLimit = 10
	}
	if cfg.Pinnacle.PollInterval <= 0 {
		cfg.Pinnacle.PollInterval = time.Second
	}
	if cfg.Pinnacle.Timeout <= 0 {
		// Poll path treats a timeout as "no data this cycle", so keep it tight.
		cfg.Pinnacle.Timeout = time.Second
	}
	if cfg.Alerts.StaleAfter <= 0 {
		cfg.Alerts.StaleAfter = 10 * time.Minute
	}
	if cfg.Alerts.Cooldown <= 0 {
		cfg.Alerts.Cooldown = time.Hour
	}
}
