package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	envConfigPath        = "RTMBOT_CONFIG"
	envBotToken          = "RTMBOT_TOKEN"
	envSessionURL        = "RTMBOT_SESSION_URL"
	envWebserverPort     = "RTMBOT_WEBSERVER_PORT"
	envWebserverAuth     = "RTMBOT_WEBSERVER_AUTH_TOKEN"
	envTelegramBotToken  = "TELEGRAM_BOT_TOKEN"
	envTelegramAllowFrom = "TELEGRAM_ALLOW_FROM"
)

// Config is the root runtime configuration loaded from config.json or config.yaml.
type Config struct {
	Bot       BotConfig       `json:"bot" yaml:"bot"`
	Webserver WebserverConfig `json:"webserver" yaml:"webserver"`
	Channels  ChannelsConfig  `json:"channels" yaml:"channels"`
	Commands  CommandsConfig  `json:"commands" yaml:"commands"`
	Metrics   MetricsConfig   `json:"metrics" yaml:"metrics"`
	Logging   LoggingConfig   `json:"logging,omitempty" yaml:"logging,omitempty"`
}

// BotConfig holds the gateway credentials.
type BotConfig struct {
	Token      string `json:"token" yaml:"token"`
	SessionURL string `json:"session_url,omitempty" yaml:"session_url,omitempty"`
}

// WebserverConfig enables the inbound webhook endpoint when Port is set.
type WebserverConfig struct {
	Host      string `json:"host,omitempty" yaml:"host,omitempty"`
	Port      int    `json:"port,omitempty" yaml:"port,omitempty"`
	AuthToken string `json:"auth_token,omitempty" yaml:"auth_token,omitempty"`
}

// Enabled reports whether the webhook endpoint should listen.
func (w WebserverConfig) Enabled() bool { return w.Port > 0 }

// ChannelsConfig stores optional extra transports.
type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram" yaml:"telegram"`
}

// TelegramConfig configures Telegram channel integration.
type TelegramConfig struct {
	Enabled   bool     `json:"enabled" yaml:"enabled"`
	Token     string   `json:"token" yaml:"token"`
	AllowFrom []string `json:"allow_from" yaml:"allow_from"`
}

// CommandsConfig controls the built-in commands and webhooks.
type CommandsConfig struct {
	Disabled          []string `json:"disabled,omitempty" yaml:"disabled,omitempty"`
	DisableWebhooks   []string `json:"disable_webhooks,omitempty" yaml:"disable_webhooks,omitempty"`
	DisableAllBuiltin bool     `json:"disable_all_builtin,omitempty" yaml:"disable_all_builtin,omitempty"`
}

// MetricsConfig exposes Prometheus metrics on the webserver.
type MetricsConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string `json:"format,omitempty" yaml:"format,omitempty"`
	Level     string `json:"level,omitempty" yaml:"level,omitempty"`
	AddSource bool   `json:"add_source,omitempty" yaml:"add_source,omitempty"`
}

// LoadConfig resolves the config file, unmarshals it, and applies .env and
// environment overrides. A missing config file is not an error when the
// token comes from the environment.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config

	configPath, err := findConfigPath()
	switch {
	case err == nil:
		if err := readConfigFile(configPath, &cfg); err != nil {
			return nil, err
		}
	case errors.Is(err, errConfigNotFound) && strings.TrimSpace(os.Getenv(envBotToken)) != "":
	default:
		return nil, err
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the required token and the webserver port range.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Bot.Token) == "" {
		return errors.New("bot.token is required")
	}
	if c.Webserver.Port < 0 || c.Webserver.Port > 65535 {
		return fmt.Errorf("webserver.port %d is out of range", c.Webserver.Port)
	}
	if c.Channels.Telegram.Enabled && strings.TrimSpace(c.Channels.Telegram.Token) == "" {
		return errors.New("channels.telegram.token is required when telegram is enabled")
	}
	return nil
}

// CommandEnabled reports whether a built-in command should be loaded.
func (c *Config) CommandEnabled(name string) bool {
	return !c.Commands.DisableAllBuiltin && !slices.Contains(c.Commands.Disabled, name)
}

// WebhookEnabled reports whether a built-in webhook should be loaded.
func (c *Config) WebhookEnabled(name string) bool {
	return !c.Commands.DisableAllBuiltin && !slices.Contains(c.Commands.DisableWebhooks, name)
}

func readConfigFile(path string, cfg *Config) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(content, cfg)
	default:
		err = json.Unmarshal(content, cfg)
	}
	if err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

// applyEnvOverrides injects selected env-driven settings on top of file config.
func applyEnvOverrides(cfg *Config) error {
	if cfg == nil {
		return nil
	}

	if token := strings.TrimSpace(os.Getenv(envBotToken)); token != "" {
		cfg.Bot.Token = token
	}
	if sessionURL := strings.TrimSpace(os.Getenv(envSessionURL)); sessionURL != "" {
		cfg.Bot.SessionURL = sessionURL
	}
	if rawPort := strings.TrimSpace(os.Getenv(envWebserverPort)); rawPort != "" {
		port, err := strconv.Atoi(rawPort)
		if err != nil {
			return fmt.Errorf("%s: %w", envWebserverPort, err)
		}
		cfg.Webserver.Port = port
	}
	if auth := strings.TrimSpace(os.Getenv(envWebserverAuth)); auth != "" {
		cfg.Webserver.AuthToken = auth
	}

	if token := strings.TrimSpace(os.Getenv(envTelegramBotToken)); token != "" {
		cfg.Channels.Telegram.Token = token
	}
	if rawAllowFrom := strings.TrimSpace(os.Getenv(envTelegramAllowFrom)); rawAllowFrom != "" {
		cfg.Channels.Telegram.AllowFrom = parseCSV(rawAllowFrom)
	}

	return nil
}

// parseCSV splits comma-separated values and returns a trimmed compact slice.
func parseCSV(input string) []string {
	parts := strings.Split(input, ",")
	clean := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		clean = append(clean, trimmed)
	}

	return slices.Clip(clean)
}

var errConfigNotFound = errors.New("config file not found")

// findConfigPath resolves the active config file location.
//
// Precedence is RTMBOT_CONFIG first, then cwd-local fallback paths.
func findConfigPath() (string, error) {
	if value := strings.TrimSpace(os.Getenv(envConfigPath)); value != "" {
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return value, nil
		}
		return "", fmt.Errorf("%s does not point to a file: %s", envConfigPath, value)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current working directory: %w", err)
	}

	candidates := []string{
		filepath.Join(cwd, "config.json"),
		filepath.Join(cwd, "config", "config.json"),
		filepath.Join(cwd, "config.yaml"),
		filepath.Join(cwd, "config", "config.yaml"),
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("%w (checked %s)", errConfigNotFound, strings.Join(candidates, ", "))
}
