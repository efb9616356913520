package config

import (
	"os"
	"path/filepath"
	"testing"
)

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		envConfigPath,
		envBotToken,
		envSessionURL,
		envWebserverPort,
		envWebserverAuth,
		envTelegramBotToken,
		envTelegramAllowFrom,
	} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	return path
}

func TestLoadConfigFromEnvPath(t *testing.T) {
	clearConfigEnv(t)
	path := writeConfig(t, "config.json", `{
	  "bot": {"token": "xoxb-1", "session_url": "http://127.0.0.1:9000/rtm.start"},
	  "webserver": {"host": "0.0.0.0", "port": 8080, "auth_token": "s3cret"},
	  "channels": {"telegram": {}},
	  "commands": {"disabled": ["date"]},
	  "metrics": {"enabled": true},
	  "logging": {"format": "json", "level": "debug", "add_source": true}
	}`)
	t.Setenv(envConfigPath, path)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}

	if cfg.Bot.Token != "xoxb-1" {
		t.Fatalf("bot.token = %q, want %q", cfg.Bot.Token, "xoxb-1")
	}
	if cfg.Bot.SessionURL != "http://127.0.0.1:9000/rtm.start" {
		t.Fatalf("bot.session_url = %q", cfg.Bot.SessionURL)
	}
	if !cfg.Webserver.Enabled() || cfg.Webserver.Port != 8080 {
		t.Fatalf("webserver = %+v, want enabled on 8080", cfg.Webserver)
	}
	if cfg.Webserver.AuthToken != "s3cret" {
		t.Fatalf("webserver.auth_token = %q, want %q", cfg.Webserver.AuthToken, "s3cret")
	}
	if !cfg.Metrics.Enabled {
		t.Fatal("metrics.enabled = false, want true")
	}
	if cfg.CommandEnabled("date") {
		t.Fatal("date should be disabled")
	}
	if !cfg.CommandEnabled("ping") {
		t.Fatal("ping should be enabled")
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("logging.format = %q, want %q", cfg.Logging.Format, "json")
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("logging.level = %q, want %q", cfg.Logging.Level, "debug")
	}
	if !cfg.Logging.AddSource {
		t.Fatal("logging.add_source = false, want true")
	}
}

func TestLoadConfigYAML(t *testing.T) {
	clearConfigEnv(t)
	path := writeConfig(t, "config.yaml", `
bot:
  token: xoxb-yaml
webserver:
  port: 9090
commands:
  disable_webhooks: [output]
`)
	t.Setenv(envConfigPath, path)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Bot.Token != "xoxb-yaml" {
		t.Fatalf("bot.token = %q, want %q", cfg.Bot.Token, "xoxb-yaml")
	}
	if cfg.Webserver.Port != 9090 {
		t.Fatalf("webserver.port = %d, want 9090", cfg.Webserver.Port)
	}
	if cfg.WebhookEnabled("output") {
		t.Fatal("output webhook should be disabled")
	}
}

func TestLoadConfigInvalidEnvPath(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv(envConfigPath, filepath.Join(t.TempDir(), "missing.json"))

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for missing config path")
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	clearConfigEnv(t)
	path := writeConfig(t, "config.json", `{"bot": {"token": "from-file"}, "webserver": {"port": 1}}`)
	t.Setenv(envConfigPath, path)
	t.Setenv(envBotToken, "from-env")
	t.Setenv(envWebserverPort, "8443")
	t.Setenv(envWebserverAuth, "env-auth")
	t.Setenv(envTelegramBotToken, "tg-token")
	t.Setenv(envTelegramAllowFrom, " 1, ,2 ")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Bot.Token != "from-env" {
		t.Fatalf("bot.token = %q, want %q", cfg.Bot.Token, "from-env")
	}
	if cfg.Webserver.Port != 8443 {
		t.Fatalf("webserver.port = %d, want 8443", cfg.Webserver.Port)
	}
	if cfg.Webserver.AuthToken != "env-auth" {
		t.Fatalf("webserver.auth_token = %q, want %q", cfg.Webserver.AuthToken, "env-auth")
	}
	if cfg.Channels.Telegram.Token != "tg-token" {
		t.Fatalf("telegram.token = %q, want %q", cfg.Channels.Telegram.Token, "tg-token")
	}
	if got := cfg.Channels.Telegram.AllowFrom; len(got) != 2 || got[0] != "1" || got[1] != "2" {
		t.Fatalf("telegram.allow_from = %v, want [1 2]", got)
	}
}

func TestLoadConfigRejectsBadPortOverride(t *testing.T) {
	clearConfigEnv(t)
	path := writeConfig(t, "config.json", `{"bot": {"token": "t"}}`)
	t.Setenv(envConfigPath, path)
	t.Setenv(envWebserverPort, "eighty")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for non-numeric port")
	}
}

func TestValidate(t *testing.T) {
	tests := map[string]struct {
		cfg     Config
		wantErr bool
	}{
		"minimal":       {cfg: Config{Bot: BotConfig{Token: "t"}}},
		"missing token": {cfg: Config{}, wantErr: true},
		"port too high": {cfg: Config{Bot: BotConfig{Token: "t"}, Webserver: WebserverConfig{Port: 70000}}, wantErr: true},
		"telegram without token": {
			cfg:     Config{Bot: BotConfig{Token: "t"}, Channels: ChannelsConfig{Telegram: TelegramConfig{Enabled: true}}},
			wantErr: true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.wantErr && err == nil {
				t.Fatal("expected validation error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("Validate error: %v", err)
			}
		})
	}
}

func TestDisableAllBuiltin(t *testing.T) {
	cfg := Config{Commands: CommandsConfig{DisableAllBuiltin: true}}
	if cfg.CommandEnabled("ping") || cfg.WebhookEnabled("output") {
		t.Fatal("disable_all_builtin should disable every built-in")
	}
}
