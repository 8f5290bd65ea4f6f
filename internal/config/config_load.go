package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:       "0.0.0.0",
			Port:       3000,
			WebhookRPM: 30,
		},
		Assistant: AssistantConfig{
			Provider:                 "openai",
			Model:                    "gpt-4o",
			PauseMinutes:             30,
			CompletionTimeoutSeconds: 60,
			MaxConcurrentCompletions: 8,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			Path:   "warelay.db",
		},
	}
}

// Load reads config from a JSON file, then overlays env vars.
// A missing file is not an error; defaults plus env apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.ApplyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.ApplyEnvOverrides()
	return cfg, nil
}

// ApplyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values; secrets are env-only.
func (c *Config) ApplyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	envStr("WARELAY_OPENAI_API_KEY", &c.Assistant.APIKey)
	envStr("WARELAY_OPENAI_API_BASE", &c.Assistant.APIBase)
	envStr("WARELAY_MODEL", &c.Assistant.Model)

	envStr("WARELAY_TWILIO_ACCOUNT_SID", &c.Carriers.Twilio.AccountSID)
	envStr("WARELAY_TWILIO_AUTH_TOKEN", &c.Carriers.Twilio.AuthToken)
	envStr("WARELAY_TWILIO_FROM", &c.Carriers.Twilio.From)
	envStr("WARELAY_TELEGRAM_TOKEN", &c.Carriers.Telegram.Token)

	envStr("WARELAY_POSTGRES_DSN", &c.Database.PostgresDSN)
	envStr("WARELAY_DB_DRIVER", &c.Database.Driver)
	envStr("WARELAY_DB_PATH", &c.Database.Path)

	envStr("WARELAY_PANEL_TOKEN", &c.Server.PanelToken)
	envStr("WARELAY_HOST", &c.Server.Host)
	if v := os.Getenv("WARELAY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("WARELAY_PAUSE_MINUTES"); v != "" {
		if minutes, err := strconv.Atoi(v); err == nil && minutes > 0 {
			c.Assistant.PauseMinutes = minutes
		}
	}

	envStr("WARELAY_TSNET_AUTH_KEY", &c.Tailscale.AuthKey)

	// Auto-enable the Telegram carrier when a token arrives via env
	if c.Carriers.Telegram.Token != "" {
		c.Carriers.Telegram.Enabled = true
	}
}

// Validate reports configuration problems that prevent startup.
func (c *Config) Validate() error {
	if c.Database.Driver != "sqlite" && c.Database.Driver != "postgres" {
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	if c.Database.Driver == "postgres" && c.Database.PostgresDSN == "" {
		return fmt.Errorf("database driver is postgres but WARELAY_POSTGRES_DSN is not set")
	}
	if c.Carriers.Telegram.Enabled && c.Carriers.Telegram.Token == "" {
		return fmt.Errorf("telegram carrier enabled but WARELAY_TELEGRAM_TOKEN is not set")
	}
	return nil
}
