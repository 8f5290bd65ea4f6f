package config

import "time"

// Config is the root configuration for the warelay server.
type Config struct {
	Server    ServerConfig    `json:"server"`
	Carriers  CarriersConfig  `json:"carriers"`
	Assistant AssistantConfig `json:"assistant"`
	Database  DatabaseConfig  `json:"database,omitempty"`
	Telemetry TelemetryConfig `json:"telemetry,omitempty"`
	Tailscale TailscaleConfig `json:"tailscale,omitempty"`
}

// ServerConfig configures the HTTP listener and panel access.
type ServerConfig struct {
	Host           string   `json:"host"`
	Port           int      `json:"port"`
	PanelToken     string   `json:"-"` // from env WARELAY_PANEL_TOKEN only
	AllowedOrigins []string `json:"allowed_origins,omitempty"`
	WebhookRPM     int      `json:"webhook_rpm,omitempty"` // per-sender webhook rate limit, 0 = default
}

// CarriersConfig holds delivery-channel settings.
type CarriersConfig struct {
	Twilio   TwilioConfig   `json:"twilio"`
	Telegram TelegramConfig `json:"telegram,omitempty"`
}

// TwilioConfig configures the Twilio messaging carrier.
// Credentials come from env only (never persisted in config.json).
type TwilioConfig struct {
	AccountSID     string `json:"-"` // WARELAY_TWILIO_ACCOUNT_SID
	AuthToken      string `json:"-"` // WARELAY_TWILIO_AUTH_TOKEN
	From           string `json:"from,omitempty"`
	APIBase        string `json:"api_base,omitempty"` // override for tests
	VerifyWebhooks bool   `json:"verify_webhooks,omitempty"`
}

// TelegramConfig configures the optional Telegram carrier.
type TelegramConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Token   string `json:"-"` // WARELAY_TELEGRAM_TOKEN
}

// AssistantConfig configures the automated assistant and the
// response-arbitration behavior.
type AssistantConfig struct {
	Provider                 string  `json:"provider,omitempty"` // "openai" (default) or any OpenAI-compatible name
	APIKey                   string  `json:"-"`                  // WARELAY_OPENAI_API_KEY
	APIBase                  string  `json:"api_base,omitempty"`
	Model                    string  `json:"model,omitempty"`
	SystemPrompt             string  `json:"system_prompt,omitempty"`
	SystemPromptFile         string  `json:"system_prompt_file,omitempty"`
	PauseMinutes             int     `json:"pause_minutes,omitempty"`              // human-takeover pause window (default 30)
	CompletionTimeoutSeconds int     `json:"completion_timeout_seconds,omitempty"` // per-call timeout (default 60)
	MaxConcurrentCompletions int64   `json:"max_concurrent_completions,omitempty"` // default 8
	CompletionRPM            float64 `json:"completion_rpm,omitempty"`             // 0 = unlimited
}

// PauseWindow returns the human-takeover pause window as a duration.
func (a AssistantConfig) PauseWindow() time.Duration {
	minutes := a.PauseMinutes
	if minutes <= 0 {
		minutes = 30
	}
	return time.Duration(minutes) * time.Minute
}

// CompletionTimeout returns the per-completion-call timeout.
func (a AssistantConfig) CompletionTimeout() time.Duration {
	secs := a.CompletionTimeoutSeconds
	if secs <= 0 {
		secs = 60
	}
	return time.Duration(secs) * time.Second
}

// DatabaseConfig selects the message-store backend.
// PostgresDSN is NEVER read from config.json (secret) — only from env
// WARELAY_POSTGRES_DSN.
type DatabaseConfig struct {
	Driver      string `json:"driver,omitempty"` // "sqlite" (default) or "postgres"
	Path        string `json:"path,omitempty"`   // sqlite file path
	PostgresDSN string `json:"-"`
}

// TelemetryConfig configures optional OTLP trace export.
type TelemetryConfig struct {
	Enabled  bool   `json:"enabled,omitempty"`
	Endpoint string `json:"endpoint,omitempty"` // e.g. "http://localhost:4318" or "grpc://localhost:4317"
}

// TailscaleConfig configures the optional tsnet listener.
// Requires building with -tags tsnet. Auth key from env only.
type TailscaleConfig struct {
	Hostname  string `json:"hostname,omitempty"`
	StateDir  string `json:"state_dir,omitempty"`
	AuthKey   string `json:"-"` // WARELAY_TSNET_AUTH_KEY
	Ephemeral bool   `json:"ephemeral,omitempty"`
}
