package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/rincondev/warelay/internal/config"
)

func onboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "onboard",
		Short: "Interactive first-run setup",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnboard()
		},
	}
}

// canAutoOnboard reports whether env vars alone are enough for a
// non-interactive setup (Docker / CI).
func canAutoOnboard() bool {
	return os.Getenv("WARELAY_OPENAI_API_KEY") != "" &&
		os.Getenv("WARELAY_TWILIO_ACCOUNT_SID") != "" &&
		os.Getenv("WARELAY_TWILIO_AUTH_TOKEN") != ""
}

// runAutoOnboard writes a default config when secrets already come
// from the environment. Returns true on success.
func runAutoOnboard(cfgPath string) bool {
	fmt.Println("Auto-onboard: environment variables detected, running non-interactive setup...")

	cfg := config.Default()
	cfg.ApplyEnvOverrides()

	if err := writeConfig(cfgPath, cfg); err != nil {
		fmt.Printf("Auto-onboard failed: %s\n", err)
		return false
	}
	fmt.Printf("  Config written to %s\n", cfgPath)
	return true
}

func runOnboard() error {
	cfgPath := resolveConfigPath()
	if canAutoOnboard() {
		if !runAutoOnboard(cfgPath) {
			return fmt.Errorf("auto-onboard failed")
		}
		return nil
	}

	cfg := config.Default()
	cfg.ApplyEnvOverrides()

	var (
		openaiKey   = cfg.Assistant.APIKey
		accountSID  = cfg.Carriers.Twilio.AccountSID
		authToken   = cfg.Carriers.Twilio.AuthToken
		from        = cfg.Carriers.Twilio.From
		telegramTok = cfg.Carriers.Telegram.Token
		port        = strconv.Itoa(cfg.Server.Port)
	)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("OpenAI API key").
				Description("Used for automated replies. Stored in .env.local, never in config.json.").
				EchoMode(huh.EchoModePassword).
				Value(&openaiKey),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Twilio Account SID").
				Value(&accountSID),
			huh.NewInput().
				Title("Twilio Auth Token").
				EchoMode(huh.EchoModePassword).
				Value(&authToken),
			huh.NewInput().
				Title("Twilio sender address").
				Description(`WhatsApp sandbox number, e.g. "whatsapp:+14155238886"`).
				Value(&from),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Telegram bot token (optional)").
				Description("Leave empty to run Twilio-only.").
				EchoMode(huh.EchoModePassword).
				Value(&telegramTok),
			huh.NewInput().
				Title("Listen port").
				Value(&port).
				Validate(func(s string) error {
					if _, err := strconv.Atoi(s); err != nil {
						return fmt.Errorf("port must be a number")
					}
					return nil
				}),
		),
	)

	if err := form.Run(); err != nil {
		return fmt.Errorf("onboard cancelled: %w", err)
	}

	cfg.Carriers.Twilio.From = from
	cfg.Carriers.Telegram.Enabled = telegramTok != ""
	cfg.Server.Port, _ = strconv.Atoi(port)

	if err := writeConfig(cfgPath, cfg); err != nil {
		return err
	}
	fmt.Printf("Config written to %s\n", cfgPath)

	if err := writeEnvLocal(".env.local", openaiKey, accountSID, authToken, telegramTok); err != nil {
		return err
	}
	fmt.Println("Secrets written to .env.local")
	fmt.Println()
	fmt.Println("Start the relay with:")
	fmt.Println()
	fmt.Println("  source .env.local && warelay serve")
	return nil
}

// writeConfig persists the non-secret config. Secret fields carry
// `json:"-"` tags, so they can never leak into this file.
func writeConfig(path string, cfg *config.Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func writeEnvLocal(path, openaiKey, accountSID, authToken, telegramTok string) error {
	content := fmt.Sprintf(`export WARELAY_OPENAI_API_KEY=%q
export WARELAY_TWILIO_ACCOUNT_SID=%q
export WARELAY_TWILIO_AUTH_TOKEN=%q
`, openaiKey, accountSID, authToken)
	if telegramTok != "" {
		content += fmt.Sprintf("export WARELAY_TELEGRAM_TOKEN=%q\n", telegramTok)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
