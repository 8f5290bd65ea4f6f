package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"runtime"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/rincondev/warelay/internal/config"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check system environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("warelay doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND — defaults + env)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("  Config invalid: %s\n", err)
	}

	fmt.Println()
	fmt.Println("  Assistant:")
	checkSecret("WARELAY_OPENAI_API_KEY", cfg.Assistant.APIKey)
	fmt.Printf("    %-12s %s\n", "Model:", modelOrDefault(cfg))
	fmt.Printf("    %-12s %s\n", "Pause:", cfg.Assistant.PauseWindow())

	fmt.Println()
	fmt.Println("  Twilio:")
	checkSecret("WARELAY_TWILIO_ACCOUNT_SID", cfg.Carriers.Twilio.AccountSID)
	checkSecret("WARELAY_TWILIO_AUTH_TOKEN", cfg.Carriers.Twilio.AuthToken)
	if cfg.Carriers.Twilio.From == "" {
		fmt.Println("    From:        (not set)")
	} else {
		fmt.Printf("    From:        %s\n", cfg.Carriers.Twilio.From)
	}

	if cfg.Carriers.Telegram.Enabled {
		fmt.Println()
		fmt.Println("  Telegram:")
		checkSecret("WARELAY_TELEGRAM_TOKEN", cfg.Carriers.Telegram.Token)
	}

	fmt.Println()
	fmt.Println("  Storage:")
	fmt.Printf("    %-12s %s\n", "Driver:", storageDriver(cfg))
	if cfg.Database.Driver == "postgres" {
		probePostgres(cfg.Database.PostgresDSN)
	} else {
		fmt.Printf("    %-12s %s\n", "Path:", cfg.Database.Path)
	}
}

func modelOrDefault(cfg *config.Config) string {
	if cfg.Assistant.Model != "" {
		return cfg.Assistant.Model
	}
	return "gpt-4o (default)"
}

func checkSecret(envName, value string) {
	status := "OK"
	if value == "" {
		status = "MISSING"
	}
	fmt.Printf("    %-28s %s\n", envName+":", status)
}

func probePostgres(dsn string) {
	if dsn == "" {
		fmt.Println("    DSN:         MISSING (set WARELAY_POSTGRES_DSN)")
		return
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		fmt.Printf("    Connect:     FAILED (%s)\n", err)
		return
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		fmt.Printf("    Ping:        FAILED (%s)\n", err)
		return
	}
	fmt.Println("    Ping:        OK")
}
