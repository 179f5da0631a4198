package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/kisanmitra/backend/internal/config"
	"github.com/kisanmitra/backend/internal/database"
	"github.com/kisanmitra/backend/internal/logger"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var (
	output   string = "text" // "text" or "json"
	logLevel string = "warn"
)

var rootCmd = &cobra.Command{
	Use:   "kisanctl",
	Short: "KisanMitra operator CLI",
	Long: `kisanctl runs maintenance tasks against the KisanMitra database:
migrations, demo data, analytics reports and account roles.

Database settings come from the same environment (or .env) as the server.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()
		if output != "text" && output != "json" {
			return fmt.Errorf("unknown output format %q (want text or json)", output)
		}
		return logger.Initialize(logLevel, "kisanctl.log")
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&output, "output", output, "Output format: text or json")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", logLevel, "Log level: debug, info, warn or error")

	// Add command groups
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(analyticsCmd)
	rootCmd.AddCommand(usersCmd)
}

// openDB connects with the server's database settings
func openDB() (*gorm.DB, error) {
	cfg, err := config.LoadDatabase()
	if err != nil {
		return nil, err
	}
	return database.Open(cfg, false, false)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
