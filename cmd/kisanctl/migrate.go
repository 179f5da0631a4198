package main

import (
	"fmt"

	"github.com/kisanmitra/backend/internal/database"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update every table",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer database.Close(db)

		if err := database.Migrate(db); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "✓ Migrations applied")
		return nil
	},
}
