package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kisanmitra/backend/internal/database"
	"github.com/kisanmitra/backend/internal/models"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage accounts",
}

var usersRoleCmd = &cobra.Command{
	Use:   "role <email|phone> <farmer|expert|admin>",
	Short: "Change an account's role",
	Long: `Sets the platform role of the account registered with an email address
or phone number. Admins can read operator analytics and moderate any group.
The user must sign in again for the new role to reach their token.

Examples:
  kisanctl users role officer@krishi.gov.in admin
  kisanctl users role +919876543210 expert`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dest, role := strings.TrimSpace(args[0]), args[1]
		switch role {
		case models.RoleFarmer, models.RoleExpert, models.RoleAdmin:
		default:
			return fmt.Errorf("unknown role %q (want farmer, expert or admin)", role)
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer database.Close(db)

		column := "phone"
		if strings.Contains(dest, "@") {
			column = "email"
			dest = strings.ToLower(dest)
		}

		var user models.User
		if err := db.Where(column+" = ?", dest).First(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("no account for %s", dest)
			}
			return err
		}
		if user.Role == role {
			return printResult(cmd, user, "⚠️  %s is already %s", dest, role)
		}

		if err := db.Model(&user).Update("role", role).Error; err != nil {
			return fmt.Errorf("failed to update role: %w", err)
		}
		user.Role = role
		return printResult(cmd, user, "✓ %s is now %s (user id %s)", dest, role, user.ID)
	},
}

func init() {
	usersCmd.AddCommand(usersRoleCmd)
}
