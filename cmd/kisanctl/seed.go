package main

import (
	"github.com/kisanmitra/backend/internal/database"
	"github.com/kisanmitra/backend/internal/seed"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Fill the database with fake farmers, groups and posts",
	Long: `Creates demo data through the regular services, so counters,
moderation states and feed affinities are consistent.

Examples:
  kisanctl seed
  kisanctl seed --users 200 --groups 20 --posts 1000
  kisanctl seed --clean`,
	RunE: func(cmd *cobra.Command, args []string) error {
		users, _ := cmd.Flags().GetInt("users")
		groups, _ := cmd.Flags().GetInt("groups")
		posts, _ := cmd.Flags().GetInt("posts")
		clean, _ := cmd.Flags().GetBool("clean")

		db, err := openDB()
		if err != nil {
			return err
		}
		defer database.Close(db)
		if err := database.Migrate(db); err != nil {
			return err
		}

		s := seed.NewSeeder(db)
		if clean {
			if err := s.Clean(cmd.Context()); err != nil {
				return err
			}
			return printResult(cmd, map[string]bool{"cleaned": true}, "✓ Seed data removed")
		}

		sum, err := s.Seed(cmd.Context(), seed.Options{Users: users, Groups: groups, Posts: posts})
		if err != nil {
			return err
		}
		return printResult(cmd, sum, "✓ Seeded %d users, %d groups, %d posts, %d comments, %d interactions",
			sum.Users, sum.Groups, sum.Posts, sum.Comments, sum.Interactions)
	},
}

func init() {
	seedCmd.Flags().Int("users", 50, "Number of farmer accounts")
	seedCmd.Flags().Int("groups", 8, "Number of groups")
	seedCmd.Flags().Int("posts", 200, "Number of posts")
	seedCmd.Flags().Bool("clean", false, "Remove previously seeded data instead")
}
