// Test-account reset command.
package main

import (
	"fmt"

	"github.com/livereview/lrtool/internal/reset"
	"github.com/livereview/lrtool/internal/stats"
	"github.com/spf13/cobra"
)

var (
	resetEmail string
	resetYes   bool
)

var resetUserCmd = &cobra.Command{
	Use:   "reset-user",
	Short: "Delete a user and all org-scoped data so the account can re-register",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !resetYes {
			return fmt.Errorf("refusing to delete %s without --yes", resetEmail)
		}
		ctx := cmd.Context()

		pool, err := stats.Connect(ctx, cfg.Database.URL)
		if err != nil {
			return err
		}
		defer pool.Close()

		result, err := reset.ResetUser(ctx, pool, logger, resetEmail)
		if err != nil {
			return err
		}

		fmt.Printf("reset user %s (id %d)\n", result.Email, result.UserID)
		for _, step := range result.Steps {
			fmt.Printf("  %-32s %d rows\n", step.Name, step.Rows)
		}
		if len(result.DeletedOrgs) > 0 {
			fmt.Printf("  deleted orphaned orgs: %v\n", result.DeletedOrgs)
		}
		return nil
	},
}

func init() {
	resetUserCmd.Flags().StringVar(&resetEmail, "email", "", "email of the user to reset")
	resetUserCmd.Flags().BoolVar(&resetYes, "yes", false, "confirm deletion")
	_ = resetUserCmd.MarkFlagRequired("email")
}
