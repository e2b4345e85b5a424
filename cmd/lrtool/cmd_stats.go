// Daily stats report command.
package main

import (
	"fmt"
	"time"

	"github.com/livereview/lrtool/internal/stats"
	"github.com/spf13/cobra"
)

var (
	statsDate string
	statsPost bool
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Collect daily signup and review counts from the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		day := time.Now()
		if statsDate != "" {
			parsed, err := time.Parse("2006-01-02", statsDate)
			if err != nil {
				return fmt.Errorf("parse date %q: %w", statsDate, err)
			}
			day = parsed
		}

		pool, err := stats.Connect(ctx, cfg.Database.URL)
		if err != nil {
			return err
		}
		defer pool.Close()

		report, err := stats.Collect(ctx, pool, day)
		if err != nil {
			return err
		}
		markdown := report.RenderMarkdown()
		fmt.Println(markdown)

		if statsPost {
			if cfg.Discord.WebhookURL == "" {
				return fmt.Errorf("discord.webhook_url is not configured")
			}
			if err := stats.PostToDiscord(ctx, newHTTPClient(), cfg.Discord.WebhookURL, markdown); err != nil {
				return err
			}
			fmt.Println("posted to discord")
		}
		return nil
	},
}

func init() {
	statsCmd.Flags().StringVar(&statsDate, "date", "", "report date YYYY-MM-DD (default today)")
	statsCmd.Flags().BoolVar(&statsPost, "post", false, "post the report to the Discord webhook")
}
