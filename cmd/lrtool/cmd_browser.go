// Browser login smoke test command.
package main

import (
	"fmt"
	"os"

	"github.com/livereview/lrtool/internal/browser"
	"github.com/spf13/cobra"
)

var browserScreenshot string

var browserSmokeCmd = &cobra.Command{
	Use:   "browser-smoke",
	Short: "Drive a real browser through the login flow and report the result",
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := browser.RunLoginSmoke(cmd.Context(), browser.Options{
			DebuggerURLs:   cfg.Browser.DebuggerURLs,
			CDPURL:         cfg.Browser.CDPURL,
			Headless:       cfg.Browser.Headless,
			LoginURL:       cfg.Browser.LoginURL,
			Email:          cfg.Browser.Email,
			Password:       cfg.Browser.Password,
			ScreenshotPath: browserScreenshot,
			Log:            logger,
		})
		if report != nil {
			browser.RenderReport(os.Stdout, report)
		}
		if err != nil {
			return fmt.Errorf("login smoke test: %w", err)
		}
		return nil
	},
}

func init() {
	browserSmokeCmd.Flags().StringVar(&browserScreenshot, "screenshot", "", "write a post-login screenshot to this path")
}
