// GitHub pull request comment, pending review, and webhook commands.
package main

import (
	"fmt"
	"net/http"

	"github.com/livereview/lrtool/internal/providers/github"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	githubRepo     string
	githubPR       int
	githubFile     string
	githubLine     int
	githubSide     string
	githubBody     string
	githubComment  string
	githubYes      bool
	githubHookURL  string
	githubHookID   int64
	githubReviewID int64
)

var githubCmd = &cobra.Command{
	Use:   "github",
	Short: "GitHub pull request comments, pending reviews, and webhooks",
}

var githubValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Verify the configured GitHub credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newGithubClient()
		if err != nil {
			return err
		}
		user, err := client.ValidateCredentials(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("authenticated as %s\n", user)
		return nil
	},
}

var githubCommentCmd = &cobra.Command{
	Use:   "comment",
	Short: "Post a comment, inline when --file and --line are given",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newGithubClient()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		if githubFile == "" {
			comment, err := client.CreateComment(ctx, githubRepo, githubPR, githubBody)
			if err != nil {
				return err
			}
			fmt.Printf("created comment %s\n", comment.ID)
			return nil
		}
		pos, err := positionFromSide(githubLine, githubSide)
		if err != nil {
			return err
		}
		comment, err := client.CreateInlineComment(ctx, githubRepo, githubPR, githubFile, githubBody, pos)
		if err != nil {
			return err
		}
		fmt.Printf("created inline comment %s at %s:%d\n", comment.ID, githubFile, githubLine)
		return nil
	},
}

var githubReplyCmd = &cobra.Command{
	Use:   "reply",
	Short: "Reply to a review comment",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newGithubClient()
		if err != nil {
			return err
		}
		comment, err := client.ReplyComment(cmd.Context(), githubRepo, githubPR, githubComment, githubBody)
		if err != nil {
			return err
		}
		fmt.Printf("created reply %s\n", comment.ID)
		return nil
	},
}

var githubCommentsCmd = &cobra.Command{
	Use:   "comments",
	Short: "List review and issue comments on the pull request",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newGithubClient()
		if err != nil {
			return err
		}
		comments, err := client.ListComments(cmd.Context(), githubRepo, githubPR)
		if err != nil {
			return err
		}
		printComments(comments)
		return nil
	},
}

var githubCommentsDeleteAllCmd = &cobra.Command{
	Use:   "delete-all",
	Short: "Delete every review and issue comment on the pull request",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !githubYes {
			return fmt.Errorf("refusing to delete comments without --yes")
		}
		client, err := newGithubClient()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		comments, err := client.ListComments(ctx, githubRepo, githubPR)
		if err != nil {
			return err
		}
		deleted := 0
		for _, c := range comments {
			if err := client.DeleteComment(ctx, githubRepo, githubPR, c.ID); err != nil {
				logger.Warn("delete failed", zap.String("comment", c.ID), zap.Error(err))
				continue
			}
			deleted++
		}
		fmt.Printf("deleted %d of %d comments\n", deleted, len(comments))
		return nil
	},
}

var githubDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete a comment, falling back from review to issue comments",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newGithubClient()
		if err != nil {
			return err
		}
		if err := client.DeleteComment(cmd.Context(), githubRepo, githubPR, githubComment); err != nil {
			return err
		}
		fmt.Printf("deleted comment %s\n", githubComment)
		return nil
	},
}

var githubReviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Resolve stuck pending reviews",
}

var githubReviewPendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "Show the pending review on the pull request, if any",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newGithubClient()
		if err != nil {
			return err
		}
		review, found, err := client.FindPendingReview(cmd.Context(), githubRepo, githubPR)
		if err != nil {
			return err
		}
		if !found {
			fmt.Println("no pending review")
			return nil
		}
		fmt.Printf("pending review %d by %s\n", review.ID, review.Author)
		return nil
	},
}

var githubReviewSubmitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit the pending review as a comment review",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newGithubClient()
		if err != nil {
			return err
		}
		reviewID, err := resolvePendingReviewID(cmd, client)
		if err != nil {
			return err
		}
		if err := client.SubmitPendingReview(cmd.Context(), githubRepo, githubPR, reviewID, githubBody); err != nil {
			return err
		}
		fmt.Printf("submitted review %d\n", reviewID)
		return nil
	},
}

var githubReviewDiscardCmd = &cobra.Command{
	Use:   "discard",
	Short: "Discard the pending review",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newGithubClient()
		if err != nil {
			return err
		}
		reviewID, err := resolvePendingReviewID(cmd, client)
		if err != nil {
			return err
		}
		if err := client.DiscardPendingReview(cmd.Context(), githubRepo, githubPR, reviewID); err != nil {
			return err
		}
		fmt.Printf("discarded review %d\n", reviewID)
		return nil
	},
}

var githubWebhookCmd = &cobra.Command{
	Use:   "webhook",
	Short: "Manage repository webhooks",
}

var githubWebhookInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Install the review webhook on the repository",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newGithubClient()
		if err != nil {
			return err
		}
		hook, err := client.InstallWebhook(cmd.Context(), githubRepo, githubHookURL, cfg.Listener.Secret, github.DefaultWebhookEvents)
		if err != nil {
			return err
		}
		fmt.Printf("hook %d -> %s\n", hook.ID, hook.URL)
		return nil
	},
}

var githubWebhookListCmd = &cobra.Command{
	Use:   "list",
	Short: "List repository webhooks",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newGithubClient()
		if err != nil {
			return err
		}
		hooks, err := client.ListWebhooks(cmd.Context(), githubRepo)
		if err != nil {
			return err
		}
		for _, h := range hooks {
			fmt.Printf("%-10d active=%v %s %v\n", h.ID, h.Active, h.URL, h.Events)
		}
		return nil
	},
}

var githubWebhookDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete a repository webhook by id",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newGithubClient()
		if err != nil {
			return err
		}
		if err := client.DeleteWebhook(cmd.Context(), githubRepo, githubHookID); err != nil {
			return err
		}
		fmt.Printf("deleted hook %d\n", githubHookID)
		return nil
	},
}

// resolvePendingReviewID uses the --review flag when given, otherwise
// looks the pending review up.
func resolvePendingReviewID(cmd *cobra.Command, client *github.Client) (int64, error) {
	if githubReviewID > 0 {
		return githubReviewID, nil
	}
	review, found, err := client.FindPendingReview(cmd.Context(), githubRepo, githubPR)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, fmt.Errorf("no pending review on %s#%d", githubRepo, githubPR)
	}
	return review.ID, nil
}

func newGithubClient() (*github.Client, error) {
	var httpClient *http.Client
	if cfg.GitHub.Token == "" && cfg.GitHub.AppID > 0 {
		appClient, err := github.NewInstallationHTTPClient(github.InstallationAuthConfig{
			AppID:          cfg.GitHub.AppID,
			InstallationID: cfg.GitHub.InstallationID,
			PrivateKeyPath: cfg.GitHub.PrivateKeyPath,
			Timeout:        cfg.GitHub.RequestTimeout,
		})
		if err != nil {
			return nil, err
		}
		httpClient = appClient
	}
	rest, err := github.NewRESTClient(httpClient, cfg.GitHub.Token, cfg.GitHub.APIBaseURL)
	if err != nil {
		return nil, err
	}
	return github.NewClient(rest)
}

func init() {
	githubCmd.PersistentFlags().StringVar(&githubRepo, "repo", "", "repository, e.g. owner/name")
	githubCmd.PersistentFlags().IntVar(&githubPR, "pr", 0, "pull request number")
	_ = githubCmd.MarkPersistentFlagRequired("repo")

	githubCommentCmd.Flags().StringVar(&githubBody, "body", "", "comment body")
	githubCommentCmd.Flags().StringVar(&githubFile, "file", "", "file path for an inline comment")
	githubCommentCmd.Flags().IntVar(&githubLine, "line", 0, "line number for an inline comment")
	githubCommentCmd.Flags().StringVar(&githubSide, "side", "new", "diff side of the line: new or old")
	_ = githubCommentCmd.MarkFlagRequired("body")

	githubReplyCmd.Flags().StringVar(&githubComment, "comment", "", "review comment id to reply to")
	githubReplyCmd.Flags().StringVar(&githubBody, "body", "", "reply body")
	_ = githubReplyCmd.MarkFlagRequired("comment")
	_ = githubReplyCmd.MarkFlagRequired("body")

	githubDeleteCmd.Flags().StringVar(&githubComment, "comment", "", "comment id to delete")
	_ = githubDeleteCmd.MarkFlagRequired("comment")

	githubCommentsDeleteAllCmd.Flags().BoolVar(&githubYes, "yes", false, "confirm deletion")
	githubCommentsCmd.AddCommand(githubCommentsDeleteAllCmd)

	githubReviewSubmitCmd.Flags().Int64Var(&githubReviewID, "review", 0, "review id (looked up when omitted)")
	githubReviewSubmitCmd.Flags().StringVar(&githubBody, "body", "", "review summary body")
	githubReviewDiscardCmd.Flags().Int64Var(&githubReviewID, "review", 0, "review id (looked up when omitted)")

	githubWebhookInstallCmd.Flags().StringVar(&githubHookURL, "url", "", "webhook target url")
	_ = githubWebhookInstallCmd.MarkFlagRequired("url")
	githubWebhookDeleteCmd.Flags().Int64Var(&githubHookID, "id", 0, "hook id")
	_ = githubWebhookDeleteCmd.MarkFlagRequired("id")

	githubReviewCmd.AddCommand(githubReviewPendingCmd, githubReviewSubmitCmd, githubReviewDiscardCmd)
	githubWebhookCmd.AddCommand(githubWebhookInstallCmd, githubWebhookListCmd, githubWebhookDeleteCmd)
	githubCmd.AddCommand(githubValidateCmd, githubCommentCmd, githubReplyCmd, githubCommentsCmd, githubDeleteCmd, githubReviewCmd, githubWebhookCmd)
}
