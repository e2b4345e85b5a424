// GitLab merge request comment and webhook commands.
package main

import (
	"fmt"
	"os"

	"github.com/livereview/lrtool/internal/diff"
	"github.com/livereview/lrtool/internal/providers/gitlab"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	gitlabRepo     string
	gitlabMR       int
	gitlabFile     string
	gitlabDiffPath string
	gitlabLine     int
	gitlabBody     string
	gitlabReplyTo  string
	gitlabYes      bool
	gitlabHookURL  string
	gitlabHookID   int
)

var gitlabCmd = &cobra.Command{
	Use:   "gitlab",
	Short: "GitLab merge request comments and webhooks",
}

var gitlabValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Verify the configured GitLab token",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newGitlabClient()
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

var gitlabClassifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Classify a target line against the merge request diff, or against a local diff file with --diff",
	RunE: func(cmd *cobra.Command, args []string) error {
		if gitlabDiffPath != "" {
			return classifyDiffFile(gitlabDiffPath, gitlabLine)
		}
		if gitlabFile == "" {
			return fmt.Errorf("--file is required without --diff")
		}
		client, err := newGitlabClient()
		if err != nil {
			return err
		}
		pos, err := client.ClassifyLine(cmd.Context(), gitlabRepo, gitlabMR, gitlabFile, gitlabLine)
		if err != nil {
			return err
		}
		fmt.Printf("%s:%d is %s (old_line=%d new_line=%d side=%s)\n",
			gitlabFile, gitlabLine, pos.Kind, pos.OldLine, pos.NewLine, pos.Side())
		return nil
	},
}

// classifyDiffFile resolves the target line against a unified diff on
// disk without touching the API.
func classifyDiffFile(path string, line int) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read diff file: %w", err)
	}
	pos, found := diff.Classify(string(content), line)
	if !found {
		return fmt.Errorf("line %d is not part of the diff", line)
	}
	fmt.Printf("line %d is %s (old_line=%d new_line=%d side=%s)\n",
		line, pos.Kind, pos.OldLine, pos.NewLine, pos.Side())
	return nil
}

var gitlabCommentCmd = &cobra.Command{
	Use:   "comment",
	Short: "Post a comment, inline when --file and --line are given",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newGitlabClient()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		if gitlabFile == "" {
			comment, err := client.CreateComment(ctx, gitlabRepo, gitlabMR, gitlabBody)
			if err != nil {
				return err
			}
			fmt.Printf("created comment %s\n", comment.ID)
			return nil
		}
		pos, err := client.ClassifyLine(ctx, gitlabRepo, gitlabMR, gitlabFile, gitlabLine)
		if err != nil {
			return err
		}
		comment, err := client.CreateInlineComment(ctx, gitlabRepo, gitlabMR, gitlabFile, gitlabBody, pos)
		if err != nil {
			return err
		}
		fmt.Printf("created inline comment %s at %s:%d\n", comment.ID, gitlabFile, gitlabLine)
		return nil
	},
}

var gitlabReplyCmd = &cobra.Command{
	Use:   "reply",
	Short: "Reply to an existing discussion",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newGitlabClient()
		if err != nil {
			return err
		}
		comment, err := client.ReplyComment(cmd.Context(), gitlabRepo, gitlabMR, gitlabReplyTo, gitlabBody)
		if err != nil {
			return err
		}
		fmt.Printf("created reply %s\n", comment.ID)
		return nil
	},
}

var gitlabCommentsCmd = &cobra.Command{
	Use:   "comments",
	Short: "List or bulk-delete merge request comments",
}

var gitlabCommentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all comments on the merge request",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newGitlabClient()
		if err != nil {
			return err
		}
		comments, err := client.ListComments(cmd.Context(), gitlabRepo, gitlabMR)
		if err != nil {
			return err
		}
		printComments(comments)
		return nil
	},
}

var gitlabCommentsDeleteAllCmd = &cobra.Command{
	Use:   "delete-all",
	Short: "Delete every non-system comment on the merge request",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !gitlabYes {
			return fmt.Errorf("refusing to delete comments without --yes")
		}
		client, err := newGitlabClient()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		comments, err := client.ListComments(ctx, gitlabRepo, gitlabMR)
		if err != nil {
			return err
		}
		deleted := 0
		for _, c := range comments {
			if c.System {
				continue
			}
			if err := client.DeleteComment(ctx, gitlabRepo, gitlabMR, c.ID); err != nil {
				logger.Warn("delete failed", zap.String("comment", c.ID), zap.Error(err))
				continue
			}
			deleted++
		}
		fmt.Printf("deleted %d of %d comments\n", deleted, len(comments))
		return nil
	},
}

var gitlabWebhookCmd = &cobra.Command{
	Use:   "webhook",
	Short: "Manage project webhooks",
}

var gitlabWebhookInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Install or update the review webhook on the project",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newGitlabClient()
		if err != nil {
			return err
		}
		hook, err := client.InstallHook(cmd.Context(), gitlabRepo, gitlabHookURL, cfg.Listener.GitlabToken)
		if err != nil {
			return err
		}
		fmt.Printf("hook %d -> %s\n", hook.ID, hook.URL)
		return nil
	},
}

var gitlabWebhookListCmd = &cobra.Command{
	Use:   "list",
	Short: "List project webhooks",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newGitlabClient()
		if err != nil {
			return err
		}
		hooks, err := client.ListHooks(cmd.Context(), gitlabRepo)
		if err != nil {
			return err
		}
		for _, h := range hooks {
			fmt.Printf("%-8d mr=%v notes=%v %s\n", h.ID, h.MergeRequestsEvents, h.NoteEvents, h.URL)
		}
		return nil
	},
}

var gitlabWebhookDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete a project webhook by id",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newGitlabClient()
		if err != nil {
			return err
		}
		if err := client.DeleteHook(cmd.Context(), gitlabRepo, gitlabHookID); err != nil {
			return err
		}
		fmt.Printf("deleted hook %d\n", gitlabHookID)
		return nil
	},
}

func newGitlabClient() (*gitlab.Client, error) {
	if gitlabRepo == "" {
		return nil, fmt.Errorf("--repo is required")
	}
	return gitlab.NewClient(newHTTPClient(), cfg.GitLab.BaseURL, cfg.GitLab.Token)
}

func init() {
	gitlabCmd.PersistentFlags().StringVar(&gitlabRepo, "repo", "", "project path, e.g. group/project")
	gitlabCmd.PersistentFlags().IntVar(&gitlabMR, "mr", 0, "merge request iid")

	gitlabClassifyCmd.Flags().StringVar(&gitlabFile, "file", "", "file path inside the diff")
	gitlabClassifyCmd.Flags().StringVar(&gitlabDiffPath, "diff", "", "classify against a local unified diff file instead of the MR")
	gitlabClassifyCmd.Flags().IntVar(&gitlabLine, "line", 0, "new-file line number to classify")
	_ = gitlabClassifyCmd.MarkFlagRequired("line")

	gitlabCommentCmd.Flags().StringVar(&gitlabBody, "body", "", "comment body")
	gitlabCommentCmd.Flags().StringVar(&gitlabFile, "file", "", "file path for an inline comment")
	gitlabCommentCmd.Flags().IntVar(&gitlabLine, "line", 0, "line number for an inline comment")
	_ = gitlabCommentCmd.MarkFlagRequired("body")

	gitlabReplyCmd.Flags().StringVar(&gitlabReplyTo, "discussion", "", "discussion id to reply to")
	gitlabReplyCmd.Flags().StringVar(&gitlabBody, "body", "", "reply body")
	_ = gitlabReplyCmd.MarkFlagRequired("discussion")
	_ = gitlabReplyCmd.MarkFlagRequired("body")

	gitlabCommentsDeleteAllCmd.Flags().BoolVar(&gitlabYes, "yes", false, "confirm deletion")

	gitlabWebhookInstallCmd.Flags().StringVar(&gitlabHookURL, "url", "", "webhook target url")
	_ = gitlabWebhookInstallCmd.MarkFlagRequired("url")
	gitlabWebhookDeleteCmd.Flags().IntVar(&gitlabHookID, "id", 0, "hook id")
	_ = gitlabWebhookDeleteCmd.MarkFlagRequired("id")

	gitlabCommentsCmd.AddCommand(gitlabCommentsListCmd, gitlabCommentsDeleteAllCmd)
	gitlabWebhookCmd.AddCommand(gitlabWebhookInstallCmd, gitlabWebhookListCmd, gitlabWebhookDeleteCmd)
	gitlabCmd.AddCommand(gitlabValidateCmd, gitlabClassifyCmd, gitlabCommentCmd, gitlabReplyCmd, gitlabCommentsCmd, gitlabWebhookCmd)
}
