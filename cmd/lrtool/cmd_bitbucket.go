// Bitbucket Cloud pull request comment commands.
package main

import (
	"fmt"

	"github.com/livereview/lrtool/internal/providers/bitbucket"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	bitbucketRepo    string
	bitbucketPR      int
	bitbucketFile    string
	bitbucketLine    int
	bitbucketSide    string
	bitbucketBody    string
	bitbucketComment string
	bitbucketYes     bool
)

var bitbucketCmd = &cobra.Command{
	Use:   "bitbucket",
	Short: "Bitbucket Cloud pull request comments",
}

var bitbucketValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Verify the configured Bitbucket credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newBitbucketClient()
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

var bitbucketCommentsCmd = &cobra.Command{
	Use:   "comments",
	Short: "List pull request comments",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newBitbucketClient()
		if err != nil {
			return err
		}
		comments, err := client.ListComments(cmd.Context(), bitbucketRepo, bitbucketPR)
		if err != nil {
			return err
		}
		printComments(comments)
		return nil
	},
}

var bitbucketCommentsDeleteAllCmd = &cobra.Command{
	Use:   "delete-all",
	Short: "Delete every comment on the pull request",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !bitbucketYes {
			return fmt.Errorf("refusing to delete comments without --yes")
		}
		client, err := newBitbucketClient()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		comments, err := client.ListComments(ctx, bitbucketRepo, bitbucketPR)
		if err != nil {
			return err
		}
		deleted := 0
		for _, c := range comments {
			if err := client.DeleteComment(ctx, bitbucketRepo, bitbucketPR, c.ID); err != nil {
				logger.Warn("delete failed", zap.String("comment", c.ID), zap.Error(err))
				continue
			}
			deleted++
		}
		fmt.Printf("deleted %d of %d comments\n", deleted, len(comments))
		return nil
	},
}

var bitbucketCommentCmd = &cobra.Command{
	Use:   "comment",
	Short: "Post a comment, inline when --file and --line are given",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newBitbucketClient()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		if bitbucketFile == "" {
			comment, err := client.CreateComment(ctx, bitbucketRepo, bitbucketPR, bitbucketBody)
			if err != nil {
				return err
			}
			fmt.Printf("created comment %s\n", comment.ID)
			return nil
		}
		pos, err := positionFromSide(bitbucketLine, bitbucketSide)
		if err != nil {
			return err
		}
		comment, err := client.CreateInlineComment(ctx, bitbucketRepo, bitbucketPR, bitbucketFile, bitbucketBody, pos)
		if err != nil {
			return err
		}
		fmt.Printf("created inline comment %s at %s:%d\n", comment.ID, bitbucketFile, bitbucketLine)
		return nil
	},
}

var bitbucketReplyCmd = &cobra.Command{
	Use:   "reply",
	Short: "Reply to an existing comment",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newBitbucketClient()
		if err != nil {
			return err
		}
		comment, err := client.ReplyComment(cmd.Context(), bitbucketRepo, bitbucketPR, bitbucketComment, bitbucketBody)
		if err != nil {
			return err
		}
		fmt.Printf("created reply %s\n", comment.ID)
		return nil
	},
}

var bitbucketDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete a pull request comment",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newBitbucketClient()
		if err != nil {
			return err
		}
		if err := client.DeleteComment(cmd.Context(), bitbucketRepo, bitbucketPR, bitbucketComment); err != nil {
			return err
		}
		fmt.Printf("deleted comment %s\n", bitbucketComment)
		return nil
	},
}

func newBitbucketClient() (*bitbucket.Client, error) {
	return bitbucket.NewClient(newHTTPClient(), cfg.Bitbucket.Email, cfg.Bitbucket.Username, cfg.Bitbucket.APIToken)
}

func init() {
	bitbucketCmd.PersistentFlags().StringVar(&bitbucketRepo, "repo", "", "repository, e.g. workspace/repo")
	bitbucketCmd.PersistentFlags().IntVar(&bitbucketPR, "pr", 0, "pull request id")
	_ = bitbucketCmd.MarkPersistentFlagRequired("repo")

	bitbucketCommentCmd.Flags().StringVar(&bitbucketBody, "body", "", "comment body")
	bitbucketCommentCmd.Flags().StringVar(&bitbucketFile, "file", "", "file path for an inline comment")
	bitbucketCommentCmd.Flags().IntVar(&bitbucketLine, "line", 0, "line number for an inline comment")
	bitbucketCommentCmd.Flags().StringVar(&bitbucketSide, "side", "new", "diff side of the line: new or old")
	_ = bitbucketCommentCmd.MarkFlagRequired("body")

	bitbucketReplyCmd.Flags().StringVar(&bitbucketComment, "comment", "", "comment id to reply to")
	bitbucketReplyCmd.Flags().StringVar(&bitbucketBody, "body", "", "reply body")
	_ = bitbucketReplyCmd.MarkFlagRequired("comment")
	_ = bitbucketReplyCmd.MarkFlagRequired("body")

	bitbucketDeleteCmd.Flags().StringVar(&bitbucketComment, "comment", "", "comment id to delete")
	_ = bitbucketDeleteCmd.MarkFlagRequired("comment")

	bitbucketCommentsDeleteAllCmd.Flags().BoolVar(&bitbucketYes, "yes", false, "confirm deletion")
	bitbucketCommentsCmd.AddCommand(bitbucketCommentsDeleteAllCmd)

	bitbucketCmd.AddCommand(bitbucketValidateCmd, bitbucketCommentsCmd, bitbucketCommentCmd, bitbucketReplyCmd, bitbucketDeleteCmd)
}
