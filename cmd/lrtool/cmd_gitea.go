// Gitea REST and browser-session commands. Inline review comments go
// through the web form endpoints because the REST API does not expose
// them; hooks and pull metadata use the REST API.
package main

import (
	"fmt"
	"strings"

	"github.com/livereview/lrtool/internal/providers/gitea"
	"github.com/livereview/lrtool/internal/store"
	"github.com/spf13/cobra"
)

var (
	giteaRepo      string
	giteaPR        int
	giteaFile      string
	giteaLine      int
	giteaSide      string
	giteaBody      string
	giteaCommentID int64
	giteaHookURL   string
	giteaHookID    int64
	giteaTokenName string
)

var giteaCmd = &cobra.Command{
	Use:   "gitea",
	Short: "Gitea pull request comments, hooks, and session login",
}

var giteaValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Verify the configured Gitea API token",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newGiteaREST()
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

var giteaPullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Show pull request head, base, and merge base SHAs",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newGiteaREST()
		if err != nil {
			return err
		}
		info, err := client.GetPullInfo(cmd.Context(), giteaRepo, giteaPR)
		if err != nil {
			return err
		}
		fmt.Printf("head:       %s\nbase:       %s\nmerge base: %s\n", info.HeadSHA, info.BaseSHA, info.MergeBase)
		return nil
	},
}

var giteaHooksCmd = &cobra.Command{
	Use:   "hooks",
	Short: "Manage repository webhooks",
}

var giteaHooksInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Install the review webhook on the repository",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newGiteaREST()
		if err != nil {
			return err
		}
		hook, err := client.CreateHook(cmd.Context(), giteaRepo, giteaHookURL, cfg.Listener.Secret, gitea.DefaultHookEvents)
		if err != nil {
			return err
		}
		fmt.Printf("hook %d -> %s\n", hook.ID, hook.URL)
		return nil
	},
}

var giteaHooksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List repository webhooks",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newGiteaREST()
		if err != nil {
			return err
		}
		hooks, err := client.ListHooks(cmd.Context(), giteaRepo)
		if err != nil {
			return err
		}
		for _, h := range hooks {
			fmt.Printf("%-8d active=%v %s %v\n", h.ID, h.Active, h.URL, h.Events)
		}
		return nil
	},
}

var giteaHooksDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete a repository webhook by id",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newGiteaREST()
		if err != nil {
			return err
		}
		if err := client.DeleteHook(cmd.Context(), giteaRepo, giteaHookID); err != nil {
			return err
		}
		fmt.Printf("deleted hook %d\n", giteaHookID)
		return nil
	},
}

var giteaTokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Create an API access token using the configured username and password",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newGiteaREST()
		if err != nil {
			return err
		}
		token, err := client.CreateAccessToken(cmd.Context(), cfg.Gitea.Username, cfg.Gitea.Password, giteaTokenName, nil)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	},
}

var giteaLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in through the web form and persist the session",
	RunE: func(cmd *cobra.Command, args []string) error {
		session, closeStore, err := newGiteaSession()
		if err != nil {
			return err
		}
		defer closeStore()
		if err := session.Login(cmd.Context()); err != nil {
			return err
		}
		fmt.Printf("logged in as %s\n", cfg.Gitea.Username)
		return nil
	},
}

var giteaCommentCmd = &cobra.Command{
	Use:   "comment",
	Short: "Post an inline review comment through the web form",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		owner, repo, err := splitOwnerRepo(giteaRepo)
		if err != nil {
			return err
		}
		commitID, err := headCommit(cmd)
		if err != nil {
			return err
		}
		session, closeStore, err := newGiteaSession()
		if err != nil {
			return err
		}
		defer closeStore()
		if err := session.Ensure(ctx); err != nil {
			return err
		}
		side, err := giteaFormSide()
		if err != nil {
			return err
		}
		if err := session.CreateInlineComment(ctx, owner, repo, giteaPR, giteaFile, giteaLine, side, commitID, giteaBody); err != nil {
			return err
		}
		fmt.Printf("created inline comment at %s:%d\n", giteaFile, giteaLine)
		return nil
	},
}

var giteaReplyCmd = &cobra.Command{
	Use:   "reply",
	Short: "Reply to an inline review comment through the web form",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		owner, repo, err := splitOwnerRepo(giteaRepo)
		if err != nil {
			return err
		}
		commitID, err := headCommit(cmd)
		if err != nil {
			return err
		}
		session, closeStore, err := newGiteaSession()
		if err != nil {
			return err
		}
		defer closeStore()
		if err := session.Ensure(ctx); err != nil {
			return err
		}
		side, err := giteaFormSide()
		if err != nil {
			return err
		}
		if err := session.ReplyInlineComment(ctx, owner, repo, giteaPR, giteaFile, giteaLine, side, commitID, giteaBody, giteaCommentID); err != nil {
			return err
		}
		fmt.Printf("created reply to comment %d\n", giteaCommentID)
		return nil
	},
}

var giteaCommentsCmd = &cobra.Command{
	Use:   "comments",
	Short: "List inline comment ids scraped from the files view",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		owner, repo, err := splitOwnerRepo(giteaRepo)
		if err != nil {
			return err
		}
		session, closeStore, err := newGiteaSession()
		if err != nil {
			return err
		}
		defer closeStore()
		if err := session.Ensure(ctx); err != nil {
			return err
		}
		ids, err := session.ListInlineCommentIDs(ctx, owner, repo, giteaPR)
		if err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Println(id)
		}
		fmt.Printf("%d inline comments\n", len(ids))
		return nil
	},
}

var giteaDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete an inline comment through the web form",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		owner, repo, err := splitOwnerRepo(giteaRepo)
		if err != nil {
			return err
		}
		session, closeStore, err := newGiteaSession()
		if err != nil {
			return err
		}
		defer closeStore()
		if err := session.Ensure(ctx); err != nil {
			return err
		}
		if err := session.DeleteInlineComment(ctx, owner, repo, giteaPR, giteaCommentID); err != nil {
			return err
		}
		fmt.Printf("deleted comment %d\n", giteaCommentID)
		return nil
	},
}

func newGiteaREST() (*gitea.RESTClient, error) {
	return gitea.NewRESTClient(newHTTPClient(), cfg.Gitea.BaseURL, cfg.Gitea.Token)
}

func newGiteaSession() (*gitea.Session, func(), error) {
	st, err := newStore()
	if err != nil {
		return nil, nil, err
	}
	session, err := gitea.NewSession(cfg.Gitea.BaseURL, cfg.Gitea.Username, cfg.Gitea.Password, store.NewSessionRecorder(st), logger)
	if err != nil {
		_ = st.Close()
		return nil, nil, err
	}
	return session, func() { _ = st.Close() }, nil
}

func giteaFormSide() (string, error) {
	pos, err := positionFromSide(giteaLine, giteaSide)
	if err != nil {
		return "", err
	}
	return pos.GiteaSide(), nil
}

func headCommit(cmd *cobra.Command) (string, error) {
	rest, err := newGiteaREST()
	if err != nil {
		return "", err
	}
	info, err := rest.GetPullInfo(cmd.Context(), giteaRepo, giteaPR)
	if err != nil {
		return "", err
	}
	return info.HeadSHA, nil
}

func splitOwnerRepo(repo string) (string, string, error) {
	owner, name, ok := strings.Cut(repo, "/")
	if !ok || owner == "" || name == "" {
		return "", "", fmt.Errorf("repo must be owner/name, got %q", repo)
	}
	return owner, name, nil
}

func init() {
	giteaCmd.PersistentFlags().StringVar(&giteaRepo, "repo", "", "repository, e.g. owner/name")
	giteaCmd.PersistentFlags().IntVar(&giteaPR, "pr", 0, "pull request number")
	_ = giteaCmd.MarkPersistentFlagRequired("repo")

	for _, c := range []*cobra.Command{giteaCommentCmd, giteaReplyCmd} {
		c.Flags().StringVar(&giteaFile, "file", "", "file path inside the diff")
		c.Flags().IntVar(&giteaLine, "line", 0, "line number")
		c.Flags().StringVar(&giteaSide, "side", "new", "diff side of the line: new or old")
		c.Flags().StringVar(&giteaBody, "body", "", "comment body")
		_ = c.MarkFlagRequired("file")
		_ = c.MarkFlagRequired("line")
		_ = c.MarkFlagRequired("body")
	}
	giteaReplyCmd.Flags().Int64Var(&giteaCommentID, "comment", 0, "comment id to reply to")
	_ = giteaReplyCmd.MarkFlagRequired("comment")

	giteaDeleteCmd.Flags().Int64Var(&giteaCommentID, "comment", 0, "comment id to delete")
	_ = giteaDeleteCmd.MarkFlagRequired("comment")

	giteaHooksInstallCmd.Flags().StringVar(&giteaHookURL, "url", "", "webhook target url")
	_ = giteaHooksInstallCmd.MarkFlagRequired("url")
	giteaHooksDeleteCmd.Flags().Int64Var(&giteaHookID, "id", 0, "hook id")
	_ = giteaHooksDeleteCmd.MarkFlagRequired("id")

	giteaTokenCmd.Flags().StringVar(&giteaTokenName, "name", "lrtool", "access token name")

	giteaHooksCmd.AddCommand(giteaHooksInstallCmd, giteaHooksListCmd, giteaHooksDeleteCmd)
	giteaCmd.AddCommand(giteaValidateCmd, giteaPullCmd, giteaHooksCmd, giteaTokenCmd, giteaLoginCmd, giteaCommentCmd, giteaReplyCmd, giteaCommentsCmd, giteaDeleteCmd)
}
