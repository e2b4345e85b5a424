package github

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	gh "github.com/google/go-github/v75/github"

	"github.com/livereview/lrtool/internal/diff"
	"github.com/livereview/lrtool/internal/providers"
)

// Client wraps the go-github bindings behind the shared comment surface.
type Client struct {
	rest *gh.Client
}

var _ providers.CommentClient = (*Client)(nil)

// NewClient wraps an authenticated go-github client.
func NewClient(rest *gh.Client) (*Client, error) {
	if rest == nil {
		return nil, fmt.Errorf("rest client is required")
	}
	return &Client{rest: rest}, nil
}

func splitRepo(repo string) (string, string, error) {
	owner, name, ok := strings.Cut(repo, "/")
	if !ok || owner == "" || name == "" {
		return "", "", fmt.Errorf("repo must be owner/name, got %q", repo)
	}
	return owner, name, nil
}

// ValidateCredentials confirms the token works and returns the
// authenticated login.
func (c *Client) ValidateCredentials(ctx context.Context) (string, error) {
	user, _, err := c.rest.Users.Get(ctx, "")
	if err != nil {
		return "", fmt.Errorf("validate github credentials: %w", err)
	}
	return user.GetLogin(), nil
}

// ListComments returns both review comments and conversation comments on
// the pull request, walking all pages of each.
func (c *Client) ListComments(ctx context.Context, repo string, number int) ([]providers.Comment, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}

	var comments []providers.Comment

	reviewOpts := &gh.PullRequestListCommentsOptions{
		ListOptions: gh.ListOptions{PerPage: 100},
	}
	for {
		page, resp, err := c.rest.PullRequests.ListComments(ctx, owner, name, number, reviewOpts)
		if err != nil {
			return nil, fmt.Errorf("list review comments: %w", err)
		}
		for _, rc := range page {
			comments = append(comments, providers.Comment{
				ID:        strconv.FormatInt(rc.GetID(), 10),
				Author:    rc.GetUser().GetLogin(),
				Body:      rc.GetBody(),
				Path:      rc.GetPath(),
				Line:      rc.GetLine(),
				CreatedAt: rc.GetCreatedAt().Time,
			})
		}
		if resp.NextPage == 0 {
			break
		}
		reviewOpts.Page = resp.NextPage
	}

	issueOpts := &gh.IssueListCommentsOptions{
		ListOptions: gh.ListOptions{PerPage: 100},
	}
	for {
		page, resp, err := c.rest.Issues.ListComments(ctx, owner, name, number, issueOpts)
		if err != nil {
			return nil, fmt.Errorf("list conversation comments: %w", err)
		}
		for _, ic := range page {
			comments = append(comments, providers.Comment{
				ID:        strconv.FormatInt(ic.GetID(), 10),
				Author:    ic.GetUser().GetLogin(),
				Body:      ic.GetBody(),
				CreatedAt: ic.GetCreatedAt().Time,
			})
		}
		if resp.NextPage == 0 {
			break
		}
		issueOpts.Page = resp.NextPage
	}

	return comments, nil
}

// CreateComment posts a conversation comment on the pull request.
func (c *Client) CreateComment(ctx context.Context, repo string, number int, body string) (providers.Comment, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return providers.Comment{}, err
	}

	created, _, err := c.rest.Issues.CreateComment(ctx, owner, name, number, &gh.IssueComment{
		Body: gh.Ptr(body),
	})
	if err != nil {
		return providers.Comment{}, fmt.Errorf("create conversation comment: %w", err)
	}
	return providers.Comment{
		ID:        strconv.FormatInt(created.GetID(), 10),
		Author:    created.GetUser().GetLogin(),
		Body:      created.GetBody(),
		CreatedAt: created.GetCreatedAt().Time,
	}, nil
}

// CreateInlineComment posts a review comment anchored to the head
// commit. Deleted lines anchor on the LEFT side with the old line
// number; everything else anchors RIGHT with the new line number.
func (c *Client) CreateInlineComment(ctx context.Context, repo string, number int, path, body string, pos diff.Position) (providers.Comment, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return providers.Comment{}, err
	}

	pr, _, err := c.rest.PullRequests.Get(ctx, owner, name, number)
	if err != nil {
		return providers.Comment{}, fmt.Errorf("fetch pull request: %w", err)
	}
	headSHA := pr.GetHead().GetSHA()
	if headSHA == "" {
		return providers.Comment{}, fmt.Errorf("pull request %d has no head commit", number)
	}

	line := pos.NewLine
	if pos.Kind == diff.KindDeleted {
		line = pos.OldLine
	}
	if line <= 0 {
		return providers.Comment{}, fmt.Errorf("position has no usable line number")
	}

	created, _, err := c.rest.PullRequests.CreateComment(ctx, owner, name, number, &gh.PullRequestComment{
		Body:     gh.Ptr(body),
		CommitID: gh.Ptr(headSHA),
		Path:     gh.Ptr(path),
		Line:     gh.Ptr(line),
		Side:     gh.Ptr(pos.Side()),
	})
	if err != nil {
		return providers.Comment{}, fmt.Errorf("create review comment: %w", err)
	}
	return providers.Comment{
		ID:        strconv.FormatInt(created.GetID(), 10),
		Author:    created.GetUser().GetLogin(),
		Body:      created.GetBody(),
		Path:      created.GetPath(),
		Line:      created.GetLine(),
		CreatedAt: created.GetCreatedAt().Time,
	}, nil
}

// ReplyComment replies in-thread to an existing review comment.
func (c *Client) ReplyComment(ctx context.Context, repo string, number int, commentID, body string) (providers.Comment, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return providers.Comment{}, err
	}
	parentID, err := strconv.ParseInt(commentID, 10, 64)
	if err != nil {
		return providers.Comment{}, fmt.Errorf("parse comment id %q: %w", commentID, err)
	}

	created, _, err := c.rest.PullRequests.CreateCommentInReplyTo(ctx, owner, name, number, body, parentID)
	if err != nil {
		return providers.Comment{}, fmt.Errorf("reply to review comment %s: %w", commentID, err)
	}
	return providers.Comment{
		ID:        strconv.FormatInt(created.GetID(), 10),
		Author:    created.GetUser().GetLogin(),
		Body:      created.GetBody(),
		Path:      created.GetPath(),
		CreatedAt: created.GetCreatedAt().Time,
	}, nil
}

// DeleteComment removes a comment, trying the review comment namespace
// first and falling back to conversation comments on 404. The two
// namespaces carry distinct ID spaces.
func (c *Client) DeleteComment(ctx context.Context, repo string, number int, commentID string) error {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return err
	}
	id, err := strconv.ParseInt(commentID, 10, 64)
	if err != nil {
		return fmt.Errorf("parse comment id %q: %w", commentID, err)
	}

	resp, err := c.rest.PullRequests.DeleteComment(ctx, owner, name, id)
	if err == nil {
		return nil
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("delete review comment %s: %w", commentID, err)
	}

	if _, err := c.rest.Issues.DeleteComment(ctx, owner, name, id); err != nil {
		return fmt.Errorf("delete conversation comment %s: %w", commentID, err)
	}
	return nil
}

// PendingReview is an unsubmitted review left on a pull request.
type PendingReview struct {
	ID     int64
	Author string
}

// FindPendingReview returns the pull request's pending review, if any.
// GitHub allows at most one pending review per viewer.
func (c *Client) FindPendingReview(ctx context.Context, repo string, number int) (PendingReview, bool, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return PendingReview{}, false, err
	}

	opts := &gh.ListOptions{PerPage: 100}
	for {
		reviews, resp, err := c.rest.PullRequests.ListReviews(ctx, owner, name, number, opts)
		if err != nil {
			return PendingReview{}, false, fmt.Errorf("list reviews: %w", err)
		}
		for _, review := range reviews {
			if review.GetState() == "PENDING" {
				return PendingReview{
					ID:     review.GetID(),
					Author: review.GetUser().GetLogin(),
				}, true, nil
			}
		}
		if resp.NextPage == 0 {
			return PendingReview{}, false, nil
		}
		opts.Page = resp.NextPage
	}
}

// SubmitPendingReview publishes a pending review as a COMMENT review.
func (c *Client) SubmitPendingReview(ctx context.Context, repo string, number int, reviewID int64, body string) error {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return err
	}
	_, _, err = c.rest.PullRequests.SubmitReview(ctx, owner, name, number, reviewID, &gh.PullRequestReviewRequest{
		Body:  gh.Ptr(body),
		Event: gh.Ptr("COMMENT"),
	})
	if err != nil {
		return fmt.Errorf("submit pending review %d: %w", reviewID, err)
	}
	return nil
}

// DiscardPendingReview deletes a pending review and its draft comments.
func (c *Client) DiscardPendingReview(ctx context.Context, repo string, number int, reviewID int64) error {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return err
	}
	if _, _, err := c.rest.PullRequests.DeletePendingReview(ctx, owner, name, number, reviewID); err != nil {
		return fmt.Errorf("discard pending review %d: %w", reviewID, err)
	}
	return nil
}
