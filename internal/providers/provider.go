// Package providers defines the common surface shared by the per-host
// review comment clients.
package providers

import (
	"context"
	"time"

	"github.com/livereview/lrtool/internal/diff"
)

// Comment is a normalized review comment returned by any host.
type Comment struct {
	ID        string
	Author    string
	Body      string
	Path      string
	Line      int
	System    bool
	CreatedAt time.Time
}

// CommentClient is implemented by every host-specific client so callers
// can run the same comment workflows against GitLab, GitHub, Bitbucket,
// and Gitea.
type CommentClient interface {
	// ValidateCredentials confirms the configured credentials can reach
	// the host and returns the authenticated account name.
	ValidateCredentials(ctx context.Context) (string, error)

	// ListComments returns all comments on the review, following
	// pagination where the host paginates.
	ListComments(ctx context.Context, repo string, number int) ([]Comment, error)

	// CreateComment posts a top-level (non-inline) comment.
	CreateComment(ctx context.Context, repo string, number int, body string) (Comment, error)

	// CreateInlineComment posts a comment anchored to a diff position.
	CreateInlineComment(ctx context.Context, repo string, number int, path, body string, pos diff.Position) (Comment, error)

	// ReplyComment posts a threaded reply to an existing comment.
	ReplyComment(ctx context.Context, repo string, number int, commentID, body string) (Comment, error)

	// DeleteComment removes a single comment by host-specific ID.
	DeleteComment(ctx context.Context, repo string, number int, commentID string) error
}
