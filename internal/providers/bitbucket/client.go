// Package bitbucket implements the pull request comment client for
// Bitbucket Cloud API 2.0.
package bitbucket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/livereview/lrtool/internal/diff"
	"github.com/livereview/lrtool/internal/httpx"
	"github.com/livereview/lrtool/internal/providers"
)

const defaultBaseURL = "https://api.bitbucket.org/2.0"

var _ providers.CommentClient = (*Client)(nil)

// Client talks to Bitbucket Cloud with basic auth. The API accepts the
// Atlassian account email or the workspace username as the basic auth
// user; email is preferred when both are configured.
type Client struct {
	baseURL  string
	authUser string
	token    string
	http     *httpx.Client
}

// NewClient creates a Bitbucket client.
func NewClient(httpClient *httpx.Client, email, username, apiToken string) (*Client, error) {
	if httpClient == nil {
		return nil, fmt.Errorf("http client is required")
	}
	if strings.TrimSpace(apiToken) == "" {
		return nil, fmt.Errorf("bitbucket api token is required")
	}
	authUser := strings.TrimSpace(email)
	if authUser == "" {
		authUser = strings.TrimSpace(username)
	}
	if authUser == "" {
		return nil, fmt.Errorf("bitbucket email or username is required")
	}
	return &Client{
		baseURL:  defaultBaseURL,
		authUser: authUser,
		token:    apiToken,
		http:     httpClient,
	}, nil
}

// SetBaseURL overrides the API endpoint, for tests.
func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = strings.TrimRight(baseURL, "/")
}

// ValidateCredentials confirms the credentials work and returns the
// account username.
func (c *Client) ValidateCredentials(ctx context.Context) (string, error) {
	var user struct {
		Username    string `json:"username"`
		DisplayName string `json:"display_name"`
	}
	if err := c.getJSON(ctx, c.baseURL+"/user", &user); err != nil {
		return "", fmt.Errorf("validate bitbucket credentials: %w", err)
	}
	if user.Username != "" {
		return user.Username, nil
	}
	return user.DisplayName, nil
}

type bbComment struct {
	ID      int  `json:"id"`
	Deleted bool `json:"deleted"`
	Content struct {
		Raw string `json:"raw"`
	} `json:"content"`
	User struct {
		DisplayName string `json:"display_name"`
		Nickname    string `json:"nickname"`
	} `json:"user"`
	Inline *struct {
		Path string `json:"path"`
		To   int    `json:"to"`
		From int    `json:"from"`
	} `json:"inline"`
	CreatedOn time.Time `json:"created_on"`
}

func (b bbComment) toComment() providers.Comment {
	author := b.User.Nickname
	if author == "" {
		author = b.User.DisplayName
	}
	comment := providers.Comment{
		ID:        strconv.Itoa(b.ID),
		Author:    author,
		Body:      b.Content.Raw,
		CreatedAt: b.CreatedOn,
	}
	if b.Inline != nil {
		comment.Path = b.Inline.Path
		comment.Line = b.Inline.To
		if comment.Line == 0 {
			comment.Line = b.Inline.From
		}
	}
	return comment
}

// ListComments returns all comments on the pull request, following the
// paginated values/next envelope. Comments Bitbucket has soft-deleted
// are skipped.
func (c *Client) ListComments(ctx context.Context, repo string, number int) ([]providers.Comment, error) {
	var comments []providers.Comment
	next := fmt.Sprintf("%s?pagelen=100", c.prURL(repo, number, "comments"))
	for next != "" {
		var page struct {
			Values []bbComment `json:"values"`
			Next   string      `json:"next"`
		}
		if err := c.getJSON(ctx, next, &page); err != nil {
			return nil, fmt.Errorf("fetch pull request comments: %w", err)
		}
		for _, value := range page.Values {
			if value.Deleted {
				continue
			}
			comments = append(comments, value.toComment())
		}
		next = page.Next
	}
	return comments, nil
}

// CreateComment posts a top-level comment on the pull request.
func (c *Client) CreateComment(ctx context.Context, repo string, number int, body string) (providers.Comment, error) {
	payload := map[string]any{
		"content": map[string]string{"raw": body},
	}
	var created bbComment
	if err := c.postJSON(ctx, c.prURL(repo, number, "comments"), payload, &created); err != nil {
		return providers.Comment{}, fmt.Errorf("create pull request comment: %w", err)
	}
	return created.toComment(), nil
}

// CreateInlineComment posts an inline comment. New-side positions map
// to "to" and old-side positions to "from".
func (c *Client) CreateInlineComment(ctx context.Context, repo string, number int, path, body string, pos diff.Position) (providers.Comment, error) {
	inline := map[string]any{"path": path}
	switch {
	case pos.Kind == diff.KindDeleted && pos.OldLine > 0:
		inline["from"] = pos.OldLine
	case pos.NewLine > 0:
		inline["to"] = pos.NewLine
	default:
		return providers.Comment{}, fmt.Errorf("position has no usable line number")
	}

	payload := map[string]any{
		"content": map[string]string{"raw": body},
		"inline":  inline,
	}
	var created bbComment
	if err := c.postJSON(ctx, c.prURL(repo, number, "comments"), payload, &created); err != nil {
		return providers.Comment{}, fmt.Errorf("create inline comment: %w", err)
	}
	return created.toComment(), nil
}

// ReplyComment posts a threaded reply to an existing comment.
func (c *Client) ReplyComment(ctx context.Context, repo string, number int, commentID, body string) (providers.Comment, error) {
	parentID, err := strconv.Atoi(commentID)
	if err != nil {
		return providers.Comment{}, fmt.Errorf("parse comment id %q: %w", commentID, err)
	}
	payload := map[string]any{
		"content": map[string]string{"raw": body},
		"parent":  map[string]int{"id": parentID},
	}
	var created bbComment
	if err := c.postJSON(ctx, c.prURL(repo, number, "comments"), payload, &created); err != nil {
		return providers.Comment{}, fmt.Errorf("reply to comment %s: %w", commentID, err)
	}
	return created.toComment(), nil
}

// DeleteComment removes a single comment by ID.
func (c *Client) DeleteComment(ctx context.Context, repo string, number int, commentID string) error {
	endpoint := fmt.Sprintf("%s/%s", c.prURL(repo, number, "comments"), commentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build delete request: %w", err)
	}
	c.setHeaders(req)

	resp, _, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("delete comment %s: %w", commentID, err)
	}
	return httpx.DecodeJSON(resp, nil, http.StatusNoContent, http.StatusOK)
}

func (c *Client) prURL(repo string, number int, resource string) string {
	return fmt.Sprintf("%s/repositories/%s/pullrequests/%d/%s", c.baseURL, repo, number, resource)
}

func (c *Client) setHeaders(req *http.Request) {
	req.SetBasicAuth(c.authUser, c.token)
	req.Header.Set("Accept", "application/json")
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	c.setHeaders(req)

	resp, _, err := c.http.Do(req)
	if err != nil {
		return err
	}
	return httpx.DecodeJSON(resp, out, http.StatusOK)
}

func (c *Client) postJSON(ctx context.Context, endpoint string, payload, out any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, _, err := c.http.Do(req)
	if err != nil {
		return err
	}
	return httpx.DecodeJSON(resp, out, http.StatusOK, http.StatusCreated)
}
