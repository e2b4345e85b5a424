// Package gitlab implements the merge request comment client for GitLab
// API v4.
package gitlab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/livereview/lrtool/internal/diff"
	"github.com/livereview/lrtool/internal/httpx"
	"github.com/livereview/lrtool/internal/providers"
)

const defaultBaseURL = "https://gitlab.com"

var _ providers.CommentClient = (*Client)(nil)

// Client talks to one GitLab instance with a personal access token.
type Client struct {
	baseURL string
	token   string
	http    *httpx.Client
}

// NewClient creates a GitLab client. baseURL may be empty for gitlab.com.
func NewClient(httpClient *httpx.Client, baseURL, token string) (*Client, error) {
	if httpClient == nil {
		return nil, fmt.Errorf("http client is required")
	}
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("gitlab token is required")
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    httpClient,
	}, nil
}

// DiffRefs holds the three SHAs a positioned discussion must reference.
type DiffRefs struct {
	BaseSHA  string `json:"base_commit_sha"`
	HeadSHA  string `json:"head_commit_sha"`
	StartSHA string `json:"start_commit_sha"`
}

// FileChange is one changed file in a merge request.
type FileChange struct {
	OldPath string `json:"old_path"`
	NewPath string `json:"new_path"`
	Diff    string `json:"diff"`
}

// LatestDiffRefs returns the SHAs of the most recent merge request
// version.
func (c *Client) LatestDiffRefs(ctx context.Context, repo string, number int) (DiffRefs, error) {
	var versions []DiffRefs
	if err := c.getJSON(ctx, c.mrURL(repo, number, "versions"), &versions); err != nil {
		return DiffRefs{}, fmt.Errorf("fetch merge request versions: %w", err)
	}
	if len(versions) == 0 {
		return DiffRefs{}, fmt.Errorf("merge request %d has no diff versions", number)
	}
	// Versions are returned newest first.
	return versions[0], nil
}

// Changes returns the changed files of a merge request, each with its
// unified diff body.
func (c *Client) Changes(ctx context.Context, repo string, number int) ([]FileChange, error) {
	var payload struct {
		Changes []FileChange `json:"changes"`
	}
	if err := c.getJSON(ctx, c.mrURL(repo, number, "changes"), &payload); err != nil {
		return nil, fmt.Errorf("fetch merge request changes: %w", err)
	}
	return payload.Changes, nil
}

// ClassifyLine locates path in the merge request diff and classifies
// targetLine into old/new coordinates.
func (c *Client) ClassifyLine(ctx context.Context, repo string, number int, path string, targetLine int) (diff.Position, error) {
	changes, err := c.Changes(ctx, repo, number)
	if err != nil {
		return diff.Position{}, err
	}
	for _, change := range changes {
		if change.NewPath != path && change.OldPath != path {
			continue
		}
		pos, ok := diff.Classify(change.Diff, targetLine)
		if !ok {
			return diff.Position{}, fmt.Errorf("line %d not present in diff of %s", targetLine, path)
		}
		return pos, nil
	}
	return diff.Position{}, fmt.Errorf("file %s not found in merge request %d", path, number)
}

// ValidateCredentials confirms the token works and returns the account
// username.
func (c *Client) ValidateCredentials(ctx context.Context) (string, error) {
	var user struct {
		Username string `json:"username"`
	}
	if err := c.getJSON(ctx, c.baseURL+"/api/v4/user", &user); err != nil {
		return "", fmt.Errorf("validate gitlab credentials: %w", err)
	}
	return user.Username, nil
}

type note struct {
	ID     int    `json:"id"`
	Body   string `json:"body"`
	System bool   `json:"system"`
	Author struct {
		Username string `json:"username"`
	} `json:"author"`
	Position *struct {
		NewPath string `json:"new_path"`
		NewLine int    `json:"new_line"`
		OldLine int    `json:"old_line"`
	} `json:"position"`
	CreatedAt time.Time `json:"created_at"`
}

func (n note) toComment() providers.Comment {
	comment := providers.Comment{
		ID:        strconv.Itoa(n.ID),
		Author:    n.Author.Username,
		Body:      n.Body,
		System:    n.System,
		CreatedAt: n.CreatedAt,
	}
	if n.Position != nil {
		comment.Path = n.Position.NewPath
		comment.Line = n.Position.NewLine
		if comment.Line == 0 {
			comment.Line = n.Position.OldLine
		}
	}
	return comment
}

// ListComments returns every note on the merge request, walking all
// pages.
func (c *Client) ListComments(ctx context.Context, repo string, number int) ([]providers.Comment, error) {
	var comments []providers.Comment
	const perPage = 100
	for page := 1; ; page++ {
		endpoint := fmt.Sprintf("%s?per_page=%d&page=%d", c.mrURL(repo, number, "notes"), perPage, page)
		var notes []note
		if err := c.getJSON(ctx, endpoint, &notes); err != nil {
			return nil, fmt.Errorf("fetch merge request notes page %d: %w", page, err)
		}
		for _, n := range notes {
			comments = append(comments, n.toComment())
		}
		if len(notes) < perPage {
			return comments, nil
		}
	}
}

// CreateComment posts a plain note on the merge request.
func (c *Client) CreateComment(ctx context.Context, repo string, number int, body string) (providers.Comment, error) {
	var created note
	err := c.postJSON(ctx, c.mrURL(repo, number, "notes"), map[string]any{"body": body}, &created)
	if err != nil {
		return providers.Comment{}, fmt.Errorf("create merge request note: %w", err)
	}
	return created.toComment(), nil
}

// CreateInlineComment opens a positioned discussion on the merge
// request. Context lines carry both old_line and new_line; added lines
// carry new_line only and deleted lines old_line only, which is what the
// discussions endpoint requires.
func (c *Client) CreateInlineComment(ctx context.Context, repo string, number int, path, body string, pos diff.Position) (providers.Comment, error) {
	refs, err := c.LatestDiffRefs(ctx, repo, number)
	if err != nil {
		return providers.Comment{}, err
	}

	position := map[string]any{
		"position_type": "text",
		"base_sha":      refs.BaseSHA,
		"head_sha":      refs.HeadSHA,
		"start_sha":     refs.StartSHA,
		"old_path":      path,
		"new_path":      path,
	}
	if pos.OldLine > 0 {
		position["old_line"] = pos.OldLine
	}
	if pos.NewLine > 0 {
		position["new_line"] = pos.NewLine
	}

	var created struct {
		ID    string `json:"id"`
		Notes []note `json:"notes"`
	}
	err = c.postJSON(ctx, c.mrURL(repo, number, "discussions"), map[string]any{
		"body":     body,
		"position": position,
	}, &created)
	if err != nil {
		return providers.Comment{}, fmt.Errorf("create positioned discussion: %w", err)
	}
	if len(created.Notes) == 0 {
		return providers.Comment{ID: created.ID, Body: body, Path: path}, nil
	}
	comment := created.Notes[0].toComment()
	comment.Path = path
	return comment, nil
}

// ReplyComment adds a note to an existing discussion. commentID is the
// discussion ID, not a note ID.
func (c *Client) ReplyComment(ctx context.Context, repo string, number int, commentID, body string) (providers.Comment, error) {
	endpoint := fmt.Sprintf("%s/%s/notes", c.mrURL(repo, number, "discussions"), url.PathEscape(commentID))
	var created note
	if err := c.postJSON(ctx, endpoint, map[string]any{"body": body}, &created); err != nil {
		return providers.Comment{}, fmt.Errorf("reply to discussion %s: %w", commentID, err)
	}
	return created.toComment(), nil
}

// DeleteComment removes a note by ID.
func (c *Client) DeleteComment(ctx context.Context, repo string, number int, commentID string) error {
	endpoint := fmt.Sprintf("%s/%s", c.mrURL(repo, number, "notes"), url.PathEscape(commentID))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build delete request: %w", err)
	}
	c.setHeaders(req)

	resp, _, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("delete note %s: %w", commentID, err)
	}
	return httpx.DecodeJSON(resp, nil, http.StatusNoContent, http.StatusOK)
}

func (c *Client) mrURL(repo string, number int, resource string) string {
	return fmt.Sprintf("%s/api/v4/projects/%s/merge_requests/%d/%s",
		c.baseURL, url.PathEscape(repo), number, resource)
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("PRIVATE-TOKEN", c.token)
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
	return c.sendJSON(ctx, http.MethodPost, endpoint, payload, out)
}

func (c *Client) putJSON(ctx context.Context, endpoint string, payload, out any) error {
	return c.sendJSON(ctx, http.MethodPut, endpoint, payload, out)
}

func (c *Client) sendJSON(ctx context.Context, method, endpoint string, payload, out any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(encoded))
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
