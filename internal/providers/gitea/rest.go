// Package gitea implements two clients for self-hosted Gitea: a REST
// client for the documented v1 API and a browser-session client for the
// review comment form endpoints the API does not expose.
package gitea

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/livereview/lrtool/internal/httpx"
)

// RESTClient talks to the Gitea v1 API with a personal access token.
type RESTClient struct {
	baseURL string
	token   string
	http    *httpx.Client
}

// NewRESTClient creates a Gitea REST client.
func NewRESTClient(httpClient *httpx.Client, baseURL, token string) (*RESTClient, error) {
	if httpClient == nil {
		return nil, fmt.Errorf("http client is required")
	}
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("gitea base url is required")
	}
	return &RESTClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    httpClient,
	}, nil
}

// ValidateCredentials confirms the token works and returns the account
// username.
func (c *RESTClient) ValidateCredentials(ctx context.Context) (string, error) {
	var user struct {
		Login string `json:"login"`
	}
	if err := c.getJSON(ctx, "/api/v1/user", &user); err != nil {
		return "", fmt.Errorf("validate gitea credentials: %w", err)
	}
	return user.Login, nil
}

// PullInfo carries the commit IDs the review comment form needs.
type PullInfo struct {
	HeadSHA   string
	BaseSHA   string
	MergeBase string
}

// GetPullInfo fetches the pull request's head, base, and merge base
// commit IDs.
func (c *RESTClient) GetPullInfo(ctx context.Context, repo string, number int) (PullInfo, error) {
	var pull struct {
		Head struct {
			SHA string `json:"sha"`
		} `json:"head"`
		Base struct {
			SHA string `json:"sha"`
		} `json:"base"`
		MergeBase string `json:"merge_base"`
	}
	path := fmt.Sprintf("/api/v1/repos/%s/pulls/%d", repo, number)
	if err := c.getJSON(ctx, path, &pull); err != nil {
		return PullInfo{}, fmt.Errorf("fetch pull request %d: %w", number, err)
	}
	info := PullInfo{
		HeadSHA:   pull.Head.SHA,
		BaseSHA:   pull.Base.SHA,
		MergeBase: pull.MergeBase,
	}
	if info.MergeBase == "" {
		info.MergeBase = info.BaseSHA
	}
	if info.HeadSHA == "" {
		return PullInfo{}, fmt.Errorf("pull request %d has no head commit", number)
	}
	return info, nil
}

// Hook is a repository webhook in normalized form.
type Hook struct {
	ID     int64    `json:"id"`
	Type   string   `json:"type"`
	URL    string   `json:"-"`
	Events []string `json:"events"`
	Active bool     `json:"active"`
}

type rawHook struct {
	ID     int64             `json:"id"`
	Type   string            `json:"type"`
	Config map[string]string `json:"config"`
	Events []string          `json:"events"`
	Active bool              `json:"active"`
}

func (r rawHook) toHook() Hook {
	return Hook{
		ID:     r.ID,
		Type:   r.Type,
		URL:    r.Config["url"],
		Events: r.Events,
		Active: r.Active,
	}
}

// DefaultHookEvents covers the review activity the listener handles.
var DefaultHookEvents = []string{
	"push",
	"pull_request",
	"pull_request_comment",
	"pull_request_review",
	"issue_comment",
	"issues",
}

// ListHooks returns the repository's webhooks.
func (c *RESTClient) ListHooks(ctx context.Context, repo string) ([]Hook, error) {
	var raw []rawHook
	path := fmt.Sprintf("/api/v1/repos/%s/hooks", repo)
	if err := c.getJSON(ctx, path, &raw); err != nil {
		return nil, fmt.Errorf("list hooks: %w", err)
	}
	hooks := make([]Hook, 0, len(raw))
	for _, r := range raw {
		hooks = append(hooks, r.toHook())
	}
	return hooks, nil
}

// CreateHook installs a JSON webhook signed with secret. Events defaults
// to DefaultHookEvents when empty.
func (c *RESTClient) CreateHook(ctx context.Context, repo, targetURL, secret string, events []string) (Hook, error) {
	if len(events) == 0 {
		events = DefaultHookEvents
	}
	payload := map[string]any{
		"type":   "gitea",
		"active": true,
		"events": events,
		"config": map[string]string{
			"url":          targetURL,
			"content_type": "json",
			"secret":       secret,
		},
	}
	var created rawHook
	path := fmt.Sprintf("/api/v1/repos/%s/hooks", repo)
	if err := c.postJSON(ctx, path, payload, &created); err != nil {
		return Hook{}, fmt.Errorf("create hook: %w", err)
	}
	return created.toHook(), nil
}

// DeleteHook removes one webhook by ID.
func (c *RESTClient) DeleteHook(ctx context.Context, repo string, hookID int64) error {
	path := fmt.Sprintf("/api/v1/repos/%s/hooks/%d", repo, hookID)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build delete request: %w", err)
	}
	c.setHeaders(req)

	resp, _, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("delete hook %d: %w", hookID, err)
	}
	return httpx.DecodeJSON(resp, nil, http.StatusNoContent, http.StatusOK)
}

// CreateAccessToken mints a personal access token via basic auth, for
// bootstrapping instances where no token exists yet.
func (c *RESTClient) CreateAccessToken(ctx context.Context, username, password, tokenName string, scopes []string) (string, error) {
	payload := map[string]any{"name": tokenName}
	if len(scopes) > 0 {
		payload["scopes"] = scopes
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}

	path := fmt.Sprintf("/api/v1/users/%s/tokens", username)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.SetBasicAuth(username, password)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, _, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	var created struct {
		SHA1 string `json:"sha1"`
	}
	if err := httpx.DecodeJSON(resp, &created, http.StatusCreated, http.StatusOK); err != nil {
		return "", fmt.Errorf("create access token: %w", err)
	}
	return created.SHA1, nil
}

func (c *RESTClient) setHeaders(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "token "+c.token)
	}
	req.Header.Set("Accept", "application/json")
}

func (c *RESTClient) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
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

func (c *RESTClient) postJSON(ctx context.Context, path string, payload, out any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
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
