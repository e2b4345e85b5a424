package gitlab

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/livereview/lrtool/internal/httpx"
)

// Hook is a project webhook in normalized form.
type Hook struct {
	ID                  int    `json:"id"`
	URL                 string `json:"url"`
	MergeRequestsEvents bool   `json:"merge_requests_events"`
	NoteEvents          bool   `json:"note_events"`
	PushEvents          bool   `json:"push_events"`
	EnableSSL           bool   `json:"enable_ssl_verification"`
}

// ListHooks returns the project's webhooks.
func (c *Client) ListHooks(ctx context.Context, repo string) ([]Hook, error) {
	var hooks []Hook
	if err := c.getJSON(ctx, c.hooksURL(repo), &hooks); err != nil {
		return nil, fmt.Errorf("list project hooks: %w", err)
	}
	return hooks, nil
}

// InstallHook creates or updates the project webhook for targetURL.
// Merge request and note events are enabled; the shared token guards the
// listener. Installation is idempotent: an existing hook with the same
// URL is updated in place.
func (c *Client) InstallHook(ctx context.Context, repo, targetURL, token string) (Hook, error) {
	payload := map[string]any{
		"url":                     targetURL,
		"token":                   token,
		"merge_requests_events":   true,
		"note_events":             true,
		"push_events":             false,
		"issues_events":           false,
		"tag_push_events":         false,
		"job_events":              false,
		"pipeline_events":         false,
		"enable_ssl_verification": true,
	}

	existing, err := c.ListHooks(ctx, repo)
	if err != nil {
		return Hook{}, err
	}
	for _, hook := range existing {
		if hook.URL != targetURL {
			continue
		}
		var updated Hook
		endpoint := fmt.Sprintf("%s/%d", c.hooksURL(repo), hook.ID)
		if err := c.putJSON(ctx, endpoint, payload, &updated); err != nil {
			return Hook{}, fmt.Errorf("update project hook %d: %w", hook.ID, err)
		}
		return updated, nil
	}

	var created Hook
	if err := c.postJSON(ctx, c.hooksURL(repo), payload, &created); err != nil {
		return Hook{}, fmt.Errorf("create project hook: %w", err)
	}
	return created, nil
}

// DeleteHook removes one webhook by ID.
func (c *Client) DeleteHook(ctx context.Context, repo string, hookID int) error {
	endpoint := fmt.Sprintf("%s/%d", c.hooksURL(repo), hookID)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build delete request: %w", err)
	}
	c.setHeaders(req)

	resp, _, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("delete project hook %d: %w", hookID, err)
	}
	return httpx.DecodeJSON(resp, nil, http.StatusNoContent, http.StatusOK)
}

func (c *Client) hooksURL(repo string) string {
	return fmt.Sprintf("%s/api/v4/projects/%s/hooks", c.baseURL, url.PathEscape(repo))
}
