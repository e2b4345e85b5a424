package github

import (
	"context"
	"fmt"

	gh "github.com/google/go-github/v75/github"
)

// Webhook is a repository webhook in normalized form.
type Webhook struct {
	ID     int64
	URL    string
	Events []string
	Active bool
}

// DefaultWebhookEvents covers the review activity the listener handles.
var DefaultWebhookEvents = []string{
	"push",
	"pull_request",
	"pull_request_review",
	"pull_request_review_comment",
	"issue_comment",
	"issues",
}

// InstallWebhook creates a JSON webhook on the repository signed with
// secret. Events defaults to DefaultWebhookEvents when empty.
func (c *Client) InstallWebhook(ctx context.Context, repo, targetURL, secret string, events []string) (Webhook, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return Webhook{}, err
	}
	if len(events) == 0 {
		events = DefaultWebhookEvents
	}

	hook := &gh.Hook{
		Active: gh.Ptr(true),
		Events: events,
		Config: &gh.HookConfig{
			URL:         gh.Ptr(targetURL),
			ContentType: gh.Ptr("json"),
			Secret:      gh.Ptr(secret),
		},
	}
	created, _, err := c.rest.Repositories.CreateHook(ctx, owner, name, hook)
	if err != nil {
		return Webhook{}, fmt.Errorf("create webhook: %w", err)
	}
	return Webhook{
		ID:     created.GetID(),
		URL:    created.GetConfig().GetURL(),
		Events: created.Events,
		Active: created.GetActive(),
	}, nil
}

// ListWebhooks returns all webhooks on the repository.
func (c *Client) ListWebhooks(ctx context.Context, repo string) ([]Webhook, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}

	var hooks []Webhook
	opts := &gh.ListOptions{PerPage: 100}
	for {
		page, resp, err := c.rest.Repositories.ListHooks(ctx, owner, name, opts)
		if err != nil {
			return nil, fmt.Errorf("list webhooks: %w", err)
		}
		for _, hook := range page {
			hooks = append(hooks, Webhook{
				ID:     hook.GetID(),
				URL:    hook.GetConfig().GetURL(),
				Events: hook.Events,
				Active: hook.GetActive(),
			})
		}
		if resp.NextPage == 0 {
			return hooks, nil
		}
		opts.Page = resp.NextPage
	}
}

// DeleteWebhook removes one webhook by ID.
func (c *Client) DeleteWebhook(ctx context.Context, repo string, hookID int64) error {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return err
	}
	if _, err := c.rest.Repositories.DeleteHook(ctx, owner, name, hookID); err != nil {
		return fmt.Errorf("delete webhook %d: %w", hookID, err)
	}
	return nil
}
