package stats

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/livereview/lrtool/internal/httpx"
)

// PostToDiscord posts a markdown table to a Discord incoming webhook,
// wrapped in a code block so the alignment survives.
func PostToDiscord(ctx context.Context, client *httpx.Client, webhookURL, markdown string) error {
	if webhookURL == "" {
		return fmt.Errorf("discord webhook url is required")
	}

	payload := map[string]string{
		"content": "```\n" + markdown + "\n```",
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode discord payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("build discord request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, _, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post to discord: %w", err)
	}
	return httpx.DecodeJSON(resp, nil, http.StatusOK, http.StatusNoContent)
}
