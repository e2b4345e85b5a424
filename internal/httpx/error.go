package httpx

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const maxErrorBody = 500

// APIError represents a non-2xx provider response with a truncated body
// preview.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api request failed with status %d: %s", e.Status, e.Body)
}

// IsNotFound reports whether err is an APIError with status 404.
func IsNotFound(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.Status == http.StatusNotFound
}

// CheckStatus drains resp into an APIError unless its status is one of the
// accepted codes. The body is consumed either way.
func CheckStatus(resp *http.Response, accepted ...int) error {
	for _, code := range accepted {
		if resp.StatusCode == code {
			return nil
		}
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &APIError{Status: resp.StatusCode, Body: string(body)}
}

// DecodeJSON decodes a JSON response body into out after verifying the
// status, and closes the body.
func DecodeJSON(resp *http.Response, out any, accepted ...int) error {
	defer func() {
		_ = resp.Body.Close()
	}()
	if err := CheckStatus(resp, accepted...); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
