package httpx

import (
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

func newResponse(status int, headers map[string]string, body string) *http.Response {
	header := make(http.Header)
	for key, value := range headers {
		header.Set(key, value)
	}
	return &http.Response{
		StatusCode: status,
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestParseRateLimitHeaders(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		headers    map[string]string
		statusCode int
		want       RateLimitHeaders
	}{
		{
			name: "github_style_headers",
			headers: map[string]string{
				"X-RateLimit-Remaining": "42",
				"X-RateLimit-Reset":     "1739836800",
				"X-RateLimit-Used":      "4958",
			},
			statusCode: http.StatusOK,
			want: RateLimitHeaders{
				Remaining: 42,
				ResetUnix: 1739836800,
				Used:      4958,
			},
		},
		{
			name: "gitlab_style_headers",
			headers: map[string]string{
				"RateLimit-Remaining": "7",
				"RateLimit-Reset":     "1739836800",
				"RateLimit-Observed":  "93",
			},
			statusCode: http.StatusOK,
			want: RateLimitHeaders{
				Remaining: 7,
				ResetUnix: 1739836800,
				Used:      93,
			},
		},
		{
			name:       "too_many_requests_is_secondary",
			headers:    map[string]string{"Retry-After": "30"},
			statusCode: http.StatusTooManyRequests,
			want: RateLimitHeaders{
				RetryAfter:       30 * time.Second,
				SecondaryLimited: true,
			},
		},
		{
			name:       "forbidden_with_retry_after_is_secondary",
			headers:    map[string]string{"Retry-After": "60"},
			statusCode: http.StatusForbidden,
			want: RateLimitHeaders{
				RetryAfter:       60 * time.Second,
				SecondaryLimited: true,
			},
		},
		{
			name:       "forbidden_without_retry_after_is_not_secondary",
			headers:    map[string]string{},
			statusCode: http.StatusForbidden,
			want:       RateLimitHeaders{},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			header := make(http.Header)
			for key, value := range tc.headers {
				header.Set(key, value)
			}

			got := ParseRateLimitHeaders(header, tc.statusCode)
			if got != tc.want {
				t.Fatalf("ParseRateLimitHeaders() = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestRateLimitPolicyEvaluate(t *testing.T) {
	t.Parallel()

	now := time.Unix(1739836800, 0)
	policy := RateLimitPolicy{
		MinRemainingThreshold: 100,
		MinResetBuffer:        10 * time.Second,
		SecondaryLimitBackoff: 60 * time.Second,
		Now: func() time.Time {
			return now
		},
	}

	testCases := []struct {
		name    string
		headers RateLimitHeaders
		want    Decision
	}{
		{
			name:    "within_budget",
			headers: RateLimitHeaders{Remaining: 500},
			want:    Decision{Allow: true, Reason: "within_budget"},
		},
		{
			name: "below_threshold_waits_for_reset",
			headers: RateLimitHeaders{
				Remaining: 5,
				ResetUnix: now.Add(30 * time.Second).Unix(),
			},
			want: Decision{
				Allow:   false,
				WaitFor: 40 * time.Second,
				Reason:  "remaining_below_threshold",
			},
		},
		{
			name: "reset_in_past_allows",
			headers: RateLimitHeaders{
				Remaining: 5,
				ResetUnix: now.Add(-time.Minute).Unix(),
			},
			want: Decision{Allow: true, Reason: "reset_elapsed"},
		},
		{
			name: "secondary_limit_uses_largest_wait",
			headers: RateLimitHeaders{
				SecondaryLimited: true,
				RetryAfter:       90 * time.Second,
			},
			want: Decision{
				Allow:   false,
				WaitFor: 90 * time.Second,
				Reason:  "secondary_limit",
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := policy.Evaluate(tc.headers)
			if got != tc.want {
				t.Fatalf("Evaluate() = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestCheckStatus(t *testing.T) {
	t.Parallel()

	resp := newResponse(http.StatusUnprocessableEntity, nil, `{"message":"line must be part of the diff"}`)
	err := CheckStatus(resp, http.StatusOK, http.StatusCreated)
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("CheckStatus() error = %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusUnprocessableEntity {
		t.Errorf("Status = %d, want 422", apiErr.Status)
	}
	if apiErr.Body == "" {
		t.Error("expected body preview in error")
	}

	ok2 := newResponse(http.StatusCreated, nil, "{}")
	if err := CheckStatus(ok2, http.StatusOK, http.StatusCreated); err != nil {
		t.Fatalf("CheckStatus() accepted status returned error: %v", err)
	}
}
