package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/livereview/lrtool/internal/diff"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	rest, err := NewRESTClient(server.Client(), "ghp-test", server.URL+"/")
	if err != nil {
		t.Fatalf("NewRESTClient() error = %v", err)
	}
	client, err := NewClient(rest)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return client
}

func TestValidateCredentials(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/user" {
			t.Errorf("path = %q", r.URL.Path)
		}
		fmt.Fprint(w, `{"login":"reviewbot"}`)
	}))

	login, err := client.ValidateCredentials(context.Background())
	if err != nil {
		t.Fatalf("ValidateCredentials() error = %v", err)
	}
	if login != "reviewbot" {
		t.Errorf("login = %q, want reviewbot", login)
	}
}

func TestCreateInlineComment(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		pos      diff.Position
		wantLine int
		wantSide string
	}{
		{
			name:     "added_line_right_side",
			pos:      diff.Position{NewLine: 42, Kind: diff.KindAdded},
			wantLine: 42,
			wantSide: "RIGHT",
		},
		{
			name:     "deleted_line_left_side",
			pos:      diff.Position{OldLine: 17, Kind: diff.KindDeleted},
			wantLine: 17,
			wantSide: "LEFT",
		},
		{
			name:     "context_line_right_side",
			pos:      diff.Position{OldLine: 8, NewLine: 9, Kind: diff.KindContext},
			wantLine: 9,
			wantSide: "RIGHT",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var gotPayload map[string]any
			client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				switch {
				case r.Method == http.MethodGet:
					fmt.Fprint(w, `{"number":5,"head":{"sha":"headsha1"}}`)
				case r.Method == http.MethodPost:
					if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
						t.Errorf("decode: %v", err)
					}
					w.WriteHeader(http.StatusCreated)
					fmt.Fprint(w, `{"id":900,"body":"note","path":"main.go","user":{"login":"reviewbot"}}`)
				}
			}))

			comment, err := client.CreateInlineComment(context.Background(), "acme/widgets", 5, "main.go", "note", tc.pos)
			if err != nil {
				t.Fatalf("CreateInlineComment() error = %v", err)
			}

			if comment.ID != "900" {
				t.Errorf("comment ID = %q, want 900", comment.ID)
			}
			if gotPayload["commit_id"] != "headsha1" {
				t.Errorf("commit_id = %v, want headsha1", gotPayload["commit_id"])
			}
			if gotPayload["line"] != float64(tc.wantLine) {
				t.Errorf("line = %v, want %d", gotPayload["line"], tc.wantLine)
			}
			if gotPayload["side"] != tc.wantSide {
				t.Errorf("side = %v, want %s", gotPayload["side"], tc.wantSide)
			}
		})
	}
}

func TestDeleteCommentFallsBackToConversation(t *testing.T) {
	t.Parallel()

	var paths []string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		if r.URL.Path == "/repos/acme/widgets/pulls/comments/77" {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"message":"Not Found"}`)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	if err := client.DeleteComment(context.Background(), "acme/widgets", 5, "77"); err != nil {
		t.Fatalf("DeleteComment() error = %v", err)
	}

	want := []string{
		"/repos/acme/widgets/pulls/comments/77",
		"/repos/acme/widgets/issues/comments/77",
	}
	if len(paths) != len(want) {
		t.Fatalf("paths = %v, want %v", paths, want)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("paths[%d] = %q, want %q", i, paths[i], want[i])
		}
	}
}

func TestFindPendingReview(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[
			{"id":1,"state":"APPROVED","user":{"login":"alice"}},
			{"id":2,"state":"PENDING","user":{"login":"reviewbot"}}
		]`)
	}))

	review, found, err := client.FindPendingReview(context.Background(), "acme/widgets", 5)
	if err != nil {
		t.Fatalf("FindPendingReview() error = %v", err)
	}
	if !found {
		t.Fatal("FindPendingReview() found = false, want true")
	}
	if review.ID != 2 || review.Author != "reviewbot" {
		t.Errorf("review = %+v", review)
	}
}

func TestFindPendingReviewNone(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"id":1,"state":"COMMENTED","user":{"login":"alice"}}]`)
	}))

	_, found, err := client.FindPendingReview(context.Background(), "acme/widgets", 5)
	if err != nil {
		t.Fatalf("FindPendingReview() error = %v", err)
	}
	if found {
		t.Error("FindPendingReview() found = true, want false")
	}
}

func TestInstallWebhookDefaults(t *testing.T) {
	t.Parallel()

	var gotPayload map[string]any
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/acme/widgets/hooks" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id":333,"active":true,"events":["push"],"config":{"url":"https://hooks.example.com/webhook"}}`)
	}))

	hook, err := client.InstallWebhook(context.Background(), "acme/widgets", "https://hooks.example.com/webhook", "topsecret", nil)
	if err != nil {
		t.Fatalf("InstallWebhook() error = %v", err)
	}
	if hook.ID != 333 {
		t.Errorf("hook ID = %d, want 333", hook.ID)
	}

	config, ok := gotPayload["config"].(map[string]any)
	if !ok {
		t.Fatalf("config missing from payload: %v", gotPayload)
	}
	if config["secret"] != "topsecret" || config["content_type"] != "json" {
		t.Errorf("config = %v", config)
	}
	events, ok := gotPayload["events"].([]any)
	if !ok || len(events) != len(DefaultWebhookEvents) {
		t.Errorf("events = %v, want %d defaults", gotPayload["events"], len(DefaultWebhookEvents))
	}
}
