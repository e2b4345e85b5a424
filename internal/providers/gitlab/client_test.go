package gitlab

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/livereview/lrtool/internal/diff"
	"github.com/livereview/lrtool/internal/httpx"
)

const sampleChangeDiff = "@@ -10,4 +10,5 @@ func run() {\n context one\n-removed line\n+replacement line\n+added line\n context two\n"

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	httpClient := httpx.NewClient(server.Client(), httpx.RetryConfig{MaxAttempts: 1}, httpx.RateLimitPolicy{})
	client, err := NewClient(httpClient, server.URL, "glpat-test")
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return client, server
}

func TestValidateCredentials(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v4/user" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("PRIVATE-TOKEN"); got != "glpat-test" {
			t.Errorf("PRIVATE-TOKEN = %q", got)
		}
		fmt.Fprint(w, `{"username":"reviewbot"}`)
	}))

	username, err := client.ValidateCredentials(context.Background())
	if err != nil {
		t.Fatalf("ValidateCredentials() error = %v", err)
	}
	if username != "reviewbot" {
		t.Errorf("username = %q, want reviewbot", username)
	}
}

func TestClassifyLine(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v4/projects/group%2Fproject/merge_requests/7/changes" &&
			r.URL.Path != "/api/v4/projects/group/project/merge_requests/7/changes" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		payload := map[string]any{
			"changes": []map[string]string{
				{"old_path": "main.go", "new_path": "main.go", "diff": sampleChangeDiff},
			},
		}
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			t.Errorf("encode: %v", err)
		}
	}))

	tests := []struct {
		name       string
		targetLine int
		wantKind   diff.Kind
		wantOld    int
		wantNew    int
	}{
		{name: "added_line", targetLine: 12, wantKind: diff.KindAdded, wantNew: 12},
		{name: "context_line", targetLine: 10, wantKind: diff.KindContext, wantOld: 10, wantNew: 10},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			pos, err := client.ClassifyLine(context.Background(), "group/project", 7, "main.go", tc.targetLine)
			if err != nil {
				t.Fatalf("ClassifyLine() error = %v", err)
			}
			if pos.Kind != tc.wantKind || pos.OldLine != tc.wantOld || pos.NewLine != tc.wantNew {
				t.Errorf("ClassifyLine() = %+v, want kind=%s old=%d new=%d", pos, tc.wantKind, tc.wantOld, tc.wantNew)
			}
		})
	}
}

func TestCreateInlineComment(t *testing.T) {
	t.Parallel()

	var gotPosition map[string]any
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet:
			fmt.Fprint(w, `[{"base_commit_sha":"base1","head_commit_sha":"head1","start_commit_sha":"start1"}]`)
		case r.Method == http.MethodPost:
			var body struct {
				Body     string         `json:"body"`
				Position map[string]any `json:"position"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("decode: %v", err)
			}
			gotPosition = body.Position
			w.WriteHeader(http.StatusCreated)
			fmt.Fprint(w, `{"id":"disc1","notes":[{"id":42,"body":"looks off","author":{"username":"reviewbot"}}]}`)
		default:
			t.Errorf("unexpected method %s", r.Method)
		}
	}))

	pos := diff.Position{NewLine: 12, Kind: diff.KindAdded}
	comment, err := client.CreateInlineComment(context.Background(), "group/project", 7, "main.go", "looks off", pos)
	if err != nil {
		t.Fatalf("CreateInlineComment() error = %v", err)
	}

	if comment.ID != "42" {
		t.Errorf("comment ID = %q, want 42", comment.ID)
	}
	if gotPosition["base_sha"] != "base1" || gotPosition["head_sha"] != "head1" || gotPosition["start_sha"] != "start1" {
		t.Errorf("position SHAs = %v", gotPosition)
	}
	if gotPosition["new_line"] != float64(12) {
		t.Errorf("new_line = %v, want 12", gotPosition["new_line"])
	}
	if _, present := gotPosition["old_line"]; present {
		t.Error("old_line should be omitted for an added line")
	}
}

func TestCreateInlineCommentContextDualMatch(t *testing.T) {
	t.Parallel()

	var gotPosition map[string]any
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			fmt.Fprint(w, `[{"base_commit_sha":"b","head_commit_sha":"h","start_commit_sha":"s"}]`)
			return
		}
		var body struct {
			Position map[string]any `json:"position"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotPosition = body.Position
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id":"disc2","notes":[]}`)
	}))

	pos := diff.Position{OldLine: 10, NewLine: 10, Kind: diff.KindContext}
	if _, err := client.CreateInlineComment(context.Background(), "group/project", 7, "main.go", "note", pos); err != nil {
		t.Fatalf("CreateInlineComment() error = %v", err)
	}

	if gotPosition["old_line"] != float64(10) || gotPosition["new_line"] != float64(10) {
		t.Errorf("context line should carry both coordinates, got %v", gotPosition)
	}
}

func TestListCommentsPagination(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		switch page {
		case "1":
			notes := make([]map[string]any, 0, 100)
			for i := 1; i <= 100; i++ {
				notes = append(notes, map[string]any{"id": i, "body": "n", "author": map[string]string{"username": "u"}})
			}
			if err := json.NewEncoder(w).Encode(notes); err != nil {
				t.Errorf("encode: %v", err)
			}
		case "2":
			fmt.Fprint(w, `[{"id":101,"body":"last","system":true,"author":{"username":"gitlab"}}]`)
		default:
			t.Errorf("unexpected page %q", page)
		}
	}))

	comments, err := client.ListComments(context.Background(), "group/project", 7)
	if err != nil {
		t.Fatalf("ListComments() error = %v", err)
	}
	if len(comments) != 101 {
		t.Fatalf("len(comments) = %d, want 101", len(comments))
	}
	if !comments[100].System {
		t.Error("final comment should be a system note")
	}
}

func TestDeleteComment(t *testing.T) {
	t.Parallel()

	var gotMethod, gotPath string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))

	if err := client.DeleteComment(context.Background(), "group/project", 7, "42"); err != nil {
		t.Fatalf("DeleteComment() error = %v", err)
	}
	if gotMethod != http.MethodDelete {
		t.Errorf("method = %q", gotMethod)
	}
	wantSuffix := "/merge_requests/7/notes/42"
	if len(gotPath) < len(wantSuffix) || gotPath[len(gotPath)-len(wantSuffix):] != wantSuffix {
		t.Errorf("path = %q, want suffix %q", gotPath, wantSuffix)
	}
}

func TestDeleteCommentError(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"403 Forbidden"}`, http.StatusForbidden)
	}))

	err := client.DeleteComment(context.Background(), "group/project", 7, "42")
	if err == nil {
		t.Fatal("DeleteComment() expected error")
	}
}
