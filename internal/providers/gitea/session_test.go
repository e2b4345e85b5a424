package gitea

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// fakeGitea simulates the login form and the review comment routes.
type fakeGitea struct {
	mu          sync.Mutex
	logins      int
	forcedLogin bool
	lastForm    map[string]string
	deleteFails map[string]bool
}

func (f *fakeGitea) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /user/login", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "_csrf", Value: "csrf-page", Path: "/"})
		fmt.Fprint(w, `<form><input type="hidden" name="_csrf" value="csrf-page"></form>`)
	})
	mux.HandleFunc("POST /user/login", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		f.mu.Lock()
		f.logins++
		f.mu.Unlock()
		if r.PostFormValue("user_name") != "livereview" || r.PostFormValue("password") != "hunter2" {
			w.WriteHeader(http.StatusOK)
			fmt.Fprint(w, "Sign in failed")
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "_csrf", Value: "csrf-cookie", Path: "/"})
		http.SetCookie(w, &http.Cookie{Name: "gitea_session", Value: "sessid", Path: "/"})
		w.Header().Set("Location", "/")
		w.WriteHeader(http.StatusFound)
	})
	mux.HandleFunc("POST /megaorg/livereview/pulls/17/files/reviews/comments", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.forcedLogin {
			f.forcedLogin = false
			w.Header().Set("Location", "/user/login")
			w.WriteHeader(http.StatusSeeOther)
			return
		}
		if _, err := r.Cookie("gitea_session"); err != nil {
			w.Header().Set("Location", "/user/login")
			w.WriteHeader(http.StatusSeeOther)
			return
		}
		_ = r.ParseForm()
		f.lastForm = map[string]string{}
		for key := range r.PostForm {
			f.lastForm[key] = r.PostFormValue(key)
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /megaorg/livereview/pulls/17/files", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<div data-comment-id="101"></div><div data-comment-id="99"></div><div data-comment-id="101"></div>`)
	})
	mux.HandleFunc("POST /megaorg/livereview/pulls/comments/99/delete", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.deleteFails["first"] {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /megaorg/livereview/pulls/17/comments/99/delete", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

type fakeStore struct {
	mu     sync.Mutex
	saved  []SessionState
	loaded *SessionState
}

func (f *fakeStore) SaveSession(_ context.Context, state SessionState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, state)
	return nil
}

func (f *fakeStore) LoadSession(_ context.Context) (SessionState, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loaded == nil {
		return SessionState{}, false, nil
	}
	return *f.loaded, true, nil
}

func newTestSession(t *testing.T, fake *fakeGitea, store SessionStore) *Session {
	t.Helper()
	server := httptest.NewServer(fake.handler())
	t.Cleanup(server.Close)

	session, err := NewSession(server.URL, "livereview", "hunter2", store, nil)
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	return session
}

func TestLogin(t *testing.T) {
	t.Parallel()

	fake := &fakeGitea{}
	store := &fakeStore{}
	session := newTestSession(t, fake, store)

	if err := session.Login(context.Background()); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if session.csrf != "csrf-cookie" {
		t.Errorf("csrf = %q, want the post-login cookie value", session.csrf)
	}
	if len(store.saved) != 1 {
		t.Fatalf("saved sessions = %d, want 1", len(store.saved))
	}
	if store.saved[0].Cookies["gitea_session"] != "sessid" {
		t.Errorf("persisted cookies = %v", store.saved[0].Cookies)
	}
}

func TestEnsureRestoresPersistedSession(t *testing.T) {
	t.Parallel()

	fake := &fakeGitea{}
	server := httptest.NewServer(fake.handler())
	t.Cleanup(server.Close)

	store := &fakeStore{loaded: &SessionState{
		BaseURL: server.URL,
		User:    "livereview",
		CSRF:    "csrf-cookie",
		Cookies: map[string]string{"_csrf": "csrf-cookie", "gitea_session": "sessid"},
	}}
	session, err := NewSession(server.URL, "livereview", "hunter2", store, nil)
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}

	if err := session.Ensure(context.Background()); err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}

	err = session.CreateInlineComment(context.Background(), "megaorg", "livereview", 17,
		"cmd/config.go", 3, SideProposed, "commit123", "restored-session note")
	if err != nil {
		t.Fatalf("CreateInlineComment() error = %v", err)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if fake.logins != 0 {
		t.Errorf("logins = %d, want 0 when the persisted session is reused", fake.logins)
	}
	if fake.lastForm["_csrf"] != "csrf-cookie" {
		t.Errorf("form[_csrf] = %q, want the restored token", fake.lastForm["_csrf"])
	}
}

func TestEnsureLogsInWhenStateDoesNotMatch(t *testing.T) {
	t.Parallel()

	fake := &fakeGitea{}
	server := httptest.NewServer(fake.handler())
	t.Cleanup(server.Close)

	store := &fakeStore{loaded: &SessionState{
		BaseURL: "https://git.elsewhere.example",
		User:    "livereview",
		CSRF:    "stale",
		Cookies: map[string]string{"gitea_session": "stale"},
	}}
	session, err := NewSession(server.URL, "livereview", "hunter2", store, nil)
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}

	if err := session.Ensure(context.Background()); err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if fake.logins != 1 {
		t.Errorf("logins = %d, want 1 for a state from another server", fake.logins)
	}
}

func TestLoginBadCredentials(t *testing.T) {
	t.Parallel()

	fake := &fakeGitea{}
	server := httptest.NewServer(fake.handler())
	t.Cleanup(server.Close)

	session, err := NewSession(server.URL, "livereview", "wrong", nil, nil)
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	if err := session.Login(context.Background()); err == nil {
		t.Fatal("Login() expected error for bad credentials")
	}
}

func TestCreateInlineCommentForm(t *testing.T) {
	t.Parallel()

	fake := &fakeGitea{}
	session := newTestSession(t, fake, nil)
	if err := session.Login(context.Background()); err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	err := session.CreateInlineComment(context.Background(), "megaorg", "livereview", 17,
		"cmd/config.go", 3, SideProposed, "commit123", "browser-form note")
	if err != nil {
		t.Fatalf("CreateInlineComment() error = %v", err)
	}

	fake.mu.Lock()
	form := fake.lastForm
	fake.mu.Unlock()

	want := map[string]string{
		"origin":           "diff",
		"latest_commit_id": "commit123",
		"side":             "proposed",
		"line":             "3",
		"path":             "cmd/config.go",
		"content":          "browser-form note",
		"single_review":    "true",
		"_csrf":            "csrf-cookie",
	}
	for key, value := range want {
		if form[key] != value {
			t.Errorf("form[%s] = %q, want %q", key, form[key], value)
		}
	}
	if _, present := form["reply"]; present {
		t.Error("reply field should be absent for a new comment")
	}
}

func TestReplyInlineCommentForm(t *testing.T) {
	t.Parallel()

	fake := &fakeGitea{}
	session := newTestSession(t, fake, nil)
	if err := session.Login(context.Background()); err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	err := session.ReplyInlineComment(context.Background(), "megaorg", "livereview", 17,
		"cmd/config.go", 3, SidePrevious, "commit123", "follow-up", 101)
	if err != nil {
		t.Fatalf("ReplyInlineComment() error = %v", err)
	}

	fake.mu.Lock()
	form := fake.lastForm
	fake.mu.Unlock()
	if form["reply"] != "101" {
		t.Errorf("form[reply] = %q, want 101", form["reply"])
	}
	if form["side"] != "previous" {
		t.Errorf("form[side] = %q, want previous", form["side"])
	}
}

func TestPostFormRetriesAfterSessionExpiry(t *testing.T) {
	t.Parallel()

	fake := &fakeGitea{forcedLogin: true}
	session := newTestSession(t, fake, nil)
	if err := session.Login(context.Background()); err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	err := session.CreateInlineComment(context.Background(), "megaorg", "livereview", 17,
		"cmd/config.go", 3, SideProposed, "commit123", "note")
	if err != nil {
		t.Fatalf("CreateInlineComment() after expiry error = %v", err)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if fake.logins != 2 {
		t.Errorf("logins = %d, want 2 (initial plus re-login)", fake.logins)
	}
	if fake.lastForm == nil {
		t.Error("comment form never reached the server after re-login")
	}
}

func TestListInlineCommentIDs(t *testing.T) {
	t.Parallel()

	fake := &fakeGitea{}
	session := newTestSession(t, fake, nil)
	if err := session.Login(context.Background()); err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	ids, err := session.ListInlineCommentIDs(context.Background(), "megaorg", "livereview", 17)
	if err != nil {
		t.Fatalf("ListInlineCommentIDs() error = %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("ids = %v, want two unique ids", ids)
	}
}

func TestDeleteInlineCommentFallsBack(t *testing.T) {
	t.Parallel()

	fake := &fakeGitea{deleteFails: map[string]bool{"first": true}}
	session := newTestSession(t, fake, nil)
	if err := session.Login(context.Background()); err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	if err := session.DeleteInlineComment(context.Background(), "megaorg", "livereview", 17, 99); err != nil {
		t.Fatalf("DeleteInlineComment() error = %v", err)
	}
}
