package gitea

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Side values accepted by the review comment form.
const (
	SideProposed = "proposed"
	SidePrevious = "previous"
)

const maxSnippet = 500

var (
	csrfInputRe  = regexp.MustCompile(`name="_csrf"\s+value="([^"]+)"`)
	commentIDRe  = regexp.MustCompile(`data-comment-id="(\d+)"`)
	sessionAgent = "lr-browser-bot"
)

// SessionState is the persistable part of a logged-in browser session.
type SessionState struct {
	BaseURL string            `json:"base_url"`
	User    string            `json:"user"`
	CSRF    string            `json:"csrf"`
	Cookies map[string]string `json:"cookies"`
}

// SessionStore persists session state across invocations.
type SessionStore interface {
	SaveSession(ctx context.Context, state SessionState) error
	LoadSession(ctx context.Context) (SessionState, bool, error)
}

// Session drives the Gitea web UI form endpoints that the REST API does
// not cover: inline review comments, threaded replies, and comment
// deletion. It logs in with username and password and re-logs-in
// transparently when the server invalidates the session.
type Session struct {
	baseURL  string
	username string
	password string
	http     *http.Client
	csrf     string
	store    SessionStore
	log      *zap.Logger
}

// NewSession creates an unauthenticated session. Call Login before using
// it, or let the first request trigger a login retry. store may be nil.
func NewSession(baseURL, username, password string, store SessionStore, logger *zap.Logger) (*Session, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("gitea base url is required")
	}
	if username == "" || password == "" {
		return nil, fmt.Errorf("gitea username and password are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	return &Session{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		password: password,
		http: &http.Client{
			Jar: jar,
			// Redirects are inspected, not followed: a Location pointing
			// back at the login page means the session expired.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		store: store,
		log:   logger,
	}, nil
}

// Login fetches the login form, posts credentials, and captures the CSRF
// cookie the form endpoints require.
func (s *Session) Login(ctx context.Context) error {
	loginURL := s.baseURL + "/user/login"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, loginURL, nil)
	if err != nil {
		return fmt.Errorf("build login page request: %w", err)
	}
	req.Header.Set("User-Agent", sessionAgent)
	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("fetch login page: %w", err)
	}
	page, err := readSnippetAndClose(resp.Body, 1<<20)
	if err != nil {
		return fmt.Errorf("read login page: %w", err)
	}

	csrf := extractCSRF(page)
	if csrf == "" {
		csrf = s.cookieValue("_csrf")
	}
	if csrf == "" {
		return fmt.Errorf("no csrf token on login page")
	}

	form := url.Values{
		"_csrf":     {csrf},
		"user_name": {s.username},
		"password":  {s.password},
		"remember":  {"on"},
	}
	req, err = http.NewRequestWithContext(ctx, http.MethodPost, loginURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build login request: %w", err)
	}
	req.Header.Set("User-Agent", sessionAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err = s.http.Do(req)
	if err != nil {
		return fmt.Errorf("post login form: %w", err)
	}
	body, _ := readSnippetAndClose(resp.Body, maxSnippet)
	switch resp.StatusCode {
	case http.StatusFound, http.StatusSeeOther, http.StatusOK:
	default:
		return fmt.Errorf("login failed with status %d: %s", resp.StatusCode, body)
	}

	s.csrf = s.cookieValue("_csrf")
	if s.csrf == "" {
		s.csrf = csrf
	}
	if !s.hasAuthCookie() {
		return fmt.Errorf("no session cookie after login, credentials likely rejected")
	}

	s.log.Debug("gitea session established", zap.String("base_url", s.baseURL), zap.String("user", s.username))

	if s.store != nil {
		if err := s.store.SaveSession(ctx, s.state()); err != nil {
			s.log.Warn("persist gitea session failed", zap.Error(err))
		}
	}
	return nil
}

// Ensure reuses a persisted session when one matches the configured
// server and user, otherwise performs a fresh login. A restored session
// that has expired server-side re-logs-in through the usual retry path.
func (s *Session) Ensure(ctx context.Context) error {
	if s.restore(ctx) {
		return nil
	}
	return s.Login(ctx)
}

func (s *Session) restore(ctx context.Context) bool {
	if s.store == nil {
		return false
	}
	state, found, err := s.store.LoadSession(ctx)
	if err != nil {
		s.log.Warn("load gitea session failed", zap.Error(err))
		return false
	}
	if !found || state.BaseURL != s.baseURL || state.User != s.username {
		return false
	}
	base, err := url.Parse(s.baseURL)
	if err != nil {
		return false
	}

	cookies := make([]*http.Cookie, 0, len(state.Cookies))
	for name, value := range state.Cookies {
		cookies = append(cookies, &http.Cookie{Name: name, Value: value, Path: "/"})
	}
	s.http.Jar.SetCookies(base, cookies)
	s.csrf = state.CSRF

	if s.csrf == "" || !s.hasAuthCookie() {
		return false
	}
	s.log.Debug("gitea session restored", zap.String("base_url", s.baseURL), zap.String("user", s.username))
	return true
}

func (s *Session) state() SessionState {
	cookies := map[string]string{}
	if base, err := url.Parse(s.baseURL); err == nil {
		for _, cookie := range s.http.Jar.Cookies(base) {
			cookies[cookie.Name] = cookie.Value
		}
	}
	return SessionState{
		BaseURL: s.baseURL,
		User:    s.username,
		CSRF:    s.csrf,
		Cookies: cookies,
	}
}

func (s *Session) cookieValue(name string) string {
	base, err := url.Parse(s.baseURL)
	if err != nil {
		return ""
	}
	for _, cookie := range s.http.Jar.Cookies(base) {
		if cookie.Name == name {
			return cookie.Value
		}
	}
	return ""
}

// Instances rename the session cookie, so any non-csrf cookie set by the
// login response counts.
func (s *Session) hasAuthCookie() bool {
	base, err := url.Parse(s.baseURL)
	if err != nil {
		return false
	}
	for _, cookie := range s.http.Jar.Cookies(base) {
		if cookie.Name != "_csrf" && cookie.Value != "" {
			return true
		}
	}
	return false
}

func extractCSRF(html string) string {
	if m := csrfInputRe.FindStringSubmatch(html); m != nil {
		return m[1]
	}
	return ""
}

func (s *Session) commentFormURL(owner, repo string, number int) string {
	return fmt.Sprintf("%s/%s/%s/pulls/%d/files/reviews/comments", s.baseURL, owner, repo, number)
}

// CreateInlineComment posts an inline review comment through the web
// form. side is SideProposed for new-side lines and SidePrevious for
// old-side lines; commitID is the pull request's latest commit.
func (s *Session) CreateInlineComment(ctx context.Context, owner, repo string, number int, path string, line int, side, commitID, content string) error {
	form := s.commentForm(path, line, side, commitID, content)
	return s.submitCommentForm(ctx, owner, repo, number, form)
}

// ReplyInlineComment posts a threaded reply to an existing inline
// comment through the same form with a reply field.
func (s *Session) ReplyInlineComment(ctx context.Context, owner, repo string, number int, path string, line int, side, commitID, content string, parentID int64) error {
	form := s.commentForm(path, line, side, commitID, content)
	form.Set("reply", strconv.FormatInt(parentID, 10))
	return s.submitCommentForm(ctx, owner, repo, number, form)
}

func (s *Session) commentForm(path string, line int, side, commitID, content string) url.Values {
	return url.Values{
		"origin":           {"diff"},
		"latest_commit_id": {commitID},
		"side":             {side},
		"line":             {strconv.Itoa(line)},
		"path":             {path},
		"diff_start_cid":   {""},
		"diff_end_cid":     {""},
		"diff_base_cid":    {""},
		"content":          {content},
		"single_review":    {"true"},
	}
}

func (s *Session) submitCommentForm(ctx context.Context, owner, repo string, number int, form url.Values) error {
	resp, body, err := s.postForm(ctx, s.commentFormURL(owner, repo, number), form)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("comment form rejected with status %d: %s", resp.StatusCode, body)
	}
	return nil
}

// ListInlineCommentIDs scrapes the pull request files page for inline
// comment IDs.
func (s *Session) ListInlineCommentIDs(ctx context.Context, owner, repo string, number int) ([]int64, error) {
	pageURL := fmt.Sprintf("%s/%s/%s/pulls/%d/files", s.baseURL, owner, repo, number)
	resp, body, err := s.getPage(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch files page failed with status %d", resp.StatusCode)
	}

	seen := map[int64]struct{}{}
	var ids []int64
	for _, match := range commentIDRe.FindAllStringSubmatch(body, -1) {
		id, err := strconv.ParseInt(match[1], 10, 64)
		if err != nil {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

// DeleteInlineComment tries the known delete routes in order and stops
// at the first accepting response. Route names have moved across Gitea
// releases.
func (s *Session) DeleteInlineComment(ctx context.Context, owner, repo string, number int, commentID int64) error {
	candidates := []string{
		fmt.Sprintf("%s/%s/%s/pulls/comments/%d/delete", s.baseURL, owner, repo, commentID),
		fmt.Sprintf("%s/%s/%s/pulls/%d/comments/%d/delete", s.baseURL, owner, repo, number, commentID),
		fmt.Sprintf("%s/%s/%s/comments/%d/delete", s.baseURL, owner, repo, commentID),
	}

	var lastStatus int
	for _, candidate := range candidates {
		resp, _, err := s.postForm(ctx, candidate, url.Values{})
		if err != nil {
			return err
		}
		lastStatus = resp.StatusCode
		switch resp.StatusCode {
		case http.StatusOK, http.StatusNoContent, http.StatusFound, http.StatusSeeOther:
			return nil
		}
		s.log.Debug("delete route rejected",
			zap.String("url", candidate),
			zap.Int("status", resp.StatusCode),
		)
	}
	return fmt.Errorf("no delete route accepted comment %d, last status %d", commentID, lastStatus)
}

func (s *Session) postForm(ctx context.Context, target string, form url.Values) (*http.Response, string, error) {
	do := func() (*http.Response, string, error) {
		form.Set("_csrf", s.csrf)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, "", fmt.Errorf("build form request: %w", err)
		}
		req.Header.Set("User-Agent", sessionAgent)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("X-CSRF-Token", s.csrf)
		req.Header.Set("Referer", s.baseURL+"/user/login")

		resp, err := s.http.Do(req)
		if err != nil {
			return nil, "", fmt.Errorf("post form: %w", err)
		}
		body, err := readSnippetAndClose(resp.Body, maxSnippet)
		if err != nil {
			return nil, "", fmt.Errorf("read form response: %w", err)
		}
		return resp, body, nil
	}

	resp, body, err := do()
	if err != nil {
		return nil, "", err
	}
	if !shouldRelogin(resp, body) {
		return resp, body, nil
	}

	s.log.Info("gitea session expired, logging in again")
	if err := s.Login(ctx); err != nil {
		return nil, "", fmt.Errorf("re-login: %w", err)
	}
	return do()
}

func (s *Session) getPage(ctx context.Context, target string) (*http.Response, string, error) {
	do := func() (*http.Response, string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, "", fmt.Errorf("build page request: %w", err)
		}
		req.Header.Set("User-Agent", sessionAgent)
		resp, err := s.http.Do(req)
		if err != nil {
			return nil, "", fmt.Errorf("fetch page: %w", err)
		}
		body, err := readSnippetAndClose(resp.Body, 4<<20)
		if err != nil {
			return nil, "", fmt.Errorf("read page: %w", err)
		}
		return resp, body, nil
	}

	resp, body, err := do()
	if err != nil {
		return nil, "", err
	}
	if !shouldRelogin(resp, body) {
		return resp, body, nil
	}

	s.log.Info("gitea session expired, logging in again")
	if err := s.Login(ctx); err != nil {
		return nil, "", fmt.Errorf("re-login: %w", err)
	}
	return do()
}

func shouldRelogin(resp *http.Response, body string) bool {
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return true
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return strings.Contains(strings.ToLower(resp.Header.Get("Location")), "user/login")
	case http.StatusOK:
		snippet := strings.ToLower(body)
		if len(snippet) > maxSnippet {
			snippet = snippet[:maxSnippet]
		}
		return strings.Contains(snippet, "user/login") || strings.Contains(snippet, "sign in")
	}
	return false
}

func readSnippetAndClose(body io.ReadCloser, limit int64) (string, error) {
	defer func() {
		_ = body.Close()
	}()
	data, err := io.ReadAll(io.LimitReader(body, limit))
	if err != nil {
		return "", err
	}
	return string(data), nil
}
