// Package browser drives a real browser through go-rod to smoke test the
// LiveReview login flow. It can attach to a remote devtools websocket (the
// WSL-to-Windows setup exposes one on the gateway address), resolve a CDP
// http endpoint, or launch a local headless Chrome.
package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

const (
	emailSelector    = `input[id="email-address"]`
	passwordSelector = `input[id="password"]`
	submitSelector   = `button[type="submit"]`

	defaultNavTimeout = 30 * time.Second
)

// Options configures the login smoke test.
type Options struct {
	// DebuggerURLs are devtools websocket endpoints tried first, in order.
	DebuggerURLs []string
	// CDPURL is a devtools http endpoint, resolved to its websocket URL.
	CDPURL string
	// Headless applies to the local-launch fallback only.
	Headless bool

	LoginURL string
	Email    string
	Password string

	// ReadySelector, when set, must appear after submit for the login to
	// count as successful. Otherwise a URL change away from the login page
	// is the success signal.
	ReadySelector string

	// ScreenshotPath, when set, receives a PNG of the post-login page.
	ScreenshotPath string

	NavTimeout time.Duration
	Log        *zap.Logger
}

// Attempt records one connection strategy outcome.
type Attempt struct {
	Strategy string
	Endpoint string
	Err      error
}

// Report is the result of a login smoke run.
type Report struct {
	Attempts   []Attempt
	Strategy   string
	FinalURL   string
	Title      string
	Screenshot string
	OK         bool
}

type candidate struct {
	strategy string
	endpoint string
}

// connectCandidates returns the connection strategies in priority order:
// configured websocket endpoints, then the CDP endpoint, then a local launch.
func connectCandidates(opts Options) []candidate {
	var out []candidate
	for _, u := range opts.DebuggerURLs {
		if u != "" {
			out = append(out, candidate{strategy: "debugger", endpoint: u})
		}
	}
	if opts.CDPURL != "" {
		out = append(out, candidate{strategy: "cdp", endpoint: opts.CDPURL})
	}
	out = append(out, candidate{strategy: "launch"})
	return out
}

func connect(ctx context.Context, c candidate, headless bool) (*rod.Browser, error) {
	controlURL := c.endpoint
	switch c.strategy {
	case "cdp":
		resolved, err := launcher.ResolveURL(c.endpoint)
		if err != nil {
			return nil, fmt.Errorf("resolve cdp endpoint %s: %w", c.endpoint, err)
		}
		controlURL = resolved
	case "launch":
		launched, err := launcher.New().Headless(headless).Launch()
		if err != nil {
			return nil, fmt.Errorf("launch chrome: %w", err)
		}
		controlURL = launched
	}
	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", controlURL, err)
	}
	return b, nil
}

// RunLoginSmoke connects with the first working strategy, performs the login
// flow and reports the outcome. Every failed strategy is recorded in the
// report so the operator can see which endpoints were reachable.
func RunLoginSmoke(ctx context.Context, opts Options) (*Report, error) {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	if opts.LoginURL == "" {
		return nil, errors.New("login url not configured")
	}
	if opts.Email == "" || opts.Password == "" {
		return nil, errors.New("login credentials not configured")
	}

	report := &Report{}
	var browser *rod.Browser
	for _, c := range connectCandidates(opts) {
		log.Info("trying browser connection",
			zap.String("strategy", c.strategy),
			zap.String("endpoint", c.endpoint))
		b, err := connect(ctx, c, opts.Headless)
		report.Attempts = append(report.Attempts, Attempt{
			Strategy: c.strategy,
			Endpoint: c.endpoint,
			Err:      err,
		})
		if err != nil {
			log.Warn("browser connection failed",
				zap.String("strategy", c.strategy),
				zap.Error(err))
			continue
		}
		browser = b
		report.Strategy = c.strategy
		break
	}
	if browser == nil {
		return report, errors.New("no browser connection strategy succeeded")
	}
	defer func() { _ = browser.Close() }()

	if err := login(ctx, browser, opts, report, log); err != nil {
		return report, err
	}
	return report, nil
}

func login(ctx context.Context, browser *rod.Browser, opts Options, report *Report, log *zap.Logger) error {
	timeout := opts.NavTimeout
	if timeout <= 0 {
		timeout = defaultNavTimeout
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: opts.LoginURL})
	if err != nil {
		return fmt.Errorf("open login page: %w", err)
	}
	page = page.Context(ctx).Timeout(timeout)
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("wait for login page: %w", err)
	}

	if err := fill(page, emailSelector, opts.Email); err != nil {
		return err
	}
	if err := fill(page, passwordSelector, opts.Password); err != nil {
		return err
	}

	submit, err := page.Element(submitSelector)
	if err != nil {
		return fmt.Errorf("find submit button: %w", err)
	}
	log.Info("submitting login form", zap.String("url", opts.LoginURL))
	if err := submit.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click submit: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("wait for post-login page: %w", err)
	}

	if opts.ReadySelector != "" {
		if _, err := page.Element(opts.ReadySelector); err != nil {
			return fmt.Errorf("post-login marker %q not found: %w", opts.ReadySelector, err)
		}
	}

	info, err := page.Info()
	if err != nil {
		return fmt.Errorf("read page info: %w", err)
	}
	report.FinalURL = info.URL
	report.Title = info.Title

	if opts.ScreenshotPath != "" {
		data, err := page.Screenshot(false, nil)
		if err != nil {
			log.Warn("screenshot failed", zap.Error(err))
		} else if err := os.WriteFile(opts.ScreenshotPath, data, 0o644); err != nil {
			log.Warn("write screenshot", zap.String("path", opts.ScreenshotPath), zap.Error(err))
		} else {
			report.Screenshot = opts.ScreenshotPath
		}
	}

	report.OK = opts.ReadySelector != "" || !sameLoginPage(opts.LoginURL, info.URL)
	if !report.OK {
		return fmt.Errorf("still on login page after submit: %s", info.URL)
	}
	log.Info("login smoke succeeded",
		zap.String("strategy", report.Strategy),
		zap.String("url", report.FinalURL),
		zap.String("title", report.Title))
	return nil
}

func fill(page *rod.Page, selector, value string) error {
	el, err := page.Element(selector)
	if err != nil {
		return fmt.Errorf("find %s: %w", selector, err)
	}
	if err := el.Input(value); err != nil {
		return fmt.Errorf("fill %s: %w", selector, err)
	}
	return nil
}

// sameLoginPage compares URLs ignoring trailing slashes and query strings so
// a redirect back to the form with an error flag still reads as a failure.
func sameLoginPage(loginURL, current string) bool {
	norm := func(u string) string {
		u, _, _ = strings.Cut(u, "?")
		return strings.TrimRight(u, "/")
	}
	return norm(loginURL) == norm(current)
}

// RenderReport writes a per-strategy result summary.
func RenderReport(w io.Writer, r *Report) {
	fmt.Fprintln(w, "Login smoke test")
	for _, a := range r.Attempts {
		status := "ok"
		if a.Err != nil {
			status = a.Err.Error()
		}
		endpoint := a.Endpoint
		if endpoint == "" {
			endpoint = "(local)"
		}
		fmt.Fprintf(w, "  %-8s %-40s %s\n", a.Strategy, endpoint, status)
	}
	if r.OK {
		fmt.Fprintf(w, "result: ok via %s\n", r.Strategy)
		fmt.Fprintf(w, "  url:   %s\n", r.FinalURL)
		fmt.Fprintf(w, "  title: %s\n", r.Title)
		if r.Screenshot != "" {
			fmt.Fprintf(w, "  shot:  %s\n", r.Screenshot)
		}
	} else {
		fmt.Fprintln(w, "result: failed")
	}
}
