package browser

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestConnectCandidates(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		opts Options
		want []candidate
	}{
		{
			name: "full set keeps order",
			opts: Options{
				DebuggerURLs: []string{"ws://192.168.128.1:9223/", "ws://localhost:9223/"},
				CDPURL:       "http://192.168.128.1:9222",
			},
			want: []candidate{
				{strategy: "debugger", endpoint: "ws://192.168.128.1:9223/"},
				{strategy: "debugger", endpoint: "ws://localhost:9223/"},
				{strategy: "cdp", endpoint: "http://192.168.128.1:9222"},
				{strategy: "launch"},
			},
		},
		{
			name: "empty config falls back to launch",
			opts: Options{},
			want: []candidate{{strategy: "launch"}},
		},
		{
			name: "blank endpoints skipped",
			opts: Options{DebuggerURLs: []string{"", "ws://h:9223/"}},
			want: []candidate{
				{strategy: "debugger", endpoint: "ws://h:9223/"},
				{strategy: "launch"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := connectCandidates(tt.opts)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("candidate[%d] = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestRunLoginSmokeValidatesOptions(t *testing.T) {
	t.Parallel()

	if _, err := RunLoginSmoke(context.Background(), Options{Email: "a", Password: "b"}); err == nil {
		t.Error("expected error without login url")
	}
	if _, err := RunLoginSmoke(context.Background(), Options{LoginURL: "https://x"}); err == nil {
		t.Error("expected error without credentials")
	}
}

func TestSameLoginPage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		login, current string
		want           bool
	}{
		{login: "https://livereview.hexmos.site/", current: "https://livereview.hexmos.site/", want: true},
		{login: "https://livereview.hexmos.site/", current: "https://livereview.hexmos.site/?error=1", want: true},
		{login: "https://livereview.hexmos.site/", current: "https://livereview.hexmos.site/dashboard", want: false},
		{login: "https://livereview.hexmos.site/login", current: "https://livereview.hexmos.site/login/", want: true},
	}
	for _, tt := range tests {
		if got := sameLoginPage(tt.login, tt.current); got != tt.want {
			t.Errorf("sameLoginPage(%q, %q) = %v, want %v", tt.login, tt.current, got, tt.want)
		}
	}
}

func TestRenderReport(t *testing.T) {
	t.Parallel()

	r := &Report{
		Attempts: []Attempt{
			{Strategy: "debugger", Endpoint: "ws://h:9223/", Err: errors.New("connection refused")},
			{Strategy: "launch"},
		},
		Strategy: "launch",
		FinalURL: "https://livereview.hexmos.site/dashboard",
		Title:    "LiveReview",
		OK:       true,
	}
	var buf strings.Builder
	RenderReport(&buf, r)
	out := buf.String()

	for _, want := range []string{
		"connection refused",
		"(local)",
		"result: ok via launch",
		"https://livereview.hexmos.site/dashboard",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
}
