// Package config loads and validates the lrtool YAML configuration with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var validLogLevels = []string{"debug", "info", "warn", "error"}

// Config is the root application configuration.
type Config struct {
	LogLevel  string
	GitLab    GitLabConfig
	GitHub    GitHubConfig
	Bitbucket BitbucketConfig
	Gitea     GiteaConfig
	Retry     RetryConfig
	RateLimit RateLimitConfig
	Listener  ListenerConfig
	Database  DatabaseConfig
	Discord   DiscordConfig
	Store     StoreConfig
	Release   ReleaseConfig
	Browser   BrowserConfig
	Telemetry TelemetryConfig
}

// GitLabConfig configures the GitLab provider client.
type GitLabConfig struct {
	BaseURL string
	Token   string
}

// GitHubConfig configures the GitHub provider client. Token auth and App
// installation auth are mutually exclusive; the token wins when both are
// set.
type GitHubConfig struct {
	APIBaseURL     string
	Token          string
	AppID          int64
	InstallationID int64
	PrivateKeyPath string
	RequestTimeout time.Duration
}

// BitbucketConfig configures Bitbucket Cloud basic auth. Email is
// preferred over username when both are present.
type BitbucketConfig struct {
	Email    string
	Username string
	APIToken string
}

// GiteaConfig configures both the Gitea REST client and the browser-form
// session flow.
type GiteaConfig struct {
	BaseURL  string
	Token    string
	Username string
	Password string
}

// RetryConfig configures provider HTTP retries.
type RetryConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// RateLimitConfig configures rate-limit controls.
type RateLimitConfig struct {
	MinRemainingThreshold int
	MinResetBuffer        time.Duration
	SecondaryLimitBackoff time.Duration
}

// ListenerConfig configures the local webhook listener.
type ListenerConfig struct {
	ListenAddr  string
	Secret      string
	GitlabToken string
	DedupTTL    time.Duration
}

// DatabaseConfig configures the Postgres connection for stats and reset
// operations.
type DatabaseConfig struct {
	URL string
}

// DiscordConfig configures the Discord incoming webhook for reports.
type DiscordConfig struct {
	WebhookURL string
}

// StoreConfig configures the session/state store.
type StoreConfig struct {
	Backend       string
	Path          string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// ReleaseConfig configures release automation defaults.
type ReleaseConfig struct {
	Registry      string
	ImageName     string
	DockerContext string
	Architectures []string
}

// BrowserConfig configures browser-automation smoke tests.
type BrowserConfig struct {
	DebuggerURLs []string
	CDPURL       string
	Headless     bool
	LoginURL     string
	Email        string
	Password     string
}

// TelemetryConfig configures OpenTelemetry behavior.
type TelemetryConfig struct {
	OTELEnabled          bool
	OTELTraceMode        string
	OTELTraceSampleRatio float64
}

// LoadDotenv overlays .env.prod then .env into the process environment
// without clobbering existing variables, matching how the operational
// scripts resolve credentials.
func LoadDotenv() {
	for _, candidate := range []string{".env.prod", ".env"} {
		if _, err := os.Stat(candidate); err != nil {
			continue
		}
		_ = godotenv.Load(candidate)
	}
}

// LoadFile reads configuration from a YAML file. A missing file yields
// defaults so the CLI works from env vars alone.
func LoadFile(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := &Config{}
			applyDefaults(cfg)
			applyEnvOverrides(cfg)
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("open config file: %w", err)
	}
	defer func() {
		_ = file.Close()
	}()
	return Load(file)
}

// Load reads configuration from YAML, applies environment overrides, and
// validates the result.
func Load(reader io.Reader) (*Config, error) {
	if reader == nil {
		return nil, fmt.Errorf("config reader is nil")
	}

	decoder := yaml.NewDecoder(reader)
	decoder.KnownFields(true)

	var raw rawConfig
	if err := decoder.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	cfg := raw.toConfig()
	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate validates configuration values.
func (c *Config) Validate() error {
	var errs []string

	if !slices.Contains(validLogLevels, c.LogLevel) {
		errs = append(errs, "log_level must be one of debug|info|warn|error")
	}

	if c.Store.Backend != "file" && c.Store.Backend != "redis" {
		errs = append(errs, "store.backend must be file or redis")
	}
	if c.Store.Backend == "redis" && c.Store.RedisAddr == "" {
		errs = append(errs, "store.redis_addr is required when store.backend=redis")
	}

	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, "retry.max_attempts must be >= 1")
	}

	if c.GitHub.AppID > 0 || c.GitHub.InstallationID > 0 {
		if c.GitHub.AppID <= 0 || c.GitHub.InstallationID <= 0 || c.GitHub.PrivateKeyPath == "" {
			errs = append(errs, "github app auth requires app_id, installation_id, and private_key_path")
		}
	}

	for _, arch := range c.Release.Architectures {
		switch arch {
		case "amd64", "arm64", "arm/v7":
		default:
			errs = append(errs, "release.architectures entries must be amd64, arm64, or arm/v7")
		}
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.GitHub.APIBaseURL == "" {
		cfg.GitHub.APIBaseURL = "https://api.github.com"
	}
	if cfg.GitHub.RequestTimeout <= 0 {
		cfg.GitHub.RequestTimeout = 30 * time.Second
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 3
	}
	if cfg.Retry.InitialBackoff <= 0 {
		cfg.Retry.InitialBackoff = time.Second
	}
	if cfg.Retry.MaxBackoff <= 0 {
		cfg.Retry.MaxBackoff = 30 * time.Second
	}
	if cfg.RateLimit.MinRemainingThreshold == 0 {
		cfg.RateLimit.MinRemainingThreshold = 50
	}
	if cfg.RateLimit.MinResetBuffer <= 0 {
		cfg.RateLimit.MinResetBuffer = 5 * time.Second
	}
	if cfg.RateLimit.SecondaryLimitBackoff <= 0 {
		cfg.RateLimit.SecondaryLimitBackoff = time.Minute
	}
	if cfg.Listener.ListenAddr == "" {
		cfg.Listener.ListenAddr = ":8080"
	}
	if cfg.Listener.DedupTTL <= 0 {
		cfg.Listener.DedupTTL = 24 * time.Hour
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "file"
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = ".lrtool-state.json"
	}
	if len(cfg.Release.Architectures) == 0 {
		cfg.Release.Architectures = []string{"amd64", "arm64"}
	}
	if cfg.Browser.LoginURL == "" {
		cfg.Browser.LoginURL = "https://livereview.hexmos.site/"
	}
}

// applyEnvOverrides lets the well-known script env vars win over YAML so a
// bare `GITLAB_TOKEN=... lrtool ...` keeps working.
func applyEnvOverrides(cfg *Config) {
	setIfEnv(&cfg.GitLab.Token, "GITLAB_TOKEN")
	setIfEnv(&cfg.GitLab.BaseURL, "GITLAB_BASE_URL")
	setIfEnv(&cfg.GitHub.Token, "GITHUB_TOKEN", "GITHUB_PAT")
	setIfEnv(&cfg.Bitbucket.APIToken, "BITBUCKET_TOKEN")
	setIfEnv(&cfg.Bitbucket.Email, "BITBUCKET_EMAIL")
	setIfEnv(&cfg.Gitea.BaseURL, "GITEA_BASE_URL")
	setIfEnv(&cfg.Gitea.Token, "GITEA_TOKEN")
	setIfEnv(&cfg.Gitea.Username, "GITEA_USER")
	setIfEnv(&cfg.Gitea.Password, "GITEA_PASS")
	setIfEnv(&cfg.Database.URL, "DATABASE_URL")
	setIfEnv(&cfg.Discord.WebhookURL, "DISCORD_WEBHOOK_URL")
}

func setIfEnv(target *string, keys ...string) {
	for _, key := range keys {
		if value := strings.TrimSpace(os.Getenv(key)); value != "" {
			*target = value
			return
		}
	}
}

type duration struct {
	time.Duration
}

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil || value.Kind == 0 || strings.TrimSpace(value.Value) == "" {
		d.Duration = 0
		return nil
	}

	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("decode duration: %w", err)
	}

	parsed, err := parseFlexibleDuration(raw)
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func parseFlexibleDuration(raw string) (time.Duration, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, nil
	}

	if standard, err := time.ParseDuration(trimmed); err == nil {
		return standard, nil
	}

	if strings.HasSuffix(trimmed, "d") {
		return parseDurationWithMultiplier(strings.TrimSuffix(trimmed, "d"), 24)
	}
	if strings.HasSuffix(trimmed, "w") {
		return parseDurationWithMultiplier(strings.TrimSuffix(trimmed, "w"), 24*7)
	}

	return 0, fmt.Errorf("parse duration %q: invalid unit", raw)
}

func parseDurationWithMultiplier(numeric string, multiplierHours float64) (time.Duration, error) {
	value, err := strconv.ParseFloat(strings.TrimSpace(numeric), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration value %q: %w", numeric, err)
	}

	nanos := value * multiplierHours * float64(time.Hour)
	if nanos > math.MaxInt64 || nanos < math.MinInt64 {
		return 0, fmt.Errorf("parse duration value %q: out of range", numeric)
	}
	return time.Duration(nanos), nil
}

type rawConfig struct {
	LogLevel  string       `yaml:"log_level"`
	GitLab    rawGitLab    `yaml:"gitlab"`
	GitHub    rawGitHub    `yaml:"github"`
	Bitbucket rawBitbucket `yaml:"bitbucket"`
	Gitea     rawGitea     `yaml:"gitea"`
	Retry     rawRetry     `yaml:"retry"`
	RateLimit rawRateLimit `yaml:"rate_limit"`
	Listener  rawListener  `yaml:"listener"`
	Database  rawDatabase  `yaml:"database"`
	Discord   rawDiscord   `yaml:"discord"`
	Store     rawStore     `yaml:"store"`
	Release   rawRelease   `yaml:"release"`
	Browser   rawBrowser   `yaml:"browser"`
	Telemetry rawTelemetry `yaml:"telemetry"`
}

type rawGitLab struct {
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token"`
}

type rawGitHub struct {
	APIBaseURL     string   `yaml:"api_base_url"`
	Token          string   `yaml:"token"`
	AppID          int64    `yaml:"app_id"`
	InstallationID int64    `yaml:"installation_id"`
	PrivateKeyPath string   `yaml:"private_key_path"`
	RequestTimeout duration `yaml:"request_timeout"`
}

type rawBitbucket struct {
	Email    string `yaml:"email"`
	Username string `yaml:"username"`
	APIToken string `yaml:"api_token"`
}

type rawGitea struct {
	BaseURL  string `yaml:"base_url"`
	Token    string `yaml:"token"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type rawRetry struct {
	MaxAttempts    int      `yaml:"max_attempts"`
	InitialBackoff duration `yaml:"initial_backoff"`
	MaxBackoff     duration `yaml:"max_backoff"`
}

type rawRateLimit struct {
	MinRemainingThreshold int      `yaml:"min_remaining_threshold"`
	MinResetBuffer        duration `yaml:"min_reset_buffer"`
	SecondaryLimitBackoff duration `yaml:"secondary_limit_backoff"`
}

type rawListener struct {
	ListenAddr  string   `yaml:"listen_addr"`
	Secret      string   `yaml:"secret"`
	GitlabToken string   `yaml:"gitlab_token"`
	DedupTTL    duration `yaml:"dedup_ttl"`
}

type rawDatabase struct {
	URL string `yaml:"url"`
}

type rawDiscord struct {
	WebhookURL string `yaml:"webhook_url"`
}

type rawStore struct {
	Backend       string `yaml:"backend"`
	Path          string `yaml:"path"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
}

type rawRelease struct {
	Registry      string   `yaml:"registry"`
	ImageName     string   `yaml:"image_name"`
	DockerContext string   `yaml:"docker_context"`
	Architectures []string `yaml:"architectures"`
}

type rawBrowser struct {
	DebuggerURLs []string `yaml:"debugger_urls"`
	CDPURL       string   `yaml:"cdp_url"`
	Headless     bool     `yaml:"headless"`
	LoginURL     string   `yaml:"login_url"`
	Email        string   `yaml:"email"`
	Password     string   `yaml:"password"`
}

type rawTelemetry struct {
	OTELEnabled          bool    `yaml:"otel_enabled"`
	OTELTraceMode        string  `yaml:"otel_trace_mode"`
	OTELTraceSampleRatio float64 `yaml:"otel_trace_sample_ratio"`
}

func (r rawConfig) toConfig() *Config {
	return &Config{
		LogLevel: r.LogLevel,
		GitLab: GitLabConfig{
			BaseURL: r.GitLab.BaseURL,
			Token:   r.GitLab.Token,
		},
		GitHub: GitHubConfig{
			APIBaseURL:     r.GitHub.APIBaseURL,
			Token:          r.GitHub.Token,
			AppID:          r.GitHub.AppID,
			InstallationID: r.GitHub.InstallationID,
			PrivateKeyPath: r.GitHub.PrivateKeyPath,
			RequestTimeout: r.GitHub.RequestTimeout.Duration,
		},
		Bitbucket: BitbucketConfig{
			Email:    r.Bitbucket.Email,
			Username: r.Bitbucket.Username,
			APIToken: r.Bitbucket.APIToken,
		},
		Gitea: GiteaConfig{
			BaseURL:  r.Gitea.BaseURL,
			Token:    r.Gitea.Token,
			Username: r.Gitea.Username,
			Password: r.Gitea.Password,
		},
		Retry: RetryConfig{
			MaxAttempts:    r.Retry.MaxAttempts,
			InitialBackoff: r.Retry.InitialBackoff.Duration,
			MaxBackoff:     r.Retry.MaxBackoff.Duration,
		},
		RateLimit: RateLimitConfig{
			MinRemainingThreshold: r.RateLimit.MinRemainingThreshold,
			MinResetBuffer:        r.RateLimit.MinResetBuffer.Duration,
			SecondaryLimitBackoff: r.RateLimit.SecondaryLimitBackoff.Duration,
		},
		Listener: ListenerConfig{
			ListenAddr:  r.Listener.ListenAddr,
			Secret:      r.Listener.Secret,
			GitlabToken: r.Listener.GitlabToken,
			DedupTTL:    r.Listener.DedupTTL.Duration,
		},
		Database: DatabaseConfig{URL: r.Database.URL},
		Discord:  DiscordConfig{WebhookURL: r.Discord.WebhookURL},
		Store: StoreConfig{
			Backend:       r.Store.Backend,
			Path:          r.Store.Path,
			RedisAddr:     r.Store.RedisAddr,
			RedisPassword: r.Store.RedisPassword,
			RedisDB:       r.Store.RedisDB,
		},
		Release: ReleaseConfig{
			Registry:      r.Release.Registry,
			ImageName:     r.Release.ImageName,
			DockerContext: r.Release.DockerContext,
			Architectures: r.Release.Architectures,
		},
		Browser: BrowserConfig{
			DebuggerURLs: r.Browser.DebuggerURLs,
			CDPURL:       r.Browser.CDPURL,
			Headless:     r.Browser.Headless,
			LoginURL:     r.Browser.LoginURL,
			Email:        r.Browser.Email,
			Password:     r.Browser.Password,
		},
		Telemetry: TelemetryConfig{
			OTELEnabled:          r.Telemetry.OTELEnabled,
			OTELTraceMode:        r.Telemetry.OTELTraceMode,
			OTELTraceSampleRatio: r.Telemetry.OTELTraceSampleRatio,
		},
	}
}
