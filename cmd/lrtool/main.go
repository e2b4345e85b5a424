// Package main implements the lrtool CLI, the LiveReview operations
// toolkit: provider review-comment clients, webhook management, a local
// webhook listener, database stats and reset, release automation, and
// browser smoke tests.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/livereview/lrtool/internal/config"
	"github.com/livereview/lrtool/internal/httpx"
	"github.com/livereview/lrtool/internal/store"
	"github.com/livereview/lrtool/internal/telemetry"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	configPath   string
	logLevelFlag string

	cfg              *config.Config
	logger           *zap.Logger
	telemetryRuntime telemetry.Runtime
)

var rootCmd = &cobra.Command{
	Use:           "lrtool",
	Short:         "LiveReview operations toolkit",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		teardown()
	},
}

func setup() error {
	config.LoadDotenv()

	loaded, err := config.LoadFile(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg = loaded
	if logLevelFlag != "" {
		cfg.LogLevel = logLevelFlag
	}

	loggerConfig := zap.NewProductionConfig()
	loggerConfig.Level = zap.NewAtomicLevelAt(logLevel(cfg.LogLevel))
	logger, err = loggerConfig.Build()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}

	telemetryRuntime, err = telemetry.Setup(telemetry.Config{
		Enabled:          cfg.Telemetry.OTELEnabled,
		ServiceName:      "lrtool",
		TraceMode:        cfg.Telemetry.OTELTraceMode,
		TraceSampleRatio: cfg.Telemetry.OTELTraceSampleRatio,
	})
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	return nil
}

func teardown() {
	if telemetryRuntime.Shutdown != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = telemetryRuntime.Shutdown(shutdownCtx)
	}
	if logger != nil {
		_ = logger.Sync()
	}
}

func logLevel(raw string) zapcore.Level {
	switch strings.ToLower(raw) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// newHTTPClient builds the shared retrying HTTP client from config.
func newHTTPClient() *httpx.Client {
	return httpx.NewClient(
		&http.Client{Timeout: cfg.GitHub.RequestTimeout},
		httpx.RetryConfig{
			MaxAttempts:    cfg.Retry.MaxAttempts,
			InitialBackoff: cfg.Retry.InitialBackoff,
			MaxBackoff:     cfg.Retry.MaxBackoff,
		},
		httpx.RateLimitPolicy{
			MinRemainingThreshold: cfg.RateLimit.MinRemainingThreshold,
			MinResetBuffer:        cfg.RateLimit.MinResetBuffer,
			SecondaryLimitBackoff: cfg.RateLimit.SecondaryLimitBackoff,
		},
	)
}

// newStore opens the configured session/state store.
func newStore() (store.Store, error) {
	switch cfg.Store.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Store.RedisAddr,
			Password: cfg.Store.RedisPassword,
			DB:       cfg.Store.RedisDB,
		})
		return store.NewRedisStore(client, "lrtool"), nil
	default:
		return store.NewFileStore(cfg.Store.Path)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "lrtool.yaml", "path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "override the configured log level: debug, info, warn, error")

	rootCmd.AddCommand(
		gitlabCmd,
		githubCmd,
		bitbucketCmd,
		giteaCmd,
		listenCmd,
		statsCmd,
		resetUserCmd,
		releaseCmd,
		browserSmokeCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "lrtool: %v\n", err)
		os.Exit(1)
	}
}
