package release

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Runner executes external commands and returns their combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

const defaultRunTimeout = 10 * time.Minute

// ExecRunner runs commands through os/exec with structured logging.
type ExecRunner struct {
	Log     *zap.Logger
	Timeout time.Duration
	Dir     string
}

func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	log := r.Log
	if log == nil {
		log = zap.NewNop()
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = defaultRunTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmdStr := name + " " + strings.Join(args, " ")
	log.Info("running command", zap.String("command", cmdStr))

	cmd := exec.CommandContext(runCtx, name, args...)
	if r.Dir != "" {
		cmd.Dir = r.Dir
	}
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	start := time.Now()
	err := cmd.Run()
	output := buf.String()
	if err != nil {
		log.Error("command failed",
			zap.String("command", cmdStr),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("output", tail(output, 2000)),
			zap.Error(err))
		return output, fmt.Errorf("run %s: %w", name, err)
	}
	log.Info("command succeeded",
		zap.String("command", cmdStr),
		zap.Duration("elapsed", time.Since(start)))
	return output, nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
