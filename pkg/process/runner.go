package process

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/parvane/pvcd/pkg/log"
)

// Runner executes external commands with a bounded timeout and uniform
// error wrapping. A zero-value Runner is ready to use.
type Runner struct {
	// DefaultTimeout bounds any Run call that doesn't receive a context
	// deadline of its own. Zero means no timeout is applied.
	DefaultTimeout time.Duration
}

// Result captures what a command produced.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Run executes name with args, returning combined stdout/stderr on
// failure for diagnostics. Callers that need stdout on success should use
// RunOutput instead.
func (r *Runner) Run(ctx context.Context, name string, args ...string) error {
	_, err := r.RunOutput(ctx, name, args...)
	return err
}

// RunOutput executes name with args and returns the captured output.
func (r *Runner) RunOutput(ctx context.Context, name string, args ...string) (*Result, error) {
	if r.DefaultTimeout > 0 {
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, r.DefaultTimeout)
			defer cancel()
		}
	}

	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	res := &Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	logEvent := log.Logger.Debug().
		Str("cmd", name).
		Strs("args", args).
		Dur("elapsed", elapsed).
		Int("exit_code", res.ExitCode)

	if err != nil {
		logEvent.Str("stderr", strings.TrimSpace(res.Stderr)).Msg("command failed")
		return res, fmt.Errorf("%s %s: %w (stderr: %s)", name, strings.Join(args, " "), err, strings.TrimSpace(res.Stderr))
	}
	logEvent.Msg("command ok")
	return res, nil
}
