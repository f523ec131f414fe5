// Package generate assembles generation requests and drives the external
// composition engine.
package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/atifdosyasi/dossier/internal/apperr"
	"github.com/atifdosyasi/dossier/internal/config"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Runner invokes the external engine as an isolated subprocess. The
// engine writes diagnostics to stderr and leading stdout lines; exactly
// one JSON object on the final stdout line describes the outcome.
type Runner struct {
	command string
	args    []string
	workdir string
	timeout time.Duration
	logger  *zap.Logger
}

// NewRunner creates a runner from engine configuration.
func NewRunner(cfg config.EngineConfig, logger *zap.Logger) *Runner {
	return &Runner{
		command: cfg.Command,
		args:    cfg.Args,
		workdir: cfg.Workdir,
		timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		logger:  logger,
	}
}

// Output carries both captured engine streams, surfaced on failure for
// diagnosis.
type Output struct {
	Stdout string
	Stderr string
}

// Run executes the engine with the given extra arguments, drains both
// streams fully before inspecting the exit status, and unmarshals the
// final stdout line into result. The run is bounded by the configured
// wall-clock timeout; on expiry the subprocess is killed and the run
// reported as a timeout failure.
func (r *Runner) Run(ctx context.Context, extra []string, result interface{}) (Output, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	args := append(append([]string(nil), r.args...), extra...)
	cmd := exec.CommandContext(ctx, r.command, args...)
	cmd.Dir = r.workdir
	// If a killed engine leaves orphans holding the pipes, stop waiting
	// on them after a grace period instead of hanging the request.
	cmd.WaitDelay = 5 * time.Second

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return Output{}, &apperr.EngineError{Msg: "stdout pipe", Err: err}
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return Output{}, &apperr.EngineError{Msg: "stderr pipe", Err: err}
	}

	r.logger.Debug("engine starting", zap.String("command", r.command), zap.Strings("args", args))
	if err := cmd.Start(); err != nil {
		return Output{}, &apperr.EngineError{Msg: "start engine", Err: err}
	}

	// Both pipes must be drained before Wait, or a full pipe buffer
	// deadlocks the engine.
	var stdout, stderr bytes.Buffer
	var g errgroup.Group
	g.Go(func() error {
		_, err := io.Copy(&stdout, stdoutPipe)
		return err
	})
	g.Go(func() error {
		_, err := io.Copy(&stderr, stderrPipe)
		return err
	})
	drainErr := g.Wait()
	waitErr := cmd.Wait()

	out := Output{Stdout: stdout.String(), Stderr: stderr.String()}

	if ctx.Err() != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return out, &apperr.EngineError{
			Msg: "engine timed out", Stdout: out.Stdout, Stderr: out.Stderr, Err: ctx.Err(),
		}
	}
	if waitErr != nil {
		return out, &apperr.EngineError{
			Msg: "engine failed", Stdout: out.Stdout, Stderr: out.Stderr, Err: waitErr,
		}
	}
	if drainErr != nil {
		return out, &apperr.EngineError{
			Msg: "read engine output", Stdout: out.Stdout, Stderr: out.Stderr, Err: drainErr,
		}
	}

	if err := parseLastLine(out.Stdout, result); err != nil {
		return out, &apperr.EngineError{
			Msg: "invalid engine output", Stdout: out.Stdout, Stderr: out.Stderr, Err: err,
		}
	}
	return out, nil
}

// parseLastLine unmarshals the final non-empty stdout line into result.
// Preceding lines are diagnostic noise and are ignored.
func parseLastLine(stdout string, result interface{}) error {
	trimmed := strings.TrimSpace(stdout)
	if trimmed == "" {
		return errors.New("empty stdout")
	}
	lines := strings.Split(trimmed, "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	return json.Unmarshal([]byte(last), result)
}
