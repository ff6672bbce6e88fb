package engine

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os/exec"
	"time"
)

// Defaults for subprocess execution.
const (
	DefaultTimeout        = 10 * time.Minute
	DefaultMaxOutputBytes = 1 << 20
	// waitDelay bounds how long Wait blocks on inherited pipes after a kill.
	waitDelay = 500 * time.Millisecond
)

// runResult is the raw outcome of one subprocess.
type runResult struct {
	process  Process
	timedOut bool
	err      error // start failure or caller cancellation, nil for a non-zero exit
}

// execute runs name with args under timeout, capturing bounded stdout and
// stderr. The subprocess is killed when ctx ends or the timeout elapses.
func execute(ctx context.Context, logger *slog.Logger, dir string, maxOutput int, timeout time.Duration, name string, args ...string) runResult {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, name, args...)
	cmd.Dir = dir
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	stdoutLimited := &limitedWriter{w: &stdout, limit: maxOutput}
	stderrLimited := &limitedWriter{w: &stderr, limit: maxOutput}
	cmd.Stdout = stdoutLimited
	cmd.Stderr = stderrLimited

	logger.Debug("executing engine",
		slog.String("command", name),
		slog.Any("args", args),
		slog.Duration("timeout", timeout),
	)

	start := time.Now()
	err := cmd.Run()

	res := runResult{
		process: Process{
			Stdout:    stdout.String(),
			Stderr:    stderr.String(),
			Truncated: stdoutLimited.truncated || stderrLimited.truncated,
			Elapsed:   time.Since(start),
		},
	}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		res.timedOut = true
		res.process.TimedOut = true
		res.process.ExitCode = -1
		return res
	}
	if ctx.Err() != nil {
		res.process.ExitCode = -1
		res.err = ctx.Err()
		return res
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.process.ExitCode = exitErr.ExitCode()
		} else {
			res.process.ExitCode = -1
			res.err = err
		}
	}
	return res
}

// limitedWriter wraps a writer with a size limit. Writes beyond the limit are
// discarded but reported as written so the subprocess never blocks.
type limitedWriter struct {
	w         io.Writer
	limit     int
	written   int
	truncated bool
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	if lw.limit <= 0 {
		return lw.w.Write(p)
	}
	if lw.written >= lw.limit {
		lw.truncated = true
		return len(p), nil
	}

	n := len(p)
	if remaining := lw.limit - lw.written; n > remaining {
		p = p[:remaining]
		lw.truncated = true
	}
	written, err := lw.w.Write(p)
	lw.written += written
	return n, err
}
