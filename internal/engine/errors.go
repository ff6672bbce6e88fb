package engine

import (
	"errors"
	"fmt"
	"time"
)

// Sentinels for errors.Is. Every typed engine error matches exactly one.
var (
	ErrTimeout       = errors.New("engine timed out")
	ErrOutputMissing = errors.New("engine produced no output")
	ErrOutputInvalid = errors.New("engine output failed validation")
	ErrProcessFailed = errors.New("engine process failed")
	ErrMissingValues = errors.New("dataset has missing values")
)

// stderrExcerpt bounds how much stderr an error message repeats.
const stderrExcerpt = 500

// Process is what was observed of one engine subprocess.
type Process struct {
	ExitCode  int           `json:"exit_code"`
	Stdout    string        `json:"stdout"`
	Stderr    string        `json:"stderr"`
	Truncated bool          `json:"truncated,omitempty"`
	TimedOut  bool          `json:"timed_out"`
	Elapsed   time.Duration `json:"elapsed"`
}

func describe(msg string, p Process) string {
	s := msg
	if !p.TimedOut {
		s += fmt.Sprintf(" (exit code %d)", p.ExitCode)
	}
	if p.Stderr != "" {
		stderr := p.Stderr
		if len(stderr) > stderrExcerpt {
			stderr = stderr[:stderrExcerpt]
		}
		s += ": " + stderr
	}
	return s
}

// TimeoutError reports a subprocess killed at its deadline. Process holds
// whatever output was captured before the kill.
type TimeoutError struct {
	Timeout time.Duration
	Process Process
	Workdir string
}

func (e *TimeoutError) Error() string {
	return describe(fmt.Sprintf("engine timed out after %s", e.Timeout), e.Process)
}

func (e *TimeoutError) Unwrap() error { return ErrTimeout }

// OutputMissingError reports a run that left no output artifact, whatever
// its exit code.
type OutputMissingError struct {
	Path    string
	Process Process
	Workdir string
}

func (e *OutputMissingError) Error() string {
	return describe(fmt.Sprintf("engine did not produce %s", e.Path), e.Process)
}

func (e *OutputMissingError) Unwrap() error { return ErrOutputMissing }

// OutputInvalidError reports an output artifact that could not be parsed or
// violated its contract. Cause is a *contract.ValidationError for contract
// violations.
type OutputInvalidError struct {
	Path    string
	Cause   error
	Process Process
	Workdir string
}

func (e *OutputInvalidError) Error() string {
	return fmt.Sprintf("engine output %s is invalid: %v", e.Path, e.Cause)
}

func (e *OutputInvalidError) Unwrap() []error { return []error{ErrOutputInvalid, e.Cause} }

// ProcessError reports a subprocess that could not start or exited non-zero.
type ProcessError struct {
	Cause   error
	Process Process
	Workdir string
}

func (e *ProcessError) Error() string {
	msg := "engine process failed"
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return describe(msg, e.Process)
}

func (e *ProcessError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrProcessFailed}
	}
	return []error{ErrProcessFailed, e.Cause}
}
