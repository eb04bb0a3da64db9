// Package cmdutil runs external commands (git, validators, test runners)
// with timeouts and treats their exit status as the caller's contract.
package cmdutil

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
)

// ErrTimedOut reports that a command was killed because its deadline passed.
var ErrTimedOut = errors.New("command timed out")

// ExecOptions configures command execution.
type ExecOptions struct {
	// Dir is the working directory for the command.
	Dir string

	// Timeout is the maximum execution time. Zero means no timeout.
	Timeout time.Duration

	// Env contains extra environment variables in "KEY=value" form.
	// They are appended to the parent environment.
	Env []string
}

// Result contains the outcome of a command execution. A non-zero ExitCode
// is a valid result, not an error; errors are reserved for commands that
// could not run or were killed by a timeout.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// OK reports whether the command exited successfully.
func (r *Result) OK() bool {
	return r.ExitCode == 0
}

// Combined returns stdout and stderr joined for logging.
func (r *Result) Combined() string {
	if r.Stderr == "" {
		return r.Stdout
	}
	if r.Stdout == "" {
		return r.Stderr
	}
	return r.Stdout + "\n" + r.Stderr
}

// Run executes a command given as argv. Non-zero exits are reported through
// Result.ExitCode with a nil error, so callers can distinguish "the tool
// said no" from "the tool never ran".
func Run(ctx context.Context, opts ExecOptions, argv []string) (*Result, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = opts.Dir
	if len(opts.Env) > 0 {
		cmd.Env = append(cmd.Environ(), opts.Env...)
	}

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()

	result := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}

	switch ctx.Err() {
	case context.DeadlineExceeded:
		return result, fmt.Errorf("%w after %s: %s", ErrTimedOut,
			result.Duration.Round(time.Millisecond), FormatCommand(argv))
	case context.Canceled:
		// A canceled parent context is not a timeout.
		return result, fmt.Errorf("command canceled after %s: %w",
			result.Duration.Round(time.Millisecond), context.Canceled)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// Exit status is the contract; surface it via the result.
		return result, nil
	}
	if err != nil {
		return result, fmt.Errorf("command failed to run: %w (command: %s)", err, FormatCommand(argv))
	}

	return result, nil
}

// ParseCommandString parses a shell-quoted command string into argv parts.
//
// Example:
//
//	"npm test -- --grep \"smoke\"" -> ["npm", "test", "--", "--grep", "smoke"]
func ParseCommandString(cmdStr string) ([]string, error) {
	parts, err := shellquote.Split(cmdStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse command string: %w", err)
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty command string")
	}
	return parts, nil
}

// FormatCommand formats argv into a readable string for logging.
func FormatCommand(argv []string) string {
	if len(argv) == 0 {
		return "<empty command>"
	}

	quoted := make([]string, len(argv))
	for i, part := range argv {
		if strings.ContainsAny(part, " \t\n\"'") {
			quoted[i] = shellquote.Join(part)
		} else {
			quoted[i] = part
		}
	}

	return strings.Join(quoted, " ")
}

// Redact replaces every occurrence of the given secrets in s. Used before
// command output is written to logs or the audit trail.
func Redact(s string, secrets []string) string {
	for _, secret := range secrets {
		if secret != "" {
			s = strings.ReplaceAll(s, secret, "***REDACTED***")
		}
	}
	return s
}
