package backends

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ExitCommandNotFound is the exit code reported when the executable is missing,
// matching what a shell reports.
const ExitCommandNotFound = 127

// Command describes one external process.
type Command struct {
	// Name is the executable, looked up on PATH.
	Name string

	// Args are passed to the executable.
	Args []string

	// Env holds extra environment variables added to the inherited environment.
	Env map[string]string

	// Dir is the working directory.
	Dir string

	// Stdin is fed to the process, if set.
	Stdin io.Reader

	// Privileged runs the command through sudo unless already root.
	Privileged bool
}

// String returns the command line for logs.
func (c Command) String() string {
	parts := append([]string{c.Name}, c.Args...)
	if c.Privileged {
		parts = append([]string{"sudo"}, parts...)
	}
	return strings.Join(parts, " ")
}

// CommandResult is the outcome of a finished process.
type CommandResult struct {
	// ExitCode is the process exit status.
	ExitCode int

	// Output is interleaved stdout and stderr.
	Output string

	// Duration is the wall time of the process.
	Duration time.Duration
}

// CommandRunner runs external processes. A non-zero exit is reported in the
// result, not as an error; errors mean the process could not be run at all.
type CommandRunner interface {
	Run(ctx context.Context, cmd Command) (CommandResult, error)
	LookPath(name string) (string, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	logger zerolog.Logger
	isRoot bool
}

// NewExecRunner creates a new command runner.
func NewExecRunner(logger zerolog.Logger) *ExecRunner {
	return &ExecRunner{
		logger: logger.With().Str("component", "exec").Logger(),
		isRoot: os.Geteuid() == 0,
	}
}

// Run executes cmd and captures combined output.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) (CommandResult, error) {
	if cmd.Name == "" {
		return CommandResult{}, fmt.Errorf("command is required")
	}

	name, args := cmd.Name, cmd.Args
	if cmd.Privileged && !r.isRoot {
		name, args = "sudo", append([]string{cmd.Name}, cmd.Args...)
	}

	c := exec.CommandContext(ctx, name, args...)
	c.Dir = cmd.Dir
	c.Stdin = cmd.Stdin

	if len(cmd.Env) > 0 {
		keys := make([]string, 0, len(cmd.Env))
		for k := range cmd.Env {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		env := os.Environ()
		for _, k := range keys {
			env = append(env, k+"="+cmd.Env[k])
		}
		c.Env = env
	}

	var output bytes.Buffer
	c.Stdout = &output
	c.Stderr = &output

	start := time.Now()
	err := c.Run()
	result := CommandResult{
		Output:   output.String(),
		Duration: time.Since(start),
	}

	r.logger.Debug().
		Str("command", cmd.String()).
		Dur("duration", result.Duration).
		Err(err).
		Msg("Command finished")

	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.As(err, &exitErr):
			result.ExitCode = exitErr.ExitCode()
		case errors.Is(err, exec.ErrNotFound):
			result.ExitCode = ExitCommandNotFound
			result.Output = fmt.Sprintf("%s: command not found", name)
		default:
			return result, fmt.Errorf("failed to execute %s: %w", name, err)
		}
	}

	return result, nil
}

// LookPath searches PATH for name.
func (r *ExecRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}
