package commands

import (
	"errors"
	"fmt"

	"github.com/andrew-tomago/dotfiles/pkg/engine"
)

// Process exit codes.
const (
	ExitOK            = 0
	ExitFatal         = 1
	ExitInstallFailed = 2
	ExitRenderFailed  = 3
)

// ExitError carries a specific exit code out of a command.
type ExitError struct {
	Code int
	Err  error

	// Reported is set when the failure was already printed, e.g. in a run
	// summary, so main should not print it again.
	Reported bool
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExitCode maps a command error to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFatal
}

// reportExit returns the error that yields the exit code for a finished
// run, or nil when every unit converged.
func reportExit(report *engine.RunReport) error {
	switch {
	case report.OnlyRenderFailures():
		return &ExitError{
			Code:     ExitRenderFailed,
			Err:      fmt.Errorf("%d generated files could not be written", report.Counts.Failed),
			Reported: true,
		}
	case report.HasFailures():
		return &ExitError{
			Code:     ExitInstallFailed,
			Err:      fmt.Errorf("%d units failed", report.Counts.Failed),
			Reported: true,
		}
	default:
		return nil
	}
}
