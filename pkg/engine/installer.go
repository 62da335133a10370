package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// PostInstallVerificationFailed is the reason recorded when an install
// reports success but the unit is still absent.
const PostInstallVerificationFailed = "post-install verification failed"

// Installer runs install and upgrade actions and verifies their effect.
type Installer struct {
	backends *BackendRegistry
	detector *Detector
	logger   zerolog.Logger
}

// NewInstaller creates an installer. The detector is used for the
// mandatory post-install detection pass.
func NewInstaller(backends *BackendRegistry, detector *Detector, logger zerolog.Logger) *Installer {
	return &Installer{backends: backends, detector: detector, logger: logger}
}

// Install converges a unit that was detected as absent or stale.
// Captured output is kept on the outcome only when the unit fails.
func (i *Installer) Install(ctx context.Context, unit Unit, detection Detection, state *State) Outcome {
	start := time.Now()
	action := ActionInstall
	success := OutcomeInstalled
	if detection.Presence == PresenceStale {
		action = ActionUpgrade
		success = OutcomeUpgraded
	}

	log := i.logger.With().Str("unit", unit.ID).Str("action", string(action)).Logger()

	backend, err := i.backends.Get(unit.Kind)
	if err != nil {
		return failedOutcome(unit, action, err, "", start)
	}

	log.Info().Str("kind", string(unit.Kind)).Msg("Running install action")

	res, err := backend.Execute(ctx, unit, action, state)
	if err != nil {
		log.Error().Err(err).Msg("Install action failed")
		return failedOutcome(unit, action, err, res.Output, start)
	}
	if res.ExitCode != 0 {
		log.Error().Int("exit_code", res.ExitCode).Msg("Install action exited non-zero")
		exitErr := NewInstallError(fmt.Sprintf("exit status %d", res.ExitCode), nil).
			WithCode(ErrCodeExitStatus).WithUnit(unit.ID).WithOperation(string(action)).
			WithDetail("exit_code", res.ExitCode)
		return failedOutcome(unit, action, exitErr, res.Output, start)
	}

	post := i.detector.Detect(ctx, unit, state)
	outcome := Outcome{Kind: success, Warnings: post.Warnings}

	switch post.Presence {
	case PresenceAbsent:
		log.Error().Msg("Unit still absent after install")
		verr := NewInstallError(PostInstallVerificationFailed, nil).
			WithCode(ErrCodeVerification).WithUnit(unit.ID).WithOperation(string(action))
		return failedOutcome(unit, action, verr, res.Output, start)
	case PresenceStale:
		outcome.Warnings = append(outcome.Warnings, "still stale after "+string(action))
	}

	outcome.Duration = time.Since(start)
	log.Info().Str("outcome", string(outcome.Kind)).Dur("duration", outcome.Duration).Msg("Unit converged")
	return outcome
}

// failedOutcome builds a failed outcome, keeping the error's class when the
// backend already classified it (render failures stay render failures).
func failedOutcome(unit Unit, action Action, err error, output string, start time.Time) Outcome {
	var eerr *EngineError
	if !errors.As(err, &eerr) {
		eerr = NewInstallError("install action failed", err).WithCode(ErrCodeBackendFailed)
	}
	if eerr.Unit == "" {
		eerr.WithUnit(unit.ID)
	}
	if eerr.Operation == "" {
		eerr.WithOperation(string(action))
	}

	reason := eerr.Message
	if eerr.Code == ErrCodeBackendFailed && eerr.Err != nil {
		reason = eerr.Err.Error()
	}

	return Outcome{
		Kind:     OutcomeFailed,
		Reason:   reason,
		Output:   output,
		Error:    eerr,
		Duration: time.Since(start),
	}
}
