package engine

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Skip reasons recorded on skipped outcomes.
const (
	SkipDependencyFailed = "dependency unit failed"
	SkipRunCancelled     = "run cancelled"
	SkipDryRun           = "dry run"
)

// Runner converges a catalog one unit at a time.
//
// Units run sequentially in stage order because most install actions take a
// machine-wide package database lock. A unit whose required dependency did
// not succeed is skipped; everything else is attempted regardless of earlier
// failures.
type Runner struct {
	planner   *Planner
	detector  *Detector
	installer *Installer
	observer  Observer
	logger    zerolog.Logger
}

// RunOptions controls a single run.
type RunOptions struct {
	// DryRun detects every unit but never installs; units that would change
	// are recorded as skipped.
	DryRun bool
}

// NewRunner creates a runner over the registered backends. observer may be nil.
func NewRunner(backends *BackendRegistry, observer Observer, logger zerolog.Logger) *Runner {
	detector := NewDetector(backends, logger)
	return &Runner{
		planner:   NewPlanner(logger),
		detector:  detector,
		installer: NewInstaller(backends, detector, logger),
		observer:  observer,
		logger:    logger,
	}
}

// Plan exposes the runner's planner.
func (r *Runner) Plan(catalog *Catalog) (*Plan, error) {
	return r.planner.Plan(catalog)
}

// Run converges the catalog. The returned error is non-nil only for
// configuration errors found while planning, in which case nothing ran.
// Unit failures are recorded in the report.
//
// Cancelling ctx stops the run after the in-flight unit finishes; the
// remaining units are recorded as skipped and the report is marked cancelled.
func (r *Runner) Run(ctx context.Context, catalog *Catalog, opts RunOptions) (*RunReport, error) {
	plan, err := r.planner.Plan(catalog)
	if err != nil {
		return nil, err
	}

	report := &RunReport{
		RunID:     uuid.New().String(),
		StartedAt: time.Now(),
		Results:   make([]UnitResult, 0, plan.Len()),
		DryRun:    opts.DryRun,
	}
	state := NewState(catalog)
	outcomes := make(map[string]Outcome, plan.Len())

	log := r.logger.With().Str("run_id", report.RunID).Logger()
	log.Info().Int("units", plan.Len()).Int("stages", len(plan.Stages)).Bool("dry_run", opts.DryRun).
		Msg("Run started")
	r.publish(ctx, Event{Type: EventTypeRunStarted, RunID: report.RunID, Message: "Run started"})

	for _, stage := range plan.Stages {
		for _, unit := range stage.Units {
			var res UnitResult
			switch {
			case ctx.Err() != nil:
				if !report.Cancelled {
					log.Warn().Str("unit", unit.ID).Msg("Run cancelled, skipping remaining units")
				}
				report.Cancelled = true
				res = skipped(unit, stage.Index, SkipRunCancelled)
			default:
				if dep, failed := failedDependency(unit, outcomes); failed {
					log.Warn().Str("unit", unit.ID).Str("dependency", dep).Msg("Skipping unit, dependency did not succeed")
					res = skipped(unit, stage.Index, SkipDependencyFailed+": "+dep)
				} else {
					res = r.converge(ctx, report.RunID, unit, stage.Index, state, opts)
				}
			}

			outcomes[unit.ID] = res.Outcome
			if res.Outcome.Kind.IsSuccess() {
				state.MarkPresent(unit.ID)
			}
			report.record(res)

			resCopy := res
			r.publish(ctx, Event{
				Type:    EventTypeUnitCompleted,
				RunID:   report.RunID,
				Unit:    &resCopy.Unit,
				Result:  &resCopy,
				Message: string(res.Outcome.Kind),
			})
		}
	}

	report.CompletedAt = time.Now()
	log.Info().
		Int("installed", report.Counts.Installed).
		Int("already_present", report.Counts.AlreadyPresent).
		Int("upgraded", report.Counts.Upgraded).
		Int("failed", report.Counts.Failed).
		Int("skipped", report.Counts.Skipped).
		Bool("cancelled", report.Cancelled).
		Dur("duration", report.Duration()).
		Msg("Run completed")
	r.publish(ctx, Event{Type: EventTypeRunCompleted, RunID: report.RunID, Report: report, Message: "Run completed"})

	return report, nil
}

// converge detects and, if needed, installs a single unit. The unit's work is
// detached from ctx cancellation so an interrupt never leaves it half done.
func (r *Runner) converge(ctx context.Context, runID string, unit Unit, stage int, state *State, opts RunOptions) UnitResult {
	unitCtx := context.WithoutCancel(ctx)
	start := time.Now()

	u := unit
	r.publish(ctx, Event{Type: EventTypeUnitStarted, RunID: runID, Unit: &u, Message: "Unit started"})

	det := r.detector.Detect(unitCtx, unit, state)
	res := UnitResult{Unit: unit, Stage: stage, Detection: det}

	switch {
	case det.Presence == PresenceCurrent:
		res.Outcome = Outcome{Kind: OutcomeAlreadyPresent}
	case opts.DryRun:
		res.Outcome = Outcome{Kind: OutcomeSkipped, Reason: SkipDryRun + ": would " + string(actionFor(det))}
	default:
		res.Outcome = r.installer.Install(unitCtx, unit, det, state)
	}
	res.Outcome.Duration = time.Since(start)

	for _, w := range append(append([]string(nil), det.Warnings...), res.Outcome.Warnings...) {
		r.publish(ctx, Event{Type: EventTypeWarning, RunID: runID, Unit: &u, Message: w})
	}

	return res
}

// Survey detects every unit without installing anything and without
// stopping at failed dependencies. Generated files are compared against the
// capability set of units detected present.
func (r *Runner) Survey(ctx context.Context, catalog *Catalog) ([]UnitResult, error) {
	plan, err := r.planner.Plan(catalog)
	if err != nil {
		return nil, err
	}

	state := NewState(catalog)
	results := make([]UnitResult, 0, plan.Len())
	for _, stage := range plan.Stages {
		for _, unit := range stage.Units {
			if ctx.Err() != nil {
				return results, NewCancelledError("survey cancelled", ctx.Err()).WithCode(ErrCodeCancelled)
			}
			det := r.detector.Detect(ctx, unit, state)
			if det.Presence.IsPresent() {
				state.MarkPresent(unit.ID)
			}
			results = append(results, UnitResult{Unit: unit, Stage: stage.Index, Detection: det})
		}
	}
	return results, nil
}

func (r *Runner) publish(ctx context.Context, event Event) {
	if r.observer == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	r.observer.Observe(ctx, event)
}

// failedDependency returns the first required dependency that did not succeed.
// Dry-run skips do not count as failures.
func failedDependency(unit Unit, outcomes map[string]Outcome) (string, bool) {
	for _, dep := range unit.DependsOn {
		o, ok := outcomes[dep]
		if !ok || o.Kind.IsSuccess() {
			continue
		}
		if o.Kind == OutcomeSkipped && strings.HasPrefix(o.Reason, SkipDryRun) {
			continue
		}
		return dep, true
	}
	return "", false
}

func skipped(unit Unit, stage int, reason string) UnitResult {
	return UnitResult{
		Unit:    unit,
		Stage:   stage,
		Outcome: Outcome{Kind: OutcomeSkipped, Reason: reason},
	}
}

func actionFor(det Detection) Action {
	if det.Presence == PresenceStale {
		return ActionUpgrade
	}
	return ActionInstall
}
