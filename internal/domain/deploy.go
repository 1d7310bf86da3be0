package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DeployWorkflow imports a batch of solutions into one target environment.
//
// The batch is staged in manifest (dependency) order; holding upgrades are
// applied in the exact reverse of that order, most dependent first, and only
// after every solution reached holding state. Upgrading a base solution
// while a dependent still references its old components would break the
// dependent transiently, so the ordering is load-bearing. Execution is
// strictly sequential and fail-fast: a failed stage leaves downstream
// solutions unattempted and the partially staged batch in place for
// inspection; re-running the whole workflow is the retry mechanism.
type DeployWorkflow struct {
	Target    string
	Unmanaged bool
	Manifest  DeploymentManifest

	// ServiceAccounts maps a config key (see
	// [SolutionConfig.ServiceAccountKey]) to a user principal name.
	ServiceAccounts map[string]string

	// Artifacts holds the packed artifact for every manifest solution.
	Artifacts map[string]ArtifactFile

	Env       EnvironmentClient
	Processes ProcessService
	Identity  IdentityResolver
	Journal   DeployRecordRepository
	Hooks     HookRunner

	// Now is the journal clock; defaults to [time.Now].
	Now func() time.Time
}

// Name is the stable workflow name used by durable engines.
func (w *DeployWorkflow) Name() string { return "deploy-solutions" }

// ResolveIdentityInput names the service identity to resolve.
type ResolveIdentityInput struct {
	UPN string
}

// ReadInstalledInput names the solution whose installed state is read.
type ReadInstalledInput struct {
	Solution string
}

// InstalledState is the outcome of reading a target's solution record.
// Installed is nil when the solution is absent.
type InstalledState struct {
	Installed *DeployedSolutionState
}

// PlanImportInput carries everything the import decision depends on.
type PlanImportInput struct {
	Solution        string
	Artifact        SolutionVersion
	Installed       *SolutionVersion
	UnmanagedTarget bool
	BatchSize       int
}

// StageInput asks for one artifact to be staged with a decided mode.
type StageInput struct {
	Solution string
	Artifact ArtifactFile
	Decision ImportDecision
}

// DataMigrationInput is passed to the data-migration hook activity.
type DataMigrationInput struct {
	Target    string
	RunID     string
	Solutions []string
}

// UpgradeInput asks for a staged holding upgrade to be applied.
type UpgradeInput struct {
	Solution string
}

// ActivateProcessesInput names the solution whose processes are activated
// and assigned to the resolved owner.
type ActivateProcessesInput struct {
	Solution string
	Owner    UserRef
}

// ActivateProcessesResult counts what was touched. Assets already active
// and correctly owned are left alone.
type ActivateProcessesResult struct {
	Activated  int
	Reassigned int
}

// PublishInput is the (empty) input of the publish activity.
type PublishInput struct{}

// RecordStateInput journals a per-solution state transition.
type RecordStateInput struct {
	RunID    string
	Solution string
	State    SolutionRunState
	Version  SolutionVersion
}

// ResolveIdentity resolves a service identity UPN to exactly one user.
// Runs before any import side effect; an unresolved or ambiguous identity
// aborts the run.
func (w *DeployWorkflow) ResolveIdentity() Activity[ResolveIdentityInput, UserRef] {
	return NewActivity("resolve-identity", func(ctx context.Context, in ResolveIdentityInput) (UserRef, error) {
		return w.Identity.ResolveUser(ctx, in.UPN)
	})
}

// ReadInstalledState reads the target's record for one solution.
func (w *DeployWorkflow) ReadInstalledState() Activity[ReadInstalledInput, InstalledState] {
	return NewActivity("read-installed-state", func(ctx context.Context, in ReadInstalledInput) (InstalledState, error) {
		state, err := w.Env.InstalledState(ctx, in.Solution)
		if errors.Is(err, ErrNotFound) {
			return InstalledState{}, nil
		}
		if err != nil {
			return InstalledState{}, fmt.Errorf("read installed state of %q: %w", in.Solution, err)
		}
		return InstalledState{Installed: &state}, nil
	})
}

// PlanImport applies the import decision table. Pure, but run as an
// activity so durable engines journal the decision alongside its effects.
func (w *DeployWorkflow) PlanImport() Activity[PlanImportInput, ImportDecision] {
	return NewActivity("plan-import", func(_ context.Context, in PlanImportInput) (ImportDecision, error) {
		return DecideImport(in.Artifact, in.Installed, in.UnmanagedTarget, in.BatchSize), nil
	})
}

// StageSolution imports one artifact in the decided mode.
func (w *DeployWorkflow) StageSolution() Activity[StageInput, struct{}] {
	return NewActivity("stage-solution", func(ctx context.Context, in StageInput) (struct{}, error) {
		if err := w.Env.Stage(ctx, in.Artifact, in.Decision.Mode); err != nil {
			return struct{}{}, fmt.Errorf("stage solution %q (%s/%s): %w", in.Solution, in.Decision.Action, in.Decision.Mode, err)
		}
		return struct{}{}, nil
	})
}

// RunDataMigration runs the data-migration hook phase. It runs after all
// solutions are staged and before any holding upgrade is applied, while old
// and new component sets may still coexist.
func (w *DeployWorkflow) RunDataMigration() Activity[DataMigrationInput, struct{}] {
	return NewActivity("run-data-migration", func(ctx context.Context, in DataMigrationInput) (struct{}, error) {
		if w.Hooks == nil {
			return struct{}{}, nil
		}
		err := w.Hooks.RunPhase(ctx, HookDataMigration, HookContext{DataMigration: &DataMigrationHookContext{
			Target:    in.Target,
			RunID:     in.RunID,
			Solutions: in.Solutions,
		}})
		return struct{}{}, err
	})
}

// UpgradeSolution applies a staged holding upgrade, deleting superseded
// components.
func (w *DeployWorkflow) UpgradeSolution() Activity[UpgradeInput, struct{}] {
	return NewActivity("upgrade-solution", func(ctx context.Context, in UpgradeInput) (struct{}, error) {
		if err := w.Env.Upgrade(ctx, in.Solution); err != nil {
			return struct{}{}, fmt.Errorf("upgrade solution %q: %w", in.Solution, err)
		}
		return struct{}{}, nil
	})
}

// ActivateProcesses (re)activates a solution's processes and assigns them
// to the designated owner, skipping assets already correct.
func (w *DeployWorkflow) ActivateProcesses() Activity[ActivateProcessesInput, ActivateProcessesResult] {
	return NewActivity("activate-processes", func(ctx context.Context, in ActivateProcessesInput) (ActivateProcessesResult, error) {
		var res ActivateProcessesResult
		procs, err := w.Processes.ListProcesses(ctx, in.Solution)
		if err != nil {
			return res, fmt.Errorf("list processes of %q: %w", in.Solution, err)
		}
		for _, p := range procs {
			if p.OwnerID != in.Owner.ID {
				if err := w.Processes.AssignProcessOwner(ctx, p.ID, in.Owner.ID); err != nil {
					return res, fmt.Errorf("assign process %q to %q: %w", p.Name, in.Owner.UPN, err)
				}
				res.Reassigned++
			}
			if !p.Active {
				if err := w.Processes.ActivateProcess(ctx, p.ID); err != nil {
					return res, fmt.Errorf("activate process %q: %w", p.Name, err)
				}
				res.Activated++
			}
		}
		return res, nil
	})
}

// PublishCustomizations publishes all customizations in the target.
func (w *DeployWorkflow) PublishCustomizations() Activity[PublishInput, struct{}] {
	return NewActivity("publish", func(ctx context.Context, _ PublishInput) (struct{}, error) {
		return struct{}{}, w.Env.Publish(ctx)
	})
}

// RecordState journals a solution's state transition. Upserts, so replays
// and re-runs converge.
func (w *DeployWorkflow) RecordState() Activity[RecordStateInput, struct{}] {
	return NewActivity("record-state", func(ctx context.Context, in RecordStateInput) (struct{}, error) {
		return struct{}{}, w.Journal.Put(ctx, DeployRecord{
			RunID:     in.RunID,
			Solution:  in.Solution,
			Target:    w.Target,
			State:     in.State,
			Version:   in.Version,
			UpdatedAt: w.now(),
		})
	})
}

type stagedSolution struct {
	Config   SolutionConfig
	Decision ImportDecision
	Version  SolutionVersion
}

// Run executes the deploy pipeline. runID identifies the journal scope; in
// durable engines it is also the workflow instance key.
func (w *DeployWorkflow) Run(r DurableRunner, runID string) (struct{}, error) {
	var done struct{}

	// Resolve every distinct service identity up front, before any side
	// effect against the target.
	owners := make(map[string]UserRef)
	for _, key := range w.Manifest.ServiceAccountKeys() {
		upn := w.ServiceAccounts[key]
		if upn == "" {
			return done, fmt.Errorf("%w: config key %q is empty", ErrIdentityUnresolved, key)
		}
		owner, err := RunActivity(r, w.ResolveIdentity(), ResolveIdentityInput{UPN: upn})
		if err != nil {
			return done, err
		}
		owners[key] = owner
	}

	batch := len(w.Manifest.Solutions)
	var staged []stagedSolution

	for _, sc := range w.Manifest.Solutions {
		artifact, ok := w.Artifacts[sc.Name]
		if !ok {
			return done, fmt.Errorf("%w: no artifact for solution %q", ErrInvalidArgument, sc.Name)
		}

		installed, err := RunActivity(r, w.ReadInstalledState(), ReadInstalledInput{Solution: sc.Name})
		if err != nil {
			return done, err
		}
		var installedVersion *SolutionVersion
		if installed.Installed != nil {
			v := installed.Installed.InstalledVersion
			installedVersion = &v
		}

		decision, err := RunActivity(r, w.PlanImport(), PlanImportInput{
			Solution:        sc.Name,
			Artifact:        artifact.Version,
			Installed:       installedVersion,
			UnmanagedTarget: w.Unmanaged,
			BatchSize:       batch,
		})
		if err != nil {
			return done, err
		}

		if decision.Action == ImportSkip {
			if err := w.record(r, runID, sc.Name, SolutionSkipped, artifact.Version); err != nil {
				return done, err
			}
			continue
		}

		if decision.Mode == ModeUnmanaged && artifact.UnmanagedPath == "" {
			return done, fmt.Errorf("%w: no unmanaged artifact for solution %q", ErrInvalidArgument, sc.Name)
		}

		// Fail-fast: a failed stage leaves downstream solutions
		// unattempted, preserving the dependency-order invariant.
		if _, err := RunActivity(r, w.StageSolution(), StageInput{Solution: sc.Name, Artifact: artifact, Decision: decision}); err != nil {
			return done, err
		}
		if err := w.record(r, runID, sc.Name, SolutionStaged, artifact.Version); err != nil {
			return done, err
		}
		// A direct upgrade completes inside the stage call, so the
		// solution reaches upgraded state with no separate apply step.
		if decision.Action == ImportUpgrade && decision.Mode == ModeDirect {
			if err := w.record(r, runID, sc.Name, SolutionUpgraded, artifact.Version); err != nil {
				return done, err
			}
		}
		staged = append(staged, stagedSolution{Config: sc, Decision: decision, Version: artifact.Version})
	}

	names := make([]string, len(staged))
	for i, s := range staged {
		names[i] = s.Config.Name
	}
	if _, err := RunActivity(r, w.RunDataMigration(), DataMigrationInput{Target: w.Target, RunID: runID, Solutions: names}); err != nil {
		return done, err
	}

	for i := len(staged) - 1; i >= 0; i-- {
		s := staged[i]
		if s.Decision.Action != ImportUpgrade || s.Decision.Mode != ModeHolding {
			continue
		}
		if _, err := RunActivity(r, w.UpgradeSolution(), UpgradeInput{Solution: s.Config.Name}); err != nil {
			return done, err
		}
		if err := w.record(r, runID, s.Config.Name, SolutionUpgraded, s.Version); err != nil {
			return done, err
		}
	}

	for _, s := range staged {
		key := s.Config.ServiceAccountKey
		if key == "" {
			key = DefaultServiceAccountKey
		}
		in := ActivateProcessesInput{Solution: s.Config.Name, Owner: owners[key]}
		if _, err := RunActivity(r, w.ActivateProcesses(), in); err != nil {
			return done, err
		}
		if err := w.record(r, runID, s.Config.Name, SolutionProcessesActivated, s.Version); err != nil {
			return done, err
		}
	}

	if _, err := RunActivity(r, w.PublishCustomizations(), PublishInput{}); err != nil {
		return done, err
	}
	for _, s := range staged {
		if err := w.record(r, runID, s.Config.Name, SolutionPublished, s.Version); err != nil {
			return done, err
		}
	}
	return done, nil
}

func (w *DeployWorkflow) record(r DurableRunner, runID, solution string, state SolutionRunState, v SolutionVersion) error {
	_, err := RunActivity(r, w.RecordState(), RecordStateInput{RunID: runID, Solution: solution, State: state, Version: v})
	return err
}

func (w *DeployWorkflow) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}
