package domain

import "context"

// SolutionExporter exports solutions from a development environment and
// unpacks snapshots into source control. Implemented by the platform CLI
// adapter; the packing format is opaque to the domain.
type SolutionExporter interface {
	// Export produces a snapshot of the named solution as currently held
	// in the connected development environment.
	Export(ctx context.Context, solution string) (SolutionSnapshot, error)

	// Unpack expands a snapshot into a source-controlled folder.
	Unpack(ctx context.Context, snapshot SolutionSnapshot, dir string) error
}

// PackMode selects the flavor of a packed artifact.
type PackMode string

const (
	PackManaged   PackMode = "managed"
	PackUnmanaged PackMode = "unmanaged"
)

// SolutionPacker packs a source-controlled snapshot folder into a
// deployable artifact. Requires no platform connection.
type SolutionPacker interface {
	Pack(ctx context.Context, solution, dir string, mode PackMode) (SolutionSnapshot, error)
}

// SnapshotVersioner reads and updates the version recorded inside a
// source-controlled snapshot folder, keeping it synchronized with the
// environment.
type SnapshotVersioner interface {
	ReadVersion(ctx context.Context, dir string) (SolutionVersion, error)
	WriteVersion(ctx context.Context, dir string, v SolutionVersion) error
}

// EnvironmentClient performs solution operations against one named target
// environment. Every call is awaited to completion; the pipeline never
// overlaps calls within a run.
type EnvironmentClient interface {
	// InstalledState reports the installed solution, or wraps
	// [ErrNotFound] when the solution is absent from the target.
	InstalledState(ctx context.Context, solution string) (DeployedSolutionState, error)

	// SetVersion records a version on the environment's solution record.
	SetVersion(ctx context.Context, solution string, v SolutionVersion) error

	// Stage imports an artifact in the given mode. For [ModeHolding] the
	// import is side by side and reversible; superseded components remain
	// until [EnvironmentClient.Upgrade] is applied.
	Stage(ctx context.Context, artifact ArtifactFile, mode ImportMode) error

	// Upgrade applies a previously staged holding upgrade, deleting
	// superseded components.
	Upgrade(ctx context.Context, solution string) error

	// Publish publishes all customizations in the environment.
	Publish(ctx context.Context) error
}

// ProcessService inspects and mutates the process/workflow assets of a
// solution in a target environment.
type ProcessService interface {
	ListProcesses(ctx context.Context, solution string) ([]Process, error)
	ActivateProcess(ctx context.Context, id string) error
	AssignProcessOwner(ctx context.Context, id, ownerID string) error
}

// IdentityResolver resolves a user principal name to exactly one platform
// user. Implementations must wrap [ErrIdentityUnresolved] when the UPN
// matches zero or more than one user.
type IdentityResolver interface {
	ResolveUser(ctx context.Context, upn string) (UserRef, error)
}

// DeployRecordRepository journals per-solution state transitions for deploy
// runs. Put upserts on (runID, solution) so re-runs are safe.
type DeployRecordRepository interface {
	Put(ctx context.Context, record DeployRecord) error
	Get(ctx context.Context, runID, solution string) (DeployRecord, error)
	ListByRun(ctx context.Context, runID string) ([]DeployRecord, error)
	DeleteByRun(ctx context.Context, runID string) error
}

// HookRunner executes the external hook commands registered for a phase,
// sequentially and fail-fast.
type HookRunner interface {
	RunPhase(ctx context.Context, phase HookPhase, hctx HookContext) error
}

// HookContext is the strongly-typed context handed to hook processes.
// Exactly one of the phase-specific fields is set, matching the phase.
type HookContext struct {
	Export        *ExportHookContext
	Build         *BuildHookContext
	Deploy        *DeployHookContext
	DataMigration *DataMigrationHookContext
}

// ExportHookContext is passed to pre/post-export hooks.
type ExportHookContext struct {
	Environment   string
	Solutions     []string
	CommitMessage string
}

// BuildHookContext is passed to pre/post-build hooks.
type BuildHookContext struct {
	Solutions []string
	OutputDir string
}

// DeployHookContext is passed to pre/post-deploy hooks.
type DeployHookContext struct {
	Target    string
	Unmanaged bool
	Solutions []string
}

// DataMigrationHookContext is passed to data-migration hooks, which run
// while old and new component sets may coexist in the target.
type DataMigrationHookContext struct {
	Target    string
	RunID     string
	Solutions []string
}
