package domain

import "time"

// SolutionConfig is one entry of the deployment manifest. The manifest list
// order encodes dependency order: solutions a later entry depends on come
// first.
type SolutionConfig struct {
	// Name is the solution unique name. Required, unique within the manifest.
	Name string `yaml:"name"`

	// DeployUnmanaged requests an unmanaged artifact to be built and
	// deployed in addition to the managed one.
	DeployUnmanaged bool `yaml:"deployUnmanaged"`

	// ServiceAccountKey names the config entry holding the UPN of the
	// identity that owns this solution's processes after import.
	ServiceAccountKey string `yaml:"serviceAccountKey"`
}

// DefaultServiceAccountKey is used when a solution entry does not name one.
const DefaultServiceAccountKey = "ServiceAccountUpn"

// DeployedSolutionState is what a target environment reports about an
// installed solution. Owned by the platform, read fresh at deploy time.
type DeployedSolutionState struct {
	UniqueName       string
	InstalledVersion SolutionVersion
	IsManaged        bool
}

// SolutionRunState is the per-solution state machine within one deploy run.
// Transitions are strictly forward; there are no automatic retries, and
// re-running the whole deploy is the retry mechanism (safe because the
// decision table skips already-current solutions and journal writes upsert).
type SolutionRunState string

const (
	SolutionNotStaged          SolutionRunState = "not-staged"
	SolutionStaged             SolutionRunState = "staged"
	SolutionUpgraded           SolutionRunState = "upgraded"
	SolutionProcessesActivated SolutionRunState = "processes-activated"
	SolutionPublished          SolutionRunState = "published"

	// SolutionSkipped records a Skip decision: the target already held the
	// artifact version and the solution was left untouched.
	SolutionSkipped SolutionRunState = "skipped"
)

// DeployRecord journals the state a solution reached within a deploy run.
type DeployRecord struct {
	RunID     string
	Solution  string
	Target    string
	State     SolutionRunState
	Version   SolutionVersion
	UpdatedAt time.Time
}

// ArtifactFile locates a packed solution artifact produced by the build
// phase, together with the version recorded in its manifest.
type ArtifactFile struct {
	Solution string
	Path     string
	Version  SolutionVersion
	// UnmanagedPath is set when the solution is configured with
	// DeployUnmanaged and an unmanaged artifact was packed alongside.
	UnmanagedPath string
}

// UserRef identifies a resolved platform user.
type UserRef struct {
	ID  string
	UPN string
}

// Process is a workflow asset belonging to a solution in a target
// environment.
type Process struct {
	ID      string
	Name    string
	OwnerID string
	Active  bool
}
