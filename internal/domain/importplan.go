package domain

// ImportAction is the kind of import performed for one solution.
type ImportAction string

const (
	// ImportSkip means the target already holds exactly this version;
	// nothing is imported.
	ImportSkip ImportAction = "skip"

	// ImportInstall means the solution is not yet present in the target.
	ImportInstall ImportAction = "install"

	// ImportUpdate means an in-place update that preserves unmanaged
	// customization layers in the target.
	ImportUpdate ImportAction = "update"

	// ImportUpgrade means a full upgrade that deletes superseded
	// components once applied.
	ImportUpgrade ImportAction = "upgrade"
)

// ImportMode qualifies how an import action is carried out.
type ImportMode string

const (
	// ModeNone accompanies [ImportSkip]; no import happens.
	ModeNone ImportMode = "none"

	// ModeManaged imports the managed artifact.
	ModeManaged ImportMode = "managed"

	// ModeUnmanaged overwrites with the unmanaged artifact. Development
	// targets are always fully overwritten.
	ModeUnmanaged ImportMode = "unmanaged"

	// ModeHolding stages the upgrade as a side-by-side holding solution.
	// Reversible; superseded components are removed only when the upgrade
	// is applied later, after every solution in the batch reached holding
	// state.
	ModeHolding ImportMode = "holding"

	// ModeDirect applies the upgrade in one step. Only safe when the batch
	// has a single solution, so no cross-solution ordering concern exists.
	ModeDirect ImportMode = "direct"
)

// ImportDecision is the chosen action and mode for one solution. Derived,
// never persisted; computed fresh on every deploy run so re-runs converge.
type ImportDecision struct {
	Action ImportAction
	Mode   ImportMode
}

// DecideImport chooses the cheapest safe import action for a solution.
//
// installed is nil when the solution is absent from the target. The rules
// are evaluated strictly in order:
//
//  1. absent from target: fresh install
//  2. unmanaged (development) target: always overwrite, even same version
//  3. identical version: skip
//  4. same major and minor: in-place update
//  5. otherwise: upgrade, via a holding solution unless the batch holds a
//     single solution
func DecideImport(artifact SolutionVersion, installed *SolutionVersion, unmanagedTarget bool, batchSize int) ImportDecision {
	if installed == nil {
		mode := ModeManaged
		if unmanagedTarget {
			mode = ModeUnmanaged
		}
		return ImportDecision{Action: ImportInstall, Mode: mode}
	}
	if unmanagedTarget {
		return ImportDecision{Action: ImportUpdate, Mode: ModeUnmanaged}
	}
	if artifact.Compare(*installed) == 0 {
		return ImportDecision{Action: ImportSkip, Mode: ModeNone}
	}
	if artifact.SameMajorMinor(*installed) {
		return ImportDecision{Action: ImportUpdate, Mode: ModeManaged}
	}
	if batchSize == 1 {
		return ImportDecision{Action: ImportUpgrade, Mode: ModeDirect}
	}
	return ImportDecision{Action: ImportUpgrade, Mode: ModeHolding}
}
