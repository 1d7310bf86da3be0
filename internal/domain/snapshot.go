package domain

import (
	"context"
	"fmt"
)

// SolutionSnapshot identifies a packaged solution artifact: the full set of
// components (fields, forms, logic assets) a solution contained at a point
// in time. Snapshots are owned transiently during export and discarded
// after comparison.
type SolutionSnapshot struct {
	Solution string
	// Path locates the packaged archive on disk.
	Path string
}

// ComponentComparer is the external component-diff oracle. The structural
// rules deciding whether the left snapshot is a compatible subset of the
// right one belong to the platform tooling and are not reimplemented here.
type ComponentComparer interface {
	// CompareComponents reports whether new contains every component of
	// old with an equal or compatible definition.
	CompareComponents(ctx context.Context, old, new SolutionSnapshot) (isAdditiveSuperset bool, err error)
}

// ClassifyChange classifies the change between two snapshots of the same
// solution. An absent old snapshot means a first-time export, which has no
// prior baseline to regress against and is therefore additive. Comparison
// failures (for example a corrupt archive) are fatal for this solution's
// export; callers must isolate the failure rather than abort sibling
// solutions in the same run.
func ClassifyChange(ctx context.Context, cmp ComponentComparer, old *SolutionSnapshot, new SolutionSnapshot) (ChangeClass, error) {
	if old == nil {
		return ChangeAdditive, nil
	}
	additive, err := cmp.CompareComponents(ctx, *old, new)
	if err != nil {
		return "", fmt.Errorf("compare snapshots for %q: %w", new.Solution, err)
	}
	if additive {
		return ChangeAdditive, nil
	}
	return ChangeBreaking, nil
}
