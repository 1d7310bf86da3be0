package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// SolutionVersion is a Dataverse solution version: a 4-component ordered
// tuple compared lexicographically. Unlike semver there is no prerelease
// or build metadata; all four components are plain non-negative integers.
type SolutionVersion struct {
	Major    int
	Minor    int
	Build    int
	Revision int
}

// ParseVersion parses a dotted "Major.Minor.Build.Revision" string.
// Anything other than exactly four non-negative integer components is a
// configuration error and wraps [ErrMalformedVersion].
func ParseVersion(s string) (SolutionVersion, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return SolutionVersion{}, fmt.Errorf("%w: %q must have 4 components", ErrMalformedVersion, s)
	}
	var c [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return SolutionVersion{}, fmt.Errorf("%w: %q component %d is not a non-negative integer", ErrMalformedVersion, s, i+1)
		}
		c[i] = n
	}
	return SolutionVersion{Major: c[0], Minor: c[1], Build: c[2], Revision: c[3]}, nil
}

func (v SolutionVersion) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", v.Major, v.Minor, v.Build, v.Revision)
}

// Compare returns -1, 0 or 1 comparing v against o lexicographically over
// (Major, Minor, Build, Revision).
func (v SolutionVersion) Compare(o SolutionVersion) int {
	pairs := [4][2]int{
		{v.Major, o.Major},
		{v.Minor, o.Minor},
		{v.Build, o.Build},
		{v.Revision, o.Revision},
	}
	for _, p := range pairs {
		if p[0] < p[1] {
			return -1
		}
		if p[0] > p[1] {
			return 1
		}
	}
	return 0
}

// SameMajorMinor reports whether two versions agree on the components that
// signal structural change. Matching major and minor is the precondition
// for the in-place Update fast path during import.
func (v SolutionVersion) SameMajorMinor(o SolutionVersion) bool {
	return v.Major == o.Major && v.Minor == o.Minor
}

// ChangeClass classifies a detected solution change.
type ChangeClass string

const (
	// ChangeAdditive means nothing was removed or structurally altered:
	// every component of the old snapshot survives compatibly in the new one.
	ChangeAdditive ChangeClass = "additive"

	// ChangeBreaking means components were removed or altered in a way
	// downstream consumers would notice.
	ChangeBreaking ChangeClass = "breaking"
)

// NextVersion advances a solution version after a change of the given class.
//
// Additive changes bump only the revision; major, minor and build are left
// untouched (build is floored at zero in case it was never set). Breaking
// changes bump the minor and reset build and revision; the major is never
// advanced automatically.
func NextVersion(v SolutionVersion, class ChangeClass) SolutionVersion {
	switch class {
	case ChangeBreaking:
		return SolutionVersion{
			Major: v.Major,
			Minor: max(0, v.Minor) + 1,
		}
	default:
		return SolutionVersion{
			Major:    v.Major,
			Minor:    v.Minor,
			Build:    max(0, v.Build),
			Revision: max(0, v.Revision) + 1,
		}
	}
}
