package domain

import (
	"fmt"
	"strings"
)

// HookPhase names a point in a pipeline where external hook commands run.
type HookPhase string

const (
	HookPreExport     HookPhase = "pre-export"
	HookPostExport    HookPhase = "post-export"
	HookPreBuild      HookPhase = "pre-build"
	HookPostBuild     HookPhase = "post-build"
	HookPreDeploy     HookPhase = "pre-deploy"
	HookPostDeploy    HookPhase = "post-deploy"
	HookDataMigration HookPhase = "data-migration"
)

// HookCommand is one external-process invocation registered for a phase.
type HookCommand struct {
	Program string   `yaml:"program"`
	Args    []string `yaml:"args"`
}

// DependencySpec is a version specifier for a required dependency:
// an exact version, empty for latest, or "prerelease".
type DependencySpec string

const DependencyPrerelease DependencySpec = "prerelease"

// Valid reports whether the specifier is one of the accepted forms.
func (s DependencySpec) Valid() bool {
	if s == "" || s == DependencyPrerelease {
		return true
	}
	_, err := ParseVersion(string(s))
	return err == nil
}

// DeploymentManifest is the declarative manifest a repository carries. It is
// read once per pipeline run and immutable afterwards. Solutions are listed
// in dependency order, dependencies first; that order drives export, build
// and staging, and its reverse drives upgrades.
type DeploymentManifest struct {
	Solutions    []SolutionConfig            `yaml:"solutions"`
	Hooks        map[HookPhase][]HookCommand `yaml:"hooks"`
	Dependencies map[string]DependencySpec   `yaml:"dependencies"`
}

// Validate checks the manifest before any external side effect. Violations
// are configuration errors and wrap [ErrInvalidArgument].
func (m DeploymentManifest) Validate() error {
	if len(m.Solutions) == 0 {
		return fmt.Errorf("%w: manifest lists no solutions", ErrInvalidArgument)
	}
	seen := make(map[string]bool, len(m.Solutions))
	for i, s := range m.Solutions {
		if strings.TrimSpace(s.Name) == "" {
			return fmt.Errorf("%w: solution %d has no name", ErrInvalidArgument, i)
		}
		if seen[s.Name] {
			return fmt.Errorf("%w: duplicate solution %q", ErrInvalidArgument, s.Name)
		}
		seen[s.Name] = true
	}
	for name, spec := range m.Dependencies {
		if !spec.Valid() {
			return fmt.Errorf("%w: dependency %q has invalid version specifier %q", ErrInvalidArgument, name, spec)
		}
	}
	return nil
}

// ServiceAccountKeys returns the distinct config keys naming service
// identities across all solutions, applying [DefaultServiceAccountKey]
// where an entry leaves it blank. Order follows first appearance.
func (m DeploymentManifest) ServiceAccountKeys() []string {
	var keys []string
	seen := make(map[string]bool)
	for _, s := range m.Solutions {
		k := s.ServiceAccountKey
		if k == "" {
			k = DefaultServiceAccountKey
		}
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	return keys
}

// Solution returns the manifest entry for name.
func (m DeploymentManifest) Solution(name string) (SolutionConfig, error) {
	for _, s := range m.Solutions {
		if s.Name == name {
			return s, nil
		}
	}
	return SolutionConfig{}, fmt.Errorf("solution %q: %w", name, ErrNotFound)
}
