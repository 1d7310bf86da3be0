package application

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/rnwood/alm4dataverse/internal/domain"
)

// BuildService packs source-controlled snapshots into deployable artifacts.
// It needs no platform connection; packing is a local operation.
type BuildService struct {
	Manifest domain.DeploymentManifest

	Packer    domain.SolutionPacker
	Versioner domain.SnapshotVersioner
	Hooks     domain.HookRunner

	SnapshotDir string
	ArtifactDir string

	// Unmanaged additionally packs an unmanaged artifact for every
	// solution, for deploys that target a development environment.
	Unmanaged bool

	Log *logrus.Logger
}

func (s *BuildService) log() *logrus.Logger {
	if s.Log != nil {
		return s.Log
	}
	return logrus.StandardLogger()
}

// Run packs every manifest solution in order. Solutions marked
// DeployUnmanaged get an unmanaged artifact next to the managed one.
// Building is fail-fast: a deploy with a partially built batch would
// violate the all-or-nothing staging invariant anyway.
func (s *BuildService) Run(ctx context.Context) (map[string]domain.ArtifactFile, error) {
	if err := s.Manifest.Validate(); err != nil {
		return nil, err
	}

	hctx := domain.HookContext{Build: &domain.BuildHookContext{
		Solutions: solutionNames(s.Manifest),
		OutputDir: s.ArtifactDir,
	}}
	if s.Hooks != nil {
		if err := s.Hooks.RunPhase(ctx, domain.HookPreBuild, hctx); err != nil {
			return nil, err
		}
	}

	artifacts := make(map[string]domain.ArtifactFile, len(s.Manifest.Solutions))
	for _, sc := range s.Manifest.Solutions {
		artifact, err := s.buildOne(ctx, sc)
		if err != nil {
			return nil, fmt.Errorf("solution %q: %w", sc.Name, err)
		}
		artifacts[sc.Name] = artifact
		s.log().WithFields(logrus.Fields{
			"solution": sc.Name,
			"version":  artifact.Version.String(),
		}).Info("built")
	}

	if s.Hooks != nil {
		if err := s.Hooks.RunPhase(ctx, domain.HookPostBuild, hctx); err != nil {
			return nil, err
		}
	}
	return artifacts, nil
}

func (s *BuildService) buildOne(ctx context.Context, sc domain.SolutionConfig) (domain.ArtifactFile, error) {
	dir := filepath.Join(s.SnapshotDir, sc.Name)

	version, err := s.Versioner.ReadVersion(ctx, dir)
	if err != nil {
		return domain.ArtifactFile{}, err
	}

	managed, err := s.Packer.Pack(ctx, sc.Name, dir, domain.PackManaged)
	if err != nil {
		return domain.ArtifactFile{}, fmt.Errorf("pack managed: %w", err)
	}

	artifact := domain.ArtifactFile{
		Solution: sc.Name,
		Path:     managed.Path,
		Version:  version,
	}
	if sc.DeployUnmanaged || s.Unmanaged {
		unmanaged, err := s.Packer.Pack(ctx, sc.Name, dir, domain.PackUnmanaged)
		if err != nil {
			return domain.ArtifactFile{}, fmt.Errorf("pack unmanaged: %w", err)
		}
		artifact.UnmanagedPath = unmanaged.Path
	}
	return artifact, nil
}
