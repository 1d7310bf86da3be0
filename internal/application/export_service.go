// Package application wires the domain's decision logic and ports into the
// three pipelines: export, build and deploy.
package application

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/rnwood/alm4dataverse/internal/domain"
)

// SnapshotStore commits and pushes exported snapshot changes.
type SnapshotStore interface {
	Snapshot(ctx context.Context, message string) error
}

// ExportService pulls solutions out of the development environment, bumps
// their versions based on the kind of change, and lands the unpacked
// sources in source control.
type ExportService struct {
	Manifest domain.DeploymentManifest

	Exporter  domain.SolutionExporter
	Packer    domain.SolutionPacker
	Versioner domain.SnapshotVersioner
	Comparer  domain.ComponentComparer

	// Env is the development environment; version write-back targets it.
	Env domain.EnvironmentClient

	Store SnapshotStore
	Hooks domain.HookRunner

	// Environment names the development environment for hook contexts.
	Environment string

	// SnapshotDir is the source-control root holding one folder per
	// solution.
	SnapshotDir string

	Log *logrus.Logger
}

func (s *ExportService) log() *logrus.Logger {
	if s.Log != nil {
		return s.Log
	}
	return logrus.StandardLogger()
}

// Run exports every manifest solution. A solution whose export fails is
// reported but does not stop its siblings; the run still fails overall.
// The commit message is required because every successful run lands a
// commit in the snapshot store.
func (s *ExportService) Run(ctx context.Context, commitMessage string) error {
	if commitMessage == "" {
		return fmt.Errorf("%w: commit message is required", domain.ErrInvalidArgument)
	}
	if err := s.Manifest.Validate(); err != nil {
		return err
	}

	names := solutionNames(s.Manifest)
	hctx := domain.HookContext{Export: &domain.ExportHookContext{
		Environment:   s.Environment,
		Solutions:     names,
		CommitMessage: commitMessage,
	}}
	if err := s.runHooks(ctx, domain.HookPreExport, hctx); err != nil {
		return err
	}

	var errs []error
	for _, sc := range s.Manifest.Solutions {
		if err := s.exportOne(ctx, sc.Name); err != nil {
			s.log().WithField("solution", sc.Name).WithError(err).Error("export failed")
			errs = append(errs, fmt.Errorf("solution %q: %w", sc.Name, err))
			continue
		}
		s.log().WithField("solution", sc.Name).Info("exported")
	}

	// Successful solutions are still committed when a sibling failed, so
	// a re-run only has to redo the failed ones.
	if err := s.Store.Snapshot(ctx, commitMessage); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return s.runHooks(ctx, domain.HookPostExport, hctx)
}

func (s *ExportService) exportOne(ctx context.Context, name string) error {
	dir := filepath.Join(s.SnapshotDir, name)

	// The previously exported source tree, if any, is the comparison
	// baseline. It is packed back into an archive because the comparison
	// oracle works on archives.
	var baseline *domain.SolutionSnapshot
	if _, err := os.Stat(dir); err == nil {
		packed, err := s.Packer.Pack(ctx, name, dir, domain.PackManaged)
		if err != nil {
			return fmt.Errorf("pack baseline: %w", err)
		}
		baseline = &packed
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}

	exported, err := s.Exporter.Export(ctx, name)
	if err != nil {
		return err
	}

	class, err := domain.ClassifyChange(ctx, s.Comparer, baseline, exported)
	if err != nil {
		return err
	}

	state, err := s.Env.InstalledState(ctx, name)
	if err != nil {
		return err
	}
	next := domain.NextVersion(state.InstalledVersion, class)

	// Version write-back goes to both sides so the environment and the
	// source tree never drift apart.
	if err := s.Env.SetVersion(ctx, name, next); err != nil {
		return err
	}
	if err := s.Exporter.Unpack(ctx, exported, dir); err != nil {
		return err
	}
	if err := s.Versioner.WriteVersion(ctx, dir, next); err != nil {
		return err
	}

	s.log().WithFields(logrus.Fields{
		"solution": name,
		"change":   class,
		"version":  next.String(),
	}).Info("version bumped")
	return nil
}

func (s *ExportService) runHooks(ctx context.Context, phase domain.HookPhase, hctx domain.HookContext) error {
	if s.Hooks == nil {
		return nil
	}
	return s.Hooks.RunPhase(ctx, phase, hctx)
}

func solutionNames(m domain.DeploymentManifest) []string {
	names := make([]string, len(m.Solutions))
	for i, sc := range m.Solutions {
		names[i] = sc.Name
	}
	return names
}
