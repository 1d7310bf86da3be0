package application

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rnwood/alm4dataverse/internal/domain"
)

// DeployInput parameterizes one deploy run.
type DeployInput struct {
	// Target names the environment being deployed to.
	Target string

	// Unmanaged marks the target as a development environment that is
	// always overwritten with unmanaged artifacts.
	Unmanaged bool

	// Artifacts are the built artifacts, one per manifest solution.
	Artifacts map[string]domain.ArtifactFile
}

// DeployService runs the deploy workflow against one target environment on
// the configured workflow engine and journals per-solution progress.
type DeployService struct {
	Manifest domain.DeploymentManifest
	Engine   domain.WorkflowEngine

	Env       domain.EnvironmentClient
	Processes domain.ProcessService
	Identity  domain.IdentityResolver
	Journal   domain.DeployRecordRepository
	Hooks     domain.HookRunner

	// Setting resolves a config key to its value, typically backed by the
	// layered configuration.
	Setting func(key string) (string, error)

	// NewRunID defaults to a random UUID.
	NewRunID func() string

	Log *logrus.Logger
}

func (s *DeployService) log() *logrus.Logger {
	if s.Log != nil {
		return s.Log
	}
	return logrus.StandardLogger()
}

func (s *DeployService) runID() string {
	if s.NewRunID != nil {
		return s.NewRunID()
	}
	return uuid.NewString()
}

// Run executes the deploy pipeline and returns the run ID that scopes its
// journal records. Identity configuration problems surface here, before
// any workflow activity touches the target.
func (s *DeployService) Run(ctx context.Context, in DeployInput) (string, error) {
	if err := s.Manifest.Validate(); err != nil {
		return "", err
	}

	accounts := make(map[string]string)
	for _, key := range s.Manifest.ServiceAccountKeys() {
		upn, err := s.Setting(key)
		if err != nil {
			return "", fmt.Errorf("%w: %v", domain.ErrIdentityUnresolved, err)
		}
		accounts[key] = upn
	}

	hctx := domain.HookContext{Deploy: &domain.DeployHookContext{
		Target:    in.Target,
		Unmanaged: in.Unmanaged,
		Solutions: solutionNames(s.Manifest),
	}}
	if s.Hooks != nil {
		if err := s.Hooks.RunPhase(ctx, domain.HookPreDeploy, hctx); err != nil {
			return "", err
		}
	}

	wf := &domain.DeployWorkflow{
		Target:          in.Target,
		Unmanaged:       in.Unmanaged,
		Manifest:        s.Manifest,
		ServiceAccounts: accounts,
		Artifacts:       in.Artifacts,
		Env:             s.Env,
		Processes:       s.Processes,
		Identity:        s.Identity,
		Journal:         s.Journal,
		Hooks:           s.Hooks,
	}

	runner, err := s.Engine.DeployRunner(wf)
	if err != nil {
		return "", fmt.Errorf("create deploy runner: %w", err)
	}

	runID := s.runID()
	log := s.log().WithFields(logrus.Fields{"run": runID, "target": in.Target})
	log.Info("deploy started")

	handle, err := runner.Run(ctx, runID)
	if err != nil {
		return runID, fmt.Errorf("start deploy workflow: %w", err)
	}
	if _, err := handle.AwaitResult(ctx); err != nil {
		log.WithError(err).Error("deploy failed")
		return runID, err
	}

	if s.Hooks != nil {
		if err := s.Hooks.RunPhase(ctx, domain.HookPostDeploy, hctx); err != nil {
			return runID, err
		}
	}
	log.Info("deploy finished")
	return runID, nil
}
