package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rnwood/alm4dataverse/internal/application"
	"github.com/rnwood/alm4dataverse/internal/domain"
)

func newCmdExport(configPaths *[]string) *cobra.Command {
	var message string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export changed solutions from the development environment into source control",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(*configPaths)
			if err != nil {
				return err
			}
			devEnv, err := a.Config.TargetEnvironment(a.Config.Development)
			if err != nil {
				return err
			}
			store, err := openStore()
			if err != nil {
				return err
			}
			pac, cleanup, err := a.pacExport(devEnv)
			if err != nil {
				return err
			}
			defer cleanup()
			svc := &application.ExportService{
				Manifest:    a.Manifest,
				Exporter:    pac,
				Packer:      pac,
				Versioner:   pac,
				Comparer:    a.comparer(),
				Env:         pac,
				Store:       store,
				Hooks:       a.Hooks,
				Environment: a.Config.Development,
				SnapshotDir: a.Config.SnapshotDir,
			}
			return svc.Run(cmd.Context(), message)
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "commit message for the exported changes (required)")
	_ = cmd.MarkFlagRequired("message")
	return cmd
}

func newCmdBuild(configPaths *[]string) *cobra.Command {
	return &cobra.Command{
		Use:   "build",
		Short: "Pack source-controlled solutions into deployable artifacts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(*configPaths)
			if err != nil {
				return err
			}
			pac := a.pacLocal()
			svc := &application.BuildService{
				Manifest:    a.Manifest,
				Packer:      pac,
				Versioner:   pac,
				Hooks:       a.Hooks,
				SnapshotDir: a.Config.SnapshotDir,
				ArtifactDir: a.Config.ArtifactDir,
			}
			_, err = svc.Run(cmd.Context())
			return err
		},
	}
}

func newCmdDeploy(configPaths *[]string) *cobra.Command {
	var target string
	var unmanaged bool

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy built artifacts to a target environment",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(*configPaths)
			if err != nil {
				return err
			}
			return runDeploy(cmd, a, target, unmanaged, nil)
		},
	}
	cmd.Flags().StringVarP(&target, "target", "t", "", "target environment name (required)")
	cmd.Flags().BoolVar(&unmanaged, "unmanaged", false, "treat the target as a development environment and overwrite with unmanaged artifacts")
	_ = cmd.MarkFlagRequired("target")
	return cmd
}

// newCmdImport builds and deploys in one go, always unmanaged: the target
// is a development environment being refreshed from source.
func newCmdImport(configPaths *[]string) *cobra.Command {
	var target string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Build and deploy unmanaged artifacts to a development environment",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(*configPaths)
			if err != nil {
				return err
			}
			pac := a.pacLocal()
			build := &application.BuildService{
				Manifest:    a.Manifest,
				Packer:      pac,
				Versioner:   pac,
				Hooks:       a.Hooks,
				SnapshotDir: a.Config.SnapshotDir,
				ArtifactDir: a.Config.ArtifactDir,
				Unmanaged:   true,
			}
			artifacts, err := build.Run(cmd.Context())
			if err != nil {
				return err
			}
			return runDeploy(cmd, a, target, true, artifacts)
		},
	}
	cmd.Flags().StringVarP(&target, "target", "t", "", "development environment name (required)")
	_ = cmd.MarkFlagRequired("target")
	return cmd
}

// runDeploy wires and runs the deploy pipeline. artifacts may be nil, in
// which case previously built artifacts are located on disk.
func runDeploy(cmd *cobra.Command, a *app, target string, unmanaged bool, artifacts map[string]domain.ArtifactFile) error {
	ctx := cmd.Context()

	env, err := a.Config.TargetEnvironment(target)
	if err != nil {
		return err
	}
	unmanaged = unmanaged || env.Unmanaged

	pac := a.pacFor(env)
	if artifacts == nil {
		artifacts, err = a.loadArtifacts(ctx, pac)
		if err != nil {
			return err
		}
	}

	api, err := a.webAPIFor(env)
	if err != nil {
		return err
	}

	journal, closeJournal, err := a.openJournal()
	if err != nil {
		return err
	}
	defer closeJournal()

	engine, stopEngine, err := a.newEngine(ctx)
	if err != nil {
		return err
	}
	defer stopEngine()

	svc := &application.DeployService{
		Manifest:  a.Manifest,
		Engine:    engine,
		Env:       pac,
		Processes: api,
		Identity:  api,
		Journal:   journal,
		Hooks:     a.Hooks,
		Setting:   a.Config.Setting,
	}

	runID, err := svc.Run(ctx, application.DeployInput{
		Target:    target,
		Unmanaged: unmanaged,
		Artifacts: artifacts,
	})
	if err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{"run": runID, "target": target}).Info("deployed")
	return nil
}
