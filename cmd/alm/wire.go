package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	wfsqlite "github.com/cschleiden/go-workflows/backend/sqlite"
	wfclient "github.com/cschleiden/go-workflows/client"
	"github.com/cschleiden/go-workflows/worker"
	"github.com/dbos-inc/dbos-transact-golang/dbos"

	"github.com/rnwood/alm4dataverse/internal/config"
	"github.com/rnwood/alm4dataverse/internal/domain"
	"github.com/rnwood/alm4dataverse/internal/infrastructure/dbosworkflows"
	"github.com/rnwood/alm4dataverse/internal/infrastructure/gitstore"
	"github.com/rnwood/alm4dataverse/internal/infrastructure/goworkflows"
	"github.com/rnwood/alm4dataverse/internal/infrastructure/hookexec"
	"github.com/rnwood/alm4dataverse/internal/infrastructure/paccli"
	"github.com/rnwood/alm4dataverse/internal/infrastructure/sqlite"
	"github.com/rnwood/alm4dataverse/internal/infrastructure/syncworkflow"
	"github.com/rnwood/alm4dataverse/internal/infrastructure/webapi"
)

// app holds everything a pipeline command needs, resolved once per run.
type app struct {
	Config   config.Config
	Manifest domain.DeploymentManifest
	Hooks    *hookexec.Runner
}

func loadApp(configPaths []string) (*app, error) {
	cfg, err := config.Resolve(configPaths...)
	if err != nil {
		return nil, err
	}
	manifest, err := config.LoadManifest(cfg.ManifestPath)
	if err != nil {
		return nil, err
	}
	return &app{
		Config:   cfg,
		Manifest: manifest,
		Hooks:    &hookexec.Runner{Registry: manifest.Hooks},
	}, nil
}

// pacFor builds a pac adapter for the named environment with artifacts
// landing in the configured artifact dir.
func (a *app) pacFor(env config.Environment) *paccli.CLI {
	pac := paccli.New(env.URL)
	pac.WorkDir = a.Config.ArtifactDir
	return pac
}

// pacLocal builds a pac adapter for connectionless operations such as
// packing and version reads.
func (a *app) pacLocal() *paccli.CLI {
	return a.pacFor(config.Environment{})
}

// pacExport builds a pac adapter whose archives land in a throwaway
// directory. Export and baseline packs must not share paths with the
// build artifacts loadArtifacts resolves from the artifact dir.
func (a *app) pacExport(env config.Environment) (*paccli.CLI, func(), error) {
	dir, err := os.MkdirTemp("", "alm-export-")
	if err != nil {
		return nil, nil, fmt.Errorf("create export dir: %w", err)
	}
	pac := paccli.New(env.URL)
	pac.WorkDir = dir
	return pac, func() { _ = os.RemoveAll(dir) }, nil
}

// openStore binds the snapshot store to the repository the pipeline runs
// in.
func openStore() (*gitstore.Store, error) {
	return gitstore.Open(".")
}

// comparer builds the component-diff oracle. The tool itself is external;
// only its name comes from config.
func (a *app) comparer() domain.ComponentComparer {
	program := a.Config.Settings["ComparerCommand"]
	if program == "" {
		program = "alm-solution-diff"
	}
	return &paccli.Comparer{Program: program}
}

// webAPIFor builds the Web API client for process and identity operations.
// The bearer token comes from the AccessToken setting, which may resolve
// through the OS keyring.
func (a *app) webAPIFor(env config.Environment) (*webapi.Client, error) {
	token, err := a.Config.Setting("AccessToken")
	if err != nil {
		return nil, err
	}
	return &webapi.Client{BaseURL: env.URL, Token: webapi.StaticToken(token)}, nil
}

func (a *app) openJournal() (*sqlite.DeployRecordRepo, func(), error) {
	db, err := sqlite.Open(a.Config.JournalPath)
	if err != nil {
		return nil, nil, err
	}
	return &sqlite.DeployRecordRepo{DB: db}, func() { db.Close() }, nil
}

// newEngine builds the configured workflow engine. The returned cleanup
// stops whatever the engine started.
func (a *app) newEngine(ctx context.Context) (domain.WorkflowEngine, func(), error) {
	switch a.Config.Engine {
	case "", "sync":
		return &syncworkflow.Engine{}, func() {}, nil

	case "durable":
		backend := wfsqlite.NewInMemoryBackend()
		w := worker.New(backend, nil)
		workerCtx, cancel := context.WithCancel(ctx)
		if err := w.Start(workerCtx); err != nil {
			cancel()
			return nil, nil, fmt.Errorf("start workflow worker: %w", err)
		}
		cleanup := func() {
			cancel()
			_ = w.WaitForCompletion()
		}
		engine := &goworkflows.Engine{
			Worker: w,
			Client: wfclient.New(backend),
		}
		return engine, cleanup, nil

	case "dbos":
		dbURL, err := a.Config.Setting("DbosDatabaseUrl")
		if err != nil {
			return nil, nil, err
		}
		dbosCtx, err := dbos.NewContext(ctx, dbos.Config{
			AppName:     "alm4dataverse",
			DatabaseURL: dbURL,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("create DBOS context: %w", err)
		}
		cleanup := func() { dbos.Shutdown(dbosCtx, 5*time.Second) }
		return &dbosworkflows.Engine{DBOSCtx: dbosCtx}, cleanup, nil

	default:
		return nil, nil, fmt.Errorf("%w: unknown engine %q", domain.ErrInvalidArgument, a.Config.Engine)
	}
}

// loadArtifacts locates previously built artifacts by their conventional
// paths and reads versions back from the snapshot folders.
func (a *app) loadArtifacts(ctx context.Context, versioner domain.SnapshotVersioner) (map[string]domain.ArtifactFile, error) {
	artifacts := make(map[string]domain.ArtifactFile, len(a.Manifest.Solutions))
	for _, sc := range a.Manifest.Solutions {
		dir := filepath.Join(a.Config.SnapshotDir, sc.Name)
		version, err := versioner.ReadVersion(ctx, dir)
		if err != nil {
			return nil, fmt.Errorf("solution %q: %w", sc.Name, err)
		}

		managed := filepath.Join(a.Config.ArtifactDir, sc.Name+"_managed.zip")
		if _, err := os.Stat(managed); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("solution %q: artifact %s missing, run build first", sc.Name, managed)
			}
			return nil, err
		}

		artifact := domain.ArtifactFile{Solution: sc.Name, Path: managed, Version: version}
		unmanaged := filepath.Join(a.Config.ArtifactDir, sc.Name+".zip")
		if _, err := os.Stat(unmanaged); err == nil {
			artifact.UnmanagedPath = unmanaged
		}
		artifacts[sc.Name] = artifact
	}
	return artifacts, nil
}
