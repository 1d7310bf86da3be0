package dbosworkflows_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/dbos-inc/dbos-transact-golang/dbos"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/rnwood/alm4dataverse/internal/domain"
	"github.com/rnwood/alm4dataverse/internal/infrastructure/dbosworkflows"
	"github.com/rnwood/alm4dataverse/internal/infrastructure/sqlite"
)

func startPostgres(t *testing.T) string {
	t.Helper()

	// Ryuk (the reaper) requires a Docker bridge network that does not
	// exist on Podman. We handle cleanup via t.Cleanup instead.
	t.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	ctx := context.Background()

	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("dbos_test"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}

	connStr, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("get postgres connection string: %v", err)
	}
	return connStr
}

type fakeEnv struct {
	installed map[string]domain.SolutionVersion
	staged    []string
	upgraded  []string
}

func (e *fakeEnv) InstalledState(_ context.Context, solution string) (domain.DeployedSolutionState, error) {
	v, ok := e.installed[solution]
	if !ok {
		return domain.DeployedSolutionState{}, fmt.Errorf("solution %q: %w", solution, domain.ErrNotFound)
	}
	return domain.DeployedSolutionState{UniqueName: solution, InstalledVersion: v, IsManaged: true}, nil
}

func (e *fakeEnv) SetVersion(_ context.Context, solution string, v domain.SolutionVersion) error {
	e.installed[solution] = v
	return nil
}

func (e *fakeEnv) Stage(_ context.Context, artifact domain.ArtifactFile, _ domain.ImportMode) error {
	e.staged = append(e.staged, artifact.Solution)
	return nil
}

func (e *fakeEnv) Upgrade(_ context.Context, solution string) error {
	e.upgraded = append(e.upgraded, solution)
	return nil
}

func (e *fakeEnv) Publish(_ context.Context) error { return nil }

type fakeProcs struct{}

func (fakeProcs) ListProcesses(_ context.Context, _ string) ([]domain.Process, error) {
	return nil, nil
}
func (fakeProcs) ActivateProcess(_ context.Context, _ string) error       { return nil }
func (fakeProcs) AssignProcessOwner(_ context.Context, _, _ string) error { return nil }

type fakeIdentity struct{}

func (fakeIdentity) ResolveUser(_ context.Context, upn string) (domain.UserRef, error) {
	return domain.UserRef{ID: "u1", UPN: upn}, nil
}

func TestDeploy_DBOS(t *testing.T) {
	connStr := startPostgres(t)

	ctx := context.Background()

	dbosCtx, err := dbos.NewContext(ctx, dbos.Config{
		AppName:     "alm4dataverse-dbos-test",
		DatabaseURL: connStr,
	})
	if err != nil {
		t.Fatalf("NewDBOSContext: %v", err)
	}

	db := sqlite.OpenTestDB(t)
	journal := &sqlite.DeployRecordRepo{DB: db}

	env := &fakeEnv{installed: map[string]domain.SolutionVersion{
		"core":  {Major: 1, Minor: 2},
		"sales": {Major: 1, Minor: 2},
	}}

	wf := &domain.DeployWorkflow{
		Target: "test",
		Manifest: domain.DeploymentManifest{Solutions: []domain.SolutionConfig{
			{Name: "core"}, {Name: "sales"},
		}},
		ServiceAccounts: map[string]string{domain.DefaultServiceAccountKey: "svc@example.com"},
		Artifacts: map[string]domain.ArtifactFile{
			"core":  {Solution: "core", Path: "core.zip", Version: domain.SolutionVersion{Major: 1, Minor: 3}},
			"sales": {Solution: "sales", Path: "sales.zip", Version: domain.SolutionVersion{Major: 1, Minor: 3}},
		},
		Env:       env,
		Processes: fakeProcs{},
		Identity:  fakeIdentity{},
		Journal:   journal,
		Now:       func() time.Time { return time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC) },
	}

	engine := &dbosworkflows.Engine{DBOSCtx: dbosCtx}
	runner, err := engine.DeployRunner(wf)
	if err != nil {
		t.Fatalf("DeployRunner: %v", err)
	}

	t.Cleanup(func() { dbos.Shutdown(dbosCtx, 5*time.Second) })

	// The engine launches the DBOS context on first use.
	handle, err := runner.Run(ctx, "run1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, err := handle.AwaitResult(ctx); err != nil {
		t.Fatalf("AwaitResult: %v", err)
	}

	if fmt.Sprint(env.staged) != fmt.Sprint([]string{"core", "sales"}) {
		t.Errorf("staged = %v, want [core sales]", env.staged)
	}
	if fmt.Sprint(env.upgraded) != fmt.Sprint([]string{"sales", "core"}) {
		t.Errorf("upgraded = %v, want [sales core]", env.upgraded)
	}

	records, err := journal.ListByRun(ctx, "run1")
	if err != nil {
		t.Fatalf("ListByRun: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 journal records, got %d", len(records))
	}
	for _, rec := range records {
		if rec.State != domain.SolutionPublished {
			t.Errorf("record for %s: State = %q, want %q", rec.Solution, rec.State, domain.SolutionPublished)
		}
	}
}
