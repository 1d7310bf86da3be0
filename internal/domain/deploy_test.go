package domain_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rnwood/alm4dataverse/internal/domain"
)

// recordingRunner runs activities and records their names and solution
// inputs in order so tests can assert execution sequence.
type recordingRunner struct {
	ctx      context.Context
	records  []activityRecord
	delegate domain.DurableRunner
}

type activityRecord struct {
	Name string
	// Solution is set for per-solution activities.
	Solution string
	// State is set for record-state activities.
	State domain.SolutionRunState
}

func (r *recordingRunner) ID() string               { return r.delegate.ID() }
func (r *recordingRunner) Context() context.Context { return r.ctx }

func (r *recordingRunner) Run(activity domain.Activity[any, any], in any) (any, error) {
	rec := activityRecord{Name: activity.Name()}
	switch v := in.(type) {
	case domain.ReadInstalledInput:
		rec.Solution = v.Solution
	case domain.PlanImportInput:
		rec.Solution = v.Solution
	case domain.StageInput:
		rec.Solution = v.Solution
	case domain.UpgradeInput:
		rec.Solution = v.Solution
	case domain.ActivateProcessesInput:
		rec.Solution = v.Solution
	case domain.RecordStateInput:
		rec.Solution = v.Solution
		rec.State = v.State
	}
	r.records = append(r.records, rec)
	return r.delegate.Run(activity, in)
}

// statesFor returns the journaled states for a solution in record order.
func (r *recordingRunner) statesFor(solution string) []domain.SolutionRunState {
	var out []domain.SolutionRunState
	for _, rec := range r.records {
		if rec.Name == "record-state" && rec.Solution == solution {
			out = append(out, rec.State)
		}
	}
	return out
}

// indexOf returns the position of the first record matching name and
// solution, or -1.
func (r *recordingRunner) indexOf(name, solution string) int {
	for i, rec := range r.records {
		if rec.Name == name && rec.Solution == solution {
			return i
		}
	}
	return -1
}

// syncRunnerImpl runs activities synchronously (no durability).
type syncRunnerImpl struct {
	ctx context.Context
}

func (s *syncRunnerImpl) ID() string               { return "test-sync" }
func (s *syncRunnerImpl) Context() context.Context { return s.ctx }
func (s *syncRunnerImpl) Run(activity domain.Activity[any, any], in any) (any, error) {
	return activity.Run(s.ctx, in)
}

// stubEnv implements [domain.EnvironmentClient] over an in-memory map of
// installed solutions.
type stubEnv struct {
	installed map[string]domain.SolutionVersion
	failStage map[string]error
	staged    []string
	upgraded  []string
	published int
}

func (e *stubEnv) InstalledState(_ context.Context, solution string) (domain.DeployedSolutionState, error) {
	v, ok := e.installed[solution]
	if !ok {
		return domain.DeployedSolutionState{}, fmt.Errorf("solution %q: %w", solution, domain.ErrNotFound)
	}
	return domain.DeployedSolutionState{UniqueName: solution, InstalledVersion: v, IsManaged: true}, nil
}

func (e *stubEnv) SetVersion(_ context.Context, solution string, v domain.SolutionVersion) error {
	e.installed[solution] = v
	return nil
}

func (e *stubEnv) Stage(_ context.Context, artifact domain.ArtifactFile, _ domain.ImportMode) error {
	if err := e.failStage[artifact.Solution]; err != nil {
		return err
	}
	e.staged = append(e.staged, artifact.Solution)
	return nil
}

func (e *stubEnv) Upgrade(_ context.Context, solution string) error {
	e.upgraded = append(e.upgraded, solution)
	return nil
}

func (e *stubEnv) Publish(_ context.Context) error {
	e.published++
	return nil
}

// stubProcs serves a fixed process list per solution.
type stubProcs struct {
	processes map[string][]domain.Process
	activated []string
	assigned  []string
}

func (p *stubProcs) ListProcesses(_ context.Context, solution string) ([]domain.Process, error) {
	return p.processes[solution], nil
}

func (p *stubProcs) ActivateProcess(_ context.Context, id string) error {
	p.activated = append(p.activated, id)
	return nil
}

func (p *stubProcs) AssignProcessOwner(_ context.Context, id, _ string) error {
	p.assigned = append(p.assigned, id)
	return nil
}

// stubIdentity resolves a fixed set of UPNs.
type stubIdentity struct {
	users map[string]domain.UserRef
}

func (s *stubIdentity) ResolveUser(_ context.Context, upn string) (domain.UserRef, error) {
	u, ok := s.users[upn]
	if !ok {
		return domain.UserRef{}, fmt.Errorf("user %q: %w", upn, domain.ErrIdentityUnresolved)
	}
	return u, nil
}

// memJournal keeps deploy records in memory keyed by (runID, solution).
type memJournal struct {
	records map[string]domain.DeployRecord
}

func newMemJournal() *memJournal {
	return &memJournal{records: make(map[string]domain.DeployRecord)}
}

func (j *memJournal) key(runID, solution string) string { return runID + "/" + solution }

func (j *memJournal) Put(_ context.Context, rec domain.DeployRecord) error {
	j.records[j.key(rec.RunID, rec.Solution)] = rec
	return nil
}

func (j *memJournal) Get(_ context.Context, runID, solution string) (domain.DeployRecord, error) {
	rec, ok := j.records[j.key(runID, solution)]
	if !ok {
		return domain.DeployRecord{}, domain.ErrNotFound
	}
	return rec, nil
}

func (j *memJournal) ListByRun(_ context.Context, runID string) ([]domain.DeployRecord, error) {
	var out []domain.DeployRecord
	for _, rec := range j.records {
		if rec.RunID == runID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (j *memJournal) DeleteByRun(_ context.Context, runID string) error {
	for k, rec := range j.records {
		if rec.RunID == runID {
			delete(j.records, k)
		}
	}
	return nil
}

func testManifest(names ...string) domain.DeploymentManifest {
	m := domain.DeploymentManifest{}
	for _, n := range names {
		m.Solutions = append(m.Solutions, domain.SolutionConfig{Name: n})
	}
	return m
}

func testWorkflow(env *stubEnv, procs *stubProcs, manifest domain.DeploymentManifest, artifacts map[string]domain.ArtifactFile) *domain.DeployWorkflow {
	return &domain.DeployWorkflow{
		Target:          "test",
		Manifest:        manifest,
		ServiceAccounts: map[string]string{domain.DefaultServiceAccountKey: "svc@example.com"},
		Artifacts:       artifacts,
		Env:             env,
		Processes:       procs,
		Identity:        &stubIdentity{users: map[string]domain.UserRef{"svc@example.com": {ID: "u1", UPN: "svc@example.com"}}},
		Journal:         newMemJournal(),
		Now:             func() time.Time { return time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC) },
	}
}

func artifact(t *testing.T, solution, version string) domain.ArtifactFile {
	t.Helper()
	return domain.ArtifactFile{Solution: solution, Path: solution + ".zip", Version: v(t, version)}
}

func TestDeploy_HoldingUpgradesApplyInReverseStagingOrder(t *testing.T) {
	// Three solutions, all minor bumps over the installed versions, so all
	// stage as holding upgrades. base is listed first (depended upon);
	// upgrades must apply most-dependent first.
	manifest := testManifest("base", "mid", "app")
	env := &stubEnv{installed: map[string]domain.SolutionVersion{
		"base": v(t, "1.2.0.0"),
		"mid":  v(t, "1.2.0.0"),
		"app":  v(t, "1.2.0.0"),
	}}
	procs := &stubProcs{}
	wf := testWorkflow(env, procs, manifest, map[string]domain.ArtifactFile{
		"base": artifact(t, "base", "1.3.0.0"),
		"mid":  artifact(t, "mid", "1.3.0.0"),
		"app":  artifact(t, "app", "1.3.0.0"),
	})

	ctx := context.Background()
	recorder := &recordingRunner{ctx: ctx, delegate: &syncRunnerImpl{ctx: ctx}}
	if _, err := wf.Run(recorder, "run1"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	wantStaged := []string{"base", "mid", "app"}
	if fmt.Sprint(env.staged) != fmt.Sprint(wantStaged) {
		t.Errorf("staged order = %v, want %v", env.staged, wantStaged)
	}
	wantUpgraded := []string{"app", "mid", "base"}
	if fmt.Sprint(env.upgraded) != fmt.Sprint(wantUpgraded) {
		t.Errorf("upgrade order = %v, want %v", env.upgraded, wantUpgraded)
	}

	// Data migration runs after the last stage and before the first upgrade.
	lastStage := recorder.indexOf("stage-solution", "app")
	migration := recorder.indexOf("run-data-migration", "")
	firstUpgrade := recorder.indexOf("upgrade-solution", "app")
	if migration < lastStage || firstUpgrade < migration {
		t.Errorf("data migration at %d must fall between last stage %d and first upgrade %d",
			migration, lastStage, firstUpgrade)
	}
	if env.published != 1 {
		t.Errorf("published %d times, want 1", env.published)
	}
}

func TestDeploy_StageFailureAbortsDownstreamSolutions(t *testing.T) {
	manifest := testManifest("base", "mid", "app")
	stageErr := errors.New("import failed")
	env := &stubEnv{
		installed: map[string]domain.SolutionVersion{},
		failStage: map[string]error{"mid": stageErr},
	}
	wf := testWorkflow(env, &stubProcs{}, manifest, map[string]domain.ArtifactFile{
		"base": artifact(t, "base", "1.0.0.0"),
		"mid":  artifact(t, "mid", "1.0.0.0"),
		"app":  artifact(t, "app", "1.0.0.0"),
	})

	ctx := context.Background()
	recorder := &recordingRunner{ctx: ctx, delegate: &syncRunnerImpl{ctx: ctx}}
	_, err := wf.Run(recorder, "run1")
	if !errors.Is(err, stageErr) {
		t.Fatalf("Run: got %v, want wrapped stage error", err)
	}

	if recorder.indexOf("stage-solution", "app") != -1 {
		t.Error("downstream solution was staged after an upstream failure")
	}
	// The partially staged batch stays as-is: no upgrades, no publish.
	if len(env.upgraded) != 0 || env.published != 0 {
		t.Errorf("upgrades/publish ran after failure: %v / %d", env.upgraded, env.published)
	}
}

func TestDeploy_SameVersionIsSkipped(t *testing.T) {
	manifest := testManifest("base", "app")
	env := &stubEnv{installed: map[string]domain.SolutionVersion{
		"base": v(t, "1.2.3.4"),
	}}
	journal := newMemJournal()
	wf := testWorkflow(env, &stubProcs{}, manifest, map[string]domain.ArtifactFile{
		"base": artifact(t, "base", "1.2.3.4"),
		"app":  artifact(t, "app", "1.0.0.0"),
	})
	wf.Journal = journal

	ctx := context.Background()
	recorder := &recordingRunner{ctx: ctx, delegate: &syncRunnerImpl{ctx: ctx}}
	if _, err := wf.Run(recorder, "run1"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if recorder.indexOf("stage-solution", "base") != -1 {
		t.Error("skipped solution was staged")
	}
	if recorder.indexOf("activate-processes", "base") != -1 {
		t.Error("skipped solution had processes touched")
	}
	rec, err := journal.Get(ctx, "run1", "base")
	if err != nil {
		t.Fatalf("journal Get: %v", err)
	}
	if rec.State != domain.SolutionSkipped {
		t.Errorf("journal state = %q, want %q", rec.State, domain.SolutionSkipped)
	}

	// The other solution still installs.
	if got := recorder.indexOf("stage-solution", "app"); got == -1 {
		t.Error("non-skipped solution was not staged")
	}
}

func TestDeploy_UnresolvedIdentityAbortsBeforeSideEffects(t *testing.T) {
	manifest := testManifest("base")
	env := &stubEnv{installed: map[string]domain.SolutionVersion{}}
	wf := testWorkflow(env, &stubProcs{}, manifest, map[string]domain.ArtifactFile{
		"base": artifact(t, "base", "1.0.0.0"),
	})
	wf.Identity = &stubIdentity{users: map[string]domain.UserRef{}}

	ctx := context.Background()
	recorder := &recordingRunner{ctx: ctx, delegate: &syncRunnerImpl{ctx: ctx}}
	_, err := wf.Run(recorder, "run1")
	if !errors.Is(err, domain.ErrIdentityUnresolved) {
		t.Fatalf("Run: got %v, want ErrIdentityUnresolved", err)
	}
	if len(env.staged) != 0 {
		t.Errorf("staged %v before identity resolution, want none", env.staged)
	}
}

func TestDeploy_ProcessActivationSkipsAlreadyCorrectAssets(t *testing.T) {
	manifest := testManifest("base")
	env := &stubEnv{installed: map[string]domain.SolutionVersion{}}
	procs := &stubProcs{processes: map[string][]domain.Process{
		"base": {
			{ID: "p1", Name: "ok", OwnerID: "u1", Active: true},
			{ID: "p2", Name: "inactive", OwnerID: "u1", Active: false},
			{ID: "p3", Name: "wrong owner", OwnerID: "other", Active: true},
		},
	}}
	wf := testWorkflow(env, procs, manifest, map[string]domain.ArtifactFile{
		"base": artifact(t, "base", "1.0.0.0"),
	})

	ctx := context.Background()
	if _, err := wf.Run(&syncRunnerImpl{ctx: ctx}, "run1"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if fmt.Sprint(procs.activated) != fmt.Sprint([]string{"p2"}) {
		t.Errorf("activated = %v, want [p2]", procs.activated)
	}
	if fmt.Sprint(procs.assigned) != fmt.Sprint([]string{"p3"}) {
		t.Errorf("assigned = %v, want [p3]", procs.assigned)
	}
}

func TestDeploy_StateMachineReachesPublished(t *testing.T) {
	manifest := testManifest("base", "app")
	env := &stubEnv{installed: map[string]domain.SolutionVersion{
		"base": v(t, "1.2.0.0"),
		"app":  v(t, "1.2.0.0"),
	}}
	journal := newMemJournal()
	wf := testWorkflow(env, &stubProcs{}, manifest, map[string]domain.ArtifactFile{
		"base": artifact(t, "base", "1.3.0.0"),
		"app":  artifact(t, "app", "1.3.0.0"),
	})
	wf.Journal = journal

	ctx := context.Background()
	if _, err := wf.Run(&syncRunnerImpl{ctx: ctx}, "run1"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, sol := range []string{"base", "app"} {
		rec, err := journal.Get(ctx, "run1", sol)
		if err != nil {
			t.Fatalf("journal Get %q: %v", sol, err)
		}
		if rec.State != domain.SolutionPublished {
			t.Errorf("%s: terminal state = %q, want %q", sol, rec.State, domain.SolutionPublished)
		}
	}
}

func TestDeploy_DirectUpgradeJournalsUpgradedState(t *testing.T) {
	// A single-solution batch takes the direct path: the upgrade completes
	// inside the stage call, with no separate apply step. The journal must
	// still pass through the upgraded state.
	manifest := testManifest("base")
	env := &stubEnv{installed: map[string]domain.SolutionVersion{
		"base": v(t, "1.2.0.0"),
	}}
	wf := testWorkflow(env, &stubProcs{}, manifest, map[string]domain.ArtifactFile{
		"base": artifact(t, "base", "1.3.0.0"),
	})

	ctx := context.Background()
	recorder := &recordingRunner{ctx: ctx, delegate: &syncRunnerImpl{ctx: ctx}}
	if _, err := wf.Run(recorder, "run1"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(env.staged) != 1 || len(env.upgraded) != 0 {
		t.Errorf("staged %v upgraded %v, want one stage and no apply step", env.staged, env.upgraded)
	}
	want := []domain.SolutionRunState{
		domain.SolutionStaged,
		domain.SolutionUpgraded,
		domain.SolutionProcessesActivated,
		domain.SolutionPublished,
	}
	if got := recorder.statesFor("base"); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("journaled states = %v, want %v", got, want)
	}
}
