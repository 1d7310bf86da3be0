// Package dbosworkflows implements [domain.WorkflowEngine] using
// the DBOS Transact Go SDK.
package dbosworkflows

import (
	"context"
	"fmt"
	"sync"

	"github.com/dbos-inc/dbos-transact-golang/dbos"

	"github.com/rnwood/alm4dataverse/internal/domain"
)

// activityInvoker calls RunAsStep with the correct concrete output type.
// Created at construction time when concrete types are known.
type activityInvoker func(ctx dbos.Context, in any) (any, error)

// Engine implements [domain.WorkflowEngine] backed by DBOS. The context is
// launched lazily on the first run, after all workflows are registered.
type Engine struct {
	DBOSCtx dbos.Context

	launchOnce sync.Once
	launchErr  error
}

func (e *Engine) launch() error {
	e.launchOnce.Do(func() {
		e.launchErr = dbos.Launch(e.DBOSCtx)
	})
	return e.launchErr
}

func (e *Engine) DeployRunner(wf *domain.DeployWorkflow) (domain.DeployRunner, error) {
	invokers := make(map[string]activityInvoker)

	registerActivity(invokers, wf.ResolveIdentity())
	registerActivity(invokers, wf.ReadInstalledState())
	registerActivity(invokers, wf.PlanImport())
	registerActivity(invokers, wf.StageSolution())
	registerActivity(invokers, wf.RunDataMigration())
	registerActivity(invokers, wf.UpgradeSolution())
	registerActivity(invokers, wf.ActivateProcesses())
	registerActivity(invokers, wf.PublishCustomizations())
	registerActivity(invokers, wf.RecordState())

	wfFunc := func(ctx dbos.Context, runID string) (struct{}, error) {
		runner := &durableRunner{ctx: ctx, invokers: invokers}
		return wf.Run(runner, runID)
	}

	dbos.RegisterWorkflow(e.DBOSCtx, wfFunc, dbos.WithWorkflowName(wf.Name()))

	return &deployRunner{
		engine: e,
		wfFunc: wfFunc,
	}, nil
}

// registerActivity creates a typed invoker that calls [dbos.RunAsStep]
// with the concrete output type O, ensuring correct JSON deserialization
// during workflow replay.
func registerActivity[I, O any](invokers map[string]activityInvoker, activity domain.Activity[I, O]) {
	invokers[activity.Name()] = func(ctx dbos.Context, in any) (any, error) {
		return dbos.RunAsStep(ctx, func(stepCtx context.Context) (O, error) {
			return activity.Run(stepCtx, in.(I))
		}, dbos.WithStepName(activity.Name()))
	}
}

type durableRunner struct {
	ctx      dbos.Context
	invokers map[string]activityInvoker
}

func (r *durableRunner) ID() string {
	id, _ := dbos.GetWorkflowID(r.ctx)
	return id
}

func (r *durableRunner) Context() context.Context {
	return r.ctx
}

func (r *durableRunner) Run(activity domain.Activity[any, any], in any) (any, error) {
	invoke, ok := r.invokers[activity.Name()]
	if !ok {
		return nil, fmt.Errorf("activity %q not registered", activity.Name())
	}
	return invoke(r.ctx, in)
}

type deployRunner struct {
	engine *Engine
	wfFunc dbos.Workflow[string, struct{}]
}

func (r *deployRunner) Run(ctx context.Context, runID string) (domain.WorkflowHandle[struct{}], error) {
	if err := r.engine.launch(); err != nil {
		return nil, fmt.Errorf("launch DBOS: %w", err)
	}
	handle, err := dbos.RunWorkflow(r.engine.DBOSCtx, r.wfFunc, runID)
	if err != nil {
		return nil, fmt.Errorf("run DBOS workflow: %w", err)
	}
	return &workflowHandle{handle: handle}, nil
}

type workflowHandle struct {
	handle dbos.WorkflowHandle[struct{}]
}

func (h *workflowHandle) WorkflowID() string {
	return h.handle.GetWorkflowID()
}

func (h *workflowHandle) AwaitResult(_ context.Context) (struct{}, error) {
	return h.handle.GetResult()
}
