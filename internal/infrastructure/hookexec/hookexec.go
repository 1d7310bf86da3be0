// Package hookexec implements [domain.HookRunner] by running registered
// external commands. Hook processes receive their phase context through
// ALM_-prefixed environment variables.
package hookexec

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/rnwood/alm4dataverse/internal/domain"
)

// Runner executes the hook commands registered per phase, sequentially and
// fail-fast. A failing hook aborts the phase and the surrounding pipeline.
type Runner struct {
	// Registry maps each phase to its ordered command list, typically
	// taken from the deployment manifest.
	Registry map[domain.HookPhase][]domain.HookCommand

	// Dir is the working directory for hook processes. Empty means the
	// current directory.
	Dir string

	// Stdout and Stderr receive hook output; nil falls back to the
	// process's own streams.
	Stdout *os.File
	Stderr *os.File
}

func (r *Runner) RunPhase(ctx context.Context, phase domain.HookPhase, hctx domain.HookContext) error {
	cmds := r.Registry[phase]
	env := contextEnv(phase, hctx)
	for i, hc := range cmds {
		if err := r.runCommand(ctx, hc, env); err != nil {
			return fmt.Errorf("hook %s[%d] %s: %w", phase, i, hc.Program, err)
		}
	}
	return nil
}

func (r *Runner) runCommand(ctx context.Context, hc domain.HookCommand, env []string) error {
	cmd := exec.CommandContext(ctx, hc.Program, hc.Args...)
	cmd.Dir = r.Dir
	cmd.Env = append(os.Environ(), env...)
	cmd.Stdout = r.stdout()
	cmd.Stderr = r.stderr()
	return cmd.Run()
}

func (r *Runner) stdout() *os.File {
	if r.Stdout != nil {
		return r.Stdout
	}
	return os.Stdout
}

func (r *Runner) stderr() *os.File {
	if r.Stderr != nil {
		return r.Stderr
	}
	return os.Stderr
}

// contextEnv flattens the typed phase context into environment variables.
// Each phase has its own struct, so hooks never see fields from another
// phase's context.
func contextEnv(phase domain.HookPhase, hctx domain.HookContext) []string {
	env := []string{"ALM_PHASE=" + string(phase)}
	switch {
	case hctx.Export != nil:
		env = append(env,
			"ALM_ENVIRONMENT="+hctx.Export.Environment,
			"ALM_SOLUTIONS="+strings.Join(hctx.Export.Solutions, ","),
			"ALM_COMMIT_MESSAGE="+hctx.Export.CommitMessage,
		)
	case hctx.Build != nil:
		env = append(env,
			"ALM_SOLUTIONS="+strings.Join(hctx.Build.Solutions, ","),
			"ALM_OUTPUT_DIR="+hctx.Build.OutputDir,
		)
	case hctx.Deploy != nil:
		env = append(env,
			"ALM_TARGET="+hctx.Deploy.Target,
			"ALM_UNMANAGED="+strconv.FormatBool(hctx.Deploy.Unmanaged),
			"ALM_SOLUTIONS="+strings.Join(hctx.Deploy.Solutions, ","),
		)
	case hctx.DataMigration != nil:
		env = append(env,
			"ALM_TARGET="+hctx.DataMigration.Target,
			"ALM_RUN_ID="+hctx.DataMigration.RunID,
			"ALM_SOLUTIONS="+strings.Join(hctx.DataMigration.Solutions, ","),
		)
	}
	return env
}
