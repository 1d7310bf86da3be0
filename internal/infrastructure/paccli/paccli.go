// Package paccli adapts the Power Platform CLI (pac) to the domain's
// platform ports. Every operation shells out to pac and awaits completion;
// nothing here overlaps calls.
package paccli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/rnwood/alm4dataverse/internal/domain"
)

// runFunc executes a command and returns its combined stdout. Tests
// substitute this to capture argv without a pac binary present.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRun(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = os.Stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", name, args[0], err)
	}
	return out, nil
}

// CLI wraps pac invocations against one environment. It implements
// [domain.SolutionExporter], [domain.SolutionPacker],
// [domain.SnapshotVersioner] and [domain.EnvironmentClient].
type CLI struct {
	// Bin is the pac executable. Empty means "pac" from PATH.
	Bin string

	// Environment is the URL of the environment pac operates on. An
	// active pac auth profile for it must already exist.
	Environment string

	// WorkDir receives exported archives. Empty means the OS temp dir.
	WorkDir string

	run runFunc
}

// New returns a CLI bound to the given environment URL.
func New(environment string) *CLI {
	return &CLI{Environment: environment, run: execRun}
}

func (c *CLI) bin() string {
	if c.Bin != "" {
		return c.Bin
	}
	return "pac"
}

func (c *CLI) workDir() string {
	if c.WorkDir != "" {
		return c.WorkDir
	}
	return os.TempDir()
}

func (c *CLI) pac(ctx context.Context, args ...string) ([]byte, error) {
	run := c.run
	if run == nil {
		run = execRun
	}
	return run(ctx, c.bin(), args...)
}

func (c *CLI) Export(ctx context.Context, solution string) (domain.SolutionSnapshot, error) {
	// Export archives live under a distinct name so they never collide
	// with the build artifacts Pack writes into the same directory.
	path := filepath.Join(c.workDir(), solution+"_export.zip")
	_, err := c.pac(ctx, "solution", "export",
		"--environment", c.Environment,
		"--name", solution,
		"--path", path,
		"--managed",
		"--overwrite",
	)
	if err != nil {
		return domain.SolutionSnapshot{}, fmt.Errorf("export %q: %w", solution, err)
	}
	return domain.SolutionSnapshot{Solution: solution, Path: path}, nil
}

func (c *CLI) Unpack(ctx context.Context, snapshot domain.SolutionSnapshot, dir string) error {
	_, err := c.pac(ctx, "solution", "unpack",
		"--zipfile", snapshot.Path,
		"--folder", dir,
		"--packagetype", "Both",
		"--allowDelete",
	)
	if err != nil {
		return fmt.Errorf("unpack %q: %w", snapshot.Solution, err)
	}
	return nil
}

func (c *CLI) Pack(ctx context.Context, solution, dir string, mode domain.PackMode) (domain.SolutionSnapshot, error) {
	pkgType := "Managed"
	suffix := "_managed"
	if mode == domain.PackUnmanaged {
		pkgType = "Unmanaged"
		suffix = ""
	}
	path := filepath.Join(c.workDir(), solution+suffix+".zip")
	_, err := c.pac(ctx, "solution", "pack",
		"--zipfile", path,
		"--folder", dir,
		"--packagetype", pkgType,
	)
	if err != nil {
		return domain.SolutionSnapshot{}, fmt.Errorf("pack %q: %w", solution, err)
	}
	return domain.SolutionSnapshot{Solution: solution, Path: path}, nil
}

func (c *CLI) WriteVersion(ctx context.Context, dir string, v domain.SolutionVersion) error {
	_, err := c.pac(ctx, "solution", "version",
		"--solutionPath", dir,
		"--patchversion", v.String(),
	)
	if err != nil {
		return fmt.Errorf("write version %s: %w", v, err)
	}
	return nil
}

// solutionRow mirrors one entry of `pac solution list --json`.
type solutionRow struct {
	SolutionUniqueName string `json:"SolutionUniqueName"`
	VersionNumber      string `json:"VersionNumber"`
	IsManaged          bool   `json:"IsManaged"`
}

func (c *CLI) InstalledState(ctx context.Context, solution string) (domain.DeployedSolutionState, error) {
	out, err := c.pac(ctx, "solution", "list",
		"--environment", c.Environment,
		"--json",
	)
	if err != nil {
		return domain.DeployedSolutionState{}, fmt.Errorf("list solutions: %w", err)
	}
	var rows []solutionRow
	if err := json.Unmarshal(out, &rows); err != nil {
		return domain.DeployedSolutionState{}, fmt.Errorf("parse solution list: %w", err)
	}
	for _, row := range rows {
		if row.SolutionUniqueName != solution {
			continue
		}
		v, err := domain.ParseVersion(row.VersionNumber)
		if err != nil {
			return domain.DeployedSolutionState{}, fmt.Errorf("solution %q: %w", solution, err)
		}
		return domain.DeployedSolutionState{
			UniqueName:       solution,
			InstalledVersion: v,
			IsManaged:        row.IsManaged,
		}, nil
	}
	return domain.DeployedSolutionState{}, fmt.Errorf("solution %q: %w", solution, domain.ErrNotFound)
}

func (c *CLI) SetVersion(ctx context.Context, solution string, v domain.SolutionVersion) error {
	_, err := c.pac(ctx, "solution", "online-version",
		"--environment", c.Environment,
		"--solution-name", solution,
		"--solution-version", v.String(),
	)
	if err != nil {
		return fmt.Errorf("set version of %q: %w", solution, err)
	}
	return nil
}

func (c *CLI) Stage(ctx context.Context, artifact domain.ArtifactFile, mode domain.ImportMode) error {
	path := artifact.Path
	if mode == domain.ModeUnmanaged {
		path = artifact.UnmanagedPath
	}
	args := []string{"solution", "import",
		"--environment", c.Environment,
		"--path", path,
		"--async",
		"--activate-plugins",
	}
	switch mode {
	case domain.ModeHolding:
		args = append(args, "--import-as-holding")
	case domain.ModeDirect:
		args = append(args, "--stage-and-upgrade")
	case domain.ModeUnmanaged:
		args = append(args, "--force-overwrite")
	}
	if _, err := c.pac(ctx, args...); err != nil {
		return fmt.Errorf("import %q: %w", artifact.Solution, err)
	}
	return nil
}

func (c *CLI) Upgrade(ctx context.Context, solution string) error {
	_, err := c.pac(ctx, "solution", "upgrade",
		"--environment", c.Environment,
		"--solution-name", solution,
		"--async",
	)
	if err != nil {
		return fmt.Errorf("apply upgrade of %q: %w", solution, err)
	}
	return nil
}

func (c *CLI) Publish(ctx context.Context) error {
	_, err := c.pac(ctx, "solution", "publish",
		"--environment", c.Environment,
	)
	if err != nil {
		return fmt.Errorf("publish customizations: %w", err)
	}
	return nil
}
