package paccli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/rnwood/alm4dataverse/internal/domain"
)

// Comparer implements [domain.ComponentComparer] by running an external
// diff tool against two packed archives. The tool receives the old and new
// archive paths as its final arguments and signals the verdict through its
// exit code: 0 when the new archive is an additive superset of the old one,
// 1 when components were removed or redefined, anything else is a failure.
type Comparer struct {
	Program string
	Args    []string
}

func (c *Comparer) CompareComponents(ctx context.Context, old, new domain.SolutionSnapshot) (bool, error) {
	args := append(append([]string{}, c.Args...), old.Path, new.Path)
	cmd := exec.CommandContext(ctx, c.Program, args...)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	err := cmd.Run()
	if err == nil {
		return true, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		return false, nil
	}
	return false, fmt.Errorf("compare %q archives: %w", new.Solution, err)
}
