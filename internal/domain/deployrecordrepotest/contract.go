// Package deployrecordrepotest provides contract tests for
// [domain.DeployRecordRepository] implementations.
package deployrecordrepotest

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rnwood/alm4dataverse/internal/domain"
)

// Factory creates a fresh [domain.DeployRecordRepository] for each test.
type Factory func(t *testing.T) domain.DeployRecordRepository

// Run exercises the [domain.DeployRecordRepository] contract.
func Run(t *testing.T, factory Factory) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	version := domain.SolutionVersion{Major: 1, Minor: 2, Build: 0, Revision: 3}

	t.Run("PutAndGet", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()
		rec := domain.DeployRecord{
			RunID:     "r1",
			Solution:  "core",
			Target:    "test",
			State:     domain.SolutionStaged,
			Version:   version,
			UpdatedAt: now,
		}

		if err := repo.Put(ctx, rec); err != nil {
			t.Fatalf("Put: %v", err)
		}

		got, err := repo.Get(ctx, "r1", "core")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.State != domain.SolutionStaged {
			t.Errorf("State = %q, want %q", got.State, domain.SolutionStaged)
		}
		if got.Version != version {
			t.Errorf("Version = %v, want %v", got.Version, version)
		}
		if got.Target != "test" {
			t.Errorf("Target = %q, want %q", got.Target, "test")
		}
	})

	t.Run("PutUpserts", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()

		rec := domain.DeployRecord{
			RunID: "r1", Solution: "core",
			State: domain.SolutionStaged, Version: version, UpdatedAt: now,
		}
		_ = repo.Put(ctx, rec)

		rec.State = domain.SolutionPublished
		rec.UpdatedAt = now.Add(time.Minute)
		if err := repo.Put(ctx, rec); err != nil {
			t.Fatalf("second Put: %v", err)
		}

		got, _ := repo.Get(ctx, "r1", "core")
		if got.State != domain.SolutionPublished {
			t.Errorf("State after upsert = %q, want %q", got.State, domain.SolutionPublished)
		}
	})

	t.Run("GetNotFound", func(t *testing.T) {
		repo := factory(t)
		_, err := repo.Get(context.Background(), "r1", "core")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("Get: got %v, want ErrNotFound", err)
		}
		// The error must name the missing record.
		if !strings.Contains(err.Error(), "r1") || !strings.Contains(err.Error(), "core") {
			t.Errorf("Get: error %q does not name the run and solution", err)
		}
	})

	t.Run("ListByRun", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()

		for _, sol := range []string{"core", "sales"} {
			_ = repo.Put(ctx, domain.DeployRecord{
				RunID: "r1", Solution: sol,
				State: domain.SolutionPublished, Version: version, UpdatedAt: now,
			})
		}
		_ = repo.Put(ctx, domain.DeployRecord{
			RunID: "r2", Solution: "core",
			State: domain.SolutionStaged, Version: version, UpdatedAt: now,
		})

		got, err := repo.ListByRun(ctx, "r1")
		if err != nil {
			t.Fatalf("ListByRun: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("ListByRun: got %d, want 2", len(got))
		}
	})

	t.Run("DeleteByRun", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()

		_ = repo.Put(ctx, domain.DeployRecord{
			RunID: "r1", Solution: "core",
			State: domain.SolutionPublished, Version: version, UpdatedAt: now,
		})
		_ = repo.Put(ctx, domain.DeployRecord{
			RunID: "r1", Solution: "sales",
			State: domain.SolutionPublished, Version: version, UpdatedAt: now,
		})

		if err := repo.DeleteByRun(ctx, "r1"); err != nil {
			t.Fatalf("DeleteByRun: %v", err)
		}

		got, _ := repo.ListByRun(ctx, "r1")
		if len(got) != 0 {
			t.Fatalf("after delete: got %d records, want 0", len(got))
		}
	})
}
