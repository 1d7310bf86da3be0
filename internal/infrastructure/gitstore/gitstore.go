// Package gitstore records exported solution sources in a git repository.
// Exports land as a single commit covering every changed solution folder,
// pushed to the configured remote when one is set.
package gitstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Store commits and pushes snapshot changes in an existing clone.
type Store struct {
	// Remote names the push target. Empty disables pushing, which is the
	// local development mode.
	Remote string

	// AuthorName and AuthorEmail identify the pipeline in history.
	AuthorName  string
	AuthorEmail string

	repo *git.Repository
	now  func() time.Time
}

// Open binds a Store to the working clone at dir.
func Open(dir string) (*Store, error) {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return nil, fmt.Errorf("open repository %q: %w", dir, err)
	}
	return &Store{repo: repo, now: time.Now}, nil
}

// NewFromRepo binds a Store to an already opened repository.
func NewFromRepo(repo *git.Repository) *Store {
	return &Store{repo: repo, now: time.Now}
}

func (s *Store) author() *object.Signature {
	name := s.AuthorName
	if name == "" {
		name = "alm pipeline"
	}
	email := s.AuthorEmail
	if email == "" {
		email = "alm@localhost"
	}
	return &object.Signature{Name: name, Email: email, When: s.now()}
}

// Snapshot stages every pending change and commits it with the given
// message, then pushes when a remote is configured. A clean worktree is a
// no-op so re-running an export that changed nothing leaves history alone.
func (s *Store) Snapshot(ctx context.Context, message string) error {
	wt, err := s.repo.Worktree()
	if err != nil {
		return fmt.Errorf("worktree: %w", err)
	}

	status, err := wt.Status()
	if err != nil {
		return fmt.Errorf("status: %w", err)
	}
	if status.IsClean() {
		return nil
	}

	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return fmt.Errorf("stage changes: %w", err)
	}
	if _, err := wt.Commit(message, &git.CommitOptions{Author: s.author()}); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	if s.Remote == "" {
		return nil
	}
	err = s.repo.PushContext(ctx, &git.PushOptions{RemoteName: s.Remote})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("push to %q: %w", s.Remote, err)
	}
	return nil
}
