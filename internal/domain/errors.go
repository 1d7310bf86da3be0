package domain

import "errors"

var (
	// ErrNotFound indicates that a requested resource does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates that a resource with the same identity
	// already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidArgument indicates that a caller-provided value violates
	// a precondition.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrMalformedVersion indicates that a solution version string could
	// not be parsed. Version parse failures abort the run rather than
	// guessing at the caller's intent.
	ErrMalformedVersion = errors.New("malformed solution version")

	// ErrIdentityUnresolved indicates that the designated service identity
	// could not be resolved (not found, or ambiguous). Process ownership
	// must never be silently skipped, so this aborts the run before any
	// activation side effect.
	ErrIdentityUnresolved = errors.New("service identity unresolved")
)
