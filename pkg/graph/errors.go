package graph

import "errors"

// Error taxonomy for repository and index operations. Callers classify
// failures with errors.Is; the repository wraps these with the failing
// statement or entity for context.
var (
	// ErrValidation indicates malformed or missing required input.
	// Never retried, always reported to the caller immediately.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound indicates a referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a unique-constraint violation on create,
	// or a refused cascade (deleting a non-empty parent without force).
	ErrConflict = errors.New("conflict")

	// ErrScopeViolation indicates a cross-tenant or cross-graph reference.
	ErrScopeViolation = errors.New("scope violation")

	// ErrIndexStale indicates the vector index is out of sync with the
	// store; indexed search degrades to brute force until a rebuild.
	ErrIndexStale = errors.New("vector index stale")

	// ErrStorage indicates the underlying statement execution failed.
	ErrStorage = errors.New("storage failure")
)
