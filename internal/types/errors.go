package types

import "errors"

// Shared error taxonomy. Services wrap these sentinels with context via
// fmt.Errorf("...: %w", ...); the HTTP layer maps them to response codes.
var (
	// ErrValidation marks bad input that the caller can correct.
	ErrValidation = errors.New("validation failed")

	// ErrDuplicate marks an idempotency violation (e.g. re-uploading the
	// same document bytes for the same tenant).
	ErrDuplicate = errors.New("duplicate resource")

	// ErrNotFound marks a missing resource under the caller's tenant scope.
	ErrNotFound = errors.New("resource not found")

	// ErrDependency marks an unavailable collaborator (datastore, object
	// store, embedding or generation backend). Retryable.
	ErrDependency = errors.New("dependency unavailable")

	// ErrDecryption marks a key/data mismatch. Never surfaced with detail
	// to the end user; log with identifiers only.
	ErrDecryption = errors.New("decryption failed")

	// ErrIsolationViolation marks an internal tenant-isolation breach.
	// Operations must fail closed and log this at error level.
	ErrIsolationViolation = errors.New("tenant isolation violation")
)
