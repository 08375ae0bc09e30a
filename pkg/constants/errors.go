package constants

import (
	"errors"
	"fmt"
	"time"
)

// Errors
var (
	ErrQueryBuild         = errors.New("query build failed")
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrMaxRetries         = errors.New("maximum retries exceeded")
	ErrLockTimeout        = errors.New("cache lock wait timeout exceeded")
	ErrNotFound           = errors.New("not found")
)

var (
	ErrNoRedisURL  = errors.New("redis url not set")
	ErrNoSphinxDSN = errors.New("sphinx dsn not set")
	ErrNoResolver  = errors.New("index resolver not set")
	ErrCacheMiss   = errors.New("cache miss")
)

// QueryBuildError reports a malformed request shape. It is returned before
// any backend call and is never retried.
type QueryBuildError struct {
	Clause string
	Reason string
}

func (e *QueryBuildError) Error() string {
	if e.Clause == "" {
		return fmt.Sprintf("%v: %s", ErrQueryBuild, e.Reason)
	}
	return fmt.Sprintf("%v: %s: %s", ErrQueryBuild, e.Clause, e.Reason)
}

func (e *QueryBuildError) Is(target error) bool {
	return target == ErrQueryBuild
}

// BuildErrorf creates a QueryBuildError for the given clause.
func BuildErrorf(clause, format string, args ...any) *QueryBuildError {
	return &QueryBuildError{Clause: clause, Reason: fmt.Sprintf(format, args...)}
}

// BackendUnavailableError is a transient failure of the search engine or the
// queue store. The write coordinator fails over on it.
type BackendUnavailableError struct {
	Backend string
	Index   string
	Err     error
}

func (e *BackendUnavailableError) Error() string {
	return fmt.Sprintf("%v: %s (index %q): %v", ErrBackendUnavailable, e.Backend, e.Index, e.Err)
}

func (e *BackendUnavailableError) Is(target error) bool {
	return target == ErrBackendUnavailable
}

func (e *BackendUnavailableError) Unwrap() error {
	return e.Err
}

// MaxRetriesExceededError is terminal: neither the engine nor the queue
// accepted the mutation within the retry budget.
type MaxRetriesExceededError struct {
	Index    string
	Attempts int
	Last     error
}

func (e *MaxRetriesExceededError) Error() string {
	return fmt.Sprintf("%v: index %q after %d attempts: %v", ErrMaxRetries, e.Index, e.Attempts, e.Last)
}

func (e *MaxRetriesExceededError) Is(target error) bool {
	return target == ErrMaxRetries
}

func (e *MaxRetriesExceededError) Unwrap() error {
	return e.Last
}

// LockTimeoutError is returned when a recompute lock was neither acquired
// nor followed by a populated cache entry within the wait budget.
type LockTimeoutError struct {
	Key    string
	Waited time.Duration
}

func (e *LockTimeoutError) Error() string {
	return fmt.Sprintf("%v: %s after %s", ErrLockTimeout, e.Key, e.Waited)
}

func (e *LockTimeoutError) Is(target error) bool {
	return target == ErrLockTimeout
}

// NotFoundError reports an unknown reference, such as an index id.
type NotFoundError struct {
	Kind string
	ID   any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v: %v", e.Kind, e.ID, ErrNotFound)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}
