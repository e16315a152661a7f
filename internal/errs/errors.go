// Package errs defines the typed error taxonomy used across the ingestion
// pipeline so callers can branch with errors.Is/errors.As instead of
// string-matching.
package errs

import (
	"errors"
	"fmt"
)

// Sentinel errors for simple not-found/conflict cases that carry no extra
// context beyond "which kind".
var (
	ErrRunNotFound = errors.New("run not found")
	ErrJobNotFound = errors.New("job not found")
)

// UnavailableError means the upstream source (career page, API) could not
// be reached at all; retry later is reasonable.
type UnavailableError struct {
	Company string
	Err     error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("company %s unavailable: %v", e.Company, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// RateLimited means the upstream source pushed back (HTTP 429 or similar);
// the caller should back off before retrying.
type RateLimited struct {
	Company    string
	RetryAfter string
}

func (e *RateLimited) Error() string {
	if e.RetryAfter != "" {
		return fmt.Sprintf("company %s rate limited, retry after %s", e.Company, e.RetryAfter)
	}
	return fmt.Sprintf("company %s rate limited", e.Company)
}

// FormatError means the response was reachable but didn't parse the way
// the adapter expected (schema drift, malformed HTML).
type FormatError struct {
	Company string
	Err     error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("company %s response format error: %v", e.Company, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// AbortedRun means the run was aborted while an operation was in flight;
// the caller should stop its own work without treating this as a failure.
type AbortedRun struct {
	RunID int64
}

func (e *AbortedRun) Error() string {
	return fmt.Sprintf("run %d was aborted", e.RunID)
}

// OwnershipError means the caller asked about a run/job that exists but
// belongs to a different user. Maps to HTTP 404, not 403, so as not to
// reveal existence to a non-owner.
type OwnershipError struct {
	RunID  int64
	UserID string
}

func (e *OwnershipError) Error() string {
	return fmt.Sprintf("run %d is not owned by user %s", e.RunID, e.UserID)
}

// ConflictError means the requested state transition collides with one
// already in progress (e.g. starting a run while one is active). Maps to
// HTTP 409.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict: %s", e.Reason)
}

// IsRetryable reports whether the operation that produced err is worth
// retrying without operator intervention.
func IsRetryable(err error) bool {
	var unavailable *UnavailableError
	var rateLimited *RateLimited
	return errors.As(err, &unavailable) || errors.As(err, &rateLimited)
}
