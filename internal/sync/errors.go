// Package sync implements the bidirectional synchronization engine: the
// incremental pull service, the push service, webhook ingestion with loop
// suppression, conflict detection, and sync health aggregation.
package sync

import "errors"

// Sentinel errors for sync operations. Use errors.Is() to check.
var (
	// ErrUnauthenticated indicates an inbound webhook carried a missing,
	// unknown or inactive API key. Never retried.
	ErrUnauthenticated = errors.New("webhook unauthenticated")

	// ErrInvalidSignature indicates the webhook HMAC signature did not
	// match the configured shared secret. Never retried.
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// ErrTenantMismatch indicates the referenced content does not belong
	// to the site bound to the presented credentials.
	ErrTenantMismatch = errors.New("content does not belong to site")

	// ErrRemoteNotFound indicates a push target vanished remotely.
	// Surfaced to the caller, never retried automatically.
	ErrRemoteNotFound = errors.New("remote post not found")

	// ErrNotPushed indicates an update/publish was requested for content
	// that was never pushed (no remote post id yet).
	ErrNotPushed = errors.New("content has no remote post id")
)

// ItemError records one item's failure inside a partial-failure-tolerant
// batch. The batch continues past it.
type ItemError struct {
	ID      string `json:"id"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Stable error codes reported to callers.
const (
	CodeUnauthenticated  = "UNAUTHENTICATED"
	CodeInvalidSignature = "INVALID_SIGNATURE"
	CodeTenantMismatch   = "TENANT_MISMATCH"
	CodeRemoteNotFound   = "REMOTE_NOT_FOUND"
	CodeThrottled        = "THROTTLED"
	CodeConflict         = "CONFLICT"
	CodeInternal         = "INTERNAL"
)
