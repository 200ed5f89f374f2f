package audit

import "errors"

var (
	// ErrAuditNotFound indicates the audit doesn't exist.
	ErrAuditNotFound = errors.New("audit not found")
	// ErrSessionLocked indicates the audit is completed and read-only.
	ErrSessionLocked = errors.New("audit session is completed and locked")
	// ErrIncomplete indicates items are still unanswered.
	ErrIncomplete = errors.New("audit has unanswered items")
	// ErrUnknownItem indicates an item outside the audit's template.
	ErrUnknownItem = errors.New("item not in audit template")
	// ErrInvalidTransition indicates an invalid status transition.
	ErrInvalidTransition = errors.New("invalid audit status transition")
	// ErrInvalidInput indicates invalid input for audit operations.
	ErrInvalidInput = errors.New("invalid audit input")
	// ErrTokenReused indicates an idempotency token bound to a different audit identity.
	ErrTokenReused = errors.New("idempotency token already used for a different audit")
)
