package syncer

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrTotalFailure indicates no item of a non-empty submission was saved.
	ErrTotalFailure = errors.New("no items were saved")
	// ErrNoSession indicates a submit without a server session.
	ErrNoSession = errors.New("no server session")
)

// TransientError is a timeout, dropped connection or rate-limit response.
// The operation may succeed if retried.
type TransientError struct {
	Op         string
	StatusCode int
	RetryAfter time.Duration
	Err        error
}

func (e *TransientError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: transient failure", e.Op)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *TransientError) Unwrap() error { return e.Err }

// ClientError is a definitive rejection. Retrying cannot fix it.
type ClientError struct {
	Op         string
	StatusCode int
	Code       string
	Message    string
}

func (e *ClientError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: rejected with %d %s: %s", e.Op, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: rejected with %d: %s", e.Op, e.StatusCode, e.Message)
}

// PartialSaveError lists the items a submission could not save.
type PartialSaveError struct {
	Saved  []string
	Failed []string
}

func (e *PartialSaveError) Error() string {
	return fmt.Sprintf("saved %d items, %d failed: %s", len(e.Saved), len(e.Failed), strings.Join(e.Failed, ", "))
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsClientError reports whether err is a definitive rejection.
func IsClientError(err error) bool {
	var ce *ClientError
	return errors.As(err, &ce)
}
