package session

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation matches every ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrSessionClosed indicates the controller was torn down.
	ErrSessionClosed = errors.New("session closed")
	// ErrNotStarted indicates the on-site check has not passed yet.
	ErrNotStarted = errors.New("session not started: capture location on site first")
	// ErrSessionNotFound indicates no open session for the key.
	ErrSessionNotFound = errors.New("no open session for key")
)

// Validation reasons.
const (
	ReasonRequiredMissing      = "required_missing"
	ReasonLocationMissing      = "location_missing"
	ReasonLocationBlocked      = "location_blocked"
	ReasonConfirmationRequired = "confirmation_required"
	ReasonOutsideStartRadius   = "outside_start_radius"
)

// ValidationError is a local rejection raised before any network call.
type ValidationError struct {
	Reason   string
	ItemIDs  []string
	Distance float64
}

func (e *ValidationError) Error() string {
	switch e.Reason {
	case ReasonRequiredMissing:
		return fmt.Sprintf("required items missing: %s", strings.Join(e.ItemIDs, ", "))
	case ReasonLocationMissing:
		return "location has not been captured"
	case ReasonLocationBlocked:
		return fmt.Sprintf("captured location is %.0fm from the site; recapture on site", e.Distance)
	case ReasonConfirmationRequired:
		return fmt.Sprintf("captured location is %.0fm from the site; confirm to continue", e.Distance)
	case ReasonOutsideStartRadius:
		return fmt.Sprintf("captured location is %.0fm from the site; move closer to start", e.Distance)
	default:
		return "validation failed: " + e.Reason
	}
}

// Is makes errors.Is(err, ErrValidation) match.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
