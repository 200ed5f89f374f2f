package mcp

import (
	"errors"
	"fmt"

	"github.com/rpggio/fieldaudit/internal/domain/audit"
	"github.com/rpggio/fieldaudit/internal/domain/geofence"
	"github.com/rpggio/fieldaudit/internal/domain/response"
	"github.com/rpggio/fieldaudit/internal/domain/session"
	"github.com/rpggio/fieldaudit/internal/domain/syncer"
)

// APIError represents an MCP error response.
type APIError struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	Details      any    `json:"details,omitempty"`
	RecoveryHint string `json:"recovery_hint,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// validationDetails is attached to VALIDATION_FAILED errors.
type validationDetails struct {
	Reason   string   `json:"reason"`
	ItemIDs  []string `json:"item_ids,omitempty"`
	Distance float64  `json:"distance_m,omitempty"`
}

var validationHints = map[string]string{
	session.ReasonRequiredMissing:      "Answer the listed items, then submit again",
	session.ReasonLocationMissing:      "Call capture_location on site first",
	session.ReasonLocationBlocked:      "Move to the site and capture the location again",
	session.ReasonConfirmationRequired: "Submit again with confirm_warning=true to accept the distance",
	session.ReasonOutsideStartRadius:   "Move closer to the site and capture the location again",
}

// MapError maps domain errors to MCP error codes. Unrecognised errors map
// to INTERNAL with the original message.
func MapError(err error) *APIError {
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	var ve *session.ValidationError
	if errors.As(err, &ve) {
		return &APIError{
			Code:         "VALIDATION_FAILED",
			Message:      ve.Error(),
			Details:      validationDetails{Reason: ve.Reason, ItemIDs: ve.ItemIDs, Distance: ve.Distance},
			RecoveryHint: validationHints[ve.Reason],
		}
	}
	var ce *syncer.ClientError
	if errors.As(err, &ce) {
		return &APIError{Code: "REJECTED", Message: ce.Error(), Details: map[string]any{"status": ce.StatusCode, "code": ce.Code}, RecoveryHint: "Fix the request; retrying will not help"}
	}

	switch {
	case errors.Is(err, audit.ErrSessionLocked):
		return &APIError{Code: "SESSION_LOCKED", Message: "audit is completed and read-only", RecoveryHint: "Open a new audit to record more answers"}
	case errors.Is(err, session.ErrSessionNotFound):
		return &APIError{Code: "SESSION_NOT_FOUND", Message: "no open audit for key", RecoveryHint: "Call open_audit first"}
	case errors.Is(err, session.ErrSessionClosed):
		return &APIError{Code: "SESSION_CLOSED", Message: "audit was closed", RecoveryHint: "Call open_audit to resume from the draft"}
	case errors.Is(err, session.ErrNotStarted):
		return &APIError{Code: "NOT_STARTED", Message: err.Error(), RecoveryHint: "Call capture_location on site first"}
	case errors.Is(err, session.ErrValidation):
		return &APIError{Code: "INVALID_INPUT", Message: err.Error()}
	case errors.Is(err, response.ErrUnknownItem):
		return &APIError{Code: "UNKNOWN_ITEM", Message: err.Error(), RecoveryHint: "Use item IDs from get_audit"}
	case errors.Is(err, response.ErrUnknownOption):
		return &APIError{Code: "UNKNOWN_OPTION", Message: err.Error(), RecoveryHint: "Use option IDs from get_audit"}
	case errors.Is(err, response.ErrDerivedField):
		return &APIError{Code: "DERIVED_FIELD", Message: err.Error(), RecoveryHint: "Edit the attempt items instead"}
	case errors.Is(err, geofence.ErrNoFix):
		return &APIError{Code: "LOCATION_UNAVAILABLE", Message: err.Error(), RecoveryHint: "Pass latitude and longitude explicitly"}
	case errors.Is(err, syncer.ErrTotalFailure):
		return &APIError{Code: "SYNC_FAILED", Message: err.Error(), RecoveryHint: "Answers are kept on the device; submit again when online"}
	case errors.Is(err, syncer.ErrNoSession):
		return &APIError{Code: "NO_SERVER_SESSION", Message: err.Error(), RecoveryHint: "Submit once to create the server session"}
	case syncer.IsTransient(err):
		return &APIError{Code: "NETWORK_UNAVAILABLE", Message: err.Error(), RecoveryHint: "Answers are kept on the device; try again shortly"}
	default:
		return &APIError{Code: "INTERNAL", Message: err.Error()}
	}
}
