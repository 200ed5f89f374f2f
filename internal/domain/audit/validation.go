package audit

import (
	"fmt"
	"strings"
)

// ValidateCreateInput validates fields required to create an audit.
func ValidateCreateInput(req CreateRequest) error {
	if strings.TrimSpace(req.TemplateID) == "" {
		return fmt.Errorf("%w: template_id is required", ErrInvalidInput)
	}
	if (req.Latitude == nil) != (req.Longitude == nil) {
		return fmt.Errorf("%w: latitude and longitude go together", ErrInvalidInput)
	}
	return nil
}

// ValidateTransition validates a requested status change. Status only
// moves forward and completed is terminal.
func ValidateTransition(from, to Status) error {
	if from == StatusCompleted {
		return ErrSessionLocked
	}
	switch from {
	case StatusDraft:
		if to == StatusDraft || to == StatusInProgress || to == StatusCompleted {
			return nil
		}
	case StatusInProgress:
		if to == StatusInProgress || to == StatusCompleted {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
