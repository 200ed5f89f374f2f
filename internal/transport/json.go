package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rpggio/fieldaudit/internal/domain/activity"
	"github.com/rpggio/fieldaudit/internal/domain/audit"
	"github.com/rpggio/fieldaudit/internal/domain/template"
)

// Error codes carried in error bodies.
const (
	CodeInvalidInput      = "INVALID_INPUT"
	CodeNotFound          = "NOT_FOUND"
	CodeUnknownItem       = "UNKNOWN_ITEM"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeSessionLocked     = "SESSION_LOCKED"
	CodeIncomplete        = "INCOMPLETE"
	CodeTokenReused       = "TOKEN_REUSED"
	CodeInternal          = "INTERNAL"
)

const maxBodyBytes = 1 << 20

// ErrorBody is the JSON body of every failed request.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("parse body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorBody{Code: code, Message: message})
}

// statusFor maps domain errors onto an HTTP status and error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, template.ErrTemplateNotFound),
		errors.Is(err, audit.ErrAuditNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, audit.ErrSessionLocked):
		return http.StatusConflict, CodeSessionLocked
	case errors.Is(err, audit.ErrIncomplete):
		return http.StatusConflict, CodeIncomplete
	case errors.Is(err, audit.ErrTokenReused):
		return http.StatusConflict, CodeTokenReused
	case errors.Is(err, audit.ErrUnknownItem):
		return http.StatusBadRequest, CodeUnknownItem
	case errors.Is(err, audit.ErrInvalidTransition):
		return http.StatusBadRequest, CodeInvalidTransition
	case errors.Is(err, audit.ErrInvalidInput),
		errors.Is(err, template.ErrInvalidInput),
		errors.Is(err, template.ErrDuplicateItem),
		errors.Is(err, template.ErrUnknownConditional),
		errors.Is(err, activity.ErrInvalidInput):
		return http.StatusBadRequest, CodeInvalidInput
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}
