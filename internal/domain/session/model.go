package session

import (
	"time"

	"github.com/rpggio/fieldaudit/internal/domain/audit"
	"github.com/rpggio/fieldaudit/internal/domain/completion"
	"github.com/rpggio/fieldaudit/internal/domain/draft"
	"github.com/rpggio/fieldaudit/internal/domain/geofence"
	"github.com/rpggio/fieldaudit/internal/domain/response"
	"github.com/rpggio/fieldaudit/internal/domain/syncer"
	"github.com/rpggio/fieldaudit/internal/domain/template"
)

// Options configures controllers created by a Service.
type Options struct {
	StartRadius float64
	Submit      geofence.Thresholds
	Writer      draft.WriterOptions
}

// DefaultOptions returns the standard geofence and draft settings.
func DefaultOptions() Options {
	return Options{
		StartRadius: 100,
		Submit:      geofence.Thresholds{Entry: 150, Block: 500},
		Writer:      draft.WriterOptions{Debounce: 750 * time.Millisecond, FlushInterval: 30 * time.Second},
	}
}

// OpenRequest identifies the session to open.
type OpenRequest struct {
	TemplateID string
	ScheduleID string
	LocationID string
	Expected   *geofence.Coordinate
}

// Key returns the draft identity of the request.
func (r OpenRequest) Key() draft.Key {
	return draft.Key{TemplateID: r.TemplateID, ScheduleID: r.ScheduleID, LocationID: r.LocationID}
}

// SubmitOptions controls one submission.
type SubmitOptions struct {
	Fix            *geofence.Fix
	ConfirmWarning bool
	Category       string
	Section        string
}

// ItemView is one template item with its derived state.
type ItemView struct {
	Item      template.ChecklistItem `json:"item"`
	FieldType template.FieldType     `json:"field_type"`
	Visible   bool                   `json:"visible"`
	Derived   bool                   `json:"derived,omitempty"`
	Complete  bool                   `json:"complete"`
	Response  *response.ItemResponse `json:"response,omitempty"`
}

// View is a read-only picture of a session.
type View struct {
	Key              string                      `json:"key"`
	TemplateID       string                      `json:"template_id"`
	TemplateName     string                      `json:"template_name"`
	SessionID        string                      `json:"session_id,omitempty"`
	Status           audit.Status                `json:"status"`
	Started          bool                        `json:"started"`
	CurrentStep      int                         `json:"current_step"`
	LocationVerified bool                        `json:"location_verified"`
	Location         *geofence.Fix               `json:"location,omitempty"`
	Items            []ItemView                  `json:"items"`
	Categories       []completion.CategoryStatus `json:"categories"`
	Overall          completion.Overall          `json:"overall"`
	LastOutcome      syncer.Outcome              `json:"last_outcome,omitempty"`
	PendingItems     []string                    `json:"pending_items,omitempty"`
	LastRefresh      time.Time                   `json:"last_refresh,omitempty"`
}
