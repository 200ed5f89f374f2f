package audit

import (
	"strings"
	"time"
)

// Status is the lifecycle state of an audit session.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Item states recorded by the sync protocol.
const (
	ItemPending       = "pending"
	ItemNotApplicable = "not_applicable"
)

// Audit is the server-side record of one audit session.
type Audit struct {
	ID               string     `json:"id"`
	IdempotencyToken string     `json:"idempotency_token,omitempty"`
	TemplateID       string     `json:"template_id"`
	LocationID       string     `json:"location_id,omitempty"`
	ScheduleID       string     `json:"schedule_id,omitempty"`
	Status           Status     `json:"status"`
	Latitude         *float64   `json:"latitude,omitempty"`
	Longitude        *float64   `json:"longitude,omitempty"`
	LocationVerified bool       `json:"location_verified"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

// ItemState is the recorded answer for one item.
type ItemState struct {
	ItemID           string    `json:"item_id"`
	Status           string    `json:"status,omitempty"`
	SelectedOptionID string    `json:"selected_option_id,omitempty"`
	Text             string    `json:"text,omitempty"`
	PhotoRef         string    `json:"photo_ref,omitempty"`
	Mark             *float64  `json:"mark,omitempty"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Answered reports whether the state carries any answer.
func (s ItemState) Answered() bool {
	status := strings.TrimSpace(s.Status)
	return (status != "" && status != ItemPending) ||
		s.SelectedOptionID != "" ||
		strings.TrimSpace(s.Text) != "" ||
		s.PhotoRef != "" ||
		s.Mark != nil
}

// ItemUpdate is the payload for saving one item.
type ItemUpdate struct {
	ItemID           string   `json:"item_id"`
	Status           string   `json:"status,omitempty"`
	SelectedOptionID string   `json:"selected_option_id,omitempty"`
	Text             string   `json:"text,omitempty"`
	PhotoRef         string   `json:"photo_ref,omitempty"`
	Mark             *float64 `json:"mark,omitempty"`
}

// Snapshot is the authoritative audit state with its recorded items.
type Snapshot struct {
	Audit Audit       `json:"audit"`
	Items []ItemState `json:"items"`
}

// CreateRequest describes an audit creation request.
type CreateRequest struct {
	IdempotencyToken string   `json:"idempotency_token"`
	TemplateID       string   `json:"template_id"`
	LocationID       string   `json:"location_id,omitempty"`
	ScheduleID       string   `json:"schedule_id,omitempty"`
	Latitude         *float64 `json:"latitude,omitempty"`
	Longitude        *float64 `json:"longitude,omitempty"`
	LocationVerified bool     `json:"location_verified"`
}

// UpdateRequest describes a partial audit update.
type UpdateRequest struct {
	Status           *Status  `json:"status,omitempty"`
	Latitude         *float64 `json:"latitude,omitempty"`
	Longitude        *float64 `json:"longitude,omitempty"`
	LocationVerified *bool    `json:"location_verified,omitempty"`
}
