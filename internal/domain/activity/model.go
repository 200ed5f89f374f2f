package activity

import "time"

// ActivityType represents the type of activity event
type ActivityType string

const (
	TypeAuditCreated   ActivityType = "audit_created"
	TypeAuditUpdated   ActivityType = "audit_updated"
	TypeItemsSaved     ActivityType = "items_saved"
	TypeAuditCompleted ActivityType = "audit_completed"
)

// ActivityEntry represents an event in an audit's activity log
type ActivityEntry struct {
	ID           int64        `json:"id"`
	AuditID      string       `json:"audit_id"`
	ItemID       *string      `json:"item_id,omitempty"`
	ActivityType ActivityType `json:"type"`
	Summary      string       `json:"summary"`
	Details      string       `json:"details,omitempty"` // JSON string
	CreatedAt    time.Time    `json:"created_at"`
}
