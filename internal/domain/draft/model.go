package draft

import (
	"strings"
	"time"

	"github.com/rpggio/fieldaudit/internal/domain/geofence"
	"github.com/rpggio/fieldaudit/internal/domain/response"
)

const (
	keyPrefix = "draft:"
	noneValue = "none"
)

// Key identifies one logical audit session on the device.
type Key struct {
	TemplateID string `json:"template_id"`
	ScheduleID string `json:"schedule_id,omitempty"`
	LocationID string `json:"location_id,omitempty"`
}

// String returns the storage key, e.g. "draft:tpl-1:none:store-9".
func (k Key) String() string {
	return keyPrefix + k.TemplateID + ":" + orNone(k.ScheduleID) + ":" + orNone(k.LocationID)
}

// ParseKey reverses Key.String.
func ParseKey(raw string) (Key, bool) {
	if !strings.HasPrefix(raw, keyPrefix) {
		return Key{}, false
	}
	parts := strings.Split(strings.TrimPrefix(raw, keyPrefix), ":")
	if len(parts) != 3 || parts[0] == "" {
		return Key{}, false
	}
	return Key{TemplateID: parts[0], ScheduleID: fromNone(parts[1]), LocationID: fromNone(parts[2])}, true
}

func orNone(v string) string {
	if v == "" {
		return noneValue
	}
	return v
}

func fromNone(v string) string {
	if v == noneValue {
		return ""
	}
	return v
}

// Snapshot is the resumable local state of a session.
type Snapshot struct {
	Key              Key                              `json:"key"`
	Token            string                           `json:"token"`
	SessionID        string                           `json:"session_id,omitempty"`
	Status           string                           `json:"status,omitempty"`
	Responses        map[string]response.ItemResponse `json:"responses"`
	CurrentStep      int                              `json:"current_step"`
	LocationCaptured bool                             `json:"location_captured"`
	LocationVerified bool                             `json:"location_verified"`
	Location         *geofence.Fix                    `json:"location,omitempty"`
	SavedAt          time.Time                        `json:"saved_at"`
}
