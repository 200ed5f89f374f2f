package response

import "strings"

// Item statuses recorded for task-style answers and by the sync protocol.
const (
	StatusPending       = "pending"
	StatusCompleted     = "completed"
	StatusPass          = "pass"
	StatusFail          = "fail"
	StatusNotApplicable = "not_applicable"
)

// ItemResponse is the local answer state for one template item.
type ItemResponse struct {
	ItemID           string   `json:"item_id"`
	Status           string   `json:"status,omitempty"`
	SelectedOptionID string   `json:"selected_option_id,omitempty"`
	Selections       []string `json:"selections,omitempty"`
	Text             string   `json:"text,omitempty"`
	PhotoRef         string   `json:"photo_ref,omitempty"`
	Mark             *float64 `json:"mark,omitempty"`
}

// IsEmpty reports whether the response carries no answer at all.
func (r ItemResponse) IsEmpty() bool {
	return (r.Status == "" || r.Status == StatusPending) &&
		r.SelectedOptionID == "" &&
		len(r.Selections) == 0 &&
		strings.TrimSpace(r.Text) == "" &&
		r.PhotoRef == "" &&
		r.Mark == nil
}

// Clone returns a deep copy.
func (r ItemResponse) Clone() ItemResponse {
	out := r
	if r.Selections != nil {
		out.Selections = append([]string(nil), r.Selections...)
	}
	if r.Mark != nil {
		mark := *r.Mark
		out.Mark = &mark
	}
	return out
}
