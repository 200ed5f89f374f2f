// Package completion derives item, category and overall progress from a
// template and the current responses.
package completion

import (
	"strings"

	"github.com/rpggio/fieldaudit/internal/domain/response"
	"github.com/rpggio/fieldaudit/internal/domain/template"
	"github.com/rpggio/fieldaudit/internal/domain/visibility"
)

// CategoryStatus is the derived progress of one category.
type CategoryStatus struct {
	Category       string `json:"category"`
	CompletedCount int    `json:"completed_count"`
	TotalCount     int    `json:"total_count"`
	IsComplete     bool   `json:"is_complete"`
}

// Overall summarises progress across categories.
type Overall struct {
	CompletedCount int  `json:"completed_count"`
	TotalCount     int  `json:"total_count"`
	IsComplete     bool `json:"is_complete"`
}

// IsItemComplete reports whether a response satisfies its field type.
func IsItemComplete(ft template.FieldType, resp response.ItemResponse) bool {
	switch ft {
	case template.FieldOptionSelect, template.FieldDropdown, template.FieldSingleAnswer:
		return resp.SelectedOptionID != "" || resp.Mark != nil || hasStatus(resp.Status)
	case template.FieldMultipleAnswer:
		return len(resp.Selections) > 0
	case template.FieldImageUpload:
		return resp.PhotoRef != ""
	case template.FieldShortAnswer, template.FieldLongAnswer, template.FieldNumber,
		template.FieldDate, template.FieldTime, template.FieldDescription,
		template.FieldScanCode, template.FieldSignature:
		return strings.TrimSpace(resp.Text) != ""
	case template.FieldTask, template.FieldSection, template.FieldSubSection:
		return hasStatus(resp.Status)
	default:
		return hasStatus(resp.Status)
	}
}

func hasStatus(status string) bool {
	status = strings.TrimSpace(status)
	return status != "" && status != response.StatusPending
}

// Responses is the read view of a response store.
type Responses interface {
	Get(itemID string) (response.ItemResponse, bool)
}

// CountsTowardCompletion reports whether the item is done for category
// purposes: hidden items are inapplicable and count as done.
func CountsTowardCompletion(item template.ChecklistItem, responses Responses, visible map[string]bool) bool {
	if !visible[item.ID] {
		return true
	}
	resp, _ := responses.Get(item.ID)
	return IsItemComplete(template.Classify(item), resp)
}

// CategoryStatuses recomputes progress for every category over all of its
// answerable items, in template order. Pass a nil visible set to have it
// computed from responses.
func CategoryStatuses(tpl *template.Template, responses Responses, visible map[string]bool) []CategoryStatus {
	if visible == nil {
		visible = visibility.VisibleSet(tpl, responses)
	}

	byCategory := make(map[string]*CategoryStatus)
	var order []string
	for _, item := range tpl.Items {
		if !template.IsAnswerable(template.Classify(item)) {
			continue
		}
		status, ok := byCategory[item.Category]
		if !ok {
			status = &CategoryStatus{Category: item.Category}
			byCategory[item.Category] = status
			order = append(order, item.Category)
		}
		status.TotalCount++
		if CountsTowardCompletion(item, responses, visible) {
			status.CompletedCount++
		}
	}

	out := make([]CategoryStatus, 0, len(order))
	for _, name := range order {
		status := byCategory[name]
		status.IsComplete = status.TotalCount > 0 && status.CompletedCount == status.TotalCount
		out = append(out, *status)
	}
	return out
}

// Summarize folds category statuses into overall progress.
func Summarize(statuses []CategoryStatus) Overall {
	var overall Overall
	for _, status := range statuses {
		overall.CompletedCount += status.CompletedCount
		overall.TotalCount += status.TotalCount
	}
	overall.IsComplete = overall.TotalCount > 0 && overall.CompletedCount == overall.TotalCount
	return overall
}

// VisibleCategoriesComplete reports whether every category with at least one
// visible answerable item is complete, and at least one such category exists.
func VisibleCategoriesComplete(tpl *template.Template, responses Responses, visible map[string]bool) bool {
	if visible == nil {
		visible = visibility.VisibleSet(tpl, responses)
	}

	seen := make(map[string]bool)
	for _, item := range tpl.Items {
		if visible[item.ID] && template.IsAnswerable(template.Classify(item)) {
			seen[item.Category] = true
		}
	}
	if len(seen) == 0 {
		return false
	}

	for _, status := range CategoryStatuses(tpl, responses, visible) {
		if seen[status.Category] && !status.IsComplete {
			return false
		}
	}
	return true
}

// RequiredMissing lists visible required items in scope that are not
// complete. An empty category selects every item.
func RequiredMissing(tpl *template.Template, responses Responses, visible map[string]bool, category, section string) []string {
	if visible == nil {
		visible = visibility.VisibleSet(tpl, responses)
	}

	var missing []string
	for _, item := range tpl.ItemsIn(category, section) {
		if !item.Required || !visible[item.ID] {
			continue
		}
		ft := template.Classify(item)
		if !template.IsAnswerable(ft) {
			continue
		}
		resp, _ := responses.Get(item.ID)
		if !IsItemComplete(ft, resp) {
			missing = append(missing, item.ID)
		}
	}
	return missing
}
