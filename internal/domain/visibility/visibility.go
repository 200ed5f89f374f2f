// Package visibility decides which conditional checklist items are shown.
//
// Visibility is always derived from the current responses. Nothing here is
// cached, so callers recompute after every mutation.
package visibility

import (
	"strings"

	"github.com/rpggio/fieldaudit/internal/domain/response"
	"github.com/rpggio/fieldaudit/internal/domain/template"
)

// Responses is the read view of a response store.
type Responses interface {
	Get(itemID string) (response.ItemResponse, bool)
}

// Visible reports whether item is shown given the current responses. An
// item whose referenced item has no resolvable value is hidden, including
// under not_equals.
func Visible(item template.ChecklistItem, index map[string]template.ChecklistItem, responses Responses) bool {
	return visible(item, index, responses, make(map[string]bool))
}

func visible(item template.ChecklistItem, index map[string]template.ChecklistItem, responses Responses, seen map[string]bool) bool {
	if !item.HasCondition() {
		return true
	}
	if seen[item.ID] {
		return false
	}
	seen[item.ID] = true

	ref, ok := index[item.ConditionalItemID]
	if !ok {
		return false
	}
	if !visible(ref, index, responses, seen) {
		return false
	}

	value, ok := ResolveValue(ref, responses)
	if !ok {
		return false
	}
	return Compare(item.ConditionalOperator, value, item.ConditionalValue)
}

// VisibleSet evaluates every template item and returns the visible IDs.
func VisibleSet(tpl *template.Template, responses Responses) map[string]bool {
	index := tpl.Index()
	out := make(map[string]bool, len(tpl.Items))
	for _, item := range tpl.Items {
		if Visible(item, index, responses) {
			out[item.ID] = true
		}
	}
	return out
}

// ResolveValue returns the comparable value of an item: the selected
// option's text for option fields, the free text for answer fields and the
// status otherwise.
func ResolveValue(item template.ChecklistItem, responses Responses) (string, bool) {
	resp, ok := responses.Get(item.ID)
	if !ok {
		return "", false
	}

	var value string
	switch ft := template.Classify(item); {
	case template.IsOptionType(ft):
		if opt, found := item.Option(resp.SelectedOptionID); found {
			value = opt.Text
		}
	case ft == template.FieldMultipleAnswer:
		texts := make([]string, 0, len(resp.Selections))
		for _, id := range resp.Selections {
			if opt, found := item.Option(id); found {
				texts = append(texts, opt.Text)
			} else {
				texts = append(texts, id)
			}
		}
		value = strings.Join(texts, ", ")
	case template.IsTextType(ft):
		value = resp.Text
	default:
		value = resp.Status
		if value == response.StatusPending {
			value = ""
		}
	}

	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	return value, true
}

// Compare applies a conditional operator. Comparison is case-insensitive on
// trimmed values; unknown operators never match.
func Compare(operator, actual, expected string) bool {
	a := strings.ToLower(strings.TrimSpace(actual))
	e := strings.ToLower(strings.TrimSpace(expected))

	switch template.NormalizeOperator(operator) {
	case template.OpEquals:
		return a == e
	case template.OpNotEquals:
		return a != e
	case template.OpContains:
		return strings.Contains(a, e)
	default:
		return false
	}
}
