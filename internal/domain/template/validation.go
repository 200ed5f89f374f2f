package template

import (
	"fmt"
	"strings"
)

// Conditional operators supported by branching items.
const (
	OpEquals    = "equals"
	OpNotEquals = "not_equals"
	OpContains  = "contains"
)

// NormalizeOperator lower-cases and trims an operator; an empty operator
// defaults to equals.
func NormalizeOperator(op string) string {
	op = strings.ToLower(strings.TrimSpace(op))
	if op == "" {
		return OpEquals
	}
	return op
}

// Validate checks that a template is well formed.
func Validate(tpl *Template) error {
	if tpl == nil || strings.TrimSpace(tpl.Name) == "" {
		return ErrInvalidInput
	}

	seen := make(map[string]bool, len(tpl.Items))
	for _, item := range tpl.Items {
		if strings.TrimSpace(item.ID) == "" || strings.TrimSpace(item.Title) == "" {
			return fmt.Errorf("%w: item id and title are required", ErrInvalidInput)
		}
		if seen[item.ID] {
			return fmt.Errorf("%w: %s", ErrDuplicateItem, item.ID)
		}
		seen[item.ID] = true
	}

	for _, item := range tpl.Items {
		if !item.HasCondition() {
			continue
		}
		if item.ConditionalItemID == item.ID || !seen[item.ConditionalItemID] {
			return fmt.Errorf("%w: %s -> %s", ErrUnknownConditional, item.ID, item.ConditionalItemID)
		}
		switch NormalizeOperator(item.ConditionalOperator) {
		case OpEquals, OpNotEquals, OpContains:
		default:
			return fmt.Errorf("%w: unsupported operator %q on %s", ErrInvalidInput, item.ConditionalOperator, item.ID)
		}
	}
	return nil
}
