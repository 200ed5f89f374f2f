package template

import "time"

// Template is an ordered checklist that audits are run against.
type Template struct {
	ID        string          `json:"id" yaml:"id"`
	Name      string          `json:"name" yaml:"name"`
	Items     []ChecklistItem `json:"items" yaml:"items"`
	CreatedAt time.Time       `json:"created_at" yaml:"-"`
}

// ChecklistItem is a single question in a template. Items are immutable once
// a session has loaded them.
type ChecklistItem struct {
	ID                  string   `json:"id" yaml:"id"`
	Category            string   `json:"category" yaml:"category"`
	Section             string   `json:"section,omitempty" yaml:"section"`
	Title               string   `json:"title" yaml:"title"`
	InputType           string   `json:"input_type,omitempty" yaml:"input_type"`
	Options             []Option `json:"options,omitempty" yaml:"options"`
	Required            bool     `json:"required" yaml:"required"`
	ConditionalItemID   string   `json:"conditional_item_id,omitempty" yaml:"conditional_item_id"`
	ConditionalOperator string   `json:"conditional_operator,omitempty" yaml:"conditional_operator"`
	ConditionalValue    string   `json:"conditional_value,omitempty" yaml:"conditional_value"`
	Position            int      `json:"position" yaml:"-"`
}

// Option is a selectable answer for option-bearing items.
type Option struct {
	ID   string   `json:"id" yaml:"id"`
	Text string   `json:"text" yaml:"text"`
	Mark *float64 `json:"mark,omitempty" yaml:"mark"`
}

// TemplateSummary is a lightweight representation for listing
type TemplateSummary struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	ItemCount  int       `json:"item_count"`
	Categories []string  `json:"categories"`
	CreatedAt  time.Time `json:"created_at"`
}

// HasCondition reports whether the item's visibility depends on another item.
func (i ChecklistItem) HasCondition() bool {
	return i.ConditionalItemID != ""
}

// Option returns the option with the given ID.
func (i ChecklistItem) Option(id string) (Option, bool) {
	for _, opt := range i.Options {
		if opt.ID == id {
			return opt, true
		}
	}
	return Option{}, false
}

// Item returns the item with the given ID.
func (t *Template) Item(id string) (ChecklistItem, bool) {
	for _, item := range t.Items {
		if item.ID == id {
			return item, true
		}
	}
	return ChecklistItem{}, false
}

// Index returns the template items keyed by ID.
func (t *Template) Index() map[string]ChecklistItem {
	index := make(map[string]ChecklistItem, len(t.Items))
	for _, item := range t.Items {
		index[item.ID] = item
	}
	return index
}

// Categories returns category names in first-seen order.
func (t *Template) Categories() []string {
	seen := make(map[string]bool)
	var categories []string
	for _, item := range t.Items {
		if seen[item.Category] {
			continue
		}
		seen[item.Category] = true
		categories = append(categories, item.Category)
	}
	return categories
}

// ItemsIn returns the items of a category, optionally narrowed to a section.
// An empty category selects every item.
func (t *Template) ItemsIn(category, section string) []ChecklistItem {
	var items []ChecklistItem
	for _, item := range t.Items {
		if category != "" && item.Category != category {
			continue
		}
		if section != "" && item.Section != section {
			continue
		}
		items = append(items, item)
	}
	return items
}

// Summary builds a listing entry for the template.
func (t *Template) Summary() TemplateSummary {
	return TemplateSummary{
		ID:         t.ID,
		Name:       t.Name,
		ItemCount:  len(t.Items),
		Categories: t.Categories(),
		CreatedAt:  t.CreatedAt,
	}
}
