package response

import (
	"fmt"
	"slices"

	"github.com/rpggio/fieldaudit/internal/domain/template"
)

// Store holds the per-item responses of one audit session. It is bound to
// the loaded template and rejects item IDs the template does not contain.
// Store is not safe for concurrent use; the session controller serialises
// access.
type Store struct {
	tpl     *template.Template
	index   map[string]template.ChecklistItem
	types   map[string]template.FieldType
	average *AverageGroup
	items   map[string]ItemResponse
}

// NewStore creates an empty store for a template.
func NewStore(tpl *template.Template) *Store {
	s := &Store{
		tpl:   tpl,
		index: tpl.Index(),
		types: make(map[string]template.FieldType, len(tpl.Items)),
		items: make(map[string]ItemResponse),
	}
	for _, item := range tpl.Items {
		s.types[item.ID] = template.Classify(item)
	}
	if group, ok := FindAverageGroup(tpl.Items); ok {
		s.average = &group
	}
	return s
}

// Template returns the template the store is bound to.
func (s *Store) Template() *template.Template {
	return s.tpl
}

// FieldType returns the classified field type of an item.
func (s *Store) FieldType(itemID string) template.FieldType {
	return s.types[itemID]
}

// IsDerived reports whether the item's value is computed by the store.
func (s *Store) IsDerived(itemID string) bool {
	return s.average != nil && s.average.AverageID == itemID
}

// Get returns the response for an item.
func (s *Store) Get(itemID string) (ItemResponse, bool) {
	resp, ok := s.items[itemID]
	if !ok {
		return ItemResponse{ItemID: itemID}, false
	}
	return resp.Clone(), true
}

// Len returns the number of items with a stored response.
func (s *Store) Len() int {
	return len(s.items)
}

// SetStatus records a task-style status.
func (s *Store) SetStatus(itemID, status string) error {
	return s.mutate(itemID, func(_ template.ChecklistItem, resp *ItemResponse) error {
		resp.Status = status
		return nil
	})
}

// SelectOption records the chosen option and its mark. An empty option ID
// clears the selection.
func (s *Store) SelectOption(itemID, optionID string) error {
	return s.mutate(itemID, func(item template.ChecklistItem, resp *ItemResponse) error {
		if optionID == "" {
			resp.SelectedOptionID = ""
			resp.Mark = nil
			return nil
		}
		opt, ok := item.Option(optionID)
		if !ok {
			return fmt.Errorf("%w: %s on %s", ErrUnknownOption, optionID, itemID)
		}
		resp.SelectedOptionID = opt.ID
		resp.Mark = nil
		if opt.Mark != nil {
			mark := *opt.Mark
			resp.Mark = &mark
		}
		return nil
	})
}

// ToggleSelection adds or removes an option from a multi-answer selection.
func (s *Store) ToggleSelection(itemID, optionID string) error {
	return s.mutate(itemID, func(item template.ChecklistItem, resp *ItemResponse) error {
		if err := checkOption(item, optionID); err != nil {
			return err
		}
		if i := slices.Index(resp.Selections, optionID); i >= 0 {
			resp.Selections = slices.Delete(resp.Selections, i, i+1)
			return nil
		}
		resp.Selections = append(resp.Selections, optionID)
		return nil
	})
}

// SetSelections replaces a multi-answer selection.
func (s *Store) SetSelections(itemID string, optionIDs []string) error {
	return s.mutate(itemID, func(item template.ChecklistItem, resp *ItemResponse) error {
		selections := make([]string, 0, len(optionIDs))
		for _, id := range optionIDs {
			if err := checkOption(item, id); err != nil {
				return err
			}
			if !slices.Contains(selections, id) {
				selections = append(selections, id)
			}
		}
		resp.Selections = selections
		return nil
	})
}

// SetText records free text (answer fields and comments).
func (s *Store) SetText(itemID, text string) error {
	return s.mutate(itemID, func(_ template.ChecklistItem, resp *ItemResponse) error {
		resp.Text = text
		return nil
	})
}

// SetPhoto records a photo reference.
func (s *Store) SetPhoto(itemID, ref string) error {
	return s.mutate(itemID, func(_ template.ChecklistItem, resp *ItemResponse) error {
		resp.PhotoRef = ref
		return nil
	})
}

// Clear removes the response for an item.
func (s *Store) Clear(itemID string) error {
	if _, ok := s.index[itemID]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownItem, itemID)
	}
	if s.IsDerived(itemID) {
		return fmt.Errorf("%w: %s", ErrDerivedField, itemID)
	}
	delete(s.items, itemID)
	s.recomputeAverage()
	return nil
}

// Apply overwrites an item's response with authoritative state. Unlike the
// user mutations it may write derived items.
func (s *Store) Apply(resp ItemResponse) error {
	if _, ok := s.index[resp.ItemID]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownItem, resp.ItemID)
	}
	s.items[resp.ItemID] = resp.Clone()
	if !s.IsDerived(resp.ItemID) {
		s.recomputeAverage()
	}
	return nil
}

// Snapshot returns a deep copy of every stored response.
func (s *Store) Snapshot() map[string]ItemResponse {
	out := make(map[string]ItemResponse, len(s.items))
	for id, resp := range s.items {
		out[id] = resp.Clone()
	}
	return out
}

// Restore replaces the store contents, dropping responses for items the
// template no longer contains.
func (s *Store) Restore(responses map[string]ItemResponse) {
	s.items = make(map[string]ItemResponse, len(responses))
	for id, resp := range responses {
		if _, ok := s.index[id]; !ok {
			continue
		}
		resp.ItemID = id
		s.items[id] = resp.Clone()
	}
	s.recomputeAverage()
}

func (s *Store) mutate(itemID string, fn func(template.ChecklistItem, *ItemResponse) error) error {
	item, ok := s.index[itemID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownItem, itemID)
	}
	if s.IsDerived(itemID) {
		return fmt.Errorf("%w: %s", ErrDerivedField, itemID)
	}

	resp, _ := s.Get(itemID)
	if err := fn(item, &resp); err != nil {
		return err
	}
	s.items[itemID] = resp
	s.recomputeAverage()
	return nil
}

func (s *Store) recomputeAverage() {
	if s.average == nil {
		return
	}
	values := make([]string, 0, len(s.average.AttemptIDs))
	for _, id := range s.average.AttemptIDs {
		values = append(values, s.items[id].Text)
	}

	avg := Average(values)
	resp := s.items[s.average.AverageID]
	resp.ItemID = s.average.AverageID
	resp.Text = avg
	if avg == "" && resp.IsEmpty() {
		delete(s.items, s.average.AverageID)
		return
	}
	s.items[s.average.AverageID] = resp
}

func checkOption(item template.ChecklistItem, optionID string) error {
	if optionID == "" {
		return fmt.Errorf("%w: empty option on %s", ErrUnknownOption, item.ID)
	}
	if len(item.Options) == 0 {
		return nil
	}
	if _, ok := item.Option(optionID); !ok {
		return fmt.Errorf("%w: %s on %s", ErrUnknownOption, optionID, item.ID)
	}
	return nil
}
