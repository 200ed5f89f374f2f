package syncer

import (
	"github.com/rpggio/fieldaudit/internal/domain/audit"
	"github.com/rpggio/fieldaudit/internal/domain/response"
	"github.com/rpggio/fieldaudit/internal/domain/template"
	"github.com/rpggio/fieldaudit/internal/domain/visibility"
)

// BuildPayload collects the item updates for the items in scope. Items
// with a local response carry it. Hidden items without one carry a
// not_applicable mark so they never block completion. Visible unanswered
// items are left out. An empty category selects every item.
func BuildPayload(tpl *template.Template, responses map[string]response.ItemResponse, category, section string) []audit.ItemUpdate {
	store := response.NewStore(tpl)
	store.Restore(responses)
	visible := visibility.VisibleSet(tpl, store)

	var payload []audit.ItemUpdate
	for _, item := range tpl.ItemsIn(category, section) {
		ft := template.Classify(item)
		if !template.IsAnswerable(ft) {
			continue
		}
		resp, ok := store.Get(item.ID)
		switch {
		case ok && !resp.IsEmpty():
			payload = append(payload, ToUpdate(ft, resp))
		case !visible[item.ID]:
			payload = append(payload, audit.ItemUpdate{ItemID: item.ID, Status: audit.ItemNotApplicable})
		}
	}
	return payload
}

// ToUpdate converts a local response to its wire form.
func ToUpdate(ft template.FieldType, resp response.ItemResponse) audit.ItemUpdate {
	update := audit.ItemUpdate{
		ItemID:           resp.ItemID,
		Status:           resp.Status,
		SelectedOptionID: resp.SelectedOptionID,
		Text:             resp.Text,
		PhotoRef:         resp.PhotoRef,
		Mark:             resp.Mark,
	}
	if ft == template.FieldMultipleAnswer {
		update.Text = response.EncodeMultiAnswer(resp.Text, resp.Selections)
	}
	return update
}

// FromState converts recorded server state to a local response.
func FromState(ft template.FieldType, state audit.ItemState) response.ItemResponse {
	resp := response.ItemResponse{
		ItemID:           state.ItemID,
		Status:           state.Status,
		SelectedOptionID: state.SelectedOptionID,
		Text:             state.Text,
		PhotoRef:         state.PhotoRef,
		Mark:             state.Mark,
	}
	if ft == template.FieldMultipleAnswer {
		text, selections := response.DecodeMultiAnswer(state.Text)
		resp.Text = text
		if len(selections) > 0 {
			resp.Selections = selections
		}
	}
	return resp
}

func isNeutral(state audit.ItemState) bool {
	return state.Status == audit.ItemNotApplicable &&
		state.SelectedOptionID == "" &&
		state.Text == "" &&
		state.PhotoRef == "" &&
		state.Mark == nil
}

// Reconcile overwrites local responses with the server's recorded item
// state. Items in keep retain their local value. Neutral marks the server
// holds for hidden items are not copied back. It returns the number of
// items applied.
func Reconcile(store *response.Store, snap *audit.Snapshot, keep map[string]bool) int {
	if snap == nil {
		return 0
	}
	applied := 0
	for _, state := range snap.Items {
		if keep[state.ItemID] || isNeutral(state) {
			continue
		}
		if err := store.Apply(FromState(store.FieldType(state.ItemID), state)); err != nil {
			// Item no longer in the template.
			continue
		}
		applied++
	}
	return applied
}
