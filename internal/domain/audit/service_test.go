package audit_test

import (
	"context"
	"testing"

	"github.com/rpggio/fieldaudit/internal/domain/audit"
	"github.com/rpggio/fieldaudit/internal/domain/template"
	"github.com/rpggio/fieldaudit/internal/repository"
	"github.com/rpggio/fieldaudit/internal/repository/mocks"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func tpl() *template.Template {
	return &template.Template{
		ID: "tpl",
		Items: []template.ChecklistItem{
			{ID: "hdr", Category: "Safety", Title: "Safety", InputType: "section"},
			{ID: "a", Category: "Safety", Title: "Exits clear?", Options: []template.Option{{ID: "yes", Text: "Yes"}}},
			{ID: "b", Category: "Safety", Title: "Notes", InputType: "long_answer"},
		},
	}
}

func newService() (*audit.Service, *mocks.AuditRepository, *mocks.TemplateRepository, *mocks.ActivityRepository) {
	audits := &mocks.AuditRepository{}
	templates := &mocks.TemplateRepository{}
	activities := &mocks.ActivityRepository{}
	activities.On("Log", mock.Anything, mock.Anything).Return(nil)
	return audit.NewService(audits, templates, activities, nil), audits, templates, activities
}

func TestCreate_Idempotent(t *testing.T) {
	ctx := context.Background()
	svc, audits, templates, _ := newService()

	existing := &audit.Audit{ID: "a1", IdempotencyToken: "tok", TemplateID: "tpl", LocationID: "loc", Status: audit.StatusDraft}
	audits.On("GetByToken", ctx, "tok").Return(existing, nil)

	got, created, err := svc.Create(ctx, audit.CreateRequest{IdempotencyToken: "tok", TemplateID: "tpl", LocationID: "loc"})
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, "a1", got.ID)
	audits.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	templates.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
}

func TestCreate_New(t *testing.T) {
	ctx := context.Background()
	svc, audits, templates, activities := newService()

	audits.On("GetByToken", ctx, "tok").Return(nil, repository.ErrNotFound)
	templates.On("Get", ctx, "tpl").Return(tpl(), nil)
	audits.On("Create", ctx, mock.AnythingOfType("*audit.Audit")).Return(nil)

	got, created, err := svc.Create(ctx, audit.CreateRequest{IdempotencyToken: "tok", TemplateID: "tpl"})
	require.NoError(t, err)
	require.True(t, created)
	require.NotEmpty(t, got.ID)
	require.Equal(t, audit.StatusDraft, got.Status)
	activities.AssertNumberOfCalls(t, "Log", 1)
}

func TestCreate_RaceResolvesToExisting(t *testing.T) {
	ctx := context.Background()
	svc, audits, templates, _ := newService()

	winner := &audit.Audit{ID: "winner", IdempotencyToken: "tok", TemplateID: "tpl"}
	audits.On("GetByToken", ctx, "tok").Return(nil, repository.ErrNotFound).Once()
	audits.On("GetByToken", ctx, "tok").Return(winner, nil).Once()
	templates.On("Get", ctx, "tpl").Return(tpl(), nil)
	audits.On("Create", ctx, mock.Anything).Return(repository.ErrConflict)

	got, created, err := svc.Create(ctx, audit.CreateRequest{IdempotencyToken: "tok", TemplateID: "tpl"})
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, "winner", got.ID)
}

func TestCreate_TokenReused(t *testing.T) {
	ctx := context.Background()
	svc, audits, _, _ := newService()
	audits.On("GetByToken", ctx, "tok").Return(&audit.Audit{ID: "a1", TemplateID: "other"}, nil)

	_, _, err := svc.Create(ctx, audit.CreateRequest{IdempotencyToken: "tok", TemplateID: "tpl"})
	require.ErrorIs(t, err, audit.ErrTokenReused)
}

func TestCreate_InvalidInput(t *testing.T) {
	svc, _, _, _ := newService()
	_, _, err := svc.Create(context.Background(), audit.CreateRequest{})
	require.ErrorIs(t, err, audit.ErrInvalidInput)
}

func TestBatchUpdateItems_MovesDraftInProgress(t *testing.T) {
	ctx := context.Background()
	svc, audits, templates, _ := newService()

	a := &audit.Audit{ID: "a1", TemplateID: "tpl", Status: audit.StatusDraft}
	audits.On("Get", ctx, "a1").Return(a, nil)
	templates.On("Get", ctx, "tpl").Return(tpl(), nil)
	audits.On("UpsertItems", ctx, "a1", mock.MatchedBy(func(items []audit.ItemState) bool { return len(items) == 2 })).Return(nil)
	audits.On("Update", ctx, mock.MatchedBy(func(a *audit.Audit) bool { return a.Status == audit.StatusInProgress })).Return(nil)

	n, err := svc.BatchUpdateItems(ctx, "a1", []audit.ItemUpdate{
		{ItemID: "a", SelectedOptionID: "yes"},
		{ItemID: "b", Text: "ok"},
	})
	require.NoError(t, err)
	require.Equal(t, 2, n)
	audits.AssertExpectations(t)
}

func TestBatchUpdateItems_UnknownItemSavesNothing(t *testing.T) {
	ctx := context.Background()
	svc, audits, templates, _ := newService()

	audits.On("Get", ctx, "a1").Return(&audit.Audit{ID: "a1", TemplateID: "tpl", Status: audit.StatusInProgress}, nil)
	templates.On("Get", ctx, "tpl").Return(tpl(), nil)

	_, err := svc.BatchUpdateItems(ctx, "a1", []audit.ItemUpdate{{ItemID: "a"}, {ItemID: "zzz"}})
	require.ErrorIs(t, err, audit.ErrUnknownItem)
	audits.AssertNotCalled(t, "UpsertItems", mock.Anything, mock.Anything, mock.Anything)
}

func TestMutationsOnCompletedAuditAreLocked(t *testing.T) {
	ctx := context.Background()
	svc, audits, _, _ := newService()
	audits.On("Get", ctx, "a1").Return(&audit.Audit{ID: "a1", TemplateID: "tpl", Status: audit.StatusCompleted}, nil)

	_, err := svc.BatchUpdateItems(ctx, "a1", []audit.ItemUpdate{{ItemID: "a"}})
	require.ErrorIs(t, err, audit.ErrSessionLocked)

	require.ErrorIs(t, svc.UpdateItem(ctx, "a1", audit.ItemUpdate{ItemID: "a"}), audit.ErrSessionLocked)

	verified := true
	_, err = svc.Update(ctx, "a1", audit.UpdateRequest{LocationVerified: &verified})
	require.ErrorIs(t, err, audit.ErrSessionLocked)
}

func TestComplete(t *testing.T) {
	ctx := context.Background()
	svc, audits, templates, _ := newService()

	a := &audit.Audit{ID: "a1", TemplateID: "tpl", Status: audit.StatusInProgress}
	audits.On("Get", ctx, "a1").Return(a, nil)
	templates.On("Get", ctx, "tpl").Return(tpl(), nil)
	audits.On("ListItems", ctx, "a1").Return([]audit.ItemState{
		{ItemID: "a", SelectedOptionID: "yes"},
		{ItemID: "b", Status: audit.ItemPending},
	}, nil).Once()

	_, err := svc.Complete(ctx, "a1")
	require.ErrorIs(t, err, audit.ErrIncomplete)
	require.Contains(t, err.Error(), "b")

	audits.On("ListItems", ctx, "a1").Return([]audit.ItemState{
		{ItemID: "a", SelectedOptionID: "yes"},
		{ItemID: "b", Status: audit.ItemNotApplicable},
	}, nil).Once()
	audits.On("Update", ctx, mock.Anything).Return(nil).Once()

	snap, err := svc.Complete(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, audit.StatusCompleted, snap.Audit.Status)
	require.NotNil(t, snap.Audit.CompletedAt)
}

func TestGet_NotFound(t *testing.T) {
	ctx := context.Background()
	svc, audits, _, _ := newService()
	audits.On("Get", ctx, "nope").Return(nil, repository.ErrNotFound)

	_, err := svc.Get(ctx, "nope")
	require.ErrorIs(t, err, audit.ErrAuditNotFound)
}

func TestValidateTransition(t *testing.T) {
	require.NoError(t, audit.ValidateTransition(audit.StatusDraft, audit.StatusInProgress))
	require.NoError(t, audit.ValidateTransition(audit.StatusInProgress, audit.StatusCompleted))
	require.NoError(t, audit.ValidateTransition(audit.StatusDraft, audit.StatusCompleted))
	require.ErrorIs(t, audit.ValidateTransition(audit.StatusInProgress, audit.StatusDraft), audit.ErrInvalidTransition)
	require.ErrorIs(t, audit.ValidateTransition(audit.StatusCompleted, audit.StatusInProgress), audit.ErrSessionLocked)
}
