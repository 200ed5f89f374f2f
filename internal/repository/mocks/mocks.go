package mocks

import (
	"context"

	"github.com/rpggio/fieldaudit/internal/domain/activity"
	"github.com/rpggio/fieldaudit/internal/domain/audit"
	"github.com/rpggio/fieldaudit/internal/domain/template"
	"github.com/stretchr/testify/mock"
)

// TemplateRepository is a mock for template.Repository.
type TemplateRepository struct {
	mock.Mock
}

func (m *TemplateRepository) Create(ctx context.Context, tpl *template.Template) error {
	args := m.Called(ctx, tpl)
	return args.Error(0)
}

func (m *TemplateRepository) Get(ctx context.Context, id string) (*template.Template, error) {
	args := m.Called(ctx, id)
	if tpl, ok := args.Get(0).(*template.Template); ok {
		return tpl, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *TemplateRepository) List(ctx context.Context) ([]template.TemplateSummary, error) {
	args := m.Called(ctx)
	if list, ok := args.Get(0).([]template.TemplateSummary); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

// AuditRepository is a mock for audit.Repository.
type AuditRepository struct {
	mock.Mock
}

func (m *AuditRepository) Create(ctx context.Context, a *audit.Audit) error {
	args := m.Called(ctx, a)
	return args.Error(0)
}

func (m *AuditRepository) Get(ctx context.Context, id string) (*audit.Audit, error) {
	args := m.Called(ctx, id)
	if a, ok := args.Get(0).(*audit.Audit); ok {
		return a, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *AuditRepository) GetByToken(ctx context.Context, token string) (*audit.Audit, error) {
	args := m.Called(ctx, token)
	if a, ok := args.Get(0).(*audit.Audit); ok {
		return a, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *AuditRepository) Update(ctx context.Context, a *audit.Audit) error {
	args := m.Called(ctx, a)
	return args.Error(0)
}

func (m *AuditRepository) UpsertItems(ctx context.Context, auditID string, items []audit.ItemState) error {
	args := m.Called(ctx, auditID, items)
	return args.Error(0)
}

func (m *AuditRepository) ListItems(ctx context.Context, auditID string) ([]audit.ItemState, error) {
	args := m.Called(ctx, auditID)
	if items, ok := args.Get(0).([]audit.ItemState); ok {
		return items, args.Error(1)
	}
	return nil, args.Error(1)
}

// ActivityRepository is a mock for activity.Repository.
type ActivityRepository struct {
	mock.Mock
}

func (m *ActivityRepository) Log(ctx context.Context, entry *activity.ActivityEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *ActivityRepository) List(ctx context.Context, opts activity.ListActivityOptions) ([]activity.ActivityEntry, error) {
	args := m.Called(ctx, opts)
	if list, ok := args.Get(0).([]activity.ActivityEntry); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

// Remote is a mock for syncer.Remote.
type Remote struct {
	mock.Mock
}

func (m *Remote) FetchTemplate(ctx context.Context, templateID string) (*template.Template, error) {
	args := m.Called(ctx, templateID)
	if tpl, ok := args.Get(0).(*template.Template); ok {
		return tpl, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Remote) CreateSession(ctx context.Context, req audit.CreateRequest) (*audit.Audit, error) {
	args := m.Called(ctx, req)
	if a, ok := args.Get(0).(*audit.Audit); ok {
		return a, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Remote) FetchSession(ctx context.Context, sessionID string) (*audit.Snapshot, error) {
	args := m.Called(ctx, sessionID)
	if snap, ok := args.Get(0).(*audit.Snapshot); ok {
		return snap, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Remote) UpdateSession(ctx context.Context, sessionID string, req audit.UpdateRequest) (*audit.Audit, error) {
	args := m.Called(ctx, sessionID, req)
	if a, ok := args.Get(0).(*audit.Audit); ok {
		return a, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Remote) BatchUpdateItems(ctx context.Context, sessionID string, items []audit.ItemUpdate) error {
	args := m.Called(ctx, sessionID, items)
	return args.Error(0)
}

func (m *Remote) UpdateItem(ctx context.Context, sessionID string, item audit.ItemUpdate) error {
	args := m.Called(ctx, sessionID, item)
	return args.Error(0)
}

func (m *Remote) CompleteSession(ctx context.Context, sessionID string) error {
	args := m.Called(ctx, sessionID)
	return args.Error(0)
}

// DraftStore is a mock for draft.Store.
type DraftStore struct {
	mock.Mock
}

func (m *DraftStore) Get(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	if data, ok := args.Get(0).([]byte); ok {
		return data, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *DraftStore) Set(ctx context.Context, key string, value []byte) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func (m *DraftStore) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *DraftStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	args := m.Called(ctx, prefix)
	if keys, ok := args.Get(0).([]string); ok {
		return keys, args.Error(1)
	}
	return nil, args.Error(1)
}
