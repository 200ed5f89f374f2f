package audit

import (
	"context"

	"github.com/rpggio/fieldaudit/internal/domain/activity"
	"github.com/rpggio/fieldaudit/internal/domain/template"
)

// Repository provides persistence operations for audits.
type Repository interface {
	Create(ctx context.Context, a *Audit) error
	Get(ctx context.Context, id string) (*Audit, error)
	GetByToken(ctx context.Context, token string) (*Audit, error)
	Update(ctx context.Context, a *Audit) error
	UpsertItems(ctx context.Context, auditID string, items []ItemState) error
	ListItems(ctx context.Context, auditID string) ([]ItemState, error)
}

// TemplateSource resolves the template an audit runs against.
type TemplateSource interface {
	Get(ctx context.Context, id string) (*template.Template, error)
}

// ActivityRepository is the subset of activity persistence used here.
type ActivityRepository interface {
	Log(ctx context.Context, entry *activity.ActivityEntry) error
}
