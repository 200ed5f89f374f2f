package syncer

import (
	"context"

	"github.com/rpggio/fieldaudit/internal/domain/audit"
	"github.com/rpggio/fieldaudit/internal/domain/template"
)

// Remote is the backend the engine talks to. Implementations classify
// failures as *TransientError, *ClientError or audit.ErrSessionLocked.
type Remote interface {
	FetchTemplate(ctx context.Context, templateID string) (*template.Template, error)
	CreateSession(ctx context.Context, req audit.CreateRequest) (*audit.Audit, error)
	FetchSession(ctx context.Context, sessionID string) (*audit.Snapshot, error)
	UpdateSession(ctx context.Context, sessionID string, req audit.UpdateRequest) (*audit.Audit, error)
	BatchUpdateItems(ctx context.Context, sessionID string, items []audit.ItemUpdate) error
	UpdateItem(ctx context.Context, sessionID string, item audit.ItemUpdate) error
	CompleteSession(ctx context.Context, sessionID string) error
}
