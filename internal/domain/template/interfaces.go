package template

import "context"

// Repository provides persistence for templates.
type Repository interface {
	Create(ctx context.Context, tpl *Template) error
	Get(ctx context.Context, id string) (*Template, error)
	List(ctx context.Context) ([]TemplateSummary, error)
}
