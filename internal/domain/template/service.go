package template

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rpggio/fieldaudit/internal/repository"
)

// Service handles template catalog operations.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService creates a new template service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// CreateRequest defines template creation inputs.
type CreateRequest struct {
	ID    string
	Name  string
	Items []ChecklistItem
}

// Create validates and stores a new template.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Template, error) {
	id := req.ID
	if strings.TrimSpace(id) == "" {
		id = uuid.NewString()
	}

	items := make([]ChecklistItem, len(req.Items))
	copy(items, req.Items)
	for i := range items {
		items[i].Position = i
	}

	tpl := &Template{
		ID:        id,
		Name:      req.Name,
		Items:     items,
		CreatedAt: time.Now(),
	}
	if err := Validate(tpl); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, tpl); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%w: template %s already exists", ErrInvalidInput, id)
		}
		return nil, fmt.Errorf("creating template: %w", err)
	}

	return tpl, nil
}

// Get fetches a template by ID.
func (s *Service) Get(ctx context.Context, id string) (*Template, error) {
	tpl, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTemplateNotFound
		}
		return nil, fmt.Errorf("getting template: %w", err)
	}
	return tpl, nil
}

// List returns template summaries.
func (s *Service) List(ctx context.Context) ([]TemplateSummary, error) {
	return s.repo.List(ctx)
}

// Seed creates each template whose ID is not yet in the catalog and returns
// how many were added. Existing templates are left untouched.
func (s *Service) Seed(ctx context.Context, templates []Template) (int, error) {
	added := 0
	for _, tpl := range templates {
		if _, err := s.Get(ctx, tpl.ID); err == nil {
			s.logger.Debug("template already seeded", "template_id", tpl.ID)
			continue
		} else if !errors.Is(err, ErrTemplateNotFound) {
			return added, err
		}
		if _, err := s.Create(ctx, CreateRequest{ID: tpl.ID, Name: tpl.Name, Items: tpl.Items}); err != nil {
			return added, fmt.Errorf("seeding %s: %w", tpl.ID, err)
		}
		added++
	}
	if added > 0 {
		s.logger.Info("templates seeded", "count", added)
	}
	return added, nil
}
