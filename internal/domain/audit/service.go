package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rpggio/fieldaudit/internal/domain/activity"
	"github.com/rpggio/fieldaudit/internal/domain/template"
	"github.com/rpggio/fieldaudit/internal/repository"
)

// Service handles audit business logic on the backend.
type Service struct {
	audits     Repository
	templates  TemplateSource
	activities ActivityRepository
	logger     *slog.Logger
	now        func() time.Time
}

// NewService creates a new audit service.
func NewService(audits Repository, templates TemplateSource, activities ActivityRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		audits:     audits,
		templates:  templates,
		activities: activities,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Create opens an audit. A request carrying a token that was already used
// returns the existing audit and created=false.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Audit, bool, error) {
	if err := ValidateCreateInput(req); err != nil {
		return nil, false, err
	}

	if req.IdempotencyToken != "" {
		existing, err := s.byToken(ctx, req)
		if err == nil {
			return existing, false, nil
		}
		if !errors.Is(err, ErrAuditNotFound) {
			return nil, false, err
		}
	}

	if _, err := s.templates.Get(ctx, req.TemplateID); err != nil {
		return nil, false, err
	}

	now := s.now()
	a := &Audit{
		ID:               uuid.NewString(),
		IdempotencyToken: req.IdempotencyToken,
		TemplateID:       req.TemplateID,
		LocationID:       req.LocationID,
		ScheduleID:       req.ScheduleID,
		Status:           StatusDraft,
		Latitude:         req.Latitude,
		Longitude:        req.Longitude,
		LocationVerified: req.LocationVerified,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.audits.Create(ctx, a); err != nil {
		if errors.Is(err, repository.ErrConflict) && req.IdempotencyToken != "" {
			// Lost a race with a retry of the same request.
			existing, getErr := s.byToken(ctx, req)
			if getErr == nil {
				return existing, false, nil
			}
		}
		return nil, false, fmt.Errorf("creating audit: %w", err)
	}

	s.log(ctx, a.ID, nil, activity.TypeAuditCreated, fmt.Sprintf("created audit for template %s", a.TemplateID), nil)
	return a, true, nil
}

func (s *Service) byToken(ctx context.Context, req CreateRequest) (*Audit, error) {
	existing, err := s.audits.GetByToken(ctx, req.IdempotencyToken)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAuditNotFound
		}
		return nil, fmt.Errorf("loading audit by token: %w", err)
	}
	if existing.TemplateID != req.TemplateID ||
		existing.LocationID != req.LocationID ||
		existing.ScheduleID != req.ScheduleID {
		return nil, ErrTokenReused
	}
	return existing, nil
}

// Get returns the audit with its recorded item states.
func (s *Service) Get(ctx context.Context, id string) (*Snapshot, error) {
	a, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	items, err := s.audits.ListItems(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading items: %w", err)
	}
	return &Snapshot{Audit: *a, Items: items}, nil
}

// Update changes the status or captured location of an open audit.
func (s *Service) Update(ctx context.Context, id string, req UpdateRequest) (*Audit, error) {
	a, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status == StatusCompleted {
		return nil, ErrSessionLocked
	}

	if req.Status != nil {
		if *req.Status == StatusCompleted {
			return nil, fmt.Errorf("%w: use complete to finish an audit", ErrInvalidTransition)
		}
		if err := ValidateTransition(a.Status, *req.Status); err != nil {
			return nil, err
		}
		a.Status = *req.Status
	}
	if (req.Latitude == nil) != (req.Longitude == nil) {
		return nil, fmt.Errorf("%w: latitude and longitude go together", ErrInvalidInput)
	}
	if req.Latitude != nil {
		a.Latitude = req.Latitude
		a.Longitude = req.Longitude
	}
	if req.LocationVerified != nil {
		a.LocationVerified = *req.LocationVerified
	}
	a.UpdatedAt = s.now()

	if err := s.audits.Update(ctx, a); err != nil {
		return nil, fmt.Errorf("updating audit: %w", err)
	}
	s.log(ctx, a.ID, nil, activity.TypeAuditUpdated, "updated audit", req)
	return a, nil
}

// BatchUpdateItems records item answers atomically. Either every item is
// saved or none is.
func (s *Service) BatchUpdateItems(ctx context.Context, id string, updates []ItemUpdate) (int, error) {
	a, err := s.load(ctx, id)
	if err != nil {
		return 0, err
	}
	if a.Status == StatusCompleted {
		return 0, ErrSessionLocked
	}
	if len(updates) == 0 {
		return 0, nil
	}

	tpl, err := s.templates.Get(ctx, a.TemplateID)
	if err != nil {
		return 0, fmt.Errorf("loading template: %w", err)
	}
	index := tpl.Index()

	now := s.now()
	states := make([]ItemState, 0, len(updates))
	for _, u := range updates {
		if _, ok := index[u.ItemID]; !ok {
			return 0, fmt.Errorf("%w: %s", ErrUnknownItem, u.ItemID)
		}
		states = append(states, ItemState{
			ItemID:           u.ItemID,
			Status:           u.Status,
			SelectedOptionID: u.SelectedOptionID,
			Text:             u.Text,
			PhotoRef:         u.PhotoRef,
			Mark:             u.Mark,
			UpdatedAt:        now,
		})
	}

	if err := s.audits.UpsertItems(ctx, id, states); err != nil {
		return 0, fmt.Errorf("saving items: %w", err)
	}

	if a.Status == StatusDraft {
		a.Status = StatusInProgress
		a.UpdatedAt = now
		if err := s.audits.Update(ctx, a); err != nil {
			return 0, fmt.Errorf("updating audit status: %w", err)
		}
	}

	if len(updates) == 1 {
		s.log(ctx, id, &updates[0].ItemID, activity.TypeItemsSaved, "saved 1 item", nil)
	} else {
		s.log(ctx, id, nil, activity.TypeItemsSaved, fmt.Sprintf("saved %d items", len(updates)), nil)
	}
	return len(states), nil
}

// UpdateItem records a single item answer.
func (s *Service) UpdateItem(ctx context.Context, id string, update ItemUpdate) error {
	if strings.TrimSpace(update.ItemID) == "" {
		return fmt.Errorf("%w: item_id is required", ErrInvalidInput)
	}
	_, err := s.BatchUpdateItems(ctx, id, []ItemUpdate{update})
	return err
}

// Complete marks the audit completed once every answerable item has a
// recorded state. Completing a completed audit is a no-op.
func (s *Service) Complete(ctx context.Context, id string) (*Snapshot, error) {
	snap, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if snap.Audit.Status == StatusCompleted {
		return snap, nil
	}

	tpl, err := s.templates.Get(ctx, snap.Audit.TemplateID)
	if err != nil {
		return nil, fmt.Errorf("loading template: %w", err)
	}
	if missing := unanswered(tpl, snap.Items); len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrIncomplete, strings.Join(missing, ", "))
	}

	if err := ValidateTransition(snap.Audit.Status, StatusCompleted); err != nil {
		return nil, err
	}
	now := s.now()
	snap.Audit.Status = StatusCompleted
	snap.Audit.CompletedAt = &now
	snap.Audit.UpdatedAt = now
	if err := s.audits.Update(ctx, &snap.Audit); err != nil {
		return nil, fmt.Errorf("completing audit: %w", err)
	}

	s.log(ctx, id, nil, activity.TypeAuditCompleted, "completed audit", nil)
	s.logger.Info("audit completed", "audit_id", id, "items", len(snap.Items))
	return snap, nil
}

func unanswered(tpl *template.Template, items []ItemState) []string {
	recorded := make(map[string]bool, len(items))
	for _, item := range items {
		if item.Answered() {
			recorded[item.ItemID] = true
		}
	}

	var missing []string
	for _, item := range tpl.Items {
		if !template.IsAnswerable(template.Classify(item)) {
			continue
		}
		if !recorded[item.ID] {
			missing = append(missing, item.ID)
		}
	}
	return missing
}

func (s *Service) load(ctx context.Context, id string) (*Audit, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrInvalidInput
	}
	a, err := s.audits.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAuditNotFound
		}
		return nil, fmt.Errorf("loading audit: %w", err)
	}
	return a, nil
}

func (s *Service) log(ctx context.Context, auditID string, itemID *string, kind activity.ActivityType, summary string, details any) {
	if s.activities == nil {
		return
	}
	entry := &activity.ActivityEntry{
		AuditID:      auditID,
		ItemID:       itemID,
		ActivityType: kind,
		Summary:      summary,
		CreatedAt:    s.now(),
	}
	if details != nil {
		if data, err := json.Marshal(details); err == nil {
			entry.Details = string(data)
		}
	}
	if err := s.activities.Log(ctx, entry); err != nil {
		s.logger.Warn("failed to log activity", "audit_id", auditID, "error", err)
	}
}
