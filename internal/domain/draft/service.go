package draft

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/rpggio/fieldaudit/internal/repository"
)

// Service loads and stores draft snapshots.
type Service struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a new draft service.
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger, now: time.Now}
}

// NewToken returns a fresh idempotency token.
func NewToken() string {
	return uuid.NewString()
}

// Load returns the draft for key. Unreadable drafts are discarded and
// reported as ErrDraftNotFound.
func (s *Service) Load(ctx context.Context, key Key) (*Snapshot, error) {
	data, err := s.store.Get(ctx, key.String())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrDraftNotFound
		}
		return nil, fmt.Errorf("reading draft: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		s.logger.Warn("discarding unreadable draft", "key", key.String(), "error", err)
		if delErr := s.store.Delete(ctx, key.String()); delErr != nil {
			s.logger.Warn("failed to delete unreadable draft", "key", key.String(), "error", delErr)
		}
		return nil, fmt.Errorf("%w: %s", ErrDraftNotFound, key.String())
	}
	snap.Key = key
	return &snap, nil
}

// Save writes the snapshot, stamping SavedAt.
func (s *Service) Save(ctx context.Context, snap *Snapshot) error {
	if snap == nil || snap.Key.TemplateID == "" {
		return ErrInvalidDraft
	}
	snap.SavedAt = s.now().UTC()

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding draft: %w", err)
	}
	if err := s.store.Set(ctx, snap.Key.String(), data); err != nil {
		return fmt.Errorf("writing draft: %w", err)
	}
	return nil
}

// Clear removes the draft and with it the idempotency token.
func (s *Service) Clear(ctx context.Context, key Key) error {
	if err := s.store.Delete(ctx, key.String()); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("clearing draft: %w", err)
	}
	return nil
}

// List returns every stored draft, skipping unreadable ones.
func (s *Service) List(ctx context.Context) ([]Snapshot, error) {
	keys, err := s.store.Keys(ctx, keyPrefix)
	if err != nil {
		return nil, fmt.Errorf("listing drafts: %w", err)
	}

	drafts := make([]Snapshot, 0, len(keys))
	for _, raw := range keys {
		key, ok := ParseKey(raw)
		if !ok {
			continue
		}
		snap, err := s.Load(ctx, key)
		if err != nil {
			if errors.Is(err, ErrDraftNotFound) {
				continue
			}
			return nil, err
		}
		drafts = append(drafts, *snap)
	}
	return drafts, nil
}
