// Package session runs audit sessions on the field device. A Controller
// holds one session's state; the Service hands out one live controller per
// session identity.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rpggio/fieldaudit/internal/domain/draft"
	"github.com/rpggio/fieldaudit/internal/domain/syncer"
)

// Service opens and tracks live session controllers.
type Service struct {
	engine *syncer.Engine
	drafts *draft.Service
	opts   Options
	logger *slog.Logger

	mu   sync.Mutex
	live map[string]*Controller
}

// NewService creates a new session service.
func NewService(engine *syncer.Engine, drafts *draft.Service, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		engine: engine,
		drafts: drafts,
		opts:   opts,
		logger: logger,
		live:   make(map[string]*Controller),
	}
}

// Open returns the live controller for the request's identity, or loads
// the template, resumes any draft and starts a new one.
func (s *Service) Open(ctx context.Context, req OpenRequest) (*Controller, error) {
	if req.TemplateID == "" {
		return nil, fmt.Errorf("%w: template_id is required", ErrValidation)
	}
	key := req.Key()
	if c, ok := s.Get(key.String()); ok {
		return c, nil
	}

	tpl, err := s.engine.FetchTemplate(ctx, req.TemplateID)
	if err != nil {
		return nil, fmt.Errorf("loading template: %w", err)
	}

	c := newController(key, tpl, req.Expected, s.opts, s.engine, s.drafts, s.logger)
	snap, err := s.drafts.Load(ctx, key)
	switch {
	case err == nil:
		c.resume(snap)
		s.logger.Info("resumed draft", "key", key.String(), "session_id", snap.SessionID, "saved_at", snap.SavedAt)
	case errors.Is(err, draft.ErrDraftNotFound):
	default:
		return nil, err
	}

	if c.SessionID() != "" {
		// The server may have completed this session elsewhere.
		if _, err := c.Refresh(ctx); err != nil {
			s.logger.Warn("could not refresh resumed session", "key", key.String(), "error", err)
		}
	}

	s.mu.Lock()
	if existing, ok := s.live[key.String()]; ok {
		s.mu.Unlock()
		return existing, nil
	}
	s.live[key.String()] = c
	s.mu.Unlock()

	c.onClose = func() { s.forget(key.String(), c) }
	c.startWriter()
	return c, nil
}

// Get returns the live controller for a storage key.
func (s *Service) Get(key string) (*Controller, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.live[key]
	return c, ok
}

// Close tears down the controller for a storage key.
func (s *Service) Close(ctx context.Context, key string) error {
	c, ok := s.Get(key)
	if !ok {
		return ErrSessionNotFound
	}
	return c.Close(ctx)
}

// CloseAll tears down every live controller.
func (s *Service) CloseAll(ctx context.Context) {
	s.mu.Lock()
	controllers := make([]*Controller, 0, len(s.live))
	for _, c := range s.live {
		controllers = append(controllers, c)
	}
	s.mu.Unlock()

	for _, c := range controllers {
		if err := c.Close(ctx); err != nil {
			s.logger.Warn("failed to close session", "key", c.Key().String(), "error", err)
		}
	}
}

// Drafts lists resumable drafts stored on the device.
func (s *Service) Drafts(ctx context.Context) ([]draft.Snapshot, error) {
	return s.drafts.List(ctx)
}

func (s *Service) forget(key string, c *Controller) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.live[key] == c {
		delete(s.live, key)
	}
}
