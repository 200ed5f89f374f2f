// Package syncer pushes local audit responses to the backend and reconciles
// the local view with the server's authoritative state.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rpggio/fieldaudit/internal/domain/audit"
	"github.com/rpggio/fieldaudit/internal/domain/completion"
	"github.com/rpggio/fieldaudit/internal/domain/response"
	"github.com/rpggio/fieldaudit/internal/domain/template"
)

// Outcome classifies a finished submission.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomePartial Outcome = "partial"
	OutcomeFailure Outcome = "failure"
	OutcomeSkipped Outcome = "skipped"
)

// Request is one submission of a session's responses.
type Request struct {
	SessionID string
	Template  *template.Template
	Responses map[string]response.ItemResponse
	Category  string
	Section   string
}

// Result describes what a submission achieved.
type Result struct {
	Payload             int
	Saved               []string
	Failed              []string
	UsedFallback        bool
	BatchAttempts       int
	Remote              *audit.Snapshot
	CompletionRequested bool
	CompletionErr       error
	Skipped             bool
}

// Outcome classifies the result. A submission with nothing to send counts
// as a success.
func (r *Result) Outcome() Outcome {
	switch {
	case r.Skipped:
		return OutcomeSkipped
	case r.Payload > 0 && len(r.Saved) == 0:
		return OutcomeFailure
	case len(r.Failed) > 0:
		return OutcomePartial
	default:
		return OutcomeSuccess
	}
}

// PartialError returns the failed subset, or nil when nothing failed.
func (r *Result) PartialError() *PartialSaveError {
	if len(r.Failed) == 0 {
		return nil
	}
	return &PartialSaveError{Saved: r.Saved, Failed: r.Failed}
}

// Completed reports whether the server has marked the session completed.
func (r *Result) Completed() bool {
	return r.Remote != nil && r.Remote.Audit.Status == audit.StatusCompleted
}

// Option configures an Engine.
type Option func(*Engine)

// WithSleep replaces the wait used between retries and paced items.
func WithSleep(fn SleepFunc) Option {
	return func(e *Engine) { e.sleep = fn }
}

// Engine runs submissions against a Remote. It holds no per-session state.
type Engine struct {
	remote Remote
	policy Policy
	logger *slog.Logger
	sleep  SleepFunc
}

// NewEngine creates a sync engine.
func NewEngine(remote Remote, policy Policy, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		remote: remote,
		policy: policy.normalized(),
		logger: logger,
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Policy returns the effective retry policy.
func (e *Engine) Policy() Policy {
	return e.policy
}

// Submit saves the scoped responses, falls back to paced per-item saves
// when the batch keeps failing transiently, re-fetches the server state and
// requests completion when every visible category is locally complete.
//
// Partial saves return a nil error; see Result.Outcome. A client error
// aborts the submission. audit.ErrSessionLocked is returned with the
// server snapshot attached to the result.
func (e *Engine) Submit(ctx context.Context, req Request) (*Result, error) {
	if req.SessionID == "" {
		return nil, ErrNoSession
	}
	if req.Template == nil {
		return nil, fmt.Errorf("submit %s: template required", req.SessionID)
	}

	log := e.logger.With("session_id", req.SessionID)
	payload := BuildPayload(req.Template, req.Responses, req.Category, req.Section)
	res := &Result{Payload: len(payload)}

	if len(payload) > 0 {
		attempts, err := e.retry(ctx, "batch_update_items", func(ctx context.Context) error {
			return e.remote.BatchUpdateItems(ctx, req.SessionID, payload)
		})
		res.BatchAttempts = attempts

		switch {
		case err == nil:
			res.Saved = itemIDs(payload)
		case errors.Is(err, audit.ErrSessionLocked):
			return e.locked(ctx, req, res)
		case IsTransient(err):
			log.Warn("batch save exhausted retries, saving items one by one", "attempts", attempts, "items", len(payload), "error", err)
			res.UsedFallback = true
			if err := e.fallback(ctx, req.SessionID, payload, res); err != nil {
				return e.locked(ctx, req, res)
			}
		default:
			return res, fmt.Errorf("saving items: %w", err)
		}
	}

	e.reconcile(ctx, req, res)

	if res.Outcome() == OutcomeFailure {
		return res, ErrTotalFailure
	}
	return res, nil
}

// fallback saves items sequentially. It only returns an error when the
// server reports the session locked.
func (e *Engine) fallback(ctx context.Context, sessionID string, payload []audit.ItemUpdate, res *Result) error {
	log := e.logger.With("session_id", sessionID)
	for i, item := range payload {
		if i > 0 {
			if err := e.sleep(ctx, e.policy.ItemPacing); err != nil {
				for _, rest := range payload[i:] {
					res.Failed = append(res.Failed, rest.ItemID)
				}
				return nil
			}
		}

		_, err := e.retry(ctx, "update_item", func(ctx context.Context) error {
			return e.remote.UpdateItem(ctx, sessionID, item)
		})
		switch {
		case err == nil:
			res.Saved = append(res.Saved, item.ItemID)
		case errors.Is(err, audit.ErrSessionLocked):
			return err
		default:
			log.Warn("item save failed", "item_id", item.ItemID, "error", err)
			res.Failed = append(res.Failed, item.ItemID)
		}
	}
	return nil
}

func (e *Engine) reconcile(ctx context.Context, req Request, res *Result) {
	log := e.logger.With("session_id", req.SessionID)

	snap, err := e.fetch(ctx, req.SessionID)
	if err != nil {
		log.Warn("could not refresh session after save", "error", err)
		return
	}
	res.Remote = snap
	if res.Completed() {
		log.Info("session completed on server", "saved", len(res.Saved))
		return
	}

	local := response.NewStore(req.Template)
	local.Restore(req.Responses)
	Reconcile(local, snap, toSet(res.Failed))
	if len(res.Failed) > 0 || !completion.VisibleCategoriesComplete(req.Template, local, nil) {
		log.Info("session reconciled", "saved", len(res.Saved), "failed", len(res.Failed))
		return
	}

	res.CompletionRequested = true
	if err := e.complete(ctx, req.SessionID); err != nil {
		res.CompletionErr = err
		log.Warn("completion request failed, session stays open", "error", err)
		return
	}

	if refreshed, err := e.fetch(ctx, req.SessionID); err == nil {
		res.Remote = refreshed
	} else {
		log.Warn("could not refresh session after completion", "error", err)
	}
	log.Info("session reconciled", "saved", len(res.Saved), "failed", len(res.Failed), "completed", res.Completed())
}

func (e *Engine) locked(ctx context.Context, req Request, res *Result) (*Result, error) {
	e.logger.Warn("session is locked on server", "session_id", req.SessionID)
	if snap, err := e.fetch(ctx, req.SessionID); err == nil {
		res.Remote = snap
	}
	return res, audit.ErrSessionLocked
}

func (e *Engine) fetch(ctx context.Context, sessionID string) (*audit.Snapshot, error) {
	var snap *audit.Snapshot
	_, err := e.retry(ctx, "fetch_session", func(ctx context.Context) error {
		var err error
		snap, err = e.remote.FetchSession(ctx, sessionID)
		return err
	})
	return snap, err
}

func (e *Engine) complete(ctx context.Context, sessionID string) error {
	_, err := e.retry(ctx, "complete_session", func(ctx context.Context) error {
		return e.remote.CompleteSession(ctx, sessionID)
	})
	return err
}

// Refresh fetches the authoritative session state with the retry policy.
func (e *Engine) Refresh(ctx context.Context, sessionID string) (*audit.Snapshot, error) {
	if sessionID == "" {
		return nil, ErrNoSession
	}
	return e.fetch(ctx, sessionID)
}

// CreateSession creates the server session with the retry policy. Retries
// carry the same idempotency token, so they resolve to one session.
func (e *Engine) CreateSession(ctx context.Context, req audit.CreateRequest) (*audit.Audit, error) {
	var created *audit.Audit
	_, err := e.retry(ctx, "create_session", func(ctx context.Context) error {
		var err error
		created, err = e.remote.CreateSession(ctx, req)
		return err
	})
	return created, err
}

// UpdateSession changes server-side session fields with the retry policy.
func (e *Engine) UpdateSession(ctx context.Context, sessionID string, req audit.UpdateRequest) (*audit.Audit, error) {
	var updated *audit.Audit
	_, err := e.retry(ctx, "update_session", func(ctx context.Context) error {
		var err error
		updated, err = e.remote.UpdateSession(ctx, sessionID, req)
		return err
	})
	return updated, err
}

// FetchTemplate loads a template with the retry policy.
func (e *Engine) FetchTemplate(ctx context.Context, templateID string) (*template.Template, error) {
	var tpl *template.Template
	_, err := e.retry(ctx, "fetch_template", func(ctx context.Context) error {
		var err error
		tpl, err = e.remote.FetchTemplate(ctx, templateID)
		return err
	})
	return tpl, err
}

// retry runs fn until it succeeds, fails non-transiently or the attempt cap
// is reached. It returns the number of attempts made.
func (e *Engine) retry(ctx context.Context, op string, fn func(context.Context) error) (int, error) {
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil || !IsTransient(err) || attempt >= e.policy.MaxAttempts {
			return attempt, err
		}

		delay := e.policy.Backoff(attempt, err)
		e.logger.Warn("transient failure, retrying", "op", op, "attempt", attempt, "delay", delay, "error", err)
		if sleepErr := e.sleep(ctx, delay); sleepErr != nil {
			return attempt, err
		}
	}
}

func itemIDs(payload []audit.ItemUpdate) []string {
	ids := make([]string, 0, len(payload))
	for _, item := range payload {
		ids = append(ids, item.ItemID)
	}
	return ids
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
