package session

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/rpggio/fieldaudit/internal/domain/audit"
	"github.com/rpggio/fieldaudit/internal/domain/completion"
	"github.com/rpggio/fieldaudit/internal/domain/draft"
	"github.com/rpggio/fieldaudit/internal/domain/geofence"
	"github.com/rpggio/fieldaudit/internal/domain/response"
	"github.com/rpggio/fieldaudit/internal/domain/syncer"
	"github.com/rpggio/fieldaudit/internal/domain/template"
	"github.com/rpggio/fieldaudit/internal/domain/visibility"
)

// Controller owns the state of one open audit session. All fields below mu
// are guarded by it; network calls are made without holding it.
type Controller struct {
	key      draft.Key
	tpl      *template.Template
	expected *geofence.Coordinate
	opts     Options
	engine   *syncer.Engine
	drafts   *draft.Service
	writer   *draft.Writer
	logger   *slog.Logger
	onClose  func()

	mu               sync.Mutex
	store            *response.Store
	status           audit.Status
	sessionID        string
	token            string
	step             int
	started          bool
	location         *geofence.Fix
	locationVerified bool
	submitting       bool
	alive            bool
	revision         uint64
	edited           map[string]uint64
	lastOutcome      syncer.Outcome
	lastRefresh      time.Time
}

func newController(key draft.Key, tpl *template.Template, expected *geofence.Coordinate, opts Options, engine *syncer.Engine, drafts *draft.Service, logger *slog.Logger) *Controller {
	return &Controller{
		key:      key,
		tpl:      tpl,
		expected: expected,
		opts:     opts,
		engine:   engine,
		drafts:   drafts,
		logger:   logger.With("key", key.String()),
		store:    response.NewStore(tpl),
		status:   audit.StatusDraft,
		started:  expected == nil,
		alive:    true,
		edited:   make(map[string]uint64),
	}
}

// resume loads draft state. Resumed sessions must pass the start check
// again when a site location is expected.
func (c *Controller) resume(snap *draft.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.store.Restore(snap.Responses)
	c.token = snap.Token
	c.sessionID = snap.SessionID
	c.step = snap.CurrentStep
	c.location = snap.Location
	c.locationVerified = snap.LocationVerified
	if snap.Status != "" {
		c.status = audit.Status(snap.Status)
	}
	// Unsaved edits survive a restart; treat every restored answer as pending.
	for id := range snap.Responses {
		c.revision++
		c.edited[id] = c.revision
	}
}

func (c *Controller) startWriter() {
	c.writer = draft.NewWriter(c.drafts, c.draftSnapshot, c.opts.Writer, c.logger)
}

// draftSnapshot is the writer's source. Nothing is persisted before the
// first answer, and a completed session is never written back.
func (c *Controller) draftSnapshot() (*draft.Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token == "" || c.status == audit.StatusCompleted {
		return nil, false
	}
	var loc *geofence.Fix
	if c.location != nil {
		fix := *c.location
		loc = &fix
	}
	return &draft.Snapshot{
		Key:              c.key,
		Token:            c.token,
		SessionID:        c.sessionID,
		Status:           string(c.status),
		Responses:        c.store.Snapshot(),
		CurrentStep:      c.step,
		LocationCaptured: c.location != nil,
		LocationVerified: c.locationVerified,
		Location:         loc,
	}, true
}

// Key returns the session identity.
func (c *Controller) Key() draft.Key {
	return c.key
}

// Template returns the loaded template.
func (c *Controller) Template() *template.Template {
	return c.tpl
}

// Status returns the local view of the session status.
func (c *Controller) Status() audit.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// SessionID returns the server session ID, empty before the first submit.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Token returns the idempotency token, empty before the first answer.
func (c *Controller) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// Begin runs the on-site check with the start radius.
func (c *Controller) Begin(fix geofence.Fix) (geofence.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.alive {
		return geofence.Result{}, ErrSessionClosed
	}
	if c.status == audit.StatusCompleted {
		return geofence.Result{}, audit.ErrSessionLocked
	}
	if c.expected == nil {
		c.started = true
		c.location = &fix
		return geofence.Result{Tier: geofence.TierVerified}, nil
	}

	res := geofence.Classify(fix.Coordinate, *c.expected, geofence.StartThresholds(c.opts.StartRadius))
	if !res.Verified() {
		return res, &ValidationError{Reason: ReasonOutsideStartRadius, Distance: res.Distance}
	}
	c.started = true
	c.location = &fix
	c.locationVerified = true
	c.notify()
	return res, nil
}

// CheckLocation classifies fix against the submit thresholds without
// changing state. It returns false when the session has no site location.
func (c *Controller) CheckLocation(fix geofence.Fix) (geofence.Result, bool) {
	if c.expected == nil {
		return geofence.Result{}, false
	}
	return geofence.Classify(fix.Coordinate, *c.expected, c.opts.Submit), true
}

// SetStatus records a task status.
func (c *Controller) SetStatus(itemID, status string) error {
	return c.mutate(itemID, func(s *response.Store) error { return s.SetStatus(itemID, status) })
}

// SelectOption records an option choice. An empty option clears it.
func (c *Controller) SelectOption(itemID, optionID string) error {
	return c.mutate(itemID, func(s *response.Store) error { return s.SelectOption(itemID, optionID) })
}

// ToggleSelection flips one option of a multi-answer item.
func (c *Controller) ToggleSelection(itemID, optionID string) error {
	return c.mutate(itemID, func(s *response.Store) error { return s.ToggleSelection(itemID, optionID) })
}

// SetSelections replaces a multi-answer selection.
func (c *Controller) SetSelections(itemID string, optionIDs []string) error {
	return c.mutate(itemID, func(s *response.Store) error { return s.SetSelections(itemID, optionIDs) })
}

// SetText records free text.
func (c *Controller) SetText(itemID, text string) error {
	return c.mutate(itemID, func(s *response.Store) error { return s.SetText(itemID, text) })
}

// SetPhoto records a photo reference.
func (c *Controller) SetPhoto(itemID, ref string) error {
	return c.mutate(itemID, func(s *response.Store) error { return s.SetPhoto(itemID, ref) })
}

// Clear removes an item's answer.
func (c *Controller) Clear(itemID string) error {
	return c.mutate(itemID, func(s *response.Store) error { return s.Clear(itemID) })
}

// SetStep records the current wizard step.
func (c *Controller) SetStep(step int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkMutable(); err != nil {
		return err
	}
	c.step = step
	c.notify()
	return nil
}

func (c *Controller) mutate(itemID string, fn func(*response.Store) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkMutable(); err != nil {
		return err
	}
	if err := fn(c.store); err != nil {
		return err
	}
	if c.token == "" {
		c.token = draft.NewToken()
		c.logger.Debug("generated idempotency token")
	}
	c.revision++
	c.edited[itemID] = c.revision
	c.notify()
	return nil
}

// checkMutable must be called with mu held.
func (c *Controller) checkMutable() error {
	if !c.alive {
		return ErrSessionClosed
	}
	if c.status == audit.StatusCompleted {
		return audit.ErrSessionLocked
	}
	if !c.started {
		return ErrNotStarted
	}
	return nil
}

func (c *Controller) notify() {
	if c.writer != nil {
		c.writer.Notify()
	}
}

// Submit validates locally, creates the server session on first use and
// runs the sync engine. A submit while another is in flight returns a
// skipped result. The caller leaving does not cancel the network work;
// results arriving after Close are discarded.
func (c *Controller) Submit(ctx context.Context, opts SubmitOptions) (*syncer.Result, error) {
	c.mu.Lock()
	if err := c.checkMutable(); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	if c.submitting {
		c.mu.Unlock()
		c.logger.Debug("submit already in flight")
		return &syncer.Result{Skipped: true}, nil
	}
	if err := c.validateLocked(opts); err != nil {
		c.mu.Unlock()
		return nil, err
	}

	c.submitting = true
	if c.token == "" {
		c.token = draft.NewToken()
	}
	rev := c.revision
	sessionID := c.sessionID
	createReq := audit.CreateRequest{
		IdempotencyToken: c.token,
		TemplateID:       c.key.TemplateID,
		LocationID:       c.key.LocationID,
		ScheduleID:       c.key.ScheduleID,
		LocationVerified: c.locationVerified,
	}
	var update *audit.UpdateRequest
	if c.location != nil {
		lat, lon := c.location.Latitude, c.location.Longitude
		verified := c.locationVerified
		createReq.Latitude, createReq.Longitude = &lat, &lon
		update = &audit.UpdateRequest{Latitude: &lat, Longitude: &lon, LocationVerified: &verified}
	}
	responses := c.store.Snapshot()
	c.mu.Unlock()

	ctx = context.WithoutCancel(ctx)

	if sessionID == "" {
		created, err := c.engine.CreateSession(ctx, createReq)
		if err != nil {
			c.finishSubmit(nil, rev)
			return nil, err
		}
		sessionID = created.ID
		c.mu.Lock()
		if c.alive {
			c.sessionID = sessionID
			c.notify()
		}
		c.mu.Unlock()
	} else if update != nil {
		if _, err := c.engine.UpdateSession(ctx, sessionID, *update); err != nil && !errors.Is(err, audit.ErrSessionLocked) {
			c.logger.Warn("failed to update session location", "session_id", sessionID, "error", err)
		}
	}

	res, err := c.engine.Submit(ctx, syncer.Request{
		SessionID: sessionID,
		Template:  c.tpl,
		Responses: responses,
		Category:  opts.Category,
		Section:   opts.Section,
	})

	// A session the server reports completed is never resumable, even when
	// the lock rejected some of this submission.
	if completed := c.finishSubmit(res, rev); completed {
		c.clearDraft(ctx)
	}
	return res, err
}

// validateLocked checks location and required items. mu must be held.
func (c *Controller) validateLocked(opts SubmitOptions) error {
	candidate := c.location
	if opts.Fix != nil {
		fix := *opts.Fix
		candidate = &fix
	}
	if c.expected != nil {
		if candidate == nil {
			return &ValidationError{Reason: ReasonLocationMissing}
		}
		// A rejected position is never recorded.
		res := geofence.Classify(candidate.Coordinate, *c.expected, c.opts.Submit)
		switch res.Tier {
		case geofence.TierBlock:
			return &ValidationError{Reason: ReasonLocationBlocked, Distance: res.Distance}
		case geofence.TierWarn:
			if !opts.ConfirmWarning {
				return &ValidationError{Reason: ReasonConfirmationRequired, Distance: res.Distance}
			}
			c.locationVerified = false
		default:
			c.locationVerified = true
		}
	}
	c.location = candidate

	if missing := completion.RequiredMissing(c.tpl, c.store, nil, opts.Category, opts.Section); len(missing) > 0 {
		return &ValidationError{Reason: ReasonRequiredMissing, ItemIDs: missing}
	}
	return nil
}

// finishSubmit applies a submission result if the controller is still
// alive. It reports whether the server confirmed completion.
func (c *Controller) finishSubmit(res *syncer.Result, rev uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.submitting = false
	if !c.alive {
		c.logger.Debug("discarding submit result for closed session")
		return false
	}
	if res == nil {
		return false
	}

	c.lastOutcome = res.Outcome()
	failed := make(map[string]bool, len(res.Failed))
	for _, id := range res.Failed {
		failed[id] = true
	}
	for _, id := range res.Saved {
		if c.edited[id] <= rev && !failed[id] {
			delete(c.edited, id)
		}
	}

	if res.Remote == nil {
		return false
	}
	c.applyRemoteLocked(res.Remote)
	c.notify()
	return c.status == audit.StatusCompleted
}

// clearDraft deletes the stored draft. Once the status is completed the
// writer has nothing left to save. mu must not be held.
func (c *Controller) clearDraft(ctx context.Context) {
	if err := c.drafts.Clear(ctx, c.key); err != nil {
		c.logger.Warn("failed to clear completed draft", "error", err)
	}
}

// applyRemoteLocked reconciles with server truth, keeping unsaved edits.
func (c *Controller) applyRemoteLocked(snap *audit.Snapshot) {
	keep := make(map[string]bool, len(c.edited))
	for id := range c.edited {
		keep[id] = true
	}
	syncer.Reconcile(c.store, snap, keep)
	c.lastRefresh = time.Now()

	if snap.Audit.Status != "" && c.status != audit.StatusCompleted {
		c.status = snap.Audit.Status
	}
	if c.status == audit.StatusCompleted {
		c.logger.Info("session completed on server", "session_id", snap.Audit.ID)
	}
}

// Refresh re-fetches the server state and reconciles with it.
func (c *Controller) Refresh(ctx context.Context) (*audit.Snapshot, error) {
	c.mu.Lock()
	if !c.alive {
		c.mu.Unlock()
		return nil, ErrSessionClosed
	}
	sessionID := c.sessionID
	c.mu.Unlock()

	snap, err := c.engine.Refresh(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	completed := false
	if c.alive {
		c.applyRemoteLocked(snap)
		completed = c.status == audit.StatusCompleted
	}
	c.mu.Unlock()

	if completed {
		c.clearDraft(ctx)
	}
	return snap, nil
}

// View returns the current state with visibility and progress derived
// from scratch.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	visible := visibility.VisibleSet(c.tpl, c.store)
	statuses := completion.CategoryStatuses(c.tpl, c.store, visible)

	items := make([]ItemView, 0, len(c.tpl.Items))
	for _, item := range c.tpl.Items {
		ft := c.store.FieldType(item.ID)
		iv := ItemView{
			Item:      item,
			FieldType: ft,
			Visible:   visible[item.ID],
			Derived:   c.store.IsDerived(item.ID),
		}
		if resp, ok := c.store.Get(item.ID); ok {
			iv.Response = &resp
			iv.Complete = completion.IsItemComplete(ft, resp)
		}
		items = append(items, iv)
	}

	pending := make([]string, 0, len(c.edited))
	for id := range c.edited {
		pending = append(pending, id)
	}
	slices.Sort(pending)

	var loc *geofence.Fix
	if c.location != nil {
		fix := *c.location
		loc = &fix
	}
	return View{
		Key:              c.key.String(),
		TemplateID:       c.tpl.ID,
		TemplateName:     c.tpl.Name,
		SessionID:        c.sessionID,
		Status:           c.status,
		Started:          c.started,
		CurrentStep:      c.step,
		LocationVerified: c.locationVerified,
		Location:         loc,
		Items:            items,
		Categories:       statuses,
		Overall:          completion.Summarize(statuses),
		LastOutcome:      c.lastOutcome,
		PendingItems:     pending,
		LastRefresh:      c.lastRefresh,
	}
}

// Close tears the controller down after a final draft flush. Results of
// submissions still in flight are discarded.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	if !c.alive {
		c.mu.Unlock()
		return nil
	}
	c.alive = false
	c.mu.Unlock()

	var err error
	if c.writer != nil {
		err = c.writer.Stop(ctx)
	}
	if c.onClose != nil {
		c.onClose()
	}
	return err
}
