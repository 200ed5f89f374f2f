package session_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rpggio/fieldaudit/internal/domain/audit"
	"github.com/rpggio/fieldaudit/internal/domain/draft"
	"github.com/rpggio/fieldaudit/internal/domain/geofence"
	"github.com/rpggio/fieldaudit/internal/domain/response"
	"github.com/rpggio/fieldaudit/internal/domain/session"
	"github.com/rpggio/fieldaudit/internal/domain/syncer"
	"github.com/rpggio/fieldaudit/internal/domain/template"
	"github.com/rpggio/fieldaudit/internal/repository"
	"github.com/rpggio/fieldaudit/internal/repository/mocks"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var site = geofence.Coordinate{Latitude: 40.7128, Longitude: -74.0060}

func near(meters float64) *geofence.Fix {
	return &geofence.Fix{Coordinate: geofence.Coordinate{Latitude: site.Latitude + meters/111195.0, Longitude: site.Longitude}}
}

func testTemplate() *template.Template {
	return &template.Template{
		ID:   "tpl",
		Name: "Store opening",
		Items: []template.ChecklistItem{
			{ID: "a", Category: "Safety", Title: "Exits clear?", Required: true, Options: []template.Option{
				{ID: "yes", Text: "Yes"}, {ID: "no", Text: "No"},
			}},
			{ID: "b", Category: "Safety", Title: "Describe blockage", InputType: "short_answer", Required: true,
				ConditionalItemID: "a", ConditionalOperator: "equals", ConditionalValue: "No"},
			{ID: "c", Category: "Cleaning", Title: "Floors mopped"},
		},
	}
}

type fixture struct {
	svc    *session.Service
	remote *mocks.Remote
	store  *mocks.DraftStore
	key    draft.Key
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	remote := &mocks.Remote{}
	remote.On("FetchTemplate", mock.Anything, "tpl").Return(testTemplate(), nil)

	store := &mocks.DraftStore{}
	key := draft.Key{TemplateID: "tpl", LocationID: "store-1"}
	store.On("Set", mock.Anything, key.String(), mock.Anything).Return(nil).Maybe()

	noSleep := func(context.Context, time.Duration) error { return nil }
	engine := syncer.NewEngine(remote, syncer.DefaultPolicy(), nil, syncer.WithSleep(noSleep))

	opts := session.DefaultOptions()
	opts.Writer = draft.WriterOptions{Debounce: 5 * time.Millisecond, FlushInterval: time.Hour}
	svc := session.NewService(engine, draft.NewService(store, nil), opts, nil)

	t.Cleanup(func() { svc.CloseAll(context.Background()) })
	return &fixture{svc: svc, remote: remote, store: store, key: key}
}

func (f *fixture) open(t *testing.T, expected *geofence.Coordinate) *session.Controller {
	t.Helper()
	f.store.On("Get", mock.Anything, f.key.String()).Return(nil, repository.ErrNotFound).Maybe()
	c, err := f.svc.Open(context.Background(), session.OpenRequest{TemplateID: "tpl", LocationID: "store-1", Expected: expected})
	require.NoError(t, err)
	return c
}

func TestOpen_ReturnsLiveController(t *testing.T) {
	f := newFixture(t)
	first := f.open(t, nil)
	second := f.open(t, nil)
	require.Same(t, first, second)
	f.remote.AssertNumberOfCalls(t, "FetchTemplate", 1)

	require.NoError(t, f.svc.Close(context.Background(), f.key.String()))
	_, ok := f.svc.Get(f.key.String())
	require.False(t, ok)
	require.ErrorIs(t, first.SetStatus("c", "completed"), session.ErrSessionClosed)
}

func TestOpen_ResumesDraft(t *testing.T) {
	f := newFixture(t)
	snap := draft.Snapshot{
		Key:       f.key,
		Token:     "tok-1",
		Responses: map[string]response.ItemResponse{"a": {ItemID: "a", SelectedOptionID: "no"}},
	}
	data, err := json.Marshal(snap)
	require.NoError(t, err)
	f.store.On("Get", mock.Anything, f.key.String()).Return(data, nil)

	c, err := f.svc.Open(context.Background(), session.OpenRequest{TemplateID: "tpl", LocationID: "store-1"})
	require.NoError(t, err)
	require.Equal(t, "tok-1", c.Token())

	view := c.View()
	require.True(t, view.Items[1].Visible, "b depends on a=No")
	require.Equal(t, []string{"a"}, view.PendingItems)
}

func TestMutation_GeneratesTokenOnce(t *testing.T) {
	f := newFixture(t)
	c := f.open(t, nil)
	require.Empty(t, c.Token())

	require.NoError(t, c.SelectOption("a", "yes"))
	token := c.Token()
	require.NotEmpty(t, token)

	require.NoError(t, c.SetStatus("c", "completed"))
	require.Equal(t, token, c.Token())

	require.ErrorIs(t, c.SetText("missing", "x"), response.ErrUnknownItem)
}

func TestSubmit_ValidationBeforeNetwork(t *testing.T) {
	f := newFixture(t)
	c := f.open(t, nil)
	require.NoError(t, c.SelectOption("a", "no"))

	_, err := c.Submit(context.Background(), session.SubmitOptions{})
	require.ErrorIs(t, err, session.ErrValidation)
	var verr *session.ValidationError
	require.True(t, errors.As(err, &verr))
	require.Equal(t, session.ReasonRequiredMissing, verr.Reason)
	require.Equal(t, []string{"b"}, verr.ItemIDs)

	f.remote.AssertNotCalled(t, "CreateSession", mock.Anything, mock.Anything)
	f.remote.AssertNotCalled(t, "BatchUpdateItems", mock.Anything, mock.Anything, mock.Anything)
}

func TestGeofence_StartAndSubmit(t *testing.T) {
	f := newFixture(t)
	c := f.open(t, &site)

	require.ErrorIs(t, c.SelectOption("a", "yes"), session.ErrNotStarted)

	_, err := c.Begin(*near(300))
	var verr *session.ValidationError
	require.True(t, errors.As(err, &verr))
	require.Equal(t, session.ReasonOutsideStartRadius, verr.Reason)

	res, err := c.Begin(*near(20))
	require.NoError(t, err)
	require.True(t, res.Verified())
	require.NoError(t, c.SelectOption("a", "yes"))

	_, err = c.Submit(context.Background(), session.SubmitOptions{Fix: near(800)})
	require.True(t, errors.As(err, &verr))
	require.Equal(t, session.ReasonLocationBlocked, verr.Reason)
	view := c.View()
	require.True(t, view.LocationVerified, "a rejected fix must not replace the start fix")
	require.InDelta(t, near(20).Latitude, view.Location.Latitude, 1e-9)

	_, err = c.Submit(context.Background(), session.SubmitOptions{Fix: near(300)})
	require.True(t, errors.As(err, &verr))
	require.Equal(t, session.ReasonConfirmationRequired, verr.Reason)
	require.InDelta(t, near(20).Latitude, c.View().Location.Latitude, 1e-9, "an unconfirmed fix is not recorded")
	f.remote.AssertNotCalled(t, "CreateSession", mock.Anything, mock.Anything)

	f.remote.On("CreateSession", mock.Anything, mock.MatchedBy(func(req audit.CreateRequest) bool {
		return req.Latitude != nil && !req.LocationVerified
	})).Return(&audit.Audit{ID: "s1"}, nil).Once()
	f.remote.On("BatchUpdateItems", mock.Anything, "s1", mock.Anything).Return(nil).Once()
	f.remote.On("FetchSession", mock.Anything, "s1").Return(&audit.Snapshot{Audit: audit.Audit{ID: "s1", Status: audit.StatusInProgress}}, nil).Once()

	out, err := c.Submit(context.Background(), session.SubmitOptions{Fix: near(300), ConfirmWarning: true})
	require.NoError(t, err)
	require.Equal(t, syncer.OutcomeSuccess, out.Outcome())
	require.False(t, c.View().LocationVerified)
}

func TestSubmit_ServerCompletionLocksSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.open(t, nil)
	require.NoError(t, c.SelectOption("a", "yes"))

	f.remote.On("CreateSession", mock.Anything, mock.Anything).Return(&audit.Audit{ID: "s1"}, nil).Once()
	f.remote.On("BatchUpdateItems", mock.Anything, "s1", mock.Anything).Return(nil).Once()
	f.remote.On("FetchSession", mock.Anything, "s1").Return(&audit.Snapshot{
		Audit: audit.Audit{ID: "s1", Status: audit.StatusInProgress},
		Items: []audit.ItemState{{ItemID: "a", SelectedOptionID: "yes"}},
	}, nil).Once()

	res, err := c.Submit(ctx, session.SubmitOptions{})
	require.NoError(t, err)
	require.False(t, res.CompletionRequested)
	require.Equal(t, audit.StatusInProgress, c.Status())
	require.Equal(t, "s1", c.SessionID())
	require.Empty(t, c.View().PendingItems)

	// Completed from another device.
	f.store.On("Delete", mock.Anything, f.key.String()).Return(nil).Once()
	f.remote.On("FetchSession", mock.Anything, "s1").Return(&audit.Snapshot{
		Audit: audit.Audit{ID: "s1", Status: audit.StatusCompleted},
		Items: []audit.ItemState{{ItemID: "a", SelectedOptionID: "yes"}, {ItemID: "c", Status: "completed"}},
	}, nil).Once()
	_, err = c.Refresh(ctx)
	require.NoError(t, err)
	require.Equal(t, audit.StatusCompleted, c.Status())

	calls := len(f.remote.Calls)
	require.ErrorIs(t, c.SetStatus("c", "pass"), audit.ErrSessionLocked)
	_, err = c.Submit(ctx, session.SubmitOptions{})
	require.ErrorIs(t, err, audit.ErrSessionLocked)
	require.Len(t, f.remote.Calls, calls)
	f.store.AssertCalled(t, "Delete", mock.Anything, f.key.String())
}

func TestOpen_ResumedCompletedSessionClearsDraft(t *testing.T) {
	f := newFixture(t)
	snap := draft.Snapshot{
		Key:       f.key,
		Token:     "tok-1",
		SessionID: "s-1",
		Status:    string(audit.StatusInProgress),
		Responses: map[string]response.ItemResponse{"a": {ItemID: "a", SelectedOptionID: "yes"}},
	}
	data, err := json.Marshal(snap)
	require.NoError(t, err)
	f.store.On("Get", mock.Anything, f.key.String()).Return(data, nil).Once()
	f.store.On("Delete", mock.Anything, f.key.String()).Return(nil).Once()
	f.remote.On("FetchSession", mock.Anything, "s-1").Return(&audit.Snapshot{
		Audit: audit.Audit{ID: "s-1", Status: audit.StatusCompleted},
		Items: []audit.ItemState{{ItemID: "a", SelectedOptionID: "yes"}, {ItemID: "c", Status: "completed"}},
	}, nil).Once()

	c, err := f.svc.Open(context.Background(), session.OpenRequest{TemplateID: "tpl", LocationID: "store-1"})
	require.NoError(t, err)
	require.Equal(t, audit.StatusCompleted, c.Status())
	f.store.AssertCalled(t, "Delete", mock.Anything, f.key.String())

	// Nothing is written back for the finished session.
	require.NoError(t, f.svc.Close(context.Background(), f.key.String()))
	f.store.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything)
}

func TestSubmit_LockedSessionClearsDraft(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.open(t, nil)
	require.NoError(t, c.SelectOption("a", "yes"))

	f.store.On("Delete", mock.Anything, f.key.String()).Return(nil).Once()
	f.remote.On("CreateSession", mock.Anything, mock.Anything).Return(&audit.Audit{ID: "s1"}, nil).Once()
	f.remote.On("BatchUpdateItems", mock.Anything, "s1", mock.Anything).Return(audit.ErrSessionLocked).Once()
	f.remote.On("FetchSession", mock.Anything, "s1").Return(&audit.Snapshot{Audit: audit.Audit{ID: "s1", Status: audit.StatusCompleted}}, nil).Once()

	_, err := c.Submit(ctx, session.SubmitOptions{})
	require.ErrorIs(t, err, audit.ErrSessionLocked)
	require.Equal(t, audit.StatusCompleted, c.Status())
	f.store.AssertCalled(t, "Delete", mock.Anything, f.key.String())
}

func TestSubmit_CompletionClearsDraft(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.open(t, nil)
	require.NoError(t, c.SelectOption("a", "yes"))
	require.NoError(t, c.SetStatus("c", "completed"))

	f.store.On("Delete", mock.Anything, f.key.String()).Return(nil).Once()
	f.remote.On("CreateSession", mock.Anything, mock.Anything).Return(&audit.Audit{ID: "s1"}, nil).Once()
	f.remote.On("BatchUpdateItems", mock.Anything, "s1", mock.Anything).Return(nil).Once()
	f.remote.On("FetchSession", mock.Anything, "s1").Return(&audit.Snapshot{Audit: audit.Audit{ID: "s1", Status: audit.StatusInProgress}}, nil).Once()
	f.remote.On("CompleteSession", mock.Anything, "s1").Return(nil).Once()
	f.remote.On("FetchSession", mock.Anything, "s1").Return(&audit.Snapshot{Audit: audit.Audit{ID: "s1", Status: audit.StatusCompleted}}, nil).Once()

	res, err := c.Submit(ctx, session.SubmitOptions{})
	require.NoError(t, err)
	require.True(t, res.Completed())
	require.Equal(t, audit.StatusCompleted, c.Status())
	f.store.AssertCalled(t, "Delete", mock.Anything, f.key.String())
}

func TestSubmit_RetriedCreateReusesToken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.open(t, nil)
	require.NoError(t, c.SelectOption("a", "yes"))
	token := c.Token()

	var mu sync.Mutex
	var tokens []string
	capture := func(args mock.Arguments) {
		mu.Lock()
		defer mu.Unlock()
		tokens = append(tokens, args.Get(1).(audit.CreateRequest).IdempotencyToken)
	}
	f.remote.On("CreateSession", mock.Anything, mock.Anything).Run(capture).
		Return(nil, &syncer.TransientError{Op: "create", Err: context.DeadlineExceeded}).Once()
	f.remote.On("CreateSession", mock.Anything, mock.Anything).Run(capture).
		Return(&audit.Audit{ID: "s1"}, nil).Once()
	f.remote.On("BatchUpdateItems", mock.Anything, "s1", mock.Anything).Return(nil).Once()
	f.remote.On("FetchSession", mock.Anything, "s1").Return(&audit.Snapshot{Audit: audit.Audit{ID: "s1", Status: audit.StatusInProgress}}, nil)

	_, err := c.Submit(ctx, session.SubmitOptions{})
	require.NoError(t, err)
	require.Equal(t, []string{token, token}, tokens)

	// A second submit reuses the session instead of creating another.
	f.remote.On("BatchUpdateItems", mock.Anything, "s1", mock.Anything).Return(nil).Once()
	_, err = c.Submit(ctx, session.SubmitOptions{})
	require.NoError(t, err)
	f.remote.AssertNumberOfCalls(t, "CreateSession", 2)
}

func TestSubmit_ConcurrentSubmitIsSkipped(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.open(t, nil)
	require.NoError(t, c.SelectOption("a", "yes"))

	entered := make(chan struct{})
	release := make(chan struct{})
	f.remote.On("CreateSession", mock.Anything, mock.Anything).Return(&audit.Audit{ID: "s1"}, nil).Once()
	f.remote.On("BatchUpdateItems", mock.Anything, "s1", mock.Anything).Run(func(mock.Arguments) {
		close(entered)
		<-release
	}).Return(nil).Once()
	f.remote.On("FetchSession", mock.Anything, "s1").Return(&audit.Snapshot{Audit: audit.Audit{ID: "s1", Status: audit.StatusInProgress}}, nil)

	done := make(chan error, 1)
	go func() {
		_, err := c.Submit(ctx, session.SubmitOptions{})
		done <- err
	}()
	<-entered

	res, err := c.Submit(ctx, session.SubmitOptions{})
	require.NoError(t, err)
	require.True(t, res.Skipped)
	require.Equal(t, syncer.OutcomeSkipped, res.Outcome())

	// Edits stay possible while a submit is in flight.
	require.NoError(t, c.SetStatus("c", "pass"))

	close(release)
	require.NoError(t, <-done)
	f.remote.AssertNumberOfCalls(t, "BatchUpdateItems", 1)
	require.Equal(t, []string{"c"}, c.View().PendingItems)
}

func TestClose_DiscardsInFlightResult(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.open(t, nil)
	require.NoError(t, c.SelectOption("a", "yes"))

	entered := make(chan struct{})
	release := make(chan struct{})
	f.remote.On("CreateSession", mock.Anything, mock.Anything).Return(&audit.Audit{ID: "s1"}, nil).Once()
	f.remote.On("BatchUpdateItems", mock.Anything, "s1", mock.Anything).Run(func(mock.Arguments) {
		close(entered)
		<-release
	}).Return(nil).Once()
	f.remote.On("FetchSession", mock.Anything, "s1").Return(&audit.Snapshot{Audit: audit.Audit{ID: "s1", Status: audit.StatusCompleted}}, nil)

	callerCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		_, err := c.Submit(callerCtx, session.SubmitOptions{})
		done <- err
	}()
	<-entered
	cancel()
	require.NoError(t, c.Close(ctx))

	close(release)
	require.NoError(t, <-done)

	view := c.View()
	require.Equal(t, audit.StatusDraft, view.Status)
	require.Empty(t, view.LastOutcome)
	f.store.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestCheckLocation_UsesSubmitThresholds(t *testing.T) {
	f := newFixture(t)
	c := f.open(t, &site)

	res, ok := c.CheckLocation(*near(120))
	require.True(t, ok)
	require.Equal(t, geofence.TierVerified, res.Tier, "120m is outside the start radius but inside the submit entry radius")

	res, _ = c.CheckLocation(*near(700))
	require.Equal(t, geofence.TierBlock, res.Tier)
	require.Equal(t, session.ReasonOutsideStartRadius, startReason(c.Begin(*near(120))))
}

func startReason(_ geofence.Result, err error) string {
	var ve *session.ValidationError
	if errors.As(err, &ve) {
		return ve.Reason
	}
	return ""
}
