package integration_test

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/rpggio/fieldaudit/internal/apiclient"
	"github.com/rpggio/fieldaudit/internal/domain/audit"
	"github.com/rpggio/fieldaudit/internal/domain/draft"
	"github.com/rpggio/fieldaudit/internal/domain/response"
	"github.com/rpggio/fieldaudit/internal/domain/session"
	"github.com/rpggio/fieldaudit/internal/domain/syncer"
	"github.com/rpggio/fieldaudit/internal/domain/template"
	"github.com/rpggio/fieldaudit/internal/sqlite"
	"github.com/rpggio/fieldaudit/internal/testserver"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	backend  *testserver.TestServer
	audits   *sqlite.AuditRepository
	drafts   *draft.Service
	sessions *session.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	backend := testserver.New(t, testserver.WithToken("field-token"))

	dsn := fmt.Sprintf("file:%s_device?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := sqlite.New(dsn)
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations())
	t.Cleanup(func() { _ = db.Close() })

	client := apiclient.New(backend.URL(), 2*time.Second, apiclient.WithToken("field-token"))
	engine := syncer.NewEngine(client, syncer.Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    4 * time.Millisecond,
		ItemPacing:  time.Millisecond,
	}, nil)

	drafts := draft.NewService(sqlite.NewDraftStore(db), nil)
	opts := session.DefaultOptions()
	opts.Writer = draft.WriterOptions{Debounce: 5 * time.Millisecond, FlushInterval: time.Hour}
	sessions := session.NewService(engine, drafts, opts, nil)
	t.Cleanup(func() { sessions.CloseAll(context.Background()) })

	return &testEnv{
		backend:  backend,
		audits:   sqlite.NewAuditRepository(backend.DB),
		drafts:   drafts,
		sessions: sessions,
	}
}

func (e *testEnv) open(t *testing.T, templateID string) *session.Controller {
	t.Helper()
	c, err := e.sessions.Open(context.Background(), session.OpenRequest{TemplateID: templateID, LocationID: "store-7"})
	require.NoError(t, err)
	return c
}

func (e *testEnv) recorded(t *testing.T, sessionID string) []audit.ItemState {
	t.Helper()
	items, err := e.audits.ListItems(context.Background(), sessionID)
	require.NoError(t, err)
	return items
}

func itemView(t *testing.T, v session.View, id string) session.ItemView {
	t.Helper()
	for _, iv := range v.Items {
		if iv.Item.ID == id {
			return iv
		}
	}
	t.Fatalf("item %s not in view", id)
	return session.ItemView{}
}

var yesNo = []template.Option{{ID: "yes", Text: "Yes"}, {ID: "no", Text: "No"}}

// A conditional item follows its controlling answer.
func TestConditionalVisibility(t *testing.T) {
	env := newTestEnv(t)
	env.backend.Seed(t, template.CreateRequest{
		ID:   "fridge",
		Name: "Fridge check",
		Items: []template.ChecklistItem{
			{ID: "a", Category: "Cold chain", Title: "Seal damaged?", Required: true, Options: yesNo},
			{ID: "b", Category: "Cold chain", Title: "Describe damage", InputType: "short_answer", Required: true,
				ConditionalItemID: "a", ConditionalOperator: "equals", ConditionalValue: "Yes"},
		},
	})
	ctx := context.Background()
	c := env.open(t, "fridge")

	require.NoError(t, c.SelectOption("a", "no"))
	v := c.View()
	require.False(t, itemView(t, v, "b").Visible)
	require.True(t, v.Overall.IsComplete, "hidden required item must not block completion")

	require.NoError(t, c.SelectOption("a", "yes"))
	v = c.View()
	require.True(t, itemView(t, v, "b").Visible)
	require.False(t, v.Overall.IsComplete)

	_, err := c.Submit(ctx, session.SubmitOptions{})
	require.ErrorIs(t, err, session.ErrValidation)
	require.Zero(t, env.backend.Count(http.MethodPost, "/audits"))

	require.NoError(t, c.SetText("b", "Door gasket torn"))
	res, err := c.Submit(ctx, session.SubmitOptions{})
	require.NoError(t, err)
	require.Equal(t, syncer.OutcomeSuccess, res.Outcome())
	require.True(t, res.Completed())
	require.Equal(t, audit.StatusCompleted, c.Status())
}

// The derived average ignores blanks and clears to empty.
func TestDerivedAverage(t *testing.T) {
	env := newTestEnv(t)
	items := []template.ChecklistItem{}
	for i := 1; i <= 5; i++ {
		items = append(items, template.ChecklistItem{ID: fmt.Sprintf("t%d", i), Category: "Probe", Title: fmt.Sprintf("Attempt %d", i)})
	}
	items = append(items, template.ChecklistItem{ID: "avg", Category: "Probe", Title: "Average (auto)"})
	env.backend.Seed(t, template.CreateRequest{ID: "probe", Name: "Probe temps", Items: items})

	c := env.open(t, "probe")
	for i, value := range []string{"10", "20", "", "30", ""} {
		require.NoError(t, c.SetText(fmt.Sprintf("t%d", i+1), value))
	}

	avg := itemView(t, c.View(), "avg")
	require.True(t, avg.Derived)
	require.NotNil(t, avg.Response)
	require.Equal(t, "20.00", avg.Response.Text)

	require.Error(t, c.SetText("avg", "99"), "derived items are not editable")

	for i := 1; i <= 5; i++ {
		require.NoError(t, c.Clear(fmt.Sprintf("t%d", i)))
	}
	avg = itemView(t, c.View(), "avg")
	if avg.Response != nil {
		require.Empty(t, avg.Response.Text)
	}
}

func syncTemplate() template.CreateRequest {
	return template.CreateRequest{
		ID:   "closing",
		Name: "Store closing",
		Items: []template.ChecklistItem{
			{ID: "lights", Category: "Floor", Title: "Lights off"},
			{ID: "till", Category: "Floor", Title: "Till counted?", Options: yesNo},
			{ID: "note", Category: "Notes", Title: "Comments", InputType: "long_answer"},
		},
	}
}

// Transient batch failures are retried and the server records
// each item exactly once.
func TestBatchRetryRecordsItemsOnce(t *testing.T) {
	env := newTestEnv(t)
	env.backend.Seed(t, syncTemplate())
	ctx := context.Background()

	c := env.open(t, "closing")
	require.NoError(t, c.SetStatus("lights", response.StatusCompleted))
	require.NoError(t, c.SelectOption("till", "yes"))
	require.NoError(t, c.SetText("note", "All good"))

	env.backend.Inject(testserver.Fault{Method: http.MethodPut, Path: "/items", Times: 2})

	res, err := c.Submit(ctx, session.SubmitOptions{})
	require.NoError(t, err)
	require.Equal(t, syncer.OutcomeSuccess, res.Outcome())
	require.Equal(t, 3, res.BatchAttempts)
	require.False(t, res.UsedFallback)
	require.ElementsMatch(t, []string{"lights", "till", "note"}, res.Saved)
	require.Equal(t, 3, env.backend.Count(http.MethodPut, "/items"))
	require.Len(t, env.recorded(t, c.SessionID()), 3)
	require.Equal(t, audit.StatusCompleted, c.Status())
}

func TestBatchExhaustedFallsBackPerItem(t *testing.T) {
	env := newTestEnv(t)
	env.backend.Seed(t, syncTemplate())
	ctx := context.Background()

	c := env.open(t, "closing")
	require.NoError(t, c.SetStatus("lights", response.StatusCompleted))
	require.NoError(t, c.SelectOption("till", "no"))

	env.backend.Inject(testserver.Fault{Method: http.MethodPut, Path: "/items", Times: 3})

	res, err := c.Submit(ctx, session.SubmitOptions{})
	require.NoError(t, err)
	require.True(t, res.UsedFallback)
	require.Equal(t, syncer.OutcomeSuccess, res.Outcome())
	require.False(t, res.CompletionRequested, "notes category is still open")
	require.Equal(t, 2, env.backend.Count(http.MethodPut, "/items/lights")+env.backend.Count(http.MethodPut, "/items/till"))

	// A second submit of the same answers upserts rather than duplicating.
	res, err = c.Submit(ctx, session.SubmitOptions{})
	require.NoError(t, err)
	require.False(t, res.UsedFallback)
	require.Len(t, env.recorded(t, c.SessionID()), 2)

	require.Eventually(t, func() bool {
		snap, err := env.drafts.Load(ctx, c.Key())
		return err == nil && snap.SessionID == c.SessionID()
	}, time.Second, 5*time.Millisecond, "draft survives until the audit completes")
}

// A server-side completion locks the session before any further
// network call.
func TestServerCompletionLocksSession(t *testing.T) {
	env := newTestEnv(t)
	env.backend.Seed(t, syncTemplate())
	ctx := context.Background()

	c := env.open(t, "closing")
	require.NoError(t, c.SetStatus("lights", response.StatusCompleted))
	res, err := c.Submit(ctx, session.SubmitOptions{})
	require.NoError(t, err)
	require.False(t, res.Completed())
	sessionID := c.SessionID()
	require.NotEmpty(t, sessionID)

	// Another device finishes the audit.
	require.NoError(t, env.backend.Audits.UpdateItem(ctx, sessionID, audit.ItemUpdate{ItemID: "till", SelectedOptionID: "yes"}))
	require.NoError(t, env.backend.Audits.UpdateItem(ctx, sessionID, audit.ItemUpdate{ItemID: "note", Text: "done remotely"}))
	_, err = env.backend.Audits.Complete(ctx, sessionID)
	require.NoError(t, err)

	_, err = c.Refresh(ctx)
	require.NoError(t, err)
	require.Equal(t, audit.StatusCompleted, c.Status())

	before := len(env.backend.Requests())
	require.ErrorIs(t, c.SetText("note", "late edit"), audit.ErrSessionLocked)
	_, err = c.Submit(ctx, session.SubmitOptions{})
	require.ErrorIs(t, err, audit.ErrSessionLocked)
	require.Len(t, env.backend.Requests(), before, "no request may follow a lock")
}

func TestDraftResumesAcrossRestart(t *testing.T) {
	env := newTestEnv(t)
	env.backend.Seed(t, syncTemplate())
	ctx := context.Background()

	c := env.open(t, "closing")
	require.NoError(t, c.SetText("note", "half way"))
	token := c.Token()
	require.NoError(t, env.sessions.Close(ctx, c.Key().String()))

	resumed := env.open(t, "closing")
	require.NotSame(t, c, resumed)
	require.Equal(t, token, resumed.Token())
	note := itemView(t, resumed.View(), "note")
	require.NotNil(t, note.Response)
	require.Equal(t, "half way", note.Response.Text)
}
