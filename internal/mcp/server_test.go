package mcp_test

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rpggio/fieldaudit/internal/apiclient"
	"github.com/rpggio/fieldaudit/internal/domain/draft"
	"github.com/rpggio/fieldaudit/internal/domain/geofence"
	"github.com/rpggio/fieldaudit/internal/domain/session"
	"github.com/rpggio/fieldaudit/internal/domain/syncer"
	"github.com/rpggio/fieldaudit/internal/domain/template"
	"github.com/rpggio/fieldaudit/internal/mcp"
	"github.com/rpggio/fieldaudit/internal/sqlite"
	"github.com/rpggio/fieldaudit/internal/testserver"
	"github.com/stretchr/testify/require"
)

var site = geofence.Coordinate{Latitude: 40.7128, Longitude: -74.0060}

func north(meters float64) (float64, float64) {
	return site.Latitude + meters/111195.0, site.Longitude
}

type harness struct {
	backend *testserver.TestServer
	client  *sdkmcp.ClientSession
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()

	backend := testserver.New(t)
	backend.Seed(t, template.CreateRequest{
		ID:   "opening",
		Name: "Store opening",
		Items: []template.ChecklistItem{
			{ID: "a", Category: "Safety", Title: "Exits clear?", Required: true, Options: []template.Option{
				{ID: "yes", Text: "Yes"}, {ID: "no", Text: "No"},
			}},
			{ID: "b", Category: "Safety", Title: "Describe blockage", InputType: "short_answer", Required: true,
				ConditionalItemID: "a", ConditionalOperator: "equals", ConditionalValue: "No"},
			{ID: "c", Category: "Cleaning", Title: "Floors mopped"},
		},
	})

	db, err := sqlite.New(fmt.Sprintf("file:%s_drafts?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_")))
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations())
	t.Cleanup(func() { _ = db.Close() })

	policy := syncer.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, ItemPacing: time.Millisecond}
	engine := syncer.NewEngine(apiclient.New(backend.URL(), 2*time.Second), policy, nil)

	opts := session.DefaultOptions()
	opts.Writer = draft.WriterOptions{Debounce: 5 * time.Millisecond, FlushInterval: time.Hour}
	sessions := session.NewService(engine, draft.NewService(sqlite.NewDraftStore(db), nil), opts, nil)
	t.Cleanup(func() { sessions.CloseAll(context.Background()) })

	lat, lon := north(20)
	server := mcp.NewServer(mcp.Config{
		Sessions:      sessions,
		Locator:       geofence.StaticProvider{Fix: geofence.Fix{Coordinate: geofence.Coordinate{Latitude: lat, Longitude: lon}}},
		TransportMode: "stdio",
	})

	clientTransport, serverTransport := sdkmcp.NewInMemoryTransports()
	serverSession, err := server.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = serverSession.Close() })

	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	clientSession, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = clientSession.Close() })

	return &harness{backend: backend, client: clientSession}
}

func (h *harness) call(t *testing.T, name string, args map[string]any) (json.RawMessage, bool) {
	t.Helper()
	result, err := h.client.CallTool(context.Background(), &sdkmcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err, "CallTool %s failed", name)
	require.NotEmpty(t, result.Content, "tool %s returned no content", name)
	text, ok := result.Content[0].(*sdkmcp.TextContent)
	require.True(t, ok)
	return json.RawMessage(text.Text), result.IsError
}

func (h *harness) ok(t *testing.T, name string, args map[string]any, out any) {
	t.Helper()
	data, isErr := h.call(t, name, args)
	require.False(t, isErr, "tool %s failed: %s", name, data)
	if out != nil {
		require.NoError(t, json.Unmarshal(data, out))
	}
}

func (h *harness) fail(t *testing.T, name string, args map[string]any) mcp.APIError {
	t.Helper()
	data, isErr := h.call(t, name, args)
	require.True(t, isErr, "tool %s unexpectedly succeeded: %s", name, data)
	var apiErr mcp.APIError
	require.NoError(t, json.Unmarshal(data, &apiErr))
	return apiErr
}

func TestTools_Listed(t *testing.T) {
	h := newHarness(t)
	res, err := h.client.ListTools(context.Background(), nil)
	require.NoError(t, err)

	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	require.ElementsMatch(t, []string{
		"open_audit", "get_audit", "set_response", "capture_location",
		"submit_audit", "refresh_audit", "close_audit", "list_drafts",
	}, names)
}

func TestTools_SubmitCompletesAndLocks(t *testing.T) {
	h := newHarness(t)

	var view session.View
	h.ok(t, "open_audit", map[string]any{"template_id": "opening"}, &view)
	key := view.Key
	require.Equal(t, "draft:opening:none:none", key)
	require.True(t, view.Started)

	h.ok(t, "set_response", map[string]any{"key": key, "item_id": "a", "action": "select", "value": "yes"}, &view)
	h.ok(t, "set_response", map[string]any{"key": key, "item_id": "c", "action": "status", "value": "completed"}, &view)
	require.True(t, view.Overall.IsComplete)

	var out mcp.SubmitOutput
	h.ok(t, "submit_audit", map[string]any{"key": key}, &out)
	require.Equal(t, "success", out.Outcome)
	require.True(t, out.CompletionRequested)
	require.True(t, out.Completed)
	require.ElementsMatch(t, []string{"a", "b", "c"}, out.SavedItems, "hidden b is sent as not applicable")

	apiErr := h.fail(t, "set_response", map[string]any{"key": key, "item_id": "c", "action": "clear"})
	require.Equal(t, "SESSION_LOCKED", apiErr.Code)

	var drafts struct {
		Drafts []mcp.DraftSummary `json:"drafts"`
	}
	h.ok(t, "list_drafts", map[string]any{}, &drafts)
	require.Empty(t, drafts.Drafts)

	h.ok(t, "close_audit", map[string]any{"key": key}, nil)
	require.Equal(t, "SESSION_NOT_FOUND", h.fail(t, "get_audit", map[string]any{"key": key}).Code)
}

func TestTools_SiteChecksAndValidation(t *testing.T) {
	h := newHarness(t)

	var view session.View
	h.ok(t, "open_audit", map[string]any{
		"template_id":    "opening",
		"location_id":    "store-1",
		"site_latitude":  site.Latitude,
		"site_longitude": site.Longitude,
	}, &view)
	key := view.Key
	require.False(t, view.Started)

	apiErr := h.fail(t, "set_response", map[string]any{"key": key, "item_id": "a", "action": "select", "value": "no"})
	require.Equal(t, "NOT_STARTED", apiErr.Code)

	farLat, farLon := north(300)
	apiErr = h.fail(t, "capture_location", map[string]any{"key": key, "latitude": farLat, "longitude": farLon})
	require.Equal(t, "VALIDATION_FAILED", apiErr.Code)
	require.Contains(t, apiErr.RecoveryHint, "closer")

	// Without coordinates the device locator is used.
	var loc mcp.LocationOutput
	h.ok(t, "capture_location", map[string]any{"key": key}, &loc)
	require.True(t, loc.Started)
	require.True(t, loc.HasSite)
	require.Equal(t, string(geofence.TierVerified), loc.Tier)

	h.ok(t, "set_response", map[string]any{"key": key, "item_id": "a", "action": "select", "value": "no"}, &view)
	require.True(t, view.Items[1].Visible)

	apiErr = h.fail(t, "submit_audit", map[string]any{"key": key})
	require.Equal(t, "VALIDATION_FAILED", apiErr.Code)
	details, ok := apiErr.Details.(map[string]any)
	require.True(t, ok)
	require.Equal(t, session.ReasonRequiredMissing, details["reason"])
	require.Zero(t, h.backend.Count("POST", "/audits"), "validation happens before any network call")
	require.Zero(t, h.backend.Count("PUT", "/items"))

	warnLat, warnLon := north(300)
	h.ok(t, "set_response", map[string]any{"key": key, "item_id": "b", "action": "text", "value": "pallet"}, nil)
	apiErr = h.fail(t, "submit_audit", map[string]any{"key": key, "latitude": warnLat, "longitude": warnLon})
	require.Equal(t, "VALIDATION_FAILED", apiErr.Code)
	require.Contains(t, apiErr.RecoveryHint, "confirm_warning")

	var out mcp.SubmitOutput
	h.ok(t, "submit_audit", map[string]any{"key": key, "latitude": warnLat, "longitude": warnLon, "confirm_warning": true}, &out)
	require.Equal(t, "success", out.Outcome)
	require.False(t, out.Completed, "cleaning is still open")
	require.False(t, out.Audit.LocationVerified)
}

func TestTools_BadInput(t *testing.T) {
	h := newHarness(t)

	require.Equal(t, "SESSION_NOT_FOUND", h.fail(t, "get_audit", map[string]any{"key": "draft:nope:none:none"}).Code)

	var view session.View
	h.ok(t, "open_audit", map[string]any{"template_id": "opening"}, &view)

	require.Equal(t, "INVALID_ACTION", h.fail(t, "set_response", map[string]any{"key": view.Key, "item_id": "a", "action": "shout"}).Code)
	require.Equal(t, "UNKNOWN_ITEM", h.fail(t, "set_response", map[string]any{"key": view.Key, "item_id": "zz", "action": "text", "value": "x"}).Code)
	require.Equal(t, "NO_SERVER_SESSION", h.fail(t, "refresh_audit", map[string]any{"key": view.Key}).Code)
	require.Equal(t, "REJECTED", h.fail(t, "open_audit", map[string]any{"template_id": "missing"}).Code)
}

func TestDocsResource(t *testing.T) {
	h := newHarness(t)
	res, err := h.client.ReadResource(context.Background(), &sdkmcp.ReadResourceParams{URI: "fieldaudit://docs/field-guide"})
	require.NoError(t, err)
	require.Len(t, res.Contents, 1)
	require.Contains(t, res.Contents[0].Text, "Submit outcomes")
}
