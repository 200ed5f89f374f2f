package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rpggio/fieldaudit/internal/domain/geofence"
	"github.com/rpggio/fieldaudit/internal/domain/session"
)

// OpenAuditInput opens or resumes an audit.
type OpenAuditInput struct {
	TemplateID    string   `json:"template_id" jsonschema:"template to audit against"`
	ScheduleID    string   `json:"schedule_id,omitempty" jsonschema:"schedule the audit belongs to, if any"`
	LocationID    string   `json:"location_id,omitempty" jsonschema:"site being audited, if any"`
	SiteLatitude  *float64 `json:"site_latitude,omitempty" jsonschema:"site latitude; enables the on-site checks"`
	SiteLongitude *float64 `json:"site_longitude,omitempty" jsonschema:"site longitude; enables the on-site checks"`
}

// KeyInput addresses an open audit.
type KeyInput struct {
	Key string `json:"key" jsonschema:"audit key returned by open_audit"`
}

// SetResponseInput records one answer.
type SetResponseInput struct {
	Key    string   `json:"key" jsonschema:"audit key returned by open_audit"`
	ItemID string   `json:"item_id,omitempty" jsonschema:"item to answer; not needed for the step action"`
	Action string   `json:"action" jsonschema:"one of status, select, toggle, selections, text, photo, clear, step"`
	Value  string   `json:"value,omitempty" jsonschema:"status, option id, text, photo reference or step number"`
	Values []string `json:"values,omitempty" jsonschema:"option ids for the selections action"`
}

// LocationInput carries an optional device position.
type LocationInput struct {
	Key       string   `json:"key" jsonschema:"audit key returned by open_audit"`
	Latitude  *float64 `json:"latitude,omitempty" jsonschema:"device latitude; omit to use the device locator"`
	Longitude *float64 `json:"longitude,omitempty" jsonschema:"device longitude; omit to use the device locator"`
	Accuracy  float64  `json:"accuracy,omitempty" jsonschema:"reported accuracy in meters"`
}

// SubmitAuditInput submits an audit or a slice of it.
type SubmitAuditInput struct {
	Key            string   `json:"key" jsonschema:"audit key returned by open_audit"`
	Latitude       *float64 `json:"latitude,omitempty" jsonschema:"device latitude; omit to reuse the captured location"`
	Longitude      *float64 `json:"longitude,omitempty" jsonschema:"device longitude; omit to reuse the captured location"`
	Accuracy       float64  `json:"accuracy,omitempty" jsonschema:"reported accuracy in meters"`
	ConfirmWarning bool     `json:"confirm_warning,omitempty" jsonschema:"accept a location between the verified and blocked radius"`
	Category       string   `json:"category,omitempty" jsonschema:"submit only this category"`
	Section        string   `json:"section,omitempty" jsonschema:"submit only this section of the category"`
}

// LocationOutput reports the geofence check for a captured position.
type LocationOutput struct {
	Started  bool    `json:"started"`
	HasSite  bool    `json:"has_site"`
	Tier     string  `json:"tier,omitempty"`
	Distance float64 `json:"distance_m,omitempty"`
}

// SubmitOutput summarises one submission.
type SubmitOutput struct {
	Outcome             string        `json:"outcome"`
	SavedItems          []string      `json:"saved_items,omitempty"`
	FailedItems         []string      `json:"failed_items,omitempty"`
	UsedFallback        bool          `json:"used_fallback,omitempty"`
	CompletionRequested bool          `json:"completion_requested,omitempty"`
	Completed           bool          `json:"completed"`
	CompletionError     string        `json:"completion_error,omitempty"`
	Audit               *session.View `json:"audit,omitempty"`
}

// DraftSummary lists a resumable draft.
type DraftSummary struct {
	Key       string    `json:"key"`
	SessionID string    `json:"session_id,omitempty"`
	Answers   int       `json:"answers"`
	SavedAt   time.Time `json:"saved_at"`
}

type toolset struct {
	sessions SessionService
	locator  geofence.Provider
	logger   *slog.Logger

	mu    sync.Mutex
	fixes map[string]geofence.Fix
}

func newToolset(sessions SessionService, locator geofence.Provider, logger *slog.Logger) *toolset {
	return &toolset{
		sessions: sessions,
		locator:  locator,
		logger:   logger,
		fixes:    make(map[string]geofence.Fix),
	}
}

func registerTools(server *sdkmcp.Server, ts *toolset) {
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "open_audit",
		Description: "Open an audit for a template and site, resuming any draft saved on the device",
	}, ts.openAudit)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "get_audit",
		Description: "Get the visible items, answers and category progress of an open audit",
	}, ts.getAudit)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "set_response",
		Description: "Record, change or clear the answer to one item",
	}, ts.setResponse)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "capture_location",
		Description: "Capture the device location; starts site-bound audits when within the start radius",
	}, ts.captureLocation)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "submit_audit",
		Description: "Validate and sync answers to the backend; completes the audit when every visible category is done",
	}, ts.submitAudit)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "refresh_audit",
		Description: "Re-fetch the audit from the backend and merge it with local answers",
	}, ts.refreshAudit)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "close_audit",
		Description: "Save the draft and close an open audit",
	}, ts.closeAudit)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "list_drafts",
		Description: "List audits with unsent drafts on the device",
	}, ts.listDrafts)
}

func (ts *toolset) openAudit(ctx context.Context, _ *sdkmcp.CallToolRequest, in OpenAuditInput) (*sdkmcp.CallToolResult, any, error) {
	if (in.SiteLatitude == nil) != (in.SiteLongitude == nil) {
		return toolError(&APIError{Code: "INVALID_INPUT", Message: "site_latitude and site_longitude go together"})
	}
	req := session.OpenRequest{
		TemplateID: strings.TrimSpace(in.TemplateID),
		ScheduleID: strings.TrimSpace(in.ScheduleID),
		LocationID: strings.TrimSpace(in.LocationID),
	}
	if in.SiteLatitude != nil {
		req.Expected = &geofence.Coordinate{Latitude: *in.SiteLatitude, Longitude: *in.SiteLongitude}
	}

	c, err := ts.sessions.Open(ctx, req)
	if err != nil {
		return toolError(err)
	}
	return toolResult(c.View())
}

func (ts *toolset) getAudit(_ context.Context, _ *sdkmcp.CallToolRequest, in KeyInput) (*sdkmcp.CallToolResult, any, error) {
	c, err := ts.controller(in.Key)
	if err != nil {
		return toolError(err)
	}
	return toolResult(c.View())
}

func (ts *toolset) setResponse(_ context.Context, _ *sdkmcp.CallToolRequest, in SetResponseInput) (*sdkmcp.CallToolResult, any, error) {
	c, err := ts.controller(in.Key)
	if err != nil {
		return toolError(err)
	}

	switch strings.ToLower(strings.TrimSpace(in.Action)) {
	case "status":
		err = c.SetStatus(in.ItemID, in.Value)
	case "select":
		err = c.SelectOption(in.ItemID, in.Value)
	case "toggle":
		err = c.ToggleSelection(in.ItemID, in.Value)
	case "selections":
		err = c.SetSelections(in.ItemID, in.Values)
	case "text":
		err = c.SetText(in.ItemID, in.Value)
	case "photo":
		err = c.SetPhoto(in.ItemID, in.Value)
	case "clear":
		err = c.Clear(in.ItemID)
	case "step":
		step, convErr := strconv.Atoi(strings.TrimSpace(in.Value))
		if convErr != nil || step < 0 {
			return toolError(&APIError{Code: "INVALID_INPUT", Message: "step value must be a non-negative integer"})
		}
		err = c.SetStep(step)
	default:
		return toolError(&APIError{
			Code:         "INVALID_ACTION",
			Message:      fmt.Sprintf("unknown action %q", in.Action),
			RecoveryHint: "Use status, select, toggle, selections, text, photo, clear or step",
		})
	}
	if err != nil {
		return toolError(err)
	}
	return toolResult(c.View())
}

func (ts *toolset) captureLocation(ctx context.Context, _ *sdkmcp.CallToolRequest, in LocationInput) (*sdkmcp.CallToolResult, any, error) {
	c, err := ts.controller(in.Key)
	if err != nil {
		return toolError(err)
	}
	fix, err := ts.resolveFix(ctx, in, false)
	if err != nil {
		return toolError(err)
	}
	ts.remember(in.Key, *fix)

	out := LocationOutput{}
	if !c.View().Started {
		res, err := c.Begin(*fix)
		if err != nil {
			return toolError(err)
		}
		out.Tier, out.Distance = string(res.Tier), res.Distance
	} else if res, ok := c.CheckLocation(*fix); ok {
		out.Tier, out.Distance = string(res.Tier), res.Distance
	}
	_, out.HasSite = c.CheckLocation(*fix)
	out.Started = true
	return toolResult(out)
}

func (ts *toolset) submitAudit(ctx context.Context, _ *sdkmcp.CallToolRequest, in SubmitAuditInput) (*sdkmcp.CallToolResult, any, error) {
	c, err := ts.controller(in.Key)
	if err != nil {
		return toolError(err)
	}
	loc := LocationInput{Key: in.Key, Latitude: in.Latitude, Longitude: in.Longitude, Accuracy: in.Accuracy}
	fix, err := ts.resolveFix(ctx, loc, true)
	if err != nil {
		return toolError(err)
	}

	res, err := c.Submit(ctx, session.SubmitOptions{
		Fix:            fix,
		ConfirmWarning: in.ConfirmWarning,
		Category:       in.Category,
		Section:        in.Section,
	})
	if err != nil {
		return toolError(err)
	}

	view := c.View()
	out := SubmitOutput{
		Outcome:             string(res.Outcome()),
		SavedItems:          res.Saved,
		FailedItems:         res.Failed,
		UsedFallback:        res.UsedFallback,
		CompletionRequested: res.CompletionRequested,
		Completed:           res.Completed(),
		Audit:               &view,
	}
	if res.CompletionErr != nil {
		out.CompletionError = res.CompletionErr.Error()
	}
	if out.Completed {
		ts.forget(in.Key)
	}
	return toolResult(out)
}

func (ts *toolset) refreshAudit(ctx context.Context, _ *sdkmcp.CallToolRequest, in KeyInput) (*sdkmcp.CallToolResult, any, error) {
	c, err := ts.controller(in.Key)
	if err != nil {
		return toolError(err)
	}
	if c.SessionID() == "" {
		return toolError(&APIError{Code: "NO_SERVER_SESSION", Message: "audit has not been submitted yet", RecoveryHint: "Submit once to create the server session"})
	}
	if _, err := c.Refresh(ctx); err != nil {
		return toolError(err)
	}
	return toolResult(c.View())
}

func (ts *toolset) closeAudit(ctx context.Context, _ *sdkmcp.CallToolRequest, in KeyInput) (*sdkmcp.CallToolResult, any, error) {
	if err := ts.sessions.Close(ctx, in.Key); err != nil {
		return toolError(err)
	}
	ts.forget(in.Key)
	return toolResult(map[string]any{"key": in.Key, "closed": true})
}

func (ts *toolset) listDrafts(ctx context.Context, _ *sdkmcp.CallToolRequest, _ struct{}) (*sdkmcp.CallToolResult, any, error) {
	drafts, err := ts.sessions.Drafts(ctx)
	if err != nil {
		return toolError(err)
	}
	out := make([]DraftSummary, 0, len(drafts))
	for _, d := range drafts {
		out = append(out, DraftSummary{
			Key:       d.Key.String(),
			SessionID: d.SessionID,
			Answers:   len(d.Responses),
			SavedAt:   d.SavedAt,
		})
	}
	return toolResult(map[string]any{"drafts": out})
}

func (ts *toolset) controller(key string) (*session.Controller, error) {
	c, ok := ts.sessions.Get(strings.TrimSpace(key))
	if !ok {
		return nil, session.ErrSessionNotFound
	}
	return c, nil
}

// resolveFix picks the explicit position, then the last captured one when
// allowed, then the device locator. A nil fix is returned when optional
// and nothing is available.
func (ts *toolset) resolveFix(ctx context.Context, in LocationInput, optional bool) (*geofence.Fix, error) {
	if (in.Latitude == nil) != (in.Longitude == nil) {
		return nil, &APIError{Code: "INVALID_INPUT", Message: "latitude and longitude go together"}
	}
	if in.Latitude != nil {
		return &geofence.Fix{
			Coordinate: geofence.Coordinate{Latitude: *in.Latitude, Longitude: *in.Longitude},
			Accuracy:   in.Accuracy,
			Timestamp:  time.Now().UTC(),
		}, nil
	}
	if optional {
		ts.mu.Lock()
		fix, ok := ts.fixes[in.Key]
		ts.mu.Unlock()
		if ok {
			return &fix, nil
		}
	}
	if ts.locator != nil {
		fix, err := ts.locator.CurrentLocation(ctx)
		if err == nil {
			return &fix, nil
		}
		if !optional {
			return nil, fmt.Errorf("%w: %v", geofence.ErrNoFix, err)
		}
		ts.logger.Warn("device locator failed", "error", err)
	}
	if optional {
		return nil, nil
	}
	return nil, geofence.ErrNoFix
}

func (ts *toolset) remember(key string, fix geofence.Fix) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.fixes[key] = fix
}

func (ts *toolset) forget(key string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	delete(ts.fixes, key)
}

func toolResult(payload any) (*sdkmcp.CallToolResult, any, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("encode result: %w", err)
	}
	return &sdkmcp.CallToolResult{
		Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: string(data)}},
	}, nil, nil
}

// toolError reports a domain failure as a tool error result so the model
// can read the code and recovery hint.
func toolError(err error) (*sdkmcp.CallToolResult, any, error) {
	apiErr := MapError(err)
	data, marshalErr := json.Marshal(apiErr)
	if marshalErr != nil {
		return nil, nil, err
	}
	return &sdkmcp.CallToolResult{
		IsError: true,
		Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: string(data)}},
	}, nil, nil
}
