// Package apiclient talks to the audit backend over HTTP and classifies
// failures for the sync engine.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rpggio/fieldaudit/internal/domain/audit"
	"github.com/rpggio/fieldaudit/internal/domain/syncer"
	"github.com/rpggio/fieldaudit/internal/domain/template"
	"github.com/rpggio/fieldaudit/internal/transport"
)

const maxErrorBody = 64 << 10

// Client implements syncer.Remote against the backend HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
	token   string
	logger  *slog.Logger
	now     func() time.Time
}

type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithToken sends the token as a bearer credential.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New creates a client. Every request is bounded by timeout.
func New(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ syncer.Remote = (*Client)(nil)

func (c *Client) FetchTemplate(ctx context.Context, templateID string) (*template.Template, error) {
	var tpl template.Template
	if err := c.do(ctx, "fetch template", http.MethodGet, "/templates/"+url.PathEscape(templateID), nil, &tpl); err != nil {
		return nil, err
	}
	return &tpl, nil
}

func (c *Client) CreateSession(ctx context.Context, req audit.CreateRequest) (*audit.Audit, error) {
	var a audit.Audit
	if err := c.do(ctx, "create session", http.MethodPost, "/audits", req, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (c *Client) FetchSession(ctx context.Context, sessionID string) (*audit.Snapshot, error) {
	var snap audit.Snapshot
	if err := c.do(ctx, "fetch session", http.MethodGet, auditPath(sessionID), nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (c *Client) UpdateSession(ctx context.Context, sessionID string, req audit.UpdateRequest) (*audit.Audit, error) {
	var a audit.Audit
	if err := c.do(ctx, "update session", http.MethodPatch, auditPath(sessionID), req, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (c *Client) BatchUpdateItems(ctx context.Context, sessionID string, items []audit.ItemUpdate) error {
	body := transport.BatchItemsRequest{Items: items}
	return c.do(ctx, "batch update items", http.MethodPut, auditPath(sessionID)+"/items", body, nil)
}

func (c *Client) UpdateItem(ctx context.Context, sessionID string, item audit.ItemUpdate) error {
	path := auditPath(sessionID) + "/items/" + url.PathEscape(item.ItemID)
	return c.do(ctx, "update item "+item.ItemID, http.MethodPut, path, item, nil)
}

func (c *Client) CompleteSession(ctx context.Context, sessionID string) error {
	return c.do(ctx, "complete session", http.MethodPost, auditPath(sessionID)+"/complete", nil, nil)
}

func auditPath(id string) string {
	return "/audits/" + url.PathEscape(id)
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s: %w", op, ctxErr)
		}
		// Timeouts and connection failures are retryable.
		return &syncer.TransientError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	c.logger.Debug("api call", "op", op, "method", method, "path", path, "status", resp.StatusCode)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%s: decode response: %w", op, err)
		}
		return nil
	}

	return c.classify(op, resp)
}

func (c *Client) classify(op string, resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var body transport.ErrorBody
	if err := json.Unmarshal(data, &body); err != nil || body.Message == "" {
		body.Message = strings.TrimSpace(string(data))
		if body.Message == "" {
			body.Message = http.StatusText(resp.StatusCode)
		}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return &syncer.TransientError{
			Op:         op,
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), c.now()),
			Err:        errors.New(body.Message),
		}
	case resp.StatusCode == http.StatusConflict && body.Code == transport.CodeSessionLocked:
		return fmt.Errorf("%s: %w", op, audit.ErrSessionLocked)
	default:
		return &syncer.ClientError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Code:       body.Code,
			Message:    body.Message,
		}
	}
}

// parseRetryAfter accepts delay-seconds or an HTTP date. Unparseable or past
// values yield zero.
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
