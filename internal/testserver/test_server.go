// Package testserver runs the audit backend in-process for tests, with
// injectable transport faults.
package testserver

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/rpggio/fieldaudit/internal/domain/activity"
	"github.com/rpggio/fieldaudit/internal/domain/audit"
	"github.com/rpggio/fieldaudit/internal/domain/template"
	"github.com/rpggio/fieldaudit/internal/sqlite"
	"github.com/rpggio/fieldaudit/internal/transport"
	"github.com/stretchr/testify/require"
)

type TestServer struct {
	Server    *httptest.Server
	DB        *sqlite.DB
	Templates *template.Service
	Audits    *audit.Service
	Activity  *activity.Service
	Token     string

	mu       sync.Mutex
	faults   []*Fault
	requests []string
}

// Fault makes matching requests fail. Path matches as a suffix of the
// request path; an empty Method or Path matches anything.
type Fault struct {
	Method     string
	Path       string
	Status     int
	Code       string
	RetryAfter string
	// Drop closes the connection without a response.
	Drop bool
	// Times is how many requests fail; zero means every matching request.
	Times int
}

type Option func(*options)

type options struct {
	token string
}

// WithToken requires bearer authentication with the given token.
func WithToken(token string) Option {
	return func(o *options) { o.token = token }
}

func New(t *testing.T, opts ...Option) *TestServer {
	t.Helper()

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := sqlite.New(dsn)
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations())

	templateRepo := sqlite.NewTemplateRepository(db)
	auditRepo := sqlite.NewAuditRepository(db)
	activityRepo := sqlite.NewActivityRepository(db)

	templateSvc := template.NewService(templateRepo, nil)
	activitySvc := activity.NewService(activityRepo, nil)
	auditSvc := audit.NewService(auditRepo, templateSvc, activityRepo, nil)

	var auth func(http.Handler) http.Handler
	if o.token != "" {
		auth = transport.AuthMiddleware(transport.NewKeyRing(map[string]string{o.token: "test-auditor"}))
	}

	ts := &TestServer{
		DB:        db,
		Templates: templateSvc,
		Audits:    auditSvc,
		Activity:  activitySvc,
		Token:     o.token,
	}
	router := transport.NewServer(transport.Services{
		Templates: templateSvc,
		Audits:    auditSvc,
		Activity:  activitySvc,
	}, nil, auth)
	ts.Server = httptest.NewServer(ts.intercept(router))

	t.Cleanup(func() {
		ts.Server.Close()
		_ = db.Close()
	})

	return ts
}

// URL returns the base URL of the server.
func (ts *TestServer) URL() string {
	return ts.Server.URL
}

// Seed stores a template directly through the catalog service.
func (ts *TestServer) Seed(t *testing.T, req template.CreateRequest) *template.Template {
	t.Helper()
	tpl, err := ts.Templates.Create(context.Background(), req)
	require.NoError(t, err)
	return tpl
}

// Inject adds a fault. Faults are checked in insertion order.
func (ts *TestServer) Inject(f Fault) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	fault := f
	ts.faults = append(ts.faults, &fault)
}

// ClearFaults removes every pending fault.
func (ts *TestServer) ClearFaults() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.faults = nil
}

// Requests returns "METHOD /path" for every request received, faulted or not.
func (ts *TestServer) Requests() []string {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return append([]string(nil), ts.requests...)
}

// Count returns how many received requests match method and path suffix.
func (ts *TestServer) Count(method, pathSuffix string) int {
	n := 0
	for _, req := range ts.Requests() {
		m, path, _ := strings.Cut(req, " ")
		if m == method && strings.HasSuffix(path, pathSuffix) {
			n++
		}
	}
	return n
}

func (ts *TestServer) intercept(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fault := ts.match(r)
		if fault == nil {
			next.ServeHTTP(w, r)
			return
		}

		if fault.Drop {
			if hj, ok := w.(http.Hijacker); ok {
				if conn, _, err := hj.Hijack(); err == nil {
					_ = conn.Close()
					return
				}
			}
		}
		if fault.RetryAfter != "" {
			w.Header().Set("Retry-After", fault.RetryAfter)
		}
		status := fault.Status
		if status == 0 {
			status = http.StatusServiceUnavailable
		}
		code := fault.Code
		if code == "" {
			code = "FAULT_" + strconv.Itoa(status)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = fmt.Fprintf(w, `{"code":%q,"message":"injected fault"}`, code)
	})
}

func (ts *TestServer) match(r *http.Request) *Fault {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	ts.requests = append(ts.requests, r.Method+" "+r.URL.Path)
	for i, f := range ts.faults {
		if f.Method != "" && f.Method != r.Method {
			continue
		}
		if f.Path != "" && !strings.HasSuffix(r.URL.Path, f.Path) {
			continue
		}
		if f.Times > 0 {
			f.Times--
			if f.Times == 0 {
				ts.faults = append(ts.faults[:i], ts.faults[i+1:]...)
			}
		}
		return f
	}
	return nil
}
