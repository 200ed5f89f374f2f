package transport

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rpggio/fieldaudit/internal/domain/activity"
	"github.com/rpggio/fieldaudit/internal/domain/audit"
	"github.com/rpggio/fieldaudit/internal/domain/template"
)

// TemplateService is the template catalog used by the API.
type TemplateService interface {
	Create(ctx context.Context, req template.CreateRequest) (*template.Template, error)
	Get(ctx context.Context, id string) (*template.Template, error)
	List(ctx context.Context) ([]template.TemplateSummary, error)
}

// AuditService is the authoritative audit store used by the API.
type AuditService interface {
	Create(ctx context.Context, req audit.CreateRequest) (*audit.Audit, bool, error)
	Get(ctx context.Context, id string) (*audit.Snapshot, error)
	Update(ctx context.Context, id string, req audit.UpdateRequest) (*audit.Audit, error)
	BatchUpdateItems(ctx context.Context, id string, updates []audit.ItemUpdate) (int, error)
	UpdateItem(ctx context.Context, id string, update audit.ItemUpdate) error
	Complete(ctx context.Context, id string) (*audit.Snapshot, error)
}

// ActivityService reads the audit activity log.
type ActivityService interface {
	GetRecentActivity(ctx context.Context, opts activity.ListActivityOptions) ([]activity.ActivityEntry, error)
}

// Services groups the backend services behind the API.
type Services struct {
	Templates TemplateService
	Audits    AuditService
	Activity  ActivityService
}

// CreateTemplateRequest is the body of POST /templates.
type CreateTemplateRequest struct {
	ID    string                   `json:"id,omitempty"`
	Name  string                   `json:"name"`
	Items []template.ChecklistItem `json:"items"`
}

// BatchItemsRequest is the body of PUT /audits/{id}/items.
type BatchItemsRequest struct {
	Items []audit.ItemUpdate `json:"items"`
}

// SavedResponse reports how many items a save wrote.
type SavedResponse struct {
	Saved int `json:"saved"`
}

// Server wires HTTP handlers.
type Server struct {
	services Services
	logger   *slog.Logger
}

// NewServer creates an HTTP server router with middleware.
func NewServer(services Services, logger *slog.Logger, authMiddleware func(http.Handler) http.Handler) *chi.Mux {
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	srv := &Server{services: services, logger: logger}
	r.Get("/health", srv.handleHealth)

	r.Group(func(r chi.Router) {
		if authMiddleware != nil {
			r.Use(authMiddleware)
		}
		r.Use(RequestLogger(logger))

		r.Route("/templates", func(r chi.Router) {
			r.Get("/", srv.listTemplates)
			r.Post("/", srv.createTemplate)
			r.Get("/{id}", srv.getTemplate)
		})

		r.Route("/audits", func(r chi.Router) {
			r.Post("/", srv.createAudit)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", srv.getAudit)
				r.Patch("/", srv.updateAudit)
				r.Put("/items", srv.batchUpdateItems)
				r.Put("/items/{itemID}", srv.updateItem)
				r.Post("/complete", srv.completeAudit)
				r.Get("/activity", srv.listActivity)
			})
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		message = "internal error"
	}
	writeError(w, status, code, message)
}

func (s *Server) badRequest(w http.ResponseWriter, err error) {
	writeError(w, http.StatusBadRequest, CodeInvalidInput, err.Error())
}

func (s *Server) listTemplates(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.services.Templates.List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if summaries == nil {
		summaries = []template.TemplateSummary{}
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) createTemplate(w http.ResponseWriter, r *http.Request) {
	var req CreateTemplateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	tpl, err := s.services.Templates.Create(r.Context(), template.CreateRequest{
		ID:    req.ID,
		Name:  req.Name,
		Items: req.Items,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tpl)
}

func (s *Server) getTemplate(w http.ResponseWriter, r *http.Request) {
	tpl, err := s.services.Templates.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tpl)
}

func (s *Server) createAudit(w http.ResponseWriter, r *http.Request) {
	var req audit.CreateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	a, created, err := s.services.Audits.Create(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, a)
}

func (s *Server) getAudit(w http.ResponseWriter, r *http.Request) {
	snap, err := s.services.Audits.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) updateAudit(w http.ResponseWriter, r *http.Request) {
	var req audit.UpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	a, err := s.services.Audits.Update(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) batchUpdateItems(w http.ResponseWriter, r *http.Request) {
	var req BatchItemsRequest
	if err := decodeJSON(r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	saved, err := s.services.Audits.BatchUpdateItems(r.Context(), chi.URLParam(r, "id"), req.Items)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SavedResponse{Saved: saved})
}

func (s *Server) updateItem(w http.ResponseWriter, r *http.Request) {
	var update audit.ItemUpdate
	if err := decodeJSON(r, &update); err != nil {
		s.badRequest(w, err)
		return
	}
	update.ItemID = chi.URLParam(r, "itemID")
	if err := s.services.Audits.UpdateItem(r.Context(), chi.URLParam(r, "id"), update); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SavedResponse{Saved: 1})
}

func (s *Server) completeAudit(w http.ResponseWriter, r *http.Request) {
	snap, err := s.services.Audits.Complete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) listActivity(w http.ResponseWriter, r *http.Request) {
	opts := activity.ListActivityOptions{AuditID: chi.URLParam(r, "id")}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, CodeInvalidInput, "limit must be a non-negative integer")
			return
		}
		opts.Limit = limit
	}
	if raw := r.URL.Query().Get("type"); raw != "" {
		kind := activity.ActivityType(raw)
		opts.ActivityType = &kind
	}

	entries, err := s.services.Activity.GetRecentActivity(r.Context(), opts)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
