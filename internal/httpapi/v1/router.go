package v1

import (
	"log/slog"
	"net/http"
	"time"

	chi "github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/splitledger/splitledger/internal/service/group"
)

// Server wires handlers and middleware using Chi.
// It composes read (repo) and write (writer) dependencies through the service.
type Server struct {
	svc    group.Service
	repo   group.Repo
	writer group.Writer
	log    *slog.Logger
	rt     *chi.Mux
}

// New constructs the HTTP server with routes and middleware.
// The logger is used by basic request/response logging and panic recovery.
func New(repo group.Repo, writer group.Writer, retention time.Duration, logger *slog.Logger) *Server {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(requestLogger(logger))
	r.Use(recoverer(logger))
	r.Use(metricsMiddleware)

	s := &Server{
		svc:    group.New(repo, writer, retention),
		repo:   repo,
		writer: writer,
		rt:     r,
		log:    logger,
	}
	s.routes()
	return s
}

// Handler exposes the configured http.Handler.
func (s *Server) Handler() http.Handler { return s.rt }

// routes declares the public HTTP API endpoints and attaches any per-route middleware.
func (s *Server) routes() {
	// Groups (v1)
	s.rt.With(s.validateCreateGroup()).Post("/v1/groups", s.postGroup)
	s.rt.With(s.validateMemberQuery()).Get("/v1/groups", s.listGroups)
	s.rt.Get("/v1/groups/{id}", s.getGroup)
	s.rt.Post("/v1/groups/join", s.joinGroup)
	s.rt.Post("/v1/groups/{id}/members", s.postMember)
	s.rt.Delete("/v1/groups/{id}/members/{member}", s.deleteMember)
	s.rt.Delete("/v1/groups/{id}", s.deleteGroup)
	// Expenses (v1)
	s.rt.With(s.validatePostExpense()).Post("/v1/groups/{id}/expenses", s.postExpense)
	s.rt.Patch("/v1/groups/{id}/expenses/{expenseID}", s.patchExpense)
	s.rt.Delete("/v1/groups/{id}/expenses/{expenseID}", s.deleteExpense)
	s.rt.Post("/v1/groups/{id}/split-preview", s.previewSplit)
	// Settlement (v1)
	s.rt.Post("/v1/groups/{id}/resolve", s.resolveEdge)
	s.rt.With(s.validateMemberQuery()).Get("/v1/pending", s.listPending)
	s.rt.With(s.validateMemberQuery()).Get("/v1/history", s.listHistory)
	s.rt.Get("/v1/groups/{id}/audit", s.getAudit)
	// Catalog (v1)
	s.rt.Get("/v1/policies", s.listPolicies)
	// Health and metrics (unversioned)
	s.rt.Get("/healthz", s.healthz)
	s.rt.Get("/readyz", s.readyz)
	s.rt.Handle("/metrics", metricsHandler())
}
