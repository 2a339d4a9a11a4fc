package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/housing-backoffice/internal/auth"
	"github.com/nerrad567/housing-backoffice/internal/records"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.metricsMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	// Legacy unversioned entry points.
	r.With(s.rateLimitLogin).Post("/login", s.handleLogin)
	r.Post("/register", s.handleRegister)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.With(s.rateLimitLogin).Post("/login", s.handleLogin)
		r.Post("/register", s.handleRegister)

		r.Route("/activity", func(r chi.Router) {
			// Ticket-authenticated; the handler validates the ticket.
			r.Get("/ws", s.handleActivityWebSocket)

			r.Group(func(r chi.Router) {
				r.Use(s.authenticate)
				r.Use(s.requirePage(auth.PageActivity))
				r.Get("/", s.handleListActivity)
				r.Post("/ticket", s.handleActivityTicket)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)

			r.Get("/auth/me", s.handleMe)
			r.Get("/pages", s.handlePages)

			r.With(s.requirePage(auth.PageUsers)).Get("/users", s.handleListUsers)

			r.Route("/staff", func(r chi.Router) {
				r.Use(s.requirePage(auth.PageStaff))
				r.Get("/", s.handleListStaff)
				r.Post("/", s.handleCreateStaff)
				r.Put("/{id}/permissions", s.handleUpdateStaffPermissions)
				r.Delete("/{id}", s.handleDeleteStaff)
			})

			s.mountCollection(r, records.Tenants, collectionCapabilities{
				add:    auth.CapAddTenant,
				edit:   auth.CapEditTenant,
				delete: auth.CapDeleteTenant,
			}, func(r chi.Router) {
				r.With(s.requireCapability(auth.CapSignOutTenant)).Put("/{id}/sign-out", s.handleSignOutRecord(records.Tenants))
			})
			s.mountCollection(r, records.Properties, collectionCapabilities{
				add:    auth.CapAddProperty,
				edit:   auth.CapEditProperty,
				delete: auth.CapDeleteProperty,
			}, nil)
			s.mountCollection(r, records.RSLs, collectionCapabilities{
				add:    auth.CapManageRSL,
				edit:   auth.CapManageRSL,
				delete: auth.CapManageRSL,
			}, nil)
		})
	})

	return r
}

// collectionCapabilities names the staff capability for each mutation.
type collectionCapabilities struct {
	add, edit, delete auth.Capability
}

// mountCollection registers CRUD routes for c behind its page. extra adds
// collection-specific routes inside the same group.
func (s *Server) mountCollection(r chi.Router, c records.Collection, caps collectionCapabilities, extra func(chi.Router)) {
	r.Route("/"+string(c), func(r chi.Router) {
		r.Use(s.requirePage(c.Page()))

		r.Get("/", s.handleListRecords(c))
		r.Get("/{id}", s.handleGetRecord(c))
		r.With(s.requireCapability(caps.add)).Post("/", s.handleCreateRecord(c))
		r.With(s.requireCapability(caps.edit)).Put("/{id}", s.handleUpdateRecord(c))
		r.With(s.requireCapability(caps.delete)).Delete("/{id}", s.handleDeleteRecord(c))

		if extra != nil {
			extra(r)
		}
	})
}
