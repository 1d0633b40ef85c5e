package rest

import (
	"github.com/dfryer1193/schemad/internal/rest/handlers"
	"github.com/dfryer1193/schemad/internal/utils"
	"github.com/go-chi/chi/v5"
)

// SetupRoutes mounts the read endpoints openly and the endpoints that change
// the database behind the token validator.
func SetupRoutes(router chi.Router, h *handlers.MigrationHandler, tv *utils.TokenValidator) {
	router.Get("/namespaces/v1", h.GetNamespaces)

	router.Route("/migrations/v1", func(r chi.Router) {
		r.Get("/", h.GetMigrations)
		r.Get("/{name}", h.GetMigration)
		r.Get("/{name}/logs", h.GetMigrationLogs)

		r.Group(func(r chi.Router) {
			r.Use(tv.Middleware)
			r.Post("/plan", h.Plan)
			r.Post("/apply", h.Apply)
			r.Post("/reset", h.Reset)
			r.Post("/{name}/rolled-back", h.MarkRolledBack)
		})
	})
}
