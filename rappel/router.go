package rappel

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Routes returns the HTTP surface of the service. Trailing slashes are
// stripped so /todos and /todos/ resolve to the same handler.
func (s *Service) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.StripSlashes)

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		writeMessage(w, http.StatusOK, "Healthy")
	})
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/todos", func(r chi.Router) {
		r.Get("/", s.handleList)
		r.Post("/", s.handleCreate)
		r.Route("/{todoID}", func(r chi.Router) {
			r.Get("/", s.handleGet)
			r.Put("/", s.handleUpdate)
			r.Patch("/", s.handleUpdate)
			r.Delete("/", s.handleDelete)
			r.Patch("/toggle", s.handleToggle)
		})
	})

	return r
}
