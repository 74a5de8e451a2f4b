package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(apiHandler *APIHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)       // Basic request logging
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling

	// All API routes will be under /api
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		})
		r.Get("/status", apiHandler.StatusHandler)
		r.Get("/models", apiHandler.ModelsHandler)

		// Live session
		r.Route("/session", func(r chi.Router) {
			r.Get("/messages", apiHandler.GetMessagesHandler)
			r.Post("/messages", apiHandler.PostMessageHandler)
			r.Post("/new", apiHandler.NewSessionHandler)
			r.Post("/load/{conversationID}", apiHandler.LoadSessionHandler)
			r.Delete("/current", apiHandler.DeleteCurrentHandler)
		})

		r.Get("/conversations", apiHandler.ListConversationsHandler)

		r.Get("/preferences", apiHandler.GetPreferencesHandler)
		r.Put("/preferences/{key}", apiHandler.PutPreferenceHandler)
	})

	return r
}
