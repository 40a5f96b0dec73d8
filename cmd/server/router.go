package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/phrazzld/imgbatch-api/internal/api"
	apiMiddleware "github.com/phrazzld/imgbatch-api/internal/api/middleware"
)

// setupRouter creates and configures the application router with all routes and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(apiMiddleware.Trace(app.logger))
	r.Use(middleware.Recoverer)

	requestHandler := api.NewRequestHandler(app.requestService, app.config.Server.MaxPayloadBytes, app.logger)
	webhookHandler := api.NewWebhookHandler(app.logger)

	r.Route("/api", func(r chi.Router) {
		r.Post("/requests", requestHandler.Submit)
		r.Get("/requests/{id}", requestHandler.GetStatus)
		r.Post("/webhook", webhookHandler.Receive)
	})

	// short paths kept for existing upload clients
	r.Post("/upload", requestHandler.Submit)
	r.Get("/status/{id}", requestHandler.GetStatus)
	r.Post("/webhook", webhookHandler.Receive)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("Failed to write health check response", "error", err)
		}
	})

	return r
}
