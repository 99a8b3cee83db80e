// Package server provides the HTTP server setup for Pictura.
package server

import (
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/pictura-dev/pictura/internal/api"
	"github.com/pictura-dev/pictura/internal/blob"
	"github.com/pictura-dev/pictura/internal/config"
	"github.com/pictura-dev/pictura/internal/gallery"
	"github.com/pictura-dev/pictura/internal/middleware"
	"github.com/pictura-dev/pictura/internal/natsclient"
	"github.com/pictura-dev/pictura/internal/search"
	"github.com/pictura-dev/pictura/internal/store"
)

// Server holds the configured router and its dependencies.
type Server struct {
	Router *chi.Mux
	Config *config.Config
	Logger *slog.Logger
}

// Deps are the constructed components the server wires together.
type Deps struct {
	DB        *store.DB
	Images    *store.ImageStore
	Blobs     *blob.Store
	Tokenizer *blob.Tokenizer
	Gallery   *gallery.Service
	Engine    *search.Engine
	Nats      *natsclient.Client
}

// New creates a Server with all routes configured.
func New(cfg *config.Config, d Deps, logger *slog.Logger) *Server {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(logger))

	healthHandler := api.NewHealthHandler(d.DB, d.Images, d.Nats)
	imageHandler := api.NewImageHandler(d.Gallery, d.Blobs, d.Tokenizer, logger)
	searchHandler := api.NewSearchHandler(d.Engine, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.Health)
		r.Get("/stats", healthHandler.Stats)

		r.Route("/images", func(r chi.Router) {
			r.Post("/", imageHandler.Create)
			r.Get("/", imageHandler.List)
			r.Get("/{id}", imageHandler.Get)
			r.Put("/{id}", imageHandler.Update)
			r.Delete("/{id}", imageHandler.Delete)
			r.Get("/{id}/similar", searchHandler.Similar)
		})

		r.Route("/search", func(r chi.Router) {
			r.Post("/text", searchHandler.Text)
			r.Post("/image", searchHandler.Image)
		})

		r.Get("/files/{token}", imageHandler.File)
	})

	return &Server{
		Router: r,
		Config: cfg,
		Logger: logger,
	}
}
