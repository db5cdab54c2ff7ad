package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/markdave123-py/memora/internal/api/handlers"
	appMiddleware "github.com/markdave123-py/memora/internal/api/middlewares"
	"github.com/markdave123-py/memora/internal/auth"
	"github.com/markdave123-py/memora/internal/config"
	contextpipe "github.com/markdave123-py/memora/internal/context"
	"github.com/markdave123-py/memora/internal/core"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
	log        *zap.Logger
}

// NewServer builds and wires all routes.
func NewServer(cfg *config.Config, store core.ContextStore, gate *auth.Gate, router *contextpipe.Router, log *zap.Logger) *Server {
	authHandler := handlers.NewAuthHandler(store, cfg.JWTSecret, cfg.DefaultTenant, log)
	contextHandler := handlers.NewContextHandler(store, router, log)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(appMiddleware.RequestLogger(log))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8888"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-User-ID"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/api", func(api chi.Router) {
		// public endpoints
		api.Post("/signup", authHandler.Signup)
		api.Post("/login", authHandler.Login)

		// protected endpoints
		api.Group(func(protected chi.Router) {
			protected.Use(appMiddleware.Auth(gate, cfg.JWTSecret))
			protected.Post("/context", contextHandler.Store)
			protected.Post("/context/retrieve", contextHandler.Retrieve)
			protected.Get("/context", contextHandler.List)
			protected.Get("/context/search", contextHandler.Search)
			protected.Post("/context/refresh", contextHandler.Refresh)
			protected.Delete("/context/{id}", contextHandler.DeleteEntry)
			protected.Delete("/context/type/{type}", contextHandler.DeleteByType)
			protected.Delete("/context", contextHandler.DeleteAll)
			protected.Delete("/account", contextHandler.DeleteAccount)
		})
	})

	httpSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	return &Server{httpServer: httpSrv, log: log}
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	s.log.Info("http server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down http server")
	return s.httpServer.Shutdown(ctx)
}
