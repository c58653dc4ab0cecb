package routes

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/upb/finance-advisor/app"
	"github.com/upb/finance-advisor/handlers"
	"github.com/upb/finance-advisor/middleware"
	"github.com/upb/finance-advisor/utils"
)

const defaultRequestTimeout = 60 * time.Second

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(requestTimeout(deps)))

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	var db *sql.DB
	if deps.DB != nil {
		db = deps.DB.DB
	}
	health := handlers.NewHealthHandler(db, deps.Registry, deps.Logger)
	advice := handlers.NewAdviceHandler(deps.Advisor, deps.Logger)
	settingsHandler := handlers.NewSettingsHandler(deps.Settings, deps.Logger)
	cacheHandler := handlers.NewCacheHandler(deps.Cache, deps.Logger)

	// Health check endpoints
	r.Get("/healthz", health.HandleHealth)
	r.Get("/readyz", health.HandleReadiness)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Post("/advice", advice.HandleAdvise)
		r.Get("/settings", settingsHandler.HandleGet)

		// Administration (require admin role)
		r.Group(func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireAuth)
			r.Use(deps.AuthMiddleware.RequireRole(middleware.RoleAdmin))
			r.Patch("/settings", settingsHandler.HandleUpdate)
			r.Get("/cache/stats", cacheHandler.HandleStats)
			r.Delete("/cache", cacheHandler.HandleClear)
		})
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})

	return r
}

func requestTimeout(deps *app.Dependencies) time.Duration {
	if t := deps.Config.Server.WriteTimeout; t > 0 {
		return t
	}
	return defaultRequestTimeout
}
