package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/upb/auth-gateway/app"
	"github.com/upb/auth-gateway/handlers"
	"github.com/upb/auth-gateway/middleware"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(deps.Config.Server.RequestTimeout))

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.Server.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoints
	r.Get("/healthz", deps.HealthHandler.HandleHealth)
	r.Get("/readyz", deps.HealthHandler.HandleReadiness)
	r.Get("/status", deps.StatusHandler.HandleStatus)

	r.Get("/", deps.AuthHandler.HandleRoot)

	// Public auth endpoints
	r.Post("/get_token", deps.AuthHandler.HandleGetToken)
	r.Post("/signup", deps.AuthHandler.HandleSignUp)
	r.Route("/access", func(r chi.Router) {
		r.Post("/signup", deps.AuthHandler.HandleSignUp)
		r.Post("/forgot-password", deps.AuthHandler.HandleForgotPassword)
	})

	// Protected endpoints
	r.Route("/user", func(r chi.Router) {
		r.Use(deps.AuthMiddleware.RequireAuth)
		r.Get("/settings", deps.AuthHandler.HandleUserSettings)
		r.Delete("/account", deps.AuthHandler.HandleDeleteAccount)
	})

	r.NotFound(handlers.HandleNotFound)
	r.MethodNotAllowed(handlers.HandleMethodNotAllowed)

	return r
}
