package api

import (
	"buildtrack-backend/internal/config"
	"buildtrack-backend/internal/handlers"
	"buildtrack-backend/pkg/httputil"
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// RouterDependencies holds all the dependencies required by the router setup,
// primarily handlers and configuration.
type RouterDependencies struct {
	ChatHandler *handlers.ChatHandlers
	Gateway     http.Handler // Realtime endpoint, mounted at /ws
	Sessions    SessionAuthenticator
	RateLimiter *RateLimiter // Optional
	HealthCheck func(ctx context.Context) error
	Config      *config.Config
	Logger      zerolog.Logger
}

// NewRouter creates and configures the main Chi router for the application.
func NewRouter(deps RouterDependencies) *chi.Mux {
	if deps.ChatHandler == nil || deps.Sessions == nil {
		panic("ChatHandler and Sessions dependencies are required in router setup")
	}
	logger := deps.Logger.With().Str("component", "router").Logger()

	r := chi.NewRouter()

	// --- Base Middleware Stack ---
	r.Use(middleware.RequestID) // Inject request ID into context
	r.Use(middleware.RealIP)    // Use X-Forwarded-For or X-Real-IP
	r.Use(Logger(logger))
	r.Use(middleware.Recoverer) // Recover from panics, return 500
	r.Use(Metrics)

	// --- CORS Configuration ---
	origins := []string{"http://localhost:3000"}
	if deps.Config != nil && len(deps.Config.CORSAllowedOrigins) > 0 {
		origins = deps.Config.CORSAllowedOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}))

	// --- Public Routes (No JWT Required) ---
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if deps.HealthCheck != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := deps.HealthCheck(ctx); err != nil {
				logger.Warn().Err(err).Msg("health check failed")
				httputil.RespondError(w, http.StatusServiceUnavailable, "database unavailable")
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	// The realtime endpoint authenticates during the handshake and must not
	// sit behind the request timeout.
	if deps.Gateway != nil {
		r.Handle("/ws", deps.Gateway)
	} else {
		logger.Warn().Msg("Gateway dependency is nil, skipping /ws route")
	}

	// --- Authenticated Routes (JWT Required) ---
	r.Route("/chats", func(r chi.Router) {
		r.Use(JwtAuthMiddleware(deps.Sessions, logger))
		r.Use(middleware.Timeout(60 * time.Second))
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.Middleware)
		}

		h := deps.ChatHandler
		r.Get("/", h.HandleListChats)
		r.Get("/object/{objectID}", h.HandleGetChatByObject)

		r.Route("/{chatID}", func(r chi.Router) {
			r.Get("/messages", h.HandleGetChatMessages)
			r.Post("/messages", h.HandleSendMessage)
			r.Post("/suggest-edit", h.HandleSuggestEdit)
			r.Post("/confirm-completion", h.HandleConfirmCompletion)
		})

		r.Route("/messages/{messageID}", func(r chi.Router) {
			r.Put("/", h.HandleUpdateMessage)
			r.Delete("/", h.HandleDeleteMessage)
			r.Post("/confirmation", h.HandleSetConfirmation)
		})
	})

	return r
}
