package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/smsdesk/bridge/internal/http/handlers"
	httpmiddleware "github.com/smsdesk/bridge/internal/http/middleware"
	"github.com/smsdesk/bridge/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger         *logging.Logger
	Webhooks       *handlers.WebhookHandler
	MetricsHandler http.Handler
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", cfg.Webhooks.HealthCheck)

	r.Post("/webhooks/sms", cfg.Webhooks.HandleInboundSMS)
	r.Post("/webhooks/desk/comment", cfg.Webhooks.HandleCommentEvent)

	r.Post("/test", cfg.Webhooks.HandleTest)

	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}

	return r
}
