package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/salon-voice-booking/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/salon-voice-booking/internal/http/middleware"
	"github.com/wolfman30/salon-voice-booking/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger         *logging.Logger
	VoiceTools     *handlers.VoiceToolsHandler
	MetricsHandler http.Handler
	RequestTimeout time.Duration

	// RateLimiter is optional; nil disables per-client limiting.
	RateLimiter        *httpmiddleware.RateLimiter
	CORSAllowedOrigins []string
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}

	r.Get("/health", cfg.VoiceTools.HealthCheck)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/voice/tools", func(tools chi.Router) {
		tools.Use(httpmiddleware.Timeout(cfg.RequestTimeout))
		if cfg.RateLimiter != nil {
			tools.Use(httpmiddleware.RateLimit(cfg.RateLimiter))
		}
		tools.Post("/check-availability", cfg.VoiceTools.CheckAvailability)
		tools.Post("/book-appointment", cfg.VoiceTools.BookAppointment)
		tools.Post("/change-appointment", cfg.VoiceTools.ChangeAppointment)
		tools.Post("/cancel-appointment", cfg.VoiceTools.CancelAppointment)
		tools.Post("/list-appointments", cfg.VoiceTools.ListAppointments)
		tools.Post("/start-appointments", cfg.VoiceTools.StartAppointments)
		tools.Post("/add-service", cfg.VoiceTools.AddService)
		tools.Post("/assign-technicians", cfg.VoiceTools.AssignTechnicians)
		tools.Post("/confirm-appointments", cfg.VoiceTools.ConfirmAppointments)
	})

	return r
}
