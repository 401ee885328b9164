package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/carebridge/ndis-roster/internal/hub"
	"github.com/carebridge/ndis-roster/internal/roster"
)

type RouterConfig struct {
	Service *roster.Service
	Hub     *hub.Hub
	PgPool  *pgxpool.Pool // nil when the rest backend is configured
	Redis   *redis.Client
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Hub, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Directory endpoints (read-only reference data)
	r.Get("/participants", listParticipantsHandler(cfg.Service))
	r.Get("/support-workers", listWorkersHandler(cfg.Service))
	r.Get("/support-workers/{id}/availability", availabilityHandler(cfg.Service))

	// Appointment endpoints
	r.Post("/appointments", createAppointmentHandler(cfg.Service))
	r.Get("/appointments", listAppointmentsHandler(cfg.Service))
	r.Get("/appointments/export", exportAppointmentsHandler(cfg.Service))
	r.Get("/appointments/{id}", getAppointmentHandler(cfg.Service))
	r.Put("/appointments/{id}", updateAppointmentHandler(cfg.Service))
	r.Patch("/appointments/{id}/status", patchAppointmentStatusHandler(cfg.Service))
	r.Delete("/appointments/{id}", deleteAppointmentHandler(cfg.Service))

	// Roster entry endpoints
	r.Post("/rostering", createEntryHandler(cfg.Service))
	r.Get("/rostering", listEntriesHandler(cfg.Service))
	r.Get("/rostering/{id}", getEntryHandler(cfg.Service))
	r.Put("/rostering/{id}", updateEntryHandler(cfg.Service))
	r.Delete("/rostering/{id}", deleteEntryHandler(cfg.Service))

	// Draft schedule endpoints
	r.Post("/schedule/generate", generateScheduleHandler(cfg.Service))
	r.Post("/schedule/confirm", confirmScheduleHandler(cfg.Service))

	// Reports
	r.Get("/reports/weekly", weeklyReportHandler(cfg.Service))

	// Real-time notifications
	r.Get("/ws", cfg.Hub.ServeWS)

	return r
}
