package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-box-booking/internal/identity"
	"github.com/hackgods/clinic-box-booking/internal/metrics"
)

type RouterConfig struct {
	Booking   BookingService
	Schedules ScheduleService
	Identity  identity.Provider
	Postgres  PingFunc
	Redis     PingFunc
	Metrics   *metrics.Recorder
	Logger    *zap.Logger
	Env       string
	Version   string
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger, cfg.Metrics))

	health := NewHealthHandler(cfg.Postgres, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Identity))

		r.Get("/doctors/{id}/schedule", resolveScheduleHandler(cfg.Booking))
		r.Get("/doctors/{id}/slots", bookableSlotsHandler(cfg.Booking))
		r.Get("/doctors/{id}/availability", availabilityHandler(cfg.Booking))
		r.Get("/doctors/{id}/schedules", listSchedulesHandler(cfg.Schedules))

		r.Post("/schedules", createScheduleHandler(cfg.Schedules))
		r.Post("/schedules/check", checkScheduleHandler(cfg.Schedules))
		r.Post("/schedules/{id}/deactivate", deactivateScheduleHandler(cfg.Schedules))

		r.Post("/reservations", createReservationHandler(cfg.Booking))
		r.Get("/reservations", listReservationsHandler(cfg.Booking))
		r.Get("/reservations/{id}", getReservationHandler(cfg.Booking))
		r.Post("/reservations/{id}/transition", transitionReservationHandler(cfg.Booking))
	})

	return r
}
