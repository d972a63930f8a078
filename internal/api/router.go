package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-availability/internal/appointment"
	"github.com/hackgods/clinic-availability/internal/directory"
	"github.com/hackgods/clinic-availability/internal/metrics"
	"github.com/hackgods/clinic-availability/internal/schedule"
)

type DoctorService interface {
	FindDoctors(ctx context.Context, f directory.Filter) ([]directory.Doctor, error)
	GetDoctor(ctx context.Context, id uuid.UUID) (*directory.Doctor, error)
}

type AvailabilityService interface {
	GetDaySlots(ctx context.Context, doctorID uuid.UUID, date schedule.Date) ([]schedule.Slot, error)
	SetDaySlots(ctx context.Context, doctorID uuid.UUID, date schedule.Date, updates []schedule.SlotUpdate) error
	ApplyRecurring(ctx context.Context, req schedule.RecurringRequest) (schedule.RecurringResult, error)
	GetBookableSlots(ctx context.Context, doctorID uuid.UUID, date schedule.Date) ([]schedule.SlotView, error)
}

type AppointmentService interface {
	Book(ctx context.Context, req appointment.BookRequest) (*appointment.Appointment, error)
	Transition(ctx context.Context, id uuid.UUID, to appointment.Status) (*appointment.Appointment, error)
	GetAppointment(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]appointment.Appointment, error)
	ListByDoctorDay(ctx context.Context, doctorID uuid.UUID, date schedule.Date) ([]appointment.Appointment, error)
}

type RouterConfig struct {
	Doctors      DoctorService
	Availability AvailabilityService
	Appointments AppointmentService
	Health       *HealthHandler
	Metrics      *metrics.Recorder
	Logger       *zap.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	v := newValidator()

	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(log, cfg.Metrics))
	r.Use(middleware.Recoverer)

	// Health endpoints
	if cfg.Health != nil {
		r.Get("/health/live", cfg.Health.Liveness)
		r.Get("/health/ready", cfg.Health.Readiness)
	}
	r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())

	// Doctor and availability endpoints
	r.Route("/doctors", func(r chi.Router) {
		r.Get("/", findDoctorsHandler(cfg.Doctors))
		r.Route("/{doctorID}", func(r chi.Router) {
			r.Get("/", getDoctorHandler(cfg.Doctors))
			r.Get("/availability", getDaySlotsHandler(cfg.Availability))
			r.Put("/availability", setDaySlotsHandler(cfg.Availability, v))
			r.Post("/availability/recurring", applyRecurringHandler(cfg.Availability, v))
			r.Get("/slots", getBookableSlotsHandler(cfg.Availability))
			r.Get("/appointments", listDoctorAppointmentsHandler(cfg.Appointments))
		})
	})

	// Appointment endpoints
	r.Post("/appointments", createAppointmentHandler(cfg.Appointments, v))
	r.Get("/appointments", listAppointmentsHandler(cfg.Appointments))
	r.Get("/appointments/{id}", getAppointmentHandler(cfg.Appointments))
	r.Patch("/appointments/{id}", updateAppointmentStatusHandler(cfg.Appointments, v))

	return r
}
