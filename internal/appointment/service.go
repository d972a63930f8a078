package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-availability/internal/audit"
	"github.com/hackgods/clinic-availability/internal/config"
	"github.com/hackgods/clinic-availability/internal/metrics"
	"github.com/hackgods/clinic-availability/internal/notify"
	redisclient "github.com/hackgods/clinic-availability/internal/redis"
	"github.com/hackgods/clinic-availability/internal/schedule"
)

var (
	ErrSlotNotAvailable        = errors.New("slot is not available for booking")
	ErrSlotAlreadyBooked       = errors.New("slot already has an active appointment")
	ErrSlotInPast              = errors.New("slot start time is in the past")
	ErrSlotBeingBooked         = errors.New("slot is currently being booked, please retry")
	ErrInvalidStatus           = errors.New("invalid appointment status")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
)

const (
	defaultPageSize = 20
	maxPageSize     = 100

	confirmationAttempts = 3
)

// SlotResolver finds the stored slot for a key, materializing its day if needed.
type SlotResolver interface {
	ResolveSlot(ctx context.Context, key schedule.SlotKey) (schedule.Slot, error)
}

// Publisher receives appointment events. It must not block.
type Publisher interface {
	Publish(ctx context.Context, ev notify.Event)
}

type Service struct {
	repo    Repository
	slots   SlotResolver
	locker  redisclient.Locker
	events  Publisher
	audit   *audit.Trail
	metrics *metrics.Recorder
	log     *zap.Logger

	loc     *time.Location
	timeout time.Duration
	now     func() time.Time
}

func NewService(repo Repository, slots SlotResolver, locker redisclient.Locker, cfg config.Config) *Service {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	timeout := cfg.BookingTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Service{
		repo:    repo,
		slots:   slots,
		locker:  locker,
		log:     zap.NewNop(),
		loc:     loc,
		timeout: timeout,
		now:     time.Now,
	}
}

func (s *Service) WithLogger(l *zap.Logger) *Service {
	s.log = l
	return s
}

func (s *Service) WithMetrics(m *metrics.Recorder) *Service {
	s.metrics = m
	return s
}

func (s *Service) WithAudit(t *audit.Trail) *Service {
	s.audit = t
	return s
}

func (s *Service) WithPublisher(p Publisher) *Service {
	s.events = p
	return s
}

// Book converts one slot into a confirmed appointment. The check and the insert
// run under the slot's lock so concurrent callers for the same key cannot both
// pass the occupancy check; the active-slot unique index backs this up.
func (s *Service) Book(ctx context.Context, req BookRequest) (*Appointment, error) {
	start := time.Now()
	appt, err := s.book(ctx, req)
	s.metrics.ObserveBooking(bookingOutcome(err), time.Since(start))

	if err != nil {
		s.log.Debug("booking rejected",
			zap.Stringer("slot", req.Key()),
			zap.Stringer("patient_id", req.PatientID),
			zap.Error(err),
		)
		return nil, err
	}

	s.log.Info("appointment booked",
		zap.Stringer("appointment_id", appt.ID),
		zap.String("confirmation_number", appt.ConfirmationNumber),
		zap.Stringer("slot", req.Key()),
	)
	s.publish(ctx, notify.EventAppointmentBooked, appt)
	s.audit.Record(ctx, audit.EventAppointmentBooked, appt.DoctorID, &appt.ID, map[string]any{
		"patient_id":          appt.PatientID.String(),
		"date":                appt.Date.String(),
		"start_time":          appt.StartTime.String(),
		"confirmation_number": appt.ConfirmationNumber,
	})

	return appt, nil
}

func (s *Service) book(ctx context.Context, req BookRequest) (*Appointment, error) {
	key := req.Key()

	// past slots fail the same way whatever their type or occupancy
	if schedule.At(req.Date, req.StartTime, s.loc).Before(s.now()) {
		return nil, fmt.Errorf("%w: %s", ErrSlotInPast, key)
	}

	if _, err := s.repo.GetPatientByID(ctx, req.PatientID); err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	bookCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var created *Appointment

	err := s.locker.WithSlotLock(bookCtx, key.LockKey(), func(lockCtx context.Context) error {
		slot, err := s.slots.ResolveSlot(lockCtx, key)
		if err != nil {
			if errors.Is(err, schedule.ErrSlotNotFound) || errors.Is(err, schedule.ErrDoctorNotFound) {
				return err
			}
			return fmt.Errorf("resolve slot: %w", err)
		}
		if slot.Type != schedule.SlotAvailable {
			return fmt.Errorf("%w: slot is %s", ErrSlotNotAvailable, slot.Type)
		}

		// Inside the critical section re-check for an active appointment on this slot
		existing, err := s.repo.GetActiveAppointmentForSlot(lockCtx, key)
		if err != nil && !errors.Is(err, ErrAppointmentNotFound) {
			return fmt.Errorf("check active appointment: %w", err)
		}
		if existing != nil {
			return ErrSlotAlreadyBooked
		}

		appt, err := s.create(lockCtx, Appointment{
			ID:        uuid.New(),
			DoctorID:  req.DoctorID,
			PatientID: req.PatientID,
			Date:      req.Date,
			StartTime: slot.StartTime,
			EndTime:   slot.EndTime,
			Reason:    req.Reason,
			Status:    StatusConfirmed,
		})
		if err != nil {
			return err
		}

		created = appt
		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, s.lockContention(ctx, key)
		}
		return nil, err
	}

	return created, nil
}

// create inserts a, drawing a new confirmation number when the drawn one is taken.
func (s *Service) create(ctx context.Context, a Appointment) (*Appointment, error) {
	for attempt := 1; ; attempt++ {
		a.ConfirmationNumber = NewConfirmationNumber()
		appt, err := s.repo.CreateAppointment(ctx, a)
		switch {
		case err == nil:
			return appt, nil
		case errors.Is(err, ErrSlotAlreadyBooked):
			return nil, err
		case errors.Is(err, ErrConfirmationNumberTaken) && attempt < confirmationAttempts:
			s.log.Warn("confirmation number collision", zap.String("confirmation_number", a.ConfirmationNumber))
			continue
		default:
			return nil, fmt.Errorf("create appointment: %w", err)
		}
	}
}

// lockContention classifies a lock that could not be taken. Waiters that lost
// to a booking that has since committed see ErrSlotAlreadyBooked; otherwise the
// holder is still working and the caller gets ErrSlotBeingBooked.
func (s *Service) lockContention(ctx context.Context, key schedule.SlotKey) error {
	checkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()

	existing, err := s.repo.GetActiveAppointmentForSlot(checkCtx, key)
	if err == nil && existing != nil {
		return fmt.Errorf("%w: %s", ErrSlotAlreadyBooked, key)
	}
	if err != nil && !errors.Is(err, ErrAppointmentNotFound) {
		s.log.Warn("occupancy re-check after lock timeout failed", zap.Stringer("slot", key), zap.Error(err))
	}
	return ErrSlotBeingBooked
}

// Transition moves an appointment to status to. Only forward transitions are
// allowed and the update is conditional on the status read here.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, to Status) (*Appointment, error) {
	if !to.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, to)
	}

	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	if !appt.Status.CanTransitionTo(to) {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidStatusTransition, appt.Status, to)
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, appt.ID, appt.Status, to)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// status changed between read and update
			return nil, fmt.Errorf("%w: %s changed concurrently", ErrInvalidStatusTransition, appt.Status)
		}
		return nil, fmt.Errorf("update appointment status: %w", err)
	}

	s.log.Info("appointment status updated",
		zap.Stringer("appointment_id", updated.ID),
		zap.String("from", string(appt.Status)),
		zap.String("to", string(updated.Status)),
	)

	eventType := audit.EventAppointmentStatus
	if to == StatusCancelled {
		eventType = audit.EventAppointmentCancelled
		s.publish(ctx, notify.EventAppointmentCancelled, updated)
	}
	s.audit.Record(ctx, eventType, updated.DoctorID, &updated.ID, map[string]any{
		"from": string(appt.Status),
		"to":   string(updated.Status),
	})

	return updated, nil
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return appt, nil
}

// ListByPatient pages through a patient's appointments, newest slot first.
func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	appointments, err := s.repo.ListAppointmentsByPatient(ctx, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return appointments, nil
}

func (s *Service) ListByDoctorDay(ctx context.Context, doctorID uuid.UUID, date schedule.Date) ([]Appointment, error) {
	appointments, err := s.repo.ListAppointmentsByDoctorDay(ctx, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("list appointments by doctor: %w", err)
	}
	return appointments, nil
}

func (s *Service) publish(ctx context.Context, eventType string, a *Appointment) {
	if s.events == nil {
		return
	}
	s.events.Publish(ctx, notify.Event{
		Type:          eventType,
		AppointmentID: a.ID,
		DoctorID:      a.DoctorID,
		PatientID:     a.PatientID,
		Date:          a.Date.String(),
		StartTime:     a.StartTime.String(),
		OccurredAt:    s.now().UTC(),
	})
}

func bookingOutcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeBooked
	case errors.Is(err, ErrSlotAlreadyBooked):
		return metrics.OutcomeAlreadyBooked
	case errors.Is(err, ErrSlotNotAvailable):
		return metrics.OutcomeNotAvailable
	case errors.Is(err, ErrSlotInPast):
		return metrics.OutcomeInPast
	case errors.Is(err, ErrSlotBeingBooked):
		return metrics.OutcomeBusy
	case errors.Is(err, ErrPatientNotFound),
		errors.Is(err, schedule.ErrSlotNotFound),
		errors.Is(err, schedule.ErrDoctorNotFound):
		return metrics.OutcomeNotFound
	}
	return metrics.OutcomeError
}
