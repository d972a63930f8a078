package schedule

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
	redisclient "github.com/hackgods/clinic-availability/internal/redis"
)

var ErrSlotBusy = errors.New("slot is currently being booked or edited, please retry")

// Store persists slots. SetSlotTypes applies all updates or none.
type Store interface {
	ListDay(ctx context.Context, doctorID uuid.UUID, date Date) ([]Slot, error)
	InsertDay(ctx context.Context, slots []Slot) error
	SetSlotTypes(ctx context.Context, doctorID uuid.UUID, date Date, updates []SlotUpdate) error
}

// Occupancy reports which start times hold a non-cancelled appointment.
type Occupancy interface {
	OccupiedStartTimes(ctx context.Context, doctorID uuid.UUID, date Date) (map[Clock]bool, error)
}

// TemplateSource supplies a doctor's working day. Unknown doctors yield ErrDoctorNotFound.
type TemplateSource interface {
	WorkingDay(ctx context.Context, doctorID uuid.UUID) (Template, error)
}

type Service struct {
	store     Store
	templates TemplateSource
	occupancy Occupancy
	locker    redisclient.Locker
	audit     *audit.Trail
	metrics   *metrics.Recorder
	log       *zap.Logger

	loc     *time.Location
	maxDays int
	now     func() time.Time
}

func NewService(store Store, templates TemplateSource, occupancy Occupancy, locker redisclient.Locker, cfg config.Config) *Service {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	maxDays := cfg.MaxRecurrenceDays
	if maxDays <= 0 {
		maxDays = 366
	}
	return &Service{
		store:     store,
		templates: templates,
		occupancy: occupancy,
		locker:    locker,
		log:       zap.NewNop(),
		loc:       loc,
		maxDays:   maxDays,
		now:       time.Now,
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

// Location is the clinic timezone all dates and times are interpreted in.
func (s *Service) Location() *time.Location { return s.loc }

// GetDaySlots returns the doctor's slots for date ordered by start time,
// materializing the working-day template on first touch.
func (s *Service) GetDaySlots(ctx context.Context, doctorID uuid.UUID, date Date) ([]Slot, error) {
	slots, err := s.store.ListDay(ctx, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("list day slots: %w", err)
	}
	if len(slots) > 0 {
		return slots, nil
	}

	tmpl, err := s.templates.WorkingDay(ctx, doctorID)
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load working day: %w", err)
	}
	if err := tmpl.Validate(); err != nil {
		return nil, err
	}

	if err := s.store.InsertDay(ctx, tmpl.Materialize(doctorID, date)); err != nil {
		return nil, fmt.Errorf("materialize day: %w", err)
	}
	s.log.Debug("materialized working day",
		zap.Stringer("doctor_id", doctorID),
		zap.Stringer("date", date),
	)

	// re-read so a concurrent materialization and ours converge on the stored rows
	slots, err = s.store.ListDay(ctx, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("list day slots: %w", err)
	}
	return slots, nil
}

// ResolveSlot finds the slot at key, or ErrSlotNotFound when the day has no such interval.
func (s *Service) ResolveSlot(ctx context.Context, key SlotKey) (Slot, error) {
	day, err := s.GetDaySlots(ctx, key.DoctorID, key.Date)
	if err != nil {
		return Slot{}, err
	}
	for _, sl := range day {
		if sl.StartTime == key.StartTime {
			return sl, nil
		}
	}
	return Slot{}, fmt.Errorf("%w: %s", ErrSlotNotFound, key)
}

// SetDaySlots re-types the named intervals of one day. The update is rejected
// as a whole when any start time is off the day's boundaries, repeated, or
// would re-type a slot that holds an active appointment.
func (s *Service) SetDaySlots(ctx context.Context, doctorID uuid.UUID, date Date, updates []SlotUpdate) error {
	day, err := s.GetDaySlots(ctx, doctorID, date)
	if err != nil {
		return err
	}
	if len(updates) == 0 {
		return nil
	}

	bounds := make(map[Clock]bool, len(day))
	for _, sl := range day {
		bounds[sl.StartTime] = true
	}

	seen := make(map[Clock]bool, len(updates))
	keys := make([]string, 0, len(updates))
	for _, u := range updates {
		if !u.Type.Valid() {
			return fmt.Errorf("%w: %q", ErrInvalidSlotType, u.Type)
		}
		if seen[u.StartTime] {
			return fmt.Errorf("%w: %s", ErrDuplicateStartTime, u.StartTime)
		}
		seen[u.StartTime] = true
		if !bounds[u.StartTime] {
			return fmt.Errorf("%w: %s", ErrIntervalMismatch, u.StartTime)
		}
		keys = append(keys, SlotKey{DoctorID: doctorID, Date: date, StartTime: u.StartTime}.LockKey())
	}

	err = s.locker.WithSlotLocks(ctx, keys, func(lockCtx context.Context) error {
		current, err := s.store.ListDay(lockCtx, doctorID, date)
		if err != nil {
			return fmt.Errorf("list day slots: %w", err)
		}
		types := make(map[Clock]SlotType, len(current))
		for _, sl := range current {
			types[sl.StartTime] = sl.Type
		}

		occupied, err := s.occupancy.OccupiedStartTimes(lockCtx, doctorID, date)
		if err != nil {
			return fmt.Errorf("load occupancy: %w", err)
		}
		for _, u := range updates {
			if occupied[u.StartTime] && types[u.StartTime] != u.Type {
				return fmt.Errorf("%w: %s %s", ErrSlotHasAppointment, date, u.StartTime)
			}
		}

		return s.store.SetSlotTypes(lockCtx, doctorID, date, updates)
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return ErrSlotBusy
		}
		return err
	}

	s.metrics.AddSlotEdits(len(updates))
	s.audit.Record(ctx, audit.EventAvailabilityUpdated, doctorID, nil, map[string]any{
		"date":       date.String(),
		"slot_count": len(updates),
	})

	return nil
}

// GetBookableSlots joins the day's slots with the ledger. It reads fresh on every call.
func (s *Service) GetBookableSlots(ctx context.Context, doctorID uuid.UUID, date Date) ([]SlotView, error) {
	day, err := s.GetDaySlots(ctx, doctorID, date)
	if err != nil {
		return nil, err
	}

	occupied, err := s.occupancy.OccupiedStartTimes(ctx, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("load occupancy: %w", err)
	}

	now := s.now().In(s.loc)
	views := make([]SlotView, 0, len(day))
	for _, sl := range day {
		booked := occupied[sl.StartTime]
		views = append(views, SlotView{
			StartTime:     sl.StartTime,
			EndTime:       sl.EndTime,
			EffectiveType: sl.Type,
			IsBooked:      booked,
			IsBookable:    sl.Type == SlotAvailable && !booked,
			InPast:        At(sl.Date, sl.StartTime, s.loc).Before(now),
		})
	}
	return views, nil
}
