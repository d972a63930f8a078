package appointment

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-availability/internal/schedule"
)

var (
	ErrPatientNotFound     = errors.New("patient not found")
	ErrAppointmentNotFound = errors.New("appointment not found")

	ErrConfirmationNumberTaken = errors.New("confirmation number already in use")
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)

	// For conflict checks
	GetActiveAppointmentForSlot(ctx context.Context, key schedule.SlotKey) (*Appointment, error)
	ListActiveStartTimes(ctx context.Context, doctorID uuid.UUID, date schedule.Date) ([]schedule.Clock, error)

	// Creation and updates. CreateAppointment returns ErrSlotAlreadyBooked when
	// another non-cancelled appointment holds the same slot.
	CreateAppointment(ctx context.Context, a Appointment) (*Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error)

	// Reads
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error)
	ListAppointmentsByDoctorDay(ctx context.Context, doctorID uuid.UUID, date schedule.Date) ([]Appointment, error)
}

// Ledger answers occupancy questions for the availability side.
type Ledger struct {
	repo Repository
}

func NewLedger(repo Repository) *Ledger {
	return &Ledger{repo: repo}
}

func (l *Ledger) OccupiedStartTimes(ctx context.Context, doctorID uuid.UUID, date schedule.Date) (map[schedule.Clock]bool, error) {
	starts, err := l.repo.ListActiveStartTimes(ctx, doctorID, date)
	if err != nil {
		return nil, err
	}
	out := make(map[schedule.Clock]bool, len(starts))
	for _, c := range starts {
		out[c] = true
	}
	return out, nil
}
