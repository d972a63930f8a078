package appointment

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-availability/internal/schedule"
)

type Status string

const (
	StatusScheduled Status = "SCHEDULED"
	StatusConfirmed Status = "CONFIRMED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Occupies reports whether an appointment in this status holds its slot.
func (s Status) Occupies() bool { return s != StatusCancelled }

var transitions = map[Status][]Status{
	StatusScheduled: {StatusConfirmed, StatusCompleted, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled},
}

func (s Status) CanTransitionTo(to Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
	return st, nil
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Appointment struct {
	ID                 uuid.UUID
	ConfirmationNumber string
	DoctorID           uuid.UUID
	PatientID          uuid.UUID
	Date               schedule.Date
	StartTime          schedule.Clock
	EndTime            schedule.Clock
	Reason             string
	Status             Status
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (a Appointment) Key() schedule.SlotKey {
	return schedule.SlotKey{DoctorID: a.DoctorID, Date: a.Date, StartTime: a.StartTime}
}

// NewConfirmationNumber returns a short human readable reference such as APT-1A2B3C4D.
func NewConfirmationNumber() string {
	return "APT-" + strings.ToUpper(uuid.NewString()[:8])
}

type BookRequest struct {
	DoctorID  uuid.UUID
	PatientID uuid.UUID
	Date      schedule.Date
	StartTime schedule.Clock
	Reason    string
}

func (r BookRequest) Key() schedule.SlotKey {
	return schedule.SlotKey{DoctorID: r.DoctorID, Date: r.Date, StartTime: r.StartTime}
}
