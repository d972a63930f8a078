package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hackgods/clinic-availability/internal/appointment"
	"github.com/hackgods/clinic-availability/internal/directory"
	"github.com/hackgods/clinic-availability/internal/schedule"
)

// Requests. Dates and times are parsed by the handlers so malformed values
// surface as INVALID_DATE / INVALID_TIME rather than a generic validation error.

type SlotAssignment struct {
	StartTime string `json:"start_time" validate:"required"`
	SlotType  string `json:"slot_type" validate:"required,slot_type"`
}

type SetDaySlotsRequest struct {
	Date  string           `json:"date" validate:"required"`
	Slots []SlotAssignment `json:"slots" validate:"required,dive"`
}

type RecurringAvailabilityRequest struct {
	StartDate string           `json:"start_date" validate:"required"`
	EndDate   string           `json:"end_date" validate:"required"`
	Weekdays  []int            `json:"weekdays" validate:"dive,min=0,max=6"`
	Slots     []SlotAssignment `json:"slots" validate:"required,min=1,dive"`
}

type CreateAppointmentRequest struct {
	DoctorID  string `json:"doctor_id" validate:"required,uuid"`
	PatientID string `json:"patient_id" validate:"required,uuid"`
	Date      string `json:"date" validate:"required"`
	StartTime string `json:"start_time" validate:"required"`
	Reason    string `json:"reason" validate:"max=500"`
}

type UpdateAppointmentStatusRequest struct {
	Status string `json:"status" validate:"required,appointment_status"`
}

// Responses

type DoctorResponse struct {
	ID        uuid.UUID       `json:"id"`
	Name      string          `json:"name"`
	Specialty string          `json:"specialty"`
	Hospital  string          `json:"hospital"`
	Fee       decimal.Decimal `json:"fee"`
}

type DoctorListResponse struct {
	Doctors []DoctorResponse `json:"doctors"`
}

type SlotResponse struct {
	StartTime schedule.Clock    `json:"start_time"`
	EndTime   schedule.Clock    `json:"end_time"`
	SlotType  schedule.SlotType `json:"slot_type"`
}

type DaySlotsResponse struct {
	DoctorID uuid.UUID      `json:"doctor_id"`
	Date     schedule.Date  `json:"date"`
	Slots    []SlotResponse `json:"slots"`
}

type SlotViewResponse struct {
	StartTime     schedule.Clock    `json:"start_time"`
	EndTime       schedule.Clock    `json:"end_time"`
	EffectiveType schedule.SlotType `json:"effective_type"`
	IsBookable    bool              `json:"is_bookable"`
	IsBooked      bool              `json:"is_booked"`
	InPast        bool              `json:"in_past"`
}

type BookableSlotsResponse struct {
	DoctorID uuid.UUID          `json:"doctor_id"`
	Date     schedule.Date      `json:"date"`
	Slots    []SlotViewResponse `json:"slots"`
}

type SkippedSlotResponse struct {
	Date      schedule.Date       `json:"date"`
	StartTime schedule.Clock      `json:"start_time"`
	Reason    schedule.SkipReason `json:"reason"`
}

type RecurringResponse struct {
	AppliedDates []schedule.Date       `json:"applied_dates"`
	SkippedSlots []SkippedSlotResponse `json:"skipped_slots"`
	FullyApplied bool                  `json:"fully_applied"`
}

type AppointmentResponse struct {
	ID                 uuid.UUID          `json:"id"`
	ConfirmationNumber string             `json:"confirmation_number"`
	DoctorID           uuid.UUID          `json:"doctor_id"`
	PatientID          uuid.UUID          `json:"patient_id"`
	Date               schedule.Date      `json:"date"`
	StartTime          schedule.Clock     `json:"start_time"`
	EndTime            schedule.Clock     `json:"end_time"`
	Reason             string             `json:"reason,omitempty"`
	Status             appointment.Status `json:"status"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

type AppointmentListResponse struct {
	Appointments []AppointmentResponse `json:"appointments"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toDoctorResponse(d directory.Doctor) DoctorResponse {
	return DoctorResponse{
		ID:        d.ID,
		Name:      d.Name,
		Specialty: d.Specialty,
		Hospital:  d.Hospital,
		Fee:       d.Fee,
	}
}

func toAppointmentResponse(a appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:                 a.ID,
		ConfirmationNumber: a.ConfirmationNumber,
		DoctorID:           a.DoctorID,
		PatientID:          a.PatientID,
		Date:               a.Date,
		StartTime:          a.StartTime,
		EndTime:            a.EndTime,
		Reason:             a.Reason,
		Status:             a.Status,
		CreatedAt:          a.CreatedAt,
		UpdatedAt:          a.UpdatedAt,
	}
}

func toAppointmentList(list []appointment.Appointment) AppointmentListResponse {
	out := make([]AppointmentResponse, 0, len(list))
	for _, a := range list {
		out = append(out, toAppointmentResponse(a))
	}
	return AppointmentListResponse{Appointments: out}
}

func toRecurringResponse(res schedule.RecurringResult) RecurringResponse {
	applied := res.AppliedDates
	if applied == nil {
		applied = []schedule.Date{}
	}
	skipped := make([]SkippedSlotResponse, 0, len(res.SkippedSlots))
	for _, s := range res.SkippedSlots {
		skipped = append(skipped, SkippedSlotResponse{Date: s.Date, StartTime: s.StartTime, Reason: s.Reason})
	}
	return RecurringResponse{AppliedDates: applied, SkippedSlots: skipped, FullyApplied: res.FullyApplied()}
}
