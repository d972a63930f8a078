package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-availability/internal/appointment"
	redisclient "github.com/hackgods/clinic-availability/internal/redis"
	"github.com/hackgods/clinic-availability/internal/schedule"
)

const (
	CodeValidation              = "VALIDATION_ERROR"
	CodeInvalidDate             = "INVALID_DATE"
	CodeInvalidTime             = "INVALID_TIME"
	CodeIntervalMismatch        = "INTERVAL_MISMATCH"
	CodeDoctorNotFound          = "DOCTOR_NOT_FOUND"
	CodePatientNotFound         = "PATIENT_NOT_FOUND"
	CodeAppointmentNotFound     = "APPOINTMENT_NOT_FOUND"
	CodeSlotNotFound            = "SLOT_NOT_FOUND"
	CodeSlotNotAvailable        = "SLOT_NOT_AVAILABLE"
	CodeSlotAlreadyBooked       = "SLOT_ALREADY_BOOKED"
	CodeSlotInPast              = "SLOT_IN_PAST"
	CodeSlotBeingBooked         = "SLOT_BEING_BOOKED"
	CodeSlotHasAppointment      = "SLOT_HAS_APPOINTMENT"
	CodeInvalidStatusTransition = "INVALID_STATUS_TRANSITION"
	CodeInternal                = "INTERNAL_ERROR"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// writeServiceError maps domain errors to HTTP responses. Conflicts are
// expected outcomes of concurrent use; only unknown errors are logged.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, schedule.ErrInvalidDate):
		writeError(w, http.StatusBadRequest, CodeInvalidDate, err.Error())
	case errors.Is(err, schedule.ErrInvalidTime):
		writeError(w, http.StatusBadRequest, CodeInvalidTime, err.Error())
	case errors.Is(err, schedule.ErrIntervalMismatch):
		writeError(w, http.StatusBadRequest, CodeIntervalMismatch, err.Error())
	case errors.Is(err, schedule.ErrInvalidSlotType),
		errors.Is(err, schedule.ErrInvalidWeekday),
		errors.Is(err, schedule.ErrDuplicateStartTime),
		errors.Is(err, schedule.ErrRangeTooLong),
		errors.Is(err, schedule.ErrInvalidTemplate),
		errors.Is(err, appointment.ErrInvalidStatus):
		writeError(w, http.StatusBadRequest, CodeValidation, err.Error())

	case errors.Is(err, schedule.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, CodeDoctorNotFound, err.Error())
	case errors.Is(err, appointment.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, CodePatientNotFound, err.Error())
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, CodeAppointmentNotFound, err.Error())
	case errors.Is(err, schedule.ErrSlotNotFound):
		writeError(w, http.StatusNotFound, CodeSlotNotFound, err.Error())

	case errors.Is(err, appointment.ErrSlotNotAvailable):
		writeError(w, http.StatusConflict, CodeSlotNotAvailable, err.Error())
	case errors.Is(err, appointment.ErrSlotAlreadyBooked):
		writeError(w, http.StatusConflict, CodeSlotAlreadyBooked, err.Error())
	case errors.Is(err, appointment.ErrSlotInPast):
		writeError(w, http.StatusConflict, CodeSlotInPast, err.Error())
	case errors.Is(err, appointment.ErrSlotBeingBooked),
		errors.Is(err, schedule.ErrSlotBusy),
		errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, CodeSlotBeingBooked, "slot is currently being booked or edited, please refresh and retry")
	case errors.Is(err, schedule.ErrSlotHasAppointment):
		writeError(w, http.StatusConflict, CodeSlotHasAppointment, err.Error())
	case errors.Is(err, appointment.ErrInvalidStatusTransition):
		writeError(w, http.StatusConflict, CodeInvalidStatusTransition, err.Error())

	default:
		LoggerFrom(r.Context()).Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, CodeInternal, "internal error")
	}
}

func writeValidationError(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		writeError(w, http.StatusBadRequest, CodeValidation, fe.Namespace()+" failed on "+fe.Tag())
		return
	}
	writeError(w, http.StatusBadRequest, CodeValidation, err.Error())
}
