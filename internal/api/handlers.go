package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-availability/internal/appointment"
	"github.com/hackgods/clinic-availability/internal/directory"
	"github.com/hackgods/clinic-availability/internal/schedule"
)

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("slot_type", func(fl validator.FieldLevel) bool {
		_, err := schedule.ParseSlotType(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("appointment_status", func(fl validator.FieldLevel) bool {
		_, err := appointment.ParseStatus(fl.Field().String())
		return err == nil
	})
	return v
}

func decodeAndValidate(w http.ResponseWriter, r *http.Request, v *validator.Validate, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidation, "could not parse JSON body")
		return false
	}
	if err := v.Struct(dst); err != nil {
		writeValidationError(w, err)
		return false
	}
	return true
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidation, name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func dateQuery(w http.ResponseWriter, r *http.Request) (schedule.Date, bool) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		writeError(w, http.StatusBadRequest, CodeInvalidDate, "date query parameter is required (YYYY-MM-DD)")
		return schedule.Date{}, false
	}
	d, err := schedule.ParseDate(raw)
	if err != nil {
		writeServiceError(w, r, err)
		return schedule.Date{}, false
	}
	return d, true
}

func intQuery(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return n, nil
}

func parseAssignments(in []SlotAssignment) ([]schedule.SlotUpdate, error) {
	out := make([]schedule.SlotUpdate, 0, len(in))
	for _, a := range in {
		start, err := schedule.ParseClock(a.StartTime)
		if err != nil {
			return nil, err
		}
		st, err := schedule.ParseSlotType(a.SlotType)
		if err != nil {
			return nil, err
		}
		out = append(out, schedule.SlotUpdate{StartTime: start, Type: st})
	}
	return out, nil
}

func toDaySlotsResponse(doctorID uuid.UUID, date schedule.Date, slots []schedule.Slot) DaySlotsResponse {
	out := make([]SlotResponse, 0, len(slots))
	for _, s := range slots {
		out = append(out, SlotResponse{StartTime: s.StartTime, EndTime: s.EndTime, SlotType: s.Type})
	}
	return DaySlotsResponse{DoctorID: doctorID, Date: date, Slots: out}
}

// Doctors

func findDoctorsHandler(svc DoctorService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		doctors, err := svc.FindDoctors(r.Context(), directory.Filter{
			Specialty: q.Get("specialty"),
			Name:      q.Get("q"),
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		resp := DoctorListResponse{Doctors: make([]DoctorResponse, 0, len(doctors))}
		for _, d := range doctors {
			resp.Doctors = append(resp.Doctors, toDoctorResponse(d))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func getDoctorHandler(svc DoctorService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "doctorID")
		if !ok {
			return
		}

		d, err := svc.GetDoctor(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toDoctorResponse(*d))
	}
}

// Availability

func getDaySlotsHandler(svc AvailabilityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := uuidParam(w, r, "doctorID")
		if !ok {
			return
		}
		date, ok := dateQuery(w, r)
		if !ok {
			return
		}

		slots, err := svc.GetDaySlots(r.Context(), doctorID, date)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toDaySlotsResponse(doctorID, date, slots))
	}
}

func setDaySlotsHandler(svc AvailabilityService, v *validator.Validate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := uuidParam(w, r, "doctorID")
		if !ok {
			return
		}

		var req SetDaySlotsRequest
		if !decodeAndValidate(w, r, v, &req) {
			return
		}
		date, err := schedule.ParseDate(req.Date)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		updates, err := parseAssignments(req.Slots)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		if err := svc.SetDaySlots(r.Context(), doctorID, date, updates); err != nil {
			writeServiceError(w, r, err)
			return
		}

		slots, err := svc.GetDaySlots(r.Context(), doctorID, date)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toDaySlotsResponse(doctorID, date, slots))
	}
}

func applyRecurringHandler(svc AvailabilityService, v *validator.Validate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := uuidParam(w, r, "doctorID")
		if !ok {
			return
		}

		var req RecurringAvailabilityRequest
		if !decodeAndValidate(w, r, v, &req) {
			return
		}
		start, err := schedule.ParseDate(req.StartDate)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		end, err := schedule.ParseDate(req.EndDate)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		assignments, err := parseAssignments(req.Slots)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		weekdays := make([]time.Weekday, 0, len(req.Weekdays))
		for _, d := range req.Weekdays {
			weekdays = append(weekdays, time.Weekday(d))
		}

		res, err := svc.ApplyRecurring(r.Context(), schedule.RecurringRequest{
			DoctorID:    doctorID,
			StartDate:   start,
			EndDate:     end,
			Weekdays:    weekdays,
			Assignments: assignments,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toRecurringResponse(res))
	}
}

func getBookableSlotsHandler(svc AvailabilityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := uuidParam(w, r, "doctorID")
		if !ok {
			return
		}
		date, ok := dateQuery(w, r)
		if !ok {
			return
		}

		views, err := svc.GetBookableSlots(r.Context(), doctorID, date)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		resp := BookableSlotsResponse{DoctorID: doctorID, Date: date, Slots: make([]SlotViewResponse, 0, len(views))}
		for _, sv := range views {
			resp.Slots = append(resp.Slots, SlotViewResponse{
				StartTime:     sv.StartTime,
				EndTime:       sv.EndTime,
				EffectiveType: sv.EffectiveType,
				IsBookable:    sv.IsBookable,
				IsBooked:      sv.IsBooked,
				InPast:        sv.InPast,
			})
		}
		// views are computed per request and must not be cached by clients or proxies
		w.Header().Set("Cache-Control", "no-store")
		writeJSON(w, http.StatusOK, resp)
	}
}

// Appointments

func createAppointmentHandler(svc AppointmentService, v *validator.Validate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if !decodeAndValidate(w, r, v, &req) {
			return
		}

		date, err := schedule.ParseDate(req.Date)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		start, err := schedule.ParseClock(req.StartTime)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		appt, err := svc.Book(r.Context(), appointment.BookRequest{
			DoctorID:  uuid.MustParse(req.DoctorID),
			PatientID: uuid.MustParse(req.PatientID),
			Date:      date,
			StartTime: start,
			Reason:    req.Reason,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(*appt))
	}
}

func listAppointmentsHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, err := uuid.Parse(r.URL.Query().Get("patient_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, CodeValidation, "patient_id must be a valid UUID")
			return
		}
		limit, err := intQuery(r, "limit")
		if err != nil {
			writeError(w, http.StatusBadRequest, CodeValidation, err.Error())
			return
		}
		offset, err := intQuery(r, "offset")
		if err != nil {
			writeError(w, http.StatusBadRequest, CodeValidation, err.Error())
			return
		}

		list, err := svc.ListByPatient(r.Context(), patientID, limit, offset)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentList(list))
	}
}

func listDoctorAppointmentsHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := uuidParam(w, r, "doctorID")
		if !ok {
			return
		}
		date, ok := dateQuery(w, r)
		if !ok {
			return
		}

		list, err := svc.ListByDoctorDay(r.Context(), doctorID, date)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentList(list))
	}
}

func getAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		appt, err := svc.GetAppointment(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

func updateAppointmentStatusHandler(svc AppointmentService, v *validator.Validate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		var req UpdateAppointmentStatusRequest
		if !decodeAndValidate(w, r, v, &req) {
			return
		}
		status, err := appointment.ParseStatus(req.Status)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		appt, err := svc.Transition(r.Context(), id, status)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}
