package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const (
	EventAvailabilityUpdated  = "AVAILABILITY_UPDATED"
	EventRecurringApplied     = "RECURRING_AVAILABILITY_SET"
	EventAppointmentBooked    = "APPOINTMENT_BOOKED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventAppointmentStatus    = "APPOINTMENT_STATUS_UPDATED"
)

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	DoctorID      *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// Writer persists audit rows.
type Writer interface {
	InsertEvent(ctx context.Context, ev EventLog) error
}

type PgWriter struct {
	pool *pgxpool.Pool
}

func NewPgWriter(pool *pgxpool.Pool) *PgWriter {
	return &PgWriter{pool: pool}
}

func (w *PgWriter) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := w.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, doctor_id, payload, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
	`, ev.EventType, ev.AppointmentID, ev.DoctorID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// Trail writes audit rows best effort: failures are logged and never returned,
// so an audit outage cannot fail a booking or an availability edit.
type Trail struct {
	w   Writer
	log *zap.Logger
}

func NewTrail(w Writer, log *zap.Logger) *Trail {
	if log == nil {
		log = zap.NewNop()
	}
	return &Trail{w: w, log: log}
}

func (t *Trail) Record(ctx context.Context, eventType string, doctorID uuid.UUID, appointmentID *uuid.UUID, payload map[string]any) {
	if t == nil || t.w == nil {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		t.log.Warn("marshal audit payload", zap.String("event_type", eventType), zap.Error(err))
		data = nil
	}

	docID := doctorID
	ev := EventLog{
		EventType:     eventType,
		AppointmentID: appointmentID,
		DoctorID:      &docID,
		Payload:       data,
		CreatedAt:     time.Now(),
	}

	if err := t.w.InsertEvent(context.WithoutCancel(ctx), ev); err != nil {
		t.log.Warn("insert audit event",
			zap.String("event_type", eventType),
			zap.Stringer("doctor_id", doctorID),
			zap.Error(err),
		)
	}
}
