package appointment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-availability/internal/schedule"
)

// ActiveSlotConstraint is the partial unique index that allows one
// non-cancelled appointment per (doctor, date, start time).
const ActiveSlotConstraint = "appointments_active_slot_uq"

// ConfirmationNumberConstraint is the UNIQUE constraint on confirmation_number.
const ConfirmationNumberConstraint = "appointments_confirmation_number_key"

const uniqueViolation = "23505"

const appointmentColumns = `id, confirmation_number, doctor_id, patient_id, slot_date, start_time, end_time, reason, status, created_at, updated_at`

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var email *string

	err := row.Scan(
		&p.ID,
		&p.Name,
		&email,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	p.Email = email
	return &p, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a          Appointment
		date       pgtype.Date
		start, end pgtype.Time
	)

	err := row.Scan(
		&a.ID,
		&a.ConfirmationNumber,
		&a.DoctorID,
		&a.PatientID,
		&date,
		&start,
		&end,
		&a.Reason,
		&a.Status,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Date = schedule.DateFromPg(date)
	a.StartTime = schedule.ClockFromPg(start)
	a.EndTime = schedule.ClockFromPg(end)
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// Interface methods

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) GetActiveAppointmentForSlot(ctx context.Context, key schedule.SlotKey) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		  AND slot_date = $2
		  AND start_time = $3
		  AND status <> 'CANCELLED'
	`, key.DoctorID, schedule.DateToPg(key.Date), schedule.ClockToPg(key.StartTime))
	return scanAppointment(row)
}

func (r *PgRepository) ListActiveStartTimes(ctx context.Context, doctorID uuid.UUID, date schedule.Date) ([]schedule.Clock, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT start_time
		FROM appointments
		WHERE doctor_id = $1
		  AND slot_date = $2
		  AND status <> 'CANCELLED'
	`, doctorID, schedule.DateToPg(date))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []schedule.Clock
	for rows.Next() {
		var t pgtype.Time
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		result = append(result, schedule.ClockFromPg(t))
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) CreateAppointment(ctx context.Context, a Appointment) (*Appointment, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (id, confirmation_number, doctor_id, patient_id, slot_date, start_time, end_time, reason, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		RETURNING `+appointmentColumns+`
	`, a.ID, a.ConfirmationNumber, a.DoctorID, a.PatientID,
		schedule.DateToPg(a.Date), schedule.ClockToPg(a.StartTime), schedule.ClockToPg(a.EndTime),
		a.Reason, a.Status)

	created, err := scanAppointment(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			switch pgErr.ConstraintName {
			case ActiveSlotConstraint:
				return nil, fmt.Errorf("%w: %s", ErrSlotAlreadyBooked, a.Key())
			case ConfirmationNumberConstraint:
				return nil, fmt.Errorf("%w: %s", ErrConfirmationNumberTaken, a.ConfirmationNumber)
			}
		}
		return nil, err
	}
	return created, nil
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns+`
	`, id, to, from)

	return scanAppointment(row)
}

func (r *PgRepository) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY slot_date DESC, start_time DESC, id
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ListAppointmentsByDoctorDay(ctx context.Context, doctorID uuid.UUID, date schedule.Date) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		  AND slot_date = $2
		ORDER BY start_time, created_at
	`, doctorID, schedule.DateToPg(date))
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}
