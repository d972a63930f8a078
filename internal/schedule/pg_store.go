package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// Helpers

// ClockToPg converts c for a TIME column.
func ClockToPg(c Clock) pgtype.Time {
	return pgtype.Time{Microseconds: int64(c) * int64(time.Second/time.Microsecond), Valid: true}
}

// ClockFromPg converts a scanned TIME column.
func ClockFromPg(t pgtype.Time) Clock {
	return Clock(t.Microseconds / int64(time.Second/time.Microsecond))
}

// DateToPg converts d for a DATE column.
func DateToPg(d Date) pgtype.Date {
	return pgtype.Date{Time: d.In(time.UTC), Valid: true}
}

// DateFromPg converts a scanned DATE column.
func DateFromPg(d pgtype.Date) Date {
	return DateOf(d.Time)
}

func scanSlot(row pgx.Row) (*Slot, error) {
	var (
		s          Slot
		date       pgtype.Date
		start, end pgtype.Time
	)

	err := row.Scan(
		&s.DoctorID,
		&date,
		&start,
		&end,
		&s.Type,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	s.Date = DateFromPg(date)
	s.StartTime = ClockFromPg(start)
	s.EndTime = ClockFromPg(end)
	return &s, nil
}

// Interface methods

func (r *PgStore) ListDay(ctx context.Context, doctorID uuid.UUID, date Date) ([]Slot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT doctor_id, slot_date, start_time, end_time, slot_type, updated_at
		FROM availability_slots
		WHERE doctor_id = $1 AND slot_date = $2
		ORDER BY start_time
	`, doctorID, DateToPg(date))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// InsertDay inserts slots that do not exist yet and leaves existing rows untouched.
func (r *PgStore) InsertDay(ctx context.Context, slots []Slot) error {
	if len(slots) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, s := range slots {
		batch.Queue(`
			INSERT INTO availability_slots (doctor_id, slot_date, start_time, end_time, slot_type, updated_at)
			VALUES ($1, $2, $3, $4, $5, now())
			ON CONFLICT (doctor_id, slot_date, start_time) DO NOTHING
		`, s.DoctorID, DateToPg(s.Date), ClockToPg(s.StartTime), ClockToPg(s.EndTime), s.Type)
	}

	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert day slots: %w", err)
	}
	return nil
}

// SetSlotTypes updates all slots in one transaction. A missing row rolls the
// whole update back with ErrIntervalMismatch.
func (r *PgStore) SetSlotTypes(ctx context.Context, doctorID uuid.UUID, date Date, updates []SlotUpdate) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin slot update: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, u := range updates {
		tag, err := tx.Exec(ctx, `
			UPDATE availability_slots
			SET slot_type = $4,
			    updated_at = now()
			WHERE doctor_id = $1
			  AND slot_date = $2
			  AND start_time = $3
		`, doctorID, DateToPg(date), ClockToPg(u.StartTime), u.Type)
		if err != nil {
			return fmt.Errorf("update slot %s: %w", u.StartTime, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: %s", ErrIntervalMismatch, u.StartTime)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit slot update: %w", err)
	}
	return nil
}
