package directory

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/hackgods/clinic-availability/internal/schedule"
)

const doctorColumns = `id, name, specialty, hospital, fee::text, day_start, day_end, slot_minutes, created_at, retired_at`

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var (
		d                Doctor
		fee              string
		dayStart, dayEnd pgtype.Time
		slotMinutes      *int
	)

	err := row.Scan(
		&d.ID,
		&d.Name,
		&d.Specialty,
		&d.Hospital,
		&fee,
		&dayStart,
		&dayEnd,
		&slotMinutes,
		&d.CreatedAt,
		&d.RetiredAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	d.Fee, err = decimal.NewFromString(fee)
	if err != nil {
		return nil, err
	}
	if dayStart.Valid {
		c := schedule.ClockFromPg(dayStart)
		d.DayStart = &c
	}
	if dayEnd.Valid {
		c := schedule.ClockFromPg(dayEnd)
		d.DayEnd = &c
	}
	d.SlotMinutes = slotMinutes
	return &d, nil
}

func (r *PgRepository) List(ctx context.Context) ([]Doctor, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+doctorColumns+`
		FROM doctors
		WHERE retired_at IS NULL
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) Get(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+doctorColumns+`
		FROM doctors
		WHERE id = $1
		  AND retired_at IS NULL
	`, id)
	return scanDoctor(row)
}
