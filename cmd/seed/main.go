package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-availability/internal/config"
	"github.com/hackgods/clinic-availability/internal/db"
	"github.com/hackgods/clinic-availability/internal/logger"
	"github.com/hackgods/clinic-availability/internal/schedule"
)

var specialties = []string{
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

// Working day overrides handed to a share of the seeded doctors.
var workingDays = []struct {
	start, end schedule.Clock
	minutes    int
}{
	{schedule.NewClock(8, 0), schedule.NewClock(14, 0), 20},
	{schedule.NewClock(10, 0), schedule.NewClock(18, 0), 30},
	{schedule.NewClock(13, 0), schedule.NewClock(19, 0), 15},
}

func pgTime(c schedule.Clock) pgtype.Time {
	return pgtype.Time{Microseconds: c.Duration().Microseconds(), Valid: true}
}

func main() {
	doctors := flag.Int("doctors", 100, "number of doctors to create")
	patients := flag.Int("patients", 9000, "number of patients to create")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic("config load error: " + err.Error())
	}
	log, err := logger.New(cfg)
	if err != nil {
		panic("logger init error: " + err.Error())
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 4})
	if err != nil {
		log.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	if _, err := db.NewMigrator(pool).Up(ctx); err != nil {
		log.Fatal("apply migrations", zap.Error(err))
	}

	faker := gofakeit.New(0)

	if err := seedDoctors(ctx, pool, faker, log, *doctors); err != nil {
		log.Fatal("seed doctors", zap.Error(err))
	}
	if err := seedPatients(ctx, pool, faker, log, *patients); err != nil {
		log.Fatal("seed patients", zap.Error(err))
	}

	log.Info("seed complete")
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, log *zap.Logger, count int) error {
	log.Info("seeding doctors", zap.Int("count", count))

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for i := 0; i < count; i++ {
		name := "Dr. " + faker.Name()
		spec := specialties[faker.Number(0, len(specialties)-1)]
		hospital := faker.Company() + " Hospital"
		fee := decimal.NewFromFloat(faker.Price(40, 400)).Round(2)

		// roughly a quarter of doctors keep a non-default working day
		var dayStart, dayEnd pgtype.Time
		var slotMinutes *int
		if faker.Number(0, 3) == 0 {
			wd := workingDays[faker.Number(0, len(workingDays)-1)]
			dayStart, dayEnd, slotMinutes = pgTime(wd.start), pgTime(wd.end), &wd.minutes
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO doctors (id, name, specialty, hospital, fee, day_start, day_end, slot_minutes, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		`, uuid.New(), name, spec, hospital, fee, dayStart, dayEnd, slotMinutes)
		if err != nil {
			return fmt.Errorf("insert doctor: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Info("doctors seeded")
	return nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, log *zap.Logger, count int) error {
	log.Info("seeding patients", zap.Int("count", count))

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		rows := make([][]any, 0, end-offset)
		for i := offset; i < end; i++ {
			rows = append(rows, []any{uuid.New(), faker.Name(), faker.Email()})
		}

		if _, err := pool.CopyFrom(ctx,
			pgx.Identifier{"patients"},
			[]string{"id", "name", "email"},
			pgx.CopyFromRows(rows),
		); err != nil {
			return fmt.Errorf("copy patients: %w", err)
		}

		log.Debug("patients batch seeded", zap.Int("done", end), zap.Int("total", count))
	}

	log.Info("patients seeded")
	return nil
}
