package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-availability/internal/api"
	"github.com/hackgods/clinic-availability/internal/appointment"
	"github.com/hackgods/clinic-availability/internal/audit"
	"github.com/hackgods/clinic-availability/internal/config"
	"github.com/hackgods/clinic-availability/internal/db"
	"github.com/hackgods/clinic-availability/internal/directory"
	"github.com/hackgods/clinic-availability/internal/logger"
	"github.com/hackgods/clinic-availability/internal/metrics"
	"github.com/hackgods/clinic-availability/internal/notify"
	redisclient "github.com/hackgods/clinic-availability/internal/redis"
	"github.com/hackgods/clinic-availability/internal/schedule"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("config load error: " + err.Error())
	}

	log, err := logger.New(cfg)
	if err != nil {
		panic("logger init error: " + err.Error())
	}
	defer func() { _ = log.Sync() }()

	log.Info("api-server starting up",
		zap.String("http_port", cfg.HTTPPort),
		zap.String("lock_backend", cfg.LockBackend),
		zap.String("timezone", cfg.Location.String()),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{MaxConns: int32(cfg.PGMaxConns)})
	cancelPg()
	if err != nil {
		log.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	log.Info("connected to Postgres")

	applied, err := db.NewMigrator(pgPool).Up(rootCtx)
	if err != nil {
		log.Fatal("migration error", zap.Error(err))
	}
	log.Info("migrations applied", zap.Int("count", applied))

	// Connect Redis. It is mandatory only when it backs the slot locks.
	var rdb *redis.Client
	rdb, err = redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		if cfg.LockBackend == config.LockBackendRedis {
			log.Fatal("redis connection error", zap.Error(err))
		}
		log.Warn("redis unavailable, event fan-out limited to logs", zap.Error(err))
		rdb = nil
	} else {
		defer func() {
			if err := rdb.Close(); err != nil {
				log.Warn("error closing redis", zap.Error(err))
			}
		}()
		log.Info("connected to Redis")
	}

	var locker redisclient.Locker
	if cfg.LockBackend == config.LockBackendRedis {
		locker = redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL, cfg.LockWait)
	} else {
		locker = redisclient.NewLocalSlotLocker(cfg.LockWait)
	}

	fallback, err := schedule.ParseTemplate(cfg.DayStart, cfg.DayEnd, cfg.SlotMinutes)
	if err != nil {
		log.Fatal("invalid default working day", zap.Error(err))
	}

	rec := metrics.New()
	trail := audit.NewTrail(audit.NewPgWriter(pgPool), log)

	bus := notify.NewBus(log)
	bus.Subscribe("log", notify.LogSubscriber(log))
	if rdb != nil {
		bus.Subscribe("redis", notify.RedisSubscriber(redisclient.NewPublisher(rdb, cfg.NotifyChannel)))
	}

	doctors := directory.NewService(directory.NewPgRepository(pgPool), fallback)
	apptRepo := appointment.NewPgRepository(pgPool)

	scheduleSvc := schedule.NewService(
		schedule.NewPgStore(pgPool),
		doctors,
		appointment.NewLedger(apptRepo),
		locker,
		cfg,
	).WithLogger(log).WithMetrics(rec).WithAudit(trail)

	appointmentSvc := appointment.NewService(apptRepo, scheduleSvc, locker, cfg).
		WithLogger(log).
		WithMetrics(rec).
		WithAudit(trail).
		WithPublisher(bus)

	var redisPing api.Check
	if rdb != nil {
		redisPing = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	required, optional := readinessChecks(cfg.LockBackend, pgPool.Ping, redisPing)

	router := api.NewRouter(api.RouterConfig{
		Doctors:      doctors,
		Availability: scheduleSvc,
		Appointments: appointmentSvc,
		Health:       api.NewHealthHandler(required, optional, cfg.Env, cfg.Version),
		Metrics:      rec,
		Logger:       log,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-rootCtx.Done():
	case err := <-serverErr:
		if err != nil {
			log.Error("http server error", zap.Error(err))
		}
	}

	log.Info("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown error", zap.Error(err))
	}
	if err := bus.Wait(shutdownCtx); err != nil {
		log.Warn("pending notifications dropped", zap.Error(err))
	}

	log.Info("api-server stopped")
}
