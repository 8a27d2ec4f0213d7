package main

import (
	"context"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"maestro/backend/internal/config"
	"maestro/backend/internal/notify"
	"maestro/backend/internal/service/approvals"
	"maestro/backend/internal/service/lessons"
	"maestro/backend/internal/store/postgres"
	httpTransport "maestro/backend/internal/transport/http"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fallback, _ := zap.NewProduction()
		fallback.Fatal("config load failed", zap.Error(err))
	}

	log, err := buildLogger(cfg.LogLevel)
	if err != nil {
		fallback, _ := zap.NewProduction()
		fallback.Fatal("logger init failed", zap.Error(err))
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("starting",
		zap.String("http_addr", cfg.HTTPAddr),
		zap.String("log_level", cfg.LogLevel),
		zap.Int("series_horizon", cfg.SeriesHorizon))

	log.Info("connecting to database", zap.String("database_host", databaseHost(cfg.DatabaseURL)))
	db, err := postgres.Open(cfg.DatabaseURL, postgres.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
	})
	if err != nil {
		log.Fatal("database connection failed", zap.Error(err))
	}
	defer func() {
		if err := postgres.Close(db); err != nil {
			log.Warn("database close failed", zap.Error(err))
		}
	}()

	migrateCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
	if err := postgres.Migrate(migrateCtx, db); err != nil {
		cancel()
		log.Fatal("migrations failed", zap.Error(err))
	}
	cancel()

	notifier := notify.NewAsync(notify.NewLogSink(log), log, cfg.NotifyTimeout)
	directory := postgres.NewDirectoryRepo(db)

	lessonRepo := postgres.NewLessonRepo(db)
	scheduler := lessons.NewScheduler(lessonRepo, directory, notifier, log, cfg.SeriesHorizon)
	enrollments := approvals.NewEngine(postgres.NewEnrollmentRequestStore(db), directory, notifier, log)
	teacherReqs := approvals.NewEngine(postgres.NewTeacherSchoolRequestStore(db), directory, notifier, log)

	app := httpTransport.NewServer(scheduler, enrollments, teacherReqs, log).App()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reminder := lessons.NewReminder(lessonRepo, notifier, log, cfg.ReminderLead, cfg.ReminderInterval)
	go reminder.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down", zap.Duration("timeout", cfg.ShutdownTimeout))
		if err := app.ShutdownWithTimeout(cfg.ShutdownTimeout); err != nil {
			log.Error("shutdown failed", zap.Error(err))
		}
	case err := <-errCh:
		if err != nil {
			log.Fatal("http server failed", zap.Error(err))
		}
	}

	log.Info("stopped")
}

func buildLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	log, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return log.With(zap.String("service", "maestro-server")), nil
}

// databaseHost keeps credentials out of the logs.
func databaseHost(databaseURL string) string {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "unparseable"
	}
	return u.Host
}
