package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/snsgroups/proctor-backend/internal/config"
	"github.com/snsgroups/proctor-backend/internal/database"
	"github.com/snsgroups/proctor-backend/internal/fetch"
	"github.com/snsgroups/proctor-backend/internal/handler"
	"github.com/snsgroups/proctor-backend/internal/logger"
	"github.com/snsgroups/proctor-backend/internal/model"
	"github.com/snsgroups/proctor-backend/internal/proctor"
	"github.com/snsgroups/proctor-backend/internal/router"
	"github.com/snsgroups/proctor-backend/internal/session"
	"github.com/snsgroups/proctor-backend/internal/store"
	"github.com/snsgroups/proctor-backend/internal/submit"
	"github.com/snsgroups/proctor-backend/internal/validator"
	"github.com/snsgroups/proctor-backend/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting Proctor Backend")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Attempt Engine Dependencies ────────────────────────
	attemptStore := store.NewRedisStore(rdb)
	fetcher := fetch.NewClient(cfg.AssessmentAPIBase, log)
	submitter := submit.NewHTTPSubmitter(cfg.AssessmentAPIBase, log)
	recorder := worker.NewRedisQueue(rdb, log)

	manager := session.NewManager(session.Deps{
		Store:     attemptStore,
		Submitter: submitter,
		Recorder:  recorder,
		Clock:     session.SystemClock{},
		Logger:    log,
		Monitor: proctor.Config{
			DebounceWindow: cfg.DebounceWindow,
			VisibilityGate: cfg.VisibilityGate,
			Limits: model.ViolationLimits{
				Fullscreen: cfg.FullscreenLimit,
				TabSwitch:  cfg.TabSwitchLimit,
				Noise:      cfg.NoiseLimit,
				FaceAbsent: cfg.FaceAbsentLimit,
			},
		},
		FreezeWindow: cfg.FreezeWindow,
		TickInterval: time.Second,
	}, fetcher)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Attempt: handler.NewAttemptHandler(manager, log),
		WS:      handler.NewWSHandler(manager, log, cfg),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())

	auditWorker := worker.NewAuditWorker(pool, rdb, log)
	reportWorker := worker.NewReportWorker(pool, rdb, log)

	go auditWorker.Start(workerCtx)
	go reportWorker.Start(workerCtx)

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop the attempt engines. Records stay in Redis, so attempts
	// resume from their persisted clocks after a restart.
	manager.Shutdown()

	// 3. Stop background workers and wait for queues to drain.
	workerCancel()
	time.Sleep(2 * time.Second) // Allow workers to drain.

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
