package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sungwon/newsletter-dispatch/internal/api"
	"github.com/sungwon/newsletter-dispatch/internal/archive"
	"github.com/sungwon/newsletter-dispatch/internal/config"
	"github.com/sungwon/newsletter-dispatch/internal/logger"
	"github.com/sungwon/newsletter-dispatch/internal/newsletter"
	"github.com/sungwon/newsletter-dispatch/internal/queue"
	"github.com/sungwon/newsletter-dispatch/internal/schedule"
	"github.com/sungwon/newsletter-dispatch/internal/storage"
)

func main() {
	configDir := flag.String("config", "config", "directory containing config.yaml")
	runMigrations := flag.Bool("migrate", false, "apply database migrations before serving")
	flag.Parse()

	cfg, err := config.Load(*configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logCfg := cfg.LoggerConfig()
	logCfg.Service = "api-server"
	log := logger.NewFromConfig(logCfg)
	log.Info().Msg("starting API server")

	if *runMigrations {
		if err := storage.Migrate(cfg.Database.URL); err != nil {
			log.Fatal().Err(err).Msg("failed to apply migrations")
		}
		log.Info().Msg("database migrations applied")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbCfg := cfg.Database
	if dbCfg.AppName == "" {
		dbCfg.AppName = "api-server"
	}
	db, err := storage.NewDB(ctx, dbCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("database connection established")

	// The API only produces jobs, so no handler is passed.
	enqueuer, _, dlq, closeQueue, err := queue.NewQueue(ctx, cfg.Queue, nil, log, "dispatchers")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create queue")
	}
	defer closeQueue()

	archiveStore, err := archive.New(ctx, cfg.Archive, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create archive store")
	}

	trigger := schedule.NewTrigger(enqueuer, log)
	svc := newsletter.NewService(db.Queries(), db, trigger, archiveStore, log)

	checks := []api.ReadinessCheck{{Name: "database", Pinger: db}}
	if p, ok := enqueuer.(queue.Pinger); ok {
		checks = append(checks, api.ReadinessCheck{Name: cfg.Queue.Type, Pinger: p})
	}

	router := api.NewRouter(svc, dlq, log, checks...)

	addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
	}

	go db.ReportPoolStats(ctx, 15*time.Second)

	go func() {
		log.Info().Str("addr", addr).Msg("API server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
