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
	"github.com/sungwon/newsletter-dispatch/internal/dispatch"
	"github.com/sungwon/newsletter-dispatch/internal/logger"
	"github.com/sungwon/newsletter-dispatch/internal/provider"
	"github.com/sungwon/newsletter-dispatch/internal/queue"
	"github.com/sungwon/newsletter-dispatch/internal/render"
	"github.com/sungwon/newsletter-dispatch/internal/schedule"
	"github.com/sungwon/newsletter-dispatch/internal/storage"
)

func main() {
	configDir := flag.String("config", "config", "directory containing config.yaml")
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
	logCfg.Service = "dispatch-worker"
	log := logger.NewFromConfig(logCfg)
	log.Info().Msg("starting dispatch worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbCfg := cfg.Database
	if dbCfg.AppName == "" {
		dbCfg.AppName = "dispatch-worker"
	}
	db, err := storage.NewDB(ctx, dbCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()
	queries := db.Queries()

	// Delivery channel: provider wrapped in a circuit breaker, probed in the
	// background so /readyz reflects its state.
	sender, registry, err := provider.NewChannel(cfg.Provider, provider.NewHTTPClient(cfg.Provider.Timeout), log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create provider")
	}
	healthChecker := provider.NewHealthChecker(registry, 0, log)
	healthChecker.Start(ctx)
	defer healthChecker.Stop()

	renderer, err := render.New()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load templates")
	}

	archiveStore, err := archive.New(ctx, cfg.Archive, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create archive store")
	}

	handler := dispatch.NewHandler(queries, sender, renderer, archiveStore, dispatch.Config{
		BaseURL:     cfg.Dispatch.BaseURL,
		FromAddress: cfg.Dispatch.FromAddress,
		FromName:    cfg.Dispatch.FromName,
		SendTimeout: cfg.Dispatch.SendTimeout,
		Concurrency: cfg.Dispatch.Concurrency,
		ClaimLease:  cfg.Queue.ProcessTimeout,
	}, log)

	enqueuer, dequeuer, _, closeQueue, err := queue.NewQueue(ctx, cfg.Queue, handler, log, "dispatchers")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create queue")
	}
	defer closeQueue()

	// Workers outlive the signal context so in-flight jobs can drain in Stop.
	if err := dequeuer.Start(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("failed to start dequeuer")
	}
	log.Info().
		Str("queue", cfg.Queue.Name).
		Str("type", cfg.Queue.Type).
		Int("workers", cfg.Queue.WorkerCount).
		Str("provider", sender.GetName()).
		Msg("dispatch workers started")

	var reconciler *schedule.Reconciler
	if cfg.Reconciler.Enabled {
		reconciler = schedule.NewReconciler(queries, schedule.NewTrigger(enqueuer, log), schedule.ReconcilerConfig{
			Schedule: cfg.Reconciler.Schedule,
			Grace:    cfg.Reconciler.Grace,
			Limit:    cfg.Reconciler.Limit,
		}, log)
		if err := reconciler.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to start reconciler")
		}
	}

	checks := []api.ReadinessCheck{
		{Name: "database", Pinger: db},
		{Name: "provider", Pinger: api.PingFunc(healthChecker.Check)},
	}
	if p, ok := enqueuer.(queue.Pinger); ok {
		checks = append(checks, api.ReadinessCheck{Name: cfg.Queue.Type, Pinger: p})
	}

	opsSrv := &http.Server{
		Addr:              cfg.Metrics.Addr,
		Handler:           api.NewOpsRouter(log, checks...),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.Metrics.Addr).Msg("ops server listening")
		if err := opsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("ops server error")
		}
	}()

	go db.ReportPoolStats(ctx, 15*time.Second)

	<-ctx.Done()
	log.Info().Msg("shutting down dispatch worker")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Queue.ShutdownTimeout+5*time.Second)
	defer cancel()

	if reconciler != nil {
		if err := reconciler.Stop(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("reconciler stop")
		}
	}
	if err := dequeuer.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("dequeuer stop")
	}
	if err := opsSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("ops server forced to shutdown")
	}

	log.Info().Msg("dispatch worker stopped")
}
