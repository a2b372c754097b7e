// Command orchestrator-service runs the workflow orchestration core as a
// standalone HTTP service: it loads configuration, optionally connects to
// Postgres for run persistence, and serves the run lifecycle, template
// discovery, health, and metrics endpoints.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jordigilh/orchestrator-core/internal/config"
	"github.com/jordigilh/orchestrator-core/internal/platform/metrics"
	"github.com/jordigilh/orchestrator-core/internal/server"
	"github.com/jordigilh/orchestrator-core/internal/storage/postgres"
	"github.com/jordigilh/orchestrator-core/internal/toolkit/registry"
	"github.com/jordigilh/orchestrator-core/internal/workflow/orchestrator"
	"github.com/jordigilh/orchestrator-core/internal/workflow/templates"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (defaults baked in when omitted)")
	flag.Parse()

	log := newLogger()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.WithError(err).Fatal("failed to load config")
		}
		cfg = loaded
	}
	cfg.Database.LoadFromEnv()

	store, closeStore := connectStore(cfg, log)
	defer closeStore()

	m := metrics.New()

	eng := orchestrator.EngineConfigFrom(cfg.Checkpoint.MaxPerRun, cfg.Validation.ConfidenceThreshold, orchestrator.SchedulerSettings{
		MaxParallelTasks:   cfg.Scheduler.MaxParallelTasks,
		DefaultTaskTimeout: cfg.Scheduler.DefaultTaskTimeout,
		MaxRetries:         cfg.Scheduler.MaxRetries,
		BaseRetryDelay:     cfg.Scheduler.BaseRetryDelay,
		MaxRetryDelay:      cfg.Scheduler.MaxRetryDelay,
		BackoffMultiplier:  cfg.Scheduler.BackoffMultiplier,
	})
	orch := orchestrator.New(registry.Default(), templates.Default(), eng, store, m)
	defer orch.Close()

	addr := formatAddr(cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           server.New(orch, m, log),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.WithField("addr", addr).Info("orchestrator-service listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed")
		}
	}()

	// Health checks and Prometheus scraping run on their own port so a
	// load balancer probe never queues behind run traffic.
	healthAddr := formatAddr(cfg.Server.HealthPort)
	healthSrv := &http.Server{
		Addr:              healthAddr,
		Handler:           server.HealthHandler(m),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.WithField("addr", healthAddr).Info("health endpoint listening")
		if err := healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("health server failed")
		}
	}()

	waitForShutdown(log, srv, healthSrv)
}

func newLogger() *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return log
}

// connectStore attempts a Postgres connection; a failure is logged and
// the service degrades to in-memory-only operation rather than refusing
// to start, the same degradation orchestrator.New itself allows for a
// nil store.
func connectStore(cfg *config.Config, log *logrus.Logger) (*postgres.Store, func()) {
	db, err := postgres.Connect(cfg.Database)
	if err != nil {
		log.WithError(err).Warn("postgres unavailable, running without run persistence")
		return nil, func() {}
	}
	store := postgres.NewStore(db)
	return store, func() {
		if cerr := store.Close(); cerr != nil {
			log.WithError(cerr).Warn("error closing postgres connection")
		}
	}
}

func formatAddr(port int) string {
	return fmt.Sprintf(":%d", port)
}

func waitForShutdown(log *logrus.Logger, servers ...*http.Server) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("shutting down orchestrator-service")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			log.WithError(err).Error("graceful shutdown failed")
		}
	}
}
