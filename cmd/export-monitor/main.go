// Command export-monitor polls the imagery service for every unfinished
// export task in the ledger, records status changes, and serves health,
// readiness, metrics, and pending-task endpoints until SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/ndvi-export/internal/adapter/earthengine"
	httpadapter "github.com/couchcryptid/ndvi-export/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/ndvi-export/internal/adapter/kafka"
	"github.com/couchcryptid/ndvi-export/internal/adapter/sqlite"
	"github.com/couchcryptid/ndvi-export/internal/config"
	"github.com/couchcryptid/ndvi-export/internal/dispatch"
	"github.com/couchcryptid/ndvi-export/internal/monitor"
	"github.com/couchcryptid/ndvi-export/internal/observability"
	"github.com/couchcryptid/ndvi-export/internal/session"
	"github.com/jonboulle/clockwork"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ledger, err := sqlite.Open(ctx, cfg.LedgerPath)
	if err != nil {
		logger.Error("failed to open ledger", "path", cfg.LedgerPath, "error", err)
		os.Exit(1)
	}

	// Task events are feature-flagged via KAFKA_BROKERS.
	var (
		publisher dispatch.EventPublisher
		writer    *kafkaadapter.Writer
	)
	if cfg.EventsEnabled() {
		writer = kafkaadapter.NewWriter(cfg, logger)
		publisher = writer
		logger.Info("task events enabled", "topic", cfg.KafkaTopic)
	} else {
		logger.Info("task events disabled")
	}

	clock := clockwork.NewRealClock()
	sessions := session.NewManager(cfg.CredentialsPath, cfg.EEProject, clock, logger)
	client := earthengine.NewClient(cfg.EEBaseURL, cfg.EETimeout, metrics, logger)
	dispatcher := dispatch.New(client, ledger, publisher, metrics, logger)
	m := monitor.New(sessions, ledger, dispatcher, logger, metrics, clock, cfg.PollInterval)

	srv := httpadapter.NewServer(cfg.HTTPAddr, m, ledger, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start poll loop.
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := m.Run(ctx); err != nil {
			logger.Error("monitor error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("monitor did not stop before shutdown timeout")
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}
	if err := ledger.Close(); err != nil {
		logger.Error("ledger close error", "error", err)
	}

	logger.Info("shutdown complete")
}
