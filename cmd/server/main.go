package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"mailpipe/internal/app"
	"mailpipe/internal/config"
	"mailpipe/internal/handlers"
	"mailpipe/internal/k8s"
	"mailpipe/internal/pipeline"
	"mailpipe/internal/server"
)

// waitForTunnel waits for an optional database tunnel sidecar to signal readiness
func waitForTunnel(logger *zerolog.Logger) {
	tunnelReadyFile := os.Getenv("TUNNEL_READY_FILE")
	if tunnelReadyFile == "" {
		return
	}
	maxWait := 60 * time.Second
	checkInterval := 1 * time.Second

	logger.Info().Str("file", tunnelReadyFile).Msg("Waiting for database tunnel to be ready...")

	start := time.Now()
	for {
		if _, err := os.Stat(tunnelReadyFile); err == nil {
			logger.Info().Msg("Database tunnel is ready")
			return
		}

		if time.Since(start) > maxWait {
			logger.Warn().Msg("Timed out waiting for database tunnel, proceeding anyway")
			return
		}

		time.Sleep(checkInterval)
	}
}

func main() {
	cfg := config.Load()
	logger := cfg.SetupLogger()

	waitForTunnel(&logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize pipeline")
	}
	defer func() { _ = a.Close() }()

	sessions, err := a.Sessions(nil, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create mail sessions")
	}
	if len(sessions) == 0 {
		logger.Warn().Msg("No email accounts configured")
	}

	workers := make([]*pipeline.Worker, 0, len(sessions))
	for _, s := range sessions {
		workers = append(workers, pipeline.NewWorker(s, a.Coordinator, cfg.ReconnectDelay, logger))
	}
	manager := pipeline.NewManager(workers, logger)

	deps := server.Dependencies{
		Store:      a.Store,
		Pinger:     a.Store,
		Generator:  a.Classifier,
		Notifier:   a.Dispatcher,
		Dispatcher: a.Dispatcher,
		Accounts:   manager,
		Launchers: func() (handlers.JobLauncher, error) {
			client, err := k8s.NewClient(cfg.KubeNamespace)
			if err != nil {
				return nil, err
			}
			return client, nil
		},
	}
	if a.Analytics != nil {
		deps.Analytics = a.Analytics
	}

	srv := server.New(cfg, deps, logger)
	srv.Initialize()

	workersDone := make(chan struct{})
	go func() {
		manager.Run(ctx)
		close(workersDone)
	}()
	if cfg.ReplyCacheTTL > 0 {
		go srv.PurgeReplies(ctx, cfg.ReplyCacheTTL)
	}

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Server failed")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP shutdown failed")
	}

	select {
	case <-workersDone:
	case <-shutdownCtx.Done():
		logger.Warn().Msg("Timed out waiting for mail workers")
	}
}
