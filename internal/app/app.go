// Package app wires the pipeline components shared by the server and the
// one-shot commands
package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"mailpipe/internal/analytics"
	"mailpipe/internal/classifier"
	"mailpipe/internal/config"
	"mailpipe/internal/database"
	"mailpipe/internal/index"
	"mailpipe/internal/mail"
	"mailpipe/internal/models"
	"mailpipe/internal/notify"
	"mailpipe/internal/openai"
	"mailpipe/internal/pipeline"
)

// App holds the wired pipeline
type App struct {
	WriteClient *database.WriteClient
	Store       *index.Store
	Analytics   *analytics.Service // nil when the analytics tables are unavailable
	Classifier  *classifier.Classifier
	Dispatcher  *notify.Dispatcher
	Coordinator *pipeline.Coordinator
	Accounts    []models.EmailAccount
}

// Build connects the index store and assembles the pipeline. The index is the
// system of record, so a database failure is returned.
func Build(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	logger.Info().Msg("Database connection established successfully")

	a := &App{WriteClient: database.NewWriteClient(db)}

	a.Store = index.NewStore(a.WriteClient, cfg.IndexTimeout, logger.With().Str("component", "index").Logger())
	if err := a.Store.EnsureSchema(ctx); err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("index schema: %w", err)
	}

	if svc, err := analytics.NewService(a.WriteClient, logger.With().Str("component", "analytics").Logger()); err != nil {
		logger.Warn().Err(err).Msg("Analytics disabled")
	} else {
		a.Analytics = svc.WithIndexStats(a.Store)
	}

	var backend classifier.Backend
	if client, err := openai.NewClient(cfg); err != nil {
		logger.Warn().Err(err).Msg("AI backend unavailable")
	} else {
		logger.Info().Strs("providers", client.Providers()).Str("model", client.Model()).Msg("AI backend configured")
		backend = client
	}
	a.Classifier = classifier.New(backend, classifier.Options{
		Timeout:   cfg.AITimeout,
		RateLimit: cfg.AIRateLimit,
	}, logger.With().Str("component", "classifier").Logger())

	notifyLogger := logger.With().Str("component", "notify").Logger()
	a.Dispatcher = notify.NewDispatcher(notify.FromConfig(cfg, notifyLogger), cfg.NotifyTimeout, notifyLogger)

	a.Coordinator = pipeline.NewCoordinator(a.Classifier, a.Store, a.Dispatcher, pipeline.Options{
		Folders:   cfg.Folders,
		BatchSize: cfg.BatchSize,
		MaxFetch:  cfg.MaxFetch,
	}, logger.With().Str("component", "pipeline").Logger())

	if a.Analytics != nil {
		a.Classifier.WithTracker(a.Analytics)
		a.Dispatcher.WithTracker(a.Analytics)
		a.Coordinator.WithTracker(a.Analytics)
	}

	a.Accounts, err = cfg.LoadAccounts()
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("accounts: %w", err)
	}

	return a, nil
}

// Sessions creates one IMAP session per configured account. A non-empty only
// list restricts the accounts; unknown ids are an error.
func (a *App) Sessions(only []string, logger zerolog.Logger) ([]*mail.Session, error) {
	accounts, err := SelectAccounts(a.Accounts, only)
	if err != nil {
		return nil, err
	}

	sessions := make([]*mail.Session, 0, len(accounts))
	for _, acc := range accounts {
		sessions = append(sessions, mail.NewSession(acc, logger))
	}
	return sessions, nil
}

// SelectAccounts filters accounts by id, keeping configuration order
func SelectAccounts(accounts []models.EmailAccount, only []string) ([]models.EmailAccount, error) {
	if len(only) == 0 {
		return accounts, nil
	}

	wanted := make(map[string]bool, len(only))
	for _, id := range only {
		wanted[id] = true
	}

	var selected []models.EmailAccount
	for _, acc := range accounts {
		if wanted[acc.ID] {
			selected = append(selected, acc)
			delete(wanted, acc.ID)
		}
	}
	if len(wanted) > 0 {
		missing := make([]string, 0, len(wanted))
		for _, id := range only {
			if wanted[id] {
				missing = append(missing, id)
				delete(wanted, id)
			}
		}
		return nil, fmt.Errorf("unknown accounts: %s", strings.Join(missing, ", "))
	}
	return selected, nil
}

// Close flushes queued analytics and releases the database connection
func (a *App) Close() error {
	a.Analytics.Close()
	return a.WriteClient.Close()
}
