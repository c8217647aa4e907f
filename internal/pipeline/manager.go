package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// WorkerStatus describes one account worker
type WorkerStatus struct {
	AccountID string `json:"accountId"`
	Connected bool   `json:"connected"`
}

// Manager runs one worker per account
type Manager struct {
	workers []*Worker
	logger  zerolog.Logger
}

// NewManager groups workers
func NewManager(workers []*Worker, logger zerolog.Logger) *Manager {
	return &Manager{workers: workers, logger: logger}
}

// Run starts every worker and blocks until ctx ends and all have stopped
func (m *Manager) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range m.workers {
		wg.Add(1)
		go func(w *Worker) {
			defer wg.Done()
			w.Run(ctx)
		}(w)
	}
	m.logger.Info().Int("workers", len(m.workers)).Msg("Mail workers started")

	wg.Wait()
	m.logger.Info().Msg("Mail workers stopped")
}

// TriggerAll runs one backfill cycle on every connected worker concurrently and
// returns the number of emails indexed. Disconnected workers are skipped.
func (m *Manager) TriggerAll(ctx context.Context) (int, error) {
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
		errs  []error
	)

	for _, w := range m.workers {
		if !w.Connected() {
			m.logger.Warn().Str("account", w.AccountID()).Msg("Skipping disconnected account")
			continue
		}

		wg.Add(1)
		go func(w *Worker) {
			defer wg.Done()
			n, err := w.Trigger(ctx)

			mu.Lock()
			defer mu.Unlock()
			total += n
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", w.AccountID(), err))
			}
		}(w)
	}
	wg.Wait()

	return total, errors.Join(errs...)
}

// Status reports every worker's connection state
func (m *Manager) Status() []WorkerStatus {
	statuses := make([]WorkerStatus, 0, len(m.workers))
	for _, w := range m.workers {
		statuses = append(statuses, WorkerStatus{AccountID: w.AccountID(), Connected: w.Connected()})
	}
	return statuses
}
