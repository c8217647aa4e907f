package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"mailpipe/internal/mail"
)

const defaultReconnectDelay = time.Minute

type triggerResult struct {
	indexed int
	err     error
}

// Worker owns one account's session. Live new-mail events and manual triggers
// are served one at a time on that session.
type Worker struct {
	session        Session
	coord          *Coordinator
	reconnectDelay time.Duration
	logger         zerolog.Logger

	triggers chan chan triggerResult

	mu        sync.Mutex
	connected bool
}

// NewWorker creates a worker for session
func NewWorker(session Session, coord *Coordinator, reconnectDelay time.Duration, logger zerolog.Logger) *Worker {
	if reconnectDelay <= 0 {
		reconnectDelay = defaultReconnectDelay
	}
	return &Worker{
		session:        session,
		coord:          coord,
		reconnectDelay: reconnectDelay,
		logger:         logger.With().Str("account", session.AccountID()).Logger(),
		triggers:       make(chan chan triggerResult),
	}
}

// AccountID returns the account served by this worker
func (w *Worker) AccountID() string {
	return w.session.AccountID()
}

// Connected reports whether the worker holds a live session
func (w *Worker) Connected() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.connected
}

func (w *Worker) setConnected(v bool) {
	w.mu.Lock()
	w.connected = v
	w.mu.Unlock()
}

// Run connects, backfills and then serves live events until ctx ends. A dead
// session ends the connect cycle; a new one starts after the reconnect delay.
func (w *Worker) Run(ctx context.Context) {
	for {
		err := w.cycle(ctx)
		if ctx.Err() != nil {
			return
		}

		w.logger.Error().Err(err).Dur("retry_in", w.reconnectDelay).Msg("Mail session ended")
		select {
		case <-ctx.Done():
			return
		case <-time.After(w.reconnectDelay):
		}
	}
}

func (w *Worker) cycle(ctx context.Context) error {
	if err := w.session.Connect(ctx); err != nil {
		return err
	}
	w.setConnected(true)
	defer func() {
		w.setConnected(false)
		_ = w.session.Disconnect()
	}()

	if _, err := w.coord.Backfill(ctx, w.session); err != nil {
		return err
	}

	for {
		idleCtx, cancel := context.WithCancel(ctx)
		idleDone := make(chan error, 1)
		go func() { idleDone <- w.session.Idle(idleCtx) }()

		select {
		case reply := <-w.triggers:
			cancel()
			if err := <-idleDone; err != nil && isFatal(ctx, err) {
				reply <- triggerResult{err: err}
				return err
			}

			n, err := w.coord.Backfill(ctx, w.session)
			reply <- triggerResult{indexed: n, err: err}
			if err != nil {
				return err
			}

		case err := <-idleDone:
			cancel()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err != nil {
				if isFatal(ctx, err) {
					return err
				}
				w.logger.Warn().Err(err).Msg("Idle ended with an error")
			}

			// full bounded refetch of the default folder
			if _, err := w.coord.SyncFolder(ctx, w.session, mail.DefaultFolder); err != nil {
				if isFatal(ctx, err) {
					return err
				}
				w.logger.Error().Err(err).Msg("Live fetch failed")
			}
		}
	}
}

// Trigger asks the worker to run one backfill cycle and waits for its result
func (w *Worker) Trigger(ctx context.Context) (int, error) {
	if !w.Connected() {
		return 0, mail.ErrSessionClosed
	}

	reply := make(chan triggerResult, 1)
	select {
	case w.triggers <- reply:
	case <-ctx.Done():
		return 0, ctx.Err()
	}

	select {
	case res := <-reply:
		return res.indexed, res.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}
