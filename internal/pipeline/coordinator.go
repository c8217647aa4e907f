// Package pipeline drives mail from IMAP sessions through classification into the
// index and the notification sinks.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"mailpipe/internal/analytics"
	"mailpipe/internal/emails"
	"mailpipe/internal/mail"
	"mailpipe/internal/models"
)

const (
	DefaultBatchSize = 10
	DefaultMaxFetch  = 200
)

// Session is the part of mail.Session the pipeline drives
type Session interface {
	AccountID() string
	Connect(ctx context.Context) error
	ListMessageIDs(ctx context.Context, folder string) ([]uint32, error)
	FetchMessages(ctx context.Context, ids []uint32, fn func(mail.RawMessage) error) error
	Idle(ctx context.Context) error
	Disconnect() error
}

// Categorizer never fails; it always returns a taxonomy label
type Categorizer interface {
	Categorize(ctx context.Context, email *models.Email) models.Category
}

// Indexer persists classified emails
type Indexer interface {
	Upsert(ctx context.Context, email *models.Email) error
}

// Notifier delivers Interested emails; it never fails
type Notifier interface {
	Notify(ctx context.Context, email *models.Email)
}

// Tracker receives pipeline counters
type Tracker interface {
	Record(eventType string, metadata map[string]interface{})
}

// Options bounds the work done per folder
type Options struct {
	Folders   []string
	BatchSize int
	MaxFetch  int
}

// Coordinator is stateless between calls and shared by all workers
type Coordinator struct {
	classifier Categorizer
	index      Indexer
	notifier   Notifier
	tracker    Tracker
	opts       Options
	logger     zerolog.Logger
}

// NewCoordinator wires the pipeline stages
func NewCoordinator(classifier Categorizer, index Indexer, notifier Notifier, opts Options, logger zerolog.Logger) *Coordinator {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.MaxFetch <= 0 {
		opts.MaxFetch = DefaultMaxFetch
	}
	if len(opts.Folders) == 0 {
		opts.Folders = []string{mail.DefaultFolder}
	}
	return &Coordinator{
		classifier: classifier,
		index:      index,
		notifier:   notifier,
		opts:       opts,
		logger:     logger,
	}
}

// WithTracker attaches an analytics tracker
func (c *Coordinator) WithTracker(t Tracker) *Coordinator {
	c.tracker = t
	return c
}

// Backfill syncs every configured folder in order. A missing or failing folder is
// skipped; only a dead session or a cancelled ctx stops the sweep.
func (c *Coordinator) Backfill(ctx context.Context, s Session) (int, error) {
	logger := c.logger.With().Str("account", s.AccountID()).Logger()
	total := 0

	for _, folder := range c.opts.Folders {
		n, err := c.SyncFolder(ctx, s, folder)
		total += n
		if err == nil {
			continue
		}
		if isFatal(ctx, err) {
			return total, err
		}
		if mail.IsFolderNotFound(err) {
			logger.Warn().Str("folder", folder).Msg("Folder not found, skipping")
			continue
		}
		logger.Error().Err(err).Str("folder", folder).Msg("Folder sync failed, continuing with next folder")
	}

	logger.Info().Int("indexed", total).Msg("Backfill complete")
	return total, nil
}

// BackfillAccount connects s, runs one Backfill and disconnects
func (c *Coordinator) BackfillAccount(ctx context.Context, s Session) (int, error) {
	if err := s.Connect(ctx); err != nil {
		return 0, err
	}
	defer func() { _ = s.Disconnect() }()
	return c.Backfill(ctx, s)
}

// SyncFolder processes the most recent MaxFetch messages of folder in sequential
// batches. Messages inside a batch run concurrently.
func (c *Coordinator) SyncFolder(ctx context.Context, s Session, folder string) (int, error) {
	normalized := mail.MapFolder(folder)
	logger := c.logger.With().Str("account", s.AccountID()).Str("folder", folder).Logger()

	ids, err := s.ListMessageIDs(ctx, folder)
	if err != nil {
		return 0, err
	}
	if len(ids) > c.opts.MaxFetch {
		ids = ids[len(ids)-c.opts.MaxFetch:]
	}
	logger.Info().Int("messages", len(ids)).Msg("Syncing folder")

	indexed := 0
	for start := 0; start < len(ids); start += c.opts.BatchSize {
		end := start + c.opts.BatchSize
		if end > len(ids) {
			end = len(ids)
		}

		n, err := c.processBatch(ctx, s, ids[start:end], normalized)
		indexed += n
		if err != nil {
			return indexed, err
		}
	}

	c.record(analytics.EventBackfillCycle, map[string]interface{}{
		"account_id": s.AccountID(),
		"folder":     string(normalized),
		"indexed":    indexed,
	})
	return indexed, nil
}

// processBatch streams one batch and waits for every message in it to finish
func (c *Coordinator) processBatch(ctx context.Context, s Session, ids []uint32, folder models.Folder) (int, error) {
	var b batch
	err := s.FetchMessages(ctx, ids, func(raw mail.RawMessage) error {
		c.start(ctx, &b, raw, s.AccountID(), folder)
		return nil
	})
	return b.wait(), err
}

// Ingest runs already fetched messages, such as an imported archive, through the
// same classify, index and notify path in sequential batches
func (c *Coordinator) Ingest(ctx context.Context, accountID string, folder models.Folder, raws []mail.RawMessage) int {
	indexed := 0
	for start := 0; start < len(raws); start += c.opts.BatchSize {
		if ctx.Err() != nil {
			break
		}
		end := start + c.opts.BatchSize
		if end > len(raws) {
			end = len(raws)
		}

		var b batch
		for _, raw := range raws[start:end] {
			c.start(ctx, &b, raw, accountID, folder)
		}
		indexed += b.wait()
	}
	return indexed
}

// batch tracks the in-flight messages of one batch
type batch struct {
	wg      sync.WaitGroup
	indexed atomic.Int64
}

func (b *batch) wait() int {
	b.wg.Wait()
	return int(b.indexed.Load())
}

// start decodes raw and processes it on its own goroutine; undecodable
// messages are dropped
func (c *Coordinator) start(ctx context.Context, b *batch, raw mail.RawMessage, accountID string, folder models.Folder) {
	email, ok := emails.Decode(raw, accountID, folder)
	if !ok {
		c.logger.Debug().Str("account", accountID).Uint32("uid", raw.UID).Msg("Dropping incomplete message")
		return
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		if c.process(ctx, email) {
			b.indexed.Add(1)
		}
	}()
}

// process runs classify, index and notify for one message. It reports whether
// the email reached the index.
func (c *Coordinator) process(ctx context.Context, email *models.Email) bool {
	email.Category = c.classifier.Categorize(ctx, email)

	if err := c.index.Upsert(ctx, email); err != nil {
		c.logger.Error().Err(err).Str("doc_id", email.Key()).Msg("Failed to index email")
		c.record(analytics.EventIndexFailed, map[string]interface{}{"account_id": email.AccountID})
		return false
	}
	c.record(analytics.EventEmailIndexed, map[string]interface{}{
		"account_id": email.AccountID,
		"folder":     string(email.Folder),
		"category":   string(email.Category),
	})

	if email.Category == models.CategoryInterested {
		c.notifier.Notify(ctx, email)
	}
	return true
}

func (c *Coordinator) record(event string, metadata map[string]interface{}) {
	if c.tracker != nil {
		c.tracker.Record(event, metadata)
	}
}

// isFatal reports errors that end the current connect cycle
func isFatal(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	return mail.IsConnectionError(err) ||
		errors.Is(err, mail.ErrSessionClosed) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
