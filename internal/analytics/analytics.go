package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"mailpipe/internal/database"
	"mailpipe/internal/models"
)

// EventType constants for tracking different events
const (
	EventEmailIndexed       = "email_indexed"
	EventIndexFailed        = "index_failed"
	EventClassifiedAI       = "classified_ai"
	EventClassifiedFallback = "classified_fallback"
	EventNotificationSent   = "notification_sent"
	EventNotificationFailed = "notification_failed"
	EventBackfillCycle      = "backfill_cycle"
)

// Period constants for analytics queries
const (
	PeriodToday      = "today"
	PeriodYesterday  = "yesterday"
	PeriodLast7Days  = "last_7_days"
	PeriodLast30Days = "last_30_days"
)

// IndexStats reports what is currently stored in the index
type IndexStats interface {
	Stats(ctx context.Context) (int, map[string]int, error)
}

const (
	queueSize    = 1024
	writeTimeout = 5 * time.Second
)

type event struct {
	eventType string
	metadata  map[string]interface{}
}

// Service handles analytics tracking and retrieval. Recorded events are written
// by a single background goroutine; Close flushes what is still queued.
type Service struct {
	writeClient *database.WriteClient
	index       IndexStats
	logger      zerolog.Logger
	now         func() time.Time

	events    chan event
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewService creates a new analytics service
func NewService(writeClient *database.WriteClient, logger zerolog.Logger) (*Service, error) {
	if writeClient == nil {
		return nil, fmt.Errorf("write client is required for analytics service")
	}

	service := &Service{
		writeClient: writeClient,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
		events:      make(chan event, queueSize),
		quit:        make(chan struct{}),
		done:        make(chan struct{}),
	}

	// Create analytics tables if they don't exist
	if err := service.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create analytics tables: %w", err)
	}

	go service.run()
	return service, nil
}

// WithIndexStats lets summaries include current index totals
func (s *Service) WithIndexStats(index IndexStats) *Service {
	s.index = index
	return s
}

func (s *Service) createTables() error {
	var queries []string
	if s.writeClient.IsPostgres() {
		queries = []string{
			`CREATE TABLE IF NOT EXISTS analytics_events (
				id SERIAL PRIMARY KEY,
				event_type VARCHAR(50) NOT NULL,
				count INT DEFAULT 1,
				metadata JSONB,
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			)`,
			`CREATE INDEX IF NOT EXISTS idx_analytics_event_type ON analytics_events(event_type)`,
			`CREATE INDEX IF NOT EXISTS idx_analytics_created_at ON analytics_events(created_at)`,
			`CREATE TABLE IF NOT EXISTS analytics_daily (
				id SERIAL PRIMARY KEY,
				day DATE NOT NULL,
				event_type VARCHAR(50) NOT NULL,
				total_count INT DEFAULT 0,
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				UNIQUE(day, event_type)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_analytics_daily_day ON analytics_daily(day)`,
		}
	} else {
		queries = []string{
			`CREATE TABLE IF NOT EXISTS analytics_events (
				id BIGINT AUTO_INCREMENT PRIMARY KEY,
				event_type VARCHAR(50) NOT NULL,
				count INT DEFAULT 1,
				metadata JSON NULL,
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				INDEX idx_analytics_event_type (event_type),
				INDEX idx_analytics_created_at (created_at)
			)`,
			`CREATE TABLE IF NOT EXISTS analytics_daily (
				id BIGINT AUTO_INCREMENT PRIMARY KEY,
				day DATE NOT NULL,
				event_type VARCHAR(50) NOT NULL,
				total_count INT DEFAULT 0,
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				UNIQUE KEY uniq_analytics_daily (day, event_type)
			)`,
		}
	}

	for _, query := range queries {
		if _, err := s.writeClient.ExecuteWriteQuery(context.Background(), query); err != nil {
			// Ignore "already exists" errors
			s.logger.Debug().Err(err).Msg("Analytics schema statement skipped")
			continue
		}
	}

	return nil
}

// TrackEvent writes an analytics event and its daily aggregate synchronously
func (s *Service) TrackEvent(eventType string, count int, metadata map[string]interface{}) error {
	var metadataJSON *string
	if metadata != nil {
		jsonBytes, err := json.Marshal(metadata)
		if err == nil {
			str := string(jsonBytes)
			metadataJSON = &str
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	// Insert event
	query := `INSERT INTO analytics_events (event_type, count, metadata) VALUES (?, ?, ?)`
	_, err := s.writeClient.ExecuteWriteQuery(ctx, query, eventType, count, metadataJSON)
	if err != nil {
		return fmt.Errorf("failed to track event: %w", err)
	}

	// Update daily aggregate
	today := s.now().Format("2006-01-02")
	aggregateQuery := s.writeClient.Upsert("analytics_daily", "day, event_type",
		[]string{"day", "event_type", "total_count"},
		[]database.Assignment{
			{Column: "total_count", Expr: "OLD(total_count) + NEW(total_count)"},
			{Column: "updated_at", Expr: "CURRENT_TIMESTAMP"},
		})
	_, err = s.writeClient.ExecuteWriteQuery(ctx, aggregateQuery, today, eventType, count)
	if err != nil {
		fmt.Printf("[ANALYTICS] Warning: Failed to update daily aggregate: %v\n", err)
	}

	return nil
}

// Record queues a single occurrence and returns immediately. When the queue is
// full the event is dropped. Failures are logged, never returned. A nil Service
// is a no-op.
func (s *Service) Record(eventType string, metadata map[string]interface{}) {
	if s == nil {
		return
	}
	select {
	case <-s.quit:
		return
	default:
	}
	select {
	case s.events <- event{eventType: eventType, metadata: metadata}:
	default:
		s.logger.Warn().Str("event_type", eventType).Msg("Analytics queue full, dropping event")
	}
}

func (s *Service) run() {
	defer close(s.done)
	for {
		select {
		case e := <-s.events:
			s.write(e)
		case <-s.quit:
			for {
				select {
				case e := <-s.events:
					s.write(e)
				default:
					return
				}
			}
		}
	}
}

func (s *Service) write(e event) {
	if err := s.TrackEvent(e.eventType, 1, e.metadata); err != nil {
		s.logger.Warn().Err(err).Str("event_type", e.eventType).Msg("Failed to record analytics event")
	}
}

// Close stops the writer after flushing queued events. It is safe to call twice.
func (s *Service) Close() {
	if s == nil {
		return
	}
	s.closeOnce.Do(func() { close(s.quit) })
	<-s.done
}

// GetSummary retrieves analytics summary for a time period
func (s *Service) GetSummary(ctx context.Context, period string) (*models.AnalyticsSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	startDate, endDate, period := periodRange(s.now(), period)

	summary := &models.AnalyticsSummary{
		Period:            period,
		StartDate:         startDate,
		EndDate:           endDate,
		CategoryBreakdown: map[string]int{},
	}

	// Get event counts from daily aggregates
	query := `
		SELECT event_type, COALESCE(SUM(total_count), 0) AS total
		FROM analytics_daily
		WHERE day >= ? AND day <= ?
		GROUP BY event_type
	`

	var rows []struct {
		EventType string `db:"event_type"`
		Total     int    `db:"total"`
	}
	err := database.ExecuteReadOnlyQuery(ctx, s.writeClient.GetDB(), &rows, query,
		startDate.Format("2006-01-02"), endDate.Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("failed to get analytics summary: %w", err)
	}

	for _, row := range rows {
		switch row.EventType {
		case EventEmailIndexed:
			summary.EmailsIndexed = row.Total
		case EventIndexFailed:
			summary.IndexFailures = row.Total
		case EventClassifiedAI:
			summary.ClassifiedByAI = row.Total
		case EventClassifiedFallback:
			summary.ClassifiedByFallback = row.Total
		case EventNotificationSent:
			summary.NotificationsSent = row.Total
		case EventNotificationFailed:
			summary.NotificationsFailed = row.Total
		case EventBackfillCycle:
			summary.BackfillCycles = row.Total
		}
	}

	if s.index != nil {
		total, breakdown, err := s.index.Stats(ctx)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Failed to read index totals for analytics summary")
		} else {
			summary.TotalEmails = total
			summary.CategoryBreakdown = breakdown
		}
	}

	return summary, nil
}

// GetDailyReport returns yesterday's complete day
func (s *Service) GetDailyReport(ctx context.Context) (*models.AnalyticsSummary, error) {
	return s.GetSummary(ctx, PeriodYesterday)
}

// periodRange resolves a period name; unknown names mean today
func periodRange(now time.Time, period string) (time.Time, time.Time, string) {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	switch period {
	case PeriodYesterday:
		return midnight.AddDate(0, 0, -1), midnight.Add(-time.Second), period
	case PeriodLast7Days:
		return now.AddDate(0, 0, -7), now, period
	case PeriodLast30Days:
		return now.AddDate(0, 0, -30), now, period
	default:
		return midnight, now, PeriodToday
	}
}
