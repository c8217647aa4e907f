package server

import (
	"context"
	"time"

	"mailpipe/internal/cache"
	"mailpipe/internal/config"
	"mailpipe/internal/handlers"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"
)

// Dependencies are the pipeline components exposed over HTTP. Store and
// Analytics may be nil when the database is unavailable.
type Dependencies struct {
	Store      handlers.EmailStore
	Pinger     handlers.Pinger
	Generator  handlers.ReplyGenerator
	Notifier   handlers.Notifier
	Dispatcher handlers.Dispatcher
	Accounts   handlers.Accounts
	Analytics  handlers.SummaryProvider
	Launchers  handlers.LauncherFactory
}

// Server represents the application server
type Server struct {
	echo    *echo.Echo
	deps    Dependencies
	config  *config.Config
	logger  zerolog.Logger
	replies *cache.Cache[string]
}

// New creates a new server instance
func New(cfg *config.Config, deps Dependencies, logger zerolog.Logger) *Server {
	return &Server{
		config:  cfg,
		deps:    deps,
		logger:  logger,
		replies: cache.New[string](cfg.ReplyCacheTTL),
	}
}

// zerologMiddleware creates a zerolog-based logging middleware for Echo
func (s *Server) zerologMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			req := c.Request()
			res := c.Response()

			s.logger.Info().
				Str("method", req.Method).
				Str("uri", req.RequestURI).
				Str("remote_ip", c.RealIP()).
				Int("status", res.Status).
				Int64("latency_ms", time.Since(start).Milliseconds()).
				Str("user_agent", req.UserAgent()).
				Msg("HTTP request")

			return err
		}
	}
}

// Initialize sets up the Echo framework with middleware and routes
func (s *Server) Initialize() {
	s.echo = echo.New()

	s.echo.Use(s.zerologMiddleware())
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.CORS())

	s.echo.HideBanner = true

	s.setupRoutes()
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() *echo.Echo {
	return s.echo
}

// setupRoutes configures all the application routes
func (s *Server) setupRoutes() {
	s.echo.GET("/swagger/*", echoSwagger.WrapHandler)

	// Health endpoints (keep at root level for monitoring)
	s.echo.GET("/healthz", handlers.HealthHandler(s.config.Version))
	s.echo.GET("/healthz/db", handlers.DBHealthHandler(s.deps.Pinger))

	api := s.echo.Group("/api")
	api.GET("/", handlers.RootHandler(s.config.Version))

	if s.deps.Store != nil {
		api.GET("/emails", handlers.SearchEmailsHandler(s.deps.Store))
		api.GET("/emails/:accountId/:id", handlers.GetEmailHandler(s.deps.Store))
		api.POST("/emails/:id/category", handlers.UpdateCategoryHandler(s.deps.Store, s.deps.Notifier))
		api.POST("/emails/:id/suggest-reply", handlers.SuggestReplyHandler(s.deps.Store, s.deps.Generator, s.replies))
	} else {
		s.logger.Warn().Msg("Index store unavailable, email endpoints disabled")
	}

	api.POST("/fetch-emails", handlers.FetchEmailsHandler(s.deps.Accounts))
	api.GET("/accounts", handlers.AccountsStatusHandler(s.deps.Accounts))
	api.POST("/test-webhooks", handlers.TestWebhooksHandler(s.deps.Dispatcher))

	if s.deps.Analytics != nil {
		api.GET("/analytics", handlers.AnalyticsHandler(s.deps.Analytics))
		api.GET("/analytics/daily-report", handlers.DailyReportHandler(s.deps.Analytics))
	}

	if s.deps.Launchers != nil {
		admin := api.Group("/admin")
		admin.POST("/backfill-job", handlers.TriggerBackfillJobHandler(s.deps.Launchers, s.config.BackfillImage))
		admin.GET("/backfill-job/:jobName", handlers.GetBackfillJobStatusHandler(s.deps.Launchers))
		admin.DELETE("/backfill-job/:jobName", handlers.DeleteBackfillJobHandler(s.deps.Launchers))
	}
}

// Start starts the HTTP server; it returns http.ErrServerClosed after Shutdown
func (s *Server) Start() error {
	s.logger.Info().Str("port", s.config.Port).Msg("Server starting")
	return s.echo.Start(":" + s.config.Port)
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// PurgeReplies drops expired reply suggestions until ctx ends
func (s *Server) PurgeReplies(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.replies.Purge(); n > 0 {
				s.logger.Debug().Int("purged", n).Msg("Expired reply suggestions removed")
			}
		}
	}
}
