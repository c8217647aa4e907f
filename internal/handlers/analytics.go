package handlers

import (
	"context"
	"fmt"
	"net/http"

	"mailpipe/internal/models"

	"github.com/labstack/echo/v4"
)

// SummaryProvider aggregates pipeline counters
type SummaryProvider interface {
	GetSummary(ctx context.Context, period string) (*models.AnalyticsSummary, error)
	GetDailyReport(ctx context.Context) (*models.AnalyticsSummary, error)
}

// AnalyticsHandler returns analytics summary for a given period
// @Summary Get analytics summary
// @Description Get pipeline counters for a specified time period (today, yesterday, last_7_days, last_30_days)
// @Tags analytics
// @Accept json
// @Produce json
// @Param period query string false "Time period (today, yesterday, last_7_days, last_30_days)" default(yesterday)
// @Success 200 {object} models.AnalyticsResponse
// @Failure 500 {object} models.AnalyticsResponse
// @Router /api/analytics [get]
func AnalyticsHandler(analyticsService SummaryProvider) echo.HandlerFunc {
	return func(c echo.Context) error {
		period := c.QueryParam("period")
		if period == "" {
			period = "yesterday"
		}

		fmt.Printf("[ANALYTICS] Fetching analytics summary for period: %s\n", period)

		summary, err := analyticsService.GetSummary(c.Request().Context(), period)
		if err != nil {
			fmt.Printf("[ANALYTICS] ERROR: Failed to get analytics summary: %v\n", err)
			return c.JSON(http.StatusInternalServerError, models.AnalyticsResponse{
				Success: false,
				Error:   fmt.Sprintf("Failed to get analytics summary: %v", err),
			})
		}

		return c.JSON(http.StatusOK, models.AnalyticsResponse{
			Success: true,
			Summary: summary,
		})
	}
}

// DailyReportHandler returns the previous day's counters
// @Summary Get daily analytics report
// @Description Get pipeline counters for the previous day
// @Tags analytics
// @Accept json
// @Produce json
// @Success 200 {object} models.AnalyticsResponse
// @Failure 500 {object} models.AnalyticsResponse
// @Router /api/analytics/daily-report [get]
func DailyReportHandler(analyticsService SummaryProvider) echo.HandlerFunc {
	return func(c echo.Context) error {
		summary, err := analyticsService.GetDailyReport(c.Request().Context())
		if err != nil {
			fmt.Printf("[ANALYTICS] ERROR: Failed to generate daily report: %v\n", err)
			return c.JSON(http.StatusInternalServerError, models.AnalyticsResponse{
				Success: false,
				Error:   fmt.Sprintf("Failed to generate daily report: %v", err),
			})
		}

		fmt.Printf("[ANALYTICS] Daily report: indexed=%d, failed=%d, ai=%d, fallback=%d, notified=%d\n",
			summary.EmailsIndexed,
			summary.IndexFailures,
			summary.ClassifiedByAI,
			summary.ClassifiedByFallback,
			summary.NotificationsSent,
		)

		return c.JSON(http.StatusOK, models.AnalyticsResponse{
			Success: true,
			Summary: summary,
		})
	}
}
