package models

import "time"

// AnalyticsSummary represents aggregated pipeline counters for a time period
type AnalyticsSummary struct {
	Period               string         `json:"period"`               // "today", "yesterday", "last_7_days", "last_30_days"
	StartDate            time.Time      `json:"start_date"`           // Period start
	EndDate              time.Time      `json:"end_date"`             // Period end
	EmailsIndexed        int            `json:"emails_indexed"`       // Successful index upserts
	IndexFailures        int            `json:"index_failures"`       // Upserts that failed and were dropped
	ClassifiedByAI       int            `json:"classified_ai"`        // Categories returned by the model backend
	ClassifiedByFallback int            `json:"classified_fallback"`  // Categories returned by the keyword rules
	NotificationsSent    int            `json:"notifications_sent"`   // Successful sink deliveries
	NotificationsFailed  int            `json:"notifications_failed"` // Failed sink deliveries
	BackfillCycles       int            `json:"backfill_cycles"`      // Completed folder sweeps
	TotalEmails          int            `json:"total_emails"`         // Documents currently in the index
	CategoryBreakdown    map[string]int `json:"category_breakdown"`   // Indexed documents per category
}

// AnalyticsResponse represents the API response for analytics
// @Description Analytics response payload
type AnalyticsResponse struct {
	Success bool              `json:"success" example:"true"`
	Summary *AnalyticsSummary `json:"summary,omitempty"`
	Error   string            `json:"error,omitempty" example:""`
}
