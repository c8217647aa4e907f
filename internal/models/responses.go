package models

import "time"

// HealthResponse represents a basic health check response
// @Description Health check response
type HealthResponse struct {
	Status    string    `json:"status" example:"healthy"`                 // Health status
	Timestamp time.Time `json:"timestamp" example:"2023-01-01T00:00:00Z"` // Timestamp of the check
	Version   string    `json:"version" example:"1.0.0"`                  // Application version
}

// DBHealthResponse represents a database health check response
// @Description Database health check response
type DBHealthResponse struct {
	Status    string        `json:"status" example:"healthy"`                   // Health status
	Timestamp time.Time     `json:"timestamp" example:"2023-01-01T00:00:00Z"`   // Timestamp of the check
	Connected bool          `json:"connected" example:"true"`                   // Database connection status
	Latency   time.Duration `json:"latency" swaggertype:"string" example:"1ms"` // Database ping latency
	Error     string        `json:"error,omitempty" example:""`                 // Error message if any
}

// ErrorResponse is returned by every endpoint on failure
// @Description Error payload
type ErrorResponse struct {
	Error string `json:"error" example:"Email not found"`
}

// CategoryUpdateRequest is the body of the category patch endpoint
// @Description Category patch payload
type CategoryUpdateRequest struct {
	AccountID string `json:"accountId" example:"account1"`
	Category  string `json:"category" example:"Interested"`
}

// SuggestReplyRequest is the body of the suggest-reply endpoint
// @Description Reply suggestion payload
type SuggestReplyRequest struct {
	AccountID string `json:"accountId" example:"account1"`
	Context   string `json:"context" example:"I am available on Tuesday"`
}

// SuggestReplyResponse carries a generated reply
// @Description Reply suggestion response
type SuggestReplyResponse struct {
	Reply string `json:"reply"`
}

// SuccessResponse is a bare acknowledgement
type SuccessResponse struct {
	Success bool `json:"success" example:"true"`
}

// FetchEmailsResponse reports a manually triggered fetch cycle
// @Description Manual fetch response
type FetchEmailsResponse struct {
	Success       bool `json:"success" example:"true"`
	EmailsIndexed int  `json:"emailsIndexed" example:"42"`
}

// SinkResult reports one notification sink delivery
type SinkResult struct {
	Sink    string `json:"sink" example:"slack"`
	Success bool   `json:"success" example:"true"`
	Error   string `json:"error,omitempty" example:""`
}

// TestWebhooksResponse reports a synthetic notification dispatch
// @Description Webhook test response
type TestWebhooksResponse struct {
	Success bool         `json:"success" example:"true"`
	Sinks   []SinkResult `json:"sinks"`
}

// BackfillJobRequest selects the accounts of a backfill Job; empty means all
// @Description Backfill job parameters
type BackfillJobRequest struct {
	Accounts []string `json:"accounts" example:"account1"`
}

// BackfillJobResponse reports a launched backfill Job
// @Description Backfill job response
type BackfillJobResponse struct {
	Success bool   `json:"success" example:"true"`
	Message string `json:"message,omitempty" example:"Backfill job triggered successfully"`
	JobName string `json:"job_name,omitempty" example:"mail-backfill-1709283600"`
	Error   string `json:"error,omitempty" example:""`
}
