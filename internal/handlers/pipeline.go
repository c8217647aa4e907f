package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"mailpipe/internal/models"
	"mailpipe/internal/notify"
	"mailpipe/internal/pipeline"

	"github.com/labstack/echo/v4"
)

// Accounts is the running set of account workers
type Accounts interface {
	TriggerAll(ctx context.Context) (int, error)
	Status() []pipeline.WorkerStatus
}

// Dispatcher sends an email to every sink and reports each outcome
type Dispatcher interface {
	Dispatch(ctx context.Context, email *models.Email) []notify.Result
}

// FetchEmailsHandler runs one backfill cycle on every connected account
// @Summary Fetch emails now
// @Description Runs a backfill sweep on every connected account and reports how many emails were indexed
// @Tags pipeline
// @Produce json
// @Success 200 {object} models.FetchEmailsResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /api/fetch-emails [post]
func FetchEmailsHandler(accounts Accounts) echo.HandlerFunc {
	return func(c echo.Context) error {
		fmt.Println("[FETCH_EMAILS] Manual fetch triggered")

		indexed, err := accounts.TriggerAll(c.Request().Context())
		if err != nil {
			fmt.Printf("[FETCH_EMAILS] ERROR: %v (indexed %d before failing)\n", err, indexed)
			return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to fetch emails"})
		}

		fmt.Printf("[FETCH_EMAILS] ✅ Indexed %d emails\n", indexed)
		return c.JSON(http.StatusOK, models.FetchEmailsResponse{Success: true, EmailsIndexed: indexed})
	}
}

// AccountsStatusHandler lists the account workers and whether each is connected
// @Summary Account status
// @Tags pipeline
// @Produce json
// @Success 200 {array} pipeline.WorkerStatus
// @Router /api/accounts [get]
func AccountsStatusHandler(accounts Accounts) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, accounts.Status())
	}
}

// TestWebhooksHandler sends a synthetic Interested email to every sink
// @Summary Test notification sinks
// @Tags pipeline
// @Produce json
// @Success 200 {object} models.TestWebhooksResponse
// @Router /api/test-webhooks [post]
func TestWebhooksHandler(dispatcher Dispatcher) echo.HandlerFunc {
	return func(c echo.Context) error {
		fmt.Println("[TEST_WEBHOOKS] Dispatching test notification")

		results := dispatcher.Dispatch(c.Request().Context(), testEmail(time.Now().UTC()))

		response := models.TestWebhooksResponse{Success: true, Sinks: make([]models.SinkResult, 0, len(results))}
		for _, r := range results {
			sr := models.SinkResult{Sink: r.Sink, Success: r.Err == nil}
			if r.Err != nil {
				sr.Error = r.Err.Error()
			}
			response.Sinks = append(response.Sinks, sr)
		}

		return c.JSON(http.StatusOK, response)
	}
}

func testEmail(now time.Time) *models.Email {
	return &models.Email{
		ID:        "test-123",
		AccountID: "test-account",
		Folder:    models.FolderInbox,
		Subject:   "Test Email",
		From:      "test@example.com",
		To:        []string{"recipient@example.com"},
		Date:      now,
		TextBody:  "This is a test email to verify the notification webhooks are working.",
		Category:  models.CategoryInterested,
	}
}
