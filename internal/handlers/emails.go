package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"mailpipe/internal/cache"
	"mailpipe/internal/classifier"
	"mailpipe/internal/index"
	"mailpipe/internal/models"

	"github.com/labstack/echo/v4"
)

// EmailStore is the part of the index the API reads and patches
type EmailStore interface {
	Search(ctx context.Context, filters models.SearchFilters) ([]models.Email, error)
	Get(ctx context.Context, accountID, id string) (*models.Email, error)
	PatchCategory(ctx context.Context, accountID, id string, category models.Category) error
	UpdateAISummary(ctx context.Context, accountID, id, summary, suggestedReply string) error
}

// ReplyGenerator drafts replies to stored emails
type ReplyGenerator interface {
	GenerateReply(ctx context.Context, email *models.Email, extra string) (string, error)
}

// Notifier announces Interested emails
type Notifier interface {
	Notify(ctx context.Context, email *models.Email)
}

const dateOnly = "2006-01-02"

// SearchEmailsHandler searches the index
// @Summary Search emails
// @Description Free-text and filtered search over indexed emails, newest first, at most 500 results
// @Tags emails
// @Produce json
// @Param query query string false "Free text matched against subject, body, from and to"
// @Param accountId query string false "Account id"
// @Param folder query string false "INBOX, SENT, DRAFT or SPAM"
// @Param category query string false "Category label"
// @Param from query string false "Sender substring"
// @Param to query string false "Recipient substring"
// @Param startDate query string false "RFC3339 timestamp or YYYY-MM-DD"
// @Param endDate query string false "RFC3339 timestamp or YYYY-MM-DD"
// @Success 200 {array} models.Email
// @Failure 400 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /api/emails [get]
func SearchEmailsHandler(store EmailStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		filters, err := searchFilters(c)
		if err != nil {
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		}

		results, err := store.Search(c.Request().Context(), filters)
		if err != nil {
			fmt.Printf("[EMAILS] ERROR: search failed: %v\n", err)
			return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to search emails"})
		}
		if results == nil {
			results = []models.Email{}
		}

		return c.JSON(http.StatusOK, results)
	}
}

func searchFilters(c echo.Context) (models.SearchFilters, error) {
	filters := models.SearchFilters{
		Query:     strings.TrimSpace(c.QueryParam("query")),
		AccountID: c.QueryParam("accountId"),
		From:      c.QueryParam("from"),
		To:        c.QueryParam("to"),
	}

	if raw := c.QueryParam("folder"); raw != "" {
		folder := models.Folder(strings.ToUpper(raw))
		if !folder.Valid() {
			return filters, fmt.Errorf("Invalid folder: %s", raw)
		}
		filters.Folder = folder
	}

	if raw := c.QueryParam("category"); raw != "" {
		category := models.Category(raw)
		if !category.Valid() && category != models.CategoryUncategorized {
			return filters, fmt.Errorf("Invalid category: %s", raw)
		}
		filters.Category = category
	}

	if raw := c.QueryParam("startDate"); raw != "" {
		start, err := parseDate(raw, false)
		if err != nil {
			return filters, fmt.Errorf("Invalid startDate: %s", raw)
		}
		filters.StartDate = &start
	}
	if raw := c.QueryParam("endDate"); raw != "" {
		end, err := parseDate(raw, true)
		if err != nil {
			return filters, fmt.Errorf("Invalid endDate: %s", raw)
		}
		filters.EndDate = &end
	}

	return filters, nil
}

// parseDate accepts RFC3339 or a bare day; a bare end day covers the whole day
func parseDate(raw string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	day, err := time.Parse(dateOnly, raw)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		return day.Add(24*time.Hour - time.Nanosecond), nil
	}
	return day, nil
}

// GetEmailHandler returns one indexed email
// @Summary Get email
// @Tags emails
// @Produce json
// @Param accountId path string true "Account id"
// @Param id path string true "Email id"
// @Success 200 {object} models.Email
// @Failure 404 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /api/emails/{accountId}/{id} [get]
func GetEmailHandler(store EmailStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		email, err := store.Get(c.Request().Context(), c.Param("accountId"), c.Param("id"))
		if errors.Is(err, index.ErrNotFound) {
			return c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "Email not found"})
		}
		if err != nil {
			fmt.Printf("[EMAILS] ERROR: get failed: %v\n", err)
			return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to get email"})
		}
		return c.JSON(http.StatusOK, email)
	}
}

// UpdateCategoryHandler overrides the category of an email. Setting Interested
// re-reads the stored email and notifies.
// @Summary Update email category
// @Tags emails
// @Accept json
// @Produce json
// @Param id path string true "Email id"
// @Param request body models.CategoryUpdateRequest true "Account and category"
// @Success 200 {object} models.SuccessResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /api/emails/{id}/category [post]
func UpdateCategoryHandler(store EmailStore, notifier Notifier) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req models.CategoryUpdateRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		}
		if req.AccountID == "" {
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "accountId is required"})
		}

		category, err := models.ParseCategory(req.Category)
		if err != nil {
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid category"})
		}

		id := c.Param("id")
		ctx := c.Request().Context()
		if err := store.PatchCategory(ctx, req.AccountID, id, category); err != nil {
			fmt.Printf("[EMAILS] ERROR: category update failed for %s: %v\n", id, err)
			return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to update category"})
		}

		if category == models.CategoryInterested {
			email, err := store.Get(ctx, req.AccountID, id)
			if err != nil {
				fmt.Printf("[EMAILS] Warning: could not reload %s for notification: %v\n", id, err)
			} else {
				notifier.Notify(context.WithoutCancel(ctx), email)
			}
		}

		return c.JSON(http.StatusOK, models.SuccessResponse{Success: true})
	}
}

// SuggestReplyHandler drafts a reply for a stored email
// @Summary Suggest reply
// @Description Generates a reply with the AI backend. Replies are cached per account, email and context.
// @Tags emails
// @Accept json
// @Produce json
// @Param id path string true "Email id"
// @Param request body models.SuggestReplyRequest true "Account and extra context"
// @Success 200 {object} models.SuggestReplyResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Failure 503 {object} models.ErrorResponse
// @Router /api/emails/{id}/suggest-reply [post]
func SuggestReplyHandler(store EmailStore, generator ReplyGenerator, replies *cache.Cache[string]) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req models.SuggestReplyRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		}
		if req.AccountID == "" {
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "accountId is required"})
		}

		id := c.Param("id")
		key := replyCacheKey(req.AccountID, id, req.Context)
		if reply, ok := replies.Get(key); ok {
			return c.JSON(http.StatusOK, models.SuggestReplyResponse{Reply: reply})
		}

		ctx := c.Request().Context()
		email, err := store.Get(ctx, req.AccountID, id)
		if errors.Is(err, index.ErrNotFound) {
			return c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "Email not found"})
		}
		if err != nil {
			fmt.Printf("[SUGGEST_REPLY] ERROR: get failed for %s: %v\n", id, err)
			return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to generate reply suggestion"})
		}

		reply, err := generator.GenerateReply(ctx, email, req.Context)
		if errors.Is(err, classifier.ErrAIUnavailable) {
			return c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{Error: "AI backend is not configured"})
		}
		if err != nil {
			fmt.Printf("[SUGGEST_REPLY] ERROR: generation failed for %s: %v\n", id, err)
			return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to generate reply suggestion"})
		}

		replies.Set(key, reply)
		if err := store.UpdateAISummary(ctx, req.AccountID, id, "", reply); err != nil {
			fmt.Printf("[SUGGEST_REPLY] Warning: could not persist reply for %s: %v\n", id, err)
		}

		return c.JSON(http.StatusOK, models.SuggestReplyResponse{Reply: reply})
	}
}

func replyCacheKey(accountID, id, extra string) string {
	return accountID + "\x00" + id + "\x00" + extra
}
