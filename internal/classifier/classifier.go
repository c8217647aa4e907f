// Package classifier assigns one of the five business categories to an email.
// A generative model is asked first; any failure or unusable answer falls back to
// the keyword rules in Fallback, so Categorize never fails.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"mailpipe/internal/analytics"
	"mailpipe/internal/emails"
	"mailpipe/internal/models"
)

// ErrAIUnavailable is returned by on-demand operations when no backend is configured
var ErrAIUnavailable = errors.New("AI backend is not configured")

// Backend is a chat-completion model
type Backend interface {
	Complete(ctx context.Context, system, prompt string, maxTokens int) (string, error)
}

// Tracker receives classification outcome events
type Tracker interface {
	Record(eventType string, metadata map[string]interface{})
}

// Options tune backend usage
type Options struct {
	Timeout   time.Duration // per backend call
	RateLimit float64       // backend calls per second, shared by every caller
}

const (
	categorizeMaxTokens = 10
	replyMaxTokens      = 500
	promptBodyRunes     = 4000
)

const categorizeSystem = "You are an email triage assistant. You answer with exactly one category name."

const categorizeTemplate = `Analyze this email and categorize it into one of these categories: Interested, Meeting Booked, Not Interested, Spam, or Out of Office.

Email Subject: %s
From: %s
Content: %s

Rules for categorization:
- Interested: Shows positive interest in product/service, asks for more information, or wants to continue discussion
- Meeting Booked: Confirms a meeting, contains meeting details, or accepts calendar invite
- Not Interested: Clearly declines offer, shows no interest, or wants to end communication
- Spam: Unsolicited promotional content, suspicious links, or irrelevant mass mailings
- Out of Office: Automatic replies indicating absence, vacation, or unavailability

Respond with ONLY ONE of these exact category names, nothing else.`

const replySystem = "You write professional email replies."

const replyTemplate = `Generate a professional email reply to the following email.
Use the provided context for customization if available.

Original Email:
From: %s
Subject: %s
Content: %s

Additional Context: %s

Rules for the reply:
1. Keep it professional and courteous
2. Address the main points of the original email
3. Include a proper greeting and signature
4. Keep the tone consistent with the context
5. Be concise but complete
6. %s

Generate the reply:`

// Classifier is safe for concurrent use
type Classifier struct {
	backend Backend
	limiter *rate.Limiter
	timeout time.Duration
	logger  zerolog.Logger
	tracker Tracker
}

// New builds a Classifier. A nil backend selects fallback-only mode.
func New(backend Backend, opts Options, logger zerolog.Logger) *Classifier {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}

	if backend == nil {
		logger.Warn().Msg("No AI backend configured, using fallback categorization")
	}

	return &Classifier{
		backend: backend,
		limiter: rate.NewLimiter(limit, 1),
		timeout: opts.Timeout,
		logger:  logger,
	}
}

// WithTracker attaches an analytics tracker
func (c *Classifier) WithTracker(t Tracker) *Classifier {
	c.tracker = t
	return c
}

// HasBackend reports whether a model backend is configured
func (c *Classifier) HasBackend() bool {
	return c.backend != nil
}

// Categorize always returns one of models.Categories
func (c *Classifier) Categorize(ctx context.Context, email *models.Email) models.Category {
	body := emails.PlainText(email)

	if c.backend == nil {
		return c.fallback(email, body, "no_backend")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return c.fallback(email, body, "rate_limit")
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	prompt := fmt.Sprintf(categorizeTemplate, email.Subject, email.From, excerpt(body))
	answer, err := c.backend.Complete(callCtx, categorizeSystem, prompt, categorizeMaxTokens)
	if err != nil {
		c.logger.Warn().Err(err).Str("email_id", email.ID).Msg("AI categorization failed")
		return c.fallback(email, body, "backend_error")
	}

	category, ok := parseLabel(answer)
	if !ok {
		c.logger.Warn().Str("email_id", email.ID).Str("answer", answer).Msg("AI returned unknown category")
		return c.fallback(email, body, "invalid_answer")
	}

	c.track(analytics.EventClassifiedAI, category, "")
	return category
}

func (c *Classifier) fallback(email *models.Email, body, reason string) models.Category {
	category := Fallback(email.Subject, body, email.From, email.Folder)
	c.track(analytics.EventClassifiedFallback, category, reason)
	return category
}

func (c *Classifier) track(event string, category models.Category, reason string) {
	if c.tracker == nil {
		return
	}
	metadata := map[string]interface{}{"category": string(category)}
	if reason != "" {
		metadata["reason"] = reason
	}
	c.tracker.Record(event, metadata)
}

// GenerateReply drafts a reply. There is no fallback text: without a backend it
// returns ErrAIUnavailable.
func (c *Classifier) GenerateReply(ctx context.Context, email *models.Email, extra string) (string, error) {
	if c.backend == nil {
		return "", ErrAIUnavailable
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("generate reply: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body := emails.PlainText(email)
	lang := DetectLanguage(email.Subject + "\n" + body)
	prompt := fmt.Sprintf(replyTemplate, email.From, email.Subject, excerpt(body), extra, languageInstruction(lang))
	reply, err := c.backend.Complete(callCtx, replySystem, prompt, replyMaxTokens)
	if err != nil {
		return "", fmt.Errorf("generate reply: %w", err)
	}
	return strings.TrimSpace(reply), nil
}

// parseLabel accepts an exact label, ignoring case, surrounding quotes and a
// trailing period
func parseLabel(answer string) (models.Category, bool) {
	cleaned := strings.Trim(strings.TrimSpace(answer), "\"'`.*")
	cleaned = strings.TrimSpace(cleaned)
	for _, known := range models.Categories {
		if strings.EqualFold(cleaned, string(known)) {
			return known, true
		}
	}
	return "", false
}

func excerpt(body string) string {
	runes := []rune(body)
	if len(runes) <= promptBodyRunes {
		return body
	}
	return string(runes[:promptBodyRunes])
}
