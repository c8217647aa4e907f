package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"mailpipe/internal/emails"
	"mailpipe/internal/models"
)

const (
	slackPreviewLength   = 150
	webhookPreviewLength = 200

	// EventInterestedEmail is the event name of the generic webhook envelope
	EventInterestedEmail = "new_interested_email"
)

// SlackSink posts a block message to a Slack incoming webhook
type SlackSink struct {
	url    string
	client *http.Client
}

// NewSlackSink creates a sink for an incoming webhook URL
func NewSlackSink(url string, client *http.Client) *SlackSink {
	if client == nil {
		client = http.DefaultClient
	}
	return &SlackSink{url: url, client: client}
}

// Name identifies the sink in logs and analytics
func (s *SlackSink) Name() string { return "slack" }

type slackText struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

type slackBlock struct {
	Type     string      `json:"type"`
	Text     *slackText  `json:"text,omitempty"`
	Fields   []slackText `json:"fields,omitempty"`
	Elements []slackText `json:"elements,omitempty"`
}

type slackMessage struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks"`
}

func slackMessageFor(email *models.Email) slackMessage {
	return slackMessage{
		Text: fmt.Sprintf("New interested email from %s", email.From),
		Blocks: []slackBlock{
			{
				Type: "header",
				Text: &slackText{Type: "plain_text", Text: "🎯 New Interested Email Received!", Emoji: true},
			},
			{
				Type: "section",
				Fields: []slackText{
					{Type: "mrkdwn", Text: "*From:*\n" + email.From},
					{Type: "mrkdwn", Text: "*Subject:*\n" + email.Subject},
				},
			},
			{
				Type: "section",
				Text: &slackText{Type: "mrkdwn", Text: "*Preview:*\n" + emails.Preview(email, slackPreviewLength) + "..."},
			},
			{
				Type: "context",
				Elements: []slackText{
					{Type: "mrkdwn", Text: "📅 Received: " + email.Date.Format("Jan 2, 2006 3:04 PM MST")},
				},
			},
		},
	}
}

// Send posts the block message
func (s *SlackSink) Send(ctx context.Context, email *models.Email) error {
	return postJSON(ctx, s.client, s.url, slackMessageFor(email))
}

// WebhookSink posts a JSON envelope to an arbitrary HTTP endpoint
type WebhookSink struct {
	url    string
	client *http.Client
	now    func() time.Time
}

// NewWebhookSink creates a sink for url
func NewWebhookSink(url string, client *http.Client) *WebhookSink {
	if client == nil {
		client = http.DefaultClient
	}
	return &WebhookSink{url: url, client: client, now: time.Now}
}

// Name identifies the sink in logs and analytics
func (w *WebhookSink) Name() string { return "webhook" }

// WebhookEmail is the email part of the webhook envelope
type WebhookEmail struct {
	ID        string          `json:"id"`
	AccountID string          `json:"accountId"`
	From      string          `json:"from"`
	Subject   string          `json:"subject"`
	Date      time.Time       `json:"date"`
	Category  models.Category `json:"category"`
	Preview   string          `json:"preview"`
}

// WebhookPayload is the body posted by WebhookSink
type WebhookPayload struct {
	Event     string       `json:"event"`
	Email     WebhookEmail `json:"email"`
	Timestamp time.Time    `json:"timestamp"`
}

// Send posts the envelope
func (w *WebhookSink) Send(ctx context.Context, email *models.Email) error {
	payload := WebhookPayload{
		Event: EventInterestedEmail,
		Email: WebhookEmail{
			ID:        email.ID,
			AccountID: email.AccountID,
			From:      email.From,
			Subject:   email.Subject,
			Date:      email.Date,
			Category:  email.Category,
			Preview:   emails.Preview(email, webhookPreviewLength),
		},
		Timestamp: w.now().UTC(),
	}
	return postJSON(ctx, w.client, w.url, payload)
}

func postJSON(ctx context.Context, client *http.Client, url string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
