package notify

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"mailpipe/internal/config"
	"mailpipe/internal/emails"
	"mailpipe/internal/models"
)

const (
	sendGridHost          = "https://api.sendgrid.com"
	sendGridEndpoint      = "/v3/mail/send"
	emailPreviewLength    = 500
	defaultNotifyFromName = "Mail Pipeline"
)

// SendGridSink emails a summary of the Interested message to a fixed recipient
type SendGridSink struct {
	apiKey string
	host   string
	from   string
	to     string
}

// NewSendGridSink creates an email sink
func NewSendGridSink(apiKey, from, to string) *SendGridSink {
	return &SendGridSink{apiKey: apiKey, host: sendGridHost, from: from, to: to}
}

// Name identifies the sink in logs and analytics
func (s *SendGridSink) Name() string { return "sendgrid" }

func (s *SendGridSink) message(email *models.Email) *mail.SGMailV3 {
	from := mail.NewEmail(defaultNotifyFromName, s.from)
	to := mail.NewEmail("", s.to)

	subject := "New Interested Email: " + email.Subject
	preview := emails.Preview(email, emailPreviewLength)
	received := email.Date.Format("Jan 2, 2006 3:04 PM MST")

	plain := fmt.Sprintf(`A new email was classified as Interested.

Account: %s
From: %s
Subject: %s
Received: %s

Preview:
%s`, email.AccountID, email.From, email.Subject, received, preview)

	htmlBody := fmt.Sprintf(`<h2>🎯 New Interested Email Received!</h2>
<p><strong>Account:</strong> %s<br><strong>From:</strong> %s<br><strong>Subject:</strong> %s<br><strong>Received:</strong> %s</p>
<p>%s</p>`,
		html.EscapeString(email.AccountID),
		html.EscapeString(email.From),
		html.EscapeString(email.Subject),
		html.EscapeString(received),
		strings.ReplaceAll(html.EscapeString(preview), "\n", "<br>"))

	return mail.NewSingleEmail(from, subject, to, plain, htmlBody)
}

// Send delivers the summary through the SendGrid v3 API
func (s *SendGridSink) Send(ctx context.Context, email *models.Email) error {
	if s.apiKey == "" {
		return fmt.Errorf("SendGrid API key not configured")
	}

	request := sendgrid.GetRequest(s.apiKey, sendGridEndpoint, s.host)
	request.Method = http.MethodPost
	request.Body = mail.GetRequestBody(s.message(email))

	response, err := sendgrid.MakeRequestWithContext(ctx, request)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	if response.StatusCode >= 400 {
		return fmt.Errorf("SendGrid API error: status %d, body: %s", response.StatusCode, response.Body)
	}

	return nil
}

// FromConfig builds every sink that has its settings present
func FromConfig(cfg *config.Config, logger zerolog.Logger) []Sink {
	client := &http.Client{Timeout: cfg.NotifyTimeout}

	var sinks []Sink
	if cfg.SlackWebhookURL != "" {
		sinks = append(sinks, NewSlackSink(cfg.SlackWebhookURL, client))
	} else {
		logger.Warn().Msg("Slack webhook URL not configured")
	}

	if cfg.ExternalWebhookURL != "" {
		sinks = append(sinks, NewWebhookSink(cfg.ExternalWebhookURL, client))
	} else {
		logger.Warn().Msg("External webhook URL not configured")
	}

	if cfg.SendGridAPIKey != "" && cfg.NotifyEmailTo != "" {
		sinks = append(sinks, NewSendGridSink(cfg.SendGridAPIKey, cfg.NotifyEmailFrom, cfg.NotifyEmailTo))
	}

	return sinks
}
