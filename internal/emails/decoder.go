package emails

import (
	"bytes"
	"errors"
	"html"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/encoding/simplifiedchinese"

	imapmail "mailpipe/internal/mail"
	"mailpipe/internal/models"
)

func init() {
	// go-message's charset table lacks GBK, which Chinese providers still send
	charset.RegisterEncoding("gbk", simplifiedchinese.GBK)
}

var textPolicy = bluemonday.StrictPolicy()

// now is swapped by tests
var now = func() time.Time { return time.Now().UTC() }

// Decode turns a fetched message into an Email. Header fields that fail to parse
// are left empty. The second return is false when the message has no UID or no
// subject; such messages are dropped without error.
func Decode(raw imapmail.RawMessage, accountID string, folder models.Folder) (*models.Email, bool) {
	if raw.UID == 0 {
		return nil, false
	}

	mr, err := mail.CreateReader(io.MultiReader(bytes.NewReader(raw.Header), bytes.NewReader(raw.Body)))
	if mr == nil || (err != nil && !message.IsUnknownCharset(err)) {
		return nil, false
	}
	defer func() { _ = mr.Close() }()

	email := &models.Email{
		ID:        strconv.FormatUint(uint64(raw.UID), 10),
		AccountID: accountID,
		Folder:    folder,
		Flags:     raw.Flags,
	}
	decodeHeader(email, mr.Header)
	if email.Subject == "" {
		return nil, false
	}

	decodeBody(email, mr)
	return email, true
}

func decodeHeader(email *models.Email, h mail.Header) {
	if subject, err := h.Subject(); err == nil {
		email.Subject = strings.TrimSpace(subject)
	}

	if from, err := h.AddressList("From"); err == nil && len(from) > 0 {
		email.From = from[0].String()
	}
	email.To = addresses(h, "To")
	email.Cc = addresses(h, "Cc")
	email.Bcc = addresses(h, "Bcc")

	date, err := h.Date()
	if err != nil || date.IsZero() {
		date = now()
	}
	email.Date = date
}

// addresses accepts one recipient or many; a malformed list yields none
func addresses(h mail.Header, key string) []string {
	list, err := h.AddressList(key)
	if err != nil || len(list) == 0 {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, addr := range list {
		out = append(out, addr.String())
	}
	return out
}

// decodeBody keeps the first text/plain and text/html parts. Everything else is
// collected as an attachment.
func decodeBody(email *models.Email, mr *mail.Reader) {
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil && (part == nil || !message.IsUnknownCharset(err)) {
			return
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, params, _ := h.ContentType()
			body, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}

			switch {
			case contentType == "text/plain" && email.TextBody == "":
				email.TextBody = string(body)
			case contentType == "text/html" && email.HTMLBody == "":
				email.HTMLBody = string(body)
			case !strings.HasPrefix(contentType, "text/"):
				email.Attachments = append(email.Attachments, models.Attachment{
					Filename:    params["name"],
					ContentType: contentType,
					Size:        len(body),
					Content:     body,
				})
			}

		case *mail.AttachmentHeader:
			filename, _ := h.Filename()
			contentType, _, _ := h.ContentType()
			body, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}

			email.Attachments = append(email.Attachments, models.Attachment{
				Filename:    filename,
				ContentType: contentType,
				Size:        len(body),
				Content:     body,
			})
		}
	}
}

// PlainText returns the best available body as plain text: the text part when
// present, otherwise the HTML part with markup removed.
func PlainText(email *models.Email) string {
	if strings.TrimSpace(email.TextBody) != "" {
		return email.TextBody
	}
	if email.HTMLBody == "" {
		return ""
	}
	// pad tags so adjacent blocks do not run together once stripped
	stripped := html.UnescapeString(textPolicy.Sanitize(strings.ReplaceAll(email.HTMLBody, "<", " <")))
	return strings.Join(strings.Fields(stripped), " ")
}

// Preview returns at most limit runes of the best available body
func Preview(email *models.Email, limit int) string {
	text := []rune(PlainText(email))
	if len(text) <= limit {
		return string(text)
	}
	return string(text[:limit])
}
