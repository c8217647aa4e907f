package models

import (
	"fmt"
	"time"
)

// Category is the business classification attached to an email
type Category string

const (
	CategoryInterested    Category = "Interested"
	CategoryMeetingBooked Category = "Meeting Booked"
	CategoryNotInterested Category = "Not Interested"
	CategorySpam          Category = "Spam"
	CategoryOutOfOffice   Category = "Out of Office"

	// CategoryUncategorized is only written by the index when classification was skipped
	CategoryUncategorized Category = "Uncategorized"
)

// Categories lists the closed taxonomy in a stable order
var Categories = []Category{
	CategoryInterested,
	CategoryMeetingBooked,
	CategoryNotInterested,
	CategorySpam,
	CategoryOutOfOffice,
}

// Valid reports whether c is one of the five taxonomy labels
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// ParseCategory converts a raw label into a Category
func ParseCategory(raw string) (Category, error) {
	c := Category(raw)
	if !c.Valid() {
		return "", fmt.Errorf("unknown category %q", raw)
	}
	return c, nil
}

// Folder is the normalized logical folder of an email
type Folder string

const (
	FolderInbox Folder = "INBOX"
	FolderSent  Folder = "SENT"
	FolderDraft Folder = "DRAFT"
	FolderSpam  Folder = "SPAM"
)

// Valid reports whether f is one of the normalized folders
func (f Folder) Valid() bool {
	switch f {
	case FolderInbox, FolderSent, FolderDraft, FolderSpam:
		return true
	}
	return false
}

// EmailAccount is the immutable configuration of one mailbox
type EmailAccount struct {
	ID       string `toml:"id" json:"id"`
	Email    string `toml:"email" json:"email"`
	Name     string `toml:"name" json:"name,omitempty"`
	Host     string `toml:"host" json:"host"`
	Port     int    `toml:"port" json:"port"`
	User     string `toml:"user" json:"user"`
	Password string `toml:"password" json:"-"`
	TLS      bool   `toml:"tls" json:"tls"`
}

// Address returns host:port for dialing
func (a EmailAccount) Address() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// Attachment holds one decoded attachment; attachments never reach the index
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Size        int    `json:"size"`
	Content     []byte `json:"-"`
}

// Email is the canonical message record flowing through the pipeline
type Email struct {
	ID             string       `json:"id"`
	AccountID      string       `json:"accountId"`
	Folder         Folder       `json:"folder"`
	Subject        string       `json:"subject"`
	From           string       `json:"from"`
	To             []string     `json:"to"`
	Cc             []string     `json:"cc,omitempty"`
	Bcc            []string     `json:"bcc,omitempty"`
	Date           time.Time    `json:"date"`
	TextBody       string       `json:"textBody,omitempty"`
	HTMLBody       string       `json:"htmlBody,omitempty"`
	Attachments    []Attachment `json:"attachments,omitempty"`
	Category       Category     `json:"category,omitempty"`
	AISummary      string       `json:"aiSummary,omitempty"`
	SuggestedReply string       `json:"suggestedReply,omitempty"`
	Flags          []string     `json:"flags,omitempty"`
}

// DocumentKey is the storage key of an email: account id and transport id joined
func DocumentKey(accountID, id string) string {
	return accountID + "-" + id
}

// Key returns the storage key of this email
func (e *Email) Key() string {
	return DocumentKey(e.AccountID, e.ID)
}

// SearchFilters narrows an index search; empty fields are ignored
type SearchFilters struct {
	Query     string     `json:"query,omitempty"`
	AccountID string     `json:"accountId,omitempty"`
	Folder    Folder     `json:"folder,omitempty"`
	Category  Category   `json:"category,omitempty"`
	From      string     `json:"from,omitempty"`
	To        string     `json:"to,omitempty"`
	ID        string     `json:"id,omitempty"`
	StartDate *time.Time `json:"startDate,omitempty"`
	EndDate   *time.Time `json:"endDate,omitempty"`
}
