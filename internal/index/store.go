// Package index is the searchable system of record for ingested mail. Documents
// live in the SQL "emails" table keyed by accountId-id.
package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"mailpipe/internal/database"
	"mailpipe/internal/models"
)

// ErrNotFound is returned by Get when no document has the key
var ErrNotFound = errors.New("email not found")

// MaxResults caps every search. It is a safety bound, not pagination.
const MaxResults = 500

const selectColumns = "doc_id, id, account_id, folder, subject, from_addr, to_addrs, cc_addrs, bcc_addrs, " +
	"sent_at, text_body, html_body, category, ai_summary, suggested_reply, flags"

var upsertColumns = []string{
	"doc_id", "id", "account_id", "folder", "subject", "from_addr", "to_addrs", "cc_addrs", "bcc_addrs",
	"sent_at", "text_body", "html_body", "category", "ai_summary", "suggested_reply", "flags", "updated_at",
}

// on-demand AI fields survive re-ingestion unless a new value is supplied
var upsertSet = []database.Assignment{
	{Column: "id", Expr: "NEW(id)"},
	{Column: "account_id", Expr: "NEW(account_id)"},
	{Column: "folder", Expr: "NEW(folder)"},
	{Column: "subject", Expr: "NEW(subject)"},
	{Column: "from_addr", Expr: "NEW(from_addr)"},
	{Column: "to_addrs", Expr: "NEW(to_addrs)"},
	{Column: "cc_addrs", Expr: "NEW(cc_addrs)"},
	{Column: "bcc_addrs", Expr: "NEW(bcc_addrs)"},
	{Column: "sent_at", Expr: "NEW(sent_at)"},
	{Column: "text_body", Expr: "NEW(text_body)"},
	{Column: "html_body", Expr: "NEW(html_body)"},
	{Column: "category", Expr: "NEW(category)"},
	{Column: "ai_summary", Expr: "COALESCE(NULLIF(NEW(ai_summary), ''), OLD(ai_summary))"},
	{Column: "suggested_reply", Expr: "COALESCE(NULLIF(NEW(suggested_reply), ''), OLD(suggested_reply))"},
	{Column: "flags", Expr: "NEW(flags)"},
	{Column: "updated_at", Expr: "NEW(updated_at)"},
}

type emailRow struct {
	DocID          string    `db:"doc_id"`
	ID             string    `db:"id"`
	AccountID      string    `db:"account_id"`
	Folder         string    `db:"folder"`
	Subject        string    `db:"subject"`
	From           string    `db:"from_addr"`
	To             string    `db:"to_addrs"`
	Cc             string    `db:"cc_addrs"`
	Bcc            string    `db:"bcc_addrs"`
	SentAt         time.Time `db:"sent_at"`
	TextBody       string    `db:"text_body"`
	HTMLBody       string    `db:"html_body"`
	Category       string    `db:"category"`
	AISummary      string    `db:"ai_summary"`
	SuggestedReply string    `db:"suggested_reply"`
	Flags          string    `db:"flags"`
}

// Store is safe for concurrent use; every write is an idempotent keyed statement
type Store struct {
	wc      *database.WriteClient
	timeout time.Duration
	logger  zerolog.Logger
	now     func() time.Time
}

// NewStore creates an index over wc. timeout bounds each call.
func NewStore(wc *database.WriteClient, timeout time.Duration, logger zerolog.Logger) *Store {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Store{
		wc:      wc,
		timeout: timeout,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// EnsureSchema creates the emails table when absent. Safe to call on every start.
func (s *Store) EnsureSchema(ctx context.Context) error {
	var queries []string
	if s.wc.IsPostgres() {
		queries = []string{
			`CREATE TABLE IF NOT EXISTS emails (
				doc_id VARCHAR(255) PRIMARY KEY,
				id VARCHAR(64) NOT NULL,
				account_id VARCHAR(128) NOT NULL,
				folder VARCHAR(16) NOT NULL,
				subject TEXT NOT NULL,
				from_addr TEXT NOT NULL,
				to_addrs TEXT NOT NULL,
				cc_addrs TEXT NOT NULL,
				bcc_addrs TEXT NOT NULL,
				sent_at TIMESTAMP NOT NULL,
				text_body TEXT NOT NULL,
				html_body TEXT NOT NULL,
				category VARCHAR(32) NOT NULL,
				ai_summary TEXT NOT NULL,
				suggested_reply TEXT NOT NULL,
				flags TEXT NOT NULL,
				updated_at TIMESTAMP NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_emails_account_sent ON emails(account_id, sent_at)`,
			`CREATE INDEX IF NOT EXISTS idx_emails_category ON emails(category)`,
		}
	} else {
		queries = []string{
			`CREATE TABLE IF NOT EXISTS emails (
				doc_id VARCHAR(255) PRIMARY KEY,
				id VARCHAR(64) NOT NULL,
				account_id VARCHAR(128) NOT NULL,
				folder VARCHAR(16) NOT NULL,
				subject TEXT NOT NULL,
				from_addr TEXT NOT NULL,
				to_addrs TEXT NOT NULL,
				cc_addrs TEXT NOT NULL,
				bcc_addrs TEXT NOT NULL,
				sent_at DATETIME(6) NOT NULL,
				text_body LONGTEXT NOT NULL,
				html_body LONGTEXT NOT NULL,
				category VARCHAR(32) NOT NULL,
				ai_summary TEXT NOT NULL,
				suggested_reply TEXT NOT NULL,
				flags TEXT NOT NULL,
				updated_at DATETIME(6) NOT NULL,
				INDEX idx_emails_account_sent (account_id, sent_at),
				INDEX idx_emails_category (category)
			) DEFAULT CHARSET=utf8mb4`,
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.wc.ExecuteWriteQuery(ctx, queries[0]); err != nil {
		return fmt.Errorf("failed to create emails table: %w", err)
	}
	for _, query := range queries[1:] {
		if _, err := s.wc.ExecuteWriteQuery(ctx, query); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to create emails index")
		}
	}
	return nil
}

// Upsert writes the document for email, replacing any previous version.
// Attachments are never stored. An unclassified email is stored as Uncategorized.
func (s *Store) Upsert(ctx context.Context, email *models.Email) error {
	category := email.Category
	if category == "" {
		category = models.CategoryUncategorized
	} else if !category.Valid() {
		return fmt.Errorf("upsert %s: invalid category %q", email.Key(), category)
	}
	if !email.Folder.Valid() {
		return fmt.Errorf("upsert %s: invalid folder %q", email.Key(), email.Folder)
	}

	if len(email.Attachments) > 0 {
		s.logger.Debug().Str("doc_id", email.Key()).Int("attachments", len(email.Attachments)).Msg("Stripping attachments before indexing")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := s.wc.Upsert("emails", "doc_id", upsertColumns, upsertSet)
	_, err := s.wc.ExecuteWriteQuery(ctx, query,
		email.Key(),
		email.ID,
		email.AccountID,
		string(email.Folder),
		email.Subject,
		email.From,
		encodeList(email.To),
		encodeList(email.Cc),
		encodeList(email.Bcc),
		email.Date.UTC(),
		email.TextBody,
		email.HTMLBody,
		string(category),
		email.AISummary,
		email.SuggestedReply,
		encodeList(email.Flags),
		s.now(),
	)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", email.Key(), err)
	}
	return nil
}

// PatchCategory updates only the category. A document that is not there yet is
// not an error.
func (s *Store) PatchCategory(ctx context.Context, accountID, id string, category models.Category) error {
	if !category.Valid() {
		return fmt.Errorf("invalid category %q", category)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	key := models.DocumentKey(accountID, id)
	res, err := s.wc.ExecuteWriteQuery(ctx,
		`UPDATE emails SET category = ?, updated_at = ? WHERE doc_id = ?`,
		string(category), s.now(), key)
	if err != nil {
		return fmt.Errorf("patch category %s: %w", key, err)
	}

	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		s.logger.Debug().Str("doc_id", key).Msg("Category patch matched no document yet")
	}
	return nil
}

// UpdateAISummary stores on-demand AI output. Empty values keep what is stored.
func (s *Store) UpdateAISummary(ctx context.Context, accountID, id, summary, suggestedReply string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	key := models.DocumentKey(accountID, id)
	_, err := s.wc.ExecuteWriteQuery(ctx,
		`UPDATE emails SET ai_summary = COALESCE(NULLIF(?, ''), ai_summary),
			suggested_reply = COALESCE(NULLIF(?, ''), suggested_reply), updated_at = ?
		WHERE doc_id = ?`,
		summary, suggestedReply, s.now(), key)
	if err != nil {
		return fmt.Errorf("update ai summary %s: %w", key, err)
	}
	return nil
}

// Get returns one document or ErrNotFound
func (s *Store) Get(ctx context.Context, accountID, id string) (*models.Email, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var row emailRow
	err := database.ExecuteReadOnlyQuerySingle(ctx, s.wc.GetDB(), &row,
		`SELECT `+selectColumns+` FROM emails WHERE doc_id = ?`, models.DocumentKey(accountID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	email := row.toEmail()
	return &email, nil
}

// Search matches free text over subject, body, sender and recipients, narrowed by
// the exact filters, newest first, capped at MaxResults.
func (s *Store) Search(ctx context.Context, filters models.SearchFilters) ([]models.Email, error) {
	query, args := buildSearch(filters)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var rows []emailRow
	if err := database.ExecuteReadOnlyQuery(ctx, s.wc.GetDB(), &rows, query, args...); err != nil {
		return nil, fmt.Errorf("search emails: %w", err)
	}

	results := make([]models.Email, 0, len(rows))
	for _, row := range rows {
		results = append(results, row.toEmail())
	}
	return results, nil
}

func buildSearch(f models.SearchFilters) (string, []interface{}) {
	var (
		where []string
		args  []interface{}
	)

	if q := strings.TrimSpace(f.Query); q != "" {
		like := "%" + escapeLike(strings.ToLower(q)) + "%"
		where = append(where, "(LOWER(subject) LIKE ? OR LOWER(text_body) LIKE ? OR LOWER(from_addr) LIKE ? OR LOWER(to_addrs) LIKE ?)")
		args = append(args, like, like, like, like)
	}

	exact := []struct {
		column string
		value  string
	}{
		{"account_id", f.AccountID},
		{"folder", string(f.Folder)},
		{"category", string(f.Category)},
		{"id", f.ID},
	}
	for _, e := range exact {
		if e.value != "" {
			where = append(where, e.column+" = ?")
			args = append(args, e.value)
		}
	}

	if f.From != "" {
		where = append(where, "LOWER(from_addr) LIKE ?")
		args = append(args, "%"+escapeLike(strings.ToLower(f.From))+"%")
	}
	if f.To != "" {
		where = append(where, "LOWER(to_addrs) LIKE ?")
		args = append(args, "%"+escapeLike(strings.ToLower(f.To))+"%")
	}
	if f.StartDate != nil {
		where = append(where, "sent_at >= ?")
		args = append(args, f.StartDate.UTC())
	}
	if f.EndDate != nil {
		where = append(where, "sent_at <= ?")
		args = append(args, f.EndDate.UTC())
	}

	query := "SELECT " + selectColumns + " FROM emails"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY sent_at DESC LIMIT %d", MaxResults)
	return query, args
}

// Stats counts stored documents in total and per category
func (s *Store) Stats(ctx context.Context) (int, map[string]int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var rows []struct {
		Category string `db:"category"`
		Total    int    `db:"total"`
	}
	err := database.ExecuteReadOnlyQuery(ctx, s.wc.GetDB(), &rows,
		`SELECT category, COUNT(*) AS total FROM emails GROUP BY category`)
	if err != nil {
		return 0, nil, fmt.Errorf("count emails: %w", err)
	}

	total := 0
	breakdown := make(map[string]int, len(rows))
	for _, r := range rows {
		breakdown[r.Category] = r.Total
		total += r.Total
	}
	return total, breakdown, nil
}

// Ping checks the backing database
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return database.ExecuteReadOnlyPing(ctx, s.wc.GetDB())
}

func (r emailRow) toEmail() models.Email {
	return models.Email{
		ID:             r.ID,
		AccountID:      r.AccountID,
		Folder:         models.Folder(r.Folder),
		Subject:        r.Subject,
		From:           r.From,
		To:             decodeList(r.To),
		Cc:             decodeList(r.Cc),
		Bcc:            decodeList(r.Bcc),
		Date:           r.SentAt,
		TextBody:       r.TextBody,
		HTMLBody:       r.HTMLBody,
		Category:       models.Category(r.Category),
		AISummary:      r.AISummary,
		SuggestedReply: r.SuggestedReply,
		Flags:          decodeList(r.Flags),
	}
}

func encodeList(items []string) string {
	if len(items) == 0 {
		return "[]"
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func decodeList(raw string) []string {
	var items []string
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), &items); err != nil || len(items) == 0 {
		return nil
	}
	return items
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
