package mail

import (
	"errors"
	"fmt"
	"strings"

	"github.com/emersion/go-imap/v2"
)

// ErrSessionClosed is returned when an operation needs a live connection
var ErrSessionClosed = errors.New("mail session is not connected")

// ConnectionError is fatal for the current connect cycle of one account
type ConnectionError struct {
	AccountID string
	Op        string
	Err       error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("imap %s failed for account %s: %v", e.Op, e.AccountID, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// FolderNotFoundError means the provider has no such mailbox. Callers skip the folder.
type FolderNotFoundError struct {
	Folder string
}

func (e *FolderNotFoundError) Error() string {
	return fmt.Sprintf("folder %q does not exist", e.Folder)
}

// IsConnectionError reports whether err ended the session
func IsConnectionError(err error) bool {
	var connErr *ConnectionError
	return errors.As(err, &connErr)
}

// IsFolderNotFound reports whether err is a missing folder
func IsFolderNotFound(err error) bool {
	var notFound *FolderNotFoundError
	return errors.As(err, &notFound)
}

// isNonExistent recognizes the provider's "no such mailbox" reply. Older servers
// omit the NONEXISTENT response code, so the text is checked too.
func isNonExistent(err error) bool {
	var imapErr *imap.Error
	if !errors.As(err, &imapErr) {
		return false
	}
	if imapErr.Code == imap.ResponseCodeNonExistent {
		return true
	}
	text := strings.ToLower(imapErr.Text)
	return strings.Contains(text, "no such mailbox") ||
		strings.Contains(text, "unknown mailbox") ||
		strings.Contains(text, "doesn't exist") ||
		strings.Contains(text, "does not exist")
}

// isStatusError reports a tagged NO/BAD reply. The connection survives those.
func isStatusError(err error) bool {
	var imapErr *imap.Error
	return errors.As(err, &imapErr)
}
