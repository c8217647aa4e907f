package mail

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/emersion/go-imap/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailpipe/internal/models"
)

func TestMapFolder(t *testing.T) {
	tests := []struct {
		provider string
		expected models.Folder
	}{
		{"INBOX", models.FolderInbox},
		{"[Gmail]/Sent Mail", models.FolderSent},
		{"[Gmail]/Drafts", models.FolderDraft},
		{"[Gmail]/Spam", models.FolderSpam},
		{"[Gmail]/All Mail", models.FolderInbox},
		{"Archive", models.FolderInbox},
		{"", models.FolderInbox},
		{"[gmail]/spam", models.FolderInbox},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			folder := MapFolder(tt.provider)
			assert.Equal(t, tt.expected, folder)
			assert.True(t, folder.Valid())
		})
	}
}

func TestMapFolder_NoCollisions(t *testing.T) {
	seen := map[models.Folder]string{}
	for provider, folder := range providerFolders {
		if other, dup := seen[folder]; dup {
			t.Fatalf("%q and %q both map to %s", provider, other, folder)
		}
		seen[folder] = provider
		assert.NotEqual(t, models.FolderInbox, folder)
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "folder_open", StateFolderOpen.String())
}

func TestIsNonExistent(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "nonexistent response code",
			err:      &imap.Error{Type: imap.StatusResponseTypeNo, Code: imap.ResponseCodeNonExistent, Text: "gone"},
			expected: true,
		},
		{
			name:     "gmail text without code",
			err:      &imap.Error{Type: imap.StatusResponseTypeNo, Text: "Unknown Mailbox: [Gmail]/Spam (Failure)"},
			expected: true,
		},
		{
			name:     "dovecot text",
			err:      fmt.Errorf("select: %w", &imap.Error{Type: imap.StatusResponseTypeNo, Text: "Mailbox doesn't exist: Junk"}),
			expected: true,
		},
		{
			name:     "other NO reply",
			err:      &imap.Error{Type: imap.StatusResponseTypeNo, Text: "Permission denied"},
			expected: false,
		},
		{
			name:     "transport error",
			err:      errors.New("connection reset by peer"),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, isNonExistent(tt.err))
		})
	}
}

func TestErrorTypes(t *testing.T) {
	cause := errors.New("EOF")
	connErr := &ConnectionError{AccountID: "account1", Op: "fetch", Err: cause}

	assert.True(t, IsConnectionError(fmt.Errorf("cycle: %w", connErr)))
	assert.ErrorIs(t, connErr, cause)
	assert.Contains(t, connErr.Error(), "account1")
	assert.False(t, IsFolderNotFound(connErr))

	notFound := &FolderNotFoundError{Folder: "[Gmail]/Spam"}
	assert.True(t, IsFolderNotFound(fmt.Errorf("wrap: %w", notFound)))
	assert.False(t, IsConnectionError(notFound))
	assert.Contains(t, notFound.Error(), "[Gmail]/Spam")
}

func TestSession_OperationsRequireConnection(t *testing.T) {
	s := NewSession(models.EmailAccount{ID: "account1", Host: "localhost", Port: 1}, zerolog.Nop())
	ctx := context.Background()

	assert.Equal(t, StateDisconnected, s.State())
	assert.Equal(t, "account1", s.AccountID())

	_, err := s.ListMessageIDs(ctx, "INBOX")
	assert.ErrorIs(t, err, ErrSessionClosed)

	err = s.OpenFolder(ctx, "INBOX")
	assert.ErrorIs(t, err, ErrSessionClosed)

	err = s.FetchMessages(ctx, []uint32{1}, func(RawMessage) error { return nil })
	assert.ErrorIs(t, err, ErrSessionClosed)

	// nothing to fetch short-circuits before the connection check
	assert.NoError(t, s.FetchMessages(ctx, nil, nil))

	assert.NoError(t, s.Disconnect())
	assert.NoError(t, s.Disconnect())
}

func TestSession_ConnectRefused(t *testing.T) {
	// grab a free port and release it so the dial is refused
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	s := NewSession(models.EmailAccount{
		ID:   "account1",
		Host: "127.0.0.1",
		Port: port,
		User: "user",
	}, zerolog.Nop())

	err = s.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, IsConnectionError(err), "got %v", err)

	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, "dial", connErr.Op)
	assert.Equal(t, StateDisconnected, s.State())
}

func TestSession_IdleCancelledBeforeStart(t *testing.T) {
	s := NewSession(models.EmailAccount{ID: "account1"}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NoError(t, s.Idle(ctx))
	assert.Equal(t, StateDisconnected, s.State())
}

func TestSession_SignalCoalesces(t *testing.T) {
	s := NewSession(models.EmailAccount{ID: "account1"}, zerolog.Nop())
	s.signal()
	s.signal()
	s.signal()

	assert.Len(t, s.events, 1)
}
