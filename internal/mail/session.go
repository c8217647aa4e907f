package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"sync"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/charset"
	"github.com/rs/zerolog"

	"mailpipe/internal/models"
)

// State is the lifecycle position of a Session
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateReady
	StateFolderOpen
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateFolderOpen:
		return "folder_open"
	default:
		return "disconnected"
	}
}

// RawMessage is one fetched message before decoding
type RawMessage struct {
	UID    uint32
	Flags  []string
	Header []byte
	Body   []byte
}

var (
	headerSection = &imap.FetchItemBodySection{Specifier: imap.PartSpecifierHeader, Peek: true}
	textSection   = &imap.FetchItemBodySection{Specifier: imap.PartSpecifierText, Peek: true}
)

const (
	dialTimeout   = 30 * time.Second
	logoutTimeout = 5 * time.Second
)

// Session owns one IMAP connection for one account. It is driven by a single
// worker goroutine; Disconnect may be called from any goroutine.
type Session struct {
	account models.EmailAccount
	logger  zerolog.Logger

	mu     sync.Mutex
	state  State
	client *imapclient.Client
	folder string

	// new-mail wake-ups, coalesced
	events chan struct{}
}

// NewSession creates a disconnected session for account
func NewSession(account models.EmailAccount, logger zerolog.Logger) *Session {
	return &Session{
		account: account,
		logger:  logger.With().Str("account", account.ID).Logger(),
		state:   StateDisconnected,
		events:  make(chan struct{}, 1),
	}
}

// AccountID returns the owning account identifier
func (s *Session) AccountID() string {
	return s.account.ID
}

// State returns the current lifecycle state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect dials, authenticates and logs the provider's folders. A connected
// session is left untouched.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateDisconnected {
		s.mu.Unlock()
		return nil
	}
	s.state = StateConnecting
	s.mu.Unlock()

	client, err := s.dial(ctx)
	if err != nil {
		s.setState(StateDisconnected)
		return &ConnectionError{AccountID: s.account.ID, Op: "dial", Err: err}
	}

	err = s.await(ctx, client, func() error {
		return client.Login(s.account.User, s.account.Password).Wait()
	})
	if err != nil {
		_ = client.Close()
		s.setState(StateDisconnected)
		return &ConnectionError{AccountID: s.account.ID, Op: "login", Err: err}
	}

	s.mu.Lock()
	s.client = client
	s.state = StateReady
	s.folder = ""
	s.mu.Unlock()

	s.logger.Info().Str("host", s.account.Address()).Bool("tls", s.account.TLS).Msg("IMAP session ready")

	return s.logFolders(ctx)
}

func (s *Session) dial(ctx context.Context) (*imapclient.Client, error) {
	opts := &imapclient.Options{
		WordDecoder: &mime.WordDecoder{CharsetReader: charset.Reader},
		UnilateralDataHandler: &imapclient.UnilateralDataHandler{
			Mailbox: func(data *imapclient.UnilateralDataMailbox) {
				if data.NumMessages != nil {
					s.signal()
				}
			},
		},
	}

	dialer := &net.Dialer{Timeout: dialTimeout}
	var (
		conn net.Conn
		err  error
	)
	if s.account.TLS {
		tlsDialer := &tls.Dialer{
			NetDialer: dialer,
			Config:    &tls.Config{ServerName: s.account.Host},
		}
		conn, err = tlsDialer.DialContext(ctx, "tcp", s.account.Address())
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", s.account.Address())
	}
	if err != nil {
		return nil, err
	}

	return imapclient.New(conn, opts), nil
}

func (s *Session) signal() {
	select {
	case s.events <- struct{}{}:
	default:
	}
}

func (s *Session) logFolders(ctx context.Context) error {
	client, err := s.live()
	if err != nil {
		return err
	}

	var boxes []*imap.ListData
	err = s.await(ctx, client, func() error {
		var listErr error
		boxes, listErr = client.List("", "*", nil).Collect()
		return listErr
	})
	if err != nil {
		if isStatusError(err) {
			s.logger.Warn().Err(err).Msg("Failed to list folders")
			return nil
		}
		return s.fail("list", err)
	}

	names := make([]string, 0, len(boxes))
	for _, box := range boxes {
		names = append(names, box.Mailbox)
	}
	s.logger.Info().Strs("folders", names).Msg("Available folders")
	return nil
}

// OpenFolder selects name read-only. A missing folder returns FolderNotFoundError
// and leaves the session Ready.
func (s *Session) OpenFolder(ctx context.Context, name string) error {
	client, err := s.live()
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.state == StateFolderOpen && s.folder == name {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	err = s.await(ctx, client, func() error {
		_, selErr := client.Select(name, &imap.SelectOptions{ReadOnly: true}).Wait()
		return selErr
	})
	if err != nil {
		if isStatusError(err) {
			// a failed SELECT leaves nothing selected
			s.mu.Lock()
			s.state = StateReady
			s.folder = ""
			s.mu.Unlock()
			if isNonExistent(err) {
				return &FolderNotFoundError{Folder: name}
			}
			return fmt.Errorf("select %s: %w", name, err)
		}
		return s.fail("select", err)
	}

	s.mu.Lock()
	s.state = StateFolderOpen
	s.folder = name
	s.mu.Unlock()
	return nil
}

// ListMessageIDs returns every UID in folder. No date criterion is sent to the server.
func (s *Session) ListMessageIDs(ctx context.Context, folder string) ([]uint32, error) {
	if err := s.OpenFolder(ctx, folder); err != nil {
		return nil, err
	}
	client, err := s.live()
	if err != nil {
		return nil, err
	}

	var data *imap.SearchData
	err = s.await(ctx, client, func() error {
		var searchErr error
		data, searchErr = client.UIDSearch(&imap.SearchCriteria{}, nil).Wait()
		return searchErr
	})
	if err != nil {
		if isStatusError(err) {
			return nil, fmt.Errorf("search %s: %w", folder, err)
		}
		return nil, s.fail("search", err)
	}

	uids := data.AllUIDs()
	ids := make([]uint32, len(uids))
	for i, uid := range uids {
		ids[i] = uint32(uid)
	}
	return ids, nil
}

// FetchMessages streams header and text sections of ids from the open folder,
// calling fn once per message in server order. An error from fn stops the stream.
func (s *Session) FetchMessages(ctx context.Context, ids []uint32, fn func(RawMessage) error) error {
	if len(ids) == 0 {
		return nil
	}
	client, err := s.live()
	if err != nil {
		return err
	}

	uids := make([]imap.UID, len(ids))
	for i, id := range ids {
		uids[i] = imap.UID(id)
	}
	opts := &imap.FetchOptions{
		UID:         true,
		Flags:       true,
		BodySection: []*imap.FetchItemBodySection{headerSection, textSection},
	}

	var cbErr error
	err = s.await(ctx, client, func() error {
		cmd := client.Fetch(imap.UIDSetNum(uids...), opts)
		for {
			msg := cmd.Next()
			if msg == nil {
				break
			}
			buf, collectErr := msg.Collect()
			if collectErr != nil {
				_ = cmd.Close()
				return collectErr
			}
			if cbErr = fn(rawFromBuffer(buf)); cbErr != nil {
				break
			}
		}
		return cmd.Close()
	})
	if err != nil {
		if isStatusError(err) {
			return fmt.Errorf("fetch: %w", err)
		}
		return s.fail("fetch", err)
	}
	return cbErr
}

func rawFromBuffer(buf *imapclient.FetchMessageBuffer) RawMessage {
	flags := make([]string, 0, len(buf.Flags))
	for _, f := range buf.Flags {
		flags = append(flags, string(f))
	}
	return RawMessage{
		UID:    uint32(buf.UID),
		Flags:  flags,
		Header: buf.FindBodySection(headerSection),
		Body:   buf.FindBodySection(textSection),
	}
}

// Idle parks the session on the default folder until new mail arrives, ctx is
// cancelled, or the server ends the command. Cancellation is not a session fault.
func (s *Session) Idle(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return nil
	default:
	}

	// selecting must finish even if the idle is cancelled meanwhile
	if err := s.OpenFolder(context.WithoutCancel(ctx), DefaultFolder); err != nil {
		return err
	}

	// mail that arrived during the last cycle
	select {
	case <-s.events:
		return nil
	default:
	}

	client, err := s.live()
	if err != nil {
		return err
	}
	idleCmd, err := client.Idle()
	if err != nil {
		if isStatusError(err) {
			return fmt.Errorf("idle: %w", err)
		}
		return s.fail("idle", err)
	}

	done := make(chan error, 1)
	go func() { done <- idleCmd.Wait() }()

	var waitErr error
	select {
	case <-ctx.Done():
		_ = idleCmd.Close()
		waitErr = <-done
	case <-s.events:
		s.logger.Debug().Msg("New mail event")
		_ = idleCmd.Close()
		waitErr = <-done
	case waitErr = <-done:
	}

	if waitErr != nil {
		if isStatusError(waitErr) {
			return fmt.Errorf("idle: %w", waitErr)
		}
		return s.fail("idle", waitErr)
	}
	return nil
}

// Disconnect logs out and releases the connection. Safe to call repeatedly.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	client := s.client
	s.client = nil
	s.state = StateDisconnected
	s.folder = ""
	s.mu.Unlock()

	if client == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- client.Logout().Wait() }()
	select {
	case err := <-done:
		if err != nil {
			s.logger.Debug().Err(err).Msg("IMAP logout failed")
		}
	case <-time.After(logoutTimeout):
		s.logger.Warn().Msg("IMAP logout timed out")
	}

	s.logger.Info().Msg("IMAP session closed")
	return client.Close()
}

// await runs a blocking client call, closing the connection when ctx ends first
func (s *Session) await(ctx context.Context, client *imapclient.Client, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		_ = client.Close()
		<-done
		return ctx.Err()
	}
}

// fail moves the session to Disconnected after a transport error
func (s *Session) fail(op string, err error) error {
	s.mu.Lock()
	client := s.client
	s.client = nil
	s.state = StateDisconnected
	s.folder = ""
	s.mu.Unlock()

	if client != nil {
		_ = client.Close()
		s.logger.Error().Err(err).Str("op", op).Msg("IMAP transport error, session closed")
	}
	return &ConnectionError{AccountID: s.account.ID, Op: op, Err: err}
}

func (s *Session) live() (*imapclient.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil || s.state < StateReady {
		return nil, ErrSessionClosed
	}
	return s.client, nil
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}
