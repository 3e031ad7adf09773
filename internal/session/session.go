package session

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/rs/zerolog"

	"github.com/nhle/mail-export/internal/model"
)

const (
	// defaultDialTimeout applies when Options.DialTimeout is zero.
	defaultDialTimeout = 30 * time.Second

	logoutTimeout = 5 * time.Second
)

// Options configures how sessions are opened.
type Options struct {
	DialTimeout time.Duration

	// TLSConfig is cloned for encrypted connections. ServerName defaults
	// to the account host.
	TLSConfig *tls.Config

	Logger zerolog.Logger
}

// errAborted is the cause reported once a cancelled request has torn
// down the connection.
var errAborted = errors.New("connection closed while a request was in flight")

// Session wraps one authenticated IMAP connection. Its methods are
// serialized, so the implicit selected folder cannot change underneath
// a multi-step operation. Cancelling the context of a running request
// closes the connection; the session then reports SessionFailed and
// every later request returns a *ConnectionError.
type Session struct {
	mu      sync.Mutex
	client  *imapclient.Client
	conn    net.Conn
	account model.Account
	log     zerolog.Logger

	abortOnce sync.Once

	infoMu   sync.Mutex
	state    model.SessionState
	selected string
}

// Connect dials the account's server and logs in. Any transport or
// authentication failure is returned as a *ConnectionError; there is no
// retry.
func Connect(
	ctx context.Context, account model.Account, opts Options,
) (*Session, error) {
	addr := account.Address()
	log := opts.Logger.With().
		Str("account", account.DisplayName).
		Str("addr", addr).
		Logger()

	conn, err := dial(ctx, account, opts)
	if err != nil {
		log.Warn().Err(err).Msg("dial failed")
		return nil, &ConnectionError{Addr: addr, Cause: err}
	}

	// A cancelled ctx aborts a login that the server never answers.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	client := imapclient.New(conn, nil)
	if err := client.Login(account.Username, account.Secret).Wait(); err != nil {
		_ = client.Close()
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		log.Warn().Err(err).Str("username", account.Username).Msg("login failed")
		return nil, &ConnectionError{
			Addr:  addr,
			Cause: fmt.Errorf("authentication failed for %s: %w", account.Username, err),
		}
	}

	log.Info().Bool("tls", account.UseEncryption).Msg("connected")

	return &Session{
		client:  client,
		conn:    conn,
		account: account,
		log:     log,
		state:   model.SessionConnected,
	}, nil
}

// dial opens the TCP connection, wrapped in TLS when the account asks
// for encryption.
func dial(ctx context.Context, account model.Account, opts Options) (net.Conn, error) {
	timeout := opts.DialTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	dialer := &net.Dialer{Timeout: timeout}
	addr := account.Address()

	if !account.UseEncryption {
		return dialer.DialContext(ctx, "tcp", addr)
	}

	tlsConfig := &tls.Config{}
	if opts.TLSConfig != nil {
		tlsConfig = opts.TLSConfig.Clone()
	}
	if tlsConfig.ServerName == "" {
		tlsConfig.ServerName = account.Host
	}

	tlsDialer := &tls.Dialer{NetDialer: dialer, Config: tlsConfig}
	return tlsDialer.DialContext(ctx, "tcp", addr)
}

// Account returns the account this session was opened for.
func (s *Session) Account() model.Account {
	return s.account
}

// State returns the current lifecycle state.
func (s *Session) State() model.SessionState {
	s.infoMu.Lock()
	defer s.infoMu.Unlock()
	return s.state
}

// SelectedFolder returns the folder currently selected on the server,
// or "" when none is.
func (s *Session) SelectedFolder() string {
	s.infoMu.Lock()
	defer s.infoMu.Unlock()
	return s.selected
}

// setState records the lifecycle state. A failed session only leaves
// SessionFailed by disconnecting.
func (s *Session) setState(state model.SessionState, selected string) {
	s.infoMu.Lock()
	defer s.infoMu.Unlock()

	if s.state == model.SessionFailed && state != model.SessionDisconnected {
		s.selected = ""
		return
	}
	s.state = state
	s.selected = selected
}

// watch arms ctx so that cancelling it while a request is outstanding
// closes the connection, which unblocks the request. Call the returned
// func once the request has completed.
func (s *Session) watch(ctx context.Context) func() bool {
	return context.AfterFunc(ctx, s.abort)
}

// abort closes the transport without taking s.mu and marks the session
// failed.
func (s *Session) abort() {
	s.abortOnce.Do(func() {
		s.log.Warn().Msg("closing connection under a cancelled request")
		if s.conn != nil {
			_ = s.conn.Close()
		}
		s.setState(model.SessionFailed, "")
	})
}

// opError builds the error for a failed request, preferring the
// context error when the request was cancelled.
func opError(ctx context.Context, op, folder string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = ctxErr
	}
	return &ProtocolError{Op: op, Folder: folder, Cause: err}
}

// ListFolders returns every folder the server reports, in server order.
func (s *Session) ListFolders(ctx context.Context) ([]FolderDescriptor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(ctx, "list folders", ""); err != nil {
		return nil, err
	}
	stop := s.watch(ctx)
	defer stop()

	data, err := s.client.List("", "*", nil).Collect()
	if err != nil {
		return nil, opError(ctx, "list folders", "", err)
	}

	folders := make([]FolderDescriptor, 0, len(data))
	for _, d := range data {
		attrs := make([]string, len(d.Attrs))
		for i, attr := range d.Attrs {
			attrs[i] = string(attr)
		}
		folders = append(folders, FolderDescriptor{
			Attrs: attrs,
			Delim: d.Delim,
			Name:  d.Mailbox,
		})
	}

	s.log.Debug().Int("count", len(folders)).Msg("listed folders")
	return folders, nil
}

// SelectFolder opens name read-only. On failure no folder is
// considered selected.
func (s *Session) SelectFolder(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectLocked(ctx, name)
}

func (s *Session) selectLocked(ctx context.Context, name string) error {
	if err := s.ready(ctx, "select", name); err != nil {
		return err
	}

	stop := s.watch(ctx)
	defer stop()

	s.setState(model.SessionSelectingFolder, "")

	_, err := s.client.Select(name, &imap.SelectOptions{ReadOnly: true}).Wait()
	if err != nil {
		s.setState(model.SessionConnected, "")
		s.log.Warn().Err(err).Str("folder", name).Msg("select failed")
		return opError(ctx, "select", name, err)
	}

	s.setState(model.SessionReady, name)
	return nil
}

// SearchAll returns the sequence numbers of every message in the
// selected folder, in server order.
func (s *Session) SearchAll(ctx context.Context) ([]uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	folder := s.SelectedFolder()
	if err := s.ready(ctx, "search", folder); err != nil {
		return nil, err
	}
	if folder == "" {
		return nil, &ProtocolError{Op: "search", Cause: errors.New("no folder selected")}
	}
	stop := s.watch(ctx)
	defer stop()

	data, err := s.client.Search(&imap.SearchCriteria{}, nil).Wait()
	if err != nil {
		return nil, opError(ctx, "search", folder, err)
	}

	return data.AllSeqNums(), nil
}

// FetchHeaderSubset fetches the UID, size and the HeaderFields of one
// message in the selected folder. The full body is not transferred.
func (s *Session) FetchHeaderSubset(
	ctx context.Context, seqNum uint32,
) (RawFetchResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	folder := s.SelectedFolder()
	if err := s.ready(ctx, "fetch headers", folder); err != nil {
		return RawFetchResponse{}, err
	}

	section := &imap.FetchItemBodySection{
		Specifier:    imap.PartSpecifierHeader,
		HeaderFields: HeaderFields,
		Peek:         true,
	}
	fetchOpts := &imap.FetchOptions{
		UID:         true,
		RFC822Size:  true,
		BodySection: []*imap.FetchItemBodySection{section},
	}

	stop := s.watch(ctx)
	defer stop()

	fetchCmd := s.client.Fetch(imap.SeqSetNum(seqNum), fetchOpts)
	defer fetchCmd.Close()

	resp := RawFetchResponse{SeqNum: seqNum}

	msg := fetchCmd.Next()
	if msg == nil {
		err := fetchCmd.Close()
		if err == nil {
			err = fmt.Errorf("message %d not found", seqNum)
		}
		return resp, opError(ctx, "fetch headers", folder, err)
	}

	for {
		item := msg.Next()
		if item == nil {
			break
		}

		switch item := item.(type) {
		case imapclient.FetchItemDataUID:
			resp.UID = uint32(item.UID)
		case imapclient.FetchItemDataRFC822Size:
			resp.Size = item.Size
			resp.SizeKnown = true
		case imapclient.FetchItemDataBodySection:
			if item.Literal == nil {
				continue
			}
			header, err := io.ReadAll(item.Literal)
			if err != nil {
				return resp, opError(ctx, "fetch headers", folder, err)
			}
			resp.Header = header
		}
	}

	if err := fetchCmd.Close(); err != nil {
		return resp, opError(ctx, "fetch headers", folder, err)
	}

	return resp, nil
}

// FetchRaw returns the complete message with the given UID in folder.
// The folder is selected first unless it already is; UIDs rather than
// sequence numbers are used because they survive selection changes.
func (s *Session) FetchRaw(ctx context.Context, folder, uid string) ([]byte, error) {
	n, err := ParseUID(uid)
	if err != nil {
		return nil, &ProtocolError{Op: "fetch", Folder: folder, Cause: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.SelectedFolder() != folder {
		if err := s.selectLocked(ctx, folder); err != nil {
			return nil, err
		}
	}
	if err := s.ready(ctx, "fetch", folder); err != nil {
		return nil, err
	}

	section := &imap.FetchItemBodySection{Peek: true}
	fetchOpts := &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{section},
	}

	stop := s.watch(ctx)
	defer stop()

	msgs, err := s.client.Fetch(imap.UIDSetNum(imap.UID(n)), fetchOpts).Collect()
	if err != nil {
		return nil, opError(ctx, "fetch", folder, err)
	}
	if len(msgs) == 0 {
		return nil, &ProtocolError{
			Op:     "fetch",
			Folder: folder,
			Cause:  fmt.Errorf("message UID %d not found", n),
		}
	}

	raw := msgs[0].FindBodySection(section)
	if raw == nil {
		return nil, &ProtocolError{
			Op:     "fetch",
			Folder: folder,
			Cause:  fmt.Errorf("message UID %d has no body", n),
		}
	}

	return raw, nil
}

// Disconnect logs out and closes the connection. Failures are logged
// and otherwise ignored. When a request is still running the transport
// is closed first so that it returns.
func (s *Session) Disconnect() {
	if !s.mu.TryLock() {
		s.abort()
		s.mu.Lock()
	}
	defer s.mu.Unlock()

	if s.client == nil {
		return
	}

	if s.State() != model.SessionFailed {
		if s.conn != nil {
			_ = s.conn.SetDeadline(time.Now().Add(logoutTimeout))
		}
		if err := s.client.Logout().Wait(); err != nil {
			s.log.Debug().Err(err).Msg("logout failed")
		}
	}
	if err := s.client.Close(); err != nil {
		s.log.Debug().Err(err).Msg("close failed")
	}

	s.client = nil
	s.setState(model.SessionDisconnected, "")
	s.log.Info().Msg("disconnected")
}

// ready checks that the session is open and ctx is still live.
func (s *Session) ready(ctx context.Context, op, folder string) error {
	if err := ctx.Err(); err != nil {
		return &ProtocolError{Op: op, Folder: folder, Cause: err}
	}
	if s.client == nil {
		return &ProtocolError{Op: op, Folder: folder, Cause: ErrNotConnected}
	}
	if s.State() == model.SessionFailed {
		return &ConnectionError{Addr: s.account.Address(), Cause: errAborted}
	}
	return nil
}
