package testutil

import (
	"bufio"
	"bytes"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapserver"
	"github.com/emersion/go-imap/v2/imapserver/imapmemserver"

	"github.com/nhle/mail-export/internal/model"
)

// Credentials accepted by the test IMAP server.
const (
	IMAPUsername = "alice@example.com"
	IMAPPassword = "hunter2"
)

// IMAPServer is an in-memory IMAP server listening on a loopback port.
type IMAPServer struct {
	Host string
	Port int

	user *imapmemserver.User
}

// NewIMAPServer starts an in-memory IMAP server with an empty INBOX.
// The listener is closed when the test completes.
func NewIMAPServer(t *testing.T) *IMAPServer {
	t.Helper()

	memServer := imapmemserver.New()
	user := imapmemserver.NewUser(IMAPUsername, IMAPPassword)
	if err := user.Create("INBOX", nil); err != nil {
		t.Fatalf("creating INBOX: %v", err)
	}
	memServer.AddUser(user)

	srv := imapserver.New(&imapserver.Options{
		NewSession: func(*imapserver.Conn) (imapserver.Session, *imapserver.GreetingData, error) {
			return memServer.NewSession(), nil, nil
		},
		Caps: imap.CapSet{
			imap.CapIMAP4rev1: {},
		},
		InsecureAuth: true,
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listening: %v", err)
	}
	go func() { _ = srv.Serve(ln) }()

	t.Cleanup(func() {
		_ = ln.Close()
	})

	addr := ln.Addr().(*net.TCPAddr)
	return &IMAPServer{
		Host: addr.IP.String(),
		Port: addr.Port,
		user: user,
	}
}

// Account returns an unencrypted account pointing at the server.
func (s *IMAPServer) Account() model.Account {
	acct := model.NewAccount("Test", s.Host, IMAPUsername, IMAPPassword)
	acct.Port = s.Port
	acct.UseEncryption = false
	return acct
}

// CreateFolder creates a mailbox. Nested names use "/".
func (s *IMAPServer) CreateFolder(t *testing.T, name string) {
	t.Helper()
	if err := s.user.Create(name, nil); err != nil {
		t.Fatalf("creating folder %q: %v", name, err)
	}
}

// Append stores raw in folder. The first message of a folder gets
// UID 1, the next UID 2 and so on.
func (s *IMAPServer) Append(t *testing.T, folder string, raw []byte) {
	t.Helper()
	if _, err := s.user.Append(folder, bytes.NewReader(raw), &imap.AppendOptions{}); err != nil {
		t.Fatalf("appending to %q: %v", folder, err)
	}
}

// TestMessage describes a simple message for BuildMessage.
type TestMessage struct {
	Subject string
	From    string
	To      string
	Date    time.Time
	Body    string
}

// BuildMessage renders m as a single-part text/plain message with CRLF
// line endings. Empty header values are omitted.
func BuildMessage(m TestMessage) []byte {
	var b strings.Builder
	if m.From != "" {
		fmt.Fprintf(&b, "From: %s\r\n", m.From)
	}
	if m.To != "" {
		fmt.Fprintf(&b, "To: %s\r\n", m.To)
	}
	if m.Subject != "" {
		fmt.Fprintf(&b, "Subject: %s\r\n", m.Subject)
	}
	if !m.Date.IsZero() {
		fmt.Fprintf(&b, "Date: %s\r\n", m.Date.Format(time.RFC1123Z))
	}
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(m.Body, "\n", "\r\n"))
	b.WriteString("\r\n")
	return []byte(b.String())
}


// NewStalledIMAPServer starts a server that greets, accepts any login
// and lists INBOX and Other, then never answers any other command. It
// stands in for a server that hangs mid-session.
func NewStalledIMAPServer(t *testing.T) *IMAPServer {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listening: %v", err)
	}

	var (
		mu    sync.Mutex
		conns []net.Conn
	)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, conn)
			mu.Unlock()
			go serveStalled(conn)
		}
	}()

	t.Cleanup(func() {
		_ = ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			_ = c.Close()
		}
	})

	addr := ln.Addr().(*net.TCPAddr)
	return &IMAPServer{Host: addr.IP.String(), Port: addr.Port}
}

func serveStalled(conn net.Conn) {
	defer conn.Close()

	w := bufio.NewWriter(conn)
	reply := func(lines ...string) bool {
		for _, l := range lines {
			if _, err := w.WriteString(l + "\r\n"); err != nil {
				return false
			}
		}
		return w.Flush() == nil
	}

	if !reply("* OK [CAPABILITY IMAP4rev1] ready") {
		return
	}

	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		tag, verb := fields[0], strings.ToUpper(fields[1])

		var ok bool
		switch verb {
		case "CAPABILITY":
			ok = reply("* CAPABILITY IMAP4rev1", tag+" OK done")
		case "LOGIN":
			ok = reply(tag + " OK logged in")
		case "LIST":
			ok = reply(
				`* LIST () "/" INBOX`,
				`* LIST () "/" Other`,
				tag+" OK done",
			)
		case "NOOP":
			ok = reply(tag + " OK done")
		default:
			// Swallow the command and keep reading so the
			// connection stays open until the client gives up.
			ok = true
		}
		if !ok {
			return
		}
	}
}
