package smtptest

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/docker/go-units"
	"github.com/emersion/go-smtp"
)

// doubtful we'll get an email this big, but we need a limit
const maxEmailSize int64 = 100 * units.MiB

// Message is one email received by the server: the envelope plus the raw
// RFC 5322 payload. The created timestamp lets tests pick messages sent
// before/after a point in time.
type Message struct {
	created time.Time
	From    string
	Rcpts   []string
	Body    string
	// Username used for AUTH, empty for anonymous sessions.
	User string
}

// Backend implements smtp.Backend. It's a thin authentication wrapper
// for an InMemoryEmailStore.
type Backend struct {
	*InMemoryEmailStore
	requireAuth bool
}

// Login implements smtp.Backend. Any username/password is fine, since we
// don't want to couple this with specific test configurations.
func (be *Backend) Login(_ *smtp.ConnectionState, username string, password string) (smtp.Session, error) {
	if username != "" && password != "" {
		return &session{store: be.InMemoryEmailStore, user: username}, nil
	}
	return nil, errors.New("no username or password provided")
}

// AnonymousLogin implements smtp.Backend. Refused when the server was
// created with RequireAuth.
func (be *Backend) AnonymousLogin(_ *smtp.ConnectionState) (smtp.Session, error) {
	if be.requireAuth {
		return nil, smtp.ErrAuthRequired
	}
	return &session{store: be.InMemoryEmailStore}, nil
}

// session implements smtp.Session for a single connection and hands the
// finished message to the store.
type session struct {
	store *InMemoryEmailStore
	user  string
	from  string
	rcpts []string
}

// Reset implements smtp.Session.
func (s *session) Reset() {
	s.from = ""
	s.rcpts = nil
}

// Logout implements smtp.Session. No-op here.
func (s *session) Logout() error { return nil }

// Mail implements smtp.Session.
func (s *session) Mail(from string, _ smtp.MailOptions) error {
	s.from = from
	return nil
}

// Rcpt implements smtp.Session.
func (s *session) Rcpt(to string) error {
	s.rcpts = append(s.rcpts, to)
	return nil
}

// Data implements smtp.Session. Stores the email data in memory for
// retrieval at the end of the test.
func (s *session) Data(r io.Reader) error {
	buf, err := io.ReadAll(io.LimitReader(r, maxEmailSize))
	if err != nil {
		return err
	}

	s.store.saveEmail(Message{
		From:  s.from,
		Rcpts: append([]string(nil), s.rcpts...),
		Body:  string(buf),
		User:  s.user,
	})
	return nil
}

// InMemoryEmailStore retains email messages in memory for comparison
// against a test's expected output. Designed to be goroutine safe since we
// don't know how many goroutines will be hitting the server at once.
type InMemoryEmailStore struct {
	mu       *sync.Mutex
	messages []Message
}

// saveEmail stores the message along with a timestamp created just prior to
// saving
func (es *InMemoryEmailStore) saveEmail(m Message) {
	es.mu.Lock()
	defer es.mu.Unlock()

	m.created = time.Now()
	es.messages = append(es.messages, m)
}

// RetrieveMessages returns every message received after epoch nanoseconds
// t, envelope included.
func (es *InMemoryEmailStore) RetrieveMessages(t int64) []Message {
	es.mu.Lock()
	defer es.mu.Unlock()

	r := make([]Message, 0, len(es.messages))
	for _, m := range es.messages {
		if m.created.UnixNano() >= t {
			r = append(r, m)
		}
	}
	return r
}

// RetrieveEmails returns a slice of all message bodies (as strings)
// sent after epoch nanoseconds t
// Satisfies smtptest.Server but isn't expected to return an error.
func (es *InMemoryEmailStore) RetrieveEmails(t int64) ([]string, error) {
	ms := es.RetrieveMessages(t)
	r := make([]string, 0, len(ms))
	for _, m := range ms {
		r = append(r, m.Body)
	}
	return r, nil
}

// Options configure an InProcessServer.
type Options struct {
	// PEM key and cert paths. When both are set the server offers
	// STARTTLS. The cert must be a root cert.
	KeyPath  string
	CertPath string
	// Reject clients that don't AUTH.
	RequireAuth bool
}

// InProcessServer is an SMTP server that runs in the same process as the
// test suite, letting us inspect sent emails. You must initialize this
// via NewInProcessServer
type InProcessServer struct {
	*smtp.Server
	// Embedded so tests can call RetrieveEmails etc. directly on the
	// server.
	*InMemoryEmailStore
	listener net.Listener
}

// NewInProcessServer creates an InProcessServer listening on a random
// loopback port, including configuring its SMTP server to store incoming
// messages in memory. Call Start to begin accepting connections.
func NewInProcessServer(opts Options) (*InProcessServer, error) {
	is := &InMemoryEmailStore{
		mu:       &sync.Mutex{},
		messages: []Message{},
	}

	srv := smtp.NewServer(&Backend{
		InMemoryEmailStore: is,
		requireAuth:        opts.RequireAuth,
	})

	srv.Domain = "localhost"
	// Clients connect over plaintext unless they upgrade with STARTTLS, and
	// they need to AUTH either way.
	srv.AllowInsecureAuth = true
	srv.AuthDisabled = false
	// Strict is undocumented, but it looks like it enforces <address> syntax
	// in messages:
	// https://github.com/emersion/go-smtp/blob/f92bf7f1a25777bcdaa28a142b1cd1a54b74c8f4/conn.go#L321-L325
	srv.Strict = true
	srv.MaxMessageBytes = int(maxEmailSize)

	if opts.KeyPath != "" && opts.CertPath != "" {
		cert, err := tls.LoadX509KeyPair(opts.CertPath, opts.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("can't load the TLS key pair: %v", err)
		}
		srv.TLSConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
		}
	}

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("can't listen: %v", err)
	}
	srv.Addr = l.Addr().String()

	return &InProcessServer{
		Server:             srv,
		InMemoryEmailStore: is,
		listener:           l,
	}, nil
}

// Start starts the test server. Blocking.
func (is *InProcessServer) Start() error {
	// Not using TLS on the listener--the client should upgrade the
	// connection with STARTTLS
	return is.Server.Serve(is.listener)
}

// Close shuts down the test server daemon. You must initialize a new
// InProcessServer instead of restarting this one.
func (is *InProcessServer) Close() {
	is.Server.Close()
	// Serve may not have registered the listener yet.
	is.listener.Close()
}

// Address returns the host:port of the test SMTP server.
func (is *InProcessServer) Address() string {
	return is.listener.Addr().String()
}
