package smtptest

// Server is an SMTP server started for a test (or test suite) and stopped
// right after. It hands back the payloads of the messages it received so
// tests can inspect them.
type Server interface {
	// Start begins accepting connections. It blocks, so run it in its own
	// goroutine.
	Start() error

	// Close stops the server. It doesn't return an error so it's easy to
	// use with defer and t.Cleanup.
	Close()

	// RetrieveEmails returns the payloads of all email messages received
	// after time t in Unix epoch nanoseconds.
	RetrieveEmails(t int64) ([]string, error)

	// Address returns the host:port of the server.
	Address() string
}

var _ Server = (*InProcessServer)(nil)
