package email

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"

	"github.com/wneessen/go-mail"
)

// Transport delivers a rendered message. Implementations must be safe for
// concurrent use; a Service calls Send from one goroutine per message.
type Transport interface {
	Send(ctx context.Context, msg *mail.Msg) error
}

// SMTPTransport sends messages to an SMTP relay with go-mail. It opens a new
// connection for every message and keeps no state between sends.
type SMTPTransport struct {
	host string
	opts []mail.Option
}

// NewSMTPTransport reads the connection settings from c.Properties() and the
// credentials from c. Extra options are applied after the ones derived from
// c, so they win, e.g. mail.WithTLSConfig for a private CA.
//
// The host may carry a port ("relay.example.com:587"). Without one the
// go-mail default (25) applies. A host that doesn't parse is handed to
// go-mail untouched and the error shows up when sending.
func NewSMTPTransport(c Config, extra ...mail.Option) *SMTPTransport {
	props := c.Properties()
	host := props[PropHost]
	var opts []mail.Option

	if h, p, err := net.SplitHostPort(host); err == nil {
		if port, err := strconv.Atoi(p); err == nil {
			host = h
			opts = append(opts, mail.WithPort(port))
		}
	}

	if props[PropStartTLS] == "true" {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}

	if props[PropAuth] == "true" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(c.Username),
			mail.WithPassword(c.Password),
		)
	}

	return &SMTPTransport{
		host: host,
		opts: append(opts, extra...),
	}
}

// Send dials the relay, delivers msg and hangs up. ctx bounds the whole
// exchange.
func (t *SMTPTransport) Send(ctx context.Context, msg *mail.Msg) error {
	client, err := mail.NewClient(t.host, t.opts...)
	if err != nil {
		return fmt.Errorf("create mail client: %w", err)
	}
	return client.DialAndSendWithContext(ctx, msg)
}

// WriterTransport writes each message to W in RFC 5322 form instead of
// sending it. Useful for dry runs.
type WriterTransport struct {
	mu sync.Mutex
	W  io.Writer
}

// Send writes msg to the underlying writer.
func (t *WriterTransport) Send(ctx context.Context, msg *mail.Msg) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := msg.WriteTo(t.W); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}
