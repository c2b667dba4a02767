package email

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/wneessen/go-mail"

	"github.com/ShellRechargeSolutionsEU/mailer/storage"
)

// Service sends messages built from typed parts. The configuration, the
// transport and the journal are fixed at construction, so one Service can be
// shared by any number of goroutines.
type Service struct {
	config    Config
	transport Transport
	journal   storage.KeyValue
	logger    zerolog.Logger
}

// Option customizes a Service.
type Option func(*Service)

// WithTransport replaces the default SMTP transport.
func WithTransport(t Transport) Option {
	return func(s *Service) {
		s.transport = t
	}
}

// WithLogger sets the logger. The default is the global zerolog logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// WithJournal records every delivered message in kv. A nil kv keeps the
// default, which records nothing.
func WithJournal(kv storage.KeyValue) Option {
	return func(s *Service) {
		if kv != nil {
			s.journal = kv
		}
	}
}

// NewService returns a Service for c. Unless WithTransport is given,
// messages go to the SMTP relay described by c.
func NewService(c Config, opts ...Option) *Service {
	s := &Service{
		config:  c,
		journal: &storage.NoOpDB{},
		logger:  log.Logger,
	}
	for _, o := range opts {
		o(s)
	}
	if s.transport == nil {
		s.transport = NewSMTPTransport(c)
	}

	ev := s.logger.Debug().Str("host", c.Host)
	if c.RunMode != "" {
		ev = ev.Str("runMode", c.RunMode)
	}
	ev.Msg("mail service ready")

	return s
}

// Config returns a copy of the service configuration.
func (s *Service) Config() Config {
	return s.config
}

// Send builds a message from parts and delivers it, waiting at most timeout
// (no limit if timeout <= 0, other than ctx). The error is nil or a
// *SendError.
func (s *Service) Send(ctx context.Context, from, subject string, parts []Part, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	done := s.SendAsync(ctx, from, subject, parts)
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		// A result that is already in wins over the deadline.
		select {
		case err := <-done:
			return err
		default:
		}
		// The transport got the same context and is expected to give up,
		// but the caller doesn't wait for it.
		return &SendError{Cause: ctx.Err()}
	}
}

// SendAsync starts the send on its own goroutine and returns right away. The
// channel receives exactly one value: nil or a *SendError. Cancelling ctx
// aborts the transport.
func (s *Service) SendAsync(ctx context.Context, from, subject string, parts []Part) <-chan error {
	done := make(chan error, 1)
	sendID := uuid.NewString()

	go func() {
		var err error
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic while sending: %v", r)
			}
			if err != nil {
				s.logger.Error().
					Err(err).
					Str("sendID", sendID).
					Msg("could not send the email")
				err = &SendError{Cause: err}
			}
			done <- err
		}()

		err = s.send(ctx, sendID, from, subject, parts)
	}()

	return done
}

// send does the work for one message: Idle -> Sending -> Sent or Failed.
func (s *Service) send(ctx context.Context, sendID, from, subject string, parts []Part) error {
	m := BuildMessage(from, subject, parts)

	msg, err := m.MailMsg()
	if err != nil {
		return err
	}

	s.logger.Debug().
		Str("sendID", sendID).
		Str("body", m.Body.Kind.String()).
		Int("recipients", m.Recipients()).
		Int("attachments", len(m.Body.Attachments)).
		Msg("sending an email")

	if err := s.transport.Send(ctx, msg); err != nil {
		return err
	}

	s.logger.Info().
		Str("sendID", sendID).
		Str("messageID", msg.GetMessageID()).
		Msg("sent an email")

	s.record(sendID, m, msg)
	return nil
}

// record writes the journal entry for a delivered message. Failures are
// only logged since the message is already gone.
func (s *Service) record(sendID string, m Message, msg *mail.Msg) {
	if s.journal == nil {
		return
	}
	if _, ok := s.journal.(*storage.NoOpDB); ok {
		return
	}
	r := SentRecord{
		MessageID:  msg.GetMessageID(),
		SendID:     sendID,
		Subject:    m.Subject,
		Recipients: m.Recipients(),
		SentAt:     time.Now().UTC(),
	}
	e, err := r.NewKVEntry()
	if err == nil {
		err = s.journal.Put(e)
	}
	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("sendID", sendID).
			Msg("could not record the sent email")
	}
}
