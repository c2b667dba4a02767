package userconfig

import (
	"context"
	"fmt"
	"io"

	"github.com/wneessen/go-mail"

	"github.com/ShellRechargeSolutionsEU/mailer/email"
	"github.com/ShellRechargeSolutionsEU/mailer/ses"
	"github.com/ShellRechargeSolutionsEU/mailer/storage"
)

// NewService wires up the mail service described by m, which must have been
// through CheckAndSetDefaults. The stdout transport writes to out. smtpOpts
// are passed to the SMTP transport after the ones derived from m.Email.
//
// The returned journal is a NoOpDB unless m configures one. The caller must
// close it.
func NewService(ctx context.Context, m Meta, out io.Writer, smtpOpts ...mail.Option) (*email.Service, storage.KeyValue, error) {
	var t email.Transport
	switch m.Transport {
	case TransportStdout:
		t = &email.WriterTransport{W: out}
	case TransportSES:
		st, err := ses.New(ctx, m.SES)
		if err != nil {
			return nil, nil, fmt.Errorf("can't set up SES: %w", err)
		}
		t = st
	default:
		t = email.NewSMTPTransport(m.Email, smtpOpts...)
	}

	opts := []email.Option{email.WithTransport(t)}

	// Printed messages were never sent, so there is nothing to record.
	var db storage.KeyValue = &storage.NoOpDB{}
	if m.Journal != nil && m.Transport != TransportStdout {
		bdb, err := storage.NewBadgerDB(m.Journal)
		if err != nil {
			return nil, nil, fmt.Errorf("can't open the journal at %v: %w", m.Journal.StorageDirPath, err)
		}
		db = bdb
		opts = append(opts, email.WithJournal(db))
	}

	return email.NewService(m.Email, opts...), db, nil
}
