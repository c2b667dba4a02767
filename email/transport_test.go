package email

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"

	"github.com/ShellRechargeSolutionsEU/mailer/smtptest"
)

// startServer runs an in-process SMTP server until the test ends.
func startServer(t *testing.T, opts smtptest.Options) *smtptest.InProcessServer {
	t.Helper()
	s, err := smtptest.NewInProcessServer(opts)
	require.NoError(t, err)
	go s.Start()
	t.Cleanup(s.Close)
	return s
}

func testMsg(t *testing.T) *mail.Msg {
	t.Helper()
	msg, err := BuildMessage("me@example.com", "Transport test", []Part{
		To("you@example.com"),
		BCC("hidden@example.com"),
		PlainText{Text: "Hello this is my email body"},
	}).MailMsg()
	require.NoError(t, err)
	return msg
}

func TestSMTPTransport(t *testing.T) {
	key, cert, err := smtptest.GenerateTLSFiles(t)
	require.NoError(t, err)
	clientTLS, err := smtptest.ClientTLSConfig(cert)
	require.NoError(t, err)

	testCases := []struct {
		description string
		server      smtptest.Options
		config      Config
		extra       []mail.Option
		wantUser    string
	}{
		{
			description: "plaintext with auth",
			server:      smtptest.Options{RequireAuth: true},
			config: Config{
				AuthEnabled: true,
				Username:    "user",
				Password:    "secret",
			},
			wantUser: "user",
		},
		{
			description: "plaintext without auth",
			server:      smtptest.Options{},
			config:      Config{},
		},
		{
			description: "starttls with auth",
			server: smtptest.Options{
				KeyPath:     key,
				CertPath:    cert,
				RequireAuth: true,
			},
			config: Config{
				AuthEnabled:     true,
				StartTLSEnabled: true,
				Username:        "user",
				Password:        "secret",
			},
			extra:    []mail.Option{mail.WithTLSConfig(clientTLS)},
			wantUser: "user",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			srv := startServer(t, tc.server)
			tc.config.Host = srv.Address()

			since := time.Now().UnixNano()
			tr := NewSMTPTransport(tc.config, tc.extra...)

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			require.NoError(t, tr.Send(ctx, testMsg(t)))

			got := srv.RetrieveMessages(since)
			require.Len(t, got, 1)
			m := got[0]

			assert.Equal(t, "me@example.com", m.From)
			assert.ElementsMatch(t, []string{"you@example.com", "hidden@example.com"}, m.Rcpts)
			assert.Equal(t, tc.wantUser, m.User)
			assert.Contains(t, m.Body, "Hello this is my email body")

			parsed, _, _, err := smtptest.ParseEmail(m.Body)
			require.NoError(t, err)
			assert.Empty(t, parsed.Header.Get("Bcc"))
			assert.Equal(t, "Transport test", parsed.Header.Get("Subject"))
		})
	}
}

func TestSMTPTransportAuthRequired(t *testing.T) {
	srv := startServer(t, smtptest.Options{RequireAuth: true})

	tr := NewSMTPTransport(Config{Host: srv.Address()})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	assert.Error(t, tr.Send(ctx, testMsg(t)))
	emails, err := srv.RetrieveEmails(0)
	require.NoError(t, err)
	assert.Empty(t, emails)
}

func TestSMTPTransportHostPort(t *testing.T) {
	testCases := []struct {
		description string
		host        string
		wantHost    string
		wantOpts    int
	}{
		{
			description: "host and port",
			host:        "relay.example.com:2525",
			wantHost:    "relay.example.com",
			wantOpts:    2,
		},
		{
			description: "bare host",
			host:        "relay.example.com",
			wantHost:    "relay.example.com",
			wantOpts:    1,
		},
		{
			description: "port isn't a number",
			host:        "relay.example.com:smtp",
			wantHost:    "relay.example.com:smtp",
			wantOpts:    1,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			tr := NewSMTPTransport(Config{Host: tc.host})
			assert.Equal(t, tc.wantHost, tr.host)
			assert.Len(t, tr.opts, tc.wantOpts)
		})
	}
}

func TestServiceOverSMTP(t *testing.T) {
	srv := startServer(t, smtptest.Options{})
	since := time.Now().UnixNano()

	s := NewService(Config{Host: srv.Address()})
	err := s.Send(context.Background(), "me@example.com", "Monthly report", []Part{
		To("you@example.com"),
		CC("boss@example.com"),
		PlainText{Text: "numbers attached"},
		HTML{Content: "<p>numbers attached</p>"},
		Attachment{Name: "numbers.csv", Source: StringSource("a,b\n1,2\n"), MimeType: "text/csv"},
	}, 10*time.Second)
	require.NoError(t, err)

	got := srv.RetrieveMessages(since)
	require.Len(t, got, 1)
	assert.ElementsMatch(t, []string{"you@example.com", "boss@example.com"}, got[0].Rcpts)

	_, mt, _, err := smtptest.ParseEmail(got[0].Body)
	require.NoError(t, err)
	assert.Equal(t, "multipart/mixed", mt)
	assert.Contains(t, got[0].Body, "numbers.csv")
}

func TestServiceUnreachableRelay(t *testing.T) {
	srv := startServer(t, smtptest.Options{})
	addr := srv.Address()
	srv.Close()

	s := NewService(Config{Host: addr})
	err := s.Send(context.Background(), "me@example.com", "s", []Part{
		To("you@example.com"),
		PlainText{Text: "x"},
	}, 5*time.Second)

	var se *SendError
	require.ErrorAs(t, err, &se)
	assert.True(t, strings.HasPrefix(err.Error(), "failed to send email"))
}

func TestWriterTransport(t *testing.T) {
	var buf bytes.Buffer
	tr := &WriterTransport{W: &buf}

	require.NoError(t, tr.Send(context.Background(), testMsg(t)))
	out := buf.String()
	assert.Contains(t, out, "Subject: Transport test")
	assert.Contains(t, out, "Hello this is my email body")
	assert.NotContains(t, out, "hidden@example.com")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	buf.Reset()
	assert.ErrorIs(t, tr.Send(ctx, testMsg(t)), context.Canceled)
	assert.Empty(t, buf.String())
}
