package email

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"

	"github.com/ShellRechargeSolutionsEU/mailer/storage"
)

// fakeTransport records messages and returns whatever sendFn returns.
type fakeTransport struct {
	mu     sync.Mutex
	sent   []*mail.Msg
	sendFn func(ctx context.Context, msg *mail.Msg) error
}

func (f *fakeTransport) Send(ctx context.Context, msg *mail.Msg) error {
	f.mu.Lock()
	f.sent = append(f.sent, msg)
	fn := f.sendFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, msg)
	}
	return nil
}

func (f *fakeTransport) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// memKV is a goroutine safe in-memory storage.KeyValue.
type memKV struct {
	mu     sync.Mutex
	data   map[string][]byte
	putErr error
}

func newMemKV() *memKV {
	return &memKV{data: map[string][]byte{}}
}

func (m *memKV) Put(e storage.KVEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.data[string(e.Key)] = e.Value
	return nil
}

func (m *memKV) Read(key []byte) (storage.KVEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[string(key)]
	if !ok {
		return storage.KVEntry{}, errors.New("not found")
	}
	return storage.KVEntry{Key: key, Value: v}, nil
}

func (m *memKV) Cleanup() error { return nil }
func (m *memKV) Close() error   { return nil }

func testParts() []Part {
	return []Part{
		To("you@example.com"),
		BCC("audit@example.com"),
		PlainText{Text: "hello"},
		HTML{Content: "<p>hello</p>"},
	}
}

func newTestService(tr Transport, opts ...Option) *Service {
	opts = append([]Option{WithTransport(tr), WithLogger(zerolog.Nop())}, opts...)
	return NewService(Config{Host: "localhost"}, opts...)
}

func TestSendSuccess(t *testing.T) {
	tr := &fakeTransport{}
	kv := newMemKV()
	s := newTestService(tr, WithJournal(kv))

	err := s.Send(context.Background(), "me@example.com", "Hi", testParts(), time.Second)
	require.NoError(t, err)
	require.Equal(t, 1, tr.count())

	msg := tr.sent[0]
	rcpts, err := msg.GetRecipients()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"you@example.com", "audit@example.com"}, bareAddrs(t, rcpts))

	r, err := LookupSent(kv, msg.GetMessageID())
	require.NoError(t, err)
	assert.Equal(t, "Hi", r.Subject)
	assert.Equal(t, 2, r.Recipients)
	assert.Equal(t, msg.GetMessageID(), r.MessageID)
	assert.NotEmpty(t, r.SendID)
	assert.False(t, r.SentAt.IsZero())
}

func TestSendFailuresAreWrapped(t *testing.T) {
	boom := errors.New("relay said no")

	testCases := []struct {
		description string
		from        string
		parts       []Part
		sendFn      func(context.Context, *mail.Msg) error
		wantCause   error
		wantText    string
		wantSends   int
	}{
		{
			description: "transport error",
			from:        "me@example.com",
			parts:       testParts(),
			sendFn: func(context.Context, *mail.Msg) error {
				return boom
			},
			wantCause: boom,
			wantSends: 1,
		},
		{
			description: "message can't be built",
			from:        "not an address",
			parts:       testParts(),
			wantText:    "set from",
			wantSends:   0,
		},
		{
			description: "attachment can't be opened",
			from:        "me@example.com",
			parts: append(testParts(), Attachment{Name: "a", Source: func() (io.ReadCloser, error) {
				return nil, boom
			}}),
			wantCause: boom,
			wantSends: 0,
		},
		{
			description: "transport panics",
			from:        "me@example.com",
			parts:       testParts(),
			sendFn: func(context.Context, *mail.Msg) error {
				panic("nil map")
			},
			wantText:  "panic while sending: nil map",
			wantSends: 1,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			tr := &fakeTransport{sendFn: tc.sendFn}
			kv := newMemKV()
			s := newTestService(tr, WithJournal(kv))

			err := s.Send(context.Background(), tc.from, "Hi", tc.parts, time.Second)
			require.Error(t, err)

			var se *SendError
			require.True(t, errors.As(err, &se), "want a *SendError, got %T", err)
			assert.True(t, strings.HasPrefix(err.Error(), "failed to send email"))
			if tc.wantCause != nil {
				assert.ErrorIs(t, err, tc.wantCause)
			}
			if tc.wantText != "" {
				assert.Contains(t, err.Error(), tc.wantText)
			}
			assert.Equal(t, tc.wantSends, tr.count())
			assert.Empty(t, kv.data, "failed sends must not be journaled")
		})
	}
}

func TestSendTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	// Ignores ctx on purpose: the caller must be released anyway.
	tr := &fakeTransport{sendFn: func(context.Context, *mail.Msg) error {
		<-release
		return nil
	}}
	s := newTestService(tr)

	start := time.Now()
	err := s.Send(context.Background(), "me@example.com", "Hi", testParts(), 50*time.Millisecond)
	elapsed := time.Since(start)

	require.Error(t, err)
	var se *SendError
	require.True(t, errors.As(err, &se))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, elapsed, 5*time.Second)
}

func TestSendPassesDeadlineToTransport(t *testing.T) {
	var hasDeadline bool
	tr := &fakeTransport{sendFn: func(ctx context.Context, _ *mail.Msg) error {
		_, hasDeadline = ctx.Deadline()
		return nil
	}}
	s := newTestService(tr)

	require.NoError(t, s.Send(context.Background(), "me@example.com", "Hi", testParts(), time.Minute))
	assert.True(t, hasDeadline)

	require.NoError(t, s.Send(context.Background(), "me@example.com", "Hi", testParts(), 0))
	assert.False(t, hasDeadline, "a zero timeout adds no deadline")
}

func TestSendCancelledContext(t *testing.T) {
	tr := &fakeTransport{sendFn: func(ctx context.Context, _ *mail.Msg) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	s := newTestService(tr)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Send(ctx, "me@example.com", "Hi", testParts(), time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSendAsyncConcurrent(t *testing.T) {
	tr := &fakeTransport{sendFn: func(_ context.Context, msg *mail.Msg) error {
		if strings.Contains(msg.GetToString()[0], "fail") {
			return errors.New("rejected")
		}
		return nil
	}}
	s := newTestService(tr)

	const n = 20
	chans := make([]<-chan error, n)
	for i := 0; i < n; i++ {
		to := "ok@example.com"
		if i%2 == 1 {
			to = "fail@example.com"
		}
		chans[i] = s.SendAsync(context.Background(), "me@example.com", "Hi", []Part{To(to), PlainText{Text: "x"}})
	}

	var failed int
	for _, ch := range chans {
		if err := <-ch; err != nil {
			var se *SendError
			require.True(t, errors.As(err, &se))
			failed++
		}
	}
	assert.Equal(t, n/2, failed)
	assert.Equal(t, n, tr.count())
}

func TestJournalFailureDoesNotFailSend(t *testing.T) {
	kv := newMemKV()
	kv.putErr = errors.New("disk full")
	s := newTestService(&fakeTransport{}, WithJournal(kv))

	assert.NoError(t, s.Send(context.Background(), "me@example.com", "Hi", testParts(), time.Second))
}

func TestNilJournalDoesNotFailSend(t *testing.T) {
	tr := &fakeTransport{}
	s := newTestService(tr, WithJournal(nil))

	assert.IsType(t, &storage.NoOpDB{}, s.journal)
	assert.NoError(t, s.Send(context.Background(), "me@example.com", "Hi", testParts(), time.Second))
	assert.Equal(t, 1, tr.count())
}

// expiresAfterSend is a context that only reports being done once the
// transport has returned, so the result and the deadline race.
type expiresAfterSend struct {
	context.Context
	sent    chan struct{}
	expired chan struct{}
}

func (c *expiresAfterSend) Done() <-chan struct{} {
	<-c.sent
	time.Sleep(20 * time.Millisecond)
	return c.expired
}

func (c *expiresAfterSend) Err() error {
	return context.DeadlineExceeded
}

func TestSendPrefersResultOverDeadline(t *testing.T) {
	for i := 0; i < 20; i++ {
		ctx := &expiresAfterSend{
			Context: context.Background(),
			sent:    make(chan struct{}),
			expired: make(chan struct{}),
		}
		close(ctx.expired)

		tr := &fakeTransport{sendFn: func(context.Context, *mail.Msg) error {
			close(ctx.sent)
			return nil
		}}
		s := newTestService(tr)

		require.NoError(t, s.Send(ctx, "me@example.com", "Hi", testParts(), 0), "attempt %d", i)
	}
}

func TestNewServiceDefaults(t *testing.T) {
	c := Config{Host: "relay.example.com:2525", RunMode: "dev"}
	s := NewService(c, WithLogger(zerolog.Nop()))

	assert.Equal(t, c, s.Config())
	tr, ok := s.transport.(*SMTPTransport)
	require.True(t, ok, "the default transport should be SMTP, got %T", s.transport)
	assert.Equal(t, "relay.example.com", tr.host)
	assert.IsType(t, &storage.NoOpDB{}, s.journal)
}

func TestSendErrorWithoutCause(t *testing.T) {
	assert.Equal(t, "failed to send email", (&SendError{}).Error())
}
