// Package ses delivers messages through the AWS SES v2 API instead of an
// SMTP relay. Messages are rendered by go-mail and handed to SES as raw
// content, so everything the email package builds (alternative groups,
// attachments, custom headers) reaches SES unchanged.
package ses

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	netmail "net/mail"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/wneessen/go-mail"
)

const (
	defaultMaxRetries = 3
	defaultRetryDelay = 1 * time.Second
)

// Config holds the SES section of the application config. The static keys
// are optional; without them the default AWS credential chain applies.
type Config struct {
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"accessKeyID"`
	SecretAccessKey string `yaml:"secretAccessKey"`
	// Optional SES configuration set for event publishing
	ConfigurationSet string `yaml:"configurationSet"`
}

// CheckAndSetDefaults validates c and returns a copy.
func (c Config) CheckAndSetDefaults() (Config, error) {
	if c.Region == "" {
		return Config{}, errors.New("the ses config must include a region")
	}
	if (c.AccessKeyID == "") != (c.SecretAccessKey == "") {
		return Config{}, errors.New("accessKeyID and secretAccessKey must be set together")
	}
	return c, nil
}

// SendEmailAPI is the part of the SES v2 client the transport uses.
type SendEmailAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// Transport implements email.Transport on top of SES.
type Transport struct {
	client     SendEmailAPI
	configSet  string
	maxRetries int
	retryDelay time.Duration
	logger     zerolog.Logger
}

// New loads the AWS configuration for c and returns a Transport.
func New(ctx context.Context, c Config) (*Transport, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(c.Region),
	}
	if c.AccessKeyID != "" && c.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKeyID, c.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	t := NewWithClient(sesv2.NewFromConfig(awsCfg))
	t.configSet = c.ConfigurationSet
	return t, nil
}

// NewWithClient returns a Transport that uses client as is.
func NewWithClient(client SendEmailAPI) *Transport {
	return &Transport{
		client:     client,
		maxRetries: defaultMaxRetries,
		retryDelay: defaultRetryDelay,
		logger:     log.Logger,
	}
}

// Send renders msg and submits it as a raw SES message. Bcc addresses
// never appear in the rendered headers, so the envelope is passed
// explicitly. Throttling and server faults are retried with exponential
// backoff until ctx is done. Anything else fails right away.
func (t *Transport) Send(ctx context.Context, msg *mail.Msg) error {
	input, err := t.input(msg)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt <= t.maxRetries; attempt++ {
		if attempt > 0 {
			t.logger.Debug().
				Int("attempt", attempt).
				Int("maxRetries", t.maxRetries).
				Msg("retrying the SES request")
			if err := sleep(ctx, t.backoff(attempt)); err != nil {
				return fmt.Errorf("gave up waiting to retry: %w", err)
			}
		}

		out, err := t.client.SendEmail(ctx, input)
		if err == nil {
			if out != nil && out.MessageId != nil {
				t.logger.Debug().
					Str("sesMessageID", *out.MessageId).
					Msg("SES accepted the email")
			}
			return nil
		}
		if !retryable(err) {
			return fmt.Errorf("SES rejected the request: %w", err)
		}
		lastErr = err
		t.logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Msg("SES request failed")
	}

	return fmt.Errorf("SES request failed after %d retries: %w", t.maxRetries, lastErr)
}

func (t *Transport) input(msg *mail.Msg) (*sesv2.SendEmailInput, error) {
	s, err := msg.GetSender(false)
	if err != nil {
		return nil, fmt.Errorf("no sender: %w", err)
	}
	from, err := netmail.ParseAddress(s)
	if err != nil {
		return nil, fmt.Errorf("can't parse the sender %q: %w", s, err)
	}

	var buf bytes.Buffer
	if _, err := msg.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("render the message: %w", err)
	}

	in := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from.Address),
		Destination: &types.Destination{
			ToAddresses:  bare(msg.GetTo()),
			CcAddresses:  bare(msg.GetCc()),
			BccAddresses: bare(msg.GetBcc()),
		},
		Content: &types.EmailContent{
			Raw: &types.RawMessage{Data: buf.Bytes()},
		},
	}
	if t.configSet != "" {
		in.ConfigurationSetName = aws.String(t.configSet)
	}
	return in, nil
}

// bare drops display names and angle brackets.
func bare(addrs []*netmail.Address) []string {
	var r []string
	for _, a := range addrs {
		r = append(r, a.Address)
	}
	return r
}

// retryable reports whether SES might accept the same request later. The
// SDK has already retried network errors by the time one gets here.
func retryable(err error) bool {
	var ae smithy.APIError
	if !errors.As(err, &ae) {
		return false
	}
	switch ae.ErrorCode() {
	case "TooManyRequestsException", "Throttling", "ThrottlingException":
		return true
	}
	return ae.ErrorFault() == smithy.FaultServer
}

func (t *Transport) backoff(attempt int) time.Duration {
	d := t.retryDelay
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
