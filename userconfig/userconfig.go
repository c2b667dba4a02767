package userconfig

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"
	yaml "gopkg.in/yaml.v2"

	"github.com/ShellRechargeSolutionsEU/mailer/email"
	"github.com/ShellRechargeSolutionsEU/mailer/ses"
	"github.com/ShellRechargeSolutionsEU/mailer/storage"
)

// Transport names accepted in the "transport" key.
const (
	TransportSMTP   = "smtp"
	TransportSES    = "ses"
	TransportStdout = "stdout"
)

// Used when neither the config nor the command line sets a timeout.
const defaultTimeout = 30 * time.Second

// Meta represents all current config options that the application can use,
// i.e., after validation and parsing
type Meta struct {
	Email     email.Config `yaml:"email"`
	Transport string       `yaml:"transport"`
	SES       ses.Config   `yaml:"ses"`
	Sending   Sending      `yaml:"sending"`
	// nil disables the journal
	Journal *storage.KVConfig `yaml:"journal"`
}

// Sending holds defaults for every message the application sends. Command
// line flags take precedence.
type Sending struct {
	From    string
	Timeout time.Duration
}

// UnmarshalYAML parses a user-provided YAML configuration, returning any
// parsing errors.
func (s *Sending) UnmarshalYAML(unmarshal func(interface{}) error) error {
	v := make(map[string]string)
	err := unmarshal(&v)

	if err != nil {
		return fmt.Errorf("can't parse the sending config: %v", err)
	}

	s.From = v["from"]

	d, ok := v["timeout"]
	if !ok {
		d = "0s"
	}

	pd, err := time.ParseDuration(d)
	if err != nil {
		return fmt.Errorf(
			"can't parse the user-provided timeout as a duration: %v",
			err,
		)
	}
	s.Timeout = pd

	return nil
}

// CheckAndSetDefaults validates s and either returns a copy of s with default
// settings applied or returns an error due to an invalid configuration
func (s *Sending) CheckAndSetDefaults() (Sending, error) {
	if s.Timeout < 0 {
		return Sending{}, errors.New("the sending timeout can't be negative")
	}
	if s.Timeout == 0 {
		s.Timeout = defaultTimeout
	}
	return *s, nil
}

// CheckAndSetDefaults validates m and either returns a copy of m with default
// settings applied or returns an error due to an invalid configuration
func (m *Meta) CheckAndSetDefaults() (Meta, error) {
	c := Meta{
		Email:   m.Email,
		Journal: m.Journal,
	}

	switch m.Transport {
	case "":
		c.Transport = TransportSMTP
	case TransportSMTP, TransportSES, TransportStdout:
		c.Transport = m.Transport
	default:
		return Meta{}, fmt.Errorf(
			"unknown transport %q: must be one of %q, %q or %q",
			m.Transport, TransportSMTP, TransportSES, TransportStdout,
		)
	}

	switch c.Transport {
	case TransportSMTP:
		if m.Email.Host == "" {
			return Meta{}, errors.New("the smtp transport needs an email host")
		}
	case TransportSES:
		sc, err := m.SES.CheckAndSetDefaults()
		if err != nil {
			return Meta{}, err
		}
		c.SES = sc
	}

	s, err := m.Sending.CheckAndSetDefaults()
	if err != nil {
		return Meta{}, err
	}
	c.Sending = s

	return c, nil
}

// Parse generates usable configurations from possibly arbitrary user input.
// An error indicates a problem with parsing. Call CheckAndSetDefaults on the
// result before use.
func Parse(r io.Reader) (*Meta, error) {
	var m Meta
	err := yaml.NewDecoder(r).Decode(&m)
	if err != nil {
		return &Meta{}, fmt.Errorf("can't read the config file as YAML: %v", err)
	}

	if m.Email == (email.Config{}) && m.Transport != TransportSES && m.Transport != TransportStdout {
		return &Meta{}, errors.New("must include an \"email\" section")
	}

	if m.Journal == nil {
		log.Debug().Msg("no journal configured, sent messages won't be recorded")
	}

	return &m, nil
}

// Empty is the configuration used when no file is given: messages are
// printed instead of sent.
func Empty() Meta {
	return Meta{
		Transport: TransportStdout,
		Sending:   Sending{Timeout: defaultTimeout},
	}
}
