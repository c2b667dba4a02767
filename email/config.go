package email

import (
	"fmt"
	"strconv"
)

// Property keys rendered by Config.Properties.
const (
	PropHost     = "host"
	PropAuth     = "auth-enabled"
	PropStartTLS = "starttls-enabled"
	PropRunMode  = "run-mode"
)

// Config holds the connection settings for a Service. Username, Password and
// RunMode are optional; an empty string means "not set".
//
// Nothing here is validated. A malformed host or AuthEnabled without
// credentials is passed through to the transport, which fails when it tries
// to connect.
type Config struct {
	Host            string
	AuthEnabled     bool
	StartTLSEnabled bool
	Username        string
	Password        string
	// dev, test, staging, prod etc. Informational only.
	RunMode string
}

// Properties renders c as the property mapping read by the transport.
func (c Config) Properties() map[string]string {
	p := map[string]string{
		PropHost:     c.Host,
		PropAuth:     strconv.FormatBool(c.AuthEnabled),
		PropStartTLS: strconv.FormatBool(c.StartTLSEnabled),
	}
	if c.RunMode != "" {
		p[PropRunMode] = c.RunMode
	}
	return p
}

// UnmarshalYAML implements the yaml.Unmarshaler interface. Only values that
// can't be parsed at all are rejected.
func (c *Config) UnmarshalYAML(unmarshal func(interface{}) error) error {
	v := make(map[string]string)
	err := unmarshal(&v)

	if err != nil {
		return fmt.Errorf("can't parse the email config: %v", err)
	}

	a, err := parseFlag(v, "auth")
	if err != nil {
		return err
	}

	s, err := parseFlag(v, "starttls")
	if err != nil {
		return err
	}

	c.Host = v["host"]
	c.AuthEnabled = a
	c.StartTLSEnabled = s
	c.Username = v["username"]
	c.Password = v["password"]
	c.RunMode = v["runMode"]

	return nil
}

// parseFlag reads an optional boolean from a decoded YAML map. A missing key
// is false.
func parseFlag(v map[string]string, key string) (bool, error) {
	s, ok := v[key]
	if !ok || s == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("%q must be true or false, got %q", key, s)
	}
	return b, nil
}
