package smtptest

import (
	"fmt"
	"mime"
	"net/mail"
	"strings"
)

// ParseEmail splits a raw message into its headers and the media type and
// params of its top-level Content-Type.
func ParseEmail(raw string) (*mail.Message, string, map[string]string, error) {
	m, err := mail.ReadMessage(strings.NewReader(raw))
	if err != nil {
		return nil, "", nil, fmt.Errorf("can't read the message: %v", err)
	}
	ct := m.Header.Get("Content-Type")
	if ct == "" {
		ct = "text/plain"
	}
	mt, params, err := mime.ParseMediaType(ct)
	if err != nil {
		return nil, "", nil, fmt.Errorf("can't parse the content type %q: %v", ct, err)
	}
	return m, mt, params, nil
}
