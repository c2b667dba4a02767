package main

import (
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/docker/go-units"
	"github.com/rs/zerolog/log"

	"github.com/ShellRechargeSolutionsEU/mailer/email"
)

// Most relays reject messages much larger than this once base64 has
// inflated the attachments.
const maxAttachmentSize int64 = 25 * units.MiB

// stringList is a repeatable flag.
type stringList []string

func (s *stringList) String() string {
	return strings.Join(*s, ",")
}

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// cliFlags holds the message-related command line flags.
type cliFlags struct {
	from        string
	to          string
	cc          string
	bcc         string
	replyTo     string
	subject     string
	text        string
	htmlPath    string
	attachments stringList
	headers     stringList
}

// parts turns the flags into message parts in a fixed order: recipients,
// reply-to, headers, text, HTML, attachments.
func (f cliFlags) parts() ([]email.Part, error) {
	var parts []email.Part

	for _, a := range splitList(f.to) {
		parts = append(parts, email.To(a))
	}
	for _, a := range splitList(f.cc) {
		parts = append(parts, email.CC(a))
	}
	for _, a := range splitList(f.bcc) {
		parts = append(parts, email.BCC(a))
	}
	if len(parts) == 0 {
		return nil, errors.New("at least one of -to, -cc or -bcc is required")
	}
	for _, a := range splitList(f.replyTo) {
		parts = append(parts, email.ReplyTo{Address: a})
	}

	for _, h := range f.headers {
		hp, err := parseHeader(h)
		if err != nil {
			return nil, err
		}
		parts = append(parts, hp)
	}

	if f.text != "" {
		parts = append(parts, email.PlainText{Text: f.text})
	}
	if f.htmlPath != "" {
		b, err := os.ReadFile(f.htmlPath)
		if err != nil {
			return nil, fmt.Errorf("can't read the HTML body: %w", err)
		}
		parts = append(parts, email.HTML{Content: string(b)})
	}

	for _, p := range f.attachments {
		a, err := attachment(p)
		if err != nil {
			return nil, err
		}
		parts = append(parts, a)
	}

	return parts, nil
}

// attachment checks that path is a readable regular file within the size
// limit. The file is read when the message is built.
func attachment(path string) (email.Attachment, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return email.Attachment{}, fmt.Errorf("can't attach %v: %w", path, err)
	}
	if !fi.Mode().IsRegular() {
		return email.Attachment{}, fmt.Errorf("can't attach %v: not a regular file", path)
	}
	if fi.Size() > maxAttachmentSize {
		return email.Attachment{}, fmt.Errorf(
			"can't attach %v: %v is over the %v limit",
			path,
			units.HumanSize(float64(fi.Size())),
			units.HumanSize(float64(maxAttachmentSize)),
		)
	}

	name := filepath.Base(path)
	mt := mime.TypeByExtension(filepath.Ext(name))
	log.Debug().
		Str("name", name).
		Str("size", units.HumanSize(float64(fi.Size()))).
		Str("mimeType", mt).
		Msg("attaching a file")

	return email.Attachment{
		Name:     name,
		Source:   email.FileSource(path),
		MimeType: mt,
	}, nil
}

// parseHeader reads "Name: value".
func parseHeader(s string) (email.Header, error) {
	name, value, ok := strings.Cut(s, ":")
	name = strings.TrimSpace(name)
	if !ok || name == "" || strings.ContainsAny(name, " \t") {
		return email.Header{}, fmt.Errorf("%q is not a header, expected \"Name: value\"", s)
	}
	return email.Header{Name: name, Value: strings.TrimSpace(value)}, nil
}

func splitList(s string) []string {
	var r []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			r = append(r, v)
		}
	}
	return r
}
