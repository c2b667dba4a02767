package email

import (
	"errors"
	"fmt"

	"github.com/wneessen/go-mail"
)

// BodyKind is the shape of an assembled body.
type BodyKind int

const (
	// BodyText is a single text/plain body with no multipart wrapper.
	BodyText BodyKind = iota
	// BodyAlternative is a multipart/alternative group of inline content.
	BodyAlternative
	// BodyMixed is a multipart/mixed group: the alternative group first,
	// then the attachments.
	BodyMixed
)

func (k BodyKind) String() string {
	switch k {
	case BodyText:
		return "text"
	case BodyAlternative:
		return "alternative"
	case BodyMixed:
		return "mixed"
	default:
		return "unknown"
	}
}

// Body is the MIME structure of a message before it is encoded.
type Body struct {
	Kind BodyKind
	// Set for BodyText only.
	Text string
	// Inline content (PlainText, HTML or Native) in input order. Empty for
	// BodyText.
	Alternatives []Part
	// Set for BodyMixed only, in input order.
	Attachments []Attachment
}

// AssembleBody builds the body structure for parts. Parts that don't carry
// content (recipients, reply-to, headers) are ignored.
//
// A lone PlainText with no attachments becomes a BodyText. Anything else
// becomes an alternative group, wrapped in a mixed group when there are
// attachments.
func AssembleBody(parts []Part) Body {
	var content []Part
	var attachments []Attachment

	for _, p := range parts {
		switch v := p.(type) {
		case Attachment:
			attachments = append(attachments, v)
		case PlainText, HTML, Native:
			content = append(content, v)
		}
	}

	if len(attachments) == 0 && len(content) == 1 {
		if t, ok := content[0].(PlainText); ok {
			return Body{Kind: BodyText, Text: t.Text}
		}
	}

	if len(attachments) == 0 {
		return Body{Kind: BodyAlternative, Alternatives: content}
	}

	return Body{
		Kind:         BodyMixed,
		Alternatives: content,
		Attachments:  attachments,
	}
}

// render writes b into m. go-mail decides the multipart layout from what it
// is given: more than one part becomes multipart/alternative and any
// attachment adds the multipart/mixed wrapper.
func (b Body) render(m *mail.Msg) error {
	if b.Kind == BodyText {
		m.SetBodyString(mail.TypeTextPlain, b.Text)
		return nil
	}

	first := true
	add := func(ct mail.ContentType, s string, opts ...mail.PartOption) {
		if first {
			m.SetBodyString(ct, s, opts...)
			first = false
			return
		}
		m.AddAlternativeString(ct, s, opts...)
	}

	for _, p := range b.Alternatives {
		switch v := p.(type) {
		case PlainText:
			add(mail.TypeTextPlain, v.Text)
		case HTML:
			add(v.contentType(), v.Content, mail.WithPartCharset(v.charset()))
		case Native:
			if v.Apply == nil {
				continue
			}
			if err := v.Apply(m); err != nil {
				return fmt.Errorf("native part: %w", err)
			}
			// The native part may have set the body itself.
			if len(m.GetParts()) > 0 {
				first = false
			}
		}
	}

	for _, a := range b.Attachments {
		if err := attach(m, a); err != nil {
			return err
		}
	}

	return nil
}

// attach opens a's content source and hands it to go-mail, which reads it
// into memory right away.
func attach(m *mail.Msg, a Attachment) error {
	if a.Source == nil {
		return fmt.Errorf("attachment %q: %w", a.Name, errNoSource)
	}
	r, err := a.Source()
	if err != nil {
		return fmt.Errorf("attachment %q: can't open the content: %w", a.Name, err)
	}
	defer r.Close()

	err = m.AttachReader(a.Name, r, mail.WithFileContentType(a.contentType()))
	if err != nil {
		return fmt.Errorf("attachment %q: can't read the content: %w", a.Name, err)
	}
	return nil
}

var errNoSource = errors.New("no content source")
