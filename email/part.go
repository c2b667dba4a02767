package email

import (
	"bytes"
	"io"
	"os"
	"strings"

	"github.com/wneessen/go-mail"
)

// Part is one element of an outgoing message: inline content, an
// attachment, a recipient, a reply-to address or a header. The set of Part
// types is closed. Use a type switch to tell them apart.
type Part interface {
	isPart()
}

// PlainText is a text/plain body.
type PlainText struct {
	Text string
}

// HTML is an HTML body. A zero Charset means UTF-8 and a zero Subtype means
// "html", so the part is sent as text/html; charset=UTF-8.
type HTML struct {
	Content string
	Charset string
	Subtype string
}

// ContentSource opens the content of an attachment. It's called once each
// time a message is built, so it must return a fresh reader every time.
type ContentSource func() (io.ReadCloser, error)

// Attachment is a file attached to the message.
type Attachment struct {
	Name     string
	Source   ContentSource
	MimeType string // application/octet-stream if empty
}

// RecipientKind says which recipient list an address goes to.
type RecipientKind int

const (
	KindTo RecipientKind = iota
	KindCC
	KindBCC
)

func (k RecipientKind) String() string {
	switch k {
	case KindTo:
		return "To"
	case KindCC:
		return "Cc"
	case KindBCC:
		return "Bcc"
	default:
		return "Unknown"
	}
}

// Recipient adds Address to the To, Cc or Bcc list.
type Recipient struct {
	Kind    RecipientKind
	Address string
}

// ReplyTo adds a Reply-To address.
type ReplyTo struct {
	Address string
}

// Header adds a custom header. Headers are additive: two Header parts with
// the same Name both end up in the message, written as a single header line
// whose values are joined by ", " in part order.
type Header struct {
	Name  string
	Value string
}

// Native passes a part through to go-mail. Apply runs against the message
// while the body is rendered, in the position the part had in the input
// list, so it can add alternatives or anything else go-mail supports.
type Native struct {
	Apply func(*mail.Msg) error
}

func (PlainText) isPart()  {}
func (HTML) isPart()       {}
func (Attachment) isPart() {}
func (Recipient) isPart()  {}
func (ReplyTo) isPart()    {}
func (Header) isPart()     {}
func (Native) isPart()     {}

// To is shorthand for a Recipient of kind KindTo.
func To(addr string) Recipient { return Recipient{Kind: KindTo, Address: addr} }

// CC is shorthand for a Recipient of kind KindCC.
func CC(addr string) Recipient { return Recipient{Kind: KindCC, Address: addr} }

// BCC is shorthand for a Recipient of kind KindBCC.
func BCC(addr string) Recipient { return Recipient{Kind: KindBCC, Address: addr} }

// contentType returns the MIME type of h, applying defaults.
func (h HTML) contentType() mail.ContentType {
	st := h.Subtype
	if st == "" {
		st = "html"
	}
	return mail.ContentType("text/" + st)
}

func (h HTML) charset() mail.Charset {
	if h.Charset == "" {
		return mail.CharsetUTF8
	}
	return mail.Charset(h.Charset)
}

func (a Attachment) contentType() mail.ContentType {
	if a.MimeType == "" {
		return mail.TypeAppOctetStream
	}
	return mail.ContentType(a.MimeType)
}

// Bytes reads the whole attachment from a fresh reader.
func (a Attachment) Bytes() ([]byte, error) {
	r, err := a.Source()
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// BytesSource serves b. b must not be modified afterwards.
func BytesSource(b []byte) ContentSource {
	return func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(b)), nil
	}
}

// StringSource serves s.
func StringSource(s string) ContentSource {
	return func() (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(s)), nil
	}
}

// FileSource opens the file at path each time the content is needed.
func FileSource(path string) ContentSource {
	return func() (io.ReadCloser, error) {
		return os.Open(path)
	}
}
