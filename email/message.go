package email

import (
	"fmt"

	"github.com/wneessen/go-mail"
)

// Message is everything needed to produce one outgoing email. Build it with
// BuildMessage. A Message isn't reused across sends.
type Message struct {
	From    string
	To      []string
	CC      []string
	BCC     []string
	ReplyTo []string
	Subject string
	// In input order. Names may repeat.
	Headers []Header
	Body    Body
}

// BuildMessage sorts parts into recipient lists, reply-to addresses and
// headers, and assembles the body from the rest.
func BuildMessage(from, subject string, parts []Part) Message {
	m := Message{
		From:    from,
		Subject: subject,
		Body:    AssembleBody(parts),
	}

	for _, p := range parts {
		switch v := p.(type) {
		case Recipient:
			switch v.Kind {
			case KindTo:
				m.To = append(m.To, v.Address)
			case KindCC:
				m.CC = append(m.CC, v.Address)
			case KindBCC:
				m.BCC = append(m.BCC, v.Address)
			}
		case ReplyTo:
			m.ReplyTo = append(m.ReplyTo, v.Address)
		case Header:
			m.Headers = append(m.Headers, v)
		}
	}

	return m
}

// Recipients returns the number of envelope recipients.
func (m Message) Recipients() int {
	return len(m.To) + len(m.CC) + len(m.BCC)
}

// MailMsg renders m as a go-mail message ready for a Transport. Attachment
// sources are opened here.
func (m Message) MailMsg() (*mail.Msg, error) {
	msg := mail.NewMsg()

	if err := msg.From(m.From); err != nil {
		return nil, fmt.Errorf("set from: %w", err)
	}

	addrs := []struct {
		h    mail.AddrHeader
		list []string
	}{
		{mail.HeaderTo, m.To},
		{mail.HeaderCc, m.CC},
		{mail.HeaderBcc, m.BCC},
		{mail.HeaderReplyTo, m.ReplyTo},
	}
	for _, a := range addrs {
		if len(a.list) == 0 {
			continue
		}
		if err := msg.SetAddrHeader(a.h, a.list...); err != nil {
			return nil, fmt.Errorf("set %s: %w", a.h, err)
		}
	}

	msg.Subject(m.Subject)

	// go-mail keys generic headers by name, so repeated names are collected
	// first and set together.
	var names []string
	values := make(map[string][]string)
	for _, h := range m.Headers {
		if _, ok := values[h.Name]; !ok {
			names = append(names, h.Name)
		}
		values[h.Name] = append(values[h.Name], h.Value)
	}
	for _, n := range names {
		msg.SetGenHeader(mail.Header(n), values[n]...)
	}

	msg.SetDate()
	msg.SetMessageID()

	if err := m.Body.render(msg); err != nil {
		return nil, fmt.Errorf("build body: %w", err)
	}

	return msg, nil
}
