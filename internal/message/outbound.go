package message

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-message/mail"

	"github.com/predicatestudio/gmapi/internal/gmail"
)

// ErrAlreadySent is returned when an Outbound is submitted a second time.
var ErrAlreadySent = errors.New("message already sent")

const (
	headerInReplyTo  = "In-Reply-To"
	headerReferences = "References"
	headerMessageID  = "Message-Id"
	replyPrefix      = "Re: "
)

// Outbound is a message composed for sending. ThreadID is empty for a new
// conversation. From, To and Subject are rendered from the fields; Header
// carries everything else (date, threading).
type Outbound struct {
	From       string
	To         string
	Subject    string
	Text       string
	Attachment *Attachment
	ThreadID   gmail.ThreadID
	Header     mail.Header

	sent bool
}

// Compose builds a new message. attachmentPath is optional; when set the file
// is read and the message becomes multipart/mixed.
func Compose(from, to, subject, text, attachmentPath string) (*Outbound, error) {
	var att *Attachment
	if attachmentPath != "" {
		var err error
		if att, err = LoadAttachment(attachmentPath); err != nil {
			return nil, err
		}
	}
	return NewOutbound(from, to, subject, text, att), nil
}

// NewOutbound builds a message from an attachment already in memory.
func NewOutbound(from, to, subject, text string, att *Attachment) *Outbound {
	h := mail.Header{}
	h.SetDate(time.Now())
	return &Outbound{
		From:       from,
		To:         to,
		Subject:    subject,
		Text:       text,
		Attachment: att,
		Header:     h,
	}
}

// Reply builds an answer to original in the same thread, addressed to its sender.
func Reply(from string, original *Inbound, text, attachmentPath string) (*Outbound, error) {
	out, err := Compose(from, original.Header("From"), ReplySubject(original.Subject), text, attachmentPath)
	if err != nil {
		return nil, err
	}
	out.ThreadID = original.ThreadID
	inReplyTo, references := threadHeaders(original)
	out.Header.Del(headerInReplyTo)
	out.Header.Del(headerReferences)
	if inReplyTo != "" {
		out.Header.Set(headerInReplyTo, inReplyTo)
	}
	if references != "" {
		out.Header.Set(headerReferences, references)
	}
	return out, nil
}

// ReplySubject prefixes subject with "Re: " unless it already starts with it.
// The check is case-sensitive.
func ReplySubject(subject string) string {
	if len(subject) >= len(replyPrefix) && subject[:len(replyPrefix)] == replyPrefix {
		return subject
	}
	return replyPrefix + subject
}

func threadHeaders(original *Inbound) (inReplyTo, references string) {
	msgID := original.Header(headerMessageID)
	references = original.Header(headerReferences)
	if references == "" {
		references = original.Header(headerInReplyTo)
	}
	switch {
	case references != "" && msgID != "":
		references += " " + msgID
	case references == "":
		references = msgID
	}
	return msgID, references
}

// InReplyTo returns the In-Reply-To header, empty for a new conversation.
func (o *Outbound) InReplyTo() string { return o.Header.Get(headerInReplyTo) }

// References returns the References header.
func (o *Outbound) References() string { return o.Header.Get(headerReferences) }

// Sent reports whether the message was submitted.
func (o *Outbound) Sent() bool { return o.sent }

// MarkSent records a successful submission.
func (o *Outbound) MarkSent() { o.sent = true }

// Bytes renders the full RFC 5322 message.
func (o *Outbound) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if o.Attachment == nil {
		if err := o.writeSingle(&buf); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	if err := o.writeMultipart(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Encode renders the message as base64url, the form the send endpoint expects.
func (o *Outbound) Encode() (string, error) {
	data, err := o.Bytes()
	if err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(data), nil
}

// renderHeader copies Header and sets the addressing fields from o.
func (o *Outbound) renderHeader() mail.Header {
	h := cloneHeader(o.Header)
	for _, k := range []string{"From", "To", "Subject"} {
		h.Del(k)
	}
	setAddress(&h, "From", o.From)
	setAddress(&h, "To", o.To)
	h.SetSubject(o.Subject)
	return h
}

func (o *Outbound) writeSingle(w io.Writer) error {
	h := o.renderHeader()
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	body, err := mail.CreateSingleInlineWriter(w, h)
	if err != nil {
		return fmt.Errorf("create message writer: %w", err)
	}
	if _, err := io.WriteString(body, o.Text); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	if err := body.Close(); err != nil {
		return fmt.Errorf("close body: %w", err)
	}
	return nil
}

func (o *Outbound) writeMultipart(w io.Writer) error {
	mw, err := mail.CreateWriter(w, o.renderHeader())
	if err != nil {
		return fmt.Errorf("create mail writer: %w", err)
	}

	textPart, err := mw.CreateInline()
	if err != nil {
		return fmt.Errorf("create text part: %w", err)
	}
	inlineHeader := mail.InlineHeader{}
	inlineHeader.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	textWriter, err := textPart.CreatePart(inlineHeader)
	if err != nil {
		return fmt.Errorf("create text body: %w", err)
	}
	if _, err := io.WriteString(textWriter, o.Text); err != nil {
		return fmt.Errorf("write text body: %w", err)
	}
	if err := textWriter.Close(); err != nil {
		return fmt.Errorf("close text body: %w", err)
	}
	if err := textPart.Close(); err != nil {
		return fmt.Errorf("close text part: %w", err)
	}

	attachmentHeader := mail.AttachmentHeader{}
	attachmentHeader.SetContentType(o.Attachment.ContentType, nil)
	attachmentHeader.Set("Content-Transfer-Encoding", "base64")
	attachmentHeader.SetFilename(o.Attachment.Filename)
	attachmentWriter, err := mw.CreateAttachment(attachmentHeader)
	if err != nil {
		return fmt.Errorf("create attachment part: %w", err)
	}
	if _, err := attachmentWriter.Write(o.Attachment.Content); err != nil {
		return fmt.Errorf("write attachment: %w", err)
	}
	if err := attachmentWriter.Close(); err != nil {
		return fmt.Errorf("close attachment: %w", err)
	}

	if err := mw.Close(); err != nil {
		return fmt.Errorf("close mail writer: %w", err)
	}
	return nil
}

func cloneHeader(src mail.Header) mail.Header {
	dst := mail.Header{}
	fields := src.Fields()
	for fields.Next() {
		dst.Add(fields.Key(), fields.Value())
	}
	return dst
}

// setAddress writes an address header, keeping the raw value when it does not
// parse as an address list (e.g. the "me" account alias).
func setAddress(h *mail.Header, key, value string) {
	if value == "" {
		return
	}
	addrs, err := mail.ParseAddressList(value)
	if err != nil || len(addrs) == 0 {
		h.Set(key, value)
		return
	}
	h.SetAddressList(key, addrs)
}
