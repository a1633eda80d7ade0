package message

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"net/textproto"
	"strings"
	"time"

	"github.com/jhillyerd/enmime/v2"

	"github.com/predicatestudio/gmapi/internal/gmail"
)

// ErrMalformed is returned when a fetched message cannot be decoded.
var ErrMalformed = errors.New("malformed message")

// Inbound is a fetched message with its MIME content decoded. It is never
// modified after Decode returns.
type Inbound struct {
	ID           gmail.MessageID
	ThreadID     gmail.ThreadID
	LabelIDs     []gmail.LabelID
	Snippet      string
	Raw          string // base64url, as delivered by the API
	HistoryID    uint64
	InternalDate time.Time

	Headers  map[string]string // canonical key -> last value
	Subject  string
	TextBody string // text/plain part, empty when the message has none
	Body     string // HTML when present, otherwise TextBody
}

// Header returns the named header, matched case-insensitively.
func (m *Inbound) Header(name string) string {
	return m.Headers[textproto.CanonicalMIMEHeaderKey(name)]
}

// HasHeader reports whether the message carries the named header.
func (m *Inbound) HasHeader(name string) bool {
	_, ok := m.Headers[textproto.CanonicalMIMEHeaderKey(name)]
	return ok
}

func (m *Inbound) String() string {
	return fmt.Sprintf("%s %q %q", m.ID, m.Subject, m.Snippet)
}

// lossyWarnings are parser warnings enmime does not mark severe although part
// of the body is dropped or left undecoded.
var lossyWarnings = map[string]bool{
	enmime.ErrorMalformedBase64:    true,
	enmime.ErrorMissingBoundary:    true,
	enmime.ErrorMalformedChildPart: true,
	enmime.ErrorDataHasBoundary:    true,
	enmime.ErrorContentEncoding:    true,
}

// Decode turns a raw API message into an Inbound. Parsing is strict: a severe
// MIME error, or a warning that means body content was lost, fails the decode.
func Decode(raw gmail.RawMessage) (*Inbound, error) {
	data, err := decodeTransport(raw.Raw)
	if err != nil {
		return nil, fmt.Errorf("decode message %s: %w", raw.ID, err)
	}
	env, err := enmime.ReadEnvelope(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse message %s: %w: %w", raw.ID, ErrMalformed, err)
	}
	for _, perr := range env.Errors {
		if perr.Severe || lossyWarnings[perr.Name] {
			return nil, fmt.Errorf("parse message %s: %w: %s", raw.ID, ErrMalformed, perr.Error())
		}
	}

	m := &Inbound{
		ID:           raw.ID,
		ThreadID:     raw.ThreadID,
		LabelIDs:     raw.LabelIDs,
		Snippet:      raw.Snippet,
		Raw:          raw.Raw,
		HistoryID:    raw.HistoryID,
		InternalDate: raw.InternalDate,
		Headers:      collapseHeaders(env),
	}
	m.Subject = m.Header("Subject")
	if part := env.Root.BreadthMatchFirst(isTextPart); part != nil {
		m.TextBody = string(part.Content)
	}
	m.Body = m.TextBody
	if env.HTML != "" {
		m.Body = env.HTML
	}
	return m, nil
}

func isTextPart(p *enmime.Part) bool {
	return strings.EqualFold(p.ContentType, "text/plain") && p.Disposition != "attachment"
}

// collapseHeaders keeps the last occurrence of every header, decoded.
func collapseHeaders(env *enmime.Envelope) map[string]string {
	keys := env.GetHeaderKeys()
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		vals := env.GetHeaderValues(k)
		if len(vals) == 0 {
			continue
		}
		out[textproto.CanonicalMIMEHeaderKey(k)] = vals[len(vals)-1]
	}
	return out
}

// decodeTransport accepts base64url with or without padding.
func decodeTransport(s string) ([]byte, error) {
	s = strings.TrimRight(strings.TrimSpace(s), "=")
	data, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: base64url: %w", ErrMalformed, err)
	}
	return data, nil
}
