package message

import (
	"bytes"
	"encoding/base64"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jhillyerd/enmime/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/predicatestudio/gmapi/internal/gmail"
)

func inbound(headers map[string]string) *Inbound {
	m := &Inbound{ID: "orig", ThreadID: "thread-1", Headers: map[string]string{}}
	for k, v := range headers {
		m.Headers[textproto.CanonicalMIMEHeaderKey(k)] = v
	}
	m.Subject = m.Header("Subject")
	return m
}

func render(t *testing.T, o *Outbound) *enmime.Envelope {
	t.Helper()
	data, err := o.Bytes()
	require.NoError(t, err)
	env, err := enmime.ReadEnvelope(bytes.NewReader(data))
	require.NoError(t, err)
	return env
}

func TestComposePlain(t *testing.T) {
	o, err := Compose("me@example.com", "Bob <bob@example.com>", "Hello", "body text", "")
	require.NoError(t, err)
	assert.Empty(t, o.ThreadID)
	assert.Nil(t, o.Attachment)

	env := render(t, o)
	assert.Equal(t, "Hello", env.GetHeader("Subject"))
	assert.Contains(t, env.GetHeader("To"), "bob@example.com")
	assert.Contains(t, env.GetHeader("From"), "me@example.com")
	assert.Equal(t, "body text", strings.TrimSpace(env.Text))
	assert.Empty(t, env.Attachments)
}

func TestComposeWithAttachment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 fake"), 0o600))

	o, err := Compose("me", "bob@example.com", "Report", "see attached", path)
	require.NoError(t, err)
	require.NotNil(t, o.Attachment)
	assert.Equal(t, "application/pdf", o.Attachment.ContentType)

	env := render(t, o)
	assert.Equal(t, "see attached", strings.TrimSpace(env.Text))
	require.Len(t, env.Attachments, 1)
	assert.Equal(t, "report.pdf", env.Attachments[0].FileName)
	assert.Equal(t, "application/pdf", env.Attachments[0].ContentType)
	assert.Equal(t, []byte("%PDF-1.4 fake"), env.Attachments[0].Content)
}

func TestComposeMissingAttachment(t *testing.T) {
	_, err := Compose("me", "bob@example.com", "x", "y", filepath.Join(t.TempDir(), "absent.bin"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestContentTypeFor(t *testing.T) {
	tests := map[string]string{
		"photo.png":       "image/png",
		"doc.PDF":         "application/pdf",
		"archive.tar.gz":  fallbackContentType,
		"blob.unknownext": fallbackContentType,
		"Makefile":        fallbackContentType,
	}
	for name, want := range tests {
		assert.Equal(t, want, ContentTypeFor(name), name)
	}
}

func TestReplySubject(t *testing.T) {
	assert.Equal(t, "Re: Quarterly report", ReplySubject("Quarterly report"))
	assert.Equal(t, "Re: Quarterly report", ReplySubject(ReplySubject("Quarterly report")))
	assert.Equal(t, "Re: re: lower", ReplySubject("re: lower"))
	assert.Equal(t, "Re: ", ReplySubject(""))
}

func TestReplyThreading(t *testing.T) {
	tests := []struct {
		name           string
		headers        map[string]string
		wantInReplyTo  string
		wantReferences string
	}{
		{
			name:           "first-reply",
			headers:        map[string]string{"Message-ID": "<abc@x>"},
			wantInReplyTo:  "<abc@x>",
			wantReferences: "<abc@x>",
		},
		{
			name: "existing-references",
			headers: map[string]string{
				"Message-ID":  "<c@x>",
				"References":  "<a@x> <b@x>",
				"In-Reply-To": "<b@x>",
			},
			wantInReplyTo:  "<c@x>",
			wantReferences: "<a@x> <b@x> <c@x>",
		},
		{
			name: "in-reply-to-fallback",
			headers: map[string]string{
				"Message-ID":  "<c@x>",
				"In-Reply-To": "<b@x>",
			},
			wantInReplyTo:  "<c@x>",
			wantReferences: "<b@x> <c@x>",
		},
		{
			name:           "no-message-id",
			headers:        map[string]string{"References": "<a@x>"},
			wantReferences: "<a@x>",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := map[string]string{"From": "alice@example.com", "Subject": "Quarterly report"}
			for k, v := range tc.headers {
				h[k] = v
			}
			o, err := Reply("me", inbound(h), "thanks", "")
			require.NoError(t, err)

			assert.Equal(t, tc.wantInReplyTo, o.InReplyTo())
			assert.Equal(t, tc.wantReferences, o.References())
			assert.Equal(t, gmail.ThreadID("thread-1"), o.ThreadID)
			assert.Equal(t, "Re: Quarterly report", o.Subject)
			assert.Equal(t, "alice@example.com", o.To)

			env := render(t, o)
			assert.Equal(t, tc.wantInReplyTo, env.GetHeader("In-Reply-To"))
			assert.Equal(t, tc.wantReferences, env.GetHeader("References"))
		})
	}
}

func TestReplyToReplyKeepsSinglePrefix(t *testing.T) {
	first, err := Reply("me", inbound(map[string]string{
		"From": "alice@example.com", "Subject": "Quarterly report", "Message-ID": "<1@x>",
	}), "one", "")
	require.NoError(t, err)

	second, err := Reply("me", inbound(map[string]string{
		"From": "bob@example.com", "Subject": first.Subject, "Message-ID": "<2@x>",
	}), "two", "")
	require.NoError(t, err)
	assert.Equal(t, "Re: Quarterly report", second.Subject)
}

func TestEncodeIsBase64URL(t *testing.T) {
	o := NewOutbound("me", "bob@example.com", "subject", "hi?>>", nil)
	encoded, err := o.Encode()
	require.NoError(t, err)
	assert.NotContains(t, encoded, "+")
	assert.NotContains(t, encoded, "/")

	data, err := base64.URLEncoding.DecodeString(encoded)
	require.NoError(t, err)
	assert.Contains(t, string(data), "subject")
}

func TestSendOnceFlag(t *testing.T) {
	o := NewOutbound("me", "bob@example.com", "s", "b", nil)
	assert.False(t, o.Sent())
	o.MarkSent()
	assert.True(t, o.Sent())
}

func TestRenderUsesEditedFields(t *testing.T) {
	o, err := Compose("me@example.com", "bob@example.com", "Draft", "body", "")
	require.NoError(t, err)
	o.Subject = "Final"
	o.To = "carol@example.com"

	env := render(t, o)
	assert.Equal(t, "Final", env.GetHeader("Subject"))
	assert.Contains(t, env.GetHeader("To"), "carol@example.com")
	assert.NotContains(t, env.GetHeader("To"), "bob@example.com")
	assert.Len(t, env.GetHeaderValues("Subject"), 1)
}
