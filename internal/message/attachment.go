package message

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

const fallbackContentType = "application/octet-stream"

// compressed suffixes describe a transfer encoding rather than the content,
// so such files are sent as opaque binary.
var compressedSuffixes = map[string]struct{}{
	".gz": {}, ".z": {}, ".bz2": {}, ".xz": {}, ".br": {}, ".zst": {},
}

// Attachment is a single file carried by an outbound message.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// LoadAttachment reads path fully into memory. No size limit is applied.
func LoadAttachment(path string) (*Attachment, error) {
	content, err := os.ReadFile(path) // #nosec G304 - caller chooses the attachment
	if err != nil {
		return nil, fmt.Errorf("read attachment: %w", err)
	}
	name := filepath.Base(path)
	return &Attachment{Filename: name, ContentType: ContentTypeFor(name), Content: content}, nil
}

// ContentTypeFor guesses a media type from the file extension.
func ContentTypeFor(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return fallbackContentType
	}
	if _, ok := compressedSuffixes[ext]; ok {
		return fallbackContentType
	}
	ct := mime.TypeByExtension(ext)
	if ct == "" {
		return fallbackContentType
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil || !strings.Contains(mediaType, "/") {
		return fallbackContentType
	}
	return mediaType
}
