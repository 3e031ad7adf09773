// Package body extracts readable text from raw RFC 5322 messages.
package body

import (
	"bytes"
	"errors"
	"io"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"golang.org/x/text/encoding/unicode"
)

// NoTextContent is returned by Preview when nothing readable was found.
const NoTextContent = "No text content found"

const (
	previewSeparator = "\n"
	exportSeparator  = "\n---\n"
)

// Preview returns the text/plain content of raw for display.
func Preview(raw []byte) string {
	return Extract(raw, false)
}

// ForExport returns the text/plain and text/html content of raw for the
// JSON export, or "" when there is none.
func ForExport(raw []byte) string {
	return Extract(raw, true)
}

// Extract collects the textual parts of raw. For multipart messages
// every text/plain part is taken, plus text/html parts when includeHTML
// is set. A single-part message contributes its body whatever its type.
// Transfer encodings and known charsets are decoded; anything left that
// is not valid UTF-8 is replaced with U+FFFD. Extract never fails.
func Extract(raw []byte, includeHTML bool) string {
	parts := textParts(raw, includeHTML)

	if len(parts) == 0 {
		if includeHTML {
			return ""
		}
		return NoTextContent
	}

	sep := previewSeparator
	if includeHTML {
		sep = exportSeparator
	}
	return strings.Join(parts, sep)
}

func textParts(raw []byte, includeHTML bool) []string {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return []string{toUTF8(raw)}
	}
	defer mr.Close()

	topType, _, _ := mr.Header.ContentType()
	multipart := strings.HasPrefix(topType, "multipart/")

	var parts []string
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil && (part == nil || !message.IsUnknownCharset(err)) {
			break
		}

		if multipart && !wanted(partType(part), includeHTML) {
			continue
		}

		// A truncated body still yields whatever was decoded.
		content, _ := io.ReadAll(part.Body)
		if includeHTML && len(content) == 0 {
			continue
		}
		parts = append(parts, toUTF8(content))
	}

	return parts
}

func partType(part *mail.Part) string {
	var contentType string
	switch h := part.Header.(type) {
	case *mail.InlineHeader:
		contentType, _, _ = h.ContentType()
	case *mail.AttachmentHeader:
		contentType, _, _ = h.ContentType()
	}
	if contentType == "" {
		return "text/plain"
	}
	return contentType
}

func wanted(contentType string, includeHTML bool) bool {
	switch contentType {
	case "text/plain":
		return true
	case "text/html":
		return includeHTML
	default:
		return false
	}
}

func toUTF8(b []byte) string {
	out, err := unicode.UTF8.NewDecoder().Bytes(b)
	if err != nil {
		return string(bytes.ToValidUTF8(b, []byte("�")))
	}
	return string(out)
}
