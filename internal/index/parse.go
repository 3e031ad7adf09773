package index

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"

	"github.com/nhle/mail-export/internal/model"
	"github.com/nhle/mail-export/internal/session"
)

// MalformedResponseError indicates a FETCH response that lacks the UID
// or the size. The message is skipped, the load continues.
type MalformedResponseError struct {
	SeqNum uint32
	Reason string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed fetch response for message %d: %s", e.SeqNum, e.Reason)
}

// IsMalformed reports whether err is a MalformedResponseError.
func IsMalformed(err error) bool {
	var malformed *MalformedResponseError
	return errors.As(err, &malformed)
}

// ParseHeaderResponse converts a header-subset FETCH response into an
// EmailMessage belonging to folder. MIME encoded words in Subject, From
// and To are decoded; missing fields get the usual placeholders.
func ParseHeaderResponse(resp session.RawFetchResponse, folder string) (model.EmailMessage, error) {
	if resp.UID == 0 {
		return model.EmailMessage{}, &MalformedResponseError{SeqNum: resp.SeqNum, Reason: "missing UID"}
	}
	if !resp.SizeKnown || resp.Size < 0 {
		return model.EmailMessage{}, &MalformedResponseError{SeqNum: resp.SeqNum, Reason: "missing size"}
	}

	header, err := readHeader(resp.Header)
	if err != nil {
		return model.EmailMessage{}, &MalformedResponseError{
			SeqNum: resp.SeqNum,
			Reason: "unparseable header: " + err.Error(),
		}
	}

	return model.EmailMessage{
		UID:       strconv.FormatUint(uint64(resp.UID), 10),
		Subject:   headerText(header, "Subject", model.NoSubject),
		Sender:    headerText(header, "From", model.UnknownSender),
		To:        headerText(header, "To", ""),
		Date:      headerText(header, "Date", model.UnknownDate),
		SizeBytes: resp.Size,
		Folder:    folder,
	}, nil
}

func readHeader(raw []byte) (mail.Header, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return mail.Header{}, nil
	}

	// ReadHeader expects the blank line that ends a header block.
	if !bytes.HasSuffix(raw, []byte("\r\n\r\n")) && !bytes.HasSuffix(raw, []byte("\n\n")) {
		trimmed := bytes.TrimRight(raw, "\r\n")
		raw = make([]byte, 0, len(trimmed)+4)
		raw = append(append(raw, trimmed...), "\r\n\r\n"...)
	}

	h, err := textproto.ReadHeader(bufio.NewReader(bytes.NewReader(raw)))
	if err != nil {
		return mail.Header{}, err
	}
	return mail.Header{Header: message.Header{Header: h}}, nil
}

// headerText returns the decoded value of key, the raw value when it
// cannot be decoded, or fallback when it is absent or blank.
func headerText(h mail.Header, key, fallback string) string {
	if !h.Has(key) {
		return fallback
	}
	value, err := h.Text(key)
	if err != nil {
		value = h.Get(key)
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	return value
}
