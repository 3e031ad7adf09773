package session

import (
	"fmt"
	"strconv"
	"strings"
)

// HeaderFields are the header fields requested by FetchHeaderSubset.
var HeaderFields = []string{"Subject", "From", "To", "Date"}

// FolderDescriptor is one entry of a LIST response.
type FolderDescriptor struct {
	Attrs []string

	// Delim is the server's hierarchy delimiter, or 0 when the server
	// reports NIL (flat namespace).
	Delim rune

	// Name is the mailbox name as reported by the server.
	Name string
}

// String renders the descriptor the way it appears on the wire.
func (d FolderDescriptor) String() string {
	delim := "NIL"
	if d.Delim != 0 {
		delim = strconv.Quote(string(d.Delim))
	}
	return fmt.Sprintf("(%s) %s %s", strings.Join(d.Attrs, " "), delim, strconv.Quote(d.Name))
}

// RawFetchResponse is the header-subset FETCH response for one message.
type RawFetchResponse struct {
	SeqNum uint32

	// UID is 0 when the server omitted it.
	UID uint32

	Size      int64
	SizeKnown bool

	// Header holds the requested header fields in RFC 5322 form.
	Header []byte
}

// ParseUID parses a decimal message UID.
func ParseUID(uid string) (uint32, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(uid), 10, 32)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("invalid UID %q", uid)
	}
	return uint32(n), nil
}
