package index

import (
	"fmt"
	"slices"
	"strings"

	"github.com/nhle/mail-export/internal/model"
)

// Field names the message attribute a filter matches against.
type Field int

const (
	FieldAll Field = iota
	FieldSubject
	FieldFrom
	FieldTo
	FieldBody
)

// Fields lists every field in display order.
var Fields = []Field{FieldAll, FieldSubject, FieldFrom, FieldTo, FieldBody}

// String returns the display name of the field.
func (f Field) String() string {
	switch f {
	case FieldAll:
		return "All"
	case FieldSubject:
		return "Subject"
	case FieldFrom:
		return "From"
	case FieldTo:
		return "To"
	case FieldBody:
		return "Body"
	default:
		return "Unknown"
	}
}

// ParseField parses a field name, ignoring case.
func ParseField(s string) (Field, error) {
	for _, f := range Fields {
		if strings.EqualFold(s, f.String()) {
			return f, nil
		}
	}
	return FieldAll, fmt.Errorf("unknown search field %q", s)
}

// bodyNote explains why a body search returns everything.
const bodyNote = "body search needs full message content; showing all messages"

// FilterResult is the outcome of Filter.
type FilterResult struct {
	Messages []model.EmailMessage

	// Applied is false when the result is the unfiltered input.
	Applied bool

	// Note is set when the filter could not be applied as asked.
	Note string
}

// Filter returns the messages whose field contains term, ignoring case.
// FieldAll matches subject or sender. An empty term, or FieldBody
// (only headers are indexed), yields a copy of the input. The result
// never shares its backing array with msgs.
func Filter(msgs []model.EmailMessage, term string, field Field) FilterResult {
	term = strings.TrimSpace(term)
	if term == "" {
		return FilterResult{Messages: slices.Clone(msgs)}
	}
	if field == FieldBody {
		return FilterResult{Messages: slices.Clone(msgs), Note: bodyNote}
	}

	needle := strings.ToLower(term)
	contains := func(s string) bool {
		return strings.Contains(strings.ToLower(s), needle)
	}

	matched := make([]model.EmailMessage, 0, len(msgs))
	for _, m := range msgs {
		var ok bool
		switch field {
		case FieldSubject:
			ok = contains(m.Subject)
		case FieldFrom:
			ok = contains(m.Sender)
		case FieldTo:
			ok = contains(m.To)
		default:
			ok = contains(m.Subject) || contains(m.Sender)
		}
		if ok {
			matched = append(matched, m)
		}
	}

	return FilterResult{Messages: matched, Applied: true}
}
