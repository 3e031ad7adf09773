package model

import (
	"fmt"
	"strings"
)

// Format is an export output format.
type Format uint8

const (
	FormatEML Format = 1 << iota
	FormatMBOX
	FormatJSON
	FormatCSV
)

// AllFormats lists the formats in their canonical order.
var AllFormats = []Format{FormatEML, FormatMBOX, FormatJSON, FormatCSV}

// String returns the upper-case format name.
func (f Format) String() string {
	switch f {
	case FormatEML:
		return "EML"
	case FormatMBOX:
		return "MBOX"
	case FormatJSON:
		return "JSON"
	case FormatCSV:
		return "CSV"
	default:
		return fmt.Sprintf("Format(%d)", uint8(f))
	}
}

// ParseFormat parses a case-insensitive format name.
func ParseFormat(s string) (Format, error) {
	for _, f := range AllFormats {
		if strings.EqualFold(strings.TrimSpace(s), f.String()) {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown export format %q", s)
}

// FormatSet is a set of export formats.
type FormatSet uint8

// NewFormatSet builds a set from the given formats.
func NewFormatSet(formats ...Format) FormatSet {
	var s FormatSet
	for _, f := range formats {
		s = s.Add(f)
	}
	return s
}

// ParseFormats parses a list of format names. Entries may themselves be
// comma separated.
func ParseFormats(names []string) (FormatSet, error) {
	var s FormatSet
	for _, name := range names {
		for _, part := range strings.Split(name, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			f, err := ParseFormat(part)
			if err != nil {
				return 0, err
			}
			s = s.Add(f)
		}
	}
	return s, nil
}

// Add returns the set with f included.
func (s FormatSet) Add(f Format) FormatSet { return s | FormatSet(f) }

// Has reports whether f is in the set.
func (s FormatSet) Has(f Format) bool { return s&FormatSet(f) != 0 }

// Empty reports whether no format is selected.
func (s FormatSet) Empty() bool { return s == 0 }

// Formats returns the members in canonical order.
func (s FormatSet) Formats() []Format {
	var out []Format
	for _, f := range AllFormats {
		if s.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

// Names returns the lower-case member names, as stored in config files.
func (s FormatSet) Names() []string {
	formats := s.Formats()
	names := make([]string, len(formats))
	for i, f := range formats {
		names[i] = strings.ToLower(f.String())
	}
	return names
}

// String joins the member names with commas.
func (s FormatSet) String() string {
	formats := s.Formats()
	parts := make([]string, len(formats))
	for i, f := range formats {
		parts[i] = f.String()
	}
	return strings.Join(parts, ",")
}
