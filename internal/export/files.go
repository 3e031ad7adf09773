package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io/fs"
	netmail "net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/emersion/go-message/mail"

	"github.com/nhle/mail-export/internal/model"
)

const (
	// JSONFileName and CSVFileName are written directly under the root.
	JSONFileName = "emails.json"
	CSVFileName  = "emails.csv"

	maxSubjectRunes  = 50
	mboxFallbackFrom = "MAILER-DAEMON"
)

var csvHeader = []string{"UID", "Subject", "From", "Date", "Folder", "Size"}

// jsonRecord is one element of emails.json.
type jsonRecord struct {
	UID     string `json:"uid"`
	Subject string `json:"subject"`
	From    string `json:"from"`
	Date    string `json:"date"`
	Folder  string `json:"folder"`
	Size    int64  `json:"size"`
	Body    string `json:"body"`
}

// SanitizeSubject keeps letters, digits, spaces, '-' and '_' of subject
// and truncates the result to 50 characters.
func SanitizeSubject(subject string) string {
	var b strings.Builder
	n := 0
	for _, r := range subject {
		if n == maxSubjectRunes {
			break
		}
		if unicode.IsLetter(r) || unicode.IsNumber(r) || r == ' ' || r == '-' || r == '_' {
			b.WriteRune(r)
			n++
		}
	}
	return b.String()
}

// EMLFileName returns the file name used for m in EML exports.
func EMLFileName(m model.EmailMessage) string {
	return m.UID + "_" + SanitizeSubject(m.Subject) + ".eml"
}

// MBOXFileName returns the mailbox file name for folder.
func MBOXFileName(folder string) string {
	return strings.ReplaceAll(folder, "/", "_") + ".mbox"
}

// FolderDir returns the directory under root that mirrors folder. Path
// segments that would escape root are neutralized.
func FolderDir(root, folder string) string {
	segments := strings.Split(folder, "/")
	clean := make([]string, 0, len(segments)+1)
	clean = append(clean, root)
	for _, seg := range segments {
		switch seg {
		case "", ".":
			continue
		case "..":
			seg = "_"
		}
		clean = append(clean, seg)
	}
	return filepath.Join(clean...)
}

// fileExists reports whether path exists. A Stat failure other than
// "not exist" is returned rather than read as either answer.
func fileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

func writeEML(dir, path string, raw []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &FilesystemError{Path: dir, Cause: err}
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return &FilesystemError{Path: path, Format: "eml", Cause: err}
	}
	return nil
}

func writeJSON(path string, records []jsonRecord) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return &FilesystemError{Path: path, Format: "json", Cause: err}
	}

	// Encode terminates with a newline json.dump does not write.
	out := bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return &FilesystemError{Path: path, Format: "json", Cause: err}
	}
	return nil
}

func writeCSV(path string, rows [][]string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return &FilesystemError{Path: path, Format: "csv", Cause: err}
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = &FilesystemError{Path: path, Format: "csv", Cause: cerr}
		}
	}()

	w := csv.NewWriter(f)
	w.UseCRLF = true
	if err := w.Write(csvHeader); err != nil {
		return &FilesystemError{Path: path, Format: "csv", Cause: err}
	}
	if err := w.WriteAll(rows); err != nil {
		return &FilesystemError{Path: path, Format: "csv", Cause: err}
	}
	return nil
}

func newJSONRecord(m model.EmailMessage, body string) jsonRecord {
	return jsonRecord{
		UID:     m.UID,
		Subject: m.Subject,
		From:    m.Sender,
		Date:    m.Date,
		Folder:  m.Folder,
		Size:    m.SizeBytes,
		Body:    body,
	}
}

func newCSVRow(m model.EmailMessage) []string {
	return []string{m.UID, m.Subject, m.Sender, m.Date, m.Folder, strconv.FormatInt(m.SizeBytes, 10)}
}

// mboxFrom returns the envelope sender for the mbox "From " line.
func mboxFrom(sender string) string {
	if addr, err := mail.ParseAddress(sender); err == nil && addr.Address != "" {
		return addr.Address
	}
	if fields := strings.Fields(sender); len(fields) == 1 && strings.Contains(fields[0], "@") {
		return fields[0]
	}
	return mboxFallbackFrom
}

// mboxDate parses the Date header, falling back to now.
func mboxDate(date string) time.Time {
	if t, err := netmail.ParseDate(date); err == nil {
		return t
	}
	return time.Now()
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
