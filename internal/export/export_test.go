package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	netmail "net/mail"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/emersion/go-mbox"
	"github.com/emersion/go-message/mail"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mail-export/internal/index"
	"github.com/nhle/mail-export/internal/model"
	"github.com/nhle/mail-export/internal/session"
)

type fakeFetcher struct {
	mu    sync.Mutex
	raw   map[model.MessageKey][]byte
	fail  map[model.MessageKey]error
	calls []model.MessageKey
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{raw: make(map[model.MessageKey][]byte), fail: make(map[model.MessageKey]error)}
}

func (f *fakeFetcher) FetchRaw(_ context.Context, folder, uid string) ([]byte, error) {
	key := model.MessageKey{Folder: folder, UID: uid}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, key)
	if err := f.fail[key]; err != nil {
		return nil, err
	}
	raw, ok := f.raw[key]
	if !ok {
		return nil, fmt.Errorf("message UID %s not found", uid)
	}
	return raw, nil
}

func (f *fakeFetcher) add(m model.EmailMessage, text string) {
	raw := fmt.Sprintf("From: %s\r\nSubject: %s\r\nContent-Type: text/plain\r\n\r\n%s\r\n", m.Sender, m.Subject, text)
	f.raw[m.Key()] = []byte(raw)
}

func message(folder, uid, subject string) model.EmailMessage {
	return model.EmailMessage{
		UID:       uid,
		Subject:   subject,
		Sender:    "Billing <billing@example.com>",
		Date:      "Tue, 05 Mar 2024 10:00:00 +0000",
		SizeBytes: 1024,
		Folder:    folder,
	}
}

func TestSanitizeSubject(t *testing.T) {
	assert.Equal(t, "Re Invoice 42 - March_2024", SanitizeSubject("Re: Invoice #42 - March_2024!"))
	assert.Equal(t, "Grüße", SanitizeSubject("Grüße/"))
	assert.Equal(t, strings.Repeat("a", 50), SanitizeSubject(strings.Repeat("a", 80)))
	assert.Equal(t, "", SanitizeSubject("???"))
}

func TestFileNames(t *testing.T) {
	assert.Equal(t, "7_Hello World.eml", EMLFileName(model.EmailMessage{UID: "7", Subject: "Hello, World"}))
	assert.Equal(t, "Work_Projects.mbox", MBOXFileName("Work/Projects"))
	assert.Equal(t, filepath.Join("root", "Work", "Projects"), FolderDir("root", "Work/Projects"))
	assert.Equal(t, filepath.Join("root", "_", "etc"), FolderDir("root", "../etc"))
}

func TestRunJSONAndCSV(t *testing.T) {
	root := t.TempDir()
	f := newFakeFetcher()
	msgs := []model.EmailMessage{
		message("INBOX", "42", "Invoice March"),
		message("Archive", "7", "Lunch"),
	}
	f.add(msgs[0], "Amount due: 42 <EUR>")
	f.add(msgs[1], "Noon?")

	p := &Pipeline{Fetcher: f, Logger: zerolog.Nop()}
	report, err := p.Run(context.Background(), Request{
		Messages:                msgs,
		Formats:                 model.NewFormatSet(model.FormatJSON, model.FormatCSV),
		Root:                    root,
		PreserveFolderStructure: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Total)
	assert.Equal(t, 2, report.Succeeded)
	assert.Empty(t, report.Failures)
	assert.ElementsMatch(t, []string{
		filepath.Join(root, JSONFileName),
		filepath.Join(root, CSVFileName),
	}, report.Files)

	data, err := os.ReadFile(filepath.Join(root, JSONFileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  {\n    \"uid\": \"42\"")
	assert.Contains(t, string(data), "<EUR>")

	var records []map[string]any
	require.NoError(t, json.Unmarshal(data, &records))
	require.Len(t, records, 2)
	for _, r := range records {
		assert.Len(t, r, 7)
		for _, key := range []string{"uid", "subject", "from", "date", "folder", "size", "body"} {
			assert.Contains(t, r, key)
		}
	}
	assert.Equal(t, "Invoice March", records[0]["subject"])
	assert.Equal(t, "Billing <billing@example.com>", records[0]["from"])
	assert.Equal(t, "INBOX", records[0]["folder"])
	assert.EqualValues(t, 1024, records[0]["size"])
	assert.Equal(t, "Amount due: 42 <EUR>\r\n", records[0]["body"])
	assert.Equal(t, "7", records[1]["uid"])
	assert.Equal(t, "Archive", records[1]["folder"])

	csvData, err := os.ReadFile(filepath.Join(root, CSVFileName))
	require.NoError(t, err)
	assert.Equal(t,
		"UID,Subject,From,Date,Folder,Size\r\n"+
			"42,Invoice March,Billing <billing@example.com>,\"Tue, 05 Mar 2024 10:00:00 +0000\",INBOX,1024\r\n"+
			"7,Lunch,Billing <billing@example.com>,\"Tue, 05 Mar 2024 10:00:00 +0000\",Archive,1024\r\n",
		string(csvData))

	// Only the two aggregate files exist anywhere under root.
	var found []string
	require.NoError(t, filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		found = append(found, path)
		ext := filepath.Ext(path)
		assert.NotEqual(t, ".eml", ext, path)
		assert.NotEqual(t, ".mbox", ext, path)
		return nil
	}))
	assert.ElementsMatch(t, []string{
		filepath.Join(root, JSONFileName),
		filepath.Join(root, CSVFileName),
	}, found)
}

func TestRunEMLRoundTripsIndexedHeaders(t *testing.T) {
	root := t.TempDir()
	raw := []byte("From: =?UTF-8?Q?J=C3=BCrgen?= <juergen@example.com>\r\n" +
		"Subject: =?UTF-8?Q?Gr=C3=BC=C3=9Fe_aus_Berlin?=\r\n" +
		"Date: Wed, 6 Mar 2024 08:15:00 +0100\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"Hallo\r\n")
	header := raw[:bytes.Index(raw, []byte("\r\n\r\n"))+4]

	m, err := index.ParseHeaderResponse(session.RawFetchResponse{
		SeqNum:    1,
		UID:       5,
		Size:      int64(len(raw)),
		SizeKnown: true,
		Header:    header,
	}, "INBOX")
	require.NoError(t, err)
	require.Equal(t, "Grüße aus Berlin", m.Subject)

	f := newFakeFetcher()
	f.raw[m.Key()] = raw

	report, err := (&Pipeline{Fetcher: f}).Run(context.Background(), Request{
		Messages: []model.EmailMessage{m},
		Formats:  model.NewFormatSet(model.FormatEML),
		Root:     root,
	})
	require.NoError(t, err)
	require.Len(t, report.Files, 1)
	assert.Equal(t, filepath.Join(root, "5_Grüße aus Berlin.eml"), report.Files[0])

	file, err := os.Open(report.Files[0])
	require.NoError(t, err)
	defer file.Close()

	mr, err := mail.CreateReader(file)
	require.NoError(t, err)
	defer mr.Close()

	subject, err := mr.Header.Subject()
	require.NoError(t, err)
	assert.Equal(t, m.Subject, subject)

	from, err := mr.Header.Text("From")
	require.NoError(t, err)
	assert.Equal(t, m.Sender, from)
	assert.Equal(t, m.Date, mr.Header.Get("Date"))

	date, err := mr.Header.Date()
	require.NoError(t, err)
	want, err := netmail.ParseDate(m.Date)
	require.NoError(t, err)
	assert.True(t, want.Equal(date))
}

func TestRunFetchesFromEachMessagesFolder(t *testing.T) {
	root := t.TempDir()
	f := newFakeFetcher()

	// Selection kept across a folder switch: both folders use UID 1.
	inbox := message("INBOX", "1", "From inbox")
	archive := message("Archive", "1", "From archive")
	f.add(inbox, "inbox body")
	f.add(archive, "archive body")

	report, err := (&Pipeline{Fetcher: f}).Run(context.Background(), Request{
		Messages:                []model.EmailMessage{inbox, archive},
		Formats:                 model.NewFormatSet(model.FormatEML),
		Root:                    root,
		PreserveFolderStructure: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, []model.MessageKey{inbox.Key(), archive.Key()}, f.calls)

	got, err := os.ReadFile(filepath.Join(root, "INBOX", "1_From inbox.eml"))
	require.NoError(t, err)
	assert.Equal(t, f.raw[inbox.Key()], got)

	got, err = os.ReadFile(filepath.Join(root, "Archive", "1_From archive.eml"))
	require.NoError(t, err)
	assert.Equal(t, f.raw[archive.Key()], got)
}

func TestRunEMLPreservesStructureAndBytes(t *testing.T) {
	root := t.TempDir()
	f := newFakeFetcher()
	m := message("Work/Projects", "3", "Kickoff: agenda")
	f.add(m, "see you")

	p := &Pipeline{Fetcher: f}
	report, err := p.Run(context.Background(), Request{
		Messages:                []model.EmailMessage{m},
		Formats:                 model.NewFormatSet(model.FormatEML),
		Root:                    root,
		PreserveFolderStructure: true,
	})
	require.NoError(t, err)

	path := filepath.Join(root, "Work", "Projects", "3_Kickoff agenda.eml")
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, f.raw[m.Key()], got)
	assert.Equal(t, []string{path}, report.Files)
}

func TestRunSkipExistingIsIdempotent(t *testing.T) {
	root := t.TempDir()
	f := newFakeFetcher()
	msgs := []model.EmailMessage{message("INBOX", "1", "one"), message("INBOX", "2", "two")}
	for _, m := range msgs {
		f.add(m, "body")
	}
	req := Request{
		Messages:     msgs,
		Formats:      model.NewFormatSet(model.FormatEML),
		Root:         root,
		SkipExisting: true,
	}

	p := &Pipeline{Fetcher: f}
	first, err := p.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Succeeded)
	assert.Zero(t, first.Skipped)

	// Tamper with one file; a second run must leave it alone.
	target := filepath.Join(root, "1_one.eml")
	require.NoError(t, os.WriteFile(target, []byte("local edit"), 0o644))
	calls := len(f.calls)

	second, err := p.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Skipped)
	assert.Zero(t, second.Succeeded)
	assert.Empty(t, second.Failures)
	assert.Len(t, f.calls, calls, "skipped files are not fetched again")

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "local edit", string(got))

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestRunSkipExistingStatFailure(t *testing.T) {
	root := t.TempDir()
	f := newFakeFetcher()
	m := message("Work", "1", "one")
	f.add(m, "body")

	// The folder directory is a regular file, so Stat fails with ENOTDIR.
	require.NoError(t, os.WriteFile(filepath.Join(root, "Work"), []byte("not a dir"), 0o644))

	report, err := (&Pipeline{Fetcher: f}).Run(context.Background(), Request{
		Messages:                []model.EmailMessage{m},
		Formats:                 model.NewFormatSet(model.FormatEML),
		Root:                    root,
		PreserveFolderStructure: true,
		SkipExisting:            true,
	})
	require.NoError(t, err)
	assert.Zero(t, report.Skipped)
	assert.Zero(t, report.Succeeded)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, m.Key(), report.Failures[0].Message)

	var fsErr *FilesystemError
	require.ErrorAs(t, report.Failures[0].Err, &fsErr)
	assert.Equal(t, "eml", fsErr.Format)
	assert.Equal(t, filepath.Join(root, "Work", "1_one.eml"), fsErr.Path)
	assert.Empty(t, f.calls)
}

func TestRunOverwritesWithoutSkipExisting(t *testing.T) {
	root := t.TempDir()
	f := newFakeFetcher()
	m := message("INBOX", "1", "one")
	f.add(m, "fresh")

	target := filepath.Join(root, "1_one.eml")
	require.NoError(t, os.WriteFile(target, []byte("stale"), 0o644))

	_, err := (&Pipeline{Fetcher: f}).Run(context.Background(), Request{
		Messages: []model.EmailMessage{m},
		Formats:  model.NewFormatSet(model.FormatEML),
		Root:     root,
	})
	require.NoError(t, err)

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, f.raw[m.Key()], got)
}

func TestRunPartialFailure(t *testing.T) {
	root := t.TempDir()
	f := newFakeFetcher()
	msgs := []model.EmailMessage{
		message("INBOX", "1", "ok one"),
		message("INBOX", "2", "broken"),
		message("INBOX", "3", "ok two"),
	}
	f.add(msgs[0], "a")
	f.add(msgs[2], "c")
	f.fail[msgs[1].Key()] = errors.New("fetch INBOX: server said NO")

	var progress []string
	p := &Pipeline{Fetcher: f, Progress: func(done, total int, subject string) {
		progress = append(progress, fmt.Sprintf("%d/%d %s", done, total, subject))
	}}
	report, err := p.Run(context.Background(), Request{
		Messages: msgs,
		Formats:  model.NewFormatSet(model.FormatEML, model.FormatCSV),
		Root:     root,
	})
	require.NoError(t, err)

	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 2, report.Succeeded)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, msgs[1].Key(), report.Failures[0].Message)
	assert.Equal(t, []string{"1/3 ok one", "2/3 broken", "3/3 ok two"}, progress)

	csvData, err := os.ReadFile(filepath.Join(root, CSVFileName))
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(string(csvData), "\r\n"), "header plus two rows")
}

func TestRunNoAggregateFilesWhenNothingFetched(t *testing.T) {
	root := t.TempDir()
	f := newFakeFetcher()
	m := message("INBOX", "9", "gone")

	report, err := (&Pipeline{Fetcher: f}).Run(context.Background(), Request{
		Messages: []model.EmailMessage{m},
		Formats:  model.NewFormatSet(model.FormatJSON, model.FormatCSV),
		Root:     root,
	})
	require.NoError(t, err)
	assert.Len(t, report.Failures, 1)
	assert.Empty(t, report.Files)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRunMBOXGroupsByFolder(t *testing.T) {
	root := t.TempDir()
	f := newFakeFetcher()
	msgs := []model.EmailMessage{
		message("INBOX", "1", "first"),
		message("Work/Projects", "1", "project"),
		message("INBOX", "2", "second"),
	}
	for _, m := range msgs {
		f.add(m, "From the desk of "+m.Subject)
	}

	report, err := (&Pipeline{Fetcher: f}).Run(context.Background(), Request{
		Messages: msgs,
		Formats:  model.NewFormatSet(model.FormatMBOX),
		Root:     root,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Succeeded)
	assert.Equal(t, []string{
		filepath.Join(root, "INBOX.mbox"),
		filepath.Join(root, "Work_Projects.mbox"),
	}, report.Files)

	inbox := readMBOX(t, filepath.Join(root, "INBOX.mbox"))
	require.Len(t, inbox, 2)
	assert.Contains(t, inbox[0], "Subject: first")
	assert.Contains(t, inbox[1], "Subject: second")

	work := readMBOX(t, filepath.Join(root, "Work_Projects.mbox"))
	require.Len(t, work, 1)
	assert.Contains(t, work[0], "From the desk of project")
}

func TestRunMBOXFetchesAgain(t *testing.T) {
	root := t.TempDir()
	f := newFakeFetcher()
	m := message("INBOX", "1", "twice")
	f.add(m, "x")

	_, err := (&Pipeline{Fetcher: f}).Run(context.Background(), Request{
		Messages: []model.EmailMessage{m},
		Formats:  model.NewFormatSet(model.FormatEML, model.FormatMBOX),
		Root:     root,
	})
	require.NoError(t, err)
	assert.Len(t, f.calls, 2)
}

func TestRunMBOXAppends(t *testing.T) {
	root := t.TempDir()
	f := newFakeFetcher()
	m := message("INBOX", "1", "again")
	f.add(m, "x")
	req := Request{Messages: []model.EmailMessage{m}, Formats: model.NewFormatSet(model.FormatMBOX), Root: root}

	for i := 0; i < 2; i++ {
		_, err := (&Pipeline{Fetcher: f}).Run(context.Background(), req)
		require.NoError(t, err)
	}
	assert.Len(t, readMBOX(t, filepath.Join(root, "INBOX.mbox")), 2)
}

func TestRunParallelKeepsRowOrder(t *testing.T) {
	root := t.TempDir()
	f := newFakeFetcher()
	var msgs []model.EmailMessage
	for i := 1; i <= 20; i++ {
		m := message("INBOX", fmt.Sprint(i), fmt.Sprintf("message %02d", i))
		f.add(m, "body")
		msgs = append(msgs, m)
	}

	var mu sync.Mutex
	seen := 0
	p := &Pipeline{
		Pool: []RawFetcher{f, f, f, f},
		Progress: func(done, total int, _ string) {
			mu.Lock()
			seen++
			mu.Unlock()
			assert.Equal(t, 20, total)
		},
	}
	report, err := p.Run(context.Background(), Request{
		Messages: msgs,
		Formats:  model.NewFormatSet(model.FormatJSON),
		Root:     root,
	})
	require.NoError(t, err)
	assert.Equal(t, 20, report.Succeeded)
	assert.Equal(t, 20, seen)

	data, err := os.ReadFile(filepath.Join(root, JSONFileName))
	require.NoError(t, err)
	var records []jsonRecord
	require.NoError(t, json.Unmarshal(data, &records))
	require.Len(t, records, 20)
	for i, r := range records {
		assert.Equal(t, fmt.Sprint(i+1), r.UID)
	}
}

func TestRunCancelled(t *testing.T) {
	root := t.TempDir()
	f := newFakeFetcher()
	m := message("INBOX", "1", "never")
	f.add(m, "x")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := (&Pipeline{Fetcher: f}).Run(ctx, Request{
		Messages: []model.EmailMessage{m},
		Formats:  model.NewFormatSet(model.FormatEML),
		Root:     root,
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, report.Succeeded)
	assert.Empty(t, f.calls)
}

func TestRunRootNotCreatable(t *testing.T) {
	parent := t.TempDir()
	blocker := filepath.Join(parent, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	_, err := (&Pipeline{Fetcher: newFakeFetcher()}).Run(context.Background(), Request{
		Formats: model.NewFormatSet(model.FormatEML),
		Root:    filepath.Join(blocker, "out"),
	})
	require.Error(t, err)
	assert.True(t, IsFilesystemError(err))
}

func TestRunRequiresFormat(t *testing.T) {
	_, err := (&Pipeline{Fetcher: newFakeFetcher()}).Run(context.Background(), Request{Root: t.TempDir()})
	require.Error(t, err)
}

func readMBOX(t *testing.T, path string) []string {
	t.Helper()

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	var out []string
	r := mbox.NewReader(file)
	for {
		msg, err := r.NextMessage()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		b, err := io.ReadAll(msg)
		require.NoError(t, err)
		out = append(out, string(b))
	}
	return out
}
