package export

import (
	"context"
	"os"
	"path/filepath"

	"github.com/emersion/go-mbox"

	"github.com/nhle/mail-export/internal/model"
)

// groupByFolder splits msgs by folder, keeping first-appearance order
// of folders and request order within each folder.
func groupByFolder(msgs []model.EmailMessage) ([]string, map[string][]model.EmailMessage) {
	var order []string
	groups := make(map[string][]model.EmailMessage)
	for _, m := range msgs {
		if _, ok := groups[m.Folder]; !ok {
			order = append(order, m.Folder)
		}
		groups[m.Folder] = append(groups[m.Folder], m)
	}
	return order, groups
}

// writeMBOX appends every message to its folder's mailbox file under
// the root. Messages are fetched again for this pass. Existing files
// are appended to, so re-running an export duplicates entries.
// When counting is set the pass owns progress and success counts.
func (p *Pipeline) writeMBOX(ctx context.Context, st *runState, counting bool) {
	f := p.fetcher()
	order, groups := groupByFolder(st.req.Messages)

	for _, folder := range order {
		if ctx.Err() != nil {
			return
		}

		path := filepath.Join(st.req.Root, MBOXFileName(folder))
		if err := p.appendFolder(ctx, f, st, path, groups[folder], counting); err != nil {
			st.fail(model.MessageKey{}, err)
			continue
		}
		st.wrote(path)
	}
}

func (p *Pipeline) appendFolder(
	ctx context.Context, f RawFetcher, st *runState, path string, msgs []model.EmailMessage, counting bool,
) (err error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return &FilesystemError{Path: path, Format: "mbox", Cause: err}
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = &FilesystemError{Path: path, Format: "mbox", Cause: cerr}
		}
	}()

	w := mbox.NewWriter(file)

	for _, m := range msgs {
		if ctx.Err() != nil {
			break
		}

		raw, fetchErr := f.FetchRaw(ctx, m.Folder, m.UID)
		if fetchErr != nil {
			if ctx.Err() == nil {
				st.fail(m.Key(), fetchErr)
			}
			if counting {
				p.progress(st, m)
			}
			continue
		}

		mw, err := w.CreateMessage(mboxFrom(m.Sender), mboxDate(m.Date))
		if err != nil {
			return &FilesystemError{Path: path, Format: "mbox", Cause: err}
		}
		if _, err := mw.Write(raw); err != nil {
			return &FilesystemError{Path: path, Format: "mbox", Cause: err}
		}

		if counting {
			st.mu.Lock()
			st.report.Succeeded++
			st.mu.Unlock()
			p.progress(st, m)
		}
	}

	if err := w.Close(); err != nil {
		return &FilesystemError{Path: path, Format: "mbox", Cause: err}
	}
	return nil
}
