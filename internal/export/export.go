// Package export writes fetched messages to disk as EML, MBOX, JSON and
// CSV files.
package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/nhle/mail-export/internal/body"
	"github.com/nhle/mail-export/internal/model"
)

// progressSubjectRunes is how much of the subject progress reports carry.
const progressSubjectRunes = 30

// RawFetcher retrieves the full bytes of one message. A protocol
// session satisfies it.
type RawFetcher interface {
	FetchRaw(ctx context.Context, folder, uid string) ([]byte, error)
}

// ProgressFunc is called once per processed message with a 1-based
// count, the total and the (truncated) subject.
type ProgressFunc func(done, total int, subject string)

// Request describes one export run.
type Request struct {
	Messages                []model.EmailMessage
	Formats                 model.FormatSet
	Root                    string
	PreserveFolderStructure bool
	SkipExisting            bool
}

// Report summarizes a run.
type Report struct {
	Total     int
	Succeeded int

	// Skipped counts EML files left untouched because they already existed.
	Skipped int

	Failures []Failure

	// Files lists every file written, in write order.
	Files []string
}

// Summary returns a one-line description of the run.
func (r Report) Summary() string {
	return fmt.Sprintf("%d of %d messages exported, %d skipped, %d failures",
		r.Succeeded, r.Total, r.Skipped, len(r.Failures))
}

// Pipeline exports messages fetched through Fetcher. When Pool holds
// more than one fetcher, per-message fetches run in parallel, one
// worker per pooled fetcher.
type Pipeline struct {
	Fetcher  RawFetcher
	Pool     []RawFetcher
	Logger   zerolog.Logger
	Progress ProgressFunc
}

// runState is shared by the workers of one run.
type runState struct {
	req   Request
	total int

	mu      sync.Mutex
	done    int
	report  Report
	records []*jsonRecord
	rows    [][]string
}

func (st *runState) fail(key model.MessageKey, err error) {
	st.mu.Lock()
	st.report.Failures = append(st.report.Failures, Failure{Message: key, Err: err})
	st.mu.Unlock()
}

func (st *runState) wrote(path string) {
	st.mu.Lock()
	st.report.Files = append(st.report.Files, path)
	st.mu.Unlock()
}

// Run executes req. Per-message and per-file problems are collected in
// the report and do not stop the run. The returned error is non-nil
// only when nothing could be written or ctx was cancelled; the report
// is still valid in the latter case.
func (p *Pipeline) Run(ctx context.Context, req Request) (Report, error) {
	st := &runState{
		req:     req,
		total:   len(req.Messages),
		records: make([]*jsonRecord, len(req.Messages)),
		rows:    make([][]string, len(req.Messages)),
	}
	st.report.Total = st.total

	if req.Formats.Empty() {
		return st.report, errors.New("no export format selected")
	}
	if p.Fetcher == nil && len(p.Pool) == 0 {
		return st.report, errors.New("no message source")
	}

	if err := os.MkdirAll(req.Root, 0o755); err != nil {
		return st.report, &FilesystemError{Path: req.Root, Cause: err}
	}

	log := p.Logger.With().Str("root", req.Root).Str("formats", req.Formats.String()).Logger()
	log.Info().Int("messages", st.total).Msg("export started")

	perMessage := req.Formats.Has(model.FormatEML) ||
		req.Formats.Has(model.FormatJSON) ||
		req.Formats.Has(model.FormatCSV)

	if perMessage {
		if len(p.Pool) > 1 {
			p.runParallel(ctx, st)
		} else {
			p.runSequential(ctx, st)
		}
		if err := ctx.Err(); err != nil {
			return st.report, err
		}
		p.writeAggregates(st)
	}

	if req.Formats.Has(model.FormatMBOX) {
		p.writeMBOX(ctx, st, !perMessage)
		if err := ctx.Err(); err != nil {
			return st.report, err
		}
	}

	for _, f := range st.report.Failures {
		log.Warn().Err(f.Err).Str("message", f.Message.String()).Msg("export failure")
	}
	log.Info().Msg(st.report.Summary())

	return st.report, nil
}

func (p *Pipeline) fetcher() RawFetcher {
	if p.Fetcher != nil {
		return p.Fetcher
	}
	return p.Pool[0]
}

func (p *Pipeline) runSequential(ctx context.Context, st *runState) {
	f := p.fetcher()
	for i, m := range st.req.Messages {
		if ctx.Err() != nil {
			return
		}
		p.process(ctx, f, st, i, m)
	}
}

func (p *Pipeline) runParallel(ctx context.Context, st *runState) {
	fetchers := make(chan RawFetcher, len(p.Pool))
	for _, f := range p.Pool {
		fetchers <- f
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(len(p.Pool))

	for i, m := range st.req.Messages {
		if gctx.Err() != nil {
			break
		}
		i, m := i, m
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			f := <-fetchers
			defer func() { fetchers <- f }()
			p.process(gctx, f, st, i, m)
			return nil
		})
	}

	// Workers only fail on cancellation, which Run reports from ctx.
	_ = g.Wait()
}

// process fetches one message and performs its EML, JSON and CSV work.
func (p *Pipeline) process(ctx context.Context, f RawFetcher, st *runState, i int, m model.EmailMessage) {
	req := st.req
	defer p.progress(st, m)

	dir := req.Root
	if req.PreserveFolderStructure {
		dir = FolderDir(req.Root, m.Folder)
	}

	var emlPath string
	emlSkip := false
	if req.Formats.Has(model.FormatEML) {
		emlPath = filepath.Join(dir, EMLFileName(m))
		if req.SkipExisting {
			exists, err := fileExists(emlPath)
			if err != nil {
				st.fail(m.Key(), &FilesystemError{Path: emlPath, Format: "eml", Cause: err})
				return
			}
			emlSkip = exists
		}
	}

	needJSON := req.Formats.Has(model.FormatJSON)
	needCSV := req.Formats.Has(model.FormatCSV)

	if emlSkip && !needJSON && !needCSV {
		st.mu.Lock()
		st.report.Skipped++
		st.mu.Unlock()
		return
	}

	raw, err := f.FetchRaw(ctx, m.Folder, m.UID)
	if err != nil {
		if ctx.Err() == nil {
			st.fail(m.Key(), err)
		}
		return
	}

	ok := true
	switch {
	case emlPath == "":
	case emlSkip:
		st.mu.Lock()
		st.report.Skipped++
		st.mu.Unlock()
	default:
		if err := writeEML(dir, emlPath, raw); err != nil {
			st.fail(m.Key(), err)
			ok = false
		} else {
			st.wrote(emlPath)
		}
	}

	if needJSON {
		rec := newJSONRecord(m, body.ForExport(raw))
		st.records[i] = &rec
	}
	if needCSV {
		st.rows[i] = newCSVRow(m)
	}

	if ok {
		st.mu.Lock()
		st.report.Succeeded++
		st.mu.Unlock()
	}
}

func (p *Pipeline) progress(st *runState, m model.EmailMessage) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.done++
	if p.Progress != nil {
		p.Progress(st.done, st.total, truncateRunes(m.Subject, progressSubjectRunes))
	}
}

// writeAggregates writes emails.json and emails.csv. Neither file is
// written when no message made it through.
func (p *Pipeline) writeAggregates(st *runState) {
	if st.req.Formats.Has(model.FormatJSON) {
		records := make([]jsonRecord, 0, len(st.records))
		for _, r := range st.records {
			if r != nil {
				records = append(records, *r)
			}
		}
		if len(records) > 0 {
			path := filepath.Join(st.req.Root, JSONFileName)
			if err := writeJSON(path, records); err != nil {
				st.fail(model.MessageKey{}, err)
			} else {
				st.wrote(path)
			}
		}
	}

	if st.req.Formats.Has(model.FormatCSV) {
		rows := make([][]string, 0, len(st.rows))
		for _, r := range st.rows {
			if r != nil {
				rows = append(rows, r)
			}
		}
		if len(rows) > 0 {
			path := filepath.Join(st.req.Root, CSVFileName)
			if err := writeCSV(path, rows); err != nil {
				st.fail(model.MessageKey{}, err)
			} else {
				st.wrote(path)
			}
		}
	}
}
