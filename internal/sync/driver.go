package sync

import (
	"context"
	"fmt"
	gosync "sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/nhle/mail-export/internal/body"
	"github.com/nhle/mail-export/internal/catalog"
	"github.com/nhle/mail-export/internal/export"
	"github.com/nhle/mail-export/internal/index"
	"github.com/nhle/mail-export/internal/model"
	"github.com/nhle/mail-export/internal/session"
	"github.com/nhle/mail-export/internal/store"
)

const (
	// msgBuffer is the capacity of the outgoing message channel.
	msgBuffer = 64

	// stopGrace bounds how long Stop waits for the running command.
	stopGrace = 2 * time.Second
)

// Options configures a Driver.
type Options struct {
	Manager *session.Manager

	// Store, when set, receives a record of every export run.
	Store store.Store

	Logger zerolog.Logger
}

// Driver executes commands one at a time against the current session
// and reports results as tea messages.
type Driver struct {
	opts Options
	log  zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	msgCh chan tea.Msg
	wake  chan struct{}
	done  chan struct{}

	mu       gosync.Mutex
	queue    []Command
	started  bool
	inflight *inflight
}

type inflight struct {
	kind   Kind
	cancel context.CancelFunc
}

// New creates a Driver. Call Start to begin processing.
func New(opts Options) *Driver {
	ctx, cancel := context.WithCancel(context.Background())
	return &Driver{
		opts:   opts,
		log:    opts.Logger.With().Str("component", "driver").Logger(),
		ctx:    ctx,
		cancel: cancel,
		msgCh:  make(chan tea.Msg, msgBuffer),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Start launches the worker goroutine and returns a tea.Cmd waiting for
// the first message.
func (d *Driver) Start() tea.Cmd {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return d.WaitForNext()
	}
	d.started = true
	d.mu.Unlock()

	go d.loop()
	return d.WaitForNext()
}

// Submit enqueues cmd. A queued command of the same kind is replaced
// and a running one is cancelled, so the newest request always wins.
// Connect and Disconnect additionally cancel and drop everything else.
func (d *Driver) Submit(cmd Command) {
	d.mu.Lock()
	if d.ctx.Err() != nil {
		d.mu.Unlock()
		return
	}

	k := cmd.Kind()
	reset := resetsSession(k)

	kept := d.queue[:0]
	for _, q := range d.queue {
		if !reset && q.Kind() != k {
			kept = append(kept, q)
		}
	}
	d.queue = append(kept, cmd)

	if d.inflight != nil && (reset || d.inflight.kind == k) {
		d.log.Debug().Stringer("kind", d.inflight.kind).Msg("superseding running command")
		d.inflight.cancel()
	}
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Pending returns the kinds of the queued commands, oldest first.
func (d *Driver) Pending() []Kind {
	d.mu.Lock()
	defer d.mu.Unlock()

	kinds := make([]Kind, len(d.queue))
	for i, c := range d.queue {
		kinds[i] = c.Kind()
	}
	return kinds
}

// Stop cancels all work, waits briefly for the running command and
// closes the session.
func (d *Driver) Stop() {
	d.mu.Lock()
	started := d.started
	d.queue = nil
	d.mu.Unlock()

	d.cancel()
	if started {
		select {
		case <-d.done:
		case <-time.After(stopGrace):
			d.log.Warn().Msg("command still running at shutdown")
		}
	}
	if d.opts.Manager != nil {
		d.opts.Manager.Close()
	}
}

// WaitForNext returns a tea.Cmd that waits for the next message. It
// should be re-issued after every message to keep listening.
func (d *Driver) WaitForNext() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-d.msgCh:
			return msg
		case <-d.ctx.Done():
			return nil
		}
	}
}

func (d *Driver) loop() {
	defer close(d.done)

	for {
		cmd, ctx, ok := d.next()
		if !ok {
			select {
			case <-d.wake:
				continue
			case <-d.ctx.Done():
				return
			}
		}

		d.execute(ctx, cmd)

		d.mu.Lock()
		if d.inflight != nil {
			d.inflight.cancel()
			d.inflight = nil
		}
		d.mu.Unlock()
	}
}

// next pops the oldest queued command and marks it in flight.
func (d *Driver) next() (Command, context.Context, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ctx.Err() != nil || len(d.queue) == 0 {
		return nil, nil, false
	}

	cmd := d.queue[0]
	d.queue = d.queue[1:]

	ctx, cancel := context.WithCancel(d.ctx)
	d.inflight = &inflight{kind: cmd.Kind(), cancel: cancel}
	return cmd, ctx, true
}

func (d *Driver) execute(ctx context.Context, cmd Command) {
	var err error

	switch c := cmd.(type) {
	case ConnectCmd:
		err = d.connect(ctx, c)
	case ListFoldersCmd:
		err = d.listFolders(ctx)
	case LoadFolderCmd:
		err = d.loadFolder(ctx, c)
	case PreviewCmd:
		err = d.preview(ctx, c)
	case ExportCmd:
		err = d.export(ctx, c)
	case DisconnectCmd:
		d.opts.Manager.Close()
		d.send(StatusMsg{Text: "Disconnected", State: model.SessionDisconnected})
	default:
		err = fmt.Errorf("unsupported command %T", cmd)
	}

	if err == nil {
		return
	}

	// A superseded command stays quiet; its replacement reports.
	if ctx.Err() != nil {
		d.log.Debug().Stringer("kind", cmd.Kind()).Msg("command cancelled")
		return
	}

	d.log.Error().Err(err).Stringer("kind", cmd.Kind()).Msg("command failed")
	d.send(FailedMsg{Kind: cmd.Kind(), Err: err})
}

func (d *Driver) session() (*session.Session, error) {
	s := d.opts.Manager.Current()
	if s == nil {
		return nil, session.ErrNotConnected
	}
	return s, nil
}

func (d *Driver) connect(ctx context.Context, c ConnectCmd) error {
	d.send(StatusMsg{
		Text:  fmt.Sprintf("Connecting to %s...", c.Account.Address()),
		State: model.SessionConnecting,
	})

	if _, err := d.opts.Manager.Connect(ctx, c.Account); err != nil {
		return err
	}

	d.send(ConnectedMsg{Account: c.Account})
	d.send(StatusMsg{Text: "Connected to " + c.Account.DisplayName, State: model.SessionConnected})

	return d.listFolders(ctx)
}

func (d *Driver) listFolders(ctx context.Context) error {
	s, err := d.session()
	if err != nil {
		return err
	}

	descriptors, err := s.ListFolders(ctx)
	if err != nil {
		return err
	}

	root := catalog.Build(descriptors)
	d.send(FoldersMsg{Root: root, Descriptors: descriptors})
	d.send(StatusMsg{Text: fmt.Sprintf("Loaded %d folders", root.Count()), State: s.State()})
	return nil
}

func (d *Driver) loadFolder(ctx context.Context, c LoadFolderCmd) error {
	s, err := d.session()
	if err != nil {
		return err
	}

	d.send(StatusMsg{Text: "Loading " + c.Folder + "...", State: model.SessionSelectingFolder})

	loader := index.NewLoader(s, d.opts.Logger)
	result, err := loader.LoadFolder(ctx, c.Folder, func(done, total int) {
		d.sendProgress(ProgressMsg{Kind: KindLoadFolder, Done: done, Total: total, Label: c.Folder})
	})
	if err != nil {
		return err
	}

	d.send(FolderLoadedMsg{Result: result})
	text := fmt.Sprintf("Loaded %d emails from %s", len(result.Messages), c.Folder)
	if n := len(result.Skipped); n > 0 {
		text += fmt.Sprintf(" (%d skipped)", n)
	}
	d.send(StatusMsg{Text: text, State: s.State()})
	return nil
}

func (d *Driver) preview(ctx context.Context, c PreviewCmd) error {
	raw := c.Message.RawContent
	if raw == nil {
		s, err := d.session()
		if err != nil {
			return err
		}
		raw, err = s.FetchRaw(ctx, c.Message.Folder, c.Message.UID)
		if err != nil {
			return err
		}
	}

	d.send(PreviewMsg{Message: c.Message, Raw: raw, Text: body.Preview(raw)})
	return nil
}

func (d *Driver) export(ctx context.Context, c ExportCmd) error {
	s, err := d.session()
	if err != nil {
		return err
	}

	pipeline := &export.Pipeline{
		Fetcher: s,
		Logger:  d.opts.Logger,
		Progress: func(done, total int, subject string) {
			d.sendProgress(ProgressMsg{Kind: KindExport, Done: done, Total: total, Label: subject})
		},
	}

	if c.Concurrency > 1 {
		pool := d.openPool(ctx, s.Account(), c.Concurrency)
		defer func() {
			for _, ps := range pool {
				ps.Disconnect()
			}
		}()
		if len(pool) > 1 {
			for _, ps := range pool {
				pipeline.Pool = append(pipeline.Pool, ps)
			}
		}
	}

	started := time.Now().UTC()
	report, runErr := pipeline.Run(ctx, c.Request)
	if runErr != nil && ctx.Err() != nil {
		return runErr
	}

	run := model.ExportRun{
		AccountID:  s.Account().ID,
		Root:       c.Request.Root,
		Formats:    c.Request.Formats.String(),
		Total:      report.Total,
		Succeeded:  report.Succeeded,
		Skipped:    report.Skipped,
		Failed:     len(report.Failures),
		StartedAt:  started,
		FinishedAt: time.Now().UTC(),
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	run = d.record(run)

	d.send(ExportDoneMsg{Report: report, Run: run, Err: runErr})
	if runErr == nil {
		d.send(StatusMsg{Text: report.Summary(), State: s.State()})
	}
	return nil
}

// openPool opens up to n extra sessions. Failures shrink the pool.
func (d *Driver) openPool(ctx context.Context, acct model.Account, n int) []*session.Session {
	if n > model.MaxConcurrency {
		n = model.MaxConcurrency
	}

	pool := make([]*session.Session, 0, n)
	for i := 0; i < n; i++ {
		ps, err := d.opts.Manager.Open(ctx, acct)
		if err != nil {
			d.log.Warn().Err(err).Int("opened", len(pool)).Msg("could not open pooled session")
			break
		}
		pool = append(pool, ps)
	}
	return pool
}

func (d *Driver) record(run model.ExportRun) model.ExportRun {
	if d.opts.Store == nil || run.AccountID == "" {
		return run
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	saved, err := d.opts.Store.RecordExportRun(ctx, run)
	if err != nil {
		d.log.Warn().Err(err).Msg("recording export run")
		return run
	}
	return saved
}

// send delivers a result, blocking until it is received or the driver
// stops.
func (d *Driver) send(msg tea.Msg) {
	select {
	case d.msgCh <- msg:
	case <-d.ctx.Done():
	}
}

// sendProgress delivers msg without blocking. Progress is dropped when
// the consumer falls behind.
func (d *Driver) sendProgress(msg ProgressMsg) {
	select {
	case d.msgCh <- msg:
	default:
	}
}
