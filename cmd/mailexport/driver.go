package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	gosync "sync"
	"syscall"

	"github.com/nhle/mail-export/internal/model"
	"github.com/nhle/mail-export/internal/session"
	appsync "github.com/nhle/mail-export/internal/sync"
)

var errInterrupted = errors.New("interrupted")

// headless runs driver commands without the UI, reporting status and
// progress on stderr.
type headless struct {
	ctx    context.Context
	driver *appsync.Driver
	quiet  bool
}

// newHeadless starts a driver whose work is cancelled on SIGINT or
// SIGTERM. The returned stop func releases everything.
func (e *cliEnv) newHeadless(parent context.Context, quiet bool) (*headless, func()) {
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)

	d := appsync.New(appsync.Options{
		Manager: session.NewManager(e.sessionOptions()),
		Store:   e.store,
		Logger:  e.log,
	})
	d.Start()

	stop := gosync.OnceFunc(d.Stop)
	go func() {
		<-ctx.Done()
		stop()
	}()

	return &headless{ctx: ctx, driver: d, quiet: quiet}, func() {
		cancel()
		stop()
	}
}

// run submits cmd and returns the first message accepted by done.
func (h *headless) run(cmd appsync.Command, done func(msg any) bool) (any, error) {
	h.driver.Submit(cmd)

	for {
		msg := h.driver.WaitForNext()()
		if msg == nil {
			if h.ctx.Err() != nil {
				return nil, errInterrupted
			}
			return nil, fmt.Errorf("%s: driver stopped", cmd.Kind())
		}

		switch m := msg.(type) {
		case appsync.FailedMsg:
			return nil, fmt.Errorf("%s: %w", m.Kind, m.Err)
		case appsync.StatusMsg:
			if !h.quiet {
				fmt.Fprintln(os.Stderr, m.Text)
			}
		case appsync.ProgressMsg:
			if !h.quiet && m.Total > 0 {
				fmt.Fprintf(os.Stderr, "\r%s %d/%d", m.Kind, m.Done, m.Total)
				if m.Done == m.Total {
					fmt.Fprintln(os.Stderr)
				}
			}
		}

		if done(msg) {
			return msg, nil
		}
	}
}

// connect opens the session and returns the folder listing.
func (h *headless) connect(acct model.Account) (appsync.FoldersMsg, error) {
	msg, err := h.run(appsync.ConnectCmd{Account: acct}, func(msg any) bool {
		_, ok := msg.(appsync.FoldersMsg)
		return ok
	})
	if err != nil {
		return appsync.FoldersMsg{}, err
	}
	return msg.(appsync.FoldersMsg), nil
}
