package main

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/nhle/mail-export/internal/app"
	"github.com/nhle/mail-export/internal/session"
	appsync "github.com/nhle/mail-export/internal/sync"
)

func newTUICmd(env *cliEnv) *cobra.Command {
	return &cobra.Command{
		Use:     "tui",
		Short:   "Run the interactive browser (default)",
		Args:    cobra.NoArgs,
		PreRunE: env.preRun(true),
		RunE: func(cmd *cobra.Command, args []string) error {
			return env.runTUI(cmd)
		},
	}
}

func (e *cliEnv) runTUI(cmd *cobra.Command) error {
	driver := appsync.New(appsync.Options{
		Manager: session.NewManager(e.sessionOptions()),
		Store:   e.store,
		Logger:  e.log,
	})
	defer driver.Stop()

	m := app.New(app.Options{
		Store:      e.store,
		Driver:     driver,
		Config:     e.cfg,
		ConfigPath: e.configPath,
		Logger:     e.log,
	})

	e.log.Info().Str("version", version).Msg("starting interactive session")

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context()))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running UI: %w", err)
	}
	return nil
}
