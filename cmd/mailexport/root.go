package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nhle/mail-export/internal/logging"
	"github.com/nhle/mail-export/internal/model"
	"github.com/nhle/mail-export/internal/session"
	"github.com/nhle/mail-export/internal/store"
)

// cliEnv carries what every subcommand needs once configuration has
// been loaded.
type cliEnv struct {
	v          *viper.Viper
	configPath string

	cfg     *model.AppConfig
	log     zerolog.Logger
	logFile *os.File
	store   *store.SQLiteStore
}

func newEnv() *cliEnv {
	return &cliEnv{v: model.NewViper()}
}

func newRootCmd(env *cliEnv) *cobra.Command {
	root := &cobra.Command{
		Use:           "mailexport",
		Short:         "Browse IMAP mailboxes and export messages",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PreRunE:       env.preRun(true),
		RunE: func(cmd *cobra.Command, args []string) error {
			return env.runTUI(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&env.configPath, "config", model.DefaultConfigPath(), "Path to the YAML config file")
	pf.String("log-level", "", "Log level (debug, info, warn, error)")
	pf.String("db", "", "Path to the sqlite database")
	_ = env.v.BindPFlag("log.level", pf.Lookup("log-level"))
	_ = env.v.BindPFlag("database.path", pf.Lookup("db"))

	root.AddCommand(
		newTUICmd(env),
		newAccountsCmd(env),
		newFoldersCmd(env),
		newExportCmd(env),
		newHistoryCmd(env),
		newConfigCmd(env),
	)

	return root
}

// load reads the configuration and opens the logger and the store.
// Interactive runs log to the configured file since the terminal
// belongs to the UI; everything else logs to stderr.
func (e *cliEnv) load(interactive bool) error {
	e.v.SetConfigFile(e.configPath)
	cfg, err := model.LoadConfigFrom(e.v)
	if err != nil {
		return err
	}
	e.cfg = cfg

	if interactive {
		log, f, err := logging.OpenFile(cfg.Log.Level, cfg.Log.File)
		if err != nil {
			return err
		}
		e.log, e.logFile = log, f
	} else {
		e.log = logging.NewConsole(cfg.Log.Level, os.Stderr)
	}

	if cfg.Database.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
			return fmt.Errorf("creating database directory: %w", err)
		}
	}
	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return err
	}
	e.store = st

	e.log.Debug().
		Str("config", e.configPath).
		Str("database", cfg.Database.Path).
		Msg("configuration loaded")
	return nil
}

func (e *cliEnv) close() {
	if e.store != nil {
		if err := e.store.Close(); err != nil {
			e.log.Warn().Err(err).Msg("closing store")
		}
		e.store = nil
	}
	if e.logFile != nil {
		_ = e.logFile.Close()
		e.logFile = nil
	}
}

func (e *cliEnv) sessionOptions() session.Options {
	return session.Options{
		DialTimeout: time.Duration(e.cfg.Session.DialTimeoutSec) * time.Second,
		Logger:      e.log,
	}
}

// preRun returns a PreRunE that loads the environment.
func (e *cliEnv) preRun(interactive bool) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		return e.load(interactive)
	}
}
