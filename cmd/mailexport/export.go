package main

import (
	"fmt"
	"path/filepath"
	"slices"

	"github.com/spf13/cobra"

	"github.com/nhle/mail-export/internal/export"
	"github.com/nhle/mail-export/internal/model"
	appsync "github.com/nhle/mail-export/internal/sync"
)

type exportOptions struct {
	account string
	folder  string
	uids    []string
	quiet   bool
}

func newExportCmd(env *cliEnv) *cobra.Command {
	var opts exportOptions

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export messages from a folder",
		Long: "Export every message of a folder, or only the given UIDs, in the\n" +
			"configured formats. Flags override the export section of the config file.",
		Example: "  mailexport export -a Work -f INBOX --format eml,json --dir ./out\n" +
			"  mailexport export -a Work -f Archive/2023 --uid 12 --uid 15 --format mbox",
		Args:    cobra.NoArgs,
		PreRunE: env.preRun(false),
		RunE: func(cmd *cobra.Command, args []string) error {
			return env.runExport(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.account, "account", "a", "", "Account name or ID")
	f.StringVarP(&opts.folder, "folder", "f", "", "Folder path, e.g. INBOX or Work/Projects")
	f.StringSliceVar(&opts.uids, "uid", nil, "Export only these UIDs (repeatable)")
	f.BoolVarP(&opts.quiet, "quiet", "q", false, "Do not report progress")
	f.StringSlice("format", nil, "Formats to write: eml, mbox, json, csv")
	f.String("dir", "", "Destination directory")
	f.Bool("preserve", false, "Recreate the folder hierarchy below the destination")
	f.Bool("skip-existing", false, "Leave existing EML files untouched")
	f.Int("concurrency", 0, "Number of connections used to fetch messages")
	_ = cmd.MarkFlagRequired("account")
	_ = cmd.MarkFlagRequired("folder")

	_ = env.v.BindPFlag("export.formats", f.Lookup("format"))
	_ = env.v.BindPFlag("export.directory", f.Lookup("dir"))
	_ = env.v.BindPFlag("export.preserve_structure", f.Lookup("preserve"))
	_ = env.v.BindPFlag("export.skip_existing", f.Lookup("skip-existing"))
	_ = env.v.BindPFlag("export.concurrency", f.Lookup("concurrency"))

	return cmd
}

func (e *cliEnv) runExport(cmd *cobra.Command, opts exportOptions) error {
	acct, err := e.lookupAccount(cmd, opts.account)
	if err != nil {
		return err
	}

	cfg := e.cfg.Export
	root, err := filepath.Abs(cfg.Directory)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", cfg.Directory, err)
	}

	h, stop := e.newHeadless(cmd.Context(), opts.quiet)
	defer stop()

	folders, err := h.connect(acct)
	if err != nil {
		return err
	}

	msg, err := h.run(appsync.LoadFolderCmd{Folder: resolveFolder(folders.Root, opts.folder)}, func(msg any) bool {
		_, ok := msg.(appsync.FolderLoadedMsg)
		return ok
	})
	if err != nil {
		return err
	}

	messages, err := pickUIDs(msg.(appsync.FolderLoadedMsg).Result.Messages, opts.uids)
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "Nothing to export")
		return nil
	}

	e.log.Info().
		Str("account", acct.ID).
		Str("folder", opts.folder).
		Int("messages", len(messages)).
		Str("formats", cfg.FormatSet().String()).
		Msg("export started")

	msg, err = h.run(appsync.ExportCmd{
		Request: export.Request{
			Messages:                messages,
			Formats:                 cfg.FormatSet(),
			Root:                    root,
			PreserveFolderStructure: cfg.PreserveStructure,
			SkipExisting:            cfg.SkipExisting,
		},
		Concurrency: cfg.Concurrency,
	}, func(msg any) bool {
		_, ok := msg.(appsync.ExportDoneMsg)
		return ok
	})
	if err != nil {
		return err
	}

	done := msg.(appsync.ExportDoneMsg)
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, done.Report.Summary())
	fmt.Fprintf(out, "Files written to %s\n", root)
	for _, f := range done.Report.Failures {
		fmt.Fprintf(out, "  failed: %s\n", f.Error())
	}

	if done.Err != nil {
		return done.Err
	}
	if len(done.Report.Failures) > 0 {
		return fmt.Errorf("%d messages failed", len(done.Report.Failures))
	}
	return nil
}

// pickUIDs keeps the messages whose UID is listed, in folder order. An
// empty list keeps everything.
func pickUIDs(msgs []model.EmailMessage, uids []string) ([]model.EmailMessage, error) {
	if len(uids) == 0 {
		return msgs, nil
	}

	picked := make([]model.EmailMessage, 0, len(uids))
	for _, m := range msgs {
		if slices.Contains(uids, m.UID) {
			picked = append(picked, m)
		}
	}
	if len(picked) != len(uids) {
		for _, uid := range uids {
			if !slices.ContainsFunc(msgs, func(m model.EmailMessage) bool { return m.UID == uid }) {
				return nil, fmt.Errorf("no message with UID %s", uid)
			}
		}
	}
	return picked, nil
}
