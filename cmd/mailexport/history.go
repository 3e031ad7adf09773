package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

func newHistoryCmd(env *cliEnv) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:     "history",
		Short:   "Show recent export runs",
		Args:    cobra.NoArgs,
		PreRunE: env.preRun(false),
		RunE: func(cmd *cobra.Command, args []string) error {
			runs, err := env.store.GetExportRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No exports recorded")
				return nil
			}

			names := map[string]string{}
			if accts, err := env.store.GetAccounts(cmd.Context()); err == nil {
				for _, a := range accts {
					names[a.ID] = a.DisplayName
				}
			}

			rows := make([][]string, len(runs))
			for i, r := range runs {
				account := names[r.AccountID]
				if account == "" {
					account = r.AccountID
				}
				result := fmt.Sprintf("%d/%d", r.Succeeded, r.Total)
				if r.Error != "" {
					result += " (" + r.Error + ")"
				}
				rows[i] = []string{
					r.StartedAt.Local().Format(time.DateTime),
					account,
					r.Formats,
					result,
					strconv.Itoa(r.Skipped),
					strconv.Itoa(r.Failed),
					r.Duration().Round(time.Millisecond).String(),
					r.Root,
				}
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"STARTED", "ACCOUNT", "FORMATS", "EXPORTED", "SKIPPED", "FAILED", "TOOK", "DIRECTORY"},
				rows,
			))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show")

	return cmd
}
