package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nhle/mail-export/internal/catalog"
	"github.com/nhle/mail-export/internal/model"
)

func newFoldersCmd(env *cliEnv) *cobra.Command {
	var accountRef string

	cmd := &cobra.Command{
		Use:     "folders",
		Short:   "Print the folder tree of an account",
		Args:    cobra.NoArgs,
		PreRunE: env.preRun(false),
		RunE: func(cmd *cobra.Command, args []string) error {
			acct, err := env.lookupAccount(cmd, accountRef)
			if err != nil {
				return err
			}

			h, stop := env.newHeadless(cmd.Context(), true)
			defer stop()

			folders, err := h.connect(acct)
			if err != nil {
				return err
			}

			printTree(cmd.OutOrStdout(), folders.Root)
			return nil
		},
	}

	cmd.Flags().StringVarP(&accountRef, "account", "a", "", "Account name or ID")
	_ = cmd.MarkFlagRequired("account")

	return cmd
}

// printTree writes one line per folder, indented by depth.
func printTree(w io.Writer, root *model.FolderNode) {
	for _, e := range catalog.Flatten(root) {
		fmt.Fprintf(w, "%s%s\n", strings.Repeat("  ", e.Depth), e.Node.Name)
	}
}

// resolveFolder maps a folder path to the server mailbox name. Unknown
// paths are passed through so raw mailbox names also work.
func resolveFolder(root *model.FolderNode, folder string) string {
	if root != nil {
		if node := root.Find(folder); node != nil {
			return node.Mailbox
		}
	}
	return folder
}
