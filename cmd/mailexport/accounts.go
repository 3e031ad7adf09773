package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/nhle/mail-export/internal/credential"
	"github.com/nhle/mail-export/internal/model"
	"github.com/nhle/mail-export/internal/store"
	"github.com/nhle/mail-export/internal/theme"
)

const secretEnv = credential.EnvSecret

func newAccountsCmd(env *cliEnv) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "accounts",
		Aliases: []string{"account"},
		Short:   "Manage saved accounts",
	}
	cmd.AddCommand(
		newAccountsListCmd(env),
		newAccountsAddCmd(env),
		newAccountsRemoveCmd(env),
	)
	return cmd
}

func newAccountsListCmd(env *cliEnv) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List saved accounts",
		Args:    cobra.NoArgs,
		PreRunE: env.preRun(false),
		RunE: func(cmd *cobra.Command, args []string) error {
			accts, err := env.store.GetAccounts(cmd.Context())
			if err != nil {
				return err
			}
			if len(accts) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No accounts yet. Add one with: mailexport accounts add")
				return nil
			}

			rows := make([][]string, len(accts))
			for i, a := range accts {
				mode := "ssl"
				if !a.UseEncryption {
					mode = "plain"
				}
				rows[i] = []string{a.DisplayName, a.Username, a.Address(), mode, a.UpdatedAt.Local().Format(time.DateTime)}
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"NAME", "USERNAME", "SERVER", "MODE", "UPDATED"}, rows))
			return nil
		},
	}
}

type addOptions struct {
	name     string
	host     string
	port     int
	username string
	password string
	prompt   bool
	noSSL    bool
}

func newAccountsAddCmd(env *cliEnv) *cobra.Command {
	var opts addOptions

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add or update an account",
		Long: "Add an account, or update the one with the same name. The password is\n" +
			"taken from --password, --password-prompt or the " + secretEnv + " variable\n" +
			"and stored in the system keyring.",
		Args:    cobra.NoArgs,
		PreRunE: env.preRun(false),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := readSecret(opts)
			if err != nil {
				return err
			}

			acct := model.NewAccount(opts.name, opts.host, opts.username, secret)
			acct.Port = opts.port
			acct.UseEncryption = !opts.noSSL

			existing, err := env.store.FindAccount(cmd.Context(), opts.name)
			switch {
			case err == nil:
				acct.ID = existing.ID
			case !errors.Is(err, store.ErrNotFound):
				return err
			}

			saved, err := env.store.UpsertAccount(cmd.Context(), acct)
			if err != nil {
				return err
			}
			if err := credential.Set(saved.SecretKey(), secret); err != nil {
				return fmt.Errorf("storing password: %w", err)
			}

			env.log.Info().Str("account", saved.ID).Msg("account saved")
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", saved.Label())
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.name, "name", "", "Display name")
	f.StringVar(&opts.host, "host", "", "IMAP server host")
	f.IntVar(&opts.port, "port", model.DefaultIMAPPort, "IMAP server port")
	f.StringVarP(&opts.username, "username", "u", "", "Login username")
	f.StringVar(&opts.password, "password", "", "Login password (prefer --password-prompt)")
	f.BoolVar(&opts.prompt, "password-prompt", false, "Read the password from the terminal")
	f.BoolVar(&opts.noSSL, "no-ssl", false, "Connect without TLS")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("host")
	_ = cmd.MarkFlagRequired("username")
	cmd.MarkFlagsMutuallyExclusive("password", "password-prompt")

	return cmd
}

func newAccountsRemoveCmd(env *cliEnv) *cobra.Command {
	return &cobra.Command{
		Use:     "remove NAME",
		Aliases: []string{"rm"},
		Short:   "Remove an account and its stored password",
		Args:    cobra.ExactArgs(1),
		PreRunE: env.preRun(false),
		RunE: func(cmd *cobra.Command, args []string) error {
			acct, err := env.store.FindAccount(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("account %q: %w", args[0], err)
			}
			if err := env.store.DeleteAccount(cmd.Context(), acct.ID); err != nil {
				return err
			}
			if err := credential.Delete(acct.SecretKey()); err != nil {
				env.log.Warn().Err(err).Str("account", acct.ID).Msg("removing stored password")
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", acct.Label())
			return nil
		},
	}
}

// readSecret resolves the password from flags, the terminal or the
// environment, in that order.
func readSecret(opts addOptions) (string, error) {
	if opts.password != "" {
		return opts.password, nil
	}
	if opts.prompt {
		fmt.Fprint(os.Stderr, "Password: ")
		if term.IsTerminal(int(os.Stdin.Fd())) {
			b, err := term.ReadPassword(int(os.Stdin.Fd()))
			fmt.Fprintln(os.Stderr)
			if err != nil {
				return "", fmt.Errorf("reading password: %w", err)
			}
			return string(b), nil
		}
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}
	if s := os.Getenv(secretEnv); s != "" {
		return s, nil
	}
	return "", fmt.Errorf("no password given: use --password-prompt or set %s", secretEnv)
}

// lookupAccount finds ref by ID or display name and loads its secret.
// credential.Get honors the secret variable, so scripts need no keyring.
func (e *cliEnv) lookupAccount(cmd *cobra.Command, ref string) (model.Account, error) {
	acct, err := e.store.FindAccount(cmd.Context(), ref)
	if err != nil {
		return model.Account{}, fmt.Errorf("account %q: %w", ref, err)
	}
	if err := credential.LoadSecret(acct); err != nil {
		return model.Account{}, fmt.Errorf("password for %s: %w", acct.Label(), err)
	}
	return *acct, nil
}

func renderTable(headers []string, rows [][]string) string {
	header := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorBlue).Padding(0, 1)
	cell := lipgloss.NewStyle().Padding(0, 1)

	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(theme.ColorGray)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			return cell
		}).
		Render()
}
