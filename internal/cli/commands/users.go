package commands

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/iotsdd/attendchain/internal/cli/output"
	"github.com/iotsdd/attendchain/internal/state"
)

// NewUsersCommand creates the users command and its subcommands.
func NewUsersCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage API accounts",
		Long:  `Manage the accounts allowed to log in to the API served by 'attendchain serve'.`,
	}

	cmd.AddCommand(newUsersAddCommand())
	cmd.AddCommand(newUsersListCommand())
	cmd.AddCommand(newUsersRemoveCommand())
	return cmd
}

func newUsersAddCommand() *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "add <username>",
		Short: "Create an API account",
		Long: `Create an API account. The password is read from --password or,
when omitted, prompted for on the terminal.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx := NewCommandContext(cmd)
			r := cmdCtx.Renderer

			if password == "" {
				p, err := promptPassword(cmd)
				if err != nil {
					return err
				}
				password = p
			}

			store, err := cmdCtx.openStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			u, err := store.CreateUser(cmd.Context(), args[0], password)
			if err != nil {
				return err
			}

			if r.EffectiveMode() == output.ModeJSON {
				return r.JSON(u)
			}
			r.Success(fmt.Sprintf("Created user %s (id %d)", u.Username, u.ID))
			return nil
		},
	}

	cmd.Flags().StringVar(&password, "password", "", "Password (prompted when omitted)")
	return cmd
}

func promptPassword(cmd *cobra.Command) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("no password given: use --password or run from a terminal")
	}
	_, _ = fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
	p, err := term.ReadPassword(fd)
	_, _ = fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimSpace(string(p)), nil
}

func newUsersListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List API accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx := NewCommandContext(cmd)
			r := cmdCtx.Renderer

			store, err := cmdCtx.openStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			users, err := store.ListUsers(cmd.Context())
			if err != nil {
				return err
			}
			if users == nil {
				users = []state.User{}
			}

			if r.EffectiveMode() == output.ModeJSON {
				return r.JSON(users)
			}
			if len(users) == 0 {
				r.Muted("no users")
				return nil
			}
			rows := make([][]string, 0, len(users))
			for _, u := range users {
				rows = append(rows, []string{strconv.FormatInt(u.ID, 10), u.Username, u.CreatedAt.Format("2006-01-02 15:04:05")})
			}
			r.Table([]string{"ID", "Username", "Created"}, rows)
			return nil
		},
	}
}

func newUsersRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "remove <id>",
		Aliases: []string{"rm"},
		Short:   "Delete an API account",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid user id %q", args[0])
			}

			cmdCtx := NewCommandContext(cmd)
			store, err := cmdCtx.openStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.DeleteUser(cmd.Context(), id); err != nil {
				return err
			}
			cmdCtx.Renderer.Success(fmt.Sprintf("Removed user %d", id))
			return nil
		},
	}
}
