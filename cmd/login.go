package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"crunchy-cli/internal"
)

type loginCommand struct {
	BaseExecutor
	env    *environment
	remove bool
}

func newLoginCmd(cfg *internal.Config, env *environment) *cobra.Command {
	login := &loginCommand{env: env}

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Save your login credentials persistent on disk",
		Long: `Log in and store the session so later invocations work without --credentials.
Anonymous logins cannot be stored.

Examples:
  crunchy-cli --credentials "user@example.com:password" login
  crunchy-cli login --remove`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if login.remove {
				return login.removeStored()
			}
			return runCommand(cmd.Context(), cfg, env, login)
		},
	}

	cmd.Flags().BoolVar(&login.remove, "remove", false, "Remove your stored credentials (instead of saving them)")
	return cmd
}

// removeStored deletes the session file. No client is built and no login happens.
func (l *loginCommand) removeStored() error {
	manager, err := l.env.sessionManager()
	if err != nil {
		return l.env.reportError(err)
	}
	if err := manager.Remove(); err != nil {
		return l.env.reportError(err)
	}
	return nil
}

func (l *loginCommand) Execute(ctx context.Context, ec *ExecutionContext) error {
	manager, err := l.env.sessionManager()
	if err != nil {
		return err
	}
	return manager.Save(ec.Session())
}
