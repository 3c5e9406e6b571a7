package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/systmms/wbctl/internal/config"
	"github.com/systmms/wbctl/internal/login"
)

func NewLoginCommand(cfg *config.Config) *cobra.Command {
	var silentOnly bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to the selected Wikibase",
		Long: `Log in through the data-import backend.

If the backend already holds a session nothing is shown. Otherwise the saved
credential cookies are tried first, then the login form the backend allows:
username and password (or an owner-only consumer) for a local backend,
browser authorization for a hosted one.

Examples:
  wbctl login                  # Log in, showing a form if needed
  wbctl login --silent         # Only try the saved credentials`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			a, err := openApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.close()

			var id login.Identity
			if silentOnly {
				id, err = a.silent.Attempt(ctx)
			} else {
				if _, err := a.loadRegistry(ctx); err != nil {
					a.logger.Warn("could not load wikibase manifests: %v", err)
				}
				id, err = a.ctrl.EnsureLoggedIn(ctx)
			}
			if err != nil {
				return err
			}
			return printIdentity(cmd.OutOrStdout(), id)
		},
	}

	cmd.Flags().BoolVar(&silentOnly, "silent", false, "Only log in with saved credentials, never show a form")

	return cmd
}

func NewAccountCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "account",
		Short: "Show the logged-in account, or log in",
		Long: `Show the account view when logged in, from where you can log out.
When nobody is logged in, the login flows are shown instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			a, err := openApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.close()

			if _, err := a.loadRegistry(ctx); err != nil {
				a.logger.Warn("could not load wikibase manifests: %v", err)
			}
			id, err := a.ctrl.Manage(ctx)
			if err != nil {
				return err
			}
			return printIdentity(cmd.OutOrStdout(), id)
		},
	}
}

func NewLogoutCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the backend session",
		Long: `Ask the backend to log out. The backend also expires the saved
credential cookies, so the next login will ask again.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			a, err := openApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.ctrl.Logout(ctx); err != nil {
				return err
			}
			if err := a.jar.Forget(); err != nil {
				a.logger.Warn("could not remove saved credentials: %v", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return err
		},
	}
}

func printIdentity(w io.Writer, id login.Identity) error {
	if id.IsAnonymous() {
		_, err := fmt.Fprintln(w, "Not logged in")
		return err
	}
	_, err := fmt.Fprintf(w, "Logged in as %s\n", id)
	return err
}
