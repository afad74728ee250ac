package main

import (
	"fmt"
	"os"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"gosyncmovies/backend"
	"gosyncmovies/internal/app"
	"gosyncmovies/internal/cli"
	"gosyncmovies/internal/session"
	"gosyncmovies/internal/utils"
)

func newSessionCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Sign in and out of this device",
		Long: `Manage who is signed in on this device.

The user id and API token are stored in the system keyring.
GOSYNCMOVIES_USER_ID and GOSYNCMOVIES_TOKEN override the keyring, which is
how headless workers run.

Examples:
  gosyncmovies session signin alice --prompt
  gosyncmovies session whoami
  gosyncmovies session signout`,
	}

	cmd.AddCommand(newSessionSignInCmd(opts))
	cmd.AddCommand(newSessionSignOutCmd(opts))
	cmd.AddCommand(newSessionWhoamiCmd(opts))
	return cmd
}

func newSessionSignInCmd(opts *cliOptions) *cobra.Command {
	var (
		token       string
		prompt      bool
		profileInfo backend.UserProfile
	)

	cmd := &cobra.Command{
		Use:   "signin <user-id>",
		Short: "Sign in and pull your library",
		Long: `Sign in as user-id. The remote profile is created on first sign-in,
the periodic sync is scheduled and the remote library is pulled.

Signing in as a different user signs the previous user out first, which
removes their movies from this device.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if prompt {
				fmt.Printf("Enter API token for %s: ", args[0])
				tokenBytes, err := term.ReadPassword(int(syscall.Stdin))
				fmt.Println()
				if err != nil {
					return fmt.Errorf("failed to read token: %w", err)
				}
				token = string(tokenBytes)
			}

			return withApp(opts, func(a *app.App) error {
				profile, err := a.SignIn(cmd.Context(), args[0], token, profileInfo)
				if err != nil {
					if !session.IsKeyringAvailable() {
						return utils.WrapWithSuggestion(err, fmt.Sprintf(
							"The system keyring is not available. Use environment variables instead:\n  export %s=%s\n  export %s=<token>",
							session.EnvUserID, args[0], session.EnvToken))
					}
					return err
				}
				if handled, err := utils.Output(opts.format(), profile); handled {
					return err
				}
				fmt.Printf("Signed in as %s (%d credits)\n", profile.ID, profile.Credits)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "API token (visible in shell history; prefer --prompt)")
	cmd.Flags().BoolVar(&prompt, "prompt", false, "read the API token interactively")
	cmd.Flags().StringVar(&profileInfo.Email, "email", "", "email for a new profile")
	cmd.Flags().StringVar(&profileInfo.DisplayName, "name", "", "display name for a new profile")
	return cmd
}

func newSessionSignOutCmd(opts *cliOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "signout",
		Short: "Sign out and remove the library from this device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app.App) error {
				userID, ok := a.Session().CurrentUserID()
				if !ok {
					fmt.Println("Not signed in")
					return nil
				}
				stats, err := a.Coordinator().Stats(cmd.Context())
				if err == nil && stats.Pending+stats.PendingDelete > 0 && !yes {
					q := fmt.Sprintf("%d change(s) have not been synced and will be lost. Sign out anyway?", stats.Pending+stats.PendingDelete)
					if !utils.PromptYesNo(os.Stdin, os.Stdout, q) {
						fmt.Println("Cancelled")
						return nil
					}
				}
				if err := a.SignOut(cmd.Context()); err != nil {
					return err
				}
				fmt.Printf("Signed out %s\n", userID)
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask about unsynced changes")
	return cmd
}

func newSessionWhoamiCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user and profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app.App) error {
				userID, source := a.Session().Resolve()
				if userID == "" {
					return utils.ErrNotSignedIn()
				}
				profile, stale, err := a.Profile(cmd.Context())
				if err != nil {
					return err
				}
				if handled, err := utils.Output(opts.format(), map[string]any{
					"userId": userID, "source": source, "profile": profile, "stale": stale,
				}); handled {
					return err
				}
				fmt.Printf("Signed in as %s (from %s)\n", userID, source)
				cli.ShowProfile(os.Stdout, profile, stale)
				return nil
			})
		},
	}
}

func newCreditsCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credits",
		Short: "Show or grant recommendation credits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app.App) error {
				profile, stale, err := a.Profile(cmd.Context())
				if err != nil {
					return err
				}
				if handled, err := utils.Output(opts.format(), map[string]any{"credits": profile.Credits, "stale": stale}); handled {
					return err
				}
				fmt.Printf("Credits: %d\n", profile.Credits)
				if stale {
					fmt.Println("(cached; the remote is unreachable)")
				}
				return nil
			})
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "grant <n>",
		Short: "Add purchased credits to the signed-in user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil || n <= 0 {
				return fmt.Errorf("credit grant must be a positive integer, got %q", args[0])
			}
			return withApp(opts, func(a *app.App) error {
				balance, err := a.Recommendations().GrantCredits(cmd.Context(), n)
				if err != nil {
					return err
				}
				fmt.Printf("Granted %d credit(s); balance %d\n", n, balance)
				return nil
			})
		},
	})
	return cmd
}
