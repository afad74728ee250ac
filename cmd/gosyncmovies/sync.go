package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"gosyncmovies/backend"
	backendsync "gosyncmovies/backend/sync"
	"gosyncmovies/internal/app"
	"gosyncmovies/internal/cli"
	"gosyncmovies/internal/utils"
)

// newSyncCmd creates the sync command with all subcommands
func newSyncCmd(opts *cliOptions) *cobra.Command {
	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Synchronize the library with the remote",
		Long: `Synchronize the local library with the remote document store.

Without a subcommand, pending changes are pushed and then the remote
library is pulled and merged; local edits that have not been pushed yet
are never overwritten by a pull.

Examples:
  gosyncmovies sync                 # push, then pull
  gosyncmovies sync push            # push pending changes only
  gosyncmovies sync pull            # pull and merge the remote library
  gosyncmovies sync status          # show pending changes and scheduled jobs
  gosyncmovies sync trigger         # schedule a background push
  gosyncmovies sync periodic stop   # stop the periodic sync`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app.App) error {
				var (
					push *backendsync.PushResult
					pull *backendsync.PullResult
				)
				err := utils.LogOperation("sync", func() error {
					var err error
					if push, err = a.Coordinator().PushNow(cmd.Context()); err != nil {
						return fmt.Errorf("push failed: %w", err)
					}
					if pull, err = a.Coordinator().PullFromRemote(cmd.Context()); err != nil {
						return fmt.Errorf("pull failed: %w", err)
					}
					return nil
				})
				if err != nil {
					return err
				}
				if handled, err := utils.Output(opts.format(), map[string]any{"push": push, "pull": pull}); handled {
					return err
				}
				cli.ShowSyncResult(os.Stdout, push, pull)
				return offlineError(a, pull.Err)
			})
		},
	}

	syncCmd.AddCommand(newSyncPushCmd(opts))
	syncCmd.AddCommand(newSyncPullCmd(opts))
	syncCmd.AddCommand(newSyncStatusCmd(opts))
	syncCmd.AddCommand(newSyncTriggerCmd(opts))
	syncCmd.AddCommand(newSyncPeriodicCmd(opts))
	syncCmd.AddCommand(newSyncJobsCmd(opts))

	return syncCmd
}

// offlineError turns an aborted pull caused by the network into a
// user-facing error with a suggestion.
func offlineError(a *app.App, err error) error {
	if err == nil || !backend.IsNetworkError(err) {
		return nil
	}
	return utils.ErrRemoteOffline(a.Config().Remote.Type, err.Error())
}

func newSyncPushCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "push",
		Short: "Push pending local changes now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app.App) error {
				result, err := a.Coordinator().PushNow(cmd.Context())
				if err != nil {
					return fmt.Errorf("push failed: %w", err)
				}
				if handled, err := utils.Output(opts.format(), result); handled {
					return err
				}
				cli.ShowSyncResult(os.Stdout, result, nil)
				return nil
			})
		},
	}
}

func newSyncPullCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pull",
		Short: "Pull and merge the remote library now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app.App) error {
				result, err := a.Coordinator().PullFromRemote(cmd.Context())
				if err != nil {
					return fmt.Errorf("pull failed: %w", err)
				}
				if handled, err := utils.Output(opts.format(), result); handled {
					return err
				}
				cli.ShowSyncResult(os.Stdout, nil, result)
				return offlineError(a, result.Err)
			})
		},
	}
}

func newSyncStatusCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show sync status",
		Long: `Display the number of movies in each sync state and the scheduled
background jobs with their next run time.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app.App) error {
				stats, err := a.Coordinator().Stats(cmd.Context())
				if err != nil {
					return fmt.Errorf("failed to get sync stats: %w", err)
				}
				queued, err := a.Coordinator().Jobs()
				if err != nil {
					return fmt.Errorf("failed to list jobs: %w", err)
				}
				if handled, err := utils.Output(opts.format(), map[string]any{"stats": stats, "jobs": queued}); handled {
					return err
				}
				cli.ShowSyncStatus(os.Stdout, stats, queued)
				return nil
			})
		},
	}
}

func newSyncTriggerCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "trigger",
		Short: "Schedule a background push",
		Long: `Schedule a debounced background push. A trigger replaces any earlier
trigger that has not started yet.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app.App) error {
				if err := a.Coordinator().TriggerSync(); err != nil {
					return err
				}
				fmt.Println("Sync scheduled")
				return nil
			})
		},
	}
}

func newSyncPeriodicCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "periodic",
		Short: "Start or stop the periodic sync",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "start",
		Short: "Schedule the periodic push and pull",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app.App) error {
				if err := a.Coordinator().StartPeriodicSync(); err != nil {
					return err
				}
				fmt.Printf("Periodic sync every %s\n", a.Config().Sync.PeriodicInterval)
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "stop",
		Short: "Cancel the periodic sync",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app.App) error {
				if err := a.Coordinator().StopPeriodicSync(); err != nil {
					return err
				}
				fmt.Println("Periodic sync stopped")
				return nil
			})
		},
	})
	return cmd
}

func newSyncJobsCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List scheduled background jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app.App) error {
				queued, err := a.Coordinator().Jobs()
				if err != nil {
					return err
				}
				if handled, err := utils.Output(opts.format(), queued); handled {
					return err
				}
				cli.ShowJobs(os.Stdout, queued)
				return nil
			})
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "cancel <name>",
		Short: "Cancel a scheduled job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app.App) error {
				if err := a.Queue().Cancel(args[0]); err != nil {
					return err
				}
				fmt.Printf("Cancelled %s\n", args[0])
				return nil
			})
		},
	})
	return cmd
}
