package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/thejerf/suture/v4"

	"gosyncmovies/backend/badgerdoc"
	"gosyncmovies/internal/config"
	"gosyncmovies/internal/docserver"
	"gosyncmovies/internal/jobs"
	"gosyncmovies/internal/utils"
)

// drainIdle is how far ahead a one-shot worker looks for upcoming work
// before it exits. It covers the sync debounce.
const drainIdle = 30 * time.Second

func newWorkerCmd(opts *cliOptions) *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run background sync jobs",
		Long: `Run the background job runner.

Without --once the worker keeps running, executes jobs as they come due and
serves Prometheus metrics when metrics.enabled is set. With --once it runs
whatever is due or about to be due and exits; this is what the CLI spawns
after a change when sync.spawn_worker is set.

Only one worker runs jobs at a time. Others wait for the lease.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.loadApp(true)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			runner := a.NewRunner("")
			log := utils.Component("worker")

			if once {
				n, err := runner.Drain(ctx, drainIdle)
				switch {
				case errors.Is(err, jobs.ErrLeaseHeld):
					log.Debug().Err(err).Msg("another worker is running")
					return nil
				case err != nil && ctx.Err() == nil:
					return err
				}
				log.Debug().Int("attempts", n).Msg("worker drained the queue")
				return nil
			}

			err = a.Supervisor(runner).Serve(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "run due jobs and exit")
	return cmd
}

func newServeCmd(opts *cliOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the document server",
		Long: `Serve per-user movie and profile documents over HTTP, backed by an
embedded database. This is the remote the docstore client talks to.

Set GOSYNCMOVIES_SERVER_TOKEN to require a bearer token.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.GetConfig()
			if err != nil {
				return err
			}
			utils.InitLogging(cfg.Log)
			if addr == "" {
				addr = cfg.Server.Addr
			}

			dir, err := cfg.ServerDataDir()
			if err != nil {
				return err
			}
			store, err := badgerdoc.Open(dir)
			if err != nil {
				return err
			}
			defer store.Close()

			srv := docserver.New(store, docserver.Options{
				Addr:       addr,
				Token:      cfg.Server.Token,
				RateLimit:  cfg.Server.RateLimit,
				RateWindow: cfg.Server.RateWindow,
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			log := utils.Component("supervisor")
			sup := suture.New("docserver", suture.Spec{
				EventHook: func(e suture.Event) {
					log.Warn().Fields(e.Map()).Msg(e.String())
				},
				Timeout: 10 * time.Second,
			})
			sup.Add(srv)
			if err := sup.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("document server: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default: server.addr)")
	return cmd
}
