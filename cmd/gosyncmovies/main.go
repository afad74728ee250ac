package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"gosyncmovies/internal/app"
	"gosyncmovies/internal/config"
	"gosyncmovies/internal/utils"
)

// cliOptions are the persistent flags shared by every command.
type cliOptions struct {
	configPath string
	verbose    bool
	output     string
}

func (o *cliOptions) format() utils.OutputFormat {
	return utils.OutputFormat(o.output)
}

// loadApp builds the application for a command. worker is set by the
// worker command so it never spawns another worker.
func (o *cliOptions) loadApp(worker bool) (*app.App, error) {
	cfg, err := config.GetConfig()
	if err != nil {
		return nil, err
	}
	var spawnArgs []string
	if o.configPath != "" {
		spawnArgs = []string{"--config", o.configPath}
	}
	return app.New(cfg, app.Options{Worker: worker, SpawnArgs: spawnArgs})
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}

	rootCmd := &cobra.Command{
		Use:   "gosyncmovies",
		Short: "Offline-first movie library with background sync",
		Long: `gosyncmovies keeps your movie library (seen, watchlist, favorites,
ratings and AI recommendations) in a local database and syncs it with a
remote document store in the background.

Examples:
  gosyncmovies session signin alice --prompt
  gosyncmovies movie add 603 "The Matrix" --release-date 1999-03-30
  gosyncmovies movie seen 603
  gosyncmovies movie list watchlist
  gosyncmovies sync status
  gosyncmovies recommend 5`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.configPath != "" {
				config.SetCustomConfigPath(opts.configPath)
			}
			utils.SetVerboseMode(opts.verbose)
			switch opts.format() {
			case utils.FormatText, utils.FormatJSON, utils.FormatYAML:
				return nil
			default:
				return fmt.Errorf("unknown output format %q (use text, json or yaml)", opts.output)
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file or directory (default: $XDG_CONFIG_HOME/gosyncmovies/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&opts.output, "output", "o", string(utils.FormatText), "output format: text, json or yaml")

	rootCmd.AddCommand(newMovieCmd(opts))
	rootCmd.AddCommand(newSyncCmd(opts))
	rootCmd.AddCommand(newSessionCmd(opts))
	rootCmd.AddCommand(newCreditsCmd(opts))
	rootCmd.AddCommand(newRecommendCmd(opts))
	rootCmd.AddCommand(newWorkerCmd(opts))
	rootCmd.AddCommand(newServeCmd(opts))
	rootCmd.AddCommand(newConfigCmd(opts))

	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
