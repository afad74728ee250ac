package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"gosyncmovies/internal/app"
	"gosyncmovies/internal/cli"
	"gosyncmovies/internal/recommend"
	"gosyncmovies/internal/utils"
)

const defaultRecommendations = 5

func newRecommendCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "recommend [count]",
		Short: "Generate AI movie recommendations",
		Long: fmt.Sprintf(`Ask the configured model for movies you are likely to enjoy, based on
your favorites, ratings and what you marked not interested. Each request
costs %d credit; the credit is refunded when nothing new is found.

New recommendations are added to your library and listed with
'gosyncmovies movie list recommended'.`, recommend.CostPerRequest),
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			count := defaultRecommendations
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n <= 0 {
					return fmt.Errorf("count must be a positive integer, got %q", args[0])
				}
				count = n
			}

			return withApp(opts, func(a *app.App) error {
				outcome, err := a.Recommendations().Generate(cmd.Context(), count)
				if err != nil && !errors.Is(err, recommend.ErrNoRecommendations) {
					return err
				}
				if handled, err := utils.Output(opts.format(), outcome); handled {
					return err
				}
				if outcome == nil || len(outcome.Added) == 0 {
					fmt.Println("No new recommendations this time")
					if outcome != nil && outcome.Refunded {
						fmt.Printf("Your credit was refunded (balance %d)\n", outcome.Balance)
					}
					return nil
				}
				cli.ShowMovies(os.Stdout, "Recommended for you", outcome.Added)
				fmt.Printf("Credits left: %d\n", outcome.Balance)
				return nil
			})
		},
	}
}
