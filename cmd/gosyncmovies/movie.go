package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"gosyncmovies/backend"
	"gosyncmovies/internal/app"
	"gosyncmovies/internal/cli"
	"gosyncmovies/internal/utils"
)

func newMovieCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "movie",
		Aliases: []string{"m"},
		Short:   "Manage the movies in your library",
		Long: `Add movies and mark them seen, watchlisted, favorite, rated or not
interested. Every change is saved locally first and pushed to the remote in
the background.`,
	}

	complete := cli.MovieIDCompletion(func() (cli.MovieLister, error) {
		a, err := opts.loadApp(false)
		if err != nil {
			return nil, err
		}
		return a.Movies(), nil
	})

	cmd.AddCommand(newMovieAddCmd(opts))
	cmd.AddCommand(newMovieShowCmd(opts, complete))
	cmd.AddCommand(newMovieListCmd(opts))
	cmd.AddCommand(newMovieToggleCmd(opts, complete, "seen", "Mark a movie as seen", func(ctx context.Context, a *app.App, id int64, value bool) error {
		return a.Movies().SetSeen(ctx, id, value)
	}))
	cmd.AddCommand(newMovieToggleCmd(opts, complete, "favorite", "Mark a movie as a favorite", func(ctx context.Context, a *app.App, id int64, value bool) error {
		return a.Movies().SetFavorite(ctx, id, value)
	}))
	cmd.AddCommand(newMovieWatchlistCmd(opts, complete))
	cmd.AddCommand(newMovieRateCmd(opts, complete))
	cmd.AddCommand(newMovieNotInterestedCmd(opts, complete))
	cmd.AddCommand(newMovieRemoveCmd(opts, complete))

	return cmd
}

type completionFunc = func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective)

// withApp loads the app, runs fn and closes the app.
func withApp(opts *cliOptions, fn func(a *app.App) error) error {
	a, err := opts.loadApp(false)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func newMovieAddCmd(opts *cliOptions) *cobra.Command {
	var movie backend.MovieRecord

	cmd := &cobra.Command{
		Use:   "add <id> <title>",
		Short: "Add a movie from the catalog to your library",
		Long: `Add a movie to your library using its catalog id. Adding a movie that
is already in the library does nothing.

Examples:
  gosyncmovies movie add 603 "The Matrix"
  gosyncmovies movie add 949 Heat --release-date 1995-12-15`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := utils.ParseMovieID(args[0])
			if err != nil {
				return err
			}
			movie.ID = id
			movie.Title = strings.Join(args[1:], " ")

			return withApp(opts, func(a *app.App) error {
				added, err := a.Movies().AddFromSearch(cmd.Context(), movie)
				if err != nil {
					return err
				}
				if handled, err := utils.Output(opts.format(), map[string]any{"id": id, "added": added}); handled {
					return err
				}
				if added {
					fmt.Printf("Added %q to your library\n", movie.Title)
				} else {
					fmt.Printf("%q is already in your library\n", movie.Title)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&movie.ReleaseDate, "release-date", "", "release date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&movie.Overview, "overview", "", "short synopsis")
	cmd.Flags().StringVar(&movie.PosterURL, "poster", "", "poster image URL")
	cmd.Flags().StringVar(&movie.BackdropURL, "backdrop", "", "backdrop image URL")
	return cmd
}

func newMovieShowCmd(opts *cliOptions, complete completionFunc) *cobra.Command {
	return &cobra.Command{
		Use:               "show <id>",
		Short:             "Show one movie",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: complete,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := utils.ParseMovieID(args[0])
			if err != nil {
				return err
			}
			return withApp(opts, func(a *app.App) error {
				m, err := a.Movies().Get(cmd.Context(), id)
				if err != nil {
					return err
				}
				if handled, err := utils.Output(opts.format(), m); handled {
					return err
				}
				cli.ShowMovie(os.Stdout, *m)
				return nil
			})
		},
	}
}

func parseFlagArg(args []string) (backend.Flag, error) {
	if len(args) == 0 || args[0] == "all" {
		return "", nil
	}
	flag, err := backend.ParseFlag(args[0])
	if err != nil {
		valid := []string{"all"}
		for _, f := range backend.AllFlags() {
			valid = append(valid, strings.ReplaceAll(string(f), "_", "-"))
		}
		return "", utils.ErrInvalidFlag(args[0], valid)
	}
	return flag, nil
}

func listTitle(flag backend.Flag) string {
	if flag == "" {
		return "Library"
	}
	return strings.ToUpper(string(flag[:1])) + strings.ReplaceAll(string(flag[1:]), "_", " ")
}

func newMovieListCmd(opts *cliOptions) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "list [all|seen|watchlist|favorite|not-interested|rating|recommended]",
		Short: "List movies by flag",
		Long: `List the movies matching a flag, newest change first. Without a flag
the whole library is listed. With --watch the list is reprinted whenever it
changes, including changes made by a background sync.`,
		Args:              cobra.MaximumNArgs(1),
		ValidArgsFunction: cli.FlagCompletion,
		RunE: func(cmd *cobra.Command, args []string) error {
			flag, err := parseFlagArg(args)
			if err != nil {
				return err
			}
			return withApp(opts, func(a *app.App) error {
				if !watch {
					movies, err := a.Movies().List(cmd.Context(), flag)
					if err != nil {
						return err
					}
					if handled, err := utils.Output(opts.format(), movies); handled {
						return err
					}
					cli.ShowMovies(os.Stdout, listTitle(flag), movies)
					return nil
				}

				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
				defer stop()
				updates, err := a.Movies().Watch(ctx, flag)
				if err != nil {
					return err
				}
				for movies := range updates {
					if handled, err := utils.Output(opts.format(), movies); handled {
						if err != nil {
							return err
						}
						continue
					}
					cli.ShowMovies(os.Stdout, listTitle(flag), movies)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "keep running and reprint on every change")
	return cmd
}

func newMovieToggleCmd(opts *cliOptions, complete completionFunc, name, short string, apply func(context.Context, *app.App, int64, bool) error) *cobra.Command {
	var unset bool

	cmd := &cobra.Command{
		Use:               name + " <id>",
		Short:             short,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: complete,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := utils.ParseMovieID(args[0])
			if err != nil {
				return err
			}
			return withApp(opts, func(a *app.App) error {
				if err := apply(cmd.Context(), a, id, !unset); err != nil {
					return err
				}
				state := name
				if unset {
					state = "not " + name
				}
				fmt.Printf("Movie %d marked %s\n", id, state)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&unset, "unset", false, "clear the flag instead of setting it")
	return cmd
}

func newMovieWatchlistCmd(opts *cliOptions, complete completionFunc) *cobra.Command {
	return &cobra.Command{
		Use:               "watchlist <id>",
		Short:             "Toggle a movie on or off the watchlist",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: complete,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := utils.ParseMovieID(args[0])
			if err != nil {
				return err
			}
			return withApp(opts, func(a *app.App) error {
				on, err := a.Movies().ToggleWatchlist(cmd.Context(), id)
				if err != nil {
					return err
				}
				if on {
					fmt.Printf("Movie %d added to the watchlist\n", id)
				} else {
					fmt.Printf("Movie %d removed from the watchlist\n", id)
				}
				return nil
			})
		},
	}
}

func newMovieRateCmd(opts *cliOptions, complete completionFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "rate <id> <0-5|none>",
		Short: "Rate a movie or clear its rating",
		Long: `Rate a movie from 0 to 5; half stars are allowed. "none" clears the rating.

Examples:
  gosyncmovies movie rate 603 4.5
  gosyncmovies movie rate 603 none`,
		Args:              cobra.ExactArgs(2),
		ValidArgsFunction: complete,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := utils.ParseMovieID(args[0])
			if err != nil {
				return err
			}
			rating, err := utils.ParseRating(args[1])
			if err != nil {
				return err
			}
			return withApp(opts, func(a *app.App) error {
				if err := a.Movies().SetRating(cmd.Context(), id, rating); err != nil {
					return err
				}
				fmt.Printf("Movie %d rating: %s\n", id, cli.FormatRating(rating))
				return nil
			})
		},
	}
}

func newMovieNotInterestedCmd(opts *cliOptions, complete completionFunc) *cobra.Command {
	return &cobra.Command{
		Use:               "not-interested <id>",
		Short:             "Hide a movie from recommendations",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: complete,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := utils.ParseMovieID(args[0])
			if err != nil {
				return err
			}
			return withApp(opts, func(a *app.App) error {
				if err := a.Movies().MarkNotInterested(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Printf("Movie %d marked not interested\n", id)
				return nil
			})
		},
	}
}

func newMovieRemoveCmd(opts *cliOptions, complete completionFunc) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:               "remove <id>",
		Aliases:           []string{"rm"},
		Short:             "Remove a movie from your library",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: complete,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := utils.ParseMovieID(args[0])
			if err != nil {
				return err
			}
			return withApp(opts, func(a *app.App) error {
				m, err := a.Movies().Get(cmd.Context(), id)
				if err != nil {
					return err
				}
				if !yes && !utils.PromptYesNo(os.Stdin, os.Stdout, fmt.Sprintf("Remove %q from your library?", m.Title)) {
					fmt.Println("Cancelled")
					return nil
				}
				if err := a.Movies().Remove(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Printf("Removed %q\n", m.Title)
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}
