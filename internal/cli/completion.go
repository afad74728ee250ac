package cli

import (
	"context"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"gosyncmovies/backend"
)

// FlagCompletion completes list filters such as "watchlist" or "not-interested".
func FlagCompletion(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	var completions []string
	for _, f := range backend.AllFlags() {
		name := strings.ReplaceAll(string(f), "_", "-")
		if strings.HasPrefix(name, strings.ToLower(toComplete)) {
			completions = append(completions, name)
		}
	}
	return completions, cobra.ShellCompDirectiveNoFileComp
}

// MovieLister is the part of the movie service completion needs.
type MovieLister interface {
	List(ctx context.Context, flag backend.Flag) ([]backend.MovieRecord, error)
}

// MovieIDCompletion completes the first argument with ids from the local
// library, described by title.
func MovieIDCompletion(load func() (MovieLister, error)) func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if len(args) > 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		lister, err := load()
		if err != nil {
			return nil, cobra.ShellCompDirectiveError
		}
		movies, err := lister.List(cmd.Context(), "")
		if err != nil {
			return nil, cobra.ShellCompDirectiveError
		}
		var completions []string
		for _, m := range movies {
			id := strconv.FormatInt(m.ID, 10)
			if strings.HasPrefix(id, toComplete) {
				completions = append(completions, id+"\t"+m.Title)
			}
		}
		return completions, cobra.ShellCompDirectiveNoFileComp
	}
}
