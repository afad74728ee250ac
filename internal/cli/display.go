package cli

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"golang.org/x/term"

	"gosyncmovies/backend"
	backendsync "gosyncmovies/backend/sync"
	"gosyncmovies/internal/jobs"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
)

// GetTerminalWidth returns the current terminal width, defaulting to 80 if unable to detect
func GetTerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 80
	}
	return width
}

func tableWidth() int {
	w := GetTerminalWidth() - 2
	if w < 60 {
		w = 60
	}
	if w > 140 {
		w = 140
	}
	return w
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}

// FlagMarks renders a record's user state as short markers.
func FlagMarks(rec backend.MovieRecord) string {
	var marks []string
	if rec.IsSeen {
		marks = append(marks, "seen")
	}
	if rec.IsWatchlist {
		marks = append(marks, "watchlist")
	}
	if rec.IsFavorite {
		marks = append(marks, "fav")
	}
	if rec.NotInterested {
		marks = append(marks, "not-interested")
	}
	if rec.AIReason != nil {
		marks = append(marks, "ai")
	}
	return strings.Join(marks, ",")
}

// FormatRating prints a rating as "4.5" or "-".
func FormatRating(r *float64) string {
	if r == nil {
		return "-"
	}
	return strconv.FormatFloat(*r, 'f', -1, 64)
}

func year(releaseDate string) string {
	if len(releaseDate) >= 4 {
		return releaseDate[:4]
	}
	return ""
}

// ShowMovies prints the movies as a table.
func ShowMovies(w io.Writer, title string, movies []backend.MovieRecord) {
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("%s (%d)", title, len(movies))))
	if len(movies) == 0 {
		fmt.Fprintln(w, dimStyle.Render("  nothing here yet"))
		return
	}

	t := newTable("ID", "Title", "Year", "Flags", "Rating", "Sync").Width(tableWidth())
	for _, m := range movies {
		t.Row(strconv.FormatInt(m.ID, 10), m.Title, year(m.ReleaseDate), FlagMarks(m), FormatRating(m.Rating), string(m.SyncState))
	}
	fmt.Fprintln(w, t.Render())

	for _, m := range movies {
		if m.AIReason != nil && *m.AIReason != "" {
			fmt.Fprintf(w, "%s %s\n", dimStyle.Render(m.Title+":"), *m.AIReason)
		}
	}
}

// ShowMovie prints a single movie's details.
func ShowMovie(w io.Writer, m backend.MovieRecord) {
	fmt.Fprintln(w, titleStyle.Render(m.Title))
	t := newTable("Field", "Value")
	t.Row("ID", strconv.FormatInt(m.ID, 10))
	if m.ReleaseDate != "" {
		t.Row("Released", m.ReleaseDate)
	}
	t.Row("Flags", FlagMarks(m))
	t.Row("Rating", FormatRating(m.Rating))
	t.Row("Added", m.AddedAt.Local().Format(time.DateTime))
	t.Row("Modified", m.LastModified.Local().Format(time.DateTime))
	t.Row("Sync", string(m.SyncState))
	if m.LastSyncError != "" {
		t.Row("Last error", m.LastSyncError)
	}
	fmt.Fprintln(w, t.Render())
	if m.Overview != "" {
		fmt.Fprintln(w, dimStyle.Width(tableWidth()).Render(m.Overview))
	}
	if m.AIReason != nil {
		fmt.Fprintf(w, "Recommended because: %s\n", *m.AIReason)
	}
}

// ShowSyncStatus prints the local sync counters and the scheduled jobs.
func ShowSyncStatus(w io.Writer, stats *backendsync.SyncStats, queued []jobs.Job) {
	fmt.Fprintln(w, titleStyle.Render("Sync status"))

	states := make([]string, 0, len(stats.ByState))
	for s := range stats.ByState {
		states = append(states, string(s))
	}
	sort.Strings(states)

	t := newTable("State", "Movies")
	for _, s := range states {
		t.Row(s, strconv.Itoa(stats.ByState[backend.SyncState(s)]))
	}
	fmt.Fprintln(w, t.Render())

	fmt.Fprintf(w, "Pending push: %d, pending delete: %d\n", stats.Pending, stats.PendingDelete)
	if stats.Failed > 0 {
		fmt.Fprintln(w, warnStyle.Render(fmt.Sprintf("%d movie(s) failed to sync and will be retried", stats.Failed)))
	}
	if stats.PushRunning || stats.PullRunning {
		fmt.Fprintln(w, dimStyle.Render("A sync is running in this process"))
	}
	fmt.Fprintln(w)
	ShowJobs(w, queued)
}

// ShowJobs prints the scheduled units of work.
func ShowJobs(w io.Writer, queued []jobs.Job) {
	fmt.Fprintln(w, titleStyle.Render("Jobs"))
	if len(queued) == 0 {
		fmt.Fprintln(w, dimStyle.Render("  no jobs scheduled"))
		return
	}
	t := newTable("Name", "Kind", "State", "Attempt", "Next run", "Last error")
	for _, j := range queued {
		next := "-"
		if j.State.Live() && !j.NextRunAt.IsZero() {
			next = humanizeUntil(time.Until(j.NextRunAt))
		}
		t.Row(j.Name, string(j.Kind), string(j.State),
			fmt.Sprintf("%d/%d", j.Attempt, j.MaxAttempts), next, truncate(j.LastError, 40))
	}
	fmt.Fprintln(w, t.Render())
}

// ShowProfile prints the user profile. stale marks a cached copy.
func ShowProfile(w io.Writer, p *backend.UserProfile, stale bool) {
	fmt.Fprintln(w, titleStyle.Render("Profile"))
	t := newTable("Field", "Value")
	t.Row("User", p.ID)
	if p.DisplayName != "" {
		t.Row("Name", p.DisplayName)
	}
	if p.Email != "" {
		t.Row("Email", p.Email)
	}
	t.Row("Credits", strconv.Itoa(p.Credits))
	if !p.CreatedAt.IsZero() {
		t.Row("Member since", p.CreatedAt.Local().Format(time.DateOnly))
	}
	fmt.Fprintln(w, t.Render())
	if stale {
		fmt.Fprintln(w, warnStyle.Render("Offline: showing the last cached profile"))
	}
}

// ShowSyncResult prints a push and/or pull summary. Either may be nil.
func ShowSyncResult(w io.Writer, push *backendsync.PushResult, pull *backendsync.PullResult) {
	if push != nil {
		switch {
		case push.NoSession:
			fmt.Fprintln(w, warnStyle.Render("Push skipped: not signed in"))
		default:
			fmt.Fprintf(w, "Pushed: %d created, %d updated, %d deleted, %d failed (%s)\n",
				push.Created, push.Updated, push.Deleted, push.Failed, push.Duration.Round(time.Millisecond))
			for _, err := range push.Errors {
				fmt.Fprintln(w, dimStyle.Render("  "+err.Error()))
			}
		}
	}
	if pull != nil {
		switch {
		case pull.NoSession:
			fmt.Fprintln(w, warnStyle.Render("Pull skipped: not signed in"))
		case pull.AlreadyRunning:
			fmt.Fprintln(w, dimStyle.Render("Pull already running"))
		case pull.Aborted:
			fmt.Fprintln(w, warnStyle.Render(fmt.Sprintf("Pull aborted: %v", pull.Err)))
		default:
			fmt.Fprintf(w, "Pulled: %d created, %d updated, %d kept local (%s)\n",
				pull.Created, pull.Updated, pull.Skipped, pull.Duration.Round(time.Millisecond))
		}
	}
}

func humanizeUntil(d time.Duration) string {
	if d <= 0 {
		return "now"
	}
	switch {
	case d < time.Minute:
		return fmt.Sprintf("in %ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("in %dm", int(d.Minutes()))
	default:
		return fmt.Sprintf("in %dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	}
}

func truncate(s string, n int) string {
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}
