package app

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/zalando/go-keyring"

	"gosyncmovies/backend"
	"gosyncmovies/internal/config"
	"gosyncmovies/internal/jobs"
	"gosyncmovies/internal/metrics"
	"gosyncmovies/internal/session"
	syncpkg "gosyncmovies/internal/sync"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	keyring.MockInit()
	t.Setenv(session.EnvUserID, "")
	t.Setenv(session.EnvToken, "")
	t.Setenv("XDG_CACHE_HOME", t.TempDir())

	dir := t.TempDir()
	cfg, err := config.Defaults()
	if err != nil {
		t.Fatal(err)
	}
	cfg.Database.Path = filepath.Join(dir, "movies.db")
	cfg.Remote = backend.RemoteConfig{Type: "badger", Path: filepath.Join(dir, "remote")}
	cfg.Queue.Path = filepath.Join(dir, "jobs")
	cfg.Sync.Debounce = 0
	cfg.Sync.SpawnWorker = false
	cfg.Log.Output = io.Discard

	a, err := New(cfg, Options{Session: session.NewManager("gosyncmovies-apptest")})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func TestAddMovieSyncsThroughRunner(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	if _, err := a.SignIn(ctx, "alice", "", backend.UserProfile{Email: "alice@example.com"}); err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	added, err := a.Movies().AddFromSearch(ctx, backend.MovieRecord{ID: 603, Title: "The Matrix"})
	if err != nil || !added {
		t.Fatalf("AddFromSearch() = %v, %v", added, err)
	}

	job, err := a.Queue().Get(syncpkg.SyncWorkName)
	if err != nil || job.State != jobs.StateEnqueued {
		t.Fatalf("sync job = %+v, %v; want ENQUEUED", job, err)
	}

	r := a.NewRunner("test-runner")
	if n, err := r.RunDue(ctx); err != nil || n != 1 {
		t.Fatalf("RunDue() = %d, %v", n, err)
	}

	remote, err := a.remote.FetchAll(ctx, "alice")
	if err != nil || len(remote) != 1 || remote[0].ID != 603 {
		t.Fatalf("remote library = %+v, %v", remote, err)
	}
	rec, err := a.local.Get(ctx, 603)
	if err != nil || rec.SyncState != backend.SyncSynced {
		t.Errorf("local record = %+v, %v; want SYNCED", rec, err)
	}
}

func TestSignInSchedulesPeriodicSync(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	profile, err := a.SignIn(ctx, "alice", "tok", backend.UserProfile{})
	if err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	if profile.ID != "alice" {
		t.Errorf("profile id = %q", profile.ID)
	}
	job, err := a.Queue().Get(syncpkg.PeriodicSyncName)
	if err != nil || job.Kind != jobs.KindPeriodic {
		t.Errorf("periodic job = %+v, %v", job, err)
	}
	if a.Session().Token() != "tok" {
		t.Errorf("token not stored")
	}
}

func TestSignInAsAnotherUserWipesLibrary(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	if _, err := a.SignIn(ctx, "alice", "", backend.UserProfile{}); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Movies().AddFromSearch(ctx, backend.MovieRecord{ID: 603, Title: "The Matrix"}); err != nil {
		t.Fatal(err)
	}

	if _, err := a.SignIn(ctx, "bob", "", backend.UserProfile{}); err != nil {
		t.Fatalf("SignIn(bob) error = %v", err)
	}
	if rec, _ := a.local.Get(ctx, 603); rec != nil {
		t.Errorf("alice's movie survived the switch: %+v", rec)
	}
	if id, _ := a.Session().CurrentUserID(); id != "bob" {
		t.Errorf("current user = %q, want bob", id)
	}
}

func TestSignOutStopsSync(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	if _, err := a.SignIn(ctx, "alice", "", backend.UserProfile{}); err != nil {
		t.Fatal(err)
	}
	if err := a.SignOut(ctx); err != nil {
		t.Fatalf("SignOut() error = %v", err)
	}
	job, err := a.Queue().Get(syncpkg.PeriodicSyncName)
	if err != nil || job.State != jobs.StateCancelled {
		t.Errorf("periodic job after sign-out = %+v, %v; want CANCELLED", job, err)
	}
	if _, ok := a.Session().CurrentUserID(); ok {
		t.Error("still signed in")
	}
	if _, _, err := a.Profile(ctx); !errors.Is(err, backend.ErrNoSession) {
		t.Errorf("Profile() error = %v, want ErrNoSession", err)
	}
}

func TestProfileReadsRemote(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	if _, err := a.SignIn(ctx, "alice", "", backend.UserProfile{Email: "alice@example.com"}); err != nil {
		t.Fatal(err)
	}
	p, stale, err := a.Profile(ctx)
	if err != nil || stale {
		t.Fatalf("Profile() = %+v, stale=%v, err=%v", p, stale, err)
	}
	if p.Email != "alice@example.com" {
		t.Errorf("email = %q", p.Email)
	}
}

func TestRecommendationsDisabledWithoutProvider(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()
	if _, err := a.SignIn(ctx, "alice", "", backend.UserProfile{}); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Recommendations().Generate(ctx, 3); err == nil {
		t.Error("Generate() should fail when no model is configured")
	}
}

func TestRecordJobResult(t *testing.T) {
	tests := []struct {
		name    string
		res     jobs.Result
		outcome string
	}{
		{"success", jobs.Result{Job: jobs.Job{Name: "t1", State: jobs.StateSucceeded}, Recorded: true}, metrics.OutcomeSuccess},
		{"retry", jobs.Result{Job: jobs.Job{Name: "t2", State: jobs.StateRetryScheduled}, Err: errors.New("x"), Recorded: true}, metrics.OutcomeRetry},
		{"failed", jobs.Result{Job: jobs.Job{Name: "t3", State: jobs.StateFailedTerminal}, Err: errors.New("x"), Recorded: true}, metrics.OutcomeFailed},
		{"dropped", jobs.Result{Job: jobs.Job{Name: "t4"}}, metrics.OutcomeDropped},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := testutil.ToFloat64(metrics.JobRunsTotal.WithLabelValues(tt.res.Job.Name, tt.outcome))
			recordJobResult(tt.res)
			if got := testutil.ToFloat64(metrics.JobRunsTotal.WithLabelValues(tt.res.Job.Name, tt.outcome)); got != before+1 {
				t.Errorf("%s count = %v, want %v", tt.outcome, got, before+1)
			}
		})
	}
}
