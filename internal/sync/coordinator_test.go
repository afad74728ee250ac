package sync

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"

	"gosyncmovies/backend"
	"gosyncmovies/backend/sqlite"
	backendsync "gosyncmovies/backend/sync"
	"gosyncmovies/internal/jobs"
)

const testUser = "user-1"

type testEnv struct {
	coord  *Coordinator
	runner *jobs.Runner
	queue  *jobs.Queue
	local  *sqlite.Store
	remote *backend.MockRemote
}

func newTestEnv(t *testing.T, opts ...CoordinatorOption) *testEnv {
	t.Helper()

	local, err := sqlite.Open(filepath.Join(t.TempDir(), "movies.db"))
	if err != nil {
		t.Fatalf("sqlite.Open() error = %v", err)
	}
	t.Cleanup(func() { local.Close() })

	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		t.Fatalf("badger.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	queue, err := jobs.New(db, jobs.WithBackoff(jobs.BackoffPolicy{Initial: time.Millisecond, Max: time.Millisecond, Multiplier: 2}))
	if err != nil {
		t.Fatalf("jobs.New() error = %v", err)
	}

	remote := backend.NewMockRemote()
	engine := backendsync.NewSyncManager(local, remote, backend.StaticSession(testUser), backendsync.WithObserver(&backend.RecordingObserver{}))

	settings := DefaultSettings()
	settings.Debounce = 0
	coord, err := NewCoordinator(engine, local, remote, queue, settings, opts...)
	if err != nil {
		t.Fatalf("NewCoordinator() error = %v", err)
	}

	runner := jobs.NewRunner(queue, jobs.StaticConditions{Online: true})
	coord.Register(runner)

	return &testEnv{coord: coord, runner: runner, queue: queue, local: local, remote: remote}
}

func pendingMovie(id int64) backend.MovieRecord {
	now := backend.Truncate(time.Now())
	return backend.MovieRecord{
		ID:           id,
		Title:        "Movie",
		IsWatchlist:  true,
		AddedAt:      now,
		LastModified: now,
		SyncState:    backend.SyncPendingCreate,
	}
}

func TestNewCoordinatorRequiresCollaborators(t *testing.T) {
	if _, err := NewCoordinator(nil, nil, nil, nil, DefaultSettings()); err == nil {
		t.Error("expected error for missing collaborators")
	}
}

func TestTriggerSyncPushesPendingRecords(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.local.Upsert(ctx, pendingMovie(7))

	if err := env.coord.TriggerSync(); err != nil {
		t.Fatalf("TriggerSync() error = %v", err)
	}
	if err := env.coord.TriggerSync(); err != nil {
		t.Fatalf("TriggerSync() error = %v", err)
	}

	all, _ := env.queue.List()
	if len(all) != 1 || all[0].Name != SyncWorkName {
		t.Fatalf("queue = %+v, want single %s", all, SyncWorkName)
	}
	if !all[0].Constraints.RequiresNetwork {
		t.Error("sync work should require network")
	}

	ran, err := env.runner.RunDue(ctx)
	if err != nil || ran != 1 {
		t.Fatalf("RunDue() = %d, %v", ran, err)
	}
	if _, ok := env.remote.Doc(testUser, 7); !ok {
		t.Error("record was not pushed")
	}
	rec, _ := env.local.Get(ctx, 7)
	if rec.SyncState != backend.SyncSynced {
		t.Errorf("SyncState = %s, want SYNCED", rec.SyncState)
	}
	job, _ := env.queue.Get(SyncWorkName)
	if job.State != jobs.StateSucceeded {
		t.Errorf("job state = %s", job.State)
	}
}

func TestTriggerSyncRetriesOnFailedRecords(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.local.Upsert(ctx, pendingMovie(7))
	env.remote.FailPut(7, errors.New("unavailable"))

	env.coord.TriggerSync()
	env.runner.RunDue(ctx)

	job, _ := env.queue.Get(SyncWorkName)
	if job.State != jobs.StateRetryScheduled || job.Attempt != 1 {
		t.Fatalf("job = %+v, want RETRY_SCHEDULED after first attempt", job)
	}

	env.remote.FailPut(7, nil)
	time.Sleep(5 * time.Millisecond)
	env.runner.RunDue(ctx)

	job, _ = env.queue.Get(SyncWorkName)
	if job.State != jobs.StateSucceeded {
		t.Errorf("job state after retry = %s, want SUCCEEDED", job.State)
	}
}

func TestTriggerSyncCallsHooks(t *testing.T) {
	calls := 0
	env := newTestEnv(t, WithTriggerHook(func() { calls++ }))

	env.coord.TriggerSync()
	if calls != 1 {
		t.Errorf("hook called %d times, want 1", calls)
	}
}

func TestPeriodicSyncKeepsSchedule(t *testing.T) {
	env := newTestEnv(t)

	if err := env.coord.StartPeriodicSync(); err != nil {
		t.Fatalf("StartPeriodicSync() error = %v", err)
	}
	first, _ := env.queue.Get(PeriodicSyncName)
	env.coord.StartPeriodicSync()
	second, _ := env.queue.Get(PeriodicSyncName)

	if first.RunID != second.RunID {
		t.Error("second start reset the periodic schedule")
	}
	if first.Interval != 6*time.Hour || first.Flex != 30*time.Minute {
		t.Errorf("interval/flex = %v/%v", first.Interval, first.Flex)
	}
	if !first.Constraints.RequiresNetwork || !first.Constraints.RequiresBatteryNotLow {
		t.Errorf("constraints = %+v", first.Constraints)
	}

	if err := env.coord.StopPeriodicSync(); err != nil {
		t.Fatalf("StopPeriodicSync() error = %v", err)
	}
	if err := env.coord.StopPeriodicSync(); err != nil {
		t.Fatalf("second StopPeriodicSync() error = %v", err)
	}
	stopped, _ := env.queue.Get(PeriodicSyncName)
	if stopped.State != jobs.StateCancelled {
		t.Errorf("state = %s, want CANCELLED", stopped.State)
	}
}

func TestPeriodicHandlerPushesThenPulls(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.local.Upsert(ctx, pendingMovie(1))
	remoteOnly := pendingMovie(2)
	remoteOnly.SyncState = backend.SyncSynced
	env.remote.Seed(testUser, remoteOnly)

	if err := env.coord.runPeriodicSync(ctx, jobs.Job{Name: PeriodicSyncName}); err != nil {
		t.Fatalf("runPeriodicSync() error = %v", err)
	}
	if _, ok := env.remote.Doc(testUser, 1); !ok {
		t.Error("local record was not pushed")
	}
	if rec, _ := env.local.Get(ctx, 2); rec == nil {
		t.Error("remote record was not pulled")
	}
}

func TestPeriodicHandlerFailsOnAbortedPull(t *testing.T) {
	env := newTestEnv(t)
	env.remote.FailFetch(errors.New("offline"))

	if err := env.coord.runPeriodicSync(context.Background(), jobs.Job{}); err == nil {
		t.Error("aborted pull should be reported for retry")
	}
}

func TestOnSignInCreatesProfileAndPulls(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	seeded := pendingMovie(3)
	seeded.SyncState = backend.SyncSynced
	env.remote.Seed(testUser, seeded)

	profile, err := env.coord.OnSignIn(ctx, backend.UserProfile{ID: testUser, Email: "a@example.com", Credits: 5})
	if err != nil {
		t.Fatalf("OnSignIn() error = %v", err)
	}
	if profile.CreatedAt.IsZero() {
		t.Error("profile should carry the server creation time")
	}
	if _, err := env.remote.GetProfile(ctx, testUser); err != nil {
		t.Errorf("profile not stored remotely: %v", err)
	}
	if job, err := env.queue.Get(PeriodicSyncName); err != nil || job.State != jobs.StateEnqueued {
		t.Errorf("periodic job = %+v, %v", job, err)
	}
	if rec, _ := env.local.Get(ctx, 3); rec == nil {
		t.Error("library was not pulled on sign-in")
	}
}

func TestOnSignOutClearsState(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.local.Upsert(ctx, pendingMovie(4))
	env.coord.StartPeriodicSync()
	env.coord.TriggerSync()

	if err := env.coord.OnSignOut(ctx); err != nil {
		t.Fatalf("OnSignOut() error = %v", err)
	}
	if rec, _ := env.local.Get(ctx, 4); rec != nil {
		t.Error("local store was not cleared")
	}
	for _, name := range []string{SyncWorkName, PeriodicSyncName} {
		job, _ := env.queue.Get(name)
		if job.State != jobs.StateCancelled {
			t.Errorf("%s state = %s, want CANCELLED", name, job.State)
		}
	}
}
