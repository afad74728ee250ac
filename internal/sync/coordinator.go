package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"gosyncmovies/backend"
	backendsync "gosyncmovies/backend/sync"
	"gosyncmovies/internal/jobs"
	"gosyncmovies/internal/metrics"
	"gosyncmovies/internal/utils"
)

// Named units of work in the job queue.
const (
	SyncWorkName     = "movie_sync_work"
	PeriodicSyncName = "movie_periodic_sync"
)

// Settings tunes how sync jobs are scheduled.
type Settings struct {
	Debounce         time.Duration
	PeriodicInterval time.Duration
	PeriodicFlex     time.Duration
	MaxAttempts      int
}

// DefaultSettings returns a 5s debounce and a 6h periodic cadence with a 30m flex window.
func DefaultSettings() Settings {
	return Settings{
		Debounce:         5 * time.Second,
		PeriodicInterval: 6 * time.Hour,
		PeriodicFlex:     30 * time.Minute,
		MaxAttempts:      jobs.DefaultMaxAttempts,
	}
}

// Coordinator schedules background sync through the job queue and exposes
// the entry points the rest of the application calls.
type Coordinator struct {
	engine   *backendsync.SyncManager
	local    backend.LocalStore
	profiles backend.ProfileStore
	queue    *jobs.Queue
	settings Settings
	log      zerolog.Logger

	// afterTrigger runs after sync work is enqueued, e.g. to wake a runner
	// or spawn a detached worker.
	afterTrigger []func()
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithTriggerHook registers fn to run after every TriggerSync.
func WithTriggerHook(fn func()) CoordinatorOption {
	return func(c *Coordinator) { c.afterTrigger = append(c.afterTrigger, fn) }
}

// NewCoordinator creates a coordinator.
func NewCoordinator(engine *backendsync.SyncManager, local backend.LocalStore, profiles backend.ProfileStore, queue *jobs.Queue, settings Settings, opts ...CoordinatorOption) (*Coordinator, error) {
	if engine == nil || local == nil || queue == nil {
		return nil, fmt.Errorf("sync engine, local store, and job queue are required")
	}
	def := DefaultSettings()
	if settings.Debounce < 0 {
		settings.Debounce = def.Debounce
	}
	if settings.PeriodicInterval <= 0 {
		settings.PeriodicInterval = def.PeriodicInterval
	}
	if settings.PeriodicFlex <= 0 || settings.PeriodicFlex > settings.PeriodicInterval {
		settings.PeriodicFlex = def.PeriodicFlex
	}
	if settings.MaxAttempts <= 0 {
		settings.MaxAttempts = def.MaxAttempts
	}

	c := &Coordinator{
		engine:   engine,
		local:    local,
		profiles: profiles,
		queue:    queue,
		settings: settings,
		log:      utils.Component("coordinator"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Register installs the sync job handlers on r and wakes it on every trigger.
func (c *Coordinator) Register(r *jobs.Runner) {
	r.Handle(SyncWorkName, c.runSyncWork)
	r.Handle(PeriodicSyncName, c.runPeriodicSync)
	c.afterTrigger = append(c.afterTrigger, r.Wake)
}

// TriggerSync schedules a debounced push. A trigger supersedes any earlier
// one that has not started yet.
func (c *Coordinator) TriggerSync() error {
	_, err := c.queue.EnqueueOneShot(SyncWorkName, jobs.OneShotRequest{
		Delay:       c.settings.Debounce,
		Constraints: jobs.Constraints{RequiresNetwork: true},
		MaxAttempts: c.settings.MaxAttempts,
	}, jobs.Replace)
	if err != nil {
		return err
	}
	for _, fn := range c.afterTrigger {
		fn()
	}
	return nil
}

// StartPeriodicSync schedules the recurring push. An existing schedule keeps its cadence.
func (c *Coordinator) StartPeriodicSync() error {
	_, err := c.queue.EnqueuePeriodic(PeriodicSyncName, jobs.PeriodicRequest{
		Interval:    c.settings.PeriodicInterval,
		Flex:        c.settings.PeriodicFlex,
		Constraints: jobs.Constraints{RequiresNetwork: true, RequiresBatteryNotLow: true},
		MaxAttempts: c.settings.MaxAttempts,
	}, jobs.Keep)
	return err
}

// StopPeriodicSync cancels future periodic runs. A run in progress is not interrupted.
func (c *Coordinator) StopPeriodicSync() error {
	return c.queue.Cancel(PeriodicSyncName)
}

// PullFromRemote runs a pull-merge now.
func (c *Coordinator) PullFromRemote(ctx context.Context) (*backendsync.PullResult, error) {
	return c.pull(ctx)
}

// PushNow runs a push-flush now, outside the queue.
func (c *Coordinator) PushNow(ctx context.Context) (*backendsync.PushResult, error) {
	return c.pushOnce(ctx)
}

// Stats returns the local sync statistics.
func (c *Coordinator) Stats(ctx context.Context) (*backendsync.SyncStats, error) {
	return c.engine.GetSyncStats(ctx)
}

// Jobs lists the scheduled units of work.
func (c *Coordinator) Jobs() ([]jobs.Job, error) {
	return c.queue.List()
}

// OnSignIn makes sure the remote profile exists, starts periodic sync and
// pulls the user's library. A failed pull is logged; the periodic job retries it.
func (c *Coordinator) OnSignIn(ctx context.Context, profile backend.UserProfile) (*backend.UserProfile, error) {
	stored := &profile
	if c.profiles != nil {
		p, err := c.profiles.CreateProfile(ctx, profile)
		if err != nil {
			return nil, fmt.Errorf("failed to create profile: %w", err)
		}
		stored = p
	}

	if err := c.StartPeriodicSync(); err != nil {
		return stored, err
	}

	result, err := c.PullFromRemote(ctx)
	if err != nil {
		return stored, err
	}
	if result.Aborted {
		c.log.Warn().Err(result.Err).Msg("initial pull failed")
	}
	return stored, nil
}

// OnSignOut stops background sync and wipes the local library.
func (c *Coordinator) OnSignOut(ctx context.Context) error {
	if err := c.StopPeriodicSync(); err != nil {
		return err
	}
	if err := c.queue.Cancel(SyncWorkName); err != nil {
		return err
	}
	return c.local.Clear(ctx)
}

// ErrPushIncomplete reports that a push left records tagged FAILED.
var ErrPushIncomplete = errors.New("records failed to sync")

func (c *Coordinator) runSyncWork(ctx context.Context, job jobs.Job) error {
	return c.push(ctx)
}

func (c *Coordinator) runPeriodicSync(ctx context.Context, job jobs.Job) error {
	if err := c.push(ctx); err != nil {
		return err
	}
	result, err := c.pull(ctx)
	if err != nil {
		return err
	}
	if result.Aborted {
		return fmt.Errorf("pull aborted: %w", result.Err)
	}
	return nil
}

// push returns an error whenever any record is left unsynced, so the queue retries.
func (c *Coordinator) push(ctx context.Context) error {
	result, err := c.pushOnce(ctx)
	if err != nil {
		return err
	}
	if result.Failed > 0 {
		return fmt.Errorf("%w: %d of %d", ErrPushIncomplete, result.Failed, result.Failed+result.Pushed())
	}
	return nil
}

func (c *Coordinator) pushOnce(ctx context.Context) (*backendsync.PushResult, error) {
	result, err := c.engine.Push(ctx)
	if result == nil {
		metrics.RecordPush(0, 0, 0, 0, 0, err)
		return result, err
	}
	if !result.NoSession {
		metrics.RecordPush(result.Created, result.Updated, result.Deleted, result.Failed, result.Duration, err)
	}
	return result, err
}

func (c *Coordinator) pull(ctx context.Context) (*backendsync.PullResult, error) {
	result, err := c.engine.Pull(ctx)
	if result == nil {
		metrics.RecordPull(0, 0, 0, false, 0, err)
		return result, err
	}
	if !result.NoSession && !result.AlreadyRunning {
		metrics.RecordPull(result.Created, result.Updated, result.Skipped, result.Aborted, result.Duration, err)
	}
	return result, err
}
