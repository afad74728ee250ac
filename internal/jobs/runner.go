package jobs

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"gosyncmovies/internal/utils"
)

// Handler performs the work of a named job. A non-nil error schedules a retry.
type Handler func(ctx context.Context, job Job) error

// Result describes one finished attempt.
type Result struct {
	Job      Job
	Err      error
	Duration time.Duration
	// Recorded is false when the job was replaced or cancelled while running.
	Recorded bool
}

// Runner executes due jobs against registered handlers.
type Runner struct {
	queue      *Queue
	conditions Conditions
	log        zerolog.Logger

	poll    time.Duration
	recheck time.Duration

	leaseOwner string
	leaseTTL   time.Duration

	mu       sync.RWMutex
	handlers map[string]Handler
	onResult func(Result)

	wake chan struct{}
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithPollInterval sets the longest the runner sleeps between passes.
func WithPollInterval(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.poll = d
		}
	}
}

// WithRecheckInterval sets how long a job with unmet constraints waits
// before it is evaluated again.
func WithRecheckInterval(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.recheck = d
		}
	}
}

// WithResultHook registers a callback invoked after every attempt.
func WithResultHook(fn func(Result)) RunnerOption {
	return func(r *Runner) { r.onResult = fn }
}

// WithLease makes the runner hold the queue lease as owner while it works.
// Runners sharing one queue across processes must all use a lease.
func WithLease(owner string, ttl time.Duration) RunnerOption {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return func(r *Runner) {
		r.leaseOwner = owner
		r.leaseTTL = ttl
	}
}

// NewRunner creates a runner over q. A nil cond treats every constraint as met.
func NewRunner(q *Queue, cond Conditions, opts ...RunnerOption) *Runner {
	if cond == nil {
		cond = StaticConditions{Online: true}
	}
	r := &Runner{
		queue:      q,
		conditions: cond,
		log:        utils.Component("runner"),
		poll:       30 * time.Second,
		recheck:    time.Minute,
		handlers:   make(map[string]Handler),
		wake:       make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle registers the handler for jobs named name.
func (r *Runner) Handle(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

func (r *Runner) handler(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Queue returns the queue the runner drains.
func (r *Runner) Queue() *Queue {
	return r.queue
}

// Wake asks a serving runner to check for due work now.
func (r *Runner) Wake() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// String names the runner for the supervisor.
func (r *Runner) String() string {
	return "job-runner"
}

// RunDue runs every job that is due, one at a time, and returns how many
// attempts were made.
func (r *Runner) RunDue(ctx context.Context) (int, error) {
	if err := r.holdLease(); err != nil {
		return 0, err
	}

	due, err := r.queue.Due()
	if err != nil {
		return 0, err
	}

	ran := 0
	for _, job := range due {
		if ctx.Err() != nil {
			return ran, ctx.Err()
		}

		h, ok := r.handler(job.Name)
		if !ok {
			r.log.Warn().Str("job", job.Name).Msg("no handler registered, deferring")
			if err := r.queue.postpone(job.Name, job.RunID, r.queue.now().Add(r.recheck)); err != nil {
				return ran, err
			}
			continue
		}

		if !Satisfied(ctx, r.conditions, job.Constraints) {
			r.log.Debug().Str("job", job.Name).Msg("constraints not met, deferring")
			if err := r.queue.postpone(job.Name, job.RunID, r.queue.now().Add(r.recheck)); err != nil {
				return ran, err
			}
			continue
		}

		claimed, ok, err := r.queue.claim(job.Name, job.RunID)
		if err != nil {
			return ran, err
		}
		if !ok {
			continue
		}

		ran++
		if err := r.execute(ctx, claimed, h); err != nil {
			return ran, err
		}
	}
	return ran, nil
}

func (r *Runner) execute(ctx context.Context, job Job, h Handler) error {
	log := r.log.With().
		Str("job", job.Name).
		Str("run_id", job.RunID).
		Int("attempt", job.Attempt).
		Logger()
	log.Debug().Msg("job started")

	stopRenew := r.renewLease(ctx)
	start := time.Now()
	runErr := safeCall(ctx, job, h)
	elapsed := time.Since(start)
	stopRenew()

	updated, recorded, err := r.queue.complete(job, runErr)
	if err != nil {
		return fmt.Errorf("failed to record outcome of %s: %w", job.Name, err)
	}

	switch {
	case !recorded:
		log.Info().Msg("job was replaced or cancelled while running, outcome discarded")
		updated = job
	case runErr != nil:
		log.Warn().Err(runErr).
			Str("state", string(updated.State)).
			Time("next_run_at", updated.NextRunAt).
			Msg("job failed")
	default:
		log.Info().Dur("duration", elapsed).Msg("job succeeded")
	}

	if r.onResult != nil {
		r.onResult(Result{Job: updated, Err: runErr, Duration: elapsed, Recorded: recorded})
	}
	return nil
}

func safeCall(ctx context.Context, job Job, h Handler) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("job %s panicked: %v\n%s", job.Name, p, debug.Stack())
		}
	}()
	return h(ctx, job)
}

// holdLease takes or renews the lease. A newly taken lease means any job
// still RUNNING was abandoned by a dead runner, so it is recovered.
func (r *Runner) holdLease() error {
	if r.leaseOwner == "" {
		return nil
	}
	fresh, err := r.queue.AcquireLease(r.leaseOwner, r.leaseTTL)
	if err != nil {
		return err
	}
	if fresh {
		r.log.Debug().Str("owner", r.leaseOwner).Msg("lease acquired")
		if _, err := r.queue.Recover(); err != nil {
			return err
		}
	}
	return nil
}

// renewLease keeps the lease alive while a job runs.
func (r *Runner) renewLease(ctx context.Context) (stop func()) {
	if r.leaseOwner == "" {
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(r.leaseTTL / 3)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := r.queue.AcquireLease(r.leaseOwner, r.leaseTTL); err != nil {
					r.log.Warn().Err(err).Msg("failed to renew lease")
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// Release gives up the lease so another runner can start immediately.
func (r *Runner) Release() error {
	if r.leaseOwner == "" {
		return nil
	}
	return r.queue.ReleaseLease(r.leaseOwner)
}

// Serve runs due jobs until ctx is done.
func (r *Runner) Serve(ctx context.Context) error {
	r.log.Info().Dur("poll", r.poll).Msg("job runner started")
	timer := time.NewTimer(0)
	defer timer.Stop()
	defer func() {
		if err := r.Release(); err != nil {
			r.log.Warn().Err(err).Msg("failed to release lease")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("job runner stopped")
			return ctx.Err()
		case <-timer.C:
		case <-r.wake:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}

		_, err := r.RunDue(ctx)
		switch {
		case err == nil || ctx.Err() != nil:
		case errors.Is(err, ErrLeaseHeld):
			r.log.Debug().Err(err).Msg("another runner is active")
		default:
			r.log.Error().Err(err).Msg("job pass failed")
		}
		timer.Reset(r.nextDelay())
	}
}

func (r *Runner) nextDelay() time.Duration {
	next, ok, err := r.queue.NextWake()
	if err != nil || !ok {
		return r.poll
	}
	d := next.Sub(r.queue.now())
	if d < 0 {
		d = 0
	}
	if d > r.poll {
		d = r.poll
	}
	return d
}

// Drain runs jobs until none is due within idle, then releases the lease.
// It backs one-shot workers that exit once the queue is quiet.
func (r *Runner) Drain(ctx context.Context, idle time.Duration) (int, error) {
	defer func() {
		if err := r.Release(); err != nil {
			r.log.Warn().Err(err).Msg("failed to release lease")
		}
	}()

	total := 0
	for {
		n, err := r.RunDue(ctx)
		total += n
		if err != nil {
			return total, err
		}

		next, ok, err := r.queue.NextWake()
		if err != nil {
			return total, err
		}
		wait := next.Sub(r.queue.now())
		if !ok || wait > idle {
			return total, nil
		}
		if wait < minDrainWait {
			wait = minDrainWait
		}

		select {
		case <-ctx.Done():
			return total, ctx.Err()
		case <-time.After(wait):
		}
	}
}

const minDrainWait = 50 * time.Millisecond
