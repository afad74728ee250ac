package jobs

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"gosyncmovies/internal/utils"
)

const keyPrefix = "jobs/"

func jobKey(name string) []byte {
	return []byte(keyPrefix + name)
}

// Queue stores jobs in BadgerDB and applies scheduling transitions.
//
// A queue opened on a directory holds the database only for the duration of
// each operation, so short-lived commands and a long-running worker can share
// it. A queue wrapping an open database uses it directly.
type Queue struct {
	db      *badger.DB
	dir     string
	now     func() time.Time
	backoff BackoffPolicy
	log     zerolog.Logger

	// mu serializes read-modify-write cycles on job records.
	mu sync.Mutex
}

// Option configures a Queue.
type Option func(*Queue)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// WithBackoff overrides the retry backoff policy.
func WithBackoff(p BackoffPolicy) Option {
	return func(q *Queue) { q.backoff = p }
}

// Open returns a queue stored in dir, creating the database if needed.
// Interrupted jobs are recovered by the runner that holds the lease, not here.
func Open(dir string, opts ...Option) (*Queue, error) {
	q := newQueue(opts)
	q.dir = dir
	if err := q.withDB(func(*badger.DB) error { return nil }); err != nil {
		return nil, err
	}
	return q, nil
}

// New wraps an open badger database and recovers jobs interrupted by a
// previous process.
func New(db *badger.DB, opts ...Option) (*Queue, error) {
	q := newQueue(opts)
	q.db = db
	if _, err := q.Recover(); err != nil {
		return nil, err
	}
	return q, nil
}

func newQueue(opts []Option) *Queue {
	q := &Queue{
		now:     time.Now,
		backoff: DefaultBackoff(),
		log:     utils.Component("jobs"),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Close is a no-op; it exists so callers can treat the queue as a resource.
func (q *Queue) Close() error {
	return nil
}

// lockWait bounds how long an operation waits for another process to
// release the database.
const lockWait = 15 * time.Second

func (q *Queue) withDB(fn func(db *badger.DB) error) error {
	if q.db != nil {
		return fn(q.db)
	}

	var db *badger.DB
	open := func() error {
		var err error
		db, err = badger.Open(badger.DefaultOptions(q.dir).
			WithLogger(nil).
			WithNumVersionsToKeep(1).
			WithMemTableSize(4 << 20).
			WithValueLogFileSize(16 << 20))
		if err != nil && !isLocked(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond
	b.MaxElapsedTime = lockWait
	if err := backoff.Retry(open, b); err != nil {
		return fmt.Errorf("failed to open job store %s: %w", q.dir, err)
	}
	defer db.Close()
	return fn(db)
}

func isLocked(err error) bool {
	return strings.Contains(err.Error(), "Another process is using this Badger database")
}

func (q *Queue) update(fn func(txn *badger.Txn) error) error {
	return q.withDB(func(db *badger.DB) error { return db.Update(fn) })
}

func (q *Queue) view(fn func(txn *badger.Txn) error) error {
	return q.withDB(func(db *badger.DB) error { return db.View(fn) })
}

// EnqueueOneShot schedules name to run once.
func (q *Queue) EnqueueOneShot(name string, req OneShotRequest, policy Policy) (Job, error) {
	now := q.now()
	job := Job{
		Name:        name,
		Kind:        KindOneShot,
		Constraints: req.Constraints,
		MaxAttempts: maxAttempts(req.MaxAttempts),
		NextRunAt:   now.Add(req.Delay),
	}
	return q.enqueue(job, policy, now)
}

// EnqueuePeriodic schedules name to run once per interval.
func (q *Queue) EnqueuePeriodic(name string, req PeriodicRequest, policy Policy) (Job, error) {
	if req.Interval <= 0 {
		return Job{}, fmt.Errorf("periodic job %s: interval must be positive", name)
	}
	if req.Flex < 0 || req.Flex > req.Interval {
		return Job{}, fmt.Errorf("periodic job %s: flex must be within the interval", name)
	}
	now := q.now()
	job := Job{
		Name:        name,
		Kind:        KindPeriodic,
		Constraints: req.Constraints,
		MaxAttempts: maxAttempts(req.MaxAttempts),
		Interval:    req.Interval,
		Flex:        req.Flex,
	}
	job.NextRunAt = job.nextWindow(now)
	return q.enqueue(job, policy, now)
}

func maxAttempts(n int) int {
	if n <= 0 {
		return DefaultMaxAttempts
	}
	return n
}

func (q *Queue) enqueue(job Job, policy Policy, now time.Time) (Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var result Job
	err := q.update(func(txn *badger.Txn) error {
		existing, found, err := getJob(txn, job.Name)
		if err != nil {
			return err
		}
		if found && policy == Keep && existing.State.Live() {
			result = existing
			return nil
		}

		job.RunID = uuid.NewString()
		job.State = StateEnqueued
		job.EnqueuedAt = now
		if found {
			job.Runs = existing.Runs
			job.LastRunAt = existing.LastRunAt
			job.LastOutcome = existing.LastOutcome
			job.LastError = existing.LastError
		}
		result = job
		return putJob(txn, job)
	})
	if err != nil {
		return Job{}, fmt.Errorf("failed to enqueue %s: %w", job.Name, err)
	}

	q.log.Debug().
		Str("job", result.Name).
		Str("policy", policy.String()).
		Str("run_id", result.RunID).
		Time("next_run_at", result.NextRunAt).
		Msg("job enqueued")
	return result, nil
}

// Cancel marks name cancelled. A run in progress finishes but its outcome is
// discarded. Cancelling an unknown or finished job is a no-op.
func (q *Queue) Cancel(name string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.update(func(txn *badger.Txn) error {
		job, found, err := getJob(txn, name)
		if err != nil || !found || !job.State.Live() {
			return err
		}
		job.State = StateCancelled
		job.RunID = ""
		job.FinishedAt = q.now()
		return putJob(txn, job)
	})
}

// Get returns the job stored under name.
func (q *Queue) Get(name string) (Job, error) {
	var job Job
	err := q.view(func(txn *badger.Txn) error {
		j, found, err := getJob(txn, name)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: %s", ErrUnknownJob, name)
		}
		job = j
		return nil
	})
	return job, err
}

// List returns all jobs ordered by name.
func (q *Queue) List() ([]Job, error) {
	var jobs []Job
	err := q.view(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var job Job
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &job)
			}); err != nil {
				return err
			}
			jobs = append(jobs, job)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	sort.Slice(jobs, func(i, k int) bool { return jobs[i].Name < jobs[k].Name })
	return jobs, nil
}

// Due returns jobs whose start time has passed, earliest first.
func (q *Queue) Due() ([]Job, error) {
	all, err := q.List()
	if err != nil {
		return nil, err
	}
	now := q.now()
	var due []Job
	for _, j := range all {
		if j.Due(now) {
			due = append(due, j)
		}
	}
	sort.SliceStable(due, func(i, k int) bool { return due[i].NextRunAt.Before(due[k].NextRunAt) })
	return due, nil
}

// NextWake returns the earliest NextRunAt among waiting jobs.
func (q *Queue) NextWake() (time.Time, bool, error) {
	all, err := q.List()
	if err != nil {
		return time.Time{}, false, err
	}
	var next time.Time
	found := false
	for _, j := range all {
		if j.State != StateEnqueued && j.State != StateRetryScheduled {
			continue
		}
		if !found || j.NextRunAt.Before(next) {
			next = j.NextRunAt
			found = true
		}
	}
	return next, found, nil
}

// Recover re-enqueues jobs left RUNNING by a process that died mid-run.
// The interrupted attempt is not counted.
func (q *Queue) Recover() (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	recovered := 0
	err := q.update(func(txn *badger.Txn) error {
		var stuck []Job
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var job Job
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &job)
			}); err != nil {
				it.Close()
				return err
			}
			if job.State == StateRunning {
				stuck = append(stuck, job)
			}
		}
		it.Close()

		now := q.now()
		for _, job := range stuck {
			job.State = StateEnqueued
			if job.Attempt > 0 {
				job.Attempt--
			}
			job.NextRunAt = now
			if err := putJob(txn, job); err != nil {
				return err
			}
			recovered++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to recover jobs: %w", err)
	}
	if recovered > 0 {
		q.log.Info().Int("count", recovered).Msg("re-enqueued interrupted jobs")
	}
	return recovered, nil
}

// claim moves a due job to RUNNING. It reports false when the job changed
// since it was listed.
func (q *Queue) claim(name, runID string) (Job, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var claimed Job
	ok := false
	err := q.update(func(txn *badger.Txn) error {
		job, found, err := getJob(txn, name)
		if err != nil || !found {
			return err
		}
		now := q.now()
		if job.RunID != runID || !job.Due(now) {
			return nil
		}
		job.State = StateRunning
		job.Attempt++
		job.LastRunAt = now
		claimed, ok = job, true
		return putJob(txn, job)
	})
	return claimed, ok, err
}

// postpone delays a waiting job without counting an attempt.
func (q *Queue) postpone(name, runID string, until time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.update(func(txn *badger.Txn) error {
		job, found, err := getJob(txn, name)
		if err != nil || !found || job.RunID != runID {
			return err
		}
		if job.State != StateEnqueued && job.State != StateRetryScheduled {
			return nil
		}
		job.NextRunAt = until
		return putJob(txn, job)
	})
}

// complete records the outcome of a claimed run. It reports false when the
// job was replaced or cancelled while running; the outcome is then dropped.
func (q *Queue) complete(run Job, runErr error) (Job, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var updated Job
	recorded := false
	err := q.update(func(txn *badger.Txn) error {
		job, found, err := getJob(txn, run.Name)
		if err != nil || !found {
			return err
		}
		if job.RunID != run.RunID || job.State != StateRunning {
			return nil
		}

		now := q.now()
		job.FinishedAt = now
		if runErr == nil {
			job.LastError = ""
			job.Runs++
			job.LastOutcome = StateSucceeded
			if job.Kind == KindPeriodic {
				job.State = StateEnqueued
				job.Attempt = 0
				job.NextRunAt = job.nextWindow(now)
			} else {
				job.State = StateSucceeded
			}
		} else {
			job.LastError = runErr.Error()
			switch {
			case job.Attempt < job.MaxAttempts:
				job.State = StateRetryScheduled
				job.NextRunAt = now.Add(q.backoff.Delay(job.Attempt))
			case job.Kind == KindPeriodic:
				job.Runs++
				job.LastOutcome = StateFailedTerminal
				job.State = StateEnqueued
				job.Attempt = 0
				job.NextRunAt = job.nextWindow(now)
			default:
				job.Runs++
				job.LastOutcome = StateFailedTerminal
				job.State = StateFailedTerminal
			}
		}
		updated, recorded = job, true
		return putJob(txn, job)
	})
	return updated, recorded, err
}

func getJob(txn *badger.Txn, name string) (Job, bool, error) {
	item, err := txn.Get(jobKey(name))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Job{}, false, nil
	}
	if err != nil {
		return Job{}, false, err
	}
	var job Job
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &job)
	})
	if err != nil {
		return Job{}, false, fmt.Errorf("corrupt job record %s: %w", name, err)
	}
	return job, true, nil
}

func putJob(txn *badger.Txn, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job %s: %w", job.Name, err)
	}
	return txn.Set(jobKey(job.Name), data)
}
