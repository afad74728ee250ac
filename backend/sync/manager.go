package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"gosyncmovies/backend"
	"gosyncmovies/internal/utils"
)

// ErrPushInProgress is returned by Push when another push holds the guard.
var ErrPushInProgress = errors.New("push already in progress")

// SyncManager reconciles the local store with the remote document store.
// Pull and Push are independent, idempotent, and each guarded against overlap.
type SyncManager struct {
	local    backend.LocalStore
	remote   backend.RemoteStore
	session  backend.SessionProvider
	observer backend.Observer
	now      func() time.Time
	log      zerolog.Logger

	pullGuard Guard
	pushGuard Guard
}

// Option configures a SyncManager.
type Option func(*SyncManager)

// WithObserver routes summaries and swallowed failures to o.
func WithObserver(o backend.Observer) Option {
	return func(sm *SyncManager) { sm.observer = o }
}

// WithClock overrides the clock used for run durations.
func WithClock(now func() time.Time) Option {
	return func(sm *SyncManager) { sm.now = now }
}

// NewSyncManager creates a new sync manager
func NewSyncManager(local backend.LocalStore, remote backend.RemoteStore, session backend.SessionProvider, opts ...Option) *SyncManager {
	sm := &SyncManager{
		local:   local,
		remote:  remote,
		session: session,
		now:     time.Now,
		log:     utils.Component("sync"),
	}
	for _, opt := range opts {
		opt(sm)
	}
	if sm.observer == nil {
		sm.observer = logObserver{log: sm.log}
	}
	return sm
}

// PullResult contains statistics about a pull-merge run
type PullResult struct {
	Created int
	Updated int
	Skipped int

	NoSession      bool // nothing to do without a signed-in user
	AlreadyRunning bool // another pull held the guard
	Aborted        bool // remote fetch failed; no local change was made
	Err            error
	Duration       time.Duration
}

// PushResult contains statistics about a push-flush run
type PushResult struct {
	Created int
	Updated int
	Deleted int
	Failed  int

	NoSession bool
	Errors    []error
	Duration  time.Duration
}

// Pushed returns the number of successful remote writes.
func (r *PushResult) Pushed() int {
	return r.Created + r.Updated + r.Deleted
}

// Pull fetches every remote document and merges it into the local store.
// Remote failures abort the run without error; local store failures are returned.
func (sm *SyncManager) Pull(ctx context.Context) (*PullResult, error) {
	start := sm.now()
	result := &PullResult{}

	userID, ok := sm.session.CurrentUserID()
	if !ok {
		result.NoSession = true
		return result, nil
	}

	release, ok := sm.pullGuard.TryAcquire()
	if !ok {
		result.AlreadyRunning = true
		sm.log.Debug().Msg("pull skipped: already running")
		return result, nil
	}
	defer release()

	remoteRecords, err := sm.remote.FetchAll(ctx, userID)
	if err != nil {
		result.Aborted = true
		result.Err = err
		result.Duration = sm.now().Sub(start)
		sm.log.Warn().Err(err).Str("op", "FetchAll").Msg("pull aborted")
		sm.observer.RecordException(fmt.Errorf("pull: %w", err))
		return result, nil
	}

	for _, r := range remoteRecords {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		r.SyncState = backend.SyncSynced
		if err := r.Validate(); err != nil {
			result.Skipped++
			sm.log.Warn().Err(err).Int64("movie", r.ID).Msg("pull skipped invalid remote document")
			sm.observer.RecordException(fmt.Errorf("pull: %w", err))
			continue
		}

		local, err := sm.local.Get(ctx, r.ID)
		if err != nil {
			return result, err
		}

		decision := Decide(local, r)
		if decision == DecisionKeepLocal {
			result.Skipped++
			continue
		}

		written, err := sm.local.ReplaceIfUnchanged(ctx, r, local)
		if err != nil {
			return result, err
		}
		switch {
		case !written:
			// A local write landed between the read and the replace.
			result.Skipped++
		case decision == DecisionInsert:
			result.Created++
		default:
			result.Updated++
		}
	}

	result.Duration = sm.now().Sub(start)
	sm.observer.Log(fmt.Sprintf("pull complete: created=%d updated=%d skipped=%d",
		result.Created, result.Updated, result.Skipped))
	return result, nil
}

// Push flushes pending local mutations to the remote store, one record at a time.
// A failing record never aborts the batch; it is tagged and counted instead.
func (sm *SyncManager) Push(ctx context.Context) (*PushResult, error) {
	start := sm.now()
	result := &PushResult{}

	userID, ok := sm.session.CurrentUserID()
	if !ok {
		result.NoSession = true
		return result, nil
	}

	release, ok := sm.pushGuard.TryAcquire()
	if !ok {
		return result, ErrPushInProgress
	}
	defer release()

	pending, err := sm.local.SelectPendingSync(ctx)
	if err != nil {
		return result, err
	}
	deletes, err := sm.local.SelectPendingDelete(ctx)
	if err != nil {
		return result, err
	}

	for _, rec := range pending {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := sm.pushRecord(ctx, userID, rec, result); err != nil {
			return result, err
		}
	}

	for _, rec := range deletes {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := sm.pushDelete(ctx, userID, rec, result); err != nil {
			return result, err
		}
	}

	result.Duration = sm.now().Sub(start)
	sm.observer.Log(fmt.Sprintf("push complete: created=%d updated=%d deleted=%d failed=%d",
		result.Created, result.Updated, result.Deleted, result.Failed))
	return result, nil
}

// pushRecord puts one record. Only local store errors are returned.
func (sm *SyncManager) pushRecord(ctx context.Context, userID string, rec backend.MovieRecord, result *PushResult) error {
	if err := sm.remote.Put(ctx, userID, rec); err != nil {
		result.Failed++
		result.Errors = append(result.Errors, err)
		sm.log.Warn().Err(err).Int64("movie", rec.ID).Str("op", "Put").Msg("push failed")
		sm.observer.RecordException(err)
		_, markErr := sm.local.MarkFailed(ctx, rec.ID, rec.LastModified, err)
		return markErr
	}

	if _, err := sm.local.MarkSynced(ctx, rec.ID, rec.LastModified); err != nil {
		return err
	}
	if rec.SyncState == backend.SyncPendingCreate {
		result.Created++
	} else {
		result.Updated++
	}
	return nil
}

// pushDelete deletes one record remotely. A document that is already gone counts as deleted.
func (sm *SyncManager) pushDelete(ctx context.Context, userID string, rec backend.MovieRecord, result *PushResult) error {
	err := sm.remote.Delete(ctx, userID, rec.ID)
	if err != nil && !backend.IsRemoteNotFound(err) {
		result.Failed++
		result.Errors = append(result.Errors, err)
		sm.log.Warn().Err(err).Int64("movie", rec.ID).Str("op", "Delete").Msg("push failed")
		sm.observer.RecordException(err)
		_, markErr := sm.local.MarkFailed(ctx, rec.ID, rec.LastModified, err)
		return markErr
	}

	if _, err := sm.local.RemoveIfPendingDelete(ctx, rec.ID); err != nil {
		return err
	}
	result.Deleted++
	return nil
}

// SyncResult is the outcome of a push followed by a pull.
type SyncResult struct {
	Push *PushResult
	Pull *PullResult
}

// Sync pushes pending changes and then pulls remote ones.
// A push that returns an error skips the pull.
func (sm *SyncManager) Sync(ctx context.Context) (*SyncResult, error) {
	push, err := sm.Push(ctx)
	if err != nil {
		return &SyncResult{Push: push}, err
	}
	pull, err := sm.Pull(ctx)
	return &SyncResult{Push: push, Pull: pull}, err
}

// SyncStats summarizes the local store's sync state.
type SyncStats struct {
	ByState       map[backend.SyncState]int
	Pending       int
	PendingDelete int
	Failed        int
	PullRunning   bool
	PushRunning   bool
}

// GetSyncStats returns the current sync statistics
func (sm *SyncManager) GetSyncStats(ctx context.Context) (*SyncStats, error) {
	byState, err := sm.local.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return &SyncStats{
		ByState:       byState,
		Pending:       byState[backend.SyncPendingCreate] + byState[backend.SyncPendingUpdate] + byState[backend.SyncFailed],
		PendingDelete: byState[backend.SyncPendingDelete],
		Failed:        byState[backend.SyncFailed],
		PullRunning:   sm.pullGuard.Busy(),
		PushRunning:   sm.pushGuard.Busy(),
	}, nil
}

// logObserver is the default Observer: structured log lines only.
type logObserver struct {
	log zerolog.Logger
}

func (o logObserver) Log(msg string) {
	o.log.Info().Msg(msg)
}

func (o logObserver) RecordException(err error) {
	o.log.Error().Err(err).Msg("sync exception")
}
