// Package operations holds the user-facing mutations on the local movie
// library. Every mutation writes locally first and then asks the sync layer to
// push in the background.
package operations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"gosyncmovies/backend"
	"gosyncmovies/internal/utils"
)

// SyncTrigger schedules a background push.
type SyncTrigger interface {
	TriggerSync() error
}

// MovieService applies user actions to the local store.
type MovieService struct {
	local   backend.LocalStore
	trigger SyncTrigger
	now     func() time.Time
	log     zerolog.Logger
}

// Option configures a MovieService.
type Option func(*MovieService)

// WithClock overrides the time source used for lastModified stamps.
func WithClock(now func() time.Time) Option {
	return func(s *MovieService) { s.now = now }
}

// NewMovieService creates a service over local. trigger may be nil, in which
// case changes wait for the next periodic sync.
func NewMovieService(local backend.LocalStore, trigger SyncTrigger, opts ...Option) *MovieService {
	s := &MovieService{
		local:   local,
		trigger: trigger,
		now:     time.Now,
		log:     utils.Component("operations"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddFromSearch stores a movie picked from search results as PENDING_CREATE.
// It returns false when the movie is already in the library. A row still
// waiting for its remote delete is revived instead.
func (s *MovieService) AddFromSearch(ctx context.Context, movie backend.MovieRecord) (bool, error) {
	existing, err := s.local.Get(ctx, movie.ID)
	if err != nil {
		return false, err
	}
	if existing != nil && existing.SyncState != backend.SyncPendingDelete {
		return false, nil
	}

	now := backend.Truncate(s.now())
	rec := movie.Clone()
	rec.AddedAt = now
	rec.LastModified = now
	rec.SyncState = backend.SyncPendingCreate
	rec.SyncAttempts = 0
	rec.LastSyncError = ""
	if existing != nil {
		// The remote document still exists; overwrite it on the next push.
		rec.AddedAt = existing.AddedAt
		rec.SyncState = backend.SyncPendingUpdate
	}
	if err := rec.Validate(); err != nil {
		return false, err
	}
	if err := s.local.Upsert(ctx, rec); err != nil {
		return false, fmt.Errorf("failed to add movie %d: %w", rec.ID, err)
	}
	s.log.Debug().Int64("movie_id", rec.ID).Str("title", rec.Title).Msg("movie added")
	s.triggerSync()
	return true, nil
}

// SetSeen marks a movie as seen or unseen.
func (s *MovieService) SetSeen(ctx context.Context, id int64, seen bool) error {
	return s.apply(ctx, id, backend.SetFlag(backend.FlagSeen, seen))
}

// ToggleWatchlist flips the watchlist flag and returns the new value.
func (s *MovieService) ToggleWatchlist(ctx context.Context, id int64) (bool, error) {
	rec, err := s.get(ctx, id)
	if err != nil {
		return false, err
	}
	value := !rec.IsWatchlist
	if err := s.apply(ctx, id, backend.SetFlag(backend.FlagWatchlist, value)); err != nil {
		return false, err
	}
	return value, nil
}

// SetFavorite marks or unmarks a movie as favorite.
func (s *MovieService) SetFavorite(ctx context.Context, id int64, favorite bool) error {
	return s.apply(ctx, id, backend.SetFlag(backend.FlagFavorite, favorite))
}

// SetRating sets the rating. A nil rating clears it.
func (s *MovieService) SetRating(ctx context.Context, id int64, rating *float64) error {
	return s.apply(ctx, id, backend.SetRating(rating))
}

// MarkNotInterested hides a movie from recommendations.
func (s *MovieService) MarkNotInterested(ctx context.Context, id int64) error {
	return s.apply(ctx, id, backend.SetFlag(backend.FlagNotInterested, true))
}

// Remove deletes a movie from the library. A movie the remote has never seen
// is dropped immediately; otherwise it waits as PENDING_DELETE for the push.
func (s *MovieService) Remove(ctx context.Context, id int64) error {
	tagged, err := s.local.MarkPendingDelete(ctx, id, s.now())
	if err != nil {
		return notFound(id, err)
	}
	s.log.Debug().Int64("movie_id", id).Bool("tagged", tagged).Msg("movie removed")
	if tagged {
		s.triggerSync()
	}
	return nil
}

// Get returns one movie. Rows awaiting deletion are reported as missing.
func (s *MovieService) Get(ctx context.Context, id int64) (*backend.MovieRecord, error) {
	return s.get(ctx, id)
}

// List returns the movies matching flag.
func (s *MovieService) List(ctx context.Context, flag backend.Flag) ([]backend.MovieRecord, error) {
	return s.local.List(ctx, flag)
}

// Watch streams the movies matching flag until ctx is done.
func (s *MovieService) Watch(ctx context.Context, flag backend.Flag) (<-chan []backend.MovieRecord, error) {
	return s.local.WatchFlag(ctx, flag)
}

func (s *MovieService) get(ctx context.Context, id int64) (*backend.MovieRecord, error) {
	rec, err := s.local.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.SyncState == backend.SyncPendingDelete {
		return nil, utils.ErrMovieNotFound(id, backend.ErrMovieNotFound)
	}
	return rec, nil
}

func (s *MovieService) apply(ctx context.Context, id int64, change backend.FlagChange) error {
	if err := change.Validate(); err != nil {
		return err
	}
	if err := s.local.UpdateFlag(ctx, id, change, s.now()); err != nil {
		return notFound(id, err)
	}
	s.log.Debug().Int64("movie_id", id).Str("flag", string(change.Flag)).Msg("movie updated")
	s.triggerSync()
	return nil
}

// triggerSync only logs failures; the local write already stands.
func (s *MovieService) triggerSync() {
	if s.trigger == nil {
		return
	}
	if err := s.trigger.TriggerSync(); err != nil {
		s.log.Warn().Err(err).Msg("failed to schedule sync")
	}
}

func notFound(id int64, err error) error {
	if errors.Is(err, backend.ErrMovieNotFound) {
		return utils.ErrMovieNotFound(id, err)
	}
	return err
}
