// Package recommend turns paid model suggestions into local movie rows.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"gosyncmovies/backend"
	"gosyncmovies/internal/utils"
)

// CostPerRequest is the number of credits one Generate call spends.
const CostPerRequest = 1

// ErrNoRecommendations is returned when the model produced nothing new.
var ErrNoRecommendations = errors.New("no new recommendations")

// Candidate is one suggested title with the model's explanation.
type Candidate struct {
	Movie  backend.MovieRecord
	Reason string
}

// Request describes the user's taste to the model.
type Request struct {
	Count         int
	Liked         []backend.MovieRecord
	Seen          []backend.MovieRecord
	NotInterested []backend.MovieRecord
}

// Recommender is the hosted model call.
type Recommender interface {
	Recommend(ctx context.Context, req Request) ([]Candidate, error)
}

// SyncTrigger schedules a background push.
type SyncTrigger interface {
	TriggerSync() error
}

// Outcome summarizes one Generate call.
type Outcome struct {
	Added    []backend.MovieRecord
	Skipped  int
	Balance  int
	Refunded bool
}

// Gate charges credits for recommendations and stores the results locally.
type Gate struct {
	local    backend.LocalStore
	profiles backend.ProfileStore
	session  backend.SessionProvider
	model    Recommender
	trigger  SyncTrigger
	now      func() time.Time
	log      zerolog.Logger
}

// Option configures a Gate.
type Option func(*Gate)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// WithSyncTrigger schedules a push after recommendations are stored.
func WithSyncTrigger(t SyncTrigger) Option {
	return func(g *Gate) { g.trigger = t }
}

// NewGate creates a gate.
func NewGate(local backend.LocalStore, profiles backend.ProfileStore, session backend.SessionProvider, model Recommender, opts ...Option) *Gate {
	g := &Gate{
		local:    local,
		profiles: profiles,
		session:  session,
		model:    model,
		now:      time.Now,
		log:      utils.Component("recommend"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate spends one credit and stores up to n new recommendations as
// PENDING_CREATE rows. Titles already in the library, in any state, are
// skipped. The credit is refunded when the model fails or suggests nothing new.
func (g *Gate) Generate(ctx context.Context, n int) (*Outcome, error) {
	if n <= 0 {
		return nil, fmt.Errorf("recommendation count must be positive, got %d", n)
	}
	if g.model == nil {
		return nil, utils.WrapWithSuggestion(errors.New("recommendations are disabled"),
			"Set recommend.provider in the config and export ANTHROPIC_API_KEY")
	}
	userID, err := g.userID()
	if err != nil {
		return nil, err
	}

	profile, err := g.profiles.AdjustCredits(ctx, userID, -CostPerRequest)
	if err != nil {
		if errors.Is(err, backend.ErrInsufficientCredits) {
			balance := 0
			if p, perr := g.profiles.GetProfile(ctx, userID); perr == nil {
				balance = p.Credits
			}
			return nil, fmt.Errorf("%w: %w", backend.ErrInsufficientCredits, utils.ErrInsufficientCredits(balance))
		}
		return nil, fmt.Errorf("failed to debit credit: %w", err)
	}
	log := g.log.With().Str("user_id", userID).Int("count", n).Logger()
	log.Debug().Int("balance", profile.Credits).Msg("credit debited")

	out, genErr := g.generate(ctx, n)
	if genErr == nil && len(out.Added) == 0 {
		genErr = ErrNoRecommendations
	}
	if genErr != nil {
		refunded, err := g.profiles.AdjustCredits(ctx, userID, CostPerRequest)
		if err != nil {
			log.Error().Err(err).Msg("failed to refund credit")
			return nil, fmt.Errorf("%w (refund failed: %v)", genErr, err)
		}
		log.Info().Err(genErr).Int("balance", refunded.Credits).Msg("generation failed, credit refunded")
		return &Outcome{Skipped: out.Skipped, Balance: refunded.Credits, Refunded: true}, genErr
	}

	out.Balance = profile.Credits
	log.Info().Int("added", len(out.Added)).Int("skipped", out.Skipped).Msg("recommendations stored")
	if g.trigger != nil {
		if err := g.trigger.TriggerSync(); err != nil {
			log.Warn().Err(err).Msg("failed to schedule sync")
		}
	}
	return out, nil
}

func (g *Gate) generate(ctx context.Context, n int) (*Outcome, error) {
	out := &Outcome{}
	req, err := g.request(ctx, n)
	if err != nil {
		return out, err
	}

	candidates, err := g.model.Recommend(ctx, req)
	if err != nil {
		return out, fmt.Errorf("recommendation request failed: %w", err)
	}

	ids := make([]int64, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.Movie.ID)
	}
	existing, err := g.local.GetMany(ctx, ids)
	if err != nil {
		return out, err
	}
	known := make(map[int64]bool, len(existing))
	for _, rec := range existing {
		known[rec.ID] = true
	}

	now := backend.Truncate(g.now())
	for _, c := range candidates {
		if len(out.Added) == n {
			break
		}
		if known[c.Movie.ID] || c.Reason == "" {
			out.Skipped++
			continue
		}
		rec := c.Movie.Clone()
		reason := c.Reason
		rec.AIReason = &reason
		rec.IsSeen, rec.IsWatchlist, rec.IsFavorite, rec.NotInterested = false, false, false, false
		rec.Rating = nil
		rec.AddedAt = now
		rec.LastModified = now
		rec.SyncState = backend.SyncPendingCreate
		if err := rec.Validate(); err != nil {
			g.log.Debug().Err(err).Msg("dropping malformed candidate")
			out.Skipped++
			continue
		}
		// Requires absence so a concurrent add is never overwritten.
		ok, err := g.local.ReplaceIfUnchanged(ctx, rec, nil)
		if err != nil {
			return out, err
		}
		known[rec.ID] = true
		if !ok {
			out.Skipped++
			continue
		}
		out.Added = append(out.Added, rec)
	}
	return out, nil
}

func (g *Gate) request(ctx context.Context, n int) (Request, error) {
	req := Request{Count: n}

	favorites, err := g.local.List(ctx, backend.FlagFavorite)
	if err != nil {
		return req, err
	}
	rated, err := g.local.List(ctx, backend.FlagRating)
	if err != nil {
		return req, err
	}
	liked := make(map[int64]bool)
	for _, rec := range favorites {
		liked[rec.ID] = true
		req.Liked = append(req.Liked, rec)
	}
	for _, rec := range rated {
		if *rec.Rating >= 4 && !liked[rec.ID] {
			liked[rec.ID] = true
			req.Liked = append(req.Liked, rec)
		}
	}

	if req.Seen, err = g.local.List(ctx, backend.FlagSeen); err != nil {
		return req, err
	}
	if req.NotInterested, err = g.local.List(ctx, backend.FlagNotInterested); err != nil {
		return req, err
	}
	return req, nil
}

// GrantCredits adds n purchased credits and returns the new balance.
func (g *Gate) GrantCredits(ctx context.Context, n int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("credit grant must be positive, got %d", n)
	}
	userID, err := g.userID()
	if err != nil {
		return 0, err
	}
	profile, err := g.profiles.AdjustCredits(ctx, userID, n)
	if err != nil {
		return 0, fmt.Errorf("failed to grant credits: %w", err)
	}
	g.log.Info().Str("user_id", userID).Int("granted", n).Int("balance", profile.Credits).Msg("credits granted")
	return profile.Credits, nil
}

// Profile returns the signed-in user's profile.
func (g *Gate) Profile(ctx context.Context) (*backend.UserProfile, error) {
	userID, err := g.userID()
	if err != nil {
		return nil, err
	}
	return g.profiles.GetProfile(ctx, userID)
}

func (g *Gate) userID() (string, error) {
	if g.session == nil {
		return "", fmt.Errorf("%w: %w", backend.ErrNoSession, utils.ErrNotSignedIn())
	}
	userID, ok := g.session.CurrentUserID()
	if !ok {
		return "", fmt.Errorf("%w: %w", backend.ErrNoSession, utils.ErrNotSignedIn())
	}
	return userID, nil
}
