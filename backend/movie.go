package backend

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// SyncState tags a local record with its reconciliation status against the remote store.
type SyncState string

const (
	SyncPendingCreate SyncState = "PENDING_CREATE"
	SyncPendingUpdate SyncState = "PENDING_UPDATE"
	SyncPendingDelete SyncState = "PENDING_DELETE"
	SyncSynced        SyncState = "SYNCED"
	SyncFailed        SyncState = "FAILED"
)

// AllSyncStates lists every known state in display order.
func AllSyncStates() []SyncState {
	return []SyncState{SyncPendingCreate, SyncPendingUpdate, SyncPendingDelete, SyncFailed, SyncSynced}
}

// ParseSyncState maps a persisted value to a SyncState.
// Unknown values degrade to SYNCED so rows written by a newer schema stay readable.
func ParseSyncState(s string) SyncState {
	switch SyncState(strings.ToUpper(strings.TrimSpace(s))) {
	case SyncPendingCreate:
		return SyncPendingCreate
	case SyncPendingUpdate:
		return SyncPendingUpdate
	case SyncPendingDelete:
		return SyncPendingDelete
	case SyncFailed:
		return SyncFailed
	default:
		return SyncSynced
	}
}

// NeedsPush reports whether a record in this state is selected for put on the next push.
func (s SyncState) NeedsPush() bool {
	return s == SyncPendingCreate || s == SyncPendingUpdate || s == SyncFailed
}

func (s SyncState) String() string {
	return string(s)
}

// Flag names a user-state predicate over movie records.
type Flag string

const (
	FlagSeen          Flag = "seen"
	FlagWatchlist     Flag = "watchlist"
	FlagFavorite      Flag = "favorite"
	FlagNotInterested Flag = "not_interested"
	FlagRating        Flag = "rating"
	// FlagRecommended selects AI recommendations the user has not acted on yet.
	FlagRecommended Flag = "recommended"
)

// AllFlags returns every flag accepted by ParseFlag.
func AllFlags() []Flag {
	return []Flag{FlagSeen, FlagWatchlist, FlagFavorite, FlagNotInterested, FlagRating, FlagRecommended}
}

// ParseFlag parses a flag name, accepting dashes in place of underscores.
func ParseFlag(s string) (Flag, error) {
	norm := Flag(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	for _, f := range AllFlags() {
		if f == norm {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown flag %q", s)
}

// ClearsAIReason reports whether mutating this flag consumes an AI recommendation.
func (f Flag) ClearsAIReason() bool {
	return f == FlagSeen || f == FlagWatchlist || f == FlagNotInterested
}

// FlagChange is a single user-state mutation: either a boolean flag or the rating.
type FlagChange struct {
	Flag   Flag
	Value  bool
	Rating *float64
}

// SetFlag builds a boolean flag change.
func SetFlag(f Flag, value bool) FlagChange {
	return FlagChange{Flag: f, Value: value}
}

// SetRating builds a rating change. A nil rating clears it.
func SetRating(r *float64) FlagChange {
	return FlagChange{Flag: FlagRating, Rating: r}
}

// Validate checks the change is one a store can apply.
func (c FlagChange) Validate() error {
	switch c.Flag {
	case FlagSeen, FlagWatchlist, FlagFavorite, FlagNotInterested:
		return nil
	case FlagRating:
		if c.Rating != nil && (math.IsNaN(*c.Rating) || *c.Rating < MinRating || *c.Rating > MaxRating) {
			return fmt.Errorf("rating %.1f out of range [%.1f, %.1f]", *c.Rating, MinRating, MaxRating)
		}
		return nil
	case FlagRecommended:
		return fmt.Errorf("flag %q is derived and cannot be set", c.Flag)
	default:
		return fmt.Errorf("unknown flag %q", c.Flag)
	}
}

const (
	MinRating = 0.0
	MaxRating = 5.0
)

// MovieRecord is the local working copy of one title's user state.
type MovieRecord struct {
	ID          int64  `validate:"required,gt=0"`
	Title       string `validate:"required"`
	PosterURL   string
	BackdropURL string
	ReleaseDate string
	Overview    string

	IsSeen        bool
	IsWatchlist   bool
	IsFavorite    bool
	Rating        *float64 `validate:"omitempty,gte=0,lte=5"`
	AIReason      *string
	NotInterested bool

	AddedAt      time.Time
	LastModified time.Time
	SyncState    SyncState

	// Bookkeeping only visible locally.
	SyncAttempts  int
	LastSyncError string
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the record's structural constraints.
func (r *MovieRecord) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("invalid movie %d: %w", r.ID, err)
	}
	return nil
}

// Apply mutates the record in memory the same way a store applies a FlagChange.
func (r *MovieRecord) Apply(c FlagChange, at time.Time) {
	switch c.Flag {
	case FlagSeen:
		r.IsSeen = c.Value
	case FlagWatchlist:
		r.IsWatchlist = c.Value
	case FlagFavorite:
		r.IsFavorite = c.Value
	case FlagNotInterested:
		r.NotInterested = c.Value
	case FlagRating:
		r.Rating = cloneFloat(c.Rating)
	}
	if c.Flag.ClearsAIReason() {
		r.AIReason = nil
	}
	r.LastModified = Truncate(at)
	switch r.SyncState {
	case SyncPendingCreate, SyncPendingDelete:
	default:
		r.SyncState = SyncPendingUpdate
	}
}

// Matches reports whether the record satisfies a flag predicate.
func (r *MovieRecord) Matches(f Flag) bool {
	if r.SyncState == SyncPendingDelete {
		return false
	}
	switch f {
	case FlagSeen:
		return r.IsSeen
	case FlagWatchlist:
		return r.IsWatchlist
	case FlagFavorite:
		return r.IsFavorite
	case FlagNotInterested:
		return r.NotInterested
	case FlagRating:
		return r.Rating != nil
	case FlagRecommended:
		return r.AIReason != nil && !r.IsSeen && !r.NotInterested
	}
	return false
}

// Clone returns a deep copy.
func (r MovieRecord) Clone() MovieRecord {
	r.Rating = cloneFloat(r.Rating)
	if r.AIReason != nil {
		s := *r.AIReason
		r.AIReason = &s
	}
	return r
}

// Equal compares two records field by field, including bookkeeping.
func (r MovieRecord) Equal(o MovieRecord) bool {
	return r.ID == o.ID &&
		r.Title == o.Title &&
		r.PosterURL == o.PosterURL &&
		r.BackdropURL == o.BackdropURL &&
		r.ReleaseDate == o.ReleaseDate &&
		r.Overview == o.Overview &&
		r.IsSeen == o.IsSeen &&
		r.IsWatchlist == o.IsWatchlist &&
		r.IsFavorite == o.IsFavorite &&
		equalFloat(r.Rating, o.Rating) &&
		equalString(r.AIReason, o.AIReason) &&
		r.NotInterested == o.NotInterested &&
		r.AddedAt.Equal(o.AddedAt) &&
		r.LastModified.Equal(o.LastModified) &&
		r.SyncState == o.SyncState
}

// UserProfile is the remote-owned account document.
type UserProfile struct {
	ID          string `validate:"required"`
	Email       string `validate:"omitempty,email"`
	DisplayName string
	PhotoURL    string
	Credits     int `validate:"gte=0"`
	CreatedAt   time.Time
	LastUpdated time.Time
}

// Validate checks the profile's structural constraints.
func (p *UserProfile) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("invalid profile %q: %w", p.ID, err)
	}
	return nil
}

// Truncate drops sub-millisecond precision so in-memory and persisted timestamps compare equal.
func Truncate(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return time.UnixMilli(t.UnixMilli()).UTC()
}

// ToMillis converts a timestamp to epoch milliseconds. The zero time maps to 0.
func ToMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// FromMillis converts epoch milliseconds to a UTC timestamp. 0 maps to the zero time.
func FromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

func equalFloat(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalString(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
