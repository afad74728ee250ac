package backend

import (
	"context"
	"time"
)

// LocalStore is the persistent working copy of the user's movies.
//
// Every method is atomic: a failed call leaves no partial write behind.
// Storage failures are returned as *StoreError.
type LocalStore interface {
	// Get returns the record with the given id, or nil if absent.
	Get(ctx context.Context, id int64) (*MovieRecord, error)

	// GetMany returns the records present among ids, in ascending id order.
	GetMany(ctx context.Context, ids []int64) ([]MovieRecord, error)

	// WatchFlag streams the set of records matching flag. The current set is
	// sent first; a new set is sent whenever a committed write changes it.
	// The channel is closed once ctx is done.
	WatchFlag(ctx context.Context, flag Flag) (<-chan []MovieRecord, error)

	// List returns the records currently matching flag; the empty flag lists the whole library.
	List(ctx context.Context, flag Flag) ([]MovieRecord, error)

	// Upsert inserts or fully replaces a record.
	Upsert(ctx context.Context, rec MovieRecord) error

	// UpdateFlag applies one user-state change and stamps lastModified.
	// The store itself moves the row to PENDING_UPDATE.
	UpdateFlag(ctx context.Context, id int64, change FlagChange, at time.Time) error

	// MarkPendingDelete tags a row for remote deletion. The row stays until the
	// remote confirms. tagged is false when it was already awaiting deletion.
	MarkPendingDelete(ctx context.Context, id int64, at time.Time) (tagged bool, err error)

	SelectPendingSync(ctx context.Context) ([]MovieRecord, error)
	SelectPendingDelete(ctx context.Context) ([]MovieRecord, error)

	// MarkSynced tags the row SYNCED if it was not modified since lastModified.
	MarkSynced(ctx context.Context, id int64, lastModified time.Time) (bool, error)

	// MarkFailed records a failed push. Put failures become FAILED; rows
	// awaiting deletion stay PENDING_DELETE so they are retried as deletes.
	MarkFailed(ctx context.Context, id int64, lastModified time.Time, cause error) (bool, error)

	// RemoveIfPendingDelete physically removes a row still tagged PENDING_DELETE.
	RemoveIfPendingDelete(ctx context.Context, id int64) (bool, error)

	// ReplaceIfUnchanged writes rec only if the stored row still matches
	// expected by lastModified and sync state. A nil expected requires absence.
	ReplaceIfUnchanged(ctx context.Context, rec MovieRecord, expected *MovieRecord) (bool, error)

	// Stats counts rows per sync state.
	Stats(ctx context.Context) (map[SyncState]int, error)

	// Clear wipes every row.
	Clear(ctx context.Context) error

	Close() error
}

// RemoteStore is a per-user collection of movie documents with
// whole-document last-writer-wins semantics. Failures are *RemoteError values;
// implementations never retry.
type RemoteStore interface {
	// FetchAll returns every document for the user, tagged SYNCED.
	FetchAll(ctx context.Context, userID string) ([]MovieRecord, error)

	// Put overwrites the whole document for rec.ID.
	Put(ctx context.Context, userID string, rec MovieRecord) error

	Delete(ctx context.Context, userID string, id int64) error
}

// ProfileStore holds the remote-owned user profile and credit balance.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*UserProfile, error)

	// CreateProfile stores p if no profile exists yet and returns the stored one.
	CreateProfile(ctx context.Context, p UserProfile) (*UserProfile, error)

	// AdjustCredits atomically adds delta to the balance. A result below zero
	// fails with ErrInsufficientCredits.
	AdjustCredits(ctx context.Context, userID string, delta int) (*UserProfile, error)
}

// Remote bundles the two remote contracts served by one document store.
type Remote interface {
	RemoteStore
	ProfileStore
	Close() error
}

// SessionProvider supplies the signed-in user's id.
type SessionProvider interface {
	CurrentUserID() (string, bool)
}

// Observer receives sync summaries and swallowed failures.
type Observer interface {
	Log(msg string)
	RecordException(err error)
}
