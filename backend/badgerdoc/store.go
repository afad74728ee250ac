// Package badgerdoc is an embedded per-user document store backed by BadgerDB.
//
// It implements backend.Remote directly, which makes it usable as an offline
// remote, and it is the storage layer behind the document server.
package badgerdoc

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"gosyncmovies/backend"
)

func init() {
	backend.RegisterType("badger", func(cfg backend.RemoteConfig) (backend.Remote, error) {
		if cfg.Path == "" {
			return OpenInMemory()
		}
		return OpenShared(cfg.Path, sharedOpenWait)
	})
}

// sharedOpenWait bounds how long a remote waits for another process to
// release the directory.
const sharedOpenWait = 15 * time.Second

const maxConflictRetries = 5

// Store keeps movie and profile documents keyed by user.
type Store struct {
	db  *badger.DB
	now func() time.Time
}

// Open opens (or creates) a store in dir.
func Open(dir string) (*Store, error) {
	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("failed to open document store: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// OpenShared is Open, retried while another process holds the directory lock.
func OpenShared(dir string, wait time.Duration) (*Store, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 50 * time.Millisecond
	policy.MaxInterval = time.Second
	policy.MaxElapsedTime = wait

	var store *Store
	err := backoff.Retry(func() error {
		s, err := Open(dir)
		if err != nil {
			if strings.Contains(err.Error(), "Another process is using this Badger database") {
				return err
			}
			return backoff.Permanent(err)
		}
		store = s
		return nil
	}, policy)
	return store, err
}

// OpenInMemory opens a store that lives only as long as the process.
func OpenInMemory() (*Store, error) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory document store: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// SetClock overrides the time source used for server-set timestamps.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// userSegment escapes userID so it stays one key segment.
func userSegment(userID string) string {
	return url.PathEscape(userID)
}

func moviePrefix(userID string) []byte {
	return []byte("users/" + userSegment(userID) + "/movies/")
}

func movieKey(userID string, id int64) []byte {
	return append(moviePrefix(userID), strconv.FormatInt(id, 10)...)
}

func profileKey(userID string) []byte {
	return []byte("users/" + userSegment(userID) + "/profile")
}

// FetchAll returns every movie document of userID.
func (s *Store) FetchAll(ctx context.Context, userID string) ([]backend.MovieRecord, error) {
	docs, err := s.Documents(ctx, userID)
	if err != nil {
		return nil, err
	}
	records := make([]backend.MovieRecord, 0, len(docs))
	for _, d := range docs {
		records = append(records, d.Record())
	}
	return records, nil
}

// Documents returns the raw movie documents of userID.
func (s *Store) Documents(ctx context.Context, userID string) ([]backend.MovieDocument, error) {
	var docs []backend.MovieDocument
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := moviePrefix(userID)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var d backend.MovieDocument
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &d)
			}); err != nil {
				return err
			}
			docs = append(docs, d)
		}
		return nil
	})
	if err != nil {
		return nil, backend.NewRemoteError("FetchAll", 0, err.Error()).WithUserID(userID).WithError(err)
	}
	return docs, nil
}

// Put writes a movie document, replacing any previous version.
func (s *Store) Put(ctx context.Context, userID string, rec backend.MovieRecord) error {
	return s.PutDocument(ctx, userID, backend.ToDocument(rec))
}

// PutDocument writes a raw movie document.
func (s *Store) PutDocument(ctx context.Context, userID string, doc backend.MovieDocument) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return backend.NewRemoteError("Put", 0, "failed to encode document").WithMovieID(doc.ID).WithError(err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(movieKey(userID, doc.ID), data)
	})
	if err != nil {
		return backend.NewRemoteError("Put", 0, err.Error()).WithUserID(userID).WithMovieID(doc.ID).WithError(err)
	}
	return nil
}

// Delete removes a movie document. A missing document yields a 404 RemoteError.
func (s *Store) Delete(ctx context.Context, userID string, id int64) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		key := movieKey(userID, id)
		if _, err := txn.Get(key); err != nil {
			return err
		}
		return txn.Delete(key)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return backend.NewRemoteError("Delete", 404, "document not found").WithUserID(userID).WithMovieID(id)
	}
	if err != nil {
		return backend.NewRemoteError("Delete", 0, err.Error()).WithUserID(userID).WithMovieID(id).WithError(err)
	}
	return nil
}

func getProfile(txn *badger.Txn, userID string) (backend.ProfileDocument, error) {
	var doc backend.ProfileDocument
	item, err := txn.Get(profileKey(userID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return doc, backend.ErrProfileNotFound
	}
	if err != nil {
		return doc, err
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &doc)
	})
	return doc, err
}

func putProfile(txn *badger.Txn, doc backend.ProfileDocument) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return txn.Set(profileKey(doc.ID), data)
}

// GetProfile returns the profile of userID or backend.ErrProfileNotFound.
func (s *Store) GetProfile(ctx context.Context, userID string) (*backend.UserProfile, error) {
	var doc backend.ProfileDocument
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		doc, err = getProfile(txn, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	p := doc.Profile()
	return &p, nil
}

// CreateProfile stores p unless a profile already exists, in which case the
// existing one is returned unchanged. Timestamps are set by the store.
func (s *Store) CreateProfile(ctx context.Context, p backend.UserProfile) (*backend.UserProfile, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	var stored backend.ProfileDocument
	err := s.update(func(txn *badger.Txn) error {
		existing, err := getProfile(txn, p.ID)
		if err == nil {
			stored = existing
			return nil
		}
		if !errors.Is(err, backend.ErrProfileNotFound) {
			return err
		}
		now := backend.Truncate(s.now())
		p.CreatedAt = now
		p.LastUpdated = now
		stored = backend.ToProfileDocument(p)
		return putProfile(txn, stored)
	})
	if err != nil {
		return nil, err
	}
	out := stored.Profile()
	return &out, nil
}

// UpdateProfile replaces the editable fields of an existing profile. Credits
// and the creation time are not changed.
func (s *Store) UpdateProfile(ctx context.Context, p backend.UserProfile) (*backend.UserProfile, error) {
	var stored backend.ProfileDocument
	err := s.update(func(txn *badger.Txn) error {
		existing, err := getProfile(txn, p.ID)
		if err != nil {
			return err
		}
		existing.Email = p.Email
		existing.DisplayName = p.DisplayName
		existing.PhotoURL = p.PhotoURL
		existing.LastUpdated = backend.ToMillis(backend.Truncate(s.now()))
		stored = existing
		return putProfile(txn, existing)
	})
	if err != nil {
		return nil, err
	}
	out := stored.Profile()
	return &out, nil
}

// AdjustCredits atomically adds delta to the user's balance. A balance that
// would go negative is rejected with backend.ErrInsufficientCredits.
func (s *Store) AdjustCredits(ctx context.Context, userID string, delta int) (*backend.UserProfile, error) {
	var stored backend.ProfileDocument
	err := s.update(func(txn *badger.Txn) error {
		doc, err := getProfile(txn, userID)
		if err != nil {
			return err
		}
		if doc.Credits+delta < 0 {
			return backend.ErrInsufficientCredits
		}
		doc.Credits += delta
		doc.LastUpdated = backend.ToMillis(backend.Truncate(s.now()))
		stored = doc
		return putProfile(txn, doc)
	})
	if err != nil {
		return nil, err
	}
	out := stored.Profile()
	return &out, nil
}

// update runs fn in a read-write transaction, retrying on write conflicts.
func (s *Store) update(fn func(txn *badger.Txn) error) error {
	var err error
	for i := 0; i < maxConflictRetries; i++ {
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

var _ backend.Remote = (*Store)(nil)
