package badgerdoc

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gosyncmovies/backend"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	s.SetClock(func() time.Time { return time.UnixMilli(5000).UTC() })
	return s
}

func rating(v float64) *float64 { return &v }

func TestPutAndFetchAll(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := backend.MovieRecord{
		ID:           603,
		Title:        "The Matrix",
		IsSeen:       true,
		Rating:       rating(4.5),
		AddedAt:      backend.FromMillis(1000),
		LastModified: backend.FromMillis(2000),
		SyncState:    backend.SyncPendingCreate,
	}
	if err := s.Put(ctx, "alice", rec); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := s.Put(ctx, "bob", backend.MovieRecord{ID: 1, Title: "Other"}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, err := s.FetchAll(ctx, "alice")
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("FetchAll() returned %d records, want 1", len(got))
	}
	if got[0].SyncState != backend.SyncSynced {
		t.Errorf("fetched record SyncState = %s, want SYNCED", got[0].SyncState)
	}
	want := rec
	want.SyncState = backend.SyncSynced
	if !got[0].Equal(want) {
		t.Errorf("FetchAll() = %+v, want %+v", got[0], want)
	}
}

func TestUserIDStaysOneKeySegment(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, "alice/movies/1", backend.MovieRecord{ID: 2, Title: "Intruder"}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	got, err := s.FetchAll(ctx, "alice")
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("alice sees another user's documents: %+v", got)
	}
	got, err = s.FetchAll(ctx, "alice/movies/1")
	if err != nil || len(got) != 1 || got[0].ID != 2 {
		t.Errorf("FetchAll(own id) = %+v, %v", got, err)
	}
}

func TestPutOverwrites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Put(ctx, "alice", backend.MovieRecord{ID: 1, Title: "A", LastModified: backend.FromMillis(1)})
	s.Put(ctx, "alice", backend.MovieRecord{ID: 1, Title: "A", IsFavorite: true, LastModified: backend.FromMillis(2)})

	got, _ := s.FetchAll(ctx, "alice")
	if len(got) != 1 || !got[0].IsFavorite {
		t.Errorf("FetchAll() = %+v", got)
	}
}

func TestDeleteMissingIsNotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Put(ctx, "alice", backend.MovieRecord{ID: 7, Title: "Seven"})
	if err := s.Delete(ctx, "alice", 7); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	err := s.Delete(ctx, "alice", 7)
	if !backend.IsRemoteNotFound(err) {
		t.Errorf("second Delete() error = %v, want not found", err)
	}
}

func TestCreateProfileIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.CreateProfile(ctx, backend.UserProfile{ID: "alice", Email: "alice@example.com", Credits: 3})
	if err != nil {
		t.Fatalf("CreateProfile() error = %v", err)
	}
	if first.CreatedAt != backend.FromMillis(5000) {
		t.Errorf("CreatedAt = %v, want server time", first.CreatedAt)
	}

	second, err := s.CreateProfile(ctx, backend.UserProfile{ID: "alice", Credits: 100})
	if err != nil {
		t.Fatalf("second CreateProfile() error = %v", err)
	}
	if second.Credits != 3 {
		t.Errorf("existing profile was overwritten: credits = %d", second.Credits)
	}
}

func TestCreateProfileValidates(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.CreateProfile(context.Background(), backend.UserProfile{Email: "x@example.com"}); err == nil {
		t.Error("expected validation error for missing id")
	}
}

func TestGetProfileNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetProfile(context.Background(), "ghost"); !errors.Is(err, backend.ErrProfileNotFound) {
		t.Errorf("GetProfile() error = %v", err)
	}
}

func TestUpdateProfileKeepsCredits(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.CreateProfile(ctx, backend.UserProfile{ID: "alice", Credits: 4})

	s.SetClock(func() time.Time { return time.UnixMilli(9000).UTC() })
	p, err := s.UpdateProfile(ctx, backend.UserProfile{ID: "alice", DisplayName: "Alice", Credits: 99})
	if err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}
	if p.Credits != 4 || p.DisplayName != "Alice" {
		t.Errorf("profile = %+v", p)
	}
	if p.LastUpdated != backend.FromMillis(9000) || p.CreatedAt != backend.FromMillis(5000) {
		t.Errorf("timestamps = %v / %v", p.CreatedAt, p.LastUpdated)
	}
}

func TestAdjustCredits(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.CreateProfile(ctx, backend.UserProfile{ID: "alice", Credits: 1})

	p, err := s.AdjustCredits(ctx, "alice", -1)
	if err != nil || p.Credits != 0 {
		t.Fatalf("AdjustCredits(-1) = %+v, %v", p, err)
	}
	if _, err := s.AdjustCredits(ctx, "alice", -1); !errors.Is(err, backend.ErrInsufficientCredits) {
		t.Errorf("overdraw error = %v", err)
	}
	if _, err := s.AdjustCredits(ctx, "ghost", 1); !errors.Is(err, backend.ErrProfileNotFound) {
		t.Errorf("missing profile error = %v", err)
	}
}

func TestAdjustCreditsConcurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.CreateProfile(ctx, backend.UserProfile{ID: "alice", Credits: 0})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.AdjustCredits(ctx, "alice", 1); err != nil {
				t.Errorf("AdjustCredits() error = %v", err)
			}
		}()
	}
	wg.Wait()

	p, _ := s.GetProfile(ctx, "alice")
	if p.Credits != 4 {
		t.Errorf("Credits = %d, want 4", p.Credits)
	}
}

func TestRegisteredAsBadgerRemote(t *testing.T) {
	r, err := backend.NewRemote(backend.RemoteConfig{Type: "badger"})
	if err != nil {
		t.Fatalf("NewRemote() error = %v", err)
	}
	defer r.Close()
	if _, ok := r.(*Store); !ok {
		t.Errorf("NewRemote() returned %T", r)
	}
}

func TestOpenSharedWaitsForRelease(t *testing.T) {
	dir := t.TempDir()
	first, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	go func() {
		time.Sleep(200 * time.Millisecond)
		first.Close()
	}()

	second, err := OpenShared(dir, 10*time.Second)
	if err != nil {
		t.Fatalf("OpenShared() error = %v", err)
	}
	second.Close()
}

func TestOpenSharedGivesUp(t *testing.T) {
	dir := t.TempDir()
	held, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer held.Close()

	if _, err := OpenShared(dir, 300*time.Millisecond); err == nil {
		t.Error("OpenShared() should fail while the directory stays locked")
	}
}
