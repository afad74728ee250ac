package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"gosyncmovies/backend"
)

// flakyProfiles serves a fixed profile or a fixed error
type flakyProfiles struct {
	profile *backend.UserProfile
	err     error
}

func (f *flakyProfiles) GetProfile(ctx context.Context, userID string) (*backend.UserProfile, error) {
	if f.err != nil {
		return nil, f.err
	}
	p := *f.profile
	return &p, nil
}

func (f *flakyProfiles) CreateProfile(ctx context.Context, p backend.UserProfile) (*backend.UserProfile, error) {
	return &p, nil
}

func (f *flakyProfiles) AdjustCredits(ctx context.Context, userID string, delta int) (*backend.UserProfile, error) {
	return nil, errors.New("not implemented")
}

func TestGetCacheDirUsesXDG(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("XDG_CACHE_HOME", tmp)

	dir, err := GetCacheDir()
	if err != nil {
		t.Fatalf("GetCacheDir() error = %v", err)
	}
	if want := filepath.Join(tmp, "gosyncmovies"); dir != want {
		t.Errorf("GetCacheDir() = %q, want %q", dir, want)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("cache dir was not created: %v", err)
	}
}

func TestSaveAndLoadProfile(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())

	profile := backend.UserProfile{ID: "alice", Email: "alice@example.com", Credits: 7}
	if err := SaveProfileToCache(profile); err != nil {
		t.Fatalf("SaveProfileToCache() error = %v", err)
	}

	cached, err := LoadProfileFromCache("alice")
	if err != nil {
		t.Fatalf("LoadProfileFromCache() error = %v", err)
	}
	if cached.Profile.Credits != 7 || cached.Profile.Email != "alice@example.com" {
		t.Errorf("cached profile = %+v", cached.Profile)
	}
	if cached.FetchedAt().IsZero() {
		t.Error("timestamp not recorded")
	}

	if err := ClearProfileCache("alice"); err != nil {
		t.Fatalf("ClearProfileCache() error = %v", err)
	}
	if _, err := LoadProfileFromCache("alice"); !os.IsNotExist(err) {
		t.Errorf("profile still cached after clear, err = %v", err)
	}
	if err := ClearProfileCache("alice"); err != nil {
		t.Errorf("clearing a missing cache should succeed, got %v", err)
	}
}

func TestCacheFileStaysInCacheDir(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("XDG_CACHE_HOME", tmp)

	path, err := GetProfileCacheFile("../../etc/passwd")
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Dir(path) != filepath.Join(tmp, "gosyncmovies") {
		t.Errorf("cache file escaped the cache dir: %s", path)
	}
}

func TestLoadProfileWithFallback(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	ctx := context.Background()
	remote := &flakyProfiles{profile: &backend.UserProfile{ID: "alice", Credits: 3}}

	p, stale, err := LoadProfileWithFallback(ctx, remote, "alice")
	if err != nil || stale || p.Credits != 3 {
		t.Fatalf("online load = %+v, stale=%v, err=%v", p, stale, err)
	}

	remote.err = backend.NewNetworkError("get profile", errors.New("connection refused"))
	p, stale, err = LoadProfileWithFallback(ctx, remote, "alice")
	if err != nil {
		t.Fatalf("offline load error = %v", err)
	}
	if !stale || p.Credits != 3 {
		t.Errorf("offline load = %+v, stale=%v; want cached copy", p, stale)
	}

	// Non-network failures are not masked by the cache.
	remote.err = backend.ErrProfileNotFound
	if _, _, err := LoadProfileWithFallback(ctx, remote, "alice"); !errors.Is(err, backend.ErrProfileNotFound) {
		t.Errorf("error = %v, want ErrProfileNotFound", err)
	}
}

func TestLoadProfileWithFallbackNoCache(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	remote := &flakyProfiles{err: backend.NewNetworkError("get profile", errors.New("timeout"))}

	if _, _, err := LoadProfileWithFallback(context.Background(), remote, "bob"); !backend.IsNetworkError(err) {
		t.Errorf("error = %v, want the network error", err)
	}
}
