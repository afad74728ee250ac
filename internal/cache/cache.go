package cache

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"

	"gosyncmovies/backend"
)

// CachedProfile is the last profile fetched from the remote
type CachedProfile struct {
	Profile   backend.UserProfile `json:"profile"`
	Timestamp int64               `json:"timestamp"`
}

// FetchedAt returns when the profile was cached
func (c *CachedProfile) FetchedAt() time.Time {
	return time.Unix(c.Timestamp, 0)
}

// GetCacheDir returns the XDG-compliant cache directory path
func GetCacheDir() (string, error) {
	cacheDir := os.Getenv("XDG_CACHE_HOME")
	if cacheDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		cacheDir = filepath.Join(home, ".cache")
	}
	cacheDir = filepath.Join(cacheDir, "gosyncmovies")
	return cacheDir, os.MkdirAll(cacheDir, 0755)
}

// GetProfileCacheFile returns the cache file for a user's profile
func GetProfileCacheFile(userID string) (string, error) {
	cacheDir, err := GetCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cacheDir, "profile-"+filepath.Base(userID)+".json"), nil
}

// LoadProfileFromCache loads a user's profile from the cache file
func LoadProfileFromCache(userID string) (*CachedProfile, error) {
	cacheFile, err := GetProfileCacheFile(userID)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(cacheFile)
	if err != nil {
		return nil, err
	}

	var cached CachedProfile
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, err
	}
	return &cached, nil
}

// SaveProfileToCache saves a profile to the cache file with timestamp
func SaveProfileToCache(profile backend.UserProfile) error {
	cacheFile, err := GetProfileCacheFile(profile.ID)
	if err != nil {
		return err
	}

	cached := CachedProfile{
		Profile:   profile,
		Timestamp: time.Now().Unix(),
	}

	data, err := json.MarshalIndent(cached, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(cacheFile, data, 0600)
}

// ClearProfileCache removes a user's cached profile (used on sign-out)
func ClearProfileCache(userID string) error {
	cacheFile, err := GetProfileCacheFile(userID)
	if err != nil {
		return err
	}
	if err := os.Remove(cacheFile); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// LoadProfileWithFallback fetches the profile from the remote and caches it.
// When the remote is unreachable the cached copy is returned with stale set.
func LoadProfileWithFallback(ctx context.Context, profiles backend.ProfileStore, userID string) (profile *backend.UserProfile, stale bool, err error) {
	profile, err = RefreshAndCacheProfile(ctx, profiles, userID)
	if err == nil {
		return profile, false, nil
	}
	if !backend.IsNetworkError(err) {
		return nil, false, err
	}

	cached, cacheErr := LoadProfileFromCache(userID)
	if cacheErr != nil {
		return nil, false, err
	}
	return &cached.Profile, true, nil
}

// RefreshAndCacheProfile force-fetches the profile from the remote and updates the cache
func RefreshAndCacheProfile(ctx context.Context, profiles backend.ProfileStore, userID string) (*backend.UserProfile, error) {
	profile, err := profiles.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	_ = SaveProfileToCache(*profile)
	return profile, nil
}
