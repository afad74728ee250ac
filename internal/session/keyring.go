package session

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// DefaultService is the keyring service all session entries live under.
const DefaultService = "gosyncmovies"

const (
	currentUserKey = "current-user"
	tokenKeyPrefix = "token-"
)

func tokenKey(userID string) string {
	return tokenKeyPrefix + userID
}

// IsKeyringAvailable checks if the keyring is accessible.
func IsKeyringAvailable() bool {
	// A probe for a missing item yields ErrNotFound when the keyring works.
	_, err := keyring.Get(DefaultService+"-keyring-test", "test")
	return err == nil || errors.Is(err, keyring.ErrNotFound)
}

func keyringGet(service, key string) (string, bool, error) {
	v, err := keyring.Get(service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read %s from keyring: %w", key, err)
	}
	return v, true, nil
}

func keyringSet(service, key, value string) error {
	if err := keyring.Set(service, key, value); err != nil {
		return fmt.Errorf("failed to store %s in keyring: %w", key, err)
	}
	return nil
}

func keyringDelete(service, key string) error {
	err := keyring.Delete(service, key)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete %s from keyring: %w", key, err)
	}
	return nil
}
