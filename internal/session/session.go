// Package session tracks which user is signed in on this device.
//
// The signed-in user id and their API token are kept in the OS keyring.
// GOSYNCMOVIES_USER_ID and GOSYNCMOVIES_TOKEN take precedence, which is how
// headless workers and CI run without a keyring.
package session

import (
	"fmt"
	"strings"
)

// Source indicates where the current session was found.
type Source string

const (
	SourceKeyring Source = "keyring"
	SourceEnv     Source = "env"
	SourceNone    Source = "none"
)

// Manager reads and writes the device session.
type Manager struct {
	service string
}

// NewManager creates a session manager using the given keyring service.
// An empty service uses DefaultService.
func NewManager(service string) *Manager {
	if service == "" {
		service = DefaultService
	}
	return &Manager{service: service}
}

// SignIn records userID (and an optional token) as the current session.
func (m *Manager) SignIn(userID, token string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("user id cannot be empty")
	}
	if strings.ContainsAny(userID, "/\\") {
		return fmt.Errorf("user id %q cannot contain path separators", userID)
	}
	if err := keyringSet(m.service, currentUserKey, userID); err != nil {
		return err
	}
	if token == "" {
		return keyringDelete(m.service, tokenKey(userID))
	}
	return keyringSet(m.service, tokenKey(userID), token)
}

// SignOut forgets the keyring session. Signing out twice is not an error.
func (m *Manager) SignOut() error {
	userID, ok, err := keyringGet(m.service, currentUserKey)
	if err != nil {
		return err
	}
	if ok {
		if err := keyringDelete(m.service, tokenKey(userID)); err != nil {
			return err
		}
	}
	return keyringDelete(m.service, currentUserKey)
}

// CurrentUserID returns the signed-in user. Keyring errors are treated as signed out.
func (m *Manager) CurrentUserID() (string, bool) {
	userID, _ := m.Resolve()
	return userID, userID != ""
}

// Resolve returns the current user id and where it came from.
func (m *Manager) Resolve() (string, Source) {
	if id := envUserID(); id != "" {
		return id, SourceEnv
	}
	id, ok, err := keyringGet(m.service, currentUserKey)
	if err != nil || !ok {
		return "", SourceNone
	}
	return id, SourceKeyring
}

// Token returns the API token for the current user, or "".
func (m *Manager) Token() string {
	if t := envToken(); t != "" {
		return t
	}
	userID, ok := m.CurrentUserID()
	if !ok {
		return ""
	}
	t, _, err := keyringGet(m.service, tokenKey(userID))
	if err != nil {
		return ""
	}
	return t
}
