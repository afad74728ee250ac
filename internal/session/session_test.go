package session

import (
	"testing"

	"github.com/zalando/go-keyring"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	keyring.MockInit()
	t.Setenv(EnvUserID, "")
	t.Setenv(EnvToken, "")
	return NewManager("gosyncmovies-test")
}

func TestSignInAndOut(t *testing.T) {
	m := newTestManager(t)

	if _, ok := m.CurrentUserID(); ok {
		t.Fatal("expected no session before sign-in")
	}

	if err := m.SignIn("alice", "tok-1"); err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	id, src := m.Resolve()
	if id != "alice" || src != SourceKeyring {
		t.Errorf("Resolve() = %q, %q", id, src)
	}
	if got := m.Token(); got != "tok-1" {
		t.Errorf("Token() = %q, want tok-1", got)
	}

	if err := m.SignOut(); err != nil {
		t.Fatalf("SignOut() error = %v", err)
	}
	if _, ok := m.CurrentUserID(); ok {
		t.Error("session survived sign-out")
	}
	if got := m.Token(); got != "" {
		t.Errorf("Token() after sign-out = %q", got)
	}
	if err := m.SignOut(); err != nil {
		t.Errorf("second SignOut() error = %v", err)
	}
}

func TestSignInValidation(t *testing.T) {
	m := newTestManager(t)
	if err := m.SignIn("  ", ""); err == nil {
		t.Error("expected error for blank user id")
	}
	if err := m.SignIn("alice/movies/1", ""); err == nil {
		t.Error("expected error for user id with a path separator")
	}
	if _, ok := m.CurrentUserID(); ok {
		t.Error("rejected sign-in must not start a session")
	}
}

func TestSignInWithoutTokenDropsOldToken(t *testing.T) {
	m := newTestManager(t)
	m.SignIn("bob", "old")
	m.SignIn("bob", "")
	if got := m.Token(); got != "" {
		t.Errorf("Token() = %q, want empty", got)
	}
}

func TestEnvironmentOverridesKeyring(t *testing.T) {
	m := newTestManager(t)
	m.SignIn("alice", "tok-1")

	t.Setenv(EnvUserID, "ci-user")
	t.Setenv(EnvToken, "ci-token")

	id, src := m.Resolve()
	if id != "ci-user" || src != SourceEnv {
		t.Errorf("Resolve() = %q, %q", id, src)
	}
	if got := m.Token(); got != "ci-token" {
		t.Errorf("Token() = %q", got)
	}
}

func TestDefaultService(t *testing.T) {
	if m := NewManager(""); m.service != DefaultService {
		t.Errorf("service = %q", m.service)
	}
}
