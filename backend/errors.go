package backend

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNoSession means no user is signed in. Sync treats it as a no-op, not a failure.
	ErrNoSession = errors.New("no signed-in user")

	// ErrMovieNotFound is returned when a local mutation targets a missing row.
	ErrMovieNotFound = errors.New("movie not found")

	// ErrProfileNotFound is returned when the remote has no profile for the user.
	ErrProfileNotFound = errors.New("profile not found")

	// ErrInsufficientCredits is returned when a credit debit would go negative.
	ErrInsufficientCredits = errors.New("insufficient credits")
)

// RemoteError represents a failed call against the remote document store.
// It is always returned as a value; remote implementations never panic or retry.
type RemoteError struct {
	Operation  string // e.g., "FetchAll", "Put", "Delete"
	StatusCode int    // HTTP status code (0 if the call never got a response)
	Message    string // Human-readable error message
	UserID     string // Optional: user whose collection was addressed
	MovieID    int64  // Optional: affected movie id
	Body       string // Optional: response body for debugging
	Network    bool   // true for connectivity failures
	Err        error  // Optional: underlying error
}

// Error implements the error interface
func (e *RemoteError) Error() string {
	target := ""
	if e.MovieID != 0 {
		target = fmt.Sprintf(" (movie %d)", e.MovieID)
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s%s failed with status %d: %s", e.Operation, target, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s%s failed: %s", e.Operation, target, e.Message)
}

// Unwrap returns the underlying error for error wrapping
func (e *RemoteError) Unwrap() error {
	return e.Err
}

// IsNotFound returns true if the error is a 404 Not Found
func (e *RemoteError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// IsUnauthorized returns true if the error is a 401 Unauthorized or 403 Forbidden
func (e *RemoteError) IsUnauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// IsConflict returns true if the error is a 409 Conflict
func (e *RemoteError) IsConflict() bool {
	return e.StatusCode == http.StatusConflict
}

// IsServerError returns true if the error is a 5xx server error
func (e *RemoteError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// IsNetwork returns true for connectivity failures and server-side outages.
func (e *RemoteError) IsNetwork() bool {
	return e.Network || e.IsServerError()
}

// NewRemoteError creates a new RemoteError
func NewRemoteError(operation string, statusCode int, message string) *RemoteError {
	return &RemoteError{
		Operation:  operation,
		StatusCode: statusCode,
		Message:    message,
	}
}

// NewNetworkError wraps a connectivity failure.
func NewNetworkError(operation string, err error) *RemoteError {
	return &RemoteError{
		Operation: operation,
		Message:   err.Error(),
		Network:   true,
		Err:       err,
	}
}

// WithMovieID adds the movie id to the error for context
func (e *RemoteError) WithMovieID(id int64) *RemoteError {
	e.MovieID = id
	return e
}

// WithUserID adds the user id to the error for context
func (e *RemoteError) WithUserID(uid string) *RemoteError {
	e.UserID = uid
	return e
}

// WithBody adds the response body to the error for debugging
func (e *RemoteError) WithBody(body string) *RemoteError {
	e.Body = body
	return e
}

// WithError wraps an underlying error
func (e *RemoteError) WithError(err error) *RemoteError {
	e.Err = err
	return e
}

// IsRemoteNotFound reports whether err is a RemoteError for a missing document.
func IsRemoteNotFound(err error) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.IsNotFound()
}

// IsNetworkError reports whether err is a connectivity-class RemoteError.
func IsNetworkError(err error) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.IsNetwork()
}

// StoreError represents a local storage failure. These are never swallowed by sync.
type StoreError struct {
	Op      string
	MovieID int64
	Err     error
}

func (e *StoreError) Error() string {
	if e.MovieID != 0 {
		return fmt.Sprintf("local store %s (movie %d): %v", e.Op, e.MovieID, e.Err)
	}
	return fmt.Sprintf("local store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// IsStoreError reports whether err originated in the local store.
func IsStoreError(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}
