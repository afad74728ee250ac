package utils

import (
	"fmt"
	"strings"
)

// ErrorWithSuggestion wraps an error with a helpful suggestion for the user
type ErrorWithSuggestion struct {
	Err        error
	Suggestion string
}

// Error implements the error interface
func (e *ErrorWithSuggestion) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%v\n\nSuggestion: %s", e.Err, e.Suggestion)
	}
	return e.Err.Error()
}

// Unwrap allows errors.Is and errors.As to work
func (e *ErrorWithSuggestion) Unwrap() error {
	return e.Err
}

// ErrMovieNotFound creates an error when a movie id is not in the local library.
// cause stays reachable through errors.Is.
func ErrMovieNotFound(id int64, cause error) error {
	err := fmt.Errorf("movie %d is not in your library", id)
	if cause != nil {
		err = fmt.Errorf("movie %d is not in your library: %w", id, cause)
	}
	return &ErrorWithSuggestion{
		Err:        err,
		Suggestion: "Add it first with 'gosyncmovies movie add <id> <title>' or run 'gosyncmovies sync pull'",
	}
}

// ErrNotSignedIn creates an error when an operation needs a session
func ErrNotSignedIn() error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("no user is signed in"),
		Suggestion: "Sign in with 'gosyncmovies session signin <user-id>'",
	}
}

// ErrRemoteOffline creates an error when the remote store cannot be reached
func ErrRemoteOffline(remote, reason string) error {
	suggestion := "Check your internet connection and try again"
	if strings.Contains(reason, "no such host") {
		suggestion = "Check your DNS settings and internet connection"
	} else if strings.Contains(reason, "refused") {
		suggestion = "Check if the document server is running and accessible"
	} else if strings.Contains(reason, "timeout") {
		suggestion = "The server may be slow or unreachable. Try again later"
	} else if strings.Contains(reason, "circuit breaker") {
		suggestion = "Too many recent failures; the client is backing off. Try again in a few minutes"
	}

	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("remote '%s' is offline: %s", remote, reason),
		Suggestion: suggestion,
	}
}

// ErrInvalidRating creates an error for out-of-range ratings
func ErrInvalidRating(input string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("invalid rating %q", input),
		Suggestion: "Rating must be a number between 0 and 5 (e.g. 3.5), or 'none' to clear it",
	}
}

// ErrInvalidFlag creates an error for unknown flag names
func ErrInvalidFlag(flag string, valid []string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("invalid flag: %s", flag),
		Suggestion: fmt.Sprintf("Valid flags: %s", strings.Join(valid, ", ")),
	}
}

// ErrInsufficientCredits creates an error when a recommendation cannot be paid for
func ErrInsufficientCredits(balance int) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("not enough credits (balance: %d)", balance),
		Suggestion: "Grant credits with 'gosyncmovies credits grant <n>'",
	}
}

// ErrConfigFileNotFound creates an error when config file is not found
func ErrConfigFileNotFound(path string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("config file not found at %s", path),
		Suggestion: "Run gosyncmovies once to create a default configuration file",
	}
}

// ErrInvalidConfig creates an error for invalid configuration
func ErrInvalidConfig(field string, reason string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("invalid configuration for '%s': %s", field, reason),
		Suggestion: fmt.Sprintf("Check ~/.config/gosyncmovies/config.yaml and fix the '%s' field", field),
	}
}

// WrapWithSuggestion wraps an existing error with a suggestion
func WrapWithSuggestion(err error, suggestion string) error {
	if err == nil {
		return nil
	}
	return &ErrorWithSuggestion{
		Err:        err,
		Suggestion: suggestion,
	}
}
