package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors shared by the login and manifest packages.
var (
	// ErrInvalidCredentials is reported when the backend answers a login
	// request with logged_in=false.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrTransport wraps every network-level failure.
	ErrTransport = errors.New("transport failure")

	// ErrUnknownWikibase is returned by lookups for names the registry does not hold.
	ErrUnknownWikibase = errors.New("unknown wikibase")

	// ErrInvalidManifest marks a manifest document that failed validation.
	ErrInvalidManifest = errors.New("invalid manifest")

	// ErrLogoutNotConfirmed is returned when the backend still reports a
	// session after a logout request.
	ErrLogoutNotConfirmed = errors.New("logout not confirmed")

	// ErrCancelled is returned when the user dismisses a dialog.
	ErrCancelled = errors.New("cancelled by user")
)

// UserError represents an error that should be shown to the user with helpful context
type UserError struct {
	Message    string
	Suggestion string
	Details    string
	Err        error
}

func (e UserError) Error() string {
	var parts []string

	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}

	if e.Details != "" {
		parts = append(parts, "\n  Details: "+e.Details)
	}

	if e.Suggestion != "" {
		parts = append(parts, "\n  💡 Try: "+e.Suggestion)
	}

	return strings.Join(parts, "")
}

func (e UserError) Unwrap() error {
	return e.Err
}

// ConfigError represents a configuration error with helpful context
type ConfigError struct {
	Field      string
	Value      interface{}
	Message    string
	Suggestion string
}

func (e ConfigError) Error() string {
	msg := "Configuration error"
	if e.Field != "" {
		msg += fmt.Sprintf(" in field '%s'", e.Field)
	}
	if e.Value != nil {
		msg += fmt.Sprintf(" (value: %v)", e.Value)
	}
	msg += ": " + e.Message

	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}

	return msg
}

// TransportError records which transport failed against which URL.
type TransportError struct {
	Transport string
	URL       string
	Status    int
	Err       error
}

func (e *TransportError) Error() string {
	msg := fmt.Sprintf("%s request to %s failed", e.Transport, e.URL)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is makes every TransportError match ErrTransport.
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	retryablePatterns := []string{
		"timeout",
		"temporary failure",
		"connection reset",
		"broken pipe",
		"too many requests",
	}

	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// SimplifyError simplifies complex error messages for users
func SimplifyError(err error) error {
	if err == nil {
		return nil
	}

	var userErr UserError
	if errors.As(err, &userErr) {
		return err
	}
	var cfgErr ConfigError
	if errors.As(err, &cfgErr) {
		return err
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return UserError{
			Message:    "Login rejected by the backend",
			Suggestion: "Check the username/password or the owner-only consumer tokens and run 'wbctl login' again",
			Err:        err,
		}
	case errors.Is(err, ErrUnknownWikibase):
		return UserError{
			Message:    err.Error(),
			Suggestion: "Run 'wbctl wikibase list' to see registered wikibases",
			Err:        err,
		}
	case errors.Is(err, ErrInvalidManifest):
		return UserError{
			Message:    "The manifest document is not valid",
			Details:    err.Error(),
			Suggestion: "Check that the URL serves a wikibase manifest (version 1.x)",
			Err:        err,
		}
	case errors.Is(err, ErrTransport):
		suggestion := "Check that the backend is running and reachable"
		if IsRetryable(err) {
			suggestion = "The operation timed out. Check your network connection and try again"
		}
		return UserError{
			Message:    "Unable to reach the service",
			Details:    err.Error(),
			Suggestion: suggestion,
			Err:        err,
		}
	}

	// Unwrap to get the root cause
	rootErr := err
	for {
		unwrapped := errors.Unwrap(rootErr)
		if unwrapped == nil {
			break
		}
		rootErr = unwrapped
	}

	errStr := rootErr.Error()

	if strings.Contains(errStr, "yaml:") {
		return ConfigError{
			Message:    "Invalid YAML format",
			Suggestion: "Check for indentation errors and missing quotes",
		}
	}

	if strings.Contains(errStr, "permission denied") {
		return UserError{
			Message:    "Permission denied",
			Suggestion: "Check file permissions or run with appropriate privileges",
			Err:        err,
		}
	}

	return err
}
