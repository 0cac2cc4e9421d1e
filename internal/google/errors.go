package google

import (
	"errors"
	"fmt"
)

// ErrAuthorizationRequired is returned (wrapped in an *AuthError) when an
// authenticated context is requested before consent has been completed.
var ErrAuthorizationRequired = errors.New("authorization required")

// ErrAlreadyAuthorized is returned when a new authorization code is submitted
// after the Authorizer reached the Authenticated state.
var ErrAlreadyAuthorized = errors.New("already authorized")

// ConfigError reports a missing or malformed client credentials file.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid client credentials %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// AuthError reports a failed authorization step: a missing token, a rejected
// authorization code or a failed refresh. It is recovered from by running the
// authorization flow again.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	switch {
	case e.Reason == "" && e.Err != nil:
		return e.Err.Error()
	case e.Err == nil:
		return e.Reason
	default:
		return e.Reason + ": " + e.Err.Error()
	}
}

func (e *AuthError) Unwrap() error { return e.Err }
