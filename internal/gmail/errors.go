package gmail

import (
	"errors"

	"google.golang.org/api/googleapi"
)

// FetchError reports a failed retrieval step. Op is "search", "get_profile"
// or "get_emails".
type FetchError struct {
	Op  string
	Err error
}

func (e *FetchError) Error() string {
	return "failed to " + e.Op + ": " + e.Err.Error()
}

func (e *FetchError) Unwrap() error { return e.Err }

// StatusCode returns the HTTP status of the underlying Gmail API error, or 0.
func (e *FetchError) StatusCode() int {
	var apiErr *googleapi.Error
	if errors.As(e.Err, &apiErr) {
		return apiErr.Code
	}
	return 0
}
