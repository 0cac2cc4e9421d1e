package common

import (
	"errors"
	"net/http"

	"github.com/teemow/mailreader/internal/gmail"
	"github.com/teemow/mailreader/internal/google"
)

// AuthGuidance tells the client how to authorize.
const AuthGuidance = "Gmail access is not authorized. Call google_get_auth_url, open the URL, " +
	"then pass the code to google_save_auth_code."

// NeedsAuthorization reports whether err is fixed by running the
// authorization flow: a missing or refused token, or a 401 from Gmail.
func NeedsAuthorization(err error) bool {
	var authErr *google.AuthError
	if errors.As(err, &authErr) {
		return true
	}
	var fetchErr *gmail.FetchError
	return errors.As(err, &fetchErr) && fetchErr.StatusCode() == http.StatusUnauthorized
}

// ErrorText formats err for a tool result as "<prefix>: <err>", followed by
// AuthGuidance when authorization would fix it.
func ErrorText(prefix string, err error) string {
	text := prefix + ": " + err.Error()
	if NeedsAuthorization(err) {
		text += "\n\n" + AuthGuidance
	}
	return text
}
