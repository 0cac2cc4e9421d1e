// Package google owns the Google OAuth2 credential lifecycle of mailreader.
//
// Credentials are loaded from a client secrets file ("web" or "installed"
// form). The access/refresh token pair is persisted by a TokenStore, usually a
// FileTokenStore that replaces the token file atomically.
//
// The Authorizer walks the states
//
//	Unauthenticated → AwaitingUserConsent → Authenticated
//
// and hands out an AuthenticatedContext whose HTTP client refreshes expired
// access tokens transparently. Refreshes are serialized and every new token is
// written back to the store.
//
// The authorization code is supplied by a CodeProvider: a console prompt in
// the CLI, a pair of MCP tools in the server, or a fixed value in tests.
package google
