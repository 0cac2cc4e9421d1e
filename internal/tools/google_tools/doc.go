// Package google_tools provides MCP tools for authorizing Gmail access.
//
// The OAuth flow:
//  1. A stored token is picked up automatically when present
//  2. Otherwise call google_get_auth_url to get the consent URL
//  3. The user visits the URL and grants read-only mail access
//  4. Call google_save_auth_code with the code Google displays
//
// The saved token is refreshed as needed and written back to the token file.
package google_tools
