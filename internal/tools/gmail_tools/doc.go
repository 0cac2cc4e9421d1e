// Package gmail_tools provides the MCP tools that read the authorized mailbox.
//
// gmail_read_emails searches with a sender, unread and size filter and returns
// the matching messages as JSON. gmail_test_connection probes the profile
// endpoint.
package gmail_tools
