// Package resources provides MCP resources for the authorized mailbox.
// Resources are read-only data sources that MCP clients can fetch without
// calling a tool.
package resources
