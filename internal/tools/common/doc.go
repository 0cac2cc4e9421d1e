// Package common provides the pieces shared by the MCP tool packages:
// instrumentation of tool handlers, argument decoding and the error text
// shown to the client when authorization is missing.
package common
