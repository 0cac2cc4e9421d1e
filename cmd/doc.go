// Package cmd implements the command-line interface for mailreader.
//
// This package provides the following commands:
//   - serve: Start the MCP server that exposes the Gmail tools
//   - auth: Authorize Gmail access interactively and save the token
//   - test-connection: Check that the saved token reaches the mailbox
//   - version: Display version information
//   - generate-docs: Generate markdown documentation for all MCP tools
//
// The serve command is the default command when no subcommand is specified.
package cmd
