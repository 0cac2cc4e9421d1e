package gmail_tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/mailreader/internal/gmail"
	"github.com/teemow/mailreader/internal/logging"
	"github.com/teemow/mailreader/internal/server"
	"github.com/teemow/mailreader/internal/tools/common"
)

// RegisterGmailTools registers the mailbox tools with the MCP server
func RegisterGmailTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	readEmailsTool := mcp.NewTool("gmail_read_emails",
		mcp.WithDescription("Read emails from the authorized Gmail inbox, optionally filtered by sender and unread status"),
		mcp.WithString("senderEmail",
			mcp.Description("Only return emails from this sender address"),
		),
		mcp.WithBoolean("onlyUnread",
			mcp.Description("Only return unread emails (default: false)"),
			mcp.DefaultBool(false),
		),
		mcp.WithNumber("maxResults",
			mcp.Description(fmt.Sprintf("Maximum number of emails to return (1-%d, default: %d)", gmail.MaxMaxResults, gmail.DefaultMaxResults)),
			mcp.Min(1),
			mcp.Max(float64(gmail.MaxMaxResults)),
			mcp.DefaultNumber(float64(gmail.DefaultMaxResults)),
		),
		mcp.WithBoolean("includeBody",
			mcp.Description("Include the plain text body of each email (default: true)"),
			mcp.DefaultBool(true),
		),
	)
	s.AddTool(readEmailsTool, common.InstrumentedToolHandler("gmail_read_emails", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleReadEmails(ctx, request, sc)
		}))

	testConnectionTool := mcp.NewTool("gmail_test_connection",
		mcp.WithDescription("Check whether the authorized Gmail account is reachable"),
	)
	s.AddTool(testConnectionTool, common.InstrumentedToolHandler("gmail_test_connection", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleTestConnection(ctx, request, sc)
		}))

	return nil
}

// parseFilter decodes and validates the gmail_read_emails arguments.
func parseFilter(args map[string]any) (gmail.EmailFilter, error) {
	onlyUnread, err := common.BoolArg(args, "onlyUnread", false)
	if err != nil {
		return gmail.EmailFilter{}, err
	}
	includeBody, err := common.BoolArg(args, "includeBody", true)
	if err != nil {
		return gmail.EmailFilter{}, err
	}
	maxResults, err := common.IntArg(args, "maxResults", gmail.DefaultMaxResults)
	if err != nil {
		return gmail.EmailFilter{}, err
	}

	filter := gmail.EmailFilter{
		SenderEmail: common.StringArg(args, "senderEmail"),
		OnlyUnread:  onlyUnread,
		MaxResults:  maxResults,
		IncludeBody: includeBody,
	}
	if err := filter.Validate(); err != nil {
		return gmail.EmailFilter{}, err
	}
	return filter, nil
}

func handleReadEmails(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	filter, err := parseFilter(request.GetArguments())
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid arguments: %v", err)), nil
	}

	mailbox, err := sc.Mailbox()
	if err != nil {
		return mcp.NewToolResultError(common.ErrorText("Error reading emails", err)), nil
	}

	messages, err := mailbox.GetEmails(ctx, filter)
	if err != nil {
		sc.RejectUnauthorized(err)
		return mcp.NewToolResultError(common.ErrorText("Error reading emails", err)), nil
	}

	data, err := json.MarshalIndent(messages, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to encode emails: %v", err)), nil
	}
	sc.Logger().Debug("emails read", logging.Tool("gmail_read_emails"), logging.Count(len(messages)))
	return mcp.NewToolResultText(string(data)), nil
}

type connectionStatus struct {
	Connected bool `json:"connected"`
}

func handleTestConnection(ctx context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	status := connectionStatus{}
	if mailbox, err := sc.Mailbox(); err == nil {
		status.Connected = mailbox.TestConnection(ctx)
	} else {
		sc.Logger().Debug("connection test without mailbox", logging.Err(err))
	}

	data, err := json.Marshal(status)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
