package google_tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/mailreader/internal/google"
	"github.com/teemow/mailreader/internal/logging"
	"github.com/teemow/mailreader/internal/server"
	"github.com/teemow/mailreader/internal/tools/common"
)

// RegisterGoogleTools registers the authorization tools with the MCP server
func RegisterGoogleTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	getAuthURLTool := mcp.NewTool("google_get_auth_url",
		mcp.WithDescription("Get the OAuth URL to authorize read-only Gmail access"),
	)
	s.AddTool(getAuthURLTool, common.InstrumentedToolHandler("google_get_auth_url", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleGetAuthURL(ctx, request, sc)
		}))

	saveAuthCodeTool := mcp.NewTool("google_save_auth_code",
		mcp.WithDescription("Save the OAuth authorization code to complete Gmail authorization"),
		mcp.WithString("authCode",
			mcp.Required(),
			mcp.Description("The authorization code from Google OAuth"),
		),
	)
	s.AddTool(saveAuthCodeTool, common.InstrumentedToolHandler("google_save_auth_code", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleSaveAuthCode(ctx, request, sc)
		}))

	return nil
}

const alreadyAuthorizedText = "Gmail access is already authorized. The Gmail tools are ready to use."

func handleGetAuthURL(_ context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	authURL, err := sc.Authorizer().Begin()
	if errors.Is(err, google.ErrAlreadyAuthorized) {
		return mcp.NewToolResultText(alreadyAuthorizedText), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to start authorization: %v", err)), nil
	}

	result := fmt.Sprintf(`To authorize read-only Gmail access:

1. Visit this URL in your browser:
   %s

2. Sign in with your Google account
3. Grant access to read your mail
4. Copy the authorization code

5. Call the google_save_auth_code tool with the code to complete authorization`, authURL)

	return mcp.NewToolResultText(result), nil
}

func handleSaveAuthCode(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	authCode := common.StringArg(request.GetArguments(), "authCode")
	if authCode == "" {
		return mcp.NewToolResultError("authCode is required"), nil
	}

	err := sc.Authorizer().Complete(ctx, authCode)
	if errors.Is(err, google.ErrAlreadyAuthorized) {
		return mcp.NewToolResultText(alreadyAuthorizedText), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to save authorization code: %v", err)), nil
	}

	if address := lookupMailboxAddress(ctx, sc); address != "" {
		sc.SetMailboxAddress(address)
		sc.Logger().Info("mailbox authorized",
			"domain", logging.ExtractDomain(address),
			logging.UserHash(address))
		return mcp.NewToolResultText(fmt.Sprintf("✅ Authorization successful for %s! The token has been saved and the Gmail tools are ready to use.", address)), nil
	}
	return mcp.NewToolResultText("✅ Authorization successful! The token has been saved and the Gmail tools are ready to use."), nil
}

// lookupMailboxAddress returns the authorized address, or "" when the
// profile cannot be read. Authorization has succeeded either way.
func lookupMailboxAddress(ctx context.Context, sc *server.ServerContext) string {
	mailbox, err := sc.Mailbox()
	if err != nil {
		sc.Logger().Warn("mailbox unavailable after authorization", logging.Err(err))
		return ""
	}
	profile, err := mailbox.Profile(ctx)
	if err != nil {
		sc.Logger().Warn("profile lookup after authorization failed", logging.Err(err))
		return ""
	}
	return profile.EmailAddress
}
