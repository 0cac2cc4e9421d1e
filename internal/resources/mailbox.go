package resources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/mailreader/internal/server"
)

// ProfileURI identifies the mailbox profile resource.
const ProfileURI = "mailbox://profile"

// mailboxProfile is the JSON body of the profile resource.
type mailboxProfile struct {
	Authorization string `json:"authorization"`
	EmailAddress  string `json:"emailAddress,omitempty"`
	MessagesTotal int64  `json:"messagesTotal,omitempty"`
	ThreadsTotal  int64  `json:"threadsTotal,omitempty"`
}

// RegisterMailboxResources registers the mailbox resources with the MCP server
func RegisterMailboxResources(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	profileResource := mcp.NewResource(
		ProfileURI,
		"Mailbox Profile",
		mcp.WithResourceDescription("Authorization state, address and message totals of the authorized Gmail mailbox"),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(profileResource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleMailboxProfile(ctx, request, sc)
	})

	return nil
}

// handleMailboxProfile reports the authorization state alone until the
// mailbox is reachable.
func handleMailboxProfile(ctx context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext) ([]mcp.ResourceContents, error) {
	data := mailboxProfile{Authorization: sc.Authorizer().State().String()}

	if mailbox, err := sc.Mailbox(); err == nil {
		profile, err := mailbox.Profile(ctx)
		if err != nil {
			sc.RejectUnauthorized(err)
			return nil, fmt.Errorf("failed to get mailbox profile: %w", err)
		}
		data.EmailAddress = profile.EmailAddress
		data.MessagesTotal = profile.MessagesTotal
		data.ThreadsTotal = profile.ThreadsTotal
		sc.SetMailboxAddress(profile.EmailAddress)
	}

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal profile data: %w", err)
	}

	return []mcp.ResourceContents{
		&mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "application/json",
			Text:     string(jsonData),
		},
	}, nil
}
