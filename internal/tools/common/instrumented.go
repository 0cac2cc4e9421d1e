package common

import (
	"context"
	"errors"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/mailreader/internal/instrumentation"
	"github.com/teemow/mailreader/internal/logging"
	"github.com/teemow/mailreader/internal/server"
)

// InstrumentedToolHandler wraps a tool handler with a span, metrics and
// audit logging. An error-flagged result counts as a failure.
//
// Usage:
//
//	s.AddTool(myTool, common.InstrumentedToolHandler("my_tool", sc, handler))
func InstrumentedToolHandler(toolName string, sc *server.ServerContext, handler mcpserver.ToolHandlerFunc) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ctx, span := instrumentation.StartToolSpan(ctx, toolName)
		invocation := instrumentation.NewToolInvocation(toolName).WithSpanContext(ctx)

		result, err := handler(ctx, request)

		failure := err
		if failure == nil && result != nil && result.IsError {
			failure = errors.New(ResultText(result))
		}
		invocation.Complete(failure == nil, failure)
		if addr := sc.MailboxAddress(); addr != "" {
			invocation.WithMailbox(addr)
		}
		instrumentation.EndSpan(span, failure)

		duration := time.Since(invocation.StartTime)
		sc.Metrics().RecordToolInvocation(ctx, toolName, invocation.Status(), duration)
		sc.AuditLogger().LogToolInvocation(invocation)
		logging.WithTool(sc.Logger(), toolName).Debug("tool invocation completed",
			logging.Status(invocation.Status()),
			"duration", duration,
			logging.Err(failure))

		return result, err
	}
}

// ResultText returns the concatenated text content of result.
func ResultText(result *mcp.CallToolResult) string {
	if result == nil {
		return ""
	}
	var text string
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			text += tc.Text
		}
	}
	return text
}
