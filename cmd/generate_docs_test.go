package cmd

import (
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetCategoryFromToolName(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{name: "gmail_read_emails", want: "Gmail Tools"},
		{name: "google_get_auth_url", want: "Authorization Tools"},
		{name: "misc", want: "Other"},
		{name: "", want: "Other"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, getCategoryFromToolName(tt.name))
		})
	}
}

func TestGenerateToolsMarkdown(t *testing.T) {
	mcpSrv, err := newDocsServer()
	require.NoError(t, err)

	tools := make([]mcp.Tool, 0)
	for _, st := range mcpSrv.ListTools() {
		tools = append(tools, st.Tool)
	}
	markdown := generateToolsMarkdown(tools)

	assert.True(t, strings.HasPrefix(markdown, "# MCP Tools Reference"))
	assert.Contains(t, markdown, "- [Authorization Tools](#authorization-tools)")
	assert.Contains(t, markdown, "### gmail_read_emails")
	assert.Contains(t, markdown, "- `maxResults` (number, optional): ")
	assert.Contains(t, markdown, "- `authCode` (string, required): ")
	assert.Less(t, strings.Index(markdown, "## Authorization Tools"), strings.Index(markdown, "## Gmail Tools"))
}
