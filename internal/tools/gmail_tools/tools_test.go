package gmail_tools

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"

	"github.com/teemow/mailreader/internal/gmail"
	"github.com/teemow/mailreader/internal/google"
	"github.com/teemow/mailreader/internal/instrumentation"
	"github.com/teemow/mailreader/internal/logging"
	"github.com/teemow/mailreader/internal/server"
	"github.com/teemow/mailreader/internal/tools/common"
)

// fakeMailbox serves a fixed set of messages.
type fakeMailbox struct {
	messages   map[string]*gmailapi.Message
	order      []string
	listErr    error
	profileErr error

	mu       sync.Mutex
	gotQuery string
	gotMax   int64
}

func newFakeMailbox() *fakeMailbox {
	body := base64.URLEncoding.EncodeToString([]byte("hello"))
	return &fakeMailbox{
		order: []string{"m1", "m2"},
		messages: map[string]*gmailapi.Message{
			"m1": {
				Id:       "m1",
				ThreadId: "t1",
				LabelIds: []string{"INBOX", "UNREAD"},
				Snippet:  "hello",
				Payload: &gmailapi.MessagePart{
					MimeType: "text/plain",
					Headers: []*gmailapi.MessagePartHeader{
						{Name: "Subject", Value: "Greetings"},
						{Name: "From", Value: "alice@example.com"},
						{Name: "To", Value: "me@example.com"},
					},
					Body: &gmailapi.MessagePartBody{Data: body},
				},
			},
			"m2": {
				Id:       "m2",
				ThreadId: "t2",
				LabelIds: []string{"INBOX"},
				Payload:  &gmailapi.MessagePart{MimeType: "text/plain", Body: &gmailapi.MessagePartBody{Data: body}},
			},
		},
	}
}

func (f *fakeMailbox) ListMessageIDs(_ context.Context, query string, maxResults int64) ([]string, error) {
	f.mu.Lock()
	f.gotQuery, f.gotMax = query, maxResults
	f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.order, nil
}

func (f *fakeMailbox) GetMessage(_ context.Context, id string) (*gmailapi.Message, error) {
	if m, ok := f.messages[id]; ok {
		return m, nil
	}
	return nil, &googleapi.Error{Code: http.StatusNotFound}
}

func (f *fakeMailbox) GetProfile(context.Context) (*gmailapi.Profile, error) {
	if f.profileErr != nil {
		return nil, f.profileErr
	}
	return &gmailapi.Profile{EmailAddress: "me@example.com", MessagesTotal: 2}, nil
}

func newTestServerContext(t *testing.T, authorized bool, api gmail.API) *server.ServerContext {
	t.Helper()
	store := google.NewFileTokenStore(filepath.Join(t.TempDir(), "token.json"), logging.Discard())
	if authorized {
		require.NoError(t, store.SaveToken(&google.TokenSet{
			AccessToken: "access",
			TokenType:   "Bearer",
			Expiry:      time.Now().Add(time.Hour),
		}))
	}
	creds := google.Credentials{ClientID: "client", ClientSecret: "secret", RedirectURI: "http://localhost"}
	authorizer := google.NewAuthorizer(creds, store, google.WithLogger(logging.Discard()))
	authorizer.Resume()

	sc, err := server.NewServerContext(context.Background(), server.Config{
		Authorizer: authorizer,
		Logger:     logging.Discard(),
		APIFactory: func(context.Context, *http.Client, *instrumentation.Metrics) (gmail.API, error) {
			return api, nil
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sc.Shutdown() })
	return sc
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func TestRegisterGmailTools(t *testing.T) {
	sc := newTestServerContext(t, false, newFakeMailbox())
	s := mcpserver.NewMCPServer("test", "0.0.0", mcpserver.WithToolCapabilities(true))

	require.NoError(t, RegisterGmailTools(s, sc))

	tools := s.ListTools()
	require.Contains(t, tools, "gmail_read_emails")
	require.Contains(t, tools, "gmail_test_connection")

	schema := tools["gmail_read_emails"].Tool.InputSchema
	for _, name := range []string{"senderEmail", "onlyUnread", "maxResults", "includeBody"} {
		assert.Contains(t, schema.Properties, name)
	}
	assert.Empty(t, schema.Required)
}

func TestParseFilter(t *testing.T) {
	tests := []struct {
		name    string
		args    map[string]any
		want    gmail.EmailFilter
		wantErr bool
	}{
		{
			name: "defaults",
			args: map[string]any{},
			want: gmail.EmailFilter{MaxResults: 10, IncludeBody: true},
		},
		{
			name: "all set",
			args: map[string]any{"senderEmail": "alice@example.com", "onlyUnread": true, "maxResults": 5.0, "includeBody": false},
			want: gmail.EmailFilter{SenderEmail: "alice@example.com", OnlyUnread: true, MaxResults: 5},
		},
		{name: "invalid sender", args: map[string]any{"senderEmail": "not an address"}, wantErr: true},
		{name: "max too large", args: map[string]any{"maxResults": 101.0}, wantErr: true},
		{name: "max too small", args: map[string]any{"maxResults": -1.0}, wantErr: true},
		{name: "explicit zero max", args: map[string]any{"maxResults": 0.0}, wantErr: true},
		{name: "fractional max", args: map[string]any{"maxResults": 1.5}, wantErr: true},
		{name: "bad bool", args: map[string]any{"onlyUnread": "maybe"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseFilter(tt.args)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHandleReadEmails(t *testing.T) {
	api := newFakeMailbox()
	sc := newTestServerContext(t, true, api)

	result, err := handleReadEmails(context.Background(), callRequest("gmail_read_emails", map[string]any{
		"senderEmail": "alice@example.com",
		"onlyUnread":  true,
		"maxResults":  2.0,
	}), sc)
	require.NoError(t, err)
	require.False(t, result.IsError, common.ResultText(result))

	var messages []gmail.EmailMessage
	require.NoError(t, json.Unmarshal([]byte(common.ResultText(result)), &messages))
	require.Len(t, messages, 2)
	assert.Equal(t, "m1", messages[0].ID)
	assert.Equal(t, "Greetings", messages[0].Subject)
	assert.Equal(t, []string{"me@example.com"}, messages[0].To)
	assert.Equal(t, "hello", messages[0].Body)
	assert.True(t, messages[0].IsUnread)
	assert.False(t, messages[1].IsUnread)

	assert.Equal(t, "from:alice@example.com is:unread", api.gotQuery)
	assert.Equal(t, int64(2), api.gotMax)
}

func TestHandleReadEmails_WithoutBody(t *testing.T) {
	sc := newTestServerContext(t, true, newFakeMailbox())

	result, err := handleReadEmails(context.Background(), callRequest("gmail_read_emails", map[string]any{
		"includeBody": false,
	}), sc)
	require.NoError(t, err)
	require.False(t, result.IsError)

	var messages []gmail.EmailMessage
	require.NoError(t, json.Unmarshal([]byte(common.ResultText(result)), &messages))
	require.Len(t, messages, 2)
	assert.Empty(t, messages[0].Body)
}

func TestHandleReadEmails_Errors(t *testing.T) {
	tests := []struct {
		name       string
		authorized bool
		listErr    error
		args       map[string]any
		wantText   []string
	}{
		{
			name:     "invalid arguments",
			args:     map[string]any{"maxResults": 500.0},
			wantText: []string{"Invalid arguments"},
		},
		{
			name:     "not authorized",
			args:     map[string]any{},
			wantText: []string{"Error reading emails: ", common.AuthGuidance},
		},
		{
			name:       "search fails",
			authorized: true,
			listErr:    errors.New("backend unavailable"),
			args:       map[string]any{},
			wantText:   []string{"Error reading emails: failed to search: backend unavailable"},
		},
		{
			name:       "token revoked",
			authorized: true,
			listErr:    &googleapi.Error{Code: http.StatusUnauthorized, Message: "invalid credentials"},
			args:       map[string]any{},
			wantText:   []string{"Error reading emails: ", common.AuthGuidance},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newFakeMailbox()
			api.listErr = tt.listErr
			sc := newTestServerContext(t, tt.authorized, api)

			result, err := handleReadEmails(context.Background(), callRequest("gmail_read_emails", tt.args), sc)
			require.NoError(t, err)
			require.True(t, result.IsError)
			for _, want := range tt.wantText {
				assert.Contains(t, common.ResultText(result), want)
			}
		})
	}
}

func TestHandleReadEmails_UnauthorizedRestartsConsent(t *testing.T) {
	api := newFakeMailbox()
	api.listErr = &googleapi.Error{Code: http.StatusUnauthorized, Message: "invalid credentials"}
	sc := newTestServerContext(t, true, api)

	result, err := handleReadEmails(context.Background(), callRequest("gmail_read_emails", map[string]any{}), sc)
	require.NoError(t, err)
	require.True(t, result.IsError)

	authURL, err := sc.Authorizer().Begin()
	require.NoError(t, err)
	assert.Contains(t, authURL, "access_type=offline")
	assert.Equal(t, google.StateAwaitingUserConsent, sc.Authorizer().State())
}

func TestHandleTestConnection(t *testing.T) {
	tests := []struct {
		name       string
		authorized bool
		profileErr error
		want       string
	}{
		{name: "connected", authorized: true, want: `{"connected":true}`},
		{name: "probe fails", authorized: true, profileErr: errors.New("timeout"), want: `{"connected":false}`},
		{name: "not authorized", want: `{"connected":false}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newFakeMailbox()
			api.profileErr = tt.profileErr
			sc := newTestServerContext(t, tt.authorized, api)

			result, err := handleTestConnection(context.Background(), callRequest("gmail_test_connection", nil), sc)
			require.NoError(t, err)
			assert.False(t, result.IsError)
			assert.JSONEq(t, tt.want, common.ResultText(result))
		})
	}
}
