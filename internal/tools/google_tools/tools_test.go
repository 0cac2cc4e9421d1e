package google_tools

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/teemow/mailreader/internal/gmail"
	"github.com/teemow/mailreader/internal/google"
	"github.com/teemow/mailreader/internal/instrumentation"
	"github.com/teemow/mailreader/internal/logging"
	"github.com/teemow/mailreader/internal/server"
	"github.com/teemow/mailreader/internal/tools/common"
)

type profileAPI struct {
	err error
}

func (profileAPI) ListMessageIDs(context.Context, string, int64) ([]string, error) {
	return []string{}, nil
}

func (profileAPI) GetMessage(context.Context, string) (*gmailapi.Message, error) {
	return nil, errors.New("not found")
}

func (p profileAPI) GetProfile(context.Context) (*gmailapi.Profile, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &gmailapi.Profile{EmailAddress: "me@example.com", MessagesTotal: 42}, nil
}

// newTokenServer accepts only the authorization code "good-code".
func newTokenServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.PostForm.Get("code") != "good-code" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "access",
			"refresh_token": "refresh",
			"token_type":    "Bearer",
			"expires_in":    3600,
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

type fixture struct {
	sc        *server.ServerContext
	tokenPath string
}

func newFixture(t *testing.T, withToken bool, api gmail.API) fixture {
	t.Helper()
	tokenSrv := newTokenServer(t)
	tokenPath := filepath.Join(t.TempDir(), "token.json")
	store := google.NewFileTokenStore(tokenPath, logging.Discard())
	if withToken {
		require.NoError(t, store.SaveToken(&google.TokenSet{
			AccessToken: "stored",
			TokenType:   "Bearer",
			Expiry:      time.Now().Add(time.Hour),
		}))
	}
	creds := google.Credentials{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURI:  "urn:ietf:wg:oauth:2.0:oob",
		TokenURI:     tokenSrv.URL,
	}
	sc, err := server.NewServerContext(context.Background(), server.Config{
		Authorizer: google.NewAuthorizer(creds, store, google.WithLogger(logging.Discard())),
		Logger:     logging.Discard(),
		APIFactory: func(context.Context, *http.Client, *instrumentation.Metrics) (gmail.API, error) {
			return api, nil
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sc.Shutdown() })
	return fixture{sc: sc, tokenPath: tokenPath}
}

func saveRequest(code string) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      "google_save_auth_code",
			Arguments: map[string]any{"authCode": code},
		},
	}
}

func TestRegisterGoogleTools(t *testing.T) {
	f := newFixture(t, false, profileAPI{})
	s := mcpserver.NewMCPServer("test", "0.0.0", mcpserver.WithToolCapabilities(true))

	require.NoError(t, RegisterGoogleTools(s, f.sc))

	tools := s.ListTools()
	require.Contains(t, tools, "google_get_auth_url")
	require.Contains(t, tools, "google_save_auth_code")
	assert.Equal(t, []string{"authCode"}, tools["google_save_auth_code"].Tool.InputSchema.Required)
}

func TestHandleGetAuthURL(t *testing.T) {
	f := newFixture(t, false, profileAPI{})

	result, err := handleGetAuthURL(context.Background(), mcp.CallToolRequest{}, f.sc)
	require.NoError(t, err)
	require.False(t, result.IsError)

	text := common.ResultText(result)
	assert.Contains(t, text, "access_type=offline")
	assert.Contains(t, text, "client_id=client")
	assert.Contains(t, text, "google_save_auth_code")
	assert.Equal(t, google.StateAwaitingUserConsent, f.sc.Authorizer().State())
}

func TestHandleGetAuthURL_AlreadyAuthorized(t *testing.T) {
	f := newFixture(t, true, profileAPI{})

	result, err := handleGetAuthURL(context.Background(), mcp.CallToolRequest{}, f.sc)
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, alreadyAuthorizedText, common.ResultText(result))
	assert.Equal(t, google.StateAuthenticated, f.sc.Authorizer().State())
}

func TestHandleSaveAuthCode(t *testing.T) {
	f := newFixture(t, false, profileAPI{})
	_, err := handleGetAuthURL(context.Background(), mcp.CallToolRequest{}, f.sc)
	require.NoError(t, err)

	result, err := handleSaveAuthCode(context.Background(), saveRequest(" good-code "), f.sc)
	require.NoError(t, err)
	require.False(t, result.IsError, common.ResultText(result))

	assert.Contains(t, common.ResultText(result), "me@example.com")
	assert.Equal(t, "me@example.com", f.sc.MailboxAddress())
	assert.Equal(t, google.StateAuthenticated, f.sc.Authorizer().State())
	assert.FileExists(t, f.tokenPath)

	again, err := handleSaveAuthCode(context.Background(), saveRequest("good-code"), f.sc)
	require.NoError(t, err)
	assert.Equal(t, alreadyAuthorizedText, common.ResultText(again))
}

func TestHandleSaveAuthCode_ProfileUnavailable(t *testing.T) {
	f := newFixture(t, false, profileAPI{err: errors.New("forbidden")})

	result, err := handleSaveAuthCode(context.Background(), saveRequest("good-code"), f.sc)
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Contains(t, common.ResultText(result), "Authorization successful")
	assert.Empty(t, f.sc.MailboxAddress())
}

func TestHandleSaveAuthCode_Errors(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		wantText string
	}{
		{name: "missing code", code: "  ", wantText: "authCode is required"},
		{name: "rejected code", code: "bad-code", wantText: "Failed to save authorization code"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, false, profileAPI{})

			result, err := handleSaveAuthCode(context.Background(), saveRequest(tt.code), f.sc)
			require.NoError(t, err)
			require.True(t, result.IsError)
			assert.Contains(t, common.ResultText(result), tt.wantText)
			assert.Equal(t, google.StateUnauthenticated, f.sc.Authorizer().State())
			assert.NoFileExists(t, f.tokenPath)
		})
	}
}

func TestAuthorizationToolsAfterRejectedRefresh(t *testing.T) {
	f := newFixture(t, false, profileAPI{})
	store := google.NewFileTokenStore(f.tokenPath, logging.Discard())
	require.NoError(t, store.SaveToken(&google.TokenSet{
		AccessToken:  "stored",
		RefreshToken: "revoked",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(-time.Hour),
	}))
	authorizer := f.sc.Authorizer()
	require.True(t, authorizer.Resume())

	authCtx, err := authorizer.Context()
	require.NoError(t, err)
	_, err = authCtx.Token()
	require.Error(t, err)
	assert.True(t, common.NeedsAuthorization(err))

	result, err := handleGetAuthURL(context.Background(), mcp.CallToolRequest{}, f.sc)
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Contains(t, common.ResultText(result), "access_type=offline")
	assert.Equal(t, google.StateAwaitingUserConsent, authorizer.State())

	result, err = handleSaveAuthCode(context.Background(), saveRequest("good-code"), f.sc)
	require.NoError(t, err)
	require.False(t, result.IsError, common.ResultText(result))
	assert.Contains(t, common.ResultText(result), "me@example.com")

	saved, ok := store.LoadToken()
	require.True(t, ok)
	assert.Equal(t, "access", saved.AccessToken)
}
