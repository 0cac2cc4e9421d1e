package server

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"

	"github.com/teemow/mailreader/internal/gmail"
	"github.com/teemow/mailreader/internal/google"
	"github.com/teemow/mailreader/internal/instrumentation"
	"github.com/teemow/mailreader/internal/logging"
)

type stubAPI struct{}

func (stubAPI) ListMessageIDs(context.Context, string, int64) ([]string, error) {
	return []string{}, nil
}

func (stubAPI) GetMessage(context.Context, string) (*gmailapi.Message, error) {
	return nil, errors.New("not found")
}

func (stubAPI) GetProfile(context.Context) (*gmailapi.Profile, error) {
	return &gmailapi.Profile{EmailAddress: "me@example.com"}, nil
}

// newTestAuthorizer returns an Authorizer backed by a token file in a temp
// dir, pre-populated when withToken is set.
func newTestAuthorizer(t *testing.T, withToken bool) *google.Authorizer {
	t.Helper()
	store := google.NewFileTokenStore(filepath.Join(t.TempDir(), "token.json"), logging.Discard())
	if withToken {
		require.NoError(t, store.SaveToken(&google.TokenSet{
			AccessToken: "access",
			TokenType:   "Bearer",
			Expiry:      time.Now().Add(time.Hour),
		}))
	}
	creds := google.Credentials{ClientID: "client", ClientSecret: "secret", RedirectURI: "http://localhost"}
	return google.NewAuthorizer(creds, store, google.WithLogger(logging.Discard()))
}

func TestNewServerContext_RequiresAuthorizer(t *testing.T) {
	_, err := NewServerContext(context.Background(), Config{})
	assert.Error(t, err)
}

func TestServerContext_MailboxRequiresAuthorization(t *testing.T) {
	sc, err := NewServerContext(context.Background(), Config{
		Authorizer: newTestAuthorizer(t, false),
		Logger:     logging.Discard(),
	})
	require.NoError(t, err)
	defer sc.Shutdown()

	_, err = sc.Mailbox()
	var authErr *google.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.ErrorIs(t, err, google.ErrAuthorizationRequired)
}

func TestServerContext_MailboxIsCached(t *testing.T) {
	authorizer := newTestAuthorizer(t, true)
	require.True(t, authorizer.Resume())

	var calls atomic.Int32
	var gotMetrics *instrumentation.Metrics
	metrics := &instrumentation.Metrics{}
	sc, err := NewServerContext(context.Background(), Config{
		Authorizer: authorizer,
		Logger:     logging.Discard(),
		APIFactory: func(_ context.Context, c *http.Client, m *instrumentation.Metrics) (gmail.API, error) {
			calls.Add(1)
			gotMetrics = m
			assert.NotNil(t, c)
			return stubAPI{}, nil
		},
	})
	require.NoError(t, err)
	defer sc.Shutdown()
	sc.SetMetrics(metrics)

	first, err := sc.Mailbox()
	require.NoError(t, err)
	second, err := sc.Mailbox()
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int32(1), calls.Load())
	assert.Same(t, metrics, gotMetrics)
	assert.True(t, first.TestConnection(context.Background()))
}

func TestServerContext_MailboxFactoryError(t *testing.T) {
	authorizer := newTestAuthorizer(t, true)
	require.True(t, authorizer.Resume())

	sc, err := NewServerContext(context.Background(), Config{
		Authorizer: authorizer,
		Logger:     logging.Discard(),
		APIFactory: func(context.Context, *http.Client, *instrumentation.Metrics) (gmail.API, error) {
			return nil, errors.New("no network")
		},
	})
	require.NoError(t, err)

	_, err = sc.Mailbox()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no network")
}

func TestServerContext_Shutdown(t *testing.T) {
	sc, err := NewServerContext(context.Background(), Config{Authorizer: newTestAuthorizer(t, false)})
	require.NoError(t, err)

	assert.False(t, sc.IsShutdown())
	require.NoError(t, sc.Shutdown())
	require.NoError(t, sc.Shutdown())
	assert.True(t, sc.IsShutdown())
	assert.Error(t, sc.Context().Err())
}

func TestServerContext_Accessors(t *testing.T) {
	sc, err := NewServerContext(context.Background(), Config{Authorizer: newTestAuthorizer(t, false)})
	require.NoError(t, err)

	assert.Nil(t, sc.Metrics())
	assert.Nil(t, sc.AuditLogger())
	assert.Empty(t, sc.MailboxAddress())

	al := instrumentation.NewAuditLogger(logging.Discard(), instrumentation.AuditLoggingConfig{Enabled: true})
	sc.SetAuditLogger(al)
	sc.SetMailboxAddress("me@example.com")
	assert.Same(t, al, sc.AuditLogger())
	assert.Equal(t, "me@example.com", sc.MailboxAddress())
}

func TestServerContext_MailboxRebuiltAfterReauthorization(t *testing.T) {
	store := google.NewFileTokenStore(filepath.Join(t.TempDir(), "token.json"), logging.Discard())
	require.NoError(t, store.SaveToken(&google.TokenSet{
		AccessToken: "first",
		TokenType:   "Bearer",
		Expiry:      time.Now().Add(time.Hour),
	}))
	creds := google.Credentials{ClientID: "client", ClientSecret: "secret", RedirectURI: "http://localhost"}
	authorizer := google.NewAuthorizer(creds, store, google.WithLogger(logging.Discard()))
	require.True(t, authorizer.Resume())

	var calls atomic.Int32
	sc, err := NewServerContext(context.Background(), Config{
		Authorizer: authorizer,
		Logger:     logging.Discard(),
		APIFactory: func(context.Context, *http.Client, *instrumentation.Metrics) (gmail.API, error) {
			calls.Add(1)
			return stubAPI{}, nil
		},
	})
	require.NoError(t, err)
	defer sc.Shutdown()

	first, err := sc.Mailbox()
	require.NoError(t, err)

	authorizer.Reject()
	_, err = authorizer.Begin()
	require.NoError(t, err)
	_, err = sc.Mailbox()
	assert.ErrorIs(t, err, google.ErrAuthorizationRequired)

	require.NoError(t, store.SaveToken(&google.TokenSet{
		AccessToken: "second",
		TokenType:   "Bearer",
		Expiry:      time.Now().Add(time.Hour),
	}))
	_, err = authorizer.Begin()
	require.ErrorIs(t, err, google.ErrAlreadyAuthorized)

	second, err := sc.Mailbox()
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Equal(t, int32(2), calls.Load())
}

func TestServerContext_RejectUnauthorized(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "unauthorized", err: &gmail.FetchError{Op: "search", Err: &googleapi.Error{Code: http.StatusUnauthorized}}, want: true},
		{name: "forbidden", err: &gmail.FetchError{Op: "search", Err: &googleapi.Error{Code: http.StatusForbidden}}},
		{name: "plain error", err: errors.New("boom")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			authorizer := newTestAuthorizer(t, true)
			require.True(t, authorizer.Resume())
			sc, err := NewServerContext(context.Background(), Config{Authorizer: authorizer, Logger: logging.Discard()})
			require.NoError(t, err)

			assert.Equal(t, tt.want, sc.RejectUnauthorized(tt.err))
			_, err = authorizer.Begin()
			if tt.want {
				assert.NoError(t, err)
				assert.Equal(t, google.StateAwaitingUserConsent, authorizer.State())
			} else {
				assert.ErrorIs(t, err, google.ErrAlreadyAuthorized)
			}
		})
	}
}
