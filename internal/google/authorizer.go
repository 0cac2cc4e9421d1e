package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/oauth2"

	"github.com/teemow/mailreader/internal/instrumentation"
	"github.com/teemow/mailreader/internal/logging"
)

// State is the authorization state of an Authorizer.
type State int32

const (
	StateUnauthenticated State = iota
	StateAwaitingUserConsent
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAwaitingUserConsent:
		return "awaiting_user_consent"
	case StateAuthenticated:
		return "authenticated"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// authState is the OAuth "state" parameter. Codes are pasted back by hand,
// there is no redirect handler that could verify a random value.
const authState = "mailreader"

// CodeProvider obtains the one-time authorization code after the user has
// visited authURL.
type CodeProvider interface {
	AuthorizationCode(ctx context.Context, authURL string) (string, error)
}

// CodeProviderFunc adapts a function to CodeProvider.
type CodeProviderFunc func(ctx context.Context, authURL string) (string, error)

func (f CodeProviderFunc) AuthorizationCode(ctx context.Context, authURL string) (string, error) {
	return f(ctx, authURL)
}

// Option configures an Authorizer.
type Option func(*Authorizer)

// WithCodeProvider sets the code provider used by Authorize.
func WithCodeProvider(p CodeProvider) Option {
	return func(a *Authorizer) { a.codes = p }
}

func WithLogger(logger *slog.Logger) Option {
	return func(a *Authorizer) { a.logger = logging.WithComponent(logger, "authorizer") }
}

func WithMetrics(m *instrumentation.Metrics) Option {
	return func(a *Authorizer) { a.metrics = m }
}

// WithHTTPClient sets the client used to reach the token endpoint and as the
// base transport of authenticated requests.
func WithHTTPClient(c *http.Client) Option {
	return func(a *Authorizer) { a.httpClient = c }
}

// Authorizer runs the OAuth2 authorization code flow and owns the resulting
// AuthenticatedContext. Authenticated is only left when Google has rejected
// the token and a new consent is started to replace it.
type Authorizer struct {
	config     *oauth2.Config
	store      TokenStore
	codes      CodeProvider
	logger     *slog.Logger
	metrics    *instrumentation.Metrics
	httpClient *http.Client

	// flow serializes state transitions; state and authCtx are read without it.
	flow    sync.Mutex
	state   atomic.Int32
	authCtx atomic.Pointer[AuthenticatedContext]
}

// NewAuthorizer returns an Authorizer in StateUnauthenticated.
func NewAuthorizer(creds Credentials, store TokenStore, opts ...Option) *Authorizer {
	a := &Authorizer{
		config: creds.OAuthConfig(),
		store:  store,
		logger: logging.WithComponent(nil, "authorizer"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// State returns the current state.
func (a *Authorizer) State() State {
	return State(a.state.Load())
}

func (a *Authorizer) setState(s State) {
	prev := State(a.state.Swap(int32(s)))
	if prev != s {
		a.logger.Debug("authorization state changed", "from", prev.String(), logging.KeyState, s.String())
	}
}

// AuthURL returns the consent page URL. It requests offline access so the
// exchange yields a refresh token.
func (a *Authorizer) AuthURL() string {
	return a.config.AuthCodeURL(authState, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Resume moves to Authenticated when the store holds a token. It reports
// whether the Authorizer is authenticated afterwards.
func (a *Authorizer) Resume() bool {
	a.flow.Lock()
	defer a.flow.Unlock()
	return a.resumeLocked()
}

// resumeLocked keeps a usable authenticated context. Once Google has
// rejected the current token, only a different stored token is taken over,
// for example one written by "mailreader auth" in another process.
func (a *Authorizer) resumeLocked() bool {
	if a.authenticatedLocked() {
		return true
	}
	set, ok := a.store.LoadToken()
	if !ok {
		return false
	}
	if c := a.authCtx.Load(); c != nil && c.source.holds(set) {
		a.logger.Info("stored token was rejected, authorization required")
		return false
	}
	a.authenticateLocked(set)
	a.logger.Info("authorized from stored token")
	return true
}

// authenticatedLocked reports whether the Authorizer is Authenticated with a
// token that Google has not rejected.
func (a *Authorizer) authenticatedLocked() bool {
	if a.State() != StateAuthenticated {
		return false
	}
	c := a.authCtx.Load()
	return c != nil && !c.source.rejected.Load()
}

// Reject discards the current token. The next Begin, Complete or Authorize
// starts a new consent unless the store holds a different token. Context
// keeps returning the old context until then.
func (a *Authorizer) Reject() {
	a.flow.Lock()
	defer a.flow.Unlock()
	if c := a.authCtx.Load(); c != nil {
		c.source.reject()
		a.logger.Info("current token discarded")
	}
}

// Begin is the non-blocking start of the flow. A stored token authenticates
// directly and yields ErrAlreadyAuthorized; otherwise the Authorizer enters
// AwaitingUserConsent and the consent URL is returned. A token whose refresh
// was rejected does not count, so Begin restarts consent after a revocation.
func (a *Authorizer) Begin() (string, error) {
	a.flow.Lock()
	defer a.flow.Unlock()

	if a.resumeLocked() {
		return "", &AuthError{Err: ErrAlreadyAuthorized}
	}
	return a.beginConsentLocked(), nil
}

func (a *Authorizer) beginConsentLocked() string {
	a.setState(StateAwaitingUserConsent)
	return a.AuthURL()
}

// Complete exchanges an authorization code, persists the token and moves to
// Authenticated. Calling it from Unauthenticated implies Begin. On
// failure the state returns to Unauthenticated. A rejected token is replaced.
func (a *Authorizer) Complete(ctx context.Context, code string) error {
	a.flow.Lock()
	defer a.flow.Unlock()
	return a.completeLocked(ctx, code)
}

func (a *Authorizer) completeLocked(ctx context.Context, code string) error {
	if a.authenticatedLocked() {
		return &AuthError{Err: ErrAlreadyAuthorized}
	}
	a.setState(StateAwaitingUserConsent)

	code = strings.TrimSpace(code)
	if code == "" {
		a.setState(StateUnauthenticated)
		return &AuthError{Reason: "failed to exchange authorization code", Err: errors.New("empty authorization code")}
	}

	tok, err := a.config.Exchange(a.oauthContext(ctx), code)
	if err != nil {
		a.setState(StateUnauthenticated)
		a.metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultFailure)
		a.logger.Warn("authorization code exchange failed", logging.Err(err))
		return &AuthError{Reason: "failed to exchange authorization code", Err: err}
	}

	set := TokenSetFromOAuth2(tok, nil)
	if err := a.store.SaveToken(set); err != nil {
		a.setState(StateUnauthenticated)
		return fmt.Errorf("failed to save token: %w", err)
	}

	a.metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultSuccess)
	a.authenticateLocked(set)
	a.logger.Info("authorization completed", "refresh_token", logging.SanitizeToken(set.RefreshToken))
	return nil
}

// Authorize runs the whole flow: a stored token is used directly, otherwise
// the code provider is asked for a code which is then exchanged. A rejected
// token is not reused.
func (a *Authorizer) Authorize(ctx context.Context) error {
	a.flow.Lock()
	defer a.flow.Unlock()

	if a.resumeLocked() {
		return nil
	}
	if a.codes == nil {
		return &AuthError{Err: ErrAuthorizationRequired}
	}

	authURL := a.beginConsentLocked()
	code, err := a.codes.AuthorizationCode(ctx, authURL)
	if err != nil {
		a.setState(StateUnauthenticated)
		return &AuthError{Reason: "failed to obtain authorization code", Err: err}
	}
	return a.completeLocked(ctx, code)
}

// Context returns the authenticated context. In any state but Authenticated
// it fails with an *AuthError wrapping ErrAuthorizationRequired.
func (a *Authorizer) Context() (*AuthenticatedContext, error) {
	if c := a.authCtx.Load(); c != nil && a.State() == StateAuthenticated {
		return c, nil
	}
	return nil, &AuthError{Err: ErrAuthorizationRequired}
}

func (a *Authorizer) authenticateLocked(set *TokenSet) {
	base := a.config.TokenSource(a.oauthContext(context.Background()), set.OAuth2())
	source := newPersistingTokenSource(base, set, a.store, a.logger, a.metrics)
	a.authCtx.Store(newAuthenticatedContext(a.oauthContext(context.Background()), source, a.httpClient == nil))
	a.setState(StateAuthenticated)
}

func (a *Authorizer) oauthContext(ctx context.Context) context.Context {
	if a.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
}

// AuthenticatedContext binds the token to outbound requests. It is safe for
// concurrent use.
type AuthenticatedContext struct {
	source *persistingTokenSource
	client *http.Client
}

func newAuthenticatedContext(ctx context.Context, source *persistingTokenSource, forceHTTP1 bool) *AuthenticatedContext {
	client := oauth2.NewClient(ctx, source)
	if forceHTTP1 {
		// Force HTTP/1.1 by disabling HTTP/2
		if t, ok := client.Transport.(*oauth2.Transport); ok {
			t.Base = &http.Transport{
				Proxy:             http.ProxyFromEnvironment,
				ForceAttemptHTTP2: false,
			}
		}
	}
	return &AuthenticatedContext{source: source, client: client}
}

// HTTPClient returns a client that authorizes every request and refreshes
// the access token when it has expired.
func (c *AuthenticatedContext) HTTPClient() *http.Client {
	return c.client
}

// Token returns a valid access token, refreshing it if needed.
func (c *AuthenticatedContext) Token() (*oauth2.Token, error) {
	return c.source.Token()
}
