package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/teemow/mailreader/internal/gmail"
	"github.com/teemow/mailreader/internal/google"
	"github.com/teemow/mailreader/internal/instrumentation"
	"github.com/teemow/mailreader/internal/logging"
)

// APIFactory builds the Gmail API client on top of an authorized HTTP client.
type APIFactory func(ctx context.Context, httpClient *http.Client, metrics *instrumentation.Metrics) (gmail.API, error)

// DefaultAPIFactory talks to the public Gmail endpoint.
func DefaultAPIFactory(ctx context.Context, httpClient *http.Client, metrics *instrumentation.Metrics) (gmail.API, error) {
	return gmail.NewClient(ctx, httpClient, metrics)
}

// Config configures a ServerContext.
type Config struct {
	Authorizer *google.Authorizer
	// Mailbox configures the fetcher. Its Logger and Metrics are filled in
	// by the ServerContext when unset.
	Mailbox    gmail.Config
	APIFactory APIFactory
	Logger     *slog.Logger
}

// ServerContext holds the context for the MCP server
type ServerContext struct {
	ctx        context.Context
	cancel     context.CancelFunc
	authorizer *google.Authorizer
	mailboxCfg gmail.Config
	apiFactory APIFactory
	logger     *slog.Logger

	mu             sync.RWMutex
	mailbox        *gmail.Service
	mailboxAuth    *google.AuthenticatedContext
	mailboxAddress string
	metrics        *instrumentation.Metrics
	auditLogger    *instrumentation.AuditLogger
	shutdown       bool
}

// NewServerContext creates a new server context. No Google API call is made
// until a tool first needs the mailbox.
func NewServerContext(ctx context.Context, cfg Config) (*ServerContext, error) {
	if cfg.Authorizer == nil {
		return nil, errors.New("authorizer is required")
	}
	if cfg.APIFactory == nil {
		cfg.APIFactory = DefaultAPIFactory
	}
	logger := logging.WithComponent(cfg.Logger, "server")

	shutdownCtx, cancel := context.WithCancel(ctx)
	return &ServerContext{
		ctx:        shutdownCtx,
		cancel:     cancel,
		authorizer: cfg.Authorizer,
		mailboxCfg: cfg.Mailbox,
		apiFactory: cfg.APIFactory,
		logger:     logger,
	}, nil
}

// Context returns the server context
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Authorizer returns the process-wide Authorizer.
func (sc *ServerContext) Authorizer() *google.Authorizer {
	return sc.authorizer
}

// Logger returns the server logger.
func (sc *ServerContext) Logger() *slog.Logger {
	return sc.logger
}

// Mailbox returns the mailbox service, creating it on first use and again
// whenever a new authorization has replaced the token. Before authorization
// has completed it fails with a *google.AuthError.
func (sc *ServerContext) Mailbox() (*gmail.Service, error) {
	authCtx, err := sc.authorizer.Context()
	if err != nil {
		return nil, err
	}

	sc.mu.RLock()
	svc, built := sc.mailbox, sc.mailboxAuth
	sc.mu.RUnlock()
	if svc != nil && built == authCtx {
		return svc, nil
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.mailbox != nil && sc.mailboxAuth == authCtx {
		return sc.mailbox, nil
	}

	cfg := sc.mailboxCfg
	if cfg.Metrics == nil {
		cfg.Metrics = sc.metrics
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewSlogAdapter(logging.WithComponent(sc.logger, "fetcher"))
	}

	api, err := sc.apiFactory(sc.ctx, authCtx.HTTPClient(), cfg.Metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail client: %w", err)
	}
	if sc.mailbox != nil {
		sc.logger.Info("mailbox service rebuilt after re-authorization")
	}
	sc.mailbox = gmail.NewService(api, cfg)
	sc.mailboxAuth = authCtx
	sc.logger.Debug("mailbox service created")
	return sc.mailbox, nil
}

// RejectUnauthorized discards the token when Gmail answered 401, so the next
// authorization starts a new consent. It reports whether the token was
// discarded.
func (sc *ServerContext) RejectUnauthorized(err error) bool {
	var fetchErr *gmail.FetchError
	if !errors.As(err, &fetchErr) || fetchErr.StatusCode() != http.StatusUnauthorized {
		return false
	}
	sc.authorizer.Reject()
	sc.logger.Warn("Gmail refused the access token, authorization required", logging.Err(err))
	return true
}

// SetMailboxAddress records the address of the authorized mailbox for audit logs.
func (sc *ServerContext) SetMailboxAddress(address string) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.mailboxAddress = address
}

// MailboxAddress returns the recorded mailbox address, or "".
func (sc *ServerContext) MailboxAddress() string {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.mailboxAddress
}

// SetMetrics sets the metrics recorder. Call it before the mailbox is first used.
func (sc *ServerContext) SetMetrics(m *instrumentation.Metrics) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.metrics = m
}

// Metrics returns the metrics recorder, or nil.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.metrics
}

func (sc *ServerContext) SetAuditLogger(al *instrumentation.AuditLogger) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.auditLogger = al
}

func (sc *ServerContext) AuditLogger() *instrumentation.AuditLogger {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.auditLogger
}

// IsShutdown returns whether the server has been shutdown
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown shuts down the server context
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}

	sc.shutdown = true
	sc.cancel()
	return nil
}
