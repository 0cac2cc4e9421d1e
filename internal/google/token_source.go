package google

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/oauth2"

	"github.com/teemow/mailreader/internal/instrumentation"
	"github.com/teemow/mailreader/internal/logging"
)

// persistingTokenSource wraps the refreshing source of an oauth2.Config.
// The mutex is held across refresh and save, so at most one refresh is in
// flight and callers never observe a token that has not been persisted yet.
type persistingTokenSource struct {
	mu      sync.Mutex
	base    oauth2.TokenSource
	last    *TokenSet
	store   TokenStore
	logger  *slog.Logger
	metrics *instrumentation.Metrics

	// rejected is set when the last refresh failed or the token was
	// discarded, and cleared by the next successful refresh.
	rejected atomic.Bool
}

func newPersistingTokenSource(base oauth2.TokenSource, initial *TokenSet, store TokenStore, logger *slog.Logger, metrics *instrumentation.Metrics) *persistingTokenSource {
	return &persistingTokenSource{
		base:    base,
		last:    initial,
		store:   store,
		logger:  logger,
		metrics: metrics,
	}
}

func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tok, err := s.base.Token()
	if err != nil {
		s.rejected.Store(true)
		s.metrics.RecordOAuthTokenRefresh(context.Background(), instrumentation.OAuthResultFailure)
		s.logger.Warn("access token refresh failed", logging.Err(err))
		return nil, &AuthError{Reason: "failed to refresh access token", Err: err}
	}
	s.rejected.Store(false)

	if s.last == nil || tok.AccessToken != s.last.AccessToken {
		set := TokenSetFromOAuth2(tok, s.last)
		s.metrics.RecordOAuthTokenRefresh(context.Background(), instrumentation.OAuthResultSuccess)
		if err := s.store.SaveToken(set); err != nil {
			// the refreshed token still works for this process
			s.logger.Warn("failed to persist refreshed token", logging.Err(err))
		} else {
			s.logger.Info("access token refreshed", "expiry", set.Expiry)
		}
		s.last = set
	}
	return tok, nil
}

func (s *persistingTokenSource) reject() {
	s.rejected.Store(true)
}

// holds reports whether set carries the same tokens this source started from
// or last refreshed to.
func (s *persistingTokenSource) holds(set *TokenSet) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil || set == nil {
		return false
	}
	return s.last.AccessToken == set.AccessToken && s.last.RefreshToken == set.RefreshToken
}
