package gmail

import (
	"context"
	"errors"
	"fmt"

	"github.com/teemow/mailreader/internal/logging"
)

// Service is the mailbox facade used by the MCP tools and the CLI.
type Service struct {
	api     API
	fetcher *Fetcher
	logger  logging.Logger
}

// NewService creates a Service reading through api.
func NewService(api API, cfg Config) *Service {
	f := NewFetcher(api, cfg)
	return &Service{api: api, fetcher: f, logger: f.logger}
}

// GetEmails runs filter through search and detail fetch. Only a failed
// search is an error; messages that cannot be fetched are left out.
func (s *Service) GetEmails(ctx context.Context, filter EmailFilter) (messages []EmailMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("mail retrieval panicked", logging.Operation("get_emails"), "panic", r)
			messages, err = nil, &FetchError{Op: "get_emails", Err: fmt.Errorf("unexpected panic: %v", r)}
		}
	}()

	ids, err := s.fetcher.Search(ctx, BuildQuery(filter), filter.MaxResults)
	if err != nil {
		return nil, err
	}
	return s.fetcher.FetchDetails(ctx, ids, filter.IncludeBody), nil
}

// Profile returns the address and totals of the authorized mailbox.
func (s *Service) Profile(ctx context.Context) (*Profile, error) {
	p, err := s.api.GetProfile(ctx)
	if err != nil {
		return nil, &FetchError{Op: "get_profile", Err: err}
	}
	if p == nil {
		return nil, &FetchError{Op: "get_profile", Err: errors.New("empty profile response")}
	}
	return &Profile{
		EmailAddress:  p.EmailAddress,
		MessagesTotal: p.MessagesTotal,
		ThreadsTotal:  p.ThreadsTotal,
	}, nil
}

// TestConnection probes the profile endpoint. It reports false instead of
// returning an error.
func (s *Service) TestConnection(ctx context.Context) (connected bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("connection probe panicked", "panic", r)
			connected = false
		}
	}()

	p, err := s.Profile(ctx)
	if err != nil {
		s.logger.Warn("connection probe failed", logging.Err(err))
		return false
	}
	return p.EmailAddress != ""
}
