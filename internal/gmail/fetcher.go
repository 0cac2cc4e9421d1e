package gmail

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/teemow/mailreader/internal/instrumentation"
	"github.com/teemow/mailreader/internal/logging"
)

// DefaultConcurrency bounds the detail fetches in flight per batch.
const DefaultConcurrency int64 = 10

// Config configures a Fetcher and the Service built on it.
type Config struct {
	// Concurrency is the number of concurrent detail fetches (default: 10)
	Concurrency int64
	Logger      logging.Logger
	Metrics     *instrumentation.Metrics
}

// Fetcher resolves a search query to message ids and ids to EmailMessages.
type Fetcher struct {
	api         API
	concurrency int64
	logger      logging.Logger
	metrics     *instrumentation.Metrics
}

// NewFetcher creates a Fetcher. A nil logger falls back to slog.Default().
func NewFetcher(api API, cfg Config) *Fetcher {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewSlogAdapter(logging.WithComponent(nil, "fetcher"))
	}
	return &Fetcher{
		api:         api,
		concurrency: cfg.Concurrency,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
	}
}

// Search returns the ids of at most maxResults messages matching query.
// maxResults is clamped to 1..100.
func (f *Fetcher) Search(ctx context.Context, query string, maxResults int64) ([]string, error) {
	ids, err := f.api.ListMessageIDs(ctx, query, ClampMaxResults(maxResults))
	if err != nil {
		f.logger.Warn("message search failed", logging.QueryTerms(query), logging.Err(err))
		return nil, &FetchError{Op: "search", Err: err}
	}
	if ids == nil {
		ids = []string{}
	}
	f.logger.Debug("message search completed", logging.QueryTerms(query), logging.Count(len(ids)))
	return ids, nil
}

// FetchDetail fetches one message. Any failure, including a panic in the
// API layer, yields (nil, false) and a warning.
func (f *Fetcher) FetchDetail(ctx context.Context, id string, includeBody bool) (msg *EmailMessage, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Warn("message detail fetch panicked", logging.MessageID(id), "panic", r)
			msg, ok = nil, false
		}
	}()

	m, err := f.api.GetMessage(ctx, id)
	if err != nil {
		f.logger.Warn("message detail fetch failed", logging.MessageID(id), logging.Err(err))
		return nil, false
	}
	if m == nil {
		f.logger.Warn("message detail fetch returned nothing", logging.MessageID(id))
		return nil, false
	}
	return toEmailMessage(m, includeBody), true
}

// FetchDetails fetches ids concurrently and returns the messages in the
// order of ids, leaving out the ones that failed. Once started the batch
// runs to completion even if ctx is cancelled.
func (f *Fetcher) FetchDetails(ctx context.Context, ids []string, includeBody bool) []EmailMessage {
	ctx = context.WithoutCancel(ctx)

	slots := make([]*EmailMessage, len(ids))
	sem := semaphore.NewWeighted(f.concurrency)
	var wg sync.WaitGroup
	for i, id := range ids {
		// ctx cannot be cancelled, Acquire only blocks
		_ = sem.Acquire(ctx, 1)
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			defer sem.Release(1)
			slots[i], _ = f.FetchDetail(ctx, id, includeBody)
		}(i, id)
	}
	wg.Wait()

	messages := make([]EmailMessage, 0, len(ids))
	for _, m := range slots {
		if m != nil {
			messages = append(messages, *m)
		}
	}

	absent := len(ids) - len(messages)
	f.metrics.RecordMessagesFetched(ctx, instrumentation.FetchResultFetched, len(messages))
	f.metrics.RecordMessagesFetched(ctx, instrumentation.FetchResultAbsent, absent)
	if absent > 0 {
		f.logger.Info("some messages could not be fetched", "requested", len(ids), "absent", absent)
	}
	return messages
}
