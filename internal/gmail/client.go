package gmail

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/teemow/mailreader/internal/instrumentation"
)

// API is the subset of the Gmail API used by the fetcher.
type API interface {
	// ListMessageIDs returns the ids of the first page of messages matching query.
	ListMessageIDs(ctx context.Context, query string, maxResults int64) ([]string, error)
	// GetMessage returns the full message, including the MIME payload.
	GetMessage(ctx context.Context, id string) (*gmail.Message, error)
	GetProfile(ctx context.Context) (*gmail.Profile, error)
}

// Client wraps the Gmail Users service of the authorized mailbox ("me").
type Client struct {
	svc     *gmail.UsersService
	metrics *instrumentation.Metrics
}

// NewClient creates a Gmail client on top of an authorized HTTP client.
// Extra options such as option.WithEndpoint are applied after the client.
func NewClient(ctx context.Context, httpClient *http.Client, metrics *instrumentation.Metrics, opts ...option.ClientOption) (*Client, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}
	return &Client{svc: svc.Users, metrics: metrics}, nil
}

// ListMessageIDs lists a single page. nextPageToken is never followed.
func (c *Client) ListMessageIDs(ctx context.Context, query string, maxResults int64) (ids []string, err error) {
	ctx, span := instrumentation.StartGmailSpan(ctx, instrumentation.OperationSearch)
	defer c.observe(ctx, instrumentation.OperationSearch, time.Now(), &err)
	defer func() {
		span.SetAttributes(attribute.Int(instrumentation.SpanAttrCount, len(ids)))
		instrumentation.EndSpan(span, err)
	}()

	req := c.svc.Messages.List("me").MaxResults(maxResults)
	if query != "" {
		req = req.Q(query)
	}
	res, err := req.Context(ctx).Do()
	if err != nil {
		return nil, err
	}

	ids = make([]string, 0, len(res.Messages))
	for _, m := range res.Messages {
		if m != nil && m.Id != "" {
			ids = append(ids, m.Id)
		}
	}
	return ids, nil
}

func (c *Client) GetMessage(ctx context.Context, id string) (msg *gmail.Message, err error) {
	ctx, span := instrumentation.StartGmailSpan(ctx, instrumentation.OperationGet,
		attribute.String(instrumentation.SpanAttrMessageID, id))
	defer c.observe(ctx, instrumentation.OperationGet, time.Now(), &err)
	defer func() { instrumentation.EndSpan(span, err) }()

	return c.svc.Messages.Get("me", id).Format("full").Context(ctx).Do()
}

func (c *Client) GetProfile(ctx context.Context) (profile *gmail.Profile, err error) {
	ctx, span := instrumentation.StartGmailSpan(ctx, instrumentation.OperationProfile)
	defer c.observe(ctx, instrumentation.OperationProfile, time.Now(), &err)
	defer func() { instrumentation.EndSpan(span, err) }()

	return c.svc.GetProfile("me").Context(ctx).Do()
}

func (c *Client) observe(ctx context.Context, operation string, start time.Time, err *error) {
	status := instrumentation.StatusSuccess
	if *err != nil {
		status = instrumentation.StatusError
	}
	c.metrics.RecordGmailOperation(ctx, operation, status, time.Since(start))
}
