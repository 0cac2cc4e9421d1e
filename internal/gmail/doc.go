// Package gmail reads messages from a Gmail mailbox.
//
// Retrieval is a three step pipeline:
//
//	EmailFilter → BuildQuery → Fetcher.Search → Fetcher.FetchDetails → []EmailMessage
//
// Search issues a single users.messages.list call. Details are fetched
// concurrently with a bounded number of requests in flight, and the result
// keeps the order of the search. A message that cannot be fetched is left
// out rather than failing the whole call.
//
// All API access goes through the narrow API interface, implemented by Client
// on top of google.golang.org/api/gmail/v1. Client records a span and a
// duration metric for every call.
//
// Example usage:
//
//	api, err := gmail.NewClient(ctx, authCtx.HTTPClient(), metrics)
//	if err != nil {
//	    return err
//	}
//	svc := gmail.NewService(api, gmail.Config{Logger: logger})
//	msgs, err := svc.GetEmails(ctx, gmail.EmailFilter{SenderEmail: "alice@example.com", OnlyUnread: true})
package gmail
