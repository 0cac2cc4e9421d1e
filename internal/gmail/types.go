package gmail

import (
	"fmt"
	"net/mail"
)

const (
	// DefaultMaxResults applies when EmailFilter.MaxResults is zero.
	DefaultMaxResults int64 = 10
	// MaxMaxResults is the largest page users.messages.list returns.
	MaxMaxResults int64 = 100
)

// EmailFilter selects the messages returned by Service.GetEmails.
type EmailFilter struct {
	SenderEmail string
	OnlyUnread  bool
	// GetEmails treats a MaxResults of 0 as DefaultMaxResults. Validate,
	// applied to caller input, requires 1..MaxMaxResults.
	MaxResults  int64
	IncludeBody bool
}

// Validate checks the sender address syntax and the result range.
func (f EmailFilter) Validate() error {
	if f.SenderEmail != "" {
		addr, err := mail.ParseAddress(f.SenderEmail)
		if err != nil || addr.Address != f.SenderEmail {
			return fmt.Errorf("invalid sender email %q", f.SenderEmail)
		}
	}
	if f.MaxResults < 1 || f.MaxResults > MaxMaxResults {
		return fmt.Errorf("maxResults must be between 1 and %d, got %d", MaxMaxResults, f.MaxResults)
	}
	return nil
}

// ClampMaxResults maps n into 1..100, treating values below 1 as the default.
func ClampMaxResults(n int64) int64 {
	switch {
	case n < 1:
		return DefaultMaxResults
	case n > MaxMaxResults:
		return MaxMaxResults
	default:
		return n
	}
}

// EmailMessage is the summary of a message returned to callers.
type EmailMessage struct {
	ID       string   `json:"id"`
	ThreadID string   `json:"threadId"`
	Subject  string   `json:"subject"`
	From     string   `json:"from"`
	To       []string `json:"to"`
	Date     string   `json:"date"`
	Snippet  string   `json:"snippet"`
	Body     string   `json:"body"`
	IsUnread bool     `json:"isUnread"`
	Labels   []string `json:"labels"`
}

// Profile describes the authorized mailbox.
type Profile struct {
	EmailAddress  string `json:"emailAddress"`
	MessagesTotal int64  `json:"messagesTotal"`
	ThreadsTotal  int64  `json:"threadsTotal"`
}
