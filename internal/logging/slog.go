package logging

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Common log attribute keys for consistent naming across the codebase.
const (
	KeyOperation  = "operation"
	KeyTool       = "tool"
	KeyMessageID  = "message_id"
	KeyQueryTerms = "query_terms"
	KeyCount      = "count"
	KeyUserHash   = "user_hash"
	KeyState      = "state"
	KeyStatus     = "status"
	KeyError      = "error"
	KeyComponent  = "component"
)

// Status values for consistent logging.
// Duplicated from instrumentation, which imports this package.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// New returns a text logger writing to w. Debug output is enabled when debug is set.
// Callers in stdio mode must pass os.Stderr since stdout carries protocol frames.
func New(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// OrDefault returns logger, or slog.Default() when logger is nil.
func OrDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}

// WithComponent returns a logger tagged with the component name.
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	return OrDefault(logger).With(slog.String(KeyComponent, component))
}

// WithOperation returns a logger with the operation attribute set.
func WithOperation(logger *slog.Logger, operation string) *slog.Logger {
	return OrDefault(logger).With(slog.String(KeyOperation, operation))
}

// WithTool returns a logger with the tool attribute set.
func WithTool(logger *slog.Logger, tool string) *slog.Logger {
	return OrDefault(logger).With(slog.String(KeyTool, tool))
}

func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

func Tool(tool string) slog.Attr {
	return slog.String(KeyTool, tool)
}

func MessageID(id string) slog.Attr {
	return slog.String(KeyMessageID, id)
}

func Count(n int) slog.Attr {
	return slog.Int(KeyCount, n)
}

func Status(status string) slog.Attr {
	return slog.String(KeyStatus, status)
}

// QueryTerms returns the search operators of a Gmail query without their values,
// so "from:a@b.com is:unread" logs as "from: is:". Sender addresses stay out of logs.
func QueryTerms(query string) slog.Attr {
	fields := strings.Fields(query)
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if op, _, ok := strings.Cut(f, ":"); ok {
			terms = append(terms, op+":")
		}
	}
	return slog.String(KeyQueryTerms, strings.Join(terms, " "))
}

// Err returns a slog attribute for an error.
// A nil error yields an empty group, which slog omits.
//
//	logger.Info("probe finished", logging.Err(err))
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Group("")
	}
	return slog.String(KeyError, err.Error())
}

// AnonymizeEmail returns a stable hash of an email address so log entries can be
// correlated without recording the address itself.
func AnonymizeEmail(email string) string {
	if email == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(strings.ToLower(email)))
	return "user:" + hex.EncodeToString(hash[:8])
}

// UserHash returns a slog attribute with the anonymized user email.
func UserHash(email string) slog.Attr {
	return slog.String(KeyUserHash, AnonymizeEmail(email))
}

// SanitizeToken masks a token down to its length. No prefix is kept.
func SanitizeToken(token string) string {
	if token == "" {
		return "<empty>"
	}
	return fmt.Sprintf("[token:%d chars]", len(token))
}

// ExtractDomain returns the domain part of an email address, or "" if it has none.
func ExtractDomain(email string) string {
	_, domain, ok := strings.Cut(email, "@")
	if !ok || domain == "" || strings.Contains(domain, "@") {
		return ""
	}
	return domain
}
