package gmail

import (
	"encoding/base64"
	"strings"

	gmail "google.golang.org/api/gmail/v1"
)

const labelUnread = "UNREAD"

// HeaderValue returns the first header named name, compared case-insensitively.
func HeaderValue(headers []*gmail.MessagePartHeader, name string) string {
	for _, h := range headers {
		if h != nil && strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// ParseRecipients splits a To header on commas. Empty entries are dropped.
func ParseRecipients(value string) []string {
	recipients := []string{}
	for _, r := range strings.Split(value, ",") {
		if r = strings.TrimSpace(r); r != "" {
			recipients = append(recipients, r)
		}
	}
	return recipients
}

func IsUnread(labels []string) bool {
	for _, l := range labels {
		if l == labelUnread {
			return true
		}
	}
	return false
}

// ExtractBody returns the first text/plain or text/html part with decodable
// data, walking nested multipart containers depth-first. A single-part
// payload decodes its own body. It returns "" when nothing decodes.
func ExtractBody(payload *gmail.MessagePart) string {
	if payload == nil {
		return ""
	}
	if len(payload.Parts) == 0 {
		if payload.Body == nil {
			return ""
		}
		body, _ := decodeBody(payload.Body.Data)
		return body
	}

	var body string
	walkParts(payload, func(part *gmail.MessagePart) bool {
		if part.MimeType != "text/plain" && part.MimeType != "text/html" {
			return true
		}
		if part.Body == nil {
			return true
		}
		decoded, ok := decodeBody(part.Body.Data)
		if !ok {
			return true
		}
		body = decoded
		return false
	})
	return body
}

// walkParts visits the parts below root in document order until fn returns false.
func walkParts(root *gmail.MessagePart, fn func(*gmail.MessagePart) bool) bool {
	for _, part := range root.Parts {
		if part == nil {
			continue
		}
		if len(part.Parts) > 0 {
			if !walkParts(part, fn) {
				return false
			}
			continue
		}
		if !fn(part) {
			return false
		}
	}
	return true
}

var bodyEncodings = []*base64.Encoding{
	base64.URLEncoding,
	base64.RawURLEncoding,
	base64.StdEncoding,
}

// decodeBody decodes Gmail body data, which is base64url but not always padded.
func decodeBody(data string) (string, bool) {
	if data == "" {
		return "", false
	}
	for _, enc := range bodyEncodings {
		if decoded, err := enc.DecodeString(data); err == nil {
			return string(decoded), true
		}
	}
	return "", false
}

// toEmailMessage builds the summary of a full-format message.
func toEmailMessage(msg *gmail.Message, includeBody bool) *EmailMessage {
	var headers []*gmail.MessagePartHeader
	if msg.Payload != nil {
		headers = msg.Payload.Headers
	}
	labels := msg.LabelIds
	if labels == nil {
		labels = []string{}
	}

	em := &EmailMessage{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
		Subject:  HeaderValue(headers, "Subject"),
		From:     HeaderValue(headers, "From"),
		To:       ParseRecipients(HeaderValue(headers, "To")),
		Date:     HeaderValue(headers, "Date"),
		Snippet:  msg.Snippet,
		IsUnread: IsUnread(labels),
		Labels:   labels,
	}
	if includeBody {
		em.Body = ExtractBody(msg.Payload)
	}
	return em
}
