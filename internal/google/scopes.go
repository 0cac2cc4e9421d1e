package google

import (
	gmail "google.golang.org/api/gmail/v1"
)

// Scopes is the fixed scope set requested during consent. Read-only mail
// access is the only permission mailreader ever asks for.
var Scopes = []string{
	gmail.GmailReadonlyScope,
}
