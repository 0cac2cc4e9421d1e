package gmail

import "strings"

// BuildQuery renders filter as a Gmail search query: "from:<sender>" first,
// then "is:unread". An empty filter yields "".
func BuildQuery(filter EmailFilter) string {
	var terms []string
	if filter.SenderEmail != "" {
		terms = append(terms, "from:"+filter.SenderEmail)
	}
	if filter.OnlyUnread {
		terms = append(terms, "is:unread")
	}
	return strings.Join(terms, " ")
}
