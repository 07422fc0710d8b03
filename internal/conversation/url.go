package conversation

import "net/url"

// IDFromURL derives the conversation id from the host page's location. The
// page encodes the open thread in the itemId query parameter; absence means
// no active conversation, which short-circuits all scanning.
func IDFromURL(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	id := u.Query().Get("itemId")
	if id == "" {
		return "", false
	}
	return id, true
}
