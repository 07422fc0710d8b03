package voice

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// The host page renders each message as a .message-row inside a .container
// that also carries an accessibility-hidden label with the full date. Rows
// sent by our side carry the "outgoing" class.
const (
	classSender     = "sender"
	classMessageRow = "message-row"
	classContainer  = "container"
	classHiddenDate = "cdk-visually-hidden"
	classContent    = "content"
	classOutgoing   = "outgoing"
)

// dateLayouts covers the formats the page has been observed to render inside
// the hidden date label, most specific first.
var dateLayouts = []string{
	"January 2, 2006, 3:04 PM",
	"Jan 2, 2006, 3:04 PM",
	"January 2, 2006, 15:04",
	"Jan 2, 2006, 15:04",
}

// Normalize converts a raw conversation markup snapshot into VoiceData. It is
// a pure read of the snapshot: missing elements degrade to empty values and
// a snapshot that parses to nothing yields an empty VoiceData, never an error.
// Raw DOM order is preserved; callers sort by timestamp before comparing.
func Normalize(markup string) VoiceData {
	data := VoiceData{}

	root, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return data
	}

	if sender := findByClass(root, classSender); sender != nil {
		data.Number = strings.TrimSpace(textContent(sender))
	}

	rows := collectByClass(root, classMessageRow)
	for i, row := range rows {
		ts := rowTimestamp(row)

		text := ""
		if content := findByClass(row, classContent); content != nil {
			text = strings.TrimSpace(textContent(content))
		}

		author := data.Number
		if hasClass(row, classOutgoing) {
			author = SelfAuthor
		}

		data.Messages = append(data.Messages, Message{
			ID:        fmt.Sprintf("%d-%d", ts, i),
			Text:      text,
			Timestamp: ts,
			Author:    author,
			Read:      true,
		})
	}

	return data
}

// rowTimestamp derives the epoch timestamp for one message row from the
// hidden date label on its enclosing container. The label reads like
// "Friday, July 10, 2024, 2:45 PM." and only the last three comma-separated
// components form the parseable date. Unparseable rows get 0, which sorts
// first; a known limitation, not a dropped message.
func rowTimestamp(row *html.Node) int64 {
	container := closestByClass(row, classContainer)
	if container == nil {
		return 0
	}
	hidden := findByClass(container, classHiddenDate)
	if hidden == nil {
		return 0
	}

	parts := strings.Split(strings.TrimSpace(textContent(hidden)), ", ")
	if len(parts) < 3 {
		return 0
	}
	dateStr := strings.Join(parts[len(parts)-3:], ", ")
	dateStr = strings.TrimSuffix(dateStr, ".")

	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, dateStr, time.Local); err == nil {
			return t.UnixMilli()
		}
	}
	return 0
}

func hasClass(n *html.Node, class string) bool {
	if n.Type != html.ElementNode {
		return false
	}
	for _, attr := range n.Attr {
		if attr.Key != "class" {
			continue
		}
		for _, c := range strings.Fields(attr.Val) {
			if c == class {
				return true
			}
		}
	}
	return false
}

func findByClass(n *html.Node, class string) *html.Node {
	if hasClass(n, class) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findByClass(c, class); found != nil {
			return found
		}
	}
	return nil
}

func collectByClass(n *html.Node, class string) []*html.Node {
	var out []*html.Node
	if hasClass(n, class) {
		out = append(out, n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, collectByClass(c, class)...)
	}
	return out
}

func closestByClass(n *html.Node, class string) *html.Node {
	for cur := n; cur != nil; cur = cur.Parent {
		if hasClass(cur, class) {
			return cur
		}
	}
	return nil
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(textContent(c))
	}
	return sb.String()
}
