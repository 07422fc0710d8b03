package voice

// SelfAuthor marks messages sent from our own side of the thread.
const SelfAuthor = "you"

// Message is one normalized entry scraped from the thread markup.
type Message struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"` // epoch milliseconds, 0 when the rendered date is unparseable
	Author    string `json:"author"`
	Read      bool   `json:"read"`
	Deleted   bool   `json:"deleted"`
}

// IsSelf reports whether the message was authored by our own side.
func (m Message) IsSelf() bool {
	return m.Author == SelfAuthor
}

// VoiceData is the normalized form of one conversation snapshot.
type VoiceData struct {
	Number   string    `json:"number"` // counterpart identity, first sender label found
	Messages []Message `json:"messages"`
}
