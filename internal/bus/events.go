package bus

import "time"

// Event types reported by the extension.
const (
	EventSnapshot   = "snapshot"
	EventActivate   = "activate"
	EventDeactivate = "deactivate"
	EventChoice     = "choice"
	EventPosted     = "posted"
	EventError      = "error"
)

// InboundEvent is one frame received from a connected extension client.
type InboundEvent struct {
	Type           string
	ClientID       string
	ConversationID string
	URL            string
	Markup         string
	Persona        string
	Model          string
	OK             bool   // result carried by posted acks
	Message        string // detail carried by error frames
	Timestamp      time.Time
}

// Command types pushed back to the extension.
const (
	CommandPost   = "post"
	CommandNotice = "notice"
	CommandReload = "reload"
)

// Command is one instruction for the extension to carry out in the page.
type Command struct {
	Type           string
	ConversationID string
	Text           string
	Level          string // notice severity
}
